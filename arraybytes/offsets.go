// Copyright 2026 The Zarr-Go Authors. All rights reserved. Use of this source
// code is governed by a BSD-style license that can be found in the LICENSE
// file.

package arraybytes

import (
	"github.com/zarrgo/zarr/internal/base"
	"github.com/zarrgo/zarr/internal/invariants"
)

// Offsets is the offset table of a variable-length buffer: num_elements+1
// monotonically non-decreasing values where element i occupies
// bytes[offsets[i]:offsets[i+1]]. The first offset is always zero; equal
// adjacent offsets denote a zero-length element.
type Offsets struct {
	v []uint64
}

// NewOffsets validates v and wraps it without copying. Use this for any
// table built from untrusted input (e.g. a decoded vlen index).
func NewOffsets(v []uint64) (Offsets, error) {
	if len(v) == 0 {
		return Offsets{}, base.DataErrorf("offsets table is empty")
	}
	if v[0] != 0 {
		return Offsets{}, base.DataErrorf("offsets table must start at 0, got %d", v[0])
	}
	for i := 1; i < len(v); i++ {
		if v[i] < v[i-1] {
			return Offsets{}, base.DataErrorf(
				"offsets table is not monotonic: offsets[%d]=%d < offsets[%d]=%d",
				i, v[i], i-1, v[i-1])
		}
	}
	return Offsets{v: v}, nil
}

// newOffsetsUnchecked wraps v without validation. Callers must have
// established the Offsets invariant in the immediately preceding code; the
// constructor is deliberately unexported and re-checks under invariant
// builds.
func newOffsetsUnchecked(v []uint64) Offsets {
	if invariants.Enabled {
		if _, err := NewOffsets(v); err != nil {
			panic(err)
		}
	}
	return Offsets{v: v}
}

// Len returns the table length (number of elements + 1).
func (o Offsets) Len() int { return len(o.v) }

// NumElements returns the number of elements the table describes.
func (o Offsets) NumElements() uint64 {
	if len(o.v) == 0 {
		return 0
	}
	return uint64(len(o.v) - 1)
}

// At returns the i-th offset.
func (o Offsets) At(i int) uint64 { return o.v[i] }

// Last returns the final offset, which equals the payload length.
func (o Offsets) Last() uint64 { return o.v[len(o.v)-1] }

// Values returns the underlying table. It must not be mutated.
func (o Offsets) Values() []uint64 { return o.v }
