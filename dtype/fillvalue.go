// Copyright 2026 The Zarr-Go Authors. All rights reserved. Use of this source
// code is governed by a BSD-style license that can be found in the LICENSE
// file.

package dtype

import (
	"bytes"
	"slices"

	"github.com/zarrgo/zarr/internal/base"
)

// FillValue is the byte representation of the implicit value of array
// elements that are not explicitly stored.
//
// For optional data types the representation carries one trailing presence
// byte per nesting level, outermost level last: 0x00 marks null, 0x01 marks
// present (the inner bytes precede the suffix). A null at an outer level
// elides everything beneath it, so a fill value for an n-deep optional type
// with innermost fixed size S is valid at exactly these lengths:
//
//   - 1: null at the outermost level
//   - k in [2, n]: present down to level k-1, null at level k
//   - S+n: fully present, S innermost bytes plus n presence bytes
type FillValue struct {
	b []byte
}

// NewFillValue copies b into a fill value.
func NewFillValue(b []byte) FillValue {
	return FillValue{b: slices.Clone(b)}
}

// NullFillValue is the fill value of a null optional of any depth.
func NullFillValue() FillValue {
	return FillValue{b: []byte{0}}
}

// IntoOptional wraps the fill value in one present optional layer.
func (fv FillValue) IntoOptional() FillValue {
	return FillValue{b: append(slices.Clone(fv.b), 1)}
}

// Bytes returns a read-only view of the fill value bytes.
func (fv FillValue) Bytes() []byte { return fv.b }

// Size returns the fill value length in bytes.
func (fv FillValue) Size() int { return len(fv.b) }

// Equal reports byte equality.
func (fv FillValue) Equal(other FillValue) bool { return bytes.Equal(fv.b, other.b) }

// EqualsAll reports whether buf is an exact repetition of the fill value
// bytes. An empty buf matches. A zero-size fill value only matches an empty
// buf.
func (fv FillValue) EqualsAll(buf []byte) bool {
	if len(buf) == 0 {
		return true
	}
	if len(fv.b) == 0 || len(buf)%len(fv.b) != 0 {
		return false
	}
	for i := 0; i < len(buf); i += len(fv.b) {
		if !bytes.Equal(buf[i:i+len(fv.b)], fv.b) {
			return false
		}
	}
	return true
}

// ValidateFillValue checks that fv is a legal fill value for dt, applying
// the optional nesting size rule documented on FillValue. Variable-size
// innermost types accept any payload length.
func (dt DataType) ValidateFillValue(fv FillValue) error {
	n := dt.OptionalDepth()
	size := fv.Size()
	if n == 0 {
		if dt.IsVariable() {
			return nil
		}
		if size != dt.MustFixedSize() {
			return base.DataErrorf("fill value size %d does not match data type %s (size %d)",
				size, dt, dt.MustFixedSize())
		}
		return nil
	}
	if size == 1 || (size >= 2 && size <= n) {
		return nil
	}
	inner := dt.Innermost()
	if s, ok := inner.FixedSize(); ok {
		if size == s+n {
			return nil
		}
		return base.DataErrorf(
			"fill value size %d invalid for optional data type %s: want 1, 2..%d, or %d",
			size, dt, n, s+n)
	}
	// Variable-size innermost: any payload plus the n presence bytes.
	if size > n {
		return nil
	}
	return base.DataErrorf("fill value size %d invalid for optional data type %s", size, dt)
}

// SplitOptionalFill splits a fill value for an optional type into the
// outermost presence flag and the fill value of the inner layer. For a null
// outer layer the inner fill value is the inner type's placeholder: zero
// bytes for fixed types, empty for variable types, null for optional types.
func (dt DataType) SplitOptionalFill(fv FillValue) (present bool, inner FillValue, err error) {
	innerType, ok := dt.OptionalInner()
	if !ok {
		return false, FillValue{}, base.DataErrorf("data type %s is not optional", dt)
	}
	if err := dt.ValidateFillValue(fv); err != nil {
		return false, FillValue{}, err
	}
	if fv.Size() == 0 {
		return false, FillValue{}, base.DataErrorf("empty fill value for optional data type %s", dt)
	}
	if fv.b[len(fv.b)-1] == 0 {
		return false, innerType.placeholderFill(), nil
	}
	return true, FillValue{b: slices.Clone(fv.b[:len(fv.b)-1])}, nil
}

// placeholderFill is the fill value substituted beneath a null optional
// layer. Its content is never interpreted on decode.
func (dt DataType) placeholderFill() FillValue {
	if dt.IsOptional() {
		return NullFillValue()
	}
	if size, ok := dt.FixedSize(); ok {
		return FillValue{b: make([]byte, size)}
	}
	return FillValue{}
}
