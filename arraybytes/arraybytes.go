// Copyright 2026 The Zarr-Go Authors. All rights reserved. Use of this source
// code is governed by a BSD-style license that can be found in the LICENSE
// file.

// Package arraybytes models the decoded in-memory payload of a chunk or
// array region, in one of three variants:
//
//   - Fixed: a flat buffer of num_elements × element_size bytes.
//   - Variable: a concatenated payload plus an offsets table.
//   - Optional: an inner payload (Fixed or Variable, possibly itself
//     Optional) plus a parallel presence mask, one byte per element.
//
// The package also provides the subsetting, overlay, and merge algorithms
// that back partial reads and writes. ArrayBytes values are treated as
// immutable everywhere except Update, the single overlay point used by
// partial encoders.
package arraybytes

import (
	"bytes"

	"github.com/zarrgo/zarr/dtype"
	"github.com/zarrgo/zarr/internal/base"
)

// Kind discriminates the ArrayBytes variants.
type Kind uint8

const (
	// KindFixed is a flat fixed-size-element buffer.
	KindFixed Kind = iota
	// KindVariable is a payload plus offsets table.
	KindVariable
	// KindOptional wraps an inner ArrayBytes with a presence mask.
	KindOptional
)

// ArrayBytes is the decoded payload of one chunk or array region.
type ArrayBytes struct {
	kind    Kind
	buf     Buf     // Fixed payload, or Variable concatenated payload
	offsets Offsets // Variable only
	mask    []byte  // Optional only: 1 byte per element, 0 or 1
	inner   *ArrayBytes
}

// NewFixed wraps a flat buffer of fixed-size elements.
func NewFixed(buf Buf) ArrayBytes {
	return ArrayBytes{kind: KindFixed, buf: buf}
}

// NewVariable wraps a concatenated payload and its offsets table. The final
// offset must equal the payload length.
func NewVariable(buf Buf, offsets Offsets) (ArrayBytes, error) {
	if offsets.Len() == 0 {
		return ArrayBytes{}, base.DataErrorf("variable-length payload requires an offsets table")
	}
	if offsets.Last() != uint64(buf.Len()) {
		return ArrayBytes{}, base.DataErrorf(
			"final offset %d does not match payload length %d", offsets.Last(), buf.Len())
	}
	return ArrayBytes{kind: KindVariable, buf: buf, offsets: offsets}, nil
}

// newVariableUnchecked is NewVariable without validation, for payloads whose
// invariant was established by the immediately preceding construction.
func newVariableUnchecked(buf Buf, offsets Offsets) ArrayBytes {
	return ArrayBytes{kind: KindVariable, buf: buf, offsets: offsets}
}

// NewOptional wraps inner with a presence mask. Mask bytes must be 0 or 1,
// one per element; slots whose mask byte is 0 carry placeholder content in
// inner that must never be interpreted.
func NewOptional(inner ArrayBytes, mask []byte) (ArrayBytes, error) {
	for i, m := range mask {
		if m > 1 {
			return ArrayBytes{}, base.DataErrorf("presence mask byte %d has value %d", i, m)
		}
	}
	if inner.kind == KindVariable && inner.offsets.NumElements() != uint64(len(mask)) {
		return ArrayBytes{}, base.DataErrorf(
			"presence mask length %d does not match inner element count %d",
			len(mask), inner.offsets.NumElements())
	}
	in := inner
	return ArrayBytes{kind: KindOptional, mask: mask, inner: &in}, nil
}

// Kind returns the variant.
func (ab ArrayBytes) Kind() Kind { return ab.kind }

// Fixed returns the flat buffer of a Fixed payload.
func (ab ArrayBytes) Fixed() (Buf, error) {
	if ab.kind != KindFixed {
		return Buf{}, base.DataErrorf("expected fixed-length array bytes, got %v", ab.kind)
	}
	return ab.buf, nil
}

// Variable returns the payload and offsets of a Variable payload.
func (ab ArrayBytes) Variable() (Buf, Offsets, error) {
	if ab.kind != KindVariable {
		return Buf{}, Offsets{}, base.DataErrorf(
			"expected variable-length array bytes, got %v", ab.kind)
	}
	return ab.buf, ab.offsets, nil
}

// Optional returns the inner payload and presence mask of an Optional
// payload.
func (ab ArrayBytes) Optional() (ArrayBytes, []byte, error) {
	if ab.kind != KindOptional {
		return ArrayBytes{}, nil, base.DataErrorf("expected optional array bytes, got %v", ab.kind)
	}
	return *ab.inner, ab.mask, nil
}

// Validate checks that the payload holds exactly numElements elements of
// data type dt. Mismatches are data errors, never silent truncation.
func (ab ArrayBytes) Validate(numElements uint64, dt dtype.DataType) error {
	switch ab.kind {
	case KindFixed:
		size, ok := dt.FixedSize()
		if !ok {
			return base.DataErrorf("fixed-length payload for variable-size data type %s", dt)
		}
		if uint64(ab.buf.Len()) != numElements*uint64(size) {
			return base.DataErrorf(
				"fixed-length payload of %d bytes does not hold %d elements of %s",
				ab.buf.Len(), numElements, dt)
		}
	case KindVariable:
		if dt.IsOptional() || !dt.IsVariable() {
			return base.DataErrorf("variable-length payload for data type %s", dt)
		}
		if ab.offsets.NumElements() != numElements {
			return base.DataErrorf("offsets table describes %d elements, want %d",
				ab.offsets.NumElements(), numElements)
		}
	case KindOptional:
		inner, ok := dt.OptionalInner()
		if !ok {
			return base.DataErrorf("optional payload for non-optional data type %s", dt)
		}
		if uint64(len(ab.mask)) != numElements {
			return base.DataErrorf("presence mask holds %d elements, want %d",
				len(ab.mask), numElements)
		}
		return ab.inner.Validate(numElements, inner)
	}
	return nil
}

// IntoOwned deep-copies any borrowed buffers so the payload outlives its
// source.
func (ab ArrayBytes) IntoOwned() ArrayBytes {
	out := ab
	out.buf = ab.buf.IntoOwned()
	if ab.inner != nil {
		in := ab.inner.IntoOwned()
		out.inner = &in
	}
	return out
}

// NewFill materializes numElements copies of the fill value as decoded
// payload for data type dt.
func NewFill(dt dtype.DataType, numElements uint64, fv dtype.FillValue) (ArrayBytes, error) {
	if err := dt.ValidateFillValue(fv); err != nil {
		return ArrayBytes{}, err
	}
	if inner, ok := dt.OptionalInner(); ok {
		present, innerFill, err := dt.SplitOptionalFill(fv)
		if err != nil {
			return ArrayBytes{}, err
		}
		innerBytes, err := NewFill(inner, numElements, innerFill)
		if err != nil {
			return ArrayBytes{}, err
		}
		mask := make([]byte, numElements)
		if present {
			for i := range mask {
				mask[i] = 1
			}
		}
		return NewOptional(innerBytes, mask)
	}
	if dt.IsVariable() {
		elem := fv.Bytes()
		payload := make([]byte, 0, uint64(len(elem))*numElements)
		offs := make([]uint64, numElements+1)
		for i := uint64(0); i < numElements; i++ {
			payload = append(payload, elem...)
			offs[i+1] = offs[i] + uint64(len(elem))
		}
		return newVariableUnchecked(Owned(payload), newOffsetsUnchecked(offs)), nil
	}
	size := dt.MustFixedSize()
	buf := make([]byte, numElements*uint64(size))
	allZero := true
	for _, b := range fv.Bytes() {
		if b != 0 {
			allZero = false
			break
		}
	}
	if !allZero {
		for i := 0; i+size <= len(buf); i += size {
			copy(buf[i:i+size], fv.Bytes())
		}
	}
	return NewFixed(Owned(buf)), nil
}

// IsFill reports whether every element equals the fill value. Used by
// partial encoders to elide all-fill chunks.
func (ab ArrayBytes) IsFill(dt dtype.DataType, fv dtype.FillValue) bool {
	if dt.ValidateFillValue(fv) != nil {
		return false
	}
	switch ab.kind {
	case KindFixed:
		return fv.EqualsAll(ab.buf.Bytes())
	case KindVariable:
		elem := fv.Bytes()
		n := int(ab.offsets.NumElements())
		for i := range n {
			lo, hi := ab.offsets.At(i), ab.offsets.At(i+1)
			if hi-lo != uint64(len(elem)) {
				return false
			}
			if !bytes.Equal(ab.buf.Bytes()[lo:hi], elem) {
				return false
			}
		}
		return true
	case KindOptional:
		present, innerFill, err := dt.SplitOptionalFill(fv)
		if err != nil {
			return false
		}
		want := byte(0)
		if present {
			want = 1
		}
		for _, m := range ab.mask {
			if m != want {
				return false
			}
		}
		if !present {
			// Placeholder content beneath a null fill is not interpreted.
			return true
		}
		inner, _ := dt.OptionalInner()
		return ab.inner.IsFill(inner, innerFill)
	}
	return false
}
