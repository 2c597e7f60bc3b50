// Copyright 2026 The Zarr-Go Authors. All rights reserved. Use of this source
// code is governed by a BSD-style license that can be found in the LICENSE
// file.

// Package dtype models Zarr array data types and fill values.
//
// A data type is either a fixed-size scalar (bool, the integer and float
// families, complex, raw bits), a variable-size type (string, bytes), or an
// optional wrapper around another data type. Optional wrappers nest: the
// element type Option<Option<T>> is Optional(Optional(T)).
package dtype

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/zarrgo/zarr/internal/base"
)

// Kind enumerates the built-in data type families.
type Kind uint8

const (
	KindBool Kind = iota
	KindInt8
	KindInt16
	KindInt32
	KindInt64
	KindUint8
	KindUint16
	KindUint32
	KindUint64
	KindFloat32
	KindFloat64
	KindComplex64
	KindComplex128
	KindRawBits
	KindString
	KindBytes
	KindOptional
)

// DataType describes the element type of an array. The zero value is not a
// valid data type; use the constructors or ParseDataType.
type DataType struct {
	kind Kind
	// rawSize is the element size in bytes for KindRawBits.
	rawSize int
	// inner is the wrapped type for KindOptional.
	inner *DataType
}

// Constructors for the scalar types.
var (
	Bool       = DataType{kind: KindBool}
	Int8       = DataType{kind: KindInt8}
	Int16      = DataType{kind: KindInt16}
	Int32      = DataType{kind: KindInt32}
	Int64      = DataType{kind: KindInt64}
	Uint8      = DataType{kind: KindUint8}
	Uint16     = DataType{kind: KindUint16}
	Uint32     = DataType{kind: KindUint32}
	Uint64     = DataType{kind: KindUint64}
	Float32    = DataType{kind: KindFloat32}
	Float64    = DataType{kind: KindFloat64}
	Complex64  = DataType{kind: KindComplex64}
	Complex128 = DataType{kind: KindComplex128}
	String     = DataType{kind: KindString}
	Bytes      = DataType{kind: KindBytes}
)

// RawBits returns the fixed-size opaque type of size bytes ("r<8*size>").
func RawBits(size int) DataType {
	return DataType{kind: KindRawBits, rawSize: size}
}

// Optional wraps inner in an optional (nullable) layer.
func Optional(inner DataType) DataType {
	in := inner
	return DataType{kind: KindOptional, inner: &in}
}

var namedTypes = map[string]DataType{
	"bool": Bool, "int8": Int8, "int16": Int16, "int32": Int32, "int64": Int64,
	"uint8": Uint8, "uint16": Uint16, "uint32": Uint32, "uint64": Uint64,
	"float32": Float32, "float64": Float64,
	"complex64": Complex64, "complex128": Complex128,
	"string": String, "bytes": Bytes,
}

// ParseDataType resolves a zarr v3 data type name. Optional layers are
// expressed with a "?" suffix, one per nesting level ("float32?",
// "string??").
func ParseDataType(name string) (DataType, error) {
	depth := 0
	for strings.HasSuffix(name, "?") {
		name = name[:len(name)-1]
		depth++
	}
	dt, ok := namedTypes[name]
	if !ok {
		if bits, found := strings.CutPrefix(name, "r"); found {
			n, err := strconv.Atoi(bits)
			if err == nil && n > 0 && n%8 == 0 {
				dt, ok = RawBits(n/8), true
			}
		}
	}
	if !ok {
		return DataType{}, base.ConfigErrorf("unknown data type %q", name)
	}
	for range depth {
		dt = Optional(dt)
	}
	return dt, nil
}

// Name returns the zarr v3 data type name.
func (dt DataType) Name() string {
	switch dt.kind {
	case KindBool:
		return "bool"
	case KindInt8:
		return "int8"
	case KindInt16:
		return "int16"
	case KindInt32:
		return "int32"
	case KindInt64:
		return "int64"
	case KindUint8:
		return "uint8"
	case KindUint16:
		return "uint16"
	case KindUint32:
		return "uint32"
	case KindUint64:
		return "uint64"
	case KindFloat32:
		return "float32"
	case KindFloat64:
		return "float64"
	case KindComplex64:
		return "complex64"
	case KindComplex128:
		return "complex128"
	case KindRawBits:
		return fmt.Sprintf("r%d", dt.rawSize*8)
	case KindString:
		return "string"
	case KindBytes:
		return "bytes"
	case KindOptional:
		return dt.inner.Name() + "?"
	}
	return "invalid"
}

func (dt DataType) String() string { return dt.Name() }

// Kind returns the type family.
func (dt DataType) Kind() Kind { return dt.kind }

// FixedSize returns the element size in bytes and true for fixed-size types.
// For optional types it is the inner type's fixed size: the optional layer
// itself has no in-memory footprint beyond the presence mask.
func (dt DataType) FixedSize() (int, bool) {
	switch dt.kind {
	case KindBool, KindInt8, KindUint8:
		return 1, true
	case KindInt16, KindUint16:
		return 2, true
	case KindInt32, KindUint32, KindFloat32:
		return 4, true
	case KindInt64, KindUint64, KindFloat64, KindComplex64:
		return 8, true
	case KindComplex128:
		return 16, true
	case KindRawBits:
		return dt.rawSize, true
	case KindOptional:
		return dt.inner.FixedSize()
	}
	return 0, false
}

// MustFixedSize is FixedSize for types known to be fixed; it panics on
// variable-size types.
func (dt DataType) MustFixedSize() int {
	size, ok := dt.FixedSize()
	if !ok {
		panic("dtype: variable-size data type has no fixed size")
	}
	return size
}

// SizeBits returns the significant bit width of one element, used by
// bit-packing codecs. Bool is a single bit; every other fixed type uses its
// full byte width.
func (dt DataType) SizeBits() (int, bool) {
	if dt.kind == KindBool {
		return 1, true
	}
	if size, ok := dt.FixedSize(); ok {
		return size * 8, true
	}
	return 0, false
}

// IsVariable reports whether elements have variable length (string, bytes,
// or an optional wrapper around one).
func (dt DataType) IsVariable() bool {
	switch dt.kind {
	case KindString, KindBytes:
		return true
	case KindOptional:
		return dt.inner.IsVariable()
	}
	return false
}

// IsOptional reports whether the outermost layer is optional.
func (dt DataType) IsOptional() bool { return dt.kind == KindOptional }

// OptionalInner returns the type wrapped by the outermost optional layer.
func (dt DataType) OptionalInner() (DataType, bool) {
	if dt.kind != KindOptional {
		return DataType{}, false
	}
	return *dt.inner, true
}

// OptionalDepth returns the number of optional nesting levels (0 for
// non-optional types).
func (dt DataType) OptionalDepth() int {
	depth := 0
	for cur := dt; cur.kind == KindOptional; cur = *cur.inner {
		depth++
	}
	return depth
}

// Innermost returns the type below all optional layers.
func (dt DataType) Innermost() DataType {
	cur := dt
	for cur.kind == KindOptional {
		cur = *cur.inner
	}
	return cur
}

// endianLaneSize is the width of the independently byte-swapped lanes of one
// element: complex values swap their real and imaginary parts separately.
func (dt DataType) endianLaneSize() int {
	switch dt.Innermost().kind {
	case KindComplex64:
		return 4
	case KindComplex128:
		return 8
	default:
		return dt.MustFixedSize()
	}
}

// ReverseEndianness swaps the byte order of every element lane in buf, in
// place. It is a no-op for single-byte lanes. The buffer length must be a
// multiple of the lane size.
func (dt DataType) ReverseEndianness(buf []byte) {
	lane := dt.endianLaneSize()
	if lane <= 1 {
		return
	}
	for i := 0; i+lane <= len(buf); i += lane {
		for a, b := i, i+lane-1; a < b; a, b = a+1, b-1 {
			buf[a], buf[b] = buf[b], buf[a]
		}
	}
}

// Equal reports structural equality.
func (dt DataType) Equal(other DataType) bool {
	if dt.kind != other.kind || dt.rawSize != other.rawSize {
		return false
	}
	if dt.kind == KindOptional {
		return dt.inner.Equal(*other.inner)
	}
	return true
}
