// Copyright 2026 The Zarr-Go Authors. All rights reserved. Use of this source
// code is governed by a BSD-style license that can be found in the LICENSE
// file.

// Package storage defines the byte-addressable key-value interface the codec
// engine consumes, and an in-memory reference implementation.
//
// The codec engine never assumes atomicity across multiple SetPartial calls
// on the same key. Read-modify-write sequences (sharding partial encode, the
// default partial encoder) must be serialized per key by the caller or the
// store; no locking happens below this interface.
package storage

import (
	"context"

	"github.com/cockroachdb/errors"
)

// ByteRange addresses a contiguous region of a stored value.
type ByteRange struct {
	// Offset is the byte offset from the start of the value. Ignored when
	// Suffix is true.
	Offset uint64
	// Length is the length of the region. Zero-length ranges are valid.
	Length uint64
	// Suffix, if true, addresses the last Length bytes of the value.
	Suffix bool
}

// NewByteRange returns a range of length bytes starting at offset.
func NewByteRange(offset, length uint64) ByteRange {
	return ByteRange{Offset: offset, Length: length}
}

// NewSuffixByteRange returns a range addressing the last length bytes.
func NewSuffixByteRange(length uint64) ByteRange {
	return ByteRange{Length: length, Suffix: true}
}

// Resolve returns the [start, end) offsets of the range within a value of
// totalLen bytes, or an error if the range does not fit.
func (r ByteRange) Resolve(totalLen uint64) (start, end uint64, err error) {
	if r.Suffix {
		if r.Length > totalLen {
			return 0, 0, errors.Newf(
				"storage: suffix range of %d bytes exceeds value length %d", r.Length, totalLen)
		}
		return totalLen - r.Length, totalLen, nil
	}
	if r.Offset > totalLen || r.Length > totalLen-r.Offset {
		return 0, 0, errors.Newf(
			"storage: range [%d, %d) exceeds value length %d", r.Offset, r.Offset+r.Length, totalLen)
	}
	return r.Offset, r.Offset + r.Length, nil
}

// Store is the abstract store consumed by the codec engine. Implementations
// must be safe for concurrent use. A missing key is not an error: Get and
// GetPartial report existence through their bool return, and the engine
// interprets "not found" during decode as "chunk is entirely fill value".
type Store interface {
	// Get returns the full value for key, or found=false if the key does not
	// exist.
	Get(ctx context.Context, key string) (value []byte, found bool, err error)

	// GetPartial returns one byte slice per requested range, or found=false
	// if the key does not exist. A range that does not fit the value is an
	// error.
	GetPartial(ctx context.Context, key string, ranges []ByteRange) (values [][]byte, found bool, err error)

	// Set stores value under key, replacing any existing value.
	Set(ctx context.Context, key string, value []byte) error

	// SetPartial overwrites len(value) bytes at offset, zero-extending the
	// stored value if it is currently shorter than offset+len(value).
	SetPartial(ctx context.Context, key string, offset uint64, value []byte) error

	// Erase removes key. Erasing a missing key is not an error.
	Erase(ctx context.Context, key string) error

	// List returns the keys with the given prefix, sorted.
	List(ctx context.Context, prefix string) ([]string, error)
}
