// Copyright 2026 The Zarr-Go Authors. All rights reserved. Use of this source
// code is governed by a BSD-style license that can be found in the LICENSE
// file.

// Package base holds the error taxonomy shared by the codec packages.
//
// Errors fall into four categories:
//
//   - configuration errors: a codec cannot be constructed from the supplied
//     metadata (unknown name, missing field, value out of range). Fatal to
//     opening the array, surfaced at construction time.
//   - data errors: encode/decode failed because of the data itself (element
//     count mismatch, non-monotonic offsets, unsupported data type,
//     out-of-bounds indexer).
//   - corruption errors: a checksum mismatch or a structurally invalid
//     encoded chunk.
//   - storage errors: propagated opaquely from the store; this package never
//     wraps or reinterprets them.
package base

import "github.com/cockroachdb/errors"

// markConfig, markData and markCorruption are reference markers: an error
// belongs to a category iff it Is() the corresponding marker.
var (
	markConfig     = errors.New("zarr: configuration error")
	markData       = errors.New("zarr: data error")
	markCorruption = errors.New("zarr: corruption")
)

// ConfigErrorf formats a codec configuration error.
func ConfigErrorf(format string, args ...interface{}) error {
	return errors.Mark(errors.Newf("zarr: "+format, args...), markConfig)
}

// DataErrorf formats a data/layout error.
func DataErrorf(format string, args ...interface{}) error {
	return errors.Mark(errors.Newf("zarr: "+format, args...), markData)
}

// CorruptionErrorf formats an error indicating corrupt stored bytes.
func CorruptionErrorf(format string, args ...interface{}) error {
	return errors.Mark(errors.Newf("zarr: "+format, args...), markCorruption)
}

// MarkDataError tags an existing error as a data error, preserving its chain.
func MarkDataError(err error) error {
	if err == nil {
		return nil
	}
	return errors.Mark(err, markData)
}

// MarkCorruptionError tags an existing error as a corruption error.
func MarkCorruptionError(err error) error {
	if err == nil {
		return nil
	}
	return errors.Mark(err, markCorruption)
}

// IsConfigError returns true if the error is a codec configuration error.
func IsConfigError(err error) bool {
	return errors.Is(err, markConfig)
}

// IsDataError returns true if the error is a data/layout error.
func IsDataError(err error) bool {
	return errors.Is(err, markData)
}

// IsCorruptionError returns true if the error indicates corrupt stored bytes.
func IsCorruptionError(err error) bool {
	return errors.Is(err, markCorruption)
}
