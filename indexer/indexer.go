// Copyright 2026 The Zarr-Go Authors. All rights reserved. Use of this source
// code is governed by a BSD-style license that can be found in the LICENSE
// file.

// Package indexer describes read/write targets within an N-dimensional
// array: either an axis-aligned rectangular subset or an explicit list of
// element coordinates. Partial decoders and encoders consume indexers
// uniformly; the contiguous-run iteration is what lets byte-level decoders
// coalesce store reads.
package indexer

import (
	"github.com/zarrgo/zarr/internal/base"
)

// An Indexer describes which elements of an array a partial operation
// addresses. Implementations are immutable and safe for concurrent use.
type Indexer interface {
	// Dims returns the dimensionality of the indexer.
	Dims() int

	// NumElements returns the number of addressed elements.
	NumElements() uint64

	// Validate returns a data error if the indexer does not fit within an
	// array of the given shape.
	Validate(shape []uint64) error

	// ContiguousRuns calls fn once per maximal run of elements whose
	// row-major linear indices within shape are consecutive, in indexer
	// order. start is the linear index of the first element of the run.
	ContiguousRuns(shape []uint64, fn func(start, count uint64) error) error

	// AsSubset returns the indexer as an axis-aligned subset, if it is one.
	AsSubset() (Subset, bool)
}

// NumElements returns the product of the dimension extents.
func NumElements(shape []uint64) uint64 {
	n := uint64(1)
	for _, d := range shape {
		n *= d
	}
	return n
}

// RavelIndices converts an N-dimensional coordinate to a row-major linear
// index within shape.
func RavelIndices(coord, shape []uint64) (uint64, error) {
	if len(coord) != len(shape) {
		return 0, base.DataErrorf("coordinate dimensionality %d does not match shape %v",
			len(coord), shape)
	}
	idx := uint64(0)
	for d := range shape {
		if coord[d] >= shape[d] {
			return 0, base.DataErrorf("coordinate %v out of bounds of shape %v", coord, shape)
		}
		idx = idx*shape[d] + coord[d]
	}
	return idx, nil
}

// UnravelIndex converts a row-major linear index to an N-dimensional
// coordinate within shape.
func UnravelIndex(idx uint64, shape []uint64) []uint64 {
	coord := make([]uint64, len(shape))
	for d := len(shape) - 1; d >= 0; d-- {
		coord[d] = idx % shape[d]
		idx /= shape[d]
	}
	return coord
}
