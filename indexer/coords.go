// Copyright 2026 The Zarr-Go Authors. All rights reserved. Use of this source
// code is governed by a BSD-style license that can be found in the LICENSE
// file.

package indexer

import (
	"github.com/zarrgo/zarr/internal/base"
)

// Coords is an explicit list of element coordinates ("fancy" or v-indexing).
// Elements iterate in list order; duplicates are permitted for reads.
type Coords struct {
	// coords is a flattened [n*dims] coordinate list.
	coords []uint64
	dims   int
}

var _ Indexer = Coords{}

// NewCoords constructs a coordinate-list indexer. Every coordinate must have
// dims components.
func NewCoords(coords [][]uint64, dims int) (Coords, error) {
	flat := make([]uint64, 0, len(coords)*dims)
	for _, c := range coords {
		if len(c) != dims {
			return Coords{}, base.DataErrorf(
				"coordinate %v does not have dimensionality %d", c, dims)
		}
		flat = append(flat, c...)
	}
	return Coords{coords: flat, dims: dims}, nil
}

// Dims implements Indexer.
func (c Coords) Dims() int { return c.dims }

// NumElements implements Indexer.
func (c Coords) NumElements() uint64 {
	if c.dims == 0 {
		return 0
	}
	return uint64(len(c.coords) / c.dims)
}

// At returns the i-th coordinate as a view into the flattened list.
func (c Coords) At(i int) []uint64 {
	return c.coords[i*c.dims : (i+1)*c.dims]
}

// Validate implements Indexer.
func (c Coords) Validate(shape []uint64) error {
	if c.dims != len(shape) {
		return base.DataErrorf("indexer dimensionality %d does not match array shape %v",
			c.dims, shape)
	}
	n := int(c.NumElements())
	for i := range n {
		if _, err := RavelIndices(c.At(i), shape); err != nil {
			return err
		}
	}
	return nil
}

// AsSubset implements Indexer.
func (c Coords) AsSubset() (Subset, bool) { return Subset{}, false }

// ContiguousRuns implements Indexer. Consecutive coordinates that are
// adjacent in the row-major layout are merged into one run.
func (c Coords) ContiguousRuns(shape []uint64, fn func(start, count uint64) error) error {
	if err := c.Validate(shape); err != nil {
		return err
	}
	n := int(c.NumElements())
	if n == 0 {
		return nil
	}
	runStart, runLen := uint64(0), uint64(0)
	for i := range n {
		lin, err := RavelIndices(c.At(i), shape)
		if err != nil {
			return err
		}
		switch {
		case runLen == 0:
			runStart, runLen = lin, 1
		case lin == runStart+runLen:
			runLen++
		default:
			if err := fn(runStart, runLen); err != nil {
				return err
			}
			runStart, runLen = lin, 1
		}
	}
	return fn(runStart, runLen)
}
