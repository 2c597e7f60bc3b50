// Copyright 2026 The Zarr-Go Authors. All rights reserved. Use of this source
// code is governed by a BSD-style license that can be found in the LICENSE
// file.

package indexer

import (
	"fmt"
	"slices"

	"github.com/zarrgo/zarr/internal/base"
)

// Subset is an axis-aligned rectangular region: a start coordinate and an
// extent per dimension. Elements iterate in row-major (C-contiguous) order.
type Subset struct {
	start []uint64
	shape []uint64
}

var _ Indexer = Subset{}

// NewSubset constructs a subset from a start coordinate and a shape. The two
// must have matching dimensionality.
func NewSubset(start, shape []uint64) (Subset, error) {
	if len(start) != len(shape) {
		return Subset{}, base.DataErrorf(
			"subset start %v and shape %v have mismatched dimensionality", start, shape)
	}
	return Subset{start: slices.Clone(start), shape: slices.Clone(shape)}, nil
}

// WholeArray returns the subset covering an entire array of the given shape.
func WholeArray(shape []uint64) Subset {
	return Subset{start: make([]uint64, len(shape)), shape: slices.Clone(shape)}
}

// Start returns the start coordinate.
func (s Subset) Start() []uint64 { return s.start }

// Shape returns the extent per dimension.
func (s Subset) Shape() []uint64 { return s.shape }

// EndExc returns the exclusive end coordinate.
func (s Subset) EndExc() []uint64 {
	end := make([]uint64, len(s.start))
	for d := range s.start {
		end[d] = s.start[d] + s.shape[d]
	}
	return end
}

// Dims implements Indexer.
func (s Subset) Dims() int { return len(s.shape) }

// NumElements implements Indexer.
func (s Subset) NumElements() uint64 { return NumElements(s.shape) }

// IsEmpty reports whether any dimension has zero extent.
func (s Subset) IsEmpty() bool { return slices.Contains(s.shape, 0) }

// Validate implements Indexer.
func (s Subset) Validate(shape []uint64) error {
	if len(s.shape) != len(shape) {
		return base.DataErrorf("subset dimensionality %d does not match array shape %v",
			len(s.shape), shape)
	}
	for d := range shape {
		if s.start[d]+s.shape[d] > shape[d] {
			return base.DataErrorf("subset %v out of bounds of array shape %v", s, shape)
		}
	}
	return nil
}

// AsSubset implements Indexer.
func (s Subset) AsSubset() (Subset, bool) { return s, true }

func (s Subset) String() string {
	return fmt.Sprintf("start %v shape %v", s.start, s.shape)
}

// Overlap returns the intersection of two subsets of the same array.
func (s Subset) Overlap(other Subset) (Subset, error) {
	if len(s.shape) != len(other.shape) {
		return Subset{}, base.DataErrorf(
			"cannot intersect subsets of dimensionality %d and %d", len(s.shape), len(other.shape))
	}
	start := make([]uint64, len(s.shape))
	shape := make([]uint64, len(s.shape))
	for d := range s.shape {
		lo := max(s.start[d], other.start[d])
		hi := min(s.start[d]+s.shape[d], other.start[d]+other.shape[d])
		if hi < lo {
			hi = lo
		}
		start[d] = lo
		shape[d] = hi - lo
	}
	return Subset{start: start, shape: shape}, nil
}

// RelativeTo rebases the subset onto an origin, subtracting it from the
// start coordinate. The subset must not extend below the origin.
func (s Subset) RelativeTo(origin []uint64) (Subset, error) {
	if len(origin) != len(s.start) {
		return Subset{}, base.DataErrorf(
			"origin %v does not match subset dimensionality %d", origin, len(s.start))
	}
	start := make([]uint64, len(s.start))
	for d := range s.start {
		if s.start[d] < origin[d] {
			return Subset{}, base.DataErrorf("subset %v starts below origin %v", s, origin)
		}
		start[d] = s.start[d] - origin[d]
	}
	return Subset{start: start, shape: slices.Clone(s.shape)}, nil
}

// ContiguousRuns implements Indexer. Runs are maximal: trailing dimensions
// fully covered by the subset are folded into a single run.
func (s Subset) ContiguousRuns(shape []uint64, fn func(start, count uint64) error) error {
	if err := s.Validate(shape); err != nil {
		return err
	}
	if s.IsEmpty() {
		return nil
	}
	ndim := len(shape)
	if ndim == 0 {
		return fn(0, 1)
	}

	// k is the outermost dimension that participates in a single run: every
	// dimension after k is fully covered, so consecutive values of dimension
	// k are contiguous in the row-major layout.
	k := ndim - 1
	for k > 0 && s.start[k] == 0 && s.shape[k] == shape[k] {
		k--
	}
	runLen := s.shape[k]
	for d := k + 1; d < ndim; d++ {
		runLen *= shape[d]
	}

	// Iterate the outer coordinates (dimensions before k) in row-major
	// order; each yields one run of runLen elements.
	outer := make([]uint64, k)
	for {
		lin := uint64(0)
		for d := range k {
			lin = lin*shape[d] + s.start[d] + outer[d]
		}
		lin = lin*shape[k] + s.start[k]
		for d := k + 1; d < ndim; d++ {
			lin *= shape[d]
		}
		if err := fn(lin, runLen); err != nil {
			return err
		}
		// Advance the outer coordinate odometer.
		d := k - 1
		for ; d >= 0; d-- {
			outer[d]++
			if outer[d] < s.shape[d] {
				break
			}
			outer[d] = 0
		}
		if d < 0 {
			return nil
		}
	}
}
