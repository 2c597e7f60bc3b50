// Copyright 2026 The Zarr-Go Authors. All rights reserved. Use of this source
// code is governed by a BSD-style license that can be found in the LICENSE
// file.

package arraybytes

import (
	"github.com/zarrgo/zarr/indexer"
	"github.com/zarrgo/zarr/internal/base"
	"github.com/zarrgo/zarr/internal/invariants"
)

// Region pairs one chunk's decoded payload with its placement subset within
// a larger target array.
type Region struct {
	Bytes  ArrayBytes
	Subset indexer.Subset
}

// MergeVlen combines per-chunk variable-length payloads covering disjoint,
// exhaustive regions of targetShape into one payload spanning the whole
// target. The output is byte-identical regardless of the order regions are
// supplied in.
func MergeVlen(regions []Region, targetShape []uint64) (ArrayBytes, error) {
	numElements := indexer.NumElements(targetShape)

	// srcRegion/srcElem locate the source of each target element.
	srcRegion := make([]int32, numElements)
	for i := range srcRegion {
		srcRegion[i] = -1
	}
	srcElem := make([]uint64, numElements)
	for r, region := range regions {
		if region.Bytes.kind != KindVariable {
			return ArrayBytes{}, base.DataErrorf(
				"merge requires variable-length payloads, region %d is kind %d", r, region.Bytes.kind)
		}
		if region.Bytes.offsets.NumElements() != region.Subset.NumElements() {
			return ArrayBytes{}, base.DataErrorf(
				"region %d holds %d elements but its subset addresses %d",
				r, region.Bytes.offsets.NumElements(), region.Subset.NumElements())
		}
		var consumed uint64
		err := region.Subset.ContiguousRuns(targetShape, func(start, count uint64) error {
			for i := start; i < start+count; i++ {
				invariants.Assertf(srcRegion[i] == -1,
					"target element %d covered by regions %d and %d", i, srcRegion[i], r)
				srcRegion[i] = int32(r)
				srcElem[i] = consumed
				consumed++
			}
			return nil
		})
		if err != nil {
			return ArrayBytes{}, err
		}
	}

	offsets := make([]uint64, numElements+1)
	for i := uint64(0); i < numElements; i++ {
		r := srcRegion[i]
		if r < 0 {
			return ArrayBytes{}, base.DataErrorf("target element %d not covered by any region", i)
		}
		src := regions[r].Bytes.offsets
		j := int(srcElem[i])
		offsets[i+1] = offsets[i] + (src.At(j+1) - src.At(j))
	}
	out := make([]byte, 0, offsets[numElements])
	for i := uint64(0); i < numElements; i++ {
		region := regions[srcRegion[i]]
		j := int(srcElem[i])
		out = append(out, region.Bytes.buf.Bytes()[region.Bytes.offsets.At(j):region.Bytes.offsets.At(j+1)]...)
	}
	return newVariableUnchecked(Owned(out), newOffsetsUnchecked(offsets)), nil
}

// MergeVlenOptional is MergeVlen for optional-wrapped payloads: presence
// masks merge by position, the inner payloads merge recursively (optional
// layers nest; the innermost layer must be variable-length).
func MergeVlenOptional(regions []Region, targetShape []uint64) (ArrayBytes, error) {
	numElements := indexer.NumElements(targetShape)
	mask := make([]byte, numElements)
	innerRegions := make([]Region, len(regions))
	for r, region := range regions {
		if region.Bytes.kind != KindOptional {
			return ArrayBytes{}, base.DataErrorf(
				"merge requires optional payloads, region %d is kind %d", r, region.Bytes.kind)
		}
		var consumed uint64
		err := region.Subset.ContiguousRuns(targetShape, func(start, count uint64) error {
			copy(mask[start:start+count], region.Bytes.mask[consumed:consumed+count])
			consumed += count
			return nil
		})
		if err != nil {
			return ArrayBytes{}, err
		}
		innerRegions[r] = Region{Bytes: *region.Bytes.inner, Subset: region.Subset}
	}
	var inner ArrayBytes
	var err error
	if len(regions) > 0 && regions[0].Bytes.inner.kind == KindOptional {
		inner, err = MergeVlenOptional(innerRegions, targetShape)
	} else {
		inner, err = MergeVlen(innerRegions, targetShape)
	}
	if err != nil {
		return ArrayBytes{}, err
	}
	return NewOptional(inner, mask)
}
