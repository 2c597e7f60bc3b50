// Copyright 2026 The Zarr-Go Authors. All rights reserved. Use of this source
// code is governed by a BSD-style license that can be found in the LICENSE
// file.

package arraybytes

import (
	"github.com/zarrgo/zarr/dtype"
	"github.com/zarrgo/zarr/indexer"
	"github.com/zarrgo/zarr/internal/base"
)

// ExtractSubset produces a new ArrayBytes holding just the elements the
// indexer addresses, in indexer order, from a decoded whole-chunk payload of
// the given shape. The result always owns its buffers.
func ExtractSubset(
	ab ArrayBytes, shape []uint64, idx indexer.Indexer, dt dtype.DataType,
) (ArrayBytes, error) {
	if err := ab.Validate(indexer.NumElements(shape), dt); err != nil {
		return ArrayBytes{}, err
	}
	switch ab.kind {
	case KindFixed:
		size := uint64(dt.MustFixedSize())
		out := make([]byte, 0, idx.NumElements()*size)
		src := ab.buf.Bytes()
		err := idx.ContiguousRuns(shape, func(start, count uint64) error {
			out = append(out, src[start*size:(start+count)*size]...)
			return nil
		})
		if err != nil {
			return ArrayBytes{}, err
		}
		return NewFixed(Owned(out)), nil

	case KindVariable:
		src := ab.buf.Bytes()
		outOffsets := make([]uint64, 1, idx.NumElements()+1)
		var out []byte
		err := idx.ContiguousRuns(shape, func(start, count uint64) error {
			lo, hi := ab.offsets.At(int(start)), ab.offsets.At(int(start+count))
			out = append(out, src[lo:hi]...)
			for i := start; i < start+count; i++ {
				length := ab.offsets.At(int(i)+1) - ab.offsets.At(int(i))
				outOffsets = append(outOffsets, outOffsets[len(outOffsets)-1]+length)
			}
			return nil
		})
		if err != nil {
			return ArrayBytes{}, err
		}
		// The offsets were built as a prefix sum over non-negative lengths.
		return newVariableUnchecked(Owned(out), newOffsetsUnchecked(outOffsets)), nil

	case KindOptional:
		innerType, ok := dt.OptionalInner()
		if !ok {
			return ArrayBytes{}, base.DataErrorf("optional payload for data type %s", dt)
		}
		inner, err := ExtractSubset(*ab.inner, shape, idx, innerType)
		if err != nil {
			return ArrayBytes{}, err
		}
		mask := make([]byte, 0, idx.NumElements())
		err = idx.ContiguousRuns(shape, func(start, count uint64) error {
			mask = append(mask, ab.mask[start:start+count]...)
			return nil
		})
		if err != nil {
			return ArrayBytes{}, err
		}
		return NewOptional(inner, mask)
	}
	return ArrayBytes{}, base.DataErrorf("invalid array bytes kind %d", ab.kind)
}
