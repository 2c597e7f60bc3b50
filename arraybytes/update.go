// Copyright 2026 The Zarr-Go Authors. All rights reserved. Use of this source
// code is governed by a BSD-style license that can be found in the LICENSE
// file.

package arraybytes

import (
	"github.com/zarrgo/zarr/dtype"
	"github.com/zarrgo/zarr/indexer"
	"github.com/zarrgo/zarr/internal/base"
)

// Update overlays patch onto a decoded whole-chunk payload at the elements
// the indexer addresses. Patch elements are consumed in indexer order. This
// is the one mutation point in the package: the chunk's buffer is promoted
// to owned and written in place where the layout permits (fixed-size
// payloads); variable-length payloads are rebuilt.
func Update(
	chunk ArrayBytes, chunkShape []uint64, idx indexer.Indexer, patch ArrayBytes,
	dt dtype.DataType,
) (ArrayBytes, error) {
	if err := chunk.Validate(indexer.NumElements(chunkShape), dt); err != nil {
		return ArrayBytes{}, err
	}
	if err := patch.Validate(idx.NumElements(), dt); err != nil {
		return ArrayBytes{}, err
	}
	switch chunk.kind {
	case KindFixed:
		size := uint64(dt.MustFixedSize())
		patchBuf, err := patch.Fixed()
		if err != nil {
			return ArrayBytes{}, err
		}
		dst := chunk.buf.Mutable()
		src := patchBuf.Bytes()
		var consumed uint64
		err = idx.ContiguousRuns(chunkShape, func(start, count uint64) error {
			copy(dst[start*size:(start+count)*size], src[consumed*size:(consumed+count)*size])
			consumed += count
			return nil
		})
		if err != nil {
			return ArrayBytes{}, err
		}
		return NewFixed(chunk.buf), nil

	case KindVariable:
		patchBuf, patchOffsets, err := patch.Variable()
		if err != nil {
			return ArrayBytes{}, err
		}
		n := int(chunk.offsets.NumElements())
		// patchElem[i] is the patch element replacing chunk element i, or -1.
		patchElem := make([]int64, n)
		for i := range patchElem {
			patchElem[i] = -1
		}
		consumed := int64(0)
		err = idx.ContiguousRuns(chunkShape, func(start, count uint64) error {
			for i := start; i < start+count; i++ {
				patchElem[i] = consumed
				consumed++
			}
			return nil
		})
		if err != nil {
			return ArrayBytes{}, err
		}
		newOffsets := make([]uint64, n+1)
		for i := range n {
			var length uint64
			if j := patchElem[i]; j >= 0 {
				length = patchOffsets.At(int(j)+1) - patchOffsets.At(int(j))
			} else {
				length = chunk.offsets.At(i+1) - chunk.offsets.At(i)
			}
			newOffsets[i+1] = newOffsets[i] + length
		}
		out := make([]byte, 0, newOffsets[n])
		for i := range n {
			if j := patchElem[i]; j >= 0 {
				out = append(out, patchBuf.Bytes()[patchOffsets.At(int(j)):patchOffsets.At(int(j)+1)]...)
			} else {
				out = append(out, chunk.buf.Bytes()[chunk.offsets.At(i):chunk.offsets.At(i+1)]...)
			}
		}
		return newVariableUnchecked(Owned(out), newOffsetsUnchecked(newOffsets)), nil

	case KindOptional:
		innerType, _ := dt.OptionalInner()
		patchInner, patchMask, err := patch.Optional()
		if err != nil {
			return ArrayBytes{}, err
		}
		inner, err := Update(*chunk.inner, chunkShape, idx, patchInner, innerType)
		if err != nil {
			return ArrayBytes{}, err
		}
		mask := append([]byte(nil), chunk.mask...)
		var consumed uint64
		err = idx.ContiguousRuns(chunkShape, func(start, count uint64) error {
			copy(mask[start:start+count], patchMask[consumed:consumed+count])
			consumed += count
			return nil
		})
		if err != nil {
			return ArrayBytes{}, err
		}
		return NewOptional(inner, mask)
	}
	return ArrayBytes{}, base.DataErrorf("invalid array bytes kind %d", chunk.kind)
}
