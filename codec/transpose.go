// Copyright 2026 The Zarr-Go Authors. All rights reserved. Use of this source
// code is governed by a BSD-style license that can be found in the LICENSE
// file.

package codec

import (
	"context"
	"encoding/json"

	"github.com/zarrgo/zarr/arraybytes"
	"github.com/zarrgo/zarr/dtype"
	"github.com/zarrgo/zarr/indexer"
	"github.com/zarrgo/zarr/internal/base"
)

// TransposeCodec is the "transpose" array-to-array codec: dimension i of
// the encoded chunk is dimension order[i] of the decoded chunk. Element
// bytes are reordered accordingly; dtype and fill value are unchanged.
type TransposeCodec struct {
	order []int
}

var _ ArrayToArrayCodec = (*TransposeCodec)(nil)

type transposeConfig struct {
	Order []int `json:"order"`
}

func init() {
	registerBuiltin("transpose", func(config json.RawMessage) (Codec, error) {
		var cfg transposeConfig
		if err := decodeConfig("transpose", config, &cfg); err != nil {
			return nil, err
		}
		return NewTransposeCodec(cfg.Order)
	})
}

// NewTransposeCodec constructs the transpose codec. order must be a
// permutation of [0, len(order)).
func NewTransposeCodec(order []int) (*TransposeCodec, error) {
	seen := make([]bool, len(order))
	for _, o := range order {
		if o < 0 || o >= len(order) || seen[o] {
			return nil, base.ConfigErrorf(
				"codec \"transpose\": order %v is not a permutation", order)
		}
		seen[o] = true
	}
	return &TransposeCodec{order: append([]int(nil), order...)}, nil
}

// Name implements Codec.
func (c *TransposeCodec) Name() string { return "transpose" }

// Configuration implements Codec.
func (c *TransposeCodec) Configuration() map[string]any {
	return marshalConfig(transposeConfig{Order: c.order})
}

// PartialDecodeCapability implements Codec: indexers remap through the
// permutation without touching unrequested elements.
func (c *TransposeCodec) PartialDecodeCapability() PartialDecodeCapability {
	return PartialDecodeCapability{PartialRead: true, PartialDecode: true}
}

// PartialEncodeCapability implements Codec.
func (c *TransposeCodec) PartialEncodeCapability() PartialEncodeCapability {
	return PartialEncodeCapability{PartialEncode: true}
}

func (c *TransposeCodec) check(decoded ChunkRep) (elemSize uint64, err error) {
	if len(c.order) != len(decoded.Shape()) {
		return 0, base.ConfigErrorf(
			"codec \"transpose\": order %v does not match chunk dimensionality %d",
			c.order, len(decoded.Shape()))
	}
	dt := decoded.DataType()
	if dt.IsOptional() || dt.IsVariable() {
		return 0, base.ConfigErrorf("codec \"transpose\" cannot encode data type %s", dt)
	}
	return uint64(dt.MustFixedSize()), nil
}

// permuteShape maps a decoded-space per-dimension vector into encoded space.
func (c *TransposeCodec) permuteShape(shape []uint64) []uint64 {
	out := make([]uint64, len(shape))
	for i, o := range c.order {
		out[i] = shape[o]
	}
	return out
}

// EncodedRep implements ArrayToArrayCodec.
func (c *TransposeCodec) EncodedRep(decoded ChunkRep) (ChunkRep, error) {
	if _, err := c.check(decoded); err != nil {
		return ChunkRep{}, err
	}
	return NewChunkRep(c.permuteShape(decoded.Shape()), decoded.DataType(), decoded.FillValue())
}

// reorder copies src (element data laid out row-major over srcShape) into a
// new buffer laid out row-major over the permuted shape. invert selects the
// decode direction.
func (c *TransposeCodec) reorder(src []byte, srcShape []uint64, elemSize uint64, invert bool) []byte {
	dstShape := make([]uint64, len(srcShape))
	for i, o := range c.order {
		if invert {
			// srcShape is the encoded shape; recover the decoded one.
			dstShape[o] = srcShape[i]
		} else {
			dstShape[i] = srcShape[o]
		}
	}
	n := indexer.NumElements(srcShape)
	dst := make([]byte, len(src))
	coord := make([]uint64, len(srcShape))
	pcoord := make([]uint64, len(srcShape))
	for j := uint64(0); j < n; j++ {
		rem := j
		for d := len(srcShape) - 1; d >= 0; d-- {
			coord[d] = rem % srcShape[d]
			rem /= srcShape[d]
		}
		for i, o := range c.order {
			if invert {
				pcoord[o] = coord[i]
			} else {
				pcoord[i] = coord[o]
			}
		}
		dstLin := uint64(0)
		for d := range dstShape {
			dstLin = dstLin*dstShape[d] + pcoord[d]
		}
		copy(dst[dstLin*elemSize:(dstLin+1)*elemSize], src[j*elemSize:(j+1)*elemSize])
	}
	return dst
}

// Encode implements ArrayToArrayCodec.
func (c *TransposeCodec) Encode(
	b arraybytes.ArrayBytes, decoded ChunkRep, opts *Options,
) (arraybytes.ArrayBytes, error) {
	elemSize, err := c.check(decoded)
	if err != nil {
		return arraybytes.ArrayBytes{}, err
	}
	if err := b.Validate(decoded.NumElements(), decoded.DataType()); err != nil {
		return arraybytes.ArrayBytes{}, err
	}
	buf, err := b.Fixed()
	if err != nil {
		return arraybytes.ArrayBytes{}, err
	}
	out := c.reorder(buf.Bytes(), decoded.Shape(), elemSize, false)
	return arraybytes.NewFixed(arraybytes.Owned(out)), nil
}

// Decode implements ArrayToArrayCodec.
func (c *TransposeCodec) Decode(
	b arraybytes.ArrayBytes, decoded ChunkRep, opts *Options,
) (arraybytes.ArrayBytes, error) {
	elemSize, err := c.check(decoded)
	if err != nil {
		return arraybytes.ArrayBytes{}, err
	}
	if err := b.Validate(decoded.NumElements(), decoded.DataType()); err != nil {
		return arraybytes.ArrayBytes{}, err
	}
	buf, err := b.Fixed()
	if err != nil {
		return arraybytes.ArrayBytes{}, err
	}
	out := c.reorder(buf.Bytes(), c.permuteShape(decoded.Shape()), elemSize, true)
	return arraybytes.NewFixed(arraybytes.Owned(out)), nil
}

// PartialDecoder implements ArrayToArrayCodec: the indexer is permuted into
// encoded space, and the result reordered back for subset indexers.
func (c *TransposeCodec) PartialDecoder(
	next ArrayPartialReader, decoded ChunkRep, opts *Options,
) (ArrayPartialReader, error) {
	if _, err := c.check(decoded); err != nil {
		return nil, err
	}
	return &transposePartialDecoder{codec: c, next: next, rep: decoded, opts: opts}, nil
}

// PartialEncoder implements ArrayToArrayCodec.
func (c *TransposeCodec) PartialEncoder(
	next ArrayPartialWriter, decoded ChunkRep, opts *Options,
) (ArrayPartialWriter, error) {
	if _, err := c.check(decoded); err != nil {
		return nil, err
	}
	return &transposePartialEncoder{
		transposePartialDecoder: transposePartialDecoder{codec: c, next: next, rep: decoded, opts: opts},
		writer:                  next,
	}, nil
}

// RecommendedConcurrency implements ArrayToArrayCodec.
func (c *TransposeCodec) RecommendedConcurrency(decoded ChunkRep) (RecommendedConcurrency, error) {
	return ConcurrencyOf(1), nil
}

type transposePartialDecoder struct {
	codec *TransposeCodec
	next  ArrayPartialReader
	rep   ChunkRep
	opts  *Options
}

var _ ArrayPartialReader = (*transposePartialDecoder)(nil)

func (r *transposePartialDecoder) DataType() dtype.DataType { return r.rep.DataType() }

func (r *transposePartialDecoder) Exists(ctx context.Context) (bool, error) {
	return r.next.Exists(ctx)
}

// mapIndexer permutes a decoded-space indexer into encoded space. For
// subsets the encoded iteration order differs from the decoded one, so
// reorder reports whether the caller must permute element order.
func (r *transposePartialDecoder) mapIndexer(idx indexer.Indexer) (indexer.Indexer, bool, error) {
	if sub, ok := idx.AsSubset(); ok {
		mapped, err := indexer.NewSubset(
			r.codec.permuteShape(sub.Start()), r.codec.permuteShape(sub.Shape()))
		return mapped, true, err
	}
	coords, ok := idx.(indexer.Coords)
	if !ok {
		return nil, false, base.DataErrorf("codec \"transpose\": unsupported indexer type")
	}
	n := int(coords.NumElements())
	mapped := make([][]uint64, n)
	for i := range n {
		mapped[i] = r.codec.permuteShape(coords.At(i))
	}
	// A coordinate list keeps its element order through the permutation.
	out, err := indexer.NewCoords(mapped, coords.Dims())
	return out, false, err
}

// reorderSubset permutes element order between the decoded-subset and
// encoded-subset row-major iterations of the same rectangular selection.
// decodedShape is the selection shape in decoded space.
func (c *TransposeCodec) reorderSubset(
	src []byte, decodedShape []uint64, elemSize uint64, toDecoded bool,
) []byte {
	encShape := c.permuteShape(decodedShape)
	n := indexer.NumElements(decodedShape)
	dst := make([]byte, len(src))
	coord := make([]uint64, len(decodedShape))
	for j := uint64(0); j < n; j++ {
		rem := j
		for d := len(decodedShape) - 1; d >= 0; d-- {
			coord[d] = rem % decodedShape[d]
			rem /= decodedShape[d]
		}
		encLin := uint64(0)
		for i, o := range c.order {
			encLin = encLin*encShape[i] + coord[o]
		}
		if toDecoded {
			copy(dst[j*elemSize:(j+1)*elemSize], src[encLin*elemSize:(encLin+1)*elemSize])
		} else {
			copy(dst[encLin*elemSize:(encLin+1)*elemSize], src[j*elemSize:(j+1)*elemSize])
		}
	}
	return dst
}

func (r *transposePartialDecoder) PartialDecode(
	ctx context.Context, idx indexer.Indexer,
) (arraybytes.ArrayBytes, error) {
	if err := idx.Validate(r.rep.Shape()); err != nil {
		return arraybytes.ArrayBytes{}, err
	}
	mapped, needReorder, err := r.mapIndexer(idx)
	if err != nil {
		return arraybytes.ArrayBytes{}, err
	}
	out, err := r.next.PartialDecode(ctx, mapped)
	if err != nil {
		return arraybytes.ArrayBytes{}, err
	}
	if !needReorder {
		return out, nil
	}
	buf, err := out.Fixed()
	if err != nil {
		return arraybytes.ArrayBytes{}, err
	}
	sub, _ := idx.AsSubset()
	elemSize := uint64(r.rep.DataType().MustFixedSize())
	reordered := r.codec.reorderSubset(buf.Bytes(), sub.Shape(), elemSize, true)
	return arraybytes.NewFixed(arraybytes.Owned(reordered)), nil
}

type transposePartialEncoder struct {
	transposePartialDecoder
	writer ArrayPartialWriter
}

var _ ArrayPartialWriter = (*transposePartialEncoder)(nil)

func (w *transposePartialEncoder) Erase(ctx context.Context) error {
	return w.writer.Erase(ctx)
}

func (w *transposePartialEncoder) PartialEncode(
	ctx context.Context, idx indexer.Indexer, patch arraybytes.ArrayBytes,
) error {
	if err := idx.Validate(w.rep.Shape()); err != nil {
		return err
	}
	if err := patch.Validate(idx.NumElements(), w.rep.DataType()); err != nil {
		return err
	}
	mapped, needReorder, err := w.mapIndexer(idx)
	if err != nil {
		return err
	}
	if needReorder {
		buf, err := patch.Fixed()
		if err != nil {
			return err
		}
		sub, _ := idx.AsSubset()
		elemSize := uint64(w.rep.DataType().MustFixedSize())
		patch = arraybytes.NewFixed(arraybytes.Owned(
			w.codec.reorderSubset(buf.Bytes(), sub.Shape(), elemSize, false)))
	}
	return w.writer.PartialEncode(ctx, mapped, patch)
}
