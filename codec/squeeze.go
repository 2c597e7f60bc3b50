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

// SqueezeCodec is the "squeeze" array-to-array codec: unit-extent
// dimensions are dropped from the chunk shape. Row-major element order is
// invariant under dropping unit dimensions, so element data passes through
// untouched for every data type.
type SqueezeCodec struct{}

var _ ArrayToArrayCodec = (*SqueezeCodec)(nil)

func init() {
	registerBuiltin("squeeze", func(config json.RawMessage) (Codec, error) {
		var cfg struct{}
		if err := decodeConfig("squeeze", config, &cfg); err != nil {
			return nil, err
		}
		return NewSqueezeCodec(), nil
	})
}

// NewSqueezeCodec constructs the squeeze codec.
func NewSqueezeCodec() *SqueezeCodec { return &SqueezeCodec{} }

// Name implements Codec.
func (c *SqueezeCodec) Name() string { return "squeeze" }

// Configuration implements Codec.
func (c *SqueezeCodec) Configuration() map[string]any { return nil }

// PartialDecodeCapability implements Codec.
func (c *SqueezeCodec) PartialDecodeCapability() PartialDecodeCapability {
	return PartialDecodeCapability{PartialRead: true, PartialDecode: true}
}

// PartialEncodeCapability implements Codec.
func (c *SqueezeCodec) PartialEncodeCapability() PartialEncodeCapability {
	return PartialEncodeCapability{PartialEncode: true}
}

// squeeze drops the components of v at unit-extent dimensions of shape.
func squeeze(v, shape []uint64) []uint64 {
	out := make([]uint64, 0, len(v))
	for d, extent := range shape {
		if extent != 1 {
			out = append(out, v[d])
		}
	}
	return out
}

// EncodedRep implements ArrayToArrayCodec.
func (c *SqueezeCodec) EncodedRep(decoded ChunkRep) (ChunkRep, error) {
	return NewChunkRep(squeeze(decoded.Shape(), decoded.Shape()), decoded.DataType(),
		decoded.FillValue())
}

// Encode implements ArrayToArrayCodec.
func (c *SqueezeCodec) Encode(
	b arraybytes.ArrayBytes, decoded ChunkRep, opts *Options,
) (arraybytes.ArrayBytes, error) {
	if err := b.Validate(decoded.NumElements(), decoded.DataType()); err != nil {
		return arraybytes.ArrayBytes{}, err
	}
	return b, nil
}

// Decode implements ArrayToArrayCodec.
func (c *SqueezeCodec) Decode(
	b arraybytes.ArrayBytes, decoded ChunkRep, opts *Options,
) (arraybytes.ArrayBytes, error) {
	if err := b.Validate(decoded.NumElements(), decoded.DataType()); err != nil {
		return arraybytes.ArrayBytes{}, err
	}
	return b, nil
}

// PartialDecoder implements ArrayToArrayCodec.
func (c *SqueezeCodec) PartialDecoder(
	next ArrayPartialReader, decoded ChunkRep, opts *Options,
) (ArrayPartialReader, error) {
	return &squeezePartialDecoder{next: next, rep: decoded}, nil
}

// PartialEncoder implements ArrayToArrayCodec.
func (c *SqueezeCodec) PartialEncoder(
	next ArrayPartialWriter, decoded ChunkRep, opts *Options,
) (ArrayPartialWriter, error) {
	return &squeezePartialEncoder{
		squeezePartialDecoder: squeezePartialDecoder{next: next, rep: decoded},
		writer:                next,
	}, nil
}

// RecommendedConcurrency implements ArrayToArrayCodec.
func (c *SqueezeCodec) RecommendedConcurrency(decoded ChunkRep) (RecommendedConcurrency, error) {
	return ConcurrencyOf(1), nil
}

type squeezePartialDecoder struct {
	next ArrayPartialReader
	rep  ChunkRep
}

var _ ArrayPartialReader = (*squeezePartialDecoder)(nil)

func (r *squeezePartialDecoder) DataType() dtype.DataType { return r.rep.DataType() }

func (r *squeezePartialDecoder) Exists(ctx context.Context) (bool, error) {
	return r.next.Exists(ctx)
}

// mapIndexer drops unit dimensions from a decoded-space indexer. Element
// order is unchanged.
func (r *squeezePartialDecoder) mapIndexer(idx indexer.Indexer) (indexer.Indexer, error) {
	shape := r.rep.Shape()
	if sub, ok := idx.AsSubset(); ok {
		return indexer.NewSubset(squeeze(sub.Start(), shape), squeeze(sub.Shape(), shape))
	}
	coords, ok := idx.(indexer.Coords)
	if !ok {
		return nil, base.DataErrorf("codec \"squeeze\": unsupported indexer type")
	}
	n := int(coords.NumElements())
	mapped := make([][]uint64, n)
	for i := range n {
		mapped[i] = squeeze(coords.At(i), shape)
	}
	return indexer.NewCoords(mapped, len(squeeze(shape, shape)))
}

func (r *squeezePartialDecoder) PartialDecode(
	ctx context.Context, idx indexer.Indexer,
) (arraybytes.ArrayBytes, error) {
	if err := idx.Validate(r.rep.Shape()); err != nil {
		return arraybytes.ArrayBytes{}, err
	}
	mapped, err := r.mapIndexer(idx)
	if err != nil {
		return arraybytes.ArrayBytes{}, err
	}
	return r.next.PartialDecode(ctx, mapped)
}

type squeezePartialEncoder struct {
	squeezePartialDecoder
	writer ArrayPartialWriter
}

var _ ArrayPartialWriter = (*squeezePartialEncoder)(nil)

func (w *squeezePartialEncoder) Erase(ctx context.Context) error {
	return w.writer.Erase(ctx)
}

func (w *squeezePartialEncoder) PartialEncode(
	ctx context.Context, idx indexer.Indexer, patch arraybytes.ArrayBytes,
) error {
	if err := idx.Validate(w.rep.Shape()); err != nil {
		return err
	}
	mapped, err := w.mapIndexer(idx)
	if err != nil {
		return err
	}
	return w.writer.PartialEncode(ctx, mapped, patch)
}
