// Copyright 2026 The Zarr-Go Authors. All rights reserved. Use of this source
// code is governed by a BSD-style license that can be found in the LICENSE
// file.

package codec

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"math"
	"runtime"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/zarrgo/zarr/arraybytes"
	"github.com/zarrgo/zarr/dtype"
	"github.com/zarrgo/zarr/indexer"
	"github.com/zarrgo/zarr/internal/base"
	"github.com/zarrgo/zarr/internal/invariants"
	"github.com/zarrgo/zarr/storage"
)

// shardIndexEntrySize is the decoded size of one index entry: a u64 offset
// and a u64 length.
const shardIndexEntrySize = 16

// absentSentinel marks an inner chunk with no stored bytes. Both fields of
// its index entry carry this value.
const absentSentinel = math.MaxUint64

// ShardingCodec is the "sharding_indexed" array-to-bytes codec: the chunk
// is subdivided into an inner chunk grid, each inner chunk independently
// encoded through the inner chain, with a (offset, length) index encoded
// through its own chain and placed before or after the payload region.
// Inner chunks whose content is entirely the fill value are elided from
// the shard; their index entries carry the all-ones sentinel.
type ShardingCodec struct {
	chunkShape []uint64
	innerChain *Chain
	indexChain *Chain
	location   IndexLocation
}

var _ ArrayToBytesCodec = (*ShardingCodec)(nil)

type shardingConfig struct {
	ChunkShape    []uint64   `json:"chunk_shape"`
	Codecs        []Metadata `json:"codecs,omitempty"`
	IndexCodecs   []Metadata `json:"index_codecs,omitempty"`
	IndexLocation string     `json:"index_location,omitempty"`
}

func init() {
	registerBuiltin("sharding_indexed", func(config json.RawMessage) (Codec, error) {
		var cfg shardingConfig
		if err := decodeConfig("sharding_indexed", config, &cfg); err != nil {
			return nil, err
		}
		innerChain, err := subChain("sharding_indexed", cfg.Codecs)
		if err != nil {
			return nil, err
		}
		indexChain, err := subChain("sharding_indexed", cfg.IndexCodecs)
		if err != nil {
			return nil, err
		}
		location, err := parseIndexLocation("sharding_indexed", cfg.IndexLocation, IndexLocationEnd)
		if err != nil {
			return nil, err
		}
		return NewShardingCodec(cfg.ChunkShape, innerChain, indexChain, location)
	})
}

// NewShardingCodec constructs the sharding codec. chunkShape is the inner
// chunk shape; it must evenly divide every shard it is applied to. Nil
// chains default to a bare little-endian bytes stage.
func NewShardingCodec(
	chunkShape []uint64, innerChain, indexChain *Chain, location IndexLocation,
) (*ShardingCodec, error) {
	if len(chunkShape) == 0 {
		return nil, base.ConfigErrorf("codec \"sharding_indexed\" requires a chunk_shape")
	}
	for d, extent := range chunkShape {
		if extent == 0 {
			return nil, base.ConfigErrorf(
				"codec \"sharding_indexed\": chunk_shape %v has zero extent in dimension %d",
				chunkShape, d)
		}
	}
	var err error
	if innerChain == nil {
		if innerChain, err = subChain("sharding_indexed", nil); err != nil {
			return nil, err
		}
	}
	if indexChain == nil {
		if indexChain, err = subChain("sharding_indexed", nil); err != nil {
			return nil, err
		}
	}
	return &ShardingCodec{
		chunkShape: append([]uint64(nil), chunkShape...),
		innerChain: innerChain,
		indexChain: indexChain,
		location:   location,
	}, nil
}

// Name implements Codec.
func (c *ShardingCodec) Name() string { return "sharding_indexed" }

// Configuration implements Codec.
func (c *ShardingCodec) Configuration() map[string]any {
	return marshalConfig(shardingConfig{
		ChunkShape:    c.chunkShape,
		Codecs:        c.innerChain.Metadata(),
		IndexCodecs:   c.indexChain.Metadata(),
		IndexLocation: c.location.String(),
	})
}

// PartialDecodeCapability implements Codec: this codec exists to serve
// sub-shard reads from the index plus the touched inner-chunk ranges.
func (c *ShardingCodec) PartialDecodeCapability() PartialDecodeCapability {
	return PartialDecodeCapability{PartialRead: true, PartialDecode: true}
}

// PartialEncodeCapability implements Codec.
func (c *ShardingCodec) PartialEncodeCapability() PartialEncodeCapability {
	return PartialEncodeCapability{PartialEncode: true}
}

// grid validates the shard representation and returns the inner chunk grid
// extent and the inner chunk representation.
func (c *ShardingCodec) grid(decoded ChunkRep) (cps []uint64, innerRep ChunkRep, err error) {
	shape := decoded.Shape()
	if len(shape) != len(c.chunkShape) {
		return nil, ChunkRep{}, base.ConfigErrorf(
			"codec \"sharding_indexed\": chunk_shape %v does not match shard dimensionality %d",
			c.chunkShape, len(shape))
	}
	cps = make([]uint64, len(shape))
	for d := range shape {
		if shape[d]%c.chunkShape[d] != 0 {
			return nil, ChunkRep{}, base.ConfigErrorf(
				"codec \"sharding_indexed\": chunk_shape %v does not evenly divide shard shape %v",
				c.chunkShape, shape)
		}
		cps[d] = shape[d] / c.chunkShape[d]
	}
	innerRep, err = NewChunkRep(c.chunkShape, decoded.DataType(), decoded.FillValue())
	if err != nil {
		return nil, ChunkRep{}, err
	}
	return cps, innerRep, nil
}

// chunkSubset returns the shard-relative subset of the inner chunk with
// row-major grid index ci.
func (c *ShardingCodec) chunkSubset(ci uint64, cps []uint64) indexer.Subset {
	coord := indexer.UnravelIndex(ci, cps)
	start := make([]uint64, len(coord))
	for d := range coord {
		start[d] = coord[d] * c.chunkShape[d]
	}
	sub, _ := indexer.NewSubset(start, c.chunkShape)
	return sub
}

// indexRep is the chunk representation of the decoded shard index: a u64
// array of shape cps ++ [2], sentinel-filled.
func (c *ShardingCodec) indexRep(cps []uint64) (ChunkRep, error) {
	shape := append(append([]uint64(nil), cps...), 2)
	fill := make([]byte, 8)
	binary.LittleEndian.PutUint64(fill, absentSentinel)
	return NewChunkRep(shape, dtype.Uint64, dtype.NewFillValue(fill))
}

// encodedIndexSize returns the exact encoded byte size of the shard index.
// The index chain must produce a fixed-size encoding so the index region
// can be located without a frame.
func (c *ShardingCodec) encodedIndexSize(cps []uint64) (uint64, error) {
	rep, err := c.indexRep(cps)
	if err != nil {
		return 0, err
	}
	brep, err := c.indexChain.EncodedRep(rep)
	if err != nil {
		return 0, err
	}
	if brep.Kind != BytesRepFixed {
		return 0, base.ConfigErrorf(
			"codec \"sharding_indexed\": index codecs must produce a fixed-size encoding")
	}
	return brep.Size, nil
}

// encodeIndex serializes and encodes the shard index entries.
func (c *ShardingCodec) encodeIndex(index []uint64, cps []uint64, opts *Options) ([]byte, error) {
	raw := make([]byte, len(index)*8)
	for i, v := range index {
		binary.LittleEndian.PutUint64(raw[i*8:], v)
	}
	rep, err := c.indexRep(cps)
	if err != nil {
		return nil, err
	}
	enc, err := c.indexChain.Encode(arraybytes.NewFixed(arraybytes.Borrowed(raw)), rep, opts)
	if err != nil {
		return nil, err
	}
	return enc.Bytes(), nil
}

// decodeIndex decodes an encoded shard index region into entry pairs.
func (c *ShardingCodec) decodeIndex(region []byte, cps []uint64, opts *Options) ([]uint64, error) {
	rep, err := c.indexRep(cps)
	if err != nil {
		return nil, err
	}
	dec, err := c.indexChain.Decode(arraybytes.Borrowed(region), rep, opts)
	if err != nil {
		return nil, err
	}
	buf, err := dec.Fixed()
	if err != nil {
		return nil, err
	}
	raw := buf.Bytes()
	index := make([]uint64, len(raw)/8)
	for i := range index {
		index[i] = binary.LittleEndian.Uint64(raw[i*8:])
	}
	for ci := 0; ci < len(index)/2; ci++ {
		offset, length := index[2*ci], index[2*ci+1]
		if (offset == absentSentinel) != (length == absentSentinel) {
			return nil, base.CorruptionErrorf(
				"codec \"sharding_indexed\": inner chunk %d has a half-sentinel index entry", ci)
		}
	}
	return index, nil
}

// concurrencyLimit resolves the fan-out bound for parallel inner-chunk
// work.
func concurrencyLimit(opts *Options) int {
	if opts != nil && opts.Concurrency > 0 {
		return opts.Concurrency
	}
	return runtime.GOMAXPROCS(0)
}

// EncodedRep implements ArrayToBytesCodec.
func (c *ShardingCodec) EncodedRep(decoded ChunkRep) (BytesRep, error) {
	cps, innerRep, err := c.grid(decoded)
	if err != nil {
		return BytesRep{}, err
	}
	indexSize, err := c.encodedIndexSize(cps)
	if err != nil {
		return BytesRep{}, err
	}
	innerBRep, err := c.innerChain.EncodedRep(innerRep)
	if err != nil {
		return BytesRep{}, err
	}
	if innerBRep.Kind == BytesRepUnbounded {
		return UnboundedBytesRep(), nil
	}
	return BoundedBytesRep(indexSize + indexer.NumElements(cps)*innerBRep.Size), nil
}

// Encode implements ArrayToBytesCodec. Inner chunks encode concurrently,
// bounded by Options.Concurrency; the output layout is deterministic in
// grid order.
func (c *ShardingCodec) Encode(
	b arraybytes.ArrayBytes, decoded ChunkRep, opts *Options,
) (arraybytes.Buf, error) {
	opts = resolveOptions(opts)
	cps, innerRep, err := c.grid(decoded)
	if err != nil {
		return arraybytes.Buf{}, err
	}
	if err := b.Validate(decoded.NumElements(), decoded.DataType()); err != nil {
		return arraybytes.Buf{}, err
	}
	numChunks := indexer.NumElements(cps)
	dt := decoded.DataType()
	fill := decoded.FillValue()

	encoded := make([][]byte, numChunks)
	var g errgroup.Group
	g.SetLimit(concurrencyLimit(opts))
	for ci := uint64(0); ci < numChunks; ci++ {
		g.Go(func() error {
			part, err := arraybytes.ExtractSubset(b, decoded.Shape(), c.chunkSubset(ci, cps), dt)
			if err != nil {
				return err
			}
			if !opts.StoreEmptyChunks && part.IsFill(dt, fill) {
				return nil
			}
			enc, err := c.innerChain.Encode(part, innerRep, opts)
			if err != nil {
				return err
			}
			encoded[ci] = enc.IntoOwned().Bytes()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return arraybytes.Buf{}, err
	}

	indexSize, err := c.encodedIndexSize(cps)
	if err != nil {
		return arraybytes.Buf{}, err
	}
	offset := uint64(0)
	if c.location == IndexLocationStart {
		offset = indexSize
	}
	index := make([]uint64, numChunks*2)
	var blob []byte
	for ci := uint64(0); ci < numChunks; ci++ {
		if encoded[ci] == nil {
			index[2*ci], index[2*ci+1] = absentSentinel, absentSentinel
			continue
		}
		index[2*ci], index[2*ci+1] = offset, uint64(len(encoded[ci]))
		blob = append(blob, encoded[ci]...)
		offset += uint64(len(encoded[ci]))
	}
	indexEnc, err := c.encodeIndex(index, cps, opts)
	if err != nil {
		return arraybytes.Buf{}, err
	}
	invariants.Assertf(uint64(len(indexEnc)) == indexSize,
		"encoded shard index is %d bytes, expected %d", len(indexEnc), indexSize)

	out := make([]byte, 0, uint64(len(blob))+indexSize)
	if c.location == IndexLocationStart {
		out = append(out, indexEnc...)
		out = append(out, blob...)
	} else {
		out = append(out, blob...)
		out = append(out, indexEnc...)
	}
	return arraybytes.Owned(out), nil
}

// assembleRegions combines per-chunk decoded payloads into one payload
// spanning targetShape. Variable-size types merge; fixed-size (including
// optional-of-fixed) overlay onto a fill-value target, so absent regions
// may be omitted.
func assembleRegions(
	regions []arraybytes.Region, targetShape []uint64, dt dtype.DataType, fill dtype.FillValue,
) (arraybytes.ArrayBytes, error) {
	if dt.IsVariable() {
		if dt.IsOptional() {
			return arraybytes.MergeVlenOptional(regions, targetShape)
		}
		return arraybytes.MergeVlen(regions, targetShape)
	}
	out, err := arraybytes.NewFill(dt, indexer.NumElements(targetShape), fill)
	if err != nil {
		return arraybytes.ArrayBytes{}, err
	}
	for _, rg := range regions {
		if out, err = arraybytes.Update(out, targetShape, rg.Subset, rg.Bytes, dt); err != nil {
			return arraybytes.ArrayBytes{}, err
		}
	}
	return out, nil
}

// Decode implements ArrayToBytesCodec.
func (c *ShardingCodec) Decode(
	raw arraybytes.Buf, decoded ChunkRep, opts *Options,
) (arraybytes.ArrayBytes, error) {
	opts = resolveOptions(opts)
	cps, innerRep, err := c.grid(decoded)
	if err != nil {
		return arraybytes.ArrayBytes{}, err
	}
	indexSize, err := c.encodedIndexSize(cps)
	if err != nil {
		return arraybytes.ArrayBytes{}, err
	}
	shard := raw.Bytes()
	if uint64(len(shard)) < indexSize {
		return arraybytes.ArrayBytes{}, base.CorruptionErrorf(
			"codec \"sharding_indexed\": shard of %d bytes is shorter than its %d-byte index",
			len(shard), indexSize)
	}
	var indexRegion []byte
	if c.location == IndexLocationStart {
		indexRegion = shard[:indexSize]
	} else {
		indexRegion = shard[uint64(len(shard))-indexSize:]
	}
	index, err := c.decodeIndex(indexRegion, cps, opts)
	if err != nil {
		return arraybytes.ArrayBytes{}, err
	}

	numChunks := indexer.NumElements(cps)
	dt := decoded.DataType()
	fill := decoded.FillValue()
	variable := dt.IsVariable()
	regions := make([]arraybytes.Region, numChunks)
	var g errgroup.Group
	g.SetLimit(concurrencyLimit(opts))
	for ci := uint64(0); ci < numChunks; ci++ {
		g.Go(func() error {
			sub := c.chunkSubset(ci, cps)
			offset, length := index[2*ci], index[2*ci+1]
			if offset == absentSentinel {
				if !variable {
					// The fixed-path assembly starts from a fill target.
					return nil
				}
				fb, err := arraybytes.NewFill(dt, innerRep.NumElements(), fill)
				if err != nil {
					return err
				}
				regions[ci] = arraybytes.Region{Bytes: fb, Subset: sub}
				return nil
			}
			if offset+length > uint64(len(shard)) {
				return base.CorruptionErrorf(
					"codec \"sharding_indexed\": inner chunk %d at [%d, %d) exceeds shard size %d",
					ci, offset, offset+length, len(shard))
			}
			cb, err := c.innerChain.Decode(
				arraybytes.Borrowed(shard[offset:offset+length]), innerRep, opts)
			if err != nil {
				return err
			}
			regions[ci] = arraybytes.Region{Bytes: cb, Subset: sub}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return arraybytes.ArrayBytes{}, err
	}
	if !variable {
		present := regions[:0]
		for _, rg := range regions {
			if rg.Subset.Dims() != 0 {
				present = append(present, rg)
			}
		}
		regions = present
	}
	return assembleRegions(regions, decoded.Shape(), dt, fill)
}

// PartialDecoder implements ArrayToBytesCodec: the true partial path this
// codec exists for.
func (c *ShardingCodec) PartialDecoder(
	next BytesPartialReader, decoded ChunkRep, opts *Options,
) (ArrayPartialReader, error) {
	opts = resolveOptions(opts)
	cps, innerRep, err := c.grid(decoded)
	if err != nil {
		return nil, err
	}
	if _, err := c.encodedIndexSize(cps); err != nil {
		return nil, err
	}
	return &shardingPartialDecoder{
		codec: c, next: next, rep: decoded, opts: opts, cps: cps, innerRep: innerRep,
	}, nil
}

// PartialEncoder implements ArrayToBytesCodec. The returned writer caches
// the decoded shard index; concurrent partial encodes against the same
// shard key must be serialized externally.
func (c *ShardingCodec) PartialEncoder(
	next BytesPartialWriter, decoded ChunkRep, opts *Options,
) (ArrayPartialWriter, error) {
	opts = resolveOptions(opts)
	if !next.SupportsPartialWrite() {
		return newABPartialEncoderDefault(c, next, decoded, opts), nil
	}
	cps, innerRep, err := c.grid(decoded)
	if err != nil {
		return nil, err
	}
	if _, err := c.encodedIndexSize(cps); err != nil {
		return nil, err
	}
	return &shardingPartialEncoder{
		shardingPartialDecoder: shardingPartialDecoder{
			codec: c, next: next, rep: decoded, opts: opts, cps: cps, innerRep: innerRep,
		},
		writer: next,
	}, nil
}

// RecommendedConcurrency implements ArrayToBytesCodec: one unit per inner
// chunk.
func (c *ShardingCodec) RecommendedConcurrency(decoded ChunkRep) (RecommendedConcurrency, error) {
	cps, _, err := c.grid(decoded)
	if err != nil {
		return RecommendedConcurrency{}, err
	}
	n := indexer.NumElements(cps)
	if n > uint64(math.MaxInt32) {
		n = math.MaxInt32
	}
	return ConcurrencyOf(int(n)), nil
}

// windowReader exposes the byte window [offset, offset+length) of next as
// its own stream. Inner-chunk partial decoders read through it.
type windowReader struct {
	next   BytesPartialReader
	offset uint64
	length uint64
}

var _ BytesPartialReader = (*windowReader)(nil)

func (r *windowReader) ReadRanges(
	ctx context.Context, ranges []storage.ByteRange,
) ([][]byte, bool, error) {
	mapped := make([]storage.ByteRange, len(ranges))
	for i, rg := range ranges {
		start, end, err := rg.Resolve(r.length)
		if err != nil {
			return nil, true, err
		}
		mapped[i] = storage.NewByteRange(r.offset+start, end-start)
	}
	return r.next.ReadRanges(ctx, mapped)
}

func (r *windowReader) ReadAll(ctx context.Context) ([]byte, bool, error) {
	out, found, err := r.next.ReadRanges(ctx,
		[]storage.ByteRange{storage.NewByteRange(r.offset, r.length)})
	if err != nil || !found {
		return nil, found, err
	}
	return out[0], true, nil
}

func (r *windowReader) SupportsPartial() bool { return r.next.SupportsPartial() }

// shardingPartialDecoder serves sub-shard reads from the shard index plus
// the touched inner-chunk byte ranges. The decoded index is cached on
// first use.
type shardingPartialDecoder struct {
	codec    *ShardingCodec
	next     BytesPartialReader
	rep      ChunkRep
	opts     *Options
	cps      []uint64
	innerRep ChunkRep

	mu     sync.Mutex
	loaded bool
	found  bool
	index  []uint64
}

var _ ArrayPartialReader = (*shardingPartialDecoder)(nil)

func (r *shardingPartialDecoder) DataType() dtype.DataType { return r.rep.DataType() }

func (r *shardingPartialDecoder) Exists(ctx context.Context) (bool, error) {
	return exists(ctx, r.next)
}

// loadIndex reads and decodes the shard index, caching the result. found
// is false when the shard does not exist.
func (r *shardingPartialDecoder) loadIndex(ctx context.Context) (index []uint64, found bool, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.loaded {
		return r.index, r.found, nil
	}
	indexSize, err := r.codec.encodedIndexSize(r.cps)
	if err != nil {
		return nil, false, err
	}
	var rg storage.ByteRange
	if r.codec.location == IndexLocationStart {
		rg = storage.NewByteRange(0, indexSize)
	} else {
		rg = storage.NewSuffixByteRange(indexSize)
	}
	regions, found, err := r.next.ReadRanges(ctx, []storage.ByteRange{rg})
	if err != nil {
		return nil, false, err
	}
	if !found {
		r.loaded, r.found = true, false
		return nil, false, nil
	}
	index, err = r.codec.decodeIndex(regions[0], r.cps, r.opts)
	if err != nil {
		return nil, false, err
	}
	r.loaded, r.found, r.index = true, true, index
	return index, true, nil
}

// invalidateIndex discards the cached index so the next access reloads it.
func (r *shardingPartialDecoder) invalidateIndex() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.loaded = false
	r.index = nil
}

// chunkGridRange returns the inclusive inner-chunk coordinate bounds
// intersected by sub.
func (r *shardingPartialDecoder) chunkGridRange(sub indexer.Subset) (lo, hi []uint64) {
	lo = make([]uint64, sub.Dims())
	hi = make([]uint64, sub.Dims())
	start, end := sub.Start(), sub.EndExc()
	for d := range lo {
		lo[d] = start[d] / r.codec.chunkShape[d]
		hi[d] = (end[d] - 1) / r.codec.chunkShape[d]
	}
	return lo, hi
}

// forEachChunkIn calls fn for every inner-chunk grid index whose subset
// intersects sub.
func (r *shardingPartialDecoder) forEachChunkIn(sub indexer.Subset, fn func(ci uint64) error) error {
	if sub.IsEmpty() {
		return nil
	}
	lo, hi := r.chunkGridRange(sub)
	coord := append([]uint64(nil), lo...)
	for {
		ci, err := indexer.RavelIndices(coord, r.cps)
		if err != nil {
			return err
		}
		if err := fn(ci); err != nil {
			return err
		}
		d := len(coord) - 1
		for ; d >= 0; d-- {
			coord[d]++
			if coord[d] <= hi[d] {
				break
			}
			coord[d] = lo[d]
		}
		if d < 0 {
			return nil
		}
	}
}

func (r *shardingPartialDecoder) PartialDecode(
	ctx context.Context, idx indexer.Indexer,
) (arraybytes.ArrayBytes, error) {
	if err := idx.Validate(r.rep.Shape()); err != nil {
		return arraybytes.ArrayBytes{}, err
	}
	sub, ok := idx.AsSubset()
	if !ok {
		// Coordinate-list indexers fall back to a full shard decode.
		return newABPartialDecoderDefault(r.codec, r.next, r.rep, r.opts).PartialDecode(ctx, idx)
	}
	dt := r.rep.DataType()
	fill := r.rep.FillValue()
	index, found, err := r.loadIndex(ctx)
	if err != nil {
		return arraybytes.ArrayBytes{}, err
	}
	if !found {
		return arraybytes.NewFill(dt, idx.NumElements(), fill)
	}

	var regions []arraybytes.Region
	var regionMu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrencyLimit(r.opts))
	err = r.forEachChunkIn(sub, func(ci uint64) error {
		g.Go(func() error {
			chunkSub := r.codec.chunkSubset(ci, r.cps)
			overlap, err := sub.Overlap(chunkSub)
			if err != nil {
				return err
			}
			if overlap.IsEmpty() {
				return nil
			}
			placement, err := overlap.RelativeTo(sub.Start())
			if err != nil {
				return err
			}
			offset, length := index[2*ci], index[2*ci+1]
			var part arraybytes.ArrayBytes
			if offset == absentSentinel {
				part, err = arraybytes.NewFill(dt, overlap.NumElements(), fill)
			} else {
				var inner ArrayPartialReader
				inner, err = r.codec.innerChain.PartialDecoder(
					&windowReader{next: r.next, offset: offset, length: length}, r.innerRep, r.opts)
				if err != nil {
					return err
				}
				var rel indexer.Subset
				rel, err = overlap.RelativeTo(chunkSub.Start())
				if err != nil {
					return err
				}
				part, err = inner.PartialDecode(gctx, rel)
			}
			if err != nil {
				return err
			}
			regionMu.Lock()
			regions = append(regions, arraybytes.Region{Bytes: part, Subset: placement})
			regionMu.Unlock()
			return nil
		})
		return nil
	})
	if err != nil {
		return arraybytes.ArrayBytes{}, err
	}
	if err := g.Wait(); err != nil {
		return arraybytes.ArrayBytes{}, err
	}

	// Region placements are relative to the requested subset.
	target := sub.Shape()
	return assembleRegions(regions, target, dt, fill)
}

// shardingPartialEncoder updates a subset of inner chunks without
// rewriting the whole shard payload: straddled inner chunks are read and
// decoded, fully covered ones replaced without a read, updated encodings
// appended past the existing payload, and the index rewritten. The erased
// regions of replaced chunks become dead bytes in the shard; a full
// re-encode reclaims them.
type shardingPartialEncoder struct {
	shardingPartialDecoder
	writer BytesPartialWriter

	// storedEnd is the stored shard's byte length after the last write or
	// erase this encoder performed, valid when endKnown is true. With the
	// index at the end the decoder locates it as the value's suffix, and
	// SetPartial never truncates, so every write must end at or past the
	// previous end or the old index would survive as the value's tail.
	// Partial encodes on one key are externally serialized, so these need
	// no lock.
	storedEnd uint64
	endKnown  bool
}

var _ ArrayPartialWriter = (*shardingPartialEncoder)(nil)

func (w *shardingPartialEncoder) Erase(ctx context.Context) error {
	if err := w.writer.Erase(ctx); err != nil {
		return err
	}
	w.storedEnd, w.endKnown = 0, true
	w.mu.Lock()
	defer w.mu.Unlock()
	w.loaded, w.found, w.index = true, false, nil
	return nil
}

func (w *shardingPartialEncoder) PartialEncode(
	ctx context.Context, idx indexer.Indexer, patch arraybytes.ArrayBytes,
) error {
	if err := idx.Validate(w.rep.Shape()); err != nil {
		return err
	}
	if err := patch.Validate(idx.NumElements(), w.rep.DataType()); err != nil {
		return err
	}
	sub, ok := idx.AsSubset()
	if !ok {
		// Coordinate-list indexers fall back to a full shard rewrite.
		err := newABPartialEncoderDefault(w.codec, w.writer, w.rep, w.opts).
			PartialEncode(ctx, idx, patch)
		w.invalidateIndex()
		w.endKnown = false
		return err
	}

	dt := w.rep.DataType()
	fill := w.rep.FillValue()
	numChunks := indexer.NumElements(w.cps)
	index, found, err := w.loadIndex(ctx)
	if err != nil {
		return err
	}
	if !found {
		index = make([]uint64, numChunks*2)
		for i := range index {
			index[i] = absentSentinel
		}
		w.storedEnd, w.endKnown = 0, true
	} else {
		index = append([]uint64(nil), index...)
	}

	// The maximum end offset of existing payload bytes; new encodings are
	// appended past it.
	var maxDataOffset uint64
	for ci := uint64(0); ci < numChunks; ci++ {
		if index[2*ci] != absentSentinel {
			if end := index[2*ci] + index[2*ci+1]; end > maxDataOffset {
				maxDataOffset = end
			}
		}
	}

	// Decode the inner chunks the subset straddles. Fully covered chunks
	// are replaced outright and never read.
	type updatedChunk struct {
		ci      uint64
		encoded []byte // nil elides the chunk
	}
	var (
		updated   []updatedChunk
		updatedMu sync.Mutex
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrencyLimit(w.opts))
	err = w.forEachChunkIn(sub, func(ci uint64) error {
		g.Go(func() error {
			chunkSub := w.codec.chunkSubset(ci, w.cps)
			overlap, err := sub.Overlap(chunkSub)
			if err != nil {
				return err
			}
			if overlap.IsEmpty() {
				return nil
			}
			fullyCovered := overlap.NumElements() == w.innerRep.NumElements()
			offset, length := index[2*ci], index[2*ci+1]

			var chunk arraybytes.ArrayBytes
			if fullyCovered || offset == absentSentinel {
				chunk, err = arraybytes.NewFill(dt, w.innerRep.NumElements(), fill)
			} else {
				var raw []byte
				raw, _, err = (&windowReader{next: w.next, offset: offset, length: length}).
					ReadAll(gctx)
				if err != nil {
					return err
				}
				chunk, err = w.codec.innerChain.Decode(
					arraybytes.Borrowed(raw), w.innerRep, w.opts)
			}
			if err != nil {
				return err
			}

			// Overlay the patch elements that land in this chunk.
			patchSub, err := overlap.RelativeTo(sub.Start())
			if err != nil {
				return err
			}
			part, err := arraybytes.ExtractSubset(patch, sub.Shape(), patchSub, dt)
			if err != nil {
				return err
			}
			rel, err := overlap.RelativeTo(chunkSub.Start())
			if err != nil {
				return err
			}
			chunk, err = arraybytes.Update(chunk, w.codec.chunkShape, rel, part, dt)
			if err != nil {
				return err
			}

			uc := updatedChunk{ci: ci}
			if w.opts.StoreEmptyChunks || !chunk.IsFill(dt, fill) {
				enc, err := w.codec.innerChain.Encode(chunk, w.innerRep, w.opts)
				if err != nil {
					return err
				}
				uc.encoded = enc.IntoOwned().Bytes()
			}
			updatedMu.Lock()
			updated = append(updated, uc)
			updatedMu.Unlock()
			return nil
		})
		return nil
	})
	if err != nil {
		return err
	}
	if err := g.Wait(); err != nil {
		return err
	}

	// Retire the old entries of every touched chunk before appending.
	for _, uc := range updated {
		index[2*uc.ci], index[2*uc.ci+1] = absentSentinel, absentSentinel
	}
	allAbsent := func() bool {
		for _, v := range index {
			if v != absentSentinel {
				return false
			}
		}
		return true
	}
	if allAbsent() {
		// Every surviving entry is gone; restart the shard from scratch so
		// appends do not build on dead bytes.
		if err := w.writer.Erase(ctx); err != nil {
			return err
		}
		maxDataOffset = 0
		w.storedEnd, w.endKnown = 0, true
	}

	indexSize, err := w.codec.encodedIndexSize(w.cps)
	if err != nil {
		return err
	}
	var blobLen uint64
	for _, uc := range updated {
		blobLen += uint64(len(uc.encoded))
	}
	appendOffset := maxDataOffset
	if w.codec.location == IndexLocationStart && appendOffset < indexSize {
		appendOffset = indexSize
	}
	if w.codec.location == IndexLocationEnd && w.endKnown &&
		appendOffset+blobLen+indexSize < w.storedEnd {
		// Retired or elided entries can pull the payload end below the
		// stored length. Shift the append point up so the fresh index still
		// lands as the exact suffix of the stored value.
		appendOffset = w.storedEnd - blobLen - indexSize
	}

	var blob []byte
	offset := appendOffset
	for _, uc := range updated {
		if uc.encoded == nil {
			continue
		}
		index[2*uc.ci], index[2*uc.ci+1] = offset, uint64(len(uc.encoded))
		blob = append(blob, uc.encoded...)
		offset += uint64(len(uc.encoded))
	}

	if allAbsent() {
		if err := w.writer.Erase(ctx); err != nil {
			return err
		}
		w.storedEnd, w.endKnown = 0, true
		w.mu.Lock()
		w.loaded, w.found, w.index = true, false, nil
		w.mu.Unlock()
		return nil
	}

	indexEnc, err := w.codec.encodeIndex(index, w.cps, w.opts)
	if err != nil {
		return err
	}
	if w.codec.location == IndexLocationStart {
		if err := w.writer.WriteAt(ctx, 0, indexEnc); err != nil {
			return err
		}
		if len(blob) > 0 {
			if err := w.writer.WriteAt(ctx, appendOffset, blob); err != nil {
				return err
			}
		}
	} else {
		// Index at the end: append the new payload with the fresh index
		// immediately after it in a single write.
		tail := append(blob, indexEnc...)
		if w.endKnown {
			if err := w.writer.WriteAt(ctx, appendOffset, tail); err != nil {
				return err
			}
		} else {
			// Fresh encoder over an existing shard of unknown length: replace
			// the value outright so no stale index can survive past the new
			// one. The live payload all sits below appendOffset.
			live, _, err := w.next.ReadRanges(ctx,
				[]storage.ByteRange{storage.NewByteRange(0, appendOffset)})
			if err != nil {
				return err
			}
			value := append(append([]byte(nil), live[0]...), tail...)
			if err := w.writer.Put(ctx, value); err != nil {
				return err
			}
		}
		w.storedEnd, w.endKnown = appendOffset+uint64(len(tail)), true
	}
	w.mu.Lock()
	w.loaded, w.found, w.index = true, true, index
	w.mu.Unlock()
	return nil
}
