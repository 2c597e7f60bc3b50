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
	"github.com/zarrgo/zarr/storage"
)

// Endianness selects the stored byte order of the bytes codec.
type Endianness uint8

const (
	// EndianUnspecified is valid only for single-byte element lanes.
	EndianUnspecified Endianness = iota
	EndianLittle
	EndianBig
)

// Decoded fixed-size buffers are little-endian in memory, so EndianLittle
// is a passthrough and EndianBig a per-lane byte swap.

// BytesCodec is the "bytes" array-to-bytes codec: raw element bytes in a
// configured endianness, no framing.
type BytesCodec struct {
	endian Endianness
}

var _ ArrayToBytesCodec = (*BytesCodec)(nil)

type bytesConfig struct {
	Endian string `json:"endian,omitempty"`
}

func init() {
	registerBuiltin("bytes", func(config json.RawMessage) (Codec, error) {
		var cfg bytesConfig
		if err := decodeConfig("bytes", config, &cfg); err != nil {
			return nil, err
		}
		switch cfg.Endian {
		case "":
			return NewBytesCodec(EndianUnspecified), nil
		case "little":
			return NewBytesCodec(EndianLittle), nil
		case "big":
			return NewBytesCodec(EndianBig), nil
		}
		return nil, base.ConfigErrorf("codec \"bytes\": unknown endian %q", cfg.Endian)
	})
}

// NewBytesCodec constructs the bytes codec.
func NewBytesCodec(endian Endianness) *BytesCodec {
	return &BytesCodec{endian: endian}
}

// Name implements Codec.
func (c *BytesCodec) Name() string { return "bytes" }

// Configuration implements Codec.
func (c *BytesCodec) Configuration() map[string]any {
	switch c.endian {
	case EndianLittle:
		return marshalConfig(bytesConfig{Endian: "little"})
	case EndianBig:
		return marshalConfig(bytesConfig{Endian: "big"})
	}
	return nil
}

// PartialDecodeCapability implements Codec: element runs map directly to
// byte ranges.
func (c *BytesCodec) PartialDecodeCapability() PartialDecodeCapability {
	return PartialDecodeCapability{PartialRead: true, PartialDecode: true}
}

// PartialEncodeCapability implements Codec.
func (c *BytesCodec) PartialEncodeCapability() PartialEncodeCapability {
	return PartialEncodeCapability{PartialEncode: true}
}

// elemSize validates the data type against the codec configuration and
// returns the element size in bytes.
func (c *BytesCodec) elemSize(dt dtype.DataType) (uint64, error) {
	if dt.IsOptional() {
		return 0, base.ConfigErrorf("codec \"bytes\" cannot encode optional data type %s", dt)
	}
	size, ok := dt.FixedSize()
	if !ok {
		return 0, base.ConfigErrorf(
			"codec \"bytes\" cannot encode variable-size data type %s", dt)
	}
	if c.endian == EndianUnspecified && size > 1 {
		return 0, base.ConfigErrorf(
			"codec \"bytes\" requires an endianness for multi-byte data type %s", dt)
	}
	return uint64(size), nil
}

// EncodedRep implements ArrayToBytesCodec.
func (c *BytesCodec) EncodedRep(decoded ChunkRep) (BytesRep, error) {
	size, err := c.elemSize(decoded.DataType())
	if err != nil {
		return BytesRep{}, err
	}
	return FixedBytesRep(decoded.NumElements() * size), nil
}

// convert returns b in stored byte order, copying only when a swap is
// needed.
func (c *BytesCodec) convert(b arraybytes.Buf, dt dtype.DataType) arraybytes.Buf {
	if c.endian != EndianBig {
		return b
	}
	cp := append([]byte(nil), b.Bytes()...)
	dt.ReverseEndianness(cp)
	return arraybytes.Owned(cp)
}

// Encode implements ArrayToBytesCodec.
func (c *BytesCodec) Encode(
	b arraybytes.ArrayBytes, decoded ChunkRep, opts *Options,
) (arraybytes.Buf, error) {
	if _, err := c.elemSize(decoded.DataType()); err != nil {
		return arraybytes.Buf{}, err
	}
	if err := b.Validate(decoded.NumElements(), decoded.DataType()); err != nil {
		return arraybytes.Buf{}, err
	}
	buf, _ := b.Fixed()
	return c.convert(buf, decoded.DataType()), nil
}

// Decode implements ArrayToBytesCodec.
func (c *BytesCodec) Decode(
	raw arraybytes.Buf, decoded ChunkRep, opts *Options,
) (arraybytes.ArrayBytes, error) {
	size, err := c.elemSize(decoded.DataType())
	if err != nil {
		return arraybytes.ArrayBytes{}, err
	}
	if want := decoded.NumElements() * size; uint64(raw.Len()) != want {
		return arraybytes.ArrayBytes{}, base.DataErrorf(
			"codec \"bytes\": encoded length %d, want %d (%d elements of %d bytes)",
			raw.Len(), want, decoded.NumElements(), size)
	}
	return arraybytes.NewFixed(c.convert(raw, decoded.DataType())), nil
}

// PartialDecoder implements ArrayToBytesCodec. This is the true partial
// path: indexer runs translate one-to-one into byte ranges of the stored
// stream.
func (c *BytesCodec) PartialDecoder(
	next BytesPartialReader, decoded ChunkRep, opts *Options,
) (ArrayPartialReader, error) {
	if _, err := c.elemSize(decoded.DataType()); err != nil {
		return nil, err
	}
	return &bytesPartialDecoder{codec: c, next: next, rep: decoded, opts: opts}, nil
}

// PartialEncoder implements ArrayToBytesCodec. When the underlying writer
// supports byte-level partial writes, element runs are written in place;
// otherwise the generic read-modify-write default applies.
func (c *BytesCodec) PartialEncoder(
	next BytesPartialWriter, decoded ChunkRep, opts *Options,
) (ArrayPartialWriter, error) {
	if _, err := c.elemSize(decoded.DataType()); err != nil {
		return nil, err
	}
	if !next.SupportsPartialWrite() {
		return newABPartialEncoderDefault(c, next, decoded, opts), nil
	}
	return &bytesPartialEncoder{
		bytesPartialDecoder: bytesPartialDecoder{codec: c, next: next, rep: decoded, opts: opts},
		writer:              next,
	}, nil
}

// RecommendedConcurrency implements ArrayToBytesCodec.
func (c *BytesCodec) RecommendedConcurrency(decoded ChunkRep) (RecommendedConcurrency, error) {
	return ConcurrencyOf(1), nil
}

type bytesPartialDecoder struct {
	codec *BytesCodec
	next  BytesPartialReader
	rep   ChunkRep
	opts  *Options
}

var _ ArrayPartialReader = (*bytesPartialDecoder)(nil)

func (r *bytesPartialDecoder) DataType() dtype.DataType { return r.rep.DataType() }

func (r *bytesPartialDecoder) Exists(ctx context.Context) (bool, error) {
	return exists(ctx, r.next)
}

// elementRanges maps the indexer's contiguous element runs to byte ranges.
func elementRanges(idx indexer.Indexer, shape []uint64, elemSize uint64) ([]storage.ByteRange, error) {
	var ranges []storage.ByteRange
	err := idx.ContiguousRuns(shape, func(start, count uint64) error {
		ranges = append(ranges, storage.NewByteRange(start*elemSize, count*elemSize))
		return nil
	})
	return ranges, err
}

func (r *bytesPartialDecoder) PartialDecode(
	ctx context.Context, idx indexer.Indexer,
) (arraybytes.ArrayBytes, error) {
	if err := idx.Validate(r.rep.Shape()); err != nil {
		return arraybytes.ArrayBytes{}, err
	}
	elemSize, err := r.codec.elemSize(r.rep.DataType())
	if err != nil {
		return arraybytes.ArrayBytes{}, err
	}
	ranges, err := elementRanges(idx, r.rep.Shape(), elemSize)
	if err != nil {
		return arraybytes.ArrayBytes{}, err
	}
	parts, found, err := r.next.ReadRanges(ctx, ranges)
	if err != nil {
		return arraybytes.ArrayBytes{}, err
	}
	if !found {
		return arraybytes.NewFill(r.rep.DataType(), idx.NumElements(), r.rep.FillValue())
	}
	out := make([]byte, 0, idx.NumElements()*elemSize)
	for _, p := range parts {
		out = append(out, p...)
	}
	if r.codec.endian == EndianBig {
		r.rep.DataType().ReverseEndianness(out)
	}
	return arraybytes.NewFixed(arraybytes.Owned(out)), nil
}

type bytesPartialEncoder struct {
	bytesPartialDecoder
	writer BytesPartialWriter
}

var _ ArrayPartialWriter = (*bytesPartialEncoder)(nil)

func (w *bytesPartialEncoder) Erase(ctx context.Context) error {
	return w.writer.Erase(ctx)
}

func (w *bytesPartialEncoder) PartialEncode(
	ctx context.Context, idx indexer.Indexer, patch arraybytes.ArrayBytes,
) error {
	if err := idx.Validate(w.rep.Shape()); err != nil {
		return err
	}
	if err := patch.Validate(idx.NumElements(), w.rep.DataType()); err != nil {
		return err
	}
	elemSize, err := w.codec.elemSize(w.rep.DataType())
	if err != nil {
		return err
	}
	found, err := exists(ctx, w.next)
	if err != nil {
		return err
	}
	if !found {
		// No stored chunk to patch in place: materialize a fill chunk,
		// overlay, and write the whole encoding.
		chunk, err := arraybytes.NewFill(w.rep.DataType(), w.rep.NumElements(), w.rep.FillValue())
		if err != nil {
			return err
		}
		updated, err := arraybytes.Update(chunk, w.rep.Shape(), idx, patch, w.rep.DataType())
		if err != nil {
			return err
		}
		enc, err := w.codec.Encode(updated, w.rep, w.opts)
		if err != nil {
			return err
		}
		return w.writer.Put(ctx, enc.Bytes())
	}
	buf, _ := patch.Fixed()
	src := w.codec.convert(buf, w.rep.DataType()).Bytes()
	var off uint64
	return idx.ContiguousRuns(w.rep.Shape(), func(start, count uint64) error {
		n := count * elemSize
		if err := w.writer.WriteAt(ctx, start*elemSize, src[off:off+n]); err != nil {
			return err
		}
		off += n
		return nil
	})
}
