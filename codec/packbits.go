// Copyright 2026 The Zarr-Go Authors. All rights reserved. Use of this source
// code is governed by a BSD-style license that can be found in the LICENSE
// file.

package codec

import (
	"encoding/json"

	"github.com/zarrgo/zarr/arraybytes"
	"github.com/zarrgo/zarr/dtype"
	"github.com/zarrgo/zarr/internal/base"
)

// PackbitsCodec is the "packbits" array-to-bytes codec: elements are
// bit-packed LSB-first into a byte stream, padded with zero bits to a whole
// byte. A bool element contributes a single bit; other fixed types
// contribute their full bit width, optionally narrowed to the inclusive
// window [first_bit, last_bit] of each element's little-endian bits.
type PackbitsCodec struct {
	firstBit, lastBit *int
}

var _ ArrayToBytesCodec = (*PackbitsCodec)(nil)

type packbitsConfig struct {
	FirstBit *int `json:"first_bit,omitempty"`
	LastBit  *int `json:"last_bit,omitempty"`
}

func init() {
	registerBuiltin("packbits", func(config json.RawMessage) (Codec, error) {
		var cfg packbitsConfig
		if err := decodeConfig("packbits", config, &cfg); err != nil {
			return nil, err
		}
		return NewPackbitsCodec(cfg.FirstBit, cfg.LastBit)
	})
}

// NewPackbitsCodec constructs the packbits codec. firstBit and lastBit are
// optional; when set, both must be set and 0 <= firstBit <= lastBit.
func NewPackbitsCodec(firstBit, lastBit *int) (*PackbitsCodec, error) {
	if (firstBit == nil) != (lastBit == nil) {
		return nil, base.ConfigErrorf(
			"codec \"packbits\": first_bit and last_bit must be set together")
	}
	if firstBit != nil {
		if *firstBit < 0 || *lastBit < *firstBit {
			return nil, base.ConfigErrorf(
				"codec \"packbits\": invalid bit window [%d, %d]", *firstBit, *lastBit)
		}
	}
	return &PackbitsCodec{firstBit: firstBit, lastBit: lastBit}, nil
}

// Name implements Codec.
func (c *PackbitsCodec) Name() string { return "packbits" }

// Configuration implements Codec.
func (c *PackbitsCodec) Configuration() map[string]any {
	if c.firstBit == nil {
		return nil
	}
	return marshalConfig(packbitsConfig{FirstBit: c.firstBit, LastBit: c.lastBit})
}

// PartialDecodeCapability implements Codec. Sub-byte elements have no
// cheap byte-range mapping; partial decode falls back to full decode.
func (c *PackbitsCodec) PartialDecodeCapability() PartialDecodeCapability {
	return PartialDecodeCapability{}
}

// PartialEncodeCapability implements Codec.
func (c *PackbitsCodec) PartialEncodeCapability() PartialEncodeCapability {
	return PartialEncodeCapability{}
}

// bitWindow resolves the packed bit window for dt: the first packed bit and
// the packed width in bits.
func (c *PackbitsCodec) bitWindow(dt dtype.DataType) (first, width int, err error) {
	if dt.IsOptional() {
		return 0, 0, base.ConfigErrorf(
			"codec \"packbits\" cannot encode optional data type %s", dt)
	}
	bits, ok := dt.SizeBits()
	if !ok {
		return 0, 0, base.ConfigErrorf(
			"codec \"packbits\" cannot encode variable-size data type %s", dt)
	}
	if c.firstBit == nil {
		return 0, bits, nil
	}
	if *c.lastBit >= bits {
		return 0, 0, base.ConfigErrorf(
			"codec \"packbits\": bit window [%d, %d] exceeds %s width of %d bits",
			*c.firstBit, *c.lastBit, dt, bits)
	}
	return *c.firstBit, *c.lastBit - *c.firstBit + 1, nil
}

// EncodedRep implements ArrayToBytesCodec.
func (c *PackbitsCodec) EncodedRep(decoded ChunkRep) (BytesRep, error) {
	_, width, err := c.bitWindow(decoded.DataType())
	if err != nil {
		return BytesRep{}, err
	}
	totalBits := decoded.NumElements() * uint64(width)
	return FixedBytesRep((totalBits + 7) / 8), nil
}

// Encode implements ArrayToBytesCodec.
func (c *PackbitsCodec) Encode(
	b arraybytes.ArrayBytes, decoded ChunkRep, opts *Options,
) (arraybytes.Buf, error) {
	first, width, err := c.bitWindow(decoded.DataType())
	if err != nil {
		return arraybytes.Buf{}, err
	}
	if err := b.Validate(decoded.NumElements(), decoded.DataType()); err != nil {
		return arraybytes.Buf{}, err
	}
	buf, err := b.Fixed()
	if err != nil {
		return arraybytes.Buf{}, err
	}
	src := buf.Bytes()
	elemSize := decoded.DataType().MustFixedSize()
	n := decoded.NumElements()
	out := make([]byte, (n*uint64(width)+7)/8)
	bitPos := uint64(0)
	for e := uint64(0); e < n; e++ {
		elem := src[e*uint64(elemSize) : (e+1)*uint64(elemSize)]
		for i := 0; i < width; i++ {
			bit := first + i
			if elem[bit/8]&(1<<(bit%8)) != 0 {
				out[bitPos/8] |= 1 << (bitPos % 8)
			}
			bitPos++
		}
	}
	return arraybytes.Owned(out), nil
}

// Decode implements ArrayToBytesCodec. Bits outside the configured window
// decode as zero.
func (c *PackbitsCodec) Decode(
	raw arraybytes.Buf, decoded ChunkRep, opts *Options,
) (arraybytes.ArrayBytes, error) {
	first, width, err := c.bitWindow(decoded.DataType())
	if err != nil {
		return arraybytes.ArrayBytes{}, err
	}
	n := decoded.NumElements()
	if want := (n*uint64(width) + 7) / 8; uint64(raw.Len()) != want {
		return arraybytes.ArrayBytes{}, base.DataErrorf(
			"codec \"packbits\": encoded length %d, want %d (%d elements of %d bits)",
			raw.Len(), want, n, width)
	}
	src := raw.Bytes()
	elemSize := decoded.DataType().MustFixedSize()
	out := make([]byte, n*uint64(elemSize))
	bitPos := uint64(0)
	for e := uint64(0); e < n; e++ {
		elem := out[e*uint64(elemSize) : (e+1)*uint64(elemSize)]
		for i := 0; i < width; i++ {
			if src[bitPos/8]&(1<<(bitPos%8)) != 0 {
				bit := first + i
				elem[bit/8] |= 1 << (bit % 8)
			}
			bitPos++
		}
	}
	return arraybytes.NewFixed(arraybytes.Owned(out)), nil
}

// PartialDecoder implements ArrayToBytesCodec via the full-decode default,
// with the stream cached across calls on one decoder.
func (c *PackbitsCodec) PartialDecoder(
	next BytesPartialReader, decoded ChunkRep, opts *Options,
) (ArrayPartialReader, error) {
	if _, _, err := c.bitWindow(decoded.DataType()); err != nil {
		return nil, err
	}
	return newABPartialDecoderDefault(c, NewCachedBytesReader(next), decoded, opts), nil
}

// PartialEncoder implements ArrayToBytesCodec via the read-modify-write
// default.
func (c *PackbitsCodec) PartialEncoder(
	next BytesPartialWriter, decoded ChunkRep, opts *Options,
) (ArrayPartialWriter, error) {
	if _, _, err := c.bitWindow(decoded.DataType()); err != nil {
		return nil, err
	}
	return newABPartialEncoderDefault(c, next, decoded, opts), nil
}

// RecommendedConcurrency implements ArrayToBytesCodec.
func (c *PackbitsCodec) RecommendedConcurrency(decoded ChunkRep) (RecommendedConcurrency, error) {
	return ConcurrencyOf(1), nil
}
