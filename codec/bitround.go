// Copyright 2026 The Zarr-Go Authors. All rights reserved. Use of this source
// code is governed by a BSD-style license that can be found in the LICENSE
// file.

package codec

import (
	"context"
	"encoding/binary"
	"encoding/json"

	"github.com/zarrgo/zarr/arraybytes"
	"github.com/zarrgo/zarr/dtype"
	"github.com/zarrgo/zarr/indexer"
	"github.com/zarrgo/zarr/internal/base"
)

// BitroundCodec is the "bitround" array-to-array codec: float mantissas are
// rounded to keepbits explicit bits (round half to even), zeroing the rest
// so downstream compression bites harder. Decode is the identity; the
// transform is lossy.
type BitroundCodec struct {
	keepbits int
}

var _ ArrayToArrayCodec = (*BitroundCodec)(nil)

type bitroundConfig struct {
	Keepbits int `json:"keepbits"`
}

func init() {
	registerBuiltin("bitround", func(config json.RawMessage) (Codec, error) {
		var cfg bitroundConfig
		if err := decodeConfig("bitround", config, &cfg); err != nil {
			return nil, err
		}
		return NewBitroundCodec(cfg.Keepbits)
	})
}

// NewBitroundCodec constructs the bitround codec.
func NewBitroundCodec(keepbits int) (*BitroundCodec, error) {
	if keepbits < 0 {
		return nil, base.ConfigErrorf("codec \"bitround\": negative keepbits %d", keepbits)
	}
	return &BitroundCodec{keepbits: keepbits}, nil
}

// Name implements Codec.
func (c *BitroundCodec) Name() string { return "bitround" }

// Configuration implements Codec.
func (c *BitroundCodec) Configuration() map[string]any {
	return marshalConfig(bitroundConfig{Keepbits: c.keepbits})
}

// PartialDecodeCapability implements Codec: decode is the identity, so
// indexers pass straight through.
func (c *BitroundCodec) PartialDecodeCapability() PartialDecodeCapability {
	return PartialDecodeCapability{PartialRead: true, PartialDecode: true}
}

// PartialEncodeCapability implements Codec.
func (c *BitroundCodec) PartialEncodeCapability() PartialEncodeCapability {
	return PartialEncodeCapability{PartialEncode: true}
}

// mantissaBits returns the mantissa width for supported data types.
func (c *BitroundCodec) mantissaBits(dt dtype.DataType) (int, error) {
	switch dt.Kind() {
	case dtype.KindFloat32:
		return 23, nil
	case dtype.KindFloat64:
		return 52, nil
	}
	return 0, base.ConfigErrorf("codec \"bitround\" cannot encode data type %s", dt)
}

// EncodedRep implements ArrayToArrayCodec.
func (c *BitroundCodec) EncodedRep(decoded ChunkRep) (ChunkRep, error) {
	if _, err := c.mantissaBits(decoded.DataType()); err != nil {
		return ChunkRep{}, err
	}
	return decoded, nil
}

// round rounds the low maskbits mantissa bits of one float's integer
// representation, half to even.
func round(bits uint64, maskbits int) uint64 {
	if maskbits <= 0 {
		return bits
	}
	mask := ^uint64(0) >> maskbits << maskbits
	halfQuantum := uint64(1)<<(maskbits-1) - 1
	bits += (bits >> maskbits & 1) + halfQuantum
	return bits & mask
}

// Encode implements ArrayToArrayCodec.
func (c *BitroundCodec) Encode(
	b arraybytes.ArrayBytes, decoded ChunkRep, opts *Options,
) (arraybytes.ArrayBytes, error) {
	mantissa, err := c.mantissaBits(decoded.DataType())
	if err != nil {
		return arraybytes.ArrayBytes{}, err
	}
	if err := b.Validate(decoded.NumElements(), decoded.DataType()); err != nil {
		return arraybytes.ArrayBytes{}, err
	}
	maskbits := mantissa - c.keepbits
	if maskbits <= 0 {
		return b, nil
	}
	buf, err := b.Fixed()
	if err != nil {
		return arraybytes.ArrayBytes{}, err
	}
	data := append([]byte(nil), buf.Bytes()...)
	if decoded.DataType().Kind() == dtype.KindFloat32 {
		for i := 0; i+4 <= len(data); i += 4 {
			v := binary.LittleEndian.Uint32(data[i:])
			binary.LittleEndian.PutUint32(data[i:], uint32(round(uint64(v), maskbits)))
		}
	} else {
		for i := 0; i+8 <= len(data); i += 8 {
			v := binary.LittleEndian.Uint64(data[i:])
			binary.LittleEndian.PutUint64(data[i:], round(v, maskbits))
		}
	}
	return arraybytes.NewFixed(arraybytes.Owned(data)), nil
}

// Decode implements ArrayToArrayCodec: the identity, rounding is lossy.
func (c *BitroundCodec) Decode(
	b arraybytes.ArrayBytes, decoded ChunkRep, opts *Options,
) (arraybytes.ArrayBytes, error) {
	if _, err := c.mantissaBits(decoded.DataType()); err != nil {
		return arraybytes.ArrayBytes{}, err
	}
	if err := b.Validate(decoded.NumElements(), decoded.DataType()); err != nil {
		return arraybytes.ArrayBytes{}, err
	}
	return b, nil
}

// PartialDecoder implements ArrayToArrayCodec: a pure passthrough.
func (c *BitroundCodec) PartialDecoder(
	next ArrayPartialReader, decoded ChunkRep, opts *Options,
) (ArrayPartialReader, error) {
	if _, err := c.mantissaBits(decoded.DataType()); err != nil {
		return nil, err
	}
	return next, nil
}

// PartialEncoder implements ArrayToArrayCodec: the patch is rounded, then
// passed through.
func (c *BitroundCodec) PartialEncoder(
	next ArrayPartialWriter, decoded ChunkRep, opts *Options,
) (ArrayPartialWriter, error) {
	if _, err := c.mantissaBits(decoded.DataType()); err != nil {
		return nil, err
	}
	return &bitroundPartialEncoder{ArrayPartialWriter: next, codec: c, rep: decoded, opts: opts}, nil
}

// RecommendedConcurrency implements ArrayToArrayCodec.
func (c *BitroundCodec) RecommendedConcurrency(decoded ChunkRep) (RecommendedConcurrency, error) {
	return ConcurrencyOf(1), nil
}

type bitroundPartialEncoder struct {
	ArrayPartialWriter
	codec *BitroundCodec
	rep   ChunkRep
	opts  *Options
}

func (w *bitroundPartialEncoder) PartialEncode(
	ctx context.Context, idx indexer.Indexer, patch arraybytes.ArrayBytes,
) error {
	if idx.NumElements() == 0 {
		return w.ArrayPartialWriter.PartialEncode(ctx, idx, patch)
	}
	patchRep, err := NewChunkRep([]uint64{idx.NumElements()}, w.rep.DataType(), w.rep.FillValue())
	if err != nil {
		return err
	}
	rounded, err := w.codec.Encode(patch, patchRep, w.opts)
	if err != nil {
		return err
	}
	return w.ArrayPartialWriter.PartialEncode(ctx, idx, rounded)
}
