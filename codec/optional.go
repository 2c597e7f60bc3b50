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

// OptionalCodec is the "optional" array-to-bytes codec for nullable element
// types: a presence mask and a dense data region, each encoded through its
// own sub-chain and framed like the vlen codec (the encoded mask length as
// a u64 little-endian prefix or suffix per mask_location).
//
// The data region holds every slot densely; absent slots carry placeholder
// content (fill bytes for fixed inner types, zero-length elements for
// variable ones) that decode never interprets. Nested optional types recurse:
// the data region of Option<Option<T>> is itself optional-encoded.
type OptionalCodec struct {
	maskChain *Chain // nil means the default packbits mask chain
	dataChain *Chain // nil means a default chain chosen by inner type
	location  IndexLocation
}

var _ ArrayToBytesCodec = (*OptionalCodec)(nil)

type optionalConfig struct {
	MaskCodecs   []Metadata `json:"mask_codecs,omitempty"`
	DataCodecs   []Metadata `json:"data_codecs,omitempty"`
	MaskLocation string     `json:"mask_location,omitempty"`
}

func init() {
	registerBuiltin("optional", func(config json.RawMessage) (Codec, error) {
		var cfg optionalConfig
		if err := decodeConfig("optional", config, &cfg); err != nil {
			return nil, err
		}
		var maskChain, dataChain *Chain
		var err error
		if len(cfg.MaskCodecs) > 0 {
			if maskChain, err = NewChainFromMetadata(cfg.MaskCodecs); err != nil {
				return nil, base.ConfigErrorf("codec \"optional\": %v", err)
			}
		}
		if len(cfg.DataCodecs) > 0 {
			if dataChain, err = NewChainFromMetadata(cfg.DataCodecs); err != nil {
				return nil, base.ConfigErrorf("codec \"optional\": %v", err)
			}
		}
		location, err := parseIndexLocation("optional", cfg.MaskLocation, IndexLocationStart)
		if err != nil {
			return nil, err
		}
		return NewOptionalCodec(maskChain, dataChain, location), nil
	})
}

// NewOptionalCodec constructs the optional codec. A nil maskChain defaults
// to bit-packing the mask; a nil dataChain defaults to the natural chain
// for the inner data type.
func NewOptionalCodec(maskChain, dataChain *Chain, location IndexLocation) *OptionalCodec {
	return &OptionalCodec{maskChain: maskChain, dataChain: dataChain, location: location}
}

// Name implements Codec.
func (c *OptionalCodec) Name() string { return "optional" }

// Configuration implements Codec.
func (c *OptionalCodec) Configuration() map[string]any {
	cfg := optionalConfig{MaskLocation: c.location.String()}
	if c.maskChain != nil {
		cfg.MaskCodecs = c.maskChain.Metadata()
	}
	if c.dataChain != nil {
		cfg.DataCodecs = c.dataChain.Metadata()
	}
	return marshalConfig(cfg)
}

// PartialDecodeCapability implements Codec.
func (c *OptionalCodec) PartialDecodeCapability() PartialDecodeCapability {
	return PartialDecodeCapability{}
}

// PartialEncodeCapability implements Codec.
func (c *OptionalCodec) PartialEncodeCapability() PartialEncodeCapability {
	return PartialEncodeCapability{}
}

// MaskLocation returns the configured placement of the mask region.
func (c *OptionalCodec) MaskLocation() IndexLocation { return c.location }

// resolveMaskChain returns the configured mask chain, or a packbits chain.
func (c *OptionalCodec) resolveMaskChain() (*Chain, error) {
	if c.maskChain != nil {
		return c.maskChain, nil
	}
	pb, err := NewPackbitsCodec(nil, nil)
	if err != nil {
		return nil, err
	}
	return NewChain(nil, pb, nil)
}

// resolveDataChain returns the configured data chain, or the natural chain
// for the inner data type: optional recurses, variable goes through vlen,
// fixed through bytes.
func (c *OptionalCodec) resolveDataChain(inner dtype.DataType) (*Chain, error) {
	if c.dataChain != nil {
		return c.dataChain, nil
	}
	switch {
	case inner.IsOptional():
		return NewChain(nil, NewOptionalCodec(nil, nil, c.location), nil)
	case inner.IsVariable():
		vlen, err := NewVlenCodec(nil, nil, dtype.Uint64, IndexLocationEnd)
		if err != nil {
			return nil, err
		}
		return NewChain(nil, vlen, nil)
	default:
		return NewChain(nil, NewBytesCodec(EndianLittle), nil)
	}
}

// reps resolves the sub-chunk representations: the bool mask chunk and the
// inner data chunk, both with the outer chunk's shape.
func (c *OptionalCodec) reps(decoded ChunkRep) (maskRep, innerRep ChunkRep, err error) {
	inner, ok := decoded.DataType().OptionalInner()
	if !ok {
		return ChunkRep{}, ChunkRep{}, base.ConfigErrorf(
			"codec \"optional\" requires an optional data type, got %s", decoded.DataType())
	}
	_, innerFill, err := decoded.DataType().SplitOptionalFill(decoded.FillValue())
	if err != nil {
		return ChunkRep{}, ChunkRep{}, err
	}
	maskRep, err = NewChunkRep(decoded.Shape(), dtype.Bool, dtype.NewFillValue([]byte{0}))
	if err != nil {
		return ChunkRep{}, ChunkRep{}, err
	}
	innerRep, err = NewChunkRep(decoded.Shape(), inner, innerFill)
	if err != nil {
		return ChunkRep{}, ChunkRep{}, err
	}
	return maskRep, innerRep, nil
}

// EncodedRep implements ArrayToBytesCodec.
func (c *OptionalCodec) EncodedRep(decoded ChunkRep) (BytesRep, error) {
	if _, _, err := c.reps(decoded); err != nil {
		return BytesRep{}, err
	}
	return UnboundedBytesRep(), nil
}

// Encode implements ArrayToBytesCodec.
func (c *OptionalCodec) Encode(
	b arraybytes.ArrayBytes, decoded ChunkRep, opts *Options,
) (arraybytes.Buf, error) {
	maskRep, innerRep, err := c.reps(decoded)
	if err != nil {
		return arraybytes.Buf{}, err
	}
	if err := b.Validate(decoded.NumElements(), decoded.DataType()); err != nil {
		return arraybytes.Buf{}, err
	}
	innerBytes, mask, err := b.Optional()
	if err != nil {
		return arraybytes.Buf{}, err
	}

	maskChain, err := c.resolveMaskChain()
	if err != nil {
		return arraybytes.Buf{}, err
	}
	maskEnc, err := maskChain.Encode(
		arraybytes.NewFixed(arraybytes.Borrowed(mask)), maskRep, opts)
	if err != nil {
		return arraybytes.Buf{}, err
	}

	dataChain, err := c.resolveDataChain(innerRep.DataType())
	if err != nil {
		return arraybytes.Buf{}, err
	}
	dataEnc, err := dataChain.Encode(innerBytes, innerRep, opts)
	if err != nil {
		return arraybytes.Buf{}, err
	}
	return arraybytes.Owned(
		packIndexed(maskEnc.Bytes(), dataEnc.Bytes(), c.location)), nil
}

// Decode implements ArrayToBytesCodec. Data bytes at masked-off slots are
// carried as placeholders and never interpreted.
func (c *OptionalCodec) Decode(
	raw arraybytes.Buf, decoded ChunkRep, opts *Options,
) (arraybytes.ArrayBytes, error) {
	maskRep, innerRep, err := c.reps(decoded)
	if err != nil {
		return arraybytes.ArrayBytes{}, err
	}
	maskRegion, dataRegion, err := unpackIndexed("optional", raw.Bytes(), c.location)
	if err != nil {
		return arraybytes.ArrayBytes{}, err
	}

	maskChain, err := c.resolveMaskChain()
	if err != nil {
		return arraybytes.ArrayBytes{}, err
	}
	maskDec, err := maskChain.Decode(arraybytes.Borrowed(maskRegion), maskRep, opts)
	if err != nil {
		return arraybytes.ArrayBytes{}, err
	}
	maskBuf, err := maskDec.Fixed()
	if err != nil {
		return arraybytes.ArrayBytes{}, err
	}

	dataChain, err := c.resolveDataChain(innerRep.DataType())
	if err != nil {
		return arraybytes.ArrayBytes{}, err
	}
	innerBytes, err := dataChain.Decode(arraybytes.Borrowed(dataRegion), innerRep, opts)
	if err != nil {
		return arraybytes.ArrayBytes{}, err
	}
	out, err := arraybytes.NewOptional(innerBytes, maskBuf.Bytes())
	if err != nil {
		return arraybytes.ArrayBytes{}, base.MarkCorruptionError(err)
	}
	return out, nil
}

// PartialDecoder implements ArrayToBytesCodec via the full-decode default
// with a cached stream.
func (c *OptionalCodec) PartialDecoder(
	next BytesPartialReader, decoded ChunkRep, opts *Options,
) (ArrayPartialReader, error) {
	if _, _, err := c.reps(decoded); err != nil {
		return nil, err
	}
	return newABPartialDecoderDefault(c, NewCachedBytesReader(next), decoded, opts), nil
}

// PartialEncoder implements ArrayToBytesCodec via the read-modify-write
// default.
func (c *OptionalCodec) PartialEncoder(
	next BytesPartialWriter, decoded ChunkRep, opts *Options,
) (ArrayPartialWriter, error) {
	if _, _, err := c.reps(decoded); err != nil {
		return nil, err
	}
	return newABPartialEncoderDefault(c, next, decoded, opts), nil
}

// RecommendedConcurrency implements ArrayToBytesCodec.
func (c *OptionalCodec) RecommendedConcurrency(decoded ChunkRep) (RecommendedConcurrency, error) {
	return ConcurrencyOf(1), nil
}
