// Copyright 2026 The Zarr-Go Authors. All rights reserved. Use of this source
// code is governed by a BSD-style license that can be found in the LICENSE
// file.

package codec

import (
	"encoding/json"

	"github.com/zarrgo/zarr/arraybytes"
	"github.com/zarrgo/zarr/internal/base"
)

// ShuffleCodec is the "shuffle" bytes-to-bytes codec: a byte transpose that
// groups the i-th byte of every element together, which often exposes
// redundancy to a downstream compressor. Size-preserving; any tail bytes
// beyond a whole number of elements pass through unchanged.
type ShuffleCodec struct {
	elementSize int
}

var _ BytesToBytesCodec = (*ShuffleCodec)(nil)

type shuffleConfig struct {
	ElementSize int `json:"elementsize"`
}

func init() {
	registerBuiltin("shuffle", func(config json.RawMessage) (Codec, error) {
		var cfg shuffleConfig
		if err := decodeConfig("shuffle", config, &cfg); err != nil {
			return nil, err
		}
		return NewShuffleCodec(cfg.ElementSize)
	})
}

// NewShuffleCodec constructs the shuffle codec for elements of size bytes.
func NewShuffleCodec(size int) (*ShuffleCodec, error) {
	if size <= 0 {
		return nil, base.ConfigErrorf("codec \"shuffle\": invalid elementsize %d", size)
	}
	return &ShuffleCodec{elementSize: size}, nil
}

// Name implements Codec.
func (c *ShuffleCodec) Name() string { return "shuffle" }

// Configuration implements Codec.
func (c *ShuffleCodec) Configuration() map[string]any {
	return marshalConfig(shuffleConfig{ElementSize: c.elementSize})
}

// PartialDecodeCapability implements Codec.
func (c *ShuffleCodec) PartialDecodeCapability() PartialDecodeCapability {
	return PartialDecodeCapability{}
}

// PartialEncodeCapability implements Codec.
func (c *ShuffleCodec) PartialEncodeCapability() PartialEncodeCapability {
	return PartialEncodeCapability{}
}

// EncodedRep implements BytesToBytesCodec: shuffling preserves size.
func (c *ShuffleCodec) EncodedRep(decoded BytesRep) BytesRep { return decoded }

func (c *ShuffleCodec) shuffle(src []byte, unshuffle bool) []byte {
	es := c.elementSize
	if es == 1 || len(src) < es {
		return append([]byte(nil), src...)
	}
	n := len(src) / es
	dst := make([]byte, len(src))
	for j := 0; j < n; j++ {
		for k := 0; k < es; k++ {
			if unshuffle {
				dst[j*es+k] = src[k*n+j]
			} else {
				dst[k*n+j] = src[j*es+k]
			}
		}
	}
	copy(dst[n*es:], src[n*es:])
	return dst
}

// Encode implements BytesToBytesCodec.
func (c *ShuffleCodec) Encode(raw arraybytes.Buf, opts *Options) (arraybytes.Buf, error) {
	return arraybytes.Owned(c.shuffle(raw.Bytes(), false)), nil
}

// Decode implements BytesToBytesCodec.
func (c *ShuffleCodec) Decode(
	raw arraybytes.Buf, decoded BytesRep, opts *Options,
) (arraybytes.Buf, error) {
	if decoded.Kind == BytesRepFixed && uint64(raw.Len()) != decoded.Size {
		return arraybytes.Buf{}, base.DataErrorf(
			"codec \"shuffle\": encoded length %d, want %d", raw.Len(), decoded.Size)
	}
	return arraybytes.Owned(c.shuffle(raw.Bytes(), true)), nil
}

// PartialDecoder implements BytesToBytesCodec via the full-decode default.
func (c *ShuffleCodec) PartialDecoder(
	next BytesPartialReader, decoded BytesRep, opts *Options,
) (BytesPartialReader, error) {
	return newBBPartialDecoderDefault(c, next, decoded, opts), nil
}

// PartialEncoder implements BytesToBytesCodec via the read-modify-write
// default.
func (c *ShuffleCodec) PartialEncoder(
	next BytesPartialWriter, decoded BytesRep, opts *Options,
) (BytesPartialWriter, error) {
	return newBBPartialEncoderDefault(c, next, decoded, opts), nil
}
