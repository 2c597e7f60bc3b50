// Copyright 2026 The Zarr-Go Authors. All rights reserved. Use of this source
// code is governed by a BSD-style license that can be found in the LICENSE
// file.

package codec

import (
	"encoding/json"

	"github.com/klauspost/compress/zstd"

	"github.com/zarrgo/zarr/arraybytes"
	"github.com/zarrgo/zarr/internal/base"
)

// ZstdCodec is the "zstd" bytes-to-bytes codec. The encoder and decoder are
// created once per codec instance; EncodeAll and DecodeAll are safe for
// concurrent use.
type ZstdCodec struct {
	level    int
	checksum bool
	enc      *zstd.Encoder
	dec      *zstd.Decoder
}

var _ BytesToBytesCodec = (*ZstdCodec)(nil)

type zstdConfig struct {
	Level    int  `json:"level"`
	Checksum bool `json:"checksum,omitempty"`
}

func init() {
	registerBuiltin("zstd", func(config json.RawMessage) (Codec, error) {
		cfg := zstdConfig{Level: 3}
		if err := decodeConfig("zstd", config, &cfg); err != nil {
			return nil, err
		}
		return NewZstdCodec(cfg.Level, cfg.Checksum)
	})
}

// NewZstdCodec constructs the zstd codec. level follows the standard zstd
// level scale; checksum adds the frame's content checksum.
func NewZstdCodec(level int, checksum bool) (*ZstdCodec, error) {
	enc, err := zstd.NewWriter(nil,
		zstd.WithEncoderLevel(zstd.EncoderLevelFromZstd(level)),
		zstd.WithEncoderCRC(checksum))
	if err != nil {
		return nil, base.ConfigErrorf("codec \"zstd\": %v", err)
	}
	dec, err := zstd.NewReader(nil)
	if err != nil {
		return nil, base.ConfigErrorf("codec \"zstd\": %v", err)
	}
	return &ZstdCodec{level: level, checksum: checksum, enc: enc, dec: dec}, nil
}

// Name implements Codec.
func (c *ZstdCodec) Name() string { return "zstd" }

// Configuration implements Codec.
func (c *ZstdCodec) Configuration() map[string]any {
	return marshalConfig(zstdConfig{Level: c.level, Checksum: c.checksum})
}

// PartialDecodeCapability implements Codec.
func (c *ZstdCodec) PartialDecodeCapability() PartialDecodeCapability {
	return PartialDecodeCapability{}
}

// PartialEncodeCapability implements Codec.
func (c *ZstdCodec) PartialEncodeCapability() PartialEncodeCapability {
	return PartialEncodeCapability{}
}

// EncodedRep implements BytesToBytesCodec.
func (c *ZstdCodec) EncodedRep(decoded BytesRep) BytesRep {
	return UnboundedBytesRep()
}

// Encode implements BytesToBytesCodec.
func (c *ZstdCodec) Encode(raw arraybytes.Buf, opts *Options) (arraybytes.Buf, error) {
	return arraybytes.Owned(c.enc.EncodeAll(raw.Bytes(), nil)), nil
}

// Decode implements BytesToBytesCodec.
func (c *ZstdCodec) Decode(
	raw arraybytes.Buf, decoded BytesRep, opts *Options,
) (arraybytes.Buf, error) {
	var dst []byte
	if decoded.Kind != BytesRepUnbounded {
		dst = make([]byte, 0, decoded.Size)
	}
	out, err := c.dec.DecodeAll(raw.Bytes(), dst)
	if err != nil {
		return arraybytes.Buf{}, base.CorruptionErrorf("codec \"zstd\": %v", err)
	}
	if err := checkDecodedSize("zstd", uint64(len(out)), decoded); err != nil {
		return arraybytes.Buf{}, err
	}
	return arraybytes.Owned(out), nil
}

// PartialDecoder implements BytesToBytesCodec via the full-decode default.
func (c *ZstdCodec) PartialDecoder(
	next BytesPartialReader, decoded BytesRep, opts *Options,
) (BytesPartialReader, error) {
	return newBBPartialDecoderDefault(c, next, decoded, opts), nil
}

// PartialEncoder implements BytesToBytesCodec via the read-modify-write
// default.
func (c *ZstdCodec) PartialEncoder(
	next BytesPartialWriter, decoded BytesRep, opts *Options,
) (BytesPartialWriter, error) {
	return newBBPartialEncoderDefault(c, next, decoded, opts), nil
}
