// Copyright 2026 The Zarr-Go Authors. All rights reserved. Use of this source
// code is governed by a BSD-style license that can be found in the LICENSE
// file.

package codec

import (
	"bytes"
	"encoding/json"
	"io"

	"github.com/klauspost/compress/zlib"

	"github.com/zarrgo/zarr/arraybytes"
	"github.com/zarrgo/zarr/internal/base"
)

// ZlibCodec is the "zlib" bytes-to-bytes codec: the same deflate stream as
// gzip, framed with the lighter zlib wrapper.
type ZlibCodec struct {
	level int
}

var _ BytesToBytesCodec = (*ZlibCodec)(nil)

type zlibConfig struct {
	Level int `json:"level"`
}

func init() {
	registerBuiltin("zlib", func(config json.RawMessage) (Codec, error) {
		// An absent level defaults to 6, the level flate's DefaultCompression
		// resolves to.
		cfg := zlibConfig{Level: 6}
		if err := decodeConfig("zlib", config, &cfg); err != nil {
			return nil, err
		}
		return NewZlibCodec(cfg.Level)
	})
}

// NewZlibCodec constructs the zlib codec. Levels 0 through 9 are accepted.
func NewZlibCodec(level int) (*ZlibCodec, error) {
	if level < zlib.NoCompression || level > zlib.BestCompression {
		return nil, base.ConfigErrorf("codec \"zlib\": invalid level %d", level)
	}
	return &ZlibCodec{level: level}, nil
}

// Name implements Codec.
func (c *ZlibCodec) Name() string { return "zlib" }

// Configuration implements Codec.
func (c *ZlibCodec) Configuration() map[string]any {
	return marshalConfig(zlibConfig{Level: c.level})
}

// PartialDecodeCapability implements Codec.
func (c *ZlibCodec) PartialDecodeCapability() PartialDecodeCapability {
	return PartialDecodeCapability{}
}

// PartialEncodeCapability implements Codec.
func (c *ZlibCodec) PartialEncodeCapability() PartialEncodeCapability {
	return PartialEncodeCapability{}
}

// EncodedRep implements BytesToBytesCodec.
func (c *ZlibCodec) EncodedRep(decoded BytesRep) BytesRep {
	return UnboundedBytesRep()
}

// Encode implements BytesToBytesCodec.
func (c *ZlibCodec) Encode(raw arraybytes.Buf, opts *Options) (arraybytes.Buf, error) {
	var buf bytes.Buffer
	w, err := zlib.NewWriterLevel(&buf, c.level)
	if err != nil {
		return arraybytes.Buf{}, base.ConfigErrorf("codec \"zlib\": %v", err)
	}
	if _, err := w.Write(raw.Bytes()); err != nil {
		return arraybytes.Buf{}, err
	}
	if err := w.Close(); err != nil {
		return arraybytes.Buf{}, err
	}
	return arraybytes.Owned(buf.Bytes()), nil
}

// Decode implements BytesToBytesCodec.
func (c *ZlibCodec) Decode(
	raw arraybytes.Buf, decoded BytesRep, opts *Options,
) (arraybytes.Buf, error) {
	r, err := zlib.NewReader(bytes.NewReader(raw.Bytes()))
	if err != nil {
		return arraybytes.Buf{}, base.CorruptionErrorf("codec \"zlib\": %v", err)
	}
	defer r.Close()
	out, err := io.ReadAll(r)
	if err != nil {
		return arraybytes.Buf{}, base.CorruptionErrorf("codec \"zlib\": %v", err)
	}
	if err := checkDecodedSize("zlib", uint64(len(out)), decoded); err != nil {
		return arraybytes.Buf{}, err
	}
	return arraybytes.Owned(out), nil
}

// PartialDecoder implements BytesToBytesCodec via the full-decode default.
func (c *ZlibCodec) PartialDecoder(
	next BytesPartialReader, decoded BytesRep, opts *Options,
) (BytesPartialReader, error) {
	return newBBPartialDecoderDefault(c, next, decoded, opts), nil
}

// PartialEncoder implements BytesToBytesCodec via the read-modify-write
// default.
func (c *ZlibCodec) PartialEncoder(
	next BytesPartialWriter, decoded BytesRep, opts *Options,
) (BytesPartialWriter, error) {
	return newBBPartialEncoderDefault(c, next, decoded, opts), nil
}
