// Copyright 2026 The Zarr-Go Authors. All rights reserved. Use of this source
// code is governed by a BSD-style license that can be found in the LICENSE
// file.

package codec

import (
	"bytes"
	"encoding/json"
	"io"

	"github.com/klauspost/compress/gzip"

	"github.com/zarrgo/zarr/arraybytes"
	"github.com/zarrgo/zarr/internal/base"
)

// GzipCodec is the "gzip" bytes-to-bytes codec.
type GzipCodec struct {
	level int
}

var _ BytesToBytesCodec = (*GzipCodec)(nil)

type gzipConfig struct {
	Level int `json:"level"`
}

func init() {
	registerBuiltin("gzip", func(config json.RawMessage) (Codec, error) {
		// An absent level defaults to 6, the level flate's DefaultCompression
		// resolves to.
		cfg := gzipConfig{Level: 6}
		if err := decodeConfig("gzip", config, &cfg); err != nil {
			return nil, err
		}
		return NewGzipCodec(cfg.Level)
	})
}

// NewGzipCodec constructs the gzip codec. Levels 0 through 9 are accepted.
func NewGzipCodec(level int) (*GzipCodec, error) {
	if level < gzip.NoCompression || level > gzip.BestCompression {
		return nil, base.ConfigErrorf("codec \"gzip\": invalid level %d", level)
	}
	return &GzipCodec{level: level}, nil
}

// Name implements Codec.
func (c *GzipCodec) Name() string { return "gzip" }

// Configuration implements Codec.
func (c *GzipCodec) Configuration() map[string]any {
	return marshalConfig(gzipConfig{Level: c.level})
}

// PartialDecodeCapability implements Codec.
func (c *GzipCodec) PartialDecodeCapability() PartialDecodeCapability {
	return PartialDecodeCapability{}
}

// PartialEncodeCapability implements Codec.
func (c *GzipCodec) PartialEncodeCapability() PartialEncodeCapability {
	return PartialEncodeCapability{}
}

// EncodedRep implements BytesToBytesCodec.
func (c *GzipCodec) EncodedRep(decoded BytesRep) BytesRep {
	return UnboundedBytesRep()
}

// Encode implements BytesToBytesCodec.
func (c *GzipCodec) Encode(raw arraybytes.Buf, opts *Options) (arraybytes.Buf, error) {
	var buf bytes.Buffer
	w, err := gzip.NewWriterLevel(&buf, c.level)
	if err != nil {
		return arraybytes.Buf{}, base.ConfigErrorf("codec \"gzip\": %v", err)
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
func (c *GzipCodec) Decode(
	raw arraybytes.Buf, decoded BytesRep, opts *Options,
) (arraybytes.Buf, error) {
	r, err := gzip.NewReader(bytes.NewReader(raw.Bytes()))
	if err != nil {
		return arraybytes.Buf{}, base.CorruptionErrorf("codec \"gzip\": %v", err)
	}
	defer r.Close()
	out, err := io.ReadAll(r)
	if err != nil {
		return arraybytes.Buf{}, base.CorruptionErrorf("codec \"gzip\": %v", err)
	}
	if err := checkDecodedSize("gzip", uint64(len(out)), decoded); err != nil {
		return arraybytes.Buf{}, err
	}
	return arraybytes.Owned(out), nil
}

// PartialDecoder implements BytesToBytesCodec via the full-decode default.
func (c *GzipCodec) PartialDecoder(
	next BytesPartialReader, decoded BytesRep, opts *Options,
) (BytesPartialReader, error) {
	return newBBPartialDecoderDefault(c, next, decoded, opts), nil
}

// PartialEncoder implements BytesToBytesCodec via the read-modify-write
// default.
func (c *GzipCodec) PartialEncoder(
	next BytesPartialWriter, decoded BytesRep, opts *Options,
) (BytesPartialWriter, error) {
	return newBBPartialEncoderDefault(c, next, decoded, opts), nil
}

// checkDecodedSize validates a decompressed length against the expected
// decoded representation.
func checkDecodedSize(name string, got uint64, decoded BytesRep) error {
	switch decoded.Kind {
	case BytesRepFixed:
		if got != decoded.Size {
			return base.CorruptionErrorf(
				"codec %q: decoded to %d bytes, want %d", name, got, decoded.Size)
		}
	case BytesRepBounded:
		if got > decoded.Size {
			return base.CorruptionErrorf(
				"codec %q: decoded to %d bytes, want at most %d", name, got, decoded.Size)
		}
	}
	return nil
}
