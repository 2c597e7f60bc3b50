// Copyright 2026 The Zarr-Go Authors. All rights reserved. Use of this source
// code is governed by a BSD-style license that can be found in the LICENSE
// file.

package codec

import (
	"encoding/json"

	"github.com/golang/snappy"

	"github.com/zarrgo/zarr/arraybytes"
	"github.com/zarrgo/zarr/internal/base"
)

// SnappyCodec is the "snappy" bytes-to-bytes codec (snappy block format).
type SnappyCodec struct{}

var _ BytesToBytesCodec = (*SnappyCodec)(nil)

func init() {
	registerBuiltin("snappy", func(config json.RawMessage) (Codec, error) {
		var cfg struct{}
		if err := decodeConfig("snappy", config, &cfg); err != nil {
			return nil, err
		}
		return NewSnappyCodec(), nil
	})
}

// NewSnappyCodec constructs the snappy codec.
func NewSnappyCodec() *SnappyCodec { return &SnappyCodec{} }

// Name implements Codec.
func (c *SnappyCodec) Name() string { return "snappy" }

// Configuration implements Codec.
func (c *SnappyCodec) Configuration() map[string]any { return nil }

// PartialDecodeCapability implements Codec.
func (c *SnappyCodec) PartialDecodeCapability() PartialDecodeCapability {
	return PartialDecodeCapability{}
}

// PartialEncodeCapability implements Codec.
func (c *SnappyCodec) PartialEncodeCapability() PartialEncodeCapability {
	return PartialEncodeCapability{}
}

// EncodedRep implements BytesToBytesCodec: the snappy block format carries
// a hard worst-case bound.
func (c *SnappyCodec) EncodedRep(decoded BytesRep) BytesRep {
	switch decoded.Kind {
	case BytesRepFixed, BytesRepBounded:
		return BoundedBytesRep(uint64(snappy.MaxEncodedLen(int(decoded.Size))))
	}
	return UnboundedBytesRep()
}

// Encode implements BytesToBytesCodec.
func (c *SnappyCodec) Encode(raw arraybytes.Buf, opts *Options) (arraybytes.Buf, error) {
	return arraybytes.Owned(snappy.Encode(nil, raw.Bytes())), nil
}

// Decode implements BytesToBytesCodec.
func (c *SnappyCodec) Decode(
	raw arraybytes.Buf, decoded BytesRep, opts *Options,
) (arraybytes.Buf, error) {
	out, err := snappy.Decode(nil, raw.Bytes())
	if err != nil {
		return arraybytes.Buf{}, base.CorruptionErrorf("codec \"snappy\": %v", err)
	}
	if err := checkDecodedSize("snappy", uint64(len(out)), decoded); err != nil {
		return arraybytes.Buf{}, err
	}
	return arraybytes.Owned(out), nil
}

// PartialDecoder implements BytesToBytesCodec via the full-decode default.
func (c *SnappyCodec) PartialDecoder(
	next BytesPartialReader, decoded BytesRep, opts *Options,
) (BytesPartialReader, error) {
	return newBBPartialDecoderDefault(c, next, decoded, opts), nil
}

// PartialEncoder implements BytesToBytesCodec via the read-modify-write
// default.
func (c *SnappyCodec) PartialEncoder(
	next BytesPartialWriter, decoded BytesRep, opts *Options,
) (BytesPartialWriter, error) {
	return newBBPartialEncoderDefault(c, next, decoded, opts), nil
}
