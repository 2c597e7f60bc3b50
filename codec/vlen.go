// Copyright 2026 The Zarr-Go Authors. All rights reserved. Use of this source
// code is governed by a BSD-style license that can be found in the LICENSE
// file.

package codec

import (
	"encoding/binary"
	"encoding/json"

	"github.com/zarrgo/zarr/arraybytes"
	"github.com/zarrgo/zarr/dtype"
	"github.com/zarrgo/zarr/internal/base"
)

// IndexLocation places a structural codec's index region before or after
// its data region.
type IndexLocation uint8

const (
	IndexLocationEnd IndexLocation = iota
	IndexLocationStart
)

func parseIndexLocation(name, s string, def IndexLocation) (IndexLocation, error) {
	switch s {
	case "":
		return def, nil
	case "start":
		return IndexLocationStart, nil
	case "end":
		return IndexLocationEnd, nil
	}
	return 0, base.ConfigErrorf("codec %q: unknown index location %q", name, s)
}

func (l IndexLocation) String() string {
	if l == IndexLocationStart {
		return "start"
	}
	return "end"
}

// packIndexed frames an index region and a data region per location. The
// 8-byte little-endian length of the encoded index leads (start) or trails
// (end); it is required because the index size is unknowable after index
// compression.
func packIndexed(index, data []byte, location IndexLocation) []byte {
	out := make([]byte, 0, 8+len(index)+len(data))
	var lenBuf [8]byte
	binary.LittleEndian.PutUint64(lenBuf[:], uint64(len(index)))
	if location == IndexLocationStart {
		out = append(out, lenBuf[:]...)
		out = append(out, index...)
		out = append(out, data...)
	} else {
		out = append(out, data...)
		out = append(out, index...)
		out = append(out, lenBuf[:]...)
	}
	return out
}

// unpackIndexed inverts packIndexed.
func unpackIndexed(name string, b []byte, location IndexLocation) (index, data []byte, err error) {
	if len(b) < 8 {
		return nil, nil, base.CorruptionErrorf(
			"codec %q: stream of %d bytes is shorter than its index length frame", name, len(b))
	}
	var indexLen uint64
	if location == IndexLocationStart {
		indexLen = binary.LittleEndian.Uint64(b[:8])
		b = b[8:]
		if indexLen > uint64(len(b)) {
			return nil, nil, base.CorruptionErrorf(
				"codec %q: index length %d exceeds remaining %d bytes", name, indexLen, len(b))
		}
		return b[:indexLen], b[indexLen:], nil
	}
	indexLen = binary.LittleEndian.Uint64(b[len(b)-8:])
	b = b[:len(b)-8]
	if indexLen > uint64(len(b)) {
		return nil, nil, base.CorruptionErrorf(
			"codec %q: index length %d exceeds remaining %d bytes", name, indexLen, len(b))
	}
	return b[uint64(len(b))-indexLen:], b[:uint64(len(b))-indexLen], nil
}

// VlenCodec is the "vlen" array-to-bytes codec for variable-size elements:
// an offsets index and the concatenated payload, each encoded through its
// own sub-chain and concatenated per index_location.
type VlenCodec struct {
	indexChain    *Chain
	dataChain     *Chain
	indexDataType dtype.DataType // Uint32 or Uint64
	indexLocation IndexLocation
}

var _ ArrayToBytesCodec = (*VlenCodec)(nil)

type vlenConfig struct {
	IndexCodecs   []Metadata `json:"index_codecs,omitempty"`
	DataCodecs    []Metadata `json:"data_codecs,omitempty"`
	IndexDataType string     `json:"index_data_type,omitempty"`
	IndexLocation string     `json:"index_location,omitempty"`
}

func init() {
	registerBuiltin("vlen", func(config json.RawMessage) (Codec, error) {
		var cfg vlenConfig
		if err := decodeConfig("vlen", config, &cfg); err != nil {
			return nil, err
		}
		indexChain, err := subChain("vlen", cfg.IndexCodecs)
		if err != nil {
			return nil, err
		}
		dataChain, err := subChain("vlen", cfg.DataCodecs)
		if err != nil {
			return nil, err
		}
		var indexDT dtype.DataType
		switch cfg.IndexDataType {
		case "", "uint64":
			indexDT = dtype.Uint64
		case "uint32":
			indexDT = dtype.Uint32
		default:
			return nil, base.ConfigErrorf(
				"codec \"vlen\": unsupported index_data_type %q", cfg.IndexDataType)
		}
		location, err := parseIndexLocation("vlen", cfg.IndexLocation, IndexLocationEnd)
		if err != nil {
			return nil, err
		}
		return NewVlenCodec(indexChain, dataChain, indexDT, location)
	})
}

// subChain resolves a nested codec chain from metadata, defaulting to a
// bare little-endian bytes stage when absent.
func subChain(name string, metas []Metadata) (*Chain, error) {
	if len(metas) == 0 {
		return NewChain(nil, NewBytesCodec(EndianLittle), nil)
	}
	chain, err := NewChainFromMetadata(metas)
	if err != nil {
		return nil, base.ConfigErrorf("codec %q: %v", name, err)
	}
	return chain, nil
}

// NewVlenCodec constructs the vlen codec. indexDataType must be uint32 or
// uint64. Nil chains default to a bare little-endian bytes stage.
func NewVlenCodec(
	indexChain, dataChain *Chain, indexDataType dtype.DataType, location IndexLocation,
) (*VlenCodec, error) {
	if !indexDataType.Equal(dtype.Uint32) && !indexDataType.Equal(dtype.Uint64) {
		return nil, base.ConfigErrorf(
			"codec \"vlen\": unsupported index data type %s", indexDataType)
	}
	var err error
	if indexChain == nil {
		if indexChain, err = subChain("vlen", nil); err != nil {
			return nil, err
		}
	}
	if dataChain == nil {
		if dataChain, err = subChain("vlen", nil); err != nil {
			return nil, err
		}
	}
	return &VlenCodec{
		indexChain:    indexChain,
		dataChain:     dataChain,
		indexDataType: indexDataType,
		indexLocation: location,
	}, nil
}

// Name implements Codec.
func (c *VlenCodec) Name() string { return "vlen" }

// Configuration implements Codec.
func (c *VlenCodec) Configuration() map[string]any {
	return marshalConfig(vlenConfig{
		IndexCodecs:   c.indexChain.Metadata(),
		DataCodecs:    c.dataChain.Metadata(),
		IndexDataType: c.indexDataType.Name(),
		IndexLocation: c.indexLocation.String(),
	})
}

// PartialDecodeCapability implements Codec: without a secondary index there
// is no cheaper path than decoding the whole chunk.
func (c *VlenCodec) PartialDecodeCapability() PartialDecodeCapability {
	return PartialDecodeCapability{}
}

// PartialEncodeCapability implements Codec.
func (c *VlenCodec) PartialEncodeCapability() PartialEncodeCapability {
	return PartialEncodeCapability{}
}

func (c *VlenCodec) checkDataType(dt dtype.DataType) error {
	if dt.IsOptional() || !dt.IsVariable() {
		return base.ConfigErrorf("codec \"vlen\" requires a variable-size data type, got %s", dt)
	}
	return nil
}

// indexRep is the chunk representation of the offsets table: numOffsets
// elements of the index data type, zero-filled.
func (c *VlenCodec) indexRep(numOffsets uint64) (ChunkRep, error) {
	return NewChunkRep([]uint64{numOffsets}, c.indexDataType,
		dtype.NewFillValue(make([]byte, c.indexDataType.MustFixedSize())))
}

// dataRep is the chunk representation of the concatenated payload: a 1-D
// uint8 chunk.
func dataRep(size uint64) (ChunkRep, error) {
	return NewChunkRep([]uint64{size}, dtype.Uint8, dtype.NewFillValue([]byte{0}))
}

// EncodedRep implements ArrayToBytesCodec.
func (c *VlenCodec) EncodedRep(decoded ChunkRep) (BytesRep, error) {
	if err := c.checkDataType(decoded.DataType()); err != nil {
		return BytesRep{}, err
	}
	return UnboundedBytesRep(), nil
}

// Encode implements ArrayToBytesCodec.
func (c *VlenCodec) Encode(
	b arraybytes.ArrayBytes, decoded ChunkRep, opts *Options,
) (arraybytes.Buf, error) {
	if err := c.checkDataType(decoded.DataType()); err != nil {
		return arraybytes.Buf{}, err
	}
	if err := b.Validate(decoded.NumElements(), decoded.DataType()); err != nil {
		return arraybytes.Buf{}, err
	}
	payload, offsets, err := b.Variable()
	if err != nil {
		return arraybytes.Buf{}, err
	}

	indexSize := uint64(c.indexDataType.MustFixedSize())
	indexBytes := make([]byte, uint64(offsets.Len())*indexSize)
	for i := 0; i < offsets.Len(); i++ {
		off := offsets.At(i)
		if indexSize == 4 {
			if off > 1<<32-1 {
				return arraybytes.Buf{}, base.DataErrorf(
					"codec \"vlen\": offset %d overflows the uint32 index data type", off)
			}
			binary.LittleEndian.PutUint32(indexBytes[uint64(i)*4:], uint32(off))
		} else {
			binary.LittleEndian.PutUint64(indexBytes[uint64(i)*8:], off)
		}
	}
	indexRep, err := c.indexRep(uint64(offsets.Len()))
	if err != nil {
		return arraybytes.Buf{}, err
	}
	indexEnc, err := c.indexChain.Encode(
		arraybytes.NewFixed(arraybytes.Borrowed(indexBytes)), indexRep, opts)
	if err != nil {
		return arraybytes.Buf{}, err
	}

	var dataEnc arraybytes.Buf
	if payload.Len() > 0 {
		rep, err := dataRep(uint64(payload.Len()))
		if err != nil {
			return arraybytes.Buf{}, err
		}
		dataEnc, err = c.dataChain.Encode(arraybytes.NewFixed(payload), rep, opts)
		if err != nil {
			return arraybytes.Buf{}, err
		}
	}
	return arraybytes.Owned(
		packIndexed(indexEnc.Bytes(), dataEnc.Bytes(), c.indexLocation)), nil
}

// Decode implements ArrayToBytesCodec.
func (c *VlenCodec) Decode(
	raw arraybytes.Buf, decoded ChunkRep, opts *Options,
) (arraybytes.ArrayBytes, error) {
	if err := c.checkDataType(decoded.DataType()); err != nil {
		return arraybytes.ArrayBytes{}, err
	}
	indexRegion, dataRegion, err := unpackIndexed("vlen", raw.Bytes(), c.indexLocation)
	if err != nil {
		return arraybytes.ArrayBytes{}, err
	}

	numOffsets := decoded.NumElements() + 1
	indexRep, err := c.indexRep(numOffsets)
	if err != nil {
		return arraybytes.ArrayBytes{}, err
	}
	indexDec, err := c.indexChain.Decode(arraybytes.Borrowed(indexRegion), indexRep, opts)
	if err != nil {
		return arraybytes.ArrayBytes{}, err
	}
	indexBuf, err := indexDec.Fixed()
	if err != nil {
		return arraybytes.ArrayBytes{}, err
	}
	indexSize := uint64(c.indexDataType.MustFixedSize())
	indexBytes := indexBuf.Bytes()
	offs := make([]uint64, numOffsets)
	for i := range offs {
		if indexSize == 4 {
			offs[i] = uint64(binary.LittleEndian.Uint32(indexBytes[uint64(i)*4:]))
		} else {
			offs[i] = binary.LittleEndian.Uint64(indexBytes[uint64(i)*8:])
		}
	}
	offsets, err := arraybytes.NewOffsets(offs)
	if err != nil {
		return arraybytes.ArrayBytes{}, base.MarkCorruptionError(err)
	}

	dataLen := offsets.Last()
	var payload arraybytes.Buf
	if dataLen > 0 {
		rep, err := dataRep(dataLen)
		if err != nil {
			return arraybytes.ArrayBytes{}, err
		}
		dataDec, err := c.dataChain.Decode(arraybytes.Borrowed(dataRegion), rep, opts)
		if err != nil {
			return arraybytes.ArrayBytes{}, err
		}
		payload, err = dataDec.Fixed()
		if err != nil {
			return arraybytes.ArrayBytes{}, err
		}
	}
	return arraybytes.NewVariable(payload, offsets)
}

// PartialDecoder implements ArrayToBytesCodec via the full-decode default.
// The stream is cached on the decoder so repeated partial decodes pay for
// one full decode.
func (c *VlenCodec) PartialDecoder(
	next BytesPartialReader, decoded ChunkRep, opts *Options,
) (ArrayPartialReader, error) {
	if err := c.checkDataType(decoded.DataType()); err != nil {
		return nil, err
	}
	return newABPartialDecoderDefault(c, NewCachedBytesReader(next), decoded, opts), nil
}

// PartialEncoder implements ArrayToBytesCodec via the read-modify-write
// default.
func (c *VlenCodec) PartialEncoder(
	next BytesPartialWriter, decoded ChunkRep, opts *Options,
) (ArrayPartialWriter, error) {
	if err := c.checkDataType(decoded.DataType()); err != nil {
		return nil, err
	}
	return newABPartialEncoderDefault(c, next, decoded, opts), nil
}

// RecommendedConcurrency implements ArrayToBytesCodec.
func (c *VlenCodec) RecommendedConcurrency(decoded ChunkRep) (RecommendedConcurrency, error) {
	return ConcurrencyOf(1), nil
}
