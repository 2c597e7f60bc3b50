// Copyright 2026 The Zarr-Go Authors. All rights reserved. Use of this source
// code is governed by a BSD-style license that can be found in the LICENSE
// file.

package codec

import (
	"encoding/binary"
	"encoding/json"
	"hash/adler32"
	"hash/crc32"

	"github.com/zarrgo/zarr/arraybytes"
	"github.com/zarrgo/zarr/internal/base"
)

// checksumSize is the byte width of every supported checksum.
const checksumSize = 4

// ChecksumLocation places the checksum before or after the payload.
type ChecksumLocation uint8

const (
	ChecksumEnd ChecksumLocation = iota
	ChecksumStart
)

type checksumConfig struct {
	Location string `json:"location,omitempty"`
}

func parseChecksumLocation(name, s string) (ChecksumLocation, error) {
	switch s {
	case "", "end":
		return ChecksumEnd, nil
	case "start":
		return ChecksumStart, nil
	}
	return 0, base.ConfigErrorf("codec %q: unknown checksum location %q", name, s)
}

// ChecksumCodec frames a payload with a 4-byte little-endian checksum. On
// decode the checksum is verified only when Options.ValidateChecksums is
// set; otherwise it is stripped unchecked.
type ChecksumCodec struct {
	name     string
	sum      func([]byte) uint32
	location ChecksumLocation
}

var _ BytesToBytesCodec = (*ChecksumCodec)(nil)

var crc32cTable = crc32.MakeTable(crc32.Castagnoli)

// fletcher32Sum is the HDF5/numcodecs fletcher32 variant: ones-complement
// Fletcher sums over big-endian 16-bit words, a trailing odd byte padded
// into the high half of a final word.
func fletcher32Sum(b []byte) uint32 {
	sum1, sum2 := uint32(0), uint32(0)
	words := len(b) / 2
	i := 0
	for words > 0 {
		// Fold before 16-bit overflow; 360 words is the HDF5 block size.
		tlen := min(words, 360)
		words -= tlen
		for range tlen {
			sum1 += uint32(b[i])<<8 | uint32(b[i+1])
			sum2 += sum1
			i += 2
		}
		sum1 = (sum1 & 0xffff) + (sum1 >> 16)
		sum2 = (sum2 & 0xffff) + (sum2 >> 16)
	}
	if len(b)%2 != 0 {
		sum1 += uint32(b[len(b)-1]) << 8
		sum2 += sum1
		sum1 = (sum1 & 0xffff) + (sum1 >> 16)
		sum2 = (sum2 & 0xffff) + (sum2 >> 16)
	}
	sum1 = (sum1 & 0xffff) + (sum1 >> 16)
	sum2 = (sum2 & 0xffff) + (sum2 >> 16)
	return sum2<<16 | sum1
}

func init() {
	checksum := func(name string, sum func([]byte) uint32, fixedEnd bool) Factory {
		return func(config json.RawMessage) (Codec, error) {
			var cfg checksumConfig
			if err := decodeConfig(name, config, &cfg); err != nil {
				return nil, err
			}
			if fixedEnd && cfg.Location != "" && cfg.Location != "end" {
				return nil, base.ConfigErrorf(
					"codec %q: checksum location is fixed to \"end\"", name)
			}
			loc, err := parseChecksumLocation(name, cfg.Location)
			if err != nil {
				return nil, err
			}
			return &ChecksumCodec{name: name, sum: sum, location: loc}, nil
		}
	}
	registerBuiltin("adler32", checksum("adler32", func(b []byte) uint32 {
		return adler32.Checksum(b)
	}, false))
	registerBuiltin("crc32c", checksum("crc32c", func(b []byte) uint32 {
		return crc32.Checksum(b, crc32cTable)
	}, false))
	// The numcodecs fletcher32 format always appends.
	registerBuiltin("fletcher32", checksum("fletcher32", fletcher32Sum, true))
}

// NewAdler32Codec constructs the adler32 checksum codec.
func NewAdler32Codec(location ChecksumLocation) *ChecksumCodec {
	return &ChecksumCodec{name: "adler32", sum: adler32.Checksum, location: location}
}

// NewCRC32CCodec constructs the crc32c checksum codec.
func NewCRC32CCodec(location ChecksumLocation) *ChecksumCodec {
	return &ChecksumCodec{
		name:     "crc32c",
		sum:      func(b []byte) uint32 { return crc32.Checksum(b, crc32cTable) },
		location: location,
	}
}

// NewFletcher32Codec constructs the fletcher32 checksum codec. The
// numcodecs format appends the checksum; there is no location knob.
func NewFletcher32Codec() *ChecksumCodec {
	return &ChecksumCodec{name: "fletcher32", sum: fletcher32Sum, location: ChecksumEnd}
}

// Name implements Codec.
func (c *ChecksumCodec) Name() string { return c.name }

// Configuration implements Codec.
func (c *ChecksumCodec) Configuration() map[string]any {
	if c.location == ChecksumEnd {
		return nil
	}
	return marshalConfig(checksumConfig{Location: "start"})
}

// PartialDecodeCapability implements Codec: payload ranges are served by
// skipping the checksum frame. Ranges read this way are never validated.
func (c *ChecksumCodec) PartialDecodeCapability() PartialDecodeCapability {
	return PartialDecodeCapability{PartialRead: true, PartialDecode: true}
}

// PartialEncodeCapability implements Codec: any payload change invalidates
// the checksum, so partial encodes rewrite the whole frame.
func (c *ChecksumCodec) PartialEncodeCapability() PartialEncodeCapability {
	return PartialEncodeCapability{}
}

// EncodedRep implements BytesToBytesCodec.
func (c *ChecksumCodec) EncodedRep(decoded BytesRep) BytesRep {
	switch decoded.Kind {
	case BytesRepFixed:
		return FixedBytesRep(decoded.Size + checksumSize)
	case BytesRepBounded:
		return BoundedBytesRep(decoded.Size + checksumSize)
	}
	return UnboundedBytesRep()
}

// Encode implements BytesToBytesCodec.
func (c *ChecksumCodec) Encode(raw arraybytes.Buf, opts *Options) (arraybytes.Buf, error) {
	payload := raw.Bytes()
	out := make([]byte, 0, len(payload)+checksumSize)
	var sum [checksumSize]byte
	binary.LittleEndian.PutUint32(sum[:], c.sum(payload))
	if c.location == ChecksumStart {
		out = append(out, sum[:]...)
		out = append(out, payload...)
	} else {
		out = append(out, payload...)
		out = append(out, sum[:]...)
	}
	return arraybytes.Owned(out), nil
}

// Decode implements BytesToBytesCodec.
func (c *ChecksumCodec) Decode(
	raw arraybytes.Buf, decoded BytesRep, opts *Options,
) (arraybytes.Buf, error) {
	b := raw.Bytes()
	if len(b) < checksumSize {
		return arraybytes.Buf{}, base.CorruptionErrorf(
			"codec %q: stream of %d bytes is shorter than its checksum", c.name, len(b))
	}
	var payload, sum []byte
	if c.location == ChecksumStart {
		sum, payload = b[:checksumSize], b[checksumSize:]
	} else {
		payload, sum = b[:len(b)-checksumSize], b[len(b)-checksumSize:]
	}
	if opts != nil && opts.ValidateChecksums {
		if got, want := c.sum(payload), binary.LittleEndian.Uint32(sum); got != want {
			return arraybytes.Buf{}, base.CorruptionErrorf(
				"codec %q: checksum mismatch: computed %#08x, stored %#08x", c.name, got, want)
		}
	}
	if err := checkDecodedSize(c.name, uint64(len(payload)), decoded); err != nil {
		return arraybytes.Buf{}, err
	}
	if raw.IsOwned() {
		return arraybytes.Owned(payload), nil
	}
	return arraybytes.Borrowed(payload), nil
}

// PartialDecoder implements BytesToBytesCodec: ranges map through the frame
// offsets, skipping validation.
func (c *ChecksumCodec) PartialDecoder(
	next BytesPartialReader, decoded BytesRep, opts *Options,
) (BytesPartialReader, error) {
	if c.location == ChecksumStart {
		return newByteIntervalReader(next, checksumSize, 0), nil
	}
	return newByteIntervalReader(next, 0, checksumSize), nil
}

// PartialEncoder implements BytesToBytesCodec via the read-modify-write
// default.
func (c *ChecksumCodec) PartialEncoder(
	next BytesPartialWriter, decoded BytesRep, opts *Options,
) (BytesPartialWriter, error) {
	return newBBPartialEncoderDefault(c, next, decoded, opts), nil
}
