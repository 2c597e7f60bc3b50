// Copyright 2026 The Zarr-Go Authors. All rights reserved. Use of this source
// code is governed by a BSD-style license that can be found in the LICENSE
// file.

package codec

import (
	"encoding/json"

	"github.com/zarrgo/zarr/arraybytes"
	"github.com/zarrgo/zarr/internal/base"
)

// Chain is an ordered codec pipeline: zero or more array-to-array stages,
// exactly one array-to-bytes stage, zero or more bytes-to-bytes stages.
// A Chain is constructed once per array and reused for every chunk; it is
// stateless and safe for concurrent use on disjoint targets.
//
// Chain itself implements ArrayToBytesCodec, so structural codecs (vlen,
// sharding, optional) nest whole sub-chains where a single serialization
// stage is expected.
type Chain struct {
	aa []ArrayToArrayCodec
	ab ArrayToBytesCodec
	bb []BytesToBytesCodec
}

var _ ArrayToBytesCodec = (*Chain)(nil)

// NewChain constructs a chain from its stages. The array-to-bytes stage is
// required.
func NewChain(aa []ArrayToArrayCodec, ab ArrayToBytesCodec, bb []BytesToBytesCodec) (*Chain, error) {
	if ab == nil {
		return nil, base.ConfigErrorf("codec chain requires an array-to-bytes codec")
	}
	return &Chain{
		aa: append([]ArrayToArrayCodec(nil), aa...),
		ab: ab,
		bb: append([]BytesToBytesCodec(nil), bb...),
	}, nil
}

// NewChainFromMetadata constructs a chain from stored codec metadata. The
// entries must be ordered array-to-array, then one array-to-bytes, then
// bytes-to-bytes; any other arrangement is a configuration error.
func NewChainFromMetadata(metas []Metadata) (*Chain, error) {
	var (
		aa []ArrayToArrayCodec
		ab ArrayToBytesCodec
		bb []BytesToBytesCodec
	)
	for _, m := range metas {
		c, err := NewFromMetadata(m)
		if err != nil {
			return nil, err
		}
		switch c := c.(type) {
		case ArrayToArrayCodec:
			if ab != nil {
				return nil, base.ConfigErrorf(
					"array-to-array codec %q follows the array-to-bytes codec", m.Name)
			}
			aa = append(aa, c)
		case ArrayToBytesCodec:
			if ab != nil {
				return nil, base.ConfigErrorf(
					"multiple array-to-bytes codecs (%q and %q)", ab.Name(), m.Name)
			}
			ab = c
		case BytesToBytesCodec:
			if ab == nil {
				return nil, base.ConfigErrorf(
					"bytes-to-bytes codec %q precedes the array-to-bytes codec", m.Name)
			}
			bb = append(bb, c)
		default:
			return nil, base.ConfigErrorf("codec %q implements no codec kind", m.Name)
		}
	}
	return NewChain(aa, ab, bb)
}

// Metadata returns the chain's stages as stored codec metadata, in pipeline
// order.
func (c *Chain) Metadata() []Metadata {
	out := make([]Metadata, 0, len(c.aa)+1+len(c.bb))
	add := func(cd Codec) {
		m := Metadata{Name: cd.Name()}
		if cfg := cd.Configuration(); cfg != nil {
			if b, err := json.Marshal(cfg); err == nil {
				m.Configuration = b
			}
		}
		out = append(out, m)
	}
	for _, cd := range c.aa {
		add(cd)
	}
	add(c.ab)
	for _, cd := range c.bb {
		add(cd)
	}
	return out
}

// Name implements Codec.
func (c *Chain) Name() string { return "chain" }

// Configuration implements Codec. A chain has no configuration object of
// its own; Metadata carries the stage list.
func (c *Chain) Configuration() map[string]any { return nil }

// PartialDecodeCapability implements Codec: the chain supports a capability
// only if every stage does.
func (c *Chain) PartialDecodeCapability() PartialDecodeCapability {
	cap := c.ab.PartialDecodeCapability()
	for _, cd := range c.aa {
		sc := cd.PartialDecodeCapability()
		cap.PartialRead = cap.PartialRead && sc.PartialRead
		cap.PartialDecode = cap.PartialDecode && sc.PartialDecode
	}
	for _, cd := range c.bb {
		sc := cd.PartialDecodeCapability()
		cap.PartialRead = cap.PartialRead && sc.PartialRead
		cap.PartialDecode = cap.PartialDecode && sc.PartialDecode
	}
	return cap
}

// PartialEncodeCapability implements Codec.
func (c *Chain) PartialEncodeCapability() PartialEncodeCapability {
	cap := c.ab.PartialEncodeCapability()
	for _, cd := range c.aa {
		cap.PartialEncode = cap.PartialEncode && cd.PartialEncodeCapability().PartialEncode
	}
	for _, cd := range c.bb {
		cap.PartialEncode = cap.PartialEncode && cd.PartialEncodeCapability().PartialEncode
	}
	return cap
}

// chunkReps returns the chunk representation entering each array stage:
// reps[i] is the input of aa[i], reps[len(aa)] the input of the
// array-to-bytes stage.
func (c *Chain) chunkReps(decoded ChunkRep) ([]ChunkRep, error) {
	reps := make([]ChunkRep, len(c.aa)+1)
	reps[0] = decoded
	for i, cd := range c.aa {
		var err error
		reps[i+1], err = cd.EncodedRep(reps[i])
		if err != nil {
			return nil, err
		}
	}
	return reps, nil
}

// bytesReps returns the byte representation entering each bytes-to-bytes
// stage: breps[i] is the decoded representation of bb[i], breps[len(bb)]
// the fully encoded representation.
func (c *Chain) bytesReps(abEncoded BytesRep) []BytesRep {
	breps := make([]BytesRep, len(c.bb)+1)
	breps[0] = abEncoded
	for i, cd := range c.bb {
		breps[i+1] = cd.EncodedRep(breps[i])
	}
	return breps
}

// EncodedRep implements ArrayToBytesCodec.
func (c *Chain) EncodedRep(decoded ChunkRep) (BytesRep, error) {
	reps, err := c.chunkReps(decoded)
	if err != nil {
		return BytesRep{}, err
	}
	abRep, err := c.ab.EncodedRep(reps[len(c.aa)])
	if err != nil {
		return BytesRep{}, err
	}
	return c.bytesReps(abRep)[len(c.bb)], nil
}

// Encode runs decoded element data through every stage and returns the
// fully encoded bytes.
func (c *Chain) Encode(
	b arraybytes.ArrayBytes, decoded ChunkRep, opts *Options,
) (arraybytes.Buf, error) {
	opts = resolveOptions(opts)
	reps, err := c.chunkReps(decoded)
	if err != nil {
		return arraybytes.Buf{}, err
	}
	if err := b.Validate(reps[0].NumElements(), reps[0].DataType()); err != nil {
		return arraybytes.Buf{}, err
	}
	for i, cd := range c.aa {
		if b, err = cd.Encode(b, reps[i], opts); err != nil {
			return arraybytes.Buf{}, err
		}
	}
	raw, err := c.ab.Encode(b, reps[len(c.aa)], opts)
	if err != nil {
		return arraybytes.Buf{}, err
	}
	for _, cd := range c.bb {
		if raw, err = cd.Encode(raw, opts); err != nil {
			return arraybytes.Buf{}, err
		}
	}
	return raw, nil
}

// Decode inverts Encode.
func (c *Chain) Decode(
	raw arraybytes.Buf, decoded ChunkRep, opts *Options,
) (arraybytes.ArrayBytes, error) {
	opts = resolveOptions(opts)
	reps, err := c.chunkReps(decoded)
	if err != nil {
		return arraybytes.ArrayBytes{}, err
	}
	abRep, err := c.ab.EncodedRep(reps[len(c.aa)])
	if err != nil {
		return arraybytes.ArrayBytes{}, err
	}
	breps := c.bytesReps(abRep)
	for i := len(c.bb) - 1; i >= 0; i-- {
		if raw, err = c.bb[i].Decode(raw, breps[i], opts); err != nil {
			return arraybytes.ArrayBytes{}, err
		}
	}
	b, err := c.ab.Decode(raw, reps[len(c.aa)], opts)
	if err != nil {
		return arraybytes.ArrayBytes{}, err
	}
	for i := len(c.aa) - 1; i >= 0; i-- {
		if b, err = c.aa[i].Decode(b, reps[i], opts); err != nil {
			return arraybytes.ArrayBytes{}, err
		}
	}
	return b, nil
}

// PartialDecoder builds the partial-decoder chain innermost-first: next
// (closest to raw storage) is wrapped by the bytes-to-bytes stages in
// reverse pipeline order, then the array-to-bytes stage (where indexers
// translate to byte ranges), then the array-to-array stages in reverse
// order, each remapping indexers through its own transform.
func (c *Chain) PartialDecoder(
	next BytesPartialReader, decoded ChunkRep, opts *Options,
) (ArrayPartialReader, error) {
	opts = resolveOptions(opts)
	reps, err := c.chunkReps(decoded)
	if err != nil {
		return nil, err
	}
	abRep, err := c.ab.EncodedRep(reps[len(c.aa)])
	if err != nil {
		return nil, err
	}
	breps := c.bytesReps(abRep)
	br := next
	for i := len(c.bb) - 1; i >= 0; i-- {
		if br, err = c.bb[i].PartialDecoder(br, breps[i], opts); err != nil {
			return nil, err
		}
	}
	ar, err := c.ab.PartialDecoder(br, reps[len(c.aa)], opts)
	if err != nil {
		return nil, err
	}
	for i := len(c.aa) - 1; i >= 0; i-- {
		if ar, err = c.aa[i].PartialDecoder(ar, reps[i], opts); err != nil {
			return nil, err
		}
	}
	return ar, nil
}

// PartialEncoder is the encode-side analogue of PartialDecoder.
func (c *Chain) PartialEncoder(
	next BytesPartialWriter, decoded ChunkRep, opts *Options,
) (ArrayPartialWriter, error) {
	opts = resolveOptions(opts)
	reps, err := c.chunkReps(decoded)
	if err != nil {
		return nil, err
	}
	abRep, err := c.ab.EncodedRep(reps[len(c.aa)])
	if err != nil {
		return nil, err
	}
	breps := c.bytesReps(abRep)
	bw := next
	for i := len(c.bb) - 1; i >= 0; i-- {
		if bw, err = c.bb[i].PartialEncoder(bw, breps[i], opts); err != nil {
			return nil, err
		}
	}
	aw, err := c.ab.PartialEncoder(bw, reps[len(c.aa)], opts)
	if err != nil {
		return nil, err
	}
	for i := len(c.aa) - 1; i >= 0; i-- {
		if aw, err = c.aa[i].PartialEncoder(aw, reps[i], opts); err != nil {
			return nil, err
		}
	}
	return aw, nil
}

// RecommendedConcurrency implements ArrayToBytesCodec: the maximum of the
// stages' recommendations (the sharding stage dominates in practice).
func (c *Chain) RecommendedConcurrency(decoded ChunkRep) (RecommendedConcurrency, error) {
	reps, err := c.chunkReps(decoded)
	if err != nil {
		return RecommendedConcurrency{}, err
	}
	rc := RecommendedConcurrency{Min: 1, Max: 1}
	for i, cd := range c.aa {
		src, err := cd.RecommendedConcurrency(reps[i])
		if err != nil {
			return RecommendedConcurrency{}, err
		}
		if src.Max > rc.Max {
			rc = src
		}
	}
	src, err := c.ab.RecommendedConcurrency(reps[len(c.aa)])
	if err != nil {
		return RecommendedConcurrency{}, err
	}
	if src.Max > rc.Max {
		rc = src
	}
	return rc, nil
}
