// Copyright 2026 The Zarr-Go Authors. All rights reserved. Use of this source
// code is governed by a BSD-style license that can be found in the LICENSE
// file.

package codec

import (
	"encoding/binary"
	"math"
	"testing"

	"github.com/cockroachdb/crlib/testutils/leaktest"
	"github.com/stretchr/testify/require"
	"github.com/zarrgo/zarr/arraybytes"
	"github.com/zarrgo/zarr/dtype"
	"github.com/zarrgo/zarr/internal/base"
)

func optionalRep(t *testing.T, shape []uint64, dt dtype.DataType) ChunkRep {
	t.Helper()
	rep, err := NewChunkRep(shape, dt, dtype.NullFillValue())
	require.NoError(t, err)
	return rep
}

func mustOptional(t *testing.T, inner arraybytes.ArrayBytes, mask []byte) arraybytes.ArrayBytes {
	t.Helper()
	ab, err := arraybytes.NewOptional(inner, mask)
	require.NoError(t, err)
	return ab
}

func requireOptionalEqual(t *testing.T, want, got arraybytes.ArrayBytes) {
	t.Helper()
	wantInner, wantMask, err := want.Optional()
	require.NoError(t, err)
	gotInner, gotMask, err := got.Optional()
	require.NoError(t, err)
	require.Equal(t, wantMask, gotMask)
	if wantInner.Kind() == arraybytes.KindOptional {
		requireOptionalEqual(t, wantInner, gotInner)
		return
	}
	if wantInner.Kind() == arraybytes.KindVariable {
		requireVariableEqual(t, wantInner, gotInner)
		return
	}
	wantBuf, err := wantInner.Fixed()
	require.NoError(t, err)
	gotBuf, err := gotInner.Fixed()
	require.NoError(t, err)
	require.Equal(t, wantBuf.Bytes(), gotBuf.Bytes())
}

func TestOptionalEncodeLayout(t *testing.T) {
	defer leaktest.AfterTest(t)()

	// Option<float32> [1.0, null, 3.0] with the mask at the start: an 8-byte
	// mask length frame, the bit-packed mask, then the dense little-endian
	// data region with placeholder bytes at the absent slot.
	c := NewOptionalCodec(nil, nil, IndexLocationStart)
	rep := optionalRep(t, []uint64{3}, dtype.Optional(dtype.Float32))

	inner := make([]byte, 12)
	binary.LittleEndian.PutUint32(inner[0:], math.Float32bits(1.0))
	binary.LittleEndian.PutUint32(inner[8:], math.Float32bits(3.0))
	in := mustOptional(t, arraybytes.NewFixed(arraybytes.Borrowed(inner)), []byte{1, 0, 1})

	enc, err := c.Encode(in, rep, nil)
	require.NoError(t, err)
	b := enc.Bytes()
	require.Len(t, b, 8+1+12)
	require.Equal(t, uint64(1), binary.LittleEndian.Uint64(b[:8]))
	require.Equal(t, byte(0b101), b[8])
	require.Equal(t, inner, b[9:])

	dec, err := c.Decode(enc, rep, nil)
	require.NoError(t, err)
	requireOptionalEqual(t, in, dec)
}

func TestOptionalRoundTripLocations(t *testing.T) {
	defer leaktest.AfterTest(t)()

	rep := optionalRep(t, []uint64{2, 2}, dtype.Optional(dtype.Uint16))
	in := mustOptional(t,
		arraybytes.NewFixed(arraybytes.Borrowed([]byte{1, 0, 0, 0, 3, 0, 4, 0})),
		[]byte{1, 0, 1, 1})

	for _, loc := range []IndexLocation{IndexLocationStart, IndexLocationEnd} {
		c := NewOptionalCodec(nil, nil, loc)
		enc, err := c.Encode(in, rep, nil)
		require.NoError(t, err)
		dec, err := c.Decode(enc, rep, nil)
		require.NoError(t, err)
		requireOptionalEqual(t, in, dec)
	}
}

func TestOptionalNested(t *testing.T) {
	defer leaktest.AfterTest(t)()

	// Option<Option<uint8>>: the data region recurses through a second
	// optional encoding.
	rep := optionalRep(t, []uint64{3}, dtype.Optional(dtype.Optional(dtype.Uint8)))
	level2 := mustOptional(t,
		arraybytes.NewFixed(arraybytes.Borrowed([]byte{5, 0, 7})), []byte{1, 0, 1})
	in := mustOptional(t, level2, []byte{1, 1, 0})

	c := NewOptionalCodec(nil, nil, IndexLocationStart)
	enc, err := c.Encode(in, rep, nil)
	require.NoError(t, err)
	dec, err := c.Decode(enc, rep, nil)
	require.NoError(t, err)
	requireOptionalEqual(t, in, dec)
}

func TestOptionalVariableInner(t *testing.T) {
	defer leaktest.AfterTest(t)()

	// Option<string>: the default data chain is a vlen stage.
	rep := optionalRep(t, []uint64{3}, dtype.Optional(dtype.String))
	in := mustOptional(t, vlenElems(t, "x", "", "yy"), []byte{1, 0, 1})

	c := NewOptionalCodec(nil, nil, IndexLocationStart)
	enc, err := c.Encode(in, rep, nil)
	require.NoError(t, err)
	dec, err := c.Decode(enc, rep, nil)
	require.NoError(t, err)
	requireOptionalEqual(t, in, dec)
}

func TestOptionalExplicitChains(t *testing.T) {
	defer leaktest.AfterTest(t)()

	// A raw-bytes mask chain stores one byte per element instead of packing.
	maskChain, err := NewChain(nil, NewBytesCodec(EndianUnspecified), nil)
	require.NoError(t, err)
	gz, err := NewGzipCodec(6)
	require.NoError(t, err)
	dataChain, err := NewChain(nil, NewBytesCodec(EndianLittle), []BytesToBytesCodec{gz})
	require.NoError(t, err)

	rep := optionalRep(t, []uint64{4}, dtype.Optional(dtype.Uint32))
	in := mustOptional(t,
		arraybytes.NewFixed(arraybytes.Borrowed(make([]byte, 16))), []byte{0, 1, 0, 1})

	c := NewOptionalCodec(maskChain, dataChain, IndexLocationStart)
	enc, err := c.Encode(in, rep, nil)
	require.NoError(t, err)
	// The mask region is the unpacked four bytes.
	require.Equal(t, uint64(4), binary.LittleEndian.Uint64(enc.Bytes()[:8]))
	require.Equal(t, []byte{0, 1, 0, 1}, enc.Bytes()[8:12])

	dec, err := c.Decode(enc, rep, nil)
	require.NoError(t, err)
	requireOptionalEqual(t, in, dec)
}

func TestOptionalRequiresOptionalType(t *testing.T) {
	defer leaktest.AfterTest(t)()

	c := NewOptionalCodec(nil, nil, IndexLocationStart)
	rep := testRep(t, []uint64{2}, dtype.Uint8, []byte{0})
	_, err := c.EncodedRep(rep)
	require.Error(t, err)
	require.True(t, base.IsConfigError(err))
}
