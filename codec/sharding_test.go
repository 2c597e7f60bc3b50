// Copyright 2026 The Zarr-Go Authors. All rights reserved. Use of this source
// code is governed by a BSD-style license that can be found in the LICENSE
// file.

package codec

import (
	"context"
	"encoding/binary"
	"math/rand/v2"
	"testing"
	"time"

	"github.com/cockroachdb/crlib/testutils/leaktest"
	"github.com/stretchr/testify/require"
	"github.com/zarrgo/zarr/arraybytes"
	"github.com/zarrgo/zarr/dtype"
	"github.com/zarrgo/zarr/indexer"
	"github.com/zarrgo/zarr/internal/base"
	"github.com/zarrgo/zarr/storage"
)

func mustSubset(t *testing.T, start, shape []uint64) indexer.Subset {
	t.Helper()
	sub, err := indexer.NewSubset(start, shape)
	require.NoError(t, err)
	return sub
}

// parseShardIndex splits a raw shard encoded with the default index chain
// into its payload and decoded (offset, length) entries.
func parseShardIndex(t *testing.T, raw []byte, numChunks int, location IndexLocation) []uint64 {
	t.Helper()
	indexSize := numChunks * shardIndexEntrySize
	require.GreaterOrEqual(t, len(raw), indexSize)
	var region []byte
	if location == IndexLocationStart {
		region = raw[:indexSize]
	} else {
		region = raw[len(raw)-indexSize:]
	}
	index := make([]uint64, numChunks*2)
	for i := range index {
		index[i] = binary.LittleEndian.Uint64(region[i*8:])
	}
	return index
}

func TestShardingRoundTrip(t *testing.T) {
	defer leaktest.AfterTest(t)()

	seed := uint64(time.Now().UnixNano())
	t.Logf("seed %d", seed)
	rng := rand.New(rand.NewPCG(0, seed))

	gz, err := NewGzipCodec(6)
	require.NoError(t, err)
	gzipChain, err := NewChain(nil, NewBytesCodec(EndianLittle), []BytesToBytesCodec{gz})
	require.NoError(t, err)
	// The usual shard index chain: little-endian entries plus a crc32c frame.
	checkedIndex, err := NewChain(nil, NewBytesCodec(EndianLittle),
		[]BytesToBytesCodec{NewCRC32CCodec(ChecksumEnd)})
	require.NoError(t, err)

	cases := []struct {
		name     string
		inner    *Chain
		index    *Chain
		location IndexLocation
	}{
		{name: "default-end", location: IndexLocationEnd},
		{name: "default-start", location: IndexLocationStart},
		{name: "gzip-inner", inner: gzipChain, location: IndexLocationEnd},
		{name: "checked-index", index: checkedIndex, location: IndexLocationEnd},
	}
	rep := testRep(t, []uint64{4, 4}, dtype.Uint16, []byte{0, 0})
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			sc, err := NewShardingCodec([]uint64{2, 2}, tc.inner, tc.index, tc.location)
			require.NoError(t, err)
			data := randBytes(rng, int(rep.NumElements()*2))
			enc, err := sc.Encode(arraybytes.NewFixed(arraybytes.Borrowed(data)), rep, nil)
			require.NoError(t, err)
			dec, err := sc.Decode(enc, rep, nil)
			require.NoError(t, err)
			buf, err := dec.Fixed()
			require.NoError(t, err)
			require.Equal(t, data, buf.Bytes())
		})
	}
}

func TestShardingElidesFillChunks(t *testing.T) {
	defer leaktest.AfterTest(t)()

	sc, err := NewShardingCodec([]uint64{2, 2}, nil, nil, IndexLocationEnd)
	require.NoError(t, err)
	rep := testRep(t, []uint64{4, 4}, dtype.Uint16, []byte{0, 0})

	// Only the top-left inner chunk has content.
	data := make([]byte, 32)
	data[0] = 9
	enc, err := sc.Encode(arraybytes.NewFixed(arraybytes.Borrowed(data)), rep, nil)
	require.NoError(t, err)

	// One 8-byte inner chunk plus the 64-byte index.
	require.Len(t, enc.Bytes(), 8+64)
	index := parseShardIndex(t, enc.Bytes(), 4, IndexLocationEnd)
	require.Equal(t, uint64(0), index[0])
	require.Equal(t, uint64(8), index[1])
	for _, v := range index[2:] {
		require.Equal(t, uint64(absentSentinel), v)
	}

	dec, err := sc.Decode(enc, rep, nil)
	require.NoError(t, err)
	buf, err := dec.Fixed()
	require.NoError(t, err)
	require.Equal(t, data, buf.Bytes())

	// An all-fill shard is just its index.
	enc, err = sc.Encode(arraybytes.NewFixed(arraybytes.Borrowed(make([]byte, 32))), rep, nil)
	require.NoError(t, err)
	require.Len(t, enc.Bytes(), 64)
	for _, v := range parseShardIndex(t, enc.Bytes(), 4, IndexLocationEnd) {
		require.Equal(t, uint64(absentSentinel), v)
	}

	// StoreEmptyChunks forces every chunk into the shard.
	enc, err = sc.Encode(arraybytes.NewFixed(arraybytes.Borrowed(make([]byte, 32))), rep,
		&Options{StoreEmptyChunks: true})
	require.NoError(t, err)
	require.Len(t, enc.Bytes(), 32+64)
}

func TestShardingVariableElements(t *testing.T) {
	defer leaktest.AfterTest(t)()

	vc, err := NewVlenCodec(nil, nil, dtype.Uint64, IndexLocationEnd)
	require.NoError(t, err)
	innerChain, err := NewChain(nil, vc, nil)
	require.NoError(t, err)
	sc, err := NewShardingCodec([]uint64{1, 2}, innerChain, nil, IndexLocationEnd)
	require.NoError(t, err)

	rep, err := NewChunkRep([]uint64{2, 2}, dtype.String, dtype.NewFillValue([]byte("-")))
	require.NoError(t, err)

	in := vlenElems(t, "aa", "b", "", "cccc")
	enc, err := sc.Encode(in, rep, nil)
	require.NoError(t, err)
	dec, err := sc.Decode(enc, rep, nil)
	require.NoError(t, err)
	requireVariableEqual(t, in, dec)

	// A row of fill elements is elided and restored from the fill value.
	in = vlenElems(t, "-", "-", "x", "")
	enc, err = sc.Encode(in, rep, nil)
	require.NoError(t, err)
	index := parseShardIndex(t, enc.Bytes(), 2, IndexLocationEnd)
	require.Equal(t, uint64(absentSentinel), index[0])
	require.NotEqual(t, uint64(absentSentinel), index[2])
	dec, err = sc.Decode(enc, rep, nil)
	require.NoError(t, err)
	requireVariableEqual(t, in, dec)
}

func TestShardingConfigErrors(t *testing.T) {
	defer leaktest.AfterTest(t)()

	_, err := NewShardingCodec(nil, nil, nil, IndexLocationEnd)
	require.Error(t, err)
	require.True(t, base.IsConfigError(err))

	_, err = NewShardingCodec([]uint64{2, 0}, nil, nil, IndexLocationEnd)
	require.Error(t, err)

	// The inner chunk shape must evenly divide the shard shape.
	sc, err := NewShardingCodec([]uint64{3, 3}, nil, nil, IndexLocationEnd)
	require.NoError(t, err)
	rep := testRep(t, []uint64{4, 4}, dtype.Uint16, []byte{0, 0})
	_, err = sc.Encode(arraybytes.NewFixed(arraybytes.Borrowed(make([]byte, 32))), rep, nil)
	require.Error(t, err)
	require.True(t, base.IsConfigError(err))

	// The index chain must produce a fixed-size encoding.
	gz, err := NewGzipCodec(6)
	require.NoError(t, err)
	gzIndex, err := NewChain(nil, NewBytesCodec(EndianLittle), []BytesToBytesCodec{gz})
	require.NoError(t, err)
	sc, err = NewShardingCodec([]uint64{2, 2}, nil, gzIndex, IndexLocationEnd)
	require.NoError(t, err)
	_, err = sc.Encode(arraybytes.NewFixed(arraybytes.Borrowed(make([]byte, 32))), rep, nil)
	require.Error(t, err)
	require.True(t, base.IsConfigError(err))
}

func TestShardingCorruption(t *testing.T) {
	defer leaktest.AfterTest(t)()

	sc, err := NewShardingCodec([]uint64{2, 2}, nil, nil, IndexLocationEnd)
	require.NoError(t, err)
	rep := testRep(t, []uint64{2, 2}, dtype.Uint16, []byte{0, 0})

	// Shorter than the index.
	_, err = sc.Decode(arraybytes.Borrowed(make([]byte, 10)), rep, nil)
	require.Error(t, err)
	require.True(t, base.IsCorruptionError(err))

	// A half-sentinel index entry.
	raw := make([]byte, 8+16)
	binary.LittleEndian.PutUint64(raw[8:], absentSentinel)
	binary.LittleEndian.PutUint64(raw[16:], 8)
	_, err = sc.Decode(arraybytes.Borrowed(raw), rep, nil)
	require.Error(t, err)
	require.True(t, base.IsCorruptionError(err))

	// An entry pointing past the end of the shard.
	raw = make([]byte, 8+16)
	binary.LittleEndian.PutUint64(raw[8:], 100)
	binary.LittleEndian.PutUint64(raw[16:], 50)
	_, err = sc.Decode(arraybytes.Borrowed(raw), rep, nil)
	require.Error(t, err)
	require.True(t, base.IsCorruptionError(err))
}

func TestShardingPartialDecode(t *testing.T) {
	defer leaktest.AfterTest(t)()

	seed := uint64(time.Now().UnixNano())
	t.Logf("seed %d", seed)
	rng := rand.New(rand.NewPCG(0, seed))
	ctx := context.Background()

	gz, err := NewGzipCodec(6)
	require.NoError(t, err)
	innerChain, err := NewChain(nil, NewBytesCodec(EndianLittle), []BytesToBytesCodec{gz})
	require.NoError(t, err)
	sc, err := NewShardingCodec([]uint64{2, 3}, innerChain, nil, IndexLocationEnd)
	require.NoError(t, err)

	shape := []uint64{6, 6}
	rep := testRep(t, shape, dtype.Uint16, []byte{0xAA, 0})
	data := randBytes(rng, int(rep.NumElements()*2))
	enc, err := sc.Encode(arraybytes.NewFixed(arraybytes.Borrowed(data)), rep, nil)
	require.NoError(t, err)

	store := storage.NewMemStore()
	require.NoError(t, store.Set(ctx, "shard", enc.Bytes()))
	pd, err := sc.PartialDecoder(NewStoreReader(store, "shard"), rep, nil)
	require.NoError(t, err)

	found, err := pd.Exists(ctx)
	require.NoError(t, err)
	require.True(t, found)

	whole := arraybytes.NewFixed(arraybytes.Borrowed(data))
	for range 20 {
		start := []uint64{uint64(rng.IntN(6)), uint64(rng.IntN(6))}
		sshape := []uint64{
			1 + uint64(rng.IntN(int(6-start[0]))),
			1 + uint64(rng.IntN(int(6-start[1]))),
		}
		sub := mustSubset(t, start, sshape)

		got, err := pd.PartialDecode(ctx, sub)
		require.NoError(t, err)
		want, err := arraybytes.ExtractSubset(whole, shape, sub, dtype.Uint16)
		require.NoError(t, err)
		gotBuf, err := got.Fixed()
		require.NoError(t, err)
		wantBuf, err := want.Fixed()
		require.NoError(t, err)
		require.Equal(t, wantBuf.Bytes(), gotBuf.Bytes(), "subset %v+%v", start, sshape)
	}

	// Coordinate-list indexers fall back to a full decode.
	coords, err := indexer.NewCoords([][]uint64{{5, 5}, {0, 0}, {2, 4}}, 2)
	require.NoError(t, err)
	got, err := pd.PartialDecode(ctx, coords)
	require.NoError(t, err)
	want, err := arraybytes.ExtractSubset(whole, shape, coords, dtype.Uint16)
	require.NoError(t, err)
	gotBuf, err := got.Fixed()
	require.NoError(t, err)
	wantBuf, err := want.Fixed()
	require.NoError(t, err)
	require.Equal(t, wantBuf.Bytes(), gotBuf.Bytes())

	// A missing shard reads as fill everywhere.
	pd, err = sc.PartialDecoder(NewStoreReader(store, "missing"), rep, nil)
	require.NoError(t, err)
	found, err = pd.Exists(ctx)
	require.NoError(t, err)
	require.False(t, found)
	got, err = pd.PartialDecode(ctx, mustSubset(t, []uint64{1, 1}, []uint64{2, 2}))
	require.NoError(t, err)
	gotBuf, err = got.Fixed()
	require.NoError(t, err)
	require.Equal(t, []byte{0xAA, 0, 0xAA, 0, 0xAA, 0, 0xAA, 0}, gotBuf.Bytes())
}

func TestShardingPartialEncodeSingleCell(t *testing.T) {
	defer leaktest.AfterTest(t)()
	ctx := context.Background()

	sc, err := NewShardingCodec([]uint64{2, 2}, nil, nil, IndexLocationEnd)
	require.NoError(t, err)
	rep := testRep(t, []uint64{4, 4}, dtype.Uint16, []byte{0, 0})
	store := storage.NewMemStore()

	pe, err := sc.PartialEncoder(NewStoreWriter(store, "shard"), rep, nil)
	require.NoError(t, err)
	require.NoError(t, pe.PartialEncode(ctx,
		mustSubset(t, []uint64{0, 0}, []uint64{1, 1}),
		arraybytes.NewFixed(arraybytes.Borrowed([]byte{7, 0}))))

	raw, found, err := store.Get(ctx, "shard")
	require.NoError(t, err)
	require.True(t, found)

	// One encoded 2x2 inner chunk followed by the 64-byte index: the written
	// cell, three fill cells, one live entry and three sentinels.
	require.Len(t, raw, 8+64)
	require.Equal(t, []byte{7, 0, 0, 0, 0, 0, 0, 0}, raw[:8])
	index := parseShardIndex(t, raw, 4, IndexLocationEnd)
	require.Equal(t, uint64(0), index[0])
	require.Equal(t, uint64(8), index[1])
	for _, v := range index[2:] {
		require.Equal(t, uint64(absentSentinel), v)
	}

	// The untouched cells read back as fill.
	pd, err := sc.PartialDecoder(NewStoreReader(store, "shard"), rep, nil)
	require.NoError(t, err)
	got, err := pd.PartialDecode(ctx, mustSubset(t, []uint64{3, 3}, []uint64{1, 1}))
	require.NoError(t, err)
	buf, err := got.Fixed()
	require.NoError(t, err)
	require.Equal(t, []byte{0, 0}, buf.Bytes())
}

// TestShardingPartialEncodeEquivalence interleaves random partial encodes
// with full decodes and requires the shard to track a reference chunk
// maintained with plain overlays. The gzip cases make encoded inner-chunk
// sizes vary between writes, so re-encoded chunks shrink as well as grow,
// and the fill patches force elision and re-adding along the way.
func TestShardingPartialEncodeEquivalence(t *testing.T) {
	defer leaktest.AfterTest(t)()

	seed := uint64(time.Now().UnixNano())
	t.Logf("seed %d", seed)
	rng := rand.New(rand.NewPCG(0, seed))
	ctx := context.Background()

	gz, err := NewGzipCodec(6)
	require.NoError(t, err)
	gzipInner, err := NewChain(nil, NewBytesCodec(EndianLittle), []BytesToBytesCodec{gz})
	require.NoError(t, err)

	cases := []struct {
		name     string
		inner    *Chain
		location IndexLocation
	}{
		{name: "start", location: IndexLocationStart},
		{name: "end", location: IndexLocationEnd},
		{name: "gzip-start", inner: gzipInner, location: IndexLocationStart},
		{name: "gzip-end", inner: gzipInner, location: IndexLocationEnd},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			sc, err := NewShardingCodec([]uint64{2, 2}, tc.inner, nil, tc.location)
			require.NoError(t, err)
			shape := []uint64{4, 6}
			rep := testRep(t, shape, dtype.Uint16, []byte{0, 0})
			store := storage.NewMemStore()

			ref, err := arraybytes.NewFill(dtype.Uint16, rep.NumElements(), rep.FillValue())
			require.NoError(t, err)
			pe, err := sc.PartialEncoder(NewStoreWriter(store, "shard"), rep, nil)
			require.NoError(t, err)

			for i := range 20 {
				start := []uint64{uint64(rng.IntN(4)), uint64(rng.IntN(6))}
				sshape := []uint64{
					1 + uint64(rng.IntN(int(4-start[0]))),
					1 + uint64(rng.IntN(int(6-start[1]))),
				}
				sub := mustSubset(t, start, sshape)
				payload := randBytes(rng, int(sub.NumElements()*2))
				if i%3 == 2 {
					payload = make([]byte, len(payload))
				}
				patch := arraybytes.NewFixed(arraybytes.Owned(payload))

				require.NoError(t, pe.PartialEncode(ctx, sub, patch))
				ref, err = arraybytes.Update(ref, shape, sub, patch, dtype.Uint16)
				require.NoError(t, err)

				raw, found, err := store.Get(ctx, "shard")
				require.NoError(t, err)
				if !found {
					// Every inner chunk went to fill and the shard was erased.
					require.True(t, ref.IsFill(dtype.Uint16, rep.FillValue()))
					continue
				}
				dec, err := sc.Decode(arraybytes.Borrowed(raw), rep, nil)
				require.NoError(t, err)
				gotBuf, err := dec.Fixed()
				require.NoError(t, err)
				refBuf, err := ref.Fixed()
				require.NoError(t, err)
				require.Equal(t, refBuf.Bytes(), gotBuf.Bytes())
			}
		})
	}
}

// TestShardingPartialEncodeCompressedShrink writes updates whose encoded
// size ends short of the stored shard length: with the index at the end the
// fresh index must still land as the value's exact suffix, since SetPartial
// never truncates and the decoder locates the index from the tail.
func TestShardingPartialEncodeCompressedShrink(t *testing.T) {
	defer leaktest.AfterTest(t)()

	seed := uint64(time.Now().UnixNano())
	t.Logf("seed %d", seed)
	rng := rand.New(rand.NewPCG(0, seed))
	ctx := context.Background()

	gz, err := NewGzipCodec(6)
	require.NoError(t, err)
	inner, err := NewChain(nil, NewBytesCodec(EndianUnspecified), []BytesToBytesCodec{gz})
	require.NoError(t, err)
	sc, err := NewShardingCodec([]uint64{256}, inner, nil, IndexLocationEnd)
	require.NoError(t, err)
	rep := testRep(t, []uint64{768}, dtype.Uint8, []byte{0})
	store := storage.NewMemStore()

	// Incompressible seed content keeps the initial inner chunks large.
	data := randBytes(rng, 768)
	enc, err := sc.Encode(arraybytes.NewFixed(arraybytes.Borrowed(data)), rep, nil)
	require.NoError(t, err)
	require.NoError(t, store.Set(ctx, "shard", enc.Bytes()))

	// Elide the last inner chunk, then replace the first with a run that
	// compresses far below its stored size.
	pe, err := sc.PartialEncoder(NewStoreWriter(store, "shard"), rep, nil)
	require.NoError(t, err)
	require.NoError(t, pe.PartialEncode(ctx,
		mustSubset(t, []uint64{512}, []uint64{256}),
		arraybytes.NewFixed(arraybytes.Owned(make([]byte, 256)))))
	run := make([]byte, 256)
	for i := range run {
		run[i] = 0x5A
	}
	require.NoError(t, pe.PartialEncode(ctx,
		mustSubset(t, []uint64{0}, []uint64{256}),
		arraybytes.NewFixed(arraybytes.Borrowed(run))))

	want := append([]byte(nil), run...)
	want = append(want, data[256:512]...)
	want = append(want, make([]byte, 256)...)

	// A fresh decode must see both updates, not a stale index.
	raw, found, err := store.Get(ctx, "shard")
	require.NoError(t, err)
	require.True(t, found)
	dec, err := sc.Decode(arraybytes.Borrowed(raw), rep, nil)
	require.NoError(t, err)
	buf, err := dec.Fixed()
	require.NoError(t, err)
	require.Equal(t, want, buf.Bytes())

	// The same updates read back through a fresh partial decoder.
	pd, err := sc.PartialDecoder(NewStoreReader(store, "shard"), rep, nil)
	require.NoError(t, err)
	got, err := pd.PartialDecode(ctx, mustSubset(t, []uint64{0}, []uint64{256}))
	require.NoError(t, err)
	gotBuf, err := got.Fixed()
	require.NoError(t, err)
	require.Equal(t, run, gotBuf.Bytes())
}

func TestShardingPartialEncodeStraddling(t *testing.T) {
	defer leaktest.AfterTest(t)()
	ctx := context.Background()

	sc, err := NewShardingCodec([]uint64{2, 2}, nil, nil, IndexLocationEnd)
	require.NoError(t, err)
	shape := []uint64{4, 4}
	rep := testRep(t, shape, dtype.Uint16, []byte{0, 0})
	store := storage.NewMemStore()

	// Seed the shard with a full encode so the straddled chunks must be read
	// back and merged.
	base16 := make([]byte, 32)
	for i := range base16 {
		base16[i] = byte(i + 1)
	}
	enc, err := sc.Encode(arraybytes.NewFixed(arraybytes.Borrowed(base16)), rep, nil)
	require.NoError(t, err)
	require.NoError(t, store.Set(ctx, "shard", enc.Bytes()))

	// The center 2x2 touches all four inner chunks without covering any.
	pe, err := sc.PartialEncoder(NewStoreWriter(store, "shard"), rep, nil)
	require.NoError(t, err)
	patch := []byte{0xB1, 0, 0xB2, 0, 0xB3, 0, 0xB4, 0}
	sub := mustSubset(t, []uint64{1, 1}, []uint64{2, 2})
	require.NoError(t, pe.PartialEncode(ctx, sub,
		arraybytes.NewFixed(arraybytes.Borrowed(patch))))

	ref, err := arraybytes.Update(
		arraybytes.NewFixed(arraybytes.Borrowed(base16)), shape, sub,
		arraybytes.NewFixed(arraybytes.Borrowed(patch)), dtype.Uint16)
	require.NoError(t, err)

	raw, _, err := store.Get(ctx, "shard")
	require.NoError(t, err)
	dec, err := sc.Decode(arraybytes.Borrowed(raw), rep, nil)
	require.NoError(t, err)
	gotBuf, err := dec.Fixed()
	require.NoError(t, err)
	refBuf, err := ref.Fixed()
	require.NoError(t, err)
	require.Equal(t, refBuf.Bytes(), gotBuf.Bytes())
}

func TestShardingPartialEncodeEraseOnAllFill(t *testing.T) {
	defer leaktest.AfterTest(t)()
	ctx := context.Background()

	sc, err := NewShardingCodec([]uint64{2, 2}, nil, nil, IndexLocationEnd)
	require.NoError(t, err)
	rep := testRep(t, []uint64{4, 4}, dtype.Uint16, []byte{0, 0})
	store := storage.NewMemStore()

	data := randBytes(rand.New(rand.NewPCG(0, 1)), 32)
	enc, err := sc.Encode(arraybytes.NewFixed(arraybytes.Borrowed(data)), rep, nil)
	require.NoError(t, err)
	require.NoError(t, store.Set(ctx, "shard", enc.Bytes()))

	// Overwriting the whole shard with fill erases the key entirely.
	pe, err := sc.PartialEncoder(NewStoreWriter(store, "shard"), rep, nil)
	require.NoError(t, err)
	require.NoError(t, pe.PartialEncode(ctx,
		mustSubset(t, []uint64{0, 0}, []uint64{4, 4}),
		arraybytes.NewFixed(arraybytes.Borrowed(make([]byte, 32)))))

	_, found, err := store.Get(ctx, "shard")
	require.NoError(t, err)
	require.False(t, found)

	// Erase on an already-absent shard is a no-op.
	require.NoError(t, pe.Erase(ctx))
}
