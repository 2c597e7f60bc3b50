// Copyright 2026 The Zarr-Go Authors. All rights reserved. Use of this source
// code is governed by a BSD-style license that can be found in the LICENSE
// file.

package codec

import (
	"context"
	"math/rand/v2"
	"testing"
	"time"

	"github.com/cockroachdb/crlib/testutils/leaktest"
	"github.com/stretchr/testify/require"
	"github.com/zarrgo/zarr/arraybytes"
	"github.com/zarrgo/zarr/dtype"
	"github.com/zarrgo/zarr/indexer"
	"github.com/zarrgo/zarr/storage"
)

// TestChainPartialDecode checks that partial reads through a chain with true
// partial support (transpose over bytes) match subset extraction from the
// fully decoded chunk.
func TestChainPartialDecode(t *testing.T) {
	defer leaktest.AfterTest(t)()

	seed := uint64(time.Now().UnixNano())
	t.Logf("seed %d", seed)
	rng := rand.New(rand.NewPCG(0, seed))
	ctx := context.Background()

	tr, err := NewTransposeCodec([]int{1, 0})
	require.NoError(t, err)
	chain, err := NewChain([]ArrayToArrayCodec{tr}, NewBytesCodec(EndianLittle), nil)
	require.NoError(t, err)

	shape := []uint64{4, 6}
	rep := testRep(t, shape, dtype.Uint32, []byte{0xAA, 0, 0, 0})
	data := randBytes(rng, int(rep.NumElements()*4))

	store := storage.NewMemStore()
	enc, err := chain.Encode(arraybytes.NewFixed(arraybytes.Borrowed(data)), rep, nil)
	require.NoError(t, err)
	require.NoError(t, store.Set(ctx, "chunk", enc.Bytes()))

	pd, err := chain.PartialDecoder(NewStoreReader(store, "chunk"), rep, nil)
	require.NoError(t, err)
	require.True(t, pd.DataType().Equal(dtype.Uint32))
	found, err := pd.Exists(ctx)
	require.NoError(t, err)
	require.True(t, found)

	whole := arraybytes.NewFixed(arraybytes.Borrowed(data))
	for range 20 {
		start := []uint64{uint64(rng.IntN(4)), uint64(rng.IntN(6))}
		sshape := []uint64{
			1 + uint64(rng.IntN(int(4-start[0]))),
			1 + uint64(rng.IntN(int(6-start[1]))),
		}
		sub := mustSubset(t, start, sshape)
		got, err := pd.PartialDecode(ctx, sub)
		require.NoError(t, err)
		want, err := arraybytes.ExtractSubset(whole, shape, sub, dtype.Uint32)
		require.NoError(t, err)
		gotBuf, err := got.Fixed()
		require.NoError(t, err)
		wantBuf, err := want.Fixed()
		require.NoError(t, err)
		require.Equal(t, wantBuf.Bytes(), gotBuf.Bytes(), "subset %v+%v", start, sshape)
	}

	// Coordinate lists keep their element order through the permutation.
	coords, err := indexer.NewCoords([][]uint64{{3, 5}, {0, 0}, {1, 4}, {0, 0}}, 2)
	require.NoError(t, err)
	got, err := pd.PartialDecode(ctx, coords)
	require.NoError(t, err)
	want, err := arraybytes.ExtractSubset(whole, shape, coords, dtype.Uint32)
	require.NoError(t, err)
	gotBuf, err := got.Fixed()
	require.NoError(t, err)
	wantBuf, err := want.Fixed()
	require.NoError(t, err)
	require.Equal(t, wantBuf.Bytes(), gotBuf.Bytes())
}

func TestChainPartialDecodeMissing(t *testing.T) {
	defer leaktest.AfterTest(t)()
	ctx := context.Background()

	chain, err := NewChain(nil, NewBytesCodec(EndianLittle), nil)
	require.NoError(t, err)
	rep := testRep(t, []uint64{2, 2}, dtype.Uint16, []byte{0x11, 0x22})

	store := storage.NewMemStore()
	pd, err := chain.PartialDecoder(NewStoreReader(store, "missing"), rep, nil)
	require.NoError(t, err)
	found, err := pd.Exists(ctx)
	require.NoError(t, err)
	require.False(t, found)

	got, err := pd.PartialDecode(ctx, mustSubset(t, []uint64{0, 1}, []uint64{2, 1}))
	require.NoError(t, err)
	buf, err := got.Fixed()
	require.NoError(t, err)
	require.Equal(t, []byte{0x11, 0x22, 0x11, 0x22}, buf.Bytes())
}

// TestChainPartialDecodeCompressed exercises the full-decode fallback: gzip
// has no partial path, so the stream is fetched once, cached, and decoded.
func TestChainPartialDecodeCompressed(t *testing.T) {
	defer leaktest.AfterTest(t)()

	seed := uint64(time.Now().UnixNano())
	t.Logf("seed %d", seed)
	rng := rand.New(rand.NewPCG(0, seed))
	ctx := context.Background()

	gz, err := NewGzipCodec(6)
	require.NoError(t, err)
	chain, err := NewChain(nil, NewBytesCodec(EndianLittle),
		[]BytesToBytesCodec{gz, NewCRC32CCodec(ChecksumEnd)})
	require.NoError(t, err)

	shape := []uint64{5, 5}
	rep := testRep(t, shape, dtype.Uint16, []byte{0, 0})
	data := randBytes(rng, int(rep.NumElements()*2))

	store := storage.NewMemStore()
	enc, err := chain.Encode(arraybytes.NewFixed(arraybytes.Borrowed(data)), rep, nil)
	require.NoError(t, err)
	require.NoError(t, store.Set(ctx, "chunk", enc.Bytes()))

	pd, err := chain.PartialDecoder(NewStoreReader(store, "chunk"), rep, nil)
	require.NoError(t, err)
	whole := arraybytes.NewFixed(arraybytes.Borrowed(data))
	for range 10 {
		start := []uint64{uint64(rng.IntN(5)), uint64(rng.IntN(5))}
		sshape := []uint64{
			1 + uint64(rng.IntN(int(5-start[0]))),
			1 + uint64(rng.IntN(int(5-start[1]))),
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
		require.Equal(t, wantBuf.Bytes(), gotBuf.Bytes())
	}
}

// countingReader tracks how many byte fetches reach the store.
type countingReader struct {
	BytesPartialReader
	reads int
}

func (r *countingReader) ReadAll(ctx context.Context) ([]byte, bool, error) {
	r.reads++
	return r.BytesPartialReader.ReadAll(ctx)
}

func (r *countingReader) ReadRanges(
	ctx context.Context, ranges []storage.ByteRange,
) ([][]byte, bool, error) {
	r.reads++
	return r.BytesPartialReader.ReadRanges(ctx, ranges)
}

func TestCachedArrayReader(t *testing.T) {
	defer leaktest.AfterTest(t)()
	ctx := context.Background()

	gz, err := NewGzipCodec(6)
	require.NoError(t, err)
	chain, err := NewChain(nil, NewBytesCodec(EndianLittle), []BytesToBytesCodec{gz})
	require.NoError(t, err)
	shape := []uint64{3, 3}
	rep := testRep(t, shape, dtype.Uint16, []byte{0, 0})
	data := []byte{1, 0, 2, 0, 3, 0, 4, 0, 5, 0, 6, 0, 7, 0, 8, 0, 9, 0}

	store := storage.NewMemStore()
	enc, err := chain.Encode(arraybytes.NewFixed(arraybytes.Borrowed(data)), rep, nil)
	require.NoError(t, err)
	require.NoError(t, store.Set(ctx, "chunk", enc.Bytes()))

	counting := &countingReader{BytesPartialReader: NewStoreReader(store, "chunk")}
	pd, err := chain.PartialDecoder(counting, rep, nil)
	require.NoError(t, err)
	cached := NewCachedArrayReader(pd, rep)

	found, err := cached.Exists(ctx)
	require.NoError(t, err)
	require.True(t, found)
	for i := range 3 {
		got, err := cached.PartialDecode(ctx, mustSubset(t, []uint64{uint64(i), 0}, []uint64{1, 3}))
		require.NoError(t, err)
		buf, err := got.Fixed()
		require.NoError(t, err)
		require.Equal(t, data[i*6:(i+1)*6], buf.Bytes())
	}
	// One existence probe plus one full fetch, regardless of read count.
	require.LessOrEqual(t, counting.reads, 2)
}

// chainPartialEncodePatches drives random patches through a chain's partial
// encoder and checks each against a reference chunk maintained with plain
// overlays.
func chainPartialEncodePatches(t *testing.T, chain *Chain, rng *rand.Rand) {
	t.Helper()
	ctx := context.Background()

	shape := []uint64{4, 4}
	rep := testRep(t, shape, dtype.Uint16, []byte{0, 0})
	store := storage.NewMemStore()

	ref, err := arraybytes.NewFill(dtype.Uint16, rep.NumElements(), rep.FillValue())
	require.NoError(t, err)
	pe, err := chain.PartialEncoder(NewStoreWriter(store, "chunk"), rep, nil)
	require.NoError(t, err)

	for range 10 {
		start := []uint64{uint64(rng.IntN(4)), uint64(rng.IntN(4))}
		sshape := []uint64{
			1 + uint64(rng.IntN(int(4-start[0]))),
			1 + uint64(rng.IntN(int(4-start[1]))),
		}
		sub := mustSubset(t, start, sshape)
		patch := arraybytes.NewFixed(arraybytes.Owned(randBytes(rng, int(sub.NumElements()*2))))

		require.NoError(t, pe.PartialEncode(ctx, sub, patch))
		ref, err = arraybytes.Update(ref, shape, sub, patch, dtype.Uint16)
		require.NoError(t, err)

		raw, found, err := store.Get(ctx, "chunk")
		require.NoError(t, err)
		require.True(t, found)
		dec, err := chain.Decode(arraybytes.Borrowed(raw), rep, nil)
		require.NoError(t, err)
		gotBuf, err := dec.Fixed()
		require.NoError(t, err)
		refBuf, err := ref.Fixed()
		require.NoError(t, err)
		require.Equal(t, refBuf.Bytes(), gotBuf.Bytes())
	}

	require.NoError(t, pe.Erase(ctx))
	_, found, err := store.Get(ctx, "chunk")
	require.NoError(t, err)
	require.False(t, found)
}

func TestChainPartialEncode(t *testing.T) {
	defer leaktest.AfterTest(t)()

	seed := uint64(time.Now().UnixNano())
	t.Logf("seed %d", seed)
	rng := rand.New(rand.NewPCG(0, seed))

	// In-place element writes through the bytes codec.
	chain, err := NewChain(nil, NewBytesCodec(EndianLittle), nil)
	require.NoError(t, err)
	chainPartialEncodePatches(t, chain, rng)
}

func TestChainPartialEncodeReadModifyWrite(t *testing.T) {
	defer leaktest.AfterTest(t)()

	seed := uint64(time.Now().UnixNano())
	t.Logf("seed %d", seed)
	rng := rand.New(rand.NewPCG(0, seed))

	// Compression denies in-place writes; every patch round-trips through a
	// full decode and re-encode.
	gz, err := NewGzipCodec(6)
	require.NoError(t, err)
	chain, err := NewChain(nil, NewBytesCodec(EndianLittle), []BytesToBytesCodec{gz})
	require.NoError(t, err)
	chainPartialEncodePatches(t, chain, rng)
}
