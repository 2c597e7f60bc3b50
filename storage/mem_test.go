// Copyright 2026 The Zarr-Go Authors. All rights reserved. Use of this source
// code is governed by a BSD-style license that can be found in the LICENSE
// file.

package storage

import (
	"context"
	"sync"
	"testing"

	"github.com/cockroachdb/crlib/testutils/leaktest"
	"github.com/stretchr/testify/require"
)

func TestMemStoreBasic(t *testing.T) {
	defer leaktest.AfterTest(t)()
	ctx := context.Background()
	s := NewMemStore()

	_, found, err := s.Get(ctx, "a")
	require.NoError(t, err)
	require.False(t, found)

	require.NoError(t, s.Set(ctx, "a", []byte("hello")))
	v, found, err := s.Get(ctx, "a")
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, []byte("hello"), v)

	// Erasing a missing key is not an error.
	require.NoError(t, s.Erase(ctx, "missing"))
	require.NoError(t, s.Erase(ctx, "a"))
	_, found, err = s.Get(ctx, "a")
	require.NoError(t, err)
	require.False(t, found)
}

func TestMemStoreGetPartial(t *testing.T) {
	defer leaktest.AfterTest(t)()
	ctx := context.Background()
	s := NewMemStore()
	require.NoError(t, s.Set(ctx, "k", []byte("0123456789")))

	vals, found, err := s.GetPartial(ctx, "k", []ByteRange{
		NewByteRange(0, 3),
		NewByteRange(8, 2),
		NewSuffixByteRange(4),
		NewByteRange(5, 0),
	})
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, []byte("012"), vals[0])
	require.Equal(t, []byte("89"), vals[1])
	require.Equal(t, []byte("6789"), vals[2])
	require.Empty(t, vals[3])

	_, found, err = s.GetPartial(ctx, "missing", []ByteRange{NewByteRange(0, 1)})
	require.NoError(t, err)
	require.False(t, found)

	// A range beyond the value is an error, not a truncation.
	_, found, err = s.GetPartial(ctx, "k", []ByteRange{NewByteRange(8, 4)})
	require.True(t, found)
	require.Error(t, err)
}

func TestMemStoreSetPartial(t *testing.T) {
	defer leaktest.AfterTest(t)()
	ctx := context.Background()
	s := NewMemStore()

	// SetPartial zero-extends missing or short values.
	require.NoError(t, s.SetPartial(ctx, "k", 2, []byte("ab")))
	v, found, err := s.Get(ctx, "k")
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, []byte{0, 0, 'a', 'b'}, v)

	require.NoError(t, s.SetPartial(ctx, "k", 0, []byte("XY")))
	v, _, err = s.Get(ctx, "k")
	require.NoError(t, err)
	require.Equal(t, []byte{'X', 'Y', 'a', 'b'}, v)
}

func TestMemStoreList(t *testing.T) {
	defer leaktest.AfterTest(t)()
	ctx := context.Background()
	s := NewMemStore()
	for _, k := range []string{"b/1", "a/2", "a/1", "c"} {
		require.NoError(t, s.Set(ctx, k, nil))
	}
	keys, err := s.List(ctx, "a/")
	require.NoError(t, err)
	require.Equal(t, []string{"a/1", "a/2"}, keys)

	keys, err = s.List(ctx, "")
	require.NoError(t, err)
	require.Equal(t, []string{"a/1", "a/2", "b/1", "c"}, keys)
}

func TestMemStoreConcurrent(t *testing.T) {
	defer leaktest.AfterTest(t)()
	ctx := context.Background()
	s := NewMemStore()

	var wg sync.WaitGroup
	for i := range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			key := string(rune('a' + i))
			for range 100 {
				require.NoError(t, s.Set(ctx, key, []byte{byte(i)}))
				v, found, err := s.Get(ctx, key)
				require.NoError(t, err)
				require.True(t, found)
				require.Equal(t, []byte{byte(i)}, v)
			}
		}()
	}
	wg.Wait()
	require.Equal(t, 8, s.Len())
}

func TestByteRangeResolve(t *testing.T) {
	defer leaktest.AfterTest(t)()

	start, end, err := NewByteRange(2, 3).Resolve(10)
	require.NoError(t, err)
	require.Equal(t, uint64(2), start)
	require.Equal(t, uint64(5), end)

	start, end, err = NewSuffixByteRange(4).Resolve(10)
	require.NoError(t, err)
	require.Equal(t, uint64(6), start)
	require.Equal(t, uint64(10), end)

	_, _, err = NewByteRange(8, 4).Resolve(10)
	require.Error(t, err)
	_, _, err = NewSuffixByteRange(11).Resolve(10)
	require.Error(t, err)
}
