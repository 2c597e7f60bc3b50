// Copyright 2026 The Zarr-Go Authors. All rights reserved. Use of this source
// code is governed by a BSD-style license that can be found in the LICENSE
// file.

package codec

import (
	"encoding/binary"
	"math/rand/v2"
	"testing"
	"time"

	"github.com/cockroachdb/crlib/testutils/leaktest"
	"github.com/stretchr/testify/require"
	"github.com/zarrgo/zarr/arraybytes"
	"github.com/zarrgo/zarr/dtype"
	"github.com/zarrgo/zarr/internal/base"
)

func TestPackbitsBool(t *testing.T) {
	defer leaktest.AfterTest(t)()

	c, err := NewPackbitsCodec(nil, nil)
	require.NoError(t, err)

	// Three bool elements pack LSB-first into a single byte.
	rep := testRep(t, []uint64{3}, dtype.Bool, []byte{0})
	enc, err := c.Encode(arraybytes.NewFixed(arraybytes.Borrowed([]byte{1, 0, 1})), rep, nil)
	require.NoError(t, err)
	require.Equal(t, []byte{0b101}, enc.Bytes())

	dec, err := c.Decode(enc, rep, nil)
	require.NoError(t, err)
	buf, err := dec.Fixed()
	require.NoError(t, err)
	require.Equal(t, []byte{1, 0, 1}, buf.Bytes())
}

func TestPackbitsBoolLengths(t *testing.T) {
	defer leaktest.AfterTest(t)()

	seed := uint64(time.Now().UnixNano())
	t.Logf("seed %d", seed)
	rng := rand.New(rand.NewPCG(0, seed))

	c, err := NewPackbitsCodec(nil, nil)
	require.NoError(t, err)
	for n := 1; n <= 20; n++ {
		rep := testRep(t, []uint64{uint64(n)}, dtype.Bool, []byte{0})
		data := make([]byte, n)
		for i := range data {
			data[i] = byte(rng.IntN(2))
		}
		enc, err := c.Encode(arraybytes.NewFixed(arraybytes.Borrowed(data)), rep, nil)
		require.NoError(t, err)
		require.Equal(t, (n+7)/8, enc.Len())
		dec, err := c.Decode(enc, rep, nil)
		require.NoError(t, err)
		buf, err := dec.Fixed()
		require.NoError(t, err)
		require.Equal(t, data, buf.Bytes(), "n=%d", n)
	}
}

func TestPackbitsBitWindow(t *testing.T) {
	defer leaktest.AfterTest(t)()

	// Keep the low 4 bits of each uint16: values below 16 survive the trip.
	first, last := 0, 3
	c, err := NewPackbitsCodec(&first, &last)
	require.NoError(t, err)
	rep := testRep(t, []uint64{4}, dtype.Uint16, []byte{0, 0})

	vals := []uint16{0, 7, 15, 9}
	data := make([]byte, 8)
	for i, v := range vals {
		binary.LittleEndian.PutUint16(data[i*2:], v)
	}
	enc, err := c.Encode(arraybytes.NewFixed(arraybytes.Borrowed(data)), rep, nil)
	require.NoError(t, err)
	require.Equal(t, 2, enc.Len())

	dec, err := c.Decode(enc, rep, nil)
	require.NoError(t, err)
	buf, err := dec.Fixed()
	require.NoError(t, err)
	require.Equal(t, data, buf.Bytes())
}

func TestPackbitsWindowErrors(t *testing.T) {
	defer leaktest.AfterTest(t)()

	first, last := 0, 16
	c, err := NewPackbitsCodec(&first, &last)
	require.NoError(t, err)

	// The window exceeds the 16-bit element width.
	rep := testRep(t, []uint64{1}, dtype.Uint16, []byte{0, 0})
	_, err = c.Encode(arraybytes.NewFixed(arraybytes.Borrowed([]byte{0, 0})), rep, nil)
	require.Error(t, err)
	require.True(t, base.IsConfigError(err))

	// first_bit and last_bit must come together.
	_, err = NewPackbitsCodec(&first, nil)
	require.Error(t, err)

	lo, hi := 3, 1
	_, err = NewPackbitsCodec(&lo, &hi)
	require.Error(t, err)
}

func TestPackbitsRejectsVariableAndOptional(t *testing.T) {
	defer leaktest.AfterTest(t)()

	c, err := NewPackbitsCodec(nil, nil)
	require.NoError(t, err)

	rep := testRep(t, []uint64{1}, dtype.Optional(dtype.Uint8), []byte{0})
	_, err = c.EncodedRep(rep)
	require.Error(t, err)
	require.True(t, base.IsConfigError(err))

	rep = testRep(t, []uint64{1}, dtype.String, nil)
	_, err = c.EncodedRep(rep)
	require.Error(t, err)
	require.True(t, base.IsConfigError(err))
}

func TestPackbitsLengthMismatch(t *testing.T) {
	defer leaktest.AfterTest(t)()

	c, err := NewPackbitsCodec(nil, nil)
	require.NoError(t, err)
	rep := testRep(t, []uint64{9}, dtype.Bool, []byte{0})
	_, err = c.Decode(arraybytes.Borrowed([]byte{0xFF}), rep, nil)
	require.Error(t, err)
	require.True(t, base.IsDataError(err))
}
