// Copyright 2026 The Zarr-Go Authors. All rights reserved. Use of this source
// code is governed by a BSD-style license that can be found in the LICENSE
// file.

package dtype

import (
	"testing"

	"github.com/cockroachdb/crlib/testutils/leaktest"
	"github.com/stretchr/testify/require"
	"github.com/zarrgo/zarr/internal/base"
)

func TestValidateFillValueFixed(t *testing.T) {
	defer leaktest.AfterTest(t)()

	require.NoError(t, Uint32.ValidateFillValue(NewFillValue([]byte{1, 2, 3, 4})))
	err := Uint32.ValidateFillValue(NewFillValue([]byte{1, 2, 3}))
	require.Error(t, err)
	require.True(t, base.IsDataError(err))

	// Variable-size types accept any payload length.
	require.NoError(t, String.ValidateFillValue(NewFillValue(nil)))
	require.NoError(t, String.ValidateFillValue(NewFillValue([]byte("hello"))))
}

// TestValidateFillValueOptionalBoundary exercises every boundary of the
// optional fill-value size rule: for nesting depth n over an innermost fixed
// size S, valid lengths are exactly 1, 2..n, and S+n.
func TestValidateFillValueOptionalBoundary(t *testing.T) {
	defer leaktest.AfterTest(t)()

	// Depth 2 over float32: valid sizes are {1, 2, 6}.
	dt := Optional(Optional(Float32))
	valid := map[int]bool{1: true, 2: true, 6: true}
	for size := 0; size <= 8; size++ {
		err := dt.ValidateFillValue(NewFillValue(make([]byte, size)))
		if valid[size] {
			require.NoError(t, err, "size %d", size)
		} else {
			require.Error(t, err, "size %d", size)
			require.True(t, base.IsDataError(err), "size %d", size)
		}
	}

	// Depth 1 over uint16: valid sizes are {1, 3}. The 2..n band is empty.
	dt = Optional(Uint16)
	valid = map[int]bool{1: true, 3: true}
	for size := 0; size <= 5; size++ {
		err := dt.ValidateFillValue(NewFillValue(make([]byte, size)))
		if valid[size] {
			require.NoError(t, err, "size %d", size)
		} else {
			require.Error(t, err, "size %d", size)
		}
	}

	// Depth 3 over int8: valid sizes are {1, 2, 3, 4}.
	dt = Optional(Optional(Optional(Int8)))
	valid = map[int]bool{1: true, 2: true, 3: true, 4: true}
	for size := 0; size <= 6; size++ {
		err := dt.ValidateFillValue(NewFillValue(make([]byte, size)))
		require.Equal(t, valid[size], err == nil, "size %d", size)
	}
}

func TestValidateFillValueOptionalVariable(t *testing.T) {
	defer leaktest.AfterTest(t)()

	// Variable innermost: anything longer than the n presence bytes works.
	dt := Optional(String)
	require.NoError(t, dt.ValidateFillValue(NullFillValue()))
	require.NoError(t, dt.ValidateFillValue(NewFillValue([]byte{'a', 'b', 1})))
	require.Error(t, dt.ValidateFillValue(NewFillValue(nil)))
}

func TestSplitOptionalFill(t *testing.T) {
	defer leaktest.AfterTest(t)()

	dt := Optional(Uint16)

	present, inner, err := dt.SplitOptionalFill(NewFillValue([]byte{0x34, 0x12, 1}))
	require.NoError(t, err)
	require.True(t, present)
	require.Equal(t, []byte{0x34, 0x12}, inner.Bytes())

	// A null outer layer substitutes the inner type's placeholder.
	present, inner, err = dt.SplitOptionalFill(NullFillValue())
	require.NoError(t, err)
	require.False(t, present)
	require.Equal(t, []byte{0, 0}, inner.Bytes())

	// Null at the second level of a depth-2 type.
	dt2 := Optional(Optional(Uint16))
	present, inner, err = dt2.SplitOptionalFill(NewFillValue([]byte{0, 1}))
	require.NoError(t, err)
	require.True(t, present)
	require.Equal(t, []byte{0}, inner.Bytes())

	_, _, err = Uint16.SplitOptionalFill(NewFillValue([]byte{0, 0}))
	require.Error(t, err)
}

func TestIntoOptional(t *testing.T) {
	defer leaktest.AfterTest(t)()

	fv := NewFillValue([]byte{7, 7}).IntoOptional()
	require.Equal(t, []byte{7, 7, 1}, fv.Bytes())
	require.NoError(t, Optional(Uint16).ValidateFillValue(fv))
}

func TestEqualsAll(t *testing.T) {
	defer leaktest.AfterTest(t)()

	fv := NewFillValue([]byte{0xab, 0xcd})
	require.True(t, fv.EqualsAll(nil))
	require.True(t, fv.EqualsAll([]byte{0xab, 0xcd, 0xab, 0xcd}))
	require.False(t, fv.EqualsAll([]byte{0xab, 0xcd, 0xab}))
	require.False(t, fv.EqualsAll([]byte{0xab, 0xce}))
}
