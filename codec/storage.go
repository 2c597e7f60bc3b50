// Copyright 2026 The Zarr-Go Authors. All rights reserved. Use of this source
// code is governed by a BSD-style license that can be found in the LICENSE
// file.

package codec

import (
	"context"

	"github.com/zarrgo/zarr/storage"
)

// StoreReader is the innermost BytesPartialReader: raw bytes of one store
// key. Partial-decoder chains are built outward from it.
type StoreReader struct {
	store storage.Store
	key   string
}

var _ BytesPartialReader = (*StoreReader)(nil)

// NewStoreReader binds a store key as a byte-level partial reader.
func NewStoreReader(store storage.Store, key string) *StoreReader {
	return &StoreReader{store: store, key: key}
}

// ReadRanges implements BytesPartialReader.
func (r *StoreReader) ReadRanges(
	ctx context.Context, ranges []storage.ByteRange,
) ([][]byte, bool, error) {
	return r.store.GetPartial(ctx, r.key, ranges)
}

// ReadAll implements BytesPartialReader.
func (r *StoreReader) ReadAll(ctx context.Context) ([]byte, bool, error) {
	return r.store.Get(ctx, r.key)
}

// SupportsPartial implements BytesPartialReader.
func (r *StoreReader) SupportsPartial() bool { return true }

// StoreWriter is the innermost BytesPartialWriter: raw bytes of one store
// key. The codec engine performs no locking; concurrent partial encodes
// against the same key must be serialized by the caller or the store.
type StoreWriter struct {
	StoreReader
}

var _ BytesPartialWriter = (*StoreWriter)(nil)

// NewStoreWriter binds a store key as a byte-level partial writer.
func NewStoreWriter(store storage.Store, key string) *StoreWriter {
	return &StoreWriter{StoreReader{store: store, key: key}}
}

// WriteAt implements BytesPartialWriter.
func (w *StoreWriter) WriteAt(ctx context.Context, offset uint64, b []byte) error {
	return w.store.SetPartial(ctx, w.key, offset, b)
}

// Put implements BytesPartialWriter.
func (w *StoreWriter) Put(ctx context.Context, b []byte) error {
	return w.store.Set(ctx, w.key, b)
}

// Erase implements BytesPartialWriter.
func (w *StoreWriter) Erase(ctx context.Context) error {
	return w.store.Erase(ctx, w.key)
}

// SupportsPartialWrite implements BytesPartialWriter.
func (w *StoreWriter) SupportsPartialWrite() bool { return true }

// exists reports whether the value behind a BytesPartialReader is present,
// by issuing an empty-range read.
func exists(ctx context.Context, r BytesPartialReader) (bool, error) {
	_, found, err := r.ReadRanges(ctx, nil)
	return found, err
}
