// Copyright 2026 The Zarr-Go Authors. All rights reserved. Use of this source
// code is governed by a BSD-style license that can be found in the LICENSE
// file.

package codec

import (
	"context"
	"sync"

	"github.com/zarrgo/zarr/arraybytes"
	"github.com/zarrgo/zarr/dtype"
	"github.com/zarrgo/zarr/indexer"
	"github.com/zarrgo/zarr/storage"
)

// The defaults in this file substitute for codecs without a true partial
// path: partial decode falls back to "decode everything, then extract", and
// partial encode to "read-modify-write the whole chunk".

// cachedBytesReader caches the full stream of next across repeated ReadAll
// calls on one decoder instance.
type cachedBytesReader struct {
	next BytesPartialReader

	once  sync.Once
	b     []byte
	found bool
	err   error
}

var _ BytesPartialReader = (*cachedBytesReader)(nil)

// NewCachedBytesReader wraps next so the full stream is fetched at most
// once. Use it when several partial decodes will hit the same full-decode
// fallback.
func NewCachedBytesReader(next BytesPartialReader) BytesPartialReader {
	return &cachedBytesReader{next: next}
}

func (r *cachedBytesReader) ReadAll(ctx context.Context) ([]byte, bool, error) {
	r.once.Do(func() {
		r.b, r.found, r.err = r.next.ReadAll(ctx)
	})
	return r.b, r.found, r.err
}

func (r *cachedBytesReader) ReadRanges(
	ctx context.Context, ranges []storage.ByteRange,
) ([][]byte, bool, error) {
	b, found, err := r.ReadAll(ctx)
	if err != nil || !found {
		return nil, found, err
	}
	return sliceRanges(b, ranges)
}

func (r *cachedBytesReader) SupportsPartial() bool { return false }

// sliceRanges resolves ranges against a fully materialized stream.
func sliceRanges(b []byte, ranges []storage.ByteRange) ([][]byte, bool, error) {
	out := make([][]byte, len(ranges))
	for i, rg := range ranges {
		start, end, err := rg.Resolve(uint64(len(b)))
		if err != nil {
			return nil, true, err
		}
		out[i] = b[start:end]
	}
	return out, true, nil
}

// bbPartialDecoderDefault decodes the whole stream of a bytes-to-bytes
// stage, then serves ranges from it.
type bbPartialDecoderDefault struct {
	codec   BytesToBytesCodec
	next    BytesPartialReader
	decoded BytesRep
	opts    *Options
}

var _ BytesPartialReader = (*bbPartialDecoderDefault)(nil)

// newBBPartialDecoderDefault is the fallback PartialDecoder for
// bytes-to-bytes codecs without a cheaper path.
func newBBPartialDecoderDefault(
	codec BytesToBytesCodec, next BytesPartialReader, decoded BytesRep, opts *Options,
) BytesPartialReader {
	return &bbPartialDecoderDefault{codec: codec, next: next, decoded: decoded, opts: opts}
}

func (r *bbPartialDecoderDefault) ReadAll(ctx context.Context) ([]byte, bool, error) {
	raw, found, err := r.next.ReadAll(ctx)
	if err != nil || !found {
		return nil, found, err
	}
	buf, err := r.codec.Decode(arraybytes.Borrowed(raw), r.decoded, r.opts)
	if err != nil {
		return nil, true, err
	}
	return buf.Bytes(), true, nil
}

func (r *bbPartialDecoderDefault) ReadRanges(
	ctx context.Context, ranges []storage.ByteRange,
) ([][]byte, bool, error) {
	b, found, err := r.ReadAll(ctx)
	if err != nil || !found {
		return nil, found, err
	}
	return sliceRanges(b, ranges)
}

func (r *bbPartialDecoderDefault) SupportsPartial() bool { return false }

// bbPartialEncoderDefault read-modify-writes the whole stream of a
// bytes-to-bytes stage.
type bbPartialEncoderDefault struct {
	bbPartialDecoderDefault
	writer BytesPartialWriter
}

var _ BytesPartialWriter = (*bbPartialEncoderDefault)(nil)

// newBBPartialEncoderDefault is the fallback PartialEncoder for
// bytes-to-bytes codecs.
func newBBPartialEncoderDefault(
	codec BytesToBytesCodec, next BytesPartialWriter, decoded BytesRep, opts *Options,
) BytesPartialWriter {
	return &bbPartialEncoderDefault{
		bbPartialDecoderDefault: bbPartialDecoderDefault{
			codec: codec, next: next, decoded: decoded, opts: opts,
		},
		writer: next,
	}
}

func (w *bbPartialEncoderDefault) WriteAt(ctx context.Context, offset uint64, b []byte) error {
	cur, found, err := w.ReadAll(ctx)
	if err != nil {
		return err
	}
	if !found {
		cur = nil
	}
	end := offset + uint64(len(b))
	if uint64(len(cur)) < end {
		grown := make([]byte, end)
		copy(grown, cur)
		cur = grown
	}
	copy(cur[offset:end], b)
	return w.Put(ctx, cur)
}

func (w *bbPartialEncoderDefault) Put(ctx context.Context, b []byte) error {
	enc, err := w.codec.Encode(arraybytes.Borrowed(b), w.opts)
	if err != nil {
		return err
	}
	return w.writer.Put(ctx, enc.Bytes())
}

func (w *bbPartialEncoderDefault) Erase(ctx context.Context) error {
	return w.writer.Erase(ctx)
}

func (w *bbPartialEncoderDefault) SupportsPartialWrite() bool { return false }

// abPartialDecoderDefault fully decodes an array-to-bytes stage, then
// extracts the requested elements. A missing stored value decodes to fill.
type abPartialDecoderDefault struct {
	codec ArrayToBytesCodec
	next  BytesPartialReader
	rep   ChunkRep
	opts  *Options
}

var _ ArrayPartialReader = (*abPartialDecoderDefault)(nil)

// newABPartialDecoderDefault is the fallback PartialDecoder for
// array-to-bytes codecs.
func newABPartialDecoderDefault(
	codec ArrayToBytesCodec, next BytesPartialReader, rep ChunkRep, opts *Options,
) ArrayPartialReader {
	return &abPartialDecoderDefault{codec: codec, next: next, rep: rep, opts: opts}
}

func (r *abPartialDecoderDefault) DataType() dtype.DataType { return r.rep.DataType() }

func (r *abPartialDecoderDefault) Exists(ctx context.Context) (bool, error) {
	return exists(ctx, r.next)
}

func (r *abPartialDecoderDefault) PartialDecode(
	ctx context.Context, idx indexer.Indexer,
) (arraybytes.ArrayBytes, error) {
	if err := idx.Validate(r.rep.Shape()); err != nil {
		return arraybytes.ArrayBytes{}, err
	}
	raw, found, err := r.next.ReadAll(ctx)
	if err != nil {
		return arraybytes.ArrayBytes{}, err
	}
	if !found {
		return arraybytes.NewFill(r.rep.DataType(), idx.NumElements(), r.rep.FillValue())
	}
	whole, err := r.codec.Decode(arraybytes.Borrowed(raw), r.rep, r.opts)
	if err != nil {
		return arraybytes.ArrayBytes{}, err
	}
	return arraybytes.ExtractSubset(whole, r.rep.Shape(), idx, r.rep.DataType())
}

// abPartialEncoderDefault read-modify-writes a whole chunk through an
// array-to-bytes stage: decode existing bytes (or synthesize fill), overlay
// the patch, detect all-fill results, re-encode, write back.
type abPartialEncoderDefault struct {
	abPartialDecoderDefault
	writer BytesPartialWriter
}

var _ ArrayPartialWriter = (*abPartialEncoderDefault)(nil)

// newABPartialEncoderDefault is the fallback PartialEncoder for
// array-to-bytes codecs.
func newABPartialEncoderDefault(
	codec ArrayToBytesCodec, next BytesPartialWriter, rep ChunkRep, opts *Options,
) ArrayPartialWriter {
	return &abPartialEncoderDefault{
		abPartialDecoderDefault: abPartialDecoderDefault{
			codec: codec, next: next, rep: rep, opts: opts,
		},
		writer: next,
	}
}

func (w *abPartialEncoderDefault) Erase(ctx context.Context) error {
	return w.writer.Erase(ctx)
}

func (w *abPartialEncoderDefault) PartialEncode(
	ctx context.Context, idx indexer.Indexer, patch arraybytes.ArrayBytes,
) error {
	if err := idx.Validate(w.rep.Shape()); err != nil {
		return err
	}
	if err := patch.Validate(idx.NumElements(), w.rep.DataType()); err != nil {
		return err
	}
	raw, found, err := w.next.ReadAll(ctx)
	if err != nil {
		return err
	}
	var chunk arraybytes.ArrayBytes
	if found {
		chunk, err = w.codec.Decode(arraybytes.Borrowed(raw), w.rep, w.opts)
	} else {
		chunk, err = arraybytes.NewFill(w.rep.DataType(), w.rep.NumElements(), w.rep.FillValue())
	}
	if err != nil {
		return err
	}
	updated, err := arraybytes.Update(chunk, w.rep.Shape(), idx, patch, w.rep.DataType())
	if err != nil {
		return err
	}
	if !w.opts.StoreEmptyChunks && updated.IsFill(w.rep.DataType(), w.rep.FillValue()) {
		// Sparse representation: an all-fill chunk is stored as absence.
		return w.writer.Erase(ctx)
	}
	enc, err := w.codec.Encode(updated, w.rep, w.opts)
	if err != nil {
		return err
	}
	// Put replaces the whole value, so no stale trailing bytes from a
	// previous larger encoding can survive.
	return w.writer.Put(ctx, enc.Bytes())
}

// cachedArrayReader caches the fully decoded chunk across repeated partial
// decodes on one reader instance.
type cachedArrayReader struct {
	next ArrayPartialReader
	rep  ChunkRep

	once  sync.Once
	whole arraybytes.ArrayBytes
	found bool
	err   error
}

var _ ArrayPartialReader = (*cachedArrayReader)(nil)

// NewCachedArrayReader wraps next so the whole chunk is decoded at most once
// and every partial decode extracts from the cached copy. Use it when many
// small reads will hit the same chunk through a decoder without a true
// partial path.
func NewCachedArrayReader(next ArrayPartialReader, rep ChunkRep) ArrayPartialReader {
	return &cachedArrayReader{next: next, rep: rep}
}

func (r *cachedArrayReader) DataType() dtype.DataType { return r.rep.DataType() }

func (r *cachedArrayReader) Exists(ctx context.Context) (bool, error) {
	r.load(ctx)
	return r.found, r.err
}

func (r *cachedArrayReader) load(ctx context.Context) {
	r.once.Do(func() {
		r.found, r.err = r.next.Exists(ctx)
		if r.err != nil || !r.found {
			return
		}
		r.whole, r.err = r.next.PartialDecode(ctx, indexer.WholeArray(r.rep.Shape()))
	})
}

func (r *cachedArrayReader) PartialDecode(
	ctx context.Context, idx indexer.Indexer,
) (arraybytes.ArrayBytes, error) {
	if err := idx.Validate(r.rep.Shape()); err != nil {
		return arraybytes.ArrayBytes{}, err
	}
	r.load(ctx)
	if r.err != nil {
		return arraybytes.ArrayBytes{}, r.err
	}
	if !r.found {
		return arraybytes.NewFill(r.rep.DataType(), idx.NumElements(), r.rep.FillValue())
	}
	return arraybytes.ExtractSubset(r.whole, r.rep.Shape(), idx, r.rep.DataType())
}

// aaPartialDecoderDefault decodes the whole chunk through an array-to-array
// stage, then extracts.
type aaPartialDecoderDefault struct {
	codec   ArrayToArrayCodec
	next    ArrayPartialReader
	decoded ChunkRep
	encoded ChunkRep
	opts    *Options
}

var _ ArrayPartialReader = (*aaPartialDecoderDefault)(nil)

// newAAPartialDecoderDefault is the fallback PartialDecoder for
// array-to-array codecs.
func newAAPartialDecoderDefault(
	codec ArrayToArrayCodec, next ArrayPartialReader, decoded ChunkRep, opts *Options,
) (ArrayPartialReader, error) {
	encoded, err := codec.EncodedRep(decoded)
	if err != nil {
		return nil, err
	}
	return &aaPartialDecoderDefault{
		codec: codec, next: next, decoded: decoded, encoded: encoded, opts: opts,
	}, nil
}

func (r *aaPartialDecoderDefault) DataType() dtype.DataType { return r.decoded.DataType() }

func (r *aaPartialDecoderDefault) Exists(ctx context.Context) (bool, error) {
	return r.next.Exists(ctx)
}

func (r *aaPartialDecoderDefault) PartialDecode(
	ctx context.Context, idx indexer.Indexer,
) (arraybytes.ArrayBytes, error) {
	if err := idx.Validate(r.decoded.Shape()); err != nil {
		return arraybytes.ArrayBytes{}, err
	}
	wholeEncoded, err := r.next.PartialDecode(ctx, indexer.WholeArray(r.encoded.Shape()))
	if err != nil {
		return arraybytes.ArrayBytes{}, err
	}
	whole, err := r.codec.Decode(wholeEncoded, r.decoded, r.opts)
	if err != nil {
		return arraybytes.ArrayBytes{}, err
	}
	return arraybytes.ExtractSubset(whole, r.decoded.Shape(), idx, r.decoded.DataType())
}

// aaPartialEncoderDefault read-modify-writes the whole chunk through an
// array-to-array stage.
type aaPartialEncoderDefault struct {
	aaPartialDecoderDefault
	writer ArrayPartialWriter
}

var _ ArrayPartialWriter = (*aaPartialEncoderDefault)(nil)

// newAAPartialEncoderDefault is the fallback PartialEncoder for
// array-to-array codecs.
func newAAPartialEncoderDefault(
	codec ArrayToArrayCodec, next ArrayPartialWriter, decoded ChunkRep, opts *Options,
) (ArrayPartialWriter, error) {
	encoded, err := codec.EncodedRep(decoded)
	if err != nil {
		return nil, err
	}
	return &aaPartialEncoderDefault{
		aaPartialDecoderDefault: aaPartialDecoderDefault{
			codec: codec, next: next, decoded: decoded, encoded: encoded, opts: opts,
		},
		writer: next,
	}, nil
}

func (w *aaPartialEncoderDefault) Erase(ctx context.Context) error {
	return w.writer.Erase(ctx)
}

func (w *aaPartialEncoderDefault) PartialEncode(
	ctx context.Context, idx indexer.Indexer, patch arraybytes.ArrayBytes,
) error {
	if err := idx.Validate(w.decoded.Shape()); err != nil {
		return err
	}
	wholeEncoded, err := w.next.PartialDecode(ctx, indexer.WholeArray(w.encoded.Shape()))
	if err != nil {
		return err
	}
	whole, err := w.codec.Decode(wholeEncoded, w.decoded, w.opts)
	if err != nil {
		return err
	}
	updated, err := arraybytes.Update(whole, w.decoded.Shape(), idx, patch, w.decoded.DataType())
	if err != nil {
		return err
	}
	reencoded, err := w.codec.Encode(updated, w.decoded, w.opts)
	if err != nil {
		return err
	}
	return w.writer.PartialEncode(ctx, indexer.WholeArray(w.encoded.Shape()), reencoded)
}
