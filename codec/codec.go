// Copyright 2026 The Zarr-Go Authors. All rights reserved. Use of this source
// code is governed by a BSD-style license that can be found in the LICENSE
// file.

// Package codec implements the Zarr codec pipeline: composable
// array-to-array, array-to-bytes, and bytes-to-bytes transforms, the chain
// that drives them, and partial (sub-chunk) decode and encode machinery.
//
// Codecs are stateless after construction and safe for concurrent use on
// disjoint targets. Codec compute never suspends; the only context-aware
// calls are the partial reader/writer methods, whose suspension points are
// exactly the underlying store I/O.
package codec

import (
	"context"

	"github.com/zarrgo/zarr/arraybytes"
	"github.com/zarrgo/zarr/dtype"
	"github.com/zarrgo/zarr/indexer"
	"github.com/zarrgo/zarr/internal/base"
	"github.com/zarrgo/zarr/storage"
)

// ChunkRep describes one chunk: its shape (non-zero extents), element data
// type, and fill value. Immutable once constructed.
type ChunkRep struct {
	shape []uint64
	dt    dtype.DataType
	fill  dtype.FillValue
}

// NewChunkRep validates and constructs a chunk representation. Every
// dimension extent must be non-zero and the fill value must satisfy the
// data type's size rules.
func NewChunkRep(shape []uint64, dt dtype.DataType, fill dtype.FillValue) (ChunkRep, error) {
	for d, extent := range shape {
		if extent == 0 {
			return ChunkRep{}, base.ConfigErrorf("chunk shape %v has zero extent in dimension %d",
				shape, d)
		}
	}
	if err := dt.ValidateFillValue(fill); err != nil {
		return ChunkRep{}, err
	}
	return ChunkRep{shape: append([]uint64(nil), shape...), dt: dt, fill: fill}, nil
}

// Shape returns the chunk shape. The caller must not mutate it.
func (r ChunkRep) Shape() []uint64 { return r.shape }

// DataType returns the element data type.
func (r ChunkRep) DataType() dtype.DataType { return r.dt }

// FillValue returns the fill value.
func (r ChunkRep) FillValue() dtype.FillValue { return r.fill }

// NumElements returns the number of elements in the chunk.
func (r ChunkRep) NumElements() uint64 { return indexer.NumElements(r.shape) }

// BytesRepKind classifies an encoded size: exactly known, bounded above, or
// unbounded.
type BytesRepKind uint8

const (
	// BytesRepFixed means the encoded size is exactly Size bytes.
	BytesRepFixed BytesRepKind = iota
	// BytesRepBounded means the encoded size is at most Size bytes.
	BytesRepBounded
	// BytesRepUnbounded means the encoded size has no a priori bound.
	BytesRepUnbounded
)

// BytesRep describes the size of an encoded byte stream, so downstream
// stages and storage can pre-size buffers.
type BytesRep struct {
	Kind BytesRepKind
	Size uint64
}

// FixedBytesRep returns an exactly-sized representation.
func FixedBytesRep(size uint64) BytesRep { return BytesRep{Kind: BytesRepFixed, Size: size} }

// BoundedBytesRep returns a bounded representation.
func BoundedBytesRep(size uint64) BytesRep { return BytesRep{Kind: BytesRepBounded, Size: size} }

// UnboundedBytesRep returns an unbounded representation.
func UnboundedBytesRep() BytesRep { return BytesRep{Kind: BytesRepUnbounded} }

// PartialDecodeCapability declares whether a codec can decode a sub-region
// without reading (PartialRead) or decoding (PartialDecode) the whole chunk.
type PartialDecodeCapability struct {
	PartialRead   bool
	PartialDecode bool
}

// PartialEncodeCapability declares whether a codec can update a sub-region
// without re-encoding the whole chunk.
type PartialEncodeCapability struct {
	PartialEncode bool
}

// RecommendedConcurrency is a codec's suggestion for how many independent
// ranges it can profitably be driven with in parallel. The core performs no
// fan-out itself beyond the sharding codec; callers may.
type RecommendedConcurrency struct {
	Min, Max int
}

// ConcurrencyOf returns a concurrency hint of exactly n.
func ConcurrencyOf(n int) RecommendedConcurrency {
	return RecommendedConcurrency{Min: 1, Max: n}
}

// Options carries per-call codec options. The zero value is valid; use
// DefaultOptions for the defaults.
type Options struct {
	// ValidateChecksums makes checksum codecs verify on decode instead of
	// stripping the checksum unchecked.
	ValidateChecksums bool
	// StoreEmptyChunks keeps chunks whose content is entirely the fill
	// value instead of erasing them.
	StoreEmptyChunks bool
	// Concurrency bounds the fan-out of parallel inner-chunk work inside the
	// sharding codec. Zero means GOMAXPROCS.
	Concurrency int
}

// DefaultOptions returns the default codec options.
func DefaultOptions() *Options {
	return &Options{ValidateChecksums: true}
}

// resolveOptions substitutes the defaults for a nil options pointer.
func resolveOptions(opts *Options) *Options {
	if opts == nil {
		return DefaultOptions()
	}
	return opts
}

// Codec is the surface common to all three codec kinds.
type Codec interface {
	// Name returns the registered codec identifier.
	Name() string
	// Configuration returns the JSON-serializable configuration object, for
	// metadata round-tripping.
	Configuration() map[string]any
	// PartialDecodeCapability declares the codec's true partial-decode
	// support; when absent, the generic full-decode defaults are used.
	PartialDecodeCapability() PartialDecodeCapability
	// PartialEncodeCapability declares true partial-encode support.
	PartialEncodeCapability() PartialEncodeCapability
}

// ArrayToArrayCodec is a shape- or dtype-transforming stage ahead of
// serialization.
type ArrayToArrayCodec interface {
	Codec

	// EncodedRep maps the decoded chunk representation to the encoded one
	// (shape, dtype and fill value may all change).
	EncodedRep(decoded ChunkRep) (ChunkRep, error)

	// Encode transforms decoded element data.
	Encode(b arraybytes.ArrayBytes, decoded ChunkRep, opts *Options) (arraybytes.ArrayBytes, error)

	// Decode inverts Encode.
	Decode(b arraybytes.ArrayBytes, decoded ChunkRep, opts *Options) (arraybytes.ArrayBytes, error)

	// PartialDecoder wraps the next stage's partial reader with one that
	// answers indexers in this codec's decoded space.
	PartialDecoder(next ArrayPartialReader, decoded ChunkRep, opts *Options) (ArrayPartialReader, error)

	// PartialEncoder is the encode-side analogue of PartialDecoder.
	PartialEncoder(next ArrayPartialWriter, decoded ChunkRep, opts *Options) (ArrayPartialWriter, error)

	// RecommendedConcurrency suggests a parallelism level for this chunk.
	RecommendedConcurrency(decoded ChunkRep) (RecommendedConcurrency, error)
}

// ArrayToBytesCodec is the terminal serialization stage.
type ArrayToBytesCodec interface {
	Codec

	// EncodedRep describes the encoded byte size for a chunk.
	EncodedRep(decoded ChunkRep) (BytesRep, error)

	// Encode serializes decoded element data.
	Encode(b arraybytes.ArrayBytes, decoded ChunkRep, opts *Options) (arraybytes.Buf, error)

	// Decode inverts Encode.
	Decode(raw arraybytes.Buf, decoded ChunkRep, opts *Options) (arraybytes.ArrayBytes, error)

	// PartialDecoder wraps a byte-level reader with an element-level one.
	// This is the stage where indexers translate to byte ranges.
	PartialDecoder(next BytesPartialReader, decoded ChunkRep, opts *Options) (ArrayPartialReader, error)

	// PartialEncoder is the encode-side analogue of PartialDecoder.
	PartialEncoder(next BytesPartialWriter, decoded ChunkRep, opts *Options) (ArrayPartialWriter, error)

	// RecommendedConcurrency suggests a parallelism level for this chunk.
	RecommendedConcurrency(decoded ChunkRep) (RecommendedConcurrency, error)
}

// BytesToBytesCodec is a pure byte-stream transform (compression,
// checksums, shuffling).
type BytesToBytesCodec interface {
	Codec

	// EncodedRep maps the decoded byte representation to the encoded one.
	EncodedRep(decoded BytesRep) BytesRep

	// Encode transforms raw bytes.
	Encode(raw arraybytes.Buf, opts *Options) (arraybytes.Buf, error)

	// Decode inverts Encode. decoded describes the expected decoded size.
	Decode(raw arraybytes.Buf, decoded BytesRep, opts *Options) (arraybytes.Buf, error)

	// PartialDecoder wraps the next stage's byte reader with one addressing
	// this codec's decoded byte space.
	PartialDecoder(next BytesPartialReader, decoded BytesRep, opts *Options) (BytesPartialReader, error)

	// PartialEncoder is the encode-side analogue of PartialDecoder.
	PartialEncoder(next BytesPartialWriter, decoded BytesRep, opts *Options) (BytesPartialWriter, error)
}

// BytesPartialReader reads ranges of an encoded byte stream. The innermost
// implementation reads store bytes; bytes-to-bytes codecs wrap it.
type BytesPartialReader interface {
	// ReadRanges returns one byte slice per range, or found=false if the
	// underlying value does not exist.
	ReadRanges(ctx context.Context, ranges []storage.ByteRange) ([][]byte, bool, error)

	// ReadAll returns the entire decoded byte stream, or found=false if the
	// underlying value does not exist.
	ReadAll(ctx context.Context) ([]byte, bool, error)

	// SupportsPartial reports whether ReadRanges avoids materializing the
	// whole stream.
	SupportsPartial() bool
}

// BytesPartialWriter extends BytesPartialReader with byte-level writes.
type BytesPartialWriter interface {
	BytesPartialReader

	// WriteAt overwrites len(b) bytes at offset, extending the value as
	// needed.
	WriteAt(ctx context.Context, offset uint64, b []byte) error

	// Put replaces the entire value.
	Put(ctx context.Context, b []byte) error

	// Erase removes the value.
	Erase(ctx context.Context) error

	// SupportsPartialWrite reports whether WriteAt avoids rewriting the
	// whole value.
	SupportsPartialWrite() bool
}

// ArrayPartialReader decodes element selections of one chunk.
type ArrayPartialReader interface {
	// DataType returns the element type of the decoded data.
	DataType() dtype.DataType

	// Exists reports whether the underlying stored value exists.
	Exists(ctx context.Context) (bool, error)

	// PartialDecode decodes just the elements idx addresses, in indexer
	// order. A missing stored value decodes to fill-value elements.
	PartialDecode(ctx context.Context, idx indexer.Indexer) (arraybytes.ArrayBytes, error)
}

// ArrayPartialWriter extends ArrayPartialReader with element-level updates.
type ArrayPartialWriter interface {
	ArrayPartialReader

	// PartialEncode overlays patch at the elements idx addresses and writes
	// the result back through the underlying writer.
	PartialEncode(ctx context.Context, idx indexer.Indexer, patch arraybytes.ArrayBytes) error

	// Erase removes the stored value.
	Erase(ctx context.Context) error
}
