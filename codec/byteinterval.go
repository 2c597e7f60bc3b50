// Copyright 2026 The Zarr-Go Authors. All rights reserved. Use of this source
// code is governed by a BSD-style license that can be found in the LICENSE
// file.

package codec

import (
	"context"

	"github.com/zarrgo/zarr/internal/base"
	"github.com/zarrgo/zarr/storage"
)

// byteIntervalReader exposes the sub-stream of next with prefix bytes
// removed from the front and suffix bytes removed from the back. Checksum
// codecs use it to strip their 4-byte frame on the partial-read path
// without materializing the stream.
type byteIntervalReader struct {
	next           BytesPartialReader
	prefix, suffix uint64
}

var _ BytesPartialReader = (*byteIntervalReader)(nil)

func newByteIntervalReader(next BytesPartialReader, prefix, suffix uint64) *byteIntervalReader {
	return &byteIntervalReader{next: next, prefix: prefix, suffix: suffix}
}

func (r *byteIntervalReader) ReadRanges(
	ctx context.Context, ranges []storage.ByteRange,
) ([][]byte, bool, error) {
	mapped := make([]storage.ByteRange, len(ranges))
	for i, rg := range ranges {
		if rg.Suffix {
			// The inner suffix sits just ahead of the stripped outer suffix.
			mapped[i] = storage.NewSuffixByteRange(rg.Length + r.suffix)
		} else {
			mapped[i] = storage.NewByteRange(rg.Offset+r.prefix, rg.Length)
		}
	}
	out, found, err := r.next.ReadRanges(ctx, mapped)
	if err != nil || !found {
		return nil, found, err
	}
	for i, rg := range ranges {
		if rg.Suffix {
			out[i] = out[i][:rg.Length]
		}
	}
	return out, true, nil
}

func (r *byteIntervalReader) ReadAll(ctx context.Context) ([]byte, bool, error) {
	b, found, err := r.next.ReadAll(ctx)
	if err != nil || !found {
		return nil, found, err
	}
	if uint64(len(b)) < r.prefix+r.suffix {
		return nil, true, base.CorruptionErrorf(
			"stream of %d bytes is shorter than its %d-byte frame", len(b), r.prefix+r.suffix)
	}
	return b[r.prefix : uint64(len(b))-r.suffix], true, nil
}

func (r *byteIntervalReader) SupportsPartial() bool { return r.next.SupportsPartial() }
