// Copyright 2026 The Zarr-Go Authors. All rights reserved. Use of this source
// code is governed by a BSD-style license that can be found in the LICENSE
// file.

package arraybytes

import "slices"

// Buf is a byte buffer that is either a borrowed read-only view or an owned
// mutable buffer. Borrowed views are zero-copy; Mutable promotes to owned by
// copying exactly once. This mirrors the borrow-or-own buffers the codec
// pipeline threads between stages: decode paths borrow stored bytes where
// possible and copy only at the single mutation point.
type Buf struct {
	b     []byte
	owned bool
}

// Borrowed wraps b as a read-only view. The caller must not mutate b while
// the Buf is live.
func Borrowed(b []byte) Buf {
	return Buf{b: b}
}

// Owned wraps b as an owned buffer, transferring ownership to the Buf.
func Owned(b []byte) Buf {
	return Buf{b: b, owned: true}
}

// Bytes returns the contents. The returned slice must not be mutated; use
// Mutable for writes.
func (b Buf) Bytes() []byte { return b.b }

// Len returns the buffer length.
func (b Buf) Len() int { return len(b.b) }

// IsOwned reports whether the buffer owns its backing array.
func (b Buf) IsOwned() bool { return b.owned }

// Mutable returns a writable backing slice, copying the contents first if
// the buffer is currently a borrowed view.
func (b *Buf) Mutable() []byte {
	if !b.owned {
		b.b = slices.Clone(b.b)
		b.owned = true
	}
	return b.b
}

// IntoOwned returns an owned copy if the buffer is borrowed, or the buffer
// itself if already owned.
func (b Buf) IntoOwned() Buf {
	if b.owned {
		return b
	}
	return Owned(slices.Clone(b.b))
}
