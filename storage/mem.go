// Copyright 2026 The Zarr-Go Authors. All rights reserved. Use of this source
// code is governed by a BSD-style license that can be found in the LICENSE
// file.

package storage

import (
	"context"
	"slices"
	"strings"
	"sync"
)

// MemStore is an in-memory Store. It is the reference implementation used
// throughout the codec tests and is safe for concurrent use.
type MemStore struct {
	mu sync.RWMutex
	m  map[string][]byte
}

var _ Store = (*MemStore)(nil)

// NewMemStore returns an empty in-memory store.
func NewMemStore() *MemStore {
	return &MemStore{m: make(map[string][]byte)}
}

// Get implements Store.
func (s *MemStore) Get(_ context.Context, key string) ([]byte, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.m[key]
	if !ok {
		return nil, false, nil
	}
	return slices.Clone(v), true, nil
}

// GetPartial implements Store.
func (s *MemStore) GetPartial(
	_ context.Context, key string, ranges []ByteRange,
) ([][]byte, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.m[key]
	if !ok {
		return nil, false, nil
	}
	out := make([][]byte, len(ranges))
	for i, r := range ranges {
		start, end, err := r.Resolve(uint64(len(v)))
		if err != nil {
			return nil, true, err
		}
		out[i] = slices.Clone(v[start:end])
	}
	return out, true, nil
}

// Set implements Store.
func (s *MemStore) Set(_ context.Context, key string, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.m[key] = slices.Clone(value)
	return nil
}

// SetPartial implements Store.
func (s *MemStore) SetPartial(_ context.Context, key string, offset uint64, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	v := s.m[key]
	end := int(offset) + len(value)
	if end > len(v) {
		v = append(v, make([]byte, end-len(v))...)
	}
	copy(v[offset:end], value)
	s.m[key] = v
	return nil
}

// Erase implements Store.
func (s *MemStore) Erase(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.m, key)
	return nil
}

// List implements Store.
func (s *MemStore) List(_ context.Context, prefix string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var keys []string
	for k := range s.m {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	slices.Sort(keys)
	return keys, nil
}

// Len returns the number of stored keys.
func (s *MemStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.m)
}
