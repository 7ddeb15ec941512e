// Package memstore is an in-memory storage.Storage implementation used
// by tests and the CLI's memory mode: a map guarded by a mutex, no
// persistence.
package memstore

import (
	"bytes"
	"context"
	"encoding/hex"
	"sync"

	"github.com/blocktree/blocktree/storage"
)

// Store is an in-memory, content-addressed byte store.
type Store struct {
	hasher storage.Hasher

	mu    sync.RWMutex
	data  map[string][]byte
	order []string // insertion order, for ListKeys/FindInStorage iteration
}

// New creates an empty Store keyed by hasher's hash function.
func New(hasher storage.Hasher) *Store {
	return &Store{hasher: hasher, data: make(map[string][]byte)}
}

func (s *Store) WriteBytes(ctx context.Context, data []byte) ([]byte, error) {
	hash := s.hasher.Hash(data)
	k := hex.EncodeToString(hash)

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.data[k]; !exists {
		s.order = append(s.order, k)
	}
	s.data[k] = data
	return hash, nil
}

func (s *Store) ReadBytes(ctx context.Context, hash []byte) ([]byte, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.data[hex.EncodeToString(hash)]
	return v, ok, nil
}

func (s *Store) FindInStorage(ctx context.Context, pred func([]byte) bool) ([]byte, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, k := range s.order {
		v := s.data[k]
		if pred(v) {
			return v, true, nil
		}
	}
	return nil, false, nil
}

func (s *Store) MapInStorage(ctx context.Context, fn func([]byte) bool) ([][]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out [][]byte
	for _, k := range s.order {
		v := s.data[k]
		if fn(v) {
			out = append(out, v)
		}
	}
	return out, nil
}

func (s *Store) ListKeys(ctx context.Context, prefix []byte) ([][]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out [][]byte
	for _, k := range s.order {
		raw, err := hex.DecodeString(k)
		if err != nil {
			continue
		}
		if len(prefix) == 0 || bytes.HasPrefix(raw, prefix) {
			out = append(out, raw)
		}
	}
	return out, nil
}

func (s *Store) Count(ctx context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.data), nil
}
