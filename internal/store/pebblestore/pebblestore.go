// Package pebblestore implements storage.Storage on top of
// github.com/cockroachdb/pebble. Block bytes are compressed with
// github.com/golang/snappy before the pebble put and decompressed on
// get.
package pebblestore

import (
	"bytes"
	"context"
	"fmt"

	"github.com/cockroachdb/pebble"
	"github.com/golang/snappy"

	"github.com/blocktree/blocktree/storage"
)

// Store is a pebble-backed storage.Storage.
type Store struct {
	db     *pebble.DB
	hasher storage.Hasher
}

// Open opens (or creates) a pebble database at dir, keyed by hasher's
// hash function.
func Open(dir string, hasher storage.Hasher) (*Store, error) {
	db, err := pebble.Open(dir, &pebble.Options{})
	if err != nil {
		return nil, fmt.Errorf("open pebble db at %s: %w", dir, err)
	}
	return &Store{db: db, hasher: hasher}, nil
}

// Close releases the underlying pebble database.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) WriteBytes(ctx context.Context, data []byte) ([]byte, error) {
	hash := s.hasher.Hash(data)
	compressed := snappy.Encode(nil, data)
	if err := s.db.Set(hash, compressed, pebble.Sync); err != nil {
		return nil, fmt.Errorf("pebble set: %w", err)
	}
	return hash, nil
}

func (s *Store) ReadBytes(ctx context.Context, hash []byte) ([]byte, bool, error) {
	v, closer, err := s.db.Get(hash)
	if err == pebble.ErrNotFound {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("pebble get: %w", err)
	}
	defer closer.Close()
	data, err := snappy.Decode(nil, v)
	if err != nil {
		return nil, false, fmt.Errorf("snappy decode: %w", err)
	}
	return data, true, nil
}

func (s *Store) FindInStorage(ctx context.Context, pred func([]byte) bool) ([]byte, bool, error) {
	iter, err := s.db.NewIter(nil)
	if err != nil {
		return nil, false, fmt.Errorf("pebble iter: %w", err)
	}
	defer iter.Close()
	for iter.First(); iter.Valid(); iter.Next() {
		data, err := snappy.Decode(nil, iter.Value())
		if err != nil {
			return nil, false, fmt.Errorf("snappy decode: %w", err)
		}
		if pred(data) {
			out := make([]byte, len(data))
			copy(out, data)
			return out, true, nil
		}
	}
	return nil, false, iter.Error()
}

func (s *Store) MapInStorage(ctx context.Context, fn func([]byte) bool) ([][]byte, error) {
	iter, err := s.db.NewIter(nil)
	if err != nil {
		return nil, fmt.Errorf("pebble iter: %w", err)
	}
	defer iter.Close()
	var out [][]byte
	for iter.First(); iter.Valid(); iter.Next() {
		data, err := snappy.Decode(nil, iter.Value())
		if err != nil {
			return nil, fmt.Errorf("snappy decode: %w", err)
		}
		if fn(data) {
			cp := make([]byte, len(data))
			copy(cp, data)
			out = append(out, cp)
		}
	}
	return out, iter.Error()
}

func (s *Store) ListKeys(ctx context.Context, prefix []byte) ([][]byte, error) {
	iter, err := s.db.NewIter(nil)
	if err != nil {
		return nil, fmt.Errorf("pebble iter: %w", err)
	}
	defer iter.Close()
	var out [][]byte
	for iter.First(); iter.Valid(); iter.Next() {
		k := iter.Key()
		if len(prefix) == 0 || bytes.HasPrefix(k, prefix) {
			cp := make([]byte, len(k))
			copy(cp, k)
			out = append(out, cp)
		}
	}
	return out, iter.Error()
}

func (s *Store) Count(ctx context.Context) (int, error) {
	iter, err := s.db.NewIter(nil)
	if err != nil {
		return 0, fmt.Errorf("pebble iter: %w", err)
	}
	defer iter.Close()
	n := 0
	for iter.First(); iter.Valid(); iter.Next() {
		n++
	}
	return n, iter.Error()
}
