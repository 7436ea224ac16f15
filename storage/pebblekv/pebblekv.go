// Package pebblekv stores key/value pairs in Pebble.
package pebblekv

import (
	"errors"
	"sync"
	"sync/atomic"

	"github.com/cockroachdb/pebble"

	"xdao.co/storagenet/storage"
)

// Store is a Pebble-backed storage.KV. Pebble panics on use after Close, so
// the closed state is tracked here and reported as storage.ErrClosed.
type Store struct {
	db        *pebble.DB
	closed    atomic.Bool
	closeOnce sync.Once
	closeErr  error
}

var _ storage.KV = (*Store)(nil)

// Open opens (creating if missing) a database under dir.
func Open(dir string) (*Store, error) {
	return OpenWithOptions(dir, &pebble.Options{})
}

// OpenWithOptions is Open with caller-supplied Pebble options.
func OpenWithOptions(dir string, opts *pebble.Options) (*Store, error) {
	if dir == "" {
		return nil, errors.New("pebblekv: directory is required")
	}
	db, err := pebble.Open(dir, opts)
	if err != nil {
		return nil, err
	}
	return &Store{db: db}, nil
}

func (s *Store) Put(key, value []byte) error {
	if len(key) == 0 {
		return storage.ErrEmptyKey
	}
	if s.closed.Load() {
		return storage.ErrClosed
	}
	return s.db.Set(key, value, pebble.Sync)
}

func (s *Store) Get(key []byte) ([]byte, error) {
	if len(key) == 0 {
		return nil, storage.ErrEmptyKey
	}
	if s.closed.Load() {
		return nil, storage.ErrClosed
	}
	v, closer, err := s.db.Get(key)
	if err != nil {
		if errors.Is(err, pebble.ErrNotFound) {
			return nil, storage.ErrNotFound
		}
		return nil, err
	}
	out := append([]byte{}, v...)
	if err := closer.Close(); err != nil {
		return nil, err
	}
	return out, nil
}

func (s *Store) Has(key []byte) bool {
	_, err := s.Get(key)
	return err == nil
}

func (s *Store) Close() error {
	s.closeOnce.Do(func() {
		s.closed.Store(true)
		s.closeErr = s.db.Close()
	})
	return s.closeErr
}
