// Package leveldbkv stores key/value pairs in goleveldb.
//
// It is the default backend for both roles. Writes are synced before Put
// returns.
package leveldbkv

import (
	"errors"
	"sync"

	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/opt"
	lvlstorage "github.com/syndtr/goleveldb/leveldb/storage"

	"xdao.co/storagenet/storage"
)

// Store is a goleveldb-backed storage.KV.
type Store struct {
	db        *leveldb.DB
	closeOnce sync.Once
	closeErr  error
}

var _ storage.KV = (*Store)(nil)

// Open opens (creating if missing) a database under dir.
func Open(dir string) (*Store, error) {
	if dir == "" {
		return nil, errors.New("leveldbkv: directory is required")
	}
	db, err := leveldb.OpenFile(dir, &opt.Options{ErrorIfMissing: false})
	if err != nil {
		return nil, err
	}
	return &Store{db: db}, nil
}

// OpenMemory opens a database that lives only in memory.
func OpenMemory() (*Store, error) {
	db, err := leveldb.Open(lvlstorage.NewMemStorage(), nil)
	if err != nil {
		return nil, err
	}
	return &Store{db: db}, nil
}

func (s *Store) Put(key, value []byte) error {
	if len(key) == 0 {
		return storage.ErrEmptyKey
	}
	return mapErr(s.db.Put(key, value, &opt.WriteOptions{Sync: true}))
}

func (s *Store) Get(key []byte) ([]byte, error) {
	if len(key) == 0 {
		return nil, storage.ErrEmptyKey
	}
	b, err := s.db.Get(key, nil)
	if err != nil {
		return nil, mapErr(err)
	}
	if b == nil {
		b = []byte{}
	}
	return b, nil
}

func (s *Store) Has(key []byte) bool {
	if len(key) == 0 {
		return false
	}
	ok, err := s.db.Has(key, nil)
	return err == nil && ok
}

func (s *Store) Close() error {
	s.closeOnce.Do(func() { s.closeErr = s.db.Close() })
	return s.closeErr
}

func mapErr(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, leveldb.ErrNotFound):
		return storage.ErrNotFound
	case errors.Is(err, leveldb.ErrClosed):
		return storage.ErrClosed
	default:
		return err
	}
}
