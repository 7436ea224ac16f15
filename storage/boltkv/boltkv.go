// Package boltkv stores key/value pairs in a single bbolt file.
package boltkv

import (
	"errors"
	"time"

	bolt "go.etcd.io/bbolt"

	"xdao.co/storagenet/storage"
)

var bucket = []byte("kv")

// Store is a bbolt-backed storage.KV. Every Put is its own synced transaction.
type Store struct {
	db *bolt.DB
}

var _ storage.KV = (*Store)(nil)

// Open opens (creating if missing) the database file at path. It fails after
// one second if another process holds the file lock.
func Open(path string) (*Store, error) {
	if path == "" {
		return nil, errors.New("boltkv: path is required")
	}
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, err
	}
	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucket)
		return err
	})
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Store{db: db}, nil
}

func (s *Store) Put(key, value []byte) error {
	if len(key) == 0 {
		return storage.ErrEmptyKey
	}
	return mapErr(s.db.Update(func(tx *bolt.Tx) error {
		if value == nil {
			value = []byte{}
		}
		return tx.Bucket(bucket).Put(key, value)
	}))
}

func (s *Store) Get(key []byte) ([]byte, error) {
	if len(key) == 0 {
		return nil, storage.ErrEmptyKey
	}
	var out []byte
	err := s.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(bucket).Get(key)
		if v == nil {
			return storage.ErrNotFound
		}
		// v is only valid for the life of the transaction.
		out = append([]byte{}, v...)
		return nil
	})
	if err != nil {
		return nil, mapErr(err)
	}
	return out, nil
}

func (s *Store) Has(key []byte) bool {
	_, err := s.Get(key)
	return err == nil
}

func (s *Store) Close() error { return s.db.Close() }

func mapErr(err error) error {
	if errors.Is(err, bolt.ErrDatabaseNotOpen) {
		return storage.ErrClosed
	}
	return err
}
