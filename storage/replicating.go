package storage

import (
	"bytes"
	"fmt"
)

// NamedKV associates a KV with a stable backend name.
type NamedKV struct {
	Name string
	KV   KV
}

// ReplicatingKV writes to all configured backends.
//
// Reads fall back in order. Use Verify to check that every backend still
// holds identical bytes for a key.
type ReplicatingKV struct {
	Backends []NamedKV
}

var _ KV = (*ReplicatingKV)(nil)

func (r ReplicatingKV) Put(key, value []byte) error {
	if len(key) == 0 {
		return ErrEmptyKey
	}
	if len(r.Backends) == 0 {
		return fmt.Errorf("storage: ReplicatingKV has no backends")
	}
	for _, b := range r.Backends {
		if b.KV == nil {
			return fmt.Errorf("storage: nil KV for backend %q", b.Name)
		}
		if err := b.KV.Put(key, value); err != nil {
			return fmt.Errorf("storage: backend %q: %w", b.Name, err)
		}
	}
	return nil
}

func (r ReplicatingKV) Get(key []byte) ([]byte, error) {
	if len(key) == 0 {
		return nil, ErrEmptyKey
	}
	for _, b := range r.Backends {
		if b.KV == nil {
			continue
		}
		out, err := b.KV.Get(key)
		if err == nil {
			return out, nil
		}
		if IsNotFound(err) {
			continue
		}
		return nil, err
	}
	return nil, ErrNotFound
}

func (r ReplicatingKV) Has(key []byte) bool {
	for _, b := range r.Backends {
		if b.KV != nil && b.KV.Has(key) {
			return true
		}
	}
	return false
}

// Verify reads key from every backend and returns ErrMismatch if any two
// disagree. A backend missing the key counts as a disagreement.
func (r ReplicatingKV) Verify(key []byte) error {
	var first []byte
	seen := false
	for _, b := range r.Backends {
		if b.KV == nil {
			continue
		}
		got, err := b.KV.Get(key)
		if err != nil {
			return fmt.Errorf("storage: backend %q: %w", b.Name, err)
		}
		if !seen {
			first, seen = got, true
			continue
		}
		if !bytes.Equal(first, got) {
			return ErrMismatch
		}
	}
	return nil
}
