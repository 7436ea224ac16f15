package storage

import (
	"errors"
)

// MultiKV provides deterministic, ordered fallback across multiple KV adapters.
//
// Read order is the slice order in Adapters; callers MUST supply a fixed order.
//
// Put is defined to write only to the first adapter.
type MultiKV struct {
	Adapters []KV
}

var _ KV = MultiKV{}

func (m MultiKV) Put(key, value []byte) error {
	if len(m.Adapters) == 0 {
		return errors.New("storage: MultiKV has no adapters")
	}
	return m.Adapters[0].Put(key, value)
}

func (m MultiKV) Get(key []byte) ([]byte, error) {
	if len(key) == 0 {
		return nil, ErrEmptyKey
	}
	for _, kv := range m.Adapters {
		b, err := kv.Get(key)
		if err == nil {
			return b, nil
		}
		if IsNotFound(err) {
			continue
		}
		return nil, err
	}
	return nil, ErrNotFound
}

func (m MultiKV) Has(key []byte) bool {
	for _, kv := range m.Adapters {
		if kv.Has(key) {
			return true
		}
	}
	return false
}
