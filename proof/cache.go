package proof

import (
	"fmt"

	"xdao.co/storagenet/fingerprint"
	"xdao.co/storagenet/storage"
)

const cachePrefix = "fp/"

// Cache is the validator's fingerprint table, kept in its local KV under
// "fp/<key>".
type Cache struct {
	KV storage.KV
}

// Record stores fp as the expected fingerprint for key, replacing any
// earlier one.
func (c Cache) Record(key string, fp fingerprint.Fingerprint) error {
	if key == "" {
		return storage.ErrEmptyKey
	}
	if fp.Digest() == nil {
		return fingerprint.ErrInvalid
	}
	return c.KV.Put(cacheKey(key), fp.Bytes())
}

// Lookup returns the fingerprint recorded for key. Absent and undecodable
// entries both yield ErrNoFingerprint.
func (c Cache) Lookup(key string) (fingerprint.Fingerprint, error) {
	if key == "" {
		return nil, storage.ErrEmptyKey
	}
	b, err := c.KV.Get(cacheKey(key))
	if err != nil {
		if storage.IsNotFound(err) {
			return nil, ErrNoFingerprint
		}
		return nil, err
	}
	fp, err := fingerprint.Parse(b)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrNoFingerprint, key, err)
	}
	return fp, nil
}

func cacheKey(key string) []byte { return []byte(cachePrefix + key) }
