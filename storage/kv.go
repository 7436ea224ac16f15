package storage

// KV is the ordered byte-string store used by both roles: the miner keeps
// client data in it, the validator keeps fingerprints and trust snapshots.
//
// Contract:
// - Put MUST overwrite any prior value and MUST be durable before returning.
// - Get MUST return the most recent Put for the key, or ErrNotFound.
// - Keys MUST be non-empty (ErrEmptyKey).
// - Returned slices are owned by the caller.
type KV interface {
	Put(key, value []byte) error
	Get(key []byte) ([]byte, error)
	Has(key []byte) bool
}
