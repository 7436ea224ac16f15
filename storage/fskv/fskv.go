package fskv

import (
	"encoding/hex"
	"errors"
	"os"
	"path/filepath"

	"xdao.co/storagenet/fingerprint"
	"xdao.co/storagenet/storage"
)

// KV is a local filesystem-backed key/value store.
//
// Each key lives in its own file named by the hex encoding of the key and
// sharded by its first two hex characters. Keys longer than MaxInlineKey
// bytes are named "h-<sha256 of key>" instead, sharded the same way. Put replaces the file atomically
// (write to a temp file, fsync, rename, fsync the directory), so a reader
// sees either the old or the new value.
type KV struct {
	root string
}

var _ storage.KV = (*KV)(nil)

// New constructs a filesystem KV rooted at root. The directory will be created if needed.
func New(root string) (*KV, error) {
	if root == "" {
		return nil, errors.New("fskv: root directory is required")
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, err
	}
	return &KV{root: root}, nil
}

func (c *KV) Put(key, value []byte) error {
	if len(key) == 0 {
		return storage.ErrEmptyKey
	}
	path := c.pathFor(key)
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	f, err := os.CreateTemp(dir, ".put-*")
	if err != nil {
		return err
	}
	tmp := f.Name()
	if _, err := f.Write(value); err != nil {
		_ = f.Close()
		_ = os.Remove(tmp)
		return err
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		_ = os.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	return syncDir(dir)
}

func (c *KV) Get(key []byte) ([]byte, error) {
	if len(key) == 0 {
		return nil, storage.ErrEmptyKey
	}
	b, err := os.ReadFile(c.pathFor(key))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, storage.ErrNotFound
		}
		return nil, err
	}
	return b, nil
}

func (c *KV) Has(key []byte) bool {
	if len(key) == 0 {
		return false
	}
	_, err := os.Stat(c.pathFor(key))
	return err == nil
}

// MaxInlineKey is the longest key stored under its own hex name. Longer hex
// names would exceed NAME_MAX on common filesystems.
const MaxInlineKey = 100

func (c *KV) pathFor(key []byte) string {
	if len(key) > MaxInlineKey {
		h := fingerprint.Of(key).Hex()
		return filepath.Join(c.root, h[:2], "h-"+h)
	}
	s := hex.EncodeToString(key)
	if len(s) < 2 {
		return filepath.Join(c.root, s)
	}
	return filepath.Join(c.root, s[:2], s)
}

func syncDir(dir string) error {
	d, err := os.Open(dir)
	if err != nil {
		return err
	}
	defer d.Close()
	return d.Sync()
}
