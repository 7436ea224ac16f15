package keys

import (
	"crypto/ed25519"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

var ErrNoKeyFile = errors.New("keys: key file does not exist")

func ParseSeedHex(seedHex string) ([]byte, error) {
	seedHex = strings.TrimSpace(seedHex)
	seedHex = strings.TrimPrefix(seedHex, "0x")
	data, err := hex.DecodeString(seedHex)
	if err != nil {
		return nil, err
	}
	if len(data) != ed25519.SeedSize {
		return nil, fmt.Errorf("expected seed length of %d bytes, got %d", ed25519.SeedSize, len(data))
	}
	return data, nil
}

// SaveSeed writes seed as hex to path with 0600 permissions. Unless overwrite
// is set, an existing file is an error.
func SaveSeed(path string, seed []byte, overwrite bool) error {
	if len(seed) != ed25519.SeedSize {
		return fmt.Errorf("expected seed length of %d bytes", ed25519.SeedSize)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return err
	}
	flags := os.O_WRONLY | os.O_CREATE
	if overwrite {
		flags |= os.O_TRUNC
	} else {
		flags |= os.O_EXCL
	}
	file, err := os.OpenFile(path, flags, 0o600)
	if err != nil {
		return err
	}
	defer file.Close()
	if _, err := file.WriteString(hex.EncodeToString(seed) + "\n"); err != nil {
		return err
	}
	return file.Close()
}

// LoadSeed reads a hex seed from path.
func LoadSeed(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNoKeyFile
		}
		return nil, err
	}
	return ParseSeedHex(string(data))
}

// LoadOrCreateSeed loads the seed at path, generating and saving a new one
// from rand if the file does not exist yet.
func LoadOrCreateSeed(path string, rand io.Reader) (seed []byte, created bool, err error) {
	seed, err = LoadSeed(path)
	if err == nil {
		return seed, false, nil
	}
	if !errors.Is(err, ErrNoKeyFile) {
		return nil, false, err
	}
	seed = make([]byte, ed25519.SeedSize)
	if _, err := io.ReadFull(rand, seed); err != nil {
		return nil, false, err
	}
	if err := SaveSeed(path, seed, false); err != nil {
		return nil, false, err
	}
	return seed, true, nil
}
