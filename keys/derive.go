package keys

import (
	"crypto/ed25519"
	"crypto/sha256"
	"fmt"
	"io"
	"regexp"

	"golang.org/x/crypto/hkdf"
)

var purposeRE = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

// DeriveSeed expands the identity seed into size bytes of key material
// bound to purpose. The same root and purpose always give the same output.
func DeriveSeed(root []byte, purpose string, size int) ([]byte, error) {
	if len(root) != ed25519.SeedSize {
		return nil, fmt.Errorf("keys: root seed must be %d bytes", ed25519.SeedSize)
	}
	if !purposeRE.MatchString(purpose) {
		return nil, fmt.Errorf("keys: invalid purpose %q", purpose)
	}
	out := make([]byte, size)
	r := hkdf.New(sha256.New, root, []byte("storagenet-identity-v1"), []byte("purpose:"+purpose))
	if _, err := io.ReadFull(r, out); err != nil {
		return nil, err
	}
	return out, nil
}
