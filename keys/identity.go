package keys

import (
	"crypto/ed25519"
	"fmt"
	"io"

	"github.com/libp2p/go-libp2p/core/crypto"
	"github.com/libp2p/go-libp2p/core/peer"
)

// Identity is a node's signing key and the peer ID derived from it.
type Identity struct {
	seed []byte
	priv crypto.PrivKey
	id   peer.ID
}

// IdentityFromSeed builds the identity for an Ed25519 seed.
func IdentityFromSeed(seed []byte) (*Identity, error) {
	if len(seed) != ed25519.SeedSize {
		return nil, fmt.Errorf("expected seed length of %d bytes, got %d", ed25519.SeedSize, len(seed))
	}
	priv, err := crypto.UnmarshalEd25519PrivateKey(ed25519.NewKeyFromSeed(seed))
	if err != nil {
		return nil, err
	}
	id, err := peer.IDFromPrivateKey(priv)
	if err != nil {
		return nil, err
	}
	return &Identity{seed: append([]byte(nil), seed...), priv: priv, id: id}, nil
}

// LoadIdentity reads the identity stored at path.
func LoadIdentity(path string) (*Identity, error) {
	seed, err := LoadSeed(path)
	if err != nil {
		return nil, err
	}
	return IdentityFromSeed(seed)
}

// LoadOrCreateIdentity is LoadIdentity, generating a key file first if none exists.
func LoadOrCreateIdentity(path string, rand io.Reader) (*Identity, bool, error) {
	seed, created, err := LoadOrCreateSeed(path, rand)
	if err != nil {
		return nil, false, err
	}
	id, err := IdentityFromSeed(seed)
	return id, created, err
}

func (i *Identity) ID() peer.ID { return i.id }

func (i *Identity) PrivKey() crypto.PrivKey { return i.priv }

func (i *Identity) PubKey() crypto.PubKey { return i.priv.GetPublic() }
