package keys

import (
	"crypto/sha256"
	"crypto/sha512"
	"errors"
	"fmt"

	"github.com/cloudflare/circl/sign/dilithium/mode3"
	"github.com/libp2p/go-libp2p/core/peer"
	"golang.org/x/crypto/sha3"
)

const (
	HashSHA256  = "sha256"
	HashSHA512  = "sha512"
	HashSHA3256 = "sha3-256"
)

var ErrBadSignature = errors.New("keys: signature verification failed")

func digestFor(hashAlg string, message []byte) ([]byte, error) {
	switch hashAlg {
	case HashSHA256, "":
		s := sha256.Sum256(message)
		return s[:], nil
	case HashSHA512:
		s := sha512.Sum512(message)
		return s[:], nil
	case HashSHA3256:
		s := sha3.Sum256(message)
		return s[:], nil
	default:
		return nil, fmt.Errorf("unsupported hash algorithm: %q", hashAlg)
	}
}

// Signature is a detached signature over hash(message).
//
// Sig is always an Ed25519 signature by the signer's peer key. PQSig and
// PQPublicKey are set when the record was co-signed with Dilithium3.
type Signature struct {
	HashAlg     string `json:"hash_alg"`
	Sig         []byte `json:"sig"`
	PQSig       []byte `json:"pq_sig,omitempty"`
	PQPublicKey []byte `json:"pq_public_key,omitempty"`
}

// Sign signs hashAlg(message) with the identity key and, if pq is set, a
// Dilithium3 key derived from the identity seed.
func (i *Identity) Sign(message []byte, hashAlg string, pq bool) (Signature, error) {
	if hashAlg == "" {
		hashAlg = HashSHA256
	}
	digest, err := digestFor(hashAlg, message)
	if err != nil {
		return Signature{}, err
	}
	sig, err := i.priv.Sign(digest)
	if err != nil {
		return Signature{}, err
	}
	out := Signature{HashAlg: hashAlg, Sig: sig}
	if !pq {
		return out, nil
	}
	pub, priv, err := i.dilithium3()
	if err != nil {
		return Signature{}, err
	}
	out.PQSig = make([]byte, mode3.SignatureSize)
	mode3.SignTo(priv, digest, out.PQSig)
	out.PQPublicKey = pub.Bytes()
	return out, nil
}

func (i *Identity) dilithium3() (*mode3.PublicKey, *mode3.PrivateKey, error) {
	seed, err := DeriveSeed(i.seed, "dilithium3", mode3.SeedSize)
	if err != nil {
		return nil, nil, err
	}
	var s [mode3.SeedSize]byte
	copy(s[:], seed)
	pub, priv := mode3.NewKeyFromSeed(&s)
	return pub, priv, nil
}

// Verify checks sig over message against signer's peer key, and the
// Dilithium3 co-signature when present.
func Verify(signer peer.ID, message []byte, sig Signature) error {
	digest, err := digestFor(sig.HashAlg, message)
	if err != nil {
		return err
	}
	pub, err := signer.ExtractPublicKey()
	if err != nil {
		return fmt.Errorf("keys: extract public key of %s: %w", signer, err)
	}
	ok, err := pub.Verify(digest, sig.Sig)
	if err != nil || !ok {
		return ErrBadSignature
	}
	if len(sig.PQSig) == 0 && len(sig.PQPublicKey) == 0 {
		return nil
	}
	var pqPub mode3.PublicKey
	if err := pqPub.UnmarshalBinary(sig.PQPublicKey); err != nil {
		return ErrBadSignature
	}
	if !mode3.Verify(&pqPub, digest, sig.PQSig) {
		return ErrBadSignature
	}
	return nil
}
