// Package fingerprint computes and compares content digests of stored values.
//
// A Fingerprint is a multihash (sha2-256 unless parsed from another code), so
// it carries its own hash function and can be rendered as a CIDv1 with the
// "raw" multicodec for logs and operator tooling.
package fingerprint

import (
	"bytes"
	"encoding/hex"
	"errors"
	"strings"

	"github.com/ipfs/go-cid"
	"github.com/multiformats/go-multihash"
)

var ErrInvalid = errors.New("fingerprint: invalid")

// Fingerprint is an encoded multihash.
type Fingerprint []byte

// Of returns the sha2-256 fingerprint of data.
func Of(data []byte) Fingerprint {
	sum, err := multihash.Sum(data, multihash.SHA2_256, -1)
	if err != nil {
		// multihash.Sum only errors for unknown codes; SHA2_256 is always registered.
		panic(err)
	}
	return Fingerprint(sum)
}

// Parse decodes a cached fingerprint value.
//
// Accepted encodings, in order:
//   - raw multihash bytes
//   - a 64 character sha256 hex digest
//   - a CID string whose multihash is used as-is
func Parse(b []byte) (Fingerprint, error) {
	if len(b) == 0 {
		return nil, ErrInvalid
	}
	if _, err := multihash.Decode(b); err == nil {
		return Fingerprint(append([]byte(nil), b...)), nil
	}
	s := strings.TrimSpace(string(b))
	if len(s) == 64 {
		if digest, err := hex.DecodeString(s); err == nil {
			mh, err := multihash.Encode(digest, multihash.SHA2_256)
			if err != nil {
				return nil, ErrInvalid
			}
			return Fingerprint(mh), nil
		}
	}
	if id, err := cid.Decode(s); err == nil && id.Defined() {
		return Fingerprint(id.Hash()), nil
	}
	return nil, ErrInvalid
}

// ParseString is Parse for operator input.
func ParseString(s string) (Fingerprint, error) { return Parse([]byte(s)) }

// Digest returns the raw digest, or nil if f is not a valid multihash.
func (f Fingerprint) Digest() []byte {
	dec, err := multihash.Decode(f)
	if err != nil {
		return nil
	}
	return dec.Digest
}

// Matches reports whether data hashes to f under f's own hash function.
// Any difference in the digest, including a single flipped bit, is a mismatch.
func (f Fingerprint) Matches(data []byte) bool {
	dec, err := multihash.Decode(f)
	if err != nil {
		return false
	}
	sum, err := multihash.Sum(data, dec.Code, dec.Length)
	if err != nil {
		return false
	}
	got, err := multihash.Decode(sum)
	if err != nil {
		return false
	}
	return bytes.Equal(got.Digest, dec.Digest)
}

func (f Fingerprint) Equal(o Fingerprint) bool { return bytes.Equal(f, o) }

// Bytes returns the encoded multihash.
func (f Fingerprint) Bytes() []byte { return []byte(f) }

// Hex returns the digest as lowercase hex.
func (f Fingerprint) Hex() string { return hex.EncodeToString(f.Digest()) }

// CID renders f as a CIDv1 (raw).
func (f Fingerprint) CID() cid.Cid {
	if _, err := multihash.Decode(f); err != nil {
		return cid.Undef
	}
	return cid.NewCidV1(cid.Raw, multihash.Multihash(f))
}

func (f Fingerprint) String() string {
	id := f.CID()
	if !id.Defined() {
		return "<invalid>"
	}
	return id.String()
}
