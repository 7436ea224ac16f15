// Package proof decides whether a miner still holds the data it was given.
//
// A check asks one peer to Retrieve one key and compares the returned bytes
// against the fingerprint the validator recorded when the data was stored.
// Every failure mode of the exchange resolves to a failed Outcome.
package proof

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/libp2p/go-libp2p/core/peer"

	"xdao.co/storagenet/directory"
	"xdao.co/storagenet/fingerprint"
)

var (
	ErrMismatch      = errors.New("proof: fingerprint mismatch")
	ErrNoFingerprint = errors.New("proof: no fingerprint recorded")
	ErrPanic         = errors.New("proof: check panicked")
)

// Retriever issues Retrieve calls to peers. *grpckv.Pool implements it.
type Retriever interface {
	Retrieve(ctx context.Context, p directory.Peer, key []byte) ([]byte, error)
}

// Outcome is the result of one (peer, key) check.
type Outcome struct {
	Peer    peer.ID
	Key     string
	OK      bool
	Err     error
	Elapsed time.Duration
}

// Observed is the EMA observation for o: 1 on success, 0 otherwise.
func (o Outcome) Observed() float64 {
	if o.OK {
		return 1
	}
	return 0
}

// Failed builds a failed outcome without contacting the peer.
func Failed(id peer.ID, key string, err error) Outcome {
	return Outcome{Peer: id, Key: key, Err: err}
}

// Check retrieves key from p and verifies it against want. The call is
// bounded by timeout when it is positive. Check never panics and never
// returns an error out of band: transport errors, missing data and
// mismatches are all reported through Outcome.Err.
func Check(ctx context.Context, r Retriever, p directory.Peer, key string, want fingerprint.Fingerprint, timeout time.Duration) (out Outcome) {
	out = Outcome{Peer: p.ID, Key: key}
	start := time.Now()
	defer func() {
		if v := recover(); v != nil {
			out.OK = false
			out.Err = fmt.Errorf("%w: %v", ErrPanic, v)
		}
		out.Elapsed = time.Since(start)
	}()

	if want.Digest() == nil {
		out.Err = ErrNoFingerprint
		return out
	}
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	data, err := r.Retrieve(ctx, p, []byte(key))
	if err != nil {
		out.Err = err
		return out
	}
	if !want.Matches(data) {
		out.Err = ErrMismatch
		return out
	}
	out.OK = true
	return out
}
