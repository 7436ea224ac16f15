// Package weights submits normalized trust weights to a shared ledger.
package weights

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/libp2p/go-libp2p/core/peer"
	"github.com/sirupsen/logrus"
)

var (
	ErrLength    = errors.New("weights: peers and weights differ in length")
	ErrBadWeight = errors.New("weights: weight is negative or not finite")
)

// Sink is the weight-commit collaborator. A returned error means the
// commit was rejected; callers log it and carry on.
type Sink interface {
	CommitWeights(ctx context.Context, round uint64, peers []peer.ID, weights []float64) error
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(ctx context.Context, round uint64, peers []peer.ID, weights []float64) error

func (f SinkFunc) CommitWeights(ctx context.Context, round uint64, peers []peer.ID, weights []float64) error {
	return f(ctx, round, peers, weights)
}

// Validate checks a weight vector before it is committed.
func Validate(peers []peer.ID, weights []float64) error {
	if len(peers) != len(weights) {
		return fmt.Errorf("%w: %d peers, %d weights", ErrLength, len(peers), len(weights))
	}
	for i, w := range weights {
		if math.IsNaN(w) || math.IsInf(w, 0) || w < 0 {
			return fmt.Errorf("%w: %s=%v", ErrBadWeight, peers[i], w)
		}
	}
	return nil
}

// LogSink only logs commits.
type LogSink struct {
	Log logrus.FieldLogger
}

func (s LogSink) CommitWeights(ctx context.Context, round uint64, peers []peer.ID, weights []float64) error {
	if err := Validate(peers, weights); err != nil {
		return err
	}
	for i, id := range peers {
		s.Log.WithFields(logrus.Fields{"round": round, "peer": id.String(), "weight": weights[i]}).Info("weight")
	}
	return nil
}
