// Package trust keeps the validator's per-peer reputation.
//
// Scores are smoothed with an exponential moving average so that a single
// lossy round barely moves them, while a chronically failing peer trends to
// zero. Weights are the L1-normalized scores of a peer set.
package trust

import (
	"fmt"
	"math"
	"sort"
	"sync"

	"github.com/libp2p/go-libp2p/core/peer"
)

// InitialScore is the score of a peer the first time it is referenced.
const InitialScore = 1.0

// Ledger maps peers to scores. The validator mutates it from a single
// goroutine; the lock only protects concurrent readers such as metrics
// and shutdown persistence.
type Ledger struct {
	alpha float64

	mu     sync.Mutex
	scores map[peer.ID]float64
}

func NewLedger(alpha float64) (*Ledger, error) {
	if !(alpha > 0 && alpha < 1) {
		return nil, fmt.Errorf("trust: alpha must be in (0,1), got %v", alpha)
	}
	return &Ledger{alpha: alpha, scores: make(map[peer.ID]float64)}, nil
}

func (l *Ledger) Alpha() float64 { return l.alpha }

// EMA is the update rule: alpha*old + (1-alpha)*observed.
func EMA(alpha, old, observed float64) float64 {
	return alpha*old + (1-alpha)*observed
}

func (l *Ledger) scoreLocked(id peer.ID) float64 {
	s, ok := l.scores[id]
	if !ok {
		s = InitialScore
		l.scores[id] = s
	}
	return s
}

// Score returns id's score, creating it at InitialScore if needed.
func (l *Ledger) Score(id peer.ID) float64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.scoreLocked(id)
}

// Set overwrites id's score.
func (l *Ledger) Set(id peer.ID, score float64) {
	l.mu.Lock()
	l.scores[id] = score
	l.mu.Unlock()
}

// Observe applies one round observation (1 success, 0 failure) to id and
// returns the new score.
func (l *Ledger) Observe(id peer.ID, observed float64) float64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	s := EMA(l.alpha, l.scoreLocked(id), observed)
	l.scores[id] = s
	return s
}

// Scores returns the scores of ids in order.
func (l *Ledger) Scores(ids []peer.ID) []float64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]float64, len(ids))
	for i, id := range ids {
		out[i] = l.scoreLocked(id)
	}
	return out
}

// Weights normalizes the scores of ids.
func (l *Ledger) Weights(ids []peer.ID) []float64 {
	return Normalize(l.Scores(ids))
}

// Known returns every peer with a score, sorted.
func (l *Ledger) Known() []peer.ID {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]peer.ID, 0, len(l.scores))
	for id := range l.scores {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Snapshot copies the score table.
func (l *Ledger) Snapshot() map[peer.ID]float64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make(map[peer.ID]float64, len(l.scores))
	for id, s := range l.scores {
		out[id] = s
	}
	return out
}

// Normalize L1-normalizes scores so the result sums to 1. Negative and NaN
// entries count as 0. If nothing positive remains the split is uniform.
// An empty input yields an empty result.
func Normalize(scores []float64) []float64 {
	out := make([]float64, len(scores))
	if len(scores) == 0 {
		return out
	}
	var sum float64
	for i, s := range scores {
		if math.IsNaN(s) || s < 0 || math.IsInf(s, 0) {
			s = 0
		}
		out[i] = s
		sum += s
	}
	if sum == 0 {
		u := 1 / float64(len(out))
		for i := range out {
			out[i] = u
		}
		return out
	}
	for i := range out {
		out[i] /= sum
	}
	return out
}
