package trust

import (
	"encoding/json"
	"fmt"

	"github.com/libp2p/go-libp2p/core/peer"

	"xdao.co/storagenet/storage"
)

// SnapshotKey is where Save keeps the ledger in the validator's KV.
var SnapshotKey = []byte("trust/snapshot")

type snapshot struct {
	Alpha  float64            `json:"alpha"`
	Scores map[string]float64 `json:"scores"`
}

// Save writes the score table to kv.
func Save(kv storage.KV, l *Ledger) error {
	snap := snapshot{Alpha: l.Alpha(), Scores: map[string]float64{}}
	for id, s := range l.Snapshot() {
		snap.Scores[id.String()] = s
	}
	b, err := json.Marshal(snap)
	if err != nil {
		return err
	}
	return kv.Put(SnapshotKey, b)
}

// Load restores a ledger from kv. A missing snapshot yields an empty ledger.
// The stored alpha is informational; alpha always comes from the caller.
func Load(kv storage.KV, alpha float64) (*Ledger, error) {
	l, err := NewLedger(alpha)
	if err != nil {
		return nil, err
	}
	b, err := kv.Get(SnapshotKey)
	if err != nil {
		if storage.IsNotFound(err) {
			return l, nil
		}
		return nil, err
	}
	var snap snapshot
	if err := json.Unmarshal(b, &snap); err != nil {
		return nil, fmt.Errorf("trust: decode snapshot: %w", err)
	}
	for s, score := range snap.Scores {
		id, err := peer.Decode(s)
		if err != nil {
			return nil, fmt.Errorf("trust: snapshot peer %q: %w", s, err)
		}
		l.scores[id] = score
	}
	return l, nil
}
