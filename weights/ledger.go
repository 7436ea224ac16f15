package weights

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/gofrs/flock"
	"github.com/libp2p/go-libp2p/core/peer"

	"xdao.co/storagenet/keys"
)

// Record is one line of a FileLedger.
type Record struct {
	Validator string         `json:"validator"`
	NetUID    uint16         `json:"netuid"`
	Round     uint64         `json:"round"`
	Timestamp int64          `json:"timestamp_ms"`
	Peers     []string       `json:"peers"`
	Weights   []float64      `json:"weights"`
	Signature keys.Signature `json:"signature"`
}

func (r Record) signingBytes() ([]byte, error) {
	r.Signature = keys.Signature{}
	return json.Marshal(r)
}

// Verify checks the record's signature against its validator ID.
func (r Record) Verify() error {
	id, err := peer.Decode(r.Validator)
	if err != nil {
		return fmt.Errorf("weights: record validator: %w", err)
	}
	msg, err := r.signingBytes()
	if err != nil {
		return err
	}
	return keys.Verify(id, msg, r.Signature)
}

// FileLedger appends signed weight records to a JSON-lines file shared by
// the validators of a subnet. Appends hold an exclusive lock on
// Path+".lock" and are synced before CommitWeights returns.
type FileLedger struct {
	Path     string
	NetUID   uint16
	Identity *keys.Identity

	// HashAlg selects the signed digest (keys.HashSHA256 if empty).
	HashAlg string
	// PQ adds a Dilithium3 co-signature.
	PQ bool

	// RetryDelay is the lock polling interval (100ms if zero).
	RetryDelay time.Duration
	Now        func() time.Time
}

var _ Sink = (*FileLedger)(nil)

func (l *FileLedger) CommitWeights(ctx context.Context, round uint64, peers []peer.ID, weights []float64) error {
	if err := Validate(peers, weights); err != nil {
		return err
	}
	now := time.Now
	if l.Now != nil {
		now = l.Now
	}
	rec := Record{
		Validator: l.Identity.ID().String(),
		NetUID:    l.NetUID,
		Round:     round,
		Timestamp: now().UnixMilli(),
		Peers:     make([]string, len(peers)),
		Weights:   append([]float64(nil), weights...),
	}
	for i, id := range peers {
		rec.Peers[i] = id.String()
	}
	msg, err := rec.signingBytes()
	if err != nil {
		return err
	}
	rec.Signature, err = l.Identity.Sign(msg, l.HashAlg, l.PQ)
	if err != nil {
		return fmt.Errorf("weights: sign: %w", err)
	}
	line, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	return l.append(ctx, append(line, '\n'))
}

func (l *FileLedger) append(ctx context.Context, line []byte) error {
	delay := l.RetryDelay
	if delay <= 0 {
		delay = 100 * time.Millisecond
	}
	lock := flock.New(l.Path + ".lock")
	ok, err := lock.TryLockContext(ctx, delay)
	if err != nil {
		return fmt.Errorf("weights: lock ledger: %w", err)
	}
	if !ok {
		return fmt.Errorf("weights: lock ledger: %s is busy", l.Path)
	}
	defer lock.Unlock()

	f, err := os.OpenFile(l.Path, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0o644)
	if err != nil {
		return err
	}
	if _, err := f.Write(line); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

// ReadLedger decodes every record in the ledger at path. Signatures are not
// checked; call Record.Verify.
func ReadLedger(path string) ([]Record, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var out []Record
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	line := 0
	for sc.Scan() {
		line++
		if len(sc.Bytes()) == 0 {
			continue
		}
		var r Record
		if err := json.Unmarshal(sc.Bytes(), &r); err != nil {
			return nil, fmt.Errorf("weights: %s:%d: %w", path, line, err)
		}
		out = append(out, r)
	}
	return out, sc.Err()
}
