// Package validator runs the audit loop: it seeds miners with data, proves
// they still hold it, folds the results into the trust ledger and commits
// normalized weights.
package validator

import (
	"context"
	crand "crypto/rand"
	"errors"
	"io"
	"math/rand/v2"
	"strconv"
	"time"

	"github.com/libp2p/go-libp2p/core/peer"
	"github.com/sirupsen/logrus"

	"xdao.co/storagenet/directory"
	"xdao.co/storagenet/fingerprint"
	"xdao.co/storagenet/metrics"
	"xdao.co/storagenet/proof"
	"xdao.co/storagenet/storage"
	"xdao.co/storagenet/trust"
	"xdao.co/storagenet/weights"
)

// Transport reaches miners. *grpckv.Pool implements it.
type Transport interface {
	proof.Retriever
	Store(ctx context.Context, p directory.Peer, key, data []byte) ([]byte, error)
}

type pruner interface {
	Prune(keep []directory.Peer)
}

type Options struct {
	Params    Params
	Directory directory.Directory
	Transport Transport
	// KV holds the fingerprint cache and the trust snapshot.
	KV   storage.KV
	Sink weights.Sink

	// Ledger is loaded from KV when nil.
	Ledger  *trust.Ledger
	Log     logrus.FieldLogger
	Metrics *metrics.Validator
	// Rand draws keys; Entropy fills seed data. Both default to random sources.
	Rand    *rand.Rand
	Entropy io.Reader
}

type Validator struct {
	params  Params
	dir     directory.Directory
	rpc     Transport
	kv      storage.KV
	cache   proof.Cache
	ledger  *trust.Ledger
	sink    weights.Sink
	log     logrus.FieldLogger
	metrics *metrics.Validator
	rng     *rand.Rand
	entropy io.Reader

	round uint64
	peers []directory.Peer
}

// Observation is what one round tells the ledger about one peer: 1 only if
// every check against that peer passed.
type Observation struct {
	Peer   peer.ID
	Value  float64
	Checks int
}

// Report summarizes one round.
type Report struct {
	Round    uint64
	Seeded   int
	Outcomes []proof.Outcome
	// Observations holds one entry per audited peer, in issue order.
	Observations []Observation
	// Committed is set when a commit was attempted; CommitErr is its result.
	Committed bool
	CommitErr error
}

func New(ctx context.Context, opts Options) (*Validator, error) {
	if err := opts.Params.Validate(); err != nil {
		return nil, err
	}
	if opts.Directory == nil || opts.Transport == nil || opts.KV == nil || opts.Sink == nil {
		return nil, errors.New("validator: directory, transport, kv and sink are required")
	}
	v := &Validator{
		params:  opts.Params,
		dir:     opts.Directory,
		rpc:     opts.Transport,
		kv:      opts.KV,
		cache:   proof.Cache{KV: opts.KV},
		ledger:  opts.Ledger,
		sink:    opts.Sink,
		log:     opts.Log,
		metrics: opts.Metrics,
		rng:     opts.Rand,
		entropy: opts.Entropy,
	}
	if v.log == nil {
		v.log = logrus.StandardLogger()
	}
	if v.rng == nil {
		v.rng = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	if v.entropy == nil {
		v.entropy = crand.Reader
	}
	if v.ledger == nil {
		l, err := trust.Load(opts.KV, opts.Params.Alpha)
		if err != nil {
			return nil, err
		}
		v.ledger = l
	}
	peers, err := v.dir.ListPeers(ctx)
	if err != nil {
		return nil, err
	}
	v.peers = peers
	return v, nil
}

func (v *Validator) Ledger() *trust.Ledger { return v.ledger }

// Run executes rounds every RoundInterval until ctx is cancelled, then
// persists the ledger. A round in flight at cancellation is abandoned.
func (v *Validator) Run(ctx context.Context) error {
	v.log.WithField("miners", len(v.miners())).Info("Starting validator loop.")
	ticker := time.NewTicker(v.params.RoundInterval)
	defer ticker.Stop()
	defer v.persist()

	for {
		if _, err := v.Round(ctx); err != nil && ctx.Err() == nil {
			v.log.WithError(err).Error("round failed")
		}
		select {
		case <-ctx.Done():
			v.log.Info("Interrupt received. Exiting validator.")
			return nil
		case <-ticker.C:
		}
	}
}

func (v *Validator) persist() {
	if err := trust.Save(v.kv, v.ledger); err != nil {
		v.log.WithError(err).Error("save trust snapshot")
	}
}

func (v *Validator) miners() []directory.Peer {
	return directory.Miners(v.peers, v.dir.MyIdentity())
}

// Round runs seed, sample, prove, apply and (every CommitEvery rounds)
// commit, then refreshes the peer set. It returns ctx.Err() if cancelled
// before outcomes were applied; the ledger is then left untouched.
func (v *Validator) Round(ctx context.Context) (Report, error) {
	start := time.Now()
	v.round++
	rep := Report{Round: v.round}
	log := v.log.WithField("round", v.round)
	miners := v.miners()

	seeded, err := v.seed(ctx, miners, log)
	if err != nil {
		return rep, err
	}
	rep.Seeded = seeded

	tasks := v.sample(miners, log)
	outcomes, err := v.prove(ctx, tasks)
	if err != nil {
		return rep, err
	}
	rep.Outcomes = outcomes
	rep.Observations = v.apply(outcomes, log)

	if v.round%uint64(v.params.CommitEvery) == 0 {
		rep.Committed = true
		rep.CommitErr = v.commit(ctx, miners, log)
	}

	v.refresh(ctx, log)
	v.metrics.Round(time.Since(start))
	return rep, nil
}

func (v *Validator) randomKey() string {
	return strconv.Itoa(v.rng.IntN(v.params.KeySpace + 1))
}

type task struct {
	peer   directory.Peer
	key    string
	want   fingerprint.Fingerprint
	preset *proof.Outcome
}

// sample draws the round's keys and pairs each with every miner, in key
// order.
func (v *Validator) sample(miners []directory.Peer, log logrus.FieldLogger) []task {
	tasks := make([]task, 0, v.params.KeysPerRound*len(miners))
	for i := 0; i < v.params.KeysPerRound; i++ {
		key := v.randomKey()
		want, err := v.cache.Lookup(key)
		if err == nil {
			for _, m := range miners {
				tasks = append(tasks, task{peer: m, key: key, want: want})
			}
			continue
		}
		entry := log.WithField("key", key).WithError(err)
		if errors.Is(err, proof.ErrNoFingerprint) {
			entry.Warn("no fingerprint for sampled key")
		} else {
			entry.Error("read fingerprint cache")
		}
		if v.params.MissingFingerprint == MissingSkip {
			continue
		}
		for _, m := range miners {
			o := proof.Failed(m.ID, key, err)
			tasks = append(tasks, task{peer: m, key: key, preset: &o})
		}
	}
	return tasks
}

func (v *Validator) prove(ctx context.Context, tasks []task) ([]proof.Outcome, error) {
	out := make([]proof.Outcome, len(tasks))
	err := fanOut(ctx, len(tasks), v.params.workers(), func(ctx context.Context, i int) {
		t := tasks[i]
		if t.preset != nil {
			out[i] = *t.preset
			return
		}
		out[i] = proof.Check(ctx, v.rpc, t.peer, t.key, t.want, v.params.CheckTimeout)
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// apply reduces outcomes to one observation per peer and folds each into
// the ledger once.
func (v *Validator) apply(outcomes []proof.Outcome, log logrus.FieldLogger) []Observation {
	for _, o := range outcomes {
		v.metrics.Proof(o.OK)
		if !o.OK {
			log.WithFields(logrus.Fields{
				"peer":    o.Peer.String(),
				"key":     o.Key,
				"elapsed": o.Elapsed,
			}).WithError(o.Err).Debug("proof failed")
		}
	}
	obs := reduce(outcomes)
	for _, ob := range obs {
		v.metrics.Score(ob.Peer, v.ledger.Observe(ob.Peer, ob.Value))
	}
	return obs
}

// reduce groups outcomes by peer in first-seen order. A single failed check
// makes the peer's observation 0.
func reduce(outcomes []proof.Outcome) []Observation {
	idx := make(map[peer.ID]int)
	var obs []Observation
	for _, o := range outcomes {
		i, ok := idx[o.Peer]
		if !ok {
			i = len(obs)
			idx[o.Peer] = i
			obs = append(obs, Observation{Peer: o.Peer, Value: 1})
		}
		obs[i].Checks++
		if !o.OK {
			obs[i].Value = 0
		}
	}
	return obs
}

func (v *Validator) commit(ctx context.Context, miners []directory.Peer, log logrus.FieldLogger) error {
	if len(miners) == 0 {
		log.Info("no miners known; skipping weight commit")
		return nil
	}
	ids := directory.IDs(miners)
	w := v.ledger.Weights(ids)
	log.WithField("weights", w).Info("Setting weights")

	cctx, cancel := context.WithTimeout(ctx, v.params.CommitTimeout)
	defer cancel()
	if err := v.sink.CommitWeights(cctx, v.round, ids, w); err != nil {
		v.metrics.Commit(false)
		log.WithError(err).Error("Failed to set weights.")
		return err
	}
	v.metrics.Commit(true)
	for i, id := range ids {
		v.metrics.Weight(id, w[i])
	}
	log.Info("Successfully set weights.")
	if err := trust.Save(v.kv, v.ledger); err != nil {
		log.WithError(err).Warn("save trust snapshot")
	}
	return nil
}

// refresh reloads the directory and drops transport state for peers that
// left. A failed refresh keeps the previous peer set.
func (v *Validator) refresh(ctx context.Context, log logrus.FieldLogger) {
	if r, ok := v.dir.(directory.Refresher); ok {
		if err := r.Refresh(ctx); err != nil {
			log.WithError(err).Warn("refresh directory")
		}
	}
	peers, err := v.dir.ListPeers(ctx)
	if err != nil {
		log.WithError(err).Warn("list peers")
		return
	}
	v.peers = peers
	if p, ok := v.rpc.(pruner); ok {
		p.Prune(peers)
	}
}
