// Package metrics defines the prometheus collectors of both node roles.
//
// All methods are safe on a nil receiver so components can run without
// metrics.
package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/libp2p/go-libp2p/core/peer"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "storagenet"

func result(ok bool) string {
	if ok {
		return "success"
	}
	return "failure"
}

type Validator struct {
	rounds        prometheus.Counter
	proofs        *prometheus.CounterVec
	seeds         *prometheus.CounterVec
	commits       *prometheus.CounterVec
	peerScore     *prometheus.GaugeVec
	peerWeight    *prometheus.GaugeVec
	roundDuration prometheus.Histogram
}

func NewValidator(reg prometheus.Registerer) *Validator {
	v := &Validator{
		rounds: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "validator", Name: "rounds_total",
			Help: "Validation rounds completed.",
		}),
		proofs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "validator", Name: "proofs_total",
			Help: "Retrieval proofs by result.",
		}, []string{"result"}),
		seeds: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "validator", Name: "seeds_total",
			Help: "Store calls issued while seeding, by result.",
		}, []string{"result"}),
		commits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "validator", Name: "weight_commits_total",
			Help: "Weight commits by result.",
		}, []string{"result"}),
		peerScore: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: "validator", Name: "peer_score",
			Help: "Current trust score per peer.",
		}, []string{"peer"}),
		peerWeight: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: "validator", Name: "peer_weight",
			Help: "Last committed weight per peer.",
		}, []string{"peer"}),
		roundDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace, Subsystem: "validator", Name: "round_duration_seconds",
			Help:    "Wall time of one validation round.",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 10),
		}),
	}
	if reg != nil {
		reg.MustRegister(v.rounds, v.proofs, v.seeds, v.commits, v.peerScore, v.peerWeight, v.roundDuration)
	}
	return v
}

func (v *Validator) Round(d time.Duration) {
	if v == nil {
		return
	}
	v.rounds.Inc()
	v.roundDuration.Observe(d.Seconds())
}

func (v *Validator) Proof(ok bool) {
	if v == nil {
		return
	}
	v.proofs.WithLabelValues(result(ok)).Inc()
}

func (v *Validator) Seed(ok bool) {
	if v == nil {
		return
	}
	v.seeds.WithLabelValues(result(ok)).Inc()
}

func (v *Validator) Commit(ok bool) {
	if v == nil {
		return
	}
	v.commits.WithLabelValues(result(ok)).Inc()
}

func (v *Validator) Score(id peer.ID, s float64) {
	if v == nil {
		return
	}
	v.peerScore.WithLabelValues(id.String()).Set(s)
}

func (v *Validator) Weight(id peer.ID, w float64) {
	if v == nil {
		return
	}
	v.peerWeight.WithLabelValues(id.String()).Set(w)
}

type Miner struct {
	requests *prometheus.CounterVec
}

func NewMiner(reg prometheus.Registerer) *Miner {
	m := &Miner{
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "miner", Name: "requests_total",
			Help: "Storage requests served, by operation and gRPC code.",
		}, []string{"op", "code"}),
	}
	if reg != nil {
		reg.MustRegister(m.requests)
	}
	return m
}

func (m *Miner) Request(op, code string) {
	if m == nil {
		return
	}
	m.requests.WithLabelValues(op, code).Inc()
}

// Serve exposes g on addr at /metrics until ctx is done.
func Serve(ctx context.Context, addr string, g prometheus.Gatherer) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(g, promhttp.HandlerOpts{}))
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	errc := make(chan error, 1)
	go func() { errc <- srv.ListenAndServe() }()
	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		if err := <-errc; err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}
}
