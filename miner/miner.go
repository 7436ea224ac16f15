// Package miner serves stored data to validators over gRPC.
package miner

import (
	"context"
	"errors"
	"net"
	"path"
	"time"

	"github.com/sirupsen/logrus"
	"google.golang.org/grpc"
	"google.golang.org/grpc/status"

	"xdao.co/storagenet/directory"
	"xdao.co/storagenet/metrics"
	"xdao.co/storagenet/storage"
	"xdao.co/storagenet/storage/grpckv"
)

type Options struct {
	KV        storage.KV
	Directory directory.Directory

	// MaxMsgBytes caps request and reply sizes; 0 keeps gRPC defaults.
	MaxMsgBytes int
	// StatusEvery ticks of StatusTick the miner refreshes the directory and
	// logs its status. Defaults: 5 ticks of 1s.
	StatusEvery int
	StatusTick  time.Duration

	Log     logrus.FieldLogger
	Metrics *metrics.Miner
}

type Miner struct {
	opts Options
	log  logrus.FieldLogger
	srv  *grpc.Server
}

func New(opts Options) (*Miner, error) {
	if opts.KV == nil || opts.Directory == nil {
		return nil, errors.New("miner: kv and directory are required")
	}
	if opts.StatusEvery <= 0 {
		opts.StatusEvery = 5
	}
	if opts.StatusTick <= 0 {
		opts.StatusTick = time.Second
	}
	log := opts.Log
	if log == nil {
		log = logrus.StandardLogger()
	}

	serverOpts := []grpc.ServerOption{grpc.ChainUnaryInterceptor(UnaryInterceptor(log, opts.Metrics))}
	if opts.MaxMsgBytes > 0 {
		serverOpts = append(serverOpts, grpc.MaxRecvMsgSize(opts.MaxMsgBytes), grpc.MaxSendMsgSize(opts.MaxMsgBytes))
	}
	srv := grpc.NewServer(serverOpts...)
	grpckv.RegisterStorageServer(srv, &grpckv.Server{KV: opts.KV})
	return &Miner{opts: opts, log: log, srv: srv}, nil
}

// Serve answers Store and Retrieve on lis and runs the status loop until
// ctx is done, then stops gracefully.
func (m *Miner) Serve(ctx context.Context, lis net.Listener) error {
	m.log.WithField("addr", lis.Addr().String()).Info("Starting storage server")
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	errc := make(chan error, 1)
	go func() { errc <- m.srv.Serve(lis) }()

	statusDone := make(chan struct{})
	go func() {
		defer close(statusDone)
		m.statusLoop(ctx)
	}()

	select {
	case err := <-errc:
		cancel()
		<-statusDone
		return err
	case <-ctx.Done():
		m.srv.GracefulStop()
		<-statusDone
		m.log.Info("Miner stopped.")
		return <-errc
	}
}

func (m *Miner) statusLoop(ctx context.Context) {
	ticker := time.NewTicker(m.opts.StatusTick)
	defer ticker.Stop()
	for step := 0; ; step++ {
		if step%m.opts.StatusEvery == 0 {
			m.status(ctx, step)
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (m *Miner) status(ctx context.Context, step int) {
	if r, ok := m.opts.Directory.(directory.Refresher); ok {
		if err := r.Refresh(ctx); err != nil && ctx.Err() == nil {
			m.log.WithError(err).Warn("refresh directory")
		}
	}
	entry := m.log.WithField("step", step)
	peers, err := m.opts.Directory.ListPeers(ctx)
	if err != nil {
		entry.WithError(err).Warn("status: list peers")
		return
	}
	registered, err := m.opts.Directory.IsRegistered(ctx, m.opts.Directory.MyIdentity())
	entry = entry.WithFields(logrus.Fields{
		"peers":      len(peers),
		"registered": registered,
	})
	switch {
	case err != nil:
		entry.WithError(err).Warn("status")
	case !registered:
		entry.Warn("miner is no longer listed in the directory")
	default:
		entry.Info("status")
	}
}

// UnaryInterceptor logs each call and counts it by method and status code.
func UnaryInterceptor(log logrus.FieldLogger, mx *metrics.Miner) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		start := time.Now()
		resp, err := handler(ctx, req)
		op := path.Base(info.FullMethod)
		code := status.Code(err)
		mx.Request(op, code.String())
		log.WithFields(logrus.Fields{
			"op":      op,
			"code":    code.String(),
			"elapsed": time.Since(start),
		}).Debug("request")
		return resp, err
	}
}
