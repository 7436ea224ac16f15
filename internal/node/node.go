// Package node holds the startup sequence shared by the miner and
// validator binaries.
package node

import (
	"context"
	"crypto/rand"
	"flag"
	"math"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/sirupsen/logrus"

	"xdao.co/storagenet/config"
	"xdao.co/storagenet/directory"
	"xdao.co/storagenet/keys"
	"xdao.co/storagenet/logging"
	"xdao.co/storagenet/metrics"
)

// Flags are the command-line overrides common to both roles.
type Flags struct {
	Config        string
	NetUID        uint
	KeyFile       string
	Directory     string
	MetricsListen string
	LogLevel      string
}

func (f *Flags) Add(fs *flag.FlagSet) {
	fs.StringVar(&f.Config, "config", "", "YAML node configuration file")
	fs.UintVar(&f.NetUID, "netuid", 1, "Subnet id")
	fs.StringVar(&f.KeyFile, "key-file", "", "Hex ed25519 seed file (created if missing)")
	fs.StringVar(&f.Directory, "directory", "", "Peer directory YAML file")
	fs.StringVar(&f.MetricsListen, "metrics-listen", "", "Serve /metrics on this address")
	fs.StringVar(&f.LogLevel, "log-level", "", "Log level (trace, debug, info, warn, error)")
}

// Load reads the config file and applies the flags that were set on fs.
func (f *Flags) Load(fs *flag.FlagSet) (config.Config, error) {
	cfg, err := config.Load(f.Config)
	if err != nil {
		return cfg, err
	}
	if f.NetUID > math.MaxUint16 {
		return cfg, errors.Errorf("-netuid %d out of range (max %d)", f.NetUID, math.MaxUint16)
	}
	fs.Visit(func(fl *flag.Flag) {
		switch fl.Name {
		case "netuid":
			cfg.NetUID = uint16(f.NetUID)
		case "key-file":
			cfg.KeyFile = f.KeyFile
		case "directory":
			cfg.Directory = f.Directory
		case "metrics-listen":
			cfg.Metrics.Listen = f.MetricsListen
		case "log-level":
			cfg.Log.Level = f.LogLevel
		}
	})
	if err := cfg.ExpandPaths(); err != nil {
		return cfg, err
	}
	return cfg, cfg.Validate()
}

// Node is a started process: logger, identity, directory and metrics.
type Node struct {
	Config    config.Config
	Log       *logrus.Logger
	Identity  *keys.Identity
	Directory *directory.File
	Registry  *prometheus.Registry

	closers []func() error
}

// Start brings up the shared services for role and fails with
// directory.ErrNotRegistered if the identity is not listed.
func Start(ctx context.Context, cfg config.Config, role string) (*Node, error) {
	log, closeLog, err := logging.New(cfg.Log)
	if err != nil {
		return nil, errors.Wrap(err, "logging")
	}
	n := &Node{Config: cfg, Log: log, closers: []func() error{closeLog}}

	id, created, err := keys.LoadOrCreateIdentity(cfg.KeyFile, rand.Reader)
	if err != nil {
		n.Close()
		return nil, errors.Wrapf(err, "load identity %s", cfg.KeyFile)
	}
	n.Identity = id
	entry := log.WithFields(logrus.Fields{"peer": id.ID().String(), "netuid": cfg.NetUID, "role": role})
	if created {
		entry.WithField("key_file", cfg.KeyFile).Info("created new identity")
	}

	dir, err := directory.OpenFile(ctx, cfg.Directory, cfg.NetUID, id.ID())
	if err != nil {
		n.Close()
		return nil, errors.Wrap(err, "open directory")
	}
	n.Directory = dir
	if err := directory.RequireRegistered(ctx, dir); err != nil {
		n.Close()
		return nil, errors.Wrapf(err, "your %s is not registered; add %s to %s and try again", role, id.ID(), cfg.Directory)
	}
	entry.Infof("Running %s", role)

	n.Registry = prometheus.NewRegistry()
	n.Registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	if cfg.Metrics.Listen != "" {
		go func() {
			if err := metrics.Serve(ctx, cfg.Metrics.Listen, n.Registry); err != nil {
				log.WithError(err).Error("metrics server")
			}
		}()
	}
	return n, nil
}

// AddCloser registers fn to run on Close, in reverse order.
func (n *Node) AddCloser(fn func() error) {
	if fn != nil {
		n.closers = append(n.closers, fn)
	}
}

func (n *Node) Close() {
	for i := len(n.closers) - 1; i >= 0; i-- {
		if err := n.closers[i](); err != nil && n.Log != nil {
			n.Log.WithError(err).Warn("close")
		}
	}
	n.closers = nil
}
