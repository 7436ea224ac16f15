package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"net"
	"os"
	"os/signal"
	"syscall"

	"xdao.co/storagenet/config"
	"xdao.co/storagenet/internal/node"
	"xdao.co/storagenet/metrics"
	"xdao.co/storagenet/miner"
	"xdao.co/storagenet/storage"
	"xdao.co/storagenet/storage/kvregistry"

	_ "xdao.co/storagenet/storage/boltkv"
	_ "xdao.co/storagenet/storage/fskv"
	_ "xdao.co/storagenet/storage/leveldbkv"
	_ "xdao.co/storagenet/storage/pebblekv"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, out io.Writer, errOut io.Writer) int {
	fs := flag.NewFlagSet("storage-miner", flag.ContinueOnError)
	fs.SetOutput(errOut)
	var nf node.Flags
	nf.Add(fs)
	dataPath := fs.String("path-to-data", "", "LevelDB directory for stored data (overrides config storage)")
	listen := fs.String("listen", "", "gRPC listen address")
	backend := fs.String("backend", "", "Open this backend from its flags instead of the config storage")
	listBackends := fs.Bool("list-backends", false, "List supported backends and exit")
	kvregistry.RegisterFlags(fs, kvregistry.UsageMiner)

	if err := fs.Parse(args); err != nil {
		return 2
	}
	if *listBackends {
		for _, b := range kvregistry.List(kvregistry.UsageMiner) {
			_, _ = fmt.Fprintf(out, "%s\t%s\n", b.Name, b.Description)
		}
		return 0
	}

	cfg, err := nf.Load(fs)
	if err != nil {
		fmt.Fprintln(errOut, err)
		return 1
	}
	if *dataPath != "" {
		if cfg.DataDir, err = config.ExpandHome(*dataPath); err != nil {
			fmt.Fprintln(errOut, err)
			return 1
		}
		cfg.Storage = nil
	}
	if *listen != "" {
		cfg.Miner.Listen = *listen
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	n, err := node.Start(ctx, cfg, "miner")
	if err != nil {
		fmt.Fprintln(errOut, err)
		return 1
	}
	defer n.Close()
	log := n.Log.WithField("peer", n.Identity.ID().String())

	var kv storage.KV
	var closeKV func() error
	if *backend != "" {
		kv, closeKV, err = kvregistry.Open(*backend, kvregistry.UsageMiner)
	} else {
		kv, closeKV, err = cfg.StorageFor(cfg.DataDir).Open(kvregistry.UsageMiner, "")
	}
	if err != nil {
		log.WithError(err).Error("open data store")
		return 1
	}
	n.AddCloser(closeKV)

	m, err := miner.New(miner.Options{
		KV:          kv,
		Directory:   n.Directory,
		MaxMsgBytes: cfg.Miner.MaxMsgBytes,
		StatusEvery: cfg.Miner.StatusEvery,
		StatusTick:  cfg.Miner.StatusTick,
		Log:         log,
		Metrics:     metrics.NewMiner(n.Registry),
	})
	if err != nil {
		log.WithError(err).Error("start miner")
		return 1
	}

	lis, err := net.Listen("tcp", cfg.Miner.Listen)
	if err != nil {
		log.WithError(err).Error("listen")
		return 1
	}
	if err := m.Serve(ctx, lis); err != nil {
		log.WithError(err).Error("serve")
		return 1
	}
	return 0
}
