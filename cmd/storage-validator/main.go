package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"xdao.co/storagenet/config"
	"xdao.co/storagenet/internal/node"
	"xdao.co/storagenet/metrics"
	"xdao.co/storagenet/storage"
	"xdao.co/storagenet/storage/grpckv"
	"xdao.co/storagenet/storage/kvregistry"
	"xdao.co/storagenet/validator"
	"xdao.co/storagenet/weights"

	_ "xdao.co/storagenet/storage/boltkv"
	_ "xdao.co/storagenet/storage/fskv"
	_ "xdao.co/storagenet/storage/leveldbkv"
	_ "xdao.co/storagenet/storage/pebblekv"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, out io.Writer, errOut io.Writer) int {
	fs := flag.NewFlagSet("storage-validator", flag.ContinueOnError)
	fs.SetOutput(errOut)
	var nf node.Flags
	nf.Add(fs)
	dbPath := fs.String("validator-db", "", "LevelDB directory for the fingerprint cache (overrides config storage)")
	ledgerPath := fs.String("ledger", "", "Shared weight ledger file (default: log weights only)")
	backend := fs.String("backend", "", "Open this backend from its flags instead of the config storage")
	listBackends := fs.Bool("list-backends", false, "List supported backends and exit")
	kvregistry.RegisterFlags(fs, kvregistry.UsageValidator)

	if err := fs.Parse(args); err != nil {
		return 2
	}
	if *listBackends {
		for _, b := range kvregistry.List(kvregistry.UsageValidator) {
			_, _ = fmt.Fprintf(out, "%s\t%s\n", b.Name, b.Description)
		}
		return 0
	}

	cfg, err := nf.Load(fs)
	if err != nil {
		fmt.Fprintln(errOut, err)
		return 1
	}
	if *dbPath != "" {
		if cfg.ValidatorDB, err = config.ExpandHome(*dbPath); err != nil {
			fmt.Fprintln(errOut, err)
			return 1
		}
		cfg.Storage = nil
	}
	if *ledgerPath != "" {
		if cfg.Ledger.Path, err = config.ExpandHome(*ledgerPath); err != nil {
			fmt.Fprintln(errOut, err)
			return 1
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	n, err := node.Start(ctx, cfg, "validator")
	if err != nil {
		fmt.Fprintln(errOut, err)
		return 1
	}
	defer n.Close()
	log := n.Log.WithField("peer", n.Identity.ID().String())

	var kv storage.KV
	var closeKV func() error
	if *backend != "" {
		kv, closeKV, err = kvregistry.Open(*backend, kvregistry.UsageValidator)
	} else {
		kv, closeKV, err = cfg.StorageFor(cfg.ValidatorDB).Open(kvregistry.UsageValidator, "")
	}
	if err != nil {
		log.WithError(err).Error("open validator db")
		return 1
	}
	n.AddCloser(closeKV)

	pool := grpckv.NewPool(grpckv.DialOptions{MaxMsgBytes: cfg.Miner.MaxMsgBytes})
	n.AddCloser(pool.Close)

	var sink weights.Sink = weights.LogSink{Log: log}
	if cfg.Ledger.Path != "" {
		sink = &weights.FileLedger{
			Path:     cfg.Ledger.Path,
			NetUID:   cfg.NetUID,
			Identity: n.Identity,
			HashAlg:  cfg.Ledger.HashAlg,
			PQ:       cfg.Ledger.PQ,
		}
	}

	v, err := validator.New(ctx, validator.Options{
		Params:    cfg.Validator,
		Directory: n.Directory,
		Transport: pool,
		KV:        kv,
		Sink:      sink,
		Log:       log,
		Metrics:   metrics.NewValidator(n.Registry),
	})
	if err != nil {
		log.WithError(err).Error("start validator")
		return 1
	}
	if err := v.Run(ctx); err != nil {
		log.WithError(err).Error("validator loop")
		return 1
	}
	return 0
}
