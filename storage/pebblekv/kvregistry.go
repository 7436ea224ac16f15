package pebblekv

import (
	"flag"
	"fmt"

	"xdao.co/storagenet/storage"
	"xdao.co/storagenet/storage/kvregistry"
)

var (
	flagDir string
)

func init() {
	kvregistry.MustRegister(kvregistry.Backend{
		Name:        "pebble",
		Description: "Pebble key/value store (directory)",
		Usage:       kvregistry.UsageLocal,
		RegisterFlags: func(fs *flag.FlagSet) {
			fs.StringVar(&flagDir, "pebble-dir", "", "Pebble directory (for --backend=pebble)")
		},
		Open: func() (storage.KV, func() error, error) {
			return openDir(flagDir)
		},
		OpenConfig: func(cfg map[string]string) (storage.KV, func() error, error) {
			return openDir(cfg["pebble-dir"])
		},
	})
}

func openDir(dir string) (storage.KV, func() error, error) {
	if dir == "" {
		return nil, nil, fmt.Errorf("missing --pebble-dir")
	}
	s, err := Open(dir)
	if err != nil {
		return nil, nil, err
	}
	return s, s.Close, nil
}
