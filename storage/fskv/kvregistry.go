package fskv

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
		Name:        "fs",
		Description: "Local filesystem key/value store (one file per key)",
		Usage:       kvregistry.UsageLocal,
		RegisterFlags: func(fs *flag.FlagSet) {
			fs.StringVar(&flagDir, "fs-dir", "", "Filesystem KV directory (for --backend=fs)")
		},
		Open: func() (storage.KV, func() error, error) {
			return openDir(flagDir)
		},
		OpenConfig: func(cfg map[string]string) (storage.KV, func() error, error) {
			return openDir(cfg["fs-dir"])
		},
	})
}

func openDir(dir string) (storage.KV, func() error, error) {
	if dir == "" {
		return nil, nil, fmt.Errorf("missing --fs-dir")
	}
	kv, err := New(dir)
	return kv, nil, err
}
