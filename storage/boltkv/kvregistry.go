package boltkv

import (
	"flag"
	"fmt"

	"xdao.co/storagenet/storage"
	"xdao.co/storagenet/storage/kvregistry"
)

var (
	flagPath string
)

func init() {
	kvregistry.MustRegister(kvregistry.Backend{
		Name:        "bolt",
		Description: "bbolt key/value store (single file)",
		Usage:       kvregistry.UsageLocal,
		RegisterFlags: func(fs *flag.FlagSet) {
			fs.StringVar(&flagPath, "bolt-path", "", "bbolt database file (for --backend=bolt)")
		},
		Open: func() (storage.KV, func() error, error) {
			return openPath(flagPath)
		},
		OpenConfig: func(cfg map[string]string) (storage.KV, func() error, error) {
			return openPath(cfg["bolt-path"])
		},
	})
}

func openPath(path string) (storage.KV, func() error, error) {
	if path == "" {
		return nil, nil, fmt.Errorf("missing --bolt-path")
	}
	s, err := Open(path)
	if err != nil {
		return nil, nil, err
	}
	return s, s.Close, nil
}
