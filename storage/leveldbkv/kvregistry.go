package leveldbkv

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
		Name:        "leveldb",
		Description: "LevelDB key/value store (directory)",
		Usage:       kvregistry.UsageLocal,
		RegisterFlags: func(fs *flag.FlagSet) {
			fs.StringVar(&flagDir, "leveldb-dir", "", "LevelDB directory (for --backend=leveldb)")
		},
		Open: func() (storage.KV, func() error, error) {
			return openDir(flagDir)
		},
		OpenConfig: func(cfg map[string]string) (storage.KV, func() error, error) {
			return openDir(cfg["leveldb-dir"])
		},
	})
	kvregistry.MustRegister(kvregistry.Backend{
		Name:          "memory",
		Description:   "In-memory LevelDB (contents are lost on exit)",
		Usage:         kvregistry.UsageLocal,
		RegisterFlags: func(fs *flag.FlagSet) {},
		Open:          openMemory,
		OpenConfig: func(map[string]string) (storage.KV, func() error, error) {
			return openMemory()
		},
	})
}

func openDir(dir string) (storage.KV, func() error, error) {
	if dir == "" {
		return nil, nil, fmt.Errorf("missing --leveldb-dir")
	}
	s, err := Open(dir)
	if err != nil {
		return nil, nil, err
	}
	return s, s.Close, nil
}

func openMemory() (storage.KV, func() error, error) {
	s, err := OpenMemory()
	if err != nil {
		return nil, nil, err
	}
	return s, s.Close, nil
}
