// Package config loads the node configuration file shared by the miner and
// validator binaries.
package config

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"xdao.co/storagenet/logging"
	"xdao.co/storagenet/storage/kvconfig"
	"xdao.co/storagenet/validator"
)

// Example:
//
//	netuid: 1
//	key_file: ~/.storagenet/miner.key
//	directory: /etc/storagenet/peers.yaml
//	log: {level: debug}
//	metrics: {listen: 127.0.0.1:9100}
//	storage:
//	  backends:
//	    - name: pebble
//	      config: {pebble-dir: /var/lib/storagenet/data}
//	validator:
//	  keys_per_round: 20
//	  round_interval: 24s
//	ledger:
//	  path: /shared/weights.jsonl
//	  pq: true
type Config struct {
	NetUID    uint16 `yaml:"netuid"`
	KeyFile   string `yaml:"key_file"`
	Directory string `yaml:"directory"`

	// DataDir is the miner's default LevelDB directory, ValidatorDB the
	// validator's. Both are ignored when Storage is set.
	DataDir     string           `yaml:"path_to_data"`
	ValidatorDB string           `yaml:"validator_db"`
	Storage     *kvconfig.Config `yaml:"storage"`

	Log       logging.Config   `yaml:"log"`
	Metrics   Metrics          `yaml:"metrics"`
	Miner     Miner            `yaml:"miner"`
	Validator validator.Params `yaml:"validator"`
	Ledger    Ledger           `yaml:"ledger"`
}

type Metrics struct {
	// Listen enables the /metrics endpoint when set.
	Listen string `yaml:"listen"`
}

type Miner struct {
	Listen      string        `yaml:"listen"`
	MaxMsgBytes int           `yaml:"max_msg_bytes"`
	StatusEvery int           `yaml:"status_every"`
	StatusTick  time.Duration `yaml:"status_tick"`
}

type Ledger struct {
	// Path of the shared weight ledger. Empty logs weights instead.
	Path    string `yaml:"path"`
	HashAlg string `yaml:"hash_alg"`
	PQ      bool   `yaml:"pq"`
}

func Default() Config {
	return Config{
		NetUID:      1,
		KeyFile:     "~/.storagenet/identity.key",
		Directory:   "~/.storagenet/peers.yaml",
		DataDir:     "~/data_db",
		ValidatorDB: "~/validator_db",
		Log:         logging.Config{Level: "info"},
		Miner: Miner{
			Listen:      "0.0.0.0:8091",
			StatusEvery: 5,
			StatusTick:  time.Second,
		},
		Validator: validator.DefaultParams(),
	}
}

// Load reads path over Default. An empty path returns Default.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return cfg, errors.Wrap(err, "read config")
	}
	dec := yaml.NewDecoder(bytes.NewReader(b))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return cfg, errors.Wrapf(err, "parse config %s", path)
	}
	return cfg, nil
}

// Validate checks the settings both roles depend on.
func (c Config) Validate() error {
	if c.KeyFile == "" {
		return errors.New("key_file is required")
	}
	if c.Directory == "" {
		return errors.New("directory is required")
	}
	if c.Storage != nil {
		if err := c.Storage.Validate(); err != nil {
			return errors.Wrap(err, "storage")
		}
	}
	return errors.Wrap(c.Validator.Validate(), "validator")
}

// ExpandPaths resolves a leading "~" in every path setting.
func (c *Config) ExpandPaths() error {
	for _, p := range []*string{&c.KeyFile, &c.Directory, &c.DataDir, &c.ValidatorDB, &c.Ledger.Path, &c.Log.Filename} {
		v, err := ExpandHome(*p)
		if err != nil {
			return err
		}
		*p = v
	}
	return nil
}

// StorageFor returns the KV config of a role: Storage if set, otherwise a
// single LevelDB at dir.
func (c Config) StorageFor(dir string) kvconfig.Config {
	if c.Storage != nil {
		return *c.Storage
	}
	return kvconfig.Single("leveldb", map[string]string{"leveldb-dir": dir})
}

func ExpandHome(p string) (string, error) {
	if p != "~" && !strings.HasPrefix(p, "~/") {
		return p, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", errors.Wrap(err, "expand ~")
	}
	return filepath.Join(home, strings.TrimPrefix(p, "~")), nil
}
