package grpckv

import (
	"flag"
	"fmt"
	"strings"
	"time"

	"xdao.co/storagenet/storage"
	"xdao.co/storagenet/storage/kvregistry"
)

var (
	flagTarget      string
	flagTimeout     time.Duration
	flagMaxMsgBytes int
)

func init() {
	kvregistry.MustRegister(kvregistry.Backend{
		Name:        "grpc",
		Description: "Remote miner over gRPC (Store/Retrieve)",
		Usage:       kvregistry.UsageCLI,
		RegisterFlags: func(fs *flag.FlagSet) {
			fs.StringVar(&flagTarget, "grpc-target", "", "gRPC target host:port (for --backend=grpc)")
			fs.DurationVar(&flagTimeout, "grpc-timeout", 12*time.Second, "Per-RPC timeout (for --backend=grpc)")
			fs.IntVar(&flagMaxMsgBytes, "grpc-max-msg-bytes", 0, "Max gRPC message size in bytes (send+recv); 0 uses grpc defaults")
		},
		Open: func() (storage.KV, func() error, error) {
			return open(flagTarget, flagTimeout, flagMaxMsgBytes)
		},
		OpenConfig: func(cfg map[string]string) (storage.KV, func() error, error) {
			timeout := 12 * time.Second
			if s := cfg["grpc-timeout"]; s != "" {
				d, err := time.ParseDuration(s)
				if err != nil {
					return nil, nil, fmt.Errorf("grpc-timeout: %w", err)
				}
				timeout = d
			}
			return open(cfg["grpc-target"], timeout, 0)
		},
	})
}

func open(target string, timeout time.Duration, maxMsg int) (storage.KV, func() error, error) {
	target = strings.TrimSpace(target)
	if target == "" {
		return nil, nil, fmt.Errorf("missing --grpc-target")
	}
	client, err := Dial(target, DialOptions{MaxMsgBytes: maxMsg})
	if err != nil {
		return nil, nil, err
	}
	client.Timeout = timeout
	return RemoteKV{Client: client}, client.Close, nil
}
