package validator

import (
	"fmt"
	"runtime"
	"time"
)

// Missing-fingerprint policies.
const (
	MissingFail = "fail"
	MissingSkip = "skip"
)

// Params tune the validation loop.
type Params struct {
	// Alpha is the EMA inertia in (0,1).
	Alpha float64 `yaml:"alpha"`
	// KeysPerRound keys are drawn uniformly from [0, KeySpace] each round.
	KeysPerRound int `yaml:"keys_per_round"`
	KeySpace     int `yaml:"key_space"`

	RoundInterval time.Duration `yaml:"round_interval"`
	// CommitEvery N rounds the weights are normalized and committed.
	CommitEvery   int           `yaml:"commit_every"`
	CheckTimeout  time.Duration `yaml:"check_timeout"`
	CommitTimeout time.Duration `yaml:"commit_timeout"`
	// Workers bounds concurrent RPCs; 0 sizes the pool to the host.
	Workers int `yaml:"workers"`

	// MissingFingerprint is MissingFail or MissingSkip.
	MissingFingerprint string `yaml:"missing_fingerprint"`

	// SeedPerRound keys receive fresh data each round; 0 disables seeding.
	SeedPerRound int `yaml:"seed_per_round"`
	SeedSize     int `yaml:"seed_size"`
}

func DefaultParams() Params {
	return Params{
		Alpha:              0.9,
		KeysPerRound:       10,
		KeySpace:           10000,
		RoundInterval:      12 * time.Second,
		CommitEvery:        2,
		CheckTimeout:       12 * time.Second,
		CommitTimeout:      30 * time.Second,
		MissingFingerprint: MissingFail,
		SeedPerRound:       2,
		SeedSize:           32,
	}
}

func (p Params) Validate() error {
	switch {
	case !(p.Alpha > 0 && p.Alpha < 1):
		return fmt.Errorf("validator: alpha must be in (0,1), got %v", p.Alpha)
	case p.KeysPerRound <= 0:
		return fmt.Errorf("validator: keys_per_round must be positive")
	case p.KeySpace < 0:
		return fmt.Errorf("validator: key_space must not be negative")
	case p.RoundInterval <= 0:
		return fmt.Errorf("validator: round_interval must be positive")
	case p.CommitEvery <= 0:
		return fmt.Errorf("validator: commit_every must be positive")
	case p.CheckTimeout <= 0:
		return fmt.Errorf("validator: check_timeout must be positive")
	case p.CommitTimeout <= 0:
		return fmt.Errorf("validator: commit_timeout must be positive")
	case p.Workers < 0:
		return fmt.Errorf("validator: workers must not be negative")
	case p.SeedPerRound < 0:
		return fmt.Errorf("validator: seed_per_round must not be negative")
	case p.SeedPerRound > 0 && p.SeedSize <= 0:
		return fmt.Errorf("validator: seed_size must be positive")
	}
	switch p.MissingFingerprint {
	case MissingFail, MissingSkip:
		return nil
	default:
		return fmt.Errorf("validator: missing_fingerprint must be %q or %q, got %q", MissingFail, MissingSkip, p.MissingFingerprint)
	}
}

func (p Params) workers() int {
	if p.Workers > 0 {
		return p.Workers
	}
	return min(32, runtime.NumCPU()+4)
}
