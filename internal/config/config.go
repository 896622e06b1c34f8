// Package config loads the TOML bootstrap configuration for a shmif-probe
// style client: where to rendezvous, what connection key to present, and
// which runtime knobs (guard polling, manual pause) to carry into Connect.
package config

import (
	"os"

	"github.com/pelletier/go-toml/v2"
)

type Config struct {
	Rendezvous RendezvousConfig `toml:"rendezvous"`
	Runtime    RuntimeConfig    `toml:"runtime"`
}

type RendezvousConfig struct {
	// Prefix is resolved against rendezvous.ResolvePath's three rules: a
	// leading NUL selects the abstract namespace, a leading '/' an
	// absolute path, anything else a "~/.prefix" path under $HOME.
	Prefix string `toml:"prefix"`
	Key    string `toml:"key"`
	// Loop retries the handshake with a short backoff instead of failing
	// once, mirroring ConnectLoop.
	Loop bool `toml:"loop"`
}

type RuntimeConfig struct {
	// GuardIntervalSeconds overrides guard.PollInterval; zero keeps the
	// package default.
	GuardIntervalSeconds int  `toml:"guard_interval_seconds"`
	DisableGuard         bool `toml:"disable_guard"`
	ManualPause          bool `toml:"manual_pause"`
	DontUnlink           bool `toml:"dont_unlink"`
}

func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var c Config
	if err := toml.Unmarshal(b, &c); err != nil {
		return nil, err
	}

	return &c, nil
}
