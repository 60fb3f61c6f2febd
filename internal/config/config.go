package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/rzbill/strand/internal/logbuffer"
)

// Config is the top-level configuration loaded from file/env.
type Config struct {
	// TermLength is the per-partition term buffer length in bytes. Power of
	// two, 64 KiB to 1 GiB.
	TermLength int32 `json:"termLength"`

	// MTULength bounds a single frame including its header. Multiple of 32.
	MTULength int32 `json:"mtuLength"`

	// CounterSlots sizes the shared counters file.
	CounterSlots int32 `json:"counterSlots"`

	// LimitWindow is how far ahead of the slowest subscriber the publication
	// limit is advanced. Zero means termLength/2.
	LimitWindow int32 `json:"limitWindow"`

	// ConnectionTimeoutMs is the liveness window for subscriber status
	// messages.
	ConnectionTimeoutMs int64 `json:"connectionTimeoutMs"`

	// LimitUpdateIntervalMs is the cadence of the driver's limit/status loop.
	LimitUpdateIntervalMs int64 `json:"limitUpdateIntervalMs"`

	// DebugClaims is the setting for the client-side registry of outstanding
	// buffer claims (client.Options.DebugClaims). It is loaded from file and
	// environment only; no command passes it on to a conductor.
	DebugClaims bool `json:"debugClaims"`
}

// Default returns built-in defaults.
func Default() Config {
	return Config{
		TermLength:            1 << 20,
		MTULength:             4096,
		CounterSlots:          1024,
		LimitWindow:           0,
		ConnectionTimeoutMs:   5000,
		LimitUpdateIntervalMs: 10,
	}
}

// Load reads configuration from a JSON file over defaults. An empty path
// returns defaults.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}
	switch filepath.Ext(path) {
	case ".yaml", ".yml":
		return Config{}, errors.New("config: yaml not supported; use JSON")
	default:
		if err := json.Unmarshal(b, &cfg); err != nil {
			return Config{}, err
		}
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks the configuration invariants.
func (c Config) Validate() error {
	if err := logbuffer.CheckTermLength(c.TermLength); err != nil {
		return err
	}
	if c.MTULength <= logbuffer.HeaderLength || c.MTULength%logbuffer.FrameAlignment != 0 {
		return fmt.Errorf("config: mtu length %d must exceed the header and be a multiple of %d", c.MTULength, logbuffer.FrameAlignment)
	}
	if c.MTULength > c.TermLength {
		return fmt.Errorf("config: mtu length %d exceeds term length %d", c.MTULength, c.TermLength)
	}
	if c.CounterSlots < 2 {
		return fmt.Errorf("config: counter slots %d too few", c.CounterSlots)
	}
	if c.LimitWindow < 0 || c.LimitWindow > c.TermLength {
		return fmt.Errorf("config: limit window %d outside [0, termLength]", c.LimitWindow)
	}
	if c.ConnectionTimeoutMs <= 0 || c.LimitUpdateIntervalMs <= 0 {
		return errors.New("config: timeouts must be positive")
	}
	return nil
}
