package config

import (
	"os"
	"strconv"

	"code.cloudfoundry.org/bytefmt"
)

// FromEnv overlays STRAND_* environment variables onto cfg. Size variables
// accept suffixed forms (64K, 16M).
func FromEnv(cfg *Config) {
	if v := os.Getenv("STRAND_TERM_LENGTH"); v != "" {
		if n, err := bytefmt.ToBytes(v); err == nil {
			cfg.TermLength = int32(n)
		}
	}
	if v := os.Getenv("STRAND_MTU_LENGTH"); v != "" {
		if n, err := bytefmt.ToBytes(v); err == nil {
			cfg.MTULength = int32(n)
		}
	}
	if v := os.Getenv("STRAND_LIMIT_WINDOW"); v != "" {
		if n, err := bytefmt.ToBytes(v); err == nil {
			cfg.LimitWindow = int32(n)
		}
	}
	if v := os.Getenv("STRAND_COUNTER_SLOTS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.CounterSlots = int32(n)
		}
	}
	if v := os.Getenv("STRAND_CONNECTION_TIMEOUT_MS"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			cfg.ConnectionTimeoutMs = n
		}
	}
	if v := os.Getenv("STRAND_LIMIT_UPDATE_INTERVAL_MS"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			cfg.LimitUpdateIntervalMs = n
		}
	}
	if v := os.Getenv("STRAND_DEBUG_CLAIMS"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.DebugClaims = b
		}
	}
}
