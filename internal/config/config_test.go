package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaultValidates(t *testing.T) {
	if err := Default().Validate(); err != nil {
		t.Fatalf("defaults must validate: %v", err)
	}
}

func TestLoadOverlaysDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "strand.json")
	if err := os.WriteFile(path, []byte(`{"termLength":65536,"mtuLength":1024}`), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.TermLength != 65536 || cfg.MTULength != 1024 {
		t.Fatalf("overlaid values: %+v", cfg)
	}
	if cfg.CounterSlots != Default().CounterSlots {
		t.Fatalf("untouched values should keep defaults: %+v", cfg)
	}
}

func TestLoadRejectsInvalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "strand.json")
	if err := os.WriteFile(path, []byte(`{"termLength":1000}`), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	if _, err := Load(path); err == nil {
		t.Fatalf("non power-of-two term length should be rejected")
	}
}

func TestLoadEmptyPathReturnsDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("load empty: %v", err)
	}
	if cfg != Default() {
		t.Fatalf("empty path should return defaults")
	}
}

func TestFromEnvParsesSizes(t *testing.T) {
	t.Setenv("STRAND_TERM_LENGTH", "128K")
	t.Setenv("STRAND_MTU_LENGTH", "8K")
	t.Setenv("STRAND_DEBUG_CLAIMS", "true")

	cfg := Default()
	FromEnv(&cfg)
	if cfg.TermLength != 128*1024 {
		t.Fatalf("term length from env: got %d", cfg.TermLength)
	}
	if cfg.MTULength != 8*1024 {
		t.Fatalf("mtu length from env: got %d", cfg.MTULength)
	}
	if !cfg.DebugClaims {
		t.Fatalf("debug claims from env")
	}
}

func TestValidateMTUBounds(t *testing.T) {
	cfg := Default()
	cfg.MTULength = 100 // not a multiple of 32
	if err := cfg.Validate(); err == nil {
		t.Fatalf("unaligned mtu should be rejected")
	}
	cfg = Default()
	cfg.MTULength = cfg.TermLength * 2
	if err := cfg.Validate(); err == nil {
		t.Fatalf("mtu above term length should be rejected")
	}
}
