package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefault(t *testing.T) {
	cfg := Default()
	if cfg.StackMax != 256 || cfg.GlobalMax != 256 || cfg.MaxFrames != 256 {
		t.Errorf("unexpected defaults: %+v", cfg)
	}
	if cfg.Trace {
		t.Errorf("expected trace disabled by default")
	}
}

func TestLoadOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "crystalvm.toml")
	if err := os.WriteFile(path, []byte("trace = true\nmax_frames = 64\n"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !cfg.Trace {
		t.Errorf("expected trace to be overridden to true")
	}
	if cfg.MaxFrames != 64 {
		t.Errorf("got MaxFrames=%d, want 64", cfg.MaxFrames)
	}
	if cfg.StackMax != 256 {
		t.Errorf("expected untouched field to keep its default, got %d", cfg.StackMax)
	}
}
