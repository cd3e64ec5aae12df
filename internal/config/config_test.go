package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "does-not-exist.yaml"))
	if err != nil {
		t.Fatal("Load failed:", err)
	}
	if cfg != Default() {
		t.Fatalf("got %+v, want defaults %+v", cfg, Default())
	}
}

func TestLoadOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "relaydesk.yaml")
	contents := "fps: 15\nscale: 0.5\njpeg_quality: 60\n"
	if err := os.WriteFile(path, []byte(contents), 0o600); err != nil {
		t.Fatal("WriteFile failed:", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatal("Load failed:", err)
	}
	if cfg.FPS != 15 || cfg.Scale != 0.5 || cfg.JPEGQuality != 60 {
		t.Fatalf("got %+v, want overridden fps/scale/jpeg_quality", cfg)
	}
	// Unset fields keep their defaults.
	if cfg.VideoAddr != Default().VideoAddr {
		t.Fatalf("expected VideoAddr to keep its default, got %q", cfg.VideoAddr)
	}
}

func TestValidateRejectsOutOfRangeValues(t *testing.T) {
	cfg := Default()
	cfg.FPS = 0
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for fps=0")
	}

	cfg = Default()
	cfg.Scale = 1.5
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for scale > 1")
	}

	cfg = Default()
	cfg.JPEGQuality = 101
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for jpeg_quality > 100")
	}
}
