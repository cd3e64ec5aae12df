// Package config resolves the immutable per-session configuration value
// (spec §9 design note: "Global mutable configuration ... modelled as an
// immutable per-session SessionConfig"). Values are layered the way the
// teacher's transports/obfs4/statefile.go layers explicit pt.Args over a
// persisted JSON state file: a YAML file on disk, overridden by explicit
// flags, resolved once at startup.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// SessionConfig is resolved once at process start and never mutated after
// capture begins (spec §9).
type SessionConfig struct {
	// Host-side streaming options (spec §6).
	FPS           int     `yaml:"fps"`
	Scale         float64 `yaml:"scale"`
	JPEGQuality   int     `yaml:"jpeg_quality"`
	MaxFrameBytes int     `yaml:"max_frame_bytes"`
	MaxFileBytes  uint64  `yaml:"max_file_bytes"`

	// Network.
	VideoAddr   string `yaml:"video_addr"`
	ControlAddr string `yaml:"control_addr"`

	// Filesystem.
	KeyPath          string `yaml:"key_path"`
	ReceivedFilesDir string `yaml:"received_files_dir"`
	DownloadsDir     string `yaml:"downloads_dir"`
}

// Default returns the spec's default SessionConfig (spec §4.4, §6).
func Default() SessionConfig {
	return SessionConfig{
		FPS:              30,
		Scale:            1.0,
		JPEGQuality:      80,
		MaxFrameBytes:    16 * 1024 * 1024,
		MaxFileBytes:     16 * 1024 * 1024 * 1024,
		VideoAddr:        "0.0.0.0:5000",
		ControlAddr:      "0.0.0.0:5001",
		KeyPath:          "secret.key",
		ReceivedFilesDir: "received_files",
		DownloadsDir:     "downloads",
	}
}

// Load reads a YAML config file over the defaults. A missing file is not
// an error: the defaults apply as-is, the same way a fresh statefile.go
// bootstraps defaults on first run.
func Load(path string) (SessionConfig, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("config: reading %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("config: parsing %s: %w", path, err)
	}
	return cfg, nil
}

// Validate enforces the bounds spec §6 names for each option, failing fast
// at startup (spec §3: "Configuration ... Fatal at entry").
func (c SessionConfig) Validate() error {
	if c.FPS < 1 || c.FPS > 60 {
		return fmt.Errorf("config: fps %d out of range [1,60]", c.FPS)
	}
	if c.Scale <= 0 || c.Scale > 1 {
		return fmt.Errorf("config: scale %v out of range (0,1]", c.Scale)
	}
	if c.JPEGQuality < 1 || c.JPEGQuality > 100 {
		return fmt.Errorf("config: jpeg_quality %d out of range [1,100]", c.JPEGQuality)
	}
	if c.MaxFrameBytes <= 0 {
		return fmt.Errorf("config: max_frame_bytes must be positive")
	}
	if c.VideoAddr == "" || c.ControlAddr == "" {
		return fmt.Errorf("config: video_addr and control_addr must be set")
	}
	return nil
}
