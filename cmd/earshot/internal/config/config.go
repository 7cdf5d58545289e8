// Package config loads the earshot configuration file.
//
// The file lives at ~/.earshot/config.yaml by default and every field
// has a working default, so a missing file is not an error.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/goccy/go-yaml"

	"github.com/earshothq/earshot/pkg/jsontime"
)

// DefaultBaseDir is the per-user configuration directory name.
const DefaultBaseDir = ".earshot"

// Config is the earshot configuration.
type Config struct {
	// DataDir holds the badger database and, when no S3 bucket is
	// configured, the stored voice clips. Defaults to ~/.earshot/data.
	DataDir string `yaml:"data_dir,omitempty"`

	// ModelURL is the base URL of the diarization model server.
	ModelURL string `yaml:"model_url,omitempty"`

	// BridgeURL is the websocket URL of the chat bridge.
	BridgeURL string `yaml:"bridge_url,omitempty"`

	// S3 configures optional object storage for voice clips.
	S3 *S3 `yaml:"s3,omitempty"`

	// AutoThreshold and SuggestThreshold override the matcher defaults.
	AutoThreshold    float32 `yaml:"auto_threshold,omitempty"`
	SuggestThreshold float32 `yaml:"suggest_threshold,omitempty"`

	// PendingTTL is how long an unanswered question stays open.
	PendingTTL jsontime.Duration `yaml:"pending_ttl,omitempty"`

	// SweepEvery is the interval between expiry sweeps in serve mode.
	SweepEvery jsontime.Duration `yaml:"sweep_every,omitempty"`

	// LogLevel is debug, info, warn or error.
	LogLevel string `yaml:"log_level,omitempty"`
}

// S3 holds clip storage settings for S3-compatible object stores.
type S3 struct {
	Bucket string `yaml:"bucket"`
	Prefix string `yaml:"prefix,omitempty"`
	Region string `yaml:"region,omitempty"`

	// Endpoint points at a non-AWS store (MinIO, R2). Path-style
	// addressing is forced when set.
	Endpoint string `yaml:"endpoint,omitempty"`

	// AccessKey and SecretKey override the ambient AWS credential chain.
	AccessKey string `yaml:"access_key,omitempty"`
	SecretKey string `yaml:"secret_key,omitempty"`
}

// Default returns a Config with every field at its default value.
func Default() *Config {
	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}
	return &Config{
		DataDir:    filepath.Join(home, DefaultBaseDir, "data"),
		ModelURL:   "http://127.0.0.1:9090",
		BridgeURL:  "ws://127.0.0.1:9091/ws",
		PendingTTL: jsontime.Duration(10 * time.Minute),
		SweepEvery: jsontime.Duration(time.Minute),
		LogLevel:   "info",
	}
}

// DefaultPath returns the default config file location.
func DefaultPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(DefaultBaseDir, "config.yaml")
	}
	return filepath.Join(home, DefaultBaseDir, "config.yaml")
}

// Load reads the config at path, or the default path when path is empty.
// A missing file yields the defaults; a malformed file is an error.
func Load(path string) (*Config, error) {
	explicit := path != ""
	if !explicit {
		path = DefaultPath()
	}

	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) && !explicit {
			return cfg, nil
		}
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	if cfg.DataDir == "" {
		cfg.DataDir = Default().DataDir
	}
	return cfg, nil
}
