// Package config handles configuration for tb-audit.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultConfigFile is read when no --config flag is given.
const DefaultConfigFile = "/etc/tb-audit/config.yaml"

// Config holds all tb-audit configuration.
type Config struct {
	// ListenAddr is where the websocket gateway listens.
	ListenAddr string `yaml:"listen_addr"`

	// BackendURL and BackendToken identify the session store API.
	BackendURL   string `yaml:"backend_url"`
	BackendToken string `yaml:"backend_token"`

	// ReplayDir is where session transcripts are written before upload.
	ReplayDir string `yaml:"replay_dir"`

	// TrailPath overrides the local audit trail location. Empty means
	// the platform default.
	TrailPath string `yaml:"trail_path"`

	// SigningKey is the Ed25519 public key (hex or base64) used to
	// verify session.open signatures. Empty disables verification.
	SigningKey string `yaml:"signing_key"`

	LogLevel  string `yaml:"log_level"`  // "debug", "info", "warn", "error"
	LogFormat string `yaml:"log_format"` // "text" or "json"

	// DrainTimeout bounds how long session close waits for pending
	// audit writes. WatchdogInterval is how often time budgets are
	// checked. Zero picks the defaults.
	DrainTimeout     time.Duration `yaml:"drain_timeout"`
	WatchdogInterval time.Duration `yaml:"watchdog_interval"`
}

// Load reads the YAML config file at path (DefaultConfigFile when path
// is empty), then applies environment overrides. Environment variables
// win over the file so containerized deployments can skip the file
// entirely.
func Load(path string) (*Config, error) {
	cfg := &Config{
		ListenAddr: ":8815",
		ReplayDir:  "/var/lib/tb-audit/replays",
		LogLevel:   "info",
		LogFormat:  "text",
	}

	explicit := path != ""
	if path == "" {
		path = DefaultConfigFile
	}
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	case os.IsNotExist(err) && !explicit:
		// No config file; environment only.
	default:
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	applyEnv(cfg)

	if cfg.BackendURL == "" {
		return nil, fmt.Errorf("backend_url is required (or set TB_AUDIT_BACKEND_URL)")
	}
	if cfg.BackendToken == "" {
		return nil, fmt.Errorf("backend_token is required (or set TB_AUDIT_TOKEN)")
	}
	return cfg, nil
}

func applyEnv(cfg *Config) {
	setString := func(dst *string, key string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}
	setString(&cfg.ListenAddr, "TB_AUDIT_LISTEN_ADDR")
	setString(&cfg.BackendURL, "TB_AUDIT_BACKEND_URL")
	setString(&cfg.BackendToken, "TB_AUDIT_TOKEN")
	setString(&cfg.ReplayDir, "TB_AUDIT_REPLAY_DIR")
	setString(&cfg.TrailPath, "TB_AUDIT_TRAIL_PATH")
	setString(&cfg.SigningKey, "TB_AUDIT_SIGNING_KEY")
	setString(&cfg.LogLevel, "TB_AUDIT_LOG_LEVEL")
	setString(&cfg.LogFormat, "TB_AUDIT_LOG_FORMAT")

	if v := os.Getenv("TB_AUDIT_DRAIN_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.DrainTimeout = d
		}
	}
	if v := os.Getenv("TB_AUDIT_WATCHDOG_INTERVAL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.WatchdogInterval = d
		}
	}
}
