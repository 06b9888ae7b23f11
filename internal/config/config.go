package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

// Config is the chatsyncd configuration file (~/.chatsync/config.toml).
type Config struct {
	// BackendURL is the base URL of the recruiting platform REST API.
	BackendURL string `toml:"backend_url"`
	// PushURL is the websocket endpoint of the push channel.
	PushURL string `toml:"push_url"`
	// Listen is the local address the UI-facing HTTP server binds to.
	Listen string `toml:"listen"`

	// ViewerID and Role identify the recruiter this daemon syncs for.
	ViewerID string `toml:"viewer_id"`
	Role     string `toml:"role"`

	// PollIntervalSeconds is the fallback poll cadence (0 = default).
	PollIntervalSeconds int `toml:"poll_interval_seconds"`
	// PageSize is the message page size for window fetches.
	PageSize int `toml:"page_size"`

	// RuntimeDir holds the instance lock and log file.
	RuntimeDir string `toml:"runtime_dir"`
}

// Defaults applied to zero-valued fields after load.
const (
	DefaultListen       = "127.0.0.1:7430"
	DefaultPollInterval = 180
	DefaultPageSize     = 20
	DefaultRole         = "recruiter"
)

// Load reads and validates config from the given path.
func Load(path string) (*Config, error) {
	var cfg Config
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return nil, err
	}
	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Save writes config to the given path, creating parent dirs as needed.
func Save(path string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return err
	}
	encErr := toml.NewEncoder(f).Encode(cfg)
	if closeErr := f.Close(); closeErr != nil && encErr == nil {
		return closeErr
	}
	return encErr
}

func (c *Config) applyDefaults() {
	if c.Listen == "" {
		c.Listen = DefaultListen
	}
	if c.PollIntervalSeconds <= 0 {
		c.PollIntervalSeconds = DefaultPollInterval
	}
	if c.PageSize <= 0 {
		c.PageSize = DefaultPageSize
	}
	if c.Role == "" {
		c.Role = DefaultRole
	}
	if c.RuntimeDir == "" {
		home, err := os.UserHomeDir()
		if err == nil {
			c.RuntimeDir = filepath.Join(home, ".chatsync")
		}
	}
}

func (c *Config) validate() error {
	if c.BackendURL == "" {
		return fmt.Errorf("backend_url is required")
	}
	if c.PushURL == "" {
		return fmt.Errorf("push_url is required")
	}
	if c.ViewerID == "" {
		return fmt.Errorf("viewer_id is required")
	}
	return nil
}
