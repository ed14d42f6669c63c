package config

import (
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
)

// Config represents ~/.graceline/config.toml.
type Config struct {
	ListenAddr string `toml:"listen_addr"`

	Remote RemoteConfig `toml:"remote"`
	Probe  ProbeConfig  `toml:"probe"`
	Cache  CacheConfig  `toml:"cache"`
	Queue  QueueConfig  `toml:"queue"`
}

// RemoteConfig holds the remote conversation store endpoint.
type RemoteConfig struct {
	BaseURL        string `toml:"base_url"`
	APIToken       string `toml:"api_token"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
}

// ProbeConfig holds the active connectivity probe settings.
type ProbeConfig struct {
	URL             string `toml:"url"`
	IntervalSeconds int    `toml:"interval_seconds"`
	TimeoutSeconds  int    `toml:"timeout_seconds"`
}

// CacheConfig holds offline cache settings.
type CacheConfig struct {
	TTLHours int `toml:"ttl_hours"`
}

// QueueConfig holds message queue settings.
type QueueConfig struct {
	MaxRetries int `toml:"max_retries"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		ListenAddr: "127.0.0.1:8787",
		Remote: RemoteConfig{
			BaseURL:        "https://api.graceline.app",
			TimeoutSeconds: 30,
		},
		Probe: ProbeConfig{
			URL:             "https://api.graceline.app/healthz",
			IntervalSeconds: 30,
			TimeoutSeconds:  5,
		},
		Cache: CacheConfig{TTLHours: 24},
		Queue: QueueConfig{MaxRetries: 3},
	}
}

// Load reads config from the given path, filling unset fields with
// defaults. A missing file returns the defaults without error.
func Load(path string) (*Config, error) {
	cfg := Default()
	_, err := toml.DecodeFile(path, cfg)
	if os.IsNotExist(err) {
		return cfg, nil
	}
	if err != nil {
		return nil, err
	}
	cfg.applyDefaults()
	return cfg, nil
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
	def := Default()
	if c.ListenAddr == "" {
		c.ListenAddr = def.ListenAddr
	}
	if c.Remote.BaseURL == "" {
		c.Remote.BaseURL = def.Remote.BaseURL
	}
	if c.Remote.TimeoutSeconds <= 0 {
		c.Remote.TimeoutSeconds = def.Remote.TimeoutSeconds
	}
	if c.Probe.URL == "" {
		c.Probe.URL = def.Probe.URL
	}
	if c.Probe.IntervalSeconds <= 0 {
		c.Probe.IntervalSeconds = def.Probe.IntervalSeconds
	}
	if c.Probe.TimeoutSeconds <= 0 {
		c.Probe.TimeoutSeconds = def.Probe.TimeoutSeconds
	}
	if c.Cache.TTLHours <= 0 {
		c.Cache.TTLHours = def.Cache.TTLHours
	}
	if c.Queue.MaxRetries <= 0 {
		c.Queue.MaxRetries = def.Queue.MaxRetries
	}
}

// RemoteTimeout returns the remote call timeout as a duration.
func (c *Config) RemoteTimeout() time.Duration {
	return time.Duration(c.Remote.TimeoutSeconds) * time.Second
}

// ProbeInterval returns the probe poll interval as a duration.
func (c *Config) ProbeInterval() time.Duration {
	return time.Duration(c.Probe.IntervalSeconds) * time.Second
}

// ProbeTimeout returns the probe hard timeout as a duration.
func (c *Config) ProbeTimeout() time.Duration {
	return time.Duration(c.Probe.TimeoutSeconds) * time.Second
}

// CacheTTL returns the offline cache time-to-live as a duration.
func (c *Config) CacheTTL() time.Duration {
	return time.Duration(c.Cache.TTLHours) * time.Hour
}
