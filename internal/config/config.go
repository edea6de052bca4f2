package config

import (
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

// Config represents the engine configuration, normally loaded from
// ~/.chatsync/config.toml.
type Config struct {
	// APIBaseURL is the REST backend serving history, persist,
	// mark-read and signed-transfer endpoints.
	APIBaseURL string `toml:"api_base_url"`
	// ChannelURL is the websocket endpoint for the live channel.
	ChannelURL string `toml:"channel_url"`
	// AuthToken is the bearer token issued by the (external) auth layer.
	AuthToken string `toml:"auth_token"`
	// RequestTimeoutSec bounds every REST call so a hung request cannot
	// leave a message pending forever.
	RequestTimeoutSec int `toml:"request_timeout_sec"`
	LogPath           string `toml:"log_path"`

	Media     MediaConfig     `toml:"media"`
	Reconnect ReconnectConfig `toml:"reconnect"`
}

// MediaConfig is the client-side attachment policy. Validation failures
// never reach the network.
type MediaConfig struct {
	// Folder is the logical object-storage folder for chat uploads.
	Folder string `toml:"folder"`
	// MaxBytes is the hard size cap for a single attachment.
	MaxBytes int64 `toml:"max_bytes"`
	// AllowedTypes lists acceptable MIME types. An entry ending in "/"
	// matches as a prefix ("image/"), otherwise it matches exactly.
	AllowedTypes []string `toml:"allowed_types"`
}

// ReconnectConfig bounds the channel reconnection backoff.
type ReconnectConfig struct {
	InitialIntervalMs int `toml:"initial_interval_ms"`
	MaxIntervalMs     int `toml:"max_interval_ms"`
}

// Default returns the configuration used when a field is unset.
func Default() *Config {
	return &Config{
		RequestTimeoutSec: 30,
		LogPath:           LogPath(),
		Media: MediaConfig{
			Folder:       "chat-media",
			MaxBytes:     25 << 20,
			AllowedTypes: []string{"image/", "video/", "application/pdf", "text/"},
		},
		Reconnect: ReconnectConfig{
			InitialIntervalMs: 500,
			MaxIntervalMs:     30_000,
		},
	}
}

// Load reads config from the given path and fills unset fields with defaults.
// Returns an error if the file is missing.
func Load(path string) (*Config, error) {
	var cfg Config
	_, err := toml.DecodeFile(path, &cfg)
	if err != nil {
		return nil, err
	}
	cfg.normalize()
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

func (c *Config) normalize() {
	def := Default()
	if c.RequestTimeoutSec <= 0 {
		c.RequestTimeoutSec = def.RequestTimeoutSec
	}
	if c.LogPath == "" {
		c.LogPath = def.LogPath
	}
	if c.Media.Folder == "" {
		c.Media.Folder = def.Media.Folder
	}
	if c.Media.MaxBytes <= 0 {
		c.Media.MaxBytes = def.Media.MaxBytes
	}
	if len(c.Media.AllowedTypes) == 0 {
		c.Media.AllowedTypes = def.Media.AllowedTypes
	}
	if c.Reconnect.InitialIntervalMs <= 0 {
		c.Reconnect.InitialIntervalMs = def.Reconnect.InitialIntervalMs
	}
	if c.Reconnect.MaxIntervalMs <= 0 {
		c.Reconnect.MaxIntervalMs = def.Reconnect.MaxIntervalMs
	}
}
