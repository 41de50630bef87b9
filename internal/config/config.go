package config

import (
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

// Config represents the global ~/.chatterbox/config.toml.
type Config struct {
	DefaultSession string  `toml:"default_session"`
	Backend        Backend `toml:"backend"`
	Media          Media   `toml:"media"`
}

// Backend holds connection settings for the hosted chat backend.
type Backend struct {
	URL         string `toml:"url"`          // e.g. https://abc.chatterbox.dev
	APIKey      string `toml:"api_key"`      // project anon key, sent on every request
	AccessToken string `toml:"access_token"` // per-user bearer token (JWT)
	DisplayName string `toml:"display_name"` // shown on auto-created profiles; empty = token claim
}

// Media holds object storage settings for uploads.
type Media struct {
	Bucket        string `toml:"bucket"`
	Region        string `toml:"region"`
	Endpoint      string `toml:"endpoint"`        // S3-compatible endpoint, empty = AWS default
	PublicBaseURL string `toml:"public_base_url"` // prefix for public object URLs
}

// Load reads config from the given path. Returns zero config and error if file missing.
func Load(path string) (*Config, error) {
	var cfg Config
	_, err := toml.DecodeFile(path, &cfg)
	if err != nil {
		return nil, err
	}
	cfg.applyEnv()
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

// applyEnv lets environment variables override file values, so tokens never
// have to live on disk.
func (c *Config) applyEnv() {
	if v := os.Getenv("CHATTERBOX_BACKEND_URL"); v != "" {
		c.Backend.URL = v
	}
	if v := os.Getenv("CHATTERBOX_API_KEY"); v != "" {
		c.Backend.APIKey = v
	}
	if v := os.Getenv("CHATTERBOX_ACCESS_TOKEN"); v != "" {
		c.Backend.AccessToken = v
	}
	if v := os.Getenv("CHATTERBOX_DISPLAY_NAME"); v != "" {
		c.Backend.DisplayName = v
	}
	if v := os.Getenv("CHATTERBOX_MEDIA_BUCKET"); v != "" {
		c.Media.Bucket = v
	}
}
