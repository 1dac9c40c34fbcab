// Package config loads the global VOS configuration from a TOML file
// under the data directory.
package config

import (
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

// Config holds the daemon and review-engine configuration.
type Config struct {
	ServerAddr string `toml:"server_addr"`
	MaxWorkers int    `toml:"max_workers"`

	// Provider settings
	Provider        string `toml:"provider"`
	Model           string `toml:"model"`
	AnthropicAPIKey string `toml:"anthropic_api_key"`

	// PersonaTimeoutSeconds bounds one persona invocation.
	PersonaTimeoutSeconds int `toml:"persona_timeout_seconds"`

	// ArchiveURL, when set, mirrors finished reviews to a central
	// PostgreSQL database (postgres:// URL).
	ArchiveURL string `toml:"archive_url"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		ServerAddr:            "127.0.0.1:7878",
		MaxWorkers:            2,
		Provider:              "anthropic",
		Model:                 "claude-sonnet-4-5",
		PersonaTimeoutSeconds: 120,
	}
}

// DataDir returns the VOS data directory. Uses VOS_DATA_DIR if set,
// otherwise ~/.vos
func DataDir() string {
	if dir := os.Getenv("VOS_DATA_DIR"); dir != "" {
		return dir
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".vos")
}

// GlobalConfigPath returns the path to the global config file.
func GlobalConfigPath() string {
	return filepath.Join(DataDir(), "config.toml")
}

// LoadGlobal loads the global configuration from the default path.
func LoadGlobal() (*Config, error) {
	return LoadGlobalFrom(GlobalConfigPath())
}

// LoadGlobalFrom loads the configuration from a specific path. A
// missing file yields defaults. The Anthropic API key may also come
// from VOS_ANTHROPIC_API_KEY or ANTHROPIC_API_KEY; the environment
// wins over the file so keys can stay out of it.
func LoadGlobalFrom(path string) (*Config, error) {
	cfg := DefaultConfig()

	if _, err := os.Stat(path); err == nil {
		if _, err := toml.DecodeFile(path, cfg); err != nil {
			return nil, err
		}
	}

	if key := os.Getenv("VOS_ANTHROPIC_API_KEY"); key != "" {
		cfg.AnthropicAPIKey = key
	} else if key := os.Getenv("ANTHROPIC_API_KEY"); key != "" {
		cfg.AnthropicAPIKey = key
	}

	return cfg, nil
}

// SaveGlobal writes the configuration to the default path.
func SaveGlobal(cfg *Config) error {
	path := GlobalConfigPath()
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}

	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	return toml.NewEncoder(f).Encode(cfg)
}
