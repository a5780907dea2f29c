// Package config loads the service configuration from a TOML file, with
// sensible defaults for every field.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/BurntSushi/toml"
)

// Config is the full service configuration.
type Config struct {
	LogLevel string       `toml:"log_level"`
	Store    StoreConfig  `toml:"store"`
	Oracle   OracleConfig `toml:"oracle"`
	Import   ImportConfig `toml:"import"`
	Crypto   CryptoConfig `toml:"crypto"`
	API      APIConfig    `toml:"api"`
}

// StoreConfig configures the persistence collaborator.
type StoreConfig struct {
	// Path of the sqlite database file.
	Path string `toml:"path"`
}

// OracleConfig configures the extraction model client.
type OracleConfig struct {
	Model string `toml:"model"`
	// APIKeyEnv names the environment variable holding the API key.
	APIKeyEnv string `toml:"api_key_env"`
}

// ImportConfig configures admission control and classification.
type ImportConfig struct {
	// RateLimit is the maximum number of imports per window.
	RateLimit int `toml:"rate_limit"`
	// RateWindowMinutes is the sliding window length.
	RateWindowMinutes int `toml:"rate_window_minutes"`
	// ConsentVersion is the current data-processing notice version. Stored
	// consent must match it exactly.
	ConsentVersion string `toml:"consent_version"`
	// SubscriptionAliases lists groups of brand renderings that name the
	// same recurring service. Each group is matched after normalization.
	SubscriptionAliases [][]string `toml:"subscription_aliases"`
}

// CryptoConfig configures field-level encryption at rest.
type CryptoConfig struct {
	Enabled bool `toml:"enabled"`
}

// APIConfig configures the HTTP server.
type APIConfig struct {
	Addr string `toml:"addr"`
}

// RateWindow returns the configured sliding window as a duration.
func (c ImportConfig) RateWindow() time.Duration {
	return time.Duration(c.RateWindowMinutes) * time.Minute
}

// DefaultConfig returns the configuration used when no file is given.
func DefaultConfig() *Config {
	return &Config{
		LogLevel: "info",
		Store: StoreConfig{
			Path: "grana.db",
		},
		Oracle: OracleConfig{
			Model:     "gemini-2.5-flash",
			APIKeyEnv: "GEMINI_API_KEY",
		},
		Import: ImportConfig{
			RateLimit:         20,
			RateWindowMinutes: 60,
			ConsentVersion:    "2025-09",
			SubscriptionAliases: [][]string{
				{"amazon prime", "prime video", "amazon prime video"},
				{"google one", "google storage"},
				{"hbo max", "max"},
				{"disney+", "disney plus"},
				{"youtube premium", "youtube"},
				{"apple.com/bill", "apple services", "itunes.com"},
			},
		},
		Crypto: CryptoConfig{
			Enabled: false,
		},
		API: APIConfig{
			Addr: "127.0.0.1:8080",
		},
	}
}

// Load reads the TOML file at path over the defaults. A missing file is an
// error; call DefaultConfig directly when no file is expected.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("config file %s: %w", path, err)
	}
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.Import.RateLimit <= 0 {
		return fmt.Errorf("import.rate_limit must be positive, got %d", c.Import.RateLimit)
	}
	if c.Import.RateWindowMinutes <= 0 {
		return fmt.Errorf("import.rate_window_minutes must be positive, got %d", c.Import.RateWindowMinutes)
	}
	if c.Import.ConsentVersion == "" {
		return fmt.Errorf("import.consent_version must not be empty")
	}
	if c.Oracle.Model == "" {
		return fmt.Errorf("oracle.model must not be empty")
	}
	return nil
}
