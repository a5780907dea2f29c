package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Import.RateLimit != 20 {
		t.Errorf("Import.RateLimit = %d, want 20", cfg.Import.RateLimit)
	}
	if cfg.Import.RateWindow() != time.Hour {
		t.Errorf("Import.RateWindow() = %v, want 1h", cfg.Import.RateWindow())
	}
	if cfg.Oracle.Model != "gemini-2.5-flash" {
		t.Errorf("Oracle.Model = %q, want gemini-2.5-flash", cfg.Oracle.Model)
	}
	if cfg.Import.ConsentVersion == "" {
		t.Error("Import.ConsentVersion should have a default")
	}
	if len(cfg.Import.SubscriptionAliases) == 0 {
		t.Error("Import.SubscriptionAliases should ship a default table")
	}
	if cfg.Crypto.Enabled {
		t.Error("Crypto.Enabled should be false by default (opt-in)")
	}
}

func TestLoadOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "grana.toml")
	body := `
log_level = "debug"

[import]
rate_limit = 5
rate_window_minutes = 30
consent_version = "2026-01"
subscription_aliases = [["spotify", "spotify ab"]]

[crypto]
enabled = true
`
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.Import.RateLimit != 5 {
		t.Errorf("Import.RateLimit = %d, want 5", cfg.Import.RateLimit)
	}
	if cfg.Import.RateWindow() != 30*time.Minute {
		t.Errorf("Import.RateWindow() = %v, want 30m", cfg.Import.RateWindow())
	}
	if cfg.Import.ConsentVersion != "2026-01" {
		t.Errorf("Import.ConsentVersion = %q, want 2026-01", cfg.Import.ConsentVersion)
	}
	if !cfg.Crypto.Enabled {
		t.Error("Crypto.Enabled should be overridden to true")
	}
	// Untouched sections keep defaults.
	if cfg.Oracle.Model != "gemini-2.5-flash" {
		t.Errorf("Oracle.Model = %q, want default", cfg.Oracle.Model)
	}
}

func TestLoadRejectsInvalid(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bad.toml")
	if err := os.WriteFile(path, []byte("[import]\nrate_limit = 0\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Error("Load() should reject rate_limit = 0")
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "absent.toml")); err == nil {
		t.Error("Load() should fail for a missing file")
	}
}
