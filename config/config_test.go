package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg := Load()

	if cfg.Server.Port != 8080 {
		t.Errorf("Server.Port = %d, want 8080", cfg.Server.Port)
	}
	if !cfg.Browser.Headless {
		t.Error("Browser.Headless = false, want true")
	}
	if cfg.Scraper.DefaultTimeout != 30*time.Second {
		t.Errorf("Scraper.DefaultTimeout = %s, want 30s", cfg.Scraper.DefaultTimeout)
	}
	if cfg.Cache.Backend != "memory" {
		t.Errorf("Cache.Backend = %q, want memory", cfg.Cache.Backend)
	}
	if len(cfg.Engine.Enabled) != 3 {
		t.Errorf("Engine.Enabled = %v, want 3 engines", cfg.Engine.Enabled)
	}
	if cfg.RateLimit.IdleTTL != time.Hour {
		t.Errorf("RateLimit.IdleTTL = %s, want 1h", cfg.RateLimit.IdleTTL)
	}
	if cfg.RateLimit.CleanupInterval != 5*time.Minute {
		t.Errorf("RateLimit.CleanupInterval = %s, want 5m", cfg.RateLimit.CleanupInterval)
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("HARVEST_PORT", "9090")
	t.Setenv("HARVEST_HEADLESS", "false")
	t.Setenv("HARVEST_DEFAULT_TIMEOUT", "45s")
	t.Setenv("HARVEST_ENGINES", "http")
	t.Setenv("HARVEST_API_KEYS", "alpha, beta ,")
	t.Setenv("HARVEST_RATE_RPS", "2.5")

	cfg := Load()

	if cfg.Server.Port != 9090 {
		t.Errorf("Server.Port = %d, want 9090", cfg.Server.Port)
	}
	if cfg.Browser.Headless {
		t.Error("Browser.Headless = true, want false")
	}
	if cfg.Scraper.DefaultTimeout != 45*time.Second {
		t.Errorf("Scraper.DefaultTimeout = %s, want 45s", cfg.Scraper.DefaultTimeout)
	}
	if len(cfg.Engine.Enabled) != 1 || cfg.Engine.Enabled[0] != "http" {
		t.Errorf("Engine.Enabled = %v, want [http]", cfg.Engine.Enabled)
	}
	if len(cfg.Auth.APIKeys) != 2 || cfg.Auth.APIKeys[0] != "alpha" || cfg.Auth.APIKeys[1] != "beta" {
		t.Errorf("Auth.APIKeys = %v, want [alpha beta]", cfg.Auth.APIKeys)
	}
	if cfg.RateLimit.RequestsPerSecond != 2.5 {
		t.Errorf("RateLimit.RequestsPerSecond = %v, want 2.5", cfg.RateLimit.RequestsPerSecond)
	}
}

func TestInvalidEnvFallsBack(t *testing.T) {
	t.Setenv("HARVEST_PORT", "not-a-number")
	t.Setenv("HARVEST_HEADLESS", "maybe")
	t.Setenv("HARVEST_DEFAULT_TIMEOUT", "soon")

	cfg := Load()

	if cfg.Server.Port != 8080 {
		t.Errorf("Server.Port = %d, want default 8080", cfg.Server.Port)
	}
	if !cfg.Browser.Headless {
		t.Error("Browser.Headless = false, want default true")
	}
	if cfg.Scraper.DefaultTimeout != 30*time.Second {
		t.Errorf("Scraper.DefaultTimeout = %s, want default 30s", cfg.Scraper.DefaultTimeout)
	}
}
