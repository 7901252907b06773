package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all application configuration.
type Config struct {
	Server    ServerConfig
	Browser   BrowserConfig
	Scraper   ScraperConfig
	Engine    EngineConfig
	Cache     CacheConfig
	Robots    RobotsConfig
	Frequency FrequencyConfig
	Auth      AuthConfig
	RateLimit RateLimitConfig
	Log       LogConfig
	Webhook   WebhookConfig
}

// ServerConfig controls the HTTP server.
type ServerConfig struct {
	Host string // default: "0.0.0.0"
	Port int    // default: 8080
	Mode string // "debug", "release", "test"; default: "release"
}

// BrowserConfig controls the Rod browser instance.
type BrowserConfig struct {
	// Headless controls whether the browser runs headless.
	Headless bool // default: true

	// MinPages and MaxPages bound the tab pool size.
	MinPages int // default: 3
	MaxPages int // default: 10

	// DefaultProxy is the default proxy URL for all requests.
	DefaultProxy string

	// StealthProxy is the proxy URL used for the stealth tier.
	StealthProxy string

	// NoSandbox disables Chrome's sandbox (needed in Docker).
	NoSandbox bool // default: false

	// BrowserBin overrides the Chromium binary path.
	BrowserBin string
}

// ScraperConfig controls live-engine behavior.
type ScraperConfig struct {
	// DefaultTimeout is the per-request deadline when the caller does
	// not supply one.
	DefaultTimeout time.Duration // default: 30s

	// MaxTimeout is the maximum allowed timeout from the client.
	MaxTimeout time.Duration // default: 120s

	// BlockedResourceTypes lists resource types to block.
	// default: ["Image", "Stylesheet", "Font", "Media"]
	BlockedResourceTypes []string
}

// EngineConfig selects which fetch engines run in this deployment.
type EngineConfig struct {
	// Enabled lists the live engines to configure, e.g.
	// ["browser", "headless", "http"].
	Enabled []string // default: all
}

// CacheConfig controls the read-through index store.
type CacheConfig struct {
	// Backend is "memory" or "redis".
	Backend string // default: "memory"

	// MaxEntries bounds the in-memory backend. 0 means unbounded.
	MaxEntries int // default: 1000

	// Retention is how long entries stay usable.
	Retention time.Duration // default: 1h

	// RedisURL configures the redis backend, e.g. "redis://localhost:6379/0".
	RedisURL string
}

// RobotsConfig controls robots.txt enforcement.
type RobotsConfig struct {
	// UserAgent is the token matched against robots.txt groups.
	UserAgent string // default: "harvestbot"

	// CacheTTL is the per-host policy cache lifetime.
	CacheTTL time.Duration // default: 30m
}

// FrequencyConfig controls the scrape-frequency memory.
type FrequencyConfig struct {
	// TTL is how long per-domain activity is remembered.
	TTL time.Duration // default: 24h
}

// AuthConfig controls API key authentication.
type AuthConfig struct {
	// Enabled toggles API key authentication.
	Enabled bool // default: true

	// APIKeys lists valid keys as "team:key" entries; a bare key
	// belongs to the "default" team.
	APIKeys []string
}

// RateLimitConfig controls per-key rate limiting.
type RateLimitConfig struct {
	// RequestsPerSecond is the sustained rate per API key.
	RequestsPerSecond float64 // default: 5

	// Burst is the maximum burst size per API key.
	Burst int // default: 10

	// IdleTTL is how long an idle identity keeps its bucket.
	IdleTTL time.Duration // default: 1h

	// CleanupInterval is how often idle buckets are evicted.
	CleanupInterval time.Duration // default: 5m
}

// LogConfig controls structured logging.
type LogConfig struct {
	Level  string // default: "info"
	Format string // "json" or "text"; default: "json"
}

// WebhookConfig controls completion notifications.
type WebhookConfig struct {
	// URL receives scrape.completed / scrape.failed events. Empty
	// disables delivery.
	URL string

	// Secret signs payloads with HMAC-SHA256 when set.
	Secret string
}

// Load reads configuration from environment variables with sane defaults.
func Load() *Config {
	return &Config{
		Server: ServerConfig{
			Host: envOr("HARVEST_HOST", "0.0.0.0"),
			Port: envIntOr("HARVEST_PORT", 8080),
			Mode: envOr("HARVEST_MODE", "release"),
		},
		Browser: BrowserConfig{
			Headless:     envBoolOr("HARVEST_HEADLESS", true),
			MinPages:     envIntOr("HARVEST_MIN_PAGES", 3),
			MaxPages:     envIntOr("HARVEST_MAX_PAGES", 10),
			DefaultProxy: os.Getenv("HARVEST_PROXY"),
			StealthProxy: os.Getenv("HARVEST_STEALTH_PROXY"),
			NoSandbox:    envBoolOr("HARVEST_NO_SANDBOX", false),
			BrowserBin:   os.Getenv("HARVEST_BROWSER_BIN"),
		},
		Scraper: ScraperConfig{
			DefaultTimeout: envDurationOr("HARVEST_DEFAULT_TIMEOUT", 30*time.Second),
			MaxTimeout:     envDurationOr("HARVEST_MAX_TIMEOUT", 120*time.Second),
			BlockedResourceTypes: envSliceOr("HARVEST_BLOCKED_RESOURCES", []string{
				"Image", "Stylesheet", "Font", "Media",
			}),
		},
		Engine: EngineConfig{
			Enabled: envSliceOr("HARVEST_ENGINES", []string{"browser", "headless", "http"}),
		},
		Cache: CacheConfig{
			Backend:    envOr("HARVEST_CACHE_BACKEND", "memory"),
			MaxEntries: envIntOr("HARVEST_CACHE_MAX_ENTRIES", 1000),
			Retention:  envDurationOr("HARVEST_CACHE_RETENTION", time.Hour),
			RedisURL:   os.Getenv("HARVEST_REDIS_URL"),
		},
		Robots: RobotsConfig{
			UserAgent: envOr("HARVEST_ROBOTS_UA", "harvestbot"),
			CacheTTL:  envDurationOr("HARVEST_ROBOTS_TTL", 30*time.Minute),
		},
		Frequency: FrequencyConfig{
			TTL: envDurationOr("HARVEST_FREQUENCY_TTL", 24*time.Hour),
		},
		Auth: AuthConfig{
			Enabled: envBoolOr("HARVEST_AUTH_ENABLED", true),
			APIKeys: envSliceOr("HARVEST_API_KEYS", nil),
		},
		RateLimit: RateLimitConfig{
			RequestsPerSecond: envFloatOr("HARVEST_RATE_RPS", 5.0),
			Burst:             envIntOr("HARVEST_RATE_BURST", 10),
			IdleTTL:           envDurationOr("HARVEST_RATE_IDLE_TTL", time.Hour),
			CleanupInterval:   envDurationOr("HARVEST_RATE_CLEANUP_INTERVAL", 5*time.Minute),
		},
		Log: LogConfig{
			Level:  envOr("HARVEST_LOG_LEVEL", "info"),
			Format: envOr("HARVEST_LOG_FORMAT", "json"),
		},
		Webhook: WebhookConfig{
			URL:    os.Getenv("HARVEST_WEBHOOK_URL"),
			Secret: os.Getenv("HARVEST_WEBHOOK_SECRET"),
		},
	}
}

// --- helper functions ---

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envIntOr(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func envBoolOr(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func envFloatOr(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func envDurationOr(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}

func envSliceOr(key string, fallback []string) []string {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		result := make([]string, 0, len(parts))
		for _, p := range parts {
			if trimmed := strings.TrimSpace(p); trimmed != "" {
				result = append(result, trimmed)
			}
		}
		return result
	}
	return fallback
}
