// Package scraper implements the rod-based live engines (browser and
// headless) plus the dedicated specialty payload downloader. It owns the
// Chrome process lifecycle and a health-tracked tab pool shared by both
// engines.
package scraper

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/launcher/flags"
	"github.com/go-rod/rod/lib/proto"

	"github.com/use-agent/harvest/config"
)

// Scraper manages the global browser lifecycle and the tab pool. It is
// safe for concurrent use.
type Scraper struct {
	browser    *rod.Browser
	pool       *pagePool
	browserCfg config.BrowserConfig
	scraperCfg config.ScraperConfig
	startTime  time.Time
}

// PoolStats is a snapshot of the tab pool.
type PoolStats struct {
	TotalPages  int `json:"total_pages"`
	ActivePages int `json:"active_pages"`
	HardMax     int `json:"hard_max"`
}

// NewScraper launches a headless Chrome and initialises the tab pool.
func NewScraper(browserCfg config.BrowserConfig, scraperCfg config.ScraperConfig) (*Scraper, error) {
	l := launcher.New().
		Headless(browserCfg.Headless).
		NoSandbox(browserCfg.NoSandbox)

	if browserCfg.BrowserBin != "" {
		l = l.Bin(browserCfg.BrowserBin)
	}
	if browserCfg.DefaultProxy != "" {
		l = l.Proxy(browserCfg.DefaultProxy)
	}

	// Stealth flags.
	l.Set(flags.Flag("disable-blink-features"), "AutomationControlled")
	l.Delete(flags.Flag("enable-automation"))
	l.Set(flags.Flag("disable-features"), "AudioServiceOutOfProcess,TranslateUI")
	l.Set(flags.Flag("disable-ipc-flooding-protection"))
	l.Set(flags.Flag("disable-popup-blocking"))
	l.Set(flags.Flag("disable-prompt-on-repost"))
	l.Set(flags.Flag("disable-renderer-backgrounding"))
	l.Set(flags.Flag("disable-background-timer-throttling"))
	l.Set(flags.Flag("disable-backgrounding-occluded-windows"))
	l.Set(flags.Flag("disable-component-update"))
	l.Set(flags.Flag("disable-default-apps"))
	l.Set(flags.Flag("disable-dev-shm-usage"))
	l.Set(flags.Flag("disable-extensions"))
	l.Set(flags.Flag("no-first-run"))

	controlURL, err := l.Launch()
	if err != nil {
		return nil, fmt.Errorf("launch browser: %w", err)
	}
	slog.Info("browser launched", "controlURL", controlURL)

	browser := rod.New().ControlURL(controlURL)
	if err := browser.Connect(); err != nil {
		return nil, fmt.Errorf("connect to browser: %w", err)
	}

	s := &Scraper{
		browser:    browser,
		browserCfg: browserCfg,
		scraperCfg: scraperCfg,
		startTime:  time.Now(),
	}
	s.pool = newPagePool(
		PoolConfig{MinPages: browserCfg.MinPages, HardMax: browserCfg.MaxPages},
		s.newPage,
		func(p *rod.Page) { _ = p.Close() },
	)
	slog.Info("tab pool created", "minPages", browserCfg.MinPages, "maxPages", browserCfg.MaxPages)

	return s, nil
}

func (s *Scraper) newPage() (*rod.Page, error) {
	return s.browser.Page(proto.TargetCreateTarget{})
}

// Stats returns a snapshot of the pool's current state.
func (s *Scraper) Stats() PoolStats {
	return PoolStats{
		TotalPages:  s.pool.size(),
		ActivePages: s.pool.activeCount(),
		HardMax:     s.browserCfg.MaxPages,
	}
}

// Uptime reports how long the browser has been running.
func (s *Scraper) Uptime() time.Duration {
	return time.Since(s.startTime)
}

// Close drains the tab pool and kills the browser process. Call this on
// graceful shutdown to prevent zombie Chrome processes.
func (s *Scraper) Close() {
	slog.Info("scraper shutting down: draining tab pool")
	s.pool.stop()
	slog.Info("scraper shutting down: closing browser")
	s.browser.MustClose()
	slog.Info("scraper shutdown complete")
}
