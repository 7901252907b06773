package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/use-agent/harvest/api"
	"github.com/use-agent/harvest/cache"
	"github.com/use-agent/harvest/config"
	"github.com/use-agent/harvest/engine"
	"github.com/use-agent/harvest/frequency"
	"github.com/use-agent/harvest/models"
	"github.com/use-agent/harvest/parser"
	"github.com/use-agent/harvest/pipeline"
	"github.com/use-agent/harvest/postproc"
	"github.com/use-agent/harvest/robots"
	"github.com/use-agent/harvest/scraper"
	"github.com/use-agent/harvest/webhook"
)

func main() {
	root := &cobra.Command{
		Use:   "harvest",
		Short: "Web content acquisition pipeline",
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			// Missing .env is fine; the environment still applies.
			_ = godotenv.Load()
		},
	}
	root.AddCommand(serveCmd(), scrapeCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// app bundles the wired components shared by the serve and scrape commands.
type app struct {
	cfg      *config.Config
	scraper  *scraper.Scraper
	pipeline *pipeline.Pipeline
	freq     *frequency.Recorder
	notifier *webhook.Notifier
}

func (a *app) close() {
	a.freq.Stop()
	a.scraper.Close()
}

// buildApp loads configuration and wires the full pipeline: browser,
// engines, cache, robots checker, frequency recorder, and postprocessors.
func buildApp() (*app, error) {
	cfg := config.Load()
	initLogger(cfg.Log)

	sc, err := scraper.NewScraper(cfg.Browser, cfg.Scraper)
	if err != nil {
		return nil, fmt.Errorf("initialise scraper: %w", err)
	}

	store, err := buildStore(cfg.Cache)
	if err != nil {
		sc.Close()
		return nil, err
	}

	engines := map[engine.Name]engine.Engine{
		engine.EngineIndex: engine.NewIndexEngine(store),
	}
	for _, name := range cfg.Engine.Enabled {
		switch engine.Name(name) {
		case engine.EngineBrowser:
			engines[engine.EngineBrowser] = scraper.NewBrowser(sc)
		case engine.EngineHeadless:
			engines[engine.EngineHeadless] = scraper.NewHeadless(sc)
		case engine.EngineHTTP:
			engines[engine.EngineHTTP] = engine.NewHTTPEngine()
		default:
			slog.Warn("unknown engine in HARVEST_ENGINES, skipping", "engine", name)
		}
	}

	freq := frequency.NewRecorder(cfg.Frequency.TTL)
	notifier := webhook.NewNotifier(cfg.Webhook.URL, cfg.Webhook.Secret)

	pl := pipeline.New(pipeline.Config{
		Engines:    engines,
		Store:      store,
		Chain:      postproc.DefaultChain(),
		Robots:     robots.NewChecker(cfg.Robots.UserAgent, robots.WithTTL(cfg.Robots.CacheTTL)),
		Downloader: scraper.NewDownloader(cfg.Browser.DefaultProxy),
		PDFParser:  parser.NewPDF(),
		DocParser:  parser.NewDocx(),
		Frequency:  freq,
		Reporter:   notifier,
	})

	return &app{cfg: cfg, scraper: sc, pipeline: pl, freq: freq, notifier: notifier}, nil
}

// buildStore selects the cache backend.
func buildStore(cfg config.CacheConfig) (cache.Store, error) {
	switch cfg.Backend {
	case "redis":
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			return nil, fmt.Errorf("parse HARVEST_REDIS_URL: %w", err)
		}
		return cache.NewRedis(redis.NewClient(opts), cfg.Retention), nil
	default:
		return cache.NewMemory(cfg.MaxEntries, cfg.Retention), nil
	}
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := buildApp()
			if err != nil {
				return err
			}
			defer a.close()

			slog.Info("harvest starting",
				"host", a.cfg.Server.Host,
				"port", a.cfg.Server.Port,
				"mode", a.cfg.Server.Mode,
				"maxPages", a.cfg.Browser.MaxPages,
			)

			startTime := time.Now()
			router := api.NewRouter(a.pipeline, a.scraper, a.freq, a.notifier, a.cfg, startTime)

			addr := fmt.Sprintf("%s:%d", a.cfg.Server.Host, a.cfg.Server.Port)
			srv := &http.Server{
				Addr:    addr,
				Handler: router,
			}

			go func() {
				slog.Info("HTTP server listening", "addr", addr)
				if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					slog.Error("HTTP server error", "error", err)
					os.Exit(1)
				}
			}()

			quit := make(chan os.Signal, 1)
			signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
			sig := <-quit
			slog.Info("shutdown signal received", "signal", sig.String())

			// Give in-flight requests 5 seconds to complete.
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()

			if err := srv.Shutdown(ctx); err != nil {
				slog.Error("HTTP server forced shutdown", "error", err)
			} else {
				slog.Info("HTTP server drained gracefully")
			}

			// a.close() runs via defer: drains the page pool and kills Chrome.
			slog.Info("harvest stopped")
			return nil
		},
	}
}

func scrapeCmd() *cobra.Command {
	var (
		formats []string
		timeout int
		mobile  bool
	)
	cmd := &cobra.Command{
		Use:   "scrape <url>",
		Short: "Scrape a single URL and print the result as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := buildApp()
			if err != nil {
				return err
			}
			defer a.close()

			opts := models.ScrapeOptions{
				Timeout: timeout,
				Mobile:  mobile,
			}
			for _, f := range formats {
				opts.Formats = append(opts.Formats, models.Format(f))
			}

			resp := a.pipeline.ScrapeURL(cmd.Context(), uuid.NewString(), args[0], opts, models.InternalOptions{
				SaveToCache: true,
			})
			if !resp.Success {
				return fmt.Errorf("scrape failed: %w", resp.Err)
			}

			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(resp.Document)
		},
	}
	cmd.Flags().StringSliceVar(&formats, "format", []string{"markdown"}, "output formats (markdown, html, raw_html, links, images, screenshot, branding)")
	cmd.Flags().IntVar(&timeout, "timeout", 0, "overall deadline in milliseconds (0 = server default)")
	cmd.Flags().BoolVar(&mobile, "mobile", false, "emulate a mobile device")
	return cmd
}

// initLogger configures slog based on the LogConfig.
func initLogger(cfg config.LogConfig) {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	if cfg.Format == "text" {
		handler = slog.NewTextHandler(os.Stdout, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}

	slog.SetDefault(slog.New(handler))
}
