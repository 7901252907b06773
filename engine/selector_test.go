package engine

import (
	"testing"

	"github.com/use-agent/harvest/models"
)

func TestSelectLiveEnginePriority(t *testing.T) {
	tests := []struct {
		name       string
		configured []Name
		want       Name
	}{
		{"browser wins when present", []Name{EngineHTTP, EngineBrowser, EngineHeadless}, EngineBrowser},
		{"headless over http", []Name{EngineHTTP, EngineHeadless}, EngineHeadless},
		{"http alone", []Name{EngineHTTP}, EngineHTTP},
		{"default to http when nothing configured", nil, EngineHTTP},
		{"index never selected as live", []Name{EngineIndex}, EngineHTTP},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := SelectLiveEngine(tt.configured); got != tt.want {
				t.Errorf("SelectLiveEngine(%v) = %q, want %q", tt.configured, got, tt.want)
			}
		})
	}
}

func TestShouldTryIndex(t *testing.T) {
	base := models.ScrapeOptions{
		Formats: []models.Format{models.FormatMarkdown},
		MaxAge:  3600000,
		Proxy:   models.ProxyBasic,
	}
	internal := models.InternalOptions{SaveToCache: true}

	if !ShouldTryIndex(base, internal) {
		t.Fatal("baseline cacheable request did not qualify")
	}

	tests := []struct {
		name   string
		mutate func(*models.ScrapeOptions, *models.InternalOptions)
	}{
		{"cache disabled", func(_ *models.ScrapeOptions, i *models.InternalOptions) { i.DisableCache = true }},
		{"writes disabled", func(_ *models.ScrapeOptions, i *models.InternalOptions) { i.SaveToCache = false }},
		{"zero max age", func(o *models.ScrapeOptions, _ *models.InternalOptions) { o.MaxAge = 0 }},
		{"screenshot format", func(o *models.ScrapeOptions, _ *models.InternalOptions) {
			o.Formats = append(o.Formats, models.FormatScreenshot)
		}},
		{"branding format", func(o *models.ScrapeOptions, _ *models.InternalOptions) {
			o.Formats = append(o.Formats, models.FormatBranding)
		}},
		{"page limit", func(o *models.ScrapeOptions, _ *models.InternalOptions) { o.MaxPages = 5 }},
		{"screenshot viewport", func(o *models.ScrapeOptions, _ *models.InternalOptions) {
			o.Screenshot = &models.ScreenshotOptions{Viewport: &models.Viewport{Width: 800, Height: 600}}
		}},
		{"screenshot quality", func(o *models.ScrapeOptions, _ *models.InternalOptions) {
			o.Screenshot = &models.ScreenshotOptions{Quality: 80}
		}},
		{"custom headers", func(o *models.ScrapeOptions, _ *models.InternalOptions) {
			o.Headers = map[string]string{"X-Test": "1"}
		}},
		{"actions", func(o *models.ScrapeOptions, _ *models.InternalOptions) {
			o.Actions = []models.Action{{Type: models.ActionWait, Milliseconds: 100}}
		}},
		{"stealth proxy", func(o *models.ScrapeOptions, _ *models.InternalOptions) { o.Proxy = models.ProxyStealth }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts := base
			opts.Formats = append([]models.Format(nil), base.Formats...)
			intl := internal
			tt.mutate(&opts, &intl)
			if ShouldTryIndex(opts, intl) {
				t.Error("request qualified for cache read despite disqualifying condition")
			}
		})
	}
}
