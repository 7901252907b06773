package scraper

import (
	"context"
	"encoding/base64"
	"log/slog"
	"time"

	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"

	"github.com/use-agent/harvest/engine"
	"github.com/use-agent/harvest/models"
)

// Headless is the lightweight rendering engine. It shares the tab pool
// with the browser engine but takes the trimmed path: no scripted
// actions, no full-page capture, and no inline binary delivery. For
// binary payloads it returns only the content-type hint; the caller
// re-downloads.
type Headless struct {
	scraper *Scraper
}

// NewHeadless creates the headless engine over a running Scraper.
func NewHeadless(s *Scraper) *Headless { return &Headless{scraper: s} }

func (h *Headless) Name() engine.Name { return engine.EngineHeadless }

func (h *Headless) Scrape(ctx context.Context, req *engine.Request) (*engine.Result, error) {
	if req.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, req.Timeout)
		defer cancel()
	}

	handle, err := h.scraper.pool.get()
	if err != nil {
		return nil, &models.EngineError{Engine: string(engine.EngineHeadless), Err: err}
	}
	page := handle.page

	success := false
	defer func() {
		if navErr := page.Navigate("about:blank"); navErr != nil {
			slog.Warn("cleanup: failed to navigate to about:blank", "error", navErr)
		}
		h.scraper.pool.put(handle, success)
	}()

	if _, evalErr := page.EvalOnNewDocument(stealth.JS); evalErr != nil {
		slog.Warn("stealth injection failed, proceeding without stealth", "error", evalErr)
	}

	if err := applyEmulation(page, req); err != nil {
		return nil, &models.EngineError{Engine: string(engine.EngineHeadless), Err: err}
	}
	applyHeaders(page, req)

	router := setupHijack(page, h.scraper.scraperCfg.BlockedResourceTypes, req.BlockAds, nil)
	if router != nil {
		defer func() { _ = router.Stop() }()
	}

	p := page.Context(ctx)

	if navErr := p.Navigate(req.URL); navErr != nil {
		return nil, categorizeNavError(navErr, req.URL)
	}

	if req.WaitFor > 0 {
		select {
		case <-time.After(req.WaitFor):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if stableErr := p.WaitDOMStable(300*time.Millisecond, 0.1); stableErr != nil {
		slog.Debug("WaitDOMStable did not converge, proceeding with current DOM", "error", stableErr)
	}

	contentType := evalStringOrEmpty(p, `() => document.contentType`)

	var screenshot string
	if req.Flags.Has(engine.FlagScreenshot) {
		data, shotErr := p.Screenshot(false, &proto.PageCaptureScreenshot{
			Format: proto.PageCaptureScreenshotFormatPng,
		})
		if shotErr != nil {
			return nil, &models.EngineError{Engine: string(engine.EngineHeadless), Err: shotErr}
		}
		screenshot = base64.StdEncoding.EncodeToString(data)
	}

	rawHTML, htmlErr := p.HTML()
	if htmlErr != nil {
		return nil, categorizeNavError(htmlErr, req.URL)
	}

	title := evalStringOrEmpty(p, `() => document.title`)
	finalURL := evalStringOrEmpty(p, `() => window.location.href`)
	if finalURL == "" {
		finalURL = req.URL
	}

	success = true
	return &engine.Result{
		URL:         finalURL,
		HTML:        rawHTML,
		StatusCode:  navigationStatus(p),
		ContentType: contentType,
		Title:       title,
		Screenshot:  screenshot,
		ProxyUsed:   req.Proxy,
	}, nil
}
