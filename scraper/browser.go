package scraper

import (
	"context"
	"encoding/base64"
	"errors"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/devices"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"
	"github.com/ysmood/gson"

	"github.com/use-agent/harvest/engine"
	"github.com/use-agent/harvest/models"
)

// Browser is the full-capability engine: scripted actions, screenshots,
// mobile emulation, geo targeting, and inline delivery of binary
// payloads. It borrows tabs from the shared pool.
type Browser struct {
	scraper *Scraper
}

// NewBrowser creates the browser engine over a running Scraper.
func NewBrowser(s *Scraper) *Browser { return &Browser{scraper: s} }

func (b *Browser) Name() engine.Name { return engine.EngineBrowser }

// Scrape renders the page in a pooled Chrome tab.
//
// Lifecycle:
//
//  1. Deadline guard on the whole operation
//  2. Acquire tab from the pool
//  3. DEFER: about:blank + return to pool (leak prevention)
//  4. Stealth injection (before navigation!)
//  5. Emulation: mobile device, viewport, locale headers
//  6. Hijack mount: resource/ad blocking + binary capture (before navigation!)
//  7. Navigate, wait, extract
//
// Steps 4-6 must precede navigation: stealth JS and interception only
// take effect for navigations that happen after they are installed.
func (b *Browser) Scrape(ctx context.Context, req *engine.Request) (*engine.Result, error) {
	if req.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, req.Timeout)
		defer cancel()
	}

	handle, err := b.scraper.pool.get()
	if err != nil {
		return nil, &models.EngineError{Engine: string(engine.EngineBrowser), Err: err}
	}
	page := handle.page

	success := false
	defer func() {
		// about:blank uses the original page reference (without the
		// request context), so cleanup succeeds even after expiry.
		if navErr := page.Navigate("about:blank"); navErr != nil {
			slog.Warn("cleanup: failed to navigate to about:blank", "error", navErr)
		}
		b.scraper.pool.put(handle, success)
	}()

	if _, evalErr := page.EvalOnNewDocument(stealth.JS); evalErr != nil {
		slog.Warn("stealth injection failed, proceeding without stealth", "error", evalErr)
	}

	if err := applyEmulation(page, req); err != nil {
		return nil, &models.EngineError{Engine: string(engine.EngineBrowser), Err: err}
	}
	applyHeaders(page, req)

	capture := &binaryCapture{}
	router := setupHijack(page, b.scraper.scraperCfg.BlockedResourceTypes, req.BlockAds, capture)
	if router != nil {
		defer func() { _ = router.Stop() }()
	}

	p := page.Context(ctx)

	navErr := p.Navigate(req.URL)
	if ct, status, body, found := capture.get(); found {
		// Binary main document: no DOM to extract, return the payload.
		success = true
		return &engine.Result{
			URL:           req.URL,
			StatusCode:    status,
			ContentType:   ct,
			ProxyUsed:     req.Proxy,
			BinaryPayload: body,
		}, nil
	}
	if navErr != nil {
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

	statusCode := navigationStatus(p)

	var actionShots []string
	if len(req.Actions) > 0 {
		actionShots, err = executeActions(ctx, page, req.Actions)
		if err != nil {
			return nil, &models.EngineError{Engine: string(engine.EngineBrowser), Err: err}
		}
	}

	var screenshot string
	if req.Flags.Has(engine.FlagScreenshot) || req.Flags.Has(engine.FlagScreenshotFullPage) {
		screenshot, err = captureScreenshot(p, req)
		if err != nil {
			return nil, &models.EngineError{Engine: string(engine.EngineBrowser), Err: err}
		}
	}

	rawHTML, htmlErr := p.HTML()
	if htmlErr != nil {
		return nil, categorizeNavError(htmlErr, req.URL)
	}

	title := evalStringOrEmpty(p, `() => document.title`)
	contentType := evalStringOrEmpty(p, `() => document.contentType`)
	finalURL := evalStringOrEmpty(p, `() => window.location.href`)
	if finalURL == "" {
		finalURL = req.URL
	}

	success = true
	return &engine.Result{
		URL:               finalURL,
		HTML:              rawHTML,
		StatusCode:        statusCode,
		ContentType:       contentType,
		Title:             title,
		Screenshot:        screenshot,
		ActionScreenshots: actionShots,
		ProxyUsed:         req.Proxy,
	}, nil
}

// applyEmulation configures device, viewport and locale before navigation.
func applyEmulation(page *rod.Page, req *engine.Request) error {
	if req.Mobile {
		if err := page.Emulate(devices.IPhoneX); err != nil {
			return err
		}
	}
	if req.Screenshot != nil && req.Screenshot.Viewport != nil {
		vp := req.Screenshot.Viewport
		if err := page.SetViewport(&proto.EmulationSetDeviceMetricsOverride{
			Width:             vp.Width,
			Height:            vp.Height,
			DeviceScaleFactor: 1,
			Mobile:            req.Mobile,
		}); err != nil {
			return err
		}
	}
	return nil
}

// applyHeaders sets custom headers plus a Google referer when the
// caller did not supply one, and Accept-Language for geo targeting.
func applyHeaders(page *rod.Page, req *engine.Request) {
	extra := make(map[string]string, len(req.Headers)+2)
	if _, hasReferer := req.Headers["Referer"]; !hasReferer {
		if u, parseErr := url.Parse(req.URL); parseErr == nil {
			extra["Referer"] = "https://www.google.com/search?q=" + url.QueryEscape(u.Hostname())
		}
	}
	if req.Location != nil && len(req.Location.Languages) > 0 {
		extra["Accept-Language"] = strings.Join(req.Location.Languages, ",")
	}
	for k, v := range req.Headers {
		extra[k] = v
	}
	if len(extra) > 0 {
		_ = proto.NetworkSetExtraHTTPHeaders{Headers: toHeadersMap(extra)}.Call(page)
	}
}

// captureScreenshot takes the requested screenshot variant as base64.
func captureScreenshot(p *rod.Page, req *engine.Request) (string, error) {
	shot := &proto.PageCaptureScreenshot{Format: proto.PageCaptureScreenshotFormatPng}
	if req.Screenshot != nil && req.Screenshot.Quality > 0 {
		q := req.Screenshot.Quality
		shot.Format = proto.PageCaptureScreenshotFormatJpeg
		shot.Quality = &q
	}
	fullPage := req.Flags.Has(engine.FlagScreenshotFullPage)

	data, err := p.Screenshot(fullPage, shot)
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(data), nil
}

// navigationStatus reads the HTTP status of the navigation from the
// performance API, avoiding CDP event listeners that conflict with the
// Fetch domain used by request hijacking.
func navigationStatus(p *rod.Page) int {
	res, err := p.Eval(`() => {
		try {
			const entries = performance.getEntriesByType("navigation");
			if (entries.length > 0) return entries[0].responseStatus || 0;
		} catch(e) {}
		return 0;
	}`)
	if err != nil {
		return 0
	}
	return res.Value.Int()
}

// evalStringOrEmpty evaluates a JS expression and returns the string
// result, swallowing errors (used for optional metadata).
func evalStringOrEmpty(page *rod.Page, js string) string {
	res, err := page.Eval(js)
	if err != nil {
		return ""
	}
	return res.Value.Str()
}

// toHeadersMap converts a plain string map to the proto.NetworkHeaders
// type required by NetworkSetExtraHTTPHeaders.
func toHeadersMap(headers map[string]string) proto.NetworkHeaders {
	m := make(proto.NetworkHeaders, len(headers))
	for k, v := range headers {
		m[k] = gson.New(v)
	}
	return m
}

// categorizeNavError wraps navigation failures into the error taxonomy.
func categorizeNavError(err error, rawURL string) error {
	switch {
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return err
	default:
		return &models.SiteError{Code: models.ErrCodeSite, URL: rawURL, Err: err}
	}
}
