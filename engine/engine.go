package engine

import (
	"context"
	"time"

	"github.com/use-agent/harvest/models"
)

// Engine is the uniform interface the pipeline invokes engines through.
// Implementations may return typed errors from the models taxonomy; the
// index engine additionally returns models.ErrCacheMiss and
// models.ErrNoFreshData as fallback signals.
type Engine interface {
	// Name returns the engine identifier.
	Name() Name

	// Scrape retrieves the page content for the given request. It must
	// honor ctx cancellation at its own blocking points.
	Scrape(ctx context.Context, req *Request) (*Result, error)
}

// Request contains everything an engine needs to fetch a page. Flags is
// a defensive copy owned by the invocation.
type Request struct {
	URL         string
	Headers     map[string]string
	Timeout     time.Duration
	Flags       FlagSet
	Actions     []models.Action
	Screenshot  *models.ScreenshotOptions
	WaitFor     time.Duration
	Location    *models.Location
	Mobile      bool
	SkipTLS     bool
	BlockAds    bool
	Proxy       models.ProxyTier
	CacheMaxAge time.Duration
}

// Result is the raw output of an engine.
type Result struct {
	// URL is the final URL actually fetched (after redirects).
	URL string

	// HTML is the text payload. For cache hits it may already be
	// pre-classified content; for binary responses it may be empty with
	// BinaryPayload set instead.
	HTML string

	// Markdown is set only by engines that store converted content.
	Markdown string

	StatusCode int
	Error      string

	// ContentType is the response content type, when known.
	ContentType string

	// Title and NumPages are filled by specialty parsing or cached
	// entries; live HTML engines leave them empty.
	Title    string
	NumPages int

	// Screenshot and ActionScreenshots are base64-encoded captures.
	Screenshot        string
	ActionScreenshots []string

	// CacheCreatedAt is non-zero when served from the index cache.
	CacheCreatedAt time.Time

	// ProxyUsed is the proxy tier the engine fetched through.
	ProxyUsed models.ProxyTier

	// BinaryPayload holds an already-downloaded non-HTML body. The
	// browser engine is contractually required to fill this for binary
	// responses; hint-only engines leave it nil.
	BinaryPayload []byte
}

// BuildRequest assembles an engine Request from validated options. The
// flag set is cloned per sub-invocation.
func BuildRequest(url string, opts models.ScrapeOptions, flags FlagSet, timeout time.Duration) *Request {
	return &Request{
		URL:         url,
		Headers:     opts.Headers,
		Timeout:     timeout,
		Flags:       flags.Clone(),
		Actions:     opts.Actions,
		Screenshot:  opts.Screenshot,
		WaitFor:     time.Duration(opts.WaitFor) * time.Millisecond,
		Location:    opts.Location,
		Mobile:      opts.Mobile,
		SkipTLS:     opts.SkipTLSVerification,
		BlockAds:    opts.AdblockEnabled(),
		Proxy:       opts.Proxy,
		CacheMaxAge: time.Duration(opts.MaxAge) * time.Millisecond,
	}
}
