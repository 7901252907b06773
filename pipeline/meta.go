package pipeline

import (
	"context"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/use-agent/harvest/engine"
	"github.com/use-agent/harvest/models"
)

// Prefetch describes a specialty payload already downloaded to a local
// temp file, ready for reuse by a specialized parser.
type Prefetch struct {
	FilePath    string
	URL         string
	StatusCode  int
	Proxy       models.ProxyTier
	ContentType string
}

// Meta is the immutable per-request bundle threaded through every
// stage. Later stages may only fill the prefetch slots and record the
// winning engine; options, identifiers and the derived flag set are
// fixed at construction.
type Meta struct {
	ID           string
	URL          string
	RewrittenURL string
	Options      models.ScrapeOptions
	Internal     models.InternalOptions
	Flags        engine.FlagSet
	Abort        *Abort
	Logger       *slog.Logger

	mu          sync.Mutex
	pdfPrefetch *Prefetch
	docPrefetch *Prefetch
	winner      engine.Name
	cacheMiss   bool
	cleanupOnce sync.Once
}

// newMeta builds the request context: flags are derived exactly once,
// before engine selection, and the abort coordinator composes the
// caller's context with the overall timeout option.
func newMeta(ctx context.Context, id, url string, opts models.ScrapeOptions, internal models.InternalOptions, logger *slog.Logger) *Meta {
	if logger == nil {
		logger = slog.Default()
	}
	return &Meta{
		ID:       id,
		URL:      url,
		Options:  opts,
		Internal: internal,
		Flags:    engine.DeriveFlags(opts, internal),
		Abort:    NewAbort(ctx, time.Duration(opts.Timeout)*time.Millisecond),
		Logger:   logger.With("request_id", id, "url", url),
	}
}

// TargetURL returns the rewritten URL when present, else the original.
func (m *Meta) TargetURL() string {
	if m.RewrittenURL != "" {
		return m.RewrittenURL
	}
	return m.URL
}

// SetPDFPrefetch fills the PDF prefetch slot. Once set, the slot is
// immutable; a second set is ignored and reported false.
func (m *Meta) SetPDFPrefetch(p *Prefetch) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.pdfPrefetch != nil {
		return false
	}
	m.pdfPrefetch = p
	return true
}

// SetDocPrefetch fills the document prefetch slot, same contract as
// SetPDFPrefetch.
func (m *Meta) SetDocPrefetch(p *Prefetch) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.docPrefetch != nil {
		return false
	}
	m.docPrefetch = p
	return true
}

// PDFPrefetch and DocPrefetch read the slots.
func (m *Meta) PDFPrefetch() *Prefetch {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.pdfPrefetch
}

func (m *Meta) DocPrefetch() *Prefetch {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.docPrefetch
}

// SetWinner records the engine that ultimately served the request.
func (m *Meta) SetWinner(name engine.Name) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.winner = name
}

// MarkCacheMiss records that the index cache was consulted and fell
// back to a live engine.
func (m *Meta) MarkCacheMiss() {
	m.mu.Lock()
	m.cacheMiss = true
	m.mu.Unlock()
}

// CacheMissed reports whether the cache was consulted and missed.
func (m *Meta) CacheMissed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cacheMiss
}

// Winner returns the attributed engine, empty until one has answered.
func (m *Meta) Winner() engine.Name {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.winner
}

// Cleanup deletes the prefetch temp files. It runs exactly once and
// must be deferred on every pipeline exit path.
func (m *Meta) Cleanup() {
	m.cleanupOnce.Do(func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		for _, p := range []*Prefetch{m.pdfPrefetch, m.docPrefetch} {
			if p == nil || p.FilePath == "" {
				continue
			}
			if err := os.Remove(p.FilePath); err != nil && !os.IsNotExist(err) {
				m.Logger.Warn("failed to remove prefetch file", "path", p.FilePath, "error", err)
			}
		}
	})
}
