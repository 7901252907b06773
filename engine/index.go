package engine

import (
	"context"

	"github.com/use-agent/harvest/cache"
	"github.com/use-agent/harvest/models"
)

// IndexEngine serves requests from the read-through snapshot store. It
// is attempted before any live engine when the cache gating conditions
// hold; its miss signals trigger silent fallback rather than failure.
type IndexEngine struct {
	store cache.Store
}

// NewIndexEngine creates an IndexEngine over the given store.
func NewIndexEngine(store cache.Store) *IndexEngine {
	return &IndexEngine{store: store}
}

func (e *IndexEngine) Name() Name { return EngineIndex }

func (e *IndexEngine) Scrape(ctx context.Context, req *Request) (*Result, error) {
	entry, err := e.store.Get(ctx, cache.Key(req.URL), req.CacheMaxAge)
	if err != nil {
		// ErrCacheMiss / ErrNoFreshData pass through untouched so the
		// selector can tell fallback signals from real failures.
		return nil, err
	}

	return &Result{
		URL:            entry.URL,
		HTML:           entry.HTML,
		StatusCode:     entry.StatusCode,
		ContentType:    entry.ContentType,
		Title:          entry.Title,
		CacheCreatedAt: entry.CreatedAt,
		ProxyUsed:      models.ProxyTier(entry.ProxyUsed),
	}, nil
}

// Store exposes the backing store for cache writes after live scrapes.
func (e *IndexEngine) Store() cache.Store { return e.store }
