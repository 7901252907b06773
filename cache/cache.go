// Package cache is the storage layer behind the index engine: a
// read-through store of page snapshots keyed by URL, with staleness
// governed entirely by the caller-supplied maximum age.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"time"
)

// Entry is one cached page snapshot.
type Entry struct {
	URL         string    `json:"url"`
	HTML        string    `json:"html"`
	StatusCode  int       `json:"status_code"`
	ContentType string    `json:"content_type,omitempty"`
	Title       string    `json:"title,omitempty"`
	ProxyUsed   string    `json:"proxy_used,omitempty"`
	CreatedAt   time.Time `json:"created_at"`

	// Fingerprint is a simhash of the HTML, used to skip rewriting
	// entries whose content has not changed.
	Fingerprint uint64 `json:"fingerprint,omitempty"`
}

// Store is the snapshot storage contract. Get returns
// models.ErrCacheMiss when no entry exists and models.ErrNoFreshData
// when the entry is older than maxAge; both are fallback signals, not
// failures.
type Store interface {
	Get(ctx context.Context, key string, maxAge time.Duration) (*Entry, error)
	Set(ctx context.Context, key string, e *Entry) error
}

// Key derives the storage key for a URL.
func Key(url string) string {
	h := sha256.Sum256([]byte(url))
	return hex.EncodeToString(h[:])
}
