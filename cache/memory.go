package cache

import (
	"context"
	"sync"
	"time"

	"github.com/use-agent/harvest/models"
	"github.com/use-agent/harvest/simhash"
)

// Memory is an in-process Store. It is safe for concurrent use.
type Memory struct {
	mu         sync.RWMutex
	store      map[string]*Entry
	maxEntries int
	retention  time.Duration
}

// NewMemory creates a Memory store with the given capacity. A background
// goroutine evicts entries older than retention every 5 minutes.
func NewMemory(maxEntries int, retention time.Duration) *Memory {
	if retention <= 0 {
		retention = time.Hour
	}
	m := &Memory{
		store:      make(map[string]*Entry),
		maxEntries: maxEntries,
		retention:  retention,
	}
	go m.cleanupLoop()
	return m
}

func (m *Memory) Get(_ context.Context, key string, maxAge time.Duration) (*Entry, error) {
	if maxAge <= 0 {
		return nil, models.ErrNoFreshData
	}

	m.mu.RLock()
	e, ok := m.store[key]
	m.mu.RUnlock()

	if !ok {
		return nil, models.ErrCacheMiss
	}
	if time.Since(e.CreatedAt) > maxAge {
		return nil, models.ErrNoFreshData
	}

	cp := *e
	return &cp, nil
}

func (m *Memory) Set(_ context.Context, key string, e *Entry) error {
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now()
	}
	if e.Fingerprint == 0 {
		e.Fingerprint = simhash.FingerprintDOM(e.HTML)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	// Unchanged content: refresh the timestamp without replacing the
	// entry, so repeated scrapes of stable pages stay cheap.
	if old, ok := m.store[key]; ok && old.Fingerprint != 0 && old.Fingerprint == e.Fingerprint {
		old.CreatedAt = e.CreatedAt
		return nil
	}

	// Evict one random entry if at capacity (map iteration is random).
	// maxEntries <= 0 means unbounded.
	if m.maxEntries > 0 && len(m.store) >= m.maxEntries {
		for k := range m.store {
			delete(m.store, k)
			break
		}
	}

	cp := *e
	m.store[key] = &cp
	return nil
}

// cleanupLoop evicts entries past retention every 5 minutes.
func (m *Memory) cleanupLoop() {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()
	for range ticker.C {
		cutoff := time.Now().Add(-m.retention)
		m.mu.Lock()
		for k, e := range m.store {
			if e.CreatedAt.Before(cutoff) {
				delete(m.store, k)
			}
		}
		m.mu.Unlock()
	}
}
