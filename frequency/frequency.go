// Package frequency keeps a rolling memory of what the service has
// scraped recently: per-domain hit counts, content fingerprints, and the
// engine that last succeeded. Recording is fire-and-forget from the
// pipeline; stats endpoints read snapshots and selection hooks can ask
// for the remembered engine.
package frequency

import (
	"net/url"
	"sync"
	"time"

	"github.com/use-agent/harvest/engine"
	"github.com/use-agent/harvest/simhash"
)

// similarThreshold is the max simhash hamming distance at which two
// page fingerprints still count as the same content.
const similarThreshold = 3

// domainStats tracks activity for one domain within the TTL window.
type domainStats struct {
	hits        int64
	lastSeen    time.Time
	fingerprint uint64
	changed     int64
	engine      engine.Name
}

// Recorder remembers recent scrape activity per domain. Entries expire
// after the configured TTL and are pruned periodically.
type Recorder struct {
	ttl  time.Duration
	done chan struct{}

	mu      sync.Mutex
	domains map[string]*domainStats
}

// DomainSnapshot is a read-only view of one domain's recent activity.
type DomainSnapshot struct {
	Domain   string      `json:"domain"`
	Hits     int64       `json:"hits"`
	Changed  int64       `json:"changed"`
	Engine   engine.Name `json:"engine,omitempty"`
	LastSeen time.Time   `json:"last_seen"`
}

// NewRecorder creates a Recorder with the given TTL and starts a
// background goroutine that prunes expired entries.
func NewRecorder(ttl time.Duration) *Recorder {
	r := &Recorder{
		ttl:     ttl,
		done:    make(chan struct{}),
		domains: make(map[string]*domainStats),
	}
	go r.pruneLoop()
	return r
}

// Record notes one successful scrape. The HTML is fingerprinted so
// repeat scrapes of unchanged content can be told apart from content
// that actually moved, and the winning live engine is remembered as the
// domain's preference. A cache-served result keeps the previous
// preference: it says nothing about which live engine works. Safe to
// call from a goroutine; never blocks the request path on anything but
// the map mutex.
func (r *Recorder) Record(rawURL, html string, winner engine.Name) {
	domain := domainOf(rawURL)
	if domain == "" {
		return
	}
	fp := simhash.FingerprintDOM(html)

	r.mu.Lock()
	defer r.mu.Unlock()

	stats, ok := r.domains[domain]
	if !ok {
		stats = &domainStats{}
		r.domains[domain] = stats
	}
	stats.hits++
	stats.lastSeen = time.Now()
	if stats.fingerprint != 0 && !simhash.Similar(stats.fingerprint, fp, similarThreshold) {
		stats.changed++
	}
	stats.fingerprint = fp
	if winner != "" && winner != engine.EngineIndex {
		stats.engine = winner
	}
}

// PreferredEngine returns the live engine that last succeeded for the
// domain, or "" when the domain is unknown or its memory has expired.
func (r *Recorder) PreferredEngine(domain string) engine.Name {
	r.mu.Lock()
	defer r.mu.Unlock()

	stats, ok := r.domains[domain]
	if !ok {
		return ""
	}
	if time.Since(stats.lastSeen) > r.ttl {
		delete(r.domains, domain)
		return ""
	}
	return stats.engine
}

// Forget drops the memory for a domain, e.g. after the remembered
// engine starts failing.
func (r *Recorder) Forget(domain string) {
	r.mu.Lock()
	delete(r.domains, domain)
	r.mu.Unlock()
}

// Snapshot returns the current per-domain stats.
func (r *Recorder) Snapshot() []DomainSnapshot {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]DomainSnapshot, 0, len(r.domains))
	for domain, stats := range r.domains {
		out = append(out, DomainSnapshot{
			Domain:   domain,
			Hits:     stats.hits,
			Changed:  stats.changed,
			Engine:   stats.engine,
			LastSeen: stats.lastSeen,
		})
	}
	return out
}

// Stop terminates the background prune goroutine.
func (r *Recorder) Stop() {
	close(r.done)
}

func (r *Recorder) pruneLoop() {
	ticker := time.NewTicker(10 * time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-r.done:
			return
		case <-ticker.C:
			r.prune(time.Now())
		}
	}
}

func (r *Recorder) prune(now time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for domain, stats := range r.domains {
		if now.Sub(stats.lastSeen) > r.ttl {
			delete(r.domains, domain)
		}
	}
}

func domainOf(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	return u.Hostname()
}
