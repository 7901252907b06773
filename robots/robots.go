// Package robots answers robots.txt allow/deny questions with a
// per-host cache so repeated scrapes of one site fetch the policy once.
package robots

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/temoto/robotstxt"
)

// maxRobotsSize caps the robots.txt body we are willing to parse.
const maxRobotsSize = 512 * 1024

// defaultTTL is how long a fetched policy stays cached per host.
const defaultTTL = 30 * time.Minute

type cachedPolicy struct {
	group     *robotstxt.Group
	fetchedAt time.Time
}

// Checker fetches and caches robots.txt policies. A fetch failure or an
// unparsable file is treated as allow-all; robots checking must never
// take a site down for us that would otherwise scrape fine.
type Checker struct {
	client    *http.Client
	userAgent string
	ttl       time.Duration
	logger    *slog.Logger

	mu    sync.RWMutex
	hosts map[string]cachedPolicy
}

// Option configures a Checker.
type Option func(*Checker)

// WithClient overrides the HTTP client used for robots.txt fetches.
func WithClient(c *http.Client) Option {
	return func(ch *Checker) { ch.client = c }
}

// WithTTL overrides the per-host cache lifetime.
func WithTTL(ttl time.Duration) Option {
	return func(ch *Checker) { ch.ttl = ttl }
}

// WithLogger overrides the logger.
func WithLogger(l *slog.Logger) Option {
	return func(ch *Checker) { ch.logger = l }
}

// NewChecker builds a Checker identifying as userAgent.
func NewChecker(userAgent string, opts ...Option) *Checker {
	ch := &Checker{
		client:    &http.Client{Timeout: 10 * time.Second},
		userAgent: userAgent,
		ttl:       defaultTTL,
		logger:    slog.Default(),
		hosts:     make(map[string]cachedPolicy),
	}
	for _, opt := range opts {
		opt(ch)
	}
	return ch
}

// Allowed reports whether rawURL may be fetched under the host's
// robots.txt policy. Unknown hosts trigger a fetch; errors allow.
func (c *Checker) Allowed(ctx context.Context, rawURL string) bool {
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return true
	}
	hostKey := u.Scheme + "://" + u.Host

	group := c.cachedGroup(hostKey)
	if group == nil {
		group = c.fetchGroup(ctx, hostKey)
	}
	if group == nil {
		return true
	}
	return group.Test(u.Path)
}

func (c *Checker) cachedGroup(hostKey string) *robotstxt.Group {
	c.mu.RLock()
	defer c.mu.RUnlock()
	entry, ok := c.hosts[hostKey]
	if !ok || time.Since(entry.fetchedAt) > c.ttl {
		return nil
	}
	return entry.group
}

// fetchGroup retrieves and parses robots.txt for a host, caching the
// result. A nil group means allow-all and is cached too, so a host with
// no robots.txt is not refetched on every request.
func (c *Checker) fetchGroup(ctx context.Context, hostKey string) *robotstxt.Group {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, hostKey+"/robots.txt", nil)
	if err != nil {
		return nil
	}
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.client.Do(req)
	if err != nil {
		c.logger.Debug("robots fetch failed, allowing", "host", hostKey, "error", err)
		c.store(hostKey, nil)
		return nil
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxRobotsSize))
	if err != nil {
		c.store(hostKey, nil)
		return nil
	}

	robots, err := robotstxt.FromStatusAndBytes(resp.StatusCode, body)
	if err != nil {
		c.logger.Debug("robots parse failed, allowing", "host", hostKey, "error", err)
		c.store(hostKey, nil)
		return nil
	}

	group := robots.FindGroup(c.userAgent)
	c.store(hostKey, group)
	return group
}

func (c *Checker) store(hostKey string, group *robotstxt.Group) {
	c.mu.Lock()
	c.hosts[hostKey] = cachedPolicy{group: group, fetchedAt: time.Now()}
	c.mu.Unlock()
}
