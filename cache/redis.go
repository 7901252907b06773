package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/use-agent/harvest/models"
	"github.com/use-agent/harvest/simhash"
)

// Redis is a Store backed by a shared Redis instance, so multiple
// workers can serve each other's snapshots.
type Redis struct {
	client    *redis.Client
	retention time.Duration
	prefix    string
}

// NewRedis creates a Redis store. Keys expire after retention.
func NewRedis(client *redis.Client, retention time.Duration) *Redis {
	if retention <= 0 {
		retention = 24 * time.Hour
	}
	return &Redis{client: client, retention: retention, prefix: "harvest:index:"}
}

func (r *Redis) Get(ctx context.Context, key string, maxAge time.Duration) (*Entry, error) {
	if maxAge <= 0 {
		return nil, models.ErrNoFreshData
	}

	raw, err := r.client.Get(ctx, r.prefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, models.ErrCacheMiss
	}
	if err != nil {
		return nil, fmt.Errorf("redis get: %w", err)
	}

	var e Entry
	if err := json.Unmarshal(raw, &e); err != nil {
		return nil, fmt.Errorf("redis decode: %w", err)
	}
	if time.Since(e.CreatedAt) > maxAge {
		return nil, models.ErrNoFreshData
	}
	return &e, nil
}

func (r *Redis) Set(ctx context.Context, key string, e *Entry) error {
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now()
	}
	if e.Fingerprint == 0 {
		e.Fingerprint = simhash.FingerprintDOM(e.HTML)
	}

	raw, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("redis encode: %w", err)
	}
	if err := r.client.Set(ctx, r.prefix+key, raw, r.retention).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}
