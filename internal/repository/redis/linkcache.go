// Package redis caches resolved click chains so hot short links skip the
// five-table lookup. Counters are never cached.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/ignite/campaign-engine/internal/domain"
)

const keyPrefix = "shortlink:target:"

// LinkCache implements tracking.TargetCache.
type LinkCache struct {
	client *redis.Client
	ttl    time.Duration
}

func NewLinkCache(client *redis.Client, ttl time.Duration) *LinkCache {
	return &LinkCache{client: client, ttl: ttl}
}

// Get returns domain.ErrNotFound on a miss.
func (c *LinkCache) Get(ctx context.Context, shortLinkID string) (*domain.ClickTarget, error) {
	data, err := c.client.Get(ctx, keyPrefix+shortLinkID).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("link cache get: %w", err)
	}
	var t domain.ClickTarget
	if err := json.Unmarshal(data, &t); err != nil {
		c.client.Del(ctx, keyPrefix+shortLinkID)
		return nil, domain.ErrNotFound
	}
	return &t, nil
}

func (c *LinkCache) Set(ctx context.Context, t *domain.ClickTarget) error {
	data, err := json.Marshal(t)
	if err != nil {
		return fmt.Errorf("link cache encode: %w", err)
	}
	if err := c.client.Set(ctx, keyPrefix+t.Link.ID, data, c.ttl).Err(); err != nil {
		return fmt.Errorf("link cache set: %w", err)
	}
	return nil
}

// Invalidate drops a cached chain, e.g. after its destination changed.
func (c *LinkCache) Invalidate(ctx context.Context, shortLinkID string) error {
	return c.client.Del(ctx, keyPrefix+shortLinkID).Err()
}
