package search

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/kiranshivaraju/workhuntr/internal/cache"
	"github.com/kiranshivaraju/workhuntr/pkg/models"
)

// CachedClient memoizes successful pages in the cache so repeated sweeps of
// the same query within the TTL do not spend provider quota.
type CachedClient struct {
	inner Client
	cache cache.Cache
	ttl   time.Duration
}

func NewCachedClient(inner Client, c cache.Cache, ttl time.Duration) *CachedClient {
	return &CachedClient{inner: inner, cache: c, ttl: ttl}
}

func (c *CachedClient) Name() string  { return c.inner.Name() }
func (c *CachedClient) PageSize() int { return c.inner.PageSize() }

func (c *CachedClient) Search(ctx context.Context, req Request) ([]models.RawSearchHit, error) {
	key := cache.SearchResultKey(c.inner.Name(), requestHash(req))

	// Cache errors are non-fatal; fall through to the provider.
	if data, found, err := c.cache.Get(ctx, key); err == nil && found {
		var hits []models.RawSearchHit
		if err := json.Unmarshal(data, &hits); err == nil {
			return hits, nil
		}
	}

	hits, err := c.inner.Search(ctx, req)
	if err != nil {
		return nil, err
	}

	if data, err := json.Marshal(hits); err == nil {
		if err := c.cache.Set(ctx, key, data, c.ttl); err != nil {
			slog.Warn("failed to cache search page", "provider", c.inner.Name(), "error", err)
		}
	}
	return hits, nil
}

func requestHash(req Request) string {
	sum := sha256.Sum256([]byte(fmt.Sprintf("%s\x00%d\x00%d", req.Query, req.Offset, req.Count)))
	return hex.EncodeToString(sum[:])
}

var _ Client = (*CachedClient)(nil)
