package pagecache

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/sitewise-ai/sitewise/pkg/resource"
	"github.com/sitewise-ai/sitewise/pkg/storage"
)

// ErrMiss is returned when no fresh cached body exists for a URL. A stored
// but expired row is a miss too.
var ErrMiss = errors.New("page cache miss")

// Store is the persistence behind the cache.
type Store interface {
	GetPage(ctx context.Context, url string) (*resource.CachedPage, error)
	PutPage(ctx context.Context, p *resource.CachedPage) error
	DeletePage(ctx context.Context, url string) error
}

// Cache is a TTL-bounded, tenant-agnostic store of fetched page bodies keyed
// by normalized URL. TTL is fixed per deployment.
type Cache struct {
	store Store
	ttl   time.Duration
	now   func() time.Time
}

func New(store Store, ttl time.Duration) *Cache {
	if ttl <= 0 {
		ttl = 6 * time.Hour
	}
	return &Cache{store: store, ttl: ttl, now: time.Now}
}

// Get returns the cached body for url, or ErrMiss. Expired rows are deleted
// opportunistically; eviction failing is harmless since every reader checks
// expiry itself.
func (c *Cache) Get(ctx context.Context, url string) ([]byte, error) {
	p, err := c.store.GetPage(ctx, url)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, ErrMiss
	}
	if err != nil {
		return nil, err
	}
	if p.Expired(c.now()) {
		if err := c.store.DeletePage(ctx, url); err != nil {
			slog.Warn("failed to evict expired page", slog.String("url", url), slog.Any("err", err))
		}
		return nil, ErrMiss
	}
	return p.Body, nil
}

// Put stores body for url until the deployment TTL elapses. Last write wins.
func (c *Cache) Put(ctx context.Context, url string, body []byte) error {
	now := c.now()
	return c.store.PutPage(ctx, &resource.CachedPage{
		URL:       url,
		Body:      body,
		FetchedAt: now,
		ExpiresAt: now.Add(c.ttl),
	})
}
