package cache

import (
	"context"
	"encoding/json"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// ErrNotFound is returned by a Store on a miss.
var ErrNotFound = errors.New("cache: key not found")

// Store is the raw key/value backend behind Cache.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}

// entry wraps every cached payload with its own expiry so that expiry is
// enforced by Cache regardless of whether the Store honours ttl.
type entry struct {
	Payload   json.RawMessage `json:"payload"`
	FetchedAt time.Time       `json:"fetched_at"`
	ExpiresAt time.Time       `json:"expires_at"`
}

// Cache is a time-boxed JSON cache. Expired entries are deleted from the
// store when read.
type Cache struct {
	store  Store
	logger *zap.Logger
	now    func() time.Time
}

type Option func(*Cache)

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(c *Cache) { c.now = now }
}

func New(store Store, logger *zap.Logger, opts ...Option) *Cache {
	c := &Cache{store: store, logger: logger, now: time.Now}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Get decodes the cached value for key into dst. It returns false on a miss,
// on an expired entry (which is deleted first) and on an unreadable entry.
func (c *Cache) Get(ctx context.Context, key string, dst any) (bool, error) {
	raw, err := c.store.Get(ctx, key)
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, errors.Wrapf(err, "cache get %q", key)
	}

	var e entry
	if err := json.Unmarshal(raw, &e); err != nil {
		c.logger.Warn("dropping unreadable cache entry", zap.String("key", key), zap.Error(err))
		return false, c.drop(ctx, key)
	}

	if !c.now().Before(e.ExpiresAt) {
		c.logger.Debug("cache entry expired",
			zap.String("key", key),
			zap.Time("fetched_at", e.FetchedAt),
			zap.Time("expires_at", e.ExpiresAt),
		)
		return false, c.drop(ctx, key)
	}

	if err := json.Unmarshal(e.Payload, dst); err != nil {
		c.logger.Warn("dropping undecodable cache payload", zap.String("key", key), zap.Error(err))
		return false, c.drop(ctx, key)
	}
	return true, nil
}

// Set stores value under key for ttl.
func (c *Cache) Set(ctx context.Context, key string, value any, ttl time.Duration) error {
	payload, err := json.Marshal(value)
	if err != nil {
		return errors.Wrapf(err, "cache encode %q", key)
	}
	now := c.now()
	raw, err := json.Marshal(entry{Payload: payload, FetchedAt: now, ExpiresAt: now.Add(ttl)})
	if err != nil {
		return errors.Wrapf(err, "cache encode %q", key)
	}
	if err := c.store.Set(ctx, key, raw, ttl); err != nil {
		return errors.Wrapf(err, "cache set %q", key)
	}
	return nil
}

func (c *Cache) Delete(ctx context.Context, key string) error {
	return c.drop(ctx, key)
}

func (c *Cache) drop(ctx context.Context, key string) error {
	if err := c.store.Delete(ctx, key); err != nil && !errors.Is(err, ErrNotFound) {
		return errors.Wrapf(err, "cache delete %q", key)
	}
	return nil
}
