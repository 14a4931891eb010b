// Package querycache is the request-deduplicating, invalidation-driven cache
// that sits between read handlers and the donor store. Values are JSON
// encoded so the in-process and Redis backends behave the same.
package querycache

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/dalemusser/donorhub/internal/app/system/metrics"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// ErrMiss is returned by a Backend when the key is absent.
var ErrMiss = errors.New("cache miss")

// Backend stores encoded values.
type Backend interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, val []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	DeletePrefix(ctx context.Context, prefix string) error
}

// Cache deduplicates concurrent loads of one key and drops stale results:
// a load that started before an Invalidate is returned to its callers but
// not stored.
type Cache struct {
	backend Backend
	ttl     time.Duration
	logger  *zap.Logger

	group singleflight.Group
	gen   atomic.Uint64
}

// New returns a Cache over backend. ttl bounds how long a projection can be
// served without an invalidation.
func New(backend Backend, ttl time.Duration, logger *zap.Logger) *Cache {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Cache{backend: backend, ttl: ttl, logger: logger}
}

// Fetch returns the cached value for key or loads it. Concurrent callers for
// the same key share one load. Backend failures degrade to calling loader.
func Fetch[T any](ctx context.Context, c *Cache, key string, loader func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	if c == nil {
		return loader(ctx)
	}

	family := family(key)
	if raw, err := c.backend.Get(ctx, key); err == nil {
		var v T
		if err := json.Unmarshal(raw, &v); err == nil {
			metrics.CacheLookups.WithLabelValues(family, "hit").Inc()
			return v, nil
		}
		c.logger.Warn("query cache decode failed", zap.String("key", key))
	} else if !errors.Is(err, ErrMiss) {
		c.logger.Warn("query cache read failed", zap.String("key", key), zap.Error(err))
	}
	metrics.CacheLookups.WithLabelValues(family, "miss").Inc()

	gen := c.gen.Load()
	res, err, _ := c.group.Do(strconv.FormatUint(gen, 10)+"|"+key, func() (any, error) {
		// A shared load must not die with the first caller's request.
		lctx := context.WithoutCancel(ctx)
		v, err := loader(lctx)
		if err != nil {
			return nil, err
		}
		raw, err := json.Marshal(v)
		if err != nil {
			return v, nil
		}
		if c.gen.Load() != gen {
			return v, nil
		}
		if err := c.backend.Set(lctx, key, raw, c.ttl); err != nil {
			c.logger.Warn("query cache write failed", zap.String("key", key), zap.Error(err))
			return v, nil
		}
		// An Invalidate that ran while Set was in flight may have deleted
		// before the value landed.
		if c.gen.Load() != gen {
			if err := c.backend.Delete(lctx, key); err != nil {
				c.logger.Warn("query cache stale delete failed", zap.String("key", key), zap.Error(err))
			}
		}
		return v, nil
	})
	if err != nil {
		return zero, err
	}
	v, ok := res.(T)
	if !ok {
		return zero, errors.New("querycache: type mismatch for key " + key)
	}
	return v, nil
}

// Invalidate drops every key starting with one of prefixes. Loads already in
// flight finish for their callers but are not stored; later callers start a
// fresh load.
func (c *Cache) Invalidate(ctx context.Context, prefixes ...string) error {
	if c == nil {
		return nil
	}
	c.gen.Add(1)
	metrics.CacheInvalidations.Inc()

	var errs []error
	for _, p := range prefixes {
		if err := c.backend.DeletePrefix(ctx, p); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func family(key string) string {
	f, _, _ := strings.Cut(key, ":")
	return f
}
