// Package cache keeps warehouse query results as JSON objects in an object
// store so repeated dashboard loads skip the warehouse.
//
// Layout under the prefix:
//
//	results/<kind>/<sha256>.json  cached results
//	meta/cache_info.json          last refresh times
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"path"
	"sync"
	"time"

	"github.com/variantgroup/dashboard/internal/adapters/objectstore"
	"github.com/variantgroup/dashboard/pkg/logger"
	"github.com/variantgroup/dashboard/pkg/metrics"
)

const (
	contentTypeJSON = "application/json"
	resultsDir      = "results"
	metaObject      = "meta/cache_info.json"
)

// Info records when each layer was last rebuilt.
type Info struct {
	LastBQRefresh  *time.Time `json:"last_bq_refresh"`
	LastGCSRefresh *time.Time `json:"last_gcs_refresh"`
}

type entry struct {
	StoredAt time.Time       `json:"stored_at"`
	Payload  json.RawMessage `json:"payload"`
}

// Cache stores results keyed by kind and request parameters.
type Cache struct {
	store  objectstore.Store
	prefix string
	ttl    time.Duration
	now    func() time.Time
	logger logger.Logger

	metaMu sync.Mutex
}

// New returns a cache over store.
func New(store objectstore.Store, opts ...Option) *Cache {
	c := &Cache{
		store:  store,
		now:    time.Now,
		logger: logger.Get().Named("cache"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Key hashes kind and the JSON encoding of params.
func Key(kind string, params any) (string, error) {
	raw, err := json.Marshal(params)
	if err != nil {
		return "", fmt.Errorf("%w: params: %w", ErrEncode, err)
	}
	h := sha256.New()
	h.Write([]byte(kind))
	h.Write([]byte{0})
	h.Write(raw)
	return hex.EncodeToString(h.Sum(nil)), nil
}

func (c *Cache) objectName(kind, key string) string {
	return path.Join(c.prefix, resultsDir, kind, key+".json")
}

// Get decodes a fresh cached result into dst. It reports false on a miss.
func (c *Cache) Get(ctx context.Context, kind string, params, dst any) (bool, error) {
	key, err := Key(kind, params)
	if err != nil {
		return false, err
	}
	raw, err := c.store.Get(ctx, c.objectName(kind, key))
	if errors.Is(err, objectstore.ErrNotExist) {
		metrics.RecordCacheMiss(kind)
		return false, nil
	}
	if err != nil {
		metrics.RecordCacheError("get")
		return false, err
	}

	var e entry
	if err := json.Unmarshal(raw, &e); err != nil {
		metrics.RecordCacheError("decode")
		return false, fmt.Errorf("%w: %s: %w", ErrDecode, kind, err)
	}
	if c.ttl > 0 && c.now().Sub(e.StoredAt) > c.ttl {
		metrics.RecordCacheMiss(kind)
		return false, nil
	}
	if err := json.Unmarshal(e.Payload, dst); err != nil {
		metrics.RecordCacheError("decode")
		return false, fmt.Errorf("%w: %s payload: %w", ErrDecode, kind, err)
	}
	metrics.RecordCacheHit(kind)
	return true, nil
}

// Put stores value under kind and params.
func (c *Cache) Put(ctx context.Context, kind string, params, value any) error {
	key, err := Key(kind, params)
	if err != nil {
		return err
	}
	payload, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("%w: %s payload: %w", ErrEncode, kind, err)
	}
	raw, err := json.Marshal(entry{StoredAt: c.now().UTC(), Payload: payload})
	if err != nil {
		return fmt.Errorf("%w: %s: %w", ErrEncode, kind, err)
	}
	if err := c.store.Put(ctx, c.objectName(kind, key), raw, contentTypeJSON); err != nil {
		metrics.RecordCacheError("put")
		return err
	}
	metrics.RecordCacheWrite(kind)
	return nil
}

// GetOrLoad returns the cached result or calls load and caches its result.
// Storage failures are logged and never fail the request.
func GetOrLoad[T any](ctx context.Context, c *Cache, kind string, params any, load func(context.Context) (T, error)) (T, error) {
	var out T
	if c == nil {
		return load(ctx)
	}
	hit, err := c.Get(ctx, kind, params, &out)
	if err != nil {
		c.logger.Warn(ctx, "cache read failed", logger.String("kind", kind), logger.Error(err))
	}
	if hit {
		return out, nil
	}

	out, err = load(ctx)
	if err != nil {
		return out, err
	}
	if err := c.Put(ctx, kind, params, out); err != nil {
		c.logger.Warn(ctx, "cache write failed", logger.String("kind", kind), logger.Error(err))
	}
	return out, nil
}

// Invalidate deletes every cached result and returns how many were removed.
func (c *Cache) Invalidate(ctx context.Context) (int, error) {
	names, err := c.store.List(ctx, path.Join(c.prefix, resultsDir)+"/")
	if err != nil {
		metrics.RecordCacheError("list")
		return 0, err
	}
	for i, name := range names {
		if err := c.store.Delete(ctx, name); err != nil {
			metrics.RecordCacheError("delete")
			return i, err
		}
	}
	return len(names), nil
}

// Info returns the refresh metadata. A missing metadata object is empty Info.
func (c *Cache) Info(ctx context.Context) (Info, error) {
	var info Info
	raw, err := c.store.Get(ctx, path.Join(c.prefix, metaObject))
	if errors.Is(err, objectstore.ErrNotExist) {
		return info, nil
	}
	if err != nil {
		metrics.RecordCacheError("get")
		return info, err
	}
	if err := json.Unmarshal(raw, &info); err != nil {
		return info, fmt.Errorf("%w: cache info: %w", ErrDecode, err)
	}
	return info, nil
}

// StampBigQuery records a finished staging rebuild.
func (c *Cache) StampBigQuery(ctx context.Context, at time.Time) error {
	return c.updateInfo(ctx, func(i *Info) { i.LastBQRefresh = &at })
}

// StampGCS records a finished cache rebuild.
func (c *Cache) StampGCS(ctx context.Context, at time.Time) error {
	return c.updateInfo(ctx, func(i *Info) { i.LastGCSRefresh = &at })
}

func (c *Cache) updateInfo(ctx context.Context, fn func(*Info)) error {
	c.metaMu.Lock()
	defer c.metaMu.Unlock()

	info, err := c.Info(ctx)
	if err != nil {
		// A corrupt metadata object is replaced rather than blocking refreshes.
		if !errors.Is(err, ErrDecode) {
			return err
		}
		info = Info{}
	}
	fn(&info)
	raw, err := json.Marshal(info)
	if err != nil {
		return fmt.Errorf("%w: cache info: %w", ErrEncode, err)
	}
	if err := c.store.Put(ctx, path.Join(c.prefix, metaObject), raw, contentTypeJSON); err != nil {
		metrics.RecordCacheError("put")
		return err
	}
	return nil
}
