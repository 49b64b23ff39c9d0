// Package pagecache shares fetched listing pages between browse sessions
// through Redis.
package pagecache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"

	"github.com/wanderhost/browse-api/internal/collection"
	"github.com/wanderhost/browse-api/internal/pkg/logger"
)

const (
	// KeyPrefix namespaces every cached page.
	KeyPrefix = "browse:page:"
	// InvalidateChannel is the pub/sub channel that asks warmers to drop pages.
	InvalidateChannel = "browse:cache:invalidate"

	DefaultTTL = 30 * time.Second
	scanBatch  = 200
)

// Recorder receives cache hit/miss events.
type Recorder interface {
	CacheHit()
	CacheMiss()
}

type noopRecorder struct{}

func (noopRecorder) CacheHit()  {}
func (noopRecorder) CacheMiss() {}

// Option configures a Cache.
type Option func(*settings)

type settings struct {
	ttl      time.Duration
	recorder Recorder
}

// WithTTL sets how long a page stays cached.
func WithTTL(ttl time.Duration) Option {
	return func(s *settings) {
		if ttl > 0 {
			s.ttl = ttl
		}
	}
}

// WithRecorder installs a hit/miss recorder.
func WithRecorder(r Recorder) Option {
	return func(s *settings) {
		if r != nil {
			s.recorder = r
		}
	}
}

// cachedPage is the stored form of a collection.Page.
type cachedPage[T any] struct {
	Items      []T `json:"items"`
	Page       int `json:"page"`
	TotalPages int `json:"total_pages"`
	PageSize   int `json:"page_size"`
	TotalItems int `json:"total_items"`
}

// Cache is a collection.Fetcher decorator. Identical concurrent misses are
// collapsed into one backend request; failed fetches are never cached.
type Cache[T any] struct {
	next     collection.Fetcher[T]
	rdb      *redis.Client
	ttl      time.Duration
	recorder Recorder
	group    singleflight.Group
}

// New wraps next. A nil Redis client makes the cache a pass-through.
func New[T any](next collection.Fetcher[T], rdb *redis.Client, opts ...Option) *Cache[T] {
	s := settings{ttl: DefaultTTL, recorder: noopRecorder{}}
	for _, opt := range opts {
		opt(&s)
	}
	return &Cache[T]{
		next:     next,
		rdb:      rdb,
		ttl:      s.ttl,
		recorder: s.recorder,
	}
}

// Key returns the Redis key for one page of a filter set.
func Key(filters collection.FilterSet, page, pageSize int) string {
	h := sha256.New()
	h.Write([]byte(filters.Values().Encode()))
	h.Write([]byte{0})
	h.Write([]byte(strconv.Itoa(page)))
	h.Write([]byte{0})
	h.Write([]byte(strconv.Itoa(pageSize)))
	return KeyPrefix + hex.EncodeToString(h.Sum(nil))
}

// FetchPage implements collection.Fetcher.
func (c *Cache[T]) FetchPage(ctx context.Context, filters collection.FilterSet, page, pageSize int) (*collection.Page[T], error) {
	if c.rdb == nil {
		return c.next.FetchPage(ctx, filters, page, pageSize)
	}

	key := Key(filters, page, pageSize)
	if res, ok := c.lookup(ctx, key); ok {
		c.recorder.CacheHit()
		return res, nil
	}
	c.recorder.CacheMiss()

	// The shared fetch outlives any single waiter so that one cancelled
	// session does not fail the others waiting on the same key.
	shared := context.WithoutCancel(ctx)
	ch := c.group.DoChan(key, func() (interface{}, error) {
		return c.fill(shared, key, filters, page, pageSize)
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case r := <-ch:
		if r.Err != nil {
			return nil, r.Err
		}
		return clonePage(r.Val.(*collection.Page[T])), nil
	}
}

// Refresh fetches a page from the backend and overwrites the cached copy.
func (c *Cache[T]) Refresh(ctx context.Context, filters collection.FilterSet, page, pageSize int) (*collection.Page[T], error) {
	if c.rdb == nil {
		return c.next.FetchPage(ctx, filters, page, pageSize)
	}
	return c.fill(ctx, Key(filters, page, pageSize), filters, page, pageSize)
}

// Invalidate drops every cached page and returns how many keys were removed.
func (c *Cache[T]) Invalidate(ctx context.Context) (int64, error) {
	if c.rdb == nil {
		return 0, nil
	}

	var (
		cursor  uint64
		removed int64
	)
	for {
		keys, next, err := c.rdb.Scan(ctx, cursor, KeyPrefix+"*", scanBatch).Result()
		if err != nil {
			return removed, fmt.Errorf("scan cached pages: %w", err)
		}
		if len(keys) > 0 {
			n, err := c.rdb.Del(ctx, keys...).Result()
			if err != nil {
				return removed, fmt.Errorf("delete cached pages: %w", err)
			}
			removed += n
		}
		cursor = next
		if cursor == 0 {
			return removed, nil
		}
	}
}

func (c *Cache[T]) lookup(ctx context.Context, key string) (*collection.Page[T], bool) {
	raw, err := c.rdb.Get(ctx, key).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			logger.LogWarn(ctx, "page cache read failed", "key", key, "error", err.Error())
		}
		return nil, false
	}

	var cp cachedPage[T]
	if err := json.Unmarshal(raw, &cp); err != nil {
		logger.LogWarn(ctx, "page cache entry corrupt", "key", key, "error", err.Error())
		return nil, false
	}
	return &collection.Page[T]{
		Items:      cp.Items,
		Page:       cp.Page,
		TotalPages: cp.TotalPages,
		PageSize:   cp.PageSize,
		TotalItems: cp.TotalItems,
	}, true
}

func (c *Cache[T]) fill(ctx context.Context, key string, filters collection.FilterSet, page, pageSize int) (*collection.Page[T], error) {
	res, err := c.next.FetchPage(ctx, filters, page, pageSize)
	if err != nil {
		return nil, err
	}
	if res == nil {
		return nil, collection.ErrEmptyResponse
	}

	raw, err := json.Marshal(cachedPage[T]{
		Items:      res.Items,
		Page:       res.Page,
		TotalPages: res.TotalPages,
		PageSize:   res.PageSize,
		TotalItems: res.TotalItems,
	})
	if err != nil {
		logger.LogWarn(ctx, "page cache encode failed", "key", key, "error", err.Error())
		return res, nil
	}
	if err := c.rdb.Set(ctx, key, raw, c.ttl).Err(); err != nil {
		logger.LogWarn(ctx, "page cache write failed", "key", key, "error", err.Error())
	}
	return res, nil
}

func clonePage[T any](p *collection.Page[T]) *collection.Page[T] {
	out := *p
	if p.Items != nil {
		out.Items = append(make([]T, 0, len(p.Items)), p.Items...)
	}
	return &out
}
