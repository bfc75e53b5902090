package geo

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/spigell/talent-match/internal/records"
)

const (
	DefaultCacheTTL        = 24 * time.Hour
	DefaultCacheMaxEntries = 1000
	DefaultLookupTimeout   = 30 * time.Second

	redisPingTimeout = 3 * time.Second
)

type CacheOptions struct {
	TTL        time.Duration
	MaxEntries int
	// LookupTimeout bounds a shared upstream lookup, which outlives the
	// callers waiting on it.
	LookupTimeout time.Duration
	// Redis is an optional second tier shared between processes.
	Redis *redis.Client
}

// Cache memoizes successful lookups of the wrapped geocoder in memory and,
// when configured, in redis. Failed lookups are never cached. Concurrent
// lookups of the same address share one upstream call.
type Cache struct {
	next   Geocoder
	logger *zap.Logger

	l1         sync.Map
	rdb        *redis.Client
	ttl        time.Duration
	maxEntries int
	timeout    time.Duration
	group      singleflight.Group

	hits   atomic.Int64
	misses atomic.Int64
}

type cacheEntry struct {
	coords    records.Coordinates
	expiresAt time.Time
}

func NewCache(next Geocoder, opts CacheOptions, logger *zap.Logger) *Cache {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.TTL <= 0 {
		opts.TTL = DefaultCacheTTL
	}
	if opts.MaxEntries <= 0 {
		opts.MaxEntries = DefaultCacheMaxEntries
	}
	if opts.LookupTimeout <= 0 {
		opts.LookupTimeout = DefaultLookupTimeout
	}

	return &Cache{
		next:       next,
		logger:     logger,
		rdb:        opts.Redis,
		ttl:        opts.TTL,
		maxEntries: opts.MaxEntries,
		timeout:    opts.LookupTimeout,
	}
}

// NewRedisClient connects to redisURL and checks the server is reachable.
func NewRedisClient(ctx context.Context, redisURL string) (*redis.Client, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parsing redis url: %w", err)
	}

	rdb := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(ctx, redisPingTimeout)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("pinging redis %s: %w", opts.Addr, err)
	}

	return rdb, nil
}

// CacheKey derives the storage key of an address. Addresses differing only
// in case or surrounding whitespace share a key.
func CacheKey(address string) string {
	normalized := strings.ToLower(strings.Join(strings.Fields(address), " "))
	hash := sha256.Sum256([]byte(normalized))
	return fmt.Sprintf("geo:%x", hash[:12])
}

func (c *Cache) Geocode(ctx context.Context, address string) (records.Coordinates, error) {
	key := CacheKey(address)

	if coords, ok := c.get(ctx, key); ok {
		c.hits.Add(1)
		return coords, nil
	}
	c.misses.Add(1)

	// The shared lookup is detached from the caller that started it. Each
	// caller only stops waiting on its own context.
	ch := c.group.DoChan(key, func() (any, error) {
		lookupCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.timeout)
		defer cancel()

		coords, err := c.next.Geocode(lookupCtx, address)
		if err != nil {
			return nil, err
		}
		c.set(lookupCtx, key, coords)
		return coords, nil
	})

	select {
	case <-ctx.Done():
		return records.Coordinates{}, asGeocodingError(address, ctx.Err())
	case res := <-ch:
		if res.Err != nil {
			return records.Coordinates{}, res.Err
		}
		return res.Val.(records.Coordinates), nil
	}
}

// Stats returns hit and miss counters.
func (c *Cache) Stats() (hits, misses int64) {
	return c.hits.Load(), c.misses.Load()
}

func (c *Cache) get(ctx context.Context, key string) (records.Coordinates, bool) {
	if val, ok := c.l1.Load(key); ok {
		entry := val.(*cacheEntry)
		if time.Now().Before(entry.expiresAt) {
			return entry.coords, true
		}
		c.l1.Delete(key)
	}

	if c.rdb == nil {
		return records.Coordinates{}, false
	}

	data, err := c.rdb.Get(ctx, key).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.logger.Debug("geocode cache: redis get failed", zap.String("key", key), zap.Error(err))
		}
		return records.Coordinates{}, false
	}

	var coords records.Coordinates
	if err := json.Unmarshal(data, &coords); err != nil {
		c.logger.Debug("geocode cache: corrupt redis entry", zap.String("key", key), zap.Error(err))
		return records.Coordinates{}, false
	}

	c.l1.Store(key, &cacheEntry{coords: coords, expiresAt: time.Now().Add(c.ttl)})
	return coords, true
}

func (c *Cache) set(ctx context.Context, key string, coords records.Coordinates) {
	c.evictIfNeeded()
	c.l1.Store(key, &cacheEntry{coords: coords, expiresAt: time.Now().Add(c.ttl)})

	if c.rdb == nil {
		return
	}

	data, err := json.Marshal(coords)
	if err != nil {
		return
	}
	if err := c.rdb.Set(ctx, key, data, c.ttl).Err(); err != nil {
		c.logger.Debug("geocode cache: redis set failed", zap.String("key", key), zap.Error(err))
	}
}

// evictIfNeeded drops expired entries and then the entries closest to
// expiry until there is room for one more.
func (c *Cache) evictIfNeeded() {
	count := 0
	c.l1.Range(func(_, _ any) bool {
		count++
		return true
	})
	if count < c.maxEntries {
		return
	}

	now := time.Now()
	c.l1.Range(func(key, val any) bool {
		if now.After(val.(*cacheEntry).expiresAt) {
			c.l1.Delete(key)
			count--
		}
		return true
	})

	for count >= c.maxEntries {
		var oldestKey any
		var oldestAt time.Time
		c.l1.Range(func(key, val any) bool {
			entry := val.(*cacheEntry)
			if oldestKey == nil || entry.expiresAt.Before(oldestAt) {
				oldestKey = key
				oldestAt = entry.expiresAt
			}
			return true
		})
		if oldestKey == nil {
			return
		}
		c.l1.Delete(oldestKey)
		count--
	}
}
