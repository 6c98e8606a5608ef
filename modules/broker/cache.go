package broker

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"sync/atomic"
	"time"

	domain "github.com/example/chat-broker/domain/chat"
	"github.com/redis/go-redis/v9"
)

// PageCache stores history pages. Page keys carry the room generation, so
// advancing it retires every page of the room, including pages written
// later by loads that started before the advance.
type PageCache interface {
	Get(ctx context.Context, key string) ([]domain.HistoryEntry, bool, error)
	Set(ctx context.Context, key string, page []domain.HistoryEntry) error
	// Generation returns the current page generation of a room.
	Generation(ctx context.Context, roomID string) (int64, error)
	// InvalidateRoom advances the generation of a room.
	InvalidateRoom(ctx context.Context, roomID string) error
}

// pageKey identifies one history page of a room generation.
func pageKey(roomID string, gen int64, dir domain.Direction, ref time.Time, chunkSize int) string {
	return roomID + ":" + strconv.FormatInt(gen, 10) + ":" + string(dir) + ":" +
		strconv.FormatInt(ref.Unix(), 10) + ":" + strconv.Itoa(chunkSize)
}

// CacheStats tracks cache statistics.
type CacheStats struct {
	Hits          uint64 `json:"hits"`
	Misses        uint64 `json:"misses"`
	Sets          uint64 `json:"sets"`
	Invalidations uint64 `json:"invalidations"`
	Errors        uint64 `json:"errors"`
}

// RedisPageCache is a PageCache backed by Redis.
type RedisPageCache struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
	stats  CacheStats
}

// NewRedisPageCache creates a Redis page cache. Keys are namespaced by prefix.
func NewRedisPageCache(client *redis.Client, prefix string, ttl time.Duration) *RedisPageCache {
	return &RedisPageCache{
		client: client,
		prefix: prefix,
		ttl:    ttl,
	}
}

// Get returns the cached page and whether it was found.
func (c *RedisPageCache) Get(ctx context.Context, key string) ([]domain.HistoryEntry, bool, error) {
	data, err := c.client.Get(ctx, c.prefix+key).Bytes()
	if err != nil {
		if err == redis.Nil {
			atomic.AddUint64(&c.stats.Misses, 1)
			return nil, false, nil
		}
		atomic.AddUint64(&c.stats.Errors, 1)
		return nil, false, fmt.Errorf("cache get error: %w", err)
	}

	var page []domain.HistoryEntry
	if err := json.Unmarshal(data, &page); err != nil {
		atomic.AddUint64(&c.stats.Errors, 1)
		return nil, false, fmt.Errorf("cache unmarshal error: %w", err)
	}
	atomic.AddUint64(&c.stats.Hits, 1)
	return page, true, nil
}

// Set stores a page with the cache TTL.
func (c *RedisPageCache) Set(ctx context.Context, key string, page []domain.HistoryEntry) error {
	data, err := json.Marshal(page)
	if err != nil {
		atomic.AddUint64(&c.stats.Errors, 1)
		return fmt.Errorf("cache marshal error: %w", err)
	}
	if err := c.client.Set(ctx, c.prefix+key, data, c.ttl).Err(); err != nil {
		atomic.AddUint64(&c.stats.Errors, 1)
		return fmt.Errorf("cache set error: %w", err)
	}
	atomic.AddUint64(&c.stats.Sets, 1)
	return nil
}

func (c *RedisPageCache) generationKey(roomID string) string {
	return c.prefix + "gen:" + roomID
}

// Generation returns the page generation of a room, zero when unset.
func (c *RedisPageCache) Generation(ctx context.Context, roomID string) (int64, error) {
	gen, err := c.client.Get(ctx, c.generationKey(roomID)).Int64()
	if err != nil {
		if err == redis.Nil {
			return 0, nil
		}
		atomic.AddUint64(&c.stats.Errors, 1)
		return 0, fmt.Errorf("cache generation error: %w", err)
	}
	return gen, nil
}

// InvalidateRoom advances the page generation of a room, then removes the
// pages already cached for it. Pages of older generations that are still
// being written are never read again and expire with the TTL.
func (c *RedisPageCache) InvalidateRoom(ctx context.Context, roomID string) error {
	if err := c.client.Incr(ctx, c.generationKey(roomID)).Err(); err != nil {
		atomic.AddUint64(&c.stats.Errors, 1)
		return fmt.Errorf("cache incr error: %w", err)
	}
	atomic.AddUint64(&c.stats.Invalidations, 1)

	pattern := c.prefix + roomID + ":*"

	var cursor uint64
	for {
		keys, next, err := c.client.Scan(ctx, cursor, pattern, 100).Result()
		if err != nil {
			atomic.AddUint64(&c.stats.Errors, 1)
			return fmt.Errorf("cache scan error: %w", err)
		}
		if len(keys) > 0 {
			if err := c.client.Del(ctx, keys...).Err(); err != nil {
				atomic.AddUint64(&c.stats.Errors, 1)
				return fmt.Errorf("cache delete error: %w", err)
			}
		}
		cursor = next
		if cursor == 0 {
			break
		}
	}
	return nil
}

// Stats returns a snapshot of the cache statistics.
func (c *RedisPageCache) Stats() CacheStats {
	return CacheStats{
		Hits:          atomic.LoadUint64(&c.stats.Hits),
		Misses:        atomic.LoadUint64(&c.stats.Misses),
		Sets:          atomic.LoadUint64(&c.stats.Sets),
		Invalidations: atomic.LoadUint64(&c.stats.Invalidations),
		Errors:        atomic.LoadUint64(&c.stats.Errors),
	}
}

// Ping checks if the Redis connection is healthy.
func (c *RedisPageCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

// Close closes the Redis client connection.
func (c *RedisPageCache) Close() error {
	return c.client.Close()
}

// noopCache is used when Redis is not configured.
type noopCache struct{}

func (noopCache) Get(context.Context, string) ([]domain.HistoryEntry, bool, error) {
	return nil, false, nil
}

func (noopCache) Set(context.Context, string, []domain.HistoryEntry) error { return nil }

func (noopCache) Generation(context.Context, string) (int64, error) { return 0, nil }

func (noopCache) InvalidateRoom(context.Context, string) error { return nil }
