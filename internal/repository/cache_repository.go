package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	appErrors "github.com/noah-isme/studio-scheduler/pkg/errors"
)

const purgeScanCount = 200

// CacheRepository keeps JSON snapshots in Redis under a fixed key prefix.
// A repository without a client misses every read and drops every write.
type CacheRepository struct {
	client *redis.Client
	prefix string
}

// NewCacheRepository constructs a cache repository; prefix namespaces every key it touches.
func NewCacheRepository(client *redis.Client, prefix string) *CacheRepository {
	return &CacheRepository{client: client, prefix: prefix}
}

func (r *CacheRepository) key(k string) string {
	return r.prefix + k
}

// Load decodes the snapshot stored under key into dest.
func (r *CacheRepository) Load(ctx context.Context, key string, dest interface{}) error {
	if r.client == nil {
		return appErrors.ErrCacheMiss
	}
	raw, err := r.client.Get(ctx, r.key(key)).Bytes()
	switch {
	case errors.Is(err, redis.Nil):
		return appErrors.ErrCacheMiss
	case err != nil:
		return fmt.Errorf("load %s: %w", key, err)
	}
	if err := json.Unmarshal(raw, dest); err != nil {
		return fmt.Errorf("decode %s: %w", key, err)
	}
	return nil
}

// Store encodes value and writes it under key with ttl.
func (r *CacheRepository) Store(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	if r.client == nil {
		return nil
	}
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	if err := r.client.Set(ctx, r.key(key), raw, ttl).Err(); err != nil {
		return fmt.Errorf("store %s: %w", key, err)
	}
	return nil
}

// Purge unlinks every key matching pattern one SCAN page at a time and reports how many went.
func (r *CacheRepository) Purge(ctx context.Context, pattern string) (int, error) {
	if r.client == nil {
		return 0, nil
	}
	var (
		cursor  uint64
		removed int64
	)
	for {
		keys, next, err := r.client.Scan(ctx, cursor, r.key(pattern), purgeScanCount).Result()
		if err != nil {
			return int(removed), fmt.Errorf("scan %s: %w", pattern, err)
		}
		if len(keys) > 0 {
			n, err := r.client.Unlink(ctx, keys...).Result()
			if err != nil {
				return int(removed), fmt.Errorf("unlink %d keys: %w", len(keys), err)
			}
			removed += n
		}
		if next == 0 {
			return int(removed), nil
		}
		cursor = next
	}
}

// Close releases the Redis connection pool.
func (r *CacheRepository) Close() error {
	if r.client == nil {
		return nil
	}
	return r.client.Close()
}
