package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	redis "github.com/redis/go-redis/v9"

	"marketmate/backend/internal/domain"
)

const defaultNamespace = "marketmate:analysis:"

// RedisOptions configures the shared analysis cache.
type RedisOptions struct {
	Addr      string
	Password  string
	DB        int
	Namespace string
}

// RedisAnalysisCache stores analyses as JSON under a namespaced key.
type RedisAnalysisCache struct {
	rdb       *redis.Client
	namespace string
}

func NewRedisAnalysisCache(opts RedisOptions) *RedisAnalysisCache {
	ns := opts.Namespace
	if ns == "" {
		ns = defaultNamespace
	}
	return &RedisAnalysisCache{
		rdb: redis.NewClient(&redis.Options{
			Addr:         opts.Addr,
			Password:     opts.Password,
			DB:           opts.DB,
			DialTimeout:  2 * time.Second,
			ReadTimeout:  time.Second,
			WriteTimeout: time.Second,
		}),
		namespace: ns,
	}
}

// key places k under the cache namespace; callers pass bare keys.
func (c *RedisAnalysisCache) key(k string) string {
	return c.namespace + k
}

func (c *RedisAnalysisCache) Ping(ctx context.Context) error {
	if err := c.rdb.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping: %w", err)
	}
	return nil
}

func (c *RedisAnalysisCache) Close() error {
	return c.rdb.Close()
}

func (c *RedisAnalysisCache) Get(ctx context.Context, key string) (*domain.Analysis, bool, error) {
	raw, err := c.rdb.Get(ctx, c.key(key)).Bytes()
	switch {
	case errors.Is(err, redis.Nil):
		return nil, false, nil
	case err != nil:
		return nil, false, err
	}

	analysis := new(domain.Analysis)
	if err := json.Unmarshal(raw, analysis); err != nil {
		// A corrupt entry is treated as a miss and overwritten on the next Set.
		return nil, false, fmt.Errorf("decode cached analysis: %w", err)
	}
	return analysis, true, nil
}

func (c *RedisAnalysisCache) Set(ctx context.Context, key string, value *domain.Analysis, ttl time.Duration) error {
	if value == nil {
		return nil
	}
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return c.rdb.Set(ctx, c.key(key), raw, ttl).Err()
}
