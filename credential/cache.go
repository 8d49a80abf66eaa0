package credential

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultKey is the Redis key used when none is configured.
const DefaultKey = "weixin:token"

// Cache stores the shared credential in one Redis string key.
type Cache struct {
	redis redis.UniversalClient
	key   string
}

// NewCache creates a credential [Cache] on key.
func NewCache(redisClient redis.UniversalClient, key string) *Cache {
	if key == "" {
		key = DefaultKey
	}
	return &Cache{
		redis: redisClient,
		key:   key,
	}
}

// Key returns the Redis key holding the credential.
func (c *Cache) Key() string { return c.key }

// Get returns the cached value. ok is false when nothing is cached.
func (c *Cache) Get(ctx context.Context) (value string, ok bool, err error) {
	value, err = c.redis.Get(ctx, c.key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return value, true, nil
}

// Put replaces value and TTL in one write.
func (c *Cache) Put(ctx context.Context, cred Credential) error {
	if cred.TTL <= 0 {
		return ErrInvalidCredentialTTL
	}
	if err := c.redis.Set(ctx, c.key, cred.Value, cred.TTL).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return nil
}

// RemainingTTL reports how long the cached value stays valid. ok is false
// when the key is missing. A key without expiry reports ok with TTL 0 so
// callers treat it as due for refresh.
func (c *Cache) RemainingTTL(ctx context.Context) (ttl time.Duration, ok bool, err error) {
	ttl, err = c.redis.PTTL(ctx, c.key).Result()
	if err != nil {
		return 0, false, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	switch {
	case ttl == -2:
		return 0, false, nil
	case ttl < 0:
		return 0, true, nil
	default:
		return ttl, true, nil
	}
}
