package user

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

const resolveUserScript = `
local id = redis.call("HGET", KEYS[1], ARGV[1])
if id then
  return id
end
id = redis.call("INCR", KEYS[2])
redis.call("HSET", KEYS[1], ARGV[1], id)
return tostring(id)
`

var resolveUserLua = redis.NewScript(resolveUserScript)

// RedisStore assigns local IDs from a Redis sequence.
type RedisStore struct {
	redis  redis.UniversalClient
	idsKey string
	seqKey string
}

// NewRedisStore creates a [RedisStore]. Both keys share prefix, which
// defaults to "{lhu}" so they hash to one cluster slot.
func NewRedisStore(redisClient redis.UniversalClient, prefix string) *RedisStore {
	if prefix == "" {
		prefix = "{lhu}"
	}
	return &RedisStore{
		redis:  redisClient,
		idsKey: prefix + ":ids",
		seqKey: prefix + ":seq",
	}
}

// ResolveOrCreateLocalUser returns the local ID for externalID.
//
//	Performance: 1 Redis round-trip (Lua).
func (s *RedisStore) ResolveOrCreateLocalUser(ctx context.Context, externalID string) (string, error) {
	if !validExternalID(externalID) {
		return "", ErrInvalidExternalID
	}
	id, err := resolveUserLua.Run(ctx, s.redis, []string{s.idsKey, s.seqKey}, externalID).Text()
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return id, nil
}
