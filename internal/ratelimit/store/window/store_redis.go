package window

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"lifeline/internal/ratelimit/models"
)

const redisKeyPrefix = "lifeline:"

// allowScript runs the fixed-window check server side so concurrent callers
// across replicas see one atomic check-and-increment. A denial does not touch
// the counter or its TTL.
//
// KEYS[1] counter key, ARGV[1] max requests, ARGV[2] window in ms.
// Returns {allowed, count, pttl}.
var allowScript = redis.NewScript(`
local current = tonumber(redis.call('GET', KEYS[1]) or '0')
local max = tonumber(ARGV[1])
if current >= max then
  return {0, current, redis.call('PTTL', KEYS[1])}
end
local count = redis.call('INCR', KEYS[1])
if count == 1 then
  redis.call('PEXPIRE', KEYS[1], ARGV[2])
end
local ttl = redis.call('PTTL', KEYS[1])
if ttl < 0 then
  redis.call('PEXPIRE', KEYS[1], ARGV[2])
  ttl = tonumber(ARGV[2])
end
return {1, count, ttl}
`)

// RedisStore implements ports.WindowStore on Redis. Expiry is delegated to
// key TTLs.
type RedisStore struct {
	client redis.UniversalClient
}

func NewRedisStore(client redis.UniversalClient) *RedisStore {
	return &RedisStore{client: client}
}

func (s *RedisStore) Allow(ctx context.Context, key string, limit models.Limit, now time.Time) (*models.Result, error) {
	if limit.MaxRequests <= 0 {
		return &models.Result{Allowed: false, Limit: limit.MaxRequests, ResetAt: now.Add(limit.Window)}, nil
	}
	res, err := allowScript.Run(ctx, s.client,
		[]string{redisKeyPrefix + key},
		limit.MaxRequests,
		limit.Window.Milliseconds(),
	).Int64Slice()
	if err != nil {
		return nil, fmt.Errorf("run window script: %w", err)
	}
	if len(res) != 3 {
		return nil, fmt.Errorf("unexpected window script reply: %v", res)
	}

	allowed, count, ttl := res[0] == 1, int(res[1]), res[2]
	if ttl < 0 {
		ttl = limit.Window.Milliseconds()
	}
	result := &models.Result{
		Allowed: allowed,
		Limit:   limit.MaxRequests,
		ResetAt: now.Add(time.Duration(ttl) * time.Millisecond),
	}
	if allowed {
		result.Remaining = limit.MaxRequests - count
	}
	return result, nil
}

func (s *RedisStore) Reset(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, redisKeyPrefix+key).Err(); err != nil {
		return fmt.Errorf("delete window key: %w", err)
	}
	return nil
}

// Sweep is a no-op; Redis evicts expired counters itself.
func (s *RedisStore) Sweep(context.Context, time.Time) (int, error) {
	return 0, nil
}
