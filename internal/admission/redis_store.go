package admission

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// quotaScript checks and consumes one quota slot in a single round trip.
// KEYS[1] = quota key, ARGV[1] = limit, ARGV[2] = window millis.
// Returns {used, allowed, pttl}.
var quotaScript = redis.NewScript(`
local used = tonumber(redis.call('GET', KEYS[1]) or '0')
local limit = tonumber(ARGV[1])
if used >= limit then
  return {used, 0, redis.call('PTTL', KEYS[1])}
end
used = redis.call('INCR', KEYS[1])
if used == 1 then
  redis.call('PEXPIRE', KEYS[1], ARGV[2])
end
return {used, 1, redis.call('PTTL', KEYS[1])}
`)

// RedisStore keeps cooldown and quota state in the shared Redis pool, the
// same place the job records live. Window expiry is Redis key expiry, so
// `used` resets to zero atomically at the window boundary.
type RedisStore struct {
	redis *redis.Client
}

func NewRedisStore(redisClient *redis.Client) *RedisStore {
	return &RedisStore{redis: redisClient}
}

func (s *RedisStore) CooldownRemaining(ctx context.Context, userID string) (time.Duration, error) {
	ttl, err := s.redis.PTTL(ctx, cooldownKey(userID)).Result()
	if err != nil {
		return 0, err
	}
	// PTTL returns negative durations for missing keys and keys without
	// expiry; neither counts as an active cooldown.
	if ttl <= 0 {
		return 0, nil
	}
	return ttl, nil
}

func (s *RedisStore) SetCooldown(ctx context.Context, userID string, d time.Duration) error {
	return s.redis.Set(ctx, cooldownKey(userID), 1, d).Err()
}

func (s *RedisStore) IncrementWithinLimit(ctx context.Context, userID string, limit int, window time.Duration) (int, bool, time.Duration, error) {
	res, err := quotaScript.Run(ctx, s.redis, []string{quotaKey(userID)}, limit, window.Milliseconds()).Slice()
	if err != nil {
		return 0, false, 0, err
	}
	if len(res) != 3 {
		return 0, false, 0, fmt.Errorf("unexpected quota script reply: %v", res)
	}
	used := int(res[0].(int64))
	allowed := res[1].(int64) == 1
	resetsIn := time.Duration(res[2].(int64)) * time.Millisecond
	if resetsIn < 0 {
		resetsIn = window
	}
	return used, allowed, resetsIn, nil
}

func (s *RedisStore) QuotaUsage(ctx context.Context, userID string) (int, time.Duration, error) {
	pipe := s.redis.Pipeline()
	getCmd := pipe.Get(ctx, quotaKey(userID))
	ttlCmd := pipe.PTTL(ctx, quotaKey(userID))
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return 0, 0, err
	}
	used, err := getCmd.Int()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, 0, nil
		}
		return 0, 0, err
	}
	ttl, _ := ttlCmd.Result()
	if ttl < 0 {
		ttl = 0
	}
	return used, ttl, nil
}

func cooldownKey(userID string) string {
	return "admission:cooldown:" + userID
}

func quotaKey(userID string) string {
	return "admission:quota:" + userID
}
