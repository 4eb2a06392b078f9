package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Refill is continuous: tokens accrue in proportion to elapsed milliseconds.
var tokenBucket = redis.NewScript(`
local key = KEYS[1]
local now_ms = tonumber(ARGV[1])
local capacity = tonumber(ARGV[2])
local per_ms = tonumber(ARGV[3])
local ttl_seconds = tonumber(ARGV[4])

local state = redis.call('HMGET', key, 'tokens', 'last_ms')
local tokens = tonumber(state[1])
local last = tonumber(state[2])
if tokens == nil or last == nil then
	tokens = capacity
	last = now_ms
end

tokens = math.min(capacity, tokens + math.max(0, now_ms - last) * per_ms)

local allowed = 0
local retry_ms = 0
if tokens >= 1 then
	allowed = 1
	tokens = tokens - 1
else
	retry_ms = math.ceil((1 - tokens) / per_ms)
end

redis.call('HSET', key, 'tokens', tostring(tokens), 'last_ms', now_ms)
redis.call('EXPIRE', key, ttl_seconds)
return { allowed, retry_ms }
`)

// RedisStore shares buckets between every instance pointed at the same
// Redis.
type RedisStore struct {
	client   redis.Scripter
	capacity int
	perMs    float64
	ttl      time.Duration
	now      func() time.Time
}

func NewRedisStore(client redis.Scripter, requestsPerSecond float64, burst int) *RedisStore {
	if burst <= 0 {
		burst = 1
	}
	return &RedisStore{
		client:   client,
		capacity: burst,
		perMs:    requestsPerSecond / 1000,
		ttl:      10 * time.Minute,
		now:      time.Now,
	}
}

// DialRedis parses a redis:// URL and pings the server.
func DialRedis(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return client, nil
}

func (s *RedisStore) Allow(ctx context.Context, key string) (bool, time.Duration, error) {
	vals, err := tokenBucket.Run(ctx, s.client, []string{key},
		s.now().UnixMilli(), s.capacity, s.perMs, int64(s.ttl/time.Second),
	).Int64Slice()
	if err != nil {
		return false, 0, fmt.Errorf("run token bucket: %w", err)
	}
	if len(vals) != 2 {
		return false, 0, fmt.Errorf("run token bucket: unexpected result %v", vals)
	}
	return vals[0] == 1, time.Duration(vals[1]) * time.Millisecond, nil
}
