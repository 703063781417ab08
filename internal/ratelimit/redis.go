package ratelimit

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// allowScript checks and increments in one round trip so concurrent
// requests cannot both take the last slot.
var allowScript = redis.NewScript(`
local current = tonumber(redis.call('GET', KEYS[1]) or '0')
if current >= tonumber(ARGV[1]) then
	return 0
end
local n = redis.call('INCR', KEYS[1])
if n == 1 then
	redis.call('PEXPIRE', KEYS[1], ARGV[2])
end
return 1
`)

type RedisLimiter struct {
	client *redis.Client
	opts   Options
}

func NewRedisLimiter(client *redis.Client, opts Options) *RedisLimiter {
	return &RedisLimiter{client: client, opts: opts.withDefaults()}
}

func (l *RedisLimiter) Allow(ctx context.Context, key string) (bool, error) {
	res, err := allowScript.Run(ctx, l.client, []string{"ratelimit:" + key},
		l.opts.Limit, l.opts.Window.Milliseconds()).Int()
	if err != nil {
		return false, fmt.Errorf("check rate limit: %w", err)
	}
	return res == 1, nil
}
