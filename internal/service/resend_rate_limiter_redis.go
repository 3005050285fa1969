package service

import (
	"context"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// INCR y EXPIRE corren como script para que el chequeo sea atómico frente a
// reenvíos concurrentes del mismo usuario.
const redisResendAllowScript = `
local current = redis.call("INCR", KEYS[1])
if current == 1 then
  redis.call("EXPIRE", KEYS[1], ARGV[1])
end
return current
`

type redisResendRateLimiter struct {
	client redisEvaler
	window time.Duration
	max    int
	prefix string
}

type redisEvaler interface {
	Eval(ctx context.Context, script string, keys []string, args ...interface{}) *redis.Cmd
}

// NewRedisResendRateLimiter crea el limiter respaldado por redis, con claves
// bajo el namespace verification:resend:.
func NewRedisResendRateLimiter(client *redis.Client, window time.Duration, max int) ResendRateLimiter {
	if client == nil {
		return nil
	}
	if window <= 0 {
		window = time.Hour
	}
	if max <= 0 {
		max = 1
	}
	return &redisResendRateLimiter{
		client: client,
		window: window,
		max:    max,
		prefix: "verification:resend:",
	}
}

func (l *redisResendRateLimiter) Allow(userID string) bool {
	if l == nil || l.client == nil {
		return true
	}
	key := strings.TrimSpace(userID)
	if key == "" {
		return false
	}
	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()

	redisKey := l.prefix + key
	seconds := int(l.window.Seconds())
	if seconds <= 0 {
		seconds = 3600
	}
	count, err := l.client.Eval(ctx, redisResendAllowScript, []string{redisKey}, seconds).Int()
	if err != nil {
		return true
	}
	return count <= l.max
}
