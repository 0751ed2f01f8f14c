// Package ratelimit enforces per-client request budgets for the public
// endpoints. Counters live in Redis so the budget holds across gateway
// instances behind one load balancer.
package ratelimit

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/redis/go-redis/v9"
)

// Lua script for atomic limit check. Checks before incrementing so a
// denied request never consumes budget; avoids the GET -> check -> INCR
// race between instances.
const limitLuaScript = `
local key = KEYS[1]
local limit = tonumber(ARGV[1])
local ttl = tonumber(ARGV[2])

local current = tonumber(redis.call("GET", key) or "0")

if current + 1 > limit then
    return {0, current}  -- denied
end

local newVal = redis.call("INCR", key)
if newVal == 1 then
    redis.call("EXPIRE", key, ttl)
end

return {1, newVal}  -- allowed
`

// Limiter checks per-minute budgets keyed by scope and client address.
// A nil *Limiter allows everything, so callers never need a guard.
type Limiter struct {
	rdb    *redis.Client
	script *redis.Script
}

// NewLimiter creates a limiter with a pre-compiled Lua script.
func NewLimiter(rdb *redis.Client) *Limiter {
	if rdb == nil {
		return nil
	}
	return &Limiter{
		rdb:    rdb,
		script: redis.NewScript(limitLuaScript),
	}
}

// Allow consumes one unit of the per-minute budget for a client inside
// a scope ("redirect", "events"). Returns whether the request may
// proceed and, when denied, how long until the minute bucket rolls
// over.
//
// Fail-open: a Redis error admits the request. The gateway serving
// redirects matters more than the budget holding exactly.
func (l *Limiter) Allow(ctx context.Context, scope, clientIP string, perMinute int) (bool, time.Duration) {
	if l == nil || perMinute <= 0 {
		return true, 0
	}

	now := time.Now()
	key := fmt.Sprintf("gateway:ratelimit:%s:%s:%d", scope, clientIP, now.Unix()/60)

	result, err := l.script.Run(ctx, l.rdb,
		[]string{key},
		perMinute,
		120, // 2 minute TTL
	).Slice()
	if err != nil {
		log.Printf("[RateLimit] check error: %v", err)
		return true, 0
	}

	allowed, _ := result[0].(int64)
	if allowed == 0 {
		return false, time.Duration(60-now.Second()) * time.Second
	}
	return true, 0
}
