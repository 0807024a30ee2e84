// Package ratelimit holds fixed-window counters for outbound sends.
package ratelimit

import (
	"context"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

const script = `
local current = redis.call("INCR", KEYS[1])
if current == 1 then
  redis.call("PEXPIRE", KEYS[1], ARGV[1])
end
if current > tonumber(ARGV[2]) then
  return 0
end
return 1
`

// Redis shares the window across processes.
type Redis struct {
	client redis.Scripter
	prefix string
	script *redis.Script
}

func NewRedis(client redis.Scripter, prefix string) *Redis {
	return &Redis{client: client, prefix: prefix, script: redis.NewScript(script)}
}

func (l *Redis) Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	if limit <= 0 || window <= 0 || key == "" {
		return true, nil
	}
	redisKey := key
	if l.prefix != "" {
		redisKey = l.prefix + ":" + key
	}
	ttl := window.Milliseconds()
	if ttl <= 0 {
		ttl = 1
	}

	allowed, err := l.script.Run(ctx, l.client, []string{redisKey}, ttl, limit).Int64()
	if err != nil {
		return false, err
	}
	return allowed == 1, nil
}

// Memory is a single-process limiter.
type Memory struct {
	mu      sync.Mutex
	buckets map[string]*bucket
	now     func() time.Time
}

type bucket struct {
	count     int
	windowEnd time.Time
}

func NewMemory() *Memory {
	return &Memory{buckets: make(map[string]*bucket), now: time.Now}
}

func (m *Memory) Allow(_ context.Context, key string, limit int, window time.Duration) (bool, error) {
	if limit <= 0 || window <= 0 || key == "" {
		return true, nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	b, ok := m.buckets[key]
	if !ok || now.After(b.windowEnd) {
		m.buckets[key] = &bucket{count: 1, windowEnd: now.Add(window)}
		return true, nil
	}
	if b.count >= limit {
		return false, nil
	}
	b.count++
	return true, nil
}
