package events

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

const DefaultDedupeTTL = 7 * 24 * time.Hour

// RedisDeduper claims event keys with SETNX. The payload stays with the
// caller; only the key is remembered.
type RedisDeduper struct {
	rdb    *redis.Client
	prefix string
	ttl    time.Duration
}

func NewRedisDeduper(rdb *redis.Client, prefix string, ttl time.Duration) *RedisDeduper {
	if ttl <= 0 {
		ttl = DefaultDedupeTTL
	}
	if prefix == "" {
		prefix = "tener:webhook"
	}
	return &RedisDeduper{rdb: rdb, prefix: prefix, ttl: ttl}
}

// RecordWebhookEvent reports true the first time key is seen.
func (d *RedisDeduper) RecordWebhookEvent(ctx context.Context, key, source string, _ map[string]any) (bool, error) {
	return d.rdb.SetNX(ctx, d.prefix+":"+source+":"+key, time.Now().UTC().Format(time.RFC3339), d.ttl).Result()
}
