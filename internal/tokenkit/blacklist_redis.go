package tokenkit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisBlacklist stores revoked tokens in Redis with per-entry TTLs. Redis
// evicts entries at expiry on its own, so the store is append-mostly and
// needs no sweeping.
type RedisBlacklist struct {
	client    *redis.Client
	keyPrefix string
}

// NewRedisBlacklist constructs a Redis-backed BlacklistStore. The prefix
// namespaces blacklist keys away from other tenants of the same instance.
func NewRedisBlacklist(client *redis.Client, keyPrefix string) *RedisBlacklist {
	return &RedisBlacklist{client: client, keyPrefix: keyPrefix}
}

// Revoke writes the entry with the supplied TTL. No-op when ttl <= 0.
func (store *RedisBlacklist) Revoke(ctx context.Context, token string, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	if err := store.client.Set(ctx, store.buildKey(token), "1", ttl).Err(); err != nil {
		return fmt.Errorf("blacklist.revoke: %w", err)
	}
	return nil
}

// IsRevoked reports whether the token has a live blacklist entry. Store
// errors propagate so validation callers can fail closed.
func (store *RedisBlacklist) IsRevoked(ctx context.Context, token string) (bool, error) {
	matched, err := store.client.Exists(ctx, store.buildKey(token)).Result()
	if err != nil {
		return false, fmt.Errorf("blacklist.lookup: %w", err)
	}
	return matched > 0, nil
}

func (store *RedisBlacklist) buildKey(token string) string {
	if store.keyPrefix == "" {
		return token
	}
	return store.keyPrefix + token
}
