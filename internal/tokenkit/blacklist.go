package tokenkit

import (
	"context"
	"sync"
	"time"
)

// BlacklistStore records tokens that must be rejected until their natural
// expiry. Entries self-expire; the TTL supplied at insertion equals the
// token's remaining lifetime, never longer.
type BlacklistStore interface {
	// Revoke inserts or refreshes the entry. Idempotent; a no-op when ttl <= 0
	// because an expired token is already universally rejected.
	Revoke(ctx context.Context, token string, ttl time.Duration) error
	// IsRevoked reports whether the token is currently blacklisted. Callers on
	// security-sensitive paths must treat a store error as revoked.
	IsRevoked(ctx context.Context, token string) (bool, error)
}

type memoryBlacklist struct {
	mutex   sync.Mutex
	entries map[string]time.Time
	clock   Clock
}

// NewMemoryBlacklist constructs an in-memory BlacklistStore for dev and tests.
func NewMemoryBlacklist(clock Clock) BlacklistStore {
	if clock == nil {
		clock = NewSystemClock()
	}
	return &memoryBlacklist{
		entries: make(map[string]time.Time),
		clock:   clock,
	}
}

func (store *memoryBlacklist) Revoke(ctx context.Context, token string, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	store.mutex.Lock()
	defer store.mutex.Unlock()
	store.purgeExpiredLocked()
	store.entries[token] = store.clock.Now().Add(ttl)
	return nil
}

func (store *memoryBlacklist) IsRevoked(ctx context.Context, token string) (bool, error) {
	store.mutex.Lock()
	defer store.mutex.Unlock()
	store.purgeExpiredLocked()
	_, revoked := store.entries[token]
	return revoked, nil
}

func (store *memoryBlacklist) purgeExpiredLocked() {
	if len(store.entries) == 0 {
		return
	}
	now := store.clock.Now()
	for token, expiry := range store.entries {
		if now.After(expiry) || now.Equal(expiry) {
			delete(store.entries, token)
		}
	}
}
