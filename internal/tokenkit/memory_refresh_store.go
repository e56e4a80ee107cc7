package tokenkit

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// MemoryRefreshTokenStore is an in-memory store intended for tests and dev.
type MemoryRefreshTokenStore struct {
	mutex  sync.Mutex
	byUser map[string]*memoryRefreshRecord
	byHash map[string]string
	clock  Clock
}

type memoryRefreshRecord struct {
	UserID    string
	TokenHash string
	ExpiresAt time.Time
	IssuedAt  time.Time
}

// NewMemoryRefreshTokenStore creates an empty in-memory store.
func NewMemoryRefreshTokenStore(clock Clock) *MemoryRefreshTokenStore {
	if clock == nil {
		clock = NewSystemClock()
	}
	return &MemoryRefreshTokenStore{
		byUser: make(map[string]*memoryRefreshRecord),
		byHash: make(map[string]string),
		clock:  clock,
	}
}

// Put replaces the user's live token under one lock acquisition.
func (store *MemoryRefreshTokenStore) Put(ctx context.Context, userID string, token string, expiresAt time.Time) error {
	if token == "" {
		return fmt.Errorf("refresh_store.put.memory: %w", ErrRefreshTokenEmptyValue)
	}
	store.mutex.Lock()
	defer store.mutex.Unlock()

	if previous, ok := store.byUser[userID]; ok {
		delete(store.byHash, previous.TokenHash)
	}
	record := &memoryRefreshRecord{
		UserID:    userID,
		TokenHash: hashToken(token),
		ExpiresAt: expiresAt,
		IssuedAt:  store.clock.Now(),
	}
	store.byUser[userID] = record
	store.byHash[record.TokenHash] = userID
	return nil
}

// Get locates a live record by token value.
func (store *MemoryRefreshTokenStore) Get(ctx context.Context, token string) (*RefreshTokenRecord, error) {
	store.mutex.Lock()
	defer store.mutex.Unlock()

	userID, ok := store.byHash[hashToken(token)]
	if !ok {
		return nil, ErrRefreshTokenNotFound
	}
	record := store.byUser[userID]
	if record == nil || record.ExpiresAt.Before(store.clock.Now()) {
		return nil, ErrRefreshTokenNotFound
	}
	return &RefreshTokenRecord{
		UserID:    record.UserID,
		ExpiresAt: record.ExpiresAt,
		IssuedAt:  record.IssuedAt,
	}, nil
}

// DeleteAllForUser removes the user's row if present.
func (store *MemoryRefreshTokenStore) DeleteAllForUser(ctx context.Context, userID string) error {
	store.mutex.Lock()
	defer store.mutex.Unlock()

	if record, ok := store.byUser[userID]; ok {
		delete(store.byHash, record.TokenHash)
		delete(store.byUser, userID)
	}
	return nil
}

// DeleteExpired removes rows past their expiry.
func (store *MemoryRefreshTokenStore) DeleteExpired(ctx context.Context) (int64, error) {
	store.mutex.Lock()
	defer store.mutex.Unlock()

	now := store.clock.Now()
	var removed int64
	for userID, record := range store.byUser {
		if record.ExpiresAt.Before(now) {
			delete(store.byHash, record.TokenHash)
			delete(store.byUser, userID)
			removed++
		}
	}
	return removed, nil
}
