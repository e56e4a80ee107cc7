package tokenkit

import (
	"context"
	"crypto/sha256"
	"encoding/base64"
	"time"
)

// RefreshTokenRecord is the durable view of a user's live refresh token.
type RefreshTokenRecord struct {
	UserID    string
	ExpiresAt time.Time
	IssuedAt  time.Time
}

// RefreshTokenStore holds at most one live refresh token per user. Put is the
// concurrency-sensitive operation: it must atomically supersede any prior row
// for the user, so the store can never hold two simultaneously-live tokens.
type RefreshTokenStore interface {
	// Put installs the token as the user's single live refresh token,
	// replacing any existing row in the same write.
	Put(ctx context.Context, userID string, token string, expiresAt time.Time) error
	// Get locates the record for a token, or ErrRefreshTokenNotFound.
	Get(ctx context.Context, token string) (*RefreshTokenRecord, error)
	// DeleteAllForUser removes every row for the user. Used on logout and on
	// detected compromise; deleting nothing is not an error.
	DeleteAllForUser(ctx context.Context, userID string) error
	// DeleteExpired removes rows past their natural expiry and reports how
	// many were removed.
	DeleteExpired(ctx context.Context) (int64, error)
}

// Tokens are persisted hashed, never in plaintext, so a leaked table does not
// leak usable credentials.
func hashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return base64.RawURLEncoding.EncodeToString(sum[:])
}
