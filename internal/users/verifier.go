package users

import (
	"context"
	"errors"

	"golang.org/x/crypto/bcrypt"
)

// ErrCredentialMismatch is returned for every verification failure. Unknown
// user, wrong secret, and deactivated account are deliberately
// indistinguishable to the caller.
var ErrCredentialMismatch = errors.New("credential_verifier.mismatch")

// BcryptVerifier implements the token service's CredentialVerifier over the
// user store and bcrypt password hashes.
type BcryptVerifier struct {
	users *Store
}

// NewBcryptVerifier wraps the user store.
func NewBcryptVerifier(users *Store) *BcryptVerifier {
	return &BcryptVerifier{users: users}
}

// Verify resolves the identifier to an active user and compares the secret
// against the stored hash.
func (verifier *BcryptVerifier) Verify(ctx context.Context, identifier string, secret string) (string, error) {
	record, findErr := verifier.users.FindByEmail(ctx, identifier)
	if findErr != nil {
		// Burn a comparison anyway so unknown users cost the same as known
		// ones and the lookup cannot be timed.
		_ = bcrypt.CompareHashAndPassword(dummyHash, []byte(secret))
		return "", ErrCredentialMismatch
	}
	if !record.Active {
		return "", ErrCredentialMismatch
	}
	if compareErr := bcrypt.CompareHashAndPassword([]byte(record.PasswordHash), []byte(secret)); compareErr != nil {
		return "", ErrCredentialMismatch
	}
	return record.ID, nil
}

// HashPassword derives a bcrypt hash for storage at account creation.
func HashPassword(secret string) (string, error) {
	if secret == "" {
		return "", errEmptySecret
	}
	hashed, hashErr := bcrypt.GenerateFromPassword([]byte(secret), bcrypt.DefaultCost)
	if hashErr != nil {
		return "", hashErr
	}
	return string(hashed), nil
}

// A valid bcrypt hash of an unguessable value, used only to equalize timing.
var dummyHash = []byte("$2a$10$N9qo8uLOickgx2ZMRZoMyeIjZAgcfl7p92ldGxad68LJZdL17lhWy")
