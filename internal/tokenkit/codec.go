package tokenkit

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// TokenClaims are embedded in every access and refresh token.
type TokenClaims struct {
	UserID string `json:"user_id"`
	jwt.RegisteredClaims
}

// TokenCodec signs and verifies HS256 tokens. It is stateless: validity is a
// pure function of the signing key and the clock. Revocation is not its
// concern; the blacklist is consulted separately.
type TokenCodec struct {
	signingKey []byte
	issuer     string
	clock      Clock
}

// NewTokenCodec constructs a codec. The signing key must be non-empty.
func NewTokenCodec(signingKey []byte, issuer string, clock Clock) (*TokenCodec, error) {
	if len(signingKey) == 0 {
		return nil, errors.New("token_codec.missing_signing_key")
	}
	if strings.TrimSpace(issuer) == "" {
		return nil, errors.New("token_codec.missing_issuer")
	}
	if clock == nil {
		clock = NewSystemClock()
	}
	return &TokenCodec{signingKey: signingKey, issuer: issuer, clock: clock}, nil
}

// Issue builds and signs a token for the subject with the given lifetime.
func (codec *TokenCodec) Issue(subject string, ttl time.Duration) (string, time.Time, error) {
	if strings.TrimSpace(subject) == "" {
		return "", time.Time{}, fmt.Errorf("token_codec.issue: subject must be non-empty")
	}
	issuedAt := codec.clock.Now().Truncate(time.Millisecond)
	expiresAt := issuedAt.Add(ttl)
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, TokenClaims{
		UserID: subject,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    codec.issuer,
			Subject:   subject,
			ID:        uuid.NewString(),
			IssuedAt:  jwt.NewNumericDate(issuedAt),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	})
	signed, signErr := token.SignedString(codec.signingKey)
	if signErr != nil {
		return "", time.Time{}, fmt.Errorf("token_codec.issue: %w", signErr)
	}
	return signed, expiresAt, nil
}

// Decode verifies the signature and expiry and returns the claims. It never
// consults the blacklist.
func (codec *TokenCodec) Decode(signedToken string) (*TokenClaims, error) {
	claims := &TokenClaims{}
	parsedToken, parseErr := jwt.ParseWithClaims(signedToken, claims, codec.keyFunc,
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(codec.clock.Now),
	)
	if parseErr != nil {
		return nil, codec.classifyParseError(parseErr)
	}
	if parsedToken == nil || !parsedToken.Valid || claims.Issuer != codec.issuer {
		return nil, ErrTokenBadSignature
	}
	if claims.Subject == "" {
		return nil, ErrTokenMalformed
	}
	return claims, nil
}

// RemainingTTL returns the time until the token's natural expiry, clamped to
// zero. The signature must still verify; the expiry claim itself is not
// enforced here so that already-expired tokens report zero rather than error.
func (codec *TokenCodec) RemainingTTL(signedToken string) time.Duration {
	claims := &TokenClaims{}
	parsedToken, parseErr := jwt.ParseWithClaims(signedToken, claims, codec.keyFunc,
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithoutClaimsValidation(),
	)
	if parseErr != nil || parsedToken == nil || claims.ExpiresAt == nil {
		return 0
	}
	remaining := claims.ExpiresAt.Time.Sub(codec.clock.Now())
	if remaining < 0 {
		return 0
	}
	return remaining
}

func (codec *TokenCodec) keyFunc(parsed *jwt.Token) (interface{}, error) {
	return codec.signingKey, nil
}

func (codec *TokenCodec) classifyParseError(parseErr error) error {
	switch {
	case errors.Is(parseErr, jwt.ErrTokenExpired):
		return ErrTokenExpired
	case errors.Is(parseErr, jwt.ErrTokenSignatureInvalid):
		return ErrTokenBadSignature
	default:
		return ErrTokenMalformed
	}
}
