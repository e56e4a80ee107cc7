package tokenkit

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// CredentialVerifier checks a login identifier/secret pair and resolves the
// owning user. Implementations live outside this package; the service only
// consumes the identity.
type CredentialVerifier interface {
	Verify(ctx context.Context, identifier string, secret string) (userID string, err error)
}

// TokenPair is the result of a successful login or refresh.
type TokenPair struct {
	AccessToken      string    `json:"access_token"`
	RefreshToken     string    `json:"refresh_token"`
	AccessExpiresAt  time.Time `json:"access_expires_at"`
	RefreshExpiresAt time.Time `json:"refresh_expires_at"`
}

// TokenService orchestrates login, refresh rotation, and logout. A refresh
// token is usable for rotation exactly once: every successful rotation
// blacklists the old token for its remaining lifetime, and a blacklisted
// token presented again is treated as theft and kills the whole family.
type TokenService struct {
	codec         *TokenCodec
	blacklist     BlacklistStore
	refreshTokens RefreshTokenStore
	verifier      CredentialVerifier
	accessTTL     time.Duration
	refreshTTL    time.Duration
	locks         *userLocks
	logger        *zap.Logger
	metrics       MetricsRecorder
}

// NewTokenService wires the service. Codec, blacklist, refresh store, and
// verifier are required; logger and metrics default to no-op implementations.
func NewTokenService(codec *TokenCodec, blacklist BlacklistStore, refreshTokens RefreshTokenStore, verifier CredentialVerifier, accessTTL time.Duration, refreshTTL time.Duration, logger *zap.Logger, metrics MetricsRecorder) (*TokenService, error) {
	if codec == nil {
		return nil, errors.New("token_service.missing_codec")
	}
	if blacklist == nil {
		return nil, errors.New("token_service.missing_blacklist")
	}
	if refreshTokens == nil {
		return nil, errors.New("token_service.missing_refresh_store")
	}
	if verifier == nil {
		return nil, errors.New("token_service.missing_verifier")
	}
	if accessTTL <= 0 || refreshTTL <= 0 {
		return nil, errors.New("token_service.invalid_ttl")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if metrics == nil {
		metrics = NewCounterMetrics()
	}
	return &TokenService{
		codec:         codec,
		blacklist:     blacklist,
		refreshTokens: refreshTokens,
		verifier:      verifier,
		accessTTL:     accessTTL,
		refreshTTL:    refreshTTL,
		locks:         newUserLocks(),
		logger:        logger,
		metrics:       metrics,
	}, nil
}

// Login verifies credentials and issues a fresh access/refresh pair. The new
// refresh token unconditionally supersedes any prior live token for the user,
// so concurrent logins leave only the latest session alive.
func (service *TokenService) Login(ctx context.Context, identifier string, secret string) (*TokenPair, error) {
	userID, verifyErr := service.verifier.Verify(ctx, identifier, secret)
	if verifyErr != nil || userID == "" {
		service.metrics.Increment(MetricLoginRejected)
		service.logger.Info("login rejected",
			zap.String("code", "token_service.login.invalid_credentials"))
		return nil, ErrInvalidCredentials
	}

	pair, mintErr := service.mintPair(ctx, userID)
	if mintErr != nil {
		return nil, mintErr
	}
	service.metrics.Increment(MetricLoginSucceeded)
	service.logger.Info("login succeeded", zap.String("user_id", userID))
	return pair, nil
}

// Refresh rotates a refresh token: exactly one successful rotation per token.
// A replayed token revokes every session for the user and returns
// ErrCompromisedSession.
func (service *TokenService) Refresh(ctx context.Context, oldRefreshToken string) (*TokenPair, error) {
	claims, decodeErr := service.codec.Decode(oldRefreshToken)
	if decodeErr != nil {
		service.metrics.Increment(MetricRefreshRejected)
		return nil, ErrInvalidToken
	}
	userID := claims.Subject

	// Reuse check and rotation must be linearizable per user; without the
	// lock two concurrent calls holding the same old token could both pass
	// the reuse check before either has blacklisted it.
	service.locks.acquire(userID)
	defer service.locks.release(userID)

	revoked, lookupErr := service.blacklist.IsRevoked(ctx, oldRefreshToken)
	if lookupErr != nil {
		service.metrics.Increment(MetricStoreUnavailable)
		service.logger.Error("blacklist lookup failed during refresh, failing closed",
			zap.String("user_id", userID), zap.Error(lookupErr))
		return nil, ErrServiceUnavailable
	}
	if revoked {
		service.metrics.Increment(MetricReuseDetected)
		service.logger.Error("refresh token reuse detected, revoking all sessions for user",
			zap.String("code", "token_service.refresh.compromised"),
			zap.String("user_id", userID))
		if deleteErr := service.refreshTokens.DeleteAllForUser(ctx, userID); deleteErr != nil {
			service.logger.Error("failed to revoke token family after reuse detection",
				zap.String("user_id", userID), zap.Error(deleteErr))
		}
		return nil, ErrCompromisedSession
	}

	record, getErr := service.refreshTokens.Get(ctx, oldRefreshToken)
	if getErr != nil {
		if errors.Is(getErr, ErrRefreshTokenNotFound) {
			// Signature-valid but untracked: already logged out, already
			// superseded, or never issued. No stored history to revoke, so
			// this is an ordinary invalid token, not a compromise signal.
			service.metrics.Increment(MetricRefreshRejected)
			return nil, ErrInvalidToken
		}
		service.metrics.Increment(MetricStoreUnavailable)
		service.logger.Error("refresh token lookup failed",
			zap.String("user_id", userID), zap.Error(getErr))
		return nil, ErrServiceUnavailable
	}
	if record.UserID != userID {
		service.metrics.Increment(MetricRefreshRejected)
		return nil, ErrInvalidToken
	}

	// Blacklist the old token before installing its successor. If the
	// process dies between the two writes the user is left with no live
	// refresh token and must log in again, which fails closed.
	remaining := service.codec.RemainingTTL(oldRefreshToken)
	if revokeErr := service.blacklist.Revoke(ctx, oldRefreshToken, remaining); revokeErr != nil {
		service.metrics.Increment(MetricStoreUnavailable)
		service.logger.Error("failed to blacklist rotated refresh token",
			zap.String("user_id", userID), zap.Error(revokeErr))
		return nil, ErrServiceUnavailable
	}

	pair, mintErr := service.mintPair(ctx, userID)
	if mintErr != nil {
		return nil, mintErr
	}
	service.metrics.Increment(MetricRefreshRotated)
	service.logger.Info("refresh token rotated", zap.String("user_id", userID))
	return pair, nil
}

// Logout blacklists the access token for its remaining lifetime and deletes
// the user's refresh tokens. The blacklist write is best-effort; the refresh
// token deletion is the operation's primary guarantee. Idempotent.
func (service *TokenService) Logout(ctx context.Context, accessToken string, userID string) error {
	remaining := service.codec.RemainingTTL(accessToken)
	if remaining > 0 {
		if revokeErr := service.blacklist.Revoke(ctx, accessToken, remaining); revokeErr != nil {
			service.logger.Warn("failed to blacklist access token on logout, continuing",
				zap.String("user_id", userID), zap.Error(revokeErr))
		}
	}
	if deleteErr := service.refreshTokens.DeleteAllForUser(ctx, userID); deleteErr != nil {
		service.metrics.Increment(MetricStoreUnavailable)
		service.logger.Error("failed to delete refresh tokens on logout",
			zap.String("user_id", userID), zap.Error(deleteErr))
		return ErrServiceUnavailable
	}
	service.metrics.Increment(MetricLogoutCompleted)
	service.logger.Info("logout completed", zap.String("user_id", userID))
	return nil
}

func (service *TokenService) mintPair(ctx context.Context, userID string) (*TokenPair, error) {
	accessToken, accessExpiresAt, accessErr := service.codec.Issue(userID, service.accessTTL)
	if accessErr != nil {
		return nil, fmt.Errorf("token_service.mint.access: %w", accessErr)
	}
	refreshToken, refreshExpiresAt, refreshErr := service.codec.Issue(userID, service.refreshTTL)
	if refreshErr != nil {
		return nil, fmt.Errorf("token_service.mint.refresh: %w", refreshErr)
	}
	if putErr := service.refreshTokens.Put(ctx, userID, refreshToken, refreshExpiresAt); putErr != nil {
		service.metrics.Increment(MetricStoreUnavailable)
		service.logger.Error("failed to install refresh token",
			zap.String("user_id", userID), zap.Error(putErr))
		return nil, ErrServiceUnavailable
	}
	return &TokenPair{
		AccessToken:      accessToken,
		RefreshToken:     refreshToken,
		AccessExpiresAt:  accessExpiresAt,
		RefreshExpiresAt: refreshExpiresAt,
	}, nil
}
