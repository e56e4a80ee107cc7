package tokenkit

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"
)

type staticVerifier struct {
	accounts map[string]staticAccount
}

type staticAccount struct {
	secret string
	userID string
}

func (verifier *staticVerifier) Verify(ctx context.Context, identifier string, secret string) (string, error) {
	account, ok := verifier.accounts[identifier]
	if !ok || account.secret != secret {
		return "", errors.New("credential_verifier.mismatch")
	}
	return account.userID, nil
}

type failingBlacklist struct {
	lookupErr error
	revokeErr error
}

func (store *failingBlacklist) Revoke(ctx context.Context, token string, ttl time.Duration) error {
	return store.revokeErr
}

func (store *failingBlacklist) IsRevoked(ctx context.Context, token string) (bool, error) {
	return false, store.lookupErr
}

type serviceFixture struct {
	clock     *controllableClock
	codec     *TokenCodec
	blacklist BlacklistStore
	refresh   *MemoryRefreshTokenStore
	metrics   *CounterMetrics
	service   *TokenService
}

func newServiceFixture(t *testing.T) *serviceFixture {
	t.Helper()
	clock := newControllableClock()
	codec := newTestCodec(t, clock)
	blacklist := NewMemoryBlacklist(clock)
	refresh := NewMemoryRefreshTokenStore(clock)
	metrics := NewCounterMetrics()
	verifier := &staticVerifier{accounts: map[string]staticAccount{
		"alice@example.com": {secret: "correct-horse", userID: "user-alice"},
	}}
	service, err := NewTokenService(codec, blacklist, refresh, verifier,
		15*time.Minute, 24*time.Hour, zaptest.NewLogger(t), metrics)
	if err != nil {
		t.Fatalf("failed to create service: %v", err)
	}
	return &serviceFixture{
		clock:     clock,
		codec:     codec,
		blacklist: blacklist,
		refresh:   refresh,
		metrics:   metrics,
		service:   service,
	}
}

func TestNewTokenServiceRequiresDependencies(t *testing.T) {
	t.Parallel()

	clock := newControllableClock()
	codec := newTestCodec(t, clock)
	blacklist := NewMemoryBlacklist(clock)
	refresh := NewMemoryRefreshTokenStore(clock)
	verifier := &staticVerifier{}

	if _, err := NewTokenService(nil, blacklist, refresh, verifier, time.Minute, time.Hour, nil, nil); err == nil {
		t.Fatalf("expected error for missing codec")
	}
	if _, err := NewTokenService(codec, nil, refresh, verifier, time.Minute, time.Hour, nil, nil); err == nil {
		t.Fatalf("expected error for missing blacklist")
	}
	if _, err := NewTokenService(codec, blacklist, nil, verifier, time.Minute, time.Hour, nil, nil); err == nil {
		t.Fatalf("expected error for missing refresh store")
	}
	if _, err := NewTokenService(codec, blacklist, refresh, nil, time.Minute, time.Hour, nil, nil); err == nil {
		t.Fatalf("expected error for missing verifier")
	}
	if _, err := NewTokenService(codec, blacklist, refresh, verifier, 0, time.Hour, nil, nil); err == nil {
		t.Fatalf("expected error for zero access ttl")
	}
}

func TestLoginIssuesPairAndRejectsBadCredentials(t *testing.T) {
	t.Parallel()

	fixture := newServiceFixture(t)

	if _, err := fixture.service.Login(context.Background(), "alice@example.com", "wrong"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
	if _, err := fixture.service.Login(context.Background(), "nobody@example.com", "whatever"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials for unknown user, got %v", err)
	}

	pair, loginErr := fixture.service.Login(context.Background(), "alice@example.com", "correct-horse")
	if loginErr != nil {
		t.Fatalf("login error: %v", loginErr)
	}
	if pair.AccessToken == "" || pair.RefreshToken == "" {
		t.Fatalf("expected both tokens to be issued")
	}

	record, getErr := fixture.refresh.Get(context.Background(), pair.RefreshToken)
	if getErr != nil {
		t.Fatalf("expected refresh token to be tracked, got %v", getErr)
	}
	if record.UserID != "user-alice" {
		t.Fatalf("expected user-alice, got %s", record.UserID)
	}
}

func TestSecondLoginSupersedesFirstSession(t *testing.T) {
	t.Parallel()

	fixture := newServiceFixture(t)

	firstPair, err := fixture.service.Login(context.Background(), "alice@example.com", "correct-horse")
	if err != nil {
		t.Fatalf("first login error: %v", err)
	}
	secondPair, err := fixture.service.Login(context.Background(), "alice@example.com", "correct-horse")
	if err != nil {
		t.Fatalf("second login error: %v", err)
	}

	if _, refreshErr := fixture.service.Refresh(context.Background(), firstPair.RefreshToken); !errors.Is(refreshErr, ErrInvalidToken) {
		t.Fatalf("expected superseded refresh token to be rejected, got %v", refreshErr)
	}
	if _, refreshErr := fixture.service.Refresh(context.Background(), secondPair.RefreshToken); refreshErr != nil {
		t.Fatalf("expected latest refresh token to rotate, got %v", refreshErr)
	}
}

func TestRefreshRotatesExactlyOnce(t *testing.T) {
	t.Parallel()

	fixture := newServiceFixture(t)

	pair, loginErr := fixture.service.Login(context.Background(), "alice@example.com", "correct-horse")
	if loginErr != nil {
		t.Fatalf("login error: %v", loginErr)
	}

	rotated, refreshErr := fixture.service.Refresh(context.Background(), pair.RefreshToken)
	if refreshErr != nil {
		t.Fatalf("refresh error: %v", refreshErr)
	}
	if rotated.RefreshToken == pair.RefreshToken {
		t.Fatalf("expected a new refresh token after rotation")
	}

	// Replay of the rotated token is a compromise signal and kills the family.
	if _, replayErr := fixture.service.Refresh(context.Background(), pair.RefreshToken); !errors.Is(replayErr, ErrCompromisedSession) {
		t.Fatalf("expected ErrCompromisedSession on replay, got %v", replayErr)
	}
	if fixture.metrics.Count(MetricReuseDetected) != 1 {
		t.Fatalf("expected reuse detection to be recorded")
	}

	// The successor token died with the family.
	if _, familyErr := fixture.service.Refresh(context.Background(), rotated.RefreshToken); !errors.Is(familyErr, ErrInvalidToken) {
		t.Fatalf("expected successor token to be dead after family revocation, got %v", familyErr)
	}
}

func TestRefreshRejectsGarbageAndExpiredTokens(t *testing.T) {
	t.Parallel()

	fixture := newServiceFixture(t)

	if _, err := fixture.service.Refresh(context.Background(), "not-a-token"); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken for garbage, got %v", err)
	}

	pair, loginErr := fixture.service.Login(context.Background(), "alice@example.com", "correct-horse")
	if loginErr != nil {
		t.Fatalf("login error: %v", loginErr)
	}

	fixture.clock.Advance(25 * time.Hour)
	if _, err := fixture.service.Refresh(context.Background(), pair.RefreshToken); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken for expired refresh token, got %v", err)
	}
}

func TestRefreshRejectsForgedButSignedToken(t *testing.T) {
	t.Parallel()

	fixture := newServiceFixture(t)

	// Signature-valid token for a real user that was never installed in the
	// store. No stored history exists, so this is invalid, not compromised.
	forged, _, issueErr := fixture.codec.Issue("user-alice", 24*time.Hour)
	if issueErr != nil {
		t.Fatalf("issue error: %v", issueErr)
	}
	if _, err := fixture.service.Refresh(context.Background(), forged); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken for untracked token, got %v", err)
	}
}

func TestRefreshFailsClosedWhenBlacklistUnavailable(t *testing.T) {
	t.Parallel()

	clock := newControllableClock()
	codec := newTestCodec(t, clock)
	refresh := NewMemoryRefreshTokenStore(clock)
	verifier := &staticVerifier{accounts: map[string]staticAccount{
		"alice@example.com": {secret: "correct-horse", userID: "user-alice"},
	}}
	brokenBlacklist := &failingBlacklist{lookupErr: errors.New("connection refused")}
	service, err := NewTokenService(codec, brokenBlacklist, refresh, verifier,
		15*time.Minute, 24*time.Hour, zaptest.NewLogger(t), nil)
	if err != nil {
		t.Fatalf("failed to create service: %v", err)
	}

	pair, loginErr := service.Login(context.Background(), "alice@example.com", "correct-horse")
	if loginErr != nil {
		t.Fatalf("login error: %v", loginErr)
	}
	if _, refreshErr := service.Refresh(context.Background(), pair.RefreshToken); !errors.Is(refreshErr, ErrServiceUnavailable) {
		t.Fatalf("expected ErrServiceUnavailable, got %v", refreshErr)
	}
}

func TestConcurrentRefreshOfSameTokenRotatesOnce(t *testing.T) {
	t.Parallel()

	fixture := newServiceFixture(t)

	pair, loginErr := fixture.service.Login(context.Background(), "alice@example.com", "correct-horse")
	if loginErr != nil {
		t.Fatalf("login error: %v", loginErr)
	}

	const callers = 8
	var waitGroup sync.WaitGroup
	results := make([]error, callers)
	for index := 0; index < callers; index++ {
		waitGroup.Add(1)
		go func(slot int) {
			defer waitGroup.Done()
			_, results[slot] = fixture.service.Refresh(context.Background(), pair.RefreshToken)
		}(index)
	}
	waitGroup.Wait()

	var succeeded, compromised int
	for _, result := range results {
		switch {
		case result == nil:
			succeeded++
		case errors.Is(result, ErrCompromisedSession):
			compromised++
		default:
			t.Fatalf("unexpected refresh result: %v", result)
		}
	}
	if succeeded != 1 {
		t.Fatalf("expected exactly one rotation to win, got %d", succeeded)
	}
	if compromised != callers-1 {
		t.Fatalf("expected %d reuse detections, got %d", callers-1, compromised)
	}
}

func TestLogoutIsIdempotentAndRevokesEverything(t *testing.T) {
	t.Parallel()

	fixture := newServiceFixture(t)

	pair, loginErr := fixture.service.Login(context.Background(), "alice@example.com", "correct-horse")
	if loginErr != nil {
		t.Fatalf("login error: %v", loginErr)
	}

	if logoutErr := fixture.service.Logout(context.Background(), pair.AccessToken, "user-alice"); logoutErr != nil {
		t.Fatalf("logout error: %v", logoutErr)
	}

	revoked, lookupErr := fixture.blacklist.IsRevoked(context.Background(), pair.AccessToken)
	if lookupErr != nil {
		t.Fatalf("lookup error: %v", lookupErr)
	}
	if !revoked {
		t.Fatalf("expected access token to be blacklisted after logout")
	}
	if _, refreshErr := fixture.service.Refresh(context.Background(), pair.RefreshToken); !errors.Is(refreshErr, ErrInvalidToken) {
		t.Fatalf("expected refresh token to be dead after logout, got %v", refreshErr)
	}

	// Second logout with the same token is not an error.
	if logoutErr := fixture.service.Logout(context.Background(), pair.AccessToken, "user-alice"); logoutErr != nil {
		t.Fatalf("second logout error: %v", logoutErr)
	}
}

func TestLogoutProceedsWhenBlacklistUnavailable(t *testing.T) {
	t.Parallel()

	clock := newControllableClock()
	codec := newTestCodec(t, clock)
	refresh := NewMemoryRefreshTokenStore(clock)
	verifier := &staticVerifier{accounts: map[string]staticAccount{
		"alice@example.com": {secret: "correct-horse", userID: "user-alice"},
	}}
	brokenBlacklist := &failingBlacklist{revokeErr: errors.New("connection refused")}
	service, err := NewTokenService(codec, brokenBlacklist, refresh, verifier,
		15*time.Minute, 24*time.Hour, zaptest.NewLogger(t), nil)
	if err != nil {
		t.Fatalf("failed to create service: %v", err)
	}

	pair, loginErr := service.Login(context.Background(), "alice@example.com", "correct-horse")
	if loginErr != nil {
		t.Fatalf("login error: %v", loginErr)
	}

	// The blacklist write is best-effort; refresh token deletion still runs.
	if logoutErr := service.Logout(context.Background(), pair.AccessToken, "user-alice"); logoutErr != nil {
		t.Fatalf("expected logout to succeed despite blacklist failure, got %v", logoutErr)
	}
	if _, getErr := refresh.Get(context.Background(), pair.RefreshToken); !errors.Is(getErr, ErrRefreshTokenNotFound) {
		t.Fatalf("expected refresh token to be deleted, got %v", getErr)
	}
}

func TestLogoutSkipsBlacklistForExpiredAccessToken(t *testing.T) {
	t.Parallel()

	fixture := newServiceFixture(t)

	pair, loginErr := fixture.service.Login(context.Background(), "alice@example.com", "correct-horse")
	if loginErr != nil {
		t.Fatalf("login error: %v", loginErr)
	}

	fixture.clock.Advance(16 * time.Minute)

	if logoutErr := fixture.service.Logout(context.Background(), pair.AccessToken, "user-alice"); logoutErr != nil {
		t.Fatalf("logout error: %v", logoutErr)
	}
	// Expired tokens are universally rejected already; no blacklist entry.
	revoked, _ := fixture.blacklist.IsRevoked(context.Background(), pair.AccessToken)
	if revoked {
		t.Fatalf("expected no blacklist entry for an already-expired token")
	}
}
