package tokenkit

import (
	"errors"
	"testing"
	"time"
)

func newTestCodec(t *testing.T, clock Clock) *TokenCodec {
	t.Helper()
	codec, err := NewTokenCodec([]byte("test-signing-key"), "test-issuer", clock)
	if err != nil {
		t.Fatalf("failed to create codec: %v", err)
	}
	return codec
}

func TestNewTokenCodecRequiresKeyAndIssuer(t *testing.T) {
	t.Parallel()

	if _, err := NewTokenCodec(nil, "issuer", nil); err == nil {
		t.Fatalf("expected error for empty signing key")
	}
	if _, err := NewTokenCodec([]byte("key"), "  ", nil); err == nil {
		t.Fatalf("expected error for empty issuer")
	}
}

func TestTokenCodecIssueAndDecode(t *testing.T) {
	t.Parallel()

	clock := newControllableClock()
	codec := newTestCodec(t, clock)

	token, expiresAt, issueErr := codec.Issue("user-123", 15*time.Minute)
	if issueErr != nil {
		t.Fatalf("issue error: %v", issueErr)
	}
	expectedExpiry := clock.Now().Add(15 * time.Minute)
	if !expiresAt.Equal(expectedExpiry) {
		t.Fatalf("expected expiry %v, got %v", expectedExpiry, expiresAt)
	}

	claims, decodeErr := codec.Decode(token)
	if decodeErr != nil {
		t.Fatalf("decode error: %v", decodeErr)
	}
	if claims.Subject != "user-123" || claims.UserID != "user-123" {
		t.Fatalf("expected subject user-123, got %q / %q", claims.Subject, claims.UserID)
	}
	if claims.ID == "" {
		t.Fatalf("expected a token id claim")
	}
}

func TestTokenCodecIssueRejectsEmptySubject(t *testing.T) {
	t.Parallel()

	codec := newTestCodec(t, newControllableClock())
	if _, _, err := codec.Issue("  ", time.Minute); err == nil {
		t.Fatalf("expected error for empty subject")
	}
}

func TestTokenCodecDecodeExpired(t *testing.T) {
	t.Parallel()

	clock := newControllableClock()
	codec := newTestCodec(t, clock)

	token, _, issueErr := codec.Issue("user-123", time.Minute)
	if issueErr != nil {
		t.Fatalf("issue error: %v", issueErr)
	}

	clock.Advance(2 * time.Minute)

	if _, decodeErr := codec.Decode(token); !errors.Is(decodeErr, ErrTokenExpired) {
		t.Fatalf("expected ErrTokenExpired, got %v", decodeErr)
	}
}

func TestTokenCodecDecodeBadSignature(t *testing.T) {
	t.Parallel()

	clock := newControllableClock()
	codec := newTestCodec(t, clock)
	otherCodec, err := NewTokenCodec([]byte("different-key"), "test-issuer", clock)
	if err != nil {
		t.Fatalf("failed to create codec: %v", err)
	}

	token, _, issueErr := otherCodec.Issue("user-123", time.Minute)
	if issueErr != nil {
		t.Fatalf("issue error: %v", issueErr)
	}

	if _, decodeErr := codec.Decode(token); !errors.Is(decodeErr, ErrTokenBadSignature) {
		t.Fatalf("expected ErrTokenBadSignature, got %v", decodeErr)
	}
}

func TestTokenCodecDecodeMalformed(t *testing.T) {
	t.Parallel()

	codec := newTestCodec(t, newControllableClock())
	if _, decodeErr := codec.Decode("not-a-token"); !errors.Is(decodeErr, ErrTokenMalformed) {
		t.Fatalf("expected ErrTokenMalformed, got %v", decodeErr)
	}
}

func TestTokenCodecDecodeRejectsForeignIssuer(t *testing.T) {
	t.Parallel()

	clock := newControllableClock()
	codec := newTestCodec(t, clock)
	foreignCodec, err := NewTokenCodec([]byte("test-signing-key"), "other-issuer", clock)
	if err != nil {
		t.Fatalf("failed to create codec: %v", err)
	}

	token, _, issueErr := foreignCodec.Issue("user-123", time.Minute)
	if issueErr != nil {
		t.Fatalf("issue error: %v", issueErr)
	}
	if _, decodeErr := codec.Decode(token); decodeErr == nil {
		t.Fatalf("expected error for foreign issuer")
	}
}

func TestTokenCodecRemainingTTL(t *testing.T) {
	t.Parallel()

	clock := newControllableClock()
	codec := newTestCodec(t, clock)

	token, _, issueErr := codec.Issue("user-123", 10*time.Minute)
	if issueErr != nil {
		t.Fatalf("issue error: %v", issueErr)
	}

	if remaining := codec.RemainingTTL(token); remaining != 10*time.Minute {
		t.Fatalf("expected 10m remaining, got %v", remaining)
	}

	clock.Advance(4 * time.Minute)
	if remaining := codec.RemainingTTL(token); remaining != 6*time.Minute {
		t.Fatalf("expected 6m remaining, got %v", remaining)
	}

	clock.Advance(10 * time.Minute)
	if remaining := codec.RemainingTTL(token); remaining != 0 {
		t.Fatalf("expected zero remaining after expiry, got %v", remaining)
	}

	if remaining := codec.RemainingTTL("not-a-token"); remaining != 0 {
		t.Fatalf("expected zero remaining for malformed token, got %v", remaining)
	}
}
