package tokenkit

import "errors"

// Terminal authentication outcomes surfaced to the HTTP layer.
var (
	// ErrInvalidCredentials indicates the supplied identifier/secret pair did not
	// verify. Callers learn nothing beyond "invalid".
	ErrInvalidCredentials = errors.New("auth.invalid_credentials")
	// ErrInvalidToken indicates a malformed, expired, or untracked token; the
	// caller must authenticate again.
	ErrInvalidToken = errors.New("auth.invalid_token")
	// ErrCompromisedSession indicates an already-rotated refresh token was
	// presented again. All sessions for the user have been revoked.
	ErrCompromisedSession = errors.New("auth.compromised_session")
	// ErrUnauthenticated indicates the request carried no usable access token.
	ErrUnauthenticated = errors.New("auth.unauthenticated")
	// ErrServiceUnavailable indicates a backing store could not be reached.
	// Revocation checks fail closed with this error, never open.
	ErrServiceUnavailable = errors.New("auth.service_unavailable")
)

// Codec-level failures. Decode collapses them into ErrInvalidToken at the
// service boundary but the gate and tests distinguish them.
var (
	// ErrTokenMalformed indicates the token text is not a parseable JWT.
	ErrTokenMalformed = errors.New("token_codec.malformed")
	// ErrTokenBadSignature indicates the signature did not verify.
	ErrTokenBadSignature = errors.New("token_codec.bad_signature")
	// ErrTokenExpired indicates the token is past its expiry.
	ErrTokenExpired = errors.New("token_codec.expired")
)

var (
	// ErrRefreshTokenNotFound indicates no live refresh token matched the lookup.
	ErrRefreshTokenNotFound = errors.New("refresh_store.not_found")
	// ErrRefreshTokenEmptyValue indicates the provided token text is empty.
	ErrRefreshTokenEmptyValue = errors.New("refresh_store.empty_token")
)
