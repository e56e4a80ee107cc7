package tokenkit

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

// ContextClaimsKey is the gin context key under which RequireAuth stores the
// caller's claims.
const ContextClaimsKey = "auth_claims"

// RequireAuth validates the bearer access token and injects the caller's
// claims. Access tokens are self-contained: the gate checks signature, expiry,
// and the blacklist, and never touches the refresh token store. A blacklist
// outage rejects the request rather than letting a possibly-revoked token
// through.
func RequireAuth(codec *TokenCodec, blacklist BlacklistStore, metrics MetricsRecorder) gin.HandlerFunc {
	if metrics == nil {
		metrics = NewCounterMetrics()
	}
	return func(contextGin *gin.Context) {
		accessToken, ok := BearerToken(contextGin.Request)
		if !ok {
			metrics.Increment(MetricGateRejected)
			contextGin.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": ErrUnauthenticated.Error()})
			return
		}
		claims, decodeErr := codec.Decode(accessToken)
		if decodeErr != nil {
			metrics.Increment(MetricGateRejected)
			contextGin.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": ErrUnauthenticated.Error()})
			return
		}
		revoked, lookupErr := blacklist.IsRevoked(contextGin, accessToken)
		if lookupErr != nil {
			metrics.Increment(MetricStoreUnavailable)
			contextGin.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{"error": ErrServiceUnavailable.Error()})
			return
		}
		if revoked {
			metrics.Increment(MetricGateRejected)
			contextGin.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": ErrUnauthenticated.Error()})
			return
		}
		contextGin.Set(ContextClaimsKey, claims)
		contextGin.Next()
	}
}

// BearerToken extracts the token from the Authorization header.
func BearerToken(request *http.Request) (string, bool) {
	header := request.Header.Get("Authorization")
	if header == "" {
		return "", false
	}
	const prefix = "Bearer "
	if len(header) <= len(prefix) || !strings.EqualFold(header[:len(prefix)], prefix) {
		return "", false
	}
	token := strings.TrimSpace(header[len(prefix):])
	return token, token != ""
}

// ClaimsFromContext returns the claims stored by RequireAuth.
func ClaimsFromContext(contextGin *gin.Context) (*TokenClaims, bool) {
	value, found := contextGin.Get(ContextClaimsKey)
	if !found {
		return nil, false
	}
	claims, ok := value.(*TokenClaims)
	if !ok || claims == nil {
		return nil, false
	}
	return claims, true
}
