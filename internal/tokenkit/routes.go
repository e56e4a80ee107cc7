package tokenkit

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	validation "github.com/go-ozzo/ozzo-validation/v4"
)

type loginRequest struct {
	Identifier string `json:"identifier"`
	Secret     string `json:"secret"`
}

func (request loginRequest) Validate() error {
	return validation.ValidateStruct(&request,
		validation.Field(&request.Identifier, validation.Required, validation.Length(1, 254)),
		validation.Field(&request.Secret, validation.Required, validation.Length(1, 1024)),
	)
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

func (request refreshRequest) Validate() error {
	return validation.ValidateStruct(&request,
		validation.Field(&request.RefreshToken, validation.Required),
	)
}

// MountAuthRoutes registers /auth/login, /auth/refresh, /auth/logout, and the
// gated /auth/me.
func MountAuthRoutes(router gin.IRouter, service *TokenService, codec *TokenCodec, blacklist BlacklistStore, metrics MetricsRecorder) {
	router.POST("/auth/login", func(contextGin *gin.Context) {
		var inbound loginRequest
		if bindErr := contextGin.BindJSON(&inbound); bindErr != nil {
			contextGin.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid_json"})
			return
		}
		if validateErr := inbound.Validate(); validateErr != nil {
			contextGin.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": validateErr.Error()})
			return
		}
		pair, loginErr := service.Login(contextGin, inbound.Identifier, inbound.Secret)
		if loginErr != nil {
			abortWithAuthError(contextGin, loginErr)
			return
		}
		contextGin.JSON(http.StatusOK, pair)
	})

	router.POST("/auth/refresh", func(contextGin *gin.Context) {
		var inbound refreshRequest
		if bindErr := contextGin.BindJSON(&inbound); bindErr != nil {
			contextGin.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid_json"})
			return
		}
		if validateErr := inbound.Validate(); validateErr != nil {
			contextGin.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": validateErr.Error()})
			return
		}
		pair, refreshErr := service.Refresh(contextGin, inbound.RefreshToken)
		if refreshErr != nil {
			abortWithAuthError(contextGin, refreshErr)
			return
		}
		contextGin.JSON(http.StatusOK, pair)
	})

	// Logout does not go through RequireAuth: a second logout presents an
	// already-blacklisted access token, and the operation must stay
	// idempotent. Signature validity alone identifies the caller.
	router.POST("/auth/logout", func(contextGin *gin.Context) {
		accessToken, ok := BearerToken(contextGin.Request)
		if !ok {
			contextGin.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": ErrUnauthenticated.Error()})
			return
		}
		claims, decodeErr := codec.Decode(accessToken)
		if decodeErr != nil {
			contextGin.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": ErrUnauthenticated.Error()})
			return
		}
		if logoutErr := service.Logout(contextGin, accessToken, claims.Subject); logoutErr != nil {
			abortWithAuthError(contextGin, logoutErr)
			return
		}
		contextGin.Status(http.StatusNoContent)
	})

	gated := router.Group("/auth")
	gated.Use(RequireAuth(codec, blacklist, metrics))
	gated.GET("/me", func(contextGin *gin.Context) {
		claims, ok := ClaimsFromContext(contextGin)
		if !ok {
			contextGin.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": ErrUnauthenticated.Error()})
			return
		}
		contextGin.JSON(http.StatusOK, gin.H{
			"user_id": claims.Subject,
			"expires": claims.ExpiresAt.Time,
		})
	})
}

func abortWithAuthError(contextGin *gin.Context, err error) {
	switch {
	case errors.Is(err, ErrInvalidCredentials),
		errors.Is(err, ErrInvalidToken),
		errors.Is(err, ErrCompromisedSession),
		errors.Is(err, ErrUnauthenticated):
		contextGin.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
	case errors.Is(err, ErrServiceUnavailable):
		contextGin.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
	default:
		contextGin.AbortWithStatus(http.StatusInternalServerError)
	}
}
