package web

import (
	"errors"
	"net/http"

	"github.com/KSEB-AI-3/gardendoctor-backend-sub000/internal/tokenkit"
	"github.com/KSEB-AI-3/gardendoctor-backend-sub000/internal/users"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// HandleProfile resolves the authenticated caller's account. It stands behind
// RequireAuth and is the template every protected business handler follows:
// read the claims the gate injected, then confirm the subject still maps to
// an active account.
func HandleProfile(logger *zap.Logger, userStore *users.Store) gin.HandlerFunc {
	if logger == nil {
		logger = zap.NewNop()
	}
	if userStore == nil {
		panic("user store is required")
	}

	return func(contextGin *gin.Context) {
		claims, found := tokenkit.ClaimsFromContext(contextGin)
		if !found {
			logger.Warn("missing auth claims on context",
				zap.String("code", "api.profile.missing_claims"))
			contextGin.AbortWithStatus(http.StatusUnauthorized)
			return
		}

		record, findErr := userStore.FindByID(contextGin, claims.Subject)
		if findErr != nil {
			if errors.Is(findErr, users.ErrUserNotFound) {
				contextGin.AbortWithStatus(http.StatusUnauthorized)
				return
			}
			logger.Error("profile lookup failed",
				zap.String("code", "api.profile.lookup_failed"),
				zap.Error(findErr))
			contextGin.AbortWithStatus(http.StatusServiceUnavailable)
			return
		}
		if !record.Active {
			contextGin.AbortWithStatus(http.StatusUnauthorized)
			return
		}

		contextGin.JSON(http.StatusOK, gin.H{
			"user_id": record.ID,
			"email":   record.Email,
			"display": record.DisplayName,
		})
	}
}
