package middleware

import (
	"errors"
	"net/http"
	"strings"

	"asklegal/internal/repository"
	"asklegal/internal/service"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
)

// Context keys set by RequireUser.
const (
	ContextKeyUserID   = "asklegal.user_id"
	ContextKeyUsername = "asklegal.username"
)

// RequireUser admits requests carrying a valid bearer token and records the
// signed-in account on the context.
func RequireUser(tokens *service.JWTService) gin.HandlerFunc {
	return func(c *gin.Context) {
		raw, ok := bearerToken(c.GetHeader("Authorization"))
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "sign in to continue"})
			return
		}

		claims, err := tokens.ValidateToken(raw)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": tokenErrorMessage(err)})
			return
		}

		c.Set(ContextKeyUserID, claims.UserID)
		c.Set(ContextKeyUsername, claims.Username)
		c.Next()
	}
}

func bearerToken(header string) (string, bool) {
	scheme, token, found := strings.Cut(strings.TrimSpace(header), " ")
	if !found || !strings.EqualFold(scheme, "bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

func tokenErrorMessage(err error) string {
	switch {
	case errors.Is(err, service.ErrExpiredToken):
		return "your sign-in has expired, please sign in again"
	case errors.Is(err, service.ErrInvalidIssuer), errors.Is(err, service.ErrInvalidAudience):
		return "token was not issued for this service"
	default:
		return "invalid token"
	}
}

// RequireAdmin runs after RequireUser. The admin flag is read from the users
// table on every request, so revoking it takes effect at once.
func RequireAdmin(users repository.UserRepositoryInterface) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := GetUserID(c)
		if userID == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "sign in to continue"})
			return
		}

		user, err := users.GetByID(c.Request.Context(), userID)
		switch {
		case err != nil:
			log.WithError(err).WithField("userId", userID).Error("auth: admin lookup failed")
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "Something went wrong. Please try again."})
		case user == nil:
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "account no longer exists"})
		case !user.IsAdmin:
			log.WithField("userId", userID).WithField("path", c.FullPath()).Warn("auth: admin route refused")
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "admin privileges required"})
		default:
			c.Next()
		}
	}
}

func GetUserID(c *gin.Context) string {
	return c.GetString(ContextKeyUserID)
}

func GetUsername(c *gin.Context) string {
	return c.GetString(ContextKeyUsername)
}
