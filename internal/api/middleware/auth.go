// internal/api/middleware/auth.go

package middleware

import (
	"context"
	"net/http"
	"strings"

	"ctp-notifications/internal/common/auth"
	"ctp-notifications/internal/common/logger"
	"ctp-notifications/internal/models"

	"github.com/gin-gonic/gin"
)

const (
	// ContextKeyUserID holds the caller's Keycloak subject.
	ContextKeyUserID = "userID"
	// ContextKeyUser holds the caller's *models.User profile.
	ContextKeyUser = "user"
)

// TokenValidator introspects bearer tokens.
type TokenValidator interface {
	ValidateToken(ctx context.Context, token string) (*auth.TokenInfo, error)
}

// UserLoader loads a user profile, returning nil when it does not exist.
type UserLoader interface {
	User(ctx context.Context, id string) (*models.User, error)
}

// AuthMiddleware validates the bearer token with Keycloak and loads the caller's profile
// from the users collection.
func AuthMiddleware(tokens TokenValidator, users UserLoader, log logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Authorization header required"})
			return
		}

		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || strings.ToLower(parts[0]) != "bearer" || strings.TrimSpace(parts[1]) == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Authorization header format must be Bearer {token}"})
			return
		}

		info, err := tokens.ValidateToken(c.Request.Context(), strings.TrimSpace(parts[1]))
		if err != nil {
			log.Debug("Token rejected", map[string]interface{}{"error": err.Error()})
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Invalid or expired token"})
			return
		}

		user, err := users.User(c.Request.Context(), info.Sub)
		if err != nil {
			_ = c.Error(err)
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "Failed to load caller profile"})
			return
		}
		if user == nil {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "Caller has no user profile"})
			return
		}

		c.Set(ContextKeyUserID, info.Sub)
		c.Set(ContextKeyUser, user)
		c.Next()
	}
}

// AdminMiddleware requires an admin caller. Assumes AuthMiddleware runs first.
func AdminMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		user := CurrentUser(c)
		if user == nil || !user.IsAdmin() {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "Administrator privileges required"})
			return
		}
		c.Next()
	}
}

// CurrentUser returns the profile set by AuthMiddleware, or nil.
func CurrentUser(c *gin.Context) *models.User {
	v, ok := c.Get(ContextKeyUser)
	if !ok {
		return nil
	}
	user, _ := v.(*models.User)
	return user
}

// RequestLogger logs each request at debug, and 5xx responses at warn.
func RequestLogger(log logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		fields := map[string]interface{}{
			"method": c.Request.Method,
			"path":   c.FullPath(),
			"status": c.Writer.Status(),
		}
		if len(c.Errors) > 0 {
			fields["error"] = c.Errors.String()
		}
		if c.Writer.Status() >= http.StatusInternalServerError {
			log.Warn("HTTP request failed", fields)
			return
		}
		log.Debug("HTTP request", fields)
	}
}
