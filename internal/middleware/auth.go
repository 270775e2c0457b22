package middleware

import (
	"context"
	"strings"

	"github.com/gin-gonic/gin"

	"agrimarket-backend/internal/models"
	"agrimarket-backend/internal/services"
)

// Context keys set by AuthRequired
const (
	UserKey     = "user"
	UserIDKey   = "userID"
	UserRoleKey = "userRole"
	TokenKey    = "token"
)

// SessionResolver turns a bearer token into the user it names
type SessionResolver interface {
	ResolveSession(ctx context.Context, token string) (*models.User, error)
}

// AuthMiddleware contains the session resolver for token validation
type AuthMiddleware struct {
	sessions SessionResolver
}

// NewAuthMiddleware creates a new auth middleware
func NewAuthMiddleware(sessions SessionResolver) *AuthMiddleware {
	return &AuthMiddleware{sessions: sessions}
}

// BearerToken extracts the token from an "Authorization: Bearer" header
func BearerToken(c *gin.Context) (string, bool) {
	authHeader := c.GetHeader("Authorization")
	if len(authHeader) < 7 || !strings.EqualFold(authHeader[:7], "Bearer ") {
		return "", false
	}
	token := strings.TrimSpace(authHeader[7:])
	return token, token != ""
}

// AuthRequired is a middleware that resolves the bearer session to a user
func (m *AuthMiddleware) AuthRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		token, ok := BearerToken(c)
		if !ok {
			RespondError(c, services.ErrInvalidSession)
			return
		}

		user, err := m.sessions.ResolveSession(c.Request.Context(), token)
		if err != nil {
			RespondError(c, err)
			return
		}

		c.Set(UserKey, user)
		c.Set(UserIDKey, user.ID)
		c.Set(UserRoleKey, string(user.Role))
		c.Set(TokenKey, token)

		c.Next()
	}
}

// RequireRole is a middleware that checks if the user has a specific role
func (m *AuthMiddleware) RequireRole(role models.Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		user, ok := CurrentUser(c)
		if !ok {
			RespondError(c, services.ErrInvalidSession)
			return
		}
		if user.Role != role {
			RespondError(c, services.ErrRoleRequired)
			return
		}
		c.Next()
	}
}

// CurrentUser returns the user resolved by AuthRequired
func CurrentUser(c *gin.Context) (*models.User, bool) {
	value, exists := c.Get(UserKey)
	if !exists {
		return nil, false
	}
	user, ok := value.(*models.User)
	return user, ok && user != nil
}
