// internal/middleware/auth_middleware.go
package middleware

import (
	"context"
	"net/http"
	"strings"
	"time"

	"unitevol-service/internal/pkg/jwt"
	"unitevol-service/internal/pkg/response"

	"github.com/gin-gonic/gin"
)

// TokenValidator checks an access token against the session registry.
type TokenValidator interface {
	ValidateToken(ctx context.Context, token string) (*jwt.Claims, error)
}

type AuthMiddleware struct {
	validator TokenValidator
}

func NewAuthMiddleware(validator TokenValidator) *AuthMiddleware {
	return &AuthMiddleware{validator: validator}
}

// Auth is the base authentication middleware that validates JWT tokens
func (m *AuthMiddleware) Auth() gin.HandlerFunc {
	return func(c *gin.Context) {
		token := extractToken(c)
		if token == "" {
			response.Unauthorized(c, "missing authorization token")
			return
		}

		claims, err := m.validator.ValidateToken(c.Request.Context(), token)
		if err != nil {
			response.Error(c, http.StatusUnauthorized, "invalid or expired token", err)
			return
		}

		setClaims(c, claims)
		c.Next()
	}
}

// OptionalAuth sets the principal when a valid token is present and
// continues anonymously otherwise.
func (m *AuthMiddleware) OptionalAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		if token := extractToken(c); token != "" {
			if claims, err := m.validator.ValidateToken(c.Request.Context(), token); err == nil {
				setClaims(c, claims)
			}
		}
		c.Next()
	}
}

// RequireSelf allows the request only when the :param path value is the
// caller's own principal id. MUST be used after Auth().
func (m *AuthMiddleware) RequireSelf(param string) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, _ := GetPrincipalID(c)
		if id == "" || id != c.Param(param) {
			response.Forbidden(c, "profiles can only be accessed by their owner")
			return
		}
		c.Next()
	}
}

func setClaims(c *gin.Context, claims *jwt.Claims) {
	c.Set("principal_id", claims.PrincipalID)
	c.Set("jti", claims.ID)
	c.Set("role", claims.Role)
	c.Set("email", claims.Email)
	if claims.ExpiresAt != nil {
		c.Set("expires_at", claims.ExpiresAt.Time)
	}
}

// extractToken extracts Bearer token from Authorization header
func extractToken(c *gin.Context) string {
	parts := strings.Split(c.GetHeader("Authorization"), " ")
	if len(parts) == 2 && strings.EqualFold(parts[0], "Bearer") {
		return parts[1]
	}
	return ""
}

func GetPrincipalID(c *gin.Context) (string, bool) {
	return c.GetString("principal_id"), c.GetString("principal_id") != ""
}

func GetJTI(c *gin.Context) (string, bool) {
	return c.GetString("jti"), c.GetString("jti") != ""
}

func GetRole(c *gin.Context) string {
	return c.GetString("role")
}

// GetExpiresAt returns the token expiry, zero when unauthenticated.
func GetExpiresAt(c *gin.Context) time.Time {
	return c.GetTime("expires_at")
}

func IsAuthenticated(c *gin.Context) bool {
	_, ok := GetPrincipalID(c)
	return ok
}
