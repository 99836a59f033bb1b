package middleware

import (
	"net/http"

	"unitevol-service/internal/domain/auth"
	"unitevol-service/internal/pkg/guard"
	"unitevol-service/internal/pkg/metrics"
	"unitevol-service/internal/pkg/response"
	"unitevol-service/internal/service/session"

	"github.com/gin-gonic/gin"
)

const (
	LoginPath        = "/login"
	UnauthorizedPath = "/unauthorized"
)

// StateSource exposes the instance's session state.
type StateSource interface {
	State() session.State
}

// RequireSession lets the request through only when the guard allows the
// current session. With no roles any signed-in user passes.
func RequireSession(src StateSource, m *metrics.Metrics, roles ...auth.Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		if Enforce(c, m, guard.Decide(src.State(), roles...)) {
			c.Next()
		}
	}
}

// Enforce records d and writes the matching response unless it allows the
// request. It reports whether the caller may proceed.
func Enforce(c *gin.Context, m *metrics.Metrics, d guard.Decision) bool {
	m.GuardDecision(d.String())
	c.Set("guard_decision", d.String())

	switch d {
	case guard.Allow:
		return true
	case guard.Pending:
		c.Header("Retry-After", "1")
		response.Error(c, http.StatusServiceUnavailable, "session is loading", nil,
			gin.H{"decision": d.String()})
	case guard.RedirectLogin:
		c.Redirect(http.StatusFound, LoginPath)
		c.Abort()
	default:
		c.Redirect(http.StatusFound, UnauthorizedPath)
		c.Abort()
	}
	return false
}
