package portal

import (
	"net/http"

	"unitevol-service/internal/domain/auth"
	"unitevol-service/internal/domain/nav"
	"unitevol-service/internal/middleware"
	"unitevol-service/internal/pkg/guard"
	"unitevol-service/internal/pkg/metrics"
	"unitevol-service/internal/pkg/response"

	"github.com/gin-gonic/gin"
)

// View is what the portal hands the renderer for one route.
type View struct {
	Route       nav.Route       `json:"route"`
	User        *auth.Principal `json:"user,omitempty"`
	Role        auth.Role       `json:"role,omitempty"`
	Navigation  []nav.Item      `json:"navigation"`
	UserMenu    []nav.Item      `json:"user_menu,omitempty"`
	ProfilePath string          `json:"profile_path,omitempty"`
}

type ViewHandler struct {
	session middleware.StateSource
	metrics *metrics.Metrics
}

func NewViewHandler(src middleware.StateSource, m *metrics.Metrics) *ViewHandler {
	return &ViewHandler{session: src, metrics: m}
}

// Render serves /views/*path through the route table and the guard.
func (h *ViewHandler) Render(c *gin.Context) {
	route, ok := nav.LookupRoute(c.Param("path"))
	if !ok {
		response.NotFound(c, "no such view")
		return
	}

	state := h.session.State()
	if !route.Public && !middleware.Enforce(c, h.metrics, guard.Decide(state, route.Roles...)) {
		return
	}

	view := View{Route: route, Navigation: nav.Public()}
	if state.IsAuthenticated() {
		role := state.Role()
		view.User = state.Principal
		view.Role = role
		view.Navigation = nav.ForRole(role)
		view.UserMenu = nav.UserMenu(role)
		view.ProfilePath = nav.ProfilePath(role)
	}
	response.Success(c, http.StatusOK, route.Title, view)
}

// Navigation returns the menus for the current session.
func (h *ViewHandler) Navigation(c *gin.Context) {
	state := h.session.State()
	if !state.IsAuthenticated() {
		response.Success(c, http.StatusOK, "navigation", gin.H{"items": nav.Public()})
		return
	}

	role := state.Role()
	response.Success(c, http.StatusOK, "navigation", gin.H{
		"items":        nav.ForRole(role),
		"user_menu":    nav.UserMenu(role),
		"profile_path": nav.ProfilePath(role),
	})
}
