package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"unitevol-service/internal/domain/auth"
	"unitevol-service/internal/pkg/metrics"
	"unitevol-service/internal/service/session"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
)

type staticState session.State

func (s staticState) State() session.State { return session.State(s) }

func TestRequireSession(t *testing.T) {
	gin.SetMode(gin.TestMode)

	volunteer := staticState{
		Principal: &auth.Principal{ID: "01A"},
		Profile:   &auth.Profile{ID: "01A", Role: auth.RoleVolunteer},
	}

	tests := []struct {
		name     string
		state    staticState
		roles    []auth.Role
		status   int
		location string
	}{
		{"allowed", volunteer, []auth.Role{auth.RoleVolunteer}, http.StatusOK, ""},
		{"any role", volunteer, nil, http.StatusOK, ""},
		{"wrong role", volunteer, []auth.Role{auth.RoleNGO}, http.StatusFound, UnauthorizedPath},
		{"anonymous", staticState{}, nil, http.StatusFound, LoginPath},
		{"loading", staticState{Loading: true}, nil, http.StatusServiceUnavailable, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := metrics.New("test", prometheus.NewRegistry())
			r := gin.New()
			r.GET("/view", RequireSession(tt.state, m, tt.roles...), func(c *gin.Context) {
				c.String(http.StatusOK, "rendered")
			})

			w := httptest.NewRecorder()
			r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/view", nil))

			if w.Code != tt.status {
				t.Fatalf("status = %d, want %d", w.Code, tt.status)
			}
			if got := w.Header().Get("Location"); got != tt.location {
				t.Fatalf("location = %q, want %q", got, tt.location)
			}
			if tt.status != http.StatusOK && strings.Contains(w.Body.String(), "rendered") {
				t.Fatal("guarded handler ran")
			}
		})
	}
}

func TestRequireSessionRecordsDecision(t *testing.T) {
	gin.SetMode(gin.TestMode)
	m := metrics.New("test", prometheus.NewRegistry())

	r := gin.New()
	r.GET("/view", RequireSession(staticState{}, m), func(c *gin.Context) {})
	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/view", nil))

	w := httptest.NewRecorder()
	m.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if !strings.Contains(w.Body.String(), `test_guard_decisions_total{decision="redirect_login"} 1`) {
		t.Fatalf("decision not recorded:\n%s", w.Body.String())
	}
}
