// Package portal serves the session controller and the guarded views of
// one portal instance.
package portal

import (
	"context"
	"errors"
	"net/http"

	"unitevol-service/internal/domain/auth"
	xerrors "unitevol-service/internal/pkg/errors"
	"unitevol-service/internal/pkg/response"
	"unitevol-service/internal/service/session"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// SessionController is the session surface the portal routes drive.
type SessionController interface {
	State() session.State
	Login(ctx context.Context, email, password string) error
	Signup(ctx context.Context, req session.SignupRequest) error
	Logout(ctx context.Context) error
	UpdateProfile(ctx context.Context, patch auth.ProfilePatch, roleFields map[string]interface{}) error
	UpdateSkills(ctx context.Context, skills []auth.Skill) error
	UpdateAvailability(ctx context.Context, a auth.Availability) error
	CheckProfileCompletion(ctx context.Context) (bool, error)
	RefreshProfile(ctx context.Context) error
	ClearError()
}

type LoginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

type ProfileUpdateRequest struct {
	Profile    auth.ProfilePatch      `json:"profile"`
	RoleFields map[string]interface{} `json:"role_fields"`
}

type SessionHandler struct {
	session SessionController
	logger  *zap.Logger
}

func NewSessionHandler(session SessionController, logger *zap.Logger) *SessionHandler {
	return &SessionHandler{session: session, logger: logger}
}

func (h *SessionHandler) GetSession(c *gin.Context) {
	response.Success(c, http.StatusOK, "session", h.session.State())
}

func (h *SessionHandler) Login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ValidationError(c, "invalid request", err)
		return
	}

	if err := h.session.Login(c.Request.Context(), req.Email, req.Password); err != nil {
		h.fail(c, "login failed", err)
		return
	}
	response.Success(c, http.StatusOK, "logged in", h.session.State())
}

func (h *SessionHandler) Signup(c *gin.Context) {
	var req session.SignupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ValidationError(c, "invalid request", err)
		return
	}

	if err := h.session.Signup(c.Request.Context(), req); err != nil {
		h.fail(c, "signup failed", err)
		return
	}
	response.Success(c, http.StatusCreated, "signed up", h.session.State())
}

func (h *SessionHandler) Logout(c *gin.Context) {
	if err := h.session.Logout(c.Request.Context()); err != nil {
		h.fail(c, "logout failed", err)
		return
	}
	response.Success(c, http.StatusOK, "logged out", h.session.State())
}

func (h *SessionHandler) UpdateProfile(c *gin.Context) {
	var req ProfileUpdateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ValidationError(c, "invalid request", err)
		return
	}

	if err := h.session.UpdateProfile(c.Request.Context(), req.Profile, req.RoleFields); err != nil {
		h.fail(c, "profile update failed", err)
		return
	}
	response.Success(c, http.StatusOK, "profile updated", h.session.State())
}

func (h *SessionHandler) UpdateSkills(c *gin.Context) {
	var req auth.SkillsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ValidationError(c, "invalid request", err)
		return
	}

	if err := h.session.UpdateSkills(c.Request.Context(), req.Skills); err != nil {
		h.fail(c, "skills update failed", err)
		return
	}
	response.Success(c, http.StatusOK, "skills updated", nil)
}

func (h *SessionHandler) UpdateAvailability(c *gin.Context) {
	var req auth.Availability
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ValidationError(c, "invalid request", err)
		return
	}

	if err := h.session.UpdateAvailability(c.Request.Context(), req); err != nil {
		h.fail(c, "availability update failed", err)
		return
	}
	response.Success(c, http.StatusOK, "availability updated", nil)
}

func (h *SessionHandler) Completion(c *gin.Context) {
	complete, err := h.session.CheckProfileCompletion(c.Request.Context())
	if err != nil {
		h.fail(c, "completion check failed", err)
		return
	}
	response.Success(c, http.StatusOK, "profile completion", auth.CompletionResponse{Complete: complete})
}

func (h *SessionHandler) Refresh(c *gin.Context) {
	if err := h.session.RefreshProfile(c.Request.Context()); err != nil {
		h.fail(c, "profile refresh failed", err)
		return
	}
	response.Success(c, http.StatusOK, "profile refreshed", h.session.State())
}

func (h *SessionHandler) ClearError(c *gin.Context) {
	h.session.ClearError()
	response.Success(c, http.StatusOK, "error cleared", h.session.State())
}

// fail reports err with the session's own error message when it set one,
// so forms can show it inline.
func (h *SessionHandler) fail(c *gin.Context, message string, err error) {
	state := h.session.State()
	if state.Error != "" && !errors.Is(err, xerrors.ErrSessionChanged) {
		message = state.Error
	}
	h.logger.Warn(message, zap.Error(err))
	response.FromError(c, message, err)
}
