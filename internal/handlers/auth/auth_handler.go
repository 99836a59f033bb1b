// internal/handlers/auth/auth_handler.go
package auth

import (
	"context"
	"errors"
	"io"
	"net/http"
	"time"

	"unitevol-service/internal/domain/auth"
	"unitevol-service/internal/middleware"
	xerrors "unitevol-service/internal/pkg/errors"
	"unitevol-service/internal/pkg/response"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// IdentityService is the part of the identity service the auth routes use.
type IdentityService interface {
	SignUp(ctx context.Context, req *auth.SignUpRequest) (*auth.TokenResponse, error)
	SignIn(ctx context.Context, req *auth.SignInRequest) (*auth.TokenResponse, error)
	Refresh(ctx context.Context, req *auth.RefreshRequest) (*auth.TokenResponse, error)
	SignOut(ctx context.Context, principalID, jti string, expiresAt time.Time, refreshToken string) error
	CurrentPrincipal(ctx context.Context, principalID, jti string) (*auth.Principal, error)
}

type AuthHandler struct {
	identity IdentityService
	logger   *zap.Logger
}

func NewAuthHandler(identity IdentityService, logger *zap.Logger) *AuthHandler {
	return &AuthHandler{
		identity: identity,
		logger:   logger,
	}
}

// ========== Sign-up ==========

// SignUp creates a principal and its profile (public endpoint)
func (h *AuthHandler) SignUp(c *gin.Context) {
	var req auth.SignUpRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ValidationError(c, "invalid request", err)
		return
	}

	req.IPAddress = c.ClientIP()
	req.UserAgent = c.GetHeader("User-Agent")

	resp, err := h.identity.SignUp(c.Request.Context(), &req)
	if err != nil {
		h.logger.Warn("sign up failed",
			zap.String("email", req.Email),
			zap.Error(err),
		)
		response.FromError(c, "sign up failed", err)
		return
	}

	response.Success(c, http.StatusCreated, "account created", resp)
}

// ========== Token grants ==========

// Token dispatches on grant_type: password (the default) or refresh_token.
func (h *AuthHandler) Token(c *gin.Context) {
	switch grant := c.DefaultQuery("grant_type", "password"); grant {
	case "password":
		h.SignIn(c)
	case "refresh_token":
		h.Refresh(c)
	default:
		response.Error(c, http.StatusBadRequest, "unsupported grant type", xerrors.ErrValidation)
	}
}

// SignIn exchanges email and password for a token pair
func (h *AuthHandler) SignIn(c *gin.Context) {
	var req auth.SignInRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ValidationError(c, "invalid request", err)
		return
	}

	req.IPAddress = c.ClientIP()
	req.UserAgent = c.GetHeader("User-Agent")

	resp, err := h.identity.SignIn(c.Request.Context(), &req)
	if err != nil {
		h.logger.Warn("sign in failed",
			zap.String("email", req.Email),
			zap.String("ip", req.IPAddress),
			zap.Error(err),
		)
		response.FromError(c, "sign in failed", err)
		return
	}

	h.logger.Info("principal signed in", zap.String("principal_id", resp.User.ID))
	response.Success(c, http.StatusOK, "signed in", resp)
}

// Refresh exchanges a refresh token for a new token pair
func (h *AuthHandler) Refresh(c *gin.Context) {
	var req auth.RefreshRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ValidationError(c, "invalid request", err)
		return
	}

	req.IPAddress = c.ClientIP()
	req.UserAgent = c.GetHeader("User-Agent")

	resp, err := h.identity.Refresh(c.Request.Context(), &req)
	if err != nil {
		h.logger.Warn("token refresh failed", zap.String("ip", req.IPAddress), zap.Error(err))
		response.FromError(c, "token refresh failed", err)
		return
	}

	response.Success(c, http.StatusOK, "token refreshed", resp)
}

// ========== Sign-out ==========

// SignOut ends the caller's session and revokes the refresh token in the
// body, if any. Without a session it still succeeds.
func (h *AuthHandler) SignOut(c *gin.Context) {
	var req auth.SignOutRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		response.ValidationError(c, "invalid request", err)
		return
	}

	principalID, _ := middleware.GetPrincipalID(c)
	jti, _ := middleware.GetJTI(c)

	if err := h.identity.SignOut(c.Request.Context(), principalID, jti, middleware.GetExpiresAt(c), req.RefreshToken); err != nil {
		h.logger.Error("sign out failed",
			zap.String("principal_id", principalID),
			zap.Error(err),
		)
		response.FromError(c, "sign out failed", err)
		return
	}

	response.Success(c, http.StatusOK, "signed out", nil)
}

// ========== Current principal ==========

// CurrentUser returns the principal of the caller's session
func (h *AuthHandler) CurrentUser(c *gin.Context) {
	principalID, _ := middleware.GetPrincipalID(c)
	jti, _ := middleware.GetJTI(c)
	if principalID == "" {
		response.Error(c, http.StatusUnauthorized, "no active session", xerrors.ErrNoActiveSession)
		return
	}

	principal, err := h.identity.CurrentPrincipal(c.Request.Context(), principalID, jti)
	if err != nil {
		response.FromError(c, "no active session", err)
		return
	}

	response.Success(c, http.StatusOK, "current user", principal)
}
