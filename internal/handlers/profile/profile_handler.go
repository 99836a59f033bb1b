// internal/handlers/profile/profile_handler.go
package profile

import (
	"context"
	"net/http"

	"unitevol-service/internal/domain/auth"
	"unitevol-service/internal/pkg/response"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// ProfileService is the part of the identity service the profile routes use.
type ProfileService interface {
	GetProfile(ctx context.Context, id string) (*auth.Profile, error)
	UpdateProfile(ctx context.Context, id string, patch auth.ProfilePatch) (*auth.Profile, error)
	UpdateRoleDetails(ctx context.Context, id string, role auth.Role, fields map[string]interface{}) error
	UpdateSkills(ctx context.Context, id string, skills []auth.Skill) error
	ListSkills(ctx context.Context, id string) ([]auth.Skill, error)
	UpdateAvailability(ctx context.Context, id string, a *auth.Availability) error
	GetAvailability(ctx context.Context, id string) (*auth.Availability, error)
	IsProfileComplete(ctx context.Context, id string) (bool, error)
}

// ProfileHandler serves /profiles/:id. Ownership is enforced by the router.
type ProfileHandler struct {
	profiles ProfileService
	logger   *zap.Logger
}

func NewProfileHandler(profiles ProfileService, logger *zap.Logger) *ProfileHandler {
	return &ProfileHandler{profiles: profiles, logger: logger}
}

func (h *ProfileHandler) GetProfile(c *gin.Context) {
	profile, err := h.profiles.GetProfile(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.FromError(c, "failed to get profile", err)
		return
	}
	response.Success(c, http.StatusOK, "profile retrieved", profile)
}

func (h *ProfileHandler) UpdateProfile(c *gin.Context) {
	var patch auth.ProfilePatch
	if err := c.ShouldBindJSON(&patch); err != nil {
		response.ValidationError(c, "invalid request", err)
		return
	}

	profile, err := h.profiles.UpdateProfile(c.Request.Context(), c.Param("id"), patch)
	if err != nil {
		h.logger.Warn("profile update failed",
			zap.String("principal_id", c.Param("id")),
			zap.Error(err),
		)
		response.FromError(c, "failed to update profile", err)
		return
	}
	response.Success(c, http.StatusOK, "profile updated", profile)
}

func (h *ProfileHandler) UpdateRoleDetails(c *gin.Context) {
	var req auth.RoleDetailsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ValidationError(c, "invalid request", err)
		return
	}

	if err := h.profiles.UpdateRoleDetails(c.Request.Context(), c.Param("id"), req.Role, req.Fields); err != nil {
		response.FromError(c, "failed to update role details", err)
		return
	}
	response.Success(c, http.StatusOK, "role details updated", nil)
}

func (h *ProfileHandler) ListSkills(c *gin.Context) {
	skills, err := h.profiles.ListSkills(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.FromError(c, "failed to list skills", err)
		return
	}
	response.Success(c, http.StatusOK, "skills retrieved", skills)
}

func (h *ProfileHandler) UpdateSkills(c *gin.Context) {
	var req auth.SkillsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ValidationError(c, "invalid request", err)
		return
	}

	if err := h.profiles.UpdateSkills(c.Request.Context(), c.Param("id"), req.Skills); err != nil {
		response.FromError(c, "failed to update skills", err)
		return
	}
	response.Success(c, http.StatusOK, "skills updated", req.Skills)
}

func (h *ProfileHandler) GetAvailability(c *gin.Context) {
	a, err := h.profiles.GetAvailability(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.FromError(c, "failed to get availability", err)
		return
	}
	response.Success(c, http.StatusOK, "availability retrieved", a)
}

func (h *ProfileHandler) UpdateAvailability(c *gin.Context) {
	var a auth.Availability
	if err := c.ShouldBindJSON(&a); err != nil {
		response.ValidationError(c, "invalid request", err)
		return
	}

	if err := h.profiles.UpdateAvailability(c.Request.Context(), c.Param("id"), &a); err != nil {
		response.FromError(c, "failed to update availability", err)
		return
	}
	response.Success(c, http.StatusOK, "availability updated", a)
}

func (h *ProfileHandler) Completion(c *gin.Context) {
	complete, err := h.profiles.IsProfileComplete(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.FromError(c, "failed to check profile", err)
		return
	}
	response.Success(c, http.StatusOK, "profile completion", auth.CompletionResponse{Complete: complete})
}
