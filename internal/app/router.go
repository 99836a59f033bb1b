// internal/app/router.go
package app

import (
	authHandler "unitevol-service/internal/handlers/auth"
	profileHandler "unitevol-service/internal/handlers/profile"
	wsHandler "unitevol-service/internal/handlers/websocket"
	"unitevol-service/internal/middleware"
	"unitevol-service/internal/pkg/metrics"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type Handlers struct {
	AuthHandler    *authHandler.AuthHandler
	ProfileHandler *profileHandler.ProfileHandler
	WSHandler      *wsHandler.WebSocketHandler
	AuthMiddleware *middleware.AuthMiddleware
	Metrics        *metrics.Metrics
}

func SetupRouter(r *gin.Engine, logger *zap.Logger, h *Handlers) {
	api := r.Group("/api/v1")

	// ==================== Health Check ====================
	api.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok", "version": "1.0.0"})
	})
	r.GET("/metrics", gin.WrapH(h.Metrics.Handler()))

	// ==================== Realtime ====================
	r.GET("/realtime", h.WSHandler.HandleConnection)

	// ==================== Auth ====================
	authPublic := api.Group("/auth")
	{
		authPublic.POST("/signup", h.AuthHandler.SignUp)
		authPublic.POST("/token", h.AuthHandler.Token)
	}

	authOptional := api.Group("/auth")
	authOptional.Use(h.AuthMiddleware.OptionalAuth())
	{
		authOptional.POST("/logout", h.AuthHandler.SignOut)
		authOptional.GET("/user", h.AuthHandler.CurrentUser)
	}

	// ==================== Profiles ====================
	profiles := api.Group("/profiles/:id")
	profiles.Use(h.AuthMiddleware.Auth(), h.AuthMiddleware.RequireSelf("id"))
	{
		profiles.GET("", h.ProfileHandler.GetProfile)
		profiles.PATCH("", h.ProfileHandler.UpdateProfile)
		profiles.PUT("/role-details", h.ProfileHandler.UpdateRoleDetails)
		profiles.GET("/skills", h.ProfileHandler.ListSkills)
		profiles.PUT("/skills", h.ProfileHandler.UpdateSkills)
		profiles.GET("/availability", h.ProfileHandler.GetAvailability)
		profiles.PUT("/availability", h.ProfileHandler.UpdateAvailability)
		profiles.GET("/completion", h.ProfileHandler.Completion)
	}

	logger.Info("api routes registered", zap.Int("routes", len(r.Routes())))
}
