package app

import (
	portalHandler "unitevol-service/internal/handlers/portal"
	"unitevol-service/internal/middleware"
	"unitevol-service/internal/pkg/metrics"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type PortalHandlers struct {
	SessionHandler *portalHandler.SessionHandler
	ViewHandler    *portalHandler.ViewHandler
	Session        middleware.StateSource
	Metrics        *metrics.Metrics
}

func SetupPortalRouter(r *gin.Engine, logger *zap.Logger, h *PortalHandlers) {
	// ==================== Health Check ====================
	r.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok", "version": "1.0.0"})
	})
	r.GET("/metrics", gin.WrapH(h.Metrics.Handler()))

	// ==================== Session ====================
	s := r.Group("/session")
	{
		s.GET("", h.SessionHandler.GetSession)
		s.POST("/login", h.SessionHandler.Login)
		s.POST("/signup", h.SessionHandler.Signup)
		s.POST("/logout", h.SessionHandler.Logout)
		s.DELETE("/error", h.SessionHandler.ClearError)
	}

	account := r.Group("/session")
	account.Use(middleware.RequireSession(h.Session, h.Metrics))
	{
		account.PATCH("/profile", h.SessionHandler.UpdateProfile)
		account.PUT("/skills", h.SessionHandler.UpdateSkills)
		account.PUT("/availability", h.SessionHandler.UpdateAvailability)
		account.GET("/completion", h.SessionHandler.Completion)
		account.POST("/refresh", h.SessionHandler.Refresh)
	}

	// ==================== Views ====================
	r.GET("/nav", h.ViewHandler.Navigation)
	r.GET("/views/*path", h.ViewHandler.Render)

	logger.Info("portal routes registered", zap.Int("routes", len(r.Routes())))
}
