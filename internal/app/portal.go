package app

import (
	"context"
	"fmt"

	"unitevol-service/internal/config"
	"unitevol-service/internal/db"
	"unitevol-service/internal/gateway"
	portalHandler "unitevol-service/internal/handlers/portal"
	"unitevol-service/internal/middleware"
	"unitevol-service/internal/pkg/metrics"
	"unitevol-service/internal/service/session"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

// Portal is one application instance: a session controller over the API
// and the guarded views built on it.
type Portal struct {
	cfg    config.PortalConfig
	engine *gin.Engine
	logger *zap.Logger
}

func NewPortal(cfg config.PortalConfig, logger *zap.Logger) *Portal {
	gin.SetMode(gin.ReleaseMode)
	return &Portal{cfg: cfg, engine: gin.New(), logger: logger}
}

// Start restores the instance's session and serves until ctx is cancelled.
func (p *Portal) Start(ctx context.Context) error {
	// ----- Redis -----
	redisClient, err := db.NewRedisClient(db.RedisConfig{
		Addr:     p.cfg.RedisAddr,
		Password: p.cfg.RedisPass,
		PoolSize: 4,
	})
	if err != nil {
		return fmt.Errorf("failed to connect to Redis: %w", err)
	}
	defer redisClient.Close()
	p.logger.Info("connected to Redis", zap.String("addr", p.cfg.RedisAddr))

	// ----- Session -----
	tokens := gateway.NewRedisTokenStore(redisClient, p.cfg.InstanceID)
	gw := gateway.NewHTTPGateway(p.cfg.IdentityURL, p.cfg.HTTPTimeout, tokens, p.logger)
	controller := session.NewController(gw, p.logger.With(zap.String("instance", p.cfg.InstanceID)))
	defer controller.Close()

	// A failed restore leaves the instance usable; the error is in the state.
	if err := controller.Initialize(ctx); err != nil {
		p.logger.Warn("session restore failed", zap.Error(err))
	}

	m := metrics.New("unitevol_portal", prometheus.NewRegistry())

	p.engine.Use(
		middleware.RecoveryMiddleware(p.logger),
		middleware.LoggingMiddleware(p.logger, m),
		middleware.CORSMiddleware(p.cfg.CORSOrigins),
	)

	SetupPortalRouter(p.engine, p.logger, &PortalHandlers{
		SessionHandler: portalHandler.NewSessionHandler(controller, p.logger),
		ViewHandler:    portalHandler.NewViewHandler(controller, m),
		Session:        controller,
		Metrics:        m,
	})

	return serve(ctx, p.cfg.HTTPAddr, p.engine, p.logger)
}
