// internal/app/server.go
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"unitevol-service/internal/config"
	"unitevol-service/internal/db"
	authHandler "unitevol-service/internal/handlers/auth"
	profileHandler "unitevol-service/internal/handlers/profile"
	wsHandler "unitevol-service/internal/handlers/websocket"
	"unitevol-service/internal/middleware"
	"unitevol-service/internal/pkg/jwt"
	"unitevol-service/internal/pkg/metrics"
	"unitevol-service/internal/pkg/session"
	"unitevol-service/internal/repository/postgres"
	"unitevol-service/internal/service/identity"
	"unitevol-service/internal/websocket"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

// Server is the identity, profile and realtime backend.
type Server struct {
	cfg    config.AppConfig
	engine *gin.Engine
	logger *zap.Logger
}

func NewServer(cfg config.AppConfig, logger *zap.Logger) *Server {
	gin.SetMode(gin.ReleaseMode)
	return &Server{cfg: cfg, engine: gin.New(), logger: logger}
}

// Start wires the backend and serves until ctx is cancelled.
func (s *Server) Start(ctx context.Context) error {
	// ----- PostgreSQL -----
	pool, err := db.ConnectDB(ctx, s.cfg.DatabaseURL, s.cfg.DBMaxConns)
	if err != nil {
		return fmt.Errorf("failed to connect to PostgreSQL: %w", err)
	}
	defer pool.Close()
	s.logger.Info("connected to PostgreSQL")

	// ----- Redis -----
	redisClient, err := db.NewRedisClient(db.RedisConfig{
		Addr:     s.cfg.RedisAddr,
		Password: s.cfg.RedisPass,
		PoolSize: 10,
	})
	if err != nil {
		return fmt.Errorf("failed to connect to Redis: %w", err)
	}
	defer redisClient.Close()
	s.logger.Info("connected to Redis", zap.String("addr", s.cfg.RedisAddr))

	// ----- JWT Manager -----
	jwtManager, err := jwt.LoadAndBuild(s.cfg.JWT)
	if err != nil {
		return fmt.Errorf("failed to load JWT manager: %w", err)
	}

	m := metrics.New("unitevol_api", prometheus.NewRegistry())

	// ----- Repositories -----
	database := postgres.NewDB(pool)
	identityRepo := postgres.NewIdentityRepository(database)
	profileRepo := postgres.NewProfileRepository(database)

	// ----- Session Manager & Rate Limiter -----
	sessionManager := session.NewManager(redisClient)
	rateLimiter := session.NewRateLimiter(redisClient)

	// ----- Services -----
	// The hub needs the identity service to authenticate and the identity
	// service needs the hub to end realtime sessions.
	notifier := &lateNotifier{}
	identityService := identity.NewService(
		identityRepo,
		profileRepo,
		jwtManager,
		sessionManager,
		rateLimiter,
		notifier,
		m,
		s.logger,
	)

	hub := websocket.NewHub(identityService, m, s.logger)
	notifier.hub = hub
	go hub.Run(ctx)

	// ----- Profile change feed -----
	listener := postgres.NewProfileListener(pool, profileRepo, s.logger)
	go listener.Run(ctx, hub.PublishProfileChange)

	// ----- Handlers -----
	authMiddleware := middleware.NewAuthMiddleware(identityService)

	s.engine.Use(
		middleware.RecoveryMiddleware(s.logger),
		middleware.LoggingMiddleware(s.logger, m),
		middleware.CORSMiddleware(s.cfg.CORSOrigins),
	)

	SetupRouter(s.engine, s.logger, &Handlers{
		AuthHandler:    authHandler.NewAuthHandler(identityService, s.logger),
		ProfileHandler: profileHandler.NewProfileHandler(identityService, s.logger),
		WSHandler:      wsHandler.NewWebSocketHandler(hub, s.cfg.CORSOrigins, s.logger),
		AuthMiddleware: authMiddleware,
		Metrics:        m,
	})

	return serve(ctx, s.cfg.HTTPAddr, s.engine, s.logger)
}

// lateNotifier forwards to a hub that is set after construction.
type lateNotifier struct {
	hub *websocket.Hub
}

func (n *lateNotifier) ForceLogout(principalID, jti, reason string) {
	if n.hub != nil {
		n.hub.ForceLogout(principalID, jti, reason)
	}
}

// serve runs an HTTP server until ctx is cancelled, then drains it.
func serve(ctx context.Context, addr string, handler http.Handler, logger *zap.Logger) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("http server listening", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	logger.Info("shutting down http server")
	return srv.Shutdown(shutdownCtx)
}
