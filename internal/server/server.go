package server

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/origbo/logware-security-platform-sub010/internal/config"
	"github.com/origbo/logware-security-platform-sub010/internal/hub"
	"github.com/origbo/logware-security-platform-sub010/internal/redis"
)

type Server struct {
	echo        *echo.Echo
	config      *config.Config
	hub         *hub.Hub
	limits      *ConnectionLimits
	redisClient *redis.Client // nil when REDIS_URL is not configured
	startTime   time.Time
}

// New wires the HTTP layer. redisClient may be nil; readiness then skips the
// Redis check.
func New(cfg *config.Config, h *hub.Hub, redisClient *redis.Client, clock clockwork.Clock) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Logger())
	e.Use(middleware.Recover())

	srv := &Server{
		echo:        e,
		config:      cfg,
		hub:         h,
		limits:      NewConnectionLimits(cfg.MaxWebSocketConnections, cfg.MaxConnectionsPerIP, cfg.ConnectionRatePerIP, cfg.ConnectionBurstPerIP),
		redisClient: redisClient,
		startTime:   clock.Now(),
	}

	srv.registerRoutes()
	return srv
}

func (s *Server) Start() error {
	slog.Info("Starting server", "port", s.config.Port)
	return s.echo.Start(fmt.Sprintf(":%s", s.config.Port))
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}
