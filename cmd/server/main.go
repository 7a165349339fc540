package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/origbo/logware-security-platform-sub010/internal/auth"
	"github.com/origbo/logware-security-platform-sub010/internal/config"
	"github.com/origbo/logware-security-platform-sub010/internal/hub"
	"github.com/origbo/logware-security-platform-sub010/internal/logging"
	"github.com/origbo/logware-security-platform-sub010/internal/provider"
	"github.com/origbo/logware-security-platform-sub010/internal/redis"
	"github.com/origbo/logware-security-platform-sub010/internal/server"
)

func setupConfig() *config.Config {
	cfg, err := config.Load()
	if err != nil {
		// Use log before slog is initialized
		log.Fatalf("Failed to load config: %v", err)
	}
	return cfg
}

func setupRedis(cfg *config.Config) *redis.Client {
	client, err := redis.NewClient(cfg.RedisURL)
	if err != nil {
		slog.Error("Failed to connect to Redis", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx); err != nil {
		slog.Error("Redis ping failed", "error", err)
		os.Exit(1)
	}

	return client
}

func runGracefulShutdown(srv *server.Server, h *hub.Hub, cancelSubscriber context.CancelFunc, redisClient *redis.Client) <-chan struct{} {
	done := make(chan struct{})
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-sigChan
		slog.Info("Shutdown signal received, cleaning up...")

		// Stop accepting new connections first, then drain the hub so every
		// client gets a close frame.
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Error("Server shutdown error", "error", err)
		}

		cancelSubscriber()
		h.Stop()

		if redisClient != nil {
			if err := redisClient.Close(); err != nil {
				slog.Error("Redis close error", "error", err)
			}
		}

		close(done)
	}()

	return done
}

func main() {
	clock := clockwork.NewRealClock()

	cfg := setupConfig()

	// Initialize structured logging
	logging.InitLogger(cfg.LogLevel, cfg.LogFormat)
	slog.Info("Application starting", "env", cfg.AppEnv, "port", cfg.Port)

	var redisClient *redis.Client
	if cfg.RedisURL != "" {
		redisClient = setupRedis(cfg)
	} else {
		slog.Info("REDIS_URL not set, widget event feed disabled")
	}

	verifier := auth.NewVerifier(cfg.AuthSecret, clock)
	snapshots := provider.NewStaticProvider(clock)

	h := hub.New(verifier, snapshots, clock)

	subscriberCtx, cancelSubscriber := context.WithCancel(context.Background())
	if redisClient != nil {
		subscriber := redis.NewEventSubscriber(redisClient, h)
		go subscriber.Start(subscriberCtx)
	}

	srv := server.New(cfg, h, redisClient, clock)

	done := runGracefulShutdown(srv, h, cancelSubscriber, redisClient)

	slog.Info("Server starting", "port", cfg.Port)
	if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.Error("Server error", "error", err)
		os.Exit(1)
	}

	<-done
}
