// Command feedrelayd runs relay sessions on a schedule and serves the HTTP
// control surface.
package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/Aidin1998/feedrelay/internal/config"
	"github.com/Aidin1998/feedrelay/internal/history"
	"github.com/Aidin1998/feedrelay/internal/scheduler"
	"github.com/Aidin1998/feedrelay/internal/server"
	"github.com/Aidin1998/feedrelay/internal/telemetry"
	"github.com/Aidin1998/feedrelay/internal/trigger"
	"github.com/Aidin1998/feedrelay/pkg/logger"
)

func main() {
	// Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Create logger
	zapLogger, err := logger.NewLogger(cfg.App.LogLevel, cfg.App.LogFormat)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer zapLogger.Sync() //nolint:errcheck

	ctx := context.Background()

	shutdownTracing, err := telemetry.Setup(ctx, telemetry.Config{
		Tracing:     cfg.Telemetry.Tracing,
		ServiceName: cfg.Telemetry.ServiceName,
	})
	if err != nil {
		zapLogger.Fatal("Failed to set up tracing", zap.Error(err))
	}

	store, err := history.New(ctx, cfg.History, zapLogger)
	if err != nil {
		zapLogger.Fatal("Failed to open session history", zap.Error(err))
	}

	handler := trigger.New(cfg, store, zapLogger)

	// Periodic sessions
	var sched *scheduler.Scheduler
	var next server.NextRunner
	if cfg.Schedule.Enabled {
		sched, err = scheduler.New(cfg.Schedule.Spec, func(ctx context.Context) error {
			_, err := handler.Invoke(ctx, trigger.Overrides{})
			return err
		}, zapLogger)
		if err != nil {
			zapLogger.Fatal("Failed to create scheduler", zap.Error(err))
		}
		sched.Start()
		next = sched
	}

	// HTTP control surface
	apiServer := server.NewServer(zapLogger, handler, next, server.Config{
		Service:   cfg.Telemetry.ServiceName,
		RateLimit: cfg.Server.RateLimit,
		RateBurst: cfg.Server.RateBurst,
	})
	httpServer := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           apiServer.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		zapLogger.Info("Starting API server",
			zap.String("addr", cfg.Server.Addr),
			zap.String("variant", cfg.Relay.Variant),
			zap.Bool("schedule", cfg.Schedule.Enabled))
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			zapLogger.Fatal("Failed to start API server", zap.Error(err))
		}
	}()

	// Wait for interrupt to shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	zapLogger.Info("Shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if sched != nil {
		if err := sched.Stop(shutdownCtx); err != nil {
			zapLogger.Error("Scheduler did not stop cleanly", zap.Error(err))
		}
	}
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		zapLogger.Error("HTTP server shutdown failed", zap.Error(err))
	}
	if err := store.Close(); err != nil {
		zapLogger.Error("Failed to close session history", zap.Error(err))
	}
	if err := shutdownTracing(shutdownCtx); err != nil {
		zapLogger.Error("Tracing shutdown failed", zap.Error(err))
	}

	zapLogger.Info("Server exited properly")
}
