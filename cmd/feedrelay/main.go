// Command feedrelay runs a single relay session and prints its result as JSON.
// The exit code is 1 when the session did not succeed.
package main

import (
	"context"
	"encoding/json"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/Aidin1998/feedrelay/internal/config"
	"github.com/Aidin1998/feedrelay/internal/history"
	"github.com/Aidin1998/feedrelay/internal/relay"
	"github.com/Aidin1998/feedrelay/internal/telemetry"
	"github.com/Aidin1998/feedrelay/internal/trigger"
	"github.com/Aidin1998/feedrelay/pkg/errors"
	"github.com/Aidin1998/feedrelay/pkg/logger"
)

func main() {
	os.Exit(run())
}

func run() int {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Printf("Failed to load configuration: %v", err)
		return 1
	}

	zapLogger, err := logger.NewLogger(cfg.App.LogLevel, cfg.App.LogFormat)
	if err != nil {
		log.Printf("Failed to create logger: %v", err)
		return 1
	}
	defer zapLogger.Sync() //nolint:errcheck

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := telemetry.Setup(ctx, telemetry.Config{
		Tracing:     cfg.Telemetry.Tracing,
		ServiceName: cfg.Telemetry.ServiceName,
		Writer:      os.Stderr,
	})
	if err != nil {
		zapLogger.Error("Failed to set up tracing", zap.Error(err))
		return 1
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(sctx); err != nil {
			zapLogger.Warn("Tracing shutdown failed", zap.Error(err))
		}
	}()

	store, err := history.New(ctx, cfg.History, zapLogger)
	if err != nil {
		zapLogger.Error("Failed to open session history", zap.Error(err))
		return 1
	}
	defer store.Close()

	zapLogger.Info("Starting relay session",
		zap.String("variant", cfg.Relay.Variant),
		zap.String("sink", cfg.Sink.Kind))

	resp, err := trigger.New(cfg, store, zapLogger).Invoke(ctx, trigger.Overrides{})
	if resp == nil {
		resp = &trigger.Response{Status: relay.StatusFailed}
	}

	out := struct {
		*trigger.Response
		Error     string `json:"error,omitempty"`
		ErrorKind string `json:"error_kind,omitempty"`
	}{Response: resp}
	if err != nil {
		out.Error = err.Error()
		out.ErrorKind = errors.KindOf(err)
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if encErr := enc.Encode(out); encErr != nil {
		zapLogger.Error("Failed to write result", zap.Error(encErr))
		return 1
	}
	if err != nil {
		return 1
	}
	return 0
}
