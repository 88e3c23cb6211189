// Package relay bridges a websocket price feed to a durable stream for one
// bounded session.
package relay

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/Aidin1998/feedrelay/internal/feed"
	"github.com/Aidin1998/feedrelay/internal/sink"
	"github.com/Aidin1998/feedrelay/pkg/errors"
	"github.com/Aidin1998/feedrelay/pkg/metrics"
	"github.com/Aidin1998/feedrelay/pkg/validation"
)

const tracerName = "github.com/Aidin1998/feedrelay/internal/relay"

// Conn is one open feed connection
type Conn interface {
	Subscribe(ctx context.Context, sub feed.Subscription) error
	Next(ctx context.Context) ([]byte, error)
	Close() error
}

// Dialer opens feed connections
type Dialer interface {
	Dial(ctx context.Context) (Conn, error)
}

// DialerFunc adapts a function to Dialer
type DialerFunc func(ctx context.Context) (Conn, error)

func (f DialerFunc) Dial(ctx context.Context) (Conn, error) { return f(ctx) }

// Relay runs feed-to-stream sessions. Run must not be called concurrently on
// the same Relay.
type Relay struct {
	cfg    Config
	dialer Dialer
	sink   sink.Writer
	logger *zap.Logger
	tracer trace.Tracer
	now    func() time.Time

	state atomic.Int32
}

// New validates cfg and creates a relay in the Idle state.
func New(cfg Config, dialer Dialer, w sink.Writer, logger *zap.Logger) (*Relay, error) {
	cfg = cfg.withDefaults()
	if invalid := validation.Struct(cfg, "invalid relay configuration"); invalid != nil {
		return nil, invalid
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Relay{
		cfg:    cfg,
		dialer: dialer,
		sink:   w,
		logger: logger,
		tracer: otel.Tracer(tracerName),
		now:    time.Now,
	}, nil
}

// Config returns the effective configuration, defaults applied.
func (r *Relay) Config() Config { return r.cfg }

// State reports where the relay is in its lifecycle
func (r *Relay) State() State { return State(r.state.Load()) }

func (r *Relay) setState(s State) { r.state.Store(int32(s)) }

// Run executes one session: connect, subscribe, forward data messages until the
// deadline, close. A Result is returned on every path. The error is nil when
// the deadline was reached, the context error when ctx ended first, and a
// ConnectionError or DestinationWriteError otherwise.
func (r *Relay) Run(ctx context.Context) (*Result, error) {
	res := &Result{
		SessionID:  uuid.NewString(),
		Stream:     r.cfg.Stream,
		ProductIDs: r.cfg.ProductIDs,
		StartedAt:  r.now(),
		PerProduct: make(map[string]int),
	}

	ctx, span := r.tracer.Start(ctx, "relay.session", trace.WithAttributes(
		attribute.String("relay.session_id", res.SessionID),
		attribute.String("relay.stream", r.cfg.Stream),
		attribute.StringSlice("relay.product_ids", r.cfg.ProductIDs),
		attribute.Int64("relay.duration_ms", r.cfg.Duration.Milliseconds()),
	))
	defer span.End()

	logger := r.logger.With(
		zap.String("session_id", res.SessionID),
		zap.String("stream", r.cfg.Stream),
		zap.String("feed_url", r.cfg.FeedURL))
	logger.Info("Relay session starting",
		zap.Strings("product_ids", r.cfg.ProductIDs),
		zap.Duration("duration", r.cfg.Duration),
		zap.Duration("pacing", r.cfg.Pacing))

	s := newSession(r, logger, span, res)
	err := s.run(ctx)

	res.EndedAt = r.now()
	switch {
	case err == nil:
		res.Status = StatusSuccess
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		res.Status = StatusCancelled
		res.Error = err.Error()
	default:
		res.Status = StatusFailed
		res.Error = err.Error()
		res.ErrorKind = errors.KindOf(err)
	}

	elapsed := res.EndedAt.Sub(res.StartedAt)
	metrics.Sessions.WithLabelValues(res.Status).Inc()
	metrics.SessionDuration.Observe(elapsed.Seconds())

	span.SetAttributes(
		attribute.Int("relay.forwarded", res.Forwarded),
		attribute.Int("relay.malformed", res.Malformed),
		attribute.Int("relay.reconnects", res.Reconnects))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, res.Status)
	} else {
		span.SetStatus(codes.Ok, res.Status)
	}

	fields := []zap.Field{
		zap.String("status", res.Status),
		zap.Duration("elapsed", elapsed),
		zap.Int("received", res.Received),
		zap.Int("forwarded", res.Forwarded),
		zap.Int("housekeeping", res.Housekeeping),
		zap.Int("malformed", res.Malformed),
		zap.Int("write_failures", res.WriteFailures),
		zap.Int("reconnects", res.Reconnects),
	}
	if err != nil {
		logger.Error("Relay session ended", append(fields, zap.Error(err))...)
	} else {
		logger.Info("Relay session ended", fields...)
	}
	return res, err
}
