// Package trigger runs relay sessions on demand. It is the single entry point
// shared by the one-shot command, the scheduler, and the HTTP API.
package trigger

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/Aidin1998/feedrelay/internal/config"
	"github.com/Aidin1998/feedrelay/internal/feed"
	"github.com/Aidin1998/feedrelay/internal/history"
	"github.com/Aidin1998/feedrelay/internal/relay"
	"github.com/Aidin1998/feedrelay/internal/sink"
	"github.com/Aidin1998/feedrelay/pkg/errors"
)

// Overrides adjust the configured session for a single invocation. Durations
// use Go duration syntax ("90s", "14m").
type Overrides struct {
	Duration   string   `json:"duration,omitempty"`
	Pacing     string   `json:"pacing,omitempty"`
	ProductIDs []string `json:"product_ids,omitempty"`
	Stream     string   `json:"stream,omitempty"`
}

// Response is returned to whoever triggered the session
type Response struct {
	Status  string        `json:"status"`
	Session *relay.Result `json:"session"`
}

// SinkFactory opens the destination for one session
type SinkFactory func(ctx context.Context) (sink.Writer, error)

// Option customizes a Handler
type Option func(*Handler)

// WithSinkFactory replaces the configured destination
func WithSinkFactory(f SinkFactory) Option {
	return func(h *Handler) { h.newSink = f }
}

// WithDialer replaces the websocket feed dialer
func WithDialer(d relay.Dialer) Option {
	return func(h *Handler) { h.dialer = d }
}

// Handler invokes at most one session at a time
type Handler struct {
	base    relay.Config
	dialer  relay.Dialer
	newSink SinkFactory
	history history.Store
	logger  *zap.Logger

	mu      sync.Mutex
	running atomic.Bool
	current atomic.Pointer[relay.Relay]
}

func New(cfg *config.Config, store history.Store, logger *zap.Logger, opts ...Option) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	if store == nil {
		store = history.NewMemory(cfg.History.Size)
	}
	h := &Handler{
		base:    cfg.Relay.Config,
		history: store,
		logger:  logger,
	}
	fd := &feed.Dialer{
		URL:              cfg.Relay.FeedURL,
		HandshakeTimeout: cfg.Relay.HandshakeTimeout,
		Logger:           logger,
	}
	h.dialer = relay.DialerFunc(func(ctx context.Context) (relay.Conn, error) {
		c, err := fd.Dial(ctx)
		if err != nil {
			return nil, err
		}
		return c, nil
	})
	sinkCfg := cfg.Sink
	h.newSink = func(ctx context.Context) (sink.Writer, error) {
		return sink.New(ctx, sinkCfg, logger)
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Invoke runs one session with the given overrides applied. The Response is
// non-nil whenever a session was started, including failed ones.
func (h *Handler) Invoke(ctx context.Context, o Overrides) (*Response, error) {
	if !h.mu.TryLock() {
		return nil, errors.SessionInProgress.Explain("a relay session is already running")
	}
	defer h.mu.Unlock()
	h.running.Store(true)
	defer h.running.Store(false)

	cfg, err := o.apply(h.base)
	if err != nil {
		return nil, err
	}

	w, err := h.newSink(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, errors.DestinationWriteError.Explain("open destination").Wrap(err)
	}
	defer func() {
		if err := w.Close(); err != nil {
			h.logger.Warn("Closing destination failed", zap.Error(err))
		}
	}()

	r, err := relay.New(cfg, h.dialer, w, h.logger.Named("relay"))
	if err != nil {
		return nil, err
	}
	h.current.Store(r)

	res, runErr := r.Run(ctx)

	if err := h.history.Record(context.WithoutCancel(ctx), *res); err != nil {
		h.logger.Warn("Recording session history failed",
			zap.String("session_id", res.SessionID), zap.Error(err))
	}
	return &Response{Status: res.Status, Session: res}, runErr
}

// State reports the state of the most recent session, or Idle when none ran.
func (h *Handler) State() relay.State {
	if r := h.current.Load(); r != nil {
		return r.State()
	}
	return relay.StateIdle
}

// Running reports whether a session is in progress
func (h *Handler) Running() bool { return h.running.Load() }

// Recent returns the latest session results, newest first
func (h *Handler) Recent(ctx context.Context, n int) ([]relay.Result, error) {
	return h.history.Recent(ctx, n)
}

func (o Overrides) apply(cfg relay.Config) (relay.Config, error) {
	invalid := errors.InvalidConfig.Explain("invalid overrides")
	bad := false
	if o.Duration != "" {
		d, err := time.ParseDuration(o.Duration)
		if err != nil {
			invalid, bad = invalid.WithField("duration", "duration", err.Error()), true
		}
		cfg.Duration = d
	}
	if o.Pacing != "" {
		p, err := time.ParseDuration(o.Pacing)
		if err != nil {
			invalid, bad = invalid.WithField("duration", "pacing", err.Error()), true
		}
		cfg.Pacing = p
	}
	if len(o.ProductIDs) > 0 {
		cfg.ProductIDs = o.ProductIDs
	}
	if o.Stream != "" {
		cfg.Stream = o.Stream
	}
	if bad {
		return cfg, invalid
	}
	return cfg, nil
}
