package relay

import (
	"context"
	stderrors "errors"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/Aidin1998/feedrelay/internal/feed"
	"github.com/Aidin1998/feedrelay/internal/sink"
	"github.com/Aidin1998/feedrelay/pkg/errors"
	"github.com/Aidin1998/feedrelay/pkg/metrics"
)

const maxLoggedPayload = 256

// errSessionOver reports that the deadline passed while reconnecting.
var errSessionOver = stderrors.New("session deadline reached")

type session struct {
	relay        *Relay
	cfg          Config
	logger       *zap.Logger
	span         trace.Span
	res          *Result
	subscription feed.Subscription
	housekeeping map[string]struct{}
}

func newSession(r *Relay, logger *zap.Logger, span trace.Span, res *Result) *session {
	s := &session{
		relay:        r,
		cfg:          r.cfg,
		logger:       logger,
		span:         span,
		res:          res,
		subscription: feed.Subscription{ProductIDs: r.cfg.ProductIDs, Channels: r.cfg.Channels},
		housekeeping: make(map[string]struct{}, len(r.cfg.HousekeepingTypes)),
	}
	for _, t := range r.cfg.HousekeepingTypes {
		s.housekeeping[t] = struct{}{}
	}
	return s
}

func (s *session) run(ctx context.Context) error {
	r := s.relay
	r.setState(StateSubscribing)
	defer r.setState(StateClosed)

	deadline := s.res.StartedAt.Add(s.cfg.Duration)
	sessCtx, cancel := context.WithDeadline(ctx, deadline)
	defer cancel()

	conn, err := s.connect(ctx)
	if err != nil {
		return err
	}
	defer func() {
		if conn != nil {
			if err := conn.Close(); err != nil {
				s.logger.Debug("Feed close failed", zap.Error(err))
			}
		}
	}()
	r.setState(StateStreaming)

	for r.now().Before(deadline) {
		raw, err := conn.Next(sessCtx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
				break
			}
			conn, err = s.reconnect(ctx, sessCtx, conn, err)
			if err == errSessionOver {
				break
			}
			if err != nil {
				return err
			}
			continue
		}

		forwarded, err := s.handle(ctx, raw)
		if err != nil {
			return err
		}
		if forwarded && s.cfg.Pacing > 0 {
			if err := s.pace(ctx, sessCtx); err != nil {
				if err == errSessionOver {
					break
				}
				return err
			}
		}
	}

	s.logger.Debug("Session deadline reached")
	return nil
}

// pace sleeps for the pacing interval after a forward. It returns
// errSessionOver when the deadline falls inside the interval.
func (s *session) pace(ctx, sessCtx context.Context) error {
	timer := time.NewTimer(s.cfg.Pacing)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-sessCtx.Done():
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return errSessionOver
	}
}

// connect dials and subscribes. It runs on the caller's context so the
// subscription is sent even when the session deadline has already passed.
func (s *session) connect(ctx context.Context) (Conn, error) {
	conn, err := s.relay.dialer.Dial(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, asConnectionError(err, "dial feed")
	}
	if err := conn.Subscribe(ctx, s.subscription); err != nil {
		_ = conn.Close()
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, asConnectionError(err, "subscribe")
	}
	return conn, nil
}

// reconnect replaces a failed connection according to the reconnect policy.
func (s *session) reconnect(ctx, sessCtx context.Context, conn Conn, cause error) (Conn, error) {
	_ = conn.Close()
	policy := s.cfg.Reconnect
	if policy.MaxAttempts <= 0 {
		return nil, asConnectionError(cause, "read feed")
	}

	s.relay.setState(StateSubscribing)
	backoff := policy.InitialBackoff
	lastErr := cause
	for attempt := 1; attempt <= policy.MaxAttempts; attempt++ {
		s.logger.Warn("Feed connection lost, reconnecting",
			zap.Int("attempt", attempt),
			zap.Duration("backoff", backoff),
			zap.Error(lastErr))

		timer := time.NewTimer(backoff)
		select {
		case <-sessCtx.Done():
			timer.Stop()
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			return nil, errSessionOver
		case <-timer.C:
		}

		backoff *= 2
		if backoff > policy.MaxBackoff {
			backoff = policy.MaxBackoff
		}

		// bounded by the session deadline, unlike the initial dial
		next, err := s.connect(sessCtx)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			if sessCtx.Err() != nil {
				return nil, errSessionOver
			}
			lastErr = err
			continue
		}

		s.res.Reconnects++
		metrics.Reconnects.Inc()
		s.span.AddEvent("reconnected", trace.WithAttributes(attribute.Int("attempt", attempt)))
		s.relay.setState(StateStreaming)
		s.logger.Info("Feed reconnected", zap.Int("attempt", attempt))
		return next, nil
	}
	return nil, errors.ConnectionError.
		Explain("gave up after %d reconnect attempts", policy.MaxAttempts).
		Wrap(lastErr)
}

// handle classifies one frame and forwards it when it is a data message.
func (s *session) handle(ctx context.Context, raw []byte) (bool, error) {
	s.res.Received++
	metrics.MessagesReceived.Inc()

	env, err := feed.Parse(raw)
	if err != nil {
		s.skipMalformed(raw, err)
		return false, nil
	}

	if _, ok := s.housekeeping[env.Type]; ok {
		s.res.Housekeeping++
		metrics.MessagesSkipped.WithLabelValues(metrics.ReasonHousekeeping).Inc()
		if env.Type == feed.TypeError {
			s.logger.Warn("Feed reported an error", zap.String("reason", env.Reason))
		} else {
			s.logger.Info("Housekeeping message discarded", zap.String("type", env.Type))
		}
		return false, nil
	}

	if env.ProductID == "" {
		s.skipMalformed(raw, errors.MalformedMessage.Explain("%s message without product_id", env.Type))
		return false, nil
	}

	if err := s.forward(ctx, env.ProductID, raw); err != nil {
		return false, err
	}
	return true, nil
}

func (s *session) skipMalformed(raw []byte, err error) {
	s.res.Malformed++
	metrics.MessagesSkipped.WithLabelValues(metrics.ReasonMalformed).Inc()
	if len(raw) > maxLoggedPayload {
		raw = raw[:maxLoggedPayload]
	}
	s.logger.Warn("Malformed message skipped", zap.Error(err), zap.ByteString("raw", raw))
}

// forward appends raw to the destination keyed by productID. Writes use the
// caller's context so an append in flight at the deadline still completes.
func (s *session) forward(ctx context.Context, productID string, raw []byte) error {
	rec := sink.Record{Stream: s.cfg.Stream, Data: raw, PartitionKey: productID}
	policy := s.cfg.Write
	backoff := policy.Backoff

	var lastErr error
	for attempt := 0; attempt <= policy.Retries; attempt++ {
		if attempt > 0 {
			timer := time.NewTimer(backoff)
			select {
			case <-ctx.Done():
				timer.Stop()
				return ctx.Err()
			case <-timer.C:
			}
			backoff *= 2
		}

		start := time.Now()
		ack, err := s.relay.sink.Append(ctx, rec)
		metrics.WriteLatency.Observe(time.Since(start).Seconds())
		if err == nil {
			s.res.Forwarded++
			s.res.PerProduct[productID]++
			metrics.MessagesForwarded.WithLabelValues(productID).Inc()
			s.logger.Debug("Forwarded",
				zap.String("product_id", productID),
				zap.Int("bytes", len(raw)),
				zap.String("shard", ack.Shard),
				zap.String("sequence", ack.Sequence))
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}

		lastErr = err
		s.res.WriteFailures++
		metrics.WriteFailures.Inc()
		s.logger.Error("Destination write failed",
			zap.String("product_id", productID),
			zap.Int("attempt", attempt+1),
			zap.Error(err))
	}

	if policy.OnFailure == OnFailureSkip {
		s.res.Dropped++
		metrics.MessagesSkipped.WithLabelValues(metrics.ReasonWriteFailed).Inc()
		s.logger.Warn("Dropping message after write failures", zap.String("product_id", productID))
		return nil
	}
	return errors.DestinationWriteError.
		Explain("append %s to %s", productID, s.cfg.Stream).
		Wrap(lastErr)
}

func asConnectionError(err error, op string) error {
	if errors.Is(err, errors.ConnectionError) {
		return err
	}
	return errors.ConnectionError.Explain("%s", op).Wrap(err)
}
