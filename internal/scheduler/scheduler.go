// Package scheduler fires relay sessions on a cron schedule.
package scheduler

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/Aidin1998/feedrelay/pkg/errors"
)

// Job is run on every firing. The context is cancelled when Stop gives up
// waiting.
type Job func(ctx context.Context) error

// Scheduler runs one job on a cron schedule. A firing that comes due while
// the previous one is still running is skipped.
type Scheduler struct {
	cron   *cron.Cron
	entry  cron.EntryID
	logger *zap.Logger

	ctx    context.Context
	cancel context.CancelFunc
}

var parser = cron.NewParser(
	cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
)

// New parses spec ("@every 15m", "*/14 * * * *", or six fields with seconds)
// and prepares the scheduler. Nothing runs until Start.
func New(spec string, job Job, logger *zap.Logger) (*Scheduler, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.Named("scheduler")
	cl := cronLogger{logger.Sugar()}

	ctx, cancel := context.WithCancel(context.Background())
	s := &Scheduler{
		cron: cron.New(
			cron.WithParser(parser),
			cron.WithLogger(cl),
			cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
		),
		logger: logger,
		ctx:    ctx,
		cancel: cancel,
	}

	id, err := s.cron.AddFunc(spec, func() {
		start := time.Now()
		s.logger.Info("Scheduled session firing")
		if err := job(s.ctx); err != nil {
			s.logger.Error("Scheduled session failed", zap.Duration("elapsed", time.Since(start)), zap.Error(err))
			return
		}
		s.logger.Info("Scheduled session completed", zap.Duration("elapsed", time.Since(start)))
	})
	if err != nil {
		cancel()
		return nil, errors.InvalidConfig.
			Explain("invalid schedule %q", spec).
			WithField("cron", "schedule.spec", err.Error())
	}
	s.entry = id
	return s, nil
}

func (s *Scheduler) Start() {
	s.cron.Start()
	s.logger.Info("Scheduler started", zap.Time("next", s.Next()))
}

// Next returns the next firing time, zero before Start.
func (s *Scheduler) Next() time.Time {
	return s.cron.Entry(s.entry).Next
}

// Stop prevents further firings and waits for a running job. If ctx ends
// first the job's context is cancelled and ctx.Err() is returned.
func (s *Scheduler) Stop(ctx context.Context) error {
	done := s.cron.Stop()
	select {
	case <-done.Done():
		s.cancel()
		s.logger.Info("Scheduler stopped")
		return nil
	case <-ctx.Done():
		s.cancel()
		s.logger.Warn("Scheduler stop timed out, cancelling running session")
		return ctx.Err()
	}
}

// cronLogger routes cron's internal logging to zap
type cronLogger struct {
	s *zap.SugaredLogger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.s.Debugw(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.s.Errorw(msg, append(keysAndValues, "error", err)...)
}
