// Package scheduler wires up the cron job that opens PENDING jobs whose start
// date has been reached and expires OPEN jobs past their expiration date.
package scheduler

import (
	"context"
	"fmt"
	"sync"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// Lifecycle is the part of job.Registry the scheduler drives.
type Lifecycle interface {
	ActivateDue(ctx context.Context) (int, error)
	ExpireDue(ctx context.Context) (int, error)
}

// Scheduler wraps robfig/cron and manages the lifecycle sweep.
type Scheduler struct {
	cron      *cron.Cron
	lifecycle Lifecycle
	spec      string // cron spec, e.g. "@every 15m"
	log       *zap.Logger

	mu sync.Mutex // one sweep at a time
}

// New creates a Scheduler that sweeps on spec.
func New(lc Lifecycle, spec string, log *zap.Logger) *Scheduler {
	return &Scheduler{
		cron:      cron.New(cron.WithLogger(cronLogger{log.Sugar()}), cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger))),
		lifecycle: lc,
		spec:      spec,
		log:       log,
	}
}

// Start registers the sweep and starts the scheduler. It also runs one sweep
// immediately so jobs that became due while the service was down open
// without waiting for the first tick.
func (s *Scheduler) Start(ctx context.Context) error {
	_, err := s.cron.AddFunc(s.spec, func() {
		s.RunOnce(ctx)
	})
	if err != nil {
		return fmt.Errorf("cron.AddFunc: %w", err)
	}

	s.cron.Start()
	s.log.Info("cron started", zap.String("spec", s.spec))

	go s.RunOnce(ctx)

	return nil
}

// Stop halts the scheduler and waits for a running sweep to finish.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
	s.log.Info("cron stopped")
}

// RunOnce performs one sweep. Concurrent calls are serialised.
func (s *Scheduler) RunOnce(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	expired, err := s.lifecycle.ExpireDue(ctx)
	if err != nil {
		s.log.Error("expire sweep failed", zap.Error(err))
	}
	opened, err := s.lifecycle.ActivateDue(ctx)
	if err != nil {
		s.log.Error("activate sweep failed", zap.Error(err))
	}
	s.log.Info("lifecycle sweep complete", zap.Int("expired", expired), zap.Int("opened", opened))
}

// cronLogger adapts zap to cron.Logger.
type cronLogger struct{ l *zap.SugaredLogger }

func (c cronLogger) Info(msg string, keysAndValues ...any) {
	c.l.Debugw(msg, keysAndValues...)
}

func (c cronLogger) Error(err error, msg string, keysAndValues ...any) {
	c.l.Errorw(msg, append(keysAndValues, "error", err)...)
}
