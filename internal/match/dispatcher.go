package match

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"jobmate/matching-service/internal/apperr"
	"jobmate/matching-service/internal/job"
)

// Runner is the part of Orchestrator that dispatchers drive.
type Runner interface {
	RunForJob(ctx context.Context, jobID string) (*RunSummary, error)
	RunForCandidate(ctx context.Context, userID string, opts CandidateRunOptions) (*CandidateSummary, error)
	RemoveJobMatches(ctx context.Context, jobID string) (int, error)
}

// Dispatcher is how the registry and the transports trigger match runs.
type Dispatcher interface {
	job.Dispatcher
	// DispatchCandidate requests a candidate-centric run. Synchronous
	// dispatchers return its summary; asynchronous ones return nil.
	DispatchCandidate(ctx context.Context, userID string, opts CandidateRunOptions) (*CandidateSummary, error)
}

var (
	_ Dispatcher = (*SyncDispatcher)(nil)
	_ Dispatcher = (*Queue)(nil)
	_ Runner     = (*Orchestrator)(nil)
)

// SyncDispatcher runs every request on the caller's goroutine, so callers
// observe the finished run before they respond.
type SyncDispatcher struct {
	runner Runner
	log    *zap.Logger
}

// NewSyncDispatcher returns a Dispatcher that runs inline.
func NewSyncDispatcher(r Runner, log *zap.Logger) *SyncDispatcher {
	return &SyncDispatcher{runner: r, log: log}
}

// DispatchJob implements job.Dispatcher. A run already held by another
// worker is not an error: that run will produce the same rows.
func (d *SyncDispatcher) DispatchJob(ctx context.Context, jobID string) error {
	_, err := d.runner.RunForJob(ctx, jobID)
	if errors.Is(err, apperr.ErrRunInProgress) {
		d.log.Info("match run already in progress", zap.String("jobId", jobID))
		return nil
	}
	return err
}

// JobArchived implements job.Dispatcher.
func (d *SyncDispatcher) JobArchived(ctx context.Context, jobID string) error {
	_, err := d.runner.RemoveJobMatches(ctx, jobID)
	return err
}

// DispatchCandidate implements Dispatcher.
func (d *SyncDispatcher) DispatchCandidate(ctx context.Context, userID string, opts CandidateRunOptions) (*CandidateSummary, error) {
	return d.runner.RunForCandidate(ctx, userID, opts)
}
