package job

import (
	"context"
	"errors"
	"time"
)

// ErrVersionConflict is returned by Store.Update when the row changed since it was read.
var ErrVersionConflict = errors.New("job was modified concurrently")

// OpenFilter selects OPEN jobs for a candidate-centric match run.
type OpenFilter struct {
	All      bool     // every OPEN job, ignoring the fields below
	GroupIDs []string // group jobs in any of these groups
	NonGroup bool     // include jobs open to the unaffiliated pool
}

// Store persists jobs. Registry is the only writer of job fields; the match
// orchestrator touches the run token and in-progress flag through
// BeginMatchRun/FinishMatchRun only.
type Store interface {
	Create(ctx context.Context, j *Job) error
	// Get returns the job or an apperr.ErrNotFound wrapped error.
	Get(ctx context.Context, id string) (*Job, error)
	// Update writes j when j.Version matches the stored version, then bumps it.
	Update(ctx context.Context, j *Job) error
	// GetMany returns the jobs found among ids, keyed by id.
	GetMany(ctx context.Context, ids []string) (map[string]*Job, error)

	ListOpen(ctx context.Context, f OpenFilter) ([]Job, error)
	// ListDuePending returns PENDING jobs whose start date is on or before asOf.
	ListDuePending(ctx context.Context, asOf time.Time) ([]Job, error)
	// ListExpiredOpen returns OPEN jobs whose expiration date is before asOf.
	ListExpiredOpen(ctx context.Context, asOf time.Time) ([]Job, error)

	// BeginMatchRun atomically claims the job for one match run: it succeeds
	// only when the job is OPEN and no other run holds a token newer than
	// staleBefore. On success the in-progress flag is set.
	BeginMatchRun(ctx context.Context, id, token string, staleBefore time.Time) (bool, error)
	// FinishMatchRun releases the token. ok=true clears the in-progress flag;
	// ok=false leaves it set while the job can still be matched so that the
	// next trigger retries.
	FinishMatchRun(ctx context.Context, id, token string, ok bool) error
}
