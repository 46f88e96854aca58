package job

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"jobmate/matching-service/internal/apperr"
	"jobmate/matching-service/internal/events"
)

// Dispatcher hands lifecycle transitions to the match orchestrator, either
// inline or through its queue.
type Dispatcher interface {
	// DispatchJob requests a job-centric match run.
	DispatchJob(ctx context.Context, jobID string) error
	// JobArchived removes the matches of an archived job.
	JobArchived(ctx context.Context, jobID string) error
}

// maxUpdateAttempts bounds the optimistic-locking retry loop in mutate.
const maxUpdateAttempts = 3

// Registry is the only writer of job postings.
type Registry struct {
	store    Store
	authz    Authorizer
	dispatch Dispatcher
	events   events.Publisher
	now      func() time.Time
	log      *zap.Logger
}

// Option customises a Registry.
type Option func(*Registry)

// WithClock overrides the time source; tests pin "today" with it.
func WithClock(now func() time.Time) Option {
	return func(r *Registry) { r.now = now }
}

// NewRegistry returns a configured Registry.
func NewRegistry(store Store, authz Authorizer, dispatch Dispatcher, pub events.Publisher, log *zap.Logger, opts ...Option) *Registry {
	r := &Registry{
		store:    store,
		authz:    authz,
		dispatch: dispatch,
		events:   pub,
		now:      time.Now,
		log:      log,
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

func (r *Registry) today() time.Time { return Day(r.now()) }

// Get returns a job by id.
func (r *Registry) Get(ctx context.Context, id string) (*Job, error) {
	return r.store.Get(ctx, id)
}

// CreateGroupJob creates a job visible to members of draft.GroupID.
func (r *Registry) CreateGroupJob(ctx context.Context, actor Actor, d Draft) (*Job, error) {
	return r.create(ctx, actor, d, true)
}

// CreateNonGroupJob creates a job visible to the open candidate pool.
func (r *Registry) CreateNonGroupJob(ctx context.Context, actor Actor, d Draft) (*Job, error) {
	return r.create(ctx, actor, d, false)
}

func (r *Registry) create(ctx context.Context, actor Actor, d Draft, group bool) (*Job, error) {
	if actor.UserID == "" {
		return nil, apperr.Invalid("poster id is required")
	}
	if err := d.validate(group); err != nil {
		return nil, err
	}

	j := &Job{
		ID:       uuid.NewString(),
		PosterID: actor.UserID,
		GroupID:  d.GroupID,
		Status:   StatusPending,
		Active:   true,
	}
	d.applyTo(j)

	if !j.JobPostStartDate.After(r.today()) {
		j.Status = StatusOpen
		j.MatchesCalculationInProgress = true
	}

	if err := r.store.Create(ctx, j); err != nil {
		return nil, err
	}
	r.log.Info("job created",
		zap.String("jobId", j.ID),
		zap.Bool("group", group),
		zap.String("status", string(j.Status)),
	)
	r.publishStatus(ctx, j.ID, "", j.Status)

	if j.Status == StatusOpen {
		return r.dispatchAndReload(ctx, j)
	}
	return j, nil
}

// UpdateGroupJob edits a group job.
func (r *Registry) UpdateGroupJob(ctx context.Context, actor Actor, id string, d Draft) (*Job, error) {
	return r.update(ctx, actor, id, d, true)
}

// UpdateNonGroupJob edits a non-group job.
func (r *Registry) UpdateNonGroupJob(ctx context.Context, actor Actor, id string, d Draft) (*Job, error) {
	return r.update(ctx, actor, id, d, false)
}

// update stores edits without recomputing matches. The only transition it
// performs is PENDING → OPEN when the (possibly edited) start date is reached.
func (r *Registry) update(ctx context.Context, actor Actor, id string, d Draft, group bool) (*Job, error) {
	if id == "" {
		return nil, apperr.Invalid("job id is required")
	}
	if err := d.validate(group); err != nil {
		return nil, err
	}

	var opened bool
	j, err := r.mutate(ctx, actor, id, func(j *Job) error {
		opened = false
		if j.Archived {
			return apperr.Invalid("job %s is archived", id)
		}
		if j.IsGroup() != group {
			return apperr.Invalid("job %s is not a %s job", id, kind(group))
		}
		if group && d.GroupID != j.GroupID {
			return apperr.Invalid("groupId of job %s cannot change", id)
		}
		d.applyTo(j)
		if j.Status == StatusPending && !j.JobPostStartDate.After(r.today()) {
			j.Status = StatusOpen
			j.MatchesCalculationInProgress = true
			opened = true
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if opened {
		r.publishStatus(ctx, j.ID, StatusPending, StatusOpen)
		return r.dispatchAndReload(ctx, j)
	}
	return j, nil
}

// Reopen sets a Closed or Expired job back to OPEN with a new expiration
// date. A job whose start date is still ahead goes back to PENDING instead
// and is matched once the start date is reached. A nil expiration turns the
// call into Close.
func (r *Registry) Reopen(ctx context.Context, actor Actor, id string, expiration *time.Time) (*Job, error) {
	if expiration == nil {
		return r.Close(ctx, actor, id)
	}
	exp := Day(*expiration)
	if exp.Before(r.today()) {
		return nil, apperr.Invalid("expirationDate %s is in the past", exp.Format(time.DateOnly))
	}

	var from, to Status
	j, err := r.mutate(ctx, actor, id, func(j *Job) error {
		from, to = j.Status, j.Status
		if exp.Before(j.JobPostStartDate) {
			return apperr.Invalid("expirationDate must not precede jobPostStartDate")
		}
		if j.Status == StatusOpen {
			j.ExpirationDate = &exp
			return nil
		}
		if !IsTransitionAllowed(j.Status, StatusOpen) {
			return apperr.Invalid("job %s cannot be re-opened from %s", id, j.Status)
		}
		to = StatusOpen
		if j.JobPostStartDate.After(r.today()) {
			to = StatusPending
		}
		j.Status = to
		j.ExpirationDate = &exp
		j.MatchesCalculationInProgress = to == StatusOpen
		return nil
	})
	if err != nil {
		return nil, err
	}

	if from == to {
		r.log.Info("job expiration extended", zap.String("jobId", id), zap.Time("expirationDate", exp))
		return j, nil
	}
	r.publishStatus(ctx, id, from, to)
	if to != StatusOpen {
		return j, nil
	}
	return r.dispatchAndReload(ctx, j)
}

// Close moves a job to CLOSED. Closing a CLOSED job is a no-op.
func (r *Registry) Close(ctx context.Context, actor Actor, id string) (*Job, error) {
	var from Status
	j, err := r.mutate(ctx, actor, id, func(j *Job) error {
		from = j.Status
		if j.Status == StatusClosed {
			return nil
		}
		if !IsTransitionAllowed(j.Status, StatusClosed) {
			return apperr.Invalid("job %s cannot be closed from %s", id, j.Status)
		}
		j.Status = StatusClosed
		j.MatchesCalculationInProgress = false
		return nil
	})
	if err != nil {
		return nil, err
	}
	if from != StatusClosed {
		r.publishStatus(ctx, id, from, StatusClosed)
	}
	return j, nil
}

// Archive retires a job permanently and drops its matches.
func (r *Registry) Archive(ctx context.Context, actor Actor, id string) (*Job, error) {
	var from Status
	j, err := r.mutate(ctx, actor, id, func(j *Job) error {
		from = j.Status
		if j.Archived {
			return nil
		}
		j.Status = StatusArchived
		j.Archived = true
		j.Active = false
		j.MatchesCalculationInProgress = false
		return nil
	})
	if err != nil {
		return nil, err
	}
	if from == StatusArchived {
		return j, nil
	}

	r.publishStatus(ctx, id, from, StatusArchived)
	if err := r.dispatch.JobArchived(ctx, id); err != nil {
		r.log.Warn("removing matches of archived job failed", zap.String("jobId", id), zap.Error(err))
	}
	return j, nil
}

// RequestRecompute dispatches a fresh match run for an OPEN job on behalf of
// its owner. It is the operator path for jobs left flagged by a failed run.
func (r *Registry) RequestRecompute(ctx context.Context, actor Actor, id string) (*Job, error) {
	j, err := r.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := CheckOwnership(ctx, r.authz, actor, j); err != nil {
		return nil, err
	}
	if j.Archived || !AllowsMatching(j.Status) {
		return nil, apperr.Invalid("job %s is %s; only OPEN jobs can be recomputed", id, j.Status)
	}
	if err := r.dispatch.DispatchJob(ctx, id); err != nil {
		return nil, err
	}
	return r.store.Get(ctx, id)
}

// ActivateDue opens every PENDING job whose start date has been reached and
// dispatches its first match run. It returns how many jobs were opened.
func (r *Registry) ActivateDue(ctx context.Context) (int, error) {
	due, err := r.store.ListDuePending(ctx, r.today())
	if err != nil {
		return 0, fmt.Errorf("activateDue: %w", err)
	}

	opened := 0
	for _, d := range due {
		var changed bool
		j, err := r.mutateSystem(ctx, d.ID, func(j *Job) error {
			changed = false
			if j.Status != StatusPending || j.JobPostStartDate.After(r.today()) {
				return nil
			}
			j.Status = StatusOpen
			j.MatchesCalculationInProgress = true
			changed = true
			return nil
		})
		if err != nil {
			r.log.Warn("activating pending job failed", zap.String("jobId", d.ID), zap.Error(err))
			continue
		}
		if !changed {
			continue
		}
		opened++
		r.publishStatus(ctx, j.ID, StatusPending, StatusOpen)
		if err := r.dispatch.DispatchJob(ctx, j.ID); err != nil {
			r.log.Warn("dispatching match run failed", zap.String("jobId", j.ID), zap.Error(err))
		}
	}
	return opened, nil
}

// ExpireDue moves OPEN jobs past their expiration date to EXPIRED.
func (r *Registry) ExpireDue(ctx context.Context) (int, error) {
	due, err := r.store.ListExpiredOpen(ctx, r.today())
	if err != nil {
		return 0, fmt.Errorf("expireDue: %w", err)
	}

	expired := 0
	for _, d := range due {
		var changed bool
		_, err := r.mutateSystem(ctx, d.ID, func(j *Job) error {
			changed = false
			if j.Status != StatusOpen || j.ExpirationDate == nil || !j.ExpirationDate.Before(r.today()) {
				return nil
			}
			j.Status = StatusExpired
			j.MatchesCalculationInProgress = false
			changed = true
			return nil
		})
		if err != nil {
			r.log.Warn("expiring job failed", zap.String("jobId", d.ID), zap.Error(err))
			continue
		}
		if changed {
			expired++
			r.publishStatus(ctx, d.ID, StatusOpen, StatusExpired)
		}
	}
	return expired, nil
}

// mutate loads a job, checks ownership, applies fn and writes it back,
// retrying when a concurrent writer bumped the version in between.
func (r *Registry) mutate(ctx context.Context, actor Actor, id string, fn func(*Job) error) (*Job, error) {
	return r.mutateWith(ctx, id, func(j *Job) error {
		if err := CheckOwnership(ctx, r.authz, actor, j); err != nil {
			return err
		}
		return fn(j)
	})
}

// mutateSystem is mutate without an ownership check, for scheduler-driven transitions.
func (r *Registry) mutateSystem(ctx context.Context, id string, fn func(*Job) error) (*Job, error) {
	return r.mutateWith(ctx, id, fn)
}

func (r *Registry) mutateWith(ctx context.Context, id string, fn func(*Job) error) (*Job, error) {
	for attempt := 1; ; attempt++ {
		j, err := r.store.Get(ctx, id)
		if err != nil {
			return nil, err
		}
		if err := fn(j); err != nil {
			return nil, err
		}
		err = r.store.Update(ctx, j)
		if err == nil {
			return j, nil
		}
		if !errors.Is(err, ErrVersionConflict) || attempt == maxUpdateAttempts {
			return nil, fmt.Errorf("update job %s: %w", id, err)
		}
		r.log.Debug("job version conflict, retrying", zap.String("jobId", id), zap.Int("attempt", attempt))
	}
}

// dispatchAndReload hands the job to the orchestrator and returns its latest
// state so synchronous callers observe the cleared in-progress flag.
func (r *Registry) dispatchAndReload(ctx context.Context, j *Job) (*Job, error) {
	if err := r.dispatch.DispatchJob(ctx, j.ID); err != nil {
		// The in-progress flag stays set; a later trigger retries.
		r.log.Warn("dispatching match run failed", zap.String("jobId", j.ID), zap.Error(err))
		return j, nil
	}
	fresh, err := r.store.Get(ctx, j.ID)
	if err != nil {
		return j, nil
	}
	return fresh, nil
}

func (r *Registry) publishStatus(ctx context.Context, jobID string, from, to Status) {
	err := r.events.Publish(ctx, events.JobStatusChanged, map[string]any{
		"jobId": jobID,
		"from":  string(from),
		"to":    string(to),
	})
	if err != nil {
		r.log.Warn("publish job status event failed", zap.String("jobId", jobID), zap.Error(err))
	}
}

func kind(group bool) string {
	if group {
		return "group"
	}
	return "non-group"
}
