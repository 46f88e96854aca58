package match

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sort"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"jobmate/matching-service/internal/apperr"
	"jobmate/matching-service/internal/candidate"
	"jobmate/matching-service/internal/events"
	"jobmate/matching-service/internal/job"
)

// Orchestrator drives the evaluator over candidate or job populations and is
// the only writer of match rows.
type Orchestrator struct {
	jobs       job.Store
	candidates candidate.Store
	matches    Store
	events     events.Publisher
	counts     CountCache
	authz      job.Authorizer
	log        *zap.Logger

	parallelism   int
	staleRunAfter time.Duration
	now           func() time.Time
}

// Option customises an Orchestrator.
type Option func(*Orchestrator)

// WithParallelism bounds concurrent candidate evaluations within one run.
func WithParallelism(n int) Option {
	return func(o *Orchestrator) {
		if n > 0 {
			o.parallelism = n
		}
	}
}

// WithStaleRunAfter sets how long a run token is honoured before another
// worker may take the job over.
func WithStaleRunAfter(d time.Duration) Option {
	return func(o *Orchestrator) {
		if d > 0 {
			o.staleRunAfter = d
		}
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) { o.now = now }
}

// NewOrchestrator returns a configured Orchestrator.
func NewOrchestrator(
	jobs job.Store,
	candidates candidate.Store,
	matches Store,
	pub events.Publisher,
	counts CountCache,
	authz job.Authorizer,
	log *zap.Logger,
	opts ...Option,
) *Orchestrator {
	o := &Orchestrator{
		jobs:          jobs,
		candidates:    candidates,
		matches:       matches,
		events:        pub,
		counts:        counts,
		authz:         authz,
		log:           log,
		parallelism:   8,
		staleRunAfter: 30 * time.Minute,
		now:           time.Now,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// RunSummary describes one job-centric run.
type RunSummary struct {
	JobID          string `json:"jobId"`
	Evaluated      int    `json:"evaluated"`
	Qualified      int    `json:"qualified"`
	AlreadyMatched int    `json:"alreadyMatched"`
	Excluded       int    `json:"excluded"`
	Skipped        int    `json:"skipped"`
	Created        int    `json:"created"`
	Pruned         int    `json:"pruned"`
}

// RunForJob evaluates every candidate in the job's scope and upserts a match
// for each qualifier. Only one run per job proceeds at a time; a concurrent
// call gets apperr.ErrRunInProgress. When the run cannot complete the job
// keeps matchesCalculationInProgress=true so the next trigger retries.
func (o *Orchestrator) RunForJob(ctx context.Context, jobID string) (*RunSummary, error) {
	j, err := o.jobs.Get(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if j.Archived || !job.AllowsMatching(j.Status) {
		return nil, apperr.Invalid("job %s is %s; matching runs only for OPEN jobs", jobID, j.Status)
	}

	token := uuid.NewString()
	acquired, err := o.jobs.BeginMatchRun(ctx, jobID, token, o.now().Add(-o.staleRunAfter))
	if err != nil {
		return nil, &apperr.ComputationError{JobID: jobID, Err: err}
	}
	if !acquired {
		return nil, apperr.ErrRunInProgress
	}

	log := o.log.With(zap.String("jobId", jobID), zap.String("runToken", token))
	start := o.now()
	completed := false
	defer func() {
		// The run must release its token even when the caller's context is done.
		if err := o.jobs.FinishMatchRun(context.WithoutCancel(ctx), jobID, token, completed); err != nil {
			log.Error("releasing match run failed", zap.Error(err))
		}
	}()

	sum, touched, err := o.runForJob(ctx, log, j)
	if err != nil {
		log.Warn("match run failed; job stays flagged for recomputation", zap.Error(err))
		return nil, &apperr.ComputationError{JobID: jobID, Err: err}
	}
	completed = true

	log.Info("match run finished",
		zap.Int("evaluated", sum.Evaluated),
		zap.Int("qualified", sum.Qualified),
		zap.Int("created", sum.Created),
		zap.Int("pruned", sum.Pruned),
		zap.Int("skipped", sum.Skipped),
		zap.Duration("took", o.now().Sub(start)),
	)
	o.invalidateCounts(ctx, touched...)
	o.publish(ctx, events.JobMatchesCalculated, map[string]any{
		"jobId":     jobID,
		"qualified": sum.Qualified,
		"created":   sum.Created,
		"pruned":    sum.Pruned,
	})
	return sum, nil
}

// RunForJobAs is RunForJob for a caller who must own the job.
func (o *Orchestrator) RunForJobAs(ctx context.Context, actor job.Actor, jobID string) (*RunSummary, error) {
	j, err := o.jobs.Get(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if err := job.CheckOwnership(ctx, o.authz, actor, j); err != nil {
		return nil, err
	}
	return o.RunForJob(ctx, jobID)
}

func (o *Orchestrator) runForJob(ctx context.Context, log *zap.Logger, j *job.Job) (*RunSummary, []string, error) {
	criteria := CriteriaFromJob(j)
	scope := j.CandidateScope()

	profiles, err := o.candidates.FetchCandidates(ctx, scope)
	if err != nil {
		return nil, nil, fmt.Errorf("fetch candidates: %w", err)
	}
	existing, err := o.matches.ListForJob(ctx, j.ID)
	if err != nil {
		return nil, nil, fmt.Errorf("load existing matches: %w", err)
	}
	byUser := make(map[string]*Match, len(existing))
	for i := range existing {
		byUser[existing[i].UserID] = &existing[i]
	}

	results := make([]*Result, len(profiles))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(o.parallelism)
	for i := range profiles {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			p := &profiles[i]
			res, err := Evaluate(p, criteria, byUser[p.UserID])
			if err != nil {
				log.Warn("skipping candidate", zap.String("userId", p.UserID), zap.Error(err))
				return nil
			}
			results[i] = &res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}

	sum := &RunSummary{JobID: j.ID, Evaluated: len(profiles)}
	var (
		upserts []Match
		prune   []string
		touched []string
		inScope = make(map[string]bool, len(profiles))
	)
	for i, res := range results {
		inScope[profiles[i].UserID] = true
		if res == nil {
			sum.Skipped++
			continue
		}
		switch {
		case res.Qualifies:
			sum.Qualified++
			upserts = append(upserts, Match{
				JobID:         j.ID,
				UserID:        res.UserID,
				Score:         res.Score,
				MatchedSkills: res.MatchedSkills,
			})
			touched = append(touched, res.UserID)
		case res.StillQualifies():
			sum.AlreadyMatched++
			if m := byUser[res.UserID]; refreshes(m, res) {
				upserts = append(upserts, Match{
					JobID:         j.ID,
					UserID:        res.UserID,
					Score:         res.Score,
					MatchedSkills: res.MatchedSkills,
				})
			}
		default:
			if res.Failed(ReasonBlacklisted) {
				sum.Excluded++
			}
			// Requirements edited since the row was written, or a new
			// blacklist entry.
			if m := byUser[res.UserID]; m != nil && m.Status == StatusMatched {
				prune = append(prune, m.ID)
				touched = append(touched, m.UserID)
			}
		}
	}
	// Candidates who left the scope lose their MATCHED rows. Offered and
	// applied rows belong to downstream flows and stay.
	for i := range existing {
		m := &existing[i]
		if m.Status == StatusMatched && !inScope[m.UserID] {
			prune = append(prune, m.ID)
			touched = append(touched, m.UserID)
		}
	}

	if sum.Created, err = o.matches.Upsert(ctx, upserts); err != nil {
		return nil, nil, fmt.Errorf("persist matches: %w", err)
	}
	if sum.Pruned, err = o.matches.Delete(ctx, prune); err != nil {
		return nil, nil, fmt.Errorf("prune matches: %w", err)
	}

	// A job archived while the run was in flight must not keep rows.
	if fresh, err := o.jobs.Get(ctx, j.ID); err == nil && fresh.Archived {
		if _, err := o.matches.DeleteForJob(ctx, j.ID); err != nil {
			return nil, nil, fmt.Errorf("drop matches of archived job: %w", err)
		}
		log.Info("job archived during match run; matches dropped")
	}
	return sum, touched, nil
}

// CandidateRunOptions narrows a candidate-centric run.
type CandidateRunOptions struct {
	// GroupsOnly restricts the run to group jobs of the candidate's
	// affiliations, as the affiliation trigger does.
	GroupsOnly bool
}

// JobScore is one qualifying job in a candidate-centric summary.
type JobScore struct {
	JobID string  `json:"jobId"`
	Title string  `json:"title"`
	Score float64 `json:"score"`
}

// CandidateSummary describes one candidate-centric run. Jobs is ranked by
// score, best first.
type CandidateSummary struct {
	UserID    string     `json:"userId"`
	Evaluated int        `json:"evaluated"`
	Qualified int        `json:"qualified"`
	Created   int        `json:"created"`
	Pruned    int        `json:"pruned"`
	Skipped   int        `json:"skipped"`
	Jobs      []JobScore `json:"jobs"`
}

// RunForCandidate evaluates one candidate against every OPEN job in their
// eligible scopes and upserts a match for each qualifying job.
func (o *Orchestrator) RunForCandidate(ctx context.Context, userID string, opts CandidateRunOptions) (*CandidateSummary, error) {
	p, err := o.candidates.FetchOne(ctx, userID)
	if errors.Is(err, apperr.ErrNotFound) {
		return nil, err
	}
	if err != nil {
		return nil, &apperr.ComputationError{UserID: userID, Err: err}
	}

	sum := &CandidateSummary{UserID: userID, Jobs: []JobScore{}}
	if !p.Active {
		return sum, nil
	}

	jobs, err := o.jobs.ListOpen(ctx, job.OpenFilter{
		GroupIDs: p.GroupIDs,
		NonGroup: p.OpenToAll && !opts.GroupsOnly,
	})
	if err != nil {
		return nil, &apperr.ComputationError{UserID: userID, Err: fmt.Errorf("list open jobs: %w", err)}
	}
	existing, err := o.matches.ListForCandidate(ctx, userID)
	if err != nil {
		return nil, &apperr.ComputationError{UserID: userID, Err: fmt.Errorf("load existing matches: %w", err)}
	}
	byJob := make(map[string]*Match, len(existing))
	for i := range existing {
		byJob[existing[i].JobID] = &existing[i]
	}

	var (
		upserts []Match
		prune   []string
	)
	for i := range jobs {
		j := &jobs[i]
		if !j.CandidateScope().Contains(p) {
			continue
		}
		sum.Evaluated++
		res, err := Evaluate(p, CriteriaFromJob(j), byJob[j.ID])
		if err != nil {
			o.log.Warn("skipping job", zap.String("userId", userID), zap.String("jobId", j.ID), zap.Error(err))
			sum.Skipped++
			continue
		}
		m := byJob[j.ID]
		switch {
		case res.Qualifies:
			sum.Qualified++
			upserts = append(upserts, Match{JobID: j.ID, UserID: userID, Score: res.Score, MatchedSkills: res.MatchedSkills})
			sum.Jobs = append(sum.Jobs, JobScore{JobID: j.ID, Title: j.Title, Score: res.Score})
		case res.StillQualifies():
			if refreshes(m, &res) {
				upserts = append(upserts, Match{JobID: j.ID, UserID: userID, Score: res.Score, MatchedSkills: res.MatchedSkills})
			}
		default:
			if m != nil && m.Status == StatusMatched {
				prune = append(prune, m.ID)
			}
		}
	}

	if sum.Created, err = o.matches.Upsert(ctx, upserts); err != nil {
		return nil, &apperr.ComputationError{UserID: userID, Err: fmt.Errorf("persist matches: %w", err)}
	}
	if sum.Pruned, err = o.matches.Delete(ctx, prune); err != nil {
		return nil, &apperr.ComputationError{UserID: userID, Err: fmt.Errorf("prune matches: %w", err)}
	}
	sort.SliceStable(sum.Jobs, func(a, b int) bool {
		if sum.Jobs[a].Score != sum.Jobs[b].Score {
			return sum.Jobs[a].Score > sum.Jobs[b].Score
		}
		return sum.Jobs[a].JobID < sum.Jobs[b].JobID
	})

	o.log.Info("candidate match run finished",
		zap.String("userId", userID),
		zap.Bool("groupsOnly", opts.GroupsOnly),
		zap.Int("evaluated", sum.Evaluated),
		zap.Int("qualified", sum.Qualified),
		zap.Int("created", sum.Created),
		zap.Int("pruned", sum.Pruned),
	)
	o.invalidateCounts(ctx, userID)
	o.publish(ctx, events.CandidateMatchesCalculated, map[string]any{
		"userId":    userID,
		"qualified": sum.Qualified,
		"created":   sum.Created,
	})
	return sum, nil
}

// refreshes reports whether res changes the stored score or skills of m.
func refreshes(m *Match, res *Result) bool {
	return m != nil && (m.Score != res.Score || !slices.Equal(m.MatchedSkills, res.MatchedSkills))
}

// Explain evaluates one candidate against one job without writing anything.
// It backs the diagnostics endpoint that shows the job owner why a
// candidate is missing.
func (o *Orchestrator) Explain(ctx context.Context, actor job.Actor, jobID, userID string) (*Result, error) {
	j, err := o.jobs.Get(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if err := job.CheckOwnership(ctx, o.authz, actor, j); err != nil {
		return nil, err
	}
	p, err := o.candidates.FetchOne(ctx, userID)
	if err != nil {
		return nil, err
	}
	existing, err := o.matches.ListForCandidate(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("explain: %w", err)
	}
	var current *Match
	for i := range existing {
		if existing[i].JobID == jobID {
			current = &existing[i]
			break
		}
	}

	res, err := Evaluate(p, CriteriaFromJob(j), current)
	if err != nil {
		return nil, apperr.Invalid("candidate %s cannot be evaluated: %v", userID, err)
	}
	if !j.CandidateScope().Contains(p) {
		res.Unmet = append(res.Unmet, ReasonOutOfScope)
		res.Qualifies = false
	}
	return &res, nil
}

// RecomputeOpenJobs runs RunForJob for every OPEN job, one after another.
// Jobs already being computed elsewhere are skipped. It returns how many
// runs completed and the joined errors of those that failed.
func (o *Orchestrator) RecomputeOpenJobs(ctx context.Context) (int, error) {
	jobs, err := o.jobs.ListOpen(ctx, job.OpenFilter{All: true})
	if err != nil {
		return 0, fmt.Errorf("recompute: %w", err)
	}
	var (
		done int
		errs []error
	)
	for i := range jobs {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		_, err := o.RunForJob(ctx, jobs[i].ID)
		switch {
		case err == nil:
			done++
		case errors.Is(err, apperr.ErrRunInProgress):
			o.log.Info("recompute skipped busy job", zap.String("jobId", jobs[i].ID))
		default:
			errs = append(errs, err)
		}
	}
	return done, errors.Join(errs...)
}

// RemoveJobMatches deletes every match of a job. Archive calls it.
func (o *Orchestrator) RemoveJobMatches(ctx context.Context, jobID string) (int, error) {
	existing, err := o.matches.ListForJob(ctx, jobID)
	if err != nil {
		return 0, fmt.Errorf("removeJobMatches: %w", err)
	}
	n, err := o.matches.DeleteForJob(ctx, jobID)
	if err != nil {
		return 0, fmt.Errorf("removeJobMatches: %w", err)
	}
	users := make([]string, 0, len(existing))
	for _, m := range existing {
		users = append(users, m.UserID)
	}
	o.invalidateCounts(ctx, users...)
	o.log.Info("job matches removed", zap.String("jobId", jobID), zap.Int("removed", n))
	return n, nil
}

func (o *Orchestrator) invalidateCounts(ctx context.Context, userIDs ...string) {
	if len(userIDs) == 0 {
		return
	}
	if err := o.counts.Invalidate(ctx, userIDs...); err != nil {
		o.log.Warn("count cache invalidation failed", zap.Int("users", len(userIDs)), zap.Error(err))
	}
}

func (o *Orchestrator) publish(ctx context.Context, channel string, fields map[string]any) {
	if err := o.events.Publish(ctx, channel, fields); err != nil {
		o.log.Warn("publish event failed", zap.String("channel", channel), zap.Error(err))
	}
}
