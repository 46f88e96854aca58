// Package memstore holds mutex-guarded in-memory implementations of the job,
// candidate and match stores. They back `serve --in-memory` and the tests,
// and follow the same contracts as the PostgreSQL stores, including
// optimistic versioning and the match-run token.
package memstore

import (
	"context"
	"slices"
	"sort"
	"sync"
	"time"

	"jobmate/matching-service/internal/apperr"
	"jobmate/matching-service/internal/job"
)

type runToken struct {
	token   string
	started time.Time
}

// Jobs implements job.Store.
type Jobs struct {
	mu     sync.Mutex
	jobs   map[string]*job.Job
	tokens map[string]runToken
	now    func() time.Time
}

// NewJobs returns an empty store.
func NewJobs() *Jobs {
	return &Jobs{
		jobs:   make(map[string]*job.Job),
		tokens: make(map[string]runToken),
		now:    time.Now,
	}
}

// Create implements job.Store.
func (s *Jobs) Create(_ context.Context, j *job.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.jobs[j.ID]; ok {
		return apperr.Invalid("job %s already exists", j.ID)
	}
	now := s.now()
	j.Version = 1
	j.CreatedAt = now
	j.UpdatedAt = now
	s.jobs[j.ID] = cloneJob(j)
	return nil
}

// Get implements job.Store.
func (s *Jobs) Get(_ context.Context, id string) (*job.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[id]
	if !ok {
		return nil, apperr.NotFoundf("job %s", id)
	}
	return cloneJob(j), nil
}

// GetMany implements job.Store.
func (s *Jobs) GetMany(_ context.Context, ids []string) (map[string]*job.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]*job.Job, len(ids))
	for _, id := range ids {
		if j, ok := s.jobs[id]; ok {
			out[id] = cloneJob(j)
		}
	}
	return out, nil
}

// Update implements job.Store.
func (s *Jobs) Update(_ context.Context, j *job.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.jobs[j.ID]
	if !ok || cur.Version != j.Version {
		return job.ErrVersionConflict
	}
	j.Version++
	j.UpdatedAt = s.now()
	j.PosterID, j.GroupID, j.CreatedAt = cur.PosterID, cur.GroupID, cur.CreatedAt
	s.jobs[j.ID] = cloneJob(j)
	return nil
}

// ListOpen implements job.Store.
func (s *Jobs) ListOpen(_ context.Context, f job.OpenFilter) ([]job.Job, error) {
	return s.list(func(j *job.Job) bool {
		if j.Status != job.StatusOpen || j.Archived {
			return false
		}
		if f.All {
			return true
		}
		if j.IsGroup() {
			return slices.Contains(f.GroupIDs, j.GroupID)
		}
		return f.NonGroup
	}), nil
}

// ListDuePending implements job.Store.
func (s *Jobs) ListDuePending(_ context.Context, asOf time.Time) ([]job.Job, error) {
	day := job.Day(asOf)
	return s.list(func(j *job.Job) bool {
		return j.Status == job.StatusPending && !j.Archived && !j.JobPostStartDate.After(day)
	}), nil
}

// ListExpiredOpen implements job.Store.
func (s *Jobs) ListExpiredOpen(_ context.Context, asOf time.Time) ([]job.Job, error) {
	day := job.Day(asOf)
	return s.list(func(j *job.Job) bool {
		return j.Status == job.StatusOpen && !j.Archived &&
			j.ExpirationDate != nil && j.ExpirationDate.Before(day)
	}), nil
}

// BeginMatchRun implements job.Store.
func (s *Jobs) BeginMatchRun(_ context.Context, id, token string, staleBefore time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[id]
	if !ok {
		return false, apperr.NotFoundf("job %s", id)
	}
	if j.Status != job.StatusOpen || j.Archived {
		return false, nil
	}
	if held, ok := s.tokens[id]; ok && !held.started.Before(staleBefore) {
		return false, nil
	}
	s.tokens[id] = runToken{token: token, started: s.now()}
	j.MatchesCalculationInProgress = true
	j.Version++
	return true, nil
}

// FinishMatchRun implements job.Store.
func (s *Jobs) FinishMatchRun(_ context.Context, id, token string, ok bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	held, found := s.tokens[id]
	if !found || held.token != token {
		return nil
	}
	delete(s.tokens, id)
	if j, exists := s.jobs[id]; exists {
		j.MatchesCalculationInProgress = !ok && job.AllowsInProgressFlag(j.Status)
		j.Version++
	}
	return nil
}

func (s *Jobs) list(keep func(*job.Job) bool) []job.Job {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]job.Job, 0)
	for _, j := range s.jobs {
		if keep(j) {
			out = append(out, *cloneJob(j))
		}
	}
	sort.Slice(out, func(a, b int) bool {
		if !out[a].CreatedAt.Equal(out[b].CreatedAt) {
			return out[a].CreatedAt.Before(out[b].CreatedAt)
		}
		return out[a].ID < out[b].ID
	})
	return out
}

func cloneJob(j *job.Job) *job.Job {
	c := *j
	if j.ExpirationDate != nil {
		exp := *j.ExpirationDate
		c.ExpirationDate = &exp
	}
	if j.Requirements.MinGPA != nil {
		g := *j.Requirements.MinGPA
		c.Requirements.MinGPA = &g
	}
	c.Requirements.DegreeTypes = slices.Clone(j.Requirements.DegreeTypes)
	c.Requirements.FieldsOfStudy = slices.Clone(j.Requirements.FieldsOfStudy)
	c.Requirements.Skills = slices.Clone(j.Requirements.Skills)
	c.Requirements.Keywords = slices.Clone(j.Requirements.Keywords)
	c.Requirements.ZipCodes = slices.Clone(j.Requirements.ZipCodes)
	c.Requirements.States = slices.Clone(j.Requirements.States)
	return &c
}
