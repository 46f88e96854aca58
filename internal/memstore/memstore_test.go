package memstore_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"jobmate/matching-service/internal/apperr"
	"jobmate/matching-service/internal/candidate"
	"jobmate/matching-service/internal/job"
	"jobmate/matching-service/internal/match"
	"jobmate/matching-service/internal/memstore"
)

func TestJobs_UpdateChecksVersion(t *testing.T) {
	s := memstore.NewJobs()
	ctx := context.Background()
	require.NoError(t, s.Create(ctx, &job.Job{ID: "j-1", PosterID: "p-1", Status: job.StatusPending}))
	assert.True(t, apperr.IsValidation(s.Create(ctx, &job.Job{ID: "j-1"})))

	a, err := s.Get(ctx, "j-1")
	require.NoError(t, err)
	b, err := s.Get(ctx, "j-1")
	require.NoError(t, err)

	a.Title = "first"
	require.NoError(t, s.Update(ctx, a))
	b.Title = "second"
	assert.ErrorIs(t, s.Update(ctx, b), job.ErrVersionConflict)

	// Immutable fields survive an update.
	a.PosterID = "someone-else"
	require.NoError(t, s.Update(ctx, a))
	got, err := s.Get(ctx, "j-1")
	require.NoError(t, err)
	assert.Equal(t, "first", got.Title)
	assert.Equal(t, "p-1", got.PosterID)

	_, err = s.Get(ctx, "nope")
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestJobs_MatchRunToken(t *testing.T) {
	s := memstore.NewJobs()
	ctx := context.Background()
	require.NoError(t, s.Create(ctx, &job.Job{ID: "open", Status: job.StatusOpen}))
	require.NoError(t, s.Create(ctx, &job.Job{ID: "closed", Status: job.StatusClosed}))
	fresh := time.Now().Add(-time.Hour)

	ok, err := s.BeginMatchRun(ctx, "closed", "t-0", fresh)
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = s.BeginMatchRun(ctx, "open", "t-1", fresh)
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = s.BeginMatchRun(ctx, "open", "t-2", fresh)
	require.NoError(t, err)
	assert.False(t, ok)

	// Failure keeps the flag for a job that can still be matched.
	require.NoError(t, s.FinishMatchRun(ctx, "open", "t-1", false))
	j, err := s.Get(ctx, "open")
	require.NoError(t, err)
	assert.True(t, j.MatchesCalculationInProgress)

	ok, err = s.BeginMatchRun(ctx, "open", "t-3", fresh)
	require.NoError(t, err)
	require.True(t, ok)
	require.NoError(t, s.FinishMatchRun(ctx, "open", "t-3", true))
	j, err = s.Get(ctx, "open")
	require.NoError(t, err)
	assert.False(t, j.MatchesCalculationInProgress)

	_, err = s.BeginMatchRun(ctx, "nope", "t-4", fresh)
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestJobs_ListOpenFilters(t *testing.T) {
	s := memstore.NewJobs()
	ctx := context.Background()
	require.NoError(t, s.Create(ctx, &job.Job{ID: "pool", Status: job.StatusOpen}))
	require.NoError(t, s.Create(ctx, &job.Job{ID: "g1", GroupID: "g-1", Status: job.StatusOpen}))
	require.NoError(t, s.Create(ctx, &job.Job{ID: "g2", GroupID: "g-2", Status: job.StatusOpen}))
	require.NoError(t, s.Create(ctx, &job.Job{ID: "pending", Status: job.StatusPending}))

	ids := func(f job.OpenFilter) []string {
		js, err := s.ListOpen(ctx, f)
		require.NoError(t, err)
		out := []string{}
		for _, j := range js {
			out = append(out, j.ID)
		}
		return out
	}
	assert.ElementsMatch(t, []string{"pool", "g1", "g2"}, ids(job.OpenFilter{All: true}))
	assert.ElementsMatch(t, []string{"pool", "g1"}, ids(job.OpenFilter{GroupIDs: []string{"g-1"}, NonGroup: true}))
	assert.Equal(t, []string{"g2"}, ids(job.OpenFilter{GroupIDs: []string{"g-2"}}))
}

func TestMatches_UpsertConvergesPerPair(t *testing.T) {
	s := memstore.NewMatches()
	ctx := context.Background()

	n, err := s.Upsert(ctx, []match.Match{
		{JobID: "j-1", UserID: "u-1", Score: 50},
		{JobID: "j-1", UserID: "u-2", Score: 80},
	})
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	first, err := s.ListForJob(ctx, "j-1")
	require.NoError(t, err)
	require.Len(t, first, 2)
	_, err = s.SetStatus(ctx, []string{first[0].ID}, match.StatusWithdrawn)
	require.NoError(t, err)

	n, err = s.Upsert(ctx, []match.Match{{JobID: "j-1", UserID: first[0].UserID, Score: 99, MatchedSkills: []string{"go"}}})
	require.NoError(t, err)
	assert.Zero(t, n)

	again, err := s.ListForJob(ctx, "j-1")
	require.NoError(t, err)
	require.Len(t, again, 2)
	assert.Equal(t, first[0].ID, again[0].ID)
	assert.Equal(t, first[0].CreatedAt, again[0].CreatedAt)
	assert.Equal(t, match.StatusMatched, again[0].Status)
	assert.Equal(t, 99.0, again[0].Score)

	removed, err := s.DeleteForJob(ctx, "j-1")
	require.NoError(t, err)
	assert.Equal(t, 2, removed)

	// The pair can be matched again after removal.
	n, err = s.Upsert(ctx, []match.Match{{JobID: "j-1", UserID: "u-1"}})
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestMatches_SetStatusCountsChanges(t *testing.T) {
	s := memstore.NewMatches()
	ctx := context.Background()
	_, err := s.Upsert(ctx, []match.Match{{JobID: "j-1", UserID: "u-1"}})
	require.NoError(t, err)
	ms, err := s.ListForCandidate(ctx, "u-1")
	require.NoError(t, err)

	n, err := s.SetStatus(ctx, []string{ms[0].ID, "missing"}, match.StatusOffered)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	n, err = s.SetStatus(ctx, []string{ms[0].ID}, match.StatusOffered)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestCandidates_FetchByScope(t *testing.T) {
	s := memstore.NewCandidates(
		candidate.Profile{UserID: "b", OpenToAll: true, Active: true},
		candidate.Profile{UserID: "a", OpenToAll: true, Active: true, GroupIDs: []string{"g-1"}},
		candidate.Profile{UserID: "c", GroupIDs: []string{"g-1"}, Active: true, InstitutionIDs: []string{"inst-2"}},
		candidate.Profile{UserID: "d", OpenToAll: true},
	)
	ctx := context.Background()

	pool, err := s.FetchCandidates(ctx, candidate.Scope{OpenPool: true})
	require.NoError(t, err)
	require.Len(t, pool, 2)
	assert.Equal(t, "a", pool[0].UserID)
	assert.Equal(t, "b", pool[1].UserID)

	group, err := s.FetchCandidates(ctx, candidate.Scope{GroupID: "g-1", InstitutionID: "inst-2"})
	require.NoError(t, err)
	require.Len(t, group, 1)
	assert.Equal(t, "c", group[0].UserID)

	many, err := s.FetchMany(ctx, []string{"a", "zzz"})
	require.NoError(t, err)
	assert.Len(t, many, 1)

	_, err = s.FetchOne(ctx, "zzz")
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestLoadCandidates(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	empty, err := memstore.LoadCandidates("")
	require.NoError(t, err)
	all, err := empty.FetchCandidates(ctx, candidate.Scope{OpenPool: true})
	require.NoError(t, err)
	assert.Empty(t, all)

	good := filepath.Join(dir, "candidates.json")
	require.NoError(t, os.WriteFile(good, []byte(`[
		{"userId":"u-1","gpa":3.2,"skills":["Go"],"openToAll":true,"active":true},
		{"userId":"u-2","groupIds":["g-1"],"active":true}
	]`), 0o600))
	s, err := memstore.LoadCandidates(good)
	require.NoError(t, err)
	p, err := s.FetchOne(ctx, "u-1")
	require.NoError(t, err)
	require.NotNil(t, p.GPA)
	assert.Equal(t, 3.2, *p.GPA)
	group, err := s.FetchCandidates(ctx, candidate.Scope{GroupID: "g-1"})
	require.NoError(t, err)
	require.Len(t, group, 1)
	assert.Equal(t, "u-2", group[0].UserID)

	bad := filepath.Join(dir, "bad.json")
	require.NoError(t, os.WriteFile(bad, []byte(`[{"userId":"u-1","gpa":9}]`), 0o600))
	_, err = memstore.LoadCandidates(bad)
	assert.Error(t, err)

	_, err = memstore.LoadCandidates(filepath.Join(dir, "missing.json"))
	assert.Error(t, err)
}
