package job_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"jobmate/matching-service/internal/apperr"
	"jobmate/matching-service/internal/events"
	"jobmate/matching-service/internal/job"
	"jobmate/matching-service/internal/memstore"
)

type fakeDispatcher struct {
	mu         sync.Mutex
	dispatched []string
	archived   []string
	err        error
}

func (d *fakeDispatcher) DispatchJob(_ context.Context, jobID string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.dispatched = append(d.dispatched, jobID)
	return d.err
}

func (d *fakeDispatcher) JobArchived(_ context.Context, jobID string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.archived = append(d.archived, jobID)
	return nil
}

func (d *fakeDispatcher) dispatchCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.dispatched)
}

type fixture struct {
	store    job.Store
	dispatch *fakeDispatcher
	events   *events.Recorder
	reg      *job.Registry
	now      time.Time
}

var (
	owner    = job.Actor{UserID: "poster-1", InstitutionID: "inst-1"}
	staff    = job.Actor{UserID: "staff-9", InstitutionID: "inst-1"}
	stranger = job.Actor{UserID: "someone", InstitutionID: "inst-2"}
)

func newFixture(t *testing.T, store job.Store) *fixture {
	t.Helper()
	if store == nil {
		store = memstore.NewJobs()
	}
	f := &fixture{
		store:    store,
		dispatch: &fakeDispatcher{},
		events:   &events.Recorder{},
		now:      time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC),
	}
	f.reg = job.NewRegistry(store, job.OwnerAuthorizer{}, f.dispatch, f.events, zap.NewNop(),
		job.WithClock(func() time.Time { return f.now }))
	return f
}

func (f *fixture) day(offset int) time.Time {
	return job.Day(f.now).AddDate(0, 0, offset)
}

func (f *fixture) draft(startOffset int) job.Draft {
	return job.Draft{
		Title:            "Junior Go developer",
		InstitutionID:    "inst-1",
		JobPostStartDate: f.day(startOffset),
		Requirements:     job.Requirements{Skills: []string{"go"}},
	}
}

// ── Create ─────────────────────────────────────────────────────────────────

func TestCreate_StartTodayOpensAndDispatches(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	j, err := f.reg.CreateNonGroupJob(ctx, owner, f.draft(0))
	require.NoError(t, err)

	assert.Equal(t, job.StatusOpen, j.Status)
	assert.True(t, j.Active)
	assert.Equal(t, owner.UserID, j.PosterID)
	assert.Equal(t, []string{j.ID}, f.dispatch.dispatched)
	assert.Equal(t, 1, f.events.Count(events.JobStatusChanged))
}

func TestCreate_FutureStartStaysPending(t *testing.T) {
	f := newFixture(t, nil)

	j, err := f.reg.CreateNonGroupJob(context.Background(), owner, f.draft(3))
	require.NoError(t, err)

	assert.Equal(t, job.StatusPending, j.Status)
	assert.False(t, j.MatchesCalculationInProgress)
	assert.Zero(t, f.dispatch.dispatchCount())
}

func TestCreate_DispatchFailureKeepsFlag(t *testing.T) {
	f := newFixture(t, nil)
	f.dispatch.err = errors.New("queue full")

	j, err := f.reg.CreateNonGroupJob(context.Background(), owner, f.draft(0))
	require.NoError(t, err)
	assert.Equal(t, job.StatusOpen, j.Status)
	assert.True(t, j.MatchesCalculationInProgress)
}

func TestCreate_Validation(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	gpa := 7.0

	cases := []struct {
		name  string
		group bool
		edit  func(*job.Draft)
	}{
		{"missing title", false, func(d *job.Draft) { d.Title = "" }},
		{"group job without group", true, func(d *job.Draft) {}},
		{"non-group job with group", false, func(d *job.Draft) { d.GroupID = "g-1" }},
		{"missing start date", false, func(d *job.Draft) { d.JobPostStartDate = time.Time{} }},
		{"expiration before start", false, func(d *job.Draft) {
			exp := f.day(-1)
			d.ExpirationDate = &exp
		}},
		{"gpa out of range", false, func(d *job.Draft) { d.Requirements.MinGPA = &gpa }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			d := f.draft(0)
			tc.edit(&d)
			var err error
			if tc.group {
				_, err = f.reg.CreateGroupJob(ctx, owner, d)
			} else {
				_, err = f.reg.CreateNonGroupJob(ctx, owner, d)
			}
			assert.True(t, apperr.IsValidation(err), "got %v", err)
		})
	}
	assert.Zero(t, f.dispatch.dispatchCount())
}

func TestCreate_RequiresPoster(t *testing.T) {
	f := newFixture(t, nil)
	_, err := f.reg.CreateNonGroupJob(context.Background(), job.Actor{}, f.draft(0))
	assert.True(t, apperr.IsValidation(err))
}

// ── Update ─────────────────────────────────────────────────────────────────

func TestUpdate_OpenJobDoesNotRecompute(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	j, err := f.reg.CreateNonGroupJob(ctx, owner, f.draft(0))
	require.NoError(t, err)

	d := f.draft(0)
	d.Title = "Senior Go developer"
	d.Requirements.Skills = []string{"go", "kubernetes"}
	updated, err := f.reg.UpdateNonGroupJob(ctx, owner, j.ID, d)
	require.NoError(t, err)

	assert.Equal(t, "Senior Go developer", updated.Title)
	assert.Equal(t, []string{"go", "kubernetes"}, updated.Requirements.Skills)
	assert.Equal(t, 1, f.dispatch.dispatchCount())
}

func TestUpdate_PendingReachingStartDateOpens(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	j, err := f.reg.CreateNonGroupJob(ctx, owner, f.draft(5))
	require.NoError(t, err)

	updated, err := f.reg.UpdateNonGroupJob(ctx, staff, j.ID, f.draft(0))
	require.NoError(t, err)
	assert.Equal(t, job.StatusOpen, updated.Status)
	assert.Equal(t, []string{j.ID}, f.dispatch.dispatched)
}

func TestUpdate_Rejections(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	gd := f.draft(0)
	gd.GroupID = "g-1"
	group, err := f.reg.CreateGroupJob(ctx, owner, gd)
	require.NoError(t, err)

	_, err = f.reg.UpdateGroupJob(ctx, stranger, group.ID, gd)
	assert.ErrorIs(t, err, apperr.ErrAccessDenied)

	_, err = f.reg.UpdateNonGroupJob(ctx, owner, group.ID, f.draft(0))
	assert.True(t, apperr.IsValidation(err), "kind mismatch: %v", err)

	moved := gd
	moved.GroupID = "g-2"
	_, err = f.reg.UpdateGroupJob(ctx, owner, group.ID, moved)
	assert.True(t, apperr.IsValidation(err), "group change: %v", err)

	_, err = f.reg.UpdateGroupJob(ctx, owner, "", gd)
	assert.True(t, apperr.IsValidation(err))

	_, err = f.reg.UpdateGroupJob(ctx, owner, "missing", gd)
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

// conflictingStore fails the first n updates with a version conflict.
type conflictingStore struct {
	*memstore.Jobs
	n int
}

func (s *conflictingStore) Update(ctx context.Context, j *job.Job) error {
	if s.n > 0 {
		s.n--
		return job.ErrVersionConflict
	}
	return s.Jobs.Update(ctx, j)
}

func TestUpdate_RetriesVersionConflicts(t *testing.T) {
	store := &conflictingStore{Jobs: memstore.NewJobs()}
	f := newFixture(t, store)
	ctx := context.Background()
	j, err := f.reg.CreateNonGroupJob(ctx, owner, f.draft(0))
	require.NoError(t, err)

	store.n = 2
	_, err = f.reg.Close(ctx, owner, j.ID)
	require.NoError(t, err)

	store.n = 3
	_, err = f.reg.Archive(ctx, owner, j.ID)
	assert.ErrorIs(t, err, job.ErrVersionConflict)
}

// ── Re-open / Close / Archive ──────────────────────────────────────────────

func TestReopen_ClosedJob(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	j, err := f.reg.CreateNonGroupJob(ctx, owner, f.draft(0))
	require.NoError(t, err)

	closed, err := f.reg.Close(ctx, owner, j.ID)
	require.NoError(t, err)
	assert.Equal(t, job.StatusClosed, closed.Status)
	assert.False(t, closed.MatchesCalculationInProgress)

	exp := f.day(30)
	reopened, err := f.reg.Reopen(ctx, owner, j.ID, &exp)
	require.NoError(t, err)
	assert.Equal(t, job.StatusOpen, reopened.Status)
	require.NotNil(t, reopened.ExpirationDate)
	assert.True(t, exp.Equal(*reopened.ExpirationDate))
	assert.Equal(t, 2, f.dispatch.dispatchCount())
}

func TestReopen_FutureStartGoesBackToPending(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	j, err := f.reg.CreateNonGroupJob(ctx, owner, f.draft(7))
	require.NoError(t, err)
	require.Equal(t, job.StatusPending, j.Status)

	_, err = f.reg.Close(ctx, owner, j.ID)
	require.NoError(t, err)

	exp := f.day(30)
	reopened, err := f.reg.Reopen(ctx, owner, j.ID, &exp)
	require.NoError(t, err)
	assert.Equal(t, job.StatusPending, reopened.Status)
	assert.False(t, reopened.MatchesCalculationInProgress)
	assert.Zero(t, f.dispatch.dispatchCount())

	// Re-opening a PENDING job only moves its expiration.
	later := f.day(40)
	again, err := f.reg.Reopen(ctx, owner, j.ID, &later)
	require.NoError(t, err)
	assert.Equal(t, job.StatusPending, again.Status)
	assert.True(t, later.Equal(*again.ExpirationDate))
	assert.Zero(t, f.dispatch.dispatchCount())

	f.now = f.now.AddDate(0, 0, 7)
	opened, err := f.reg.ActivateDue(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, opened)
	assert.Equal(t, 1, f.dispatch.dispatchCount())
}

func TestReopen_OpenJobOnlyExtends(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	j, err := f.reg.CreateNonGroupJob(ctx, owner, f.draft(0))
	require.NoError(t, err)

	exp := f.day(10)
	got, err := f.reg.Reopen(ctx, owner, j.ID, &exp)
	require.NoError(t, err)
	assert.Equal(t, job.StatusOpen, got.Status)
	assert.Equal(t, 1, f.dispatch.dispatchCount())
}

func TestReopen_WithoutDateCloses(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	j, err := f.reg.CreateNonGroupJob(ctx, owner, f.draft(0))
	require.NoError(t, err)

	got, err := f.reg.Reopen(ctx, owner, j.ID, nil)
	require.NoError(t, err)
	assert.Equal(t, job.StatusClosed, got.Status)
}

func TestReopen_PastDateRejected(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	j, err := f.reg.CreateNonGroupJob(ctx, owner, f.draft(0))
	require.NoError(t, err)
	_, err = f.reg.Close(ctx, owner, j.ID)
	require.NoError(t, err)

	past := f.day(-1)
	_, err = f.reg.Reopen(ctx, owner, j.ID, &past)
	assert.True(t, apperr.IsValidation(err))
}

func TestClose_IsIdempotent(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	j, err := f.reg.CreateNonGroupJob(ctx, owner, f.draft(0))
	require.NoError(t, err)

	_, err = f.reg.Close(ctx, owner, j.ID)
	require.NoError(t, err)
	_, err = f.reg.Close(ctx, owner, j.ID)
	require.NoError(t, err)
	// created + closed
	assert.Equal(t, 2, f.events.Count(events.JobStatusChanged))
}

func TestArchive_IsTerminal(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	j, err := f.reg.CreateNonGroupJob(ctx, owner, f.draft(0))
	require.NoError(t, err)

	archived, err := f.reg.Archive(ctx, owner, j.ID)
	require.NoError(t, err)
	assert.Equal(t, job.StatusArchived, archived.Status)
	assert.True(t, archived.Archived)
	assert.False(t, archived.Active)
	assert.Equal(t, []string{j.ID}, f.dispatch.archived)

	_, err = f.reg.Archive(ctx, owner, j.ID)
	require.NoError(t, err)
	assert.Len(t, f.dispatch.archived, 1)

	exp := f.day(10)
	_, err = f.reg.Reopen(ctx, owner, j.ID, &exp)
	assert.True(t, apperr.IsValidation(err))
	_, err = f.reg.Close(ctx, owner, j.ID)
	assert.True(t, apperr.IsValidation(err))
	_, err = f.reg.UpdateNonGroupJob(ctx, owner, j.ID, f.draft(0))
	assert.True(t, apperr.IsValidation(err))
}

// ── Recompute ──────────────────────────────────────────────────────────────

func TestRequestRecompute(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	open, err := f.reg.CreateNonGroupJob(ctx, owner, f.draft(0))
	require.NoError(t, err)
	pending, err := f.reg.CreateNonGroupJob(ctx, owner, f.draft(2))
	require.NoError(t, err)

	_, err = f.reg.RequestRecompute(ctx, owner, open.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{open.ID, open.ID}, f.dispatch.dispatched)

	_, err = f.reg.RequestRecompute(ctx, owner, pending.ID)
	assert.True(t, apperr.IsValidation(err))

	_, err = f.reg.RequestRecompute(ctx, stranger, open.ID)
	assert.ErrorIs(t, err, apperr.ErrAccessDenied)
}

// ── Scheduled transitions ──────────────────────────────────────────────────

func TestActivateDue_OpensReachedJobs(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	soon, err := f.reg.CreateNonGroupJob(ctx, owner, f.draft(1))
	require.NoError(t, err)
	later, err := f.reg.CreateNonGroupJob(ctx, owner, f.draft(5))
	require.NoError(t, err)

	n, err := f.reg.ActivateDue(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)

	f.now = f.now.AddDate(0, 0, 1)
	n, err = f.reg.ActivateDue(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	got, err := f.reg.Get(ctx, soon.ID)
	require.NoError(t, err)
	assert.Equal(t, job.StatusOpen, got.Status)
	assert.True(t, got.MatchesCalculationInProgress)
	assert.Equal(t, []string{soon.ID}, f.dispatch.dispatched)

	got, err = f.reg.Get(ctx, later.ID)
	require.NoError(t, err)
	assert.Equal(t, job.StatusPending, got.Status)
}

func TestExpireDue_ExpiresPastExpiration(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	d := f.draft(0)
	exp := f.day(0)
	d.ExpirationDate = &exp
	j, err := f.reg.CreateNonGroupJob(ctx, owner, d)
	require.NoError(t, err)

	// Still valid on its expiration day.
	n, err := f.reg.ExpireDue(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)

	f.now = f.now.AddDate(0, 0, 1)
	n, err = f.reg.ExpireDue(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	got, err := f.reg.Get(ctx, j.ID)
	require.NoError(t, err)
	assert.Equal(t, job.StatusExpired, got.Status)
	assert.False(t, got.MatchesCalculationInProgress)

	// An expired job can be re-opened with a fresh date.
	next := f.day(14)
	got, err = f.reg.Reopen(ctx, owner, j.ID, &next)
	require.NoError(t, err)
	assert.Equal(t, job.StatusOpen, got.Status)
}

// ── Ownership ──────────────────────────────────────────────────────────────

func TestCheckOwnership(t *testing.T) {
	j := &job.Job{PosterID: "poster-1", InstitutionID: "inst-1"}
	ctx := context.Background()
	authz := job.OwnerAuthorizer{}

	assert.NoError(t, job.CheckOwnership(ctx, authz, owner, j))
	assert.NoError(t, job.CheckOwnership(ctx, authz, staff, j))
	assert.ErrorIs(t, job.CheckOwnership(ctx, authz, stranger, j), apperr.ErrAccessDenied)
	assert.ErrorIs(t, job.CheckOwnership(ctx, authz, job.Actor{}, &job.Job{}), apperr.ErrAccessDenied)
}
