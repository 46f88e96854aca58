package scheduler_test

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"jobmate/matching-service/internal/scheduler"
)

type fakeLifecycle struct {
	activated atomic.Int32
	expired   atomic.Int32
	fail      bool
}

func (f *fakeLifecycle) ActivateDue(context.Context) (int, error) {
	f.activated.Add(1)
	if f.fail {
		return 0, errors.New("boom")
	}
	return 2, nil
}

func (f *fakeLifecycle) ExpireDue(context.Context) (int, error) {
	f.expired.Add(1)
	if f.fail {
		return 0, errors.New("boom")
	}
	return 1, nil
}

func TestRunOnce_SweepsBothDirections(t *testing.T) {
	lc := &fakeLifecycle{}
	s := scheduler.New(lc, "@every 1h", zap.NewNop())

	s.RunOnce(context.Background())

	assert.Equal(t, int32(1), lc.activated.Load())
	assert.Equal(t, int32(1), lc.expired.Load())
}

func TestRunOnce_ExpireFailureStillActivates(t *testing.T) {
	lc := &fakeLifecycle{fail: true}
	s := scheduler.New(lc, "@every 1h", zap.NewNop())

	s.RunOnce(context.Background())

	assert.Equal(t, int32(1), lc.activated.Load())
	assert.Equal(t, int32(1), lc.expired.Load())
}

func TestStart_SweepsImmediately(t *testing.T) {
	lc := &fakeLifecycle{}
	s := scheduler.New(lc, "@every 1h", zap.NewNop())

	require.NoError(t, s.Start(context.Background()))
	assert.Eventually(t, func() bool { return lc.activated.Load() == 1 }, 2*time.Second, 10*time.Millisecond)
	s.Stop()
}

func TestStart_BadSpec(t *testing.T) {
	s := scheduler.New(&fakeLifecycle{}, "every now and then", zap.NewNop())
	assert.Error(t, s.Start(context.Background()))
}
