package match

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"jobmate/matching-service/internal/apperr"
)

var (
	// ErrQueueFull is returned when the backlog is at capacity. The job keeps
	// its in-progress flag; the next trigger or the scheduler resubmits.
	ErrQueueFull = errors.New("match queue is full")
	// ErrQueueClosed is returned after Shutdown.
	ErrQueueClosed = errors.New("match queue is shutting down")
)

type taskKind string

const (
	taskJob         taskKind = "job"
	taskCandidate   taskKind = "candidate"
	taskAffiliation taskKind = "affiliation"
)

type task struct {
	kind taskKind
	id   string
}

func (t task) key() string { return string(t.kind) + ":" + t.id }

type taskState int

const (
	stateQueued taskState = iota
	stateRunning
	stateRunningRerun
)

// Queue runs match requests on a fixed worker pool. Requests for a key that
// is already queued are coalesced; requests arriving while the key runs
// schedule exactly one rerun, so edits made during a run are not lost.
type Queue struct {
	runner  Runner
	log     *zap.Logger
	workers int
	timeout time.Duration

	ch   chan task
	wg   sync.WaitGroup
	once sync.Once

	mu     sync.Mutex
	state  map[string]taskState
	closed bool
}

// QueueOption customises a Queue.
type QueueOption func(*Queue)

// WithWorkers sets the number of worker goroutines.
func WithWorkers(n int) QueueOption {
	return func(q *Queue) {
		if n > 0 {
			q.workers = n
		}
	}
}

// WithQueueSize sets the backlog capacity.
func WithQueueSize(n int) QueueOption {
	return func(q *Queue) {
		if n > 0 {
			q.ch = make(chan task, n)
		}
	}
}

// WithRunTimeout bounds each run.
func WithRunTimeout(d time.Duration) QueueOption {
	return func(q *Queue) {
		if d > 0 {
			q.timeout = d
		}
	}
}

// NewQueue starts the workers and returns the queue.
func NewQueue(r Runner, log *zap.Logger, opts ...QueueOption) *Queue {
	q := &Queue{
		runner:  r,
		log:     log,
		workers: 4,
		timeout: 5 * time.Minute,
		ch:      make(chan task, 256),
		state:   make(map[string]taskState),
	}
	for _, o := range opts {
		o(q)
	}
	q.start()
	return q
}

func (q *Queue) start() {
	q.once.Do(func() {
		for i := 0; i < q.workers; i++ {
			q.wg.Add(1)
			go func(workerID int) {
				defer q.wg.Done()
				log := q.log.With(zap.Int("worker", workerID))
				log.Debug("worker started")
				for t := range q.ch {
					q.markRunning(t)
					q.run(log, t)
					q.finish(t)
				}
				log.Debug("worker stopped")
			}(i + 1)
		}
	})
}

// DispatchJob implements job.Dispatcher.
func (q *Queue) DispatchJob(_ context.Context, jobID string) error {
	return q.enqueue(task{kind: taskJob, id: jobID})
}

// JobArchived implements job.Dispatcher. Removal runs inline; a run still in
// flight for the job drops its own rows when it sees the archive.
func (q *Queue) JobArchived(ctx context.Context, jobID string) error {
	_, err := q.runner.RemoveJobMatches(ctx, jobID)
	return err
}

// DispatchCandidate implements Dispatcher. It never returns a summary.
func (q *Queue) DispatchCandidate(_ context.Context, userID string, opts CandidateRunOptions) (*CandidateSummary, error) {
	kind := taskCandidate
	if opts.GroupsOnly {
		kind = taskAffiliation
	}
	return nil, q.enqueue(task{kind: kind, id: userID})
}

func (q *Queue) enqueue(t task) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return ErrQueueClosed
	}

	key := t.key()
	switch st, ok := q.state[key]; {
	case ok && st == stateQueued, ok && st == stateRunningRerun:
		q.log.Debug("match request coalesced", zap.String("task", key))
		return nil
	case ok && st == stateRunning:
		q.state[key] = stateRunningRerun
		q.log.Debug("match rerun scheduled", zap.String("task", key))
		return nil
	}

	select {
	case q.ch <- t:
		q.state[key] = stateQueued
		q.log.Info("match request queued", zap.String("task", key))
		return nil
	default:
		q.log.Warn("match queue full", zap.String("task", key))
		return ErrQueueFull
	}
}

func (q *Queue) markRunning(t task) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.state[t.key()] = stateRunning
}

func (q *Queue) finish(t task) {
	q.mu.Lock()
	defer q.mu.Unlock()
	key := t.key()
	if q.state[key] != stateRunningRerun || q.closed {
		delete(q.state, key)
		return
	}
	select {
	case q.ch <- t:
		q.state[key] = stateQueued
	default:
		delete(q.state, key)
		q.log.Warn("match rerun dropped, queue full", zap.String("task", key))
	}
}

func (q *Queue) run(log *zap.Logger, t task) {
	ctx, cancel := context.WithTimeout(context.Background(), q.timeout)
	defer cancel()

	var err error
	switch t.kind {
	case taskJob:
		_, err = q.runner.RunForJob(ctx, t.id)
	case taskCandidate:
		_, err = q.runner.RunForCandidate(ctx, t.id, CandidateRunOptions{})
	case taskAffiliation:
		_, err = q.runner.RunForCandidate(ctx, t.id, CandidateRunOptions{GroupsOnly: true})
	}

	switch {
	case err == nil:
		log.Debug("match request done", zap.String("task", t.key()))
	case errors.Is(err, apperr.ErrRunInProgress), apperr.IsValidation(err):
		// Another worker holds the job, or it left OPEN before we got to it.
		log.Info("match request skipped", zap.String("task", t.key()), zap.Error(err))
	default:
		log.Error("match request failed", zap.String("task", t.key()), zap.Error(err))
	}
}

// Shutdown stops accepting requests and waits for queued ones to drain or
// for ctx to end.
func (q *Queue) Shutdown(ctx context.Context) {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.closed = true
	close(q.ch)
	q.mu.Unlock()

	done := make(chan struct{})
	go func() { defer close(done); q.wg.Wait() }()

	select {
	case <-ctx.Done():
		q.log.Warn("match queue shutdown interrupted")
	case <-done:
		q.log.Info("match queue drained")
	}
}
