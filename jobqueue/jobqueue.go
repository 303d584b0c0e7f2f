// Package jobqueue runs submitted jobs one at a time on a dedicated worker,
// with mutual exclusion per owner key: an owner with a queued or running job
// cannot submit another until the first reaches a terminal state.
package jobqueue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/nkissick-del/ragflow-scraper-sub000/core"
)

const defaultQueueSize = 16

var (
	// ErrQueueFull is returned when the submission buffer is exhausted.
	ErrQueueFull = errors.New("job queue is full")

	// ErrShutdown is returned for submissions after Shutdown.
	ErrShutdown = errors.New("job queue is shut down")

	// ErrUnknownOwner is returned when no job exists for an owner key.
	ErrUnknownOwner = errors.New("no job for owner key")

	// ErrNotActive is returned when cancelling an already-finished job.
	ErrNotActive = errors.New("job is not active")
)

// State is the lifecycle state of a job.
type State int

const (
	StateQueued State = iota
	StateRunning
	StateSucceeded
	StateFailed
	StateCancelled
)

// String returns the lowercase state name.
func (s State) String() string {
	switch s {
	case StateQueued:
		return "queued"
	case StateRunning:
		return "running"
	case StateSucceeded:
		return "succeeded"
	case StateFailed:
		return "failed"
	case StateCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// terminal reports whether the state frees the owner key.
func (s State) terminal() bool {
	return s == StateSucceeded || s == StateFailed || s == StateCancelled
}

// WorkFunc is the body of a job. It should poll ctx between units of work;
// cancellation is cooperative and never aborts an in-flight call.
type WorkFunc func(ctx context.Context) (any, error)

// Job is the queue's handle for one submitted work function.
type Job struct {
	ID       string
	OwnerKey string

	fn     WorkFunc
	ctx    context.Context
	cancel context.CancelFunc

	// guarded by the queue mutex
	state       State
	submittedAt time.Time
	startedAt   time.Time
	finishedAt  time.Time
	result      any
	err         error
}

// Status is a point-in-time snapshot of a job.
type Status struct {
	ID          string
	OwnerKey    string
	State       State
	SubmittedAt time.Time
	StartedAt   time.Time
	FinishedAt  time.Time
	Result      any
	Err         error
}

// Queue is a FIFO job queue drained by a single worker goroutine.
type Queue struct {
	mu     sync.Mutex
	jobs   map[string]*Job // latest job per owner key
	ch     chan *Job
	closed bool
	done   chan struct{}
	logger *slog.Logger
}

// Option configures the Queue.
type Option func(*Queue)

// WithLogger sets the queue logger.
func WithLogger(logger *slog.Logger) Option {
	return func(q *Queue) {
		q.logger = logger.With("component", "jobqueue")
	}
}

// New creates a Queue buffering up to queueSize pending jobs and starts its
// worker.
func New(queueSize int, opts ...Option) *Queue {
	if queueSize <= 0 {
		queueSize = defaultQueueSize
	}
	q := &Queue{
		jobs:   make(map[string]*Job),
		ch:     make(chan *Job, queueSize),
		done:   make(chan struct{}),
		logger: slog.Default().With("component", "jobqueue"),
	}
	for _, opt := range opts {
		opt(q)
	}
	go q.worker()
	return q
}

// Submit enqueues fn under ownerKey. It returns core.ErrAlreadyRunning while
// the owner's previous job is still queued or running.
func (q *Queue) Submit(ownerKey string, fn WorkFunc) (*Job, error) {
	if ownerKey == "" {
		return nil, errors.New("owner key is required")
	}
	if fn == nil {
		return nil, errors.New("work function is required")
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return nil, ErrShutdown
	}
	if existing, ok := q.jobs[ownerKey]; ok && !existing.state.terminal() {
		return nil, fmt.Errorf("%w: owner %q has job %s (%s)",
			core.ErrAlreadyRunning, ownerKey, existing.ID, existing.state)
	}

	ctx, cancel := context.WithCancel(context.Background())
	job := &Job{
		ID:          uuid.NewString(),
		OwnerKey:    ownerKey,
		fn:          fn,
		ctx:         ctx,
		cancel:      cancel,
		state:       StateQueued,
		submittedAt: time.Now().UTC(),
	}

	select {
	case q.ch <- job:
	default:
		cancel()
		return nil, ErrQueueFull
	}

	q.jobs[ownerKey] = job
	q.logger.Info("job submitted", "owner", ownerKey, "job_id", job.ID)
	return job, nil
}

// Status returns a snapshot of the owner's most recent job. Terminal jobs
// stay queryable until the owner submits again.
func (q *Queue) Status(ownerKey string) (*Status, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	job, ok := q.jobs[ownerKey]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownOwner, ownerKey)
	}
	return &Status{
		ID:          job.ID,
		OwnerKey:    job.OwnerKey,
		State:       job.state,
		SubmittedAt: job.submittedAt,
		StartedAt:   job.startedAt,
		FinishedAt:  job.finishedAt,
		Result:      job.result,
		Err:         job.err,
	}, nil
}

// Cancel requests cancellation of the owner's active job. The job context is
// cancelled; the work function decides when to stop.
func (q *Queue) Cancel(ownerKey string) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	job, ok := q.jobs[ownerKey]
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownOwner, ownerKey)
	}
	if job.state.terminal() {
		return fmt.Errorf("%w: job %s is %s", ErrNotActive, job.ID, job.state)
	}
	job.cancel()
	q.logger.Info("job cancellation requested", "owner", ownerKey, "job_id", job.ID)
	return nil
}

// Shutdown stops intake. With wait set it blocks up to timeout for the
// worker to drain; the returned bool reports whether it did. The running
// job is never killed.
func (q *Queue) Shutdown(wait bool, timeout time.Duration) bool {
	q.mu.Lock()
	if !q.closed {
		q.closed = true
		close(q.ch)
	}
	q.mu.Unlock()

	if !wait {
		return false
	}

	select {
	case <-q.done:
		return true
	case <-time.After(timeout):
		q.logger.Warn("shutdown timed out with job still running")
		return false
	}
}

// worker drains the queue until Shutdown closes it.
func (q *Queue) worker() {
	defer close(q.done)
	for job := range q.ch {
		q.run(job)
	}
}

func (q *Queue) run(job *Job) {
	// Cancelled while still queued: never start the work function.
	if job.ctx.Err() != nil {
		q.finish(job, StateCancelled, nil, context.Canceled)
		return
	}

	q.mu.Lock()
	job.state = StateRunning
	job.startedAt = time.Now().UTC()
	q.mu.Unlock()
	q.logger.Info("job started", "owner", job.OwnerKey, "job_id", job.ID)

	result, err := q.invoke(job)

	switch {
	case err == nil:
		q.finish(job, StateSucceeded, result, nil)
	case errors.Is(err, context.Canceled) || job.ctx.Err() != nil:
		q.finish(job, StateCancelled, result, err)
	default:
		q.finish(job, StateFailed, result, err)
	}
}

// invoke runs the work function, turning a panic into an error so one bad
// job cannot take the worker down.
func (q *Queue) invoke(job *Job) (result any, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("job panicked: %v", r)
		}
	}()
	return job.fn(job.ctx)
}

func (q *Queue) finish(job *Job, state State, result any, err error) {
	job.cancel()

	q.mu.Lock()
	job.state = state
	job.finishedAt = time.Now().UTC()
	job.result = result
	job.err = err
	q.mu.Unlock()

	if err != nil && state == StateFailed {
		q.logger.Error("job failed", "owner", job.OwnerKey, "job_id", job.ID, "err", err)
		return
	}
	q.logger.Info("job finished", "owner", job.OwnerKey, "job_id", job.ID, "state", state.String())
}
