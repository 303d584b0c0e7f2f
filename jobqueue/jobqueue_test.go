package jobqueue

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nkissick-del/ragflow-scraper-sub000/core"
)

func waitForState(t *testing.T, q *Queue, ownerKey string, want State) *Status {
	t.Helper()
	var status *Status
	require.Eventually(t, func() bool {
		var err error
		status, err = q.Status(ownerKey)
		return err == nil && status.State == want
	}, 2*time.Second, 5*time.Millisecond, "owner %q never reached %s", ownerKey, want)
	return status
}

func TestSubmitAndComplete(t *testing.T) {
	q := New(4)
	defer q.Shutdown(true, time.Second)

	job, err := q.Submit("aemo", func(ctx context.Context) (any, error) {
		return 42, nil
	})
	require.NoError(t, err)
	assert.NotEmpty(t, job.ID)

	status := waitForState(t, q, "aemo", StateSucceeded)
	assert.Equal(t, 42, status.Result)
	assert.NoError(t, status.Err)
	assert.False(t, status.StartedAt.IsZero())
	assert.False(t, status.FinishedAt.IsZero())
}

func TestOwnerKeyExclusivity(t *testing.T) {
	q := New(4)
	defer q.Shutdown(true, time.Second)

	release := make(chan struct{})
	started := make(chan struct{})
	_, err := q.Submit("aemo", func(ctx context.Context) (any, error) {
		close(started)
		<-release
		return nil, nil
	})
	require.NoError(t, err)
	<-started

	// Second submission for the same owner is refused while the first runs.
	_, err = q.Submit("aemo", func(ctx context.Context) (any, error) { return nil, nil })
	assert.ErrorIs(t, err, core.ErrAlreadyRunning)

	// A different owner is unaffected.
	_, err = q.Submit("nsw-tenders", func(ctx context.Context) (any, error) { return nil, nil })
	assert.NoError(t, err)

	close(release)
	waitForState(t, q, "aemo", StateSucceeded)

	// Terminal state frees the key.
	_, err = q.Submit("aemo", func(ctx context.Context) (any, error) { return nil, nil })
	assert.NoError(t, err)
}

func TestJobsRunSequentially(t *testing.T) {
	q := New(8)
	defer q.Shutdown(true, time.Second)

	var order []string
	for _, owner := range []string{"a", "b", "c"} {
		_, err := q.Submit(owner, func(ctx context.Context) (any, error) {
			order = append(order, owner) // single worker, no race
			return nil, nil
		})
		require.NoError(t, err)
	}

	waitForState(t, q, "c", StateSucceeded)
	assert.Equal(t, []string{"a", "b", "c"}, order)
}

func TestCancelRunningJob(t *testing.T) {
	q := New(4)
	defer q.Shutdown(true, time.Second)

	started := make(chan struct{})
	_, err := q.Submit("aemo", func(ctx context.Context) (any, error) {
		close(started)
		<-ctx.Done()
		return nil, ctx.Err()
	})
	require.NoError(t, err)
	<-started

	require.NoError(t, q.Cancel("aemo"))
	waitForState(t, q, "aemo", StateCancelled)
}

func TestCancelQueuedJob(t *testing.T) {
	q := New(4)
	defer q.Shutdown(true, time.Second)

	release := make(chan struct{})
	started := make(chan struct{})
	_, err := q.Submit("first", func(ctx context.Context) (any, error) {
		close(started)
		<-release
		return nil, nil
	})
	require.NoError(t, err)
	<-started

	// Queued behind the running job; cancelled before it ever starts.
	ran := false
	_, err = q.Submit("second", func(ctx context.Context) (any, error) {
		ran = true
		return nil, nil
	})
	require.NoError(t, err)
	require.NoError(t, q.Cancel("second"))

	close(release)
	waitForState(t, q, "second", StateCancelled)
	assert.False(t, ran, "cancelled queued job must never start")
}

func TestCancelFinishedJob(t *testing.T) {
	q := New(4)
	defer q.Shutdown(true, time.Second)

	_, err := q.Submit("aemo", func(ctx context.Context) (any, error) { return nil, nil })
	require.NoError(t, err)
	waitForState(t, q, "aemo", StateSucceeded)

	assert.ErrorIs(t, q.Cancel("aemo"), ErrNotActive)
}

func TestPanicRecordedAsFailure(t *testing.T) {
	q := New(4)
	defer q.Shutdown(true, time.Second)

	_, err := q.Submit("panicky", func(ctx context.Context) (any, error) {
		panic("boom")
	})
	require.NoError(t, err)

	status := waitForState(t, q, "panicky", StateFailed)
	require.Error(t, status.Err)
	assert.Contains(t, status.Err.Error(), "boom")

	// Worker survives and keeps draining.
	_, err = q.Submit("after", func(ctx context.Context) (any, error) { return "ok", nil })
	require.NoError(t, err)
	waitForState(t, q, "after", StateSucceeded)
}

func TestFailedJobRecordsError(t *testing.T) {
	q := New(4)
	defer q.Shutdown(true, time.Second)

	wantErr := errors.New("collector exploded")
	_, err := q.Submit("aemo", func(ctx context.Context) (any, error) {
		return nil, wantErr
	})
	require.NoError(t, err)

	status := waitForState(t, q, "aemo", StateFailed)
	assert.ErrorIs(t, status.Err, wantErr)
}

func TestQueueFull(t *testing.T) {
	q := New(1)
	defer q.Shutdown(true, time.Second)

	release := make(chan struct{})
	started := make(chan struct{})
	_, err := q.Submit("running", func(ctx context.Context) (any, error) {
		close(started)
		<-release
		return nil, nil
	})
	require.NoError(t, err)
	<-started

	// Fill the single buffer slot, then overflow.
	_, err = q.Submit("queued", func(ctx context.Context) (any, error) { return nil, nil })
	require.NoError(t, err)
	_, err = q.Submit("overflow", func(ctx context.Context) (any, error) { return nil, nil })
	assert.ErrorIs(t, err, ErrQueueFull)

	close(release)
}

func TestShutdown(t *testing.T) {
	q := New(4)

	_, err := q.Submit("aemo", func(ctx context.Context) (any, error) {
		time.Sleep(20 * time.Millisecond)
		return nil, nil
	})
	require.NoError(t, err)

	drained := q.Shutdown(true, time.Second)
	assert.True(t, drained)

	_, err = q.Submit("late", func(ctx context.Context) (any, error) { return nil, nil })
	assert.ErrorIs(t, err, ErrShutdown)
}

func TestShutdownTimeout(t *testing.T) {
	q := New(4)

	release := make(chan struct{})
	started := make(chan struct{})
	_, err := q.Submit("slow", func(ctx context.Context) (any, error) {
		close(started)
		<-release
		return nil, nil
	})
	require.NoError(t, err)
	<-started

	drained := q.Shutdown(true, 30*time.Millisecond)
	assert.False(t, drained, "shutdown must report a still-running job")

	close(release)
}

func TestStatusUnknownOwner(t *testing.T) {
	q := New(4)
	defer q.Shutdown(true, time.Second)

	_, err := q.Status("nobody")
	assert.ErrorIs(t, err, ErrUnknownOwner)
}
