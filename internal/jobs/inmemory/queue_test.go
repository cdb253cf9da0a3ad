package inmemory

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dvloznov/ofx-ingest/internal/jobs"
)

func waitStatus(t *testing.T, s *Store, jobID string, want jobs.JobStatus) *jobs.ProcessUploadJob {
	t.Helper()
	var got *jobs.ProcessUploadJob
	require.Eventually(t, func() bool {
		j, err := s.GetJob(context.Background(), jobID)
		if err != nil {
			return false
		}
		got = j
		return j.Status == want
	}, 5*time.Second, 10*time.Millisecond)
	return got
}

func TestQueue_ProcessesJob(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store := NewStore()
	q := NewQueue(QueueConfig{Workers: 2, Buffer: 4}, store, zerolog.Nop())
	defer q.Close()

	var handled atomic.Int32
	require.NoError(t, q.Start(ctx, func(ctx context.Context, job jobs.Job) error {
		handled.Add(1)
		assert.Equal(t, jobs.JobTypeProcessUpload, job.GetType())
		return nil
	}))

	job := &jobs.ProcessUploadJob{UploadID: "up-1", CompanyID: "co-1"}
	require.NoError(t, q.PublishProcessUpload(ctx, job))
	assert.NotEmpty(t, job.JobID)

	got := waitStatus(t, store, job.JobID, jobs.JobStatusCompleted)
	assert.NotNil(t, got.StartedAt)
	assert.NotNil(t, got.CompletedAt)
	assert.Equal(t, int32(1), handled.Load())
	assert.Eventually(t, func() bool { return !q.Active("up-1") }, time.Second, 10*time.Millisecond)
}

func TestQueue_RefusesDuplicateUpload(t *testing.T) {
	ctx := context.Background()
	q := NewQueue(QueueConfig{Workers: 1, Buffer: 4}, NewStore(), zerolog.Nop())
	defer q.Close()

	require.NoError(t, q.PublishProcessUpload(ctx, &jobs.ProcessUploadJob{UploadID: "up-1"}))
	err := q.PublishProcessUpload(ctx, &jobs.ProcessUploadJob{UploadID: "up-1"})
	assert.ErrorIs(t, err, jobs.ErrAlreadyQueued)
	assert.NoError(t, q.PublishProcessUpload(ctx, &jobs.ProcessUploadJob{UploadID: "up-2"}))
}

func TestQueue_NoRetryByDefault(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store := NewStore()
	q := NewQueue(QueueConfig{Workers: 1}, store, zerolog.Nop())
	defer q.Close()

	var calls atomic.Int32
	require.NoError(t, q.Start(ctx, func(context.Context, jobs.Job) error {
		calls.Add(1)
		return errors.New("file missing")
	}))

	job := &jobs.ProcessUploadJob{UploadID: "up-1"}
	require.NoError(t, q.PublishProcessUpload(ctx, job))

	got := waitStatus(t, store, job.JobID, jobs.JobStatusFailed)
	assert.Equal(t, "file missing", got.Error)
	assert.Equal(t, 0, got.RetryCount)
	assert.Equal(t, int32(1), calls.Load())
}

func TestQueue_RetriesUpToMax(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store := NewStore()
	q := NewQueue(QueueConfig{Workers: 1, MaxRetries: 1}, store, zerolog.Nop())
	defer q.Close()

	var calls atomic.Int32
	require.NoError(t, q.Start(ctx, func(context.Context, jobs.Job) error {
		if calls.Add(1) == 1 {
			return errors.New("transient")
		}
		return nil
	}))

	job := &jobs.ProcessUploadJob{UploadID: "up-1"}
	require.NoError(t, q.PublishProcessUpload(ctx, job))

	got := waitStatus(t, store, job.JobID, jobs.JobStatusCompleted)
	assert.Equal(t, 1, got.RetryCount)
	assert.Equal(t, int32(2), calls.Load())
}

func TestQueue_CancelRunningJob(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store := NewStore()
	q := NewQueue(QueueConfig{Workers: 1}, store, zerolog.Nop())
	defer q.Close()

	stopped := errors.New("user stop")
	started := make(chan struct{})
	causes := make(chan error, 1)
	require.NoError(t, q.Start(ctx, func(ctx context.Context, _ jobs.Job) error {
		close(started)
		<-ctx.Done()
		causes <- context.Cause(ctx)
		return ctx.Err()
	}))

	assert.False(t, q.Cancel("up-1", stopped), "nothing running yet")

	job := &jobs.ProcessUploadJob{UploadID: "up-1"}
	require.NoError(t, q.PublishProcessUpload(ctx, job))
	<-started

	require.Eventually(t, func() bool { return q.Cancel("up-1", stopped) }, time.Second, 10*time.Millisecond)
	assert.ErrorIs(t, <-causes, stopped)

	waitStatus(t, store, job.JobID, jobs.JobStatusCancelled)
	assert.False(t, q.Cancel("missing", stopped))
}

func TestQueue_PublishAfterStop(t *testing.T) {
	q := NewQueue(QueueConfig{}, NewStore(), zerolog.Nop())
	require.NoError(t, q.Stop(context.Background()))
	require.NoError(t, q.Stop(context.Background()))

	err := q.PublishProcessUpload(context.Background(), &jobs.ProcessUploadJob{UploadID: "up-1"})
	assert.ErrorIs(t, err, jobs.ErrQueueClosed)
	assert.ErrorIs(t, q.Start(context.Background(), nil), jobs.ErrQueueClosed)
}

func TestQueue_HandlerPanicFailsJob(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store := NewStore()
	q := NewQueue(QueueConfig{Workers: 1}, store, zerolog.Nop())
	defer q.Close()

	require.NoError(t, q.Start(ctx, func(context.Context, jobs.Job) error { panic("boom") }))

	job := &jobs.ProcessUploadJob{UploadID: "up-1"}
	require.NoError(t, q.PublishProcessUpload(ctx, job))
	got := waitStatus(t, store, job.JobID, jobs.JobStatusFailed)
	assert.Contains(t, got.Error, "boom")
}
