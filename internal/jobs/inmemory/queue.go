package inmemory

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/dvloznov/ofx-ingest/internal/jobs"
)

const (
	DefaultWorkers = 5
	DefaultBuffer  = 100
)

// QueueConfig sizes the worker pool. MaxRetries is applied to jobs published
// without their own limit.
type QueueConfig struct {
	Workers    int
	Buffer     int
	MaxRetries int
}

// active tracks an upload that has a queued, running or retrying job.
type active struct {
	cancel context.CancelCauseFunc // nil until a worker picks the job up
}

// Queue is an in-memory job publisher and consumer backed by a buffered
// channel and a fixed pool of workers. At most one job per upload is active.
type Queue struct {
	jobChan   chan *jobs.ProcessUploadJob
	closeChan chan struct{}
	wg        sync.WaitGroup
	cfg       QueueConfig
	store     jobs.JobStore
	log       zerolog.Logger

	mu     sync.Mutex
	closed bool
	active map[string]*active
}

func NewQueue(cfg QueueConfig, store jobs.JobStore, log zerolog.Logger) *Queue {
	if cfg.Workers <= 0 {
		cfg.Workers = DefaultWorkers
	}
	if cfg.Buffer <= 0 {
		cfg.Buffer = DefaultBuffer
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	return &Queue{
		jobChan:   make(chan *jobs.ProcessUploadJob, cfg.Buffer),
		closeChan: make(chan struct{}),
		cfg:       cfg,
		store:     store,
		log:       log,
		active:    make(map[string]*active),
	}
}

// PublishProcessUpload enqueues job. It refuses a second job for an upload
// that already has one queued or running.
func (q *Queue) PublishProcessUpload(ctx context.Context, job *jobs.ProcessUploadJob) error {
	if job.UploadID == "" {
		return fmt.Errorf("PublishProcessUpload: upload ID is required")
	}

	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return jobs.ErrQueueClosed
	}
	if _, busy := q.active[job.UploadID]; busy {
		q.mu.Unlock()
		return fmt.Errorf("PublishProcessUpload: %s: %w", job.UploadID, jobs.ErrAlreadyQueued)
	}
	q.active[job.UploadID] = &active{}
	q.mu.Unlock()

	if job.JobID == "" {
		job.JobID = uuid.New().String()
	}
	if job.CreatedAt.IsZero() {
		job.CreatedAt = time.Now().UTC()
	}
	if job.MaxRetries == 0 {
		job.MaxRetries = q.cfg.MaxRetries
	}
	job.Status = jobs.JobStatusPending

	if err := q.enqueue(ctx, job); err != nil {
		q.release(job.UploadID)
		return fmt.Errorf("PublishProcessUpload: %w", err)
	}
	return nil
}

func (q *Queue) enqueue(ctx context.Context, job *jobs.ProcessUploadJob) error {
	if q.store != nil {
		if err := q.store.SaveJob(ctx, job); err != nil {
			return fmt.Errorf("save job: %w", err)
		}
	}

	select {
	case q.jobChan <- job:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-q.closeChan:
		return jobs.ErrQueueClosed
	}
}

// Start launches the workers. Cancelling ctx stops running jobs between
// chunks; their uploads stay resumable.
func (q *Queue) Start(ctx context.Context, handler jobs.JobHandler) error {
	q.mu.Lock()
	closed := q.closed
	q.mu.Unlock()
	if closed {
		return jobs.ErrQueueClosed
	}

	for i := 0; i < q.cfg.Workers; i++ {
		q.wg.Add(1)
		go q.worker(ctx, handler)
	}
	q.log.Info().Int("workers", q.cfg.Workers).Int("buffer", q.cfg.Buffer).Msg("job queue started")
	return nil
}

func (q *Queue) worker(ctx context.Context, handler jobs.JobHandler) {
	defer q.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case <-q.closeChan:
			return
		case job := <-q.jobChan:
			if job == nil {
				return
			}
			q.processJob(ctx, job, handler)
		}
	}
}

// processJob runs one job under a per-upload cancellable context and applies
// the retry policy.
func (q *Queue) processJob(ctx context.Context, job *jobs.ProcessUploadJob, handler jobs.JobHandler) {
	log := q.log.With().Str("job_id", job.JobID).Str("upload_id", job.UploadID).Logger()

	jobCtx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)
	q.setCancel(job.UploadID, cancel)

	job.Status = jobs.JobStatusRunning
	now := time.Now().UTC()
	job.StartedAt = &now
	job.CompletedAt = nil
	if q.store != nil {
		_ = q.store.SaveJob(ctx, job)
	}

	err := runHandler(jobCtx, job, handler)

	completedAt := time.Now().UTC()
	job.CompletedAt = &completedAt
	storeCtx := context.WithoutCancel(ctx)

	switch {
	case err == nil:
		job.Status = jobs.JobStatusCompleted
		job.Error = ""
	case jobCtx.Err() != nil:
		job.Status = jobs.JobStatusCancelled
		job.Error = err.Error()
		log.Info().Err(context.Cause(jobCtx)).Msg("job cancelled")
	case job.RetryCount < job.MaxRetries:
		job.RetryCount++
		job.Status = jobs.JobStatusRetrying
		job.Error = err.Error()
		if q.store != nil {
			_ = q.store.SaveJob(storeCtx, job)
		}
		q.setCancel(job.UploadID, nil)

		backoff := time.Duration(job.RetryCount) * time.Second
		log.Warn().Err(err).Int("retry", job.RetryCount).Dur("backoff", backoff).Msg("job failed, retrying")
		time.AfterFunc(backoff, func() {
			job.Status = jobs.JobStatusPending
			job.StartedAt = nil
			job.CompletedAt = nil
			if err := q.enqueue(storeCtx, job); err != nil {
				log.Error().Err(err).Msg("failed to re-enqueue job")
				job.Status = jobs.JobStatusFailed
				if q.store != nil {
					_ = q.store.SaveJob(storeCtx, job)
				}
				q.release(job.UploadID)
			}
		})
		return
	default:
		job.Status = jobs.JobStatusFailed
		job.Error = err.Error()
		log.Error().Err(err).Msg("job failed")
	}

	if q.store != nil {
		_ = q.store.SaveJob(storeCtx, job)
	}
	q.release(job.UploadID)
}

func runHandler(ctx context.Context, job *jobs.ProcessUploadJob, handler jobs.JobHandler) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("job handler panic: %v", r)
		}
	}()
	return handler(ctx, job)
}

func (q *Queue) setCancel(uploadID string, cancel context.CancelCauseFunc) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if a, ok := q.active[uploadID]; ok {
		a.cancel = cancel
	}
}

func (q *Queue) release(uploadID string) {
	q.mu.Lock()
	defer q.mu.Unlock()
	delete(q.active, uploadID)
}

// Cancel signals the running job of uploadID with cause. Queued jobs that no
// worker has picked up yet are not affected.
func (q *Queue) Cancel(uploadID string, cause error) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	a, ok := q.active[uploadID]
	if !ok || a.cancel == nil {
		return false
	}
	if cause == nil {
		cause = errors.New("cancelled")
	}
	a.cancel(cause)
	return true
}

// Active reports whether uploadID has a queued, running or retrying job.
func (q *Queue) Active(uploadID string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	_, ok := q.active[uploadID]
	return ok
}

// Stop closes the queue and waits for in-flight jobs, bounded by ctx.
// Jobs still buffered are dropped; their uploads are picked up by recovery.
func (q *Queue) Stop(ctx context.Context) error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return nil
	}
	q.closed = true
	close(q.closeChan)
	q.mu.Unlock()

	done := make(chan struct{})
	go func() {
		q.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		q.log.Info().Msg("job queue stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (q *Queue) Close() error {
	return q.Stop(context.Background())
}

var (
	_ jobs.Publisher = (*Queue)(nil)
	_ jobs.Consumer  = (*Queue)(nil)
	_ jobs.Canceller = (*Queue)(nil)
)
