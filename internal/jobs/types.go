package jobs

import (
	"context"
	"errors"
	"time"
)

// JobType represents the type of job to be executed.
type JobType string

const (
	// JobTypeProcessUpload runs the chunked processing of one stored upload.
	JobTypeProcessUpload JobType = "process_upload"
)

// JobStatus represents the current status of a job.
type JobStatus string

const (
	JobStatusPending   JobStatus = "pending"
	JobStatusRunning   JobStatus = "running"
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
	JobStatusRetrying  JobStatus = "retrying"
	// JobStatusCancelled means the job's context ended before the handler
	// finished, by user request or shutdown.
	JobStatusCancelled JobStatus = "cancelled"
)

var (
	// ErrJobNotFound is returned by JobStore lookups for unknown ids.
	ErrJobNotFound = errors.New("job not found")
	// ErrAlreadyQueued is returned when a job for the same upload is queued
	// or running.
	ErrAlreadyQueued = errors.New("upload already has an active job")
	// ErrQueueClosed is returned by publishes after Stop.
	ErrQueueClosed = errors.New("queue is closed")
)

// ProcessUploadJob processes the transactions of one stored upload.
type ProcessUploadJob struct {
	JobID     string `json:"jobId"`
	UploadID  string `json:"uploadId"`
	CompanyID string `json:"companyId"`

	// ResumeFrom is the item offset processing starts at. Zero for new
	// uploads; recovery sets it past the last finished batch.
	ResumeFrom int `json:"resumeFrom"`

	Status      JobStatus  `json:"status"`
	CreatedAt   time.Time  `json:"createdAt"`
	StartedAt   *time.Time `json:"startedAt,omitempty"`
	CompletedAt *time.Time `json:"completedAt,omitempty"`
	Error       string     `json:"error,omitempty"`

	RetryCount int `json:"retryCount"`
	MaxRetries int `json:"maxRetries"`
}

// Job is a generic interface for all job types.
type Job interface {
	GetID() string
	GetType() JobType
	GetStatus() JobStatus
}

func (j *ProcessUploadJob) GetID() string { return j.JobID }

func (j *ProcessUploadJob) GetType() JobType { return JobTypeProcessUpload }

func (j *ProcessUploadJob) GetStatus() JobStatus { return j.Status }

// Publisher defines the interface for publishing jobs to a queue.
type Publisher interface {
	// PublishProcessUpload enqueues a processing job. It returns
	// ErrAlreadyQueued when the upload already has an active job.
	PublishProcessUpload(ctx context.Context, job *ProcessUploadJob) error

	Close() error
}

// Consumer defines the interface for consuming jobs from a queue.
type Consumer interface {
	// Start begins consuming jobs from the queue.
	// The handler function is called for each job received.
	Start(ctx context.Context, handler JobHandler) error

	// Stop stops consuming jobs and waits for in-flight jobs to complete.
	Stop(ctx context.Context) error
}

// Canceller stops the running job of an upload.
type Canceller interface {
	// Cancel cancels the context of the upload's running job with cause.
	// It reports whether a running job was signalled.
	Cancel(uploadID string, cause error) bool
}

// JobHandler is a function that processes a job.
// It should return an error if the job failed and should be retried.
type JobHandler func(ctx context.Context, job Job) error

// JobStore defines the interface for storing and retrieving job status.
type JobStore interface {
	SaveJob(ctx context.Context, job *ProcessUploadJob) error

	// GetJob returns ErrJobNotFound for unknown ids.
	GetJob(ctx context.Context, jobID string) (*ProcessUploadJob, error)

	// ListJobs returns matching jobs, newest first.
	ListJobs(ctx context.Context, filter JobFilter) ([]*ProcessUploadJob, error)

	UpdateJobStatus(ctx context.Context, jobID string, status JobStatus, errorMsg string) error
}

// JobFilter defines filtering criteria for listing jobs.
type JobFilter struct {
	UploadID string
	Status   JobStatus
	Limit    int
	Offset   int
}
