// Package progress records per-chunk processing state and turns it into the
// polling view of an upload.
package progress

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"time"

	"github.com/dvloznov/ofx-ingest/internal/domain"
	"github.com/dvloznov/ofx-ingest/internal/store"
)

// CheckIntervalMs is the polling interval suggested to clients.
const CheckIntervalMs = 2000

// Snapshot is the progress view returned to pollers.
type Snapshot struct {
	UploadID               string              `json:"uploadId"`
	CurrentBatch           int                 `json:"currentBatch"`
	TotalBatches           int                 `json:"totalBatches"`
	ProcessedTransactions  int                 `json:"processedTransactions"`
	TotalTransactions      int                 `json:"totalTransactions"`
	Status                 domain.UploadStatus `json:"status"`
	Percentage             int                 `json:"percentage"`
	EstimatedTimeRemaining *int64              `json:"estimatedTimeRemaining,omitempty"`
	CheckInterval          int                 `json:"checkInterval"`
}

type Store struct {
	uploads store.UploadRepository
	batches store.BatchRepository
	now     func() time.Time
}

func New(uploads store.UploadRepository, batches store.BatchRepository) *Store {
	return &Store{uploads: uploads, batches: batches, now: time.Now}
}

// TotalBatches is ceil(total/chunkSize).
func TotalBatches(total, chunkSize int) int {
	if total <= 0 || chunkSize <= 0 {
		return 0
	}
	return (total + chunkSize - 1) / chunkSize
}

// Prepare moves the upload to processing and records its totals. Counters
// already earned by finished batches are kept, so a resumed run continues
// from them.
func (s *Store) Prepare(ctx context.Context, uploadID string, total, chunkSize int) (*domain.Upload, []domain.ProcessingBatch, error) {
	u, err := s.uploads.GetUpload(ctx, uploadID)
	if err != nil {
		return nil, nil, fmt.Errorf("Prepare: %w", err)
	}
	batches, err := s.batches.ListBatches(ctx, uploadID)
	if err != nil {
		return nil, nil, fmt.Errorf("Prepare: %w", err)
	}

	u.Status = domain.UploadProcessing
	u.TotalTransactions = total
	u.TotalBatches = TotalBatches(total, chunkSize)
	u.SuccessfulTransactions, u.FailedTransactions, u.ProcessedTransactions, u.CurrentBatch = 0, 0, 0, 0
	for _, b := range batches {
		if b.Status == domain.BatchProcessing {
			continue
		}
		u.SuccessfulTransactions += b.SuccessCount
		u.FailedTransactions += b.FailureCount
		u.ProcessedTransactions += b.SuccessCount + b.FailureCount
		if b.BatchNumber > u.CurrentBatch {
			u.CurrentBatch = b.BatchNumber
		}
	}
	u.ProcessedAt = nil
	u.ProcessingLog = nil

	if err := s.uploads.UpdateUpload(ctx, u); err != nil {
		return nil, nil, fmt.Errorf("Prepare: %w", err)
	}
	return u, batches, nil
}

// OpenBatch writes the processing record for one chunk.
func (s *Store) OpenBatch(ctx context.Context, b *domain.ProcessingBatch) error {
	b.Status = domain.BatchProcessing
	b.StartedAt = s.now().UTC()
	b.CompletedAt = nil
	if err := s.batches.StartBatch(ctx, b); err != nil {
		return fmt.Errorf("OpenBatch: %w", err)
	}
	return nil
}

// CloseBatch finishes the chunk record and folds its counts into u. The
// counts reach u and the upload row even when the batch record cannot be
// written.
func (s *Store) CloseBatch(ctx context.Context, u *domain.Upload, b *domain.ProcessingBatch) error {
	completed := s.now().UTC()
	b.CompletedAt = &completed
	finishErr := s.batches.FinishBatch(ctx, b)

	u.SuccessfulTransactions += b.SuccessCount
	u.FailedTransactions += b.FailureCount
	u.ProcessedTransactions += b.SuccessCount + b.FailureCount
	u.CurrentBatch = b.BatchNumber
	if err := s.uploads.UpdateUpload(ctx, u); err != nil {
		return fmt.Errorf("CloseBatch: %w", err)
	}
	if finishErr != nil {
		return fmt.Errorf("CloseBatch: %w", finishErr)
	}
	return nil
}

// Complete marks u completed with its final counts.
func (s *Store) Complete(ctx context.Context, u *domain.Upload, elapsed time.Duration) error {
	done := s.now().UTC()
	logBody, err := json.Marshal(domain.CompletionLog{
		TotalProcessed:   u.ProcessedTransactions,
		Successful:       u.SuccessfulTransactions,
		Failed:           u.FailedTransactions,
		ProcessingTimeMs: elapsed.Milliseconds(),
	})
	if err != nil {
		return fmt.Errorf("Complete: encode log: %w", err)
	}

	u.Status = domain.UploadCompleted
	u.ProcessedAt = &done
	u.ProcessingLog = logBody
	if err := s.uploads.UpdateUpload(ctx, u); err != nil {
		return fmt.Errorf("Complete: %w", err)
	}
	return nil
}

// Fail marks u failed and stores cause in its processing log.
func (s *Store) Fail(ctx context.Context, u *domain.Upload, cause error, stage string) error {
	at := s.now().UTC()
	logBody, err := json.Marshal(domain.FailureLog{Error: cause.Error(), Stage: stage, Timestamp: at})
	if err != nil {
		return fmt.Errorf("Fail: encode log: %w", err)
	}

	u.Status = domain.UploadFailed
	u.ProcessedAt = &at
	u.ProcessingLog = logBody
	// Items never reached count as failed so the totals still add up.
	if missing := u.TotalTransactions - u.SuccessfulTransactions - u.FailedTransactions; missing > 0 {
		u.FailedTransactions += missing
	}
	if err := s.uploads.UpdateUpload(ctx, u); err != nil {
		return fmt.Errorf("Fail: %w", err)
	}
	return nil
}

// Snapshot builds the polling view of an upload. It returns store.ErrNotFound
// for unknown ids.
func (s *Store) Snapshot(ctx context.Context, uploadID string) (*Snapshot, error) {
	u, err := s.uploads.GetUpload(ctx, uploadID)
	if err != nil {
		return nil, fmt.Errorf("Snapshot: %w", err)
	}

	snap := &Snapshot{
		UploadID:              u.ID,
		CurrentBatch:          u.CurrentBatch,
		TotalBatches:          u.TotalBatches,
		ProcessedTransactions: u.ProcessedTransactions,
		TotalTransactions:     u.TotalTransactions,
		Status:                u.Status,
		Percentage:            Percentage(u.ProcessedTransactions, u.TotalTransactions, u.Status),
		CheckInterval:         CheckIntervalMs,
	}

	if u.Status.Terminal() {
		return snap, nil
	}

	batches, err := s.batches.ListBatches(ctx, uploadID)
	if err != nil {
		return nil, fmt.Errorf("Snapshot: %w", err)
	}
	snap.EstimatedTimeRemaining = EstimateRemaining(batches, u.TotalBatches)
	return snap, nil
}

// Percentage is round(processed/total*100), with 100 for a completed upload
// of zero items.
func Percentage(processed, total int, status domain.UploadStatus) int {
	if total <= 0 {
		if status == domain.UploadCompleted {
			return 100
		}
		return 0
	}
	p := int(math.Round(float64(processed) / float64(total) * 100))
	if p > 100 {
		p = 100
	}
	return p
}

// EstimateRemaining is the remaining batch count times the mean duration of
// finished batches, in milliseconds. It is nil until a batch has finished.
func EstimateRemaining(batches []domain.ProcessingBatch, totalBatches int) *int64 {
	var (
		finished int
		sum      time.Duration
	)
	for _, b := range batches {
		if b.CompletedAt == nil || b.Status == domain.BatchProcessing {
			continue
		}
		finished++
		sum += b.Duration()
	}
	if finished == 0 {
		return nil
	}

	remaining := totalBatches - finished
	if remaining < 0 {
		remaining = 0
	}
	mean := sum / time.Duration(finished)
	ms := (mean * time.Duration(remaining)).Milliseconds()
	return &ms
}
