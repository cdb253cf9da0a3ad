package domain

import (
	"encoding/json"
	"time"
)

// UploadStatus is the lifecycle state of an upload.
// pending -> processing -> {completed, failed}; completed and failed are terminal.
type UploadStatus string

const (
	UploadPending    UploadStatus = "pending"
	UploadProcessing UploadStatus = "processing"
	UploadCompleted  UploadStatus = "completed"
	UploadFailed     UploadStatus = "failed"
)

// Terminal reports whether no further transitions are allowed.
func (s UploadStatus) Terminal() bool {
	return s == UploadCompleted || s == UploadFailed
}

// Upload is one received statement file and its processing counters.
type Upload struct {
	ID        string
	CompanyID string
	AccountID string

	OriginalName    string
	StoredPath      string
	StorageProvider string
	FileSize        int64
	FileHash        string

	Status UploadStatus

	TotalTransactions      int
	SuccessfulTransactions int
	FailedTransactions     int
	ProcessedTransactions  int
	CurrentBatch           int
	TotalBatches           int

	UploadedAt  time.Time
	ProcessedAt *time.Time

	ProcessingLog json.RawMessage
}

// CompletionLog is stored in Upload.ProcessingLog when a run completes.
type CompletionLog struct {
	TotalProcessed   int   `json:"totalProcessed"`
	Successful       int   `json:"successful"`
	Failed           int   `json:"failed"`
	ProcessingTimeMs int64 `json:"processingTimeMs"`
}

// FailureLog is stored in Upload.ProcessingLog when a run fails as a whole.
type FailureLog struct {
	Error     string    `json:"error"`
	Stage     string    `json:"stage,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// BatchStatus is the state of one processing chunk.
type BatchStatus string

const (
	BatchProcessing BatchStatus = "processing"
	BatchCompleted  BatchStatus = "completed"
	BatchFailed     BatchStatus = "failed"
)

// ProcessingBatch is the progress record of one chunk of an upload.
type ProcessingBatch struct {
	UploadID     string
	BatchNumber  int // 1-based
	Offset       int
	ItemCount    int
	SuccessCount int
	FailureCount int
	Status       BatchStatus
	Error        string
	StartedAt    time.Time
	CompletedAt  *time.Time
}

// Duration returns how long the batch took, or zero while it is open.
func (b ProcessingBatch) Duration() time.Duration {
	if b.CompletedAt == nil {
		return 0
	}
	return b.CompletedAt.Sub(b.StartedAt)
}
