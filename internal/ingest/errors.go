package ingest

import (
	"errors"
	"fmt"
	"time"

	"github.com/dvloznov/ofx-ingest/internal/domain"
)

// ErrNotRunning is returned when a cancel targets an upload with no running
// job.
var ErrNotRunning = errors.New("upload is not being processed")

// DuplicateUploadError means the company already uploaded a file with the
// same content hash.
type DuplicateUploadError struct {
	UploadID          string
	Status            domain.UploadStatus
	UploadedAt        time.Time
	TotalTransactions int
}

func (e *DuplicateUploadError) Error() string {
	return fmt.Sprintf("file already uploaded as %s (%s)", e.UploadID, e.Status)
}

func duplicateOf(u *domain.Upload) *DuplicateUploadError {
	return &DuplicateUploadError{
		UploadID:          u.ID,
		Status:            u.Status,
		UploadedAt:        u.UploadedAt,
		TotalTransactions: u.TotalTransactions,
	}
}

// FileTooLargeError means the file exceeds the configured upload limit.
type FileTooLargeError struct {
	Size int64
	Max  int64
}

func (e *FileTooLargeError) Error() string {
	return fmt.Sprintf("file is %d bytes, limit is %d", e.Size, e.Max)
}
