package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/dvloznov/ofx-ingest/internal/domain"
	"github.com/dvloznov/ofx-ingest/internal/store"
)

func (s *Store) StartBatch(ctx context.Context, b *domain.ProcessingBatch) error {
	if b.StartedAt.IsZero() {
		b.StartedAt = now()
	}
	if b.Status == "" {
		b.Status = domain.BatchProcessing
	}
	_, err := s.db.ExecContext(ctx, `
	INSERT INTO processing_batches(upload_id, batch_number, batch_offset, item_count,
		success_count, failure_count, status, error, started_at, completed_at)
	VALUES(?, ?, ?, ?, 0, 0, ?, '', ?, NULL)
	ON CONFLICT(upload_id, batch_number) DO UPDATE SET
		batch_offset = excluded.batch_offset,
		item_count = excluded.item_count,
		success_count = 0,
		failure_count = 0,
		status = excluded.status,
		error = '',
		started_at = excluded.started_at,
		completed_at = NULL
	`, b.UploadID, b.BatchNumber, b.Offset, b.ItemCount, string(b.Status), b.StartedAt.UTC())
	if err != nil {
		return fmt.Errorf("StartBatch: upload %s batch %d: %w", b.UploadID, b.BatchNumber, err)
	}
	return nil
}

func (s *Store) FinishBatch(ctx context.Context, b *domain.ProcessingBatch) error {
	if b.CompletedAt == nil {
		ts := now()
		b.CompletedAt = &ts
	}
	res, err := s.db.ExecContext(ctx, `
	UPDATE processing_batches SET
		success_count = ?, failure_count = ?, status = ?, error = ?, completed_at = ?
	WHERE upload_id = ? AND batch_number = ?
	`, b.SuccessCount, b.FailureCount, string(b.Status), b.Error, nullTime(b.CompletedAt),
		b.UploadID, b.BatchNumber)
	if err != nil {
		return fmt.Errorf("FinishBatch: upload %s batch %d: %w", b.UploadID, b.BatchNumber, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("FinishBatch: upload %s batch %d: %w", b.UploadID, b.BatchNumber, store.ErrNotFound)
	}
	return nil
}

func (s *Store) ListBatches(ctx context.Context, uploadID string) ([]domain.ProcessingBatch, error) {
	rows, err := s.db.QueryContext(ctx, `
	SELECT upload_id, batch_number, batch_offset, item_count, success_count, failure_count,
		status, error, started_at, completed_at
	FROM processing_batches WHERE upload_id = ? ORDER BY batch_number
	`, uploadID)
	if err != nil {
		return nil, fmt.Errorf("ListBatches: query: %w", err)
	}
	defer rows.Close()

	var out []domain.ProcessingBatch
	for rows.Next() {
		var (
			b           domain.ProcessingBatch
			status      string
			completedAt sql.NullTime
		)
		err := rows.Scan(&b.UploadID, &b.BatchNumber, &b.Offset, &b.ItemCount, &b.SuccessCount, &b.FailureCount,
			&status, &b.Error, &b.StartedAt, &completedAt)
		if err != nil {
			return nil, fmt.Errorf("ListBatches: scan: %w", err)
		}
		b.Status = domain.BatchStatus(status)
		b.StartedAt = b.StartedAt.UTC()
		b.CompletedAt = timePtr(completedAt)
		out = append(out, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ListBatches: rows: %w", err)
	}
	return out, nil
}
