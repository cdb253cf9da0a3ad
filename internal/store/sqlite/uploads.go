package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/dvloznov/ofx-ingest/internal/domain"
	"github.com/dvloznov/ofx-ingest/internal/store"
)

const uploadColumns = `id, company_id, account_id, original_name, stored_path, storage_provider,
	file_size, file_hash, status, total_transactions, successful_transactions,
	failed_transactions, processed_transactions, current_batch, total_batches,
	uploaded_at, processed_at, processing_log`

func (s *Store) CreateUpload(ctx context.Context, u *domain.Upload) error {
	if u.UploadedAt.IsZero() {
		u.UploadedAt = now()
	}
	_, err := s.db.ExecContext(ctx, `
	INSERT INTO uploads(`+uploadColumns+`)
	VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, u.ID, u.CompanyID, u.AccountID, u.OriginalName, u.StoredPath, u.StorageProvider,
		u.FileSize, u.FileHash, string(u.Status), u.TotalTransactions, u.SuccessfulTransactions,
		u.FailedTransactions, u.ProcessedTransactions, u.CurrentBatch, u.TotalBatches,
		u.UploadedAt.UTC(), nullTime(u.ProcessedAt), processingLog(u.ProcessingLog))
	if isUniqueViolation(err) {
		return fmt.Errorf("CreateUpload: company %s hash %s: %w", u.CompanyID, u.FileHash, store.ErrConflict)
	}
	if err != nil {
		return fmt.Errorf("CreateUpload: insert: %w", err)
	}
	return nil
}

func (s *Store) GetUpload(ctx context.Context, id string) (*domain.Upload, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+uploadColumns+` FROM uploads WHERE id = ?`, id)
	u, err := scanUpload(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("GetUpload: %s: %w", id, store.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("GetUpload: scan: %w", err)
	}
	return u, nil
}

func (s *Store) FindUploadByHash(ctx context.Context, companyID, fileHash string) (*domain.Upload, error) {
	row := s.db.QueryRowContext(ctx, `
	SELECT `+uploadColumns+` FROM uploads WHERE company_id = ? AND file_hash = ?
	`, companyID, fileHash)
	u, err := scanUpload(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("FindUploadByHash: scan: %w", err)
	}
	return u, nil
}

func (s *Store) ListUploads(ctx context.Context, companyID string) ([]*domain.Upload, error) {
	rows, err := s.db.QueryContext(ctx, `
	SELECT `+uploadColumns+` FROM uploads WHERE company_id = ? ORDER BY uploaded_at DESC, id
	`, companyID)
	if err != nil {
		return nil, fmt.Errorf("ListUploads: query: %w", err)
	}
	return collectUploads(rows)
}

func (s *Store) ListUploadsByStatus(ctx context.Context, statuses ...domain.UploadStatus) ([]*domain.Upload, error) {
	if len(statuses) == 0 {
		return nil, nil
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(statuses)), ",")
	args := make([]any, len(statuses))
	for i, st := range statuses {
		args[i] = string(st)
	}
	rows, err := s.db.QueryContext(ctx, `
	SELECT `+uploadColumns+` FROM uploads WHERE status IN (`+placeholders+`) ORDER BY uploaded_at, id
	`, args...)
	if err != nil {
		return nil, fmt.Errorf("ListUploadsByStatus: query: %w", err)
	}
	return collectUploads(rows)
}

func (s *Store) UpdateUpload(ctx context.Context, u *domain.Upload) error {
	res, err := s.db.ExecContext(ctx, `
	UPDATE uploads SET
		account_id = ?, stored_path = ?, storage_provider = ?, status = ?,
		total_transactions = ?, successful_transactions = ?, failed_transactions = ?,
		processed_transactions = ?, current_batch = ?, total_batches = ?,
		processed_at = ?, processing_log = ?
	WHERE id = ?
	`, u.AccountID, u.StoredPath, u.StorageProvider, string(u.Status),
		u.TotalTransactions, u.SuccessfulTransactions, u.FailedTransactions,
		u.ProcessedTransactions, u.CurrentBatch, u.TotalBatches,
		nullTime(u.ProcessedAt), processingLog(u.ProcessingLog), u.ID)
	if err != nil {
		return fmt.Errorf("UpdateUpload: %s: %w", u.ID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("UpdateUpload: %s: %w", u.ID, store.ErrNotFound)
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanUpload(sc scanner) (*domain.Upload, error) {
	var (
		u           domain.Upload
		status      string
		processedAt sql.NullTime
		logText     sql.NullString
	)
	err := sc.Scan(&u.ID, &u.CompanyID, &u.AccountID, &u.OriginalName, &u.StoredPath, &u.StorageProvider,
		&u.FileSize, &u.FileHash, &status, &u.TotalTransactions, &u.SuccessfulTransactions,
		&u.FailedTransactions, &u.ProcessedTransactions, &u.CurrentBatch, &u.TotalBatches,
		&u.UploadedAt, &processedAt, &logText)
	if err != nil {
		return nil, err
	}
	u.Status = domain.UploadStatus(status)
	u.UploadedAt = u.UploadedAt.UTC()
	u.ProcessedAt = timePtr(processedAt)
	if logText.Valid && logText.String != "" {
		u.ProcessingLog = json.RawMessage(logText.String)
	}
	return &u, nil
}

func collectUploads(rows *sql.Rows) ([]*domain.Upload, error) {
	defer rows.Close()
	var out []*domain.Upload
	for rows.Next() {
		u, err := scanUpload(rows)
		if err != nil {
			return nil, fmt.Errorf("collectUploads: scan: %w", err)
		}
		out = append(out, u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("collectUploads: rows: %w", err)
	}
	return out, nil
}

func processingLog(raw json.RawMessage) sql.NullString {
	if len(raw) == 0 {
		return sql.NullString{}
	}
	return sql.NullString{String: string(raw), Valid: true}
}
