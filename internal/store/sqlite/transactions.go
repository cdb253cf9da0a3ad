package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/dvloznov/ofx-ingest/internal/domain"
)

const transactionColumns = `id, upload_id, account_id, category_id, rule_id, sequence, batch_number,
	external_id, posted_at, amount, direction, description, memo, payee_name, confidence,
	categorization_source, created_at`

func (s *Store) SaveTransactions(ctx context.Context, txs []domain.Transaction) error {
	if len(txs) == 0 {
		return nil
	}
	return s.withTx(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO transactions(`+transactionColumns+`)
		VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(upload_id, sequence) DO NOTHING
		`)
		if err != nil {
			return fmt.Errorf("SaveTransactions: prepare: %w", err)
		}
		defer stmt.Close()

		for i := range txs {
			t := &txs[i]
			if t.CreatedAt.IsZero() {
				t.CreatedAt = now()
			}
			_, err := stmt.ExecContext(ctx, t.ID, t.UploadID, t.AccountID, nullString(t.CategoryID), nullString(t.RuleID),
				t.Sequence, t.BatchNumber, t.ExternalID, t.PostedAt.UTC(), t.Amount.String(), string(t.Direction),
				t.Description, t.Memo, t.PayeeName, t.Confidence, string(t.CategorizationSource), t.CreatedAt.UTC())
			if err != nil {
				return fmt.Errorf("SaveTransactions: insert sequence %d: %w", t.Sequence, err)
			}
		}
		return nil
	})
}

func (s *Store) ListTransactions(ctx context.Context, uploadID string) ([]domain.Transaction, error) {
	rows, err := s.db.QueryContext(ctx, `
	SELECT `+transactionColumns+` FROM transactions WHERE upload_id = ? ORDER BY sequence
	`, uploadID)
	if err != nil {
		return nil, fmt.Errorf("ListTransactions: query: %w", err)
	}
	defer rows.Close()

	var out []domain.Transaction
	for rows.Next() {
		var (
			t          domain.Transaction
			categoryID sql.NullString
			ruleID     sql.NullString
			direction  string
			source     string
		)
		err := rows.Scan(&t.ID, &t.UploadID, &t.AccountID, &categoryID, &ruleID, &t.Sequence, &t.BatchNumber,
			&t.ExternalID, &t.PostedAt, &t.Amount, &direction, &t.Description, &t.Memo, &t.PayeeName,
			&t.Confidence, &source, &t.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("ListTransactions: scan: %w", err)
		}
		t.CategoryID = stringPtr(categoryID)
		t.RuleID = stringPtr(ruleID)
		t.Direction = domain.Direction(direction)
		t.CategorizationSource = domain.CategorizationSource(source)
		t.PostedAt = t.PostedAt.UTC()
		t.CreatedAt = t.CreatedAt.UTC()
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ListTransactions: rows: %w", err)
	}
	return out, nil
}

func (s *Store) CountTransactions(ctx context.Context, uploadID string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM transactions WHERE upload_id = ?`, uploadID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("CountTransactions: %w", err)
	}
	return n, nil
}
