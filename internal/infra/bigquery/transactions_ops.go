package bigquery

import (
	"context"
	"fmt"

	"cloud.google.com/go/bigquery"
	"google.golang.org/api/iterator"

	"github.com/dvloznov/ofx-ingest/internal/domain"
)

// ExportTransactions streams one chunk of persisted transactions. The
// transaction id is the insert id, so a replayed chunk is deduplicated on a
// best-effort basis.
func (w *Warehouse) ExportTransactions(ctx context.Context, upload *domain.Upload, txs []domain.Transaction) error {
	if len(txs) == 0 {
		return nil
	}

	savers := make([]*bigquery.StructSaver, 0, len(txs))
	for _, tx := range txs {
		savers = append(savers, &bigquery.StructSaver{
			Struct:   NewTransactionRow(upload, tx),
			InsertID: tx.ID,
		})
	}

	if err := w.table(transactionsTable).Inserter().Put(ctx, savers); err != nil {
		return fmt.Errorf("ExportTransactions: inserting rows: %w", err)
	}
	return nil
}

// ExportUpload writes the summary row of a finished upload.
func (w *Warehouse) ExportUpload(ctx context.Context, upload *domain.Upload) error {
	saver := &bigquery.StructSaver{Struct: NewUploadRow(upload), InsertID: upload.ID + ":" + string(upload.Status)}
	if err := w.table(uploadsTable).Inserter().Put(ctx, saver); err != nil {
		return fmt.Errorf("ExportUpload: inserting row: %w", err)
	}
	return nil
}

// CountExported returns the number of distinct transactions exported for an
// upload.
func (w *Warehouse) CountExported(ctx context.Context, uploadID string) (int64, error) {
	q := w.client.Query(fmt.Sprintf(`
		SELECT COUNT(DISTINCT transaction_id) AS n
		FROM %s
		WHERE upload_id = @upload_id
	`, w.qualified(transactionsTable)))
	q.Parameters = []bigquery.QueryParameter{
		{Name: "upload_id", Value: uploadID},
	}

	it, err := q.Read(ctx)
	if err != nil {
		return 0, fmt.Errorf("CountExported: query read: %w", err)
	}

	var total int64
	for {
		var row struct {
			N int64 `bigquery:"n"`
		}
		err := it.Next(&row)
		if err == iterator.Done {
			break
		}
		if err != nil {
			return 0, fmt.Errorf("CountExported: iter next: %w", err)
		}
		total += row.N
	}
	return total, nil
}
