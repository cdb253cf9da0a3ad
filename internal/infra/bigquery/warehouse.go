package bigquery

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"cloud.google.com/go/bigquery"
	"github.com/rs/zerolog"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
)

const (
	transactionsTable = "transactions"
	uploadsTable      = "uploads"
)

// Warehouse exports processed transactions and upload summaries to
// BigQuery. It holds one shared client for all operations.
type Warehouse struct {
	client    *bigquery.Client
	projectID string
	datasetID string
	log       zerolog.Logger
}

// NewWarehouse opens a BigQuery client. credentialsFile may be empty to use
// Application Default Credentials.
func NewWarehouse(ctx context.Context, projectID, datasetID, credentialsFile string, log zerolog.Logger) (*Warehouse, error) {
	var opts []option.ClientOption
	if credentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(credentialsFile))
	}
	client, err := bigquery.NewClient(ctx, projectID, opts...)
	if err != nil {
		return nil, fmt.Errorf("NewWarehouse: creating client: %w", err)
	}
	return &Warehouse{client: client, projectID: projectID, datasetID: datasetID, log: log}, nil
}

// Close closes the BigQuery client connection.
func (w *Warehouse) Close() error {
	if w.client != nil {
		return w.client.Close()
	}
	return nil
}

// EnsureTables creates the dataset and tables when missing. Existing tables
// are left untouched.
func (w *Warehouse) EnsureTables(ctx context.Context) error {
	ds := w.client.DatasetInProject(w.projectID, w.datasetID)
	if err := ds.Create(ctx, &bigquery.DatasetMetadata{Location: "US"}); err != nil && !alreadyExists(err) {
		return fmt.Errorf("EnsureTables: create dataset: %w", err)
	}

	for name, row := range map[string]any{transactionsTable: TransactionRow{}, uploadsTable: UploadRow{}} {
		schema, err := bigquery.InferSchema(row)
		if err != nil {
			return fmt.Errorf("EnsureTables: infer %s schema: %w", name, err)
		}
		meta := &bigquery.TableMetadata{Schema: schema}
		if name == transactionsTable {
			meta.TimePartitioning = &bigquery.TimePartitioning{Field: "transaction_date"}
		}
		if err := ds.Table(name).Create(ctx, meta); err != nil {
			if alreadyExists(err) {
				continue
			}
			return fmt.Errorf("EnsureTables: create %s: %w", name, err)
		}
		w.log.Info().Str("dataset", w.datasetID).Str("table", name).Msg("created warehouse table")
	}
	return nil
}

func (w *Warehouse) table(name string) *bigquery.Table {
	return w.client.DatasetInProject(w.projectID, w.datasetID).Table(name)
}

func (w *Warehouse) qualified(name string) string {
	return fmt.Sprintf("`%s.%s.%s`", w.projectID, w.datasetID, name)
}

func alreadyExists(err error) bool {
	var apiErr *googleapi.Error
	return errors.As(err, &apiErr) && apiErr.Code == http.StatusConflict
}
