// Package app wires configuration into the running ingest components shared
// by the API server and the CLI.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/rs/zerolog"

	"github.com/dvloznov/ofx-ingest/internal/accounts"
	"github.com/dvloznov/ofx-ingest/internal/banks"
	"github.com/dvloznov/ofx-ingest/internal/batch"
	"github.com/dvloznov/ofx-ingest/internal/config"
	"github.com/dvloznov/ofx-ingest/internal/filestore"
	"github.com/dvloznov/ofx-ingest/internal/gemini"
	infraBQ "github.com/dvloznov/ofx-ingest/internal/infra/bigquery"
	"github.com/dvloznov/ofx-ingest/internal/ingest"
	"github.com/dvloznov/ofx-ingest/internal/jobs/inmemory"
	"github.com/dvloznov/ofx-ingest/internal/progress"
	"github.com/dvloznov/ofx-ingest/internal/rules"
	"github.com/dvloznov/ofx-ingest/internal/store"
	"github.com/dvloznov/ofx-ingest/internal/store/sqlite"
)

// App holds every wired component. Warehouse is nil when the BigQuery export
// is disabled.
type App struct {
	Config    config.Config
	Store     store.Store
	Files     filestore.FileStore
	Warehouse *infraBQ.Warehouse
	JobStore  *inmemory.Store
	Queue     *inmemory.Queue
	Ingest    *ingest.Service
	Rules     *rules.TransferService

	closers []io.Closer
}

// Build opens storage and constructs the pipeline. Callers must Close the
// returned App.
func Build(ctx context.Context, cfg config.Config, log zerolog.Logger) (*App, error) {
	a := &App{Config: cfg}

	db, err := sqlite.OpenMigrated(cfg.Database.Path)
	if err != nil {
		return nil, fmt.Errorf("Build: open database: %w", err)
	}
	a.Store = db
	a.closers = append(a.closers, db)

	files, err := openFiles(ctx, cfg)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("Build: %w", err)
	}
	a.Files = files
	if c, ok := files.(io.Closer); ok {
		a.closers = append(a.closers, c)
	}

	var (
		namer     banks.Namer
		suggester rules.Suggester
	)
	if cfg.AI.Enabled {
		client, err := gemini.New(ctx, cfg.AI.Model, log)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("Build: gemini: %w", err)
		}
		namer, suggester = client, client
	}

	var (
		chunkSink  batch.Sink
		uploadSink ingest.UploadSink
	)
	if cfg.Warehouse.Enabled {
		wh, err := infraBQ.NewWarehouse(ctx, cfg.GCP.ProjectID, cfg.Warehouse.Dataset, cfg.GCP.CredentialsFile, log)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("Build: warehouse: %w", err)
		}
		a.Warehouse = wh
		a.closers = append(a.closers, wh)
		chunkSink, uploadSink = wh, wh
	}

	tracker := progress.New(db, db)
	categorizer := rules.NewCategorizer(db, db, suggester, log)
	orch := batch.New(tracker, db, categorizer, chunkSink, batch.Config{
		ChunkSize:  cfg.Batch.ChunkSize,
		ChunkDelay: cfg.Batch.ChunkDelay,
	}, log)

	a.JobStore = inmemory.NewStore()
	a.Queue = inmemory.NewQueue(inmemory.QueueConfig{
		Workers:    cfg.Jobs.Workers,
		Buffer:     cfg.Jobs.Buffer,
		MaxRetries: cfg.Jobs.MaxRetries,
	}, a.JobStore, log)
	a.closers = append(a.closers, a.Queue)

	a.Ingest = ingest.New(ingest.Deps{
		Uploads:   db,
		Batches:   db,
		Accounts:  accounts.NewResolver(db, banks.NewResolver(namer, log), log),
		Files:     files,
		Processor: orch,
		Tracker:   tracker,
		Publisher: a.Queue,
		Canceller: a.Queue,
		Sink:      uploadSink,
	}, ingest.Config{MaxBytes: cfg.Upload.MaxBytes}, log)

	a.Rules = rules.NewTransferService(db, db, log)
	return a, nil
}

func openFiles(ctx context.Context, cfg config.Config) (filestore.FileStore, error) {
	switch cfg.Storage.Backend {
	case filestore.ProviderGCS:
		return filestore.NewGCS(ctx, cfg.Storage.Bucket, cfg.GCP.CredentialsFile)
	case filestore.ProviderLocal:
		return filestore.NewLocal(cfg.Storage.LocalDir)
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Storage.Backend)
	}
}

// Close releases resources in reverse order of acquisition. The queue is
// stopped first, waiting for in-flight jobs.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i].Close(); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
