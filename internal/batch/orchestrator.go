// Package batch processes the items of a parsed statement in ordered,
// fixed-size chunks with per-chunk progress records.
package batch

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/dvloznov/ofx-ingest/internal/domain"
	"github.com/dvloznov/ofx-ingest/internal/ofx"
	"github.com/dvloznov/ofx-ingest/internal/progress"
	"github.com/dvloznov/ofx-ingest/internal/rules"
	"github.com/dvloznov/ofx-ingest/internal/store"
)

const (
	DefaultChunkSize  = 15
	DefaultChunkDelay = 500 * time.Millisecond
)

// ErrCancelled is the cancellation cause for a user-requested stop. A run
// whose context is cancelled with this cause ends failed; any other
// cancellation leaves the upload processing for a later resume.
var ErrCancelled = errors.New("processing cancelled")

// ErrInterrupted is returned when the run stopped because its context ended
// for a reason other than ErrCancelled.
var ErrInterrupted = errors.New("processing interrupted")

type Categorizer interface {
	Refresh(companyID string)
	Categorize(ctx context.Context, companyID string, item ofx.Item) (rules.Result, error)
}

// Sink receives each persisted chunk. Sink errors never fail a chunk.
type Sink interface {
	ExportTransactions(ctx context.Context, upload *domain.Upload, txs []domain.Transaction) error
}

type Config struct {
	ChunkSize  int
	ChunkDelay time.Duration
}

type Options struct {
	AccountID string
	CompanyID string
	// ResumeFrom is the item offset of the first chunk to process. Chunks
	// with a finished batch record are skipped as well.
	ResumeFrom int
}

type Outcome struct {
	UploadID   string
	Status     domain.UploadStatus
	Total      int
	Successful int
	Failed     int
	Elapsed    time.Duration
}

type Orchestrator struct {
	progress *progress.Store
	txs      store.TransactionRepository
	cat      Categorizer
	sink     Sink
	cfg      Config
	log      zerolog.Logger
	now      func() time.Time
	sleep    func(ctx context.Context, d time.Duration) error
}

// New returns an Orchestrator. sink may be nil.
func New(p *progress.Store, txs store.TransactionRepository, cat Categorizer, sink Sink, cfg Config, log zerolog.Logger) *Orchestrator {
	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize = DefaultChunkSize
	}
	if cfg.ChunkDelay < 0 {
		cfg.ChunkDelay = 0
	}
	return &Orchestrator{
		progress: p,
		txs:      txs,
		cat:      cat,
		sink:     sink,
		cfg:      cfg,
		log:      log,
		now:      time.Now,
		sleep:    sleepCtx,
	}
}

func (o *Orchestrator) ChunkSize() int { return o.cfg.ChunkSize }

// Process runs every pending chunk of items for the upload and leaves it
// completed or failed. ErrInterrupted means the upload was left processing.
func (o *Orchestrator) Process(ctx context.Context, uploadID string, items []ofx.Item, opts Options) (*Outcome, error) {
	started := o.now()
	log := o.log.With().Str("upload_id", uploadID).Str("company_id", opts.CompanyID).Logger()

	u, prior, err := o.progress.Prepare(ctx, uploadID, len(items), o.cfg.ChunkSize)
	if err != nil {
		return nil, fmt.Errorf("Process: %w", err)
	}
	o.cat.Refresh(opts.CompanyID)

	finished := make(map[int]bool, len(prior))
	for _, b := range prior {
		if b.Status != domain.BatchProcessing {
			finished[b.BatchNumber] = true
		}
	}

	log.Info().
		Int("total_transactions", len(items)).
		Int("total_batches", u.TotalBatches).
		Int("finished_batches", len(finished)).
		Msg("processing upload")

	for offset := 0; offset < len(items); offset += o.cfg.ChunkSize {
		batchNumber := offset/o.cfg.ChunkSize + 1
		if offset < opts.ResumeFrom || finished[batchNumber] {
			continue
		}

		if ctx.Err() != nil {
			return o.stop(ctx, u, started, log)
		}

		end := min(offset+o.cfg.ChunkSize, len(items))
		o.runChunk(ctx, u, batchNumber, offset, items[offset:end], opts, log)
		if ctx.Err() != nil {
			return o.stop(ctx, u, started, log)
		}

		if end < len(items) {
			if err := o.sleep(ctx, o.cfg.ChunkDelay); err != nil {
				return o.stop(ctx, u, started, log)
			}
		}
	}

	elapsed := o.now().Sub(started)
	// Every chunk is persisted at this point; a late cancellation must not
	// turn the finished run into a failure.
	if err := o.progress.Complete(context.WithoutCancel(ctx), u, elapsed); err != nil {
		log.Error().Err(err).Msg("failed to mark upload completed")
		if ferr := o.progress.Fail(context.WithoutCancel(ctx), u, err, "complete"); ferr != nil {
			log.Error().Err(ferr).Msg("failed to mark upload failed")
		}
		return outcome(u, elapsed), fmt.Errorf("Process: %w", err)
	}

	log.Info().
		Int("successful", u.SuccessfulTransactions).
		Int("failed", u.FailedTransactions).
		Dur("elapsed", elapsed).
		Msg("upload processed")
	return outcome(u, elapsed), nil
}

// stop ends a run whose context is done.
func (o *Orchestrator) stop(ctx context.Context, u *domain.Upload, started time.Time, log zerolog.Logger) (*Outcome, error) {
	elapsed := o.now().Sub(started)
	if !errors.Is(context.Cause(ctx), ErrCancelled) {
		log.Warn().Int("current_batch", u.CurrentBatch).Msg("processing interrupted, upload left for resume")
		return outcome(u, elapsed), ErrInterrupted
	}

	if err := o.progress.Fail(context.WithoutCancel(ctx), u, ErrCancelled, "cancelled"); err != nil {
		log.Error().Err(err).Msg("failed to mark cancelled upload failed")
		return outcome(u, elapsed), fmt.Errorf("Process: %w", err)
	}
	log.Info().Int("current_batch", u.CurrentBatch).Msg("processing cancelled")
	return outcome(u, elapsed), ErrCancelled
}

// runChunk processes one chunk. Item errors count single items as failed; a
// persistence error, a batch-record error or a panic fails the whole chunk.
// A chunk interrupted by a cancellation other than ErrCancelled persists
// nothing and its batch record stays processing, so a resume runs it again.
func (o *Orchestrator) runChunk(ctx context.Context, u *domain.Upload, batchNumber, offset int, items []ofx.Item, opts Options, log zerolog.Logger) {
	b := &domain.ProcessingBatch{
		UploadID:    u.ID,
		BatchNumber: batchNumber,
		Offset:      offset,
		ItemCount:   len(items),
	}
	log = log.With().Int("batch_number", batchNumber).Logger()

	good, itemFailures, err := o.buildChunk(ctx, u, b, items, opts, log)
	if err != nil && interrupted(ctx) {
		log.Warn().Err(err).Msg("chunk interrupted, batch left for resume")
		return
	}
	if err != nil {
		log.Error().Err(err).Msg("chunk failed")
		b.Status = domain.BatchFailed
		b.Error = err.Error()
		b.SuccessCount = 0
		b.FailureCount = len(items)
		good = nil
	} else {
		b.Status = domain.BatchCompleted
		b.SuccessCount = len(good)
		b.FailureCount = itemFailures
	}

	// The batch record is closed on a context that outlives cancellation so
	// the chunk's counts are never lost.
	if err := o.progress.CloseBatch(context.WithoutCancel(ctx), u, b); err != nil {
		log.Error().Err(err).Msg("failed to close batch record")
	}

	if o.sink != nil && len(good) > 0 {
		if err := o.sink.ExportTransactions(ctx, u, good); err != nil {
			log.Warn().Err(err).Msg("warehouse export failed")
		}
	}

	log.Debug().Int("success", b.SuccessCount).Int("failure", b.FailureCount).Msg("chunk done")
}

func (o *Orchestrator) buildChunk(ctx context.Context, u *domain.Upload, b *domain.ProcessingBatch, items []ofx.Item, opts Options, log zerolog.Logger) (good []domain.Transaction, itemFailures int, err error) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Str("stack", string(debug.Stack())).Msg("panic in chunk")
			err = fmt.Errorf("panic: %v", r)
		}
	}()

	if err := o.progress.OpenBatch(ctx, b); err != nil {
		return nil, 0, err
	}

	good = make([]domain.Transaction, 0, len(items))
	for i, item := range items {
		tx, err := o.buildTransaction(ctx, u, b, b.Offset+i, item, opts)
		if err != nil {
			itemFailures++
			log.Warn().Err(err).Int("sequence", b.Offset+i).Str("external_id", item.ExternalID).Msg("transaction failed")
			continue
		}
		good = append(good, *tx)
	}

	// Items may have failed only because the context ended.
	if interrupted(ctx) {
		return nil, 0, context.Cause(ctx)
	}

	if err := o.txs.SaveTransactions(ctx, good); err != nil {
		return nil, 0, err
	}
	return good, itemFailures, nil
}

func (o *Orchestrator) buildTransaction(ctx context.Context, u *domain.Upload, b *domain.ProcessingBatch, sequence int, item ofx.Item, opts Options) (*domain.Transaction, error) {
	if item.PostedAt.IsZero() {
		return nil, fmt.Errorf("item %d: missing posted date", sequence)
	}

	res, err := o.cat.Categorize(ctx, opts.CompanyID, item)
	if err != nil {
		return nil, fmt.Errorf("item %d: %w", sequence, err)
	}

	accountID := opts.AccountID
	if accountID == "" {
		accountID = u.AccountID
	}

	return &domain.Transaction{
		ID:                   uuid.NewString(),
		UploadID:             u.ID,
		AccountID:            accountID,
		CategoryID:           res.CategoryID,
		RuleID:               res.RuleID,
		Sequence:             sequence,
		BatchNumber:          b.BatchNumber,
		ExternalID:           item.ExternalID,
		PostedAt:             item.PostedAt,
		Amount:               item.Amount,
		Direction:            item.Direction,
		Description:          item.Description(),
		Memo:                 item.Memo,
		PayeeName:            item.PayeeName,
		Confidence:           res.Confidence,
		CategorizationSource: res.Source,
		CreatedAt:            o.now().UTC(),
	}, nil
}

// interrupted reports whether ctx ended for a reason other than a user cancel.
func interrupted(ctx context.Context) bool {
	return ctx.Err() != nil && !errors.Is(context.Cause(ctx), ErrCancelled)
}

func outcome(u *domain.Upload, elapsed time.Duration) *Outcome {
	return &Outcome{
		UploadID:   u.ID,
		Status:     u.Status,
		Total:      u.TotalTransactions,
		Successful: u.SuccessfulTransactions,
		Failed:     u.FailedTransactions,
		Elapsed:    elapsed,
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
