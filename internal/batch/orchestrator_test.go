package batch

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dvloznov/ofx-ingest/internal/domain"
	"github.com/dvloznov/ofx-ingest/internal/ofx"
	"github.com/dvloznov/ofx-ingest/internal/progress"
	"github.com/dvloznov/ofx-ingest/internal/rules"
	"github.com/dvloznov/ofx-ingest/internal/store/memory"
)

type fakeCategorizer struct {
	mu        sync.Mutex
	refreshed []string
	failOn    map[string]error
	panicOn   string
	// before runs ahead of every categorization.
	before func(item ofx.Item)
}

func (f *fakeCategorizer) Refresh(companyID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.refreshed = append(f.refreshed, companyID)
}

func (f *fakeCategorizer) Categorize(_ context.Context, _ string, item ofx.Item) (rules.Result, error) {
	if f.before != nil {
		f.before(item)
	}
	if f.panicOn != "" && item.ExternalID == f.panicOn {
		panic("categorizer exploded")
	}
	if err := f.failOn[item.ExternalID]; err != nil {
		return rules.Result{}, err
	}
	cat := "cat-1"
	return rules.Result{CategoryID: &cat, Confidence: 1, Source: domain.SourceRule}, nil
}

type fakeSink struct {
	mu    sync.Mutex
	calls int
	rows  int
	err   error
}

func (f *fakeSink) ExportTransactions(_ context.Context, _ *domain.Upload, txs []domain.Transaction) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.rows += len(txs)
	return f.err
}

// failingSaves fails SaveTransactions for chunks containing the given
// sequence.
type failingSaves struct {
	*memory.Store
	sequence int
}

func (f *failingSaves) SaveTransactions(ctx context.Context, txs []domain.Transaction) error {
	for _, tx := range txs {
		if tx.Sequence == f.sequence {
			return errors.New("disk full")
		}
	}
	return f.Store.SaveTransactions(ctx, txs)
}

func makeItems(n int) []ofx.Item {
	items := make([]ofx.Item, n)
	base := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	for i := range items {
		items[i] = ofx.Item{
			ExternalID: fmt.Sprintf("fit-%03d", i),
			PostedAt:   base.AddDate(0, 0, i),
			Amount:     decimal.NewFromInt(int64(-10 - i)),
			Direction:  domain.DirectionDebit,
			Memo:       fmt.Sprintf("PAGAMENTO %d", i),
		}
	}
	return items
}

func setup(t *testing.T) (*memory.Store, *progress.Store) {
	t.Helper()
	repo := memory.New()
	require.NoError(t, repo.CreateUpload(context.Background(), &domain.Upload{
		ID: "up-1", CompanyID: "co-1", AccountID: "acc-1", FileHash: "hash", Status: domain.UploadPending,
	}))
	return repo, progress.New(repo, repo)
}

func noSleep(ctx context.Context, _ time.Duration) error { return ctx.Err() }

func TestProcess_CompletesAllChunks(t *testing.T) {
	ctx := context.Background()
	repo, p := setup(t)
	cat := &fakeCategorizer{}
	sink := &fakeSink{}

	o := New(p, repo, cat, sink, Config{ChunkSize: 15}, zerolog.Nop())
	o.sleep = noSleep

	out, err := o.Process(ctx, "up-1", makeItems(40), Options{CompanyID: "co-1"})
	require.NoError(t, err)
	assert.Equal(t, domain.UploadCompleted, out.Status)
	assert.Equal(t, 40, out.Total)
	assert.Equal(t, 40, out.Successful)
	assert.Equal(t, 0, out.Failed)
	assert.Equal(t, []string{"co-1"}, cat.refreshed)

	u, err := repo.GetUpload(ctx, "up-1")
	require.NoError(t, err)
	assert.Equal(t, 3, u.TotalBatches)
	assert.Equal(t, 3, u.CurrentBatch)
	assert.Equal(t, 40, u.ProcessedTransactions)

	txs, err := repo.ListTransactions(ctx, "up-1")
	require.NoError(t, err)
	require.Len(t, txs, 40)
	for i, tx := range txs {
		assert.Equal(t, i, tx.Sequence)
		assert.Equal(t, "acc-1", tx.AccountID)
		assert.Equal(t, i/15+1, tx.BatchNumber)
	}

	batches, err := repo.ListBatches(ctx, "up-1")
	require.NoError(t, err)
	require.Len(t, batches, 3)
	assert.Equal(t, 10, batches[2].ItemCount)
	assert.Equal(t, 3, sink.calls)
	assert.Equal(t, 40, sink.rows)
}

func TestProcess_EmptyDocumentCompletes(t *testing.T) {
	repo, p := setup(t)
	o := New(p, repo, &fakeCategorizer{}, nil, Config{}, zerolog.Nop())

	out, err := o.Process(context.Background(), "up-1", nil, Options{CompanyID: "co-1"})
	require.NoError(t, err)
	assert.Equal(t, domain.UploadCompleted, out.Status)

	snap, err := p.Snapshot(context.Background(), "up-1")
	require.NoError(t, err)
	assert.Equal(t, 100, snap.Percentage)
	assert.Equal(t, 0, snap.TotalBatches)
}

func TestProcess_ItemFailureDoesNotStopChunk(t *testing.T) {
	repo, p := setup(t)
	items := makeItems(5)
	items[3].PostedAt = time.Time{}
	cat := &fakeCategorizer{failOn: map[string]error{"fit-001": errors.New("boom")}}

	o := New(p, repo, cat, nil, Config{ChunkSize: 15}, zerolog.Nop())
	out, err := o.Process(context.Background(), "up-1", items, Options{CompanyID: "co-1"})
	require.NoError(t, err)
	assert.Equal(t, domain.UploadCompleted, out.Status)
	assert.Equal(t, 3, out.Successful)
	assert.Equal(t, 2, out.Failed)

	n, err := repo.CountTransactions(context.Background(), "up-1")
	require.NoError(t, err)
	assert.Equal(t, 3, n)
}

func TestProcess_ChunkFailureContinues(t *testing.T) {
	repo, p := setup(t)
	txs := &failingSaves{Store: repo, sequence: 16}

	o := New(p, txs, &fakeCategorizer{}, nil, Config{ChunkSize: 15}, zerolog.Nop())
	o.sleep = noSleep
	out, err := o.Process(context.Background(), "up-1", makeItems(40), Options{CompanyID: "co-1"})
	require.NoError(t, err)
	assert.Equal(t, domain.UploadCompleted, out.Status)
	assert.Equal(t, 25, out.Successful)
	assert.Equal(t, 15, out.Failed)

	batches, err := repo.ListBatches(context.Background(), "up-1")
	require.NoError(t, err)
	require.Len(t, batches, 3)
	assert.Equal(t, domain.BatchFailed, batches[1].Status)
	assert.Equal(t, "disk full", batches[1].Error)
	assert.Equal(t, domain.BatchCompleted, batches[2].Status)
}

func TestProcess_PanicFailsOnlyItsChunk(t *testing.T) {
	repo, p := setup(t)
	cat := &fakeCategorizer{panicOn: "fit-002"}

	o := New(p, repo, cat, nil, Config{ChunkSize: 2}, zerolog.Nop())
	o.sleep = noSleep
	out, err := o.Process(context.Background(), "up-1", makeItems(6), Options{CompanyID: "co-1"})
	require.NoError(t, err)
	assert.Equal(t, 4, out.Successful)
	assert.Equal(t, 2, out.Failed)

	batches, err := repo.ListBatches(context.Background(), "up-1")
	require.NoError(t, err)
	assert.Equal(t, domain.BatchFailed, batches[1].Status)
	assert.Contains(t, batches[1].Error, "categorizer exploded")
}

func TestProcess_SinkErrorIsIgnored(t *testing.T) {
	repo, p := setup(t)
	sink := &fakeSink{err: errors.New("warehouse down")}

	o := New(p, repo, &fakeCategorizer{}, sink, Config{}, zerolog.Nop())
	out, err := o.Process(context.Background(), "up-1", makeItems(3), Options{CompanyID: "co-1"})
	require.NoError(t, err)
	assert.Equal(t, 3, out.Successful)
	assert.Equal(t, 1, sink.calls)
}

func TestProcess_ResumeSkipsFinishedBatches(t *testing.T) {
	ctx := context.Background()
	repo, p := setup(t)

	first := &domain.ProcessingBatch{UploadID: "up-1", BatchNumber: 1, ItemCount: 2}
	require.NoError(t, repo.StartBatch(ctx, first))
	first.Status, first.SuccessCount = domain.BatchCompleted, 2
	require.NoError(t, repo.FinishBatch(ctx, first))

	sink := &fakeSink{}
	o := New(p, repo, &fakeCategorizer{}, sink, Config{ChunkSize: 2}, zerolog.Nop())
	o.sleep = noSleep
	out, err := o.Process(ctx, "up-1", makeItems(5), Options{CompanyID: "co-1"})
	require.NoError(t, err)
	assert.Equal(t, 5, out.Successful)
	assert.Equal(t, 3, sink.rows, "only the unfinished chunks run")

	txs, err := repo.ListTransactions(ctx, "up-1")
	require.NoError(t, err)
	assert.Len(t, txs, 3)
}

func TestProcess_ResumeFromOffset(t *testing.T) {
	repo, p := setup(t)
	sink := &fakeSink{}
	o := New(p, repo, &fakeCategorizer{}, sink, Config{ChunkSize: 2}, zerolog.Nop())
	o.sleep = noSleep

	_, err := o.Process(context.Background(), "up-1", makeItems(6), Options{CompanyID: "co-1", ResumeFrom: 4})
	require.NoError(t, err)
	assert.Equal(t, 1, sink.calls)
	assert.Equal(t, 2, sink.rows)
}

func TestProcess_UserCancelFailsUpload(t *testing.T) {
	repo, p := setup(t)
	ctx, cancel := context.WithCancelCause(context.Background())
	defer cancel(nil)

	o := New(p, repo, &fakeCategorizer{}, nil, Config{ChunkSize: 2}, zerolog.Nop())
	o.sleep = func(ctx context.Context, _ time.Duration) error {
		cancel(ErrCancelled)
		return ctx.Err()
	}

	out, err := o.Process(ctx, "up-1", makeItems(6), Options{CompanyID: "co-1"})
	require.ErrorIs(t, err, ErrCancelled)
	assert.Equal(t, domain.UploadFailed, out.Status)

	u, err := repo.GetUpload(context.Background(), "up-1")
	require.NoError(t, err)
	assert.Equal(t, domain.UploadFailed, u.Status)
	assert.Equal(t, 2, u.SuccessfulTransactions)
	assert.Equal(t, 4, u.FailedTransactions)
	assert.Contains(t, string(u.ProcessingLog), "processing cancelled")
}

func TestProcess_ShutdownLeavesUploadProcessing(t *testing.T) {
	repo, p := setup(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	o := New(p, repo, &fakeCategorizer{}, nil, Config{ChunkSize: 2}, zerolog.Nop())
	o.sleep = func(ctx context.Context, _ time.Duration) error {
		cancel()
		return ctx.Err()
	}

	_, err := o.Process(ctx, "up-1", makeItems(6), Options{CompanyID: "co-1"})
	require.ErrorIs(t, err, ErrInterrupted)

	u, err := repo.GetUpload(context.Background(), "up-1")
	require.NoError(t, err)
	assert.Equal(t, domain.UploadProcessing, u.Status)
	assert.Equal(t, 1, u.CurrentBatch)
}

func TestProcess_BatchCountMatchesChunking(t *testing.T) {
	for _, n := range []int{1, 14, 15, 16, 30, 31} {
		t.Run(fmt.Sprintf("%d items", n), func(t *testing.T) {
			ctx := context.Background()
			repo, p := setup(t)
			items := makeItems(n)
			items[0].PostedAt = time.Time{}

			o := New(p, repo, &fakeCategorizer{}, nil, Config{}, zerolog.Nop())
			o.sleep = noSleep

			out, err := o.Process(ctx, "up-1", items, Options{CompanyID: "co-1"})
			require.NoError(t, err)
			assert.Equal(t, n, out.Successful+out.Failed)
			assert.Equal(t, 1, out.Failed)

			want := (n + DefaultChunkSize - 1) / DefaultChunkSize
			batches, err := repo.ListBatches(ctx, "up-1")
			require.NoError(t, err)
			assert.Len(t, batches, want)

			u, err := repo.GetUpload(ctx, "up-1")
			require.NoError(t, err)
			assert.Equal(t, want, u.TotalBatches)
			assert.Equal(t, want, u.CurrentBatch)
			assert.Equal(t, n, u.ProcessedTransactions)
		})
	}
}

func TestProcess_ShutdownMidChunkKeepsItemsForResume(t *testing.T) {
	tests := []struct {
		name        string
		cancelAt    string
		interrupted int
		persisted   int
	}{
		{name: "first chunk", cancelAt: "fit-000", interrupted: 1, persisted: 0},
		{name: "middle chunk", cancelAt: "fit-003", interrupted: 2, persisted: 2},
		{name: "last chunk", cancelAt: "fit-004", interrupted: 3, persisted: 4},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			bg := context.Background()
			repo, p := setup(t)
			ctx, cancel := context.WithCancel(bg)
			defer cancel()

			cat := &fakeCategorizer{before: func(item ofx.Item) {
				if item.ExternalID == tt.cancelAt {
					cancel()
				}
			}}
			o := New(p, repo, cat, nil, Config{ChunkSize: 2}, zerolog.Nop())
			o.sleep = noSleep

			_, err := o.Process(ctx, "up-1", makeItems(6), Options{CompanyID: "co-1"})
			require.ErrorIs(t, err, ErrInterrupted)

			u, err := repo.GetUpload(bg, "up-1")
			require.NoError(t, err)
			assert.Equal(t, domain.UploadProcessing, u.Status)
			assert.Equal(t, 0, u.FailedTransactions)
			assert.Equal(t, tt.persisted, u.SuccessfulTransactions)

			batches, err := repo.ListBatches(bg, "up-1")
			require.NoError(t, err)
			require.Len(t, batches, tt.interrupted)
			assert.Equal(t, domain.BatchProcessing, batches[tt.interrupted-1].Status)
			assert.Zero(t, batches[tt.interrupted-1].FailureCount)

			n, err := repo.CountTransactions(bg, "up-1")
			require.NoError(t, err)
			assert.Equal(t, tt.persisted, n)

			cat.before = nil
			out, err := o.Process(bg, "up-1", makeItems(6), Options{CompanyID: "co-1", ResumeFrom: tt.persisted})
			require.NoError(t, err)
			assert.Equal(t, domain.UploadCompleted, out.Status)
			assert.Equal(t, 6, out.Successful)
			assert.Equal(t, 0, out.Failed)

			n, err = repo.CountTransactions(bg, "up-1")
			require.NoError(t, err)
			assert.Equal(t, 6, n)
		})
	}
}

func TestProcess_UserCancelMidChunkFailsUpload(t *testing.T) {
	repo, p := setup(t)
	ctx, cancel := context.WithCancelCause(context.Background())
	defer cancel(nil)

	cat := &fakeCategorizer{before: func(item ofx.Item) {
		if item.ExternalID == "fit-005" {
			cancel(ErrCancelled)
		}
	}}
	o := New(p, repo, cat, nil, Config{ChunkSize: 2}, zerolog.Nop())
	o.sleep = noSleep

	out, err := o.Process(ctx, "up-1", makeItems(6), Options{CompanyID: "co-1"})
	require.ErrorIs(t, err, ErrCancelled)
	assert.Equal(t, domain.UploadFailed, out.Status)
	assert.Equal(t, 6, out.Successful+out.Failed)

	batches, err := repo.ListBatches(context.Background(), "up-1")
	require.NoError(t, err)
	require.Len(t, batches, 3)
	assert.NotEqual(t, domain.BatchProcessing, batches[2].Status)
}
