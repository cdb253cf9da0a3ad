package sqlite

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dvloznov/ofx-ingest/internal/domain"
	"github.com/dvloznov/ofx-ingest/internal/store"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := OpenMigrated(path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func seedAccount(t *testing.T, s *Store, companyID string) *domain.Account {
	t.Helper()
	a := &domain.Account{
		ID:             uuid.NewString(),
		CompanyID:      companyID,
		Name:           "Conta Itaú - 12345-6",
		BankName:       "Itaú",
		BankCode:       "341",
		BranchNumber:   "1234",
		AccountNumber:  "12345-6",
		AccountType:    "checking",
		OpeningBalance: decimal.RequireFromString("100.50"),
		Active:         true,
	}
	require.NoError(t, s.CreateAccount(context.Background(), a))
	return a
}

func seedUpload(t *testing.T, s *Store, companyID, accountID, hash string) *domain.Upload {
	t.Helper()
	u := &domain.Upload{
		ID:           uuid.NewString(),
		CompanyID:    companyID,
		AccountID:    accountID,
		OriginalName: "extrato.ofx",
		FileSize:     1024,
		FileHash:     hash,
		Status:       domain.UploadPending,
	}
	require.NoError(t, s.CreateUpload(context.Background(), u))
	return u
}

func TestRunMigrations_Idempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "m.db")
	require.NoError(t, RunMigrations(path))
	require.NoError(t, RunMigrations(path))

	version, dirty, err := MigrationVersion(path)
	require.NoError(t, err)
	assert.Equal(t, uint(1), version)
	assert.False(t, dirty)
}

func TestAccounts(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	a := seedAccount(t, s, "c1")

	found, err := s.FindAccountByBankInfo(ctx, "c1", "341", "12345-6")
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, a.ID, found.ID)
	assert.True(t, found.OpeningBalance.Equal(decimal.RequireFromString("100.50")))

	missing, err := s.FindAccountByBankInfo(ctx, "c2", "341", "12345-6")
	require.NoError(t, err)
	assert.Nil(t, missing)

	found.BranchNumber = "9999"
	require.NoError(t, s.UpdateAccount(ctx, found))
	got, err := s.GetAccount(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, "9999", got.BranchNumber)

	_, err = s.GetAccount(ctx, "nope")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestDefaultAccount(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	none, err := s.DefaultAccount(ctx, "c1")
	require.NoError(t, err)
	assert.Nil(t, none)

	oldest := seedAccount(t, s, "c1")
	time.Sleep(1100 * time.Millisecond) // created_at has second resolution
	second := seedAccount(t, s, "c1")

	got, err := s.DefaultAccount(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, oldest.ID, got.ID, "oldest active account without an explicit default")

	second.IsDefault = true
	require.NoError(t, s.UpdateAccount(ctx, second))
	got, err = s.DefaultAccount(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, second.ID, got.ID)
}

func TestUploads(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	a := seedAccount(t, s, "c1")

	u := seedUpload(t, s, "c1", a.ID, "hash-1")

	dup := &domain.Upload{ID: uuid.NewString(), CompanyID: "c1", AccountID: a.ID, OriginalName: "x.ofx", FileHash: "hash-1", Status: domain.UploadPending}
	assert.ErrorIs(t, s.CreateUpload(ctx, dup), store.ErrConflict)

	found, err := s.FindUploadByHash(ctx, "c1", "hash-1")
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, u.ID, found.ID)

	notFound, err := s.FindUploadByHash(ctx, "c1", "other")
	require.NoError(t, err)
	assert.Nil(t, notFound)

	processedAt := time.Now().UTC()
	u.Status = domain.UploadCompleted
	u.TotalTransactions = 3
	u.SuccessfulTransactions = 2
	u.FailedTransactions = 1
	u.ProcessedAt = &processedAt
	u.ProcessingLog = json.RawMessage(`{"totalProcessed":3}`)
	require.NoError(t, s.UpdateUpload(ctx, u))

	got, err := s.GetUpload(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.UploadCompleted, got.Status)
	assert.Equal(t, 2, got.SuccessfulTransactions)
	require.NotNil(t, got.ProcessedAt)
	assert.JSONEq(t, `{"totalProcessed":3}`, string(got.ProcessingLog))

	pending := seedUpload(t, s, "c1", a.ID, "hash-2")
	stranded, err := s.ListUploadsByStatus(ctx, domain.UploadPending, domain.UploadProcessing)
	require.NoError(t, err)
	require.Len(t, stranded, 1)
	assert.Equal(t, pending.ID, stranded[0].ID)

	all, err := s.ListUploads(ctx, "c1")
	require.NoError(t, err)
	assert.Len(t, all, 2)

	_, err = s.GetUpload(ctx, "missing")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestSaveTransactions_Idempotent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	a := seedAccount(t, s, "c1")
	u := seedUpload(t, s, "c1", a.ID, "h")

	cat := "cat-1"
	txs := []domain.Transaction{
		{ID: uuid.NewString(), UploadID: u.ID, AccountID: a.ID, Sequence: 0, BatchNumber: 1, PostedAt: time.Now(), Amount: decimal.RequireFromString("-10.25"), Direction: domain.DirectionDebit, Description: "UBER", CategorizationSource: domain.SourceNone},
		{ID: uuid.NewString(), UploadID: u.ID, AccountID: a.ID, CategoryID: &cat, Sequence: 1, BatchNumber: 1, PostedAt: time.Now(), Amount: decimal.RequireFromString("20"), Direction: domain.DirectionCredit, Description: "PIX", Confidence: 0.9, CategorizationSource: domain.SourceRule},
	}
	require.NoError(t, s.SaveTransactions(ctx, txs))

	// A resumed run writes the same sequences with fresh ids.
	again := make([]domain.Transaction, len(txs))
	copy(again, txs)
	for i := range again {
		again[i].ID = uuid.NewString()
	}
	require.NoError(t, s.SaveTransactions(ctx, again))

	n, err := s.CountTransactions(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	got, err := s.ListTransactions(ctx, u.ID)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, txs[0].ID, got[0].ID)
	assert.True(t, got[0].Amount.Equal(decimal.RequireFromString("-10.25")))
	assert.Nil(t, got[0].CategoryID)
	require.NotNil(t, got[1].CategoryID)
	assert.Equal(t, "cat-1", *got[1].CategoryID)
}

func TestBatches(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	a := seedAccount(t, s, "c1")
	u := seedUpload(t, s, "c1", a.ID, "h")

	b := &domain.ProcessingBatch{UploadID: u.ID, BatchNumber: 1, Offset: 0, ItemCount: 15}
	require.NoError(t, s.StartBatch(ctx, b))

	b.SuccessCount = 14
	b.FailureCount = 1
	b.Status = domain.BatchCompleted
	require.NoError(t, s.FinishBatch(ctx, b))

	// Reopening a batch resets it.
	b2 := &domain.ProcessingBatch{UploadID: u.ID, BatchNumber: 2, Offset: 15, ItemCount: 3}
	require.NoError(t, s.StartBatch(ctx, b2))
	require.NoError(t, s.StartBatch(ctx, b2))

	got, err := s.ListBatches(ctx, u.ID)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, domain.BatchCompleted, got[0].Status)
	assert.Equal(t, 14, got[0].SuccessCount)
	require.NotNil(t, got[0].CompletedAt)
	assert.Equal(t, domain.BatchProcessing, got[1].Status)
	assert.Nil(t, got[1].CompletedAt)

	missing := &domain.ProcessingBatch{UploadID: u.ID, BatchNumber: 9, Status: domain.BatchFailed}
	assert.ErrorIs(t, s.FinishBatch(ctx, missing), store.ErrNotFound)
}

func TestCategoriesAndRules(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	cat := &domain.Category{ID: uuid.NewString(), CompanyID: "c1", Name: "Transporte", Type: "expense", Active: true}
	require.NoError(t, s.CreateCategory(ctx, cat))
	assert.ErrorIs(t, s.CreateCategory(ctx, &domain.Category{ID: uuid.NewString(), CompanyID: "c1", Name: "Transporte"}), store.ErrConflict)

	found, err := s.FindCategoryByName(ctx, "c1", "Transporte")
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, cat.ID, found.ID)

	rule := &domain.CategoryRule{
		ID: uuid.NewString(), CompanyID: "c1", CategoryID: cat.ID, Pattern: "uber",
		Type: domain.RuleContains, Confidence: 0.8, Active: true, Source: domain.RuleSourceManual,
		Examples: []string{"UBER *TRIP"},
	}
	require.NoError(t, s.CreateRule(ctx, rule))
	inactive := &domain.CategoryRule{
		ID: uuid.NewString(), CompanyID: "c1", CategoryID: cat.ID, Pattern: "99 taxi",
		Type: domain.RuleContains, Confidence: 0.5, Active: false, Source: domain.RuleSourceManual,
	}
	require.NoError(t, s.CreateRule(ctx, inactive))

	active, err := s.ListRules(ctx, "c1", true)
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, []string{"UBER *TRIP"}, active[0].Examples)

	all, err := s.ListRules(ctx, "c1", false)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	conflict, err := s.FindRuleConflict(ctx, "c1", "uber", cat.ID)
	require.NoError(t, err)
	require.NotNil(t, conflict)
	assert.Equal(t, rule.ID, conflict.ID)

	used := time.Now().UTC()
	require.NoError(t, s.RecordRuleUsage(ctx, rule.ID, used))
	require.NoError(t, s.RecordRuleUsage(ctx, rule.ID, used))
	conflict, err = s.FindRuleConflict(ctx, "c1", "uber", cat.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, conflict.UsageCount)
	require.NotNil(t, conflict.LastUsedAt)

	conflict.Confidence = 0.95
	require.NoError(t, s.UpdateRule(ctx, conflict))
	all, err = s.ListRules(ctx, "c1", false)
	require.NoError(t, err)
	assert.InDelta(t, 0.95, all[0].Confidence, 1e-9)

	assert.ErrorIs(t, s.RecordRuleUsage(ctx, "missing", used), store.ErrNotFound)
}
