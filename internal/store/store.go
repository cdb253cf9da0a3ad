// Package store declares the persistence contracts of the ingestion pipeline.
//
// Find* methods return (nil, nil) when nothing matches. Get* methods return
// ErrNotFound. Create* methods return ErrConflict when a unique key is taken.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/dvloznov/ofx-ingest/internal/domain"
)

var (
	ErrNotFound = errors.New("store: not found")
	ErrConflict = errors.New("store: conflict")
)

type UploadRepository interface {
	CreateUpload(ctx context.Context, u *domain.Upload) error
	GetUpload(ctx context.Context, id string) (*domain.Upload, error)
	FindUploadByHash(ctx context.Context, companyID, fileHash string) (*domain.Upload, error)
	ListUploads(ctx context.Context, companyID string) ([]*domain.Upload, error)
	ListUploadsByStatus(ctx context.Context, statuses ...domain.UploadStatus) ([]*domain.Upload, error)
	// UpdateUpload writes every mutable column of u.
	UpdateUpload(ctx context.Context, u *domain.Upload) error
}

type AccountRepository interface {
	GetAccount(ctx context.Context, id string) (*domain.Account, error)
	FindAccountByBankInfo(ctx context.Context, companyID, bankCode, accountNumber string) (*domain.Account, error)
	// DefaultAccount returns the company's is_default account, otherwise its
	// oldest active account.
	DefaultAccount(ctx context.Context, companyID string) (*domain.Account, error)
	CreateAccount(ctx context.Context, a *domain.Account) error
	UpdateAccount(ctx context.Context, a *domain.Account) error
}

type CategoryRepository interface {
	ListCategories(ctx context.Context, companyID string) ([]domain.Category, error)
	FindCategoryByName(ctx context.Context, companyID, name string) (*domain.Category, error)
	CreateCategory(ctx context.Context, c *domain.Category) error
}

type RuleRepository interface {
	ListRules(ctx context.Context, companyID string, activeOnly bool) ([]domain.CategoryRule, error)
	// FindRuleConflict returns the rule with the same pattern and category.
	FindRuleConflict(ctx context.Context, companyID, pattern, categoryID string) (*domain.CategoryRule, error)
	CreateRule(ctx context.Context, r *domain.CategoryRule) error
	UpdateRule(ctx context.Context, r *domain.CategoryRule) error
	// RecordRuleUsage increments usage_count and stamps last_used_at.
	RecordRuleUsage(ctx context.Context, ruleID string, at time.Time) error
}

type TransactionRepository interface {
	// SaveTransactions inserts txs in one unit. Rows whose (upload_id,
	// sequence) already exists are left as they are.
	SaveTransactions(ctx context.Context, txs []domain.Transaction) error
	ListTransactions(ctx context.Context, uploadID string) ([]domain.Transaction, error)
	CountTransactions(ctx context.Context, uploadID string) (int, error)
}

type BatchRepository interface {
	// StartBatch opens (or reopens) the record for b.UploadID/b.BatchNumber.
	StartBatch(ctx context.Context, b *domain.ProcessingBatch) error
	FinishBatch(ctx context.Context, b *domain.ProcessingBatch) error
	// ListBatches returns the upload's records ordered by batch number.
	ListBatches(ctx context.Context, uploadID string) ([]domain.ProcessingBatch, error)
}

// Store bundles every repository.
type Store interface {
	UploadRepository
	AccountRepository
	CategoryRepository
	RuleRepository
	TransactionRepository
	BatchRepository
	Close() error
}
