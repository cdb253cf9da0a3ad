package bigquery

import (
	"math/big"
	"time"

	"cloud.google.com/go/bigquery"
	"cloud.google.com/go/civil"

	"github.com/dvloznov/ofx-ingest/internal/domain"
	"github.com/dvloznov/ofx-ingest/internal/ofx"
)

type TransactionRow struct {
	TransactionID string `bigquery:"transaction_id"` // REQUIRED
	UploadID      string `bigquery:"upload_id"`      // REQUIRED
	CompanyID     string `bigquery:"company_id"`     // REQUIRED
	AccountID     string `bigquery:"account_id"`

	Sequence    int64 `bigquery:"sequence"`
	BatchNumber int64 `bigquery:"batch_number"`

	TransactionDate civil.Date `bigquery:"transaction_date"` // REQUIRED
	PostedTS        time.Time  `bigquery:"posted_ts"`

	Amount    *big.Rat `bigquery:"amount"` // NUMERIC
	Currency  string   `bigquery:"currency"`
	Direction string   `bigquery:"direction"`

	ExternalID  bigquery.NullString `bigquery:"external_id"`
	Description string              `bigquery:"description"`
	Memo        bigquery.NullString `bigquery:"memo"`
	PayeeName   bigquery.NullString `bigquery:"payee_name"`

	CategoryID           bigquery.NullString `bigquery:"category_id"`
	RuleID               bigquery.NullString `bigquery:"rule_id"`
	CategorizationSource string              `bigquery:"categorization_source"`
	Confidence           float64             `bigquery:"confidence"`

	CreatedTS time.Time `bigquery:"created_ts"`
}

// UploadRow is the final state of one upload, written when it finishes.
type UploadRow struct {
	UploadID     string `bigquery:"upload_id"`
	CompanyID    string `bigquery:"company_id"`
	AccountID    string `bigquery:"account_id"`
	OriginalName string `bigquery:"original_name"`
	FileHash     string `bigquery:"file_hash"`
	Status       string `bigquery:"status"`

	TotalTransactions      int64 `bigquery:"total_transactions"`
	SuccessfulTransactions int64 `bigquery:"successful_transactions"`
	FailedTransactions     int64 `bigquery:"failed_transactions"`

	UploadedTS  time.Time              `bigquery:"uploaded_ts"`
	ProcessedTS bigquery.NullTimestamp `bigquery:"processed_ts"`
}

func nullString(s string) bigquery.NullString {
	return bigquery.NullString{StringVal: s, Valid: s != ""}
}

func nullStringPtr(s *string) bigquery.NullString {
	if s == nil {
		return bigquery.NullString{}
	}
	return nullString(*s)
}

// NewTransactionRow converts a persisted transaction of upload u.
func NewTransactionRow(u *domain.Upload, tx domain.Transaction) *TransactionRow {
	posted := tx.PostedAt.UTC()
	return &TransactionRow{
		TransactionID:        tx.ID,
		UploadID:             tx.UploadID,
		CompanyID:            u.CompanyID,
		AccountID:            tx.AccountID,
		Sequence:             int64(tx.Sequence),
		BatchNumber:          int64(tx.BatchNumber),
		TransactionDate:      civil.DateOf(posted),
		PostedTS:             posted,
		Amount:               tx.Amount.Rat(),
		Currency:             ofx.DefaultCurrency,
		Direction:            string(tx.Direction),
		ExternalID:           nullString(tx.ExternalID),
		Description:          tx.Description,
		Memo:                 nullString(tx.Memo),
		PayeeName:            nullString(tx.PayeeName),
		CategoryID:           nullStringPtr(tx.CategoryID),
		RuleID:               nullStringPtr(tx.RuleID),
		CategorizationSource: string(tx.CategorizationSource),
		Confidence:           tx.Confidence,
		CreatedTS:            tx.CreatedAt.UTC(),
	}
}

func NewUploadRow(u *domain.Upload) *UploadRow {
	row := &UploadRow{
		UploadID:               u.ID,
		CompanyID:              u.CompanyID,
		AccountID:              u.AccountID,
		OriginalName:           u.OriginalName,
		FileHash:               u.FileHash,
		Status:                 string(u.Status),
		TotalTransactions:      int64(u.TotalTransactions),
		SuccessfulTransactions: int64(u.SuccessfulTransactions),
		FailedTransactions:     int64(u.FailedTransactions),
		UploadedTS:             u.UploadedAt.UTC(),
	}
	if u.ProcessedAt != nil {
		row.ProcessedTS = bigquery.NullTimestamp{Timestamp: u.ProcessedAt.UTC(), Valid: true}
	}
	return row
}
