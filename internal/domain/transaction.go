package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Direction is the money flow of a transaction relative to the account.
type Direction string

const (
	DirectionCredit Direction = "credit"
	DirectionDebit  Direction = "debit"
)

// CategorizationSource records which stage assigned a transaction's category.
type CategorizationSource string

const (
	SourceRule     CategorizationSource = "rule"
	SourceAI       CategorizationSource = "ai"
	SourceFallback CategorizationSource = "fallback"
	SourceNone     CategorizationSource = "none"
)

// Transaction is one persisted statement line, categorized.
// (UploadID, Sequence) identifies it uniquely so a resumed run can rewrite a
// chunk without duplicating rows.
type Transaction struct {
	ID         string
	UploadID   string
	AccountID  string
	CategoryID *string
	RuleID     *string

	Sequence    int // index of the item in the parsed document
	BatchNumber int

	ExternalID  string
	PostedAt    time.Time
	Amount      decimal.Decimal
	Direction   Direction
	Description string
	Memo        string
	PayeeName   string

	Confidence           float64
	CategorizationSource CategorizationSource

	CreatedAt time.Time
}
