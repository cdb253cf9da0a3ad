// Package ofx turns raw OFX statement files into normalized documents.
package ofx

import (
	"time"

	"github.com/dvloznov/ofx-ingest/internal/domain"
	"github.com/shopspring/decimal"
)

// Kind is the statement flavour carried by the OFX message set.
type Kind string

const (
	KindBank       Kind = "bank"
	KindCreditCard Kind = "credit-card"
)

// DefaultCurrency is used when a statement carries no CURDEF.
const DefaultCurrency = "BRL"

// CreditCardAccountType is reported for credit-card statements, which carry
// no ACCTTYPE of their own.
const CreditCardAccountType = "CREDITCARD"

// Document is the parsed form of one statement file. It is immutable once
// returned by Parse.
type Document struct {
	Kind    Kind
	Headers Headers
	Account AccountInfo
	Period  Period
	Balance Balance
	Items   []Item
}

// Headers holds protocol metadata from the OFX header block and signon.
type Headers struct {
	OFXHeader  string
	Data       string
	Version    string
	Security   string
	Encoding   string
	Charset    string
	Org        string
	FID        string
	Language   string
	ServerTime time.Time
}

// AccountInfo identifies the account the statement belongs to.
type AccountInfo struct {
	BankID      string
	BranchID    string
	AccountID   string
	AccountType string
	Currency    string
}

// HasBankInfo reports whether both the bank and the account are identified.
func (a AccountInfo) HasBankInfo() bool {
	return a.BankID != "" && a.AccountID != ""
}

type Period struct {
	Start time.Time
	End   time.Time
}

// Balance is the closing (ledger) balance of the statement.
type Balance struct {
	Amount decimal.Decimal
	AsOf   time.Time
}

// Item is one normalized statement line.
type Item struct {
	ExternalID      string
	PostedAt        time.Time
	Amount          decimal.Decimal
	Direction       domain.Direction
	TypeCode        string
	Memo            string
	PayeeName       string
	CheckNumber     string
	ReferenceNumber string
}

// Description is the human-readable text of the line: the memo, or the payee
// name when the memo is empty.
func (it Item) Description() string {
	if it.Memo != "" {
		return it.Memo
	}
	return it.PayeeName
}

// Texts returns the non-empty fields rule matching looks at.
func (it Item) Texts() []string {
	var out []string
	for _, s := range []string{it.Memo, it.PayeeName} {
		if s != "" {
			out = append(out, s)
		}
	}
	return out
}
