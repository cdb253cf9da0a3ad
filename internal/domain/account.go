package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Account is a bank or credit-card account owned by a company.
type Account struct {
	ID             string
	CompanyID      string
	Name           string
	BankName       string
	BankCode       string
	BranchNumber   string
	AccountNumber  string
	AccountType    string
	OpeningBalance decimal.Decimal
	Active         bool
	IsDefault      bool
	CreatedAt      time.Time
	UpdatedAt      time.Time
}
