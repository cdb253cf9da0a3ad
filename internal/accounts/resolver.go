// Package accounts maps the account described by a statement onto a stored
// account, creating one when the statement names an account we have not
// seen.
package accounts

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/dvloznov/ofx-ingest/internal/banks"
	"github.com/dvloznov/ofx-ingest/internal/domain"
	"github.com/dvloznov/ofx-ingest/internal/ofx"
	"github.com/dvloznov/ofx-ingest/internal/store"
)

const (
	defaultBranch      = "0000"
	defaultAccountType = "checking"
)

// NoAccountResolvedError means the statement could not be tied to any account.
type NoAccountResolvedError struct {
	CompanyID string
	Reason    string
}

func (e *NoAccountResolvedError) Error() string {
	return fmt.Sprintf("no account resolved for company %s: %s", e.CompanyID, e.Reason)
}

// BankLookup names a clearing code.
type BankLookup interface {
	Lookup(ctx context.Context, code string) banks.Bank
}

type Resolver struct {
	repo  store.AccountRepository
	banks BankLookup
	log   zerolog.Logger
}

func NewResolver(repo store.AccountRepository, lookup BankLookup, log zerolog.Logger) *Resolver {
	return &Resolver{repo: repo, banks: lookup, log: log}
}

// Resolve finds or creates the account for info. When info lacks the bank or
// the account number, the company's default account is used.
func (r *Resolver) Resolve(ctx context.Context, companyID string, info *ofx.AccountInfo, balance ofx.Balance) (*domain.Account, error) {
	if info == nil || !info.HasBankInfo() {
		return r.fallback(ctx, companyID)
	}

	bank := r.banks.Lookup(ctx, info.BankID)
	code := banks.Normalize(info.BankID)
	accountNumber := strings.TrimSpace(info.AccountID)

	existing, err := r.repo.FindAccountByBankInfo(ctx, companyID, code, accountNumber)
	if err != nil {
		return nil, fmt.Errorf("Resolve: find account: %w", err)
	}

	if existing != nil {
		existing.BankName = bank.ShortName
		if b := strings.TrimSpace(info.BranchID); b != "" {
			existing.BranchNumber = b
		}
		if t := accountType(info.AccountType); t != "" {
			existing.AccountType = t
		}
		if err := r.repo.UpdateAccount(ctx, existing); err != nil {
			return nil, fmt.Errorf("Resolve: refresh account %s: %w", existing.ID, err)
		}
		r.log.Debug().Str("account_id", existing.ID).Str("company_id", companyID).Msg("matched existing account")
		return existing, nil
	}

	branch := strings.TrimSpace(info.BranchID)
	if branch == "" {
		branch = defaultBranch
	}
	acctType := accountType(info.AccountType)
	if acctType == "" {
		acctType = defaultAccountType
	}

	account := &domain.Account{
		ID:             uuid.NewString(),
		CompanyID:      companyID,
		Name:           fmt.Sprintf("Conta %s - %s", bank.ShortName, accountNumber),
		BankName:       bank.ShortName,
		BankCode:       code,
		BranchNumber:   branch,
		AccountNumber:  accountNumber,
		AccountType:    acctType,
		OpeningBalance: balance.Amount,
		Active:         true,
	}
	if err := r.repo.CreateAccount(ctx, account); err != nil {
		r.log.Error().Err(err).Str("company_id", companyID).Str("bank_code", code).Msg("failed to create account")
		return r.fallback(ctx, companyID)
	}

	r.log.Info().
		Str("account_id", account.ID).
		Str("company_id", companyID).
		Str("bank_code", code).
		Str("bank_name", bank.ShortName).
		Msg("created account from statement")
	return account, nil
}

func (r *Resolver) fallback(ctx context.Context, companyID string) (*domain.Account, error) {
	def, err := r.repo.DefaultAccount(ctx, companyID)
	if err != nil {
		return nil, fmt.Errorf("Resolve: default account: %w", err)
	}
	if def == nil {
		return nil, &NoAccountResolvedError{
			CompanyID: companyID,
			Reason:    "statement has no bank account details and the company has no active account",
		}
	}
	return def, nil
}

// accountType maps OFX ACCTTYPE values onto stored account types.
func accountType(ofxType string) string {
	switch strings.ToUpper(strings.TrimSpace(ofxType)) {
	case "":
		return ""
	case "CHECKING":
		return "checking"
	case "SAVINGS":
		return "savings"
	case "MONEYMRKT":
		return "money_market"
	case "CREDITLINE":
		return "credit_line"
	case "CD":
		return "cd"
	case ofx.CreditCardAccountType:
		return "credit_card"
	default:
		return strings.ToLower(strings.TrimSpace(ofxType))
	}
}
