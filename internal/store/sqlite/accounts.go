package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/dvloznov/ofx-ingest/internal/domain"
	"github.com/dvloznov/ofx-ingest/internal/store"
)

const accountColumns = `id, company_id, name, bank_name, bank_code, branch_number, account_number,
	account_type, opening_balance, active, is_default, created_at, updated_at`

func (s *Store) GetAccount(ctx context.Context, id string) (*domain.Account, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+accountColumns+` FROM accounts WHERE id = ?`, id)
	a, err := scanAccount(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("GetAccount: %s: %w", id, store.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("GetAccount: scan: %w", err)
	}
	return a, nil
}

func (s *Store) FindAccountByBankInfo(ctx context.Context, companyID, bankCode, accountNumber string) (*domain.Account, error) {
	row := s.db.QueryRowContext(ctx, `
	SELECT `+accountColumns+` FROM accounts
	WHERE company_id = ? AND bank_code = ? AND account_number = ?
	ORDER BY active DESC, created_at
	LIMIT 1
	`, companyID, bankCode, accountNumber)
	a, err := scanAccount(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("FindAccountByBankInfo: scan: %w", err)
	}
	return a, nil
}

func (s *Store) DefaultAccount(ctx context.Context, companyID string) (*domain.Account, error) {
	row := s.db.QueryRowContext(ctx, `
	SELECT `+accountColumns+` FROM accounts
	WHERE company_id = ? AND active = 1
	ORDER BY is_default DESC, created_at, id
	LIMIT 1
	`, companyID)
	a, err := scanAccount(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("DefaultAccount: scan: %w", err)
	}
	return a, nil
}

func (s *Store) CreateAccount(ctx context.Context, a *domain.Account) error {
	ts := now()
	if a.CreatedAt.IsZero() {
		a.CreatedAt = ts
	}
	a.UpdatedAt = ts
	_, err := s.db.ExecContext(ctx, `
	INSERT INTO accounts(`+accountColumns+`)
	VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, a.ID, a.CompanyID, a.Name, a.BankName, a.BankCode, a.BranchNumber, a.AccountNumber,
		a.AccountType, a.OpeningBalance.String(), a.Active, a.IsDefault, a.CreatedAt.UTC(), a.UpdatedAt)
	if isUniqueViolation(err) {
		return fmt.Errorf("CreateAccount: %s: %w", a.ID, store.ErrConflict)
	}
	if err != nil {
		return fmt.Errorf("CreateAccount: insert: %w", err)
	}
	return nil
}

func (s *Store) UpdateAccount(ctx context.Context, a *domain.Account) error {
	a.UpdatedAt = now()
	res, err := s.db.ExecContext(ctx, `
	UPDATE accounts SET
		name = ?, bank_name = ?, bank_code = ?, branch_number = ?, account_number = ?,
		account_type = ?, opening_balance = ?, active = ?, is_default = ?, updated_at = ?
	WHERE id = ?
	`, a.Name, a.BankName, a.BankCode, a.BranchNumber, a.AccountNumber,
		a.AccountType, a.OpeningBalance.String(), a.Active, a.IsDefault, a.UpdatedAt, a.ID)
	if err != nil {
		return fmt.Errorf("UpdateAccount: %s: %w", a.ID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("UpdateAccount: %s: %w", a.ID, store.ErrNotFound)
	}
	return nil
}

func scanAccount(sc scanner) (*domain.Account, error) {
	var a domain.Account
	err := sc.Scan(&a.ID, &a.CompanyID, &a.Name, &a.BankName, &a.BankCode, &a.BranchNumber, &a.AccountNumber,
		&a.AccountType, &a.OpeningBalance, &a.Active, &a.IsDefault, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return nil, err
	}
	a.CreatedAt = a.CreatedAt.UTC()
	a.UpdatedAt = a.UpdatedAt.UTC()
	return &a, nil
}
