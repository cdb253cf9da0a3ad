package accounts

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dvloznov/ofx-ingest/internal/banks"
	"github.com/dvloznov/ofx-ingest/internal/domain"
	"github.com/dvloznov/ofx-ingest/internal/ofx"
	"github.com/dvloznov/ofx-ingest/internal/store/memory"
)

func newResolver(repo *memory.Store) *Resolver {
	return NewResolver(repo, banks.NewResolver(nil, zerolog.Nop()), zerolog.Nop())
}

func TestResolve_CreatesAccount(t *testing.T) {
	repo := memory.New()
	r := newResolver(repo)

	info := &ofx.AccountInfo{BankID: "0341", AccountID: "12345-6", AccountType: "CHECKING"}
	bal := ofx.Balance{Amount: decimal.RequireFromString("3259.35")}

	acct, err := r.Resolve(context.Background(), "c1", info, bal)
	require.NoError(t, err)

	assert.Equal(t, "Conta Itaú - 12345-6", acct.Name)
	assert.Equal(t, "Itaú", acct.BankName)
	assert.Equal(t, "341", acct.BankCode)
	assert.Equal(t, "0000", acct.BranchNumber)
	assert.Equal(t, "checking", acct.AccountType)
	assert.True(t, acct.OpeningBalance.Equal(bal.Amount))
	assert.True(t, acct.Active)

	stored, err := repo.GetAccount(context.Background(), acct.ID)
	require.NoError(t, err)
	assert.Equal(t, acct.Name, stored.Name)
}

func TestResolve_ReusesAndRefreshesAccount(t *testing.T) {
	repo := memory.New()
	r := newResolver(repo)
	ctx := context.Background()

	first, err := r.Resolve(ctx, "c1", &ofx.AccountInfo{BankID: "341", AccountID: "999"}, ofx.Balance{})
	require.NoError(t, err)

	second, err := r.Resolve(ctx, "c1", &ofx.AccountInfo{BankID: " 341", AccountID: "999", BranchID: "4321", AccountType: "SAVINGS"}, ofx.Balance{})
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, "4321", second.BranchNumber)
	assert.Equal(t, "savings", second.AccountType)

	other, err := r.Resolve(ctx, "c2", &ofx.AccountInfo{BankID: "341", AccountID: "999"}, ofx.Balance{})
	require.NoError(t, err)
	assert.NotEqual(t, first.ID, other.ID, "accounts are company scoped")
}

func TestResolve_UnknownBank(t *testing.T) {
	r := newResolver(memory.New())

	acct, err := r.Resolve(context.Background(), "c1", &ofx.AccountInfo{BankID: "998", AccountID: "1"}, ofx.Balance{})
	require.NoError(t, err)
	assert.Equal(t, banks.UnknownName, acct.BankName)
	assert.Equal(t, "Conta Banco Não Identificado - 1", acct.Name)
}

func TestResolve_FallsBackToDefault(t *testing.T) {
	repo := memory.New()
	ctx := context.Background()
	require.NoError(t, repo.CreateAccount(ctx, &domain.Account{ID: "main", CompanyID: "c1", Active: true, IsDefault: true, CreatedAt: time.Now()}))

	r := newResolver(repo)
	acct, err := r.Resolve(ctx, "c1", &ofx.AccountInfo{AccountID: "only-account"}, ofx.Balance{})
	require.NoError(t, err)
	assert.Equal(t, "main", acct.ID)

	acct, err = r.Resolve(ctx, "c1", nil, ofx.Balance{})
	require.NoError(t, err)
	assert.Equal(t, "main", acct.ID)
}

func TestResolve_NoAccount(t *testing.T) {
	r := newResolver(memory.New())

	_, err := r.Resolve(context.Background(), "c1", &ofx.AccountInfo{}, ofx.Balance{})
	require.Error(t, err)
	var nar *NoAccountResolvedError
	require.True(t, errors.As(err, &nar))
	assert.Equal(t, "c1", nar.CompanyID)
}

type failingCreateRepo struct {
	*memory.Store
}

func (failingCreateRepo) CreateAccount(context.Context, *domain.Account) error {
	return errors.New("disk full")
}

func TestResolve_CreateFailureWithoutDefault(t *testing.T) {
	r := NewResolver(failingCreateRepo{memory.New()}, banks.NewResolver(nil, zerolog.Nop()), zerolog.Nop())

	_, err := r.Resolve(context.Background(), "c1", &ofx.AccountInfo{BankID: "341", AccountID: "1"}, ofx.Balance{})
	var nar *NoAccountResolvedError
	assert.True(t, errors.As(err, &nar))
}

func TestAccountType(t *testing.T) {
	assert.Equal(t, "checking", accountType("CHECKING"))
	assert.Equal(t, "credit_card", accountType("CREDITCARD"))
	assert.Equal(t, "money_market", accountType("moneymrkt"))
	assert.Equal(t, "", accountType(" "))
}
