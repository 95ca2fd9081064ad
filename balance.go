package core

import (
	"context"

	"github.com/facebookgo/clock"
	"github.com/gofrs/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type (
	BalanceStore interface {
		FindBalance(ctx context.Context, currency CurrencyID, accountId uuid.UUID) (*Balance, error)
		UpsertBalance(ctx context.Context, balance *Balance) error
		ListBalances(ctx context.Context, accountId uuid.UUID) ([]*Balance, error)
	}

	Balance struct {
		AccountId uuid.UUID  `json:"accountId"`
		Currency  CurrencyID `json:"currency"`

		Active bool `json:"active"`

		// Cash is signed: negative cash is debt owed in the currency.
		Cash decimal.Decimal `json:"cash"`
		// NTokens is the pool share count, never negative.
		NTokens    decimal.Decimal `json:"nTokens"`
		LastUpdate int64           `json:"lastUpdate"`
	}
)

func NewBalance(clk clock.Clock, accountId uuid.UUID, currency CurrencyID) *Balance {
	return &Balance{
		AccountId: accountId,
		Currency:  currency,

		Active:     true,
		Cash:       decimal.Zero,
		NTokens:    decimal.Zero,
		LastUpdate: clk.Now().Unix(),
	}
}

func FindOrCreateBalance(ctx context.Context, clk clock.Clock, svc LedgerService, currency *Currency, account *Account) (*Balance, error) {
	_, err := svc.GetCurrency(ctx, currency.Id)
	if err != nil {
		return nil, CurrencyNotListed
	}

	balance, err := svc.FindBalance(ctx, currency.Id, account.Id)
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			// In memory only; the row reaches the store when the
			// caller persists.
			return NewBalance(clk, account.Id, currency.Id), nil
		}
		return nil, err
	}
	return balance, nil
}

func (b *Balance) Clone() *Balance {
	return &Balance{
		AccountId:  b.AccountId,
		Currency:   b.Currency,
		Active:     b.Active,
		Cash:       b.Cash,
		NTokens:    b.NTokens,
		LastUpdate: b.LastUpdate,
	}
}

func (b *Balance) IsEmpty() bool {
	return b.Cash.Abs().LessThan(EMPTY_BALANCE_THRESHOLD) && b.NTokens.LessThan(EMPTY_BALANCE_THRESHOLD)
}

// ChangeCash has no sign constraint: cash may run negative as debt.
func (b *Balance) ChangeCash(delta decimal.Decimal) {
	b.Cash = b.Cash.Add(delta)
}

func (b *Balance) ChangeNTokens(delta decimal.Decimal) error {
	nTokens := b.NTokens.Add(delta)
	if nTokens.LessThan(decimal.Zero) {
		return IllegalBalanceState
	}
	b.NTokens = nTokens
	return nil
}

func (b *Balance) EmptyDeactivated(clk clock.Clock) {
	b.Active = false
	b.Cash = decimal.Zero
	b.NTokens = decimal.Zero
	b.LastUpdate = clk.Now().Unix()
}
