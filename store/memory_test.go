package store

import (
	"context"
	"testing"
	"time"

	"github.com/facebookgo/clock"
	"github.com/gofrs/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/tenorfi/core"
)

func testClock() *clock.Mock {
	clk := clock.NewMock()
	clk.Add(1700000000 * time.Second)
	return clk
}

func validConfig() core.CurrencyConfig {
	return core.CurrencyConfig{
		CollateralHaircut:        decimal.NewFromFloat(0.9),
		DebtBuffer:               decimal.NewFromFloat(1.1),
		LiquidationDiscount:      decimal.NewFromFloat(1.05),
		LiquidationPortion:       decimal.NewFromFloat(0.4),
		NTokenHaircut:            decimal.NewFromFloat(0.85),
		NTokenLiquidationHaircut: decimal.NewFromFloat(0.95),
		LiquidityTokenHaircut:    decimal.NewFromFloat(0.8),
		TokenRepoIncentive:       decimal.NewFromFloat(0.0025),
		FCashHaircuts: []core.MaturityHaircut{{
			MaxMaturity:        core.SECONDS_PER_YEAR,
			Haircut:            decimal.NewFromFloat(0.91),
			Buffer:             decimal.NewFromFloat(1.09),
			LiquidationHaircut: decimal.NewFromFloat(0.94),
		}},
	}
}

func TestMemoryAccounts(t *testing.T) {
	ctx := context.Background()
	clk := testClock()
	m := NewMemory(WithClock(clk))

	alice := core.NewAccount(clk, "alice", 0)
	require.NoError(t, m.CreateAccount(ctx, alice))

	got, err := m.GetAccountById(ctx, alice.Id)
	require.NoError(t, err)
	assert.Equal(t, alice.PubKey, got.PubKey)

	got, err = m.GetAccountByPubkey(ctx, "alice", 0)
	require.NoError(t, err)
	assert.Equal(t, alice.Id, got.Id)

	// Reads hand out copies.
	got.SetFlag(core.DisabledFlag)
	fresh, err := m.GetAccountById(ctx, alice.Id)
	require.NoError(t, err)
	assert.False(t, fresh.GetFlag(core.DisabledFlag))

	assert.ErrorIs(t, m.CreateAccount(ctx, alice), gorm.ErrDuplicatedKey)

	// The same key under a different id still collides.
	impostor := core.NewAccount(clk, "alice", 0)
	impostor.Id = uuid.Must(uuid.NewV4())
	assert.ErrorIs(t, m.CreateAccount(ctx, impostor), gorm.ErrDuplicatedKey)

	_, err = m.GetAccountById(ctx, uuid.Must(uuid.NewV4()))
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)
	_, err = m.GetAccountByPubkey(ctx, "bob", 0)
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)

	alice.SetFlag(core.DisabledFlag)
	require.NoError(t, m.UpsertAccount(ctx, alice))
	fresh, err = m.GetAccountById(ctx, alice.Id)
	require.NoError(t, err)
	assert.True(t, fresh.GetFlag(core.DisabledFlag))

	// The same pubkey at another index is a distinct account.
	require.NoError(t, m.CreateAccount(ctx, core.NewAccount(clk, "alice", 1)))
}

func TestMemoryCurrencies(t *testing.T) {
	ctx := context.Background()
	clk := testClock()
	m := NewMemory(WithClock(clk))

	usd := core.NewCurrency(clk, 1, "USD", 8, validConfig())
	require.NoError(t, m.CreateCurrency(ctx, usd))
	assert.ErrorIs(t, m.CreateCurrency(ctx, usd), gorm.ErrDuplicatedKey)

	_, err := m.GetCurrency(ctx, 9)
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)

	got, err := m.GetCurrency(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, "USD", got.Symbol)

	// Reads hand out deep copies.
	got.FCashHaircuts[0].Haircut = decimal.NewFromFloat(0.1)
	fresh, err := m.GetCurrency(ctx, 1)
	require.NoError(t, err)
	assert.True(t, fresh.FCashHaircuts[0].Haircut.Equal(decimal.NewFromFloat(0.91)))

	require.NoError(t, m.CreateCurrency(ctx, core.NewCurrency(clk, 2, "ETH", 8, validConfig())))
	currencies, err := m.ListCurrencies(ctx)
	require.NoError(t, err)
	require.Len(t, currencies, 2)
	assert.Equal(t, core.CurrencyID(1), currencies[0].Id)
	assert.Equal(t, core.CurrencyID(2), currencies[1].Id)

	clk.Add(time.Hour)
	patch := &core.CurrencyConfig{DebtBuffer: decimal.NewFromFloat(1.3)}
	require.NoError(t, m.UpdateCurrencyConfig(ctx, 1, patch))

	fresh, err = m.GetCurrency(ctx, 1)
	require.NoError(t, err)
	assert.True(t, fresh.DebtBuffer.Equal(decimal.NewFromFloat(1.3)))
	assert.True(t, fresh.CollateralHaircut.Equal(decimal.NewFromFloat(0.9)))
	assert.Equal(t, int64(1700003600), fresh.LastUpdate)

	// A patch that fails validation leaves the stored config untouched.
	bad := &core.CurrencyConfig{DebtBuffer: decimal.NewFromFloat(0.5)}
	assert.ErrorIs(t, m.UpdateCurrencyConfig(ctx, 1, bad), core.InvalidConfig)
	fresh, err = m.GetCurrency(ctx, 1)
	require.NoError(t, err)
	assert.True(t, fresh.DebtBuffer.Equal(decimal.NewFromFloat(1.3)))

	assert.ErrorIs(t, m.UpdateCurrencyConfig(ctx, 9, patch), gorm.ErrRecordNotFound)
}

func TestMemoryBalances(t *testing.T) {
	ctx := context.Background()
	clk := testClock()
	m := NewMemory(WithClock(clk))
	accountId := uuid.Must(uuid.NewV4())

	_, err := m.FindBalance(ctx, 1, accountId)
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)

	eth := core.NewBalance(clk, accountId, 2)
	eth.Cash = decimal.NewFromInt(-30)
	require.NoError(t, m.UpsertBalance(ctx, eth))

	usd := core.NewBalance(clk, accountId, 1)
	usd.Cash = decimal.NewFromInt(100)
	usd.NTokens = decimal.NewFromInt(5)
	require.NoError(t, m.UpsertBalance(ctx, usd))

	// Writes store copies.
	usd.Cash = decimal.NewFromInt(999)
	got, err := m.FindBalance(ctx, 1, accountId)
	require.NoError(t, err)
	assert.True(t, got.Cash.Equal(decimal.NewFromInt(100)))
	assert.True(t, got.NTokens.Equal(decimal.NewFromInt(5)))

	balances, err := m.ListBalances(ctx, accountId)
	require.NoError(t, err)
	require.Len(t, balances, 2)
	assert.Equal(t, core.CurrencyID(1), balances[0].Currency)
	assert.Equal(t, core.CurrencyID(2), balances[1].Currency)

	other, err := m.ListBalances(ctx, uuid.Must(uuid.NewV4()))
	require.NoError(t, err)
	assert.Empty(t, other)
}

func TestMemoryAssets(t *testing.T) {
	ctx := context.Background()
	clk := testClock()
	m := NewMemory(WithClock(clk))
	accountId := uuid.Must(uuid.NewV4())
	yearOut := clk.Now().Unix() + core.SECONDS_PER_YEAR

	_, err := m.FindAsset(ctx, accountId, 1, yearOut, core.AssetTypeFCash)
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)

	fCash := core.NewPortfolioAsset(clk, accountId, 1, yearOut, core.AssetTypeFCash)
	fCash.Notional = decimal.NewFromInt(100)
	require.NoError(t, m.UpsertAsset(ctx, fCash))

	tokens := core.NewPortfolioAsset(clk, accountId, 1, yearOut, core.AssetTypeLiquidityToken)
	tokens.Notional = decimal.NewFromInt(25)
	require.NoError(t, m.UpsertAsset(ctx, tokens))

	near := core.NewPortfolioAsset(clk, accountId, 1, yearOut-86400, core.AssetTypeFCash)
	near.Notional = decimal.NewFromInt(50)
	require.NoError(t, m.UpsertAsset(ctx, near))

	ethClaim := core.NewPortfolioAsset(clk, accountId, 2, yearOut, core.AssetTypeFCash)
	ethClaim.Notional = decimal.NewFromInt(7)
	require.NoError(t, m.UpsertAsset(ctx, ethClaim))

	// Currency ascending, then maturity, then asset type.
	assets, err := m.ListAssets(ctx, accountId)
	require.NoError(t, err)
	require.Len(t, assets, 4)
	assert.Equal(t, near.Maturity, assets[0].Maturity)
	assert.Equal(t, core.AssetTypeFCash, assets[1].AssetType)
	assert.Equal(t, core.AssetTypeLiquidityToken, assets[2].AssetType)
	assert.Equal(t, core.CurrencyID(2), assets[3].Currency)

	byCurrency, err := m.ListAssetsByCurrency(ctx, accountId, 1)
	require.NoError(t, err)
	assert.Len(t, byCurrency, 3)

	// Upserting a zero notional removes the row.
	fCash.Notional = decimal.Zero
	require.NoError(t, m.UpsertAsset(ctx, fCash))
	_, err = m.FindAsset(ctx, accountId, 1, yearOut, core.AssetTypeFCash)
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)

	// Writes store copies.
	near.Notional = decimal.NewFromInt(999)
	got, err := m.FindAsset(ctx, accountId, 1, yearOut-86400, core.AssetTypeFCash)
	require.NoError(t, err)
	assert.True(t, got.Notional.Equal(decimal.NewFromInt(50)))
}
