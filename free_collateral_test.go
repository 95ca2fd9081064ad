package core_test

import (
	"testing"

	"github.com/gofrs/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tenorfi/core"
)

func TestFreeCollateralValuation(t *testing.T) {
	env := newTestEnv(t)

	config := defaultConfig()
	config.CollateralHaircut = decimal.NewFromFloat(0.9)
	config.DebtBuffer = decimal.NewFromFloat(1.2)
	env.listCurrency(t, 1, "USD", decimal.NewFromInt(1), config)
	env.rates.SetDiscountRate(1, decimal.NewFromFloat(0.05))
	env.rates.SetNTokenValue(1, decimal.NewFromInt(2))

	now := env.clk.Now().Unix()
	yearOut := now + core.SECONDS_PER_YEAR
	halfYearOut := now + core.SECONDS_PER_YEAR/2
	env.rates.SetLiquidityTokenClaims(1, halfYearOut, decimal.NewFromInt(2), decimal.NewFromInt(1))

	account := env.createAccount(t, "holder")
	env.setBalance(t, account, 1, decimal.NewFromInt(50), decimal.NewFromInt(100))
	env.setAsset(t, account, 1, yearOut, core.AssetTypeFCash, decimal.NewFromInt(210))
	env.setAsset(t, account, 1, halfYearOut, core.AssetTypeLiquidityToken, decimal.NewFromInt(10))
	// A matured claim contributes nothing until settled.
	env.setAsset(t, account, 1, now-86400, core.AssetTypeFCash, decimal.NewFromInt(999))

	fc := env.freeCollateral(t, account.Id)

	// cash 50
	// nTokens 100 * 2 * 0.5                         = 100
	// fCash   210 / (1 + 0.05) * 0.9                = 180
	// tokens  10 * (2 + 1/1.025 * 1 * 0.9) * 0.8    = 23.0243902438984
	assertDecimal(t, "353.0243902438984", fc.NetLocalIn(1))
	assertDecimal(t, "317.72195121950856", fc.Aggregate)
	assertDecimal(t, "0", fc.Shortfall())
}

func TestFreeCollateralAcrossCurrencies(t *testing.T) {
	env := newTestEnv(t)

	usdConfig := defaultConfig()
	usdConfig.CollateralHaircut = decimal.NewFromFloat(0.9)
	env.listCurrency(t, 1, "USD", decimal.NewFromInt(1), usdConfig)
	env.rates.SetNTokenValue(1, decimal.NewFromInt(2))

	ethConfig := defaultConfig()
	ethConfig.DebtBuffer = decimal.NewFromFloat(1.4)
	env.listCurrency(t, 2, "ETH", decimal.NewFromInt(100), ethConfig)

	account := env.createAccount(t, "holder")
	env.setBalance(t, account, 1, decimal.NewFromInt(1000), decimal.NewFromInt(100))
	env.setCash(t, account, 2, decimal.NewFromInt(-3))

	fc := env.freeCollateral(t, account.Id)

	require.Len(t, fc.NetLocal, 2)
	assert.Equal(t, core.CurrencyID(1), fc.NetLocal[0].Currency)
	assert.Equal(t, core.CurrencyID(2), fc.NetLocal[1].Currency)
	assertDecimal(t, "1100", fc.NetLocal[0].Value)
	assertDecimal(t, "-3", fc.NetLocal[1].Value)

	// 1100 * 0.9 - 3 * 100 * 1.4 = 990 - 420
	assertDecimal(t, "570", fc.Aggregate)
	assertDecimal(t, "0", fc.Shortfall())

	debtor := env.createAccount(t, "debtor")
	env.setCash(t, debtor, 2, decimal.NewFromInt(-3))

	fc = env.freeCollateral(t, debtor.Id)
	assertDecimal(t, "-420", fc.Aggregate)
	assertDecimal(t, "420", fc.Shortfall())
}

func TestFreeCollateralAssetOnlyCurrency(t *testing.T) {
	env := newTestEnv(t)

	config := defaultConfig()
	config.CollateralHaircut = decimal.NewFromFloat(0.9)
	env.listCurrency(t, 1, "USD", decimal.NewFromInt(1), config)

	account := env.createAccount(t, "holder")
	env.setAsset(t, account, 1, env.clk.Now().Unix()+core.SECONDS_PER_YEAR, core.AssetTypeFCash, decimal.NewFromInt(200))

	// No balance row exists in the currency, only the claim.
	fc := env.freeCollateral(t, account.Id)
	assertDecimal(t, "180", fc.NetLocalIn(1))
	assertDecimal(t, "162", fc.Aggregate)
}

func TestFreeCollateralReadOnly(t *testing.T) {
	env := newTestEnv(t)
	env.listCurrency(t, 1, "USD", decimal.NewFromInt(1), defaultConfig())

	account := env.createAccount(t, "holder")
	env.setCash(t, account, 1, decimal.NewFromInt(-75))

	first := env.freeCollateral(t, account.Id)
	second := env.freeCollateral(t, account.Id)

	assert.True(t, first.Aggregate.Equal(second.Aggregate))
	assertDecimal(t, "-75", env.balance(t, account.Id, 1).Cash)
}

func TestGetFreeCollateralUnknownAccount(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.engine.GetFreeCollateral(env.ctx, uuid.Must(uuid.NewV4()))
	assert.ErrorIs(t, err, core.AccountNotFound)
}
