package core_test

import (
	"testing"

	"github.com/gofrs/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tenorfi/core"
)

// localLedger lists USD with an nToken value of 2 and a liquidity token
// maturity half a year out whose units claim 2 cash and 1 fCash each.
func localLedger(t *testing.T) (*testEnv, int64) {
	env := newTestEnv(t)
	env.listCurrency(t, 1, "USD", decimal.NewFromInt(1), defaultConfig())
	env.rates.SetNTokenValue(1, decimal.NewFromInt(2))

	maturity := env.clk.Now().Unix() + core.SECONDS_PER_YEAR/2
	env.rates.SetLiquidityTokenClaims(1, maturity, decimal.NewFromInt(2), decimal.NewFromInt(1))
	return env, maturity
}

func TestLiquidateLocalCurrency(t *testing.T) {
	env, maturity := localLedger(t)

	account := env.createAccount(t, "debtor")
	env.setBalance(t, account, 1, decimal.NewFromInt(-1200), decimal.NewFromInt(500))
	env.setAsset(t, account, 1, maturity, core.AssetTypeLiquidityToken, decimal.NewFromInt(250))

	liquidator := env.createAccount(t, "liquidator")
	env.setCash(t, liquidator, 1, decimal.NewFromInt(1000))

	// cash -1200, nTokens 500*2*0.5 = 500, tokens 250*2.9*0.8 = 580
	pre := env.freeCollateral(t, account.Id)
	assertDecimal(t, "-120", pre.Aggregate)

	outcome, err := env.engine.LiquidateLocalCurrency(env.ctx, liquidator.Id, account.Id, 1, decimal.Zero)
	require.NoError(t, err)

	// Token withdrawals run first and stop at the 40% portion: 100 tokens
	// free 200 cash and 100 fCash, the liquidator keeps 2 as the repo
	// incentive. The rest of the shortfall is covered by 80 nTokens sold at
	// value 2 and haircut 0.9 for 144 cash.
	assertDecimal(t, "142", outcome.NetLocalFromLiquidator)
	assertDecimal(t, "80", outcome.NetNTokenTransfer)
	assertDecimal(t, "2", outcome.NetCashToLiquidator)
	require.Len(t, outcome.TokensWithdrawn, 1)
	assert.Equal(t, maturity, outcome.TokensWithdrawn[0].Maturity)
	assertDecimal(t, "100", outcome.TokensWithdrawn[0].Tokens)

	post := checkLiquidationInvariants(t, env, account.Id, pre)
	assertDecimal(t, "0", post.Aggregate)

	debtor := env.balance(t, account.Id, 1)
	assertDecimal(t, "-858", debtor.Cash)
	assertDecimal(t, "420", debtor.NTokens)
	assertDecimal(t, "150", env.notional(t, account.Id, 1, maturity, core.AssetTypeLiquidityToken))
	assertDecimal(t, "100", env.notional(t, account.Id, 1, maturity, core.AssetTypeFCash))

	taker := env.balance(t, liquidator.Id, 1)
	assertDecimal(t, "858", taker.Cash)
	assertDecimal(t, "80", taker.NTokens)
}

func TestLiquidateLocalCurrencyTokensOnly(t *testing.T) {
	env, maturity := localLedger(t)

	account := env.createAccount(t, "debtor")
	env.setCash(t, account, 1, decimal.NewFromInt(-700))
	env.setAsset(t, account, 1, maturity, core.AssetTypeLiquidityToken, decimal.NewFromInt(250))

	liquidator := env.createAccount(t, "liquidator")
	env.setCash(t, liquidator, 1, decimal.NewFromInt(10))

	pre := env.freeCollateral(t, account.Id)
	assertDecimal(t, "-120", pre.Aggregate)

	outcome, err := env.engine.LiquidateLocalCurrency(env.ctx, liquidator.Id, account.Id, 1, decimal.Zero)
	require.NoError(t, err)

	// With no nTokens to sell the portion cap ends the run early; the
	// liquidator pays nothing and walks away with the incentive.
	assertDecimal(t, "-2", outcome.NetLocalFromLiquidator)
	assertDecimal(t, "2", outcome.NetCashToLiquidator)
	assertDecimal(t, "0", outcome.NetNTokenTransfer)

	after := env.freeCollateral(t, account.Id)
	assertDecimal(t, "-64", after.Aggregate)
	assertDecimal(t, "-502", env.balance(t, account.Id, 1).Cash)
	assertDecimal(t, "12", env.balance(t, liquidator.Id, 1).Cash)
}

func TestLiquidateLocalCurrencyNTokens(t *testing.T) {
	env, _ := localLedger(t)

	account := env.createAccount(t, "debtor")
	env.setBalance(t, account, 1, decimal.NewFromInt(-600), decimal.NewFromInt(500))

	liquidator := env.createAccount(t, "liquidator")
	env.setCash(t, liquidator, 1, decimal.NewFromInt(1000))

	calculated, err := env.engine.CalculateLocalCurrencyLiquidation(env.ctx, account.Id, 1, decimal.Zero)
	require.NoError(t, err)
	assertDecimal(t, "225", calculated.NetLocalFromLiquidator)
	assertDecimal(t, "125", calculated.NetNTokenTransfer)

	// Sizing alone writes nothing back.
	assertDecimal(t, "-600", env.balance(t, account.Id, 1).Cash)
	assertDecimal(t, "500", env.balance(t, account.Id, 1).NTokens)

	pre := env.freeCollateral(t, account.Id)
	outcome, err := env.engine.LiquidateLocalCurrency(env.ctx, liquidator.Id, account.Id, 1, decimal.Zero)
	require.NoError(t, err)
	assert.True(t, outcome.NetLocalFromLiquidator.Equal(calculated.NetLocalFromLiquidator))
	assert.True(t, outcome.NetNTokenTransfer.Equal(calculated.NetNTokenTransfer))

	post := checkLiquidationInvariants(t, env, account.Id, pre)
	assertDecimal(t, "0", post.Aggregate)
	assertDecimal(t, "-375", env.balance(t, account.Id, 1).Cash)
	assertDecimal(t, "375", env.balance(t, account.Id, 1).NTokens)
	assertDecimal(t, "775", env.balance(t, liquidator.Id, 1).Cash)
	assertDecimal(t, "125", env.balance(t, liquidator.Id, 1).NTokens)
}

func TestLiquidateLocalCurrencyNTokenCap(t *testing.T) {
	env, _ := localLedger(t)

	account := env.createAccount(t, "debtor")
	env.setBalance(t, account, 1, decimal.NewFromInt(-600), decimal.NewFromInt(500))

	liquidator := env.createAccount(t, "liquidator")
	env.setCash(t, liquidator, 1, decimal.NewFromInt(1000))

	pre := env.freeCollateral(t, account.Id)
	outcome, err := env.engine.LiquidateLocalCurrency(env.ctx, liquidator.Id, account.Id, 1, decimal.NewFromInt(50))
	require.NoError(t, err)

	assertDecimal(t, "50", outcome.NetNTokenTransfer)
	assertDecimal(t, "90", outcome.NetLocalFromLiquidator)

	// The cap leaves the account partially recovered.
	after := env.freeCollateral(t, account.Id)
	assert.True(t, after.Aggregate.GreaterThan(pre.Aggregate))
	assertDecimal(t, "-60", after.Aggregate)
	assertDecimal(t, "-510", env.balance(t, account.Id, 1).Cash)
	assertDecimal(t, "450", env.balance(t, account.Id, 1).NTokens)
}

func TestLiquidateLocalCurrencyCrossRate(t *testing.T) {
	env := newTestEnv(t)

	usdConfig := defaultConfig()
	usdConfig.CollateralHaircut = decimal.NewFromFloat(0.9)
	env.listCurrency(t, 1, "USD", decimal.NewFromInt(1), usdConfig)

	ethConfig := defaultConfig()
	ethConfig.CollateralHaircut = decimal.NewFromFloat(0.8)
	ethConfig.DebtBuffer = decimal.NewFromFloat(1.2)
	env.listCurrency(t, 2, "ETH", decimal.NewFromInt(50), ethConfig)
	env.rates.SetNTokenValue(2, decimal.NewFromInt(4))

	account := env.createAccount(t, "debtor")
	env.setCash(t, account, 1, decimal.NewFromInt(400))
	env.setBalance(t, account, 2, decimal.NewFromInt(-30), decimal.NewFromInt(10))

	liquidator := env.createAccount(t, "liquidator")
	env.setCash(t, liquidator, 1, decimal.NewFromInt(1000))

	// 400*0.9 - (30 - 10*4*0.5)*50*1.2 = 360 - 600
	pre := env.freeCollateral(t, account.Id)
	assertDecimal(t, "-240", pre.Aggregate)

	// The 240 base shortfall converts to 4 local units of debt; each nToken
	// sold frees 4*(0.9-0.5) = 1.6 of local value.
	outcome, err := env.engine.LiquidateLocalCurrency(env.ctx, liquidator.Id, account.Id, 2, decimal.Zero)
	require.NoError(t, err)
	assertDecimal(t, "9", outcome.NetLocalFromLiquidator)
	assertDecimal(t, "2.5", outcome.NetNTokenTransfer)

	post := checkLiquidationInvariants(t, env, account.Id, pre)
	assertDecimal(t, "0", post.Aggregate)
	assertDecimal(t, "-21", env.balance(t, account.Id, 2).Cash)
	assertDecimal(t, "7.5", env.balance(t, account.Id, 2).NTokens)

	// The liquidator carries the new ETH debt against its USD cash.
	assertDecimal(t, "-9", env.balance(t, liquidator.Id, 2).Cash)
	assertDecimal(t, "2.5", env.balance(t, liquidator.Id, 2).NTokens)
}

func TestLiquidateLocalCurrencyRejections(t *testing.T) {
	env, _ := localLedger(t)
	env.listCurrency(t, 2, "ETH", decimal.NewFromInt(50), defaultConfig())

	debtor := env.createAccount(t, "debtor")
	env.setBalance(t, debtor, 1, decimal.NewFromInt(-600), decimal.NewFromInt(500))
	env.setCash(t, debtor, 2, decimal.NewFromInt(1))

	healthy := env.createAccount(t, "healthy")
	env.setCash(t, healthy, 1, decimal.NewFromInt(100))

	// Short on cash with no nTokens or liquidity tokens to take.
	bare := env.createAccount(t, "bare")
	env.setCash(t, bare, 1, decimal.NewFromInt(-100))
	env.setCash(t, bare, 2, decimal.NewFromInt(1))

	liquidator := env.createAccount(t, "liquidator")
	env.setCash(t, liquidator, 1, decimal.NewFromInt(1000))

	disabled := env.createAccount(t, "disabled")
	disabled.SetFlag(core.DisabledFlag)
	require.NoError(t, env.mem.UpsertAccount(env.ctx, disabled))

	unknown := uuid.Must(uuid.NewV4())

	tests := []struct {
		name       string
		liquidator uuid.UUID
		account    uuid.UUID
		currency   core.CurrencyID
		wantErr    error
	}{
		{"account not in shortfall", liquidator.Id, healthy.Id, 1, core.InsufficientShortfall},
		{"currency without local debt", liquidator.Id, debtor.Id, 2, core.NothingToLiquidate},
		{"currency not listed", liquidator.Id, debtor.Id, 99, core.NothingToLiquidate},
		{"no assets to purchase", liquidator.Id, bare.Id, 1, core.NothingToLiquidate},
		{"self liquidation", debtor.Id, debtor.Id, 1, core.SelfLiquidationNotAllowed},
		{"disabled liquidator", disabled.Id, debtor.Id, 1, core.AccountDisabled},
		{"unknown account", liquidator.Id, unknown, 1, core.AccountNotFound},
		{"unknown liquidator", unknown, debtor.Id, 1, core.AccountNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := env.engine.LiquidateLocalCurrency(env.ctx, tt.liquidator, tt.account, tt.currency, decimal.Zero)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}
