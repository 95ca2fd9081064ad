package core

import (
	"context"
	"sort"

	"github.com/facebookgo/clock"
	"github.com/shopspring/decimal"
)

// CurrencyID is a dense protocol-assigned identifier. The base currency is
// always id 1 and every aggregate free collateral value is denominated in it.
type CurrencyID uint16

const BaseCurrency CurrencyID = 1

type (
	CurrencyStore interface {
		CreateCurrency(ctx context.Context, currency *Currency) error
		GetCurrency(ctx context.Context, id CurrencyID) (*Currency, error)
		ListCurrencies(ctx context.Context) ([]*Currency, error)
		UpdateCurrencyConfig(ctx context.Context, id CurrencyID, config *CurrencyConfig) error
	}

	Currency struct {
		Id        CurrencyID `json:"id"`
		Symbol    string     `json:"symbol"`
		Precision int32      `json:"precision"`

		Active bool `json:"active"`

		CurrencyConfig `json:"currencyConfig"`

		CreatedAt  int64 `json:"createdAt"`
		LastUpdate int64 `json:"lastUpdate"`
	}

	CurrencyConfig struct {
		// Multipliers applied when converting a per-currency net value to
		// the base unit: haircut on positive value, buffer on negative.
		CollateralHaircut decimal.Decimal `json:"collateralHaircut"`
		DebtBuffer        decimal.Decimal `json:"debtBuffer"`

		// Bonus rate at which a liquidator acquires collateral held in
		// another currency than the repaid debt.
		LiquidationDiscount decimal.Decimal `json:"liquidationDiscount"`

		// Largest fraction of any single collateral class one liquidation
		// may take from an account.
		LiquidationPortion decimal.Decimal `json:"liquidationPortion"`

		NTokenHaircut            decimal.Decimal `json:"nTokenHaircut"`
		NTokenLiquidationHaircut decimal.Decimal `json:"nTokenLiquidationHaircut"`

		LiquidityTokenHaircut decimal.Decimal `json:"liquidityTokenHaircut"`
		TokenRepoIncentive    decimal.Decimal `json:"tokenRepoIncentive"`

		// Ordered by MaxMaturity ascending. Lookup picks the first bucket
		// whose MaxMaturity covers the time to maturity; beyond the last
		// bucket the last entry applies.
		FCashHaircuts []MaturityHaircut `json:"fCashHaircuts"`
	}

	// MaturityHaircut holds the risk multipliers for fCash maturing within
	// MaxMaturity seconds. Haircut prices positive notional into free
	// collateral, Buffer prices negative notional, LiquidationHaircut is
	// the rate at which a liquidator credits purchased notional.
	MaturityHaircut struct {
		MaxMaturity        int64           `json:"maxMaturity"`
		Haircut            decimal.Decimal `json:"haircut"`
		Buffer             decimal.Decimal `json:"buffer"`
		LiquidationHaircut decimal.Decimal `json:"liquidationHaircut"`
	}
)

func NewCurrency(clk clock.Clock, id CurrencyID, symbol string, precision int32, config CurrencyConfig) *Currency {
	if config.LiquidationPortion.IsZero() {
		config.LiquidationPortion = DEFAULT_LIQUIDATION_PORTION
	}
	if config.TokenRepoIncentive.IsZero() {
		config.TokenRepoIncentive = DEFAULT_REPO_INCENTIVE
	}
	return &Currency{
		Id:             id,
		Symbol:         symbol,
		Precision:      precision,
		Active:         true,
		CurrencyConfig: config,
		CreatedAt:      clk.Now().Unix(),
		LastUpdate:     clk.Now().Unix(),
	}
}

func (c *Currency) Clone() *Currency {
	clone := *c
	clone.FCashHaircuts = make([]MaturityHaircut, len(c.FCashHaircuts))
	copy(clone.FCashHaircuts, c.FCashHaircuts)
	return &clone
}

// TruncateAmount drops digits beyond the currency's precision, rounding
// toward zero.
func (c *Currency) TruncateAmount(d decimal.Decimal) decimal.Decimal {
	return d.Truncate(c.Precision)
}

func (cc *CurrencyConfig) Validate() error {
	if !(cc.CollateralHaircut.GreaterThan(decimal.Zero) && cc.CollateralHaircut.LessThanOrEqual(ONE)) {
		return InvalidConfig
	}
	if cc.DebtBuffer.LessThan(ONE) {
		return InvalidConfig
	}
	if cc.LiquidationDiscount.LessThan(ONE) {
		return InvalidConfig
	}
	if !(cc.LiquidationPortion.GreaterThan(decimal.Zero) && cc.LiquidationPortion.LessThanOrEqual(ONE)) {
		return InvalidConfig
	}
	if cc.NTokenHaircut.IsNegative() || cc.NTokenLiquidationHaircut.GreaterThan(ONE) {
		return InvalidConfig
	}
	if cc.NTokenHaircut.GreaterThan(cc.NTokenLiquidationHaircut) {
		return InvalidConfig
	}
	if cc.LiquidityTokenHaircut.IsNegative() || cc.LiquidityTokenHaircut.GreaterThan(ONE) {
		return InvalidConfig
	}
	if cc.TokenRepoIncentive.IsNegative() || cc.TokenRepoIncentive.GreaterThanOrEqual(ONE) {
		return InvalidConfig
	}

	if len(cc.FCashHaircuts) == 0 {
		return InvalidConfig
	}
	if !sort.SliceIsSorted(cc.FCashHaircuts, func(i, j int) bool {
		return cc.FCashHaircuts[i].MaxMaturity < cc.FCashHaircuts[j].MaxMaturity
	}) {
		return InvalidConfig
	}
	for _, bucket := range cc.FCashHaircuts {
		if bucket.MaxMaturity <= 0 {
			return InvalidConfig
		}
		if !(bucket.Haircut.GreaterThan(decimal.Zero) && bucket.Haircut.LessThanOrEqual(bucket.LiquidationHaircut)) {
			return InvalidConfig
		}
		if bucket.LiquidationHaircut.GreaterThan(ONE) {
			return InvalidConfig
		}
		if bucket.Buffer.LessThan(ONE) {
			return InvalidConfig
		}
	}

	return nil
}

// HaircutFor returns the maturity bucket covering the given time to
// maturity. Beyond the last bucket the last entry applies.
func (cc *CurrencyConfig) HaircutFor(timeToMaturity int64) MaturityHaircut {
	for _, bucket := range cc.FCashHaircuts {
		if timeToMaturity <= bucket.MaxMaturity {
			return bucket
		}
	}
	return cc.FCashHaircuts[len(cc.FCashHaircuts)-1]
}

// Configure applies the nonzero fields of config over the current
// configuration, then validates the merged result.
func (c *Currency) Configure(clk clock.Clock, config *CurrencyConfig) error {
	if !config.CollateralHaircut.IsZero() {
		c.CurrencyConfig.CollateralHaircut = config.CollateralHaircut
	}
	if !config.DebtBuffer.IsZero() {
		c.CurrencyConfig.DebtBuffer = config.DebtBuffer
	}
	if !config.LiquidationDiscount.IsZero() {
		c.CurrencyConfig.LiquidationDiscount = config.LiquidationDiscount
	}
	if !config.LiquidationPortion.IsZero() {
		c.CurrencyConfig.LiquidationPortion = config.LiquidationPortion
	}
	if !config.NTokenHaircut.IsZero() {
		c.CurrencyConfig.NTokenHaircut = config.NTokenHaircut
	}
	if !config.NTokenLiquidationHaircut.IsZero() {
		c.CurrencyConfig.NTokenLiquidationHaircut = config.NTokenLiquidationHaircut
	}
	if !config.LiquidityTokenHaircut.IsZero() {
		c.CurrencyConfig.LiquidityTokenHaircut = config.LiquidityTokenHaircut
	}
	if !config.TokenRepoIncentive.IsZero() {
		c.CurrencyConfig.TokenRepoIncentive = config.TokenRepoIncentive
	}
	if len(config.FCashHaircuts) != 0 {
		c.CurrencyConfig.FCashHaircuts = make([]MaturityHaircut, len(config.FCashHaircuts))
		copy(c.CurrencyConfig.FCashHaircuts, config.FCashHaircuts)
	}

	if err := c.CurrencyConfig.Validate(); err != nil {
		return err
	}
	c.LastUpdate = clk.Now().Unix()

	return nil
}
