package core

import (
	"github.com/pkg/errors"
)

var (
	AccountNotFound = errors.New("account not found")
	AccountDisabled = errors.New("account disabled")

	CurrencyNotListed = errors.New("currency not listed")
	InvalidConfig     = errors.New("invalid currency config")

	IllegalBalanceState = errors.New("illegal balance state")

	InsufficientShortfall     = errors.New("account has no free collateral shortfall")
	NothingToLiquidate        = errors.New("nothing to liquidate")
	InvalidCurrencyPair       = errors.New("invalid currency pair")
	ArgumentLengthMismatch    = errors.New("maturities and caps length mismatch")
	OverLiquidationRejected   = errors.New("liquidation pushes account past safe bound")
	SelfLiquidationNotAllowed = errors.New("cannot liquidate own account")
	LiquidationNotBeneficial  = errors.New("seizing collateral cannot raise free collateral")

	LiquidatorUndercollateralized = errors.New("liquidator undercollateralized")

	InvalidMaturity = errors.New("invalid maturity")

	MathError = errors.New("math error")
)
