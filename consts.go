package core

import (
	"github.com/shopspring/decimal"
)

const (
	SECONDS_PER_YEAR = 31_536_000

	// Decimal places kept when dividing one oracle rate by another.
	RATE_PRECISION = 12
)

var (
	ONE = decimal.NewFromInt(1)

	ZERO_AMOUNT_THRESHOLD   = decimal.Zero
	EMPTY_BALANCE_THRESHOLD = decimal.NewFromFloat(0.00000001)

	// Post-liquidation aggregate free collateral may land above zero by at
	// most this much (rounding on ceiled transfer amounts).
	FC_OVERSHOOT_TOLERANCE = decimal.NewFromFloat(0.0001)

	DEFAULT_LIQUIDATION_PORTION = decimal.NewFromFloat(0.4)
	DEFAULT_REPO_INCENTIVE      = decimal.NewFromFloat(0.0025)
)
