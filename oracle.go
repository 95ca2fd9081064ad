package core

import (
	"time"

	"github.com/shopspring/decimal"
)

// RateFeed is the oracle contract the engine consumes. Rate production and
// market mechanics live outside this module.
type RateFeed interface {
	// UnderlyingRate is the price of one unit of the currency in base
	// currency units.
	UnderlyingRate() (decimal.Decimal, error)

	// PresentValue discounts the notional maturing at the given timestamp
	// back to asOf, in the currency's own cash units. Notional keeps its
	// sign.
	PresentValue(maturity int64, notional decimal.Decimal, asOf time.Time) (decimal.Decimal, error)

	// NTokenValue is the cash value of one nToken in the currency's own
	// units.
	NTokenValue() (decimal.Decimal, error)

	// LiquidityTokenClaims returns the cash and fCash notional one
	// liquidity token unit redeems into at the given maturity.
	LiquidityTokenClaims(maturity int64) (decimal.Decimal, decimal.Decimal, error)
}

type RateFeedMgr interface {
	GetRateFeed(currency *Currency) (RateFeed, error)
}
