package core

import (
	"github.com/shopspring/decimal"
)

// LedgerService aggregates the per-entity stores a liquidation call reads
// and writes. The engine holds no state of its own between calls.
type LedgerService struct {
	AccountStore
	CurrencyStore
	BalanceStore
	PortfolioStore
}

func CalcValue(amount decimal.Decimal, rate decimal.Decimal, weight *decimal.Decimal) (decimal.Decimal, error) {
	if amount.IsZero() {
		return decimal.Zero, nil
	}

	var weightedAmount decimal.Decimal
	if weight != nil {
		weightedAmount = amount.Mul(*weight)
	} else {
		weightedAmount = amount
	}

	return weightedAmount.Mul(rate), nil
}

func CalcAmount(value decimal.Decimal, rate decimal.Decimal) (decimal.Decimal, error) {
	if rate.IsZero() {
		return decimal.Zero, MathError
	}
	return value.Div(rate), nil
}

// DivFloor divides rounding toward zero at the given number of decimal
// places. Both calculate and execute paths must divide through here so they
// agree exactly.
func DivFloor(a, b decimal.Decimal, precision int32) (decimal.Decimal, error) {
	if b.IsZero() {
		return decimal.Zero, MathError
	}
	q, _ := a.QuoRem(b, precision)
	return q, nil
}

// DivCeil divides rounding away from zero at the given number of decimal
// places. Used for required amounts so an uncapped liquidation fully covers
// the shortfall.
func DivCeil(a, b decimal.Decimal, precision int32) (decimal.Decimal, error) {
	if b.IsZero() {
		return decimal.Zero, MathError
	}
	q, r := a.QuoRem(b, precision)
	if r.IsZero() {
		return q, nil
	}
	step := decimal.New(1, -precision)
	if a.Sign()*b.Sign() < 0 {
		step = step.Neg()
	}
	return q.Add(step), nil
}

// MulFloor multiplies and truncates toward zero at the given number of
// decimal places.
func MulFloor(a, b decimal.Decimal, precision int32) decimal.Decimal {
	return a.Mul(b).Truncate(precision)
}
