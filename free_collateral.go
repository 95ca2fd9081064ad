package core

import (
	"context"
	"time"

	"github.com/facebookgo/clock"
	"github.com/shopspring/decimal"
)

type (
	// NetLocalValue is one entry of the per-currency free collateral vector.
	NetLocalValue struct {
		Currency CurrencyID      `json:"currency"`
		Value    decimal.Decimal `json:"value"`
	}

	// FreeCollateral is the result of a full account valuation: the aggregate
	// base-currency figure that gates liquidation, plus the local figures it
	// was aggregated from, currency id ascending.
	FreeCollateral struct {
		Aggregate decimal.Decimal `json:"aggregate"`
		NetLocal  []NetLocalValue `json:"netLocal"`
	}

	RiskEngine struct {
		Account   *Account
		Positions []*PositionWithFeed
	}
)

func NewRiskEngine(ctx context.Context, clk clock.Clock, svc LedgerService, mgr RateFeedMgr, account *Account, changed ...*CurrencyPosition) (*RiskEngine, error) {
	positions, err := LoadPositionsWithFeeds(ctx, clk, svc, mgr, account.Id, changed...)
	if err != nil {
		return nil, err
	}
	return &RiskEngine{
		Account:   account,
		Positions: positions,
	}, nil
}

func (r *RiskEngine) PositionIn(currency CurrencyID) *PositionWithFeed {
	for _, a := range r.Positions {
		if a.Position.Currency.Id == currency {
			return a
		}
	}
	return nil
}

func (fc *FreeCollateral) NetLocalIn(currency CurrencyID) decimal.Decimal {
	for _, n := range fc.NetLocal {
		if n.Currency == currency {
			return n.Value
		}
	}
	return decimal.Zero
}

// Shortfall is the positive base-currency amount the account is short, zero
// when the account is collateralized.
func (fc *FreeCollateral) Shortfall() decimal.Decimal {
	if fc.Aggregate.IsNegative() {
		return fc.Aggregate.Neg()
	}
	return decimal.Zero
}

func (r *RiskEngine) FreeCollateral(asOf time.Time) (*FreeCollateral, error) {
	aggregate := decimal.Zero
	netLocal := make([]NetLocalValue, 0, len(r.Positions))
	for _, a := range r.Positions {
		local, base, err := a.WeightedBaseValue(asOf)
		if err != nil {
			return nil, err
		}
		aggregate = aggregate.Add(base)
		netLocal = append(netLocal, NetLocalValue{
			Currency: a.Position.Currency.Id,
			Value:    local,
		})
	}
	return &FreeCollateral{
		Aggregate: aggregate,
		NetLocal:  netLocal,
	}, nil
}

func (r *RiskEngine) CheckPreLiquidationConditionAndGetFreeCollateral(asOf time.Time) (*FreeCollateral, error) {
	fc, err := r.FreeCollateral(asOf)
	if err != nil {
		return nil, err
	}
	if !fc.Aggregate.IsNegative() {
		return nil, InsufficientShortfall
	}
	return fc, nil
}

/*
Checks the account state after liquidation transfers have been applied.
The liquidation is only allowed to stand when all of the following hold:

1. Free collateral strictly improved. A liquidation that moves nothing, or
moves value in the wrong direction, is rejected.
2. Free collateral did not overshoot. The account may be brought at most to
FC_OVERSHOOT_TOLERANCE above zero, anything further takes more from the
account than restoring solvency requires.
3. No currency's net local value crossed zero. A debt may shrink toward
zero and collateral may be drawn down toward zero, but liquidation never
flips the direction of a position.
*/
func (r *RiskEngine) CheckPostLiquidationConditionAndGetFreeCollateral(asOf time.Time, pre *FreeCollateral) (*FreeCollateral, error) {
	post, err := r.FreeCollateral(asOf)
	if err != nil {
		return nil, err
	}

	if !post.Aggregate.GreaterThan(pre.Aggregate) {
		return nil, NothingToLiquidate
	}

	if post.Aggregate.GreaterThan(FC_OVERSHOOT_TOLERANCE) {
		return nil, OverLiquidationRejected
	}

	for _, n := range post.NetLocal {
		preValue := pre.NetLocalIn(n.Currency)
		if preValue.IsNegative() && n.Value.GreaterThan(EMPTY_BALANCE_THRESHOLD) {
			return nil, OverLiquidationRejected
		}
		if preValue.IsPositive() && n.Value.LessThan(EMPTY_BALANCE_THRESHOLD.Neg()) {
			return nil, OverLiquidationRejected
		}
	}

	return post, nil
}
