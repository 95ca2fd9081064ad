package core

import (
	"context"

	"github.com/gofrs/uuid"
	"github.com/shopspring/decimal"
)

// CollateralWithdrawOptions select which collateral classes an executing
// liquidator withdraws and the form nTokens are delivered in.
type CollateralWithdrawOptions struct {
	Cash               bool `json:"cash"`
	NTokens            bool `json:"nTokens"`
	RedeemToUnderlying bool `json:"redeemToUnderlying"`
}

// CalculateCollateralCurrencyLiquidation sizes a collateral currency
// liquidation assuming both collateral classes are withdrawable.
func (e *LiquidationEngine) CalculateCollateralCurrencyLiquidation(ctx context.Context, accountId uuid.UUID, localCurrency, collateralCurrency CurrencyID, maxLocal, maxCollateral decimal.Decimal) (*CollateralCurrencyOutcome, error) {
	if localCurrency == collateralCurrency {
		return nil, InvalidCurrencyPair
	}

	run, err := e.prepareAccount(ctx, LiquidationModeCollateralCurrency, accountId)
	if err != nil {
		return nil, err
	}

	outcome, err := e.computeCollateralCurrency(ctx, run, localCurrency, collateralCurrency, maxLocal, maxCollateral, CollateralWithdrawOptions{Cash: true, NTokens: true})
	if err != nil {
		return nil, err
	}

	if _, err := e.verifyAccount(run); err != nil {
		return nil, err
	}
	return outcome, nil
}

// LiquidateCollateralCurrency repays local currency debt in exchange for the
// account's collateral in another currency, purchased at the oracle exchange
// rate times the liquidation discount.
func (e *LiquidationEngine) LiquidateCollateralCurrency(ctx context.Context, liquidatorId, accountId uuid.UUID, localCurrency, collateralCurrency CurrencyID, maxLocal, maxCollateral decimal.Decimal, opts CollateralWithdrawOptions) (*CollateralCurrencyOutcome, error) {
	if localCurrency == collateralCurrency {
		return nil, e.reject(LiquidationModeCollateralCurrency, InvalidCurrencyPair)
	}

	run, err := e.prepareLiquidation(ctx, LiquidationModeCollateralCurrency, liquidatorId, accountId)
	if err != nil {
		return nil, e.reject(LiquidationModeCollateralCurrency, err)
	}

	outcome, err := e.computeCollateralCurrency(ctx, run, localCurrency, collateralCurrency, maxLocal, maxCollateral, opts)
	if err != nil {
		return nil, e.reject(LiquidationModeCollateralCurrency, err)
	}

	if err := e.verifyAndPersist(ctx, run, outcome.NetLocalFromLiquidator); err != nil {
		return nil, e.reject(LiquidationModeCollateralCurrency, err)
	}
	return outcome, nil
}

func (e *LiquidationEngine) computeCollateralCurrency(ctx context.Context, run *liquidationRun, localId, collateralId CurrencyID, maxLocal, maxCollateral decimal.Decimal, opts CollateralWithdrawOptions) (*CollateralCurrencyOutcome, error) {
	netLocal := run.pre.NetLocalIn(localId)
	if !netLocal.IsNegative() {
		return nil, InvalidCurrencyPair
	}
	netCollateral := run.pre.NetLocalIn(collateralId)
	if netCollateral.IsNegative() {
		return nil, InvalidCurrencyPair
	}

	localPf := run.engine.PositionIn(localId)
	if localPf == nil {
		return nil, InvalidCurrencyPair
	}
	collateralPf := run.engine.PositionIn(collateralId)
	if collateralPf == nil {
		return nil, NothingToLiquidate
	}

	cfgL := localPf.Position.Currency.CurrencyConfig
	cfgC := collateralPf.Position.Currency.CurrencyConfig
	precL := localPf.Position.Currency.Precision
	precC := collateralPf.Position.Currency.Precision

	rateL, err := localPf.Feed.UnderlyingRate()
	if err != nil {
		return nil, err
	}
	rateC, err := collateralPf.Feed.UnderlyingRate()
	if err != nil {
		return nil, err
	}

	// The liquidator buys collateral below market: one local unit repaid
	// costs the account xrate * discount units of collateral. The stricter
	// discount of the pair applies.
	discount := cfgL.LiquidationDiscount
	if cfgC.LiquidationDiscount.GreaterThan(discount) {
		discount = cfgC.LiquidationDiscount
	}
	xrate, err := DivFloor(rateL, rateC, RATE_PRECISION)
	if err != nil {
		return nil, err
	}
	seizeRate := xrate.Mul(discount)

	cashAvail := decimal.Zero
	if opts.Cash && collateralPf.Position.Balance.Cash.IsPositive() {
		cashAvail = collateralPf.Position.Balance.Cash
	}
	nTokenAvail := decimal.Zero
	nTokenValue := decimal.Zero
	if opts.NTokens && collateralPf.Position.Balance.NTokens.IsPositive() && cfgC.NTokenLiquidationHaircut.IsPositive() {
		nTokenAvail = collateralPf.Position.Balance.NTokens
		nTokenValue, err = collateralPf.Feed.NTokenValue()
		if err != nil {
			return nil, err
		}
	}
	if !cashAvail.IsPositive() && !nTokenAvail.IsPositive() {
		return nil, NothingToLiquidate
	}

	repayGain := rateL.Mul(cfgL.DebtBuffer)
	cashSlope := repayGain.Sub(seizeRate.Mul(rateC).Mul(cfgC.CollateralHaircut))

	// nTokens credit seized value at the liquidation haircut but only carried
	// the plain haircut inside free collateral, so a unit of nToken-backed
	// value drops the collateral leg by hvOverHq instead of one.
	hvOverHq := decimal.Zero
	nTokenSlope := decimal.Zero
	if nTokenAvail.IsPositive() {
		hvOverHq, err = DivFloor(cfgC.NTokenHaircut, cfgC.NTokenLiquidationHaircut, RATE_PRECISION)
		if err != nil {
			return nil, err
		}
		nTokenSlope = repayGain.Sub(seizeRate.Mul(hvOverHq).Mul(rateC).Mul(cfgC.CollateralHaircut))
	}

	// When cash seizure loses ground on its own, leave the cash untouched
	// and size against nTokens alone.
	if cashAvail.IsPositive() && !cashSlope.IsPositive() {
		if !nTokenSlope.IsPositive() {
			return nil, LiquidationNotBeneficial
		}
		cashAvail = decimal.Zero
	}

	// Invert the free collateral response to find the local repayment that
	// lands the account on zero. Seizure draws cash down first, so the
	// response is piecewise linear with a knee where cash runs out.
	shortfall := run.pre.Shortfall()
	var required decimal.Decimal
	if cashAvail.IsPositive() {
		required, err = DivCeil(shortfall, cashSlope, precL)
		if err != nil {
			return nil, err
		}
		if required.Mul(seizeRate).GreaterThan(cashAvail) {
			if !nTokenSlope.IsPositive() {
				// Crossing into nTokens loses ground: stop at the cash
				// boundary.
				required, err = DivFloor(cashAvail, seizeRate, precL)
				if err != nil {
					return nil, err
				}
			} else {
				knee := cashAvail.Mul(ONE.Sub(hvOverHq)).Mul(rateC).Mul(cfgC.CollateralHaircut)
				required, err = DivCeil(shortfall.Add(knee), nTokenSlope, precL)
				if err != nil {
					return nil, err
				}
			}
		}
	} else {
		if !nTokenSlope.IsPositive() {
			return nil, LiquidationNotBeneficial
		}
		required, err = DivCeil(shortfall, nTokenSlope, precL)
		if err != nil {
			return nil, err
		}
	}

	// Caps: the local debt itself, the caller's local bound, then the
	// collateral side converted back into a local bound.
	if required.GreaterThan(netLocal.Neg()) {
		required = netLocal.Neg()
	}
	if maxLocal.IsPositive() && required.GreaterThan(maxLocal) {
		required = maxLocal
	}

	seizable := cashAvail.Add(MulFloor(nTokenAvail.Mul(nTokenValue), cfgC.NTokenLiquidationHaircut, precC))
	valueCap := MulFloor(seizable, cfgC.LiquidationPortion, precC)
	if maxCollateral.IsPositive() && valueCap.GreaterThan(maxCollateral) {
		valueCap = maxCollateral
	}
	collateralBound, err := DivFloor(valueCap, seizeRate, precL)
	if err != nil {
		return nil, err
	}
	if required.GreaterThan(collateralBound) {
		required = collateralBound
	}

	if !required.IsPositive() {
		return nil, NothingToLiquidate
	}

	// Final split at the capped amount.
	seizedValue := MulFloor(required, seizeRate, precC)
	cashSeized := seizedValue
	if cashSeized.GreaterThan(cashAvail) {
		cashSeized = cashAvail
	}
	tokens := decimal.Zero
	if seizedValue.GreaterThan(cashSeized) {
		tokens, err = DivFloor(seizedValue.Sub(cashSeized), nTokenValue.Mul(cfgC.NTokenLiquidationHaircut), precC)
		if err != nil {
			return nil, err
		}
		if tokens.GreaterThan(nTokenAvail) {
			tokens = nTokenAvail
		}
	}
	if !cashSeized.IsPositive() && !tokens.IsPositive() {
		return nil, NothingToLiquidate
	}

	run.touch(localPf.Position)
	run.touch(collateralPf.Position)

	if err := localPf.Position.CreditCash(required); err != nil {
		return nil, err
	}
	if cashSeized.IsPositive() {
		if err := collateralPf.Position.DebitCash(cashSeized); err != nil {
			return nil, err
		}
	}
	if tokens.IsPositive() {
		if err := collateralPf.Position.DebitNTokens(tokens); err != nil {
			return nil, err
		}
	}

	if run.liquidator != nil {
		liquidatorLocal, err := e.liquidatorPosition(ctx, run, localPf.Position.Currency)
		if err != nil {
			return nil, err
		}
		if err := liquidatorLocal.DebitCash(required); err != nil {
			return nil, err
		}

		liquidatorCollateral, err := e.liquidatorPosition(ctx, run, collateralPf.Position.Currency)
		if err != nil {
			return nil, err
		}
		received := cashSeized
		if tokens.IsPositive() {
			if opts.RedeemToUnderlying {
				received = received.Add(MulFloor(tokens, nTokenValue, precC))
			} else {
				if err := liquidatorCollateral.CreditNTokens(tokens); err != nil {
					return nil, err
				}
			}
		}
		if received.IsPositive() {
			if err := liquidatorCollateral.CreditCash(received); err != nil {
				return nil, err
			}
		}
	}

	return &CollateralCurrencyOutcome{
		LocalCurrency:          localId,
		CollateralCurrency:     collateralId,
		NetLocalFromLiquidator: required,
		NetCollateralTransfer:  cashSeized,
		NetNTokenTransfer:      tokens,
	}, nil
}
