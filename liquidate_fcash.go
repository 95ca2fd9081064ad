package core

import (
	"context"

	"github.com/gofrs/uuid"
	"github.com/shopspring/decimal"
)

// validateFCashArgs rejects malformed maturity lists before anything is read
// from the stores.
func validateFCashArgs(maturities []int64, maxNotional []decimal.Decimal) error {
	if len(maturities) != len(maxNotional) {
		return ArgumentLengthMismatch
	}
	if len(maturities) == 0 {
		return NothingToLiquidate
	}
	seen := make(map[int64]bool, len(maturities))
	for _, m := range maturities {
		if m <= 0 {
			return InvalidMaturity
		}
		if seen[m] {
			return InvalidMaturity
		}
		seen[m] = true
	}
	return nil
}

// CalculateLocalFCashLiquidation sizes a local fCash liquidation without
// executing it. Transfers are positionally aligned with maturities.
func (e *LiquidationEngine) CalculateLocalFCashLiquidation(ctx context.Context, accountId uuid.UUID, currency CurrencyID, maturities []int64, maxNotional []decimal.Decimal) (*FCashOutcome, error) {
	if err := validateFCashArgs(maturities, maxNotional); err != nil {
		return nil, err
	}

	run, err := e.prepareAccount(ctx, LiquidationModeLocalFCash, accountId)
	if err != nil {
		return nil, err
	}

	outcome, err := e.computeLocalFCash(ctx, run, currency, maturities, maxNotional)
	if err != nil {
		return nil, err
	}

	if _, err := e.verifyAccount(run); err != nil {
		return nil, err
	}
	return outcome, nil
}

// LiquidateLocalFCash sells the account's positive fCash claims to the
// liquidator for same-currency cash at the maturity bucket's liquidation
// haircut.
func (e *LiquidationEngine) LiquidateLocalFCash(ctx context.Context, liquidatorId, accountId uuid.UUID, currency CurrencyID, maturities []int64, maxNotional []decimal.Decimal) (*FCashOutcome, error) {
	if err := validateFCashArgs(maturities, maxNotional); err != nil {
		return nil, e.reject(LiquidationModeLocalFCash, err)
	}

	run, err := e.prepareLiquidation(ctx, LiquidationModeLocalFCash, liquidatorId, accountId)
	if err != nil {
		return nil, e.reject(LiquidationModeLocalFCash, err)
	}

	outcome, err := e.computeLocalFCash(ctx, run, currency, maturities, maxNotional)
	if err != nil {
		return nil, e.reject(LiquidationModeLocalFCash, err)
	}

	if err := e.verifyAndPersist(ctx, run, outcome.NetLocalFromLiquidator); err != nil {
		return nil, e.reject(LiquidationModeLocalFCash, err)
	}
	return outcome, nil
}

// CalculateCrossCurrencyFCashLiquidation sizes a cross currency fCash
// liquidation without executing it.
func (e *LiquidationEngine) CalculateCrossCurrencyFCashLiquidation(ctx context.Context, accountId uuid.UUID, localCurrency, fCashCurrency CurrencyID, maturities []int64, maxNotional []decimal.Decimal) (*FCashOutcome, error) {
	if localCurrency == fCashCurrency {
		return nil, InvalidCurrencyPair
	}
	if err := validateFCashArgs(maturities, maxNotional); err != nil {
		return nil, err
	}

	run, err := e.prepareAccount(ctx, LiquidationModeCrossCurrencyFCash, accountId)
	if err != nil {
		return nil, err
	}

	outcome, err := e.computeCrossCurrencyFCash(ctx, run, localCurrency, fCashCurrency, maturities, maxNotional)
	if err != nil {
		return nil, err
	}

	if _, err := e.verifyAccount(run); err != nil {
		return nil, err
	}
	return outcome, nil
}

// LiquidateCrossCurrencyFCash repays local currency debt with cash while
// seizing the account's fCash claims in another currency, priced through the
// oracle rate and the pair's liquidation discount.
func (e *LiquidationEngine) LiquidateCrossCurrencyFCash(ctx context.Context, liquidatorId, accountId uuid.UUID, localCurrency, fCashCurrency CurrencyID, maturities []int64, maxNotional []decimal.Decimal) (*FCashOutcome, error) {
	if localCurrency == fCashCurrency {
		return nil, e.reject(LiquidationModeCrossCurrencyFCash, InvalidCurrencyPair)
	}
	if err := validateFCashArgs(maturities, maxNotional); err != nil {
		return nil, e.reject(LiquidationModeCrossCurrencyFCash, err)
	}

	run, err := e.prepareLiquidation(ctx, LiquidationModeCrossCurrencyFCash, liquidatorId, accountId)
	if err != nil {
		return nil, e.reject(LiquidationModeCrossCurrencyFCash, err)
	}

	outcome, err := e.computeCrossCurrencyFCash(ctx, run, localCurrency, fCashCurrency, maturities, maxNotional)
	if err != nil {
		return nil, e.reject(LiquidationModeCrossCurrencyFCash, err)
	}

	if err := e.verifyAndPersist(ctx, run, outcome.NetLocalFromLiquidator); err != nil {
		return nil, e.reject(LiquidationModeCrossCurrencyFCash, err)
	}
	return outcome, nil
}

// checkFCashEntries verifies every requested maturity maps to a live claim.
func checkFCashEntries(run *liquidationRun, pf *PositionWithFeed, maturities []int64) error {
	for _, m := range maturities {
		asset := pf.Position.FCashAsset(m)
		if asset == nil || asset.IsMatured(run.asOf) || !asset.Notional.IsPositive() {
			return NothingToLiquidate
		}
	}
	return nil
}

func (e *LiquidationEngine) computeLocalFCash(ctx context.Context, run *liquidationRun, currencyId CurrencyID, maturities []int64, maxNotional []decimal.Decimal) (*FCashOutcome, error) {
	pf := run.engine.PositionIn(currencyId)
	if pf == nil {
		return nil, NothingToLiquidate
	}
	if err := checkFCashEntries(run, pf, maturities); err != nil {
		return nil, err
	}

	position := pf.Position
	cfg := position.Currency.CurrencyConfig
	prec := position.Currency.Precision

	rate, err := pf.Feed.UnderlyingRate()
	if err != nil {
		return nil, err
	}

	// The slope of free collateral against local value depends on which side
	// of zero the currency sits on. Below zero the headroom to zero is also a
	// hard bound: the claims sold may not flip the currency into credit.
	netLocal := run.pre.NetLocalIn(currencyId)
	weight := cfg.CollateralHaircut
	bounded := false
	headroom := decimal.Zero
	if netLocal.IsNegative() {
		weight = cfg.DebtBuffer
		bounded = true
		headroom = netLocal.Neg()
	}

	remaining, err := DivCeil(run.pre.Shortfall(), rate.Mul(weight), prec)
	if err != nil {
		return nil, err
	}

	var liquidatorPosition *CurrencyPosition
	if run.liquidator != nil {
		liquidatorPosition, err = e.liquidatorPosition(ctx, run, position.Currency)
		if err != nil {
			return nil, err
		}
	}

	run.touch(position)

	outcome := &FCashOutcome{
		LocalCurrency:          currencyId,
		FCashCurrency:          currencyId,
		NetLocalFromLiquidator: decimal.Zero,
		Transfers:              make([]FCashTransfer, len(maturities)),
	}
	for i, m := range maturities {
		outcome.Transfers[i] = FCashTransfer{Maturity: m, Notional: decimal.Zero}
	}

	for i, m := range maturities {
		if !remaining.IsPositive() {
			break
		}

		asset := position.FCashAsset(m)
		bucket := cfg.HaircutFor(m - run.asOf.Unix())
		pvOne, err := pf.Feed.PresentValue(m, ONE, run.asOf)
		if err != nil {
			return nil, err
		}

		unitBenefit := pvOne.Mul(bucket.LiquidationHaircut.Sub(bucket.Haircut))
		if !unitBenefit.IsPositive() {
			continue
		}

		notional, err := DivCeil(remaining, unitBenefit, prec)
		if err != nil {
			return nil, err
		}
		if bounded {
			headroomCap, err := DivFloor(headroom, unitBenefit, prec)
			if err != nil {
				return nil, err
			}
			if notional.GreaterThan(headroomCap) {
				notional = headroomCap
			}
		}
		portionCap := MulFloor(asset.Notional, cfg.LiquidationPortion, prec)
		if notional.GreaterThan(portionCap) {
			notional = portionCap
		}
		if maxNotional[i].IsPositive() && notional.GreaterThan(maxNotional[i]) {
			notional = maxNotional[i]
		}
		if !notional.IsPositive() {
			continue
		}

		payment := MulFloor(notional.Mul(pvOne), bucket.LiquidationHaircut, prec)

		if err := position.ChangeFCash(m, notional.Neg()); err != nil {
			return nil, err
		}
		if err := position.CreditCash(payment); err != nil {
			return nil, err
		}
		if liquidatorPosition != nil {
			if err := liquidatorPosition.ChangeFCash(m, notional); err != nil {
				return nil, err
			}
			if err := liquidatorPosition.DebitCash(payment); err != nil {
				return nil, err
			}
		}

		outcome.Transfers[i].Notional = notional
		outcome.NetLocalFromLiquidator = outcome.NetLocalFromLiquidator.Add(payment)

		applied := notional.Mul(unitBenefit)
		remaining = remaining.Sub(applied)
		if bounded {
			headroom = headroom.Sub(applied)
		}
	}

	if !outcome.NetLocalFromLiquidator.IsPositive() {
		return nil, NothingToLiquidate
	}
	return outcome, nil
}

func (e *LiquidationEngine) computeCrossCurrencyFCash(ctx context.Context, run *liquidationRun, localId, fCashId CurrencyID, maturities []int64, maxNotional []decimal.Decimal) (*FCashOutcome, error) {
	netLocal := run.pre.NetLocalIn(localId)
	if !netLocal.IsNegative() {
		return nil, InvalidCurrencyPair
	}
	netFCash := run.pre.NetLocalIn(fCashId)
	if !netFCash.IsPositive() {
		return nil, InvalidCurrencyPair
	}

	localPf := run.engine.PositionIn(localId)
	if localPf == nil {
		return nil, InvalidCurrencyPair
	}
	fCashPf := run.engine.PositionIn(fCashId)
	if fCashPf == nil {
		return nil, NothingToLiquidate
	}
	if err := checkFCashEntries(run, fCashPf, maturities); err != nil {
		return nil, err
	}

	cfgL := localPf.Position.Currency.CurrencyConfig
	cfgF := fCashPf.Position.Currency.CurrencyConfig
	precL := localPf.Position.Currency.Precision

	rateL, err := localPf.Feed.UnderlyingRate()
	if err != nil {
		return nil, err
	}
	rateF, err := fCashPf.Feed.UnderlyingRate()
	if err != nil {
		return nil, err
	}

	discount := cfgL.LiquidationDiscount
	if cfgF.LiquidationDiscount.GreaterThan(discount) {
		discount = cfgF.LiquidationDiscount
	}
	// Local cash per unit of fCash present value: oracle conversion into the
	// local currency, bought below market by the discount.
	xrate, err := DivFloor(rateF, rateL.Mul(discount), RATE_PRECISION)
	if err != nil {
		return nil, err
	}

	// Both legs carry a hard headroom: cash paid into the local leg may not
	// flip the debt positive, value removed from the fCash leg may not flip
	// the collateral negative.
	localHeadroom := netLocal.Neg()
	fCashHeadroom := netFCash

	shortfall := run.pre.Shortfall()

	var liquidatorLocal, liquidatorFCash *CurrencyPosition
	if run.liquidator != nil {
		liquidatorLocal, err = e.liquidatorPosition(ctx, run, localPf.Position.Currency)
		if err != nil {
			return nil, err
		}
		liquidatorFCash, err = e.liquidatorPosition(ctx, run, fCashPf.Position.Currency)
		if err != nil {
			return nil, err
		}
	}

	run.touch(localPf.Position)
	run.touch(fCashPf.Position)

	outcome := &FCashOutcome{
		LocalCurrency:          localId,
		FCashCurrency:          fCashId,
		NetLocalFromLiquidator: decimal.Zero,
		Transfers:              make([]FCashTransfer, len(maturities)),
	}
	for i, m := range maturities {
		outcome.Transfers[i] = FCashTransfer{Maturity: m, Notional: decimal.Zero}
	}

	remaining := shortfall
	for i, m := range maturities {
		if !remaining.IsPositive() {
			break
		}

		asset := fCashPf.Position.FCashAsset(m)
		bucket := cfgF.HaircutFor(m - run.asOf.Unix())
		pvOne, err := fCashPf.Feed.PresentValue(m, ONE, run.asOf)
		if err != nil {
			return nil, err
		}

		unitPrice := pvOne.Mul(bucket.LiquidationHaircut).Mul(xrate)
		unitRemoved := pvOne.Mul(bucket.Haircut)

		// Benefit per unit notional in base terms: repaid local debt priced
		// at the debt buffer less removed fCash value priced at the
		// collateral haircut.
		unitBenefit := unitPrice.Mul(rateL).Mul(cfgL.DebtBuffer).Sub(unitRemoved.Mul(rateF).Mul(cfgF.CollateralHaircut))
		if !unitBenefit.IsPositive() {
			continue
		}

		notional, err := DivCeil(remaining, unitBenefit, precL)
		if err != nil {
			return nil, err
		}
		localCap, err := DivFloor(localHeadroom, unitPrice, precL)
		if err != nil {
			return nil, err
		}
		if notional.GreaterThan(localCap) {
			notional = localCap
		}
		fCashCap, err := DivFloor(fCashHeadroom, unitRemoved, precL)
		if err != nil {
			return nil, err
		}
		if notional.GreaterThan(fCashCap) {
			notional = fCashCap
		}
		portionCap := MulFloor(asset.Notional, cfgF.LiquidationPortion, precL)
		if notional.GreaterThan(portionCap) {
			notional = portionCap
		}
		if maxNotional[i].IsPositive() && notional.GreaterThan(maxNotional[i]) {
			notional = maxNotional[i]
		}
		if !notional.IsPositive() {
			continue
		}

		payment := MulFloor(notional, unitPrice, precL)

		if err := fCashPf.Position.ChangeFCash(m, notional.Neg()); err != nil {
			return nil, err
		}
		if err := localPf.Position.CreditCash(payment); err != nil {
			return nil, err
		}
		if liquidatorFCash != nil {
			if err := liquidatorFCash.ChangeFCash(m, notional); err != nil {
				return nil, err
			}
		}
		if liquidatorLocal != nil {
			if err := liquidatorLocal.DebitCash(payment); err != nil {
				return nil, err
			}
		}

		outcome.Transfers[i].Notional = notional
		outcome.NetLocalFromLiquidator = outcome.NetLocalFromLiquidator.Add(payment)

		remaining = remaining.Sub(notional.Mul(unitBenefit))
		localHeadroom = localHeadroom.Sub(payment)
		fCashHeadroom = fCashHeadroom.Sub(notional.Mul(unitRemoved))
	}

	if !outcome.NetLocalFromLiquidator.IsPositive() {
		return nil, NothingToLiquidate
	}
	return outcome, nil
}
