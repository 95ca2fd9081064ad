package core

import (
	"context"

	"github.com/gofrs/uuid"
	"github.com/shopspring/decimal"
)

// CalculateLocalCurrencyLiquidation sizes a local currency liquidation
// without executing it. The returned outcome matches what
// LiquidateLocalCurrency would transfer under the same ledger state.
func (e *LiquidationEngine) CalculateLocalCurrencyLiquidation(ctx context.Context, accountId uuid.UUID, currency CurrencyID, maxNTokenLiquidation decimal.Decimal) (*LocalCurrencyOutcome, error) {
	run, err := e.prepareAccount(ctx, LiquidationModeLocalCurrency, accountId)
	if err != nil {
		return nil, err
	}

	outcome, err := e.computeLocalCurrency(ctx, run, currency, maxNTokenLiquidation)
	if err != nil {
		return nil, err
	}

	if _, err := e.verifyAccount(run); err != nil {
		return nil, err
	}
	return outcome, nil
}

// LiquidateLocalCurrency repays part of the account's debt in a single
// currency. The liquidator supplies cash and receives the account's nTokens
// at the liquidation haircut; liquidity token withdrawals run first and pay
// the liquidator the repo incentive out of the freed cash claim.
func (e *LiquidationEngine) LiquidateLocalCurrency(ctx context.Context, liquidatorId, accountId uuid.UUID, currency CurrencyID, maxNTokenLiquidation decimal.Decimal) (*LocalCurrencyOutcome, error) {
	run, err := e.prepareLiquidation(ctx, LiquidationModeLocalCurrency, liquidatorId, accountId)
	if err != nil {
		return nil, e.reject(LiquidationModeLocalCurrency, err)
	}

	outcome, err := e.computeLocalCurrency(ctx, run, currency, maxNTokenLiquidation)
	if err != nil {
		return nil, e.reject(LiquidationModeLocalCurrency, err)
	}

	if err := e.verifyAndPersist(ctx, run, outcome.NetLocalFromLiquidator); err != nil {
		return nil, e.reject(LiquidationModeLocalCurrency, err)
	}
	return outcome, nil
}

func (e *LiquidationEngine) computeLocalCurrency(ctx context.Context, run *liquidationRun, currencyId CurrencyID, maxNTokenLiquidation decimal.Decimal) (*LocalCurrencyOutcome, error) {
	netLocal := run.pre.NetLocalIn(currencyId)
	if !netLocal.IsNegative() {
		return nil, NothingToLiquidate
	}

	pf := run.engine.PositionIn(currencyId)
	if pf == nil {
		return nil, NothingToLiquidate
	}
	position := pf.Position
	cfg := position.Currency.CurrencyConfig
	prec := position.Currency.Precision

	rate, err := pf.Feed.UnderlyingRate()
	if err != nil {
		return nil, err
	}

	// Local value needed to lift aggregate free collateral back to zero. Each
	// local unit of repaid debt releases rate * DebtBuffer of base value. The
	// shortfall target rounds up so an uncapped liquidation fully restores
	// the account, while the headroom to the debt itself is a hard bound the
	// transfers may never round across.
	remaining, err := DivCeil(run.pre.Shortfall(), rate.Mul(cfg.DebtBuffer), prec)
	if err != nil {
		return nil, err
	}
	headroom := netLocal.Neg()
	if remaining.GreaterThan(headroom) {
		remaining = headroom
	}

	var liquidatorPosition *CurrencyPosition
	if run.liquidator != nil {
		liquidatorPosition, err = e.liquidatorPosition(ctx, run, position.Currency)
		if err != nil {
			return nil, err
		}
	}

	outcome := &LocalCurrencyOutcome{
		Currency:               currencyId,
		NetLocalFromLiquidator: decimal.Zero,
		NetNTokenTransfer:      decimal.Zero,
		NetCashToLiquidator:    decimal.Zero,
	}
	run.touch(position)

	// Step 1: withdraw liquidity tokens, nearest maturity first. The claims
	// return to the account, the liquidator earns the repo incentive on the
	// cash claim.
	for _, asset := range position.LiquidityTokens() {
		if !remaining.IsPositive() {
			break
		}
		if asset.IsMatured(run.asOf) || !asset.Notional.IsPositive() {
			continue
		}

		cashClaim, fCashClaim, err := pf.Feed.LiquidityTokenClaims(asset.Maturity)
		if err != nil {
			return nil, err
		}
		pvOne, err := pf.Feed.PresentValue(asset.Maturity, ONE, run.asOf)
		if err != nil {
			return nil, err
		}
		bucket := cfg.HaircutFor(asset.Maturity - run.asOf.Unix())

		unitValue := cashClaim.Add(pvOne.Mul(fCashClaim).Mul(bucket.Haircut))
		unitBenefit := unitValue.Mul(ONE.Sub(cfg.LiquidityTokenHaircut)).Sub(cashClaim.Mul(cfg.TokenRepoIncentive))
		if !unitBenefit.IsPositive() {
			continue
		}

		tokens, err := DivCeil(remaining, unitBenefit, prec)
		if err != nil {
			return nil, err
		}
		headroomCap, err := DivFloor(headroom, unitBenefit, prec)
		if err != nil {
			return nil, err
		}
		if tokens.GreaterThan(headroomCap) {
			tokens = headroomCap
		}
		portionCap := MulFloor(asset.Notional, cfg.LiquidationPortion, prec)
		if tokens.GreaterThan(portionCap) {
			tokens = portionCap
		}
		if !tokens.IsPositive() {
			continue
		}

		cash := MulFloor(tokens, cashClaim, prec)
		fCash := MulFloor(tokens, fCashClaim, prec)
		incentive := MulFloor(cash, cfg.TokenRepoIncentive, prec)

		if err := position.ChangeLiquidityTokens(asset.Maturity, tokens.Neg()); err != nil {
			return nil, err
		}
		if err := position.CreditCash(cash.Sub(incentive)); err != nil {
			return nil, err
		}
		if err := position.ChangeFCash(asset.Maturity, fCash); err != nil {
			return nil, err
		}
		if liquidatorPosition != nil {
			if err := liquidatorPosition.CreditCash(incentive); err != nil {
				return nil, err
			}
		}

		outcome.NetLocalFromLiquidator = outcome.NetLocalFromLiquidator.Sub(incentive)
		outcome.NetCashToLiquidator = outcome.NetCashToLiquidator.Add(incentive)
		outcome.TokensWithdrawn = append(outcome.TokensWithdrawn, TokenWithdrawal{
			Maturity: asset.Maturity,
			Tokens:   tokens,
		})
		applied := tokens.Mul(unitBenefit)
		remaining = remaining.Sub(applied)
		headroom = headroom.Sub(applied)
	}

	// Step 2: sell nTokens to the liquidator at the liquidation haircut.
	unitBenefit := decimal.Zero
	nTokenValue := decimal.Zero
	if remaining.IsPositive() && position.Balance.NTokens.IsPositive() {
		nTokenValue, err = pf.Feed.NTokenValue()
		if err != nil {
			return nil, err
		}
		unitBenefit = nTokenValue.Mul(cfg.NTokenLiquidationHaircut.Sub(cfg.NTokenHaircut))
	}
	if unitBenefit.IsPositive() {
		tokens, err := DivCeil(remaining, unitBenefit, prec)
		if err != nil {
			return nil, err
		}
		headroomCap, err := DivFloor(headroom, unitBenefit, prec)
		if err != nil {
			return nil, err
		}
		if tokens.GreaterThan(headroomCap) {
			tokens = headroomCap
		}
		portionCap := MulFloor(position.Balance.NTokens, cfg.LiquidationPortion, prec)
		if tokens.GreaterThan(portionCap) {
			tokens = portionCap
		}
		if maxNTokenLiquidation.IsPositive() && tokens.GreaterThan(maxNTokenLiquidation) {
			e.log.Warn().Msgf("nToken transfer capped: %s (%s calculated)", maxNTokenLiquidation, tokens)
			tokens = maxNTokenLiquidation
		}

		if tokens.IsPositive() {
			cashOutlay := MulFloor(tokens.Mul(nTokenValue), cfg.NTokenLiquidationHaircut, prec)

			if err := position.DebitNTokens(tokens); err != nil {
				return nil, err
			}
			if err := position.CreditCash(cashOutlay); err != nil {
				return nil, err
			}
			if liquidatorPosition != nil {
				if err := liquidatorPosition.CreditNTokens(tokens); err != nil {
					return nil, err
				}
				if err := liquidatorPosition.DebitCash(cashOutlay); err != nil {
					return nil, err
				}
			}

			outcome.NetLocalFromLiquidator = outcome.NetLocalFromLiquidator.Add(cashOutlay)
			outcome.NetNTokenTransfer = tokens
		}
	}

	if len(outcome.TokensWithdrawn) == 0 && outcome.NetNTokenTransfer.IsZero() {
		return nil, NothingToLiquidate
	}
	return outcome, nil
}
