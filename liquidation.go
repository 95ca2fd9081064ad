package core

import (
	"context"
	"time"

	"github.com/facebookgo/clock"
	"github.com/gofrs/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type LiquidationMode uint8

const (
	LiquidationModeLocalCurrency LiquidationMode = iota + 1
	LiquidationModeCollateralCurrency
	LiquidationModeLocalFCash
	LiquidationModeCrossCurrencyFCash
)

func (m LiquidationMode) String() string {
	switch m {
	case LiquidationModeLocalCurrency:
		return "Local Currency"
	case LiquidationModeCollateralCurrency:
		return "Collateral Currency"
	case LiquidationModeLocalFCash:
		return "Local fCash"
	case LiquidationModeCrossCurrencyFCash:
		return "Cross Currency fCash"
	default:
		return "Unknown"
	}
}

type (
	// TokenWithdrawal reports liquidity token units removed from one maturity
	// during a local currency liquidation.
	TokenWithdrawal struct {
		Maturity int64           `json:"maturity"`
		Tokens   decimal.Decimal `json:"tokens"`
	}

	LocalCurrencyOutcome struct {
		Currency               CurrencyID        `json:"currency"`
		NetLocalFromLiquidator decimal.Decimal   `json:"netLocalFromLiquidator"`
		NetNTokenTransfer      decimal.Decimal   `json:"netNTokenTransfer"`
		NetCashToLiquidator    decimal.Decimal   `json:"netCashToLiquidator"`
		TokensWithdrawn        []TokenWithdrawal `json:"tokensWithdrawn,omitempty"`
	}

	CollateralCurrencyOutcome struct {
		LocalCurrency          CurrencyID      `json:"localCurrency"`
		CollateralCurrency     CurrencyID      `json:"collateralCurrency"`
		NetLocalFromLiquidator decimal.Decimal `json:"netLocalFromLiquidator"`
		NetCollateralTransfer  decimal.Decimal `json:"netCollateralTransfer"`
		NetNTokenTransfer      decimal.Decimal `json:"netNTokenTransfer"`
	}

	// FCashTransfer is one maturity's notional moved to the liquidator,
	// positionally aligned with the maturities the caller passed in.
	FCashTransfer struct {
		Maturity int64           `json:"maturity"`
		Notional decimal.Decimal `json:"notional"`
	}

	FCashOutcome struct {
		LocalCurrency          CurrencyID      `json:"localCurrency"`
		FCashCurrency          CurrencyID      `json:"fCashCurrency"`
		NetLocalFromLiquidator decimal.Decimal `json:"netLocalFromLiquidator"`
		Transfers              []FCashTransfer `json:"transfers"`
	}
)

// LiquidationEngine drives the four liquidation modes against an account in
// shortfall. Every mode runs the same lifecycle: check the account is
// undercollateralized, size the transfers from the shortfall, apply them to
// in-memory position copies, re-check the account, and only then persist.
type LiquidationEngine struct {
	svc     LedgerService
	mgr     RateFeedMgr
	clk     clock.Clock
	log     Log
	metrics *Metrics
}

// EngOptFunc is a function that can be used to modify a liquidation engine
type EngOptFunc func(e *LiquidationEngine)

func WithEngineClock(clk clock.Clock) EngOptFunc {
	return func(e *LiquidationEngine) {
		e.clk = clk
	}
}

func WithEngineLog(log Log) EngOptFunc {
	return func(e *LiquidationEngine) {
		e.log = log
	}
}

func WithEngineMetrics(metrics *Metrics) EngOptFunc {
	return func(e *LiquidationEngine) {
		e.metrics = metrics
	}
}

func NewLiquidationEngine(svc LedgerService, mgr RateFeedMgr, opts ...EngOptFunc) *LiquidationEngine {
	logger := NewLogger("liquidation")
	e := &LiquidationEngine{
		svc: svc,
		mgr: mgr,
		clk: clock.New(),
		log: &logger,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// GetFreeCollateral values the account at the engine clock's current time.
func (e *LiquidationEngine) GetFreeCollateral(ctx context.Context, accountId uuid.UUID) (*FreeCollateral, error) {
	account, err := e.getAccount(ctx, accountId)
	if err != nil {
		return nil, err
	}

	engine, err := NewRiskEngine(ctx, e.clk, e.svc, e.mgr, account)
	if err != nil {
		return nil, err
	}

	fc, err := engine.FreeCollateral(e.clk.Now())
	if err != nil {
		return nil, err
	}

	e.metrics.CountFreeCollateralCheck()
	return fc, nil
}

func (e *LiquidationEngine) getAccount(ctx context.Context, accountId uuid.UUID) (*Account, error) {
	account, err := e.svc.GetAccountById(ctx, accountId)
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, AccountNotFound
		}
		return nil, err
	}
	return account, nil
}

// liquidationRun carries the state one liquidation call threads through its
// lifecycle. The liquidator fields stay nil on calculate-only runs.
type liquidationRun struct {
	mode       LiquidationMode
	asOf       time.Time
	account    *Account
	liquidator *Account
	engine     *RiskEngine
	pre        *FreeCollateral

	liquidatorPositions []*CurrencyPosition
	changed             []*CurrencyPosition
}

// prepareAccount loads the liquidated account and proves it is in shortfall.
func (e *LiquidationEngine) prepareAccount(ctx context.Context, mode LiquidationMode, accountId uuid.UUID) (*liquidationRun, error) {
	account, err := e.getAccount(ctx, accountId)
	if err != nil {
		return nil, err
	}

	asOf := e.clk.Now()
	engine, err := NewRiskEngine(ctx, e.clk, e.svc, e.mgr, account)
	if err != nil {
		return nil, err
	}

	pre, err := engine.CheckPreLiquidationConditionAndGetFreeCollateral(asOf)
	if err != nil {
		return nil, err
	}
	e.log.Debug().Msgf("freeCollateral: %s, shortfall: %s", pre.Aggregate, pre.Shortfall())

	return &liquidationRun{
		mode:    mode,
		asOf:    asOf,
		account: account,
		engine:  engine,
		pre:     pre,
	}, nil
}

// prepareLiquidation extends prepareAccount with the liquidator-side checks
// an executing call needs.
func (e *LiquidationEngine) prepareLiquidation(ctx context.Context, mode LiquidationMode, liquidatorId, accountId uuid.UUID) (*liquidationRun, error) {
	if liquidatorId == accountId {
		return nil, SelfLiquidationNotAllowed
	}

	liquidator, err := e.getAccount(ctx, liquidatorId)
	if err != nil {
		return nil, err
	}
	if liquidator.GetFlag(DisabledFlag) {
		return nil, AccountDisabled
	}

	run, err := e.prepareAccount(ctx, mode, accountId)
	if err != nil {
		return nil, err
	}
	run.liquidator = liquidator
	return run, nil
}

// liquidatorPosition loads (or creates) the liquidator's working copy in a
// currency and registers it for the post-run solvency check and persist.
func (e *LiquidationEngine) liquidatorPosition(ctx context.Context, run *liquidationRun, currency *Currency) (*CurrencyPosition, error) {
	for _, position := range run.liquidatorPositions {
		if position.Currency.Id == currency.Id {
			return position, nil
		}
	}

	position, err := FindOrCreateCurrencyPosition(ctx, e.clk, e.svc, currency, run.liquidator)
	if err != nil {
		return nil, err
	}
	run.liquidatorPositions = append(run.liquidatorPositions, position)
	run.changed = append(run.changed, position)
	return position, nil
}

func (run *liquidationRun) touch(position *CurrencyPosition) {
	for _, p := range run.changed {
		if p == position {
			return
		}
	}
	run.changed = append(run.changed, position)
}

// verifyAccount re-values the liquidated account over the mutated positions
// and enforces the post-liquidation conditions.
func (e *LiquidationEngine) verifyAccount(run *liquidationRun) (*FreeCollateral, error) {
	return run.engine.CheckPostLiquidationConditionAndGetFreeCollateral(run.asOf, run.pre)
}

// verifyLiquidator checks the liquidator can carry the cash they just paid
// out. The check only runs when a cash balance was driven negative; a
// liquidator paying out of positive balances takes on no new debt.
func (e *LiquidationEngine) verifyLiquidator(ctx context.Context, run *liquidationRun) error {
	wentNegative := false
	for _, position := range run.liquidatorPositions {
		if position.Balance.Cash.IsNegative() {
			wentNegative = true
			break
		}
	}
	if !wentNegative {
		return nil
	}

	engine, err := NewRiskEngine(ctx, e.clk, e.svc, e.mgr, run.liquidator, run.liquidatorPositions...)
	if err != nil {
		return err
	}
	fc, err := engine.FreeCollateral(run.asOf)
	if err != nil {
		return err
	}
	if fc.Aggregate.IsNegative() {
		return LiquidatorUndercollateralized
	}
	return nil
}

// verifyAndPersist runs the post-liquidation checks and, only when every one
// of them passes, writes the mutated positions back through the stores.
func (e *LiquidationEngine) verifyAndPersist(ctx context.Context, run *liquidationRun, netLocalRepaid decimal.Decimal) error {
	post, err := e.verifyAccount(run)
	if err != nil {
		return err
	}

	if err := e.verifyLiquidator(ctx, run); err != nil {
		return err
	}

	for _, position := range run.changed {
		if position.Balance.IsEmpty() {
			position.Balance.EmptyDeactivated(e.clk)
		}
		if err := e.svc.UpsertBalance(ctx, position.Balance); err != nil {
			return err
		}
		for _, asset := range position.Assets {
			if err := e.svc.UpsertAsset(ctx, asset); err != nil {
				return err
			}
		}
	}

	e.metrics.CountLiquidationExecuted(run.mode)
	e.metrics.ObserveNetLocalRepaid(run.mode, netLocalRepaid)

	e.log.Info().Msgf("liquidated account %s via %s: netLocalFromLiquidator: %s, freeCollateral: %s -> %s",
		run.account.Id, run.mode, netLocalRepaid, run.pre.Aggregate, post.Aggregate)
	return nil
}

func (e *LiquidationEngine) reject(mode LiquidationMode, err error) error {
	e.metrics.CountLiquidationRejected(mode, rejectReason(err))
	return err
}

func rejectReason(err error) string {
	switch err {
	case InsufficientShortfall:
		return "insufficient_shortfall"
	case NothingToLiquidate:
		return "nothing_to_liquidate"
	case InvalidCurrencyPair:
		return "invalid_currency_pair"
	case ArgumentLengthMismatch:
		return "argument_length_mismatch"
	case OverLiquidationRejected:
		return "over_liquidation"
	case LiquidationNotBeneficial:
		return "not_beneficial"
	case LiquidatorUndercollateralized:
		return "liquidator_undercollateralized"
	case SelfLiquidationNotAllowed:
		return "self_liquidation"
	case AccountDisabled:
		return "account_disabled"
	case InvalidMaturity:
		return "invalid_maturity"
	default:
		return "error"
	}
}
