package core

import (
	"context"
	"sort"
	"time"

	"github.com/facebookgo/clock"
	"github.com/gofrs/uuid"
	"github.com/shopspring/decimal"
)

type (
	// CurrencyPosition is the working copy of everything one account holds
	// in one currency: the cash/nToken balance plus the portfolio entries.
	// Liquidation mutates positions in memory first and persists them only
	// after the post-liquidation checks pass.
	CurrencyPosition struct {
		clk clock.Clock `json:"-"`

		Currency *Currency         `json:"currency"`
		Balance  *Balance          `json:"balance"`
		Assets   []*PortfolioAsset `json:"assets"`
	}
)

type OptionFunc func(p *CurrencyPosition)

func WithClock(clk clock.Clock) OptionFunc {
	return func(p *CurrencyPosition) {
		p.clk = clk
	}
}

func NewCurrencyPosition(currency *Currency, balance *Balance, assets []*PortfolioAsset, opts ...OptionFunc) *CurrencyPosition {
	p := &CurrencyPosition{
		Currency: currency,
		Balance:  balance,
		Assets:   assets,
		clk:      clock.New(),
	}
	sortAssets(p.Assets)
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func FindOrCreateCurrencyPosition(ctx context.Context, clk clock.Clock, svc LedgerService, currency *Currency, account *Account) (*CurrencyPosition, error) {
	balance, err := FindOrCreateBalance(ctx, clk, svc, currency, account)
	if err != nil {
		return nil, err
	}

	assets, err := svc.ListAssetsByCurrency(ctx, account.Id, currency.Id)
	if err != nil {
		return nil, err
	}

	return NewCurrencyPosition(currency, balance, assets, WithClock(clk)), nil
}

func (p *CurrencyPosition) CreditCash(amount decimal.Decimal) error {
	if amount.IsNegative() {
		return MathError
	}
	p.Balance.ChangeCash(amount)
	p.Balance.LastUpdate = p.clk.Now().Unix()
	return nil
}

// DebitCash may drive the balance negative: the debit becomes debt in the
// currency.
func (p *CurrencyPosition) DebitCash(amount decimal.Decimal) error {
	if amount.IsNegative() {
		return MathError
	}
	p.Balance.ChangeCash(amount.Neg())
	p.Balance.LastUpdate = p.clk.Now().Unix()
	return nil
}

func (p *CurrencyPosition) CreditNTokens(amount decimal.Decimal) error {
	if amount.IsNegative() {
		return MathError
	}
	if err := p.Balance.ChangeNTokens(amount); err != nil {
		return err
	}
	p.Balance.LastUpdate = p.clk.Now().Unix()
	return nil
}

func (p *CurrencyPosition) DebitNTokens(amount decimal.Decimal) error {
	if amount.IsNegative() {
		return MathError
	}
	if err := p.Balance.ChangeNTokens(amount.Neg()); err != nil {
		return err
	}
	p.Balance.LastUpdate = p.clk.Now().Unix()
	return nil
}

func (p *CurrencyPosition) FCashAsset(maturity int64) *PortfolioAsset {
	return p.findAsset(maturity, AssetTypeFCash)
}

// LiquidityTokens returns the position's liquidity token entries, maturity
// ascending.
func (p *CurrencyPosition) LiquidityTokens() []*PortfolioAsset {
	tokens := make([]*PortfolioAsset, 0, len(p.Assets))
	for _, asset := range p.Assets {
		if asset.AssetType == AssetTypeLiquidityToken {
			tokens = append(tokens, asset)
		}
	}
	return tokens
}

func (p *CurrencyPosition) ChangeFCash(maturity int64, delta decimal.Decimal) error {
	return p.changeAsset(maturity, AssetTypeFCash, delta)
}

func (p *CurrencyPosition) ChangeLiquidityTokens(maturity int64, delta decimal.Decimal) error {
	return p.changeAsset(maturity, AssetTypeLiquidityToken, delta)
}

func (p *CurrencyPosition) findAsset(maturity int64, assetType AssetType) *PortfolioAsset {
	for _, asset := range p.Assets {
		if asset.Maturity == maturity && asset.AssetType == assetType {
			return asset
		}
	}
	return nil
}

func (p *CurrencyPosition) changeAsset(maturity int64, assetType AssetType, delta decimal.Decimal) error {
	asset := p.findAsset(maturity, assetType)
	if asset == nil {
		asset = NewPortfolioAsset(p.clk, p.Balance.AccountId, p.Currency.Id, maturity, assetType)
		p.Assets = append(p.Assets, asset)
		sortAssets(p.Assets)
	}
	if err := asset.ChangeNotional(delta); err != nil {
		return err
	}
	asset.LastUpdate = p.clk.Now().Unix()
	return nil
}

func sortAssets(assets []*PortfolioAsset) {
	sort.SliceStable(assets, func(i, j int) bool {
		if assets[i].Maturity != assets[j].Maturity {
			return assets[i].Maturity < assets[j].Maturity
		}
		return assets[i].AssetType < assets[j].AssetType
	})
}

type PositionWithFeed struct {
	Position *CurrencyPosition
	Feed     RateFeed
}

// LoadPositionsWithFeeds assembles one PositionWithFeed per currency the
// account holds, ordered by currency id ascending. Changed positions carry
// intra-call mutations and replace the stored state for their currency.
func LoadPositionsWithFeeds(ctx context.Context, clk clock.Clock, svc LedgerService, mgr RateFeedMgr, accountId uuid.UUID, changed ...*CurrencyPosition) ([]*PositionWithFeed, error) {
	changedMap := make(map[CurrencyID]*CurrencyPosition)
	for _, position := range changed {
		changedMap[position.Currency.Id] = position
	}

	balances, err := svc.ListBalances(ctx, accountId)
	if err != nil {
		return nil, err
	}

	assets, err := svc.ListAssets(ctx, accountId)
	if err != nil {
		return nil, err
	}

	balanceByCurrency := make(map[CurrencyID]*Balance, len(balances))
	for _, balance := range balances {
		balanceByCurrency[balance.Currency] = balance
	}
	assetsByCurrency := make(map[CurrencyID][]*PortfolioAsset)
	for _, asset := range assets {
		assetsByCurrency[asset.Currency] = append(assetsByCurrency[asset.Currency], asset)
	}

	currencyIds := make([]CurrencyID, 0, len(balanceByCurrency)+len(changedMap))
	seen := make(map[CurrencyID]bool)
	for id := range balanceByCurrency {
		if !seen[id] {
			seen[id] = true
			currencyIds = append(currencyIds, id)
		}
	}
	for id := range assetsByCurrency {
		if !seen[id] {
			seen[id] = true
			currencyIds = append(currencyIds, id)
		}
	}
	for id := range changedMap {
		if !seen[id] {
			seen[id] = true
			currencyIds = append(currencyIds, id)
		}
	}
	sort.Slice(currencyIds, func(i, j int) bool { return currencyIds[i] < currencyIds[j] })

	positions := make([]*PositionWithFeed, 0, len(currencyIds))
	for _, id := range currencyIds {
		if position, ok := changedMap[id]; ok {
			feed, err := mgr.GetRateFeed(position.Currency)
			if err != nil {
				return nil, err
			}
			positions = append(positions, &PositionWithFeed{Position: position, Feed: feed})
			continue
		}

		currency, err := svc.GetCurrency(ctx, id)
		if err != nil {
			return nil, err
		}
		feed, err := mgr.GetRateFeed(currency)
		if err != nil {
			return nil, err
		}

		balance := balanceByCurrency[id]
		if balance == nil {
			balance = NewBalance(clk, accountId, id)
		}

		positions = append(positions, &PositionWithFeed{
			Position: NewCurrencyPosition(currency, balance, assetsByCurrency[id], WithClock(clk)),
			Feed:     feed,
		})
	}

	return positions, nil
}

// NetLocalValue is the account's risk-adjusted value within this currency:
// cash, haircut nToken value, haircut/buffer discounted fCash present value
// and haircut liquidity token redemption value. Matured entries contribute
// nothing; settlement is a separate flow.
func (pf *PositionWithFeed) NetLocalValue(asOf time.Time) (decimal.Decimal, error) {
	cfg := pf.Position.Currency.CurrencyConfig
	netLocal := pf.Position.Balance.Cash

	if pf.Position.Balance.NTokens.GreaterThan(ZERO_AMOUNT_THRESHOLD) {
		nTokenValue, err := pf.Feed.NTokenValue()
		if err != nil {
			return decimal.Zero, err
		}
		netLocal = netLocal.Add(pf.Position.Balance.NTokens.Mul(nTokenValue).Mul(cfg.NTokenHaircut))
	}

	for _, asset := range pf.Position.Assets {
		if asset.Notional.IsZero() || asset.IsMatured(asOf) {
			continue
		}
		bucket := cfg.HaircutFor(asset.Maturity - asOf.Unix())

		switch asset.AssetType {
		case AssetTypeFCash:
			pv, err := pf.Feed.PresentValue(asset.Maturity, asset.Notional, asOf)
			if err != nil {
				return decimal.Zero, err
			}
			if asset.Notional.IsPositive() {
				netLocal = netLocal.Add(pv.Mul(bucket.Haircut))
			} else {
				netLocal = netLocal.Add(pv.Mul(bucket.Buffer))
			}
		case AssetTypeLiquidityToken:
			cashClaim, fCashClaim, err := pf.Feed.LiquidityTokenClaims(asset.Maturity)
			if err != nil {
				return decimal.Zero, err
			}
			pvOne, err := pf.Feed.PresentValue(asset.Maturity, ONE, asOf)
			if err != nil {
				return decimal.Zero, err
			}
			unitValue := cashClaim.Add(pvOne.Mul(fCashClaim).Mul(bucket.Haircut))
			netLocal = netLocal.Add(asset.Notional.Mul(unitValue).Mul(cfg.LiquidityTokenHaircut))
		}
	}

	return netLocal, nil
}

// WeightedBaseValue converts the net local value to base units, applying
// the collateral haircut when positive and the debt buffer when negative.
func (pf *PositionWithFeed) WeightedBaseValue(asOf time.Time) (decimal.Decimal, decimal.Decimal, error) {
	netLocal, err := pf.NetLocalValue(asOf)
	if err != nil {
		return decimal.Zero, decimal.Zero, err
	}

	rate, err := pf.Feed.UnderlyingRate()
	if err != nil {
		return decimal.Zero, decimal.Zero, err
	}

	cfg := pf.Position.Currency.CurrencyConfig
	weight := cfg.CollateralHaircut
	if netLocal.IsNegative() {
		weight = cfg.DebtBuffer
	}

	baseValue, err := CalcValue(netLocal, rate, &weight)
	if err != nil {
		return decimal.Zero, decimal.Zero, err
	}
	return netLocal, baseValue, nil
}
