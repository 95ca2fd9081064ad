package core

import (
	"context"
	"time"

	"github.com/facebookgo/clock"
	"github.com/gofrs/uuid"
	"github.com/shopspring/decimal"
)

type (
	PortfolioStore interface {
		FindAsset(ctx context.Context, accountId uuid.UUID, currency CurrencyID, maturity int64, assetType AssetType) (*PortfolioAsset, error)
		// UpsertAsset persists the asset; a zero notional removes the row.
		UpsertAsset(ctx context.Context, asset *PortfolioAsset) error
		ListAssets(ctx context.Context, accountId uuid.UUID) ([]*PortfolioAsset, error)
		ListAssetsByCurrency(ctx context.Context, accountId uuid.UUID, currency CurrencyID) ([]*PortfolioAsset, error)
	}

	// PortfolioAsset is identified per account by (currency, maturity,
	// assetType). fCash notional is signed: positive is a claim, negative
	// an obligation. Liquidity token notional is a unit count, never
	// negative.
	PortfolioAsset struct {
		AccountId uuid.UUID  `json:"accountId"`
		Currency  CurrencyID `json:"currency"`
		Maturity  int64      `json:"maturity"`
		AssetType AssetType  `json:"assetType"`

		Notional   decimal.Decimal `json:"notional"`
		LastUpdate int64           `json:"lastUpdate"`
	}
)

type AssetType uint8

const (
	AssetTypeFCash AssetType = iota + 1
	AssetTypeLiquidityToken
)

func (at AssetType) String() string {
	switch at {
	case AssetTypeFCash:
		return "FCash"
	case AssetTypeLiquidityToken:
		return "LiquidityToken"
	default:
		return "Unknown"
	}
}

func NewPortfolioAsset(clk clock.Clock, accountId uuid.UUID, currency CurrencyID, maturity int64, assetType AssetType) *PortfolioAsset {
	return &PortfolioAsset{
		AccountId:  accountId,
		Currency:   currency,
		Maturity:   maturity,
		AssetType:  assetType,
		Notional:   decimal.Zero,
		LastUpdate: clk.Now().Unix(),
	}
}

func (a *PortfolioAsset) Clone() *PortfolioAsset {
	clone := *a
	return &clone
}

func (a *PortfolioAsset) IsMatured(asOf time.Time) bool {
	return a.Maturity <= asOf.Unix()
}

func (a *PortfolioAsset) ChangeNotional(delta decimal.Decimal) error {
	notional := a.Notional.Add(delta)
	if a.AssetType == AssetTypeLiquidityToken && notional.LessThan(decimal.Zero) {
		return IllegalBalanceState
	}
	a.Notional = notional
	return nil
}
