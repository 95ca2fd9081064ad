package store

import (
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"

	"github.com/tenorfi/core"
)

type (
	claimKey struct {
		currency core.CurrencyID
		maturity int64
	}

	tokenClaims struct {
		cash  decimal.Decimal
		fCash decimal.Decimal
	}
)

// RateBook is a hand-fed rate source. Underlying exchange rates, annualized
// term discount rates, nToken unit values and liquidity token claims are set
// by the operator (or a test) and served to the engine through the RateFeed
// interface. Present value follows simple linear discounting over time to
// maturity; a matured claim is worth its face value.
type RateBook struct {
	mtx sync.RWMutex

	underlying  map[core.CurrencyID]decimal.Decimal
	discount    map[core.CurrencyID]decimal.Decimal
	nTokenValue map[core.CurrencyID]decimal.Decimal
	claims      map[claimKey]tokenClaims
}

func NewRateBook() *RateBook {
	return &RateBook{
		underlying:  make(map[core.CurrencyID]decimal.Decimal),
		discount:    make(map[core.CurrencyID]decimal.Decimal),
		nTokenValue: make(map[core.CurrencyID]decimal.Decimal),
		claims:      make(map[claimKey]tokenClaims),
	}
}

// SetUnderlyingRate fixes the currency's exchange rate against the base
// currency: base units per local unit.
func (b *RateBook) SetUnderlyingRate(currency core.CurrencyID, rate decimal.Decimal) {
	b.mtx.Lock()
	defer b.mtx.Unlock()
	b.underlying[currency] = rate
}

// SetDiscountRate fixes the annualized rate used to discount fCash notional
// back to present value. Unset currencies discount at zero.
func (b *RateBook) SetDiscountRate(currency core.CurrencyID, rate decimal.Decimal) {
	b.mtx.Lock()
	defer b.mtx.Unlock()
	b.discount[currency] = rate
}

func (b *RateBook) SetNTokenValue(currency core.CurrencyID, value decimal.Decimal) {
	b.mtx.Lock()
	defer b.mtx.Unlock()
	b.nTokenValue[currency] = value
}

// SetLiquidityTokenClaims fixes the per-unit cash and fCash claims one
// liquidity token of the given maturity redeems into.
func (b *RateBook) SetLiquidityTokenClaims(currency core.CurrencyID, maturity int64, cashClaim, fCashClaim decimal.Decimal) {
	b.mtx.Lock()
	defer b.mtx.Unlock()
	b.claims[claimKey{currency: currency, maturity: maturity}] = tokenClaims{cash: cashClaim, fCash: fCashClaim}
}

func (b *RateBook) GetRateFeed(currency *core.Currency) (core.RateFeed, error) {
	if currency == nil {
		return nil, errors.New("rate feed requested for nil currency")
	}
	return &bookFeed{book: b, currency: currency.Id}, nil
}

type bookFeed struct {
	book     *RateBook
	currency core.CurrencyID
}

func (f *bookFeed) UnderlyingRate() (decimal.Decimal, error) {
	f.book.mtx.RLock()
	defer f.book.mtx.RUnlock()

	rate, ok := f.book.underlying[f.currency]
	if !ok {
		return decimal.Zero, errors.Errorf("no underlying rate for currency %d", f.currency)
	}
	if !rate.IsPositive() {
		return decimal.Zero, errors.Errorf("non-positive underlying rate for currency %d", f.currency)
	}
	return rate, nil
}

func (f *bookFeed) PresentValue(maturity int64, notional decimal.Decimal, asOf time.Time) (decimal.Decimal, error) {
	timeToMaturity := maturity - asOf.Unix()
	if timeToMaturity <= 0 {
		return notional, nil
	}

	f.book.mtx.RLock()
	rate := f.book.discount[f.currency]
	f.book.mtx.RUnlock()

	if rate.IsZero() {
		return notional, nil
	}

	fraction, err := core.DivFloor(rate.Mul(decimal.NewFromInt(timeToMaturity)), decimal.NewFromInt(core.SECONDS_PER_YEAR), core.RATE_PRECISION)
	if err != nil {
		return decimal.Zero, err
	}
	return core.DivFloor(notional, core.ONE.Add(fraction), core.RATE_PRECISION)
}

func (f *bookFeed) NTokenValue() (decimal.Decimal, error) {
	f.book.mtx.RLock()
	defer f.book.mtx.RUnlock()

	value, ok := f.book.nTokenValue[f.currency]
	if !ok {
		return decimal.Zero, errors.Errorf("no nToken value for currency %d", f.currency)
	}
	return value, nil
}

func (f *bookFeed) LiquidityTokenClaims(maturity int64) (decimal.Decimal, decimal.Decimal, error) {
	f.book.mtx.RLock()
	defer f.book.mtx.RUnlock()

	claims, ok := f.book.claims[claimKey{currency: f.currency, maturity: maturity}]
	if !ok {
		return decimal.Zero, decimal.Zero, errors.Errorf("no liquidity token claims for currency %d maturity %d", f.currency, maturity)
	}
	return claims.cash, claims.fCash, nil
}
