package store

import (
	"context"
	"sort"
	"sync"

	"github.com/facebookgo/clock"
	"github.com/gofrs/uuid"
	"gorm.io/gorm"

	"github.com/tenorfi/core"
)

type (
	accountKey struct {
		pubKey string
		index  uint8
	}

	balanceKey struct {
		accountId uuid.UUID
		currency  core.CurrencyID
	}

	assetKey struct {
		accountId uuid.UUID
		currency  core.CurrencyID
		maturity  int64
		assetType core.AssetType
	}
)

// Memory is an in-memory ledger store. It satisfies every store interface
// the engine consumes and mirrors the error contract of the SQL stores:
// missing rows surface gorm.ErrRecordNotFound, duplicate creates surface
// gorm.ErrDuplicatedKey. All reads hand out copies.
type Memory struct {
	mtx sync.RWMutex
	clk clock.Clock

	accounts   map[uuid.UUID]*core.Account
	accountIds map[accountKey]uuid.UUID
	currencies map[core.CurrencyID]*core.Currency
	balances   map[balanceKey]*core.Balance
	assets     map[assetKey]*core.PortfolioAsset
}

type MemoryOption func(m *Memory)

func WithClock(clk clock.Clock) MemoryOption {
	return func(m *Memory) {
		m.clk = clk
	}
}

func NewMemory(opts ...MemoryOption) *Memory {
	m := &Memory{
		clk:        clock.New(),
		accounts:   make(map[uuid.UUID]*core.Account),
		accountIds: make(map[accountKey]uuid.UUID),
		currencies: make(map[core.CurrencyID]*core.Currency),
		balances:   make(map[balanceKey]*core.Balance),
		assets:     make(map[assetKey]*core.PortfolioAsset),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *Memory) GetAccountById(ctx context.Context, accountId uuid.UUID) (*core.Account, error) {
	m.mtx.RLock()
	defer m.mtx.RUnlock()

	account, ok := m.accounts[accountId]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	cp := *account
	return &cp, nil
}

func (m *Memory) GetAccountByPubkey(ctx context.Context, pubkey string, index uint8) (*core.Account, error) {
	m.mtx.RLock()
	defer m.mtx.RUnlock()

	id, ok := m.accountIds[accountKey{pubKey: pubkey, index: index}]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	cp := *m.accounts[id]
	return &cp, nil
}

func (m *Memory) CreateAccount(ctx context.Context, account *core.Account) error {
	m.mtx.Lock()
	defer m.mtx.Unlock()

	key := accountKey{pubKey: account.PubKey, index: account.Index}
	if _, ok := m.accounts[account.Id]; ok {
		return gorm.ErrDuplicatedKey
	}
	if _, ok := m.accountIds[key]; ok {
		return gorm.ErrDuplicatedKey
	}

	cp := *account
	m.accounts[account.Id] = &cp
	m.accountIds[key] = account.Id
	return nil
}

func (m *Memory) UpsertAccount(ctx context.Context, account *core.Account) error {
	m.mtx.Lock()
	defer m.mtx.Unlock()

	cp := *account
	m.accounts[account.Id] = &cp
	m.accountIds[accountKey{pubKey: account.PubKey, index: account.Index}] = account.Id
	return nil
}

func (m *Memory) CreateCurrency(ctx context.Context, currency *core.Currency) error {
	m.mtx.Lock()
	defer m.mtx.Unlock()

	if _, ok := m.currencies[currency.Id]; ok {
		return gorm.ErrDuplicatedKey
	}
	m.currencies[currency.Id] = currency.Clone()
	return nil
}

func (m *Memory) GetCurrency(ctx context.Context, id core.CurrencyID) (*core.Currency, error) {
	m.mtx.RLock()
	defer m.mtx.RUnlock()

	currency, ok := m.currencies[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return currency.Clone(), nil
}

func (m *Memory) ListCurrencies(ctx context.Context) ([]*core.Currency, error) {
	m.mtx.RLock()
	defer m.mtx.RUnlock()

	currencies := make([]*core.Currency, 0, len(m.currencies))
	for _, currency := range m.currencies {
		currencies = append(currencies, currency.Clone())
	}
	sort.Slice(currencies, func(i, j int) bool { return currencies[i].Id < currencies[j].Id })
	return currencies, nil
}

func (m *Memory) UpdateCurrencyConfig(ctx context.Context, id core.CurrencyID, config *core.CurrencyConfig) error {
	m.mtx.Lock()
	defer m.mtx.Unlock()

	currency, ok := m.currencies[id]
	if !ok {
		return gorm.ErrRecordNotFound
	}

	updated := currency.Clone()
	if err := updated.Configure(m.clk, config); err != nil {
		return err
	}
	m.currencies[id] = updated
	return nil
}

func (m *Memory) FindBalance(ctx context.Context, currency core.CurrencyID, accountId uuid.UUID) (*core.Balance, error) {
	m.mtx.RLock()
	defer m.mtx.RUnlock()

	balance, ok := m.balances[balanceKey{accountId: accountId, currency: currency}]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return balance.Clone(), nil
}

func (m *Memory) UpsertBalance(ctx context.Context, balance *core.Balance) error {
	m.mtx.Lock()
	defer m.mtx.Unlock()

	m.balances[balanceKey{accountId: balance.AccountId, currency: balance.Currency}] = balance.Clone()
	return nil
}

func (m *Memory) ListBalances(ctx context.Context, accountId uuid.UUID) ([]*core.Balance, error) {
	m.mtx.RLock()
	defer m.mtx.RUnlock()

	balances := make([]*core.Balance, 0)
	for key, balance := range m.balances {
		if key.accountId == accountId {
			balances = append(balances, balance.Clone())
		}
	}
	sort.Slice(balances, func(i, j int) bool { return balances[i].Currency < balances[j].Currency })
	return balances, nil
}

func (m *Memory) FindAsset(ctx context.Context, accountId uuid.UUID, currency core.CurrencyID, maturity int64, assetType core.AssetType) (*core.PortfolioAsset, error) {
	m.mtx.RLock()
	defer m.mtx.RUnlock()

	asset, ok := m.assets[assetKey{accountId: accountId, currency: currency, maturity: maturity, assetType: assetType}]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return asset.Clone(), nil
}

func (m *Memory) UpsertAsset(ctx context.Context, asset *core.PortfolioAsset) error {
	m.mtx.Lock()
	defer m.mtx.Unlock()

	key := assetKey{accountId: asset.AccountId, currency: asset.Currency, maturity: asset.Maturity, assetType: asset.AssetType}
	if asset.Notional.IsZero() {
		delete(m.assets, key)
		return nil
	}
	m.assets[key] = asset.Clone()
	return nil
}

func (m *Memory) ListAssets(ctx context.Context, accountId uuid.UUID) ([]*core.PortfolioAsset, error) {
	m.mtx.RLock()
	defer m.mtx.RUnlock()

	assets := make([]*core.PortfolioAsset, 0)
	for key, asset := range m.assets {
		if key.accountId == accountId {
			assets = append(assets, asset.Clone())
		}
	}
	sortAssets(assets)
	return assets, nil
}

func (m *Memory) ListAssetsByCurrency(ctx context.Context, accountId uuid.UUID, currency core.CurrencyID) ([]*core.PortfolioAsset, error) {
	m.mtx.RLock()
	defer m.mtx.RUnlock()

	assets := make([]*core.PortfolioAsset, 0)
	for key, asset := range m.assets {
		if key.accountId == accountId && key.currency == currency {
			assets = append(assets, asset.Clone())
		}
	}
	sortAssets(assets)
	return assets, nil
}

func sortAssets(assets []*core.PortfolioAsset) {
	sort.Slice(assets, func(i, j int) bool {
		if assets[i].Currency != assets[j].Currency {
			return assets[i].Currency < assets[j].Currency
		}
		if assets[i].Maturity != assets[j].Maturity {
			return assets[i].Maturity < assets[j].Maturity
		}
		return assets[i].AssetType < assets[j].AssetType
	})
}
