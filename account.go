package core

import (
	"context"
	"strconv"

	"github.com/facebookgo/clock"
	"github.com/gofrs/uuid"

	"github.com/tenorfi/core/utils"
)

type (
	AccountStore interface {
		GetAccountById(ctx context.Context, accountId uuid.UUID) (*Account, error)
		GetAccountByPubkey(ctx context.Context, pubkey string, index uint8) (*Account, error)
		CreateAccount(ctx context.Context, account *Account) error
		UpsertAccount(ctx context.Context, account *Account) error
	}

	Account struct {
		Id           uuid.UUID    `json:"id"`
		PubKey       string       `json:"pubKey"`
		AccountFlags AccountFlags `json:"accountFlags"`
		Index        uint8        `json:"index"`

		CreatedAt int64 `json:"createdAt"`
		UpdatedAt int64 `json:"updatedAt"`
	}
)

type AccountFlags uint8

const (
	DisabledFlag AccountFlags = 1 << 0
)

func (a *Account) SetFlag(flag AccountFlags) {
	a.AccountFlags |= flag
}

func (a *Account) UnsetFlag(flag AccountFlags) {
	a.AccountFlags &= ^flag
}

func (a *Account) GetFlag(flag AccountFlags) bool {
	return a.AccountFlags&flag != 0
}

func NewAccount(clk clock.Clock, pubKey string, index uint8) *Account {
	return &Account{
		Id:        uuid.Must(uuid.FromString(utils.GenUuidFromStrings(pubKey, strconv.Itoa(int(index))))),
		PubKey:    pubKey,
		Index:     index,
		CreatedAt: clk.Now().Unix(),
		UpdatedAt: clk.Now().Unix(),
	}
}
