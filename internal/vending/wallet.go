package vending

import (
	"context"

	"github.com/wfunc/vending-machine/internal/repository"
)

// Wallet 当前投放余额
// 只有三种变更来源：收款累加、购买扣减（钳制到0）、管理端调整。
// 每次变更立即落库，断电重启不丢余额。
type Wallet struct {
	store Store
	cents Cents
}

// NewWallet 创建钱包并从存储恢复余额
func NewWallet(ctx context.Context, store Store) *Wallet {
	return &Wallet{
		store: store,
		cents: Cents(store.GetInt64(ctx, repository.KeyCredit, 0)),
	}
}

// Balance 当前余额
func (w *Wallet) Balance() Cents {
	return w.cents
}

// Add 收款累加并落库
func (w *Wallet) Add(ctx context.Context, amount Cents) error {
	if amount <= 0 {
		return nil
	}
	w.cents += amount
	return w.persist(ctx)
}

// Debit 扣减并落库，不足时钳制到0
func (w *Wallet) Debit(ctx context.Context, amount Cents) error {
	w.cents -= amount
	if w.cents < 0 {
		w.cents = 0
	}
	return w.persist(ctx)
}

// Set 管理端直接设置余额
func (w *Wallet) Set(ctx context.Context, amount Cents) error {
	if amount < 0 {
		amount = 0
	}
	w.cents = amount
	return w.persist(ctx)
}

func (w *Wallet) persist(ctx context.Context) error {
	return w.store.Set(ctx, repository.KeyCredit, int64(w.cents))
}
