package vending

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wfunc/vending-machine/internal/repository"
)

func TestWallet_AddAndPersist(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	w := NewWallet(ctx, store)

	require.NoError(t, w.Add(ctx, 50))
	require.NoError(t, w.Add(ctx, 100))
	assert.Equal(t, Cents(150), w.Balance())

	// 每次变更立即落库
	assert.Equal(t, int64(150), store.GetInt64(ctx, repository.KeyCredit, 0))

	// 重启后余额恢复
	w2 := NewWallet(ctx, store)
	assert.Equal(t, Cents(150), w2.Balance())
}

func TestWallet_DebitClampsAtZero(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	w := NewWallet(ctx, store)

	require.NoError(t, w.Add(ctx, 100))
	require.NoError(t, w.Debit(ctx, 300))
	assert.Equal(t, Cents(0), w.Balance())
	assert.Equal(t, int64(0), store.GetInt64(ctx, repository.KeyCredit, -1))
}

func TestWallet_AddIgnoresNonPositive(t *testing.T) {
	ctx := context.Background()
	w := NewWallet(ctx, newMemStore())

	require.NoError(t, w.Add(ctx, 0))
	require.NoError(t, w.Add(ctx, -50))
	assert.Equal(t, Cents(0), w.Balance())
}

func TestWallet_SetClampsNegative(t *testing.T) {
	ctx := context.Background()
	w := NewWallet(ctx, newMemStore())

	require.NoError(t, w.Set(ctx, -10))
	assert.Equal(t, Cents(0), w.Balance())
	require.NoError(t, w.Set(ctx, 480))
	assert.Equal(t, Cents(480), w.Balance())
}
