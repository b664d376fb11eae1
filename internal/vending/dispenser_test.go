package vending

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wfunc/vending-machine/internal/errors"
)

func setupDispenser(t *testing.T) (*Dispenser, *Wallet, *SlotLedger, *fakeActuator) {
	t.Helper()
	ctx := context.Background()
	store := newMemStore()
	wallet := NewWallet(ctx, store)
	ledger := NewSlotLedger(ctx, store)
	actuator := newFakeActuator()
	require.NoError(t, ledger.RefillAll(ctx))
	return NewDispenser(actuator, ledger, wallet), wallet, ledger, actuator
}

func TestDispenser_FullCycle(t *testing.T) {
	ctx := context.Background()
	d, wallet, ledger, actuator := setupDispenser(t)
	require.NoError(t, wallet.Add(ctx, 500))
	require.NoError(t, ledger.SetPrice(ctx, 0, 500))
	now := time.Now()

	require.NoError(t, d.Request(now, 0))
	assert.True(t, d.Busy())

	// 第一个tick：吸合并扣款
	ev := d.Tick(ctx, now, DefaultDispenseOpen)
	assert.Equal(t, DispenseStarted, ev.Type)
	assert.Equal(t, Cents(500), ev.Price)
	assert.Equal(t, Cents(0), ev.CreditAfter)
	assert.True(t, actuator.active[0])
	assert.Equal(t, Cents(0), wallet.Balance())
	s, _ := ledger.Slot(0)
	assert.False(t, s.Available)

	// 开启时长未满，保持吸合
	ev = d.Tick(ctx, now.Add(3*time.Second), DefaultDispenseOpen)
	assert.Equal(t, DispenseNone, ev.Type)
	assert.True(t, actuator.active[0])

	// 时长已满，断开并结束。迟到的tick也立即断开。
	ev = d.Tick(ctx, now.Add(7*time.Second), DefaultDispenseOpen)
	assert.Equal(t, DispenseCompleted, ev.Type)
	assert.False(t, actuator.active[0])
	assert.False(t, d.Busy())
}

// 已有任务时第二个请求直接拒绝，余额任务货道全都不动
func TestDispenser_MutualExclusion(t *testing.T) {
	ctx := context.Background()
	d, wallet, ledger, _ := setupDispenser(t)
	require.NoError(t, wallet.Add(ctx, 1000))
	now := time.Now()

	require.NoError(t, d.Request(now, 0))
	d.Tick(ctx, now, DefaultDispenseOpen)

	creditBefore := wallet.Balance()
	jobBefore := d.Job()
	err := d.Request(now.Add(time.Second), 1)
	assert.Equal(t, errors.ErrDispenseBusy, errors.GetCode(err))
	assert.Equal(t, creditBefore, wallet.Balance())
	assert.Equal(t, jobBefore, d.Job())
	s, _ := ledger.Slot(1)
	assert.True(t, s.Available)
}

func TestDispenser_EligibilityChecks(t *testing.T) {
	ctx := context.Background()
	d, wallet, ledger, actuator := setupDispenser(t)
	now := time.Now()

	// 余额不足
	require.NoError(t, wallet.Add(ctx, 480))
	require.NoError(t, ledger.SetPrice(ctx, 0, 500))
	err := d.Request(now, 0)
	assert.Equal(t, errors.ErrInsufficientCredit, errors.GetCode(err))
	assert.Equal(t, Cents(480), wallet.Balance())
	assert.False(t, d.Busy())

	// 锁定货道
	require.NoError(t, ledger.SetLocked(ctx, 1, true))
	err = d.Request(now, 1)
	assert.Equal(t, errors.ErrSlotLocked, errors.GetCode(err))

	// 售罄货道
	require.NoError(t, ledger.SetAvailable(ctx, 2, false))
	err = d.Request(now, 2)
	assert.Equal(t, errors.ErrSlotEmpty, errors.GetCode(err))

	// 无效货道号
	err = d.Request(now, 16)
	assert.Equal(t, errors.ErrInvalidSlot, errors.GetCode(err))

	// 总线离线：不扣款不建任务
	actuator.online = false
	err = d.Request(now, 3)
	assert.Equal(t, errors.ErrBusOffline, errors.GetCode(err))
	assert.Equal(t, Cents(480), wallet.Balance())
	assert.False(t, d.Busy())
}

// 吸合失败：任务中止、零扣款、库存不动
func TestDispenser_ActivationFailureNoDebit(t *testing.T) {
	ctx := context.Background()
	d, wallet, ledger, actuator := setupDispenser(t)
	require.NoError(t, wallet.Add(ctx, 500))
	now := time.Now()

	require.NoError(t, d.Request(now, 0))
	actuator.failActivate = true

	ev := d.Tick(ctx, now, DefaultDispenseOpen)
	assert.Equal(t, DispenseFailed, ev.Type)
	assert.Equal(t, errors.ErrRelayActivation, errors.GetCode(ev.Err))
	assert.Equal(t, Cents(500), wallet.Balance())
	s, _ := ledger.Slot(0)
	assert.True(t, s.Available)
	assert.False(t, d.Busy())
}

// 一次确认只扣一次款
func TestDispenser_SingleDebit(t *testing.T) {
	ctx := context.Background()
	d, wallet, ledger, _ := setupDispenser(t)
	require.NoError(t, wallet.Add(ctx, 300))
	require.NoError(t, ledger.SetPrice(ctx, 0, 100))
	now := time.Now()

	require.NoError(t, d.Request(now, 0))
	d.Tick(ctx, now, DefaultDispenseOpen)
	// OPEN期间的tick不再扣款
	d.Tick(ctx, now.Add(time.Second), DefaultDispenseOpen)
	d.Tick(ctx, now.Add(2*time.Second), DefaultDispenseOpen)
	assert.Equal(t, Cents(200), wallet.Balance())
}

// 测试任务不扣款不动库存
func TestDispenser_TestJob(t *testing.T) {
	ctx := context.Background()
	d, wallet, ledger, actuator := setupDispenser(t)
	require.NoError(t, wallet.Add(ctx, 500))
	now := time.Now()

	require.NoError(t, d.RequestTest(now, 3))
	ev := d.Tick(ctx, now, DefaultDispenseOpen)
	assert.Equal(t, DispenseStarted, ev.Type)
	assert.True(t, ev.Test)
	assert.True(t, actuator.active[3])
	assert.Equal(t, Cents(500), wallet.Balance())
	s, _ := ledger.Slot(3)
	assert.True(t, s.Available)

	ev = d.Tick(ctx, now.Add(6*time.Second), DefaultDispenseOpen)
	assert.Equal(t, DispenseCompleted, ev.Type)
	assert.False(t, actuator.active[3])
}
