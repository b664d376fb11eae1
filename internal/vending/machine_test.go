package vending

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wfunc/vending-machine/internal/repository"
)

// 完整购买场景：投币4.80不够5.00被拒，补0.20后购买成功，
// 余额归零、货道售罄、继电器按时开合
func TestMachine_PurchaseScenario(t *testing.T) {
	ctx := context.Background()
	deps, store, actuator, keypad, coin, _, display, notifier := testDeps()
	require.NoError(t, store.Set(ctx, repository.KeyCredit, int64(480)))
	require.NoError(t, store.Set(ctx, repository.SlotPriceKey(0), int64(500)))
	require.NoError(t, store.Set(ctx, repository.SlotAvailKey(0), true))

	m := NewMachine(ctx, deps)
	base := time.Now().Add(10 * time.Second)

	// 选货道1并确认
	keypad.Push('1')
	m.Tick(ctx, base)
	keypad.Push('#')
	m.Tick(ctx, base.Add(20*time.Millisecond))

	// 余额不足：错误画面，余额和货道都不动
	assert.Equal(t, StateErrorDisplay, m.state)
	v, ok := display.last()
	require.True(t, ok)
	assert.Equal(t, ScreenError, v.Screen)
	assert.Equal(t, Cents(480), m.wallet.Balance())
	assert.Empty(t, actuator.ops)
	assert.False(t, m.dispenser.Busy())

	// 错误画面停留期满自动回空闲
	m.Tick(ctx, base.Add(4*time.Second))
	assert.NotEqual(t, StateErrorDisplay, m.state)

	// 再投3个脉冲 = 0.20
	coin.Edge(base.Add(4 * time.Second))
	coin.Edge(base.Add(4*time.Second + 30*time.Millisecond))
	coin.Edge(base.Add(4*time.Second + 60*time.Millisecond))
	m.Tick(ctx, base.Add(4*time.Second+300*time.Millisecond))
	assert.Equal(t, Cents(500), m.wallet.Balance())

	// 选择保留着，直接再按确认
	keypad.Push('#')
	m.Tick(ctx, base.Add(4*time.Second+400*time.Millisecond))

	// 吸合成功：扣款、售罄、继电器通电
	assert.Equal(t, Cents(0), m.wallet.Balance())
	s, _ := m.ledger.Slot(0)
	assert.False(t, s.Available)
	assert.True(t, actuator.active[0])
	assert.Equal(t, int64(0), store.GetInt64(ctx, repository.KeyCredit, -1))

	// 开启时长未满保持通电
	m.Tick(ctx, base.Add(7*time.Second))
	assert.True(t, actuator.active[0])

	// 开启时长已满断电，回到待机画面
	m.Tick(ctx, base.Add(10*time.Second))
	assert.False(t, actuator.active[0])
	assert.False(t, m.dispenser.Busy())
	v, _ = display.last()
	assert.Equal(t, ScreenIdle, v.Screen)

	// 售出通知和售罄通知各一条
	events := notifier.all()
	require.Len(t, events, 2)
	assert.Equal(t, NotifySale, events[0].Type)
	assert.Equal(t, Cents(500), events[0].PriceCents)
	assert.Equal(t, NotifyStockEmpty, events[1].Type)

	// 销售记录落库
	sales := deps.Sales.(*fakeSales)
	require.Len(t, sales.records, 1)
	assert.Equal(t, 0, sales.records[0].Slot)
	assert.Equal(t, Cents(500), sales.records[0].Price)
}

// 收款进账：脉冲静默成组后入账并立即落库
func TestMachine_PaymentAccepted(t *testing.T) {
	ctx := context.Background()
	deps, store, _, _, coin, bill, _, _ := testDeps()
	m := NewMachine(ctx, deps)
	base := time.Now().Add(10 * time.Second)

	// 5个投币脉冲 = 1.00
	for i := 0; i < 5; i++ {
		coin.Edge(base.Add(time.Duration(i) * 20 * time.Millisecond))
	}
	m.Tick(ctx, base.Add(time.Second))
	assert.Equal(t, Cents(100), m.wallet.Balance())
	assert.Equal(t, StateUserInteraction, m.state)
	assert.Equal(t, int64(100), store.GetInt64(ctx, repository.KeyCredit, 0))

	// 4个纸币脉冲 = 5.00
	for i := 0; i < 4; i++ {
		bill.Edge(base.Add(2*time.Second + time.Duration(i)*100*time.Millisecond))
	}
	m.Tick(ctx, base.Add(5*time.Second))
	assert.Equal(t, Cents(600), m.wallet.Balance())
}

// 出货期间禁止纸币器收钞，结束后恢复
func TestMachine_BillInhibitDuringDispense(t *testing.T) {
	ctx := context.Background()
	deps, store, _, keypad, _, _, _, _ := testDeps()
	require.NoError(t, store.Set(ctx, repository.KeyCredit, int64(500)))
	require.NoError(t, store.Set(ctx, repository.SlotAvailKey(0), true))
	inhibit := deps.Inhibit.(*fakeInhibit)

	m := NewMachine(ctx, deps)
	base := time.Now().Add(10 * time.Second)

	keypad.Push('1')
	m.Tick(ctx, base)
	keypad.Push('#')
	m.Tick(ctx, base.Add(20*time.Millisecond))
	assert.True(t, m.dispenser.Busy())
	assert.True(t, inhibit.on)

	m.Tick(ctx, base.Add(6*time.Second))
	assert.False(t, m.dispenser.Busy())
	assert.False(t, inhibit.on)
}

// 升级维护状态挂起全部交易逻辑
func TestMachine_MaintenanceSuspendsTransactions(t *testing.T) {
	ctx := context.Background()
	deps, _, _, keypad, coin, _, _, _ := testDeps()
	m := NewMachine(ctx, deps)
	base := time.Now().Add(10 * time.Second)

	m.state = StateMaintenanceUpdate

	keypad.Push('1')
	coin.Edge(base)
	coin.Edge(base.Add(10 * time.Millisecond))
	m.Tick(ctx, base.Add(time.Second))

	// 键盘没消费，脉冲没结算
	assert.Equal(t, NoSlot, m.resolver.Selected())
	assert.Equal(t, Cents(0), m.wallet.Balance())
	assert.Equal(t, 2, coin.Pending())

	// 退出维护后照常结算
	m.state = StateIdle
	m.Tick(ctx, base.Add(2*time.Second))
	assert.Equal(t, 0, coin.Pending())
}

// 无操作超时回到待机画面
func TestMachine_DisplayTimeout(t *testing.T) {
	ctx := context.Background()
	deps, _, _, keypad, _, _, display, _ := testDeps()
	m := NewMachine(ctx, deps)
	base := time.Now().Add(10 * time.Second)

	keypad.Push('2')
	m.Tick(ctx, base)
	assert.Equal(t, StateUserInteraction, m.state)

	m.Tick(ctx, base.Add(DefaultDisplayTimeout+time.Second))
	assert.Equal(t, StateIdle, m.state)
	v, _ := display.last()
	assert.Equal(t, ScreenIdle, v.Screen)
	assert.Equal(t, NoSlot, m.resolver.Selected())
}

// 长按复位按钮7秒触发出厂复位
func TestMachine_FactoryResetHold(t *testing.T) {
	ctx := context.Background()
	deps, _, _, _, _, _, _, _ := testDeps()

	pressed := false
	wiped := false
	rebooted := false
	deps.Reset = resetFunc(func() bool { return pressed })
	deps.Wipe = func(context.Context) error { wiped = true; return nil }
	deps.Reboot = func() { rebooted = true }

	m := NewMachine(ctx, deps)
	base := time.Now().Add(10 * time.Second)

	pressed = true
	m.Tick(ctx, base)
	m.Tick(ctx, base.Add(3*time.Second))
	assert.False(t, wiped)

	// 中途松开重新计时
	pressed = false
	m.Tick(ctx, base.Add(4*time.Second))
	pressed = true
	m.Tick(ctx, base.Add(5*time.Second))
	m.Tick(ctx, base.Add(11*time.Second))
	assert.False(t, wiped)

	m.Tick(ctx, base.Add(12*time.Second+100*time.Millisecond))
	assert.True(t, wiped)
	assert.True(t, rebooted)
}

type resetFunc func() bool

func (f resetFunc) Pressed() bool { return f() }

// 管理端操作经命令通道串行执行
func TestMachine_AdminOps(t *testing.T) {
	bg := context.Background()
	deps, _, _, _, _, _, _, notifier := testDeps()
	m := NewMachine(bg, deps)

	ctx, cancel := context.WithCancel(bg)
	defer cancel()
	go m.Run(ctx)

	after, err := m.AdjustCredit(bg, 250)
	require.NoError(t, err)
	assert.Equal(t, Cents(250), after)

	// 负调整钳制到0
	after, err = m.AdjustCredit(bg, -1000)
	require.NoError(t, err)
	assert.Equal(t, Cents(0), after)

	require.NoError(t, m.RefillAll(bg))
	snap := m.Status()
	assert.Equal(t, 16, snap.AvailableCount)
	assert.True(t, snap.BusOnline)

	require.NoError(t, m.SetSlotPrice(bg, 2, 350))
	require.NoError(t, m.LockSlot(bg, 1, true))
	snap = m.Status()
	assert.Equal(t, Cents(350), snap.Slots[2].Price)
	assert.True(t, snap.Slots[1].Locked)
	assert.Equal(t, 15, snap.AvailableCount)

	require.NoError(t, m.SetActiveSlots(bg, 8))
	assert.Equal(t, 8, m.Status().ActiveSlots)

	require.NoError(t, m.EnterMaintenance())
	assert.Equal(t, StateMaintenanceUpdate.String(), m.Status().State)
	require.NoError(t, m.ExitMaintenance())
	assert.Equal(t, StateIdle.String(), m.Status().State)

	require.NoError(t, m.SendTestNotification(bg, "测试"))
	events := notifier.all()
	require.NotEmpty(t, events)
	assert.Equal(t, NotifyTest, events[len(events)-1].Type)
}

// 出货末尾投入的硬币不能被继电器噪声静默吞掉：
// 断电噪声只静默纸币通道，投币通道照常结算
func TestMachine_CoinDuringDispenseKept(t *testing.T) {
	ctx := context.Background()
	deps, store, _, keypad, coin, _, _, _ := testDeps()
	require.NoError(t, store.Set(ctx, repository.KeyCredit, int64(100)))
	require.NoError(t, store.Set(ctx, repository.SlotPriceKey(0), int64(100)))
	require.NoError(t, store.Set(ctx, repository.SlotAvailKey(0), true))

	m := NewMachine(ctx, deps)
	base := time.Now().Add(10 * time.Second)

	keypad.Push('1')
	m.Tick(ctx, base)
	keypad.Push('#')
	m.Tick(ctx, base.Add(20*time.Millisecond))
	require.True(t, m.dispenser.Busy())
	assert.Equal(t, Cents(0), m.wallet.Balance())

	// 开启窗口快结束时又投了一枚1.00硬币
	for i := 0; i < 5; i++ {
		coin.Edge(base.Add(4900*time.Millisecond + time.Duration(i)*20*time.Millisecond))
	}

	// 这个tick断电结束出货，硬币脉冲还没过静默期，先保留
	m.Tick(ctx, base.Add(5*time.Second+100*time.Millisecond))
	assert.False(t, m.dispenser.Busy())

	// 静默期满照常入账
	m.Tick(ctx, base.Add(5*time.Second+300*time.Millisecond))
	assert.Equal(t, Cents(100), m.wallet.Balance())
	assert.Equal(t, int64(100), store.GetInt64(ctx, repository.KeyCredit, -1))
}

// 选中后一直不确认，选择超时直接回待机，不等画面超时
func TestMachine_SelectionTimeoutReturnsIdle(t *testing.T) {
	ctx := context.Background()
	deps, _, _, keypad, _, _, display, _ := testDeps()
	m := NewMachine(ctx, deps)
	base := time.Now().Add(10 * time.Second)

	keypad.Push('1')
	m.Tick(ctx, base)
	assert.Equal(t, StateUserInteraction, m.state)
	assert.Equal(t, 0, m.resolver.Selected())

	// 过了选择保留时长，但还没到画面超时
	m.Tick(ctx, base.Add(DefaultSelectionTimeout+time.Second))
	assert.Equal(t, StateIdle, m.state)
	assert.Equal(t, NoSlot, m.resolver.Selected())
	v, _ := display.last()
	assert.Equal(t, ScreenIdle, v.Screen)
}

// execDriven 在手动驱动tick的测试里执行一条管理命令
func execDriven(ctx context.Context, m *Machine, now time.Time, fn func() error) error {
	done := make(chan error, 1)
	go func() { done <- fn() }()
	for {
		m.Tick(ctx, now)
		select {
		case err := <-done:
			return err
		default:
		}
	}
}

// 进入升级维护当场拉起纸币禁止线，退出后下一个tick释放
func TestMachine_MaintenanceRaisesInhibit(t *testing.T) {
	ctx := context.Background()
	deps, _, _, _, _, _, _, _ := testDeps()
	inhibit := deps.Inhibit.(*fakeInhibit)
	m := NewMachine(ctx, deps)
	base := time.Now().Add(10 * time.Second)

	require.NoError(t, execDriven(ctx, m, base, m.EnterMaintenance))
	assert.Equal(t, StateMaintenanceUpdate, m.state)
	assert.True(t, inhibit.on)

	// 维护期间tick提前返回，禁止线保持
	m.Tick(ctx, base.Add(time.Second))
	assert.True(t, inhibit.on)

	require.NoError(t, execDriven(ctx, m, base.Add(2*time.Second), m.ExitMaintenance))
	m.Tick(ctx, base.Add(3*time.Second))
	assert.False(t, inhibit.on)
}

// 总线离线时确认购买被拒，余额不动
func TestMachine_BusOfflineRejectsPurchase(t *testing.T) {
	ctx := context.Background()
	deps, store, actuator, keypad, _, _, display, _ := testDeps()
	require.NoError(t, store.Set(ctx, repository.KeyCredit, int64(500)))
	require.NoError(t, store.Set(ctx, repository.SlotAvailKey(0), true))
	actuator.online = false

	m := NewMachine(ctx, deps)
	base := time.Now().Add(10 * time.Second)

	keypad.Push('1')
	m.Tick(ctx, base)
	keypad.Push('#')
	m.Tick(ctx, base.Add(20*time.Millisecond))

	assert.Equal(t, StateErrorDisplay, m.state)
	assert.Equal(t, Cents(500), m.wallet.Balance())
	assert.False(t, m.dispenser.Busy())
	v, _ := display.last()
	assert.Equal(t, ScreenError, v.Screen)
}
