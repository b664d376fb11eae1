package vending

import (
	"context"
	"time"

	"github.com/wfunc/vending-machine/internal/errors"
	"github.com/wfunc/vending-machine/internal/logger"
	"github.com/wfunc/vending-machine/internal/repository"
	"go.uber.org/zap"
)

// DefaultTickInterval 主循环周期
const DefaultTickInterval = 10 * time.Millisecond

// command 管理端请求，投递到tick goroutine执行
type command struct {
	fn       func() error
	response chan error
}

// Deps 整机依赖注入
type Deps struct {
	Store    Store
	Sales    SaleSink
	Actuator Actuator
	Keypad   Keypad
	Coin     PulseSource
	Bill     PulseSource
	Display  Display
	Notifier Notifier
	Sounder  Sounder
	Inhibit  InhibitLine
	Reset    ResetInput // 可为nil

	// Wipe 出厂复位时清空持久化存储
	Wipe func(ctx context.Context) error
	// Reboot 出厂复位完成后重启进程，nil时只记日志
	Reboot func()
}

// Machine 交易主控
// 单goroutine协作式调度：所有共享状态（余额、选择、出货任务、货道）
// 只在tick goroutine里读写。管理端的变更通过命令通道投递进来，
// 每个tick开头先排空，再按固定顺序跑键盘→收款→出货。
type Machine struct {
	deps    Deps
	timings Timings

	wallet      *Wallet
	ledger      *SlotLedger
	resolver    *InputResolver
	accumulator *PulseAccumulator
	dispenser   *Dispenser
	stock       *StockMonitor

	state           SystemState
	errorUntil      time.Time
	lastInteraction time.Time

	view   View
	dirty  bool
	slogan string

	inhibited bool

	resetHolding   bool
	resetHeldSince time.Time

	lastActuatorCheck time.Time

	commands chan command
	log      *zap.Logger
}

// NewMachine 创建主控并从存储恢复全部状态
func NewMachine(ctx context.Context, deps Deps) *Machine {
	if deps.Sounder == nil {
		deps.Sounder = nopSounder{}
	}
	if deps.Inhibit == nil {
		deps.Inhibit = NopInhibit{}
	}
	if deps.Notifier == nil {
		deps.Notifier = NopNotifier{}
	}

	m := &Machine{
		deps:     deps,
		timings:  LoadTimings(ctx, deps.Store),
		wallet:   NewWallet(ctx, deps.Store),
		ledger:   NewSlotLedger(ctx, deps.Store),
		resolver: NewInputResolver(),
		commands: make(chan command, 16),
		log:      logger.GetModuleLogger("vending.machine"),
	}
	m.accumulator = NewPulseAccumulator(deps.Coin, deps.Bill)
	m.dispenser = NewDispenser(deps.Actuator, m.ledger, m.wallet)
	m.stock = NewStockMonitor(deps.Store.GetInt(ctx, repository.KeyStockThreshold, DefaultStockThreshold))
	m.slogan = deps.Store.GetString(ctx, repository.KeyDisplaySlogan, "欢迎选购")

	// 上电后纸币器自检会输出假脉冲
	deps.Bill.IgnoreUntil(time.Now().Add(DefaultStartupBillIgnore))
	deps.Inhibit.SetInhibit(false)

	m.showIdle()
	return m
}

type nopSounder struct{}

func (nopSounder) Beep()      {}
func (nopSounder) BeepError() {}

// Run 启动主循环，直到ctx取消
func (m *Machine) Run(ctx context.Context) {
	m.log.Info("交易主控启动",
		zap.Int("active_slots", m.ledger.ActiveCount()),
		zap.Int64("credit", int64(m.wallet.Balance())))

	ticker := time.NewTicker(DefaultTickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			m.shutdown()
			return
		case now := <-ticker.C:
			m.Tick(ctx, now)
		}
	}
}

// shutdown 退出前断开全部继电器
func (m *Machine) shutdown() {
	if err := m.deps.Actuator.AllOff(); err != nil {
		m.log.Error("退出时断开继电器失败", zap.Error(err))
	}
	m.log.Info("交易主控停止")
}

// Execute 把一个变更投递到tick goroutine执行并等待结果
// 管理端的所有状态变更都走这里，保证和交易逻辑串行
func (m *Machine) Execute(fn func() error) error {
	cmd := command{fn: fn, response: make(chan error, 1)}
	m.commands <- cmd
	return <-cmd.response
}

// Tick 跑一个调度周期
func (m *Machine) Tick(ctx context.Context, now time.Time) {
	m.drainCommands()
	m.checkFactoryReset(ctx, now)

	// 升级中挂起全部交易逻辑
	if m.state == StateMaintenanceUpdate {
		m.renderIfDirty()
		return
	}

	// 错误画面到期自动回到空闲；停留期间收款脉冲照常累积，
	// 键盘和出货推进暂停
	if m.state == StateErrorDisplay {
		if now.Before(m.errorUntil) {
			m.renderIfDirty()
			return
		}
		m.state = StateIdle
		m.resolver.MarkSelected(now)
		m.showIdle()
	}

	// 无操作超时回到待机画面
	if m.state == StateUserInteraction &&
		now.Sub(m.lastInteraction) >= m.timings.DisplayTimeout &&
		!m.dispenser.Busy() {
		m.state = StateIdle
		m.resolver.Clear()
		m.showIdle()
	}

	// 选择超时未确认直接回到待机，不等画面超时
	hadSelection := m.resolver.Selected() != NoSlot
	if m.resolver.Tick(now, m.timings.KeypadTimeout, m.timings.SelectionTimeout) {
		if hadSelection && m.resolver.Selected() == NoSlot {
			m.state = StateIdle
			m.showIdle()
		} else {
			m.showInteraction()
		}
	}

	// 固定顺序：键盘 → 投币 → 纸币 → 出货
	m.pollKeypad(ctx, now)
	m.drainPayments(ctx, now)
	m.advanceDispense(ctx, now)

	m.manageInhibit()
	m.recheckActuator(now)
	m.renderIfDirty()
}

// drainCommands 排空管理端命令
func (m *Machine) drainCommands() {
	for {
		select {
		case cmd := <-m.commands:
			cmd.response <- cmd.fn()
		default:
			return
		}
	}
}

// checkFactoryReset 出厂复位按钮长按检测，不阻塞tick
func (m *Machine) checkFactoryReset(ctx context.Context, now time.Time) {
	if m.deps.Reset == nil {
		return
	}
	if !m.deps.Reset.Pressed() {
		m.resetHolding = false
		return
	}
	if !m.resetHolding {
		m.resetHolding = true
		m.resetHeldSince = now
		return
	}
	if now.Sub(m.resetHeldSince) >= DefaultFactoryResetHold {
		m.resetHolding = false
		if err := m.factoryReset(ctx); err != nil {
			m.log.Error("出厂复位失败", zap.Error(err))
		}
	}
}

// factoryReset 清空持久化存储并重启
func (m *Machine) factoryReset(ctx context.Context) error {
	m.log.Warn("执行出厂复位")
	if err := m.deps.Actuator.AllOff(); err != nil {
		m.log.Error("复位时断开继电器失败", zap.Error(err))
	}
	if m.deps.Wipe != nil {
		if err := m.deps.Wipe(ctx); err != nil {
			return err
		}
	}
	if m.deps.Reboot != nil {
		m.deps.Reboot()
	} else {
		m.log.Warn("未配置重启回调，出厂复位后继续运行旧状态")
	}
	return nil
}

// pollKeypad 轮询键盘并处理按键
func (m *Machine) pollKeypad(ctx context.Context, now time.Time) {
	key, ok := m.deps.Keypad.Poll(now)
	if !ok {
		return
	}

	m.touch(now)
	m.deps.Sounder.Beep()

	result := m.resolver.HandleKey(now, key, m.ledger.ActiveCount())
	switch result.Action {
	case InputUpdated:
		m.showInteraction()
	case InputCancel:
		m.state = StateIdle
		m.showIdle()
	case InputError:
		m.surfaceError(now, result.Err)
	case InputConfirm:
		if err := m.dispenser.Request(now, result.Slot); err != nil {
			// 资格不满足：报错但保留选择，用户补币后可以再按确认
			m.resolver.MarkSelected(now)
			m.surfaceError(now, err)
			return
		}
		m.resolver.Clear()
		m.view = View{Screen: ScreenDispensing, Credit: m.wallet.Balance(), Slot: result.Slot}
		m.dirty = true
	}
}

// drainPayments 排空收款事件
func (m *Machine) drainPayments(ctx context.Context, now time.Time) {
	events := m.accumulator.Tick(now, m.timings.CoinQuiet, m.timings.BillQuiet)
	for _, ev := range events {
		if err := m.wallet.Add(ctx, ev.Amount); err != nil {
			m.log.Error("余额落库失败", zap.Error(err))
		}
		m.log.Info("收款",
			zap.String("channel", ev.Channel.String()),
			zap.Int("pulses", ev.Pulses),
			zap.Int64("amount", int64(ev.Amount)),
			zap.Int64("credit", int64(m.wallet.Balance())))

		m.touch(now)
		m.deps.Sounder.Beep()
		m.showInteraction()
	}
}

// advanceDispense 推进出货状态机并处理其事件
func (m *Machine) advanceDispense(ctx context.Context, now time.Time) {
	ev := m.dispenser.Tick(ctx, now, m.timings.DispenseOpen)
	switch ev.Type {
	case DispenseStarted:
		// 继电器动作在纸币线上感应噪声，清掉并静默一段
		m.accumulator.DiscardBill(now.Add(DefaultRelayNoiseQuiet))
		m.touch(now)
		if !ev.Test {
			m.recordSale(ctx, ev)
			m.checkStock(ctx)
			m.deps.Sounder.Beep()
		}
		m.view = View{Screen: ScreenDispensing, Credit: m.wallet.Balance(), Slot: ev.Slot}
		m.dirty = true

	case DispenseCompleted:
		m.accumulator.DiscardBill(now.Add(DefaultRelayNoiseQuiet))
		m.resolver.Clear()
		m.state = StateIdle
		m.showIdle()

	case DispenseFailed:
		m.surfaceError(now, ev.Err)
	}
}

// recordSale 写销售记录并发售出通知
func (m *Machine) recordSale(ctx context.Context, ev DispenseEvent) {
	if m.deps.Sales != nil {
		if err := m.deps.Sales.Record(ctx, ev.Slot, ev.Price, ev.CreditAfter); err != nil {
			m.log.Error("销售记录落库失败", zap.Error(err))
		}
	}
	m.deps.Notifier.Notify(ctx, NotifyEvent{
		Type:       NotifySale,
		Slot:       ev.Slot,
		PriceCents: ev.Price,
	})
}

// checkStock 库存阈值检查，购买和补货后各调用一次
func (m *Machine) checkStock(ctx context.Context) {
	count := m.ledger.AvailableCount()
	switch m.stock.Check(count) {
	case StockLow:
		m.deps.Notifier.Notify(ctx, NotifyEvent{
			Type:           NotifyStockLow,
			Slot:           NoSlot,
			AvailableCount: count,
		})
	case StockEmpty:
		m.deps.Notifier.Notify(ctx, NotifyEvent{
			Type:           NotifyStockEmpty,
			Slot:           NoSlot,
			AvailableCount: count,
		})
	}
}

// manageInhibit 出货期间和纸币脉冲累积期间禁止纸币器收钞。
// 升级维护状态在进入时直接拉线，不经过这里。
func (m *Machine) manageInhibit() {
	want := m.dispenser.Busy() || m.accumulator.BillPending()
	if want != m.inhibited {
		m.inhibited = want
		m.deps.Inhibit.SetInhibit(want)
	}
}

// recheckActuator 总线离线时定期重新探测
func (m *Machine) recheckActuator(now time.Time) {
	if m.deps.Actuator.Online() {
		return
	}
	if now.Sub(m.lastActuatorCheck) < DefaultActuatorRecheck {
		return
	}
	m.lastActuatorCheck = now
	if m.deps.Actuator.Check() {
		m.log.Info("出货驱动恢复在线")
	}
}

// touch 记录用户活动并进入交互状态
func (m *Machine) touch(now time.Time) {
	m.lastInteraction = now
	if m.state == StateIdle {
		m.state = StateUserInteraction
	}
}

// surfaceError 进入错误展示状态，到期自动回空闲
func (m *Machine) surfaceError(now time.Time, err error) {
	m.state = StateErrorDisplay
	m.errorUntil = now.Add(DefaultErrorDwell)
	m.deps.Sounder.BeepError()
	m.view = View{
		Screen:  ScreenError,
		Credit:  m.wallet.Balance(),
		Slot:    NoSlot,
		Message: errors.GetMessage(err),
	}
	m.dirty = true
	m.log.Warn("用户侧错误", zap.Error(err))
}

// showIdle 切到待机画面
func (m *Machine) showIdle() {
	m.view = View{
		Screen:  ScreenIdle,
		Credit:  m.wallet.Balance(),
		Slot:    NoSlot,
		Message: m.slogan,
	}
	m.dirty = true
}

// showInteraction 根据当前选择和缓冲切交互画面
func (m *Machine) showInteraction() {
	selected := m.resolver.Selected()
	if selected != NoSlot {
		price := Cents(0)
		if s, err := m.ledger.Slot(selected); err == nil {
			price = s.Price
		}
		m.view = View{
			Screen: ScreenSlotDetail,
			Credit: m.wallet.Balance(),
			Slot:   selected,
			Price:  price,
			Buffer: m.resolver.Buffer(),
		}
	} else {
		m.view = View{
			Screen: ScreenInput,
			Credit: m.wallet.Balance(),
			Slot:   NoSlot,
			Buffer: m.resolver.Buffer(),
		}
	}
	m.dirty = true
}

// renderIfDirty 有变化才重绘
func (m *Machine) renderIfDirty() {
	if !m.dirty {
		return
	}
	m.dirty = false
	if m.deps.Display != nil {
		m.deps.Display.Render(m.view)
	}
}
