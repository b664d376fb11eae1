package vending

import (
	"context"
	"time"

	"github.com/wfunc/vending-machine/internal/errors"
	"github.com/wfunc/vending-machine/internal/logger"
	"go.uber.org/zap"
)

// DispenseEventType 出货状态机对外事件
type DispenseEventType int

const (
	// DispenseNone 本tick无事件
	DispenseNone DispenseEventType = iota
	// DispenseStarted 继电器已吸合，扣款已提交
	DispenseStarted
	// DispenseCompleted 开启时长结束，继电器已断开
	DispenseCompleted
	// DispenseFailed 吸合失败，任务中止，未扣款
	DispenseFailed
)

// DispenseEvent 出货事件
type DispenseEvent struct {
	Type        DispenseEventType
	Slot        int
	Price       Cents
	CreditAfter Cents
	Test        bool
	Err         error
}

// Dispenser 出货状态机
// IDLE → ACTIVATING → OPEN → IDLE。全系统同一时刻最多一个任务，
// 第二个请求直接拒绝不排队。扣款只在继电器确认吸合后提交，吸合失败
// 不扣款不动库存（宁可报错也不能吞钱）。
type Dispenser struct {
	actuator Actuator
	ledger   *SlotLedger
	wallet   *Wallet
	job      DispenseJob
	logger   *zap.Logger
}

// NewDispenser 创建出货状态机
func NewDispenser(actuator Actuator, ledger *SlotLedger, wallet *Wallet) *Dispenser {
	return &Dispenser{
		actuator: actuator,
		ledger:   ledger,
		wallet:   wallet,
		logger:   logger.GetModuleLogger("vending.dispenser"),
	}
}

// Job 当前任务快照
func (d *Dispenser) Job() DispenseJob {
	return d.job
}

// Busy 是否有任务在进行
func (d *Dispenser) Busy() bool {
	return d.job.Active()
}

// Request 确认购买，进场检查一次性同步完成
// 任何一项不满足都直接返回错误，不改余额不改库存。
func (d *Dispenser) Request(now time.Time, slot int) error {
	if d.job.Active() {
		d.logger.Warn("已有出货任务，拒绝新请求",
			zap.Int("busy_slot", d.job.Slot),
			zap.Int("requested", slot))
		return errors.New(errors.ErrDispenseBusy, "正在出货，请稍候")
	}

	s, err := d.ledger.Slot(slot)
	if err != nil {
		return err
	}
	if s.Locked {
		return errors.Newf(errors.ErrSlotLocked, "货道%d已停用", slot+1)
	}
	if !s.Available {
		return errors.Newf(errors.ErrSlotEmpty, "货道%d已售罄", slot+1)
	}
	if d.wallet.Balance() < s.Price {
		return errors.Newf(errors.ErrInsufficientCredit, "余额不足，还差%d分", s.Price-d.wallet.Balance())
	}
	// 扣款前先探测总线，提前挡住明显的硬件故障
	if !d.actuator.Check() {
		return errors.New(errors.ErrBusOffline, "出货驱动离线")
	}

	d.job = DispenseJob{
		State:     DispenseActivating,
		Slot:      slot,
		StartedAt: now,
	}
	return nil
}

// RequestTest 管理端继电器测试，跳过资格检查，不扣款不动库存
func (d *Dispenser) RequestTest(now time.Time, slot int) error {
	if d.job.Active() {
		return errors.New(errors.ErrDispenseBusy, "正在出货，请稍候")
	}
	if slot < 0 || slot >= d.ledger.ActiveCount() {
		return errors.Newf(errors.ErrInvalidSlot, "无效货道: %d", slot+1)
	}
	if !d.actuator.Check() {
		return errors.New(errors.ErrBusOffline, "出货驱动离线")
	}
	d.job = DispenseJob{
		State:     DispenseActivating,
		Slot:      slot,
		StartedAt: now,
		Test:      true,
	}
	return nil
}

// Tick 推进状态机一步
func (d *Dispenser) Tick(ctx context.Context, now time.Time, openDuration time.Duration) DispenseEvent {
	switch d.job.State {
	case DispenseActivating:
		return d.activate(ctx, now)
	case DispenseOpen:
		if now.Sub(d.job.StartedAt) >= openDuration {
			return d.complete(now)
		}
	}
	return DispenseEvent{Type: DispenseNone}
}

// activate 吸合继电器并提交扣款
func (d *Dispenser) activate(ctx context.Context, now time.Time) DispenseEvent {
	slot := d.job.Slot

	if err := d.actuator.Activate(slot); err != nil {
		// 吸合失败：任务中止，没有扣款没有库存变化
		d.logger.Error("继电器吸合失败，出货中止",
			zap.Int("slot", slot),
			zap.Error(err))
		d.job = DispenseJob{}
		return DispenseEvent{
			Type: DispenseFailed,
			Slot: slot,
			Err:  errors.Wrap(err, errors.ErrRelayActivation, "出货失败"),
		}
	}

	var price Cents
	if !d.job.Test {
		s, _ := d.ledger.Slot(slot)
		price = s.Price
		if err := d.wallet.Debit(ctx, price); err != nil {
			d.logger.Error("余额落库失败", zap.Error(err))
		}
		if err := d.ledger.SetAvailable(ctx, slot, false); err != nil {
			d.logger.Error("库存落库失败", zap.Error(err))
		}
		logger.LogSaleEvent(slot, int64(price), int64(d.wallet.Balance()))
	}

	d.job.State = DispenseOpen
	d.job.StartedAt = now // 开启计时从吸合成功起算
	d.job.RelayActivated = true

	return DispenseEvent{
		Type:        DispenseStarted,
		Slot:        slot,
		Price:       price,
		CreditAfter: d.wallet.Balance(),
		Test:        d.job.Test,
	}
}

// complete 断开继电器并结束任务
func (d *Dispenser) complete(now time.Time) DispenseEvent {
	slot := d.job.Slot
	test := d.job.Test
	if err := d.actuator.Deactivate(slot); err != nil {
		// 断开失败只记日志，硬件离线时继电器多半已失电
		d.logger.Error("继电器断开失败",
			zap.Int("slot", slot),
			zap.Error(err))
	}
	d.job = DispenseJob{}
	return DispenseEvent{Type: DispenseCompleted, Slot: slot, Test: test}
}
