package vending

import (
	"context"
	"time"

	"github.com/wfunc/vending-machine/internal/errors"
	"github.com/wfunc/vending-machine/internal/repository"
	"go.uber.org/zap"
)

// 管理端操作。全部通过Execute投递到tick goroutine执行，
// 和交易逻辑天然串行，不需要额外的锁。

// StatusSnapshot 整机状态快照
type StatusSnapshot struct {
	State             string  `json:"state"`
	CreditCents       Cents   `json:"credit_cents"`
	ActiveSlots       int     `json:"active_slots"`
	Slots             []Slot  `json:"slots"`
	SelectedSlot      int     `json:"selected_slot"` // 0起，-1表示无
	InputBuffer       string  `json:"input_buffer"`
	Dispensing        bool    `json:"dispensing"`
	DispensingSlot    int     `json:"dispensing_slot"`
	BusOnline         bool    `json:"bus_online"`
	AvailableCount    int     `json:"available_count"`
	EmptyCount        int     `json:"empty_count"`
	StockThreshold    int     `json:"stock_threshold"`
	PendingCoinPulses int     `json:"pending_coin_pulses"`
	PendingBillPulses int     `json:"pending_bill_pulses"`
	Timings           Timings `json:"timings"`
}

// Status 读取整机状态快照
func (m *Machine) Status() StatusSnapshot {
	var snap StatusSnapshot
	_ = m.Execute(func() error {
		job := m.dispenser.Job()
		snap = StatusSnapshot{
			State:             m.state.String(),
			CreditCents:       m.wallet.Balance(),
			ActiveSlots:       m.ledger.ActiveCount(),
			Slots:             m.ledger.Slots(),
			SelectedSlot:      m.resolver.Selected(),
			InputBuffer:       m.resolver.Buffer(),
			Dispensing:        job.Active(),
			DispensingSlot:    job.Slot,
			BusOnline:         m.deps.Actuator.Online(),
			AvailableCount:    m.ledger.AvailableCount(),
			EmptyCount:        m.ledger.EmptyCount(),
			StockThreshold:    m.stock.Threshold(),
			PendingCoinPulses: m.deps.Coin.Pending(),
			PendingBillPulses: m.deps.Bill.Pending(),
			Timings:           m.timings,
		}
		if !job.Active() {
			snap.DispensingSlot = NoSlot
		}
		return nil
	})
	return snap
}

// AdjustCredit 调整余额，delta可为负，结果钳制到0
func (m *Machine) AdjustCredit(ctx context.Context, delta Cents) (Cents, error) {
	var after Cents
	err := m.Execute(func() error {
		target := m.wallet.Balance() + delta
		if err := m.wallet.Set(ctx, target); err != nil {
			return err
		}
		after = m.wallet.Balance()
		m.showInteraction()
		m.log.Info("管理端调整余额",
			zap.Int64("delta", int64(delta)),
			zap.Int64("after", int64(after)))
		return nil
	})
	return after, err
}

// ResetCredit 余额清零
func (m *Machine) ResetCredit(ctx context.Context) error {
	return m.Execute(func() error {
		if err := m.wallet.Set(ctx, 0); err != nil {
			return err
		}
		m.showIdle()
		m.log.Info("管理端清零余额")
		return nil
	})
}

// SetSlotPrice 设置货道价格
func (m *Machine) SetSlotPrice(ctx context.Context, slot int, price Cents) error {
	return m.Execute(func() error {
		return m.ledger.SetPrice(ctx, slot, price)
	})
}

// RefillSlot 单货道补货，补货后重新评估库存通知锁存
func (m *Machine) RefillSlot(ctx context.Context, slot int) error {
	return m.Execute(func() error {
		if err := m.ledger.Refill(ctx, slot); err != nil {
			return err
		}
		m.checkStock(ctx)
		return nil
	})
}

// RefillAll 全部补货
func (m *Machine) RefillAll(ctx context.Context) error {
	return m.Execute(func() error {
		if err := m.ledger.RefillAll(ctx); err != nil {
			return err
		}
		m.checkStock(ctx)
		return nil
	})
}

// LockSlot 锁定或解锁货道
func (m *Machine) LockSlot(ctx context.Context, slot int, locked bool) error {
	return m.Execute(func() error {
		if err := m.ledger.SetLocked(ctx, slot, locked); err != nil {
			return err
		}
		m.checkStock(ctx)
		return nil
	})
}

// SetActiveSlots 调整启用货道数
func (m *Machine) SetActiveSlots(ctx context.Context, n int) error {
	return m.Execute(func() error {
		if err := m.ledger.SetActiveCount(ctx, n); err != nil {
			return err
		}
		m.resolver.Clear()
		m.showIdle()
		return nil
	})
}

// TestSlot 继电器测试：走完整出货时序但不扣款不动库存
func (m *Machine) TestSlot(slot int) error {
	return m.Execute(func() error {
		return m.dispenser.RequestTest(time.Now(), slot)
	})
}

// TestAllSlots 逐路快速吸合断开，验证整块扩展板
func (m *Machine) TestAllSlots() error {
	return m.Execute(func() error {
		if m.dispenser.Busy() {
			return errors.New(errors.ErrDispenseBusy, "正在出货，请稍候")
		}
		if !m.deps.Actuator.Check() {
			return errors.New(errors.ErrBusOffline, "出货驱动离线")
		}
		for i := 0; i < m.ledger.ActiveCount(); i++ {
			if err := m.deps.Actuator.Activate(i); err != nil {
				return err
			}
			if err := m.deps.Actuator.Deactivate(i); err != nil {
				return err
			}
		}
		return nil
	})
}

// GetTimings 读取时间参数
func (m *Machine) GetTimings() Timings {
	var t Timings
	_ = m.Execute(func() error {
		t = m.timings
		return nil
	})
	return t
}

// SetTimings 更新时间参数并逐键持久化
func (m *Machine) SetTimings(ctx context.Context, t Timings) error {
	return m.Execute(func() error {
		if err := SaveTimings(ctx, m.deps.Store, t); err != nil {
			return err
		}
		m.timings = t
		m.log.Info("时间参数已更新")
		return nil
	})
}

// SetStockThreshold 设置库存通知阈值
func (m *Machine) SetStockThreshold(ctx context.Context, threshold int) error {
	return m.Execute(func() error {
		if threshold < 1 {
			return errors.New(errors.ErrInvalidParam, "阈值必须大于0")
		}
		m.stock.SetThreshold(threshold)
		return m.deps.Store.Set(ctx, repository.KeyStockThreshold, threshold)
	})
}

// SetSlogan 设置待机标语
func (m *Machine) SetSlogan(ctx context.Context, slogan string) error {
	return m.Execute(func() error {
		if err := m.deps.Store.Set(ctx, repository.KeyDisplaySlogan, slogan); err != nil {
			return err
		}
		m.slogan = slogan
		if m.state == StateIdle {
			m.showIdle()
		}
		return nil
	})
}

// SendTestNotification 发一条测试通知
func (m *Machine) SendTestNotification(ctx context.Context, text string) error {
	return m.Execute(func() error {
		m.deps.Notifier.Notify(ctx, NotifyEvent{
			Type: NotifyTest,
			Slot: NoSlot,
			Text: text,
		})
		return nil
	})
}

// EnterMaintenance 进入升级维护状态，交易逻辑挂起
func (m *Machine) EnterMaintenance() error {
	return m.Execute(func() error {
		if m.dispenser.Busy() {
			return errors.New(errors.ErrDispenseBusy, "正在出货，不能进入维护模式")
		}
		m.state = StateMaintenanceUpdate
		m.resolver.Clear()
		// 升级期间拒收纸币；该状态下tick提前返回，这里直接拉线
		m.inhibited = true
		m.deps.Inhibit.SetInhibit(true)
		m.view = View{Screen: ScreenMaintenance, Slot: NoSlot}
		m.dirty = true
		m.log.Warn("进入升级维护状态")
		return nil
	})
}

// ExitMaintenance 退出升级维护状态
func (m *Machine) ExitMaintenance() error {
	return m.Execute(func() error {
		if m.state != StateMaintenanceUpdate {
			return nil
		}
		m.state = StateIdle
		m.showIdle()
		m.log.Warn("退出升级维护状态")
		return nil
	})
}

// FactoryReset 管理端触发出厂复位
func (m *Machine) FactoryReset(ctx context.Context) error {
	return m.Execute(func() error {
		return m.factoryReset(ctx)
	})
}
