package vending

import (
	"context"

	"github.com/wfunc/vending-machine/internal/errors"
	"github.com/wfunc/vending-machine/internal/repository"
)

// 货道默认值
const (
	DefaultActiveSlots = 16
	DefaultSlotPrice   = Cents(100)
)

// SlotLedger 货道台账
// 持有全部货道的价格/库存/锁定状态，每次单项变更立即写对应的单个key，
// 断电最多丢一个正在写入的字段。
type SlotLedger struct {
	store  Store
	slots  [MaxSlots]Slot
	active int
}

// NewSlotLedger 创建台账并从存储恢复全部货道状态
func NewSlotLedger(ctx context.Context, store Store) *SlotLedger {
	l := &SlotLedger{store: store}
	l.active = store.GetInt(ctx, repository.KeyActiveSlots, DefaultActiveSlots)
	if l.active < 1 {
		l.active = 1
	}
	if l.active > MaxSlots {
		l.active = MaxSlots
	}
	for i := 0; i < MaxSlots; i++ {
		l.slots[i] = Slot{
			Price:     Cents(store.GetInt64(ctx, repository.SlotPriceKey(i), int64(DefaultSlotPrice))),
			Available: store.GetBool(ctx, repository.SlotAvailKey(i), false),
			Locked:    store.GetBool(ctx, repository.SlotLockedKey(i), false),
		}
	}
	return l
}

// ActiveCount 启用的货道数
func (l *SlotLedger) ActiveCount() int {
	return l.active
}

// SetActiveCount 调整启用货道数，停用的货道保留存储值
func (l *SlotLedger) SetActiveCount(ctx context.Context, n int) error {
	if n < 1 || n > MaxSlots {
		return errors.Newf(errors.ErrInvalidSlot, "货道数量越界: %d", n)
	}
	l.active = n
	return l.store.Set(ctx, repository.KeyActiveSlots, n)
}

// Slot 读取单个货道
func (l *SlotLedger) Slot(index int) (Slot, error) {
	if index < 0 || index >= l.active {
		return Slot{}, errors.Newf(errors.ErrInvalidSlot, "无效货道: %d", index+1)
	}
	return l.slots[index], nil
}

// Slots 返回启用货道的副本
func (l *SlotLedger) Slots() []Slot {
	out := make([]Slot, l.active)
	copy(out, l.slots[:l.active])
	return out
}

// SetPrice 设置货道价格
func (l *SlotLedger) SetPrice(ctx context.Context, index int, price Cents) error {
	if index < 0 || index >= MaxSlots {
		return errors.Newf(errors.ErrInvalidSlot, "无效货道: %d", index+1)
	}
	if price < 0 {
		return errors.New(errors.ErrInvalidSlot, "价格不能为负")
	}
	l.slots[index].Price = price
	return l.store.Set(ctx, repository.SlotPriceKey(index), int64(price))
}

// SetAvailable 设置货道库存标志
func (l *SlotLedger) SetAvailable(ctx context.Context, index int, available bool) error {
	if index < 0 || index >= MaxSlots {
		return errors.Newf(errors.ErrInvalidSlot, "无效货道: %d", index+1)
	}
	l.slots[index].Available = available
	return l.store.Set(ctx, repository.SlotAvailKey(index), available)
}

// Refill 补货。锁定中的货道拒绝补货。
func (l *SlotLedger) Refill(ctx context.Context, index int) error {
	if index < 0 || index >= MaxSlots {
		return errors.Newf(errors.ErrInvalidSlot, "无效货道: %d", index+1)
	}
	if l.slots[index].Locked {
		return errors.Newf(errors.ErrSlotLocked, "货道%d已锁定，不能补货", index+1)
	}
	return l.SetAvailable(ctx, index, true)
}

// RefillAll 全部补货，跳过锁定中的货道
func (l *SlotLedger) RefillAll(ctx context.Context) error {
	for i := 0; i < l.active; i++ {
		if l.slots[i].Locked {
			continue
		}
		if err := l.SetAvailable(ctx, i, true); err != nil {
			return err
		}
	}
	return nil
}

// SetLocked 设置货道锁定标志
func (l *SlotLedger) SetLocked(ctx context.Context, index int, locked bool) error {
	if index < 0 || index >= MaxSlots {
		return errors.Newf(errors.ErrInvalidSlot, "无效货道: %d", index+1)
	}
	l.slots[index].Locked = locked
	return l.store.Set(ctx, repository.SlotLockedKey(index), locked)
}

// AvailableCount 可售货道数（有货且未锁定）
func (l *SlotLedger) AvailableCount() int {
	n := 0
	for i := 0; i < l.active; i++ {
		if l.slots[i].Available && !l.slots[i].Locked {
			n++
		}
	}
	return n
}

// EmptyCount 待补货货道数（无货且未锁定）
func (l *SlotLedger) EmptyCount() int {
	n := 0
	for i := 0; i < l.active; i++ {
		if !l.slots[i].Available && !l.slots[i].Locked {
			n++
		}
	}
	return n
}
