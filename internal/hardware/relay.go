package hardware

import (
	"sync"

	"github.com/wfunc/vending-machine/internal/errors"
	"github.com/wfunc/vending-machine/internal/logger"
	"go.uber.org/zap"
)

// MaxRelayChannels 继电器总路数（两组各8路）
const MaxRelayChannels = 16

// RelayBank 16路继电器组
// 内部维护一份输出镜像，每次变更只重写受影响的那个bank寄存器。
// 板上继电器低电平吸合，写寄存器前按位取反。
type RelayBank struct {
	bus  BusTransport
	addr byte

	mu     sync.Mutex
	mirror uint16 // bit置1表示该路吸合
	online bool

	logger *zap.Logger
}

// NewRelayBank 创建继电器组
func NewRelayBank(bus BusTransport, addr byte) *RelayBank {
	if addr == 0 {
		addr = DefaultDeviceAddr
	}
	return &RelayBank{
		bus:    bus,
		addr:   addr,
		logger: logger.GetModuleLogger("hardware.relay"),
	}
}

// Init 初始化扩展板：探测、方向寄存器全输出、全部断开
func (r *RelayBank) Init() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.bus.Probe(r.addr); err != nil {
		r.online = false
		return err
	}

	if err := r.bus.WriteRegister(r.addr, RegDirA, DirAllOutput); err != nil {
		r.online = false
		return err
	}
	if err := r.bus.WriteRegister(r.addr, RegDirB, DirAllOutput); err != nil {
		r.online = false
		return err
	}

	r.mirror = 0
	if err := r.flushLocked(RegBankA); err != nil {
		return err
	}
	if err := r.flushLocked(RegBankB); err != nil {
		return err
	}

	r.online = true
	r.logger.Info("继电器扩展板初始化完成", zap.Uint8("addr", r.addr))
	return nil
}

// Online 返回最近一次探测的在线状态
func (r *RelayBank) Online() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.online
}

// Check 重新探测设备，更新在线状态
func (r *RelayBank) Check() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.online = r.bus.Probe(r.addr) == nil
	return r.online
}

// Set 设置单路继电器状态
func (r *RelayBank) Set(channel int, on bool) error {
	if channel < 0 || channel >= MaxRelayChannels {
		return errors.Newf(errors.ErrInvalidSlotIndex, "继电器通道越界: %d", channel)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	old := r.mirror
	if on {
		r.mirror |= 1 << uint(channel)
	} else {
		r.mirror &^= 1 << uint(channel)
	}

	reg := RegBankA
	if channel >= 8 {
		reg = RegBankB
	}
	if err := r.flushLocked(byte(reg)); err != nil {
		// 写失败时回滚镜像，保持镜像和板子一致
		r.mirror = old
		r.online = false
		return err
	}
	return nil
}

// Activate 吸合指定通道
func (r *RelayBank) Activate(channel int) error {
	return r.Set(channel, true)
}

// Deactivate 断开指定通道
func (r *RelayBank) Deactivate(channel int) error {
	return r.Set(channel, false)
}

// AllOff 全部断开
func (r *RelayBank) AllOff() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.mirror = 0
	if err := r.flushLocked(RegBankA); err != nil {
		r.online = false
		return err
	}
	if err := r.flushLocked(RegBankB); err != nil {
		r.online = false
		return err
	}
	return nil
}

// Mirror 返回当前输出镜像（测试和状态上报用）
func (r *RelayBank) Mirror() uint16 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.mirror
}

// flushLocked 把镜像中对应bank的8位写到寄存器，调用方持锁
func (r *RelayBank) flushLocked(reg byte) error {
	var bits byte
	if reg == RegBankA {
		bits = byte(r.mirror & 0xFF)
	} else {
		bits = byte(r.mirror >> 8)
	}
	// 低电平吸合
	return r.bus.WriteRegister(r.addr, reg, ^bits)
}
