package hardware

import (
	"sync"

	"github.com/wfunc/vending-machine/internal/errors"
)

// RegWrite 一次寄存器写入记录
type RegWrite struct {
	Addr  byte
	Reg   byte
	Value byte
}

// MockBus 记录型总线实现，测试和离线模式使用
type MockBus struct {
	mu     sync.Mutex
	writes []RegWrite

	// FailProbe 探测返回离线
	FailProbe bool
	// FailWrite 写寄存器返回失败
	FailWrite bool
}

// NewMockBus 创建模拟总线
func NewMockBus() *MockBus {
	return &MockBus{}
}

// Probe 探测设备
func (m *MockBus) Probe(addr byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailProbe {
		return errors.New(errors.ErrBusOffline, "设备无响应")
	}
	return nil
}

// WriteRegister 记录写入
func (m *MockBus) WriteRegister(addr, reg, value byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailWrite {
		return errors.New(errors.ErrBusWrite, "写寄存器失败")
	}
	m.writes = append(m.writes, RegWrite{Addr: addr, Reg: reg, Value: value})
	return nil
}

// Close 关闭
func (m *MockBus) Close() error {
	return nil
}

// Writes 返回全部写入记录的副本
func (m *MockBus) Writes() []RegWrite {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]RegWrite, len(m.writes))
	copy(out, m.writes)
	return out
}

// LastWrite 返回最后一次写入
func (m *MockBus) LastWrite() (RegWrite, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.writes) == 0 {
		return RegWrite{}, false
	}
	return m.writes[len(m.writes)-1], true
}

// Reset 清空记录
func (m *MockBus) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.writes = nil
}

// MockMatrix 可编程的键盘底层，测试用
type MockMatrix struct {
	mu      sync.Mutex
	key     byte
	pressed bool
}

// Press 模拟按下某键
func (m *MockMatrix) Press(key byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.key = key
	m.pressed = true
}

// Release 模拟松开
func (m *MockMatrix) Release() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pressed = false
}

// ReadKey 读取当前按键
func (m *MockMatrix) ReadKey() (byte, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.key, m.pressed
}
