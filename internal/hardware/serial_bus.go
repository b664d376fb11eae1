package hardware

import (
	"io"
	"sync"
	"time"

	"github.com/tarm/serial"
	"github.com/wfunc/vending-machine/internal/errors"
	"github.com/wfunc/vending-machine/internal/logger"
	"go.uber.org/zap"
)

// 串口帧格式：[STX, addr, reg, value, checksum]
// checksum = addr ^ reg ^ value
// 探测帧reg固定为0x00，设备在线时回ACK
const (
	frameSTX = 0x5A
	frameACK = 0x06
)

// SerialBusConfig 串口总线配置
type SerialBusConfig struct {
	Port        string        // 串口端口
	BaudRate    int           // 波特率
	ReadTimeout time.Duration // 读超时
}

// DefaultSerialBusConfig 默认配置
func DefaultSerialBusConfig() *SerialBusConfig {
	return &SerialBusConfig{
		Port:        "/dev/ttyS1",
		BaudRate:    115200,
		ReadTimeout: 100 * time.Millisecond,
	}
}

// SerialBus 串口桥接的扩展板总线
type SerialBus struct {
	config *SerialBusConfig
	mu     sync.Mutex
	port   io.ReadWriteCloser
	logger *zap.Logger
}

// NewSerialBus 创建串口总线
func NewSerialBus(config *SerialBusConfig) *SerialBus {
	if config == nil {
		config = DefaultSerialBusConfig()
	}
	return &SerialBus{
		config: config,
		logger: logger.GetModuleLogger("hardware.bus"),
	}
}

// Open 打开串口
func (b *SerialBus) Open() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.port != nil {
		return nil
	}

	port, err := serial.OpenPort(&serial.Config{
		Name:        b.config.Port,
		Baud:        b.config.BaudRate,
		ReadTimeout: b.config.ReadTimeout,
	})
	if err != nil {
		return errors.Wrap(err, errors.ErrSerialPortOpen, "打开串口失败")
	}

	b.port = port
	b.logger.Info("串口总线已打开",
		zap.String("port", b.config.Port),
		zap.Int("baud", b.config.BaudRate))
	return nil
}

// Probe 探测设备是否在线
func (b *SerialBus) Probe(addr byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.port == nil {
		return errors.New(errors.ErrBusOffline, "总线未打开")
	}

	frame := buildFrame(addr, 0x00, 0x00)
	if _, err := b.port.Write(frame); err != nil {
		return errors.Wrap(err, errors.ErrBusWrite, "探测帧发送失败")
	}

	buf := make([]byte, 1)
	n, err := b.port.Read(buf)
	if err != nil || n == 0 || buf[0] != frameACK {
		return errors.New(errors.ErrBusOffline, "设备无响应")
	}
	return nil
}

// WriteRegister 写寄存器
func (b *SerialBus) WriteRegister(addr, reg, value byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.port == nil {
		return errors.New(errors.ErrBusOffline, "总线未打开")
	}

	frame := buildFrame(addr, reg, value)
	if _, err := b.port.Write(frame); err != nil {
		logger.LogBusCommand(addr, reg, value, err)
		return errors.Wrap(err, errors.ErrBusWrite, "写寄存器失败")
	}

	buf := make([]byte, 1)
	n, err := b.port.Read(buf)
	if err != nil || n == 0 || buf[0] != frameACK {
		logger.LogBusCommand(addr, reg, value, errors.New(errors.ErrBusWrite, "无ACK"))
		return errors.New(errors.ErrBusWrite, "写寄存器未确认")
	}

	logger.LogBusCommand(addr, reg, value, nil)
	return nil
}

// Close 关闭串口
func (b *SerialBus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.port == nil {
		return nil
	}
	err := b.port.Close()
	b.port = nil
	return err
}

// buildFrame 构造命令帧
func buildFrame(addr, reg, value byte) []byte {
	return []byte{frameSTX, addr, reg, value, addr ^ reg ^ value}
}
