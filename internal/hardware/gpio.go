package hardware

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/wfunc/vending-machine/internal/errors"
	"github.com/wfunc/vending-machine/internal/logger"
	"go.uber.org/zap"
)

// sysfs GPIO封装。板子的用户侧信号（投币脉冲、纸币脉冲、键盘矩阵、
// 蜂鸣器、纸币禁止线、复位按钮）都接在主控GPIO上，不走扩展板总线。

const gpioRoot = "/sys/class/gpio"

// DefaultGPIOPollInterval 输入脚轮询周期
const DefaultGPIOPollInterval = time.Millisecond

// Pin 一个已导出的GPIO脚
type Pin struct {
	number    int
	valuePath string
}

// ExportPin 导出GPIO脚并设置方向（"in"或"out"）
func ExportPin(number int, direction string) (*Pin, error) {
	pinDir := filepath.Join(gpioRoot, fmt.Sprintf("gpio%d", number))
	if _, err := os.Stat(pinDir); os.IsNotExist(err) {
		if err := os.WriteFile(filepath.Join(gpioRoot, "export"),
			[]byte(fmt.Sprintf("%d", number)), 0o644); err != nil {
			return nil, errors.Wrapf(err, errors.ErrGPIOExport, "导出GPIO%d失败", number)
		}
		// 内核建目录和udev改权限需要一点时间
		time.Sleep(50 * time.Millisecond)
	}

	if err := os.WriteFile(filepath.Join(pinDir, "direction"),
		[]byte(direction), 0o644); err != nil {
		return nil, errors.Wrapf(err, errors.ErrGPIOExport, "设置GPIO%d方向失败", number)
	}

	return &Pin{
		number:    number,
		valuePath: filepath.Join(pinDir, "value"),
	}, nil
}

// Read 读电平
func (p *Pin) Read() (bool, error) {
	data, err := os.ReadFile(p.valuePath)
	if err != nil {
		return false, errors.Wrapf(err, errors.ErrGPIORead, "读GPIO%d失败", p.number)
	}
	return strings.TrimSpace(string(data)) == "1", nil
}

// Write 写电平
func (p *Pin) Write(high bool) error {
	v := "0"
	if high {
		v = "1"
	}
	if err := os.WriteFile(p.valuePath, []byte(v), 0o644); err != nil {
		return errors.Wrapf(err, errors.ErrGPIOWrite, "写GPIO%d失败", p.number)
	}
	return nil
}

// Number 脚号
func (p *Pin) Number() int {
	return p.number
}

// PulseWatcher 轮询输入脚，把上升沿喂给脉冲通道
type PulseWatcher struct {
	pin      *Pin
	channel  *PulseChannel
	interval time.Duration
	last     bool
	logger   *zap.Logger
}

// NewPulseWatcher 创建脉冲轮询器
func NewPulseWatcher(pin *Pin, channel *PulseChannel, interval time.Duration) *PulseWatcher {
	if interval <= 0 {
		interval = DefaultGPIOPollInterval
	}
	return &PulseWatcher{
		pin:      pin,
		channel:  channel,
		interval: interval,
		logger:   logger.GetModuleLogger("hardware.gpio"),
	}
}

// Run 轮询直到ctx取消。读失败只记日志，信号线瞬时故障不终止采集。
func (w *PulseWatcher) Run(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			high, err := w.pin.Read()
			if err != nil {
				w.logger.Warn("脉冲脚读取失败",
					zap.Int("pin", w.pin.Number()), zap.Error(err))
				continue
			}
			if high && !w.last {
				w.channel.Edge(now)
			}
			w.last = high
		}
	}
}

// MatrixScanner 行列扫描的矩阵键盘
// 行脚输出逐行拉高，列脚输入读回电平
type MatrixScanner struct {
	rows []*Pin
	cols []*Pin
}

// 4x3电话式面板的键位布局
var matrixLayout = [4][3]byte{
	{'1', '2', '3'},
	{'4', '5', '6'},
	{'7', '8', '9'},
	{'*', '0', '#'},
}

// NewMatrixScanner 创建矩阵键盘扫描器
func NewMatrixScanner(rowPins, colPins []int) (*MatrixScanner, error) {
	s := &MatrixScanner{}
	for _, n := range rowPins {
		pin, err := ExportPin(n, "out")
		if err != nil {
			return nil, err
		}
		s.rows = append(s.rows, pin)
	}
	for _, n := range colPins {
		pin, err := ExportPin(n, "in")
		if err != nil {
			return nil, err
		}
		s.cols = append(s.cols, pin)
	}
	return s, nil
}

// ReadKey 扫一遍矩阵，返回第一个按下的键
func (s *MatrixScanner) ReadKey() (byte, bool) {
	for ri, row := range s.rows {
		if err := row.Write(true); err != nil {
			continue
		}
		for ci, col := range s.cols {
			high, err := col.Read()
			if err == nil && high && ri < 4 && ci < 3 {
				row.Write(false)
				return matrixLayout[ri][ci], true
			}
		}
		row.Write(false)
	}
	return 0, false
}

// PinSounder 蜂鸣器，短音60ms，错误音两声
type PinSounder struct {
	pin *Pin
}

// NewPinSounder 创建蜂鸣器驱动
func NewPinSounder(pin *Pin) *PinSounder {
	return &PinSounder{pin: pin}
}

func (s *PinSounder) Beep() {
	go s.pulse(1)
}

func (s *PinSounder) BeepError() {
	go s.pulse(2)
}

func (s *PinSounder) pulse(times int) {
	for i := 0; i < times; i++ {
		if i > 0 {
			time.Sleep(80 * time.Millisecond)
		}
		s.pin.Write(true)
		time.Sleep(60 * time.Millisecond)
		s.pin.Write(false)
	}
}

// PinInhibit 纸币器禁止线，拉高禁止收钞
type PinInhibit struct {
	pin    *Pin
	logger *zap.Logger
}

// NewPinInhibit 创建禁止线驱动
func NewPinInhibit(pin *Pin) *PinInhibit {
	return &PinInhibit{
		pin:    pin,
		logger: logger.GetModuleLogger("hardware.gpio"),
	}
}

// SetInhibit 设置禁止状态
func (p *PinInhibit) SetInhibit(on bool) {
	if err := p.pin.Write(on); err != nil {
		p.logger.Warn("禁止线写入失败", zap.Error(err))
	}
}

// PinButton 物理按钮输入，按下为高电平
type PinButton struct {
	pin *Pin
}

// NewPinButton 创建按钮输入
func NewPinButton(pin *Pin) *PinButton {
	return &PinButton{pin: pin}
}

// Pressed 当前是否按下
func (b *PinButton) Pressed() bool {
	high, err := b.pin.Read()
	return err == nil && high
}
