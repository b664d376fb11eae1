package vending

import (
	"time"

	"github.com/wfunc/vending-machine/internal/logger"
	"go.uber.org/zap"
)

// PaymentChannel 收款通道
type PaymentChannel int

const (
	// ChannelCoin 投币器
	ChannelCoin PaymentChannel = iota
	// ChannelBill 纸币器
	ChannelBill
)

// String 通道名
func (c PaymentChannel) String() string {
	if c == ChannelBill {
		return "bill"
	}
	return "coin"
}

// coinPulseValue 投币器脉冲数对应金额（分），下标即脉冲数
// 0脉冲和1脉冲都是噪声，映射为0
var coinPulseValue = [...]Cents{0, 0, 10, 20, 50, 100, 200}

// billPulseValue 纸币器脉冲数对应金额（分）
var billPulseValue = map[int]Cents{
	4:  500,
	8:  1000,
	16: 2000,
}

// CoinValue 投币脉冲数换算金额。域外或映射为0的脉冲数返回(0, false)。
func CoinValue(pulses int) (Cents, bool) {
	if pulses < 0 || pulses >= len(coinPulseValue) {
		return 0, false
	}
	v := coinPulseValue[pulses]
	return v, v > 0
}

// BillValue 纸币脉冲数换算金额
func BillValue(pulses int) (Cents, bool) {
	v, ok := billPulseValue[pulses]
	return v, ok
}

// PaymentEvent 一次完整的收款事件
type PaymentEvent struct {
	Channel PaymentChannel
	Pulses  int
	Amount  Cents
}

// PulseAccumulator 脉冲累加器
// 每个tick检查两个脉冲通道，脉冲串静默满分组时间后整组取走换算金额。
// 域外脉冲数和零值映射是电气噪声，记日志后丢弃，不影响余额。
type PulseAccumulator struct {
	coin   PulseSource
	bill   PulseSource
	logger *zap.Logger
}

// NewPulseAccumulator 创建脉冲累加器
func NewPulseAccumulator(coin, bill PulseSource) *PulseAccumulator {
	return &PulseAccumulator{
		coin:   coin,
		bill:   bill,
		logger: logger.GetModuleLogger("vending.pulse"),
	}
}

// Tick 检查两个通道，返回本tick接受的收款事件（最多各一条）
func (a *PulseAccumulator) Tick(now time.Time, coinQuiet, billQuiet time.Duration) []PaymentEvent {
	var events []PaymentEvent

	if n, ok := a.coin.TakeIfQuiet(now, coinQuiet); ok {
		if amount, valid := CoinValue(n); valid {
			events = append(events, PaymentEvent{Channel: ChannelCoin, Pulses: n, Amount: amount})
		} else {
			a.logger.Warn("投币脉冲数无效，丢弃",
				zap.Int("pulses", n))
		}
	}

	if n, ok := a.bill.TakeIfQuiet(now, billQuiet); ok {
		if amount, valid := BillValue(n); valid {
			events = append(events, PaymentEvent{Channel: ChannelBill, Pulses: n, Amount: amount})
		} else {
			a.logger.Warn("纸币脉冲数无效，丢弃",
				zap.Int("pulses", n))
		}
	}

	return events
}

// BillPending 纸币通道是否有脉冲正在累积
func (a *PulseAccumulator) BillPending() bool {
	return a.bill.Pending() > 0
}

// DiscardBill 丢弃纸币通道的累积脉冲并设置静默窗口
// 继电器动作只在纸币线上感应出噪声级脉冲，出货前后调用。
// 投币通道不清：投币器脉冲串照常按静默期结算，已投的钱不丢。
func (a *PulseAccumulator) DiscardBill(until time.Time) {
	if n := a.bill.Discard(); n > 0 {
		a.logger.Debug("丢弃纸币噪声脉冲", zap.Int("pulses", n))
	}
	a.bill.IgnoreUntil(until)
}
