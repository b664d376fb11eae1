package vending

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestCoinValue(t *testing.T) {
	cases := []struct {
		pulses int
		amount Cents
		valid  bool
	}{
		{0, 0, false},
		{1, 0, false},
		{2, 10, true},
		{3, 20, true},
		{4, 50, true},
		{5, 100, true},
		{6, 200, true},
		{7, 0, false},
		{-1, 0, false},
		{100, 0, false},
	}
	for _, c := range cases {
		amount, valid := CoinValue(c.pulses)
		assert.Equal(t, c.valid, valid, "pulses=%d", c.pulses)
		assert.Equal(t, c.amount, amount, "pulses=%d", c.pulses)
	}
}

func TestBillValue(t *testing.T) {
	amount, ok := BillValue(4)
	assert.True(t, ok)
	assert.Equal(t, Cents(500), amount)

	amount, ok = BillValue(8)
	assert.True(t, ok)
	assert.Equal(t, Cents(1000), amount)

	amount, ok = BillValue(16)
	assert.True(t, ok)
	assert.Equal(t, Cents(2000), amount)

	_, ok = BillValue(5)
	assert.False(t, ok)
	_, ok = BillValue(0)
	assert.False(t, ok)
}

// N个脉冲在分组窗口内到达、之后静默，整组只产生一个收款事件
func TestPulseAccumulator_GroupsOneEvent(t *testing.T) {
	coin := &fakePulse{}
	bill := &fakePulse{}
	acc := NewPulseAccumulator(coin, bill)
	now := time.Now()

	coin.Edge(now)
	coin.Edge(now.Add(30 * time.Millisecond))
	coin.Edge(now.Add(60 * time.Millisecond))

	// 静默未满
	events := acc.Tick(now.Add(100*time.Millisecond), DefaultCoinQuiet, DefaultBillQuiet)
	assert.Empty(t, events)

	// 静默满150ms，3脉冲=0.20
	events = acc.Tick(now.Add(250*time.Millisecond), DefaultCoinQuiet, DefaultBillQuiet)
	assert.Len(t, events, 1)
	assert.Equal(t, ChannelCoin, events[0].Channel)
	assert.Equal(t, 3, events[0].Pulses)
	assert.Equal(t, Cents(20), events[0].Amount)

	// 取走后不再产生事件
	events = acc.Tick(now.Add(time.Second), DefaultCoinQuiet, DefaultBillQuiet)
	assert.Empty(t, events)
}

// 域外脉冲数丢弃，不产生事件
func TestPulseAccumulator_InvalidPulsesDiscarded(t *testing.T) {
	coin := &fakePulse{}
	bill := &fakePulse{}
	acc := NewPulseAccumulator(coin, bill)
	now := time.Now()

	// 1脉冲映射为0值
	coin.Edge(now)
	events := acc.Tick(now.Add(200*time.Millisecond), DefaultCoinQuiet, DefaultBillQuiet)
	assert.Empty(t, events)
	assert.Equal(t, 0, coin.Pending())

	// 纸币5脉冲不在表内
	for i := 0; i < 5; i++ {
		bill.Edge(now.Add(time.Duration(i) * 100 * time.Millisecond))
	}
	events = acc.Tick(now.Add(3*time.Second), DefaultCoinQuiet, DefaultBillQuiet)
	assert.Empty(t, events)
	assert.Equal(t, 0, bill.Pending())
}

func TestPulseAccumulator_BothChannelsSameTick(t *testing.T) {
	coin := &fakePulse{}
	bill := &fakePulse{}
	acc := NewPulseAccumulator(coin, bill)
	now := time.Now()

	coin.Edge(now)
	coin.Edge(now.Add(10 * time.Millisecond))
	for i := 0; i < 4; i++ {
		bill.Edge(now.Add(time.Duration(i) * 50 * time.Millisecond))
	}

	events := acc.Tick(now.Add(3*time.Second), DefaultCoinQuiet, DefaultBillQuiet)
	assert.Len(t, events, 2)
	assert.Equal(t, Cents(10), events[0].Amount)
	assert.Equal(t, Cents(500), events[1].Amount)
}

// 继电器噪声抑制只清纸币通道，投币脉冲照常保留结算
func TestPulseAccumulator_DiscardBillOnly(t *testing.T) {
	coin := &fakePulse{}
	bill := &fakePulse{}
	acc := NewPulseAccumulator(coin, bill)
	now := time.Now()

	coin.Edge(now)
	coin.Edge(now.Add(10 * time.Millisecond))
	bill.Edge(now)
	acc.DiscardBill(now.Add(time.Second))

	assert.Equal(t, 2, coin.Pending())
	assert.Equal(t, 0, bill.Pending())

	// 静默窗口内的新纸币脉冲被丢弃，投币脉冲不受影响
	bill.Edge(now.Add(500 * time.Millisecond))
	assert.Equal(t, 0, bill.Pending())
	coin.Edge(now.Add(500 * time.Millisecond))
	assert.Equal(t, 3, coin.Pending())
	bill.Edge(now.Add(2 * time.Second))
	assert.Equal(t, 1, bill.Pending())

	// 保留的投币脉冲静默满后正常结算为0.20
	events := acc.Tick(now.Add(time.Second), DefaultCoinQuiet, DefaultBillQuiet)
	assert.Len(t, events, 1)
	assert.Equal(t, ChannelCoin, events[0].Channel)
	assert.Equal(t, Cents(20), events[0].Amount)
}
