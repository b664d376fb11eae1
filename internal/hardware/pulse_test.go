package hardware

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestPulseChannel_TakeIfQuiet(t *testing.T) {
	ch := NewPulseChannel(0)
	now := time.Now()

	ch.Edge(now)
	ch.Edge(now.Add(10 * time.Millisecond))

	// 静默期未满，不出组
	n, ok := ch.TakeIfQuiet(now.Add(60*time.Millisecond), 150*time.Millisecond)
	assert.False(t, ok)
	assert.Equal(t, 0, n)
	assert.Equal(t, 2, ch.Pending())

	// 最后一个脉冲之后静默满150ms，整组取走
	n, ok = ch.TakeIfQuiet(now.Add(200*time.Millisecond), 150*time.Millisecond)
	assert.True(t, ok)
	assert.Equal(t, 2, n)
	assert.Equal(t, 0, ch.Pending())

	// 取走后再取返回false
	_, ok = ch.TakeIfQuiet(now.Add(time.Second), 150*time.Millisecond)
	assert.False(t, ok)
}

func TestPulseChannel_QuietWindowRestartsOnNewEdge(t *testing.T) {
	ch := NewPulseChannel(0)
	now := time.Now()

	ch.Edge(now)
	// 新脉冲到来重置静默计时
	ch.Edge(now.Add(140 * time.Millisecond))

	_, ok := ch.TakeIfQuiet(now.Add(200*time.Millisecond), 150*time.Millisecond)
	assert.False(t, ok)

	n, ok := ch.TakeIfQuiet(now.Add(300*time.Millisecond), 150*time.Millisecond)
	assert.True(t, ok)
	assert.Equal(t, 2, n)
}

func TestPulseChannel_Debounce(t *testing.T) {
	ch := NewPulseChannel(75 * time.Millisecond)
	now := time.Now()

	ch.Edge(now)
	// 75ms内的边沿视为抖动
	ch.Edge(now.Add(20 * time.Millisecond))
	ch.Edge(now.Add(40 * time.Millisecond))
	// 超过去抖间隔的边沿计入
	ch.Edge(now.Add(100 * time.Millisecond))

	assert.Equal(t, 2, ch.Pending())
}

func TestPulseChannel_IgnoreUntil(t *testing.T) {
	ch := NewPulseChannel(0)
	now := time.Now()
	ch.IgnoreUntil(now.Add(5 * time.Second))

	// 静默窗口内的脉冲全部丢弃
	ch.Edge(now.Add(time.Second))
	ch.Edge(now.Add(2 * time.Second))
	assert.Equal(t, 0, ch.Pending())

	// 窗口结束后正常计数
	ch.Edge(now.Add(6 * time.Second))
	assert.Equal(t, 1, ch.Pending())
}

func TestPulseChannel_Discard(t *testing.T) {
	ch := NewPulseChannel(0)
	now := time.Now()

	ch.Edge(now)
	ch.Edge(now.Add(time.Millisecond))

	assert.Equal(t, 2, ch.Discard())
	assert.Equal(t, 0, ch.Pending())
}
