package hardware

import (
	"sync"
	"time"
)

// PulseChannel 脉冲通道
// 投币器和纸币器的脉冲输出落在这里。Edge由中断回调（或GPIO监听goroutine）
// 调用，是唯一的递增入口；主循环通过TakeIfQuiet在脉冲串静默后一次性取走
// 整组计数，保证一张纸币的多个脉冲被当作一个整体结算。
type PulseChannel struct {
	mu        sync.Mutex
	count     int
	lastPulse time.Time

	debounce    time.Duration // 相邻脉冲最小间隔，0表示不去抖
	ignoreUntil time.Time     // 此时间之前的脉冲全部丢弃
}

// NewPulseChannel 创建脉冲通道
func NewPulseChannel(debounce time.Duration) *PulseChannel {
	return &PulseChannel{debounce: debounce}
}

// IgnoreUntil 设置静默窗口，窗口内的脉冲全部丢弃
// 上电后纸币器自检会输出假脉冲，用这个窗口挡掉
func (c *PulseChannel) IgnoreUntil(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ignoreUntil = t
}

// Edge 记录一个脉冲边沿
func (c *PulseChannel) Edge(now time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if now.Before(c.ignoreUntil) {
		return
	}
	if c.debounce > 0 && c.count > 0 && now.Sub(c.lastPulse) < c.debounce {
		return
	}
	c.count++
	c.lastPulse = now
}

// TakeIfQuiet 脉冲串静默满quiet后取走计数并清零
// 静默期未到或没有脉冲时返回(0, false)，计数保持不动
func (c *PulseChannel) TakeIfQuiet(now time.Time, quiet time.Duration) (int, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.count == 0 {
		return 0, false
	}
	if now.Sub(c.lastPulse) < quiet {
		return 0, false
	}
	n := c.count
	c.count = 0
	return n, true
}

// Discard 丢弃累积的脉冲
// 继电器动作会在脉冲线上感应出噪声，出货前后各清一次
func (c *PulseChannel) Discard() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := c.count
	c.count = 0
	return n
}

// Pending 当前累积的脉冲数（状态上报用）
func (c *PulseChannel) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.count
}
