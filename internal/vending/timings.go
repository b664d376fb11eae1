package vending

import (
	"context"
	"time"

	"github.com/wfunc/vending-machine/internal/repository"
)

// 时间参数默认值。都可以通过管理接口调整并持久化。
const (
	// DefaultCoinQuiet 投币脉冲分组静默期
	DefaultCoinQuiet = 150 * time.Millisecond
	// DefaultBillQuiet 纸币脉冲分组静默期，纸币器出脉冲慢
	DefaultBillQuiet = 1500 * time.Millisecond
	// DefaultBillDebounce 纸币脉冲电平去抖
	DefaultBillDebounce = 75 * time.Millisecond
	// DefaultDispenseOpen 出货继电器开启时长
	DefaultDispenseOpen = 5 * time.Second
	// DefaultKeypadTimeout 输入缓冲等待下一位数字的时长
	DefaultKeypadTimeout = 3 * time.Second
	// DefaultSelectionTimeout 选中后未确认的保留时长
	DefaultSelectionTimeout = 10 * time.Second
	// DefaultDisplayTimeout 无操作回到待机画面的时长
	DefaultDisplayTimeout = 20 * time.Second
	// DefaultErrorDwell 错误画面停留时长
	DefaultErrorDwell = 3 * time.Second
	// DefaultStartupBillIgnore 上电后纸币通道静默窗口，挡自检假脉冲
	DefaultStartupBillIgnore = 5 * time.Second
	// DefaultRelayNoiseQuiet 继电器动作后脉冲通道静默窗口
	DefaultRelayNoiseQuiet = 1 * time.Second
	// DefaultFactoryResetHold 出厂复位按钮长按时长
	DefaultFactoryResetHold = 7 * time.Second
	// DefaultStockThreshold 库存不足通知阈值
	DefaultStockThreshold = 5
	// DefaultActuatorRecheck 总线离线后重新探测间隔
	DefaultActuatorRecheck = 30 * time.Second
)

// Timings 可调时间参数集合
type Timings struct {
	CoinQuiet        time.Duration `json:"coin_quiet_ms"`
	BillQuiet        time.Duration `json:"bill_quiet_ms"`
	BillDebounce     time.Duration `json:"bill_debounce_ms"`
	DispenseOpen     time.Duration `json:"dispense_open_ms"`
	KeypadTimeout    time.Duration `json:"keypad_timeout_ms"`
	SelectionTimeout time.Duration `json:"selection_timeout_ms"`
	DisplayTimeout   time.Duration `json:"display_timeout_ms"`
}

// DefaultTimings 默认时间参数
func DefaultTimings() Timings {
	return Timings{
		CoinQuiet:        DefaultCoinQuiet,
		BillQuiet:        DefaultBillQuiet,
		BillDebounce:     DefaultBillDebounce,
		DispenseOpen:     DefaultDispenseOpen,
		KeypadTimeout:    DefaultKeypadTimeout,
		SelectionTimeout: DefaultSelectionTimeout,
		DisplayTimeout:   DefaultDisplayTimeout,
	}
}

// LoadTimings 从持久化存储加载时间参数，缺失的键回退默认值
func LoadTimings(ctx context.Context, store Store) Timings {
	d := DefaultTimings()
	ms := func(key string, def time.Duration) time.Duration {
		return time.Duration(store.GetInt(ctx, key, int(def/time.Millisecond))) * time.Millisecond
	}
	return Timings{
		CoinQuiet:        ms(repository.KeyCoinDelay, d.CoinQuiet),
		BillQuiet:        ms(repository.KeyBillGroupTimeout, d.BillQuiet),
		BillDebounce:     ms(repository.KeyBillDebounce, d.BillDebounce),
		DispenseOpen:     ms(repository.KeyDispenseTime, d.DispenseOpen),
		KeypadTimeout:    ms(repository.KeyKeypadTimeout, d.KeypadTimeout),
		SelectionTimeout: ms(repository.KeySelectionTimeout, d.SelectionTimeout),
		DisplayTimeout:   ms(repository.KeyDisplayTimeout, d.DisplayTimeout),
	}
}

// SaveTimings 把时间参数逐键写入持久化存储
func SaveTimings(ctx context.Context, store Store, t Timings) error {
	pairs := []struct {
		key string
		val time.Duration
	}{
		{repository.KeyCoinDelay, t.CoinQuiet},
		{repository.KeyBillGroupTimeout, t.BillQuiet},
		{repository.KeyBillDebounce, t.BillDebounce},
		{repository.KeyDispenseTime, t.DispenseOpen},
		{repository.KeyKeypadTimeout, t.KeypadTimeout},
		{repository.KeySelectionTimeout, t.SelectionTimeout},
		{repository.KeyDisplayTimeout, t.DisplayTimeout},
	}
	for _, p := range pairs {
		if err := store.Set(ctx, p.key, int(p.val/time.Millisecond)); err != nil {
			return err
		}
	}
	return nil
}
