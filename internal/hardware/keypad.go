package hardware

import (
	"sync"
	"time"
)

// DefaultKeypadDebounce 按键去抖时间
const DefaultKeypadDebounce = 50 * time.Millisecond

// MatrixKeypad 矩阵键盘去抖包装
// 对底层MatrixIO做去抖和单次触发：一个按键按住期间只上报一次，
// 松开后才会接受下一次按键。
type MatrixKeypad struct {
	io       MatrixIO
	debounce time.Duration

	mu        sync.Mutex
	rawKey    byte      // 正在去抖的原始键值
	rawSince  time.Time // 原始键值首次出现时间
	reported  bool      // 当前按键是否已上报
	havingRaw bool
}

// NewMatrixKeypad 创建键盘包装
func NewMatrixKeypad(io MatrixIO, debounce time.Duration) *MatrixKeypad {
	if debounce <= 0 {
		debounce = DefaultKeypadDebounce
	}
	return &MatrixKeypad{io: io, debounce: debounce}
}

// Poll 轮询键盘，按键稳定超过去抖时间时上报一次
func (k *MatrixKeypad) Poll(now time.Time) (byte, bool) {
	key, pressed := k.io.ReadKey()

	k.mu.Lock()
	defer k.mu.Unlock()

	if !pressed {
		// 松开，复位去抖状态
		k.havingRaw = false
		k.reported = false
		return 0, false
	}

	if !k.havingRaw || key != k.rawKey {
		// 新按键开始去抖计时
		k.rawKey = key
		k.rawSince = now
		k.havingRaw = true
		k.reported = false
		return 0, false
	}

	if k.reported {
		return 0, false
	}
	if now.Sub(k.rawSince) < k.debounce {
		return 0, false
	}

	k.reported = true
	return key, true
}
