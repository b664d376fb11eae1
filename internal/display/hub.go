package display

import (
	"fmt"
	"sync"

	"github.com/wfunc/vending-machine/internal/logger"
	"github.com/wfunc/vending-machine/internal/vending"
	"go.uber.org/zap"
)

// Frame 推送给前面板和管理端的一帧画面
type Frame struct {
	Screen  string `json:"screen"`
	Credit  string `json:"credit"`  // 格式化金额，如"4.80"
	Slot    int    `json:"slot"`    // 1起，0表示无
	Price   string `json:"price"`   // 选中货道价格
	Buffer  string `json:"buffer"`  // 键盘输入回显
	Message string `json:"message"` // 标语或错误文本
}

// Hub 显示中枢
// 保存最新一帧并广播给全部订阅者（websocket管理端实时预览等）。
// 主循环只在画面变化时调用Render，排版由这里完成。
type Hub struct {
	mu     sync.RWMutex
	latest Frame
	subs   map[chan Frame]struct{}
	logger *zap.Logger
}

// NewHub 创建显示中枢
func NewHub() *Hub {
	return &Hub{
		subs:   make(map[chan Frame]struct{}),
		logger: logger.GetModuleLogger("display"),
	}
}

// Render 接收核心推来的显示意图，排版后广播
func (h *Hub) Render(view vending.View) {
	frame := layout(view)

	h.mu.Lock()
	h.latest = frame
	for ch := range h.subs {
		select {
		case ch <- frame:
		default:
			// 订阅者跟不上就丢帧，绝不阻塞主循环
		}
	}
	h.mu.Unlock()

	h.logger.Debug("重绘",
		zap.String("screen", frame.Screen),
		zap.String("message", frame.Message))
}

// Latest 最新一帧
func (h *Hub) Latest() Frame {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.latest
}

// Subscribe 订阅后续帧
func (h *Hub) Subscribe() chan Frame {
	ch := make(chan Frame, 8)
	h.mu.Lock()
	h.subs[ch] = struct{}{}
	h.mu.Unlock()
	return ch
}

// Unsubscribe 退订
func (h *Hub) Unsubscribe(ch chan Frame) {
	h.mu.Lock()
	delete(h.subs, ch)
	h.mu.Unlock()
	close(ch)
}

// layout 把显示意图排成一帧
func layout(view vending.View) Frame {
	frame := Frame{
		Credit: FormatCents(view.Credit),
		Buffer: view.Buffer,
	}
	if view.Slot >= 0 {
		frame.Slot = view.Slot + 1
	}

	switch view.Screen {
	case vending.ScreenIdle:
		frame.Screen = "idle"
		frame.Message = view.Message
	case vending.ScreenInput:
		frame.Screen = "input"
	case vending.ScreenSlotDetail:
		frame.Screen = "slot"
		frame.Price = FormatCents(view.Price)
	case vending.ScreenDispensing:
		frame.Screen = "dispensing"
		frame.Message = "出货中，请稍候"
	case vending.ScreenError:
		frame.Screen = "error"
		frame.Message = view.Message
	case vending.ScreenMaintenance:
		frame.Screen = "maintenance"
		frame.Message = "系统升级中"
	}
	return frame
}

// FormatCents 分转元的两位小数字符串
func FormatCents(c vending.Cents) string {
	sign := ""
	if c < 0 {
		sign = "-"
		c = -c
	}
	return fmt.Sprintf("%s%d.%02d", sign, c/100, c%100)
}
