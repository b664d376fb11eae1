package vending

import (
	"strconv"
	"time"

	"github.com/wfunc/vending-machine/internal/errors"
)

// NoSlot 无选中货道
const NoSlot = -1

// InputAction 一次按键处理的结果动作
type InputAction int

const (
	// InputNone 无动作
	InputNone InputAction = iota
	// InputUpdated 缓冲或选择有变化，需要重绘
	InputUpdated
	// InputConfirm 确认购买选中货道
	InputConfirm
	// InputCancel 取消选择
	InputCancel
	// InputError 输入错误
	InputError
)

// InputResult 按键处理结果
type InputResult struct {
	Action InputAction
	Slot   int // InputConfirm时的货道下标
	Err    *errors.AppError
}

// InputResolver 键盘输入解析器
// 数字键累积进最多两位的输入缓冲，每按一位立即尝试解析成货道选择。
// 缓冲在以下情况立即定案并清空：已输入两位；货道总数只需一位；或
// 首位数字不可能是任何有效两位货道号的十位（提前定案）。
type InputResolver struct {
	buffer     string
	selected   int
	selectedAt time.Time
	lastKeyAt  time.Time
}

// NewInputResolver 创建输入解析器
func NewInputResolver() *InputResolver {
	return &InputResolver{selected: NoSlot}
}

// Selected 当前选中货道（0起，NoSlot表示无）
func (r *InputResolver) Selected() int {
	return r.selected
}

// Buffer 当前输入缓冲
func (r *InputResolver) Buffer() string {
	return r.buffer
}

// Clear 清空缓冲和选择
func (r *InputResolver) Clear() {
	r.buffer = ""
	r.selected = NoSlot
}

// HandleKey 处理一个去抖后的按键
func (r *InputResolver) HandleKey(now time.Time, key byte, activeSlots int) InputResult {
	r.lastKeyAt = now

	switch {
	case key >= '0' && key <= '9':
		return r.handleDigit(now, key, activeSlots)
	case key == '#':
		return r.handleConfirm(activeSlots)
	case key == '*':
		r.Clear()
		return InputResult{Action: InputCancel}
	default:
		// 功能键不参与选货
		return InputResult{Action: InputNone}
	}
}

func (r *InputResolver) handleDigit(now time.Time, key byte, activeSlots int) InputResult {
	// 缓冲已满时从头再来，不溢出
	if len(r.buffer) >= 2 {
		r.buffer = ""
	}
	r.buffer += string(key)

	n, _ := strconv.Atoi(r.buffer)
	if n >= 1 && n <= activeSlots {
		// 边输入边选中，不等确认键
		r.selected = n - 1
		r.selectedAt = now
	}

	if r.bufferFinal(activeSlots) {
		if n < 1 || n > activeSlots {
			// 单个无效数字先留在缓冲里：用户可能还要补第二位，
			// 等键盘超时自然丢弃。两位输完还无效才报错清空。
			if len(r.buffer) < 2 {
				return InputResult{Action: InputUpdated}
			}
			slot := n
			r.Clear()
			return InputResult{
				Action: InputError,
				Err:    errors.Newf(errors.ErrInvalidSlot, "无效货道: %d", slot),
			}
		}
		r.buffer = ""
	}
	return InputResult{Action: InputUpdated}
}

// bufferFinal 判断当前缓冲是否已经定案
func (r *InputResolver) bufferFinal(activeSlots int) bool {
	if len(r.buffer) >= 2 {
		return true
	}
	if activeSlots < 10 {
		return true
	}
	// 首位数字大于最大货道号的十位时，不可能再组成有效两位号
	first := int(r.buffer[0] - '0')
	return first > activeSlots/10
}

func (r *InputResolver) handleConfirm(activeSlots int) InputResult {
	// 缓冲里还有未定案的输入，先解析
	if r.buffer != "" {
		n, _ := strconv.Atoi(r.buffer)
		r.buffer = ""
		if n >= 1 && n <= activeSlots {
			r.selected = n - 1
		}
	}

	if r.selected == NoSlot {
		return InputResult{
			Action: InputError,
			Err:    errors.New(errors.ErrNoSlotSelected, "请先选择货道"),
		}
	}

	slot := r.selected
	return InputResult{Action: InputConfirm, Slot: slot}
}

// Tick 处理输入缓冲超时和选择超时，有变化时返回true要求重绘
func (r *InputResolver) Tick(now time.Time, keypadTimeout, selectionTimeout time.Duration) bool {
	changed := false
	if r.buffer != "" && now.Sub(r.lastKeyAt) >= keypadTimeout {
		// 等不到下一位数字，丢弃缓冲，已解析的选择保留
		r.buffer = ""
		changed = true
	}
	if r.selected != NoSlot && now.Sub(r.selectedAt) >= selectionTimeout {
		r.selected = NoSlot
		changed = true
	}
	return changed
}

// MarkSelected 重置选择计时（确认失败后给用户留时间改选）
func (r *InputResolver) MarkSelected(now time.Time) {
	if r.selected != NoSlot {
		r.selectedAt = now
	}
}
