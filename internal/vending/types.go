package vending

import (
	"context"
	"time"
)

// Cents 金额，单位分。全系统金额一律用分计，避免浮点误差。
type Cents int64

// MaxSlots 货道上限，继电器扩展板两组各8路
const MaxSlots = 16

// SystemState 整机状态
type SystemState int

const (
	// StateIdle 空闲
	StateIdle SystemState = iota
	// StateUserInteraction 用户交互中（有余额或有按键）
	StateUserInteraction
	// StateErrorDisplay 错误展示中，到期自动回到空闲
	StateErrorDisplay
	// StateMaintenanceUpdate 固件升级中，主逻辑挂起
	StateMaintenanceUpdate
)

// String 状态名
func (s SystemState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateUserInteraction:
		return "user_interaction"
	case StateErrorDisplay:
		return "error_display"
	case StateMaintenanceUpdate:
		return "maintenance_update"
	default:
		return "unknown"
	}
}

// Screen 显示意图，具体排版由显示实现负责
type Screen int

const (
	// ScreenIdle 待机画面（标语+余额）
	ScreenIdle Screen = iota
	// ScreenInput 输入中画面（余额+输入缓冲）
	ScreenInput
	// ScreenSlotDetail 货道详情画面（选中货道+价格）
	ScreenSlotDetail
	// ScreenDispensing 出货中画面
	ScreenDispensing
	// ScreenError 错误画面
	ScreenError
	// ScreenMaintenance 升级维护画面
	ScreenMaintenance
)

// View 一帧显示内容
type View struct {
	Screen  Screen
	Credit  Cents
	Slot    int    // 选中货道（0起，-1表示无）
	Price   Cents  // 选中货道价格
	Buffer  string // 键盘输入缓冲
	Message string // 错误或提示文本
}

// Slot 单个货道状态
type Slot struct {
	Price     Cents `json:"price_cents"`
	Available bool  `json:"available"`
	Locked    bool  `json:"locked"`
}

// DispenseState 出货状态机状态
type DispenseState int

const (
	// DispenseIdle 无出货任务
	DispenseIdle DispenseState = iota
	// DispenseActivating 任务已建立，等待下一tick吸合继电器
	DispenseActivating
	// DispenseOpen 继电器已吸合，等待开启时长结束
	DispenseOpen
)

// DispenseJob 出货任务，全系统同一时刻最多只有一个
type DispenseJob struct {
	State          DispenseState
	Slot           int
	StartedAt      time.Time
	RelayActivated bool
	Test           bool // 管理端继电器测试，不扣款不动库存
}

// Active 任务是否在进行中
func (j *DispenseJob) Active() bool {
	return j.State != DispenseIdle
}

// Store 持久化键值存储接口，每次变更只写变化的字段
type Store interface {
	GetString(ctx context.Context, key string, defaultValue string) string
	GetInt(ctx context.Context, key string, defaultValue int) int
	GetInt64(ctx context.Context, key string, defaultValue int64) int64
	GetBool(ctx context.Context, key string, defaultValue bool) bool
	Set(ctx context.Context, key string, value interface{}) error
}

// Display 显示接收端，核心只推送意图和重绘请求
type Display interface {
	Render(view View)
}

// Actuator 继电器驱动接口
type Actuator interface {
	// Activate 吸合货道继电器
	Activate(slot int) error
	// Deactivate 断开货道继电器
	Deactivate(slot int) error
	// Online 最近一次探测的在线状态
	Online() bool
	// Check 重新探测并返回在线状态
	Check() bool
	// AllOff 全部断开
	AllOff() error
}

// PulseSource 脉冲通道接口，中断侧写入，tick侧取走
type PulseSource interface {
	TakeIfQuiet(now time.Time, quiet time.Duration) (int, bool)
	Discard() int
	IgnoreUntil(t time.Time)
	Pending() int
}

// Keypad 键盘接口，Poll对一次物理按压只返回一次
type Keypad interface {
	Poll(now time.Time) (key byte, ok bool)
}

// Sounder 提示音接口
type Sounder interface {
	Beep()
	BeepError()
}

// InhibitLine 纸币器禁止线，拉高后纸币器拒收
type InhibitLine interface {
	SetInhibit(on bool)
}

// NopInhibit 空实现
type NopInhibit struct{}

func (NopInhibit) SetInhibit(bool) {}

// ResetInput 出厂复位按钮输入
type ResetInput interface {
	Pressed() bool
}

// NotifyEventType 通知事件类型
type NotifyEventType int

const (
	// NotifySale 售出一件
	NotifySale NotifyEventType = iota
	// NotifyStockLow 库存不足
	NotifyStockLow
	// NotifyStockEmpty 库存售罄
	NotifyStockEmpty
	// NotifyTest 测试消息
	NotifyTest
)

// NotifyEvent 一条待投递的通知
type NotifyEvent struct {
	Type           NotifyEventType
	Slot           int   // 0起，-1表示与货道无关
	PriceCents     Cents // 售出事件的成交金额
	AvailableCount int   // 库存事件时刻的可售货道数
	Text           string
}

// Notifier 通知接收端，投递失败只记日志，核心不阻塞不重试
type Notifier interface {
	Notify(ctx context.Context, event NotifyEvent)
}

// NopNotifier 空实现
type NopNotifier struct{}

func (NopNotifier) Notify(context.Context, NotifyEvent) {}

// SaleSink 销售记录落库接口
type SaleSink interface {
	Record(ctx context.Context, slot int, price, creditAfter Cents) error
}
