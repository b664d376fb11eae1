package errors

import (
	"fmt"
	"strings"
)

// ErrorCode 错误码类型
type ErrorCode int

// 错误码定义（按模块分组）
const (
	// 通用错误 (1000-1999)
	ErrUnknown      ErrorCode = 1000
	ErrInvalidParam ErrorCode = 1001
	ErrNotFound     ErrorCode = 1002
	ErrTimeout      ErrorCode = 1003

	// 支付错误 (2000-2999)
	ErrPulseOutOfRange    ErrorCode = 2000
	ErrPulseZeroValue     ErrorCode = 2001
	ErrInsufficientCredit ErrorCode = 2002

	// 硬件错误 (3000-3999)
	ErrBusOffline       ErrorCode = 3000
	ErrBusWrite         ErrorCode = 3001
	ErrInvalidSlotIndex ErrorCode = 3002
	ErrSerialPortOpen   ErrorCode = 3003
	ErrGPIOExport       ErrorCode = 3004
	ErrGPIORead         ErrorCode = 3005
	ErrGPIOWrite        ErrorCode = 3006

	// 出货错误 (4000-4999)
	ErrDispenseBusy    ErrorCode = 4000
	ErrSlotLocked      ErrorCode = 4001
	ErrSlotEmpty       ErrorCode = 4002
	ErrNoSlotSelected  ErrorCode = 4003
	ErrInvalidSlot     ErrorCode = 4004
	ErrRelayActivation ErrorCode = 4005

	// 存储错误 (5000-5999)
	ErrStoreConnect ErrorCode = 5000
	ErrStoreRead    ErrorCode = 5001
	ErrStoreWrite   ErrorCode = 5002

	// 配置错误 (6000-6999)
	ErrConfigLoad  ErrorCode = 6000
	ErrConfigParse ErrorCode = 6001

	// 认证错误 (7000-7999)
	ErrAuthentication  ErrorCode = 7000
	ErrTokenExpired    ErrorCode = 7001
	ErrTokenInvalid    ErrorCode = 7002
	ErrWrongPassword   ErrorCode = 7003
	ErrTokenGeneration ErrorCode = 7004

	// 升级错误 (8000-8999)
	ErrUpgradeInProgress ErrorCode = 8000
	ErrUpgradeWrite      ErrorCode = 8001
	ErrUpgradeFinalize   ErrorCode = 8002
)

// 错误码消息映射
var errorMessages = map[ErrorCode]string{
	ErrUnknown:      "未知错误",
	ErrInvalidParam: "无效的参数",
	ErrNotFound:     "资源未找到",
	ErrTimeout:      "操作超时",

	ErrPulseOutOfRange:    "脉冲数超出映射表范围",
	ErrPulseZeroValue:     "脉冲数对应金额为零",
	ErrInsufficientCredit: "余额不足",

	ErrBusOffline:       "继电器总线离线",
	ErrBusWrite:         "总线写入失败",
	ErrInvalidSlotIndex: "无效的货道编号",
	ErrSerialPortOpen:   "串口打开失败",
	ErrGPIOExport:       "GPIO导出失败",
	ErrGPIORead:         "GPIO读取失败",
	ErrGPIOWrite:        "GPIO写入失败",

	ErrDispenseBusy:    "出货任务进行中",
	ErrSlotLocked:      "货道已锁定",
	ErrSlotEmpty:       "货道已售空",
	ErrNoSlotSelected:  "未选择货道",
	ErrInvalidSlot:     "货道编号无效",
	ErrRelayActivation: "继电器激活失败",

	ErrStoreConnect: "存储连接失败",
	ErrStoreRead:    "存储读取失败",
	ErrStoreWrite:   "存储写入失败",

	ErrConfigLoad:  "配置加载失败",
	ErrConfigParse: "配置解析失败",

	ErrAuthentication:  "认证失败",
	ErrTokenExpired:    "令牌已过期",
	ErrTokenInvalid:    "无效的令牌",
	ErrWrongPassword:   "密码错误",
	ErrTokenGeneration: "令牌生成失败",

	ErrUpgradeInProgress: "固件升级进行中",
	ErrUpgradeWrite:      "固件写入失败",
	ErrUpgradeFinalize:   "固件更新收尾失败",
}

// AppError 应用错误结构
type AppError struct {
	Code    ErrorCode `json:"code"`    // 错误码
	Message string    `json:"message"` // 错误消息
	Details string    `json:"details"` // 详细信息
	Cause   error     `json:"-"`       // 原始错误
}

// Error 实现error接口
func (e *AppError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("[%d] %s: %s", e.Code, e.Message, e.Details)
	}
	return fmt.Sprintf("[%d] %s", e.Code, e.Message)
}

// Unwrap 返回原始错误
func (e *AppError) Unwrap() error {
	return e.Cause
}

// WithCause 附加原因错误
func (e *AppError) WithCause(cause error) *AppError {
	e.Cause = cause
	if cause != nil && e.Details == "" {
		e.Details = cause.Error()
	}
	return e
}

// New 创建新的应用错误
func New(code ErrorCode, details ...string) *AppError {
	message, ok := errorMessages[code]
	if !ok {
		message = errorMessages[ErrUnknown]
	}

	err := &AppError{
		Code:    code,
		Message: message,
	}

	if len(details) > 0 {
		err.Details = strings.Join(details, "; ")
	}

	return err
}

// Newf 创建格式化的应用错误
func Newf(code ErrorCode, format string, args ...interface{}) *AppError {
	return New(code, fmt.Sprintf(format, args...))
}

// Wrap 包装错误
func Wrap(err error, code ErrorCode, details ...string) *AppError {
	if err == nil {
		return nil
	}

	// 如果已经是AppError，保留原始错误码
	if appErr, ok := err.(*AppError); ok {
		if len(details) > 0 {
			appErr.Details = strings.Join(details, "; ") + "; " + appErr.Details
		}
		return appErr
	}

	appErr := New(code, details...)
	appErr.Cause = err
	if appErr.Details == "" {
		appErr.Details = err.Error()
	}

	return appErr
}

// Wrapf 包装格式化错误
func Wrapf(err error, code ErrorCode, format string, args ...interface{}) *AppError {
	return Wrap(err, code, fmt.Sprintf(format, args...))
}

// Is 判断错误是否为指定错误码
func Is(err error, code ErrorCode) bool {
	if err == nil {
		return false
	}

	appErr, ok := err.(*AppError)
	return ok && appErr.Code == code
}

// GetCode 获取错误码
func GetCode(err error) ErrorCode {
	if err == nil {
		return 0
	}

	if appErr, ok := err.(*AppError); ok {
		return appErr.Code
	}

	return ErrUnknown
}

// HTTPStatus 返回对应的HTTP状态码
func (e *AppError) HTTPStatus() int {
	switch {
	case e.Code == ErrInvalidParam || e.Code == ErrInvalidSlot || e.Code == ErrInvalidSlotIndex:
		return 400
	case e.Code == ErrNotFound:
		return 404
	case e.Code >= 7000 && e.Code <= 7999:
		return 401
	case e.Code == ErrDispenseBusy || e.Code == ErrUpgradeInProgress:
		return 409
	case e.Code >= 5000 && e.Code <= 5999:
		return 503
	default:
		return 500
	}
}

// GetMessage 获取面向用户的错误文本
func GetMessage(err error) string {
	if err == nil {
		return ""
	}
	if appErr, ok := err.(*AppError); ok {
		return appErr.Message
	}
	return err.Error()
}

// IsUserRejection 判断是否为面向用户的购买拒绝（拒绝时不改变任何机器状态）
func IsUserRejection(err error) bool {
	switch GetCode(err) {
	case ErrSlotLocked, ErrSlotEmpty, ErrInsufficientCredit, ErrNoSlotSelected, ErrInvalidSlot:
		return true
	default:
		return false
	}
}
