package hardware

// I/O扩展板寄存器定义。板子通过串口桥接，命令帧里带设备地址和寄存器号。
const (
	// DefaultDeviceAddr 继电器扩展板默认地址
	DefaultDeviceAddr = 0x20

	// RegBankA 低8路继电器输出寄存器（货道0~7）
	RegBankA = 0x02
	// RegBankB 高8路继电器输出寄存器（货道8~15）
	RegBankB = 0x03
	// RegDirA 低8路方向寄存器
	RegDirA = 0x06
	// RegDirB 高8路方向寄存器
	RegDirB = 0x07

	// DirAllOutput 方向寄存器全输出
	DirAllOutput = 0x00
)

// BusTransport 扩展板总线传输接口
// 实现方负责帧封装、校验和链路超时，调用方只关心寄存器读写
type BusTransport interface {
	// Probe 探测设备是否在线
	Probe(addr byte) error
	// WriteRegister 写寄存器
	WriteRegister(addr, reg, value byte) error
	// Close 关闭底层链路
	Close() error
}

// MatrixIO 矩阵键盘底层读取接口
// 返回当前被按下的原始键值，没有按键时ok为false
type MatrixIO interface {
	ReadKey() (key byte, ok bool)
}

// Sounder 蜂鸣器接口
type Sounder interface {
	// Beep 短提示音
	Beep()
	// BeepError 错误提示音
	BeepError()
}

// NopSounder 空实现，离线模式和测试用
type NopSounder struct{}

func (NopSounder) Beep()      {}
func (NopSounder) BeepError() {}
