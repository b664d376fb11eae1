package models

import (
	"time"
)

// Setting 持久化键值存储条目。
// 所有机器行为参数（时间参数、货道状态、余额、通知设置等）都以
// 单key单值的形式保存，任何一次状态变更只写入变化的那个key，
// 断电最多丢失一个正在写入的字段。
type Setting struct {
	Key       string    `gorm:"primaryKey;size:64" json:"key"`
	Value     string    `gorm:"size:512" json:"value"`
	Type      string    `gorm:"size:16" json:"type"` // string/int/float/bool
	UpdatedAt time.Time `json:"updated_at"`
}

// TableName 指定表名
func (Setting) TableName() string {
	return "settings"
}

// SaleRecord 销售记录，每次成功出货写入一条
type SaleRecord struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	Slot        int       `gorm:"index" json:"slot"`          // 货道编号（面板习惯，1起）
	PriceCents  int64     `json:"price_cents"`                // 成交价格（分）
	CreditAfter int64     `json:"credit_after"`               // 出货后余额（分）
	CreatedAt   time.Time `gorm:"index" json:"created_at"`
}

// TableName 指定表名
func (SaleRecord) TableName() string {
	return "sale_records"
}
