package vending

// StockAlert 库存检查结果
type StockAlert int

const (
	// StockOK 无需通知
	StockOK StockAlert = iota
	// StockLow 可售货道降到阈值以下，首次触发
	StockLow
	// StockEmpty 全部售罄，首次触发
	StockEmpty
)

// StockMonitor 库存阈值监控
// 带滞回锁存：降到阈值只通知一次，回升过阈值后锁存复位，
// 避免之后每卖一件都重复报警。
type StockMonitor struct {
	threshold int
	lowSent   bool
	emptySent bool
}

// NewStockMonitor 创建库存监控
func NewStockMonitor(threshold int) *StockMonitor {
	if threshold < 1 {
		threshold = DefaultStockThreshold
	}
	return &StockMonitor{threshold: threshold}
}

// Threshold 当前阈值
func (m *StockMonitor) Threshold() int {
	return m.threshold
}

// SetThreshold 调整阈值
func (m *StockMonitor) SetThreshold(threshold int) {
	if threshold < 1 {
		return
	}
	m.threshold = threshold
}

// Check 用当前可售货道数更新锁存，返回需要发出的通知
func (m *StockMonitor) Check(availableCount int) StockAlert {
	if availableCount > m.threshold {
		// 补货回升，复位锁存
		m.lowSent = false
		m.emptySent = false
		return StockOK
	}

	if availableCount == 0 {
		if !m.emptySent {
			m.lowSent = true
			m.emptySent = true
			return StockEmpty
		}
		return StockOK
	}

	if !m.lowSent {
		m.lowSent = true
		return StockLow
	}
	return StockOK
}
