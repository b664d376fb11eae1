package api

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/wfunc/vending-machine/internal/vending"
)

// MachineHandler 整机状态和交易相关接口
type MachineHandler struct {
	machine *vending.Machine
}

// NewMachineHandler 创建整机接口
func NewMachineHandler(machine *vending.Machine) *MachineHandler {
	return &MachineHandler{machine: machine}
}

// Status 整机状态快照
func (h *MachineHandler) Status(c *gin.Context) {
	ok(c, h.machine.Status())
}

type adjustCreditRequest struct {
	DeltaCents int64 `json:"delta_cents" binding:"required"`
}

// AdjustCredit 调整余额
func (h *MachineHandler) AdjustCredit(c *gin.Context) {
	var req adjustCreditRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		failParam(c, "缺少delta_cents")
		return
	}

	after, err := h.machine.AdjustCredit(c.Request.Context(), vending.Cents(req.DeltaCents))
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, gin.H{"credit_cents": after})
}

// ResetCredit 余额清零
func (h *MachineHandler) ResetCredit(c *gin.Context) {
	if err := h.machine.ResetCredit(c.Request.Context()); err != nil {
		fail(c, err)
		return
	}
	ok(c, nil)
}

// slotParam 解析路径里的货道号（对外1起，对内0起）
func slotParam(c *gin.Context) (int, bool) {
	n, err := strconv.Atoi(c.Param("slot"))
	if err != nil || n < 1 || n > vending.MaxSlots {
		failParam(c, "货道号无效")
		return 0, false
	}
	return n - 1, true
}

type setPriceRequest struct {
	PriceCents int64 `json:"price_cents"`
}

// SetSlotPrice 设置货道价格
func (h *MachineHandler) SetSlotPrice(c *gin.Context) {
	slot, okSlot := slotParam(c)
	if !okSlot {
		return
	}
	var req setPriceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		failParam(c, "缺少price_cents")
		return
	}
	if err := h.machine.SetSlotPrice(c.Request.Context(), slot, vending.Cents(req.PriceCents)); err != nil {
		fail(c, err)
		return
	}
	ok(c, nil)
}

// RefillSlot 单货道补货
func (h *MachineHandler) RefillSlot(c *gin.Context) {
	slot, okSlot := slotParam(c)
	if !okSlot {
		return
	}
	if err := h.machine.RefillSlot(c.Request.Context(), slot); err != nil {
		fail(c, err)
		return
	}
	ok(c, nil)
}

// RefillAll 全部补货
func (h *MachineHandler) RefillAll(c *gin.Context) {
	if err := h.machine.RefillAll(c.Request.Context()); err != nil {
		fail(c, err)
		return
	}
	ok(c, nil)
}

type lockRequest struct {
	Locked *bool `json:"locked" binding:"required"`
}

// LockSlot 锁定或解锁货道
func (h *MachineHandler) LockSlot(c *gin.Context) {
	slot, okSlot := slotParam(c)
	if !okSlot {
		return
	}
	var req lockRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Locked == nil {
		failParam(c, "缺少locked")
		return
	}
	if err := h.machine.LockSlot(c.Request.Context(), slot, *req.Locked); err != nil {
		fail(c, err)
		return
	}
	ok(c, nil)
}

type setCountRequest struct {
	Count int `json:"count" binding:"required"`
}

// SetSlotCount 调整启用货道数
func (h *MachineHandler) SetSlotCount(c *gin.Context) {
	var req setCountRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		failParam(c, "缺少count")
		return
	}
	if err := h.machine.SetActiveSlots(c.Request.Context(), req.Count); err != nil {
		fail(c, err)
		return
	}
	ok(c, nil)
}

// TestSlot 继电器测试出货
func (h *MachineHandler) TestSlot(c *gin.Context) {
	slot, okSlot := slotParam(c)
	if !okSlot {
		return
	}
	if err := h.machine.TestSlot(slot); err != nil {
		fail(c, err)
		return
	}
	ok(c, nil)
}

// TestAllSlots 全板继电器巡检
func (h *MachineHandler) TestAllSlots(c *gin.Context) {
	if err := h.machine.TestAllSlots(); err != nil {
		fail(c, err)
		return
	}
	ok(c, nil)
}

type timingsRequest struct {
	CoinQuietMs        int `json:"coin_quiet_ms"`
	BillQuietMs        int `json:"bill_quiet_ms"`
	BillDebounceMs     int `json:"bill_debounce_ms"`
	DispenseOpenMs     int `json:"dispense_open_ms"`
	KeypadTimeoutMs    int `json:"keypad_timeout_ms"`
	SelectionTimeoutMs int `json:"selection_timeout_ms"`
	DisplayTimeoutMs   int `json:"display_timeout_ms"`
}

// GetTimings 读取时间参数
func (h *MachineHandler) GetTimings(c *gin.Context) {
	t := h.machine.GetTimings()
	ok(c, timingsRequest{
		CoinQuietMs:        int(t.CoinQuiet / time.Millisecond),
		BillQuietMs:        int(t.BillQuiet / time.Millisecond),
		BillDebounceMs:     int(t.BillDebounce / time.Millisecond),
		DispenseOpenMs:     int(t.DispenseOpen / time.Millisecond),
		KeypadTimeoutMs:    int(t.KeypadTimeout / time.Millisecond),
		SelectionTimeoutMs: int(t.SelectionTimeout / time.Millisecond),
		DisplayTimeoutMs:   int(t.DisplayTimeout / time.Millisecond),
	})
}

// SetTimings 更新时间参数
func (h *MachineHandler) SetTimings(c *gin.Context) {
	var req timingsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		failParam(c, "参数格式错误")
		return
	}
	for _, v := range []int{
		req.CoinQuietMs, req.BillQuietMs, req.BillDebounceMs,
		req.DispenseOpenMs, req.KeypadTimeoutMs,
		req.SelectionTimeoutMs, req.DisplayTimeoutMs,
	} {
		if v <= 0 {
			failParam(c, "时间参数必须大于0")
			return
		}
	}

	t := vending.Timings{
		CoinQuiet:        time.Duration(req.CoinQuietMs) * time.Millisecond,
		BillQuiet:        time.Duration(req.BillQuietMs) * time.Millisecond,
		BillDebounce:     time.Duration(req.BillDebounceMs) * time.Millisecond,
		DispenseOpen:     time.Duration(req.DispenseOpenMs) * time.Millisecond,
		KeypadTimeout:    time.Duration(req.KeypadTimeoutMs) * time.Millisecond,
		SelectionTimeout: time.Duration(req.SelectionTimeoutMs) * time.Millisecond,
		DisplayTimeout:   time.Duration(req.DisplayTimeoutMs) * time.Millisecond,
	}
	if err := h.machine.SetTimings(c.Request.Context(), t); err != nil {
		fail(c, err)
		return
	}
	ok(c, nil)
}

// FactoryReset 出厂复位
func (h *MachineHandler) FactoryReset(c *gin.Context) {
	if err := h.machine.FactoryReset(c.Request.Context()); err != nil {
		fail(c, err)
		return
	}
	ok(c, nil)
}
