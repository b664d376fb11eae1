package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/wfunc/vending-machine/internal/display"
	"github.com/wfunc/vending-machine/internal/logger"
	"github.com/wfunc/vending-machine/internal/repository"
	"github.com/wfunc/vending-machine/internal/service"
	"go.uber.org/zap"
)

const (
	// wsWriteWait websocket单次写超时
	wsWriteWait = 10 * time.Second
	// wsPingPeriod 心跳间隔
	wsPingPeriod = 30 * time.Second
	// maxFirmwareSize 固件镜像大小上限
	maxFirmwareSize = 64 << 20
)

// upgrader 管理端在同一块板子的局域网内，不校验Origin
var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// SystemHandler 销售记录、日志、固件升级等系统接口
type SystemHandler struct {
	sales   repository.SaleRepository
	upgrade *service.UpgradeService
	hub     *display.Hub
	log     *zap.Logger
}

// NewSystemHandler 创建系统接口
func NewSystemHandler(sales repository.SaleRepository, upgrade *service.UpgradeService, hub *display.Hub) *SystemHandler {
	return &SystemHandler{
		sales:   sales,
		upgrade: upgrade,
		hub:     hub,
		log:     logger.GetModuleLogger("api.system"),
	}
}

// ListSales 分页查询销售记录，可按货道过滤
func (h *SystemHandler) ListSales(c *gin.Context) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", "20"))
	pagination := repository.NewPagination(page, pageSize)

	ctx := c.Request.Context()
	var (
		records interface{}
		err     error
	)
	if slotStr := c.Query("slot"); slotStr != "" {
		slot, parseErr := strconv.Atoi(slotStr)
		if parseErr != nil || slot < 1 {
			failParam(c, "货道号无效")
			return
		}
		records, err = h.sales.ListBySlot(ctx, slot, pagination)
	} else {
		records, err = h.sales.List(ctx, pagination)
	}
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, gin.H{
		"records":    records,
		"pagination": pagination,
	})
}

// SalesSummary 今日销售汇总
func (h *SystemHandler) SalesSummary(c *gin.Context) {
	ctx := c.Request.Context()
	now := time.Now()
	dayStart := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())

	total, err := h.sales.SumSince(ctx, dayStart)
	if err != nil {
		fail(c, err)
		return
	}
	count, err := h.sales.CountSince(ctx, dayStart)
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, gin.H{
		"today_total_cents": total,
		"today_count":       count,
	})
}

// ListLogs 返回环形缓冲区里的最近日志
func (h *SystemHandler) ListLogs(c *gin.Context) {
	ok(c, gin.H{"lines": logger.GetRing().Lines()})
}

// StreamLogs websocket实时日志流
// 先推历史，再持续推新行。订阅token走查询参数。
func (h *SystemHandler) StreamLogs(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Warn("日志流升级失败", zap.Error(err))
		return
	}
	defer conn.Close()

	ring := logger.GetRing()
	sub := ring.Subscribe()
	defer ring.Unsubscribe(sub)

	for _, line := range ring.Lines() {
		conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
		if err := conn.WriteMessage(websocket.TextMessage, []byte(line)); err != nil {
			return
		}
	}

	// 读goroutine只为感知断连
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(wsPingPeriod)
	defer ticker.Stop()
	for {
		select {
		case line, okCh := <-sub:
			if !okCh {
				return
			}
			conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := conn.WriteMessage(websocket.TextMessage, []byte(line)); err != nil {
				return
			}
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-done:
			return
		}
	}
}

// StreamDisplay websocket实时画面流，管理端远程预览前面板
func (h *SystemHandler) StreamDisplay(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Warn("画面流升级失败", zap.Error(err))
		return
	}
	defer conn.Close()

	sub := h.hub.Subscribe()
	defer h.hub.Unsubscribe(sub)

	conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
	if err := conn.WriteJSON(h.hub.Latest()); err != nil {
		return
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(wsPingPeriod)
	defer ticker.Stop()
	for {
		select {
		case frame, okCh := <-sub:
			if !okCh {
				return
			}
			conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := conn.WriteJSON(frame); err != nil {
				return
			}
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-done:
			return
		}
	}
}

// UploadFirmware multipart上传固件镜像并触发升级
func (h *SystemHandler) UploadFirmware(c *gin.Context) {
	file, header, err := c.Request.FormFile("firmware")
	if err != nil {
		failParam(c, "缺少firmware文件字段")
		return
	}
	defer file.Close()

	if header.Size <= 0 || header.Size > maxFirmwareSize {
		failParam(c, "固件大小无效")
		return
	}

	h.log.Warn("收到固件上传",
		zap.String("filename", header.Filename),
		zap.Int64("size", header.Size))

	if err := h.upgrade.Apply(file, header.Size); err != nil {
		fail(c, err)
		return
	}
	ok(c, gin.H{"message": "升级完成，设备即将重启"})
}

// FirmwareStatus 升级进度查询
func (h *SystemHandler) FirmwareStatus(c *gin.Context) {
	status, busy, received := h.upgrade.Status()
	ok(c, gin.H{
		"status":   status,
		"busy":     busy,
		"received": received,
	})
}
