package notifier

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/wfunc/vending-machine/internal/logger"
	"github.com/wfunc/vending-machine/internal/repository"
	"github.com/wfunc/vending-machine/internal/vending"
	"go.uber.org/zap"
)

const sendTimeout = 10 * time.Second

// TelegramNotifier 通过Telegram Bot API投递通知
// 开关和凭据每次发送时从存储读取，管理端改完立即生效。
// 投递是fire-and-forget：失败只记日志，绝不阻塞交易主循环。
type TelegramNotifier struct {
	store   vending.Store
	client  *http.Client
	baseURL string
	offline bool
	logger  *zap.Logger
}

// NewTelegramNotifier 创建通知器。offline为真时只记日志不发网络请求。
func NewTelegramNotifier(store vending.Store, offline bool) *TelegramNotifier {
	return &TelegramNotifier{
		store:   store,
		client:  &http.Client{Timeout: sendTimeout},
		baseURL: "https://api.telegram.org",
		offline: offline,
		logger:  logger.GetModuleLogger("notifier"),
	}
}

// Notify 投递一条事件通知
func (n *TelegramNotifier) Notify(ctx context.Context, event vending.NotifyEvent) {
	if !n.store.GetBool(ctx, repository.KeyNotifyEnabled, false) {
		return
	}
	if !n.eventEnabled(ctx, event.Type) {
		return
	}
	token := n.store.GetString(ctx, repository.KeyNotifyToken, "")
	chatID := n.store.GetString(ctx, repository.KeyNotifyChatID, "")
	if token == "" || chatID == "" {
		n.logger.Warn("通知已启用但凭据未配置，跳过投递")
		return
	}

	text := formatMessage(event)
	if n.offline {
		n.logger.Info("离线模式，通知只记日志", zap.String("text", text))
		return
	}

	// 脱离tick goroutine异步投递，不等待结果
	go n.send(token, chatID, text, eventName(event.Type))
}

// eventEnabled 事件级开关，默认全开
func (n *TelegramNotifier) eventEnabled(ctx context.Context, t vending.NotifyEventType) bool {
	switch t {
	case vending.NotifySale:
		return n.store.GetBool(ctx, repository.KeyNotifyOnSale, true)
	case vending.NotifyStockLow, vending.NotifyStockEmpty:
		return n.store.GetBool(ctx, repository.KeyNotifyOnStock, true)
	default:
		return true
	}
}

func (n *TelegramNotifier) send(token, chatID, text, event string) {
	start := time.Now()

	body, err := json.Marshal(map[string]string{
		"chat_id": chatID,
		"text":    text,
	})
	if err != nil {
		n.logger.Error("通知序列化失败", zap.Error(err))
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), sendTimeout)
	defer cancel()

	url := fmt.Sprintf("%s/bot%s/sendMessage", n.baseURL, token)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		n.logger.Error("构造通知请求失败", zap.Error(err))
		return
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		logger.LogNotification(event, false, time.Since(start))
		n.logger.Error("通知投递失败", zap.Error(err))
		return
	}
	defer resp.Body.Close()

	delivered := resp.StatusCode >= 200 && resp.StatusCode < 300
	logger.LogNotification(event, delivered, time.Since(start))
	if !delivered {
		n.logger.Error("通知被拒绝", zap.Int("status", resp.StatusCode))
	}
}

// formatMessage 组装通知文本
func formatMessage(event vending.NotifyEvent) string {
	switch event.Type {
	case vending.NotifySale:
		return fmt.Sprintf("售出：货道%d，金额%.2f元", event.Slot+1, float64(event.PriceCents)/100)
	case vending.NotifyStockLow:
		return fmt.Sprintf("库存不足：仅剩%d个可售货道，请尽快补货", event.AvailableCount)
	case vending.NotifyStockEmpty:
		return "已售罄：全部货道无货"
	case vending.NotifyTest:
		if event.Text != "" {
			return "测试消息：" + event.Text
		}
		return "测试消息"
	default:
		return event.Text
	}
}

func eventName(t vending.NotifyEventType) string {
	switch t {
	case vending.NotifySale:
		return "sale"
	case vending.NotifyStockLow:
		return "stock_low"
	case vending.NotifyStockEmpty:
		return "stock_empty"
	case vending.NotifyTest:
		return "test"
	default:
		return "unknown"
	}
}
