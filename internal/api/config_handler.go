package api

import (
	"github.com/gin-gonic/gin"
	"github.com/wfunc/vending-machine/internal/errors"
	"github.com/wfunc/vending-machine/internal/repository"
	"github.com/wfunc/vending-machine/internal/vending"
)

// ConfigHandler 通知、显示、网络等配置接口
type ConfigHandler struct {
	machine  *vending.Machine
	settings repository.SettingRepository
}

// NewConfigHandler 创建配置接口
func NewConfigHandler(machine *vending.Machine, settings repository.SettingRepository) *ConfigHandler {
	return &ConfigHandler{machine: machine, settings: settings}
}

type notifyConfig struct {
	Enabled   bool   `json:"enabled"`
	Token     string `json:"token"`
	ChatID    string `json:"chat_id"`
	OnSale    *bool  `json:"on_sale,omitempty"`
	OnStock   *bool  `json:"on_stock,omitempty"`
	Threshold int    `json:"threshold"`
}

// GetNotify 读取通知配置
func (h *ConfigHandler) GetNotify(c *gin.Context) {
	ctx := c.Request.Context()
	onSale := h.settings.GetBool(ctx, repository.KeyNotifyOnSale, true)
	onStock := h.settings.GetBool(ctx, repository.KeyNotifyOnStock, true)
	cfg := notifyConfig{
		Enabled:   h.settings.GetBool(ctx, repository.KeyNotifyEnabled, false),
		Token:     maskToken(h.settings.GetString(ctx, repository.KeyNotifyToken, "")),
		ChatID:    h.settings.GetString(ctx, repository.KeyNotifyChatID, ""),
		OnSale:    &onSale,
		OnStock:   &onStock,
		Threshold: h.settings.GetInt(ctx, repository.KeyStockThreshold, vending.DefaultStockThreshold),
	}
	ok(c, cfg)
}

// SetNotify 更新通知配置
func (h *ConfigHandler) SetNotify(c *gin.Context) {
	var req notifyConfig
	if err := c.ShouldBindJSON(&req); err != nil {
		failParam(c, "参数格式错误")
		return
	}
	ctx := c.Request.Context()
	if err := h.settings.Set(ctx, repository.KeyNotifyEnabled, req.Enabled); err != nil {
		fail(c, errors.Wrap(err, errors.ErrStoreWrite))
		return
	}
	// token留空表示不修改，避免回显后原样提交把凭证抹掉
	if req.Token != "" && !isMasked(req.Token) {
		if err := h.settings.Set(ctx, repository.KeyNotifyToken, req.Token); err != nil {
			fail(c, errors.Wrap(err, errors.ErrStoreWrite))
			return
		}
	}
	if req.ChatID != "" {
		if err := h.settings.Set(ctx, repository.KeyNotifyChatID, req.ChatID); err != nil {
			fail(c, errors.Wrap(err, errors.ErrStoreWrite))
			return
		}
	}
	if req.OnSale != nil {
		if err := h.settings.Set(ctx, repository.KeyNotifyOnSale, *req.OnSale); err != nil {
			fail(c, errors.Wrap(err, errors.ErrStoreWrite))
			return
		}
	}
	if req.OnStock != nil {
		if err := h.settings.Set(ctx, repository.KeyNotifyOnStock, *req.OnStock); err != nil {
			fail(c, errors.Wrap(err, errors.ErrStoreWrite))
			return
		}
	}
	if req.Threshold > 0 {
		if err := h.machine.SetStockThreshold(ctx, req.Threshold); err != nil {
			fail(c, err)
			return
		}
	}
	ok(c, nil)
}

type testNotifyRequest struct {
	Text string `json:"text"`
}

// TestNotify 发送测试通知
func (h *ConfigHandler) TestNotify(c *gin.Context) {
	var req testNotifyRequest
	_ = c.ShouldBindJSON(&req)
	if req.Text == "" {
		req.Text = "测试通知"
	}
	if err := h.machine.SendTestNotification(c.Request.Context(), req.Text); err != nil {
		fail(c, err)
		return
	}
	ok(c, nil)
}

type displayConfig struct {
	Slogan string `json:"slogan"`
	Footer string `json:"footer"`
}

// GetDisplay 读取显示配置
func (h *ConfigHandler) GetDisplay(c *gin.Context) {
	ctx := c.Request.Context()
	ok(c, displayConfig{
		Slogan: h.settings.GetString(ctx, repository.KeyDisplaySlogan, ""),
		Footer: h.settings.GetString(ctx, repository.KeyDisplayFooter, ""),
	})
}

// SetDisplay 更新显示配置
func (h *ConfigHandler) SetDisplay(c *gin.Context) {
	var req displayConfig
	if err := c.ShouldBindJSON(&req); err != nil {
		failParam(c, "参数格式错误")
		return
	}
	ctx := c.Request.Context()
	if err := h.machine.SetSlogan(ctx, req.Slogan); err != nil {
		fail(c, err)
		return
	}
	if err := h.settings.Set(ctx, repository.KeyDisplayFooter, req.Footer); err != nil {
		fail(c, errors.Wrap(err, errors.ErrStoreWrite))
		return
	}
	ok(c, nil)
}

type networkConfig struct {
	StaticIP string `json:"static_ip"`
	Gateway  string `json:"gateway"`
	Subnet   string `json:"subnet"`
	DNS      string `json:"dns"`
}

// GetNetwork 读取网络配置
func (h *ConfigHandler) GetNetwork(c *gin.Context) {
	ctx := c.Request.Context()
	ok(c, networkConfig{
		StaticIP: h.settings.GetString(ctx, repository.KeyStaticIP, ""),
		Gateway:  h.settings.GetString(ctx, repository.KeyGateway, ""),
		Subnet:   h.settings.GetString(ctx, repository.KeySubnet, ""),
		DNS:      h.settings.GetString(ctx, repository.KeyDNS, ""),
	})
}

// SetNetwork 更新网络配置，重启后生效
func (h *ConfigHandler) SetNetwork(c *gin.Context) {
	var req networkConfig
	if err := c.ShouldBindJSON(&req); err != nil {
		failParam(c, "参数格式错误")
		return
	}
	ctx := c.Request.Context()
	pairs := map[string]string{
		repository.KeyStaticIP: req.StaticIP,
		repository.KeyGateway:  req.Gateway,
		repository.KeySubnet:   req.Subnet,
		repository.KeyDNS:      req.DNS,
	}
	for key, val := range pairs {
		if err := h.settings.Set(ctx, key, val); err != nil {
			fail(c, errors.Wrap(err, errors.ErrStoreWrite))
			return
		}
	}
	ok(c, nil)
}

// maskToken 回显时只保留末4位
func maskToken(token string) string {
	if len(token) <= 4 {
		return token
	}
	return "****" + token[len(token)-4:]
}

func isMasked(token string) bool {
	return len(token) >= 4 && token[:4] == "****"
}
