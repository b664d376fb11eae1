package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wfunc/vending-machine/internal/config"
	"github.com/wfunc/vending-machine/internal/display"
	"github.com/wfunc/vending-machine/internal/hardware"
	"github.com/wfunc/vending-machine/internal/repository"
	"github.com/wfunc/vending-machine/internal/service"
	"github.com/wfunc/vending-machine/internal/utils"
	"github.com/wfunc/vending-machine/internal/vending"
)

// setupRouter 组装一套贴近真实接线的路由：
// sqlite内存库 + 模拟总线继电器 + 真实交易主控
func setupRouter(t *testing.T) *gin.Engine {
	db := repository.SetupTestDB(t)
	settings := repository.NewSettingRepository(db)
	sales := repository.NewSaleRepository(db)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	bank := hardware.NewRelayBank(hardware.NewMockBus(), hardware.DefaultDeviceAddr)
	require.NoError(t, bank.Init())

	hub := display.NewHub()
	machine := vending.NewMachine(ctx, vending.Deps{
		Store:    settings,
		Sales:    service.NewSaleSink(sales),
		Actuator: bank,
		Keypad:   hardware.NewMatrixKeypad(&hardware.MockMatrix{}, 0),
		Coin:     hardware.NewPulseChannel(0),
		Bill:     hardware.NewPulseChannel(0),
		Display:  hub,
	})
	go machine.Run(ctx)

	auth := service.NewAuthService(settings, utils.NewJWTManager("test-secret", time.Minute))
	upgrade := service.NewUpgradeService(machine,
		t.TempDir()+"/fw.part", t.TempDir()+"/fw.bin", nil)

	return NewRouter(&config.ServerConfig{Mode: gin.TestMode}, RouterDeps{
		Machine:  machine,
		Settings: settings,
		Sales:    sales,
		Auth:     auth,
		Upgrade:  upgrade,
		Hub:      hub,
	})
}

func doJSON(r *gin.Engine, method, path, token string, body interface{}) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func login(t *testing.T, r *gin.Engine) string {
	w := doJSON(r, http.MethodPost, "/api/v1/auth/login", "", gin.H{"password": "admin"})
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Data struct {
			Token string `json:"token"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.NotEmpty(t, resp.Data.Token)
	return resp.Data.Token
}

func TestRouter_Health(t *testing.T) {
	r := setupRouter(t)
	w := doJSON(r, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestRouter_AuthRequired(t *testing.T) {
	r := setupRouter(t)

	w := doJSON(r, http.MethodGet, "/api/v1/status", "", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = doJSON(r, http.MethodGet, "/api/v1/status", "not-a-token", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestRouter_LoginWrongPassword(t *testing.T) {
	r := setupRouter(t)
	w := doJSON(r, http.MethodPost, "/api/v1/auth/login", "", gin.H{"password": "wrong"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestRouter_StatusAfterLogin(t *testing.T) {
	r := setupRouter(t)
	token := login(t, r)

	w := doJSON(r, http.MethodGet, "/api/v1/status", token, nil)
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Code int                    `json:"code"`
		Data vending.StatusSnapshot `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, 0, resp.Code)
	assert.Equal(t, "idle", resp.Data.State)
	assert.True(t, resp.Data.BusOnline)
	assert.Equal(t, vending.DefaultActiveSlots, resp.Data.ActiveSlots)
}

func TestRouter_CreditAdjust(t *testing.T) {
	r := setupRouter(t)
	token := login(t, r)

	w := doJSON(r, http.MethodPost, "/api/v1/credit/adjust", token, gin.H{"delta_cents": 500})
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Data struct {
			CreditCents int64 `json:"credit_cents"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, int64(500), resp.Data.CreditCents)

	w = doJSON(r, http.MethodPost, "/api/v1/credit/reset", token, nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestRouter_SlotOperations(t *testing.T) {
	r := setupRouter(t)
	token := login(t, r)

	w := doJSON(r, http.MethodPut, "/api/v1/slots/3/price", token, gin.H{"price_cents": 250})
	assert.Equal(t, http.StatusOK, w.Code)

	// 面板编号越界
	w = doJSON(r, http.MethodPut, "/api/v1/slots/17/price", token, gin.H{"price_cents": 250})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = doJSON(r, http.MethodPost, "/api/v1/slots/3/refill", token, nil)
	assert.Equal(t, http.StatusOK, w.Code)

	locked := true
	w = doJSON(r, http.MethodPut, "/api/v1/slots/3/lock", token, gin.H{"locked": &locked})
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestRouter_TimingsRoundTrip(t *testing.T) {
	r := setupRouter(t)
	token := login(t, r)

	w := doJSON(r, http.MethodPut, "/api/v1/config/timings", token, timingsRequest{
		CoinQuietMs:        200,
		BillQuietMs:        1500,
		BillDebounceMs:     75,
		DispenseOpenMs:     5000,
		KeypadTimeoutMs:    3000,
		SelectionTimeoutMs: 10000,
		DisplayTimeoutMs:   20000,
	})
	require.Equal(t, http.StatusOK, w.Code)

	w = doJSON(r, http.MethodGet, "/api/v1/config/timings", token, nil)
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Data timingsRequest `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, 200, resp.Data.CoinQuietMs)
	assert.Equal(t, 5000, resp.Data.DispenseOpenMs)
}

func TestRouter_TimingsRejectZero(t *testing.T) {
	r := setupRouter(t)
	token := login(t, r)

	w := doJSON(r, http.MethodPut, "/api/v1/config/timings", token, timingsRequest{
		CoinQuietMs: 200,
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestRouter_NotifyConfigMasksToken(t *testing.T) {
	r := setupRouter(t)
	token := login(t, r)

	w := doJSON(r, http.MethodPut, "/api/v1/config/notify", token, gin.H{
		"enabled": true,
		"token":   "123456:ABCDEF",
		"chat_id": "-100200300",
	})
	require.Equal(t, http.StatusOK, w.Code)

	w = doJSON(r, http.MethodGet, "/api/v1/config/notify", token, nil)
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Data notifyConfig `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.True(t, resp.Data.Enabled)
	assert.Equal(t, "****BCDEF", resp.Data.Token)
	assert.Equal(t, "-100200300", resp.Data.ChatID)

	// 回显的掩码原样提交不应覆盖真实token
	w = doJSON(r, http.MethodPut, "/api/v1/config/notify", token, gin.H{
		"enabled": true,
		"token":   "****BCDEF",
	})
	require.Equal(t, http.StatusOK, w.Code)
	w = doJSON(r, http.MethodGet, "/api/v1/config/notify", token, nil)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "****BCDEF", resp.Data.Token)
}

func TestRouter_SalesEmpty(t *testing.T) {
	r := setupRouter(t)
	token := login(t, r)

	w := doJSON(r, http.MethodGet, "/api/v1/sales?page=1&page_size=10", token, nil)
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Data struct {
			Pagination repository.Pagination `json:"pagination"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, int64(0), resp.Data.Pagination.Total)
}

func TestRouter_FirmwareStatus(t *testing.T) {
	r := setupRouter(t)
	token := login(t, r)

	w := doJSON(r, http.MethodGet, "/api/v1/firmware/status", token, nil)
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Data struct {
			Busy bool `json:"busy"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.False(t, resp.Data.Busy)
}
