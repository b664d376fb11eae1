package api

import (
	"github.com/gin-gonic/gin"
	"github.com/wfunc/vending-machine/internal/config"
	"github.com/wfunc/vending-machine/internal/display"
	"github.com/wfunc/vending-machine/internal/middleware"
	"github.com/wfunc/vending-machine/internal/repository"
	"github.com/wfunc/vending-machine/internal/service"
	"github.com/wfunc/vending-machine/internal/vending"
)

// RouterDeps 路由依赖
type RouterDeps struct {
	Machine  *vending.Machine
	Settings repository.SettingRepository
	Sales    repository.SaleRepository
	Auth     *service.AuthService
	Upgrade  *service.UpgradeService
	Hub      *display.Hub
}

// NewRouter 组装管理面板路由
func NewRouter(cfg *config.ServerConfig, deps RouterDeps) *gin.Engine {
	gin.SetMode(cfg.Mode)

	r := gin.New()
	r.Use(middleware.Recovery())
	r.Use(middleware.RequestLogger())

	authHandler := NewAuthHandler(deps.Auth)
	machineHandler := NewMachineHandler(deps.Machine)
	configHandler := NewConfigHandler(deps.Machine, deps.Settings)
	systemHandler := NewSystemHandler(deps.Sales, deps.Upgrade, deps.Hub)
	authMw := middleware.NewAuthMiddleware(deps.Auth)

	r.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})

	v1 := r.Group("/api/v1")
	v1.POST("/auth/login", authHandler.Login)

	authed := v1.Group("")
	authed.Use(authMw.RequireAuth())
	{
		authed.PUT("/auth/password", authHandler.ChangePassword)

		authed.GET("/status", machineHandler.Status)
		authed.POST("/credit/adjust", machineHandler.AdjustCredit)
		authed.POST("/credit/reset", machineHandler.ResetCredit)

		authed.PUT("/slots/count", machineHandler.SetSlotCount)
		authed.POST("/slots/refill-all", machineHandler.RefillAll)
		authed.POST("/slots/test-all", machineHandler.TestAllSlots)
		authed.PUT("/slots/:slot/price", machineHandler.SetSlotPrice)
		authed.POST("/slots/:slot/refill", machineHandler.RefillSlot)
		authed.PUT("/slots/:slot/lock", machineHandler.LockSlot)
		authed.POST("/slots/:slot/test", machineHandler.TestSlot)

		authed.GET("/config/timings", machineHandler.GetTimings)
		authed.PUT("/config/timings", machineHandler.SetTimings)
		authed.GET("/config/notify", configHandler.GetNotify)
		authed.PUT("/config/notify", configHandler.SetNotify)
		authed.POST("/notify/test", configHandler.TestNotify)
		authed.GET("/config/display", configHandler.GetDisplay)
		authed.PUT("/config/display", configHandler.SetDisplay)
		authed.GET("/config/network", configHandler.GetNetwork)
		authed.PUT("/config/network", configHandler.SetNetwork)

		authed.GET("/sales", systemHandler.ListSales)
		authed.GET("/sales/summary", systemHandler.SalesSummary)
		authed.GET("/logs", systemHandler.ListLogs)
		authed.GET("/ws/logs", systemHandler.StreamLogs)
		authed.GET("/ws/display", systemHandler.StreamDisplay)

		authed.POST("/firmware", systemHandler.UploadFirmware)
		authed.GET("/firmware/status", systemHandler.FirmwareStatus)
		authed.POST("/factory-reset", machineHandler.FactoryReset)
	}

	return r
}
