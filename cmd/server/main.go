package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"sync"
	"syscall"
	"time"

	"github.com/wfunc/vending-machine/internal/api"
	"github.com/wfunc/vending-machine/internal/config"
	"github.com/wfunc/vending-machine/internal/database"
	"github.com/wfunc/vending-machine/internal/display"
	"github.com/wfunc/vending-machine/internal/errors"
	"github.com/wfunc/vending-machine/internal/hardware"
	"github.com/wfunc/vending-machine/internal/logger"
	"github.com/wfunc/vending-machine/internal/notifier"
	"github.com/wfunc/vending-machine/internal/repository"
	"github.com/wfunc/vending-machine/internal/service"
	"github.com/wfunc/vending-machine/internal/utils"
	"github.com/wfunc/vending-machine/internal/vending"
	"go.uber.org/zap"
)

// 版本信息
var (
	Version   = "1.0.0"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

// Server 控制程序实例
type Server struct {
	cfg    *config.Config
	logger *zap.Logger

	bus      hardware.BusTransport
	machine  *vending.Machine
	hub      *display.Hub
	settings repository.SettingRepository
	sales    repository.SaleRepository
	httpSrv  *http.Server

	wg     sync.WaitGroup
	ctx    context.Context
	cancel context.CancelFunc
}

func main() {
	var (
		configPath  = flag.String("config", "", "配置文件路径")
		showVersion = flag.Bool("version", false, "显示版本信息")
	)
	flag.Parse()

	if *showVersion {
		printVersion()
		os.Exit(0)
	}

	if err := config.Init(*configPath); err != nil {
		fmt.Printf("加载配置失败: %v\n", err)
		os.Exit(1)
	}
	cfg := config.Get()

	if err := logger.Init(&cfg.Log); err != nil {
		fmt.Printf("初始化日志失败: %v\n", err)
		os.Exit(1)
	}

	server := NewServer(cfg)

	if err := server.Start(); err != nil {
		logger.Fatal("启动失败", zap.Error(err))
	}

	server.WaitForShutdown()

	if err := server.Shutdown(); err != nil {
		logger.Error("关闭失败", zap.Error(err))
		os.Exit(1)
	}

	logger.Info("已安全关闭")
}

// NewServer 创建实例
func NewServer(cfg *config.Config) *Server {
	ctx, cancel := context.WithCancel(context.Background())
	return &Server{
		cfg:    cfg,
		logger: logger.GetLogger(),
		ctx:    ctx,
		cancel: cancel,
	}
}

// Start 初始化全部组件并启动服务
func (s *Server) Start() error {
	s.logger.Info("售货机控制程序启动中...",
		zap.String("version", Version),
		zap.Bool("offline", s.cfg.Vending.OfflineMode))

	if err := database.Init(&s.cfg.Database); err != nil {
		return errors.Wrap(err, errors.ErrStoreConnect, "初始化数据库失败")
	}
	s.settings = repository.NewSettingRepository(database.GetDB())
	s.sales = repository.NewSaleRepository(database.GetDB())

	actuator, err := s.initActuator()
	if err != nil {
		// 总线离线仍可启动：交易拒绝出货，管理面板可用于诊断
		s.logger.Error("出货驱动初始化失败，离线模式继续", zap.Error(err))
	}

	deps, err := s.initInputs()
	if err != nil {
		return err
	}
	deps.Store = s.settings
	deps.Sales = service.NewSaleSink(s.sales)
	deps.Actuator = actuator
	deps.Notifier = notifier.NewTelegramNotifier(s.settings, s.cfg.Vending.OfflineMode)
	deps.Wipe = func(ctx context.Context) error {
		return s.settings.DeleteAll(ctx)
	}
	deps.Reboot = rebootProcess

	s.hub = display.NewHub()
	deps.Display = s.hub

	s.machine = vending.NewMachine(s.ctx, deps)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.machine.Run(s.ctx)
	}()

	if err := s.startHTTP(); err != nil {
		return err
	}

	config.Watch(func(newCfg *config.Config) {
		s.logger.Info("配置已更新，进程级配置重启后生效")
		s.cfg = newCfg
	})

	s.logger.Info("启动完成",
		zap.String("http", fmt.Sprintf("%s:%d", s.cfg.Server.Host, s.cfg.Server.Port)))
	return nil
}

// initActuator 打开总线并初始化继电器扩展板
func (s *Server) initActuator() (*hardware.RelayBank, error) {
	if s.cfg.Bus.MockMode || s.cfg.Vending.OfflineMode {
		s.logger.Warn("使用模拟总线")
		bank := hardware.NewRelayBank(hardware.NewMockBus(), s.cfg.Bus.DeviceAddr)
		return bank, bank.Init()
	}

	bus := hardware.NewSerialBus(&hardware.SerialBusConfig{
		Port:        s.cfg.Bus.Port,
		BaudRate:    s.cfg.Bus.BaudRate,
		ReadTimeout: s.cfg.Bus.ReadTimeout,
	})
	if err := bus.Open(); err != nil {
		return hardware.NewRelayBank(bus, s.cfg.Bus.DeviceAddr), err
	}
	s.bus = bus

	bank := hardware.NewRelayBank(bus, s.cfg.Bus.DeviceAddr)
	return bank, bank.Init()
}

// initInputs 组装用户侧输入：脉冲、键盘、蜂鸣器、禁止线、复位按钮
func (s *Server) initInputs() (vending.Deps, error) {
	var deps vending.Deps

	coin := hardware.NewPulseChannel(0)
	billDebounce := time.Duration(s.settings.GetInt(s.ctx,
		repository.KeyBillDebounce, int(vending.DefaultBillDebounce/time.Millisecond))) * time.Millisecond
	bill := hardware.NewPulseChannel(billDebounce)
	deps.Coin = coin
	deps.Bill = bill

	gpio := &s.cfg.GPIO
	if !gpio.Enabled || s.cfg.Vending.OfflineMode {
		s.logger.Warn("GPIO未启用，键盘和收款输入不可用")
		deps.Keypad = hardware.NewMatrixKeypad(&hardware.MockMatrix{}, hardware.DefaultKeypadDebounce)
		deps.Sounder = hardware.NopSounder{}
		deps.Inhibit = vending.NopInhibit{}
		return deps, nil
	}

	coinPin, err := hardware.ExportPin(gpio.CoinPin, "in")
	if err != nil {
		return deps, err
	}
	billPin, err := hardware.ExportPin(gpio.BillPin, "in")
	if err != nil {
		return deps, err
	}
	s.startWatcher(hardware.NewPulseWatcher(coinPin, coin, gpio.PollInterval))
	s.startWatcher(hardware.NewPulseWatcher(billPin, bill, gpio.PollInterval))

	scanner, err := hardware.NewMatrixScanner(gpio.KeypadRows, gpio.KeypadCols)
	if err != nil {
		return deps, err
	}
	deps.Keypad = hardware.NewMatrixKeypad(scanner, hardware.DefaultKeypadDebounce)

	if beepPin, err := hardware.ExportPin(gpio.BeepPin, "out"); err == nil {
		deps.Sounder = hardware.NewPinSounder(beepPin)
	} else {
		s.logger.Warn("蜂鸣器初始化失败", zap.Error(err))
		deps.Sounder = hardware.NopSounder{}
	}

	if inhibitPin, err := hardware.ExportPin(gpio.InhibitPin, "out"); err == nil {
		deps.Inhibit = hardware.NewPinInhibit(inhibitPin)
	} else {
		s.logger.Warn("禁止线初始化失败", zap.Error(err))
		deps.Inhibit = vending.NopInhibit{}
	}

	if resetPin, err := hardware.ExportPin(gpio.ResetPin, "in"); err == nil {
		deps.Reset = hardware.NewPinButton(resetPin)
	} else {
		s.logger.Warn("复位按钮初始化失败", zap.Error(err))
	}

	return deps, nil
}

// startWatcher 启动一个脉冲轮询goroutine
func (s *Server) startWatcher(w *hardware.PulseWatcher) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		w.Run(s.ctx)
	}()
}

// startHTTP 启动管理面板HTTP服务
func (s *Server) startHTTP() error {
	jwtMgr := utils.NewJWTManager(s.cfg.Security.JWT.Secret, s.cfg.Security.JWT.ExpireAfter)
	auth := service.NewAuthService(s.settings, jwtMgr)
	upgrade := service.NewUpgradeService(s.machine,
		s.cfg.Vending.FirmwareStaging, s.cfg.Vending.FirmwarePath, rebootProcess)

	router := api.NewRouter(&s.cfg.Server, api.RouterDeps{
		Machine:  s.machine,
		Settings: s.settings,
		Sales:    s.sales,
		Auth:     auth,
		Upgrade:  upgrade,
		Hub:      s.hub,
	})

	s.httpSrv = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", s.cfg.Server.Host, s.cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  s.cfg.Server.ReadTimeout,
		WriteTimeout: s.cfg.Server.WriteTimeout,
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if err := s.httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.Error("HTTP服务异常退出", zap.Error(err))
		}
	}()
	return nil
}

// WaitForShutdown 等待退出信号
func (s *Server) WaitForShutdown() {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	sig := <-sigCh
	s.logger.Info("收到退出信号", zap.String("signal", sig.String()))
}

// Shutdown 优雅关闭
func (s *Server) Shutdown() error {
	s.logger.Info("正在关闭...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.Server.ShutdownTimeout)
	defer cancel()

	if s.httpSrv != nil {
		if err := s.httpSrv.Shutdown(shutdownCtx); err != nil {
			s.logger.Error("HTTP服务关闭失败", zap.Error(err))
		}
	}

	// 主循环退出时会断开全部继电器
	s.cancel()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-shutdownCtx.Done():
		s.logger.Warn("关闭超时，强制退出")
		return errors.New(errors.ErrTimeout, "关闭超时")
	}

	if s.bus != nil {
		if err := s.bus.Close(); err != nil {
			s.logger.Error("关闭总线失败", zap.Error(err))
		}
	}
	if err := database.Close(); err != nil {
		s.logger.Error("关闭数据库失败", zap.Error(err))
	}
	if err := logger.Sync(); err != nil {
		fmt.Printf("同步日志失败: %v\n", err)
	}
	return nil
}

// rebootProcess 出厂复位和固件升级后的重启途径。
// 进程由init守护（systemd/procd），退出即重新拉起新镜像。
func rebootProcess() {
	logger.Warn("进程即将退出等待重启")
	_ = logger.Sync()
	time.Sleep(500 * time.Millisecond)
	os.Exit(0)
}

// printVersion 打印版本信息
func printVersion() {
	fmt.Printf("售货机控制程序\n")
	fmt.Printf("版本: %s\n", Version)
	fmt.Printf("构建时间: %s\n", BuildTime)
	fmt.Printf("Git提交: %s\n", GitCommit)
	fmt.Printf("Go版本: %s\n", runtime.Version())
	fmt.Printf("操作系统: %s/%s\n", runtime.GOOS, runtime.GOARCH)
}
