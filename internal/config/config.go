package config

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// Config 全局配置结构体。
// 这里只放进程级配置（端口、串口设备、日志、密钥路径等）；
// 机器行为参数（时间参数、价格、通知设置）保存在持久化存储中，
// 可通过管理接口在运行时修改。
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Bus      BusConfig      `mapstructure:"bus"`
	GPIO     GPIOConfig     `mapstructure:"gpio"`
	Vending  VendingConfig  `mapstructure:"vending"`
	Log      LogConfig      `mapstructure:"log"`
	Security SecurityConfig `mapstructure:"security"`
}

// ServerConfig 管理面板HTTP服务配置
type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	Mode            string        `mapstructure:"mode"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// DatabaseConfig 数据库配置
type DatabaseConfig struct {
	Driver          string        `mapstructure:"driver"`
	DSN             string        `mapstructure:"dsn"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	LogLevel        string        `mapstructure:"log_level"`
	AutoMigrate     bool          `mapstructure:"auto_migrate"`
}

// BusConfig 继电器总线桥接串口配置
type BusConfig struct {
	Enabled      bool          `mapstructure:"enabled"`
	MockMode     bool          `mapstructure:"mock_mode"` // 调试模式（使用模拟总线）
	Port         string        `mapstructure:"port"`
	BaudRate     int           `mapstructure:"baud_rate"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	DeviceAddr   uint8         `mapstructure:"device_addr"`
}

// GPIOConfig 用户侧信号脚位配置
// 投币/纸币脉冲、键盘矩阵、蜂鸣器、纸币禁止线和复位按钮都接GPIO
type GPIOConfig struct {
	Enabled      bool          `mapstructure:"enabled"`
	CoinPin      int           `mapstructure:"coin_pin"`
	BillPin      int           `mapstructure:"bill_pin"`
	InhibitPin   int           `mapstructure:"inhibit_pin"`
	BeepPin      int           `mapstructure:"beep_pin"`
	ResetPin     int           `mapstructure:"reset_pin"`
	KeypadRows   []int         `mapstructure:"keypad_rows"`
	KeypadCols   []int         `mapstructure:"keypad_cols"`
	PollInterval time.Duration `mapstructure:"poll_interval"`
}

// VendingConfig 售货机进程级配置
type VendingConfig struct {
	TickInterval    time.Duration `mapstructure:"tick_interval"`
	OfflineMode     bool          `mapstructure:"offline_mode"`
	FirmwareStaging string        `mapstructure:"firmware_staging"`
	FirmwarePath    string        `mapstructure:"firmware_path"`
}

// LogConfig 日志配置
type LogConfig struct {
	Level     string            `mapstructure:"level"`
	Format    string            `mapstructure:"format"`
	Output    string            `mapstructure:"output"`
	RingLines int               `mapstructure:"ring_lines"`
	File      LogFileConfig     `mapstructure:"file"`
	Modules   map[string]string `mapstructure:"modules"`
}

// LogFileConfig 日志文件配置
type LogFileConfig struct {
	Path       string `mapstructure:"path"`
	Filename   string `mapstructure:"filename"`
	MaxSize    int    `mapstructure:"max_size"`
	MaxAge     int    `mapstructure:"max_age"`
	MaxBackups int    `mapstructure:"max_backups"`
	Compress   bool   `mapstructure:"compress"`
}

// SecurityConfig 安全配置
type SecurityConfig struct {
	JWT JWTConfig `mapstructure:"jwt"`
}

// JWTConfig JWT配置。过期时间同时承担管理会话的闲置超时职责。
type JWTConfig struct {
	Secret      string        `mapstructure:"secret"`
	ExpireAfter time.Duration `mapstructure:"expire_after"`
}

var (
	cfg  *Config
	once sync.Once
	mu   sync.RWMutex
	v    *viper.Viper
)

// Init 初始化配置
func Init(configPath string) error {
	var err error
	once.Do(func() {
		v = viper.New()

		if configPath != "" {
			v.SetConfigFile(configPath)
		} else {
			v.SetConfigName("config")
			v.SetConfigType("yaml")
			v.AddConfigPath("./config")
			v.AddConfigPath(".")
		}

		// 设置环境变量前缀
		v.SetEnvPrefix("VENDING")
		v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
		v.AutomaticEnv()

		setDefaults(v)

		// 读取配置文件；文件不存在时使用默认配置
		if err = v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return
			}
			err = nil
		}

		cfg = &Config{}
		err = v.Unmarshal(cfg)
	})

	return err
}

// setDefaults 设置默认配置值
func setDefaults(v *viper.Viper) {
	// 服务器默认配置
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.mode", "release")
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "30s")
	v.SetDefault("server.shutdown_timeout", "10s")

	// 数据库默认配置
	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.dsn", "./data/vending.db")
	v.SetDefault("database.max_idle_conns", 2)
	v.SetDefault("database.max_open_conns", 4)
	v.SetDefault("database.conn_max_lifetime", "1h")
	v.SetDefault("database.log_level", "warn")
	v.SetDefault("database.auto_migrate", true)

	// 总线默认配置
	v.SetDefault("bus.enabled", true)
	v.SetDefault("bus.mock_mode", false)
	v.SetDefault("bus.port", "/dev/ttyS1")
	v.SetDefault("bus.baud_rate", 115200)
	v.SetDefault("bus.read_timeout", "100ms")
	v.SetDefault("bus.device_addr", 0x20)

	// GPIO默认配置（Allwinner V3s参考板脚位）
	v.SetDefault("gpio.enabled", true)
	v.SetDefault("gpio.coin_pin", 64)
	v.SetDefault("gpio.bill_pin", 65)
	v.SetDefault("gpio.inhibit_pin", 66)
	v.SetDefault("gpio.beep_pin", 67)
	v.SetDefault("gpio.reset_pin", 68)
	v.SetDefault("gpio.keypad_rows", []int{32, 33, 34, 35})
	v.SetDefault("gpio.keypad_cols", []int{36, 37, 38})
	v.SetDefault("gpio.poll_interval", "1ms")

	// 售货机默认配置
	v.SetDefault("vending.tick_interval", "10ms")
	v.SetDefault("vending.offline_mode", false)
	v.SetDefault("vending.firmware_staging", "./data/firmware.bin.part")
	v.SetDefault("vending.firmware_path", "./data/firmware.bin")

	// 日志默认配置
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")
	v.SetDefault("log.output", "both")
	v.SetDefault("log.ring_lines", 50)
	v.SetDefault("log.file.path", "./logs")
	v.SetDefault("log.file.filename", "vending.log")
	v.SetDefault("log.file.max_size", 20)
	v.SetDefault("log.file.max_age", 30)
	v.SetDefault("log.file.max_backups", 5)
	v.SetDefault("log.file.compress", true)

	// 安全默认配置
	v.SetDefault("security.jwt.secret", "change-me")
	v.SetDefault("security.jwt.expire_after", "10m")
}

// Get 获取配置实例
func Get() *Config {
	mu.RLock()
	defer mu.RUnlock()
	return cfg
}

// Watch 监听配置文件变化
func Watch(callback func(*Config)) {
	v.WatchConfig()
	v.OnConfigChange(func(e fsnotify.Event) {
		mu.Lock()
		defer mu.Unlock()

		newCfg := &Config{}
		if err := v.Unmarshal(newCfg); err != nil {
			fmt.Printf("配置重载失败: %v\n", err)
			return
		}

		cfg = newCfg

		if callback != nil {
			callback(cfg)
		}
	})
}
