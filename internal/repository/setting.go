package repository

import (
	"context"
	"fmt"
	"strconv"
	"sync"

	"github.com/wfunc/vending-machine/internal/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// 持久化键名。每个可变参数单独一个key，变更时只写该key对应的行。
const (
	KeyCredit       = "credit"       // 当前余额（分）
	KeyActiveSlots  = "active_slots" // 启用的货道数量
	KeyPasswordHash = "password_hash"

	KeyCoinDelay        = "coin_delay_ms"
	KeyBillDebounce     = "bill_debounce_ms"
	KeyBillGroupTimeout = "bill_group_timeout_ms"
	KeyDispenseTime     = "dispense_time_ms"
	KeyKeypadTimeout    = "keypad_timeout_ms"
	KeySelectionTimeout = "selection_timeout_ms"
	KeyDisplayTimeout   = "display_timeout_ms"

	KeyNotifyEnabled  = "notify_enabled"
	KeyNotifyToken    = "notify_token"
	KeyNotifyChatID   = "notify_chat_id"
	KeyNotifyOnSale   = "notify_on_sale"  // 售出事件开关
	KeyNotifyOnStock  = "notify_on_stock" // 库存事件开关
	KeyStockThreshold = "stock_threshold"

	KeyDisplaySlogan = "display_slogan"
	KeyDisplayFooter = "display_footer"

	KeyStaticIP = "static_ip"
	KeyGateway  = "gateway"
	KeySubnet   = "subnet"
	KeyDNS      = "dns"
)

// SlotPriceKey 货道价格键
func SlotPriceKey(slot int) string {
	return fmt.Sprintf("slot_price_%d", slot)
}

// SlotAvailKey 货道库存键
func SlotAvailKey(slot int) string {
	return fmt.Sprintf("slot_avail_%d", slot)
}

// SlotLockedKey 货道锁定键
func SlotLockedKey(slot int) string {
	return fmt.Sprintf("slot_locked_%d", slot)
}

// SettingRepository 配置仓储接口
type SettingRepository interface {
	BaseRepository
	Get(ctx context.Context, key string) (*models.Setting, error)
	GetString(ctx context.Context, key string, defaultValue string) string
	GetInt(ctx context.Context, key string, defaultValue int) int
	GetInt64(ctx context.Context, key string, defaultValue int64) int64
	GetBool(ctx context.Context, key string, defaultValue bool) bool
	Set(ctx context.Context, key string, value interface{}) error
	GetAll(ctx context.Context) ([]*models.Setting, error)
	Delete(ctx context.Context, key string) error
	DeleteAll(ctx context.Context) error
}

// settingRepo 配置仓储实现
type settingRepo struct {
	*BaseRepo
	mu    sync.RWMutex
	cache map[string]string // key -> value 内存缓存
}

// NewSettingRepository 创建配置仓储并预热缓存
func NewSettingRepository(db *gorm.DB) SettingRepository {
	repo := &settingRepo{
		BaseRepo: NewBaseRepo(db),
		cache:    make(map[string]string),
	}
	repo.refreshCache(context.Background())
	return repo
}

// refreshCache 从数据库加载全部配置到缓存
func (r *settingRepo) refreshCache(ctx context.Context) {
	var settings []*models.Setting
	if err := r.db.WithContext(ctx).Find(&settings).Error; err != nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, s := range settings {
		r.cache[s.Key] = s.Value
	}
}

// Get 获取配置
func (r *settingRepo) Get(ctx context.Context, key string) (*models.Setting, error) {
	var setting models.Setting
	err := r.db.WithContext(ctx).
		Where("`key` = ?", key).
		First(&setting).Error
	if err != nil {
		return nil, err
	}
	return &setting, nil
}

// GetString 获取字符串配置
func (r *settingRepo) GetString(ctx context.Context, key string, defaultValue string) string {
	r.mu.RLock()
	value, ok := r.cache[key]
	r.mu.RUnlock()
	if ok {
		return value
	}
	setting, err := r.Get(ctx, key)
	if err != nil {
		return defaultValue
	}
	r.mu.Lock()
	r.cache[key] = setting.Value
	r.mu.Unlock()
	return setting.Value
}

// GetInt 获取整数配置
func (r *settingRepo) GetInt(ctx context.Context, key string, defaultValue int) int {
	value := r.GetString(ctx, key, "")
	if value == "" {
		return defaultValue
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return defaultValue
	}
	return n
}

// GetInt64 获取64位整数配置（余额等金额字段使用）
func (r *settingRepo) GetInt64(ctx context.Context, key string, defaultValue int64) int64 {
	value := r.GetString(ctx, key, "")
	if value == "" {
		return defaultValue
	}
	n, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return defaultValue
	}
	return n
}

// GetBool 获取布尔配置
func (r *settingRepo) GetBool(ctx context.Context, key string, defaultValue bool) bool {
	value := r.GetString(ctx, key, "")
	if value == "" {
		return defaultValue
	}
	b, err := strconv.ParseBool(value)
	if err != nil {
		return defaultValue
	}
	return b
}

// Set 写入配置，单行upsert立即落库
func (r *settingRepo) Set(ctx context.Context, key string, value interface{}) error {
	strValue := ""
	valueType := "string"
	switch v := value.(type) {
	case string:
		strValue = v
	case int:
		strValue = strconv.Itoa(v)
		valueType = "int"
	case int64:
		strValue = strconv.FormatInt(v, 10)
		valueType = "int"
	case bool:
		strValue = strconv.FormatBool(v)
		valueType = "bool"
	case float64:
		strValue = strconv.FormatFloat(v, 'f', -1, 64)
		valueType = "float"
	default:
		strValue = fmt.Sprintf("%v", v)
	}

	setting := models.Setting{
		Key:   key,
		Value: strValue,
		Type:  valueType,
	}
	err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "key"}},
			DoUpdates: clause.AssignmentColumns([]string{"value", "type", "updated_at"}),
		}).
		Create(&setting).Error
	if err != nil {
		return err
	}

	r.mu.Lock()
	r.cache[key] = strValue
	r.mu.Unlock()
	return nil
}

// GetAll 获取全部配置
func (r *settingRepo) GetAll(ctx context.Context) ([]*models.Setting, error) {
	var settings []*models.Setting
	err := r.db.WithContext(ctx).
		Order("`key` ASC").
		Find(&settings).Error
	return settings, err
}

// Delete 删除配置
func (r *settingRepo) Delete(ctx context.Context, key string) error {
	err := r.db.WithContext(ctx).
		Where("`key` = ?", key).
		Delete(&models.Setting{}).Error
	if err != nil {
		return err
	}
	r.mu.Lock()
	delete(r.cache, key)
	r.mu.Unlock()
	return nil
}

// DeleteAll 清空全部配置（恢复出厂设置）
func (r *settingRepo) DeleteAll(ctx context.Context) error {
	err := r.db.WithContext(ctx).
		Where("1 = 1").
		Delete(&models.Setting{}).Error
	if err != nil {
		return err
	}
	r.mu.Lock()
	r.cache = make(map[string]string)
	r.mu.Unlock()
	return nil
}
