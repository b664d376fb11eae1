package repository

import (
	"testing"

	"github.com/wfunc/vending-machine/internal/models"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// SetupTestDB 为测试套件设置内存数据库
func SetupTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	// 使用内存数据库进行测试（更快，不需要文件系统）
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("打开内存数据库失败: %v", err)
	}

	if err := db.AutoMigrate(
		&models.Setting{},
		&models.SaleRecord{},
	); err != nil {
		t.Fatalf("迁移测试表失败: %v", err)
	}

	return db
}
