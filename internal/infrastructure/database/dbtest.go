package database

import (
	"path/filepath"
	"testing"

	"gorm.io/gorm"
)

// NewTestDB 在临时目录中创建一个已迁移的 sqlite 库，测试结束自动关闭
func NewTestDB(t testing.TB) *gorm.DB {
	t.Helper()

	db, err := OpenSQLite(filepath.Join(t.TempDir(), "creditpay_test.db"))
	if err != nil {
		t.Fatalf("打开测试数据库失败: %v", err)
	}
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.Close()
		}
	})
	return db
}
