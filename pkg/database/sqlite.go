package database

import (
	"fmt"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"

	"tipbot-core/pkg/logger"
)

// ConnectSQLite 打开纯 Go 的 SQLite (本地运行和测试使用)。
// path 为 ":memory:" 时使用共享缓存的内存库。
func ConnectSQLite(path string, env string) (*gorm.DB, error) {
	dsn := path + "?_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)"
	if path == ":memory:" {
		dsn = "file::memory:?cache=shared&_pragma=foreign_keys(1)"
	}
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:         gormLogger(env),
		TranslateError: true, // 唯一索引冲突翻译为 gorm.ErrDuplicatedKey
	})
	if err != nil {
		return nil, fmt.Errorf("无法打开 SQLite: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	// SQLite 只允许一个写者，单连接避免 database is locked
	sqlDB.SetMaxOpenConns(1)

	logger.Info("SQLite 打开成功")
	return db, nil
}
