package database

import (
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"tipbot-core/pkg/config"
	"tipbot-core/pkg/logger"
)

// Open 根据 db.driver 打开 postgres 或 sqlite
func Open(cfg config.DBConfig, env string) (*gorm.DB, error) {
	switch cfg.Driver {
	case "postgres":
		return ConnectPostgres(cfg.DSN(), env)
	case "sqlite", "":
		return ConnectSQLite(cfg.SQLitePath, env)
	default:
		return nil, fmt.Errorf("unsupported db driver %q", cfg.Driver)
	}
}

// ConnectPostgres 连接到 PostgreSQL 数据库
// dsn: "host=localhost user=gorm password=gorm dbname=gorm port=9920 sslmode=disable"
func ConnectPostgres(dsn string, env string) (*gorm.DB, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger:         gormLogger(env),
		TranslateError: true, // 唯一索引冲突翻译为 gorm.ErrDuplicatedKey
	})
	if err != nil {
		return nil, fmt.Errorf("无法连接到数据库: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}

	// 连接池配置
	sqlDB.SetMaxIdleConns(10)           // 空闲连接数
	sqlDB.SetMaxOpenConns(100)          // 最大连接数
	sqlDB.SetConnMaxLifetime(time.Hour) // 连接最大存活时间

	logger.Info("PostgreSQL 连接成功")
	return db, nil
}

// 开发环境打印 SQL 语句方便调试
func gormLogger(env string) gormlogger.Interface {
	if env == "production" {
		return gormlogger.Default.LogMode(gormlogger.Warn)
	}
	return gormlogger.Default.LogMode(gormlogger.Info)
}

// Close 关闭底层连接池
func Close(db *gorm.DB) {
	sqlDB, err := db.DB()
	if err != nil {
		return
	}
	if err := sqlDB.Close(); err != nil {
		logger.Warn("close database failed", zap.Error(err))
	}
}
