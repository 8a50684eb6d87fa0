package journal

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"openclawsetup/internal/appconfig"
	"openclawsetup/internal/logger"

	"github.com/glebarez/sqlite"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

var DB *gorm.DB

func Init(cfg appconfig.DatabaseConfig, debug bool) error {
	var dialector gorm.Dialector

	switch cfg.Driver {
	case "", "sqlite":
		if err := os.MkdirAll(filepath.Dir(cfg.SQLitePath), 0o755); err != nil {
			return fmt.Errorf("创建日志数据库目录失败: %w", err)
		}
		dialector = sqlite.Open(cfg.SQLitePath)
		logger.Journal.Debug().Str("driver", "sqlite").Str("path", cfg.SQLitePath).Msg("打开操作日志库")
	case "postgres":
		if cfg.PostgresDSN == "" {
			return fmt.Errorf("driver 为 postgres 时必须设置 postgres_dsn")
		}
		dialector = postgres.Open(cfg.PostgresDSN)
		logger.Journal.Debug().Str("driver", "postgres").Msg("打开操作日志库")
	default:
		return fmt.Errorf("不支持的数据库驱动: %s", cfg.Driver)
	}

	logLevel := gormlogger.Silent
	if debug {
		logLevel = gormlogger.Info
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: gormlogger.Default.LogMode(logLevel),
	})
	if err != nil {
		return fmt.Errorf("连接数据库失败: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("获取底层 sql.DB 失败: %w", err)
	}
	// 单进程命令行工具，连接数不需要多
	sqlDB.SetMaxOpenConns(4)
	sqlDB.SetMaxIdleConns(1)
	sqlDB.SetConnMaxLifetime(5 * time.Minute)

	if err := Migrate(db); err != nil {
		return fmt.Errorf("迁移数据库失败: %w", err)
	}
	DB = db
	return nil
}

// Migrate 创建或更新表结构
func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(&Operation{}, &Setting{})
}

func Close() error {
	if DB == nil {
		return nil
	}
	sqlDB, err := DB.DB()
	if err != nil {
		return err
	}
	err = sqlDB.Close()
	DB = nil
	return err
}
