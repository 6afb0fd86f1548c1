package database

import (
	"cv-smart-go/internal/config"
	"cv-smart-go/internal/model"
	"cv-smart-go/pkg/log"

	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var DB *gorm.DB

// InitMySQL 连接 MySQL 并按配置设置连接池；AutoMigrate 打开时同步 cv_documents 表结构。
func InitMySQL(cfg config.MySQLConfig) {
	var err error
	DB, err = gorm.Open(mysql.Open(cfg.DSN), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		log.Fatal("连接 MySQL 失败", err)
	}

	sqlDB, err := DB.DB()
	if err != nil {
		log.Fatal("获取 sql.DB 失败", err)
	}
	if cfg.MaxIdleConns > 0 {
		sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.MaxOpenConns > 0 {
		sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	if cfg.AutoMigrate {
		if err := DB.AutoMigrate(&model.Document{}); err != nil {
			log.Fatal("同步 cv_documents 表结构失败", err)
		}
	}

	log.Infof("MySQL 连接成功, MaxOpenConns: %d, AutoMigrate: %t", cfg.MaxOpenConns, cfg.AutoMigrate)
}
