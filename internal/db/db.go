package db

import (
	"fmt"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

// Connect 负责建立到数据库的连接，并带有简单的重试来等待容器就绪。
func Connect(driver, dsn string) (*gorm.DB, error) {
	var dialector gorm.Dialector
	switch driver {
	case DriverPostgres:
		dialector = postgres.Open(dsn)
	case DriverSQLite:
		dialector = sqlite.Open(dsn)
	default:
		return nil, fmt.Errorf("unsupported driver %q", driver)
	}

	var gdb *gorm.DB
	var err error
	for i := 0; i < 10; i++ {
		gdb, err = gorm.Open(dialector, &gorm.Config{
			Logger:         logger.Default.LogMode(logger.Silent),
			TranslateError: true,
		})
		if err == nil {
			sqlDB, err2 := gdb.DB()
			if err2 == nil {
				p := poolFor(driver)
				sqlDB.SetMaxOpenConns(p.maxOpen)
				sqlDB.SetMaxIdleConns(p.maxIdle)
				sqlDB.SetConnMaxLifetime(p.maxLifetime)
				return gdb, nil
			}
			err = err2
		}
		if driver == DriverSQLite {
			break
		}
		time.Sleep(time.Duration(500+i*200) * time.Millisecond)
	}
	return nil, err
}

type poolConfig struct {
	maxOpen     int
	maxIdle     int
	maxLifetime time.Duration
}

// poolFor 返回连接池参数。SQLite 固定单连接且永不回收，:memory: 库的生命周期与该连接相同。
func poolFor(driver string) poolConfig {
	if driver == DriverSQLite {
		return poolConfig{maxOpen: 1, maxIdle: 1}
	}
	return poolConfig{maxOpen: 20, maxIdle: 5, maxLifetime: time.Hour}
}

// Migrate 自动迁移房间、参与者与消息三张表。
func Migrate(gdb *gorm.DB) error {
	return gdb.AutoMigrate(&chatRecord{}, &participantRecord{}, &messageRecord{})
}
