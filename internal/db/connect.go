// Package db opens and migrates the Switchboard record store.
package db

import (
	"fmt"

	"github.com/zulandar/switchboard/internal/config"
	"gorm.io/driver/mysql"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// DSN builds a MySQL DSN from the db configuration.
func DSN(cfg config.DBConfig) string {
	cred := cfg.User
	if cfg.Password != "" {
		cred += ":" + cfg.Password
	}
	return fmt.Sprintf("%s@tcp(%s:%d)/%s?parseTime=true", cred, cfg.Host, cfg.Port, cfg.Database)
}

// Connect opens a GORM connection to the configured record store. SQLite is
// the default for single-box deployments; MySQL for shared ones.
func Connect(cfg config.DBConfig) (*gorm.DB, error) {
	gormCfg := &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	}

	switch cfg.Driver {
	case "sqlite":
		db, err := gorm.Open(sqlite.Open(cfg.Path), gormCfg)
		if err != nil {
			return nil, fmt.Errorf("db: open sqlite %s: %w", cfg.Path, err)
		}
		return db, nil
	case "mysql":
		db, err := gorm.Open(mysql.Open(DSN(cfg)), gormCfg)
		if err != nil {
			return nil, fmt.Errorf("db: connect to %s:%d/%s: %w", cfg.Host, cfg.Port, cfg.Database, err)
		}
		return db, nil
	default:
		return nil, fmt.Errorf("db: unsupported driver %q", cfg.Driver)
	}
}
