package database

import (
	"fmt"
	"strings"
	"time"

	"github.com/AzielCF/az-wabot/core/config"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// NewDatabase opens the store connection described by DATABASE_URL.
// postgres:// DSNs open Postgres; anything else is a SQLite file path.
func NewDatabase(cfg *config.Config) (*gorm.DB, error) {
	var dialector gorm.Dialector
	isPostgres := strings.HasPrefix(cfg.Database.URL, "postgres://") ||
		strings.HasPrefix(cfg.Database.URL, "postgresql://")

	if isPostgres {
		dialector = postgres.Open(cfg.Database.URL)
	} else {
		dsn := fmt.Sprintf("file:%s?_journal_mode=WAL&_foreign_keys=on", cfg.Database.URL)
		dialector = sqlite.Open(dsn)
	}

	gormConfig := &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
		NowFunc: func() time.Time {
			return time.Now().UTC()
		},
	}

	db, err := gorm.Open(dialector, gormConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get sql.DB instance: %w", err)
	}

	if isPostgres {
		sqlDB.SetMaxOpenConns(100)
		sqlDB.SetMaxIdleConns(10)
	} else {
		// SQLite writes are single-connection to avoid SQLITE_BUSY.
		sqlDB.SetMaxOpenConns(1)
		sqlDB.SetMaxIdleConns(1)
	}
	sqlDB.SetConnMaxLifetime(time.Hour)

	return db, nil
}
