// Package database opens the main relational store and the per-group
// media shard stores.
package database

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"gramwatch/config"
	"gramwatch/internal/domain"
)

// Open connects the main store and migrates the schema.
func Open(cfg *config.StorageConfig, logger zerolog.Logger) (*gorm.DB, error) {
	var dialector gorm.Dialector
	switch cfg.Driver {
	case "postgres":
		dialector = postgres.Open(cfg.DSN)
	case "sqlite":
		if err := os.MkdirAll(filepath.Dir(cfg.Path), 0o755); err != nil {
			return nil, fmt.Errorf("create storage directory: %w", err)
		}
		dialector = sqlite.Open(cfg.Path)
	default:
		return nil, fmt.Errorf("unsupported storage driver %q", cfg.Driver)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("open %s store: %w", cfg.Driver, err)
	}

	if err := db.AutoMigrate(
		&domain.Group{},
		&domain.User{},
		&domain.Message{},
		&domain.StateEntry{},
	); err != nil {
		return nil, fmt.Errorf("migrate schema: %w", err)
	}

	logger.Info().
		Str("driver", cfg.Driver).
		Msg("main store connected")

	return db, nil
}

// Close releases the underlying connection pool.
func Close(db *gorm.DB) error {
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
