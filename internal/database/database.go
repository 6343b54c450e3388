package database

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/arpg-timeline/discord-season-notify/internal/models"
)

// DB is the shared gorm handle, set by Init.
var DB *gorm.DB

// Init opens the database and runs migrations. dbType is "sqlite" or "postgres".
func Init(dbType, connString string) error {
	var dialector gorm.Dialector
	switch dbType {
	case "postgres":
		dialector = postgres.Open(connString)
	case "sqlite", "":
		if dir := filepath.Dir(connString); dir != "" && dir != "." && connString != ":memory:" {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return fmt.Errorf("failed to create database directory: %w", err)
			}
		}
		dialector = sqlite.Open(connString)
	default:
		return fmt.Errorf("unsupported database type: %s", dbType)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}

	if dbType != "postgres" {
		// Reduce "database is locked" contention between poller and handlers.
		db.Exec("PRAGMA journal_mode=WAL;")
		db.Exec("PRAGMA busy_timeout=5000;")
	}

	if err := db.AutoMigrate(
		&models.GuildSettings{},
		&models.GuildGameToggle{},
		&models.SeenSeason{},
		&models.APIToken{},
		&models.APICacheEntry{},
		&models.ServiceStatus{},
		&models.APIHealthStat{},
	); err != nil {
		return fmt.Errorf("failed to migrate database: %w", err)
	}

	DB = db
	return nil
}

// Close closes the underlying connection pool.
func Close() {
	if DB == nil {
		return
	}
	if sqlDB, err := DB.DB(); err == nil {
		sqlDB.Close()
	}
}

// WithRetry retries an operation a few times when sqlite reports the
// database as busy or locked.
func WithRetry(op func() error) error {
	var err error
	for attempt := 0; attempt < 5; attempt++ {
		err = op()
		if err == nil || !isLockError(err) {
			return err
		}
		time.Sleep(time.Duration(attempt+1) * 50 * time.Millisecond)
	}
	return err
}

func isLockError(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "database is locked") || strings.Contains(msg, "SQLITE_BUSY")
}
