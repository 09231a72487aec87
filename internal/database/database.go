// Package database owns the shared gorm connection. SQLite is the default
// backend; Postgres is selectable via configuration.
package database

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/mantonx/watchparty/internal/config"
)

var (
	mu sync.RWMutex
	db *gorm.DB
)

// Initialize sets up the database connection from configuration.
func Initialize(cfg *config.DatabaseConfig) error {
	var (
		conn *gorm.DB
		err  error
	)

	switch cfg.Type {
	case "postgres":
		conn, err = connectPostgres(cfg)
	case "sqlite", "":
		conn, err = connectSQLite(cfg)
	default:
		return fmt.Errorf("unsupported database type: %s", cfg.Type)
	}
	if err != nil {
		return fmt.Errorf("failed to connect to %s database: %w", cfg.Type, err)
	}

	mu.Lock()
	db = conn
	mu.Unlock()
	return nil
}

func connectPostgres(cfg *config.DatabaseConfig) (*gorm.DB, error) {
	dsn := fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%d sslmode=disable TimeZone=UTC",
		cfg.Host, cfg.Username, cfg.Password, cfg.Database, cfg.Port)

	return gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: queryLogger(cfg),
	})
}

func connectSQLite(cfg *config.DatabaseConfig) (*gorm.DB, error) {
	path := cfg.DatabasePath
	if path == "" {
		path = "./watchparty-data/watchparty.db"
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create data directory %s: %w", dir, err)
		}
	}

	return gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: queryLogger(cfg),
	})
}

func queryLogger(cfg *config.DatabaseConfig) gormlogger.Interface {
	if cfg.LogQueries {
		return gormlogger.Default.LogMode(gormlogger.Info)
	}
	return gormlogger.Default.LogMode(gormlogger.Warn)
}

// GetDB returns the database instance
func GetDB() *gorm.DB {
	mu.RLock()
	defer mu.RUnlock()
	return db
}

// SetDB replaces the shared connection (tests only).
func SetDB(conn *gorm.DB) {
	mu.Lock()
	db = conn
	mu.Unlock()
}
