package storage

import (
	"os"
	"path/filepath"
	"strings"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"pestscan-server/internal/platform/errors"
	"pestscan-server/internal/platform/storage/migrations"
)

// Database owns the gorm handle of the audit store.
type Database struct {
	db *gorm.DB
}

// Open opens (creating if needed) the sqlite database at dsn and applies all
// migrations.
func Open(dsn string) (*Database, error) {
	dsn = strings.TrimSpace(dsn)
	if dsn == "" {
		return nil, errors.New(errors.KindStorage, "storage.open", "empty dsn")
	}

	if !isMemoryDSN(dsn) {
		if dir := filepath.Dir(dsn); dir != "." && dir != "" {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, errors.Wrap(errors.KindStorage, "storage.open", "failed to create data directory", err)
			}
		}
	}

	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, errors.Wrap(errors.KindStorage, "storage.open", "failed to open database", err)
	}

	if isMemoryDSN(dsn) {
		// 内存库每个连接独立，限制为单连接
		sqlDB, err := db.DB()
		if err != nil {
			return nil, errors.Wrap(errors.KindStorage, "storage.open", "failed to access sql handle", err)
		}
		sqlDB.SetMaxOpenConns(1)
	}

	manager := NewMigrationManager(db)
	manager.AddMigration(&migrations.Migration001Initial{})
	manager.AddMigration(&migrations.Migration002CreatedAtIndex{})
	if err := manager.RunMigrations(); err != nil {
		return nil, err
	}

	return &Database{db: db}, nil
}

func isMemoryDSN(dsn string) bool {
	return dsn == ":memory:" || strings.Contains(dsn, "mode=memory") || strings.HasPrefix(dsn, "file::memory:")
}

// Gorm exposes the underlying handle.
func (d *Database) Gorm() *gorm.DB {
	return d.db
}

func (d *Database) Close() error {
	if d == nil || d.db == nil {
		return nil
	}
	sqlDB, err := d.db.DB()
	if err != nil {
		return errors.Wrap(errors.KindStorage, "storage.close", "failed to access sql handle", err)
	}
	return sqlDB.Close()
}
