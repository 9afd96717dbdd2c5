package server

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/jonwraymond/zerocache/cache"
)

// Row is the cache table schema, matching what cache.SQLStore reads and
// writes.
type Row struct {
	Key  string `gorm:"column:key;primaryKey"`
	Data string `gorm:"column:data;not null"`
	Tags string `gorm:"column:tags;not null;default:''"`
	TTL  int64  `gorm:"column:ttl;not null"`
}

// TableName is the default table; Migrate and the janitor override it.
func (Row) TableName() string { return cache.DefaultTable }

// OpenDB opens the SQLite database at path. An empty path or ":memory:"
// opens a private in-memory database.
func OpenDB(path string) (*gorm.DB, error) {
	path = strings.TrimSpace(path)
	memory := path == "" || strings.EqualFold(path, ":memory:")

	var dsn string
	if memory {
		dsn = fmt.Sprintf("file:zerocache-%s?mode=memory&cache=shared&_busy_timeout=5000", uuid.NewString())
	} else {
		if dir := filepath.Dir(path); dir != "." && dir != "" {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("create database dir: %w", err)
			}
		}
		dsn = fmt.Sprintf("file:%s?_journal_mode=WAL&_busy_timeout=5000", filepath.ToSlash(path))
	}

	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	// One writer; an in-memory database also lives only as long as its
	// connection.
	sqlDB.SetMaxOpenConns(1)
	return db, nil
}

// Migrate creates table with the Row schema and its expiry index.
func Migrate(ctx context.Context, db *gorm.DB, table string) error {
	if !cache.ValidTableName(table) {
		return fmt.Errorf("%w: table %q", ErrInvalidConfig, table)
	}
	tx := db.WithContext(ctx)
	if err := tx.Table(table).AutoMigrate(&Row{}); err != nil {
		return fmt.Errorf("migrate %s: %w", table, err)
	}
	if err := tx.Exec("CREATE INDEX IF NOT EXISTS " + table + "_ttl_idx ON " + table + " (ttl)").Error; err != nil {
		return fmt.Errorf("migrate %s index: %w", table, err)
	}
	return nil
}

// dbPinger adapts a gorm handle to health.Pinger.
type dbPinger struct{ db *gorm.DB }

func (p dbPinger) Ping(ctx context.Context) error {
	sqlDB, err := p.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}
