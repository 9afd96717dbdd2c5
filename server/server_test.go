package server

import (
	"context"
	"testing"

	"gorm.io/gorm"

	"github.com/jonwraymond/zerocache/observe"
)

// newTestDB opens a private in-memory database with the cache table.
func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := OpenDB("")
	if err != nil {
		t.Fatalf("OpenDB: %v", err)
	}
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	if err := Migrate(context.Background(), db, "cache"); err != nil {
		t.Fatalf("Migrate: %v", err)
	}
	return db
}

// newTestServer builds a Server over an in-memory database.
func newTestServer(t *testing.T, cfg Config) *Server {
	t.Helper()
	if cfg.JanitorInterval == 0 {
		cfg.JanitorInterval = -1
	}
	s, err := New(context.Background(), cfg, WithLogger(observe.NopLogger()))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func seedRows(t *testing.T, db *gorm.DB, rows ...Row) {
	t.Helper()
	for _, r := range rows {
		if err := db.Create(&r).Error; err != nil {
			t.Fatalf("seed %s: %v", r.Key, err)
		}
	}
}

// counterValue sums every series of the named counter family.
func counterValue(t *testing.T, m *Metrics, name string) float64 {
	t.Helper()
	families, err := m.Registry().Gather()
	if err != nil {
		t.Fatalf("Gather: %v", err)
	}
	var sum float64
	for _, mf := range families {
		if mf.GetName() != name {
			continue
		}
		for _, metric := range mf.GetMetric() {
			sum += metric.GetCounter().GetValue()
		}
	}
	return sum
}
