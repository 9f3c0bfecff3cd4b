// Package testutil provides fixtures shared by package tests.
package testutil

import (
	"testing"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/anonto42/nano-midea/social/internal/repositories"
)

// NewSQLiteDB opens a private in-memory database with the relational schema migrated.
// A single connection is used so every query sees the same memory database.
func NewSQLiteDB(t testing.TB) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger:         gormlogger.Default.LogMode(gormlogger.Silent),
		TranslateError: true,
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("sqlite handle: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	if err := repositories.Migrate(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}
