package testutil

import (
	"testing"

	"openclawsetup/internal/journal"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// SetupTestDB creates an in-memory SQLite journal for testing.
// It returns a cleanup function that should be called after the test.
func SetupTestDB(t *testing.T) func() {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		t.Fatalf("failed to create test database: %v", err)
	}
	if err := journal.Migrate(db); err != nil {
		t.Fatalf("failed to migrate test database: %v", err)
	}

	journal.DB = db

	return func() {
		sqlDB, _ := db.DB()
		if sqlDB != nil {
			sqlDB.Close()
		}
		journal.DB = nil
	}
}
