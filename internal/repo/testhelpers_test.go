package repo

import (
	"path/filepath"
	"testing"

	"gorm.io/gorm"
)

// newRepoDB opens a migrated SQLite file under t.TempDir(). A file (rather
// than a shared in-memory DB) lets concurrent writers rely on busy_timeout.
func newRepoDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := OpenSQLite(filepath.Join(t.TempDir(), "repo_test.db"))
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	// Release the file handle before TempDir cleanup.
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	if err := AutoMigrate(db); err != nil {
		t.Fatalf("automigrate: %v", err)
	}
	return db
}
