// Package dbtest opens throwaway in-memory databases for tests.
package dbtest

import (
	"testing"

	"github.com/google/uuid"
	"github.com/pysugar/launcher-accounts/internal/db"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Open returns a migrated in-memory database private to t.
func Open(t testing.TB) *gorm.DB {
	t.Helper()
	dsn := "file:" + uuid.NewString() + "?mode=memory&cache=shared"
	database, err := db.InitDB(dsn, zap.NewNop())
	if err != nil {
		t.Fatalf("failed to open db: %v", err)
	}
	t.Cleanup(func() { _ = db.Close(database) })
	return database
}
