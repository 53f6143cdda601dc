// Package storetest opens throwaway SQLite databases with the embedded schema
// applied, for store-backed tests.
package storetest

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/jmoiron/sqlx"

	"github.com/ovaphlow/pitchfork/service-household-identity/internal/migrate"
	"github.com/ovaphlow/pitchfork/service-household-identity/pkg/database"
)

// Open returns a migrated database in t.TempDir(), closed on cleanup.
func Open(t testing.TB) *sqlx.DB {
	t.Helper()
	db, err := database.Connect(database.Config{
		Driver: database.DriverSQLite,
		DSN:    filepath.Join(t.TempDir(), "test.db"),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	runner, err := migrate.NewRunner(db, nil)
	if err != nil {
		t.Fatalf("migration runner: %v", err)
	}
	if _, err := runner.Up(context.Background()); err != nil {
		t.Fatalf("apply migrations: %v", err)
	}
	return db
}
