// Package dbtest opens the integration test database.
package dbtest

import (
	"os"
	"testing"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	"github.com/kcrp/rp-dashboard/internal/pkg/database"
)

// EnvURL names the variable holding the test database URL.
const EnvURL = "TEST_DATABASE_URL"

// Open connects to the test database, applies migrations and empties the
// mutable tables. Seed rows are kept. The test is skipped when no database
// is configured.
func Open(t *testing.T) *sqlx.DB {
	t.Helper()

	dsn := os.Getenv(EnvURL)
	if dsn == "" {
		t.Skipf("%s not set", EnvURL)
	}
	db, err := sqlx.Connect("postgres", dsn)
	if err != nil {
		t.Skipf("db not available: %v", err)
	}
	if err := database.Migrate(db); err != nil {
		db.Close()
		t.Fatalf("migrate: %v", err)
	}

	truncate(t, db)
	t.Cleanup(func() {
		truncate(t, db)
		db.Close()
	})
	return db
}

func truncate(t *testing.T, db *sqlx.DB) {
	t.Helper()
	for _, stmt := range []string{
		`DELETE FROM moderation_logs`,
		`DELETE FROM bans`,
		`DELETE FROM players`,
		`DELETE FROM audit_log`,
		`DELETE FROM backups`,
		`UPDATE department_documents SET updated_by = NULL`,
		`UPDATE server_settings SET updated_by = NULL`,
		`DELETE FROM users`,
	} {
		if _, err := db.Exec(stmt); err != nil {
			t.Fatalf("reset %q: %v", stmt, err)
		}
	}
}
