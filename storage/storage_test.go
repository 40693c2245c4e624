package storage

import (
	"errors"
	"path/filepath"
	"testing"
)

func TestMigrateSQLite(t *testing.T) {
	db, err := Open(DriverSQLite, filepath.Join(t.TempDir(), "rateio.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer db.Close()

	if err := Migrate(db, DriverSQLite); err != nil {
		t.Fatalf("Migrate: %v", err)
	}
	// a second run has nothing to apply
	if err := Migrate(db, DriverSQLite); err != nil {
		t.Fatalf("second Migrate: %v", err)
	}

	for _, table := range []string{"ledgers", "participants", "users", "sessions", "expenses", "contributions", "deposits", "category_budgets", "events"} {
		var name string
		err := db.QueryRow(`SELECT name FROM sqlite_master WHERE type = 'table' AND name = $1`, table).Scan(&name)
		if err != nil {
			t.Errorf("table %s: %v", table, err)
		}
	}

	var fk int
	if err := db.QueryRow(`PRAGMA foreign_keys`).Scan(&fk); err != nil {
		t.Fatalf("reading pragma: %v", err)
	}
	if fk != 1 {
		t.Errorf("foreign_keys = %d, want 1", fk)
	}
}

func TestOpenUnsupportedDriver(t *testing.T) {
	if _, err := Open("mysql", "dsn"); !errors.Is(err, ErrUnsupportedDriver) {
		t.Errorf("expected ErrUnsupportedDriver, got %v", err)
	}
	if err := Migrate(nil, "mysql"); !errors.Is(err, ErrUnsupportedDriver) {
		t.Errorf("expected ErrUnsupportedDriver, got %v", err)
	}
}

func TestWithSQLitePragmas(t *testing.T) {
	tests := []struct {
		dsn  string
		want string
	}{
		{"app.db", "app.db?_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"},
		{"file:app.db?cache=shared", "file:app.db?cache=shared&_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"},
	}
	for _, tt := range tests {
		if got := withSQLitePragmas(tt.dsn); got != tt.want {
			t.Errorf("withSQLitePragmas(%q) = %q, want %q", tt.dsn, got, tt.want)
		}
	}
}
