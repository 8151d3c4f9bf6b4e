package database

import (
	"path/filepath"
	"testing"
)

func TestRebind(t *testing.T) {
	pg := &DB{Driver: DriverPostgres}
	if got := pg.Rebind(`SELECT * FROM users WHERE id = ? AND username = ?`); got != `SELECT * FROM users WHERE id = $1 AND username = $2` {
		t.Fatalf("postgres: got %q", got)
	}
	lite := &DB{Driver: DriverSQLite}
	if got := lite.Rebind(`SELECT ?`); got != `SELECT ?` {
		t.Fatalf("sqlite: got %q", got)
	}
}

func TestOpenSQLiteIsIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "app.db")

	for i := 0; i < 2; i++ {
		db, err := Open(DriverSQLite, path)
		if err != nil {
			t.Fatalf("open %d: %v", i, err)
		}
		var n int
		if err := db.QueryRow(`SELECT COUNT(*) FROM document_usage`).Scan(&n); err != nil {
			t.Fatalf("schema missing: %v", err)
		}
		var source string
		if err := db.QueryRow(`SELECT COALESCE(MAX(credit_source), '') FROM documents`).Scan(&source); err != nil {
			t.Fatalf("migrated column missing: %v", err)
		}
		db.Close()
	}
}

func TestOpenUnknownDriver(t *testing.T) {
	if _, err := Open("oracle", "x"); err == nil {
		t.Fatal("expected an error")
	}
}
