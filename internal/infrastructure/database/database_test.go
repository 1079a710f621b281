package database

import (
	"context"
	"os"
	"path/filepath"
	"testing"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()

	db, err := Open(Config{
		Path:        filepath.Join(t.TempDir(), "test.db"),
		WALMode:     true,
		BusyTimeout: 5,
	})
	if err != nil {
		t.Fatalf("Open() error: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestOpen(t *testing.T) {
	t.Run("creates database file", func(t *testing.T) {
		db := openTestDB(t)
		if _, err := os.Stat(db.Path()); os.IsNotExist(err) {
			t.Error("database file was not created")
		}
	})

	t.Run("creates directory if not exists", func(t *testing.T) {
		dbPath := filepath.Join(t.TempDir(), "subdir", "nested", "test.db")

		db, err := Open(Config{Path: dbPath, WALMode: true, BusyTimeout: 5})
		if err != nil {
			t.Fatalf("Open() error: %v", err)
		}
		defer db.Close() //nolint:errcheck // Test cleanup

		if _, err := os.Stat(filepath.Dir(dbPath)); os.IsNotExist(err) {
			t.Error("database directory was not created")
		}
	})
}

func TestEnsureSchema(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	ddl := `CREATE TABLE IF NOT EXISTS things (id TEXT PRIMARY KEY, name TEXT NOT NULL)`
	if err := db.EnsureSchema(ctx, ddl); err != nil {
		t.Fatalf("EnsureSchema() error: %v", err)
	}

	// Idempotent: a second application is a no-op.
	if err := db.EnsureSchema(ctx, ddl); err != nil {
		t.Fatalf("EnsureSchema() second run error: %v", err)
	}

	if _, err := db.ExecContext(ctx, "INSERT INTO things (id, name) VALUES (?, ?)", "1", "lamp"); err != nil {
		t.Fatalf("insert error: %v", err)
	}

	var name string
	if err := db.QueryRowContext(ctx, "SELECT name FROM things WHERE id = ?", "1").Scan(&name); err != nil {
		t.Fatalf("select error: %v", err)
	}
	if name != "lamp" {
		t.Errorf("name = %q, want lamp", name)
	}
}

func TestHealthCheck(t *testing.T) {
	db := openTestDB(t)

	if err := db.HealthCheck(context.Background()); err != nil {
		t.Errorf("HealthCheck() error: %v", err)
	}
}

func TestTransactionRollback(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	if err := db.EnsureSchema(ctx, `CREATE TABLE IF NOT EXISTS things (id TEXT PRIMARY KEY)`); err != nil {
		t.Fatalf("EnsureSchema() error: %v", err)
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		t.Fatalf("BeginTx() error: %v", err)
	}
	if _, err := tx.ExecContext(ctx, "INSERT INTO things (id) VALUES (?)", "x"); err != nil {
		t.Fatalf("insert error: %v", err)
	}
	if err := tx.Rollback(); err != nil {
		t.Fatalf("Rollback() error: %v", err)
	}

	var n int
	if err := db.QueryRowContext(ctx, "SELECT COUNT(*) FROM things").Scan(&n); err != nil {
		t.Fatalf("count error: %v", err)
	}
	if n != 0 {
		t.Errorf("rows after rollback = %d, want 0", n)
	}
}
