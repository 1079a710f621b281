package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	sqlitedb "github.com/nerrad567/homeworks-core/internal/infrastructure/database"
)

const schema = `
CREATE TABLE IF NOT EXISTS entities (
	db_id        TEXT PRIMARY KEY,
	iid          INTEGER NOT NULL DEFAULT 0,
	name         TEXT NOT NULL,
	type         TEXT NOT NULL,
	subtype      TEXT NOT NULL DEFAULT '',
	sort_order   INTEGER NOT NULL DEFAULT 0,
	parent_db_id TEXT NOT NULL DEFAULT '',
	path         TEXT NOT NULL DEFAULT ''
);

CREATE INDEX IF NOT EXISTS idx_entities_type ON entities(type);
CREATE INDEX IF NOT EXISTS idx_entities_iid ON entities(iid);

CREATE TABLE IF NOT EXISTS cache_meta (
	key   TEXT PRIMARY KEY,
	value TEXT NOT NULL
);
`

const metaExportedAt = "exported_at"

// Store persists the parsed entity list in SQLite so the tool surface
// works when the processor's HTTP endpoint is unreachable.
type Store struct {
	db *sqlitedb.DB
}

// NewStore wraps the connection and applies the cache schema.
func NewStore(ctx context.Context, db *sqlitedb.DB) (*Store, error) {
	if err := db.EnsureSchema(ctx, schema); err != nil {
		return nil, fmt.Errorf("database: %w", err)
	}
	return &Store{db: db}, nil
}

// Replace swaps the cached entity set wholesale, in one transaction. A
// failed refresh leaves the previous cache intact.
func (s *Store) Replace(ctx context.Context, entities []Entity, exportedAt time.Time) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("database: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // Rollback is no-op after commit

	if _, err := tx.ExecContext(ctx, "DELETE FROM entities"); err != nil {
		return fmt.Errorf("database: clearing cache: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO entities (db_id, iid, name, type, subtype, sort_order, parent_db_id, path)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("database: preparing insert: %w", err)
	}
	defer stmt.Close() //nolint:errcheck // Statement closed with transaction

	for _, e := range entities {
		if _, err := stmt.ExecContext(ctx,
			e.DBID, e.IID, e.Name, string(e.Type), e.Subtype, e.SortOrder, e.ParentDBID, e.Path,
		); err != nil {
			return fmt.Errorf("database: caching entity %s: %w", e.DBID, err)
		}
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO cache_meta (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value
	`, metaExportedAt, exportedAt.UTC().Format(time.RFC3339)); err != nil {
		return fmt.Errorf("database: recording export timestamp: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("database: committing cache refresh: %w", err)
	}
	return nil
}

// Load returns the cached entity set in insertion order.
func (s *Store) Load(ctx context.Context) ([]Entity, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT db_id, iid, name, type, subtype, sort_order, parent_db_id, path
		FROM entities ORDER BY rowid
	`)
	if err != nil {
		return nil, fmt.Errorf("database: loading cache: %w", err)
	}
	defer rows.Close() //nolint:errcheck // Read-only rows

	var entities []Entity
	for rows.Next() {
		var e Entity
		var typ string
		if err := rows.Scan(&e.DBID, &e.IID, &e.Name, &typ, &e.Subtype, &e.SortOrder, &e.ParentDBID, &e.Path); err != nil {
			return nil, fmt.Errorf("database: scanning cache row: %w", err)
		}
		e.Type = EntityType(typ)
		entities = append(entities, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("database: reading cache: %w", err)
	}
	return entities, nil
}

// ExportedAt returns the timestamp of the cached export, or false when
// the cache is empty.
func (s *Store) ExportedAt(ctx context.Context) (time.Time, bool, error) {
	var value string
	err := s.db.QueryRowContext(ctx,
		"SELECT value FROM cache_meta WHERE key = ?", metaExportedAt,
	).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, fmt.Errorf("database: reading export timestamp: %w", err)
	}

	ts, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("database: parsing export timestamp %q: %w", value, err)
	}
	return ts, true, nil
}
