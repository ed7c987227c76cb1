package store

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"sync/atomic"
	"time"

	"github.com/oriumgames/persist"
	"github.com/rotisserie/eris"

	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS blobs (
    name TEXT PRIMARY KEY,
    data BLOB NOT NULL,
    updated_at INTEGER NOT NULL
);
`

// SQLite stores blobs as rows of a single table.
//
// Usage:
//
//	s, err := store.OpenSQLite("saves.db")
//	if err != nil {
//	    return err
//	}
//	defer s.Close()
type SQLite struct {
	db     *sql.DB
	closed atomic.Bool
}

// OpenSQLite opens (or creates) the database at path. Use ":memory:" for a
// throwaway database.
func OpenSQLite(path string) (*SQLite, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, eris.Wrapf(err, "store: open %s", path)
	}
	// A single connection keeps ":memory:" databases coherent and
	// serializes writers.
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, eris.Wrap(err, "store: create schema")
	}
	return &SQLite{db: db}, nil
}

// Read implements persist.Store.
func (s *SQLite) Read(ctx context.Context, name string) ([]byte, error) {
	if s.closed.Load() {
		return nil, ErrClosed
	}
	var data []byte
	err := s.db.QueryRowContext(ctx, `SELECT data FROM blobs WHERE name = ?`, name).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFound(name)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "store: read %s", name)
	}
	return data, nil
}

// Write implements persist.Store.
func (s *SQLite) Write(ctx context.Context, name string, data []byte) error {
	if s.closed.Load() {
		return ErrClosed
	}
	if err := validName(name); err != nil {
		return err
	}
	if data == nil {
		data = []byte{}
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO blobs (name, data, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET data = excluded.data, updated_at = excluded.updated_at`,
		name, data, time.Now().UnixMilli())
	if err != nil {
		return eris.Wrapf(err, "store: write %s", name)
	}
	return nil
}

// Delete implements persist.Store.
func (s *SQLite) Delete(ctx context.Context, name string) error {
	if s.closed.Load() {
		return ErrClosed
	}
	if _, err := s.db.ExecContext(ctx, `DELETE FROM blobs WHERE name = ?`, name); err != nil {
		return eris.Wrapf(err, "store: delete %s", name)
	}
	return nil
}

// List implements persist.Store.
func (s *SQLite) List(ctx context.Context, prefix string) ([]string, error) {
	if s.closed.Load() {
		return nil, ErrClosed
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT name FROM blobs WHERE substr(name, 1, ?) = ? ORDER BY name`,
		len(prefix), prefix)
	if err != nil {
		return nil, eris.Wrap(err, "store: list")
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, eris.Wrap(err, "store: list")
		}
		if strings.HasPrefix(name, prefix) {
			out = append(out, name)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "store: list")
	}
	return out, nil
}

// Close closes the database. It is safe to call more than once.
func (s *SQLite) Close() error {
	if s.closed.Swap(true) {
		return nil
	}
	return s.db.Close()
}

// Compile-time check that SQLite implements persist.Store.
var _ persist.Store = (*SQLite)(nil)
