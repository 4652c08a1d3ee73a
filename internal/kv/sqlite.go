package kv

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	_ "modernc.org/sqlite"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS kv (
	parent TEXT NOT NULL,
	child  TEXT NOT NULL,
	value  TEXT NOT NULL,
	PRIMARY KEY (parent, child)
) WITHOUT ROWID;
`

// SQLite is an embedded Store backed by a single database file. Change
// notifications are delivered in-process only.
type SQLite struct {
	db   *sql.DB
	feed *MemoryFeed
}

// OpenSQLite opens (or creates) the database at path and applies the
// schema. Safe to call repeatedly on the same file.
func OpenSQLite(path string) (*SQLite, error) {
	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// SQLite serializes writers; one connection avoids SQLITE_BUSY.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}
	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply kv schema: %w", err)
	}
	return &SQLite{db: db, feed: NewMemoryFeed()}, nil
}

// Close closes the database.
func (s *SQLite) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Get implements Store.
func (s *SQLite) Get(ctx context.Context, path string) (json.RawMessage, bool, error) {
	parent, child, err := split(path)
	if err != nil {
		return nil, false, err
	}
	var v string
	err = s.db.QueryRowContext(ctx, `SELECT value FROM kv WHERE parent = ? AND child = ?`, parent, child).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, unavailable("get "+path, err)
	}
	return json.RawMessage(v), true, nil
}

// Children implements Store.
func (s *SQLite) Children(ctx context.Context, path string) ([]Child, error) {
	if err := checkPath(path); err != nil {
		return nil, err
	}
	return s.list(ctx, "children "+path,
		`SELECT child, value FROM kv WHERE parent = ? ORDER BY child`, path)
}

// Query implements Store using SQLite's JSON functions.
func (s *SQLite) Query(ctx context.Context, path, field, equals string) ([]Child, error) {
	if err := checkPath(path); err != nil {
		return nil, err
	}
	return s.list(ctx, "query "+path,
		`SELECT child, value FROM kv
		 WHERE parent = ? AND json_type(value, '$.' || ?) = 'text' AND json_extract(value, '$.' || ?) = ?
		 ORDER BY child`, path, field, field, equals)
}

func (s *SQLite) list(ctx context.Context, op, query string, args ...any) ([]Child, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, unavailable(op, err)
	}
	defer rows.Close()
	var out []Child
	for rows.Next() {
		var c Child
		var v string
		if err := rows.Scan(&c.Key, &v); err != nil {
			return nil, unavailable(op, err)
		}
		c.Value = json.RawMessage(v)
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, unavailable(op, err)
	}
	return out, nil
}

// Set implements Store.
func (s *SQLite) Set(ctx context.Context, path string, value any) error {
	parent, child, err := split(path)
	if err != nil {
		return err
	}
	raw, err := encode(value)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO kv (parent, child, value) VALUES (?, ?, ?)
		ON CONFLICT (parent, child) DO UPDATE SET value = excluded.value
	`, parent, child, string(raw))
	if err != nil {
		return unavailable("set "+path, err)
	}
	return s.feed.Publish(ctx, Change{Path: path})
}

// Delete implements Store.
func (s *SQLite) Delete(ctx context.Context, path string) error {
	parent, child, err := split(path)
	if err != nil {
		return err
	}
	if _, err := s.db.ExecContext(ctx, `DELETE FROM kv WHERE parent = ? AND child = ?`, parent, child); err != nil {
		return unavailable("delete "+path, err)
	}
	return s.feed.Publish(ctx, Change{Path: path})
}

// Subscribe implements Store.
func (s *SQLite) Subscribe(ctx context.Context, path string, fn func(Change)) (Subscription, error) {
	return s.feed.Subscribe(ctx, path, fn)
}
