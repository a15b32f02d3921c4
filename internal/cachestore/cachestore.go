// Package cachestore keeps a local index of export cache keys so a client
// can offer its last-seen key on the next run and receive a 304 instead of a
// re-download.
package cachestore

import (
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// Entry records the last observed export cache state for one query shape.
type Entry struct {
	Model       string
	Fingerprint string
	CacheKey    string
	RowCount    int64
	FilePath    string
	UpdatedAt   time.Time
}

// Store wraps a SQLite connection.
type Store struct {
	conn *sql.DB
}

// New opens the SQLite database at path, enables WAL mode, and runs
// migrations.
func New(path string) (*Store, error) {
	conn, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open cache store: %w", err)
	}

	if _, err := conn.Exec("PRAGMA journal_mode=WAL"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("enable WAL: %w", err)
	}

	if err := migrate(conn); err != nil {
		conn.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	return &Store{conn: conn}, nil
}

func migrate(conn *sql.DB) error {
	_, err := conn.Exec(`
		CREATE TABLE IF NOT EXISTS export_cache (
			model       TEXT NOT NULL,
			fingerprint TEXT NOT NULL,
			cache_key   TEXT NOT NULL,
			row_count   INTEGER NOT NULL DEFAULT 0,
			file_path   TEXT NOT NULL DEFAULT '',
			updated_at  DATETIME NOT NULL,
			PRIMARY KEY (model, fingerprint)
		);
		CREATE INDEX IF NOT EXISTS idx_export_cache_model ON export_cache(model);
	`)
	return err
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.conn.Close()
}

// Ping verifies the database connection is alive.
func (s *Store) Ping() error {
	return s.conn.Ping()
}

// Get returns the entry for (model, fingerprint), or sql.ErrNoRows if the
// query shape has never been exported.
func (s *Store) Get(model, fingerprint string) (*Entry, error) {
	row := s.conn.QueryRow(`
		SELECT model, fingerprint, cache_key, row_count, file_path, updated_at
		FROM export_cache WHERE model = ? AND fingerprint = ?`, model, fingerprint)

	var e Entry
	var updatedAt string
	if err := row.Scan(&e.Model, &e.Fingerprint, &e.CacheKey, &e.RowCount, &e.FilePath, &updatedAt); err != nil {
		return nil, err
	}
	var err error
	e.UpdatedAt, err = time.Parse(time.RFC3339, updatedAt)
	if err != nil {
		return nil, fmt.Errorf("parse updated_at %q: %w", updatedAt, err)
	}
	return &e, nil
}

// Put inserts or replaces the entry for (e.Model, e.Fingerprint).
func (s *Store) Put(e *Entry) error {
	_, err := s.conn.Exec(`
		INSERT OR REPLACE INTO export_cache (model, fingerprint, cache_key, row_count, file_path, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		e.Model, e.Fingerprint, e.CacheKey, e.RowCount, e.FilePath,
		e.UpdatedAt.UTC().Format(time.RFC3339),
	)
	return err
}

// Delete removes the entry for (model, fingerprint). Returns sql.ErrNoRows
// if no such entry exists.
func (s *Store) Delete(model, fingerprint string) error {
	res, err := s.conn.Exec(`DELETE FROM export_cache WHERE model = ? AND fingerprint = ?`, model, fingerprint)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// CountByModel returns the number of cached query shapes per model.
func (s *Store) CountByModel() (map[string]int, error) {
	rows, err := s.conn.Query(`SELECT model, COUNT(*) FROM export_cache GROUP BY model`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var model string
		var n int
		if err := rows.Scan(&model, &n); err != nil {
			return nil, err
		}
		counts[model] = n
	}
	return counts, rows.Err()
}

// Fingerprint derives a stable identifier for one export query shape from
// its filters, field list, and format. Map keys serialize in sorted order,
// so equal queries always fingerprint equally.
func Fingerprint(filters map[string]any, fields []string, format string) string {
	shape := struct {
		Filters map[string]any `json:"filters"`
		Fields  []string       `json:"fields"`
		Format  string         `json:"format"`
	}{filters, fields, format}

	raw, err := json.Marshal(shape)
	if err != nil {
		// Only unmarshalable values (channels, funcs) can land here.
		raw = []byte(fmt.Sprintf("%v", shape))
	}
	sum := sha256.Sum256(raw)
	return hex.EncodeToString(sum[:])
}
