package store

import (
	"database/sql"
	"errors"
	"fmt"
	"time"
)

const schema = `
CREATE TABLE IF NOT EXISTS blade_artifacts (
    artifact_key TEXT PRIMARY KEY,
    data         BLOB NOT NULL,
    updated_at   INTEGER NOT NULL
);`

// SQL stores artifacts in a sqlite table. The driver is chosen at build time:
// modernc.org/sqlite by default, github.com/mattn/go-sqlite3 with the
// cgo_sqlite build tag.
type SQL struct {
	db *sql.DB
}

// OpenSQL opens (or creates) a sqlite database and prepares the schema.
func OpenSQL(dataSource string) (*SQL, error) {
	db, err := openDB(dataSource)
	if err != nil {
		return nil, fmt.Errorf("store: open %s: %w", dataSource, err)
	}
	// one writer at a time; also keeps ":memory:" databases on a single connection
	db.SetMaxOpenConns(1)
	s, err := NewSQL(db)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// NewSQL wraps an existing database handle.
func NewSQL(db *sql.DB) (*SQL, error) {
	if _, err := db.Exec(schema); err != nil {
		return nil, fmt.Errorf("store: create schema: %w", err)
	}
	return &SQL{db: db}, nil
}

func (s *SQL) Close() error {
	return s.db.Close()
}

func (s *SQL) Get(key string) ([]byte, error) {
	var data []byte
	err := s.db.QueryRow(`SELECT data FROM blade_artifacts WHERE artifact_key = ?`, key).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("store: get %s: %w", key, err)
	}
	return data, nil
}

// Put upserts inside a single statement, so readers see either the old or the new row.
func (s *SQL) Put(key string, data []byte) error {
	_, err := s.db.Exec(
		`INSERT INTO blade_artifacts (artifact_key, data, updated_at) VALUES (?, ?, ?)
         ON CONFLICT(artifact_key) DO UPDATE SET data = excluded.data, updated_at = excluded.updated_at`,
		key, data, time.Now().UnixNano())
	if err != nil {
		return fmt.Errorf("store: put %s: %w", key, err)
	}
	return nil
}

func (s *SQL) Delete(key string) error {
	if _, err := s.db.Exec(`DELETE FROM blade_artifacts WHERE artifact_key = ?`, key); err != nil {
		return fmt.Errorf("store: delete %s: %w", key, err)
	}
	return nil
}

func (s *SQL) Keys() ([]string, error) {
	rows, err := s.db.Query(`SELECT artifact_key FROM blade_artifacts ORDER BY artifact_key`)
	if err != nil {
		return nil, fmt.Errorf("store: list keys: %w", err)
	}
	defer rows.Close()
	var keys []string
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, err
		}
		keys = append(keys, k)
	}
	return keys, rows.Err()
}

func (s *SQL) Clear() (int, error) {
	res, err := s.db.Exec(`DELETE FROM blade_artifacts`)
	if err != nil {
		return 0, fmt.Errorf("store: clear: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	return int(n), nil
}
