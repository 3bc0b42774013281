// Package fallback is the lower-tier local store. Writes land here only when
// the remote store cannot be reached, and are replayed later.
package fallback

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3" // SQLite driver
)

// Record is one locally persisted object.
type Record struct {
	Collection string
	UserID     string
	ID         string
	Payload    json.RawMessage
	UpdatedAt  time.Time
}

const schema = `
CREATE TABLE IF NOT EXISTS local_records (
	collection TEXT NOT NULL,
	user_id    TEXT NOT NULL,
	record_id  TEXT NOT NULL,
	payload    BLOB NOT NULL,
	updated_at INTEGER NOT NULL,
	PRIMARY KEY (collection, user_id, record_id)
);
CREATE INDEX IF NOT EXISTS idx_local_records_user ON local_records (user_id, collection);
`

// Store wraps the SQLite database.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

// Open opens (creating if needed) the SQLite file at path. ":memory:" is
// accepted for tests.
func Open(path string) (*Store, error) {
	dsn := path
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("create fallback dir: %w", err)
		}
		dsn = "file:" + path + "?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000"
	}

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open fallback store %q: %w", path, err)
	}
	if path == ":memory:" {
		// Each connection to :memory: is a separate database.
		db.SetMaxOpenConns(1)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping fallback store %q: %w", path, err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate fallback store: %w", err)
	}
	return &Store{db: db, now: time.Now}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Save upserts value under (collection, userID, id).
func (s *Store) Save(ctx context.Context, collection, userID, id string, value interface{}) error {
	payload, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encode %s/%s: %w", collection, id, err)
	}
	_, err = s.db.ExecContext(ctx, `
INSERT INTO local_records (collection, user_id, record_id, payload, updated_at)
VALUES (?, ?, ?, ?, ?)
ON CONFLICT (collection, user_id, record_id) DO UPDATE SET payload = excluded.payload, updated_at = excluded.updated_at`,
		collection, userID, id, payload, s.now().UnixMilli())
	if err != nil {
		return fmt.Errorf("save %s/%s: %w", collection, id, err)
	}
	return nil
}

// Delete removes one record. Deleting a missing record is not an error.
func (s *Store) Delete(ctx context.Context, collection, userID, id string) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM local_records WHERE collection = ? AND user_id = ? AND record_id = ?`,
		collection, userID, id)
	if err != nil {
		return fmt.Errorf("delete %s/%s: %w", collection, id, err)
	}
	return nil
}

// List returns every record of collection for userID, oldest update first.
func (s *Store) List(ctx context.Context, collection, userID string) ([]Record, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT record_id, payload, updated_at FROM local_records
WHERE collection = ? AND user_id = ?
ORDER BY updated_at ASC, record_id ASC`, collection, userID)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", collection, err)
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		var (
			rec     Record
			payload []byte
			updated int64
		)
		if err := rows.Scan(&rec.ID, &payload, &updated); err != nil {
			return nil, fmt.Errorf("scan %s: %w", collection, err)
		}
		rec.Collection = collection
		rec.UserID = userID
		rec.Payload = payload
		rec.UpdatedAt = time.UnixMilli(updated)
		out = append(out, rec)
	}
	return out, rows.Err()
}

// ListAs decodes every record of collection for userID into T.
func ListAs[T any](ctx context.Context, s *Store, collection, userID string) ([]T, error) {
	records, err := s.List(ctx, collection, userID)
	if err != nil {
		return nil, err
	}
	out := make([]T, 0, len(records))
	for _, rec := range records {
		var v T
		if err := json.Unmarshal(rec.Payload, &v); err != nil {
			return nil, fmt.Errorf("decode %s/%s: %w", collection, rec.ID, err)
		}
		out = append(out, v)
	}
	return out, nil
}

// Count returns the number of pending local records for userID.
func (s *Store) Count(ctx context.Context, userID string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM local_records WHERE user_id = ?`, userID).Scan(&n)
	return n, err
}

// Users returns every user with pending local records.
func (s *Store) Users(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT DISTINCT user_id FROM local_records ORDER BY user_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}
