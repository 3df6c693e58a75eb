// ABOUTME: SQLite-backed document store with one table of JSON documents per (collection, id).
// ABOUTME: Stamps update times in unix milliseconds so the retention sweep can range-query them.
package docstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// SqliteStore is a Store backed by a single SQLite database. Document bodies
// are stored as JSON, so values round-trip with JSON number semantics
// (numbers come back as float64).
type SqliteStore struct {
	db *sql.DB
}

// OpenSqlite opens or creates the document database at path and ensures the
// schema exists.
func OpenSqlite(path string) (*SqliteStore, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}

	schema := `
		CREATE TABLE IF NOT EXISTS documents (
			collection TEXT NOT NULL,
			id TEXT NOT NULL,
			body TEXT NOT NULL,
			updated_at INTEGER NOT NULL,
			PRIMARY KEY (collection, id)
		);

		CREATE INDEX IF NOT EXISTS idx_documents_updated
			ON documents(collection, updated_at);
	`
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}

	return &SqliteStore{db: db}, nil
}

// Close closes the underlying database.
func (s *SqliteStore) Close() error {
	return s.db.Close()
}

func (s *SqliteStore) QueryByID(ctx context.Context, collection, id string) (Doc, bool, error) {
	var body string
	err := s.db.QueryRowContext(ctx,
		"SELECT body FROM documents WHERE collection = ? AND id = ?",
		collection, id,
	).Scan(&body)
	if err == sql.ErrNoRows {
		return Doc{}, false, nil
	}
	if err != nil {
		return Doc{}, false, fmt.Errorf("query %s/%s: %w", collection, id, err)
	}

	data, err := decodeBody(body)
	if err != nil {
		return Doc{}, false, fmt.Errorf("decode %s/%s: %w", collection, id, err)
	}
	return Doc{ID: id, Data: data}, true, nil
}

func (s *SqliteStore) QueryByIDs(ctx context.Context, collection string, ids []string) ([]Doc, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	placeholders := strings.Repeat("?,", len(ids))
	placeholders = placeholders[:len(placeholders)-1]
	args := make([]any, 0, len(ids)+1)
	args = append(args, collection)
	for _, id := range ids {
		args = append(args, id)
	}

	rows, err := s.db.QueryContext(ctx,
		"SELECT id, body FROM documents WHERE collection = ? AND id IN ("+placeholders+")",
		args...,
	)
	if err != nil {
		return nil, fmt.Errorf("query %s by ids: %w", collection, err)
	}
	defer func() { _ = rows.Close() }()
	return scanDocs(rows, collection)
}

func (s *SqliteStore) QueryAll(ctx context.Context, collection string) ([]Doc, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT id, body FROM documents WHERE collection = ?", collection)
	if err != nil {
		return nil, fmt.Errorf("query all %s: %w", collection, err)
	}
	defer func() { _ = rows.Close() }()
	return scanDocs(rows, collection)
}

func (s *SqliteStore) QueryUpdatedBefore(ctx context.Context, collection string, cutoff time.Time) ([]Doc, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT id, body FROM documents WHERE collection = ? AND updated_at < ?",
		collection, cutoff.UnixMilli(),
	)
	if err != nil {
		return nil, fmt.Errorf("query %s before %s: %w", collection, cutoff.Format(time.RFC3339), err)
	}
	defer func() { _ = rows.Close() }()
	return scanDocs(rows, collection)
}

func (s *SqliteStore) Put(ctx context.Context, collection, id string, data map[string]any) error {
	body, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("encode %s/%s: %w", collection, id, err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO documents (collection, id, body, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(collection, id) DO UPDATE SET
			body = excluded.body,
			updated_at = excluded.updated_at
	`, collection, id, string(body), time.Now().UnixMilli())
	if err != nil {
		return fmt.Errorf("put %s/%s: %w", collection, id, err)
	}
	return nil
}

func (s *SqliteStore) Delete(ctx context.Context, collection, id string) error {
	if _, err := s.db.ExecContext(ctx,
		"DELETE FROM documents WHERE collection = ? AND id = ?", collection, id); err != nil {
		return fmt.Errorf("delete %s/%s: %w", collection, id, err)
	}
	return nil
}

func scanDocs(rows *sql.Rows, collection string) ([]Doc, error) {
	var docs []Doc
	for rows.Next() {
		var id, body string
		if err := rows.Scan(&id, &body); err != nil {
			return nil, fmt.Errorf("scan %s row: %w", collection, err)
		}
		data, err := decodeBody(body)
		if err != nil {
			return nil, fmt.Errorf("decode %s/%s: %w", collection, id, err)
		}
		docs = append(docs, Doc{ID: id, Data: data})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate %s rows: %w", collection, err)
	}
	return docs, nil
}

func decodeBody(body string) (map[string]any, error) {
	var data map[string]any
	if err := json.Unmarshal([]byte(body), &data); err != nil {
		return nil, err
	}
	return data, nil
}
