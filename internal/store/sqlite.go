package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/54b3r/docrag-go/internal/vector"

	_ "modernc.org/sqlite" // register "sqlite" driver
)

// deleteBatch bounds the number of bound parameters in a single DELETE.
const deleteBatch = 500

// SQLiteStore is a Store backed by a local SQLite database. Embeddings are
// stored in their bracketed text form. SQLite has no vector type, so
// MatchDocuments always reports ErrRPCUnsupported and ranking happens
// client-side.
type SQLiteStore struct {
	// db is the underlying database connection pool.
	db *sql.DB
}

// DefaultSQLitePath returns ~/.docrag/documents.db, creating the directory
// if needed.
func DefaultSQLitePath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("store: could not determine home directory: %w", err)
	}
	dir := filepath.Join(home, ".docrag")
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return "", fmt.Errorf("store: could not create %s: %w", dir, err)
	}
	return filepath.Join(dir, "documents.db"), nil
}

// OpenSQLite opens (or creates) a SQLiteStore at path and runs the schema
// migration. Use ":memory:" for an in-memory database in tests.
func OpenSQLite(path string) (*SQLiteStore, error) {
	dsn := path + "?_journal_mode=WAL&_busy_timeout=5000"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("store: open %s: %w", path, err)
	}
	// Single connection: avoids SQLITE_BUSY and keeps ":memory:" to one database.
	db.SetMaxOpenConns(1)

	s := &SQLiteStore{db: db}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// migrate creates the schema if it does not already exist.
func (s *SQLiteStore) migrate() error {
	const ddl = `
CREATE TABLE IF NOT EXISTS documents (
    id         INTEGER PRIMARY KEY AUTOINCREMENT,
    filename   TEXT    NOT NULL,
    content    TEXT    NOT NULL,
    embedding  TEXT
);
`
	if _, err := s.db.Exec(ddl); err != nil {
		return fmt.Errorf("store: migrate: %w", err)
	}
	return nil
}

// Insert adds a row and returns its ID. An empty embedding is stored as NULL.
func (s *SQLiteStore) Insert(ctx context.Context, doc NewDocument) (int64, error) {
	const q = `INSERT INTO documents (filename, content, embedding) VALUES (?, ?, ?)`
	var emb any
	if len(doc.Embedding) > 0 {
		emb = vector.Encode(doc.Embedding)
	}
	res, err := s.db.ExecContext(ctx, q, doc.Filename, doc.Content, emb)
	if err != nil {
		return 0, fmt.Errorf("store: insert: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("store: insert id: %w", err)
	}
	return id, nil
}

// List returns the newest limit rows in ascending ID order.
func (s *SQLiteStore) List(ctx context.Context, limit int) ([]Document, error) {
	const q = `SELECT id, filename, content, embedding FROM (
		SELECT id, filename, content, embedding FROM documents ORDER BY id DESC LIMIT ?
	) ORDER BY id ASC`
	if limit <= 0 {
		limit = -1 // SQLite: negative LIMIT means no limit
	}

	rows, err := s.db.QueryContext(ctx, q, limit)
	if err != nil {
		return nil, fmt.Errorf("store: list: %w", err)
	}
	defer rows.Close()

	var docs []Document
	for rows.Next() {
		var d Document
		var emb sql.NullString
		if err := rows.Scan(&d.ID, &d.Filename, &d.Content, &emb); err != nil {
			return nil, fmt.Errorf("store: list scan: %w", err)
		}
		if emb.Valid {
			d.Embedding = emb.String
		}
		docs = append(docs, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: list rows: %w", err)
	}
	return docs, nil
}

// IDs returns the ID of every row.
func (s *SQLiteStore) IDs(ctx context.Context) ([]int64, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id FROM documents ORDER BY id ASC`)
	if err != nil {
		return nil, fmt.Errorf("store: ids: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("store: ids scan: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: ids rows: %w", err)
	}
	return ids, nil
}

// Delete removes the rows with the given IDs in a single transaction.
func (s *SQLiteStore) Delete(ctx context.Context, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("store: delete begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for start := 0; start < len(ids); start += deleteBatch {
		end := min(start+deleteBatch, len(ids))
		batch := ids[start:end]

		args := make([]any, len(batch))
		for i, id := range batch {
			args[i] = id
		}
		q := `DELETE FROM documents WHERE id IN (` + placeholders(len(batch)) + `)`
		if _, err := tx.ExecContext(ctx, q, args...); err != nil {
			return fmt.Errorf("store: delete: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("store: delete commit: %w", err)
	}
	return nil
}

// MatchDocuments is not supported by SQLite.
func (s *SQLiteStore) MatchDocuments(context.Context, []float32, int) ([]Match, error) {
	return nil, fmt.Errorf("store: sqlite: %w", ErrRPCUnsupported)
}

// Ping checks the database connection.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("store: ping: %w", err)
	}
	return nil
}

// Close releases the database connection pool.
func (s *SQLiteStore) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("store: close: %w", err)
	}
	return nil
}

// placeholders returns "?,?,?" with n markers.
func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}
