// Package store persists uploaded documents and their embeddings.
//
// A [Store] is a table of {id, filename, content, embedding} rows with an
// optional server-side similarity function ([Store.MatchDocuments]).
// Backends are Supabase (PostgREST), Postgres with pgvector, Qdrant and a
// local SQLite file; all satisfy the same interface so the retrieval layer
// never depends on a specific datastore.
package store

import (
	"context"
	"errors"
	"fmt"
)

// ErrRPCUnsupported is returned by MatchDocuments when the backend has no
// server-side ranking function (or it has not been installed).
var ErrRPCUnsupported = errors.New("store: server-side match function not available")

// Document is a stored row as read back from the datastore.
type Document struct {
	// ID is the datastore-assigned identifier. Ascending IDs follow
	// insertion order.
	ID int64

	// Filename is the name of the uploaded file. Not unique.
	Filename string

	// Content is the full extracted text.
	Content string

	// Embedding is the raw stored vector in whatever shape the backend
	// returns it ([]float32, bracketed string, JSON). Nil when the row has
	// no embedding. Use vector.Parse or vector.Decode to read it.
	Embedding any
}

// NewDocument is a row to insert.
type NewDocument struct {
	Filename  string
	Content   string
	Embedding []float32
}

// Match is a row ranked by the server-side similarity function.
type Match struct {
	ID         int64   `json:"id"`
	Filename   string  `json:"filename"`
	Content    string  `json:"content"`
	Similarity float64 `json:"similarity"`
}

// Store is the document table plus its optional ranking function.
// Implementations must be safe for concurrent use.
type Store interface {
	// Insert adds a row and returns its assigned ID.
	Insert(ctx context.Context, doc NewDocument) (int64, error)

	// List returns the newest limit rows in ascending ID order. limit <= 0
	// returns every row.
	List(ctx context.Context, limit int) ([]Document, error)

	// IDs returns the IDs of every row.
	IDs(ctx context.Context) ([]int64, error)

	// Delete removes the rows with the given IDs.
	Delete(ctx context.Context, ids []int64) error

	// MatchDocuments ranks rows against query on the server and returns at
	// most k matches, most similar first. Returns an error wrapping
	// [ErrRPCUnsupported] when the backend cannot rank server-side.
	MatchDocuments(ctx context.Context, query []float32, k int) ([]Match, error)

	// Ping checks that the datastore is reachable.
	Ping(ctx context.Context) error

	// Close releases any resources held by the store.
	Close() error
}

// Deleter is the subset of [Store] needed by [Clear].
type Deleter interface {
	IDs(ctx context.Context) ([]int64, error)
	Delete(ctx context.Context, ids []int64) error
}

// Clear deletes every row in s and returns how many were removed. An empty
// store returns 0 without issuing a delete.
func Clear(ctx context.Context, s Deleter) (int, error) {
	ids, err := s.IDs(ctx)
	if err != nil {
		return 0, fmt.Errorf("store: clear: list ids: %w", err)
	}
	if len(ids) == 0 {
		return 0, nil
	}
	if err := s.Delete(ctx, ids); err != nil {
		return 0, fmt.Errorf("store: clear: delete: %w", err)
	}
	return len(ids), nil
}
