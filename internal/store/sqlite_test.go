package store

import (
	"context"
	"errors"
	"testing"

	"github.com/54b3r/docrag-go/internal/vector"
)

// openTestStore opens an in-memory SQLiteStore for use in tests.
func openTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := OpenSQLite(":memory:")
	if err != nil {
		t.Fatalf("open in-memory store: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func Test_SQLite_InsertAndList(t *testing.T) {
	t.Parallel()
	s := openTestStore(t)
	ctx := context.Background()

	id1, err := s.Insert(ctx, NewDocument{Filename: "a.pdf", Content: "alpha", Embedding: []float32{1, 0}})
	if err != nil {
		t.Fatalf("insert a: %v", err)
	}
	id2, err := s.Insert(ctx, NewDocument{Filename: "b.pdf", Content: "beta"})
	if err != nil {
		t.Fatalf("insert b: %v", err)
	}
	if id2 <= id1 {
		t.Errorf("ids not increasing: %d then %d", id1, id2)
	}

	docs, err := s.List(ctx, 0)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(docs) != 2 {
		t.Fatalf("want 2 docs, got %d", len(docs))
	}
	if docs[0].Filename != "a.pdf" || docs[0].Content != "alpha" {
		t.Errorf("doc[0]: got %+v", docs[0])
	}
	if got := vector.Decode(docs[0].Embedding); len(got) != 2 || got[0] != 1 || got[1] != 0 {
		t.Errorf("doc[0] embedding: got %v", got)
	}
	if docs[1].Embedding != nil {
		t.Errorf("doc[1] embedding: want nil for missing embedding, got %#v", docs[1].Embedding)
	}
}

func Test_SQLite_ListLimit(t *testing.T) {
	t.Parallel()
	s := openTestStore(t)
	ctx := context.Background()

	for range 5 {
		if _, err := s.Insert(ctx, NewDocument{Filename: "f.pdf", Content: "x"}); err != nil {
			t.Fatalf("insert: %v", err)
		}
	}
	docs, err := s.List(ctx, 3)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(docs) != 3 {
		t.Fatalf("want 3 docs, got %d", len(docs))
	}
	for i, want := range []int64{3, 4, 5} {
		if docs[i].ID != want {
			t.Errorf("doc[%d]: want newest rows in ascending order, got id %d", i, docs[i].ID)
		}
	}
}

func Test_SQLite_MatchDocumentsUnsupported(t *testing.T) {
	t.Parallel()
	s := openTestStore(t)

	_, err := s.MatchDocuments(context.Background(), []float32{1}, 5)
	if !errors.Is(err, ErrRPCUnsupported) {
		t.Errorf("expected ErrRPCUnsupported, got %v", err)
	}
}

func Test_Clear(t *testing.T) {
	t.Parallel()
	s := openTestStore(t)
	ctx := context.Background()

	n, err := Clear(ctx, s)
	if err != nil {
		t.Fatalf("clear empty: %v", err)
	}
	if n != 0 {
		t.Errorf("clear empty: want 0, got %d", n)
	}

	for range 3 {
		if _, err := s.Insert(ctx, NewDocument{Filename: "f.pdf", Content: "x", Embedding: []float32{1}}); err != nil {
			t.Fatalf("insert: %v", err)
		}
	}

	n, err = Clear(ctx, s)
	if err != nil {
		t.Fatalf("clear: %v", err)
	}
	if n != 3 {
		t.Errorf("clear: want 3 removed, got %d", n)
	}

	docs, err := s.List(ctx, 0)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(docs) != 0 {
		t.Errorf("want empty store after clear, got %d docs", len(docs))
	}
}

func Test_SQLite_DeleteManyBatches(t *testing.T) {
	t.Parallel()
	s := openTestStore(t)
	ctx := context.Background()

	const n = deleteBatch + 7
	for range n {
		if _, err := s.Insert(ctx, NewDocument{Filename: "f.pdf", Content: "x"}); err != nil {
			t.Fatalf("insert: %v", err)
		}
	}
	removed, err := Clear(ctx, s)
	if err != nil {
		t.Fatalf("clear: %v", err)
	}
	if removed != n {
		t.Errorf("want %d removed, got %d", n, removed)
	}
	ids, err := s.IDs(ctx)
	if err != nil {
		t.Fatalf("ids: %v", err)
	}
	if len(ids) != 0 {
		t.Errorf("want no ids left, got %d", len(ids))
	}
}
