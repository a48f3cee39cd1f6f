package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/supabase-community/postgrest-go"

	"github.com/54b3r/docrag-go/internal/vector"
)

const (
	// defaultSupabaseTable is the PostgREST table holding documents.
	defaultSupabaseTable = "documents"
	// defaultSupabaseRPC is the SQL function `docrag migrate` installs.
	defaultSupabaseRPC = "match_documents"
	// supabasePageSize stays at PostgREST's default max-rows so pages are
	// never silently truncated by the server.
	supabasePageSize = 1000
)

// SupabaseConfig holds the settings for constructing a SupabaseStore.
type SupabaseConfig struct {
	// URL is the project URL (e.g. "https://abc.supabase.co").
	URL string
	// ServiceKey is the service-role key sent as apikey and bearer token.
	ServiceKey string
	// Table is the documents table name (default: "documents").
	Table string
	// RPC is the ranking function name (default: "match_documents").
	RPC string
	// Schema is the Postgres schema exposed by PostgREST (default: "public").
	Schema string
	// Timeout bounds every call (default: 30s).
	Timeout time.Duration
}

// SupabaseStore implements Store against the Supabase PostgREST API.
// It is safe for concurrent use.
type SupabaseStore struct {
	// base is the PostgREST root ("<url>/rest/v1").
	base string
	// headers authenticate every request.
	headers map[string]string
	// schema is the exposed Postgres schema.
	schema string
	// table is the documents table name.
	table string
	// rpc is the ranking function name.
	rpc string
	// timeout bounds every call.
	timeout time.Duration
}

// NewSupabaseStore constructs a SupabaseStore from cfg.
func NewSupabaseStore(cfg *SupabaseConfig) (*SupabaseStore, error) {
	if cfg.URL == "" || cfg.ServiceKey == "" {
		return nil, fmt.Errorf("store: supabase requires URL and service key")
	}
	if cfg.Table == "" {
		cfg.Table = defaultSupabaseTable
	}
	if cfg.RPC == "" {
		cfg.RPC = defaultSupabaseRPC
	}
	if cfg.Schema == "" {
		cfg.Schema = "public"
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	return &SupabaseStore{
		base: strings.TrimRight(cfg.URL, "/") + "/rest/v1",
		headers: map[string]string{
			"apikey":        cfg.ServiceKey,
			"Authorization": "Bearer " + cfg.ServiceKey,
		},
		schema:  cfg.Schema,
		table:   cfg.Table,
		rpc:     cfg.RPC,
		timeout: cfg.Timeout,
	}, nil
}

// supabaseRow is a documents row as returned by PostgREST. The embedding
// arrives as a JSON string for vector columns and as an array for
// float[] columns, so it is kept raw.
type supabaseRow struct {
	ID        int64           `json:"id"`
	Filename  string          `json:"filename"`
	Content   string          `json:"content"`
	Embedding json.RawMessage `json:"embedding"`
}

// supabaseError is the PostgREST error body.
type supabaseError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Insert adds a row and returns its ID.
func (s *SupabaseStore) Insert(ctx context.Context, doc NewDocument) (int64, error) {
	body := map[string]any{
		"filename": doc.Filename,
		"content":  doc.Content,
	}
	if len(doc.Embedding) > 0 {
		body["embedding"] = vector.Encode(doc.Embedding)
	}

	var rows []supabaseRow
	err := s.call(ctx, func(c *postgrest.Client) error {
		_, err := c.From(s.table).Insert(body, false, "", "representation", "").ExecuteTo(&rows)
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("store: supabase insert: %w", err)
	}
	if len(rows) == 0 {
		return 0, fmt.Errorf("store: supabase insert: no row returned")
	}
	return rows[0].ID, nil
}

// List returns the newest limit rows (all rows when limit <= 0) in
// ascending ID order.
func (s *SupabaseStore) List(ctx context.Context, limit int) ([]Document, error) {
	var docs []Document
	err := s.page(ctx, "id,filename,content,embedding", limit, func(r supabaseRow) {
		d := Document{ID: r.ID, Filename: r.Filename, Content: r.Content}
		if len(r.Embedding) > 0 && string(r.Embedding) != "null" {
			d.Embedding = r.Embedding
		}
		docs = append(docs, d)
	})
	if err != nil {
		return nil, fmt.Errorf("store: supabase list: %w", err)
	}
	slices.Reverse(docs)
	return docs, nil
}

// IDs returns the ID of every row.
func (s *SupabaseStore) IDs(ctx context.Context) ([]int64, error) {
	var ids []int64
	if err := s.page(ctx, "id", 0, func(r supabaseRow) { ids = append(ids, r.ID) }); err != nil {
		return nil, fmt.Errorf("store: supabase ids: %w", err)
	}
	return ids, nil
}

// Delete removes rows with an `id=in.(...)` filter, batched to keep the
// request URL bounded.
func (s *SupabaseStore) Delete(ctx context.Context, ids []int64) error {
	for start := 0; start < len(ids); start += deleteBatch {
		end := min(start+deleteBatch, len(ids))
		parts := make([]string, 0, end-start)
		for _, id := range ids[start:end] {
			parts = append(parts, strconv.FormatInt(id, 10))
		}
		err := s.call(ctx, func(c *postgrest.Client) error {
			_, _, err := c.From(s.table).Delete("minimal", "").In("id", parts).Execute()
			return err
		})
		if err != nil {
			return fmt.Errorf("store: supabase delete: %w", err)
		}
	}
	return nil
}

// MatchDocuments calls the ranking function over RPC with the query in its
// text form. A missing function is reported as ErrRPCUnsupported.
func (s *SupabaseStore) MatchDocuments(ctx context.Context, query []float32, k int) ([]Match, error) {
	body := map[string]any{
		"query_embedding": vector.Encode(query),
		"match_count":     k,
	}

	var raw string
	err := s.call(ctx, func(c *postgrest.Client) error {
		raw = c.Rpc(s.rpc, "", body)
		if raw == "" && c.ClientError != nil {
			return c.ClientError
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("store: supabase rpc %s: %w", s.rpc, err)
	}

	// Rpc hands back the body whatever the status, so an error object has
	// to be told apart from a result array.
	var matches []Match
	if jerr := json.Unmarshal([]byte(raw), &matches); jerr == nil {
		return matches, nil
	}
	return nil, fmt.Errorf("store: supabase rpc %s: %w", s.rpc, rpcError(raw))
}

// Ping reads a single id to verify credentials and reachability.
func (s *SupabaseStore) Ping(ctx context.Context) error {
	err := s.call(ctx, func(c *postgrest.Client) error {
		_, _, err := c.From(s.table).Select("id", "", false).Limit(1, "").Execute()
		return err
	})
	if err != nil {
		return fmt.Errorf("store: supabase ping: %w", err)
	}
	return nil
}

// Close is a no-op; connections belong to the shared HTTP transport.
func (s *SupabaseStore) Close() error {
	return nil
}

// page walks the table newest first, calling fn per row, until limit rows
// were seen (limit <= 0: all rows) or a short page is returned. Pages are
// keyed on the last id seen so concurrent inserts never shift a page.
func (s *SupabaseStore) page(ctx context.Context, columns string, limit int, fn func(supabaseRow)) error {
	seen := 0
	var before int64
	for {
		size := supabasePageSize
		if limit > 0 {
			size = min(size, limit-seen)
		}
		var rows []supabaseRow
		err := s.call(ctx, func(c *postgrest.Client) error {
			q := c.From(s.table).Select(columns, "", false).
				Order("id", &postgrest.OrderOpts{Ascending: false}).
				Limit(size, "")
			if seen > 0 {
				q = q.Lt("id", strconv.FormatInt(before, 10))
			}
			_, err := q.ExecuteTo(&rows)
			return err
		})
		if err != nil {
			return err
		}
		for _, r := range rows {
			fn(r)
		}
		seen += len(rows)
		if len(rows) < size || (limit > 0 && seen >= limit) {
			return nil
		}
		before = rows[len(rows)-1].ID
	}
}

// call runs fn against a fresh client and returns as soon as ctx is done.
// The client has no context support, and an Rpc failure sticks to the
// client it happened on, so clients are never shared between calls.
func (s *SupabaseStore) call(ctx context.Context, fn func(*postgrest.Client) error) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	client := postgrest.NewClient(s.base, s.schema, s.headers)
	if client.ClientError != nil {
		return client.ClientError
	}

	errc := make(chan error, 1)
	go func() { errc <- fn(client) }()
	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// rpcError turns a PostgREST error body into an error. PGRST202 (function
// not found) and 42883 (undefined function) map to ErrRPCUnsupported.
func rpcError(raw string) error {
	var pe supabaseError
	_ = json.Unmarshal([]byte(raw), &pe)

	msg := pe.Message
	if msg == "" {
		msg = strings.TrimSpace(raw)
	}
	if len(msg) > 512 {
		msg = msg[:512]
	}
	err := fmt.Errorf("(%s) %s", pe.Code, msg)

	if pe.Code == "PGRST202" || pe.Code == "42883" {
		return errors.Join(ErrRPCUnsupported, err)
	}
	return err
}
