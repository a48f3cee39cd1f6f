package embedder

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestGeminiTaskType(t *testing.T) {
	t.Parallel()
	if got := geminiTaskType(IntentDocument); got != "RETRIEVAL_DOCUMENT" {
		t.Errorf("document: got %q", got)
	}
	if got := geminiTaskType(IntentQuery); got != "RETRIEVAL_QUERY" {
		t.Errorf("query: got %q", got)
	}
}

func TestOpenAIEmbedder(t *testing.T) {
	t.Parallel()

	var gotBody map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/embeddings" {
			http.NotFound(w, r)
			return
		}
		if r.Header.Get("Authorization") != "Bearer sk-test" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"object":"list","data":[{"object":"embedding","index":0,"embedding":[0.1,0.2,0.3]}],"model":"m","usage":{"prompt_tokens":2,"total_tokens":2}}`))
	}))
	t.Cleanup(srv.Close)

	e := NewOpenAIEmbedder(&OpenAIConfig{BaseURL: srv.URL + "/v1", APIKey: "sk-test", Model: "text-embedding-3-small", Dimensions: 3})
	vec, err := e.Embed(context.Background(), "hello", IntentQuery)
	if err != nil {
		t.Fatalf("Embed: %v", err)
	}
	if len(vec) != 3 || vec[1] != 0.2 {
		t.Errorf("vector: got %v", vec)
	}
	if gotBody["model"] != "text-embedding-3-small" {
		t.Errorf("model: got %v", gotBody["model"])
	}
	if gotBody["dimensions"] != float64(3) {
		t.Errorf("dimensions: got %v", gotBody["dimensions"])
	}
}

func TestOllamaEmbedder_NomicPrefixes(t *testing.T) {
	t.Parallel()

	var mu sync.Mutex
	var inputs []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req ollamaEmbedRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		mu.Lock()
		inputs = append(inputs, req.Input...)
		mu.Unlock()
		_ = json.NewEncoder(w).Encode(ollamaEmbedResponse{Embeddings: [][]float32{{1, 2}}})
	}))
	t.Cleanup(srv.Close)

	e := NewOllamaEmbedder(&OllamaConfig{Host: srv.URL + "/", Model: "nomic-embed-text"})
	ctx := context.Background()
	if _, err := e.Embed(ctx, "doc text", IntentDocument); err != nil {
		t.Fatalf("Embed document: %v", err)
	}
	if _, err := e.Embed(ctx, "question", IntentQuery); err != nil {
		t.Fatalf("Embed query: %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	want := []string{"search_document: doc text", "search_query: question"}
	if len(inputs) != 2 || inputs[0] != want[0] || inputs[1] != want[1] {
		t.Errorf("inputs: got %q, want %q", inputs, want)
	}
}

func TestOllamaEmbedder_Errors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		status  int
		body    string
		wantErr string
	}{
		{"server error message", http.StatusNotFound, `{"error":"model not found"}`, "model not found"},
		{"empty embeddings", http.StatusOK, `{"embeddings":[]}`, "empty embedding"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			t.Cleanup(srv.Close)

			e := NewOllamaEmbedder(&OllamaConfig{Host: srv.URL, Model: "mxbai-embed-large"})
			_, err := e.Embed(context.Background(), "x", IntentDocument)
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("expected error containing %q, got %v", tt.wantErr, err)
			}
		})
	}
}

// fakeEmbedder counts calls and returns a fixed vector.
type fakeEmbedder struct {
	mu    sync.Mutex
	calls int
	vec   []float32
	err   error
	delay time.Duration
}

func (f *fakeEmbedder) Embed(ctx context.Context, _ string, _ Intent) ([]float32, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return f.vec, f.err
}

// memKV is an in-memory kv.
type memKV struct {
	mu     sync.Mutex
	data   map[string][]byte
	getErr error
}

func (m *memKV) Get(_ context.Context, key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.getErr != nil {
		return nil, m.getErr
	}
	v, ok := m.data[key]
	if !ok {
		return nil, errCacheMiss
	}
	return v, nil
}

func (m *memKV) Set(_ context.Context, key string, value []byte, _ time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.data == nil {
		m.data = map[string][]byte{}
	}
	m.data[key] = value
	return nil
}

func TestCachedEmbedder_HitMiss(t *testing.T) {
	t.Parallel()

	inner := &fakeEmbedder{vec: []float32{0.5, -0.5}}
	lookups := prometheus.NewCounterVec(prometheus.CounterOpts{Name: "lookups"}, []string{"result"})
	c := NewCachedEmbedder(inner, &memKV{}, "gemini:m:2", 0, lookups)
	ctx := context.Background()

	for range 3 {
		vec, err := c.Embed(ctx, "same text", IntentDocument)
		if err != nil {
			t.Fatalf("Embed: %v", err)
		}
		if len(vec) != 2 || vec[0] != 0.5 {
			t.Errorf("vector: got %v", vec)
		}
	}
	if inner.calls != 1 {
		t.Errorf("inner calls: want 1, got %d", inner.calls)
	}
	if got := testutil.ToFloat64(lookups.WithLabelValues("hit")); got != 2 {
		t.Errorf("hits: want 2, got %v", got)
	}
	if got := testutil.ToFloat64(lookups.WithLabelValues("miss")); got != 1 {
		t.Errorf("misses: want 1, got %v", got)
	}

	// Same text with the other intent is a distinct entry.
	if _, err := c.Embed(ctx, "same text", IntentQuery); err != nil {
		t.Fatalf("Embed query: %v", err)
	}
	if inner.calls != 2 {
		t.Errorf("inner calls after query intent: want 2, got %d", inner.calls)
	}
}

func TestCachedEmbedder_StoreErrorFallsThrough(t *testing.T) {
	t.Parallel()

	inner := &fakeEmbedder{vec: []float32{1}}
	c := NewCachedEmbedder(inner, &memKV{getErr: errors.New("connection refused")}, "ns", 0, nil)

	vec, err := c.Embed(context.Background(), "x", IntentQuery)
	if err != nil {
		t.Fatalf("Embed: %v", err)
	}
	if len(vec) != 1 || inner.calls != 1 {
		t.Errorf("expected inner call on cache error, got vec=%v calls=%d", vec, inner.calls)
	}
}

func TestCachedEmbedder_InnerErrorNotCached(t *testing.T) {
	t.Parallel()

	store := &memKV{}
	c := NewCachedEmbedder(&fakeEmbedder{err: errors.New("quota")}, store, "ns", 0, nil)
	if _, err := c.Embed(context.Background(), "x", IntentQuery); err == nil {
		t.Fatal("expected error")
	}
	if len(store.data) != 0 {
		t.Errorf("expected nothing cached, got %d entries", len(store.data))
	}
}

func TestWithTimeout(t *testing.T) {
	t.Parallel()

	inner := &fakeEmbedder{vec: []float32{1}, delay: time.Second}
	e := WithTimeout(inner, 10*time.Millisecond)
	_, err := e.Embed(context.Background(), "x", IntentQuery)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("expected deadline exceeded, got %v", err)
	}

	if WithTimeout(inner, 0) != Embedder(inner) {
		t.Error("zero timeout should return inner unchanged")
	}
}

func TestLooksLikeChatModel(t *testing.T) {
	t.Parallel()

	tests := []struct {
		model string
		want  bool
	}{
		{"text-embedding-004", false},
		{"text-embedding-3-small", false},
		{"nomic-embed-text", false},
		{"gemini-2.5-flash", true},
		{"gpt-4o", true},
		{"llama3.2", true},
	}
	for _, tt := range tests {
		if got := looksLikeChatModel(tt.model); got != tt.want {
			t.Errorf("looksLikeChatModel(%q) = %v, want %v", tt.model, got, tt.want)
		}
	}
}
