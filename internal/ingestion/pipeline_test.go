package ingestion

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/54b3r/docrag-go/internal/embedder"
	"github.com/54b3r/docrag-go/internal/store"
)

// fakeExtractor returns the spooled file's bytes as text, or err. It fails
// for any file whose content is "bad".
type fakeExtractor struct {
	err error

	mu    sync.Mutex
	paths []string
}

func (f *fakeExtractor) Extract(_ context.Context, path string) (string, error) {
	f.mu.Lock()
	f.paths = append(f.paths, path)
	f.mu.Unlock()
	b, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	if f.err != nil {
		return "", f.err
	}
	if string(b) == "bad" {
		return "", errors.New("corrupt pdf")
	}
	return string(b), nil
}

// fakeEmbedder sleeps for texts that start with "slow" and fails for "noembed".
type fakeEmbedder struct {
	mu      sync.Mutex
	intents []embedder.Intent
}

func (f *fakeEmbedder) Embed(_ context.Context, text string, intent embedder.Intent) ([]float32, error) {
	f.mu.Lock()
	f.intents = append(f.intents, intent)
	f.mu.Unlock()
	if strings.HasPrefix(text, "slow") {
		time.Sleep(30 * time.Millisecond)
	}
	if text == "noembed" {
		return nil, errors.New("quota exceeded")
	}
	return []float32{1, 2, 3}, nil
}

type fakeInserter struct {
	mu   sync.Mutex
	docs []store.NewDocument
}

func (f *fakeInserter) Insert(_ context.Context, doc store.NewDocument) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.docs = append(f.docs, doc)
	return int64(len(f.docs)), nil
}

func newTestPipeline(t *testing.T, cfg *Config) (*Pipeline, *fakeExtractor, *fakeInserter, string) {
	t.Helper()
	dir := t.TempDir()
	ext := &fakeExtractor{}
	ins := &fakeInserter{}
	if cfg == nil {
		cfg = &Config{}
	}
	cfg.TempDir = dir
	if cfg.Extractor == nil {
		cfg.Extractor = ext
	}
	p, err := NewPipeline(&fakeEmbedder{}, ins, cfg)
	if err != nil {
		t.Fatalf("NewPipeline: %v", err)
	}
	return p, ext, ins, dir
}

func assertDirEmpty(t *testing.T, dir string) {
	t.Helper()
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("ReadDir: %v", err)
	}
	if len(entries) != 0 {
		t.Errorf("temp dir has %d leftover files", len(entries))
	}
}

func upload(name, body string) Upload {
	return Upload{
		Filename: name,
		Open: func() (io.ReadCloser, error) {
			return io.NopCloser(strings.NewReader(body)), nil
		},
	}
}

func TestNewPipeline_NilDependencies(t *testing.T) {
	t.Parallel()
	if _, err := NewPipeline(nil, &fakeInserter{}, nil); err == nil {
		t.Error("expected error for nil embedder")
	}
	if _, err := NewPipeline(&fakeEmbedder{}, nil, nil); err == nil {
		t.Error("expected error for nil store")
	}
}

func TestIngestFile_Success(t *testing.T) {
	t.Parallel()
	p, ext, ins, dir := newTestPipeline(t, nil)

	res := p.IngestFile(context.Background(), strings.NewReader("hello world"), "a.pdf")
	if !res.OK() || res.Error != "" {
		t.Fatalf("result = %+v, want success", res)
	}
	if len(ins.docs) != 1 {
		t.Fatalf("inserted %d docs, want 1", len(ins.docs))
	}
	got := ins.docs[0]
	if got.Filename != "a.pdf" || got.Content != "hello world" || len(got.Embedding) != 3 {
		t.Errorf("inserted %+v", got)
	}
	if len(ext.paths) != 1 {
		t.Fatalf("extractor called %d times", len(ext.paths))
	}
	if _, err := os.Stat(ext.paths[0]); !os.IsNotExist(err) {
		t.Errorf("temp file %s still exists", ext.paths[0])
	}
	assertDirEmpty(t, dir)
}

func TestIngestFile_TempFileRemovedOnFailure(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		body string
		ext  Extractor
	}{
		{name: "extraction fails", body: "bad"},
		{name: "embedding fails", body: "noembed"},
		{name: "extractor error", body: "fine", ext: &fakeExtractor{err: errors.New("boom")}},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			p, _, ins, dir := newTestPipeline(t, &Config{Extractor: tc.ext})

			res := p.IngestFile(context.Background(), strings.NewReader(tc.body), "x.pdf")
			if res.OK() {
				t.Fatal("expected failure")
			}
			if res.Status != StatusError || res.Error == "" {
				t.Errorf("result = %+v", res)
			}
			if len(ins.docs) != 0 {
				t.Errorf("inserted %d docs on failure", len(ins.docs))
			}
			assertDirEmpty(t, dir)
		})
	}
}

func TestIngestFile_EmbedsAsDocument(t *testing.T) {
	t.Parallel()
	emb := &fakeEmbedder{}
	p, err := NewPipeline(emb, &fakeInserter{}, &Config{TempDir: t.TempDir(), Extractor: &fakeExtractor{}})
	if err != nil {
		t.Fatalf("NewPipeline: %v", err)
	}
	p.IngestFile(context.Background(), strings.NewReader("text"), "a.pdf")
	if len(emb.intents) != 1 || emb.intents[0] != embedder.IntentDocument {
		t.Errorf("intents = %v, want [document]", emb.intents)
	}
}

func TestIngestBatch_IsolatesFailures(t *testing.T) {
	t.Parallel()
	p, _, ins, dir := newTestPipeline(t, nil)

	results := p.IngestBatch(context.Background(), []Upload{
		upload("one.pdf", "first"),
		upload("two.pdf", "bad"),
		upload("three.pdf", "third"),
	})

	want := []string{StatusSuccess, StatusError, StatusSuccess}
	for i, r := range results {
		if r.Status != want[i] {
			t.Errorf("results[%d] = %+v, want status %s", i, r, want[i])
		}
	}
	if len(ins.docs) != 2 {
		t.Errorf("inserted %d docs, want 2", len(ins.docs))
	}
	assertDirEmpty(t, dir)
}

func TestIngestBatch_FailFast(t *testing.T) {
	t.Parallel()
	p, _, ins, _ := newTestPipeline(t, &Config{FailFast: true})

	results := p.IngestBatch(context.Background(), []Upload{
		upload("one.pdf", "first"),
		upload("two.pdf", "bad"),
		upload("three.pdf", "third"),
	})

	if !results[0].OK() {
		t.Errorf("results[0] = %+v, want success", results[0])
	}
	if results[1].OK() || results[1].Error == errSkipped.Error() {
		t.Errorf("results[1] = %+v, want the extraction error", results[1])
	}
	if results[2].Error != errSkipped.Error() {
		t.Errorf("results[2] = %+v, want skipped", results[2])
	}
	if len(ins.docs) != 1 {
		t.Errorf("inserted %d docs, want 1", len(ins.docs))
	}
}

func TestIngestBatch_ConcurrentKeepsInputOrder(t *testing.T) {
	t.Parallel()
	p, _, _, dir := newTestPipeline(t, &Config{Concurrency: 4})

	uploads := []Upload{
		upload("a.pdf", "slow a"),
		upload("b.pdf", "b"),
		upload("c.pdf", "slow c"),
		upload("d.pdf", "d"),
		upload("e.pdf", "e"),
	}
	results := p.IngestBatch(context.Background(), uploads)

	if len(results) != len(uploads) {
		t.Fatalf("len = %d, want %d", len(results), len(uploads))
	}
	for i, r := range results {
		if r.Filename != uploads[i].Filename {
			t.Errorf("results[%d].Filename = %q, want %q", i, r.Filename, uploads[i].Filename)
		}
		if !r.OK() {
			t.Errorf("results[%d] = %+v", i, r)
		}
	}
	assertDirEmpty(t, dir)
}

func TestIngestBatch_OpenError(t *testing.T) {
	t.Parallel()
	p, _, _, _ := newTestPipeline(t, nil)

	results := p.IngestBatch(context.Background(), []Upload{{
		Filename: "gone.pdf",
		Open:     func() (io.ReadCloser, error) { return nil, errors.New("no such part") },
	}})
	if len(results) != 1 || results[0].OK() {
		t.Fatalf("results = %+v, want one failure", results)
	}
	if !strings.Contains(results[0].Error, "no such part") {
		t.Errorf("error = %q", results[0].Error)
	}
}

func TestIngestFile_MalformedPageTreeFailsAndCleansUp(t *testing.T) {
	t.Parallel()
	p, _, ins, dir := newTestPipeline(t, &Config{Extractor: PDFExtractor{}})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	done := make(chan Result, 1)
	go func() { done <- p.IngestFile(ctx, bytes.NewReader(kidlessPDF()), "kidless.pdf") }()

	select {
	case r := <-done:
		if r.OK() {
			t.Fatalf("result = %+v, want error", r)
		}
		if !strings.Contains(r.Error, "malformed pdf") {
			t.Errorf("error = %q, want malformed pdf", r.Error)
		}
	case <-time.After(10 * time.Second):
		t.Fatal("IngestFile did not return for a PDF with a kidless page tree")
	}
	if len(ins.docs) != 0 {
		t.Errorf("inserted %d docs, want 0", len(ins.docs))
	}
	assertDirEmpty(t, dir)
}

func TestPDFExtractor_InvalidFile(t *testing.T) {
	t.Parallel()
	path := t.TempDir() + "/not.pdf"
	if err := os.WriteFile(path, []byte("plain text, not a pdf"), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := (PDFExtractor{}).Extract(context.Background(), path); err == nil {
		t.Error("expected error for non-pdf input")
	}
}
