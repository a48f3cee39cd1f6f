// Package ingestion turns uploaded PDFs into stored, embedded documents.
// Each file is spooled to a temporary file, its text extracted, embedded
// as a document and inserted as one row. This pipeline backs the /upload
// endpoint and the `docrag ingest` CLI command.
package ingestion

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/54b3r/docrag-go/internal/embedder"
	"github.com/54b3r/docrag-go/internal/logging"
	"github.com/54b3r/docrag-go/internal/store"
)

// Per-file outcomes reported in [Result.Status].
const (
	StatusSuccess = "success"
	StatusError   = "error"
)

// errSkipped marks files not attempted because an earlier file failed in
// fail-fast mode.
var errSkipped = errors.New("skipped: an earlier file failed")

// Inserter is the part of the document store the pipeline writes to.
type Inserter interface {
	Insert(ctx context.Context, doc store.NewDocument) (int64, error)
}

// Upload is one file in a batch. Open is called once, when the file is
// processed, so large batches are not held in memory.
type Upload struct {
	Filename string
	Open     func() (io.ReadCloser, error)
}

// Result is the per-file outcome.
type Result struct {
	Filename string `json:"filename"`
	Status   string `json:"status"`
	Error    string `json:"error,omitempty"`
}

// OK reports whether the file was stored.
func (r Result) OK() bool { return r.Status == StatusSuccess }

// Config holds the configuration for the ingestion pipeline.
type Config struct {
	// TempDir is where uploads are spooled before extraction.
	// Defaults to the OS temp directory if empty.
	TempDir string

	// FailFast stops a batch at the first failed file. Remaining files are
	// reported as errors without being attempted.
	FailFast bool

	// Concurrency is the number of files processed at once.
	// Defaults to 1 if zero.
	Concurrency int

	// Extractor reads text from the spooled file. Defaults to PDFExtractor.
	Extractor Extractor
}

// Pipeline orchestrates the spool → extract → embed → insert flow.
type Pipeline struct {
	// embedder embeds extracted text with IntentDocument.
	embedder embedder.Embedder

	// store persists one row per file.
	store Inserter

	// cfg holds the resolved pipeline configuration.
	cfg *Config
}

// NewPipeline constructs a Pipeline from the provided dependencies and config.
func NewPipeline(emb embedder.Embedder, st Inserter, cfg *Config) (*Pipeline, error) {
	if emb == nil {
		return nil, fmt.Errorf("ingestion: embedder must not be nil")
	}
	if st == nil {
		return nil, fmt.Errorf("ingestion: store must not be nil")
	}
	if cfg == nil {
		cfg = &Config{}
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 1
	}
	if cfg.Extractor == nil {
		cfg.Extractor = PDFExtractor{}
	}
	return &Pipeline{embedder: emb, store: st, cfg: cfg}, nil
}

// IngestFile stores the PDF read from r under filename. Failures are
// reported in the Result, never returned.
func (p *Pipeline) IngestFile(ctx context.Context, r io.Reader, filename string) Result {
	log := logging.FromContext(ctx).With(slog.String("filename", filename))

	if err := p.ingest(ctx, r, filename); err != nil {
		log.Warn("ingestion: file failed", slog.Any("error", err))
		return Result{Filename: filename, Status: StatusError, Error: err.Error()}
	}
	log.Info("ingestion: file stored")
	return Result{Filename: filename, Status: StatusSuccess}
}

// IngestBatch ingests every upload and returns one Result per upload in
// input order. A failed file does not stop the batch unless FailFast is set.
func (p *Pipeline) IngestBatch(ctx context.Context, uploads []Upload) []Result {
	results := make([]Result, len(uploads))

	var failed atomic.Bool
	g := new(errgroup.Group)
	g.SetLimit(p.cfg.Concurrency)

	for i, u := range uploads {
		g.Go(func() error {
			// Checked once a slot is free so a sequential batch sees the
			// previous file's outcome.
			if p.cfg.FailFast && failed.Load() {
				results[i] = Result{Filename: u.Filename, Status: StatusError, Error: errSkipped.Error()}
				return nil
			}
			results[i] = p.ingestUpload(ctx, u)
			if !results[i].OK() {
				failed.Store(true)
			}
			return nil
		})
	}
	_ = g.Wait()

	return results
}

func (p *Pipeline) ingestUpload(ctx context.Context, u Upload) Result {
	if u.Open == nil {
		return Result{Filename: u.Filename, Status: StatusError, Error: "no file content"}
	}
	rc, err := u.Open()
	if err != nil {
		return Result{Filename: u.Filename, Status: StatusError, Error: fmt.Sprintf("open upload: %v", err)}
	}
	defer rc.Close()
	return p.IngestFile(ctx, rc, u.Filename)
}

// ingest runs one file through the pipeline. The temp file is removed on
// every return path.
func (p *Pipeline) ingest(ctx context.Context, r io.Reader, filename string) error {
	tmp, err := os.CreateTemp(p.cfg.TempDir, "docrag-*.pdf")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	path := tmp.Name()
	defer os.Remove(path)

	if _, err := io.Copy(tmp, r); err != nil {
		tmp.Close()
		return fmt.Errorf("spool upload: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("spool upload: %w", err)
	}

	text, err := p.cfg.Extractor.Extract(ctx, path)
	if err != nil {
		return fmt.Errorf("extract text: %w", err)
	}

	emb, err := p.embedder.Embed(ctx, text, embedder.IntentDocument)
	if err != nil {
		return fmt.Errorf("embed: %w", err)
	}

	if _, err := p.store.Insert(ctx, store.NewDocument{
		Filename:  filename,
		Content:   text,
		Embedding: emb,
	}); err != nil {
		return fmt.Errorf("insert: %w", err)
	}
	return nil
}
