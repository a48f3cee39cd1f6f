// Package rag answers questions from stored documents.
//
// Retrieval is two-tier: the datastore's server-side ranking function is
// tried first, and when it fails, is unavailable or returns no rows the
// engine ranks every stored embedding itself by cosine similarity. The
// client-side path is degraded mode; it is capped, counted and logged.
package rag

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sony/gobreaker"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/54b3r/docrag-go/internal/embedder"
	"github.com/54b3r/docrag-go/internal/logging"
	"github.com/54b3r/docrag-go/internal/store"
	"github.com/54b3r/docrag-go/internal/vector"
)

// Defaults applied by New.
const (
	DefaultTopK          = 5
	DefaultContextChars  = 1800
	DefaultFallbackLimit = 10000

	defaultBreakerFailures = 5
	defaultBreakerCooldown = 30 * time.Second
)

// ErrDataIntegrity is returned in strict mode when a stored embedding cannot
// be parsed.
var ErrDataIntegrity = errors.New("rag: stored embedding is malformed")

// Result is one retrieved document.
type Result struct {
	ID         int64   `json:"id"`
	Filename   string  `json:"filename"`
	Content    string  `json:"content"`
	Similarity float64 `json:"similarity"`
}

// Generator produces a completion for a prompt.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// Config holds the dependencies and tuning for an Engine.
type Config struct {
	// Embedder embeds queries. Must be the model documents were embedded with.
	Embedder embedder.Embedder

	// Store holds the documents and the optional ranking function.
	Store store.Store

	// Generator writes answers. Only Answer needs it.
	Generator Generator

	// TopK is the number of documents Answer retrieves (default: 5).
	TopK int

	// ContextChars caps each document's share of the prompt, in characters
	// (default: 1800).
	ContextChars int

	// FallbackLimit caps the number of rows scanned by client-side ranking.
	// Zero disables the cap.
	FallbackLimit int

	// StrictEmbeddings turns a malformed stored embedding into
	// ErrDataIntegrity instead of skipping the document.
	StrictEmbeddings bool

	// BreakerFailures is the number of consecutive ranking-function failures
	// that opens the breaker (default: 5).
	BreakerFailures uint32

	// BreakerCooldown is how long the breaker stays open (default: 30s).
	BreakerCooldown time.Duration

	// Registerer receives the engine metrics. Nil keeps them private.
	Registerer prometheus.Registerer
}

// Engine retrieves documents and answers questions. It is safe for
// concurrent use.
type Engine struct {
	embedder      embedder.Embedder
	store         store.Store
	generator     Generator
	topK          int
	contextChars  int
	fallbackLimit int
	strict        bool

	// breaker stops calling a ranking function that keeps failing.
	breaker *gobreaker.CircuitBreaker
	metrics *engineMetrics
	tracer  trace.Tracer
}

// New constructs an Engine, applying defaults for zero-valued tuning.
func New(cfg *Config) (*Engine, error) {
	if cfg.Embedder == nil {
		return nil, fmt.Errorf("rag: embedder must not be nil")
	}
	if cfg.Store == nil {
		return nil, fmt.Errorf("rag: store must not be nil")
	}
	if cfg.TopK <= 0 {
		cfg.TopK = DefaultTopK
	}
	if cfg.ContextChars <= 0 {
		cfg.ContextChars = DefaultContextChars
	}
	if cfg.FallbackLimit < 0 {
		cfg.FallbackLimit = 0
	}
	if cfg.BreakerFailures == 0 {
		cfg.BreakerFailures = defaultBreakerFailures
	}
	if cfg.BreakerCooldown == 0 {
		cfg.BreakerCooldown = defaultBreakerCooldown
	}

	failures := cfg.BreakerFailures
	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "match_documents",
		MaxRequests: 1,
		Timeout:     cfg.BreakerCooldown,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= failures
		},
		// A caller giving up is not a datastore failure.
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			slog.Warn("rag: circuit breaker state change",
				slog.String("breaker", name),
				slog.String("from", from.String()),
				slog.String("to", to.String()),
			)
		},
	})

	return &Engine{
		embedder:      cfg.Embedder,
		store:         cfg.Store,
		generator:     cfg.Generator,
		topK:          cfg.TopK,
		contextChars:  cfg.ContextChars,
		fallbackLimit: cfg.FallbackLimit,
		strict:        cfg.StrictEmbeddings,
		breaker:       breaker,
		metrics:       newEngineMetrics(cfg.Registerer),
		tracer:        otel.Tracer("github.com/54b3r/docrag-go/internal/rag"),
	}, nil
}

// Retrieve returns at most k documents most similar to query, best first.
// k <= 0 uses the configured TopK.
//
// Rows from the server-side ranking function are returned as-is. When that
// call errors, is unavailable or returns nothing, stored embeddings are
// ranked here: rows whose embedding is missing, unparseable or of a
// different dimension than the query are skipped, and ties keep datastore
// order.
func (e *Engine) Retrieve(ctx context.Context, query string, k int) ([]Result, error) {
	if k <= 0 {
		k = e.topK
	}
	ctx, span := e.tracer.Start(ctx, "rag.retrieve", trace.WithAttributes(attribute.Int("rag.k", k)))
	defer span.End()
	start := time.Now()

	q, err := e.embedder.Embed(ctx, query, embedder.IntentQuery)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "embed query")
		return nil, fmt.Errorf("rag: embed query: %w", err)
	}
	if len(q) == 0 {
		return nil, fmt.Errorf("rag: embed query: %w", embedder.ErrEmptyEmbedding)
	}

	matches, reason := e.matchRemote(ctx, q, k)
	if len(matches) > 0 {
		results := make([]Result, len(matches))
		for i, m := range matches {
			results[i] = Result(m)
		}
		e.observe(pathRPC, start)
		span.SetAttributes(attribute.String("rag.path", pathRPC), attribute.Int("rag.results", len(results)))
		return results, nil
	}

	e.metrics.fallbacksTotal.WithLabelValues(reason).Inc()
	span.SetAttributes(attribute.String("rag.path", pathFallback), attribute.String("rag.fallback_reason", reason))

	results, err := e.rankLocally(ctx, q, k)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "fallback ranking")
		return nil, err
	}
	e.observe(pathFallback, start)
	span.SetAttributes(attribute.Int("rag.results", len(results)))
	return results, nil
}

// matchRemote calls the ranking function through the breaker. It returns
// the matches, or the fallback reason when there are none.
func (e *Engine) matchRemote(ctx context.Context, q []float32, k int) ([]store.Match, string) {
	log := logging.FromContext(ctx)

	out, err := e.breaker.Execute(func() (interface{}, error) {
		return e.store.MatchDocuments(ctx, q, k)
	})
	switch {
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		log.Debug("rag: ranking function skipped, breaker open")
		return nil, reasonBreakerOpen
	case errors.Is(err, store.ErrRPCUnsupported):
		log.Debug("rag: ranking function unavailable, ranking locally", slog.Any("error", err))
		return nil, reasonRPCUnsupported
	case err != nil:
		log.Warn("rag: ranking function failed, ranking locally", slog.Any("error", err))
		return nil, reasonRPCError
	}

	matches, _ := out.([]store.Match)
	if len(matches) == 0 {
		log.Info("rag: ranking function returned no rows, ranking locally")
		return nil, reasonRPCEmpty
	}
	return matches, ""
}

// rankLocally scores stored embeddings against q by cosine similarity and
// returns the top k, best first.
func (e *Engine) rankLocally(ctx context.Context, q []float32, k int) ([]Result, error) {
	log := logging.FromContext(ctx)

	docs, err := e.store.List(ctx, e.fallbackLimit)
	if err != nil {
		return nil, fmt.Errorf("rag: fallback list documents: %w", err)
	}
	if e.fallbackLimit > 0 && len(docs) >= e.fallbackLimit {
		log.Warn("rag: fallback scan hit its row cap, newest documents only",
			slog.Int("limit", e.fallbackLimit),
		)
	}

	results := make([]Result, 0, len(docs))
	for _, d := range docs {
		emb, perr := vector.Parse(d.Embedding)
		if perr != nil {
			if e.strict {
				return nil, fmt.Errorf("%w: document %d (%s): %v", ErrDataIntegrity, d.ID, d.Filename, perr)
			}
			e.metrics.skippedTotal.WithLabelValues(skipMalformed).Inc()
			log.Warn("rag: skipping document with malformed embedding",
				slog.Int64("id", d.ID),
				slog.String("filename", d.Filename),
			)
			continue
		}
		if len(emb) == 0 {
			e.metrics.skippedTotal.WithLabelValues(skipEmpty).Inc()
			continue
		}
		if len(emb) != len(q) {
			e.metrics.skippedTotal.WithLabelValues(skipDimension).Inc()
			log.Debug("rag: skipping document with mismatched dimension",
				slog.Int64("id", d.ID),
				slog.Int("dims", len(emb)),
				slog.Int("want", len(q)),
			)
			continue
		}
		results = append(results, Result{
			ID:         d.ID,
			Filename:   d.Filename,
			Content:    d.Content,
			Similarity: vector.Cosine(q, emb),
		})
	}

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Similarity > results[j].Similarity
	})
	if len(results) > k {
		results = results[:k]
	}
	return results, nil
}

// Answer retrieves the top documents for query and asks the model to answer
// from them. With no documents it returns NoResultsMessage without calling
// the model.
func (e *Engine) Answer(ctx context.Context, query string) (string, error) {
	ctx, span := e.tracer.Start(ctx, "rag.answer")
	defer span.End()

	if e.generator == nil {
		return "", fmt.Errorf("rag: no generator configured")
	}

	results, err := e.Retrieve(ctx, query, e.topK)
	if err != nil {
		e.metrics.answersTotal.WithLabelValues("error").Inc()
		return "", err
	}
	if len(results) == 0 {
		e.metrics.answersTotal.WithLabelValues("no_results").Inc()
		span.SetAttributes(attribute.Bool("rag.no_results", true))
		return NoResultsMessage, nil
	}

	answer, err := e.generator.Generate(ctx, BuildPrompt(query, results, e.contextChars))
	if err != nil {
		e.metrics.answersTotal.WithLabelValues("error").Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, "generate")
		return "", fmt.Errorf("rag: generate answer: %w", err)
	}
	e.metrics.answersTotal.WithLabelValues("ok").Inc()
	return answer, nil
}

func (e *Engine) observe(path string, start time.Time) {
	e.metrics.retrievalsTotal.WithLabelValues(path).Inc()
	e.metrics.retrievalSeconds.WithLabelValues(path).Observe(time.Since(start).Seconds())
}
