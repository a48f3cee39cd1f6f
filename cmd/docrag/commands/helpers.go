package commands

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/54b3r/docrag-go/internal/embedder"
	"github.com/54b3r/docrag-go/internal/ingestion"
	"github.com/54b3r/docrag-go/internal/provider"
	"github.com/54b3r/docrag-go/internal/rag"
	"github.com/54b3r/docrag-go/internal/store"
)

// defaultLLMTimeout bounds a single answer generation when LLM_TIMEOUT is unset.
const defaultLLMTimeout = 60 * time.Second

// components is the wired document stack shared by every subcommand.
type components struct {
	Store    store.Store
	Embedder *embedder.Resolved
	// Chat is nil unless the command asked for a model.
	Chat     *provider.ChatModel
	Engine   *rag.Engine
	Pipeline *ingestion.Pipeline
	// Backend is the resolved STORE_BACKEND.
	Backend string
}

// Close releases the store and the embedding cache.
func (c *components) Close(log *slog.Logger) {
	if err := c.Store.Close(); err != nil {
		log.Warn("store: close failed", slog.Any("error", err))
	}
	if err := c.Embedder.Close(); err != nil {
		log.Warn("embedder: close failed", slog.Any("error", err))
	}
}

// buildComponents constructs the embedder, store, retrieval engine and
// ingestion pipeline from the environment. withModel also builds the chat
// model so the engine can answer. reg receives embedder and engine metrics;
// nil keeps them private.
func buildComponents(ctx context.Context, log *slog.Logger, reg prometheus.Registerer, withModel bool) (*components, error) {
	embedder.Validate(log)

	emb, err := embedder.NewFromEnv(ctx, reg)
	if err != nil {
		return nil, err
	}
	log.Info("embedder initialised",
		slog.String("backend", emb.Backend),
		slog.String("model", emb.Model),
		slog.Int("dimensions", emb.Dimensions),
	)

	st, err := store.NewFromEnv(ctx, emb.Dimensions)
	if err != nil {
		_ = emb.Close()
		return nil, err
	}
	c := &components{
		Store:    st,
		Embedder: emb,
		Backend:  getEnvOrDefault("STORE_BACKEND", store.BackendSupabase),
	}
	log.Info("store initialised", slog.String("backend", c.Backend))

	var gen rag.Generator
	if withModel {
		chat, err := provider.NewFromEnv(ctx)
		if err != nil {
			c.Close(log)
			return nil, err
		}
		c.Chat = chat
		gen = provider.NewGenerator(chat.Model, string(chat.Backend), getEnvDuration("LLM_TIMEOUT", defaultLLMTimeout))
		log.Info("provider initialised",
			slog.String("backend", string(chat.Backend)),
			slog.String("model", chat.Name),
		)
	}

	c.Engine, err = rag.New(&rag.Config{
		Embedder:         emb.Embedder,
		Store:            st,
		Generator:        gen,
		TopK:             getEnvInt("RAG_TOP_K", rag.DefaultTopK),
		ContextChars:     getEnvInt("RAG_CONTEXT_CHARS", rag.DefaultContextChars),
		FallbackLimit:    getEnvInt("RAG_FALLBACK_LIMIT", rag.DefaultFallbackLimit),
		StrictEmbeddings: getEnvBool("RAG_STRICT_EMBEDDINGS", false),
		Registerer:       reg,
	})
	if err != nil {
		c.Close(log)
		return nil, err
	}

	c.Pipeline, err = ingestion.NewPipeline(emb.Embedder, st, &ingestion.Config{
		TempDir:     os.Getenv("INGEST_TEMP_DIR"),
		FailFast:    getEnvBool("INGEST_FAIL_FAST", false),
		Concurrency: getEnvInt("INGEST_CONCURRENCY", 1),
	})
	if err != nil {
		c.Close(log)
		return nil, err
	}

	return c, nil
}

// splitList splits a comma-separated value, dropping blanks.
func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// getEnvOrDefault returns the value of the named environment variable, or
// fallback if the variable is unset or empty.
func getEnvOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// getEnvInt returns the integer value of the named environment variable, or
// fallback if it is unset or not parseable.
func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

// getEnvFloat returns the float value of the named environment variable, or
// fallback if it is unset or not parseable.
func getEnvFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

// getEnvBool returns the boolean value of the named environment variable, or
// fallback if it is unset or not parseable.
func getEnvBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

// getEnvDuration returns the duration value of the named environment
// variable, or fallback if it is unset or not parseable.
func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}

// fail wraps err with the command name, the way every RunE reports errors.
func fail(command string, err error) error {
	return fmt.Errorf("%s: %w", command, err)
}
