package embedder

import (
	"context"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Default embedding models per backend.
const (
	defaultGeminiModel = "text-embedding-004"
	defaultOllamaModel = "nomic-embed-text"
	defaultOpenAIModel = "text-embedding-3-small"

	// defaultGeminiDimensions is the output size of text-embedding-004.
	defaultGeminiDimensions = 768
	// defaultOllamaDimensions is the output size of nomic-embed-text.
	defaultOllamaDimensions = 768
	// defaultOpenAIDimensions is the output size of text-embedding-3-small.
	defaultOpenAIDimensions = 1536

	// defaultTimeout bounds a single embed call.
	defaultTimeout = 30 * time.Second
)

// DefaultDimensions returns the embedding size for backend.
// EMBEDDING_DIMENSIONS always takes precedence when set.
func DefaultDimensions(backend string) int {
	if v := getEnvInt("EMBEDDING_DIMENSIONS", 0); v > 0 {
		return v
	}
	switch backend {
	case "ollama":
		return defaultOllamaDimensions
	case "openai", "azure":
		return defaultOpenAIDimensions
	default:
		return defaultGeminiDimensions
	}
}

// Resolved is the embedder built from the environment plus what it resolved to.
type Resolved struct {
	// Embedder is ready to use, wrapped with timeout and cache layers.
	Embedder Embedder
	// Backend is the resolved backend name.
	Backend string
	// Model is the resolved model name.
	Model string
	// Dimensions is the expected vector size.
	Dimensions int

	closers []io.Closer
}

// Close releases the cache connection, if any.
func (r *Resolved) Close() error {
	var first error
	for _, c := range r.closers {
		if err := c.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// NewFromEnv constructs an Embedder from environment variables.
//
//  1. EMBEDDING_PROVIDER: gemini (default), openai, azure, ollama
//  2. EMBEDDING_MODEL overrides the backend default model
//  3. EMBEDDING_API_KEY overrides the backend API key
//     (GEMINI_API_KEY, OPENAI_API_KEY, AZURE_OPENAI_API_KEY)
//  4. EMBEDDING_ENDPOINT overrides the backend endpoint
//  5. EMBEDDING_DIMENSIONS overrides the default vector size
//  6. EMBED_TIMEOUT bounds each call (default 30s)
//  7. REDIS_URL enables the embedding cache (EMBED_CACHE_TTL, default 0 = no expiry)
//
// reg receives the cache lookup counter; nil disables it.
func NewFromEnv(ctx context.Context, reg prometheus.Registerer) (*Resolved, error) {
	backend := getEnvOrDefault("EMBEDDING_PROVIDER", "gemini")
	dims := DefaultDimensions(backend)
	res := &Resolved{Backend: backend, Dimensions: dims}

	var inner Embedder
	switch backend {
	case "gemini":
		apiKey := firstEnv("EMBEDDING_API_KEY", "GEMINI_API_KEY", "GOOGLE_API_KEY")
		if apiKey == "" {
			return nil, fmt.Errorf("embedder: gemini requires GEMINI_API_KEY or EMBEDDING_API_KEY")
		}
		res.Model = getEnvOrDefault("EMBEDDING_MODEL", defaultGeminiModel)
		var explicitDims int
		if os.Getenv("EMBEDDING_DIMENSIONS") != "" {
			explicitDims = dims
		}
		g, err := NewGeminiEmbedder(ctx, &GeminiConfig{
			APIKey:     apiKey,
			Model:      res.Model,
			Dimensions: explicitDims,
			BaseURL:    os.Getenv("EMBEDDING_ENDPOINT"),
		})
		if err != nil {
			return nil, err
		}
		inner = g

	case "openai":
		apiKey := firstEnv("EMBEDDING_API_KEY", "OPENAI_API_KEY")
		if apiKey == "" {
			return nil, fmt.Errorf("embedder: openai requires OPENAI_API_KEY or EMBEDDING_API_KEY")
		}
		res.Model = getEnvOrDefault("EMBEDDING_MODEL", defaultOpenAIModel)
		inner = NewOpenAIEmbedder(&OpenAIConfig{
			BaseURL:    getEnvOrDefault("EMBEDDING_ENDPOINT", "https://api.openai.com/v1"),
			APIKey:     apiKey,
			Model:      res.Model,
			Dimensions: dims,
		})

	case "azure":
		apiKey := firstEnv("EMBEDDING_API_KEY", "AZURE_OPENAI_API_KEY")
		if apiKey == "" {
			return nil, fmt.Errorf("embedder: azure requires AZURE_OPENAI_API_KEY or EMBEDDING_API_KEY")
		}
		endpoint := firstEnv("EMBEDDING_ENDPOINT", "AZURE_OPENAI_ENDPOINT")
		if endpoint == "" {
			return nil, fmt.Errorf("embedder: azure requires AZURE_OPENAI_ENDPOINT or EMBEDDING_ENDPOINT")
		}
		res.Model = getEnvOrDefault("EMBEDDING_MODEL", defaultOpenAIModel)
		inner = NewOpenAIEmbedder(&OpenAIConfig{
			BaseURL:    endpoint,
			APIKey:     apiKey,
			Model:      res.Model,
			Dimensions: dims,
			Azure:      true,
			APIVersion: getEnvOrDefault("AZURE_OPENAI_API_VERSION", "2025-04-01-preview"),
		})

	case "ollama":
		res.Model = getEnvOrDefault("EMBEDDING_MODEL", defaultOllamaModel)
		host := firstEnv("EMBEDDING_ENDPOINT", "OLLAMA_HOST")
		if host == "" {
			host = "http://localhost:11434"
		}
		inner = NewOllamaEmbedder(&OllamaConfig{Host: host, Model: res.Model})

	default:
		return nil, fmt.Errorf("embedder: unknown backend %q (valid: gemini, openai, azure, ollama)", backend)
	}

	timeout := getEnvDuration("EMBED_TIMEOUT", defaultTimeout)
	res.Embedder = WithTimeout(inner, timeout)

	if url := os.Getenv("REDIS_URL"); url != "" {
		store, err := NewRedisKV(ctx, url)
		if err != nil {
			return nil, err
		}
		var lookups *prometheus.CounterVec
		if reg != nil {
			lookups = promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
				Name: "docrag_embedding_cache_lookups_total",
				Help: "Embedding cache lookups by result (hit, miss, error).",
			}, []string{"result"})
		}
		ns := fmt.Sprintf("%s:%s:%d", backend, res.Model, dims)
		res.Embedder = NewCachedEmbedder(res.Embedder, store, ns, getEnvDuration("EMBED_CACHE_TTL", 0), lookups)
		res.closers = append(res.closers, store)
	}

	return res, nil
}

// timeoutEmbedder bounds every call with a deadline.
type timeoutEmbedder struct {
	inner   Embedder
	timeout time.Duration
}

// WithTimeout returns an Embedder whose calls fail after d. d <= 0 returns
// inner unchanged.
func WithTimeout(inner Embedder, d time.Duration) Embedder {
	if d <= 0 {
		return inner
	}
	return &timeoutEmbedder{inner: inner, timeout: d}
}

func (t *timeoutEmbedder) Embed(ctx context.Context, text string, intent Intent) ([]float32, error) {
	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()
	return t.inner.Embed(ctx, text, intent)
}

// firstEnv returns the first non-empty value among keys.
func firstEnv(keys ...string) string {
	for _, k := range keys {
		if v := os.Getenv(k); v != "" {
			return v
		}
	}
	return ""
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
// fallback if the variable is unset, empty, or not parseable.
func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

// getEnvDuration parses a Go duration ("45s") from the named variable, or
// returns fallback.
func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
