// Package config provides YAML-based configuration for docrag.
// Configuration is loaded with a layered precedence: defaults → YAML file → env vars.
// Environment variables always win, so a .env file or the process
// environment can override any file setting.
//
// File search order:
//  1. --config CLI flag (explicit path)
//  2. DOCRAG_CONFIG environment variable
//  3. ./docrag.yaml
//  4. ~/.docrag/config.yaml
//
// If no file is found the system runs entirely from env vars.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// ErrMissingSecret is returned by CheckRequired when a credential needed by
// the selected backends is absent.
var ErrMissingSecret = errors.New("config: required secret not set")

// Config is the top-level YAML configuration structure.
// Field names use yaml tags that mirror the env var naming (lowercase, underscored).
type Config struct {
	// Store selects and configures the document store.
	Store StoreConfig `yaml:"store"`

	// Embedding configures the embedding provider.
	Embedding EmbeddingConfig `yaml:"embedding"`

	// Model configures the LLM chat model provider.
	Model ModelConfig `yaml:"model"`

	// RAG tunes retrieval and answer generation.
	RAG RAGConfig `yaml:"rag"`

	// Ingest tunes the upload pipeline.
	Ingest IngestConfig `yaml:"ingest"`

	// Server configures the HTTP server.
	Server ServerConfig `yaml:"server"`

	// Redis configures the embedding cache.
	Redis RedisConfig `yaml:"redis"`

	// Logging configures structured logging.
	Logging LoggingConfig `yaml:"logging"`

	// Tracing configures Langfuse and OpenTelemetry tracing.
	Tracing TracingConfig `yaml:"tracing"`
}

// StoreConfig holds document store settings.
type StoreConfig struct {
	// Backend selects the store: supabase, postgres, qdrant, sqlite.
	Backend string `yaml:"backend"`

	Supabase SupabaseConfig `yaml:"supabase"`
	Postgres PostgresConfig `yaml:"postgres"`
	Qdrant   QdrantConfig   `yaml:"qdrant"`
	SQLite   SQLiteConfig   `yaml:"sqlite"`
}

// SupabaseConfig holds Supabase (PostgREST) settings.
type SupabaseConfig struct {
	// URL is the project URL, e.g. https://xyz.supabase.co.
	URL string `yaml:"url"`
	// ServiceKey is the service-role key. Prefer env var SUPABASE_SERVICE_KEY.
	ServiceKey string `yaml:"service_key"`
	// Table is the documents table name.
	Table string `yaml:"table"`
	// RPC is the server-side ranking function name.
	RPC string `yaml:"rpc"`
}

// PostgresConfig holds direct Postgres settings.
type PostgresConfig struct {
	// URL is the connection string. Prefer env var DATABASE_URL.
	URL string `yaml:"url"`
	// MaxConns caps the connection pool.
	MaxConns int `yaml:"max_conns"`
}

// QdrantConfig holds Qdrant vector store settings.
type QdrantConfig struct {
	// Host is the Qdrant server hostname.
	Host string `yaml:"host"`
	// Port is the Qdrant gRPC port.
	Port int `yaml:"port"`
	// Collection is the Qdrant collection name.
	Collection string `yaml:"collection"`
	// APIKey is the Qdrant API key. Prefer env var QDRANT_API_KEY.
	APIKey string `yaml:"api_key"`
	// TLS enables TLS for the Qdrant connection.
	TLS bool `yaml:"tls"`
}

// SQLiteConfig holds local SQLite settings.
type SQLiteConfig struct {
	// Path is the database file.
	Path string `yaml:"path"`
}

// EmbeddingConfig holds embedding provider settings.
type EmbeddingConfig struct {
	// Provider selects the embedding backend (gemini, openai, azure, ollama).
	Provider string `yaml:"provider"`
	// Model is the embedding model name.
	Model string `yaml:"model"`
	// Dimensions overrides the embedding vector size.
	Dimensions int `yaml:"dimensions"`
	// APIKey is the embedding API key. Prefer env var EMBEDDING_API_KEY.
	APIKey string `yaml:"api_key"`
	// Endpoint is the embedding API endpoint.
	Endpoint string `yaml:"endpoint"`
	// Timeout bounds each embedding call.
	Timeout time.Duration `yaml:"timeout"`
}

// ModelConfig holds LLM chat model settings.
type ModelConfig struct {
	// Provider selects the backend: gemini, openai, azure, ollama, ark.
	Provider string `yaml:"provider"`
	// MaxTokens is the maximum number of tokens in the response.
	MaxTokens int `yaml:"max_tokens"`
	// Temperature controls response randomness (0.0 to 1.0).
	Temperature float32 `yaml:"temperature"`
	// Timeout bounds each generation call.
	Timeout time.Duration `yaml:"timeout"`

	Gemini GeminiConfig `yaml:"gemini"`
	OpenAI OpenAIConfig `yaml:"openai"`
	Azure  AzureConfig  `yaml:"azure"`
	Ollama OllamaConfig `yaml:"ollama"`
	Ark    ArkConfig    `yaml:"ark"`
}

// GeminiConfig holds Google Gemini provider settings.
type GeminiConfig struct {
	// APIKey is the Gemini API key. Prefer env var GEMINI_API_KEY.
	APIKey string `yaml:"api_key"`
	// Model is the Gemini model name.
	Model string `yaml:"model"`
}

// OpenAIConfig holds OpenAI provider settings.
type OpenAIConfig struct {
	// APIKey is the OpenAI API key. Prefer env var OPENAI_API_KEY.
	APIKey string `yaml:"api_key"`
	// Model is the OpenAI model name.
	Model string `yaml:"model"`
	// BaseURL points at an OpenAI-compatible endpoint.
	BaseURL string `yaml:"base_url"`
}

// AzureConfig holds Azure OpenAI provider settings.
type AzureConfig struct {
	// APIKey is the Azure OpenAI API key. Prefer env var AZURE_OPENAI_API_KEY.
	APIKey string `yaml:"api_key"`
	// Endpoint is the Azure OpenAI resource endpoint.
	Endpoint string `yaml:"endpoint"`
	// Deployment is the Azure OpenAI deployment name.
	Deployment string `yaml:"deployment"`
	// APIVersion is the Azure OpenAI API version.
	APIVersion string `yaml:"api_version"`
}

// OllamaConfig holds Ollama provider settings.
type OllamaConfig struct {
	// Host is the Ollama API endpoint.
	Host string `yaml:"host"`
	// Model is the Ollama model name.
	Model string `yaml:"model"`
}

// ArkConfig holds Volcengine Ark provider settings.
type ArkConfig struct {
	// APIKey is the Ark API key. Prefer env var ARK_API_KEY.
	APIKey string `yaml:"api_key"`
	// Model is the Ark endpoint ID.
	Model string `yaml:"model"`
	// BaseURL overrides the Ark API base URL.
	BaseURL string `yaml:"base_url"`
}

// RAGConfig holds retrieval and answer settings.
type RAGConfig struct {
	// TopK is the number of documents used to answer.
	TopK int `yaml:"top_k"`
	// ContextChars caps each document's share of the prompt.
	ContextChars int `yaml:"context_chars"`
	// FallbackLimit caps the client-side ranking scan.
	FallbackLimit int `yaml:"fallback_limit"`
	// StrictEmbeddings fails retrieval on malformed stored embeddings.
	StrictEmbeddings bool `yaml:"strict_embeddings"`
}

// IngestConfig holds upload pipeline settings.
type IngestConfig struct {
	// TempDir is where uploads are spooled.
	TempDir string `yaml:"temp_dir"`
	// FailFast stops a batch at the first failed file.
	FailFast bool `yaml:"fail_fast"`
	// Concurrency is the number of files processed at once.
	Concurrency int `yaml:"concurrency"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	// Host is the bind address.
	Host string `yaml:"host"`
	// Port is the TCP port.
	Port int `yaml:"port"`
	// APIKey is the Bearer token for API authentication. Prefer env var DOCRAG_API_KEY.
	APIKey string `yaml:"api_key"`
	// CORSOrigins is a comma-separated list of allowed origins.
	CORSOrigins string `yaml:"cors_allowed_origins"`
	// MaxUploadBytes caps /upload bodies.
	MaxUploadBytes int `yaml:"max_upload_bytes"`
	// ExposeErrors controls whether 500 responses carry the error text.
	// Pointer so that an explicit false in YAML is applied.
	ExposeErrors *bool `yaml:"expose_errors"`
	// RateLimits sets the per-IP token bucket of each protected route.
	RateLimits RateLimitsConfig `yaml:"rate_limits"`
}

// RateLimitsConfig holds one token bucket per protected route. Uploads embed
// whole documents, so they get a smaller budget than queries by default.
type RateLimitsConfig struct {
	Upload RouteLimitConfig `yaml:"upload"`
	Query  RouteLimitConfig `yaml:"query"`
	Clear  RouteLimitConfig `yaml:"clear"`
}

// RouteLimitConfig is a sustained rate and burst. Zero keeps the default.
type RouteLimitConfig struct {
	RPS   float64 `yaml:"rps"`
	Burst int     `yaml:"burst"`
}

// RedisConfig holds embedding cache settings.
type RedisConfig struct {
	// URL is the redis:// connection URL. Empty disables the cache.
	URL string `yaml:"url"`
	// TTL expires cached embeddings. Zero keeps them forever.
	TTL time.Duration `yaml:"ttl"`
}

// LoggingConfig holds structured logging settings.
type LoggingConfig struct {
	// Level is the minimum log level: debug, info, warn, error.
	Level string `yaml:"level"`
	// Format is the log output format: json, text.
	Format string `yaml:"format"`
}

// TracingConfig holds Langfuse and OpenTelemetry settings.
type TracingConfig struct {
	// PublicKey is the Langfuse public key. Prefer env var LANGFUSE_PUBLIC_KEY.
	PublicKey string `yaml:"public_key"`
	// SecretKey is the Langfuse secret key. Prefer env var LANGFUSE_SECRET_KEY.
	SecretKey string `yaml:"secret_key"`
	// Host is the Langfuse API host.
	Host string `yaml:"host"`
	// OTLPEndpoint is the OTLP/gRPC collector address.
	OTLPEndpoint string `yaml:"otlp_endpoint"`
}

// envMapping maps YAML config fields to their corresponding env var names.
// Only non-empty YAML values are applied; env vars always take precedence.
var envMapping = []struct {
	envKey string
	value  func(*Config) string
}{
	{"STORE_BACKEND", func(c *Config) string { return c.Store.Backend }},
	{"SUPABASE_URL", func(c *Config) string { return c.Store.Supabase.URL }},
	{"SUPABASE_SERVICE_KEY", func(c *Config) string { return c.Store.Supabase.ServiceKey }},
	{"SUPABASE_TABLE", func(c *Config) string { return c.Store.Supabase.Table }},
	{"SUPABASE_RPC", func(c *Config) string { return c.Store.Supabase.RPC }},
	{"DATABASE_URL", func(c *Config) string { return c.Store.Postgres.URL }},
	{"POSTGRES_MAX_CONNS", func(c *Config) string { return intStr(c.Store.Postgres.MaxConns) }},
	{"QDRANT_HOST", func(c *Config) string { return c.Store.Qdrant.Host }},
	{"QDRANT_PORT", func(c *Config) string { return intStr(c.Store.Qdrant.Port) }},
	{"QDRANT_COLLECTION", func(c *Config) string { return c.Store.Qdrant.Collection }},
	{"QDRANT_API_KEY", func(c *Config) string { return c.Store.Qdrant.APIKey }},
	{"QDRANT_TLS", func(c *Config) string { return boolStr(c.Store.Qdrant.TLS) }},
	{"SQLITE_PATH", func(c *Config) string { return c.Store.SQLite.Path }},
	{"EMBEDDING_PROVIDER", func(c *Config) string { return c.Embedding.Provider }},
	{"EMBEDDING_MODEL", func(c *Config) string { return c.Embedding.Model }},
	{"EMBEDDING_DIMENSIONS", func(c *Config) string { return intStr(c.Embedding.Dimensions) }},
	{"EMBEDDING_API_KEY", func(c *Config) string { return c.Embedding.APIKey }},
	{"EMBEDDING_ENDPOINT", func(c *Config) string { return c.Embedding.Endpoint }},
	{"EMBED_TIMEOUT", func(c *Config) string { return durationStr(c.Embedding.Timeout) }},
	{"MODEL_PROVIDER", func(c *Config) string { return c.Model.Provider }},
	{"MODEL_MAX_TOKENS", func(c *Config) string { return intStr(c.Model.MaxTokens) }},
	{"MODEL_TEMPERATURE", func(c *Config) string { return float32Str(c.Model.Temperature) }},
	{"LLM_TIMEOUT", func(c *Config) string { return durationStr(c.Model.Timeout) }},
	{"GEMINI_API_KEY", func(c *Config) string { return c.Model.Gemini.APIKey }},
	{"GEMINI_MODEL", func(c *Config) string { return c.Model.Gemini.Model }},
	{"OPENAI_API_KEY", func(c *Config) string { return c.Model.OpenAI.APIKey }},
	{"OPENAI_MODEL", func(c *Config) string { return c.Model.OpenAI.Model }},
	{"OPENAI_BASE_URL", func(c *Config) string { return c.Model.OpenAI.BaseURL }},
	{"AZURE_OPENAI_API_KEY", func(c *Config) string { return c.Model.Azure.APIKey }},
	{"AZURE_OPENAI_ENDPOINT", func(c *Config) string { return c.Model.Azure.Endpoint }},
	{"AZURE_OPENAI_DEPLOYMENT", func(c *Config) string { return c.Model.Azure.Deployment }},
	{"AZURE_OPENAI_API_VERSION", func(c *Config) string { return c.Model.Azure.APIVersion }},
	{"OLLAMA_HOST", func(c *Config) string { return c.Model.Ollama.Host }},
	{"OLLAMA_MODEL", func(c *Config) string { return c.Model.Ollama.Model }},
	{"ARK_API_KEY", func(c *Config) string { return c.Model.Ark.APIKey }},
	{"ARK_MODEL", func(c *Config) string { return c.Model.Ark.Model }},
	{"ARK_BASE_URL", func(c *Config) string { return c.Model.Ark.BaseURL }},
	{"RAG_TOP_K", func(c *Config) string { return intStr(c.RAG.TopK) }},
	{"RAG_CONTEXT_CHARS", func(c *Config) string { return intStr(c.RAG.ContextChars) }},
	{"RAG_FALLBACK_LIMIT", func(c *Config) string { return intStr(c.RAG.FallbackLimit) }},
	{"RAG_STRICT_EMBEDDINGS", func(c *Config) string { return boolStr(c.RAG.StrictEmbeddings) }},
	{"INGEST_TEMP_DIR", func(c *Config) string { return c.Ingest.TempDir }},
	{"INGEST_FAIL_FAST", func(c *Config) string { return boolStr(c.Ingest.FailFast) }},
	{"INGEST_CONCURRENCY", func(c *Config) string { return intStr(c.Ingest.Concurrency) }},
	{"SERVER_HOST", func(c *Config) string { return c.Server.Host }},
	{"SERVER_PORT", func(c *Config) string { return intStr(c.Server.Port) }},
	{"DOCRAG_API_KEY", func(c *Config) string { return c.Server.APIKey }},
	{"CORS_ALLOWED_ORIGINS", func(c *Config) string { return c.Server.CORSOrigins }},
	{"UPLOAD_MAX_BYTES", func(c *Config) string { return intStr(c.Server.MaxUploadBytes) }},
	{"SERVER_EXPOSE_ERRORS", func(c *Config) string { return boolPtrStr(c.Server.ExposeErrors) }},
	{"RATE_LIMIT_UPLOAD_RPS", func(c *Config) string { return float64Str(c.Server.RateLimits.Upload.RPS) }},
	{"RATE_LIMIT_UPLOAD_BURST", func(c *Config) string { return intStr(c.Server.RateLimits.Upload.Burst) }},
	{"RATE_LIMIT_QUERY_RPS", func(c *Config) string { return float64Str(c.Server.RateLimits.Query.RPS) }},
	{"RATE_LIMIT_QUERY_BURST", func(c *Config) string { return intStr(c.Server.RateLimits.Query.Burst) }},
	{"RATE_LIMIT_CLEAR_RPS", func(c *Config) string { return float64Str(c.Server.RateLimits.Clear.RPS) }},
	{"RATE_LIMIT_CLEAR_BURST", func(c *Config) string { return intStr(c.Server.RateLimits.Clear.Burst) }},
	{"REDIS_URL", func(c *Config) string { return c.Redis.URL }},
	{"EMBED_CACHE_TTL", func(c *Config) string { return durationStr(c.Redis.TTL) }},
	{"LOG_LEVEL", func(c *Config) string { return c.Logging.Level }},
	{"LOG_FORMAT", func(c *Config) string { return c.Logging.Format }},
	{"LANGFUSE_PUBLIC_KEY", func(c *Config) string { return c.Tracing.PublicKey }},
	{"LANGFUSE_SECRET_KEY", func(c *Config) string { return c.Tracing.SecretKey }},
	{"LANGFUSE_HOST", func(c *Config) string { return c.Tracing.Host }},
	{"OTEL_EXPORTER_OTLP_ENDPOINT", func(c *Config) string { return c.Tracing.OTLPEndpoint }},
}

// Load reads a YAML config file and applies non-empty values as environment
// variables. Existing env vars are never overwritten (env always wins).
// Returns the path that was loaded, or empty string if no file was found.
func Load(explicitPath string, log *slog.Logger) (string, error) {
	path, err := resolveConfigPath(explicitPath)
	if err != nil {
		return "", err
	}
	if path == "" {
		log.Debug("config: no YAML config file found, using env vars only")
		return "", nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("config: failed to read %s: %w", path, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return "", fmt.Errorf("config: failed to parse %s: %w", path, err)
	}

	applied := 0
	for _, m := range envMapping {
		yamlVal := m.value(&cfg)
		if yamlVal == "" {
			continue
		}
		if os.Getenv(m.envKey) != "" {
			continue // env var already set, do not override
		}
		if err := os.Setenv(m.envKey, yamlVal); err != nil {
			return "", fmt.Errorf("config: set %s: %w", m.envKey, err)
		}
		applied++
	}

	log.Info("config: loaded YAML config",
		slog.String("path", path),
		slog.Int("keys_applied", applied),
	)

	return path, nil
}

// resolveConfigPath returns the first config file path that exists. An
// explicit path that does not exist is an error; the implicit locations
// are optional.
func resolveConfigPath(explicit string) (string, error) {
	if explicit != "" {
		if _, err := os.Stat(explicit); err != nil {
			return "", fmt.Errorf("config: %w", err)
		}
		return explicit, nil
	}

	if envPath := os.Getenv("DOCRAG_CONFIG"); envPath != "" {
		if _, err := os.Stat(envPath); err == nil {
			return envPath, nil
		}
	}

	if _, err := os.Stat("docrag.yaml"); err == nil {
		return "docrag.yaml", nil
	}

	home, err := os.UserHomeDir()
	if err == nil {
		p := filepath.Join(home, ".docrag", "config.yaml")
		if _, err := os.Stat(p); err == nil {
			return p, nil
		}
	}

	return "", nil
}

// CheckRequired returns an error wrapping ErrMissingSecret that names every
// credential the selected store, embedder and chat model need but do not
// have. Backends are read from STORE_BACKEND, EMBEDDING_PROVIDER and
// MODEL_PROVIDER with the same defaults the factories use.
func CheckRequired() error {
	var missing []string
	need := func(keys ...string) {
		for _, k := range keys {
			if os.Getenv(k) != "" {
				return
			}
		}
		missing = append(missing, strings.Join(keys, " or "))
	}

	switch backendOrDefault("STORE_BACKEND", "supabase") {
	case "supabase":
		need("SUPABASE_URL")
		need("SUPABASE_SERVICE_KEY")
	case "postgres":
		need("DATABASE_URL")
	}

	switch backendOrDefault("EMBEDDING_PROVIDER", "gemini") {
	case "gemini":
		need("EMBEDDING_API_KEY", "GEMINI_API_KEY", "GOOGLE_API_KEY")
	case "openai":
		need("EMBEDDING_API_KEY", "OPENAI_API_KEY")
	case "azure":
		need("EMBEDDING_API_KEY", "AZURE_OPENAI_API_KEY")
	}

	switch backendOrDefault("MODEL_PROVIDER", "gemini") {
	case "gemini":
		need("GEMINI_API_KEY", "GOOGLE_API_KEY")
	case "openai":
		need("OPENAI_API_KEY")
	case "azure":
		need("AZURE_OPENAI_API_KEY")
	case "ark":
		need("ARK_API_KEY")
	}

	if len(missing) == 0 {
		return nil
	}
	// Deduplicate: the same key can be required by the embedder and the model.
	seen := make(map[string]bool, len(missing))
	uniq := missing[:0]
	for _, m := range missing {
		if !seen[m] {
			seen[m] = true
			uniq = append(uniq, m)
		}
	}
	return fmt.Errorf("%w: %s", ErrMissingSecret, strings.Join(uniq, ", "))
}

func backendOrDefault(key, fallback string) string {
	if v := strings.ToLower(strings.TrimSpace(os.Getenv(key))); v != "" {
		return v
	}
	return fallback
}

// intStr converts an int to string, returning "" for zero values.
func intStr(v int) string {
	if v == 0 {
		return ""
	}
	return strconv.Itoa(v)
}

// float32Str converts a float32 to string, returning "" for zero values.
func float32Str(v float32) string {
	if v == 0 {
		return ""
	}
	return strings.TrimRight(strings.TrimRight(fmt.Sprintf("%.4f", v), "0"), ".")
}

// float64Str formats a non-zero float64; zero means "not set".
func float64Str(v float64) string {
	if v == 0 {
		return ""
	}
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// boolStr converts a bool to string, returning "" for false.
func boolStr(v bool) string {
	if !v {
		return ""
	}
	return "true"
}

// boolPtrStr converts an optional bool, returning "" when unset.
func boolPtrStr(v *bool) string {
	if v == nil {
		return ""
	}
	return strconv.FormatBool(*v)
}

// durationStr converts a duration to string, returning "" for zero values.
func durationStr(d time.Duration) string {
	if d == 0 {
		return ""
	}
	return d.String()
}
