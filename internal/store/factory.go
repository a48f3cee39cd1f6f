package store

import (
	"context"
	"fmt"
	"os"
	"strconv"
)

// Backend names accepted by STORE_BACKEND.
const (
	BackendSupabase = "supabase"
	BackendPostgres = "postgres"
	BackendQdrant   = "qdrant"
	BackendSQLite   = "sqlite"
)

// NewFromEnv constructs the Store selected by STORE_BACKEND (default:
// supabase). dims is the embedding size, used where the backend must size a
// vector column or collection up front.
//
//	supabase: SUPABASE_URL, SUPABASE_SERVICE_KEY, SUPABASE_TABLE, SUPABASE_RPC
//	postgres: DATABASE_URL, POSTGRES_MAX_CONNS
//	qdrant:   QDRANT_HOST, QDRANT_PORT, QDRANT_COLLECTION, QDRANT_API_KEY, QDRANT_TLS
//	sqlite:   SQLITE_PATH (default: ~/.docrag/documents.db)
func NewFromEnv(ctx context.Context, dims int) (Store, error) {
	backend := getEnvOrDefault("STORE_BACKEND", BackendSupabase)

	switch backend {
	case BackendSupabase:
		return NewSupabaseStore(&SupabaseConfig{
			URL:        os.Getenv("SUPABASE_URL"),
			ServiceKey: os.Getenv("SUPABASE_SERVICE_KEY"),
			Table:      os.Getenv("SUPABASE_TABLE"),
			RPC:        os.Getenv("SUPABASE_RPC"),
		})

	case BackendPostgres:
		dsn := os.Getenv("DATABASE_URL")
		if dsn == "" {
			return nil, fmt.Errorf("store: postgres requires DATABASE_URL")
		}
		return NewPostgresStore(ctx, &PostgresConfig{
			DSN:        dsn,
			Dimensions: dims,
			MaxConns:   int32(getEnvInt("POSTGRES_MAX_CONNS", 0)),
		})

	case BackendQdrant:
		return NewQdrantStore(ctx, &QdrantConfig{
			Host:       getEnvOrDefault("QDRANT_HOST", "localhost"),
			Port:       getEnvInt("QDRANT_PORT", 6334),
			Collection: getEnvOrDefault("QDRANT_COLLECTION", "documents"),
			VectorSize: uint64(dims),
			APIKey:     os.Getenv("QDRANT_API_KEY"),
			UseTLS:     os.Getenv("QDRANT_TLS") == "true",
		})

	case BackendSQLite:
		path := os.Getenv("SQLITE_PATH")
		if path == "" {
			p, err := DefaultSQLitePath()
			if err != nil {
				return nil, err
			}
			path = p
		}
		return OpenSQLite(path)

	default:
		return nil, fmt.Errorf("store: unknown backend %q (valid: supabase, postgres, qdrant, sqlite)", backend)
	}
}

// getEnvOrDefault returns the named environment variable, or fallback if it
// is unset or empty.
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
