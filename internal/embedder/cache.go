package embedder

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"

	"github.com/54b3r/docrag-go/internal/logging"
	"github.com/54b3r/docrag-go/internal/vector"
)

// cacheKeyPrefix namespaces embedding entries in a shared Redis.
const cacheKeyPrefix = "docrag:emb:"

// errCacheMiss is returned by a kv when the key is absent.
var errCacheMiss = errors.New("embedder: cache miss")

// kv is the slice of a key-value store the cache needs.
type kv interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

// CachedEmbedder is a read-through cache in front of another Embedder.
// Cache failures are logged and never fail the embed call.
type CachedEmbedder struct {
	inner     Embedder
	store     kv
	namespace string
	ttl       time.Duration
	// lookups counts cache lookups by result ("hit", "miss", "error"). May be nil.
	lookups *prometheus.CounterVec
}

// NewCachedEmbedder wraps inner. namespace must identify the model and its
// output size so that switching models never serves stale vectors.
func NewCachedEmbedder(inner Embedder, store kv, namespace string, ttl time.Duration, lookups *prometheus.CounterVec) *CachedEmbedder {
	return &CachedEmbedder{
		inner:     inner,
		store:     store,
		namespace: namespace,
		ttl:       ttl,
		lookups:   lookups,
	}
}

// Embed returns the cached vector for (namespace, intent, text) or calls the
// inner embedder and stores the result.
func (c *CachedEmbedder) Embed(ctx context.Context, text string, intent Intent) ([]float32, error) {
	key := c.key(text, intent)
	log := logging.FromContext(ctx)

	raw, err := c.store.Get(ctx, key)
	switch {
	case err == nil:
		if vec, derr := vector.UnmarshalBinary(raw); derr == nil && len(vec) > 0 {
			c.count("hit")
			return vec, nil
		}
		c.count("error")
		log.Warn("embedder: corrupt cache entry", slog.String("key", key))
	case errors.Is(err, errCacheMiss):
		c.count("miss")
	default:
		c.count("error")
		log.Warn("embedder: cache get failed", slog.String("error", err.Error()))
	}

	vec, err := c.inner.Embed(ctx, text, intent)
	if err != nil {
		return nil, err
	}

	if err := c.store.Set(ctx, key, vector.MarshalBinary(vec), c.ttl); err != nil {
		log.Warn("embedder: cache set failed", slog.String("error", err.Error()))
	}
	return vec, nil
}

func (c *CachedEmbedder) key(text string, intent Intent) string {
	h := sha256.Sum256([]byte(text))
	return cacheKeyPrefix + c.namespace + ":" + intent.String() + ":" + hex.EncodeToString(h[:])
}

func (c *CachedEmbedder) count(result string) {
	if c.lookups != nil {
		c.lookups.WithLabelValues(result).Inc()
	}
}

// RedisKV adapts a go-redis client to the cache's key-value interface.
type RedisKV struct {
	client *redis.Client
}

// NewRedisKV parses a redis:// URL and returns a connected RedisKV.
func NewRedisKV(ctx context.Context, url string) (*RedisKV, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("embedder: parse REDIS_URL: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("embedder: redis ping: %w", err)
	}
	return &RedisKV{client: client}, nil
}

// Get returns the value at key, or errCacheMiss.
func (r *RedisKV) Get(ctx context.Context, key string) ([]byte, error) {
	b, err := r.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, errCacheMiss
	}
	return b, err
}

// Set stores value at key with the given TTL (0 = no expiry).
func (r *RedisKV) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return r.client.Set(ctx, key, value, ttl).Err()
}

// Ping checks the Redis connection.
func (r *RedisKV) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

// Close closes the Redis client.
func (r *RedisKV) Close() error {
	return r.client.Close()
}
