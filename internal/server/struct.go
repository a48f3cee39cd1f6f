package server

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/54b3r/docrag-go/internal/ingestion"
	"github.com/54b3r/docrag-go/internal/store"
)

// Config holds the HTTP server configuration.
type Config struct {
	// Host is the address to bind to (default: 127.0.0.1).
	Host string
	// Port is the TCP port to listen on (default: 8000).
	Port int
	// ReadTimeout is the maximum duration for reading the request.
	ReadTimeout time.Duration
	// WriteTimeout is the maximum duration for writing the response. It
	// must cover embedding and generation for /upload and /query.
	WriteTimeout time.Duration
	// ShutdownTimeout is the maximum duration for a graceful shutdown.
	ShutdownTimeout time.Duration
	// Logger is the structured logger used by the server and its handlers.
	// If nil, slog.Default() is used.
	Logger *slog.Logger
	// Pingers is the ordered list of dependency checks run by GET /ready.
	// If empty, /ready returns 200 with no checks.
	Pingers []Pinger
	// RateLimits sets the per-IP token bucket of each protected route,
	// keyed "upload", "query" and "clear". Missing routes and zero fields
	// take the defaults: upload 1 rps burst 3, query 10 rps burst 20,
	// clear 1 rps burst 2.
	RateLimits map[string]RateLimit
	// APIKey is the Bearer token required on /upload, /query and /clear.
	// If empty, authentication is disabled.
	APIKey string
	// AllowedOrigins lists the CORS origins allowed to call the API.
	// Defaults to ["*"].
	AllowedOrigins []string
	// HideErrors replaces internal error messages in 500 responses with a
	// generic message.
	HideErrors bool
	// MaxUploadBytes caps the size of a /upload request body.
	// Defaults to 50 MiB if zero.
	MaxUploadBytes int64
	// MetricsRegistry receives the server metrics. Defaults to
	// prometheus.DefaultRegisterer.
	MetricsRegistry prometheus.Registerer
	// MetricsGatherer is exposed on GET /metrics. Defaults to
	// prometheus.DefaultGatherer.
	MetricsGatherer prometheus.Gatherer
}

// Answerer answers a question from the stored documents.
// *rag.Engine satisfies it; tests inject a fake.
type Answerer interface {
	Answer(ctx context.Context, query string) (string, error)
}

// Ingester stores a batch of uploaded files.
// *ingestion.Pipeline satisfies it; tests inject a fake.
type Ingester interface {
	IngestBatch(ctx context.Context, uploads []ingestion.Upload) []ingestion.Result
}

// Deps are the components the handlers call.
type Deps struct {
	Engine   Answerer
	Ingester Ingester
	Store    store.Deleter
}

// Server is the HTTP server exposing upload, query and clear.
type Server struct {
	// engine answers /query requests.
	engine Answerer
	// ingester processes /upload requests.
	ingester Ingester
	// store is emptied by /clear.
	store store.Deleter
	// cfg holds the resolved server configuration.
	cfg *Config
	// httpServer is the underlying net/http server.
	httpServer *http.Server
	// log is the structured logger for this server instance.
	log *slog.Logger
	// pingers is the ordered list of dependency checks for GET /ready.
	pingers []Pinger
	// metrics holds the Prometheus metrics for this server instance.
	metrics *serverMetrics
	// stopRL stops the rate limiter's background eviction goroutine on shutdown.
	stopRL func()
}

// queryRequest is the JSON body for POST /query.
type queryRequest struct {
	// Query is the user's natural language question.
	Query string `json:"query"`
}

// queryResponse is the JSON response for POST /query.
type queryResponse struct {
	Answer string `json:"answer"`
}

// statusResponse is the JSON response for GET / and POST /clear.
type statusResponse struct {
	Message string `json:"message"`
	Status  string `json:"status"`
	// Count is only set by /clear.
	Count *int `json:"count,omitempty"`
}

// uploadResponse is the JSON response for POST /upload.
type uploadResponse struct {
	Message string             `json:"message"`
	Results []ingestion.Result `json:"results"`
}

// errorResponse is the JSON body of every 4xx/5xx response.
type errorResponse struct {
	Error string `json:"error"`
}
