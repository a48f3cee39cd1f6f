package commands

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cloudwego/eino/callbacks"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/54b3r/docrag-go/internal/logging"
	"github.com/54b3r/docrag-go/internal/server"
	"github.com/54b3r/docrag-go/internal/tracing"
)

// NewServeCmd constructs the `docrag serve` command, which starts the HTTP
// API for uploading PDFs and asking questions.
func NewServeCmd() *cobra.Command {
	var host string
	var port int

	cmd := &cobra.Command{
		Use:         "serve",
		Short:       "Start the docrag HTTP API",
		Annotations: needsSecrets(),
		Long: `Start the docrag HTTP API.

Routes:
  GET  /         liveness message
  POST /upload   multipart form, field "pdfs" (repeatable)
  POST /query    {"query": "..."} -> {"answer": "..."}
  POST /clear    delete every stored document
  GET  /health   liveness check
  GET  /ready    dependency readiness check
  GET  /metrics  Prometheus metrics

Examples:
  docrag serve
  docrag serve --port 9090
  STORE_BACKEND=sqlite MODEL_PROVIDER=ollama EMBEDDING_PROVIDER=ollama docrag serve`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			log := logging.New()
			ctx = logging.WithLogger(ctx, log)

			// Flags beat env; env (including .env and YAML) beats flag defaults.
			if !cmd.Flags().Changed("host") {
				host = getEnvOrDefault("SERVER_HOST", host)
			}
			if !cmd.Flags().Changed("port") {
				port = getEnvInt("SERVER_PORT", port)
			}

			// Langfuse tracing of model calls is opt-in, no-op if keys are absent.
			handler, flush, ok := tracing.SetupLangfuse()
			if ok {
				callbacks.AppendGlobalHandlers(handler)
				defer flush()
				log.Info("langfuse tracing enabled")
			} else {
				log.Info("langfuse tracing disabled", slog.String("reason", "LANGFUSE_PUBLIC_KEY not set"))
			}

			shutdownTracing, ok, err := tracing.SetupOTel(ctx, "docrag")
			if err != nil {
				return fail("serve", err)
			}
			if ok {
				defer func() {
					sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
					defer cancel()
					if err := shutdownTracing(sctx); err != nil {
						log.Warn("otel: shutdown failed", slog.Any("error", err))
					}
				}()
				log.Info("otel tracing enabled", slog.String("endpoint", os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT")))
			}

			c, err := buildComponents(ctx, log, prometheus.DefaultRegisterer, true)
			if err != nil {
				return fail("serve", err)
			}
			defer c.Close(log)

			pingers := []server.Pinger{
				server.NewStorePinger(c.Store, c.Backend),
				server.NewLLMPinger(c.Chat.Health, string(c.Chat.Backend)),
			}

			srv, err := server.New(server.Deps{
				Engine:   c.Engine,
				Ingester: c.Pipeline,
				Store:    c.Store,
			}, &server.Config{
				Host:           host,
				Port:           port,
				Logger:         log,
				Pingers:        pingers,
				RateLimits: map[string]server.RateLimit{
					"upload": {RPS: getEnvFloat("RATE_LIMIT_UPLOAD_RPS", 0), Burst: getEnvInt("RATE_LIMIT_UPLOAD_BURST", 0)},
					"query":  {RPS: getEnvFloat("RATE_LIMIT_QUERY_RPS", 0), Burst: getEnvInt("RATE_LIMIT_QUERY_BURST", 0)},
					"clear":  {RPS: getEnvFloat("RATE_LIMIT_CLEAR_RPS", 0), Burst: getEnvInt("RATE_LIMIT_CLEAR_BURST", 0)},
				},
				APIKey:         os.Getenv("DOCRAG_API_KEY"),
				AllowedOrigins: splitList(getEnvOrDefault("CORS_ALLOWED_ORIGINS", "*")),
				HideErrors:     !getEnvBool("SERVER_EXPOSE_ERRORS", true),
				MaxUploadBytes: int64(getEnvInt("UPLOAD_MAX_BYTES", 0)),
			})
			if err != nil {
				return fail("serve", fmt.Errorf("create server: %w", err))
			}

			return srv.Start(ctx)
		},
	}

	cmd.Flags().StringVar(&host, "host", "127.0.0.1", "Host address to bind to (env: SERVER_HOST)")
	cmd.Flags().IntVarP(&port, "port", "p", 8000, "TCP port to listen on (env: SERVER_PORT)")

	return cmd
}
