package server

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/54b3r/docrag-go/internal/logging"
)

// requestIDHeader carries the request ID in both directions.
const requestIDHeader = "X-Request-ID"

// maxRequestIDLen bounds client-supplied request IDs.
const maxRequestIDLen = 128

// requestLogger is an [http.Handler] middleware that:
//  1. Reuses the client's X-Request-ID or generates a UUID.
//  2. Injects a child [*slog.Logger] carrying that ID into the request context.
//  3. Logs method, path, status code, and latency on completion.
func requestLogger(base *slog.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := r.Header.Get(requestIDHeader)
		if reqID == "" || len(reqID) > maxRequestIDLen {
			reqID = uuid.NewString()
		}
		w.Header().Set(requestIDHeader, reqID)

		log := base.With(
			slog.String("request_id", reqID),
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
		)

		ctx := logging.WithLogger(r.Context(), log)
		r = r.WithContext(ctx)

		rw := &responseWriter{ResponseWriter: w, status: http.StatusOK}

		start := time.Now()
		next.ServeHTTP(rw, r)
		elapsed := time.Since(start)

		log.Info("request",
			slog.Int("status", rw.status),
			slog.Duration("duration", elapsed),
		)
	})
}

// metricsMiddleware records request count and latency per route pattern.
// It must sit directly outside the mux so that r.Pattern is populated.
func (s *Server) metricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rw := &responseWriter{ResponseWriter: w, status: http.StatusOK}

		start := time.Now()
		next.ServeHTTP(rw, r)

		handler := r.Pattern
		if handler == "" {
			handler = "unmatched"
		}
		s.metrics.httpRequestsTotal.WithLabelValues(r.Method, handler, strconv.Itoa(rw.status)).Inc()
		s.metrics.httpDurationSeconds.WithLabelValues(r.Method, handler).Observe(time.Since(start).Seconds())
	})
}

// responseWriter wraps [http.ResponseWriter] to capture the status code
// written by the handler so the middleware can log it.
type responseWriter struct {
	http.ResponseWriter
	// status is the HTTP status code sent to the client.
	status int
	// wrote is set once the header has been sent.
	wrote bool
}

// WriteHeader captures the status code before delegating to the underlying writer.
func (rw *responseWriter) WriteHeader(code int) {
	if !rw.wrote {
		rw.status = code
		rw.wrote = true
	}
	rw.ResponseWriter.WriteHeader(code)
}

// Write marks the header as sent with the implicit 200.
func (rw *responseWriter) Write(b []byte) (int, error) {
	rw.wrote = true
	return rw.ResponseWriter.Write(b)
}

// Unwrap lets [http.ResponseController] reach the underlying writer.
func (rw *responseWriter) Unwrap() http.ResponseWriter { return rw.ResponseWriter }
