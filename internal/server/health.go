package server

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/54b3r/docrag-go/internal/logging"
)

// checkTimeout bounds each dependency check behind GET /ready.
const checkTimeout = 5 * time.Second

// Pinger is the interface implemented by any dependency that can report its
// own reachability. Each implementation must return nil when the dependency
// is healthy and a descriptive error otherwise.
// Implementations must be safe to call from multiple goroutines.
type Pinger interface {
	// Ping checks whether the dependency is reachable within the given context.
	// Returns nil on success, a descriptive error on failure.
	Ping(ctx context.Context) error

	// Name returns a short label used in readiness responses
	// (e.g. "store:supabase", "llm:gemini").
	Name() string
}

// readyCheck holds the per-dependency result of a readiness check.
type readyCheck struct {
	// Name is the dependency label.
	Name string `json:"name"`
	// OK is true when the dependency responded successfully.
	OK bool `json:"ok"`
	// Error contains the failure reason when OK is false. Empty on success.
	Error string `json:"error,omitempty"`
}

// readyResponse is the JSON body returned by GET /ready.
type readyResponse struct {
	// Ready is true only when every dependency check succeeded.
	Ready bool `json:"ready"`
	// Checks contains the per-dependency check results.
	Checks []readyCheck `json:"checks"`
}

// handleReady handles GET /ready for readiness checks.
// It checks every registered Pinger concurrently, each with a short timeout,
// and returns 200 when all dependencies are reachable or 503 when any check
// fails. Checks are reported in registration order.
// Unlike /health (liveness), this endpoint reflects actual dependency state.
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	log := logging.FromContext(r.Context())

	checks := make([]readyCheck, len(s.pingers))
	var wg sync.WaitGroup
	for i, p := range s.pingers {
		wg.Go(func() {
			checkCtx, cancel := context.WithTimeout(r.Context(), checkTimeout)
			defer cancel()
			err := p.Ping(checkCtx)

			checks[i] = readyCheck{Name: p.Name(), OK: err == nil}
			if err != nil {
				checks[i].Error = err.Error()
				log.Warn("readiness check failed",
					slog.String("dependency", p.Name()),
					slog.Any("error", err),
				)
			}
		})
	}
	wg.Wait()

	resp := readyResponse{Ready: true, Checks: checks}
	for _, c := range checks {
		if !c.OK {
			resp.Ready = false
		}
	}

	status := http.StatusOK
	if !resp.Ready {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, r, status, resp)
}
