package server

import (
	"context"
	"fmt"

	"github.com/54b3r/docrag-go/internal/provider"
)

// StorePinger checks the document store.
type StorePinger struct {
	// store is any datastore with a Ping method.
	store interface{ Ping(ctx context.Context) error }
	// backend names the store in readiness responses (e.g. "supabase").
	backend string
}

// NewStorePinger constructs a StorePinger for s.
func NewStorePinger(s interface{ Ping(ctx context.Context) error }, backend string) *StorePinger {
	return &StorePinger{store: s, backend: backend}
}

// Name returns the dependency label used in readiness responses.
func (p *StorePinger) Name() string { return "store:" + p.backend }

// Ping checks that the store is reachable.
func (p *StorePinger) Ping(ctx context.Context) error {
	if err := p.store.Ping(ctx); err != nil {
		return fmt.Errorf("store ping failed: %w", err)
	}
	return nil
}

// LLMPinger checks a chat model backend through its zero-cost health check,
// so readiness checks never consume tokens.
type LLMPinger struct {
	// healthCheck hits a free listing endpoint of the backend.
	healthCheck provider.HealthChecker
	// name identifies the backend in readiness responses (e.g. "gemini").
	name string
}

// NewLLMPinger constructs an LLMPinger for the given health checker and
// backend name.
func NewLLMPinger(hc provider.HealthChecker, name string) *LLMPinger {
	return &LLMPinger{healthCheck: hc, name: name}
}

// Name returns the backend label used in readiness responses.
func (p *LLMPinger) Name() string { return "llm:" + p.name }

// Ping runs the backend health check. A backend without one is reported
// healthy.
func (p *LLMPinger) Ping(ctx context.Context) error {
	if p.healthCheck == nil {
		return nil
	}
	if err := p.healthCheck.HealthCheck(ctx); err != nil {
		return fmt.Errorf("%s health check failed: %w", p.name, err)
	}
	return nil
}
