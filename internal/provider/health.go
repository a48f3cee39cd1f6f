package provider

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"google.golang.org/genai"
)

// HealthChecker checks a backend without generating tokens.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// httpHealthCheck issues a GET against a free listing endpoint.
type httpHealthCheck struct {
	url    string
	header string
	value  string
	client *http.Client
}

func newHTTPHealthCheck(url, header, value string) *httpHealthCheck {
	return &httpHealthCheck{
		url:    url,
		header: header,
		value:  value,
		client: &http.Client{Timeout: 10 * time.Second},
	}
}

// HealthCheck returns nil on any 2xx response.
func (h *httpHealthCheck) HealthCheck(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, h.url, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if h.header != "" {
		req.Header.Set(h.header, h.value)
	}
	resp, err := h.client.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("HTTP %d", resp.StatusCode)
	}
	return nil
}

// geminiHealthCheck fetches the model's metadata, which is free.
type geminiHealthCheck struct {
	client *genai.Client
	model  string
}

func (g *geminiHealthCheck) HealthCheck(ctx context.Context) error {
	if _, err := g.client.Models.Get(ctx, g.model, nil); err != nil {
		return fmt.Errorf("get model %s: %w", g.model, err)
	}
	return nil
}
