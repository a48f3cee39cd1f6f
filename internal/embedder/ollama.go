package embedder

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// OllamaEmbedder implements Embedder using the Ollama /api/embed endpoint.
// It is safe for concurrent use. No API key is required; Ollama runs locally.
type OllamaEmbedder struct {
	// host is the Ollama server base URL (e.g. "http://localhost:11434").
	host string
	// model is the embedding model name (e.g. "nomic-embed-text").
	model string
	// prefixed is true for nomic models, which expect task prefixes.
	prefixed bool
	// client is the shared HTTP client.
	client *http.Client
}

// OllamaConfig holds the settings for constructing an OllamaEmbedder.
type OllamaConfig struct {
	// Host is the Ollama server base URL (e.g. "http://localhost:11434").
	Host string
	// Model is the embedding model name (e.g. "nomic-embed-text").
	Model string
}

// NewOllamaEmbedder constructs an OllamaEmbedder from the given config.
func NewOllamaEmbedder(cfg *OllamaConfig) *OllamaEmbedder {
	return &OllamaEmbedder{
		host:     strings.TrimRight(cfg.Host, "/"),
		model:    cfg.Model,
		prefixed: strings.Contains(strings.ToLower(cfg.Model), "nomic"),
		client:   &http.Client{Timeout: 60 * time.Second},
	}
}

// ollamaEmbedRequest is the JSON body sent to the Ollama /api/embed endpoint.
type ollamaEmbedRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

// ollamaEmbedResponse is the JSON body returned from the Ollama /api/embed endpoint.
type ollamaEmbedResponse struct {
	Embeddings [][]float32 `json:"embeddings"`
	Error      string      `json:"error,omitempty"`
}

// Embed returns the embedding of text. nomic models get the
// "search_document: " or "search_query: " prefix they were trained with.
func (e *OllamaEmbedder) Embed(ctx context.Context, text string, intent Intent) ([]float32, error) {
	if e.prefixed {
		if intent == IntentQuery {
			text = "search_query: " + text
		} else {
			text = "search_document: " + text
		}
	}

	payload, err := json.Marshal(ollamaEmbedRequest{Model: e.model, Input: []string{text}})
	if err != nil {
		return nil, fmt.Errorf("ollama embedder: marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.host+"/api/embed", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("ollama embedder: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("ollama embedder: request failed: %w", err)
	}
	defer resp.Body.Close()

	var result ollamaEmbedResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("ollama embedder: decode response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg := fmt.Sprintf("HTTP %d", resp.StatusCode)
		if result.Error != "" {
			msg = result.Error
		}
		return nil, fmt.Errorf("ollama embedder: %s", msg)
	}

	if len(result.Embeddings) == 0 || len(result.Embeddings[0]) == 0 {
		return nil, ErrEmptyEmbedding
	}
	return result.Embeddings[0], nil
}
