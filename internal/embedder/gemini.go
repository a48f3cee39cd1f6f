package embedder

import (
	"context"
	"fmt"

	"google.golang.org/genai"
)

// Gemini task types for asymmetric retrieval.
const (
	geminiTaskDocument = "RETRIEVAL_DOCUMENT"
	geminiTaskQuery    = "RETRIEVAL_QUERY"
)

// GeminiConfig holds the settings for constructing a GeminiEmbedder.
type GeminiConfig struct {
	// APIKey is the Gemini API key.
	APIKey string
	// Model is the embedding model (e.g. "text-embedding-004").
	Model string
	// Dimensions requests a truncated output size. Zero keeps the model default.
	Dimensions int
	// BaseURL overrides the API endpoint.
	BaseURL string
}

// GeminiEmbedder embeds text with the Gemini embedContent API through the
// google.golang.org/genai SDK. It is safe for concurrent use.
type GeminiEmbedder struct {
	// client is the shared genai client.
	client *genai.Client
	// model is the embedding model name.
	model string
	// dims is the requested output dimensionality (0 = model default).
	dims int
}

// NewGeminiEmbedder constructs a GeminiEmbedder.
func NewGeminiEmbedder(ctx context.Context, cfg *GeminiConfig) (*GeminiEmbedder, error) {
	cc := &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	}
	if cfg.BaseURL != "" {
		cc.HTTPOptions = genai.HTTPOptions{BaseURL: cfg.BaseURL}
	}
	client, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, fmt.Errorf("gemini embedder: create client: %w", err)
	}
	return &GeminiEmbedder{client: client, model: cfg.Model, dims: cfg.Dimensions}, nil
}

// Embed returns the embedding of text using the retrieval task type that
// matches intent.
func (e *GeminiEmbedder) Embed(ctx context.Context, text string, intent Intent) ([]float32, error) {
	cfg := &genai.EmbedContentConfig{TaskType: geminiTaskType(intent)}
	if e.dims > 0 {
		d := int32(e.dims)
		cfg.OutputDimensionality = &d
	}

	resp, err := e.client.Models.EmbedContent(ctx, e.model, genai.Text(text), cfg)
	if err != nil {
		return nil, fmt.Errorf("gemini embedder: embed content: %w", err)
	}
	if resp == nil || len(resp.Embeddings) == 0 || len(resp.Embeddings[0].Values) == 0 {
		return nil, ErrEmptyEmbedding
	}
	return resp.Embeddings[0].Values, nil
}

// geminiTaskType maps an Intent to its Gemini task type.
func geminiTaskType(intent Intent) string {
	if intent == IntentQuery {
		return geminiTaskQuery
	}
	return geminiTaskDocument
}
