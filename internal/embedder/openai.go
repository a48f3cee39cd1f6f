package embedder

import (
	"context"
	"errors"
	"fmt"

	openai "github.com/sashabaranov/go-openai"
)

// OpenAIConfig holds the settings for constructing an OpenAIEmbedder.
type OpenAIConfig struct {
	// BaseURL is the API base URL. For OpenAI: "https://api.openai.com/v1".
	// For Azure: "https://<resource>.openai.azure.com".
	BaseURL string
	// APIKey is the authentication key.
	APIKey string
	// Model is the embedding model name, or the deployment name on Azure.
	Model string
	// Dimensions is the desired vector length (0 = model default).
	Dimensions int
	// Azure enables Azure OpenAI mode (api-key header + api-version param).
	Azure bool
	// APIVersion is the Azure OpenAI API version. Ignored when Azure is false.
	APIVersion string
}

// OpenAIEmbedder embeds text with any OpenAI-compatible embeddings API.
// OpenAI models are symmetric, so the intent is ignored.
// It is safe for concurrent use.
type OpenAIEmbedder struct {
	// client is the go-openai client.
	client *openai.Client
	// model is the embedding model name.
	model openai.EmbeddingModel
	// dimensions is the desired embedding vector length (0 = model default).
	dimensions int
}

// NewOpenAIEmbedder constructs an OpenAIEmbedder from the given config.
func NewOpenAIEmbedder(cfg *OpenAIConfig) *OpenAIEmbedder {
	var clientCfg openai.ClientConfig
	if cfg.Azure {
		clientCfg = openai.DefaultAzureConfig(cfg.APIKey, cfg.BaseURL)
		if cfg.APIVersion != "" {
			clientCfg.APIVersion = cfg.APIVersion
		}
	} else {
		clientCfg = openai.DefaultConfig(cfg.APIKey)
		if cfg.BaseURL != "" {
			clientCfg.BaseURL = cfg.BaseURL
		}
	}
	return &OpenAIEmbedder{
		client:     openai.NewClientWithConfig(clientCfg),
		model:      openai.EmbeddingModel(cfg.Model),
		dimensions: cfg.Dimensions,
	}
}

// Embed returns the embedding of text.
func (e *OpenAIEmbedder) Embed(ctx context.Context, text string, _ Intent) ([]float32, error) {
	req := openai.EmbeddingRequest{
		Input:          []string{text},
		Model:          e.model,
		EncodingFormat: openai.EmbeddingEncodingFormatFloat,
	}
	if e.dimensions > 0 {
		req.Dimensions = e.dimensions
	}

	resp, err := e.client.CreateEmbeddings(ctx, req)
	if err != nil {
		var apiErr *openai.APIError
		if errors.As(err, &apiErr) {
			return nil, fmt.Errorf("openai embedder: API error %d: %s", apiErr.HTTPStatusCode, apiErr.Message)
		}
		return nil, fmt.Errorf("openai embedder: request failed: %w", err)
	}
	if len(resp.Data) == 0 || len(resp.Data[0].Embedding) == 0 {
		return nil, ErrEmptyEmbedding
	}
	return resp.Data[0].Embedding, nil
}
