package provider

import (
	"context"
	"fmt"

	einoark "github.com/cloudwego/eino-ext/components/model/ark"
	einogemini "github.com/cloudwego/eino-ext/components/model/gemini"
	einoollama "github.com/cloudwego/eino-ext/components/model/ollama"
	einoopenai "github.com/cloudwego/eino-ext/components/model/openai"
	"github.com/cloudwego/eino/components/model"
	"google.golang.org/genai"
)

// newGemini constructs a chat model backed by Google Gemini (AI Studio). The
// same genai client backs the token-free health check.
func newGemini(ctx context.Context, cfg *Config) (model.BaseChatModel, HealthChecker, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.Gemini.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("create Gemini client: %w", err)
	}
	cm, err := einogemini.NewChatModel(ctx, &einogemini.Config{
		Client: client,
		Model:  cfg.Gemini.Model,
	})
	if err != nil {
		return nil, nil, err
	}
	return cm, &geminiHealthCheck{client: client, model: cfg.Gemini.Model}, nil
}

// newOpenAI constructs a chat model backed by the OpenAI API or any
// OpenAI-compatible server.
func newOpenAI(ctx context.Context, cfg *Config) (model.BaseChatModel, error) {
	maxTokens := cfg.Tuning.MaxTokens
	temp := cfg.Tuning.Temperature
	cm, err := einoopenai.NewChatModel(ctx, &einoopenai.ChatModelConfig{
		Model:       cfg.OpenAI.Model,
		APIKey:      cfg.OpenAI.APIKey,
		BaseURL:     cfg.OpenAI.BaseURL,
		MaxTokens:   &maxTokens,
		Temperature: &temp,
	})
	if err != nil {
		return nil, err
	}
	return cm, nil
}

// newAzure constructs a chat model backed by Azure OpenAI Service.
func newAzure(ctx context.Context, cfg *Config) (model.BaseChatModel, error) {
	maxTokens := cfg.Tuning.MaxTokens
	temp := cfg.Tuning.Temperature
	cm, err := einoopenai.NewChatModel(ctx, &einoopenai.ChatModelConfig{
		Model:       cfg.AzureOpenAI.Deployment,
		APIKey:      cfg.AzureOpenAI.APIKey,
		BaseURL:     cfg.AzureOpenAI.Endpoint,
		ByAzure:     true,
		APIVersion:  cfg.AzureOpenAI.APIVersion,
		MaxTokens:   &maxTokens,
		Temperature: &temp,
		// Keep the deployment name as-is; the default mapper strips dots
		// and breaks names like "gpt-4.1".
		AzureModelMapperFunc: func(model string) string { return model },
	})
	if err != nil {
		return nil, err
	}
	return cm, nil
}

// newOllama constructs a chat model backed by a local Ollama instance.
func newOllama(ctx context.Context, cfg *Config) (model.BaseChatModel, error) {
	cm, err := einoollama.NewChatModel(ctx, &einoollama.ChatModelConfig{
		BaseURL: cfg.Ollama.Host,
		Model:   cfg.Ollama.Model,
	})
	if err != nil {
		return nil, err
	}
	return cm, nil
}

// newArk constructs a chat model backed by Volcengine Ark.
func newArk(ctx context.Context, cfg *Config) (model.BaseChatModel, error) {
	maxTokens := cfg.Tuning.MaxTokens
	temp := cfg.Tuning.Temperature
	cm, err := einoark.NewChatModel(ctx, &einoark.ChatModelConfig{
		Model:       cfg.Ark.Model,
		APIKey:      cfg.Ark.APIKey,
		BaseURL:     cfg.Ark.BaseURL,
		MaxTokens:   &maxTokens,
		Temperature: &temp,
	})
	if err != nil {
		return nil, err
	}
	return cm, nil
}
