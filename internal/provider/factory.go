package provider

import (
	"context"
	"fmt"
	"os"
	"strconv"

	"github.com/cloudwego/eino/components/model"
)

// Default model per backend.
const (
	defaultGeminiModel = "gemini-2.5-flash"
	defaultOpenAIModel = "gpt-4o-mini"
	defaultOllamaModel = "llama3.2"
)

// ChatModel is a constructed chat model plus what it resolved to.
type ChatModel struct {
	// Model is the eino chat model.
	Model model.BaseChatModel
	// Backend is the resolved backend.
	Backend Backend
	// Name is the resolved model or deployment name.
	Name string
	// Health checks the backend without spending tokens. Nil when the
	// backend has no free endpoint to check.
	Health HealthChecker
}

// ConfigFromEnv reads the provider configuration from environment variables.
//
//	MODEL_PROVIDER = gemini | openai | azure | ollama | ark (default: gemini)
//
//	Gemini:  GEMINI_API_KEY (or GOOGLE_API_KEY), GEMINI_MODEL (default: gemini-2.5-flash)
//	OpenAI:  OPENAI_API_KEY, OPENAI_MODEL (default: gpt-4o-mini), OPENAI_BASE_URL
//	Azure:   AZURE_OPENAI_API_KEY, AZURE_OPENAI_ENDPOINT, AZURE_OPENAI_DEPLOYMENT,
//	         AZURE_OPENAI_API_VERSION (default: 2024-02-01)
//	Ollama:  OLLAMA_HOST (default: http://localhost:11434), OLLAMA_MODEL (default: llama3.2)
//	Ark:     ARK_API_KEY, ARK_MODEL, ARK_BASE_URL
//
//	Shared:  MODEL_MAX_TOKENS (default: 2048), MODEL_TEMPERATURE (default: 0.2)
func ConfigFromEnv() *Config {
	geminiKey := os.Getenv("GEMINI_API_KEY")
	if geminiKey == "" {
		geminiKey = os.Getenv("GOOGLE_API_KEY")
	}
	return &Config{
		Backend: Backend(getEnvOrDefault("MODEL_PROVIDER", string(BackendGemini))),
		Gemini: ProviderGemini{
			APIKey: geminiKey,
			Model:  getEnvOrDefault("GEMINI_MODEL", defaultGeminiModel),
		},
		OpenAI: ProviderOpenAI{
			APIKey:  os.Getenv("OPENAI_API_KEY"),
			Model:   getEnvOrDefault("OPENAI_MODEL", defaultOpenAIModel),
			BaseURL: os.Getenv("OPENAI_BASE_URL"),
		},
		AzureOpenAI: ProviderAzureOpenAI{
			APIKey:     os.Getenv("AZURE_OPENAI_API_KEY"),
			Endpoint:   os.Getenv("AZURE_OPENAI_ENDPOINT"),
			Deployment: os.Getenv("AZURE_OPENAI_DEPLOYMENT"),
			APIVersion: getEnvOrDefault("AZURE_OPENAI_API_VERSION", "2024-02-01"),
		},
		Ollama: ProviderOllama{
			Host:  getEnvOrDefault("OLLAMA_HOST", "http://localhost:11434"),
			Model: getEnvOrDefault("OLLAMA_MODEL", defaultOllamaModel),
		},
		Ark: ProviderArk{
			APIKey:  os.Getenv("ARK_API_KEY"),
			Model:   os.Getenv("ARK_MODEL"),
			BaseURL: os.Getenv("ARK_BASE_URL"),
		},
		Tuning: SharedTuning{
			MaxTokens:   getEnvInt("MODEL_MAX_TOKENS", 2048),
			Temperature: getEnvFloat32("MODEL_TEMPERATURE", 0.2),
		},
	}
}

// NewFromEnv constructs a ChatModel from ConfigFromEnv.
func NewFromEnv(ctx context.Context) (*ChatModel, error) {
	return New(ctx, ConfigFromEnv())
}

// New constructs a ChatModel from an explicit Config. It validates the
// config first so callers get a clear error at startup rather than on the
// first request.
func New(ctx context.Context, cfg *Config) (*ChatModel, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	var (
		m      model.BaseChatModel
		health HealthChecker
		err    error
	)
	switch cfg.Backend {
	case BackendGemini:
		m, health, err = newGemini(ctx, cfg)
	case BackendOpenAI:
		m, err = newOpenAI(ctx, cfg)
		base := cfg.OpenAI.BaseURL
		if base == "" {
			base = "https://api.openai.com/v1"
		}
		health = newHTTPHealthCheck(base+"/models", "Authorization", "Bearer "+cfg.OpenAI.APIKey)
	case BackendAzure:
		m, err = newAzure(ctx, cfg)
		health = newHTTPHealthCheck(
			cfg.AzureOpenAI.Endpoint+"/openai/models?api-version="+cfg.AzureOpenAI.APIVersion,
			"api-key", cfg.AzureOpenAI.APIKey)
	case BackendOllama:
		m, err = newOllama(ctx, cfg)
		health = newHTTPHealthCheck(cfg.Ollama.Host+"/api/tags", "", "")
	case BackendArk:
		m, err = newArk(ctx, cfg)
	}
	if err != nil {
		return nil, fmt.Errorf("provider: %s: %w", cfg.Backend, err)
	}

	return &ChatModel{Model: m, Backend: cfg.Backend, Name: cfg.ModelName(), Health: health}, nil
}

// getEnvOrDefault returns the value of the named environment variable, or
// fallback if the variable is unset or empty.
func getEnvOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// getEnvInt returns the integer value of the named environment variable, or
// fallback if the variable is unset, empty, or not parseable.
func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

// getEnvFloat32 returns the float32 value of the named environment variable,
// or fallback if the variable is unset, empty, or not parseable.
func getEnvFloat32(key string, fallback float32) float32 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 32); err == nil {
			return float32(f)
		}
	}
	return fallback
}
