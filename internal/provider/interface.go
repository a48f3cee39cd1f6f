// Package provider selects and constructs the chat model that writes answers.
// Supported backends: Google Gemini (default), OpenAI, Azure OpenAI, Ollama
// and Volcengine Ark, all through the eino model abstraction.
package provider

import (
	"fmt"
)

// Backend enumerates the supported LLM inference providers.
type Backend string

const (
	// BackendGemini selects Google Gemini via AI Studio.
	BackendGemini Backend = "gemini"
	// BackendOpenAI selects the OpenAI API.
	BackendOpenAI Backend = "openai"
	// BackendAzure selects Azure OpenAI Service.
	BackendAzure Backend = "azure"
	// BackendOllama selects a locally running Ollama instance.
	BackendOllama Backend = "ollama"
	// BackendArk selects Volcengine Ark.
	BackendArk Backend = "ark"
)

// Config holds all provider-level configuration. Only the block matching
// Backend is read.
type Config struct {
	// Backend identifies which inference provider to use.
	Backend Backend

	Gemini      ProviderGemini
	OpenAI      ProviderOpenAI
	AzureOpenAI ProviderAzureOpenAI
	Ollama      ProviderOllama
	Ark         ProviderArk

	// Tuning applies to every backend that supports it.
	Tuning SharedTuning
}

// ProviderGemini configures the Gemini backend.
type ProviderGemini struct {
	APIKey string
	Model  string
}

// ProviderOpenAI configures the OpenAI backend.
type ProviderOpenAI struct {
	APIKey string
	Model  string
	// BaseURL overrides the API endpoint for OpenAI-compatible servers.
	BaseURL string
}

// ProviderAzureOpenAI configures the Azure OpenAI backend.
type ProviderAzureOpenAI struct {
	APIKey     string
	Endpoint   string
	Deployment string
	APIVersion string
}

// ProviderOllama configures the Ollama backend.
type ProviderOllama struct {
	Host  string
	Model string
}

// ProviderArk configures the Volcengine Ark backend.
type ProviderArk struct {
	APIKey  string
	Model   string
	BaseURL string
}

// SharedTuning holds generation settings common to all backends.
type SharedTuning struct {
	// MaxTokens caps the number of tokens generated per response.
	MaxTokens int
	// Temperature controls response randomness (0.0 to 1.0).
	Temperature float32
}

// Validate reports the first missing setting for the selected backend,
// naming the env var that supplies it.
func (c *Config) Validate() error {
	switch c.Backend {
	case BackendGemini:
		if c.Gemini.APIKey == "" {
			return fmt.Errorf("provider: GEMINI_API_KEY is required for gemini backend")
		}
		if c.Gemini.Model == "" {
			return fmt.Errorf("provider: GEMINI_MODEL is required for gemini backend")
		}
	case BackendOpenAI:
		if c.OpenAI.APIKey == "" {
			return fmt.Errorf("provider: OPENAI_API_KEY is required for openai backend")
		}
		if c.OpenAI.Model == "" {
			return fmt.Errorf("provider: OPENAI_MODEL is required for openai backend")
		}
	case BackendAzure:
		if c.AzureOpenAI.APIKey == "" {
			return fmt.Errorf("provider: AZURE_OPENAI_API_KEY is required for azure backend")
		}
		if c.AzureOpenAI.Endpoint == "" {
			return fmt.Errorf("provider: AZURE_OPENAI_ENDPOINT is required for azure backend")
		}
		if c.AzureOpenAI.Deployment == "" {
			return fmt.Errorf("provider: AZURE_OPENAI_DEPLOYMENT is required for azure backend")
		}
	case BackendOllama:
		if c.Ollama.Host == "" {
			return fmt.Errorf("provider: OLLAMA_HOST is required for ollama backend")
		}
		if c.Ollama.Model == "" {
			return fmt.Errorf("provider: OLLAMA_MODEL is required for ollama backend")
		}
	case BackendArk:
		if c.Ark.APIKey == "" {
			return fmt.Errorf("provider: ARK_API_KEY is required for ark backend")
		}
		if c.Ark.Model == "" {
			return fmt.Errorf("provider: ARK_MODEL is required for ark backend")
		}
	default:
		return fmt.Errorf("provider: unknown backend %q (valid: gemini, openai, azure, ollama, ark)", c.Backend)
	}
	return nil
}

// ModelName returns the model or deployment name for the selected backend.
func (c *Config) ModelName() string {
	switch c.Backend {
	case BackendGemini:
		return c.Gemini.Model
	case BackendOpenAI:
		return c.OpenAI.Model
	case BackendAzure:
		return c.AzureOpenAI.Deployment
	case BackendOllama:
		return c.Ollama.Model
	case BackendArk:
		return c.Ark.Model
	default:
		return ""
	}
}
