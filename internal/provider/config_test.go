package provider

import (
	"strings"
	"testing"
)

func TestConfigValidate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		cfg     Config
		wantErr string
	}{
		// ── Gemini ────────────────────────────────────────────────────────────
		{
			name: "gemini/valid",
			cfg:  Config{Backend: BackendGemini, Gemini: ProviderGemini{APIKey: "AIza-test", Model: "gemini-2.5-flash"}},
		},
		{
			name:    "gemini/missing api key",
			cfg:     Config{Backend: BackendGemini, Gemini: ProviderGemini{Model: "gemini-2.5-flash"}},
			wantErr: "GEMINI_API_KEY",
		},
		{
			name:    "gemini/missing model",
			cfg:     Config{Backend: BackendGemini, Gemini: ProviderGemini{APIKey: "AIza-test"}},
			wantErr: "GEMINI_MODEL",
		},

		// ── OpenAI ────────────────────────────────────────────────────────────
		{
			name: "openai/valid",
			cfg:  Config{Backend: BackendOpenAI, OpenAI: ProviderOpenAI{APIKey: "sk-test", Model: "gpt-4o"}},
		},
		{
			name:    "openai/missing api key",
			cfg:     Config{Backend: BackendOpenAI, OpenAI: ProviderOpenAI{Model: "gpt-4o"}},
			wantErr: "OPENAI_API_KEY",
		},

		// ── Azure ─────────────────────────────────────────────────────────────
		{
			name: "azure/valid",
			cfg: Config{Backend: BackendAzure, AzureOpenAI: ProviderAzureOpenAI{
				APIKey: "k", Endpoint: "https://x.openai.azure.com", Deployment: "gpt-4.1",
			}},
		},
		{
			name:    "azure/missing deployment",
			cfg:     Config{Backend: BackendAzure, AzureOpenAI: ProviderAzureOpenAI{APIKey: "k", Endpoint: "https://x"}},
			wantErr: "AZURE_OPENAI_DEPLOYMENT",
		},

		// ── Ollama ────────────────────────────────────────────────────────────
		{
			name: "ollama/valid",
			cfg:  Config{Backend: BackendOllama, Ollama: ProviderOllama{Host: "http://localhost:11434", Model: "llama3.2"}},
		},
		{
			name:    "ollama/missing model",
			cfg:     Config{Backend: BackendOllama, Ollama: ProviderOllama{Host: "http://localhost:11434"}},
			wantErr: "OLLAMA_MODEL",
		},

		// ── Ark ───────────────────────────────────────────────────────────────
		{
			name:    "ark/missing api key",
			cfg:     Config{Backend: BackendArk, Ark: ProviderArk{Model: "doubao"}},
			wantErr: "ARK_API_KEY",
		},

		{
			name:    "unknown backend",
			cfg:     Config{Backend: "bedrock"},
			wantErr: "unknown backend",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			err := tc.cfg.Validate()
			if tc.wantErr == "" {
				if err != nil {
					t.Errorf("Validate() unexpected error: %v", err)
				}
				return
			}
			if err == nil {
				t.Fatalf("Validate() expected error containing %q, got nil", tc.wantErr)
			}
			if !strings.Contains(err.Error(), tc.wantErr) {
				t.Errorf("Validate() error = %q, want substring %q", err.Error(), tc.wantErr)
			}
		})
	}
}

func TestConfigFromEnv_Defaults(t *testing.T) {
	for _, k := range []string{"MODEL_PROVIDER", "GEMINI_MODEL", "MODEL_MAX_TOKENS", "MODEL_TEMPERATURE", "GOOGLE_API_KEY"} {
		t.Setenv(k, "")
	}
	t.Setenv("GEMINI_API_KEY", "AIza-test")

	cfg := ConfigFromEnv()
	if cfg.Backend != BackendGemini {
		t.Errorf("backend: got %q, want gemini", cfg.Backend)
	}
	if cfg.ModelName() != "gemini-2.5-flash" {
		t.Errorf("model: got %q", cfg.ModelName())
	}
	if cfg.Gemini.APIKey != "AIza-test" {
		t.Errorf("api key not read from GEMINI_API_KEY")
	}
	if cfg.Tuning.MaxTokens != 2048 || cfg.Tuning.Temperature != 0.2 {
		t.Errorf("tuning: got %+v", cfg.Tuning)
	}
}
