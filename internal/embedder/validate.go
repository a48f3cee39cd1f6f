package embedder

import (
	"log/slog"
	"os"
	"strings"
)

// knownChatModelFragments identify chat/completion models, which are not
// suitable for embedding.
var knownChatModelFragments = []string{
	"gpt-4",
	"gpt-3.5",
	"gpt-35",
	"o1",
	"o3",
	"gemini-1",
	"gemini-2",
	"llama3",
	"llama-3",
	"mistral",
	"mixtral",
	"gemma",
	"phi3",
	"claude",
	"deepseek",
	"qwen",
}

// looksLikeChatModel reports whether model resembles a chat model name
// rather than a dedicated embedding model.
func looksLikeChatModel(model string) bool {
	lower := strings.ToLower(model)
	if strings.Contains(lower, "embed") {
		return false
	}
	for _, frag := range knownChatModelFragments {
		if strings.Contains(lower, frag) {
			return true
		}
	}
	return false
}

// Validate logs warnings for embedding settings that are legal but likely
// wrong. It never fails; hard errors surface from NewFromEnv.
func Validate(log *slog.Logger) {
	if model := os.Getenv("EMBEDDING_MODEL"); model != "" && looksLikeChatModel(model) {
		log.Warn("embedder: EMBEDDING_MODEL looks like a chat model, not an embedding model",
			slog.String("model", model),
			slog.String("hint", "use a dedicated embedding model e.g. text-embedding-004, nomic-embed-text"),
		)
	}

	if os.Getenv("EMBEDDING_PROVIDER") != "" && os.Getenv("EMBEDDING_DIMENSIONS") == "" &&
		os.Getenv("STORE_BACKEND") != "sqlite" {
		backend := os.Getenv("EMBEDDING_PROVIDER")
		if DefaultDimensions(backend) != defaultGeminiDimensions {
			log.Warn("embedder: provider output size differs from the 768-dim default schema",
				slog.String("backend", backend),
				slog.Int("dimensions", DefaultDimensions(backend)),
				slog.String("hint", "set EMBEDDING_DIMENSIONS and size the vector column to match"),
			)
		}
	}
}
