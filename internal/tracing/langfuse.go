// Package tracing wires the two optional tracing backends: Langfuse for LLM
// calls (through eino callbacks) and OpenTelemetry for request spans.
// Both are disabled unless their environment variables are set.
package tracing

import (
	"os"

	"github.com/cloudwego/eino-ext/callbacks/langfuse"
	"github.com/cloudwego/eino/callbacks"
)

// SetupLangfuse initialises the Langfuse callback handler if
// LANGFUSE_PUBLIC_KEY and LANGFUSE_SECRET_KEY are set. The returned flush
// function must be called before process exit so that all traces are sent.
// When Langfuse is not configured ok is false and the other values are nil.
func SetupLangfuse() (handler callbacks.Handler, flush func(), ok bool) {
	host := os.Getenv("LANGFUSE_HOST")
	publicKey := os.Getenv("LANGFUSE_PUBLIC_KEY")
	secretKey := os.Getenv("LANGFUSE_SECRET_KEY")

	if publicKey == "" || secretKey == "" {
		return nil, nil, false
	}
	if host == "" {
		host = "http://localhost:3000"
	}

	handler, flush = langfuse.NewLangfuseHandler(&langfuse.Config{
		Host:      host,
		PublicKey: publicKey,
		SecretKey: secretKey,
		Name:      "docrag",
	})

	return handler, flush, true
}
