package provider

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cloudwego/eino/callbacks"
	"github.com/cloudwego/eino/components"
	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
)

// ErrEmptyResponse is returned when the model answers with no message.
var ErrEmptyResponse = errors.New("provider: model returned no message")

// Generator sends a single prompt to a chat model and returns its text.
type Generator struct {
	model   model.BaseChatModel
	timeout time.Duration
	runInfo *callbacks.RunInfo
}

// NewGenerator wraps m. timeout bounds each call; zero disables it.
// backend names the model type reported to callback handlers.
func NewGenerator(m model.BaseChatModel, backend string, timeout time.Duration) *Generator {
	return &Generator{
		model:   m,
		timeout: timeout,
		runInfo: &callbacks.RunInfo{
			Name:      "docrag.answer",
			Type:      backend,
			Component: components.ComponentOfChatModel,
		},
	}
}

// Generate sends prompt as one user message, non-streaming, and returns the
// trimmed reply.
func (g *Generator) Generate(ctx context.Context, prompt string) (string, error) {
	if g.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.timeout)
		defer cancel()
	}

	// Global handlers (Langfuse) only fire once a run is initialised.
	ctx = callbacks.InitCallbacks(ctx, g.runInfo)

	msg, err := g.model.Generate(ctx, []*schema.Message{schema.UserMessage(prompt)})
	if err != nil {
		return "", fmt.Errorf("provider: generate: %w", err)
	}
	if msg == nil {
		return "", ErrEmptyResponse
	}
	return strings.TrimSpace(msg.Content), nil
}
