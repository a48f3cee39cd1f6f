// Package embedder converts text into dense vector embeddings.
//
// Every backend takes an [Intent] so that models with asymmetric retrieval
// modes (Gemini task types, nomic prefixes) embed stored documents and
// search queries differently. Documents and queries must go through the same
// model for their cosine similarity to mean anything.
package embedder

import (
	"context"
	"errors"
)

// Intent tells the model whether the text is being indexed or searched for.
type Intent int

const (
	// IntentDocument embeds text that will be stored and searched over.
	IntentDocument Intent = iota
	// IntentQuery embeds a search query.
	IntentQuery
)

// String returns "document" or "query".
func (i Intent) String() string {
	if i == IntentQuery {
		return "query"
	}
	return "document"
}

// ErrEmptyEmbedding is returned when a backend answers without a vector.
var ErrEmptyEmbedding = errors.New("embedder: empty embedding in response")

// Embedder converts a single text into a vector.
// Implementations must be safe to call from multiple goroutines.
type Embedder interface {
	Embed(ctx context.Context, text string, intent Intent) ([]float32, error)
}
