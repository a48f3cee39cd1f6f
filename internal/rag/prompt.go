package rag

import (
	"strings"
)

// NoResultsMessage is returned by Answer when retrieval finds nothing. The
// model is not called in that case.
const NoResultsMessage = "I couldn't find any relevant documents."

// contextSeparator joins document excerpts inside the prompt.
const contextSeparator = "\n---\n"

// BuildPrompt renders the answer prompt: each result's content truncated to
// maxChars characters, joined by "\n---\n", followed by the question.
func BuildPrompt(query string, results []Result, maxChars int) string {
	parts := make([]string, len(results))
	for i, r := range results {
		parts[i] = truncateRunes(r.Content, maxChars)
	}

	var b strings.Builder
	b.WriteString("You are an assistant. Use the following documents to answer the question.\n\n")
	b.WriteString(strings.Join(parts, contextSeparator))
	b.WriteString("\n\nQuestion: ")
	b.WriteString(query)
	b.WriteString("\nAnswer:")
	return b.String()
}

// truncateRunes returns the first n characters of s. n <= 0 returns s.
func truncateRunes(s string, n int) string {
	if n <= 0 {
		return s
	}
	count := 0
	for i := range s {
		if count == n {
			return s[:i]
		}
		count++
	}
	return s
}
