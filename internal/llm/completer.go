package llm

import (
	"context"
	"strings"
)

// Completer defines the interface for text generation services
type Completer interface {
	// Complete sends a prompt and returns the generated text
	Complete(ctx context.Context, prompt string) (string, error)
	// Close closes the completer and releases resources
	Close() error
}

// cleanResponse removes surrounding whitespace and markdown code fences
func cleanResponse(text string) string {
	text = strings.TrimSpace(text)
	text = strings.TrimPrefix(text, "```text")
	text = strings.TrimPrefix(text, "```")
	text = strings.TrimSuffix(text, "```")
	return strings.TrimSpace(text)
}
