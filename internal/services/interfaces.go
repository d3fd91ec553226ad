package services

import (
	"context"

	"codesync/internal/openai"
)

// ChatCompleter is what the suggestion service needs from a language model.
// Declared here, where it is consumed; *openai.Client satisfies it.
type ChatCompleter interface {
	ChatCompletion(ctx context.Context, messages []openai.ChatMessage, opts openai.ChatOptions) (string, error)
}
