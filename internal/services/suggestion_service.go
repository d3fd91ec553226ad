package services

import (
	"context"
	"fmt"
	"log"
	"strings"

	"codesync/internal/middleware"
	"codesync/internal/openai"
	"codesync/internal/protocol"

	"go.opentelemetry.io/otel/attribute"
)

/*
INLINE SUGGESTIONS

The editor asks for a completion after the user pauses typing. When a model
is configured the text around the cursor goes to it; otherwise, or when the
call fails, a handful of rules produce something plausible. The endpoint
never fails because of the model.
*/

const (
	suggestionMaxTokens = 64
	systemPrompt        = "You are an inline code completion engine. Reply with only the text to insert at <CURSOR>. " +
		"No explanations, no markdown, no code fences. Reply with an empty message if nothing fits."

	detailAI       = "AI suggestion generated successfully."
	detailRules    = "Mocked suggestion generated successfully."
	detailFallback = "AI unavailable, rule-based suggestion returned."
)

// SuggestionService produces inline completion text
type SuggestionService struct {
	ai ChatCompleter
}

// NewSuggestionService creates the service. ai may be nil.
func NewSuggestionService(ai ChatCompleter) *SuggestionService {
	return &SuggestionService{ai: ai}
}

// Suggest returns the suggestion and a human-readable detail line
func (s *SuggestionService) Suggest(ctx context.Context, req protocol.SuggestionRequest) (*protocol.SuggestionResponse, error) {
	ctx, span := middleware.StartSpan(ctx, "Suggestion.Suggest",
		attribute.String("language", req.Language),
		attribute.Int("code.length", len(req.Code)),
		attribute.Int("cursor", req.CursorPosition),
	)
	defer span.End()

	if s.ai == nil {
		return &protocol.SuggestionResponse{Suggestion: RuleSuggestion(req.Code), Detail: detailRules}, nil
	}

	suggestion, err := s.complete(ctx, req)
	if err != nil {
		log.Printf("⚠️  AI suggestion failed, falling back to rules: %v", err)
		middleware.AddSpanError(ctx, err)
		return &protocol.SuggestionResponse{Suggestion: RuleSuggestion(req.Code), Detail: detailFallback}, nil
	}

	return &protocol.SuggestionResponse{Suggestion: suggestion, Detail: detailAI}, nil
}

func (s *SuggestionService) complete(ctx context.Context, req protocol.SuggestionRequest) (string, error) {
	before, after := splitAtCursor(req.Code, req.CursorPosition)

	language := req.Language
	if language == "" {
		language = "plain text"
	}

	messages := []openai.ChatMessage{
		{Role: "system", Content: systemPrompt},
		{Role: "user", Content: fmt.Sprintf("Language: %s\n\n%s<CURSOR>%s", language, before, after)},
	}

	out, err := s.ai.ChatCompletion(ctx, messages, openai.ChatOptions{
		MaxTokens:   suggestionMaxTokens,
		Temperature: 0.2,
	})
	if err != nil {
		return "", fmt.Errorf("chat completion: %w", err)
	}

	return stripFences(out), nil
}

// RuleSuggestion is the model-free completion
func RuleSuggestion(code string) string {
	switch {
	case strings.Contains(code, "def ") && !strings.Contains(code, "return"):
		return "    return "
	case strings.Contains(code, "class ") && !strings.Contains(code, "def __init__"):
		return "    def __init__(self):"
	case strings.Contains(strings.ToLower(code), "loop"):
		return "for item in collection:"
	default:
		return "print('Hello, World!')"
	}
}

// splitAtCursor splits code at a rune offset, clamping out-of-range cursors
func splitAtCursor(code string, cursor int) (string, string) {
	runes := []rune(code)
	if cursor < 0 {
		cursor = 0
	}
	if cursor > len(runes) {
		cursor = len(runes)
	}
	return string(runes[:cursor]), string(runes[cursor:])
}

// stripFences removes a markdown code fence the model added anyway
func stripFences(s string) string {
	trimmed := strings.TrimSpace(s)
	if !strings.HasPrefix(trimmed, "```") {
		return s
	}
	trimmed = strings.TrimPrefix(trimmed, "```")
	if i := strings.IndexByte(trimmed, '\n'); i >= 0 {
		trimmed = trimmed[i+1:]
	}
	return strings.TrimRight(strings.TrimSuffix(trimmed, "```"), "\n")
}
