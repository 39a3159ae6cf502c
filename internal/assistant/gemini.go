package assistant

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"google.golang.org/genai"

	"github.com/me/corun/internal/config"
	"github.com/me/corun/internal/logging"
)

// GeminiAnswerer answers questions with Google's Gemini API.
type GeminiAnswerer struct {
	client *genai.Client
	config config.LLMConfig
	logger *slog.Logger
}

// NewGeminiAnswerer creates a Gemini client from cfg.
func NewGeminiAnswerer(ctx context.Context, cfg config.LLMConfig, logger *slog.Logger) (*GeminiAnswerer, error) {
	if logger == nil {
		return nil, errors.New("logger cannot be nil")
	}
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("%w: gemini API key cannot be empty (set CORUN_LLM_API_KEY or GEMINI_API_KEY)", ErrInvalidConfig)
	}
	if cfg.Model == "" {
		return nil, fmt.Errorf("%w: model name cannot be empty", ErrInvalidConfig)
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: failed to create Gemini client: %v", ErrInvalidConfig, err)
	}

	return &GeminiAnswerer{
		client: client,
		config: cfg,
		logger: logging.Component(logger, "gemini").With("model", cfg.Model),
	}, nil
}

// Answer sends the question with the configured persona and temperature.
func (g *GeminiAnswerer) Answer(ctx context.Context, question string) (string, error) {
	temperature := float32(g.config.Temperature)
	genConfig := &genai.GenerateContentConfig{
		Temperature: &temperature,
	}
	if g.config.SystemPrompt != "" {
		genConfig.SystemInstruction = &genai.Content{
			Parts: []*genai.Part{{Text: g.config.SystemPrompt}},
		}
	}
	contents := []*genai.Content{{
		Role:  "user",
		Parts: []*genai.Part{{Text: question}},
	}}

	g.logger.DebugContext(ctx, "calling Gemini", "question_length", len(question))
	resp, err := g.client.Models.GenerateContent(ctx, g.config.Model, contents, genConfig)
	if err != nil {
		return "", fmt.Errorf("gemini generate content: %w", err)
	}
	return extractText(resp)
}

// extractText concatenates the text parts of the first candidate.
func extractText(resp *genai.GenerateContentResponse) (string, error) {
	if resp == nil {
		return "", fmt.Errorf("%w: nil response", ErrInvalidResponse)
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0] == nil {
		return "", fmt.Errorf("%w: no content generated", ErrInvalidResponse)
	}
	candidate := resp.Candidates[0]
	if candidate.FinishReason == genai.FinishReasonSafety {
		return "", fmt.Errorf("%w: finish reason %s", ErrContentBlocked, candidate.FinishReason)
	}
	if candidate.Content == nil {
		return "", fmt.Errorf("%w: empty content in response", ErrInvalidResponse)
	}

	var b strings.Builder
	for _, part := range candidate.Content.Parts {
		if part != nil {
			b.WriteString(part.Text)
		}
	}
	if b.Len() == 0 {
		return "", fmt.Errorf("%w: response has no text", ErrInvalidResponse)
	}
	return b.String(), nil
}
