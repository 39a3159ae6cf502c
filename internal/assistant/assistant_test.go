package assistant

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/genai"

	"github.com/me/corun/internal/config"
	"github.com/me/corun/internal/logging"
	"github.com/me/corun/internal/orchestrator"
	"github.com/me/corun/internal/scheduler"
)

func newTestService(a Answerer) *Service {
	clock := scheduler.NewVirtualClock(time.Unix(0, 0).UTC())
	orch := orchestrator.New(scheduler.New(clock, logging.Discard()), logging.Discard())
	return NewService(orch, a, logging.Discard())
}

func TestService_Ask(t *testing.T) {
	var asked string
	svc := newTestService(AnswererFunc(func(ctx context.Context, q string) (string, error) {
		asked = q
		if scheduler.CurrentTask(ctx) == nil {
			return "", errors.New("answerer not running inside a task")
		}
		return "Hello, I am Prototipo.", nil
	}))

	reply, err := svc.Ask(context.Background(), "  who are you?  ")

	require.NoError(t, err)
	assert.Equal(t, "who are you?", asked)
	assert.Equal(t, "Hello, I am Prototipo.", reply.Answer)
	assert.True(t, strings.HasPrefix(reply.TaskID, "task_"))
}

func TestService_AskEmpty(t *testing.T) {
	called := false
	svc := newTestService(AnswererFunc(func(ctx context.Context, q string) (string, error) {
		called = true
		return "", nil
	}))

	_, err := svc.Ask(context.Background(), "   ")

	assert.ErrorIs(t, err, ErrEmptyQuestion)
	assert.False(t, called)
}

func TestService_AskPropagatesAnswererError(t *testing.T) {
	svc := newTestService(AnswererFunc(func(ctx context.Context, q string) (string, error) {
		return "", ErrContentBlocked
	}))

	_, err := svc.Ask(context.Background(), "something rude")

	require.Error(t, err)
	assert.ErrorIs(t, err, ErrContentBlocked)
}

func TestService_AskSeesCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	svc := newTestService(AnswererFunc(func(ctx context.Context, q string) (string, error) {
		return "", ctx.Err()
	}))

	_, err := svc.Ask(ctx, "anyone there?")

	assert.ErrorIs(t, err, context.Canceled)
}

func TestNewGeminiAnswerer_InvalidConfig(t *testing.T) {
	tests := []struct {
		name string
		cfg  config.LLMConfig
	}{
		{"missing key", config.LLMConfig{Model: "gemini-2.0-flash"}},
		{"missing model", config.LLMConfig{APIKey: "k"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewGeminiAnswerer(context.Background(), tt.cfg, logging.Discard())
			assert.ErrorIs(t, err, ErrInvalidConfig)
		})
	}

	_, err := NewGeminiAnswerer(context.Background(), config.DefaultConfig().LLM, nil)
	assert.Error(t, err)
}

func TestExtractText(t *testing.T) {
	text := func(parts ...string) *genai.Content {
		c := &genai.Content{Role: "model"}
		for _, p := range parts {
			c.Parts = append(c.Parts, &genai.Part{Text: p})
		}
		return c
	}

	tests := []struct {
		name    string
		resp    *genai.GenerateContentResponse
		want    string
		wantErr error
	}{
		{"nil response", nil, "", ErrInvalidResponse},
		{"no candidates", &genai.GenerateContentResponse{}, "", ErrInvalidResponse},
		{"nil content", &genai.GenerateContentResponse{Candidates: []*genai.Candidate{{}}}, "", ErrInvalidResponse},
		{"blocked", &genai.GenerateContentResponse{Candidates: []*genai.Candidate{{
			Content: text("partial"), FinishReason: genai.FinishReasonSafety,
		}}}, "", ErrContentBlocked},
		{"no text", &genai.GenerateContentResponse{Candidates: []*genai.Candidate{{Content: text()}}}, "", ErrInvalidResponse},
		{"joined parts", &genai.GenerateContentResponse{Candidates: []*genai.Candidate{{
			Content: text("Hello", ", ", "world"),
		}}}, "Hello, world", nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := extractText(tt.resp)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
