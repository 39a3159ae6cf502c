// Package assistant answers questions with a language model. Each question
// runs as the primary task of its own scheduler run.
package assistant

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/me/corun/internal/logging"
	"github.com/me/corun/internal/orchestrator"
	"github.com/me/corun/internal/scheduler"
)

var (
	// ErrEmptyQuestion is returned when the question is blank.
	ErrEmptyQuestion = errors.New("question cannot be empty")

	// ErrInvalidConfig is returned when the model client cannot be configured.
	ErrInvalidConfig = errors.New("invalid assistant configuration")

	// ErrInvalidResponse is returned when the model's response has no usable text.
	ErrInvalidResponse = errors.New("invalid response from language model")

	// ErrContentBlocked is returned when the model's safety filters blocked the answer.
	ErrContentBlocked = errors.New("content blocked by language model safety filters")
)

// Answerer turns a question into an answer.
type Answerer interface {
	Answer(ctx context.Context, question string) (string, error)
}

// AnswererFunc adapts a function to the Answerer interface.
type AnswererFunc func(ctx context.Context, question string) (string, error)

// Answer calls f.
func (f AnswererFunc) Answer(ctx context.Context, question string) (string, error) {
	return f(ctx, question)
}

// Reply is an answer together with the task that produced it.
type Reply struct {
	Answer  string
	TaskID  string
	Elapsed time.Duration
}

// Service runs questions through an Answerer on the orchestrator.
type Service struct {
	orch     *orchestrator.Orchestrator
	answerer Answerer
	logger   *slog.Logger
}

// NewService creates a Service.
func NewService(orch *orchestrator.Orchestrator, answerer Answerer, logger *slog.Logger) *Service {
	return &Service{
		orch:     orch,
		answerer: answerer,
		logger:   logging.Component(logger, "assistant"),
	}
}

// Ask answers one question. The model call runs inside a single primary task
// with no monitor and no fan-out; cancelling ctx cancels the call.
func (s *Service) Ask(ctx context.Context, question string) (Reply, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return Reply{}, ErrEmptyQuestion
	}

	var reply Reply
	_, err := s.orch.RunPrimary(ctx, orchestrator.Unit{Name: "ask", Func: func(ctx context.Context) (any, error) {
		start := scheduler.Now(ctx)
		reply.TaskID = scheduler.CurrentTask(ctx).ID()

		answer, err := s.answerer.Answer(ctx, question)
		if err != nil {
			return nil, err
		}
		reply.Answer = answer
		reply.Elapsed = scheduler.Now(ctx).Sub(start)
		return answer, nil
	}})
	if err != nil {
		s.logger.Error("ask failed", logging.KeyTaskID, reply.TaskID, "error", err)
		return Reply{}, fmt.Errorf("ask: %w", err)
	}

	s.logger.Info("question answered",
		logging.KeyTaskID, reply.TaskID,
		"question_length", len(question),
		"answer_length", len(reply.Answer),
		"elapsed", reply.Elapsed.String(),
	)
	return reply, nil
}
