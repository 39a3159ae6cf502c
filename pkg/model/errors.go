package model

import (
	"errors"
	"fmt"
	"strings"
)

// ErrCancelled is the cancellation signal. It is delivered to a task at its
// next suspension point after Cancel and reported by Await for cancelled tasks.
var ErrCancelled = errors.New("task cancelled")

// TaskFailure is captured in a task's result slot when its body returns a
// non-cancellation error or panics.
type TaskFailure struct {
	TaskID string
	Name   string
	Err    error
}

func (e *TaskFailure) Error() string {
	return fmt.Sprintf("task %s (%s) failed: %v", e.Name, e.TaskID, e.Err)
}

func (e *TaskFailure) Unwrap() error {
	return e.Err
}

// ExhaustionError reports live tasks that could never be resumed: nothing was
// ready and no timer was pending. It indicates an await cycle or a scheduler bug.
type ExhaustionError struct {
	Stuck []string
}

func (e *ExhaustionError) Error() string {
	return fmt.Sprintf("scheduler exhausted with %d stuck task(s): %s", len(e.Stuck), strings.Join(e.Stuck, ", "))
}

// InvalidTransitionError is returned when a state transition is invalid.
type InvalidTransitionError struct {
	Entity string
	ID     string
	From   string
	To     string
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("invalid %s state transition: %s → %s (entity %s)", e.Entity, e.From, e.To, e.ID)
}

// ErrorCode represents a structured API error code.
type ErrorCode string

const (
	ErrValidation ErrorCode = "VALIDATION_ERROR"
	ErrNotFound   ErrorCode = "NOT_FOUND"
	ErrUpstream   ErrorCode = "UPSTREAM_ERROR"
	ErrInternal   ErrorCode = "INTERNAL_ERROR"
)

// APIError is a structured error returned by the HTTP API.
type APIError struct {
	Code    ErrorCode    `json:"code"`
	Message string       `json:"message"`
	Details []FieldError `json:"details,omitempty"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// FieldError describes a validation error on a specific field.
type FieldError struct {
	Field   string `json:"field,omitempty"`
	Message string `json:"message"`
}

// NewValidationError creates an APIError with validation details.
func NewValidationError(msg string, details ...FieldError) *APIError {
	return &APIError{Code: ErrValidation, Message: msg, Details: details}
}

// NewNotFoundError creates a NOT_FOUND APIError.
func NewNotFoundError(resource, id string) *APIError {
	return &APIError{
		Code:    ErrNotFound,
		Message: fmt.Sprintf("%s '%s' not found", resource, id),
	}
}
