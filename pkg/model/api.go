package model

import "time"

// Response is the standard API response envelope.
type Response struct {
	Status    string    `json:"status"`
	RequestID string    `json:"request_id"`
	Timestamp time.Time `json:"timestamp"`
	Data      any       `json:"data"`
	Error     *APIError `json:"error"`
}

// AskRequest is the body of POST /api/v1/ask.
type AskRequest struct {
	Question string `json:"question" validate:"required,max=4000"`
}

// AskResponse carries the assistant's answer.
type AskResponse struct {
	Answer  string `json:"answer"`
	TaskID  string `json:"task_id"`
	Elapsed string `json:"elapsed"`
}
