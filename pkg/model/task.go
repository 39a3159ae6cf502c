package model

import "time"

// TaskSummary is a read-only snapshot of a task's identity and outcome, used
// for plan reports and logs.
type TaskSummary struct {
	ID          string     `json:"id" yaml:"id"`
	Name        string     `json:"name" yaml:"name"`
	State       TaskState  `json:"state" yaml:"state"`
	Value       any        `json:"value,omitempty" yaml:"value,omitempty"`
	Error       string     `json:"error,omitempty" yaml:"error,omitempty"`
	StartedAt   *time.Time `json:"started_at,omitempty" yaml:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty" yaml:"completed_at,omitempty"`
}

// Elapsed returns the time between start and completion, or zero when either
// is unknown.
func (s TaskSummary) Elapsed() time.Duration {
	if s.StartedAt == nil || s.CompletedAt == nil {
		return 0
	}
	return s.CompletedAt.Sub(*s.StartedAt)
}
