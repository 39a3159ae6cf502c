package model

import "testing"

func TestTaskState_IsTerminal(t *testing.T) {
	tests := []struct {
		state    TaskState
		terminal bool
	}{
		{TaskStateCreated, false},
		{TaskStateRunning, false},
		{TaskStateSuspended, false},
		{TaskStateCompleted, true},
		{TaskStateCancelled, true},
		{TaskStateFailed, true},
	}
	for _, tt := range tests {
		if got := tt.state.IsTerminal(); got != tt.terminal {
			t.Errorf("TaskState(%q).IsTerminal() = %v, want %v", tt.state, got, tt.terminal)
		}
	}
}

func TestTaskState_CanTransitionTo(t *testing.T) {
	tests := []struct {
		from  TaskState
		to    TaskState
		valid bool
	}{
		// Valid transitions
		{TaskStateCreated, TaskStateRunning, true},
		{TaskStateCreated, TaskStateCancelled, true},
		{TaskStateRunning, TaskStateSuspended, true},
		{TaskStateRunning, TaskStateCompleted, true},
		{TaskStateRunning, TaskStateCancelled, true},
		{TaskStateRunning, TaskStateFailed, true},
		{TaskStateSuspended, TaskStateRunning, true},
		{TaskStateSuspended, TaskStateCancelled, true},

		// Invalid transitions
		{TaskStateCreated, TaskStateSuspended, false},
		{TaskStateCreated, TaskStateCompleted, false},
		{TaskStateSuspended, TaskStateCompleted, false},
		{TaskStateCompleted, TaskStateRunning, false},
		{TaskStateCancelled, TaskStateRunning, false},
		{TaskStateFailed, TaskStateCompleted, false},
		{TaskStateCompleted, TaskStateCancelled, false},
	}
	for _, tt := range tests {
		if got := tt.from.CanTransitionTo(tt.to); got != tt.valid {
			t.Errorf("TaskState(%q).CanTransitionTo(%q) = %v, want %v", tt.from, tt.to, got, tt.valid)
		}
	}
}
