package model

// TaskState represents the lifecycle state of a Task.
type TaskState string

const (
	TaskStateCreated   TaskState = "CREATED"
	TaskStateRunning   TaskState = "RUNNING"
	TaskStateSuspended TaskState = "SUSPENDED"
	TaskStateCompleted TaskState = "COMPLETED"
	TaskStateCancelled TaskState = "CANCELLED"
	TaskStateFailed    TaskState = "FAILED"
)

// String returns the string representation of the task state.
func (s TaskState) String() string {
	return string(s)
}

// IsTerminal returns true if the task is in a final state.
func (s TaskState) IsTerminal() bool {
	switch s {
	case TaskStateCompleted, TaskStateCancelled, TaskStateFailed:
		return true
	}
	return false
}

// ValidTaskTransitions defines the allowed state transitions for Tasks.
// Running means ready or executing; Suspended means parked on a timer or an await.
var ValidTaskTransitions = map[TaskState][]TaskState{
	TaskStateCreated:   {TaskStateRunning, TaskStateCancelled},
	TaskStateRunning:   {TaskStateSuspended, TaskStateCompleted, TaskStateCancelled, TaskStateFailed},
	TaskStateSuspended: {TaskStateRunning, TaskStateCancelled},
}

// CanTransitionTo returns true if moving from the current state to next is valid.
func (s TaskState) CanTransitionTo(next TaskState) bool {
	for _, allowed := range ValidTaskTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}
