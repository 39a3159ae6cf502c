package scheduler

import (
	"context"
	"fmt"
	"runtime"
	"time"

	"github.com/google/uuid"
	"github.com/me/corun/pkg/model"
)

// Func is the body of a task. The ctx it receives identifies the task; pass it
// to Sleep, Go and Await. ctx is also cancelled when the task is cancelled, so
// blocking calls made by the body (HTTP, RPC) can abort early.
type Func func(ctx context.Context) (any, error)

// Result is a task's result slot. It is written once, when the task reaches
// a terminal state.
type Result struct {
	State model.TaskState
	Value any
	Err   error
}

type ctxKey struct{}

// CurrentTask returns the task that owns ctx, or nil outside any task.
func CurrentTask(ctx context.Context) *Task {
	t, _ := ctx.Value(ctxKey{}).(*Task)
	return t
}

// Task is an independently schedulable unit of work. Its fields are owned by
// the run loop; read them from inside the same run or after Done is closed.
type Task struct {
	id   string
	name string
	fn   Func
	run  *run

	ctx    context.Context
	cancel context.CancelFunc

	state  model.TaskState
	result Result
	done   chan struct{}
	resume chan resume

	launched        bool
	cancelRequested bool
	cancelDelivered bool
	timer           *timerEntry
	awaiting        *Task
	waiters         []*Task

	startedAt   time.Time
	completedAt time.Time
}

// NewTask creates a task in the Created state inside the caller's run. It does
// not run until Start is called.
func NewTask(ctx context.Context, name string, fn Func) (*Task, error) {
	caller := CurrentTask(ctx)
	if caller == nil {
		return nil, ErrNotInTask
	}
	if fn == nil {
		return nil, fmt.Errorf("task %q: nil func", name)
	}
	return caller.run.newTask(name, fn), nil
}

// Go creates a task and starts it. The caller keeps running; the new task
// gets its first turn when the caller next suspends.
func Go(ctx context.Context, name string, fn Func) (*Task, error) {
	t, err := NewTask(ctx, name, fn)
	if err != nil {
		return nil, err
	}
	if err := t.Start(ctx); err != nil {
		return nil, err
	}
	return t, nil
}

// ID returns the task's opaque identifier.
func (t *Task) ID() string { return t.id }

// Name returns the name given at creation.
func (t *Task) Name() string { return t.name }

// State returns the current lifecycle state.
func (t *Task) State() model.TaskState { return t.state }

// Result returns the result slot. It is the zero Result until the task is terminal.
func (t *Task) Result() Result { return t.result }

// Done is closed when the task reaches a terminal state.
func (t *Task) Done() <-chan struct{} { return t.done }

// Summary returns a snapshot of the task for reports.
func (t *Task) Summary() model.TaskSummary {
	s := model.TaskSummary{ID: t.id, Name: t.name, State: t.state}
	if !t.startedAt.IsZero() {
		started := t.startedAt
		s.StartedAt = &started
	}
	if t.state.IsTerminal() {
		completed := t.completedAt
		s.CompletedAt = &completed
		s.Value = t.result.Value
		if t.result.Err != nil {
			s.Error = t.result.Err.Error()
		}
	}
	return s
}

// Start moves a Created task to Running. Starting a task that is not Created
// is a no-op.
func (t *Task) Start(ctx context.Context) error {
	caller, err := t.caller(ctx)
	if err != nil {
		return err
	}
	return caller.call(request{kind: reqStart, target: t})
}

// Cancel requests cooperative cancellation. It is idempotent and a no-op on
// terminal tasks. A suspended task has its pending timer or await removed
// before Cancel returns and observes model.ErrCancelled when it resumes; a
// running task observes it at its next suspension point.
//
// Once cancellation has been requested the task ends Cancelled even if its
// body swallows the error and returns a value: that value is discarded and
// never reaches Await. Only a non-cancellation error changes the outcome, to
// Failed.
func (t *Task) Cancel(ctx context.Context) error {
	caller, err := t.caller(ctx)
	if err != nil {
		return err
	}
	return caller.call(request{kind: reqCancel, target: t})
}

// Await suspends the calling task until t is terminal and returns t's value,
// its *model.TaskFailure, or an error matching model.ErrCancelled. It returns
// immediately if t is already terminal.
func (t *Task) Await(ctx context.Context) (any, error) {
	caller, err := t.caller(ctx)
	if err != nil {
		return nil, err
	}
	if caller == t {
		return nil, ErrAwaitSelf
	}
	if err := caller.call(request{kind: reqAwait, target: t}); err != nil {
		return nil, err
	}
	return t.outcome()
}

func (t *Task) caller(ctx context.Context) (*Task, error) {
	caller := CurrentTask(ctx)
	if caller == nil {
		return nil, ErrNotInTask
	}
	if caller.run != t.run {
		return nil, ErrForeignTask
	}
	return caller, nil
}

func (t *Task) outcome() (any, error) {
	if t.result.State == model.TaskStateCompleted {
		return t.result.Value, nil
	}
	return nil, t.result.Err
}

// call hands a request to the run loop and parks until the loop answers. Only
// the task holding the baton may call; a context captured from another task
// is refused before anything is sent.
func (t *Task) call(req request) error {
	if t.run.current != t {
		return fmt.Errorf("task %s: %w", t.name, ErrWrongTask)
	}
	req.from = t
	t.run.requests <- req
	sig := <-t.resume
	if sig.unwind {
		runtime.Goexit()
	}
	if sig.cancelled {
		return fmt.Errorf("task %s: %w", t.name, model.ErrCancelled)
	}
	return sig.err
}

// main is the task goroutine. It reports how the body ended; a body that never
// returned was unwound by Goexit.
func (t *Task) main() {
	var (
		value    any
		err      error
		returned bool
	)
	defer func() {
		req := request{from: t, kind: reqExit, value: value, err: err}
		if r := recover(); r != nil {
			req.panicked = true
			req.err = fmt.Errorf("panic: %v", r)
		} else if !returned {
			req.unwound = true
		}
		t.run.requests <- req
	}()
	value, err = t.fn(t.ctx)
	returned = true
}

func newTaskID() string {
	return "task_" + uuid.New().String()
}
