package scheduler

import (
	"container/heap"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/google/uuid"

	"github.com/me/corun/internal/logging"
	"github.com/me/corun/pkg/model"
)

var (
	// ErrNotInTask is returned when a task operation is called with a context
	// that does not belong to a running task.
	ErrNotInTask = errors.New("scheduler: not called from inside a task")

	// ErrForeignTask is returned when a task handle is used from another run.
	ErrForeignTask = errors.New("scheduler: task belongs to a different run")

	// ErrAwaitSelf is returned when a task awaits itself.
	ErrAwaitSelf = errors.New("scheduler: task cannot await itself")

	// ErrWrongTask is returned when a task suspends using a context that
	// belongs to another task of the same run, typically one captured from
	// its parent.
	ErrWrongTask = errors.New("scheduler: context belongs to a task that is not running")
)

// Scheduler multiplexes tasks on a single logical thread of control. Each call
// to Run owns its own schedule state, and its own timeline when the clock is a
// Forker, so one Scheduler can serve many independent runs, sequentially or
// concurrently.
type Scheduler struct {
	clock  Clock
	logger *slog.Logger
}

// New creates a Scheduler. A nil clock selects RealClock.
func New(clock Clock, logger *slog.Logger) *Scheduler {
	if clock == nil {
		clock = RealClock{}
	}
	return &Scheduler{
		clock:  clock,
		logger: logging.Component(logger, "scheduler"),
	}
}

// Clock returns the scheduler's clock.
func (s *Scheduler) Clock() Clock {
	return s.clock
}

// Run executes fn as the root task of a new run and drives the loop until the
// root task is terminal and every other task it spawned has been cancelled or
// has finished. It returns the root task's value or error.
//
// Cancelling ctx cancels every live task; tasks that still want to sleep are
// unwound, and Run returns an error wrapping ctx.Err().
func (s *Scheduler) Run(ctx context.Context, name string, fn Func) (any, error) {
	if fn == nil {
		return nil, fmt.Errorf("run %q: nil func", name)
	}
	clock := s.clock
	if f, ok := clock.(Forker); ok {
		clock = f.Fork()
	}
	r := &run{
		id:       "run_" + uuid.New().String()[:8],
		ctx:      ctx,
		clock:    clock,
		requests: make(chan request),
	}
	r.logger = logging.WithRun(s.logger, r.id)
	r.root = r.newTask(name, fn)
	r.start(r.root)

	begin := r.clock.Now()
	r.logger.Debug("run started", "root", name)

	loopErr := r.loop()

	r.logger.Info("run finished",
		"root", name,
		"state", r.root.state,
		"tasks", len(r.tasks),
		"elapsed", r.clock.Now().Sub(begin).String(),
	)

	value, err := r.root.outcome()
	if loopErr != nil {
		return value, loopErr
	}
	return value, err
}

type requestKind int

const (
	reqSleep requestKind = iota
	reqAwait
	reqStart
	reqCancel
	reqExit
)

// request is the only way a task touches the schedule state: it asks the run
// loop, which performs the mutation and answers on the task's resume channel.
type request struct {
	from   *Task
	kind   requestKind
	delay  time.Duration
	target *Task

	value    any
	err      error
	panicked bool
	unwound  bool
}

// resume is the run loop's answer to a parked task.
type resume struct {
	cancelled bool
	unwind    bool
	err       error
}

// run is the schedule state of one Scheduler.Run call. Only the goroutine
// executing loop mutates it; task goroutines run one at a time while the loop
// waits on requests.
type run struct {
	id       string
	ctx      context.Context
	clock    Clock
	logger   *slog.Logger
	requests chan request

	root    *Task
	current *Task // holds the baton
	tasks   []*Task // every started task, in start order
	ready  []*Task
	timers timerHeap
	seq    uint64

	draining bool
	errs     []error
}

func (r *run) newTask(name string, fn Func) *Task {
	t := &Task{
		id:     newTaskID(),
		name:   name,
		fn:     fn,
		run:    r,
		state:  model.TaskStateCreated,
		done:   make(chan struct{}),
		resume: make(chan resume),
	}
	t.ctx, t.cancel = context.WithCancel(context.WithValue(r.ctx, ctxKey{}, t))
	return t
}

func (r *run) loop() error {
	var (
		exhausted   *model.ExhaustionError
		interrupted error
	)
	for {
		for len(r.ready) > 0 {
			t := r.ready[0]
			r.ready = r.ready[1:]
			r.step(t)
		}

		if r.root.state.IsTerminal() && !r.draining {
			r.draining = true
			if live := r.liveTasks(); len(live) > 0 {
				r.logger.Debug("root finished, cancelling remaining tasks", "count", len(live))
				r.cancelAll()
			}
			continue
		}

		if r.timers.Len() == 0 {
			stuck := r.liveTasks()
			if len(stuck) == 0 {
				break
			}
			names := make([]string, 0, len(stuck))
			for _, t := range stuck {
				names = append(names, t.name)
			}
			if exhausted == nil {
				exhausted = &model.ExhaustionError{Stuck: names}
			}
			r.logger.Error("no runnable task and no pending timer", "stuck", names)
			r.unwindAll(stuck)
			continue
		}

		if interrupted != nil {
			r.unwindAll(r.liveTasks())
			continue
		}

		next := r.timers[0]
		if err := r.clock.WaitUntil(r.ctx, next.wake); err != nil {
			interrupted = fmt.Errorf("run %s interrupted: %w", r.id, err)
			r.logger.Warn("run interrupted, cancelling tasks", "error", err)
			r.cancelAll()
			continue
		}
		heap.Pop(&r.timers)
		next.task.timer = nil
		logging.WithTask(r.logger, next.task.id, next.task.name).Debug("timer fired", "wake_at", next.wake)
		r.makeReady(next.task)
	}

	var errs []error
	if exhausted != nil {
		errs = append(errs, exhausted)
	}
	if interrupted != nil {
		errs = append(errs, interrupted)
	}
	errs = append(errs, r.errs...)
	return errors.Join(errs...)
}

// step gives t the baton: it launches or resumes t and serves its requests
// until t parks again or exits.
func (r *run) step(t *Task) {
	if t.state.IsTerminal() {
		return
	}
	r.current = t
	if !t.launched {
		t.launched = true
		t.startedAt = r.clock.Now()
		logging.WithTask(r.logger, t.id, t.name).Debug("task started")
		go t.main()
		r.serve(t)
		return
	}
	sig := resume{}
	if t.cancelRequested && !t.cancelDelivered {
		t.cancelDelivered = true
		sig.cancelled = true
	}
	t.resume <- sig
	r.serve(t)
}

func (r *run) serve(t *Task) {
	defer func() { r.current = nil }()
	for {
		req := <-r.requests
		if req.from != t {
			logging.WithTask(r.logger, req.from.id, req.from.name).
				Error("request from a task that does not hold the baton", "running", t.name)
			req.from.resume <- resume{err: ErrWrongTask}
			continue
		}
		switch req.kind {
		case reqSleep:
			if t.cancelDelivered {
				logging.WithTask(r.logger, t.id, t.name).Debug("unwinding cancelled task")
				t.resume <- resume{unwind: true}
				continue
			}
			if t.cancelRequested {
				t.cancelDelivered = true
				t.resume <- resume{cancelled: true}
				continue
			}
			r.setState(t, model.TaskStateSuspended)
			r.seq++
			entry := &timerEntry{wake: r.clock.Now().Add(req.delay), seq: r.seq, task: t}
			heap.Push(&r.timers, entry)
			t.timer = entry
			return

		case reqAwait:
			target := req.target
			if target.state.IsTerminal() {
				t.resume <- resume{}
				continue
			}
			if t.cancelRequested && !t.cancelDelivered {
				t.cancelDelivered = true
				t.resume <- resume{cancelled: true}
				continue
			}
			r.setState(t, model.TaskStateSuspended)
			t.awaiting = target
			target.waiters = append(target.waiters, t)
			return

		case reqStart:
			r.start(req.target)
			t.resume <- resume{}

		case reqCancel:
			r.cancel(req.target)
			t.resume <- resume{}

		case reqExit:
			r.exit(t, req)
			return
		}
	}
}

func (r *run) start(t *Task) {
	if t.state != model.TaskStateCreated {
		return
	}
	r.tasks = append(r.tasks, t)
	r.makeReady(t)
}

func (r *run) cancel(t *Task) {
	if t.state.IsTerminal() || t.cancelRequested {
		return
	}
	t.cancelRequested = true
	t.cancel()
	logging.WithTask(r.logger, t.id, t.name).Debug("task cancel requested", "state", t.state)

	switch t.state {
	case model.TaskStateCreated:
		r.finish(t, r.cancelledResult(t))
	case model.TaskStateRunning:
		if !t.launched {
			r.finish(t, r.cancelledResult(t))
		}
	case model.TaskStateSuspended:
		r.detach(t)
		r.makeReady(t)
	}
}

func (r *run) cancelAll() {
	for _, t := range r.liveTasks() {
		r.cancel(t)
	}
}

// unwindAll forcibly ends tasks that cannot make progress on their own.
func (r *run) unwindAll(tasks []*Task) {
	for _, t := range tasks {
		if t.state.IsTerminal() {
			continue
		}
		r.detach(t)
		t.cancelRequested = true
		t.cancelDelivered = true
		t.cancel()
		if !t.launched {
			r.finish(t, r.cancelledResult(t))
			continue
		}
		if t.state == model.TaskStateSuspended {
			r.setState(t, model.TaskStateRunning)
		}
		r.current = t
		t.resume <- resume{unwind: true}
		r.serve(t)
	}
	r.ready = slices.DeleteFunc(r.ready, func(t *Task) bool { return t.state.IsTerminal() })
}

// detach removes t's pending timer entry and await registration.
func (r *run) detach(t *Task) {
	if t.timer != nil {
		heap.Remove(&r.timers, t.timer.index)
		t.timer = nil
	}
	if t.awaiting != nil {
		target := t.awaiting
		target.waiters = slices.DeleteFunc(target.waiters, func(w *Task) bool { return w == t })
		t.awaiting = nil
	}
}

func (r *run) exit(t *Task, req request) {
	var res Result
	switch {
	case req.panicked:
		res = Result{State: model.TaskStateFailed, Err: &model.TaskFailure{TaskID: t.id, Name: t.name, Err: req.err}}
	case req.unwound:
		res = r.cancelledResult(t)
	case req.err != nil && !(t.cancelRequested && isCancellation(req.err)):
		res = Result{State: model.TaskStateFailed, Err: &model.TaskFailure{TaskID: t.id, Name: t.name, Err: req.err}}
	case t.cancelRequested:
		res = r.cancelledResult(t)
	default:
		res = Result{State: model.TaskStateCompleted, Value: req.value}
	}
	r.finish(t, res)
}

// finish writes the result slot exactly once and wakes the task's awaiters in
// the order they registered.
func (r *run) finish(t *Task, res Result) {
	if t.state.IsTerminal() {
		logging.WithTask(r.logger, t.id, t.name).Error("result already set", "state", t.state)
		return
	}
	r.setState(t, res.State)
	t.result = res
	t.completedAt = r.clock.Now()
	t.cancel()

	waiters := t.waiters
	t.waiters = nil
	for _, w := range waiters {
		w.awaiting = nil
		r.makeReady(w)
	}
	close(t.done)

	if res.State == model.TaskStateFailed {
		logging.WithTask(r.logger, t.id, t.name).Warn("task failed", "error", res.Err)
	} else {
		logging.WithTask(r.logger, t.id, t.name).Debug("task finished", "state", res.State)
	}
}

func (r *run) cancelledResult(t *Task) Result {
	return Result{State: model.TaskStateCancelled, Err: fmt.Errorf("task %s: %w", t.name, model.ErrCancelled)}
}

func (r *run) makeReady(t *Task) {
	if t.state != model.TaskStateRunning {
		r.setState(t, model.TaskStateRunning)
	}
	r.ready = append(r.ready, t)
}

func (r *run) setState(t *Task, next model.TaskState) {
	if !t.state.CanTransitionTo(next) {
		err := &model.InvalidTransitionError{Entity: "Task", ID: t.id, From: t.state.String(), To: next.String()}
		r.logger.Error("invalid transition", "error", err)
		r.errs = append(r.errs, err)
	}
	t.state = next
}

func (r *run) liveTasks() []*Task {
	var live []*Task
	for _, t := range r.tasks {
		if !t.state.IsTerminal() {
			live = append(live, t)
		}
	}
	return live
}

func isCancellation(err error) bool {
	return errors.Is(err, model.ErrCancelled) || errors.Is(err, context.Canceled)
}
