// Package orchestrator composes scheduler tasks into the patterns the
// workloads need: a primary unit with a background monitor, fan-out/join of
// independent units, and a deadline race.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/me/corun/internal/logging"
	"github.com/me/corun/internal/scheduler"
	"github.com/me/corun/pkg/model"
)

// ErrDeadlineExceeded is returned by WithDeadline when the deadline task wins
// the race.
var ErrDeadlineExceeded = errors.New("deadline exceeded")

// Unit is a named piece of work to run as a task.
type Unit struct {
	Name string
	Func scheduler.Func
}

// PrimaryResult is the outcome of PrimaryWithMonitor.
type PrimaryResult struct {
	Value        any
	PrimaryState model.TaskState
	MonitorState model.TaskState
}

// MonitorOption configures PrimaryWithMonitor.
type MonitorOption func(*monitorOptions)

type monitorOptions struct {
	afterStart scheduler.Func
}

// AfterStart runs fn in the orchestrating task right after the primary and
// the monitor have been started, before the primary is awaited. A non-nil
// error aborts the pattern and cancels both tasks.
func AfterStart(fn scheduler.Func) MonitorOption {
	return func(o *monitorOptions) { o.afterStart = fn }
}

// PrimaryWithMonitor starts primary and monitor, waits for primary to reach a
// terminal state, then cancels the monitor and waits for it. A monitor that
// ends Cancelled is expected and swallowed; a monitor failure is returned
// alongside the primary's outcome.
//
// It must be called from inside a task.
func PrimaryWithMonitor(ctx context.Context, primary, monitor Unit, opts ...MonitorOption) (PrimaryResult, error) {
	var o monitorOptions
	for _, opt := range opts {
		opt(&o)
	}

	p, err := scheduler.Go(ctx, primary.Name, primary.Func)
	if err != nil {
		return PrimaryResult{}, fmt.Errorf("start primary: %w", err)
	}
	m, err := scheduler.Go(ctx, monitor.Name, monitor.Func)
	if err != nil {
		stop(ctx, p)
		return PrimaryResult{}, fmt.Errorf("start monitor: %w", err)
	}

	if o.afterStart != nil {
		if _, err := o.afterStart(ctx); err != nil {
			stop(ctx, p, m)
			return summarize(p, m), err
		}
	}

	value, primaryErr := p.Await(ctx)
	if primaryErr != nil && !p.State().IsTerminal() {
		// The orchestrating task itself was cancelled.
		stop(ctx, p, m)
		return summarize(p, m), primaryErr
	}

	preempted := m.State() == model.TaskStateCancelled
	if err := m.Cancel(ctx); err != nil {
		return summarize(p, m), err
	}
	_, monitorErr := wait(ctx, m)

	res := summarize(p, m)
	res.Value = value

	var errs []error
	if primaryErr != nil {
		errs = append(errs, primaryErr)
	}
	switch {
	case m.State() == model.TaskStateFailed:
		errs = append(errs, monitorErr)
	case preempted:
		errs = append(errs, fmt.Errorf("monitor %s was cancelled before the primary finished: %w", monitor.Name, monitorErr))
	}
	return res, errors.Join(errs...)
}

// FanOut starts every unit as a task, in order, and returns the handles.
func FanOut(ctx context.Context, units ...Unit) ([]*scheduler.Task, error) {
	tasks := make([]*scheduler.Task, 0, len(units))
	for _, u := range units {
		t, err := scheduler.Go(ctx, u.Name, u.Func)
		if err != nil {
			stop(ctx, tasks...)
			return nil, fmt.Errorf("start %s: %w", u.Name, err)
		}
		tasks = append(tasks, t)
	}
	return tasks, nil
}

// Join waits until every task is terminal and returns their values in the
// given order. Failures and cancellations are joined into the returned error;
// the slot of a task that did not complete is nil. Join never returns while a
// task it was given is still live.
func Join(ctx context.Context, tasks []*scheduler.Task) ([]any, error) {
	results := make([]any, len(tasks))
	var errs []error
	for i, t := range tasks {
		v, err := t.Await(ctx)
		if err != nil && !t.State().IsTerminal() {
			// The joining task was cancelled: take the rest down with it.
			stop(ctx, tasks[i:]...)
			return results, err
		}
		if err != nil {
			errs = append(errs, err)
			continue
		}
		results[i] = v
	}
	return results, errors.Join(errs...)
}

// FanOutJoin starts all units and joins them.
func FanOutJoin(ctx context.Context, units ...Unit) ([]any, error) {
	tasks, err := FanOut(ctx, units...)
	if err != nil {
		return nil, err
	}
	return Join(ctx, tasks)
}

// WithDeadline races unit against a timer task that cancels it after d. It
// waits for both tasks and returns the unit's outcome, or an error wrapping
// ErrDeadlineExceeded when the timer fired first.
func WithDeadline(ctx context.Context, d time.Duration, unit Unit) (any, error) {
	work, err := scheduler.NewTask(ctx, unit.Name, unit.Func)
	if err != nil {
		return nil, err
	}
	deadline, err := scheduler.NewTask(ctx, unit.Name+"/deadline", func(ctx context.Context) (any, error) {
		if err := scheduler.Sleep(ctx, d); err != nil {
			return nil, err
		}
		return nil, work.Cancel(ctx)
	})
	if err != nil {
		return nil, err
	}
	if err := work.Start(ctx); err != nil {
		return nil, err
	}
	if err := deadline.Start(ctx); err != nil {
		stop(ctx, work)
		return nil, err
	}

	value, workErr := work.Await(ctx)
	if workErr != nil && !work.State().IsTerminal() {
		stop(ctx, work, deadline)
		return nil, workErr
	}
	stop(ctx, deadline)

	if deadline.State() == model.TaskStateCompleted && work.State() == model.TaskStateCancelled {
		return nil, fmt.Errorf("%w: %s after %v", ErrDeadlineExceeded, unit.Name, d)
	}
	return value, workErr
}

// stop cancels the tasks and waits until each is terminal.
func stop(ctx context.Context, tasks ...*scheduler.Task) {
	for _, t := range tasks {
		_ = t.Cancel(ctx)
	}
	for _, t := range tasks {
		_, _ = wait(ctx, t)
	}
}

// wait awaits t until it is terminal. The caller's own cancellation may cut
// the first Await short; it is only delivered once, so the retry blocks.
func wait(ctx context.Context, t *scheduler.Task) (any, error) {
	v, err := t.Await(ctx)
	if err != nil && !t.State().IsTerminal() {
		v, err = t.Await(ctx)
	}
	return v, err
}

func summarize(p, m *scheduler.Task) PrimaryResult {
	return PrimaryResult{PrimaryState: p.State(), MonitorState: m.State()}
}

// Orchestrator runs the composition patterns as complete scheduler runs.
type Orchestrator struct {
	sched  *scheduler.Scheduler
	logger *slog.Logger
}

// New creates an Orchestrator on top of sched.
func New(sched *scheduler.Scheduler, logger *slog.Logger) *Orchestrator {
	return &Orchestrator{
		sched:  sched,
		logger: logging.Component(logger, "orchestrator"),
	}
}

// Scheduler returns the underlying scheduler.
func (o *Orchestrator) Scheduler() *scheduler.Scheduler {
	return o.sched
}

// Run executes fn as the root task of a new run. A failure of the root task is
// returned unwrapped from its TaskFailure.
func (o *Orchestrator) Run(ctx context.Context, name string, fn scheduler.Func) (any, error) {
	v, err := o.sched.Run(ctx, name, fn)
	return v, unwrapRoot(name, err)
}

// RunPrimaryWithMonitor runs PrimaryWithMonitor to completion.
func (o *Orchestrator) RunPrimaryWithMonitor(ctx context.Context, primary, monitor Unit, opts ...MonitorOption) (PrimaryResult, error) {
	var res PrimaryResult
	_, err := o.Run(ctx, "primary-with-monitor", func(ctx context.Context) (any, error) {
		var err error
		res, err = PrimaryWithMonitor(ctx, primary, monitor, opts...)
		return res.Value, err
	})
	o.logger.Info("primary with monitor finished",
		"primary", primary.Name,
		"primary_state", res.PrimaryState,
		"monitor", monitor.Name,
		"monitor_state", res.MonitorState,
	)
	if res.MonitorState == model.TaskStateCompleted {
		o.logger.Warn("monitor finished before it was cancelled", "monitor", monitor.Name)
	}
	return res, err
}

// RunFanOutJoin runs FanOutJoin to completion and returns the results in
// submission order.
func (o *Orchestrator) RunFanOutJoin(ctx context.Context, units []Unit) ([]any, error) {
	var results []any
	_, err := o.Run(ctx, "fan-out-join", func(ctx context.Context) (any, error) {
		var err error
		results, err = FanOutJoin(ctx, units...)
		return results, err
	})
	o.logger.Info("fan-out join finished", "units", len(units), "error", err)
	return results, err
}

// RunWithDeadline runs WithDeadline to completion.
func (o *Orchestrator) RunWithDeadline(ctx context.Context, d time.Duration, unit Unit) (any, error) {
	return o.Run(ctx, "deadline", func(ctx context.Context) (any, error) {
		return WithDeadline(ctx, d, unit)
	})
}

// RunPrimary runs a single unit as the root task of its own run, with no
// monitor and no fan-out.
func (o *Orchestrator) RunPrimary(ctx context.Context, unit Unit) (any, error) {
	return o.Run(ctx, unit.Name, unit.Func)
}

func unwrapRoot(name string, err error) error {
	if f, ok := err.(*model.TaskFailure); ok && f.Name == name {
		return f.Err
	}
	return err
}
