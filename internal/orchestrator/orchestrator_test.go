package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/me/corun/internal/logging"
	"github.com/me/corun/internal/scheduler"
	"github.com/me/corun/pkg/model"
)

var epoch = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

func newTestOrchestrator() (*Orchestrator, *scheduler.VirtualClock) {
	clock := scheduler.NewVirtualClock(epoch)
	return New(scheduler.New(clock, logging.Discard()), logging.Discard()), clock
}

func sleeper(name string, d time.Duration) Unit {
	return Unit{Name: name, Func: func(ctx context.Context) (any, error) {
		if err := scheduler.Sleep(ctx, d); err != nil {
			return nil, err
		}
		return name, nil
	}}
}

func ticker(ticks *[]int) Unit {
	return Unit{Name: "monitor", Func: func(ctx context.Context) (any, error) {
		start := scheduler.Now(ctx)
		for {
			*ticks = append(*ticks, int(scheduler.Now(ctx).Sub(start)/time.Second))
			if err := scheduler.Sleep(ctx, time.Second); err != nil {
				return nil, err
			}
		}
	}}
}

func TestPrimaryWithMonitor_MonitorCancelledAndSwallowed(t *testing.T) {
	o, clock := newTestOrchestrator()
	var ticks []int

	res, err := o.RunPrimaryWithMonitor(context.Background(), sleeper("primary", 10*time.Second), ticker(&ticks))

	require.NoError(t, err)
	assert.Equal(t, "primary", res.Value)
	assert.Equal(t, model.TaskStateCompleted, res.PrimaryState)
	assert.Equal(t, model.TaskStateCancelled, res.MonitorState)
	assert.Equal(t, []int{0, 1, 2, 3, 4, 5, 6, 7, 8, 9}, ticks)
	assert.Equal(t, epoch.Add(10*time.Second), clock.Now())
}

func TestPrimaryWithMonitor_AfterStartRunsAfterFirstYield(t *testing.T) {
	o, _ := newTestOrchestrator()
	var events []string

	primary := Unit{Name: "primary", Func: func(ctx context.Context) (any, error) {
		events = append(events, "A")
		if err := scheduler.Sleep(ctx, 3*time.Second); err != nil {
			return nil, err
		}
		events = append(events, "B")
		return nil, nil
	}}
	monitor := Unit{Name: "monitor", Func: func(ctx context.Context) (any, error) {
		for {
			events = append(events, "tick")
			if err := scheduler.Sleep(ctx, 2*time.Second); err != nil {
				return nil, err
			}
		}
	}}

	_, err := o.RunPrimaryWithMonitor(context.Background(), primary, monitor,
		AfterStart(func(ctx context.Context) (any, error) {
			if err := scheduler.Sleep(ctx, 0); err != nil {
				return nil, err
			}
			events = append(events, "still running")
			return nil, nil
		}))

	require.NoError(t, err)
	assert.Equal(t, []string{"A", "tick", "still running", "tick", "B"}, events)
}

func TestPrimaryWithMonitor_MonitorFailureReported(t *testing.T) {
	o, _ := newTestOrchestrator()
	broken := errors.New("sensor broke")

	monitor := Unit{Name: "monitor", Func: func(ctx context.Context) (any, error) {
		if err := scheduler.Sleep(ctx, time.Second); err != nil {
			return nil, err
		}
		return nil, broken
	}}

	res, err := o.RunPrimaryWithMonitor(context.Background(), sleeper("primary", 3*time.Second), monitor)

	require.Error(t, err)
	assert.ErrorIs(t, err, broken)
	assert.Equal(t, "primary", res.Value)
	assert.Equal(t, model.TaskStateFailed, res.MonitorState)
}

func TestPrimaryWithMonitor_MonitorCompletedOnItsOwn(t *testing.T) {
	o, _ := newTestOrchestrator()

	monitor := Unit{Name: "monitor", Func: func(ctx context.Context) (any, error) {
		return "bored", nil
	}}

	res, err := o.RunPrimaryWithMonitor(context.Background(), sleeper("primary", time.Second), monitor)

	require.NoError(t, err)
	assert.Equal(t, model.TaskStateCompleted, res.MonitorState)
}

func TestPrimaryWithMonitor_PrimaryFailure(t *testing.T) {
	o, _ := newTestOrchestrator()
	var ticks []int
	crash := errors.New("crash")

	primary := Unit{Name: "primary", Func: func(ctx context.Context) (any, error) {
		if err := scheduler.Sleep(ctx, 2*time.Second); err != nil {
			return nil, err
		}
		return nil, crash
	}}

	res, err := o.RunPrimaryWithMonitor(context.Background(), primary, ticker(&ticks))

	require.Error(t, err)
	assert.ErrorIs(t, err, crash)
	var failure *model.TaskFailure
	require.ErrorAs(t, err, &failure)
	assert.Equal(t, "primary", failure.Name)
	assert.Equal(t, model.TaskStateFailed, res.PrimaryState)
	assert.Equal(t, model.TaskStateCancelled, res.MonitorState)
}

func TestFanOutJoin_ResultsInSubmissionOrder(t *testing.T) {
	o, clock := newTestOrchestrator()

	results, err := o.RunFanOutJoin(context.Background(), []Unit{
		sleeper("txt", time.Second),
		sleeper("photo", 3*time.Second),
		sleeper("video", 5*time.Second),
	})

	require.NoError(t, err)
	assert.Equal(t, []any{"txt", "photo", "video"}, results)
	assert.Equal(t, epoch.Add(5*time.Second), clock.Now())
}

func TestFanOutJoin_ElapsedIsMaxNotSum(t *testing.T) {
	tests := []struct {
		name      string
		durations []time.Duration
		want      time.Duration
	}{
		{"single", []time.Duration{time.Second}, time.Second},
		{"pit stop", []time.Duration{2 * time.Second, 3 * time.Second}, 3 * time.Second},
		{"reversed", []time.Duration{5 * time.Second, time.Second, 3 * time.Second}, 5 * time.Second},
		{"empty", nil, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			o, clock := newTestOrchestrator()
			units := make([]Unit, 0, len(tt.durations))
			for i, d := range tt.durations {
				units = append(units, sleeper(fmt.Sprintf("u%d", i), d))
			}

			results, err := o.RunFanOutJoin(context.Background(), units)

			require.NoError(t, err)
			assert.Len(t, results, len(tt.durations))
			assert.Equal(t, epoch.Add(tt.want), clock.Now())
		})
	}
}

func TestFanOutJoin_FailureWaitsForSiblings(t *testing.T) {
	o, clock := newTestOrchestrator()
	bad := errors.New("bad upload")

	failing := Unit{Name: "failing", Func: func(ctx context.Context) (any, error) {
		if err := scheduler.Sleep(ctx, time.Second); err != nil {
			return nil, err
		}
		return nil, bad
	}}

	var slow *scheduler.Task
	results, err := o.Run(context.Background(), "root", func(ctx context.Context) (any, error) {
		tasks, err := FanOut(ctx, failing, sleeper("slow", 4*time.Second))
		if err != nil {
			return nil, err
		}
		slow = tasks[1]
		return Join(ctx, tasks)
	})

	require.Error(t, err)
	assert.ErrorIs(t, err, bad)
	assert.Nil(t, results)
	assert.Equal(t, model.TaskStateCompleted, slow.State())
	assert.Equal(t, epoch.Add(4*time.Second), clock.Now())
}

func TestFanOutJoin_PartialResultsOnFailure(t *testing.T) {
	o, _ := newTestOrchestrator()

	failing := Unit{Name: "failing", Func: func(ctx context.Context) (any, error) {
		return nil, errors.New("nope")
	}}

	results, err := o.RunFanOutJoin(context.Background(), []Unit{failing, sleeper("ok", time.Second)})

	require.Error(t, err)
	assert.Equal(t, []any{nil, "ok"}, results)
}

func TestFanOut_NilFuncStopsStartedUnits(t *testing.T) {
	o, _ := newTestOrchestrator()

	_, err := o.RunFanOutJoin(context.Background(), []Unit{
		sleeper("fine", time.Hour),
		{Name: "broken"},
	})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "broken")
}

func TestFanOutJoin_OuterCancellationReachesEveryTask(t *testing.T) {
	o, clock := newTestOrchestrator()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	canceller := Unit{Name: "canceller", Func: func(ctx context.Context) (any, error) {
		if err := scheduler.Sleep(ctx, 2*time.Second); err != nil {
			return nil, err
		}
		cancel()
		return "cancelled outer", nil
	}}

	_, err := o.RunFanOutJoin(ctx, []Unit{canceller, sleeper("long", time.Hour)})

	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, epoch.Add(2*time.Second), clock.Now())
}

func TestWithDeadline(t *testing.T) {
	tests := []struct {
		name     string
		work     time.Duration
		deadline time.Duration
		wantErr  bool
		wantNow  time.Duration
	}{
		{"finishes in time", time.Second, 2 * time.Second, false, time.Second},
		{"deadline wins", 5 * time.Second, 2 * time.Second, true, 2 * time.Second},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			o, clock := newTestOrchestrator()

			got, err := o.RunWithDeadline(context.Background(), tt.deadline, sleeper("work", tt.work))

			if tt.wantErr {
				require.Error(t, err)
				assert.ErrorIs(t, err, ErrDeadlineExceeded)
				assert.Nil(t, got)
			} else {
				require.NoError(t, err)
				assert.Equal(t, "work", got)
			}
			assert.Equal(t, epoch.Add(tt.wantNow), clock.Now())
		})
	}
}

func TestRunPrimary_UnwrapsRootFailure(t *testing.T) {
	o, _ := newTestOrchestrator()
	sentinel := errors.New("upstream down")

	_, err := o.RunPrimary(context.Background(), Unit{Name: "ask", Func: func(ctx context.Context) (any, error) {
		return nil, sentinel
	}})

	assert.Equal(t, sentinel, err)
}

func TestPrimaryWithMonitor_OutsideTask(t *testing.T) {
	_, err := PrimaryWithMonitor(context.Background(), sleeper("p", time.Second), sleeper("m", time.Second))
	assert.ErrorIs(t, err, scheduler.ErrNotInTask)
}
