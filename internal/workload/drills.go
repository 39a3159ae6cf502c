// Package workload contains the work run by corun: the cooperative
// concurrency drills and user-supplied YAML plans.
package workload

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/me/corun/internal/orchestrator"
	"github.com/me/corun/internal/scheduler"
)

// Announce prints "A", sleeps for d and prints "B".
func Announce(w io.Writer, d time.Duration) orchestrator.Unit {
	return orchestrator.Unit{Name: "announce", Func: func(ctx context.Context) (any, error) {
		fmt.Fprintln(w, "A")
		if err := scheduler.Sleep(ctx, d); err != nil {
			return nil, err
		}
		fmt.Fprintln(w, "B")
		return "B", nil
	}}
}

// Stopwatch prints the whole seconds elapsed since it started, every tick,
// until it is cancelled. It never returns on its own.
func Stopwatch(w io.Writer, name string, tick time.Duration) orchestrator.Unit {
	if tick <= 0 {
		tick = time.Second
	}
	return orchestrator.Unit{Name: name, Func: func(ctx context.Context) (any, error) {
		start := scheduler.Now(ctx)
		for {
			fmt.Fprintf(w, "Elapsed: %ds\n", seconds(scheduler.Now(ctx).Sub(start)))
			if err := scheduler.Sleep(ctx, tick); err != nil {
				return nil, err
			}
		}
	}}
}

// StillRunning yields once so the freshly started tasks take their first
// step, then prints a line from the orchestrating task.
func StillRunning(w io.Writer) scheduler.Func {
	return func(ctx context.Context) (any, error) {
		if err := scheduler.Sleep(ctx, 0); err != nil {
			return nil, err
		}
		fmt.Fprintln(w, "still running")
		return nil, nil
	}
}

// MonitorDrill runs Announce as the primary with a one-second Stopwatch as the
// monitor. The stopwatch is cancelled once the primary prints "B".
func MonitorDrill(ctx context.Context, o *orchestrator.Orchestrator, w io.Writer, primaryFor time.Duration) (orchestrator.PrimaryResult, error) {
	return o.RunPrimaryWithMonitor(ctx,
		Announce(w, primaryFor),
		Stopwatch(w, "stopwatch", time.Second),
		orchestrator.AfterStart(StillRunning(w)),
	)
}

// stage is one print-then-sleep step of a drill task.
type stage struct {
	say   string
	sleep time.Duration
}

func staged(w io.Writer, name string, result any, stages []stage, done string) orchestrator.Unit {
	return orchestrator.Unit{Name: name, Func: func(ctx context.Context) (any, error) {
		for _, s := range stages {
			fmt.Fprintln(w, s.say)
			if err := scheduler.Sleep(ctx, s.sleep); err != nil {
				return nil, err
			}
		}
		fmt.Fprintln(w, done)
		return result, nil
	}}
}

// ChangeTires takes the old tire off and bolts the new one on, one second each.
func ChangeTires(w io.Writer) orchestrator.Unit {
	return staged(w, "change-tires", "tires", []stage{
		{say: "Removing the tire", sleep: time.Second},
		{say: "Fitting and bolting the tire", sleep: time.Second},
	}, "Tires changed")
}

// Refuel fills the tank in three seconds.
func Refuel(w io.Writer) orchestrator.Unit {
	return staged(w, "refuel", "fuel", []stage{
		{say: "Refuelling", sleep: 3 * time.Second},
	}, "Car refuelled")
}

// PitStop changes the tires and refuels at the same time. It takes as long as
// the slower of the two.
func PitStop(ctx context.Context, o *orchestrator.Orchestrator, w io.Writer) ([]any, error) {
	return o.RunFanOutJoin(ctx, []orchestrator.Unit{ChangeTires(w), Refuel(w)})
}

// Upload unpacks a file for one second, uploads it for d and reports the
// elapsed time under label.
func Upload(w io.Writer, label string, d time.Duration) orchestrator.Unit {
	return orchestrator.Unit{Name: "upload-" + label, Func: func(ctx context.Context) (any, error) {
		start := scheduler.Now(ctx)
		fmt.Fprintln(w, "Unpacking file")
		if err := scheduler.Sleep(ctx, time.Second); err != nil {
			return nil, err
		}
		fmt.Fprintln(w, "Uploading file")
		if err := scheduler.Sleep(ctx, d); err != nil {
			return nil, err
		}
		fmt.Fprintf(w, "Upload done - %s\n", label)
		fmt.Fprintf(w, "Elapsed: %ds - %s\n", seconds(scheduler.Now(ctx).Sub(start)), label)
		return label, nil
	}}
}

// Uploads sends a photo, a video and a text file concurrently and returns the
// labels in that order.
func Uploads(ctx context.Context, o *orchestrator.Orchestrator, w io.Writer) ([]any, error) {
	return o.RunFanOutJoin(ctx, []orchestrator.Unit{
		Upload(w, "photo", 3*time.Second),
		Upload(w, "video", 5*time.Second),
		Upload(w, "txt", time.Second),
	})
}

func seconds(d time.Duration) int {
	return int(d / time.Second)
}
