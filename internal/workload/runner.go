package workload

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/hackebrot/go-fibonacci"
	"gopkg.in/yaml.v3"

	"github.com/me/corun/internal/logging"
	"github.com/me/corun/internal/orchestrator"
	"github.com/me/corun/internal/scheduler"
	"github.com/me/corun/pkg/model"
)

// Report is the outcome of a plan run.
type Report struct {
	Plan    string              `json:"plan" yaml:"plan"`
	Elapsed string              `json:"elapsed" yaml:"elapsed"`
	Results []any               `json:"results" yaml:"results"`
	Units   []model.TaskSummary `json:"units" yaml:"units"`
	Monitor *model.TaskSummary  `json:"monitor,omitempty" yaml:"monitor,omitempty"`
	Error   string              `json:"error,omitempty" yaml:"error,omitempty"`
}

// Runner executes plans on an orchestrator. Step output goes to out.
type Runner struct {
	orch   *orchestrator.Orchestrator
	out    io.Writer
	fib    fibonacci.Strategy
	logger *slog.Logger
}

// NewRunner creates a plan runner.
func NewRunner(orch *orchestrator.Orchestrator, out io.Writer, logger *slog.Logger) *Runner {
	return &Runner{
		orch:   orch,
		out:    out,
		fib:    fibonacci.NewRecursive(),
		logger: logging.Component(logger, "workload"),
	}
}

// Run fans out the plan's units and joins them. With a monitor configured the
// fan-out is the primary of a primary-with-monitor run. The report is returned
// even when a unit fails.
func (r *Runner) Run(ctx context.Context, p *Plan) (*Report, error) {
	units := make([]orchestrator.Unit, 0, len(p.Units))
	for _, u := range p.Units {
		units = append(units, r.unit(u))
	}

	var (
		tasks       []*scheduler.Task
		results     []any
		monitorTask *scheduler.Task
		elapsed     time.Duration
	)
	fanOut := func(ctx context.Context) (any, error) {
		start := scheduler.Now(ctx)
		defer func() { elapsed = scheduler.Now(ctx).Sub(start) }()
		ts, err := orchestrator.FanOut(ctx, units...)
		if err != nil {
			return nil, err
		}
		tasks = ts
		var joinErr error
		results, joinErr = orchestrator.Join(ctx, ts)
		return results, joinErr
	}

	r.logger.Info("plan started", "plan", p.Name, "units", len(units), "monitor", p.Monitor != nil)

	var err error
	if p.Monitor != nil {
		name := p.Monitor.Name
		if name == "" {
			name = "monitor"
		}
		watch := Stopwatch(r.out, name, p.Monitor.Tick)
		monitor := orchestrator.Unit{Name: name, Func: func(ctx context.Context) (any, error) {
			monitorTask = scheduler.CurrentTask(ctx)
			return watch.Func(ctx)
		}}
		_, err = r.orch.RunPrimaryWithMonitor(ctx, orchestrator.Unit{Name: p.Name, Func: fanOut}, monitor)
	} else {
		_, err = r.orch.Run(ctx, p.Name, fanOut)
	}

	report := &Report{
		Plan:    p.Name,
		Elapsed: elapsed.String(),
		Results: results,
	}
	for _, t := range tasks {
		report.Units = append(report.Units, t.Summary())
	}
	if monitorTask != nil {
		s := monitorTask.Summary()
		report.Monitor = &s
	}
	if err != nil {
		report.Error = err.Error()
	}

	r.logger.Info("plan finished", "plan", p.Name, "elapsed", report.Elapsed, "error", err)
	return report, err
}

func (r *Runner) unit(u PlanUnit) orchestrator.Unit {
	work := orchestrator.Unit{Name: u.Name, Func: func(ctx context.Context) (any, error) {
		start := scheduler.Now(ctx)
		var last any
		for i, s := range u.Steps {
			v, err := r.step(ctx, u.Name, s, evalEnv{Unit: u.Name, Elapsed: scheduler.Now(ctx).Sub(start).Seconds(), Last: last})
			if err != nil {
				return nil, fmt.Errorf("step %d: %w", i, err)
			}
			if s.Eval != "" {
				last = v
			}
		}
		switch {
		case u.Result != "":
			return u.Result, nil
		case last != nil:
			return last, nil
		}
		return u.Name, nil
	}}
	if u.Deadline <= 0 {
		return work
	}
	return orchestrator.Unit{Name: u.Name, Func: func(ctx context.Context) (any, error) {
		return orchestrator.WithDeadline(ctx, u.Deadline, work)
	}}
}

func (r *Runner) step(ctx context.Context, unit string, s Step, env evalEnv) (any, error) {
	switch {
	case s.Say != "":
		fmt.Fprintf(r.out, "[%s] %s\n", unit, s.Say)
	case s.Sleep != nil:
		return nil, scheduler.Sleep(ctx, *s.Sleep)
	case s.Fib != nil:
		// Runs between suspension points, so it holds the baton until done.
		v := r.fib.Compute(*s.Fib)
		fmt.Fprintf(r.out, "[%s] fib(%d) = %v\n", unit, *s.Fib, v)
	case s.Fail != "":
		return nil, errors.New(s.Fail)
	case s.Eval != "":
		v, err := evaluate(s.Eval, env)
		if err != nil {
			return nil, err
		}
		fmt.Fprintf(r.out, "[%s] %s => %v\n", unit, s.Eval, v)
		return v, nil
	}
	return nil, nil
}

// Report output formats.
const (
	FormatText = "text"
	FormatJSON = "json"
	FormatYAML = "yaml"
)

// WriteReport renders a report as text, json or yaml.
func WriteReport(w io.Writer, rep *Report, format string) error {
	switch strings.ToLower(format) {
	case FormatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(rep)
	case FormatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(rep); err != nil {
			return err
		}
		return enc.Close()
	case FormatText, "":
		return writeText(w, rep)
	default:
		return fmt.Errorf("unknown output format %q (want %s, %s or %s)", format, FormatText, FormatJSON, FormatYAML)
	}
}

func writeText(w io.Writer, rep *Report) error {
	fmt.Fprintf(w, "Plan:    %s\n", rep.Plan)
	fmt.Fprintf(w, "Elapsed: %s\n\n", rep.Elapsed)
	fmt.Fprintf(w, "%-20s  %-10s  %-10s  %s\n", "UNIT", "STATE", "ELAPSED", "RESULT")
	fmt.Fprintf(w, "%-20s  %-10s  %-10s  %s\n", "----", "-----", "-------", "------")
	rows := rep.Units
	if rep.Monitor != nil {
		rows = append(rows[:len(rows):len(rows)], *rep.Monitor)
	}
	for _, s := range rows {
		result := s.Error
		if result == "" && s.Value != nil {
			result = fmt.Sprint(s.Value)
		}
		fmt.Fprintf(w, "%-20s  %-10s  %-10s  %s\n", s.Name, s.State, s.Elapsed(), result)
	}
	if rep.Error != "" {
		fmt.Fprintf(w, "\nError: %s\n", rep.Error)
	}
	return nil
}
