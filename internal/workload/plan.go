package workload

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Plan is a YAML description of units to fan out, optionally watched by a
// stopwatch monitor.
//
//	name: release
//	monitor:
//	  name: stopwatch
//	  tick: 1s
//	units:
//	  - name: build
//	    deadline: 30s
//	    steps:
//	      - say: compiling
//	      - sleep: 2s
//	      - fib: 25
//	      - eval: "unit + ' ok after ' + elapsed + 's'"
//	    result: binary
type Plan struct {
	Name    string       `yaml:"name" json:"name" validate:"required"`
	Monitor *MonitorSpec `yaml:"monitor,omitempty" json:"monitor,omitempty"`
	Units   []PlanUnit   `yaml:"units" json:"units" validate:"required,min=1,dive"`
}

// MonitorSpec configures the plan's stopwatch monitor.
type MonitorSpec struct {
	Name string        `yaml:"name,omitempty" json:"name,omitempty"`
	Tick time.Duration `yaml:"tick,omitempty" json:"tick,omitempty"`
}

// PlanUnit is one task of a plan. Result is the value the unit returns when
// every step succeeds; it defaults to the value of the last eval step, then to
// the unit name. A positive Deadline races the unit against a timer.
type PlanUnit struct {
	Name     string        `yaml:"name" json:"name" validate:"required"`
	Steps    []Step        `yaml:"steps" json:"steps" validate:"dive"`
	Result   string        `yaml:"result,omitempty" json:"result,omitempty"`
	Deadline time.Duration `yaml:"deadline,omitempty" json:"deadline,omitempty"`
}

// Step is a single action. Exactly one field must be set. Sleep and Fib are
// pointers so that "sleep: 0s", a bare yield, and "fib: 0" count as set.
type Step struct {
	Say   string         `yaml:"say,omitempty" json:"say,omitempty"`
	Sleep *time.Duration `yaml:"sleep,omitempty" json:"sleep,omitempty"`
	Fib   *int           `yaml:"fib,omitempty" json:"fib,omitempty" validate:"omitempty,gte=0,lte=35"`
	Fail  string         `yaml:"fail,omitempty" json:"fail,omitempty"`
	Eval  string         `yaml:"eval,omitempty" json:"eval,omitempty"`
}

func (s Step) actions() int {
	n := 0
	if s.Say != "" {
		n++
	}
	if s.Sleep != nil {
		n++
	}
	if s.Fib != nil {
		n++
	}
	if s.Fail != "" {
		n++
	}
	if s.Eval != "" {
		n++
	}
	return n
}

var validate = validator.New()

// LoadPlan reads and validates a plan file.
func LoadPlan(path string) (*Plan, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read plan: %w", err)
	}
	return ParsePlan(data)
}

// ParsePlan decodes and validates a YAML plan. Unknown fields are rejected.
func ParsePlan(data []byte) (*Plan, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	var p Plan
	if err := dec.Decode(&p); err != nil {
		return nil, fmt.Errorf("parse plan: %w", err)
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return &p, nil
}

// Validate checks struct tags and the rules tags cannot express.
func (p *Plan) Validate() error {
	if err := validate.Struct(p); err != nil {
		return fmt.Errorf("invalid plan: %w", err)
	}

	var errs []error
	seen := make(map[string]bool, len(p.Units))
	for i, u := range p.Units {
		if seen[u.Name] {
			errs = append(errs, fmt.Errorf("units[%d]: duplicate name %q", i, u.Name))
		}
		seen[u.Name] = true
		if u.Deadline < 0 {
			errs = append(errs, fmt.Errorf("units[%d] %s: negative deadline", i, u.Name))
		}
		for j, s := range u.Steps {
			if n := s.actions(); n != 1 {
				errs = append(errs, fmt.Errorf("units[%d] %s: step %d has %d actions, want exactly one", i, u.Name, j, n))
			}
			if s.Sleep != nil && *s.Sleep < 0 {
				errs = append(errs, fmt.Errorf("units[%d] %s: step %d: negative sleep", i, u.Name, j))
			}
		}
	}
	if p.Monitor != nil && p.Monitor.Tick < 0 {
		errs = append(errs, errors.New("monitor: negative tick"))
	}
	if len(errs) > 0 {
		return fmt.Errorf("invalid plan: %w", errors.Join(errs...))
	}
	return nil
}
