package automation

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/san-kum/flattraj/internal/config"
	"github.com/san-kum/flattraj/internal/experiment"
)

var validate = validator.New()

// Scenario is a scripted sequence of planning problems.
type Scenario struct {
	Name        string         `yaml:"name"`
	Description string         `yaml:"description"`
	Steps       []ScenarioStep `yaml:"steps" validate:"required,min=1,dive"`

	// dir resolves relative problem paths.
	dir string
}

// ScenarioStep names a problem by preset ("car/lane-change") or by file and
// overrides some of its fields.
type ScenarioStep struct {
	Preset  string             `yaml:"preset,omitempty" validate:"required_without=Problem,excluded_with=Problem"`
	Problem string             `yaml:"problem,omitempty"`
	Params  map[string]float64 `yaml:"params,omitempty"`
	Tf      float64            `yaml:"tf,omitempty" validate:"gte=0"`
	Runs    int                `yaml:"runs,omitempty" validate:"gte=0"`
}

// LoadScenario loads a scenario from a YAML file
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	var scenario Scenario
	if err := dec.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("scenario %s: %w", path, err)
	}
	if err := validate.Struct(&scenario); err != nil {
		return nil, fmt.Errorf("scenario %s: %w", path, err)
	}
	scenario.dir = filepath.Dir(path)

	return &scenario, nil
}

// problem builds the problem of one step.
func (s *Scenario) problem(step ScenarioStep) (*config.Problem, error) {
	var p *config.Problem
	if step.Preset != "" {
		system, name, ok := strings.Cut(step.Preset, "/")
		if !ok {
			return nil, fmt.Errorf("preset %q is not system/name", step.Preset)
		}
		if p = config.GetPreset(system, name); p == nil {
			return nil, fmt.Errorf("unknown preset %s", step.Preset)
		}
	} else {
		path := step.Problem
		if !filepath.IsAbs(path) {
			path = filepath.Join(s.dir, path)
		}
		var err error
		if p, err = config.Load(path); err != nil {
			return nil, err
		}
	}

	if len(step.Params) > 0 {
		params := make(map[string]float64, len(p.Params)+len(step.Params))
		for k, v := range p.Params {
			params[k] = v
		}
		for k, v := range step.Params {
			params[k] = v
		}
		p.Params = params
	}
	if step.Tf > 0 {
		p.Tf = step.Tf
	}
	if step.Runs > 0 {
		p.Simulation.Runs = step.Runs
	}
	return p, nil
}

// RunScenario executes all steps in a scenario and stops at the first
// failure, returning the outcomes so far.
func RunScenario(ctx context.Context, scenario *Scenario, registry *experiment.Registry, logger *slog.Logger) ([]*experiment.Outcome, error) {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	results := make([]*experiment.Outcome, 0, len(scenario.Steps))

	for i, step := range scenario.Steps {
		p, err := scenario.problem(step)
		if err != nil {
			return results, fmt.Errorf("step %d: %w", i+1, err)
		}
		logger.Info("scenario step", "step", i+1, "of", len(scenario.Steps), "system", p.System, "problem", p.Name)

		exp, err := experiment.New(p, registry, logger)
		if err != nil {
			return results, fmt.Errorf("step %d setup: %w", i+1, err)
		}

		out, err := exp.Run(ctx)
		if err != nil {
			return results, fmt.Errorf("step %d run: %w", i+1, err)
		}

		results = append(results, out)
	}

	return results, nil
}

// ParameterSweep re-plans a problem across a range of one physical
// parameter.
type ParameterSweep struct {
	Problem   *config.Problem
	ParamName string
	ParamMin  float64
	ParamMax  float64
	NumSteps  int
}

// SweepResult holds one parameter value of a sweep. Err is set when that
// value could not be planned or simulated.
type SweepResult struct {
	ParamValue  float64
	Cost        float64
	Effort      float64
	TrackingRMS float64
	FinalError  float64
	Err         error
}

// RunSweep executes a parameter sweep. Values that fail are recorded in
// their SweepResult; only an invalid sweep or a canceled context aborts.
func RunSweep(ctx context.Context, sweep *ParameterSweep, registry *experiment.Registry, logger *slog.Logger) ([]SweepResult, error) {
	if sweep.NumSteps < 2 {
		return nil, fmt.Errorf("sweep needs at least 2 steps, got %d", sweep.NumSteps)
	}
	if sweep.ParamMax < sweep.ParamMin {
		return nil, fmt.Errorf("sweep range [%g, %g] is empty", sweep.ParamMin, sweep.ParamMax)
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	results := make([]SweepResult, 0, sweep.NumSteps)
	paramStep := (sweep.ParamMax - sweep.ParamMin) / float64(sweep.NumSteps-1)

	for i := 0; i < sweep.NumSteps; i++ {
		if err := ctx.Err(); err != nil {
			return results, err
		}
		paramVal := sweep.ParamMin + float64(i)*paramStep

		p := *sweep.Problem
		p.Params = make(map[string]float64, len(sweep.Problem.Params)+1)
		for k, v := range sweep.Problem.Params {
			p.Params[k] = v
		}
		p.Params[sweep.ParamName] = paramVal

		res := SweepResult{ParamValue: paramVal}
		exp, err := experiment.New(&p, registry, logger)
		if err == nil {
			var out *experiment.Outcome
			if out, err = exp.Run(ctx); err == nil {
				res.Cost = out.Trajectory.Cost()
				res.Effort = out.Result.Metrics["control_effort"]
				res.TrackingRMS = out.Result.Metrics["tracking_rms"]
				res.FinalError = out.Result.Metrics["final_error"]
			}
		}
		res.Err = err
		logger.Debug("parameter sweep", "step", i+1, "param", sweep.ParamName, "value", paramVal, "err", err)

		results = append(results, res)
	}

	return results, nil
}
