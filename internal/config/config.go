package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

const (
	DefaultDt       = 0.01
	DefaultSamples  = 50
	DefaultSize     = 8
	DefaultSeed     = 1
	DefaultMaxIters = 30
)

// ErrInvalid wraps every validation failure of a problem file.
var ErrInvalid = errors.New("config: invalid problem")

var validate = validator.New()

// Problem is a trajectory generation problem as read from a YAML file.
type Problem struct {
	Name   string             `yaml:"name"`
	System string             `yaml:"system" validate:"required,oneof=car spring cruise"`
	Params map[string]float64 `yaml:"params,omitempty"`

	// Masses sets the length of the spring chain.
	Masses int `yaml:"masses,omitempty" validate:"gte=0,lte=8"`

	Mode     string  `yaml:"mode" validate:"oneof=p2p ocp"`
	T0       float64 `yaml:"t0"`
	Tf       float64 `yaml:"tf" validate:"gtfield=T0"`
	Solver   string  `yaml:"solver" validate:"oneof=svd qr"`
	Oversize string  `yaml:"oversize" validate:"oneof=min-norm exact"`

	Basis BasisConfig `yaml:"basis"`
	Start Endpoint    `yaml:"start"`

	// End is nil for a free endpoint, allowed in ocp mode only.
	End *Endpoint `yaml:"end,omitempty"`

	Cost        CostConfig       `yaml:"cost,omitempty"`
	Constraints ConstraintConfig `yaml:"constraints,omitempty"`
	Optimizer   OptimizerConfig  `yaml:"optimizer"`
	Simulation  SimConfig        `yaml:"simulation"`
}

type BasisConfig struct {
	Family string  `yaml:"family" validate:"oneof=poly bezier bspline"`
	Size   int     `yaml:"size,omitempty" validate:"gte=0"`
	Scale  float64 `yaml:"scale,omitempty" validate:"gte=0"`

	// B-spline only.
	Breakpoints []float64 `yaml:"breakpoints,omitempty"`
	Degree      int       `yaml:"degree,omitempty" validate:"gte=0"`
	Smoothness  int       `yaml:"smoothness,omitempty" validate:"gte=0"`
}

// Endpoint is a boundary state and input. An empty U asks for the rest
// input that holds X.
type Endpoint struct {
	X []float64 `yaml:"x" validate:"required,min=1"`
	U []float64 `yaml:"u,omitempty"`
}

// CostConfig is a diagonal quadratic running cost plus an optional
// diagonal terminal cost.
type CostConfig struct {
	Q    []float64 `yaml:"q,omitempty" validate:"dive,gte=0"`
	R    []float64 `yaml:"r,omitempty" validate:"dive,gte=0"`
	XRef []float64 `yaml:"x_ref,omitempty"`
	URef []float64 `yaml:"u_ref,omitempty"`
	P    []float64 `yaml:"p,omitempty" validate:"dive,gte=0"`
}

// ConstraintConfig holds box bounds. YAML .inf and -.inf leave a side open.
type ConstraintConfig struct {
	InputLower []float64 `yaml:"input_lower,omitempty"`
	InputUpper []float64 `yaml:"input_upper,omitempty"`
	StateLower []float64 `yaml:"state_lower,omitempty"`
	StateUpper []float64 `yaml:"state_upper,omitempty"`
}

type OptimizerConfig struct {
	Method        string  `yaml:"method" validate:"oneof=bfgs lbfgs cg nelder-mead"`
	MaxIterations int     `yaml:"max_iterations" validate:"gt=0"`
	Tolerance     float64 `yaml:"tolerance" validate:"gt=0"`
	Samples       int     `yaml:"samples" validate:"gte=2"`
}

type SimConfig struct {
	Integrator    string      `yaml:"integrator" validate:"oneof=euler rk4 rk45"`
	Controller    string      `yaml:"controller" validate:"oneof=feedforward tracking none"`
	Dt            float64     `yaml:"dt" validate:"gt=0"`
	Adaptive      bool        `yaml:"adaptive,omitempty"`
	Tolerance     float64     `yaml:"tolerance,omitempty" validate:"gte=0"`
	ZeroOrderHold bool        `yaml:"zero_order_hold,omitempty"`
	Poles         []float64   `yaml:"poles,omitempty" validate:"dive,lt=0"`
	Gain          [][]float64 `yaml:"gain,omitempty"`

	// Runs > 1 simulates an ensemble of perturbed initial states.
	Runs  int       `yaml:"runs,omitempty" validate:"gte=0"`
	Sigma []float64 `yaml:"sigma,omitempty" validate:"dive,gte=0"`
	Seed  int64     `yaml:"seed,omitempty"`
}

func DefaultProblem() *Problem {
	return &Problem{
		System:   "car",
		Mode:     "p2p",
		Tf:       1,
		Solver:   "svd",
		Oversize: "min-norm",
		Basis:    BasisConfig{Family: "poly", Size: DefaultSize, Scale: 1},
		Optimizer: OptimizerConfig{
			Method:        "bfgs",
			MaxIterations: DefaultMaxIters,
			Tolerance:     1e-5,
			Samples:       DefaultSamples,
		},
		Simulation: SimConfig{
			Integrator: "rk4",
			Controller: "feedforward",
			Dt:         DefaultDt,
			Tolerance:  1e-6,
			Seed:       DefaultSeed,
		},
	}
}

// Load reads a problem file over DefaultProblem. Unknown keys are errors.
func Load(path string) (*Problem, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(data)
}

func Parse(data []byte) (*Problem, error) {
	p := DefaultProblem()
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(p); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return p, nil
}

func Save(path string, p *Problem) error {
	data, err := yaml.Marshal(p)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// Validate checks field ranges and the rules that span several fields.
// Dimension checks against the chosen system happen when the problem is
// built.
func (p *Problem) Validate() error {
	if err := validate.Struct(p); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			return fmt.Errorf("%w: %s fails %q (value %v)", ErrInvalid, fe.Namespace(), fe.Tag(), fe.Value())
		}
		return fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	if p.End == nil && p.Mode != "ocp" {
		return fmt.Errorf("%w: a free endpoint needs mode ocp", ErrInvalid)
	}
	if p.Basis.Family == "bspline" {
		if len(p.Basis.Breakpoints) < 2 {
			return fmt.Errorf("%w: bspline basis needs at least two breakpoints", ErrInvalid)
		}
	} else if p.Basis.Size <= 0 {
		return fmt.Errorf("%w: %s basis needs a positive size", ErrInvalid, p.Basis.Family)
	}
	if p.Simulation.Controller == "tracking" && len(p.Simulation.Poles) == 0 && len(p.Simulation.Gain) == 0 {
		return fmt.Errorf("%w: tracking controller needs poles or a gain", ErrInvalid)
	}
	if p.Simulation.Adaptive && p.Simulation.Tolerance <= 0 {
		return fmt.Errorf("%w: adaptive simulation needs a positive tolerance", ErrInvalid)
	}
	return nil
}
