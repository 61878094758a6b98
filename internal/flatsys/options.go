package flatsys

import (
	"fmt"
	"log/slog"
	"math"

	"github.com/san-kum/flattraj/internal/linalg"
	"github.com/san-kum/flattraj/internal/optim"
)

// OversizePolicy selects how the point-to-point solver treats a basis with
// more functions than boundary equations.
type OversizePolicy int

const (
	// MinNorm picks the minimum-norm coefficient vector among all exact
	// solutions of the boundary equations.
	MinNorm OversizePolicy = iota

	// Exact requires the basis size to equal the number of boundary
	// equations for every flat output.
	Exact
)

func (p OversizePolicy) String() string {
	switch p {
	case MinNorm:
		return "min-norm"
	case Exact:
		return "exact"
	default:
		return fmt.Sprintf("OversizePolicy(%d)", int(p))
	}
}

// ParseOversizePolicy maps "min-norm" and "exact" to a policy.
func ParseOversizePolicy(s string) (OversizePolicy, error) {
	switch s {
	case "", "min-norm", "minnorm", "lstsq":
		return MinNorm, nil
	case "exact":
		return Exact, nil
	default:
		return 0, configErr("options", "unknown oversize policy %q", s)
	}
}

// Endpoint is a physical state and input pair at one end of a trajectory.
type Endpoint struct {
	X []float64
	U []float64
}

// P2POptions configures PointToPoint.
type P2POptions struct {
	// Solver solves each output's boundary system; nil means linalg.SVD.
	Solver linalg.Solver

	Oversize OversizePolicy

	// Tolerance bounds the boundary residual, relative to max(1, |rhs|).
	Tolerance float64

	// RCond is the relative singular value cutoff for rank decisions.
	RCond float64

	Logger *slog.Logger
}

// DefaultP2POptions returns a fresh default configuration.
func DefaultP2POptions() P2POptions {
	return P2POptions{
		Solver:    linalg.SVD{RCond: linalg.DefaultRCond},
		Oversize:  MinNorm,
		Tolerance: 1e-8,
		RCond:     linalg.DefaultRCond,
	}
}

func (o P2POptions) withDefaults() P2POptions {
	d := DefaultP2POptions()
	if o.Solver == nil {
		o.Solver = d.Solver
	}
	if o.Tolerance == 0 {
		o.Tolerance = d.Tolerance
	}
	if o.RCond == 0 {
		o.RCond = d.RCond
	}
	if o.Logger == nil {
		o.Logger = slog.New(slog.DiscardHandler)
	}
	return o
}

func (o P2POptions) validate() error {
	if o.Oversize != MinNorm && o.Oversize != Exact {
		return configErr("options", "unknown oversize policy %v", o.Oversize)
	}
	if !(o.Tolerance > 0) || math.IsInf(o.Tolerance, 0) {
		return configErr("options", "tolerance must be positive and finite, got %g", o.Tolerance)
	}
	if !(o.RCond > 0) || o.RCond >= 1 {
		return configErr("options", "rcond must be in (0, 1), got %g", o.RCond)
	}
	return nil
}

// OCPOptions configures SolveOCP.
type OCPOptions struct {
	// Optimizer runs the constrained search over the free coefficients;
	// nil means an augmented Lagrangian built from Settings.
	Optimizer optim.Optimizer
	Settings  optim.Settings

	// Solver finds the particular solution of each output's boundary
	// system; nil means linalg.SVD with RCond.
	Solver linalg.Solver

	// Tolerance bounds boundary residuals and the final constraint check.
	Tolerance float64
	RCond     float64

	// Samples is the number of uniform collocation times used when the
	// problem does not list its own.
	Samples int

	Logger *slog.Logger
}

// DefaultOCPOptions returns a fresh default configuration.
func DefaultOCPOptions() OCPOptions {
	return OCPOptions{
		Settings:  optim.DefaultSettings(),
		Tolerance: 1e-5,
		RCond:     linalg.DefaultRCond,
		Samples:   50,
	}
}

func (o OCPOptions) withDefaults() OCPOptions {
	d := DefaultOCPOptions()
	if o.Settings.Method == "" && o.Settings.MaxIterations == 0 {
		o.Settings = d.Settings
	}
	if o.Tolerance == 0 {
		o.Tolerance = d.Tolerance
	}
	if o.RCond == 0 {
		o.RCond = d.RCond
	}
	if o.Solver == nil {
		o.Solver = linalg.SVD{RCond: o.RCond}
	}
	if o.Samples == 0 {
		o.Samples = d.Samples
	}
	if o.Logger == nil {
		o.Logger = slog.New(slog.DiscardHandler)
	}
	if o.Settings.Logger == nil {
		o.Settings.Logger = o.Logger
	}
	return o
}

func (o OCPOptions) validate() error {
	if !(o.Tolerance > 0) || math.IsInf(o.Tolerance, 0) {
		return configErr("options", "tolerance must be positive and finite, got %g", o.Tolerance)
	}
	if !(o.RCond > 0) || o.RCond >= 1 {
		return configErr("options", "rcond must be in (0, 1), got %g", o.RCond)
	}
	if o.Samples < 2 {
		return configErr("options", "need at least two collocation samples, got %d", o.Samples)
	}
	return nil
}

func (o OCPOptions) optimizer() (optim.Optimizer, error) {
	if o.Optimizer != nil {
		return o.Optimizer, nil
	}
	al, err := optim.NewAugmentedLagrangian(o.Settings)
	if err != nil {
		return nil, configErr("options", "optimizer settings: %v", err)
	}
	return al, nil
}
