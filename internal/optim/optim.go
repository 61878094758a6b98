// Package optim provides the constrained optimizers used by the optimal
// control solver and a grid search for caller-level parameter sweeps.
//
// Constrained problems are stated as
//
//	minimize f(x)  subject to  h(x) = 0,  g(x) >= 0
//
// and solved by [AugmentedLagrangian], which runs a gonum optimize method
// on a sequence of penalized unconstrained subproblems.
package optim

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"gonum.org/v1/gonum/optimize"
)

var (
	// ErrNotConverged indicates the inner method failed before reaching a
	// usable point.
	ErrNotConverged = errors.New("optim: optimizer did not converge")

	// ErrInfeasible indicates the constraints are still violated beyond
	// tolerance after the outer iteration budget was spent.
	ErrInfeasible = errors.New("optim: constraints could not be satisfied")

	// ErrBadProblem indicates an inconsistent problem definition.
	ErrBadProblem = errors.New("optim: invalid problem")
)

// Problem is a constrained minimization problem over R^n.
type Problem struct {
	Func func(x []float64) float64

	// Grad is optional; central finite differences are used when nil.
	Grad func(grad, x []float64)

	// Eq fills dst (length NumEq) with h(x).
	Eq    func(dst, x []float64)
	NumEq int

	// Ineq fills dst (length NumIneq) with g(x), feasible when g(x) >= 0.
	Ineq    func(dst, x []float64)
	NumIneq int
}

func (p Problem) validate(n int) error {
	if p.Func == nil {
		return fmt.Errorf("%w: objective is required", ErrBadProblem)
	}
	if n == 0 {
		return fmt.Errorf("%w: empty decision vector", ErrBadProblem)
	}
	if p.NumEq < 0 || p.NumIneq < 0 {
		return fmt.Errorf("%w: negative constraint count", ErrBadProblem)
	}
	if p.NumEq > 0 && p.Eq == nil {
		return fmt.Errorf("%w: %d equality constraints without a function", ErrBadProblem, p.NumEq)
	}
	if p.NumIneq > 0 && p.Ineq == nil {
		return fmt.Errorf("%w: %d inequality constraints without a function", ErrBadProblem, p.NumIneq)
	}
	return nil
}

// Result reports the final point of a minimization.
type Result struct {
	X            []float64
	F            float64
	Iterations   int
	Evaluations  int
	Status       string
	MaxViolation float64
}

// Optimizer minimizes a constrained problem from a starting point.
type Optimizer interface {
	Name() string
	Minimize(p Problem, x0 []float64) (*Result, error)
}

// Settings configures [AugmentedLagrangian].
type Settings struct {
	// Method is the inner unconstrained method: bfgs, lbfgs, cg or
	// nelder-mead.
	Method string

	// MaxIterations caps the outer multiplier updates.
	MaxIterations int

	// MaxInnerIterations caps the major iterations of each inner solve.
	MaxInnerIterations int

	// MaxEvaluations caps objective evaluations per inner solve, 0 means no
	// limit.
	MaxEvaluations int

	// Tolerance is the largest accepted constraint violation.
	Tolerance float64

	// GradientTolerance stops an inner solve once the gradient infinity
	// norm falls below it.
	GradientTolerance float64

	Penalty       float64
	PenaltyGrowth float64
	MaxPenalty    float64

	Logger *slog.Logger
}

// DefaultSettings returns a fresh default configuration.
func DefaultSettings() Settings {
	return Settings{
		Method:             "bfgs",
		MaxIterations:      30,
		MaxInnerIterations: 500,
		MaxEvaluations:     50000,
		Tolerance:          1e-6,
		GradientTolerance:  1e-9,
		Penalty:            10,
		PenaltyGrowth:      10,
		MaxPenalty:         1e10,
	}
}

// Methods lists the accepted inner method names.
func Methods() []string {
	return []string{"bfgs", "lbfgs", "cg", "nelder-mead"}
}

func newMethod(name string) (optimize.Method, error) {
	switch strings.ToLower(name) {
	case "", "bfgs":
		return &optimize.BFGS{}, nil
	case "lbfgs":
		return &optimize.LBFGS{}, nil
	case "cg":
		return &optimize.CG{}, nil
	case "nelder-mead", "neldermead":
		return &optimize.NelderMead{}, nil
	default:
		return nil, fmt.Errorf("%w: unknown method %q (want one of %s)",
			ErrBadProblem, name, strings.Join(Methods(), ", "))
	}
}

func (s Settings) validate() error {
	if _, err := newMethod(s.Method); err != nil {
		return err
	}
	if s.MaxIterations < 1 {
		return fmt.Errorf("%w: max iterations must be positive, got %d", ErrBadProblem, s.MaxIterations)
	}
	if s.MaxInnerIterations < 0 || s.MaxEvaluations < 0 {
		return fmt.Errorf("%w: iteration and evaluation caps must not be negative", ErrBadProblem)
	}
	if !(s.Tolerance > 0) {
		return fmt.Errorf("%w: tolerance must be positive, got %g", ErrBadProblem, s.Tolerance)
	}
	if !(s.Penalty > 0) || s.PenaltyGrowth < 1 || s.MaxPenalty < s.Penalty {
		return fmt.Errorf("%w: penalty schedule %g x%g up to %g is invalid",
			ErrBadProblem, s.Penalty, s.PenaltyGrowth, s.MaxPenalty)
	}
	return nil
}

func (s Settings) logger() *slog.Logger {
	if s.Logger == nil {
		return slog.New(slog.DiscardHandler)
	}
	return s.Logger
}
