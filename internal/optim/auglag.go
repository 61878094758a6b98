package optim

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/diff/fd"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/optimize"
)

// AugmentedLagrangian solves constrained problems with the
// Powell-Hestenes-Rockafellar augmented Lagrangian. Each outer iteration
// minimizes
//
//	f + sum lambda_i h_i + mu/2 sum h_i^2 + sum psi(g_j, nu_j, mu)
//
// with the configured gonum method, then updates the multipliers and grows
// mu while the violation does not shrink fast enough.
type AugmentedLagrangian struct {
	settings Settings
}

// NewAugmentedLagrangian validates the settings.
func NewAugmentedLagrangian(s Settings) (*AugmentedLagrangian, error) {
	if err := s.validate(); err != nil {
		return nil, err
	}
	return &AugmentedLagrangian{settings: s}, nil
}

func (a *AugmentedLagrangian) Name() string {
	return "auglag/" + a.settings.Method
}

func (a *AugmentedLagrangian) Settings() Settings { return a.settings }

type multipliers struct {
	lambda []float64
	nu     []float64
	mu     float64

	h, g []float64
}

func (a *AugmentedLagrangian) Minimize(p Problem, x0 []float64) (*Result, error) {
	if err := p.validate(len(x0)); err != nil {
		return nil, err
	}
	s := a.settings
	log := s.logger()

	m := &multipliers{
		lambda: make([]float64, p.NumEq),
		nu:     make([]float64, p.NumIneq),
		mu:     s.Penalty,
		h:      make([]float64, p.NumEq),
		g:      make([]float64, p.NumIneq),
	}
	constrained := p.NumEq+p.NumIneq > 0

	x := append([]float64(nil), x0...)
	res := &Result{Status: optimize.NotTerminated.String()}
	prevViolation := math.Inf(1)

	outer := s.MaxIterations
	if !constrained {
		outer = 1
	}
	last := optimize.NotTerminated
	var lastErr error
	for k := 0; k < outer; k++ {
		inner, err := a.inner(p, m, x)
		if inner == nil {
			return nil, fmt.Errorf("%w: %v", ErrNotConverged, err)
		}
		res.Iterations += inner.Stats.MajorIterations
		res.Evaluations += inner.Stats.FuncEvaluations
		res.Status = inner.Status.String()
		last, lastErr = inner.Status, err

		next := inner.Location.X
		if !allFinite(next) {
			return res, fmt.Errorf("%w: non-finite iterate after %d outer iterations", ErrNotConverged, k+1)
		}
		copy(x, next)

		violation := m.evaluate(p, x)
		log.Debug("augmented lagrangian iteration",
			"outer", k, "f", p.Func(x), "violation", violation, "mu", m.mu, "status", res.Status)

		if !constrained {
			if !usable(inner.Status) {
				res.X, res.F = x, p.Func(x)
				return res, notConverged(inner.Status, err, k+1)
			}
			break
		}
		res.MaxViolation = violation
		if violation <= s.Tolerance && usable(inner.Status) {
			break
		}
		m.update()
		if violation > 0.25*prevViolation {
			m.mu = math.Min(m.mu*s.PenaltyGrowth, s.MaxPenalty)
		}
		prevViolation = violation
	}

	res.X = x
	res.F = p.Func(x)
	if constrained {
		res.MaxViolation = m.evaluate(p, x)
		if res.MaxViolation > s.Tolerance {
			return res, fmt.Errorf("%w: max violation %.3g exceeds tolerance %.3g after %d outer iterations",
				ErrInfeasible, res.MaxViolation, s.Tolerance, s.MaxIterations)
		}
		if !usable(last) {
			return res, notConverged(last, lastErr, s.MaxIterations)
		}
	}
	return res, nil
}

// notConverged reports an inner solve that ran out of budget.
func notConverged(status optimize.Status, err error, outer int) error {
	if err != nil {
		return fmt.Errorf("%w: inner solve stopped with %v after %d outer iterations: %v", ErrNotConverged, status, outer, err)
	}
	return fmt.Errorf("%w: inner solve stopped with %v after %d outer iterations", ErrNotConverged, status, outer)
}

func (a *AugmentedLagrangian) inner(p Problem, m *multipliers, x0 []float64) (*optimize.Result, error) {
	s := a.settings
	method, err := newMethod(s.Method)
	if err != nil {
		return nil, err
	}

	h := make([]float64, p.NumEq)
	g := make([]float64, p.NumIneq)
	lagr := func(x []float64) float64 {
		v := p.Func(x)
		if p.NumEq > 0 {
			p.Eq(h, x)
			for i, hi := range h {
				v += m.lambda[i]*hi + 0.5*m.mu*hi*hi
			}
		}
		if p.NumIneq > 0 {
			p.Ineq(g, x)
			for j, gj := range g {
				v += psi(gj, m.nu[j], m.mu)
			}
		}
		return v
	}

	prob := optimize.Problem{Func: lagr}
	if _, derivativeFree := method.(*optimize.NelderMead); !derivativeFree {
		if p.Grad != nil && !constrainedProblem(p) {
			prob.Grad = p.Grad
		} else {
			fdSettings := &fd.Settings{Formula: fd.Central}
			prob.Grad = func(grad, x []float64) {
				fd.Gradient(grad, lagr, x, fdSettings)
			}
		}
	}

	settings := &optimize.Settings{
		MajorIterations:   s.MaxInnerIterations,
		FuncEvaluations:   s.MaxEvaluations,
		GradientThreshold: s.GradientTolerance,
		Converger: &optimize.FunctionConverge{
			Absolute:   1e-12,
			Relative:   1e-12,
			Iterations: 50,
		},
	}
	return optimize.Minimize(prob, x0, settings, method)
}

func constrainedProblem(p Problem) bool { return p.NumEq+p.NumIneq > 0 }

// psi is the PHR penalty for g >= 0 with multiplier nu.
func psi(g, nu, mu float64) float64 {
	if g < nu/mu {
		return -nu*g + 0.5*mu*g*g
	}
	return -0.5 * nu * nu / mu
}

// evaluate stores h(x), g(x) and returns the largest violation.
func (m *multipliers) evaluate(p Problem, x []float64) float64 {
	worst := 0.0
	if p.NumEq > 0 {
		p.Eq(m.h, x)
		for _, hi := range m.h {
			worst = math.Max(worst, math.Abs(hi))
		}
	}
	if p.NumIneq > 0 {
		p.Ineq(m.g, x)
		for _, gj := range m.g {
			worst = math.Max(worst, -gj)
		}
	}
	if math.IsNaN(worst) {
		return math.Inf(1)
	}
	return worst
}

func (m *multipliers) update() {
	for i, hi := range m.h {
		m.lambda[i] += m.mu * hi
	}
	for j, gj := range m.g {
		m.nu[j] = math.Max(0, m.nu[j]-m.mu*gj)
	}
}

// usable reports whether an inner status leaves a point worth keeping. A
// stalled line search near the optimum reports Failure with a good iterate.
func usable(s optimize.Status) bool {
	switch s {
	case optimize.IterationLimit, optimize.FunctionEvaluationLimit, optimize.RuntimeLimit:
		return false
	}
	return true
}

func allFinite(x []float64) bool {
	return !floats.HasNaN(x) && floats.Max(x) < math.Inf(1) && floats.Min(x) > math.Inf(-1)
}
