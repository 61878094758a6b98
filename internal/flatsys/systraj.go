package flatsys

import (
	"fmt"
	"log/slog"
	"math"

	"gonum.org/v1/gonum/floats"
)

// SystemTrajectory is a solved trajectory: basis coefficients for every
// flat output plus the system that maps flags back to states and inputs.
// It is immutable and safe for concurrent use.
type SystemTrajectory struct {
	sys     FlatSystem
	basis   Basis
	coefs   [][]float64
	lengths []int
	t0, tf  float64
	cost    float64
	logger  *slog.Logger
}

// Response holds a trajectory sampled at a list of times.
type Response struct {
	Time   []float64
	States [][]float64
	Inputs [][]float64

	// Extrapolated is set when any time lies outside the horizon.
	Extrapolated bool
}

func newTrajectory(sys FlatSystem, basis Basis, coefs [][]float64, t0, tf, cost float64, logger *slog.Logger) *SystemTrajectory {
	return &SystemTrajectory{
		sys:     sys,
		basis:   basis,
		coefs:   coefs,
		lengths: sys.FlagLengths(),
		t0:      t0,
		tf:      tf,
		cost:    cost,
		logger:  logger,
	}
}

func (tr *SystemTrajectory) System() FlatSystem { return tr.sys }
func (tr *SystemTrajectory) Basis() Basis       { return tr.basis }

// Horizon returns the times the trajectory was solved for.
func (tr *SystemTrajectory) Horizon() (t0, tf float64) { return tr.t0, tr.tf }

// Cost returns the optimal cost, zero for point-to-point trajectories.
func (tr *SystemTrajectory) Cost() float64 { return tr.cost }

// Coefficients returns a copy of the coefficient table, one row per flat
// output.
func (tr *SystemTrajectory) Coefficients() [][]float64 {
	return Flag(tr.coefs).Clone()
}

func (tr *SystemTrajectory) FlagLengths() []int {
	return append([]int(nil), tr.lengths...)
}

// Flag evaluates the flat outputs and the derivatives Reverse needs at t.
func (tr *SystemTrajectory) Flag(t float64) Flag {
	flag := make(Flag, len(tr.coefs))
	for j, c := range tr.coefs {
		flag[j] = Expand(tr.basis, c, t, tr.lengths[j])
	}
	return flag
}

// Eval returns the state and input at t. Times outside the horizon are
// extrapolated and logged.
func (tr *SystemTrajectory) Eval(t float64) (x, u []float64, err error) {
	if !tr.inHorizon(t) {
		tr.warnExtrapolation(1, t, t)
	}
	return tr.sys.Reverse(tr.Flag(t))
}

// EvalStrict is Eval but fails with ErrDomain outside the horizon.
func (tr *SystemTrajectory) EvalStrict(t float64) (x, u []float64, err error) {
	if !tr.inHorizon(t) {
		return nil, nil, tr.domainErr(t)
	}
	return tr.sys.Reverse(tr.Flag(t))
}

// EvalAll samples the trajectory at every time in ts.
func (tr *SystemTrajectory) EvalAll(ts []float64) (*Response, error) {
	resp := &Response{
		Time:   append([]float64(nil), ts...),
		States: make([][]float64, len(ts)),
		Inputs: make([][]float64, len(ts)),
	}
	outside := 0
	lo, hi := math.Inf(1), math.Inf(-1)
	for i, t := range ts {
		if !tr.inHorizon(t) {
			outside++
			lo, hi = math.Min(lo, t), math.Max(hi, t)
		}
		x, u, err := tr.sys.Reverse(tr.Flag(t))
		if err != nil {
			return nil, fmt.Errorf("evaluate trajectory at t=%g: %w", t, err)
		}
		resp.States[i], resp.Inputs[i] = x, u
	}
	if outside > 0 {
		resp.Extrapolated = true
		tr.warnExtrapolation(outside, lo, hi)
	}
	return resp, nil
}

// EvalAllStrict is EvalAll but fails with ErrDomain on the first time
// outside the horizon.
func (tr *SystemTrajectory) EvalAllStrict(ts []float64) (*Response, error) {
	for _, t := range ts {
		if !tr.inHorizon(t) {
			return nil, tr.domainErr(t)
		}
	}
	return tr.EvalAll(ts)
}

// Linspace returns n uniformly spaced times covering the horizon.
func (tr *SystemTrajectory) Linspace(n int) []float64 {
	return linspace(tr.t0, tr.tf, n)
}

func (tr *SystemTrajectory) inHorizon(t float64) bool {
	eps := 1e-9 * math.Max(1, tr.tf-tr.t0)
	return t >= tr.t0-eps && t <= tr.tf+eps
}

func (tr *SystemTrajectory) domainErr(t float64) error {
	return fmt.Errorf("%w: t=%g not in [%g, %g]", ErrDomain, t, tr.t0, tr.tf)
}

func (tr *SystemTrajectory) warnExtrapolation(count int, lo, hi float64) {
	tr.logger.Warn("trajectory evaluated outside its horizon; values are extrapolated",
		"count", count, "min", lo, "max", hi, "t0", tr.t0, "tf", tr.tf)
}

func linspace(a, b float64, n int) []float64 {
	if n < 2 {
		return []float64{a}
	}
	return floats.Span(make([]float64, n), a, b)
}
