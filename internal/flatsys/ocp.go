package flatsys

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/integrate"
	"gonum.org/v1/gonum/mat"

	"github.com/san-kum/flattraj/internal/linalg"
	"github.com/san-kum/flattraj/internal/optim"
)

// Problem describes an optimal control problem over [T0, Tf].
type Problem struct {
	T0, Tf float64

	Start Endpoint
	// End is the required final endpoint; nil leaves the final point free
	// and only TerminalCost acts on it.
	End *Endpoint

	// Cost is integrated over TimePoints with the trapezoid rule.
	Cost CostFunc
	// TerminalCost is evaluated once at Tf.
	TerminalCost CostFunc

	// Constraints are enforced at every time in TimePoints.
	Constraints []Constraint

	// TimePoints are the collocation times; empty means uniform samples.
	TimePoints []float64

	// InitialGuess holds coefficients per flat output. It is projected onto
	// the set that satisfies the boundary equations. Nil starts from the
	// minimum-norm point-to-point solution.
	InitialGuess [][]float64
}

// SolveOCP minimizes the problem cost over the basis coefficients while
// meeting the boundary equations exactly and the constraints within
// opts.Tolerance.
//
// The coefficients of output j are written c_j = p_j + N_j s_j, where p_j
// solves its boundary equations with opts.Solver and the columns of N_j span
// their null space, so only s is handed to the optimizer.
func SolveOCP(sys FlatSystem, basis Basis, p Problem, opts OCPOptions) (*SystemTrajectory, error) {
	const op = "optimal control"
	opts = opts.withDefaults()
	if err := opts.validate(); err != nil {
		return nil, err
	}
	if err := checkSetup(op, sys, basis, p.T0, p.Tf); err != nil {
		return nil, err
	}
	if err := checkEndpoint(op, sys, "start", p.Start); err != nil {
		return nil, err
	}
	ends := 1
	if p.End != nil {
		ends = 2
		if err := checkEndpoint(op, sys, "end", *p.End); err != nil {
			return nil, err
		}
	}
	lengths := sys.FlagLengths()
	if err := checkBasis(op, basis, lengths, ends); err != nil {
		return nil, err
	}
	for _, c := range p.Constraints {
		if err := c.validate(op); err != nil {
			return nil, err
		}
	}
	times, err := collocationTimes(op, p, opts.Samples)
	if err != nil {
		return nil, err
	}
	if p.InitialGuess != nil {
		if len(p.InitialGuess) != len(lengths) {
			return nil, configErr(op, "initial guess has %d flat outputs, system has %d", len(p.InitialGuess), len(lengths))
		}
		for j, g := range p.InitialGuess {
			if len(g) != basis.Size() {
				return nil, configErr(op, "initial guess for flat output %d has %d coefficients, basis has %d", j, len(g), basis.Size())
			}
		}
	}
	optimizer, err := opts.optimizer()
	if err != nil {
		return nil, err
	}

	zs, ze, err := endpointFlags(op, sys, p.Start, p.End)
	if err != nil {
		return nil, err
	}
	par, err := parametrize(basis, p.T0, p.Tf, zs, ze, lengths, p.End != nil, opts)
	if err != nil {
		return nil, err
	}

	ev := newOCPEval(sys, basis, p, times, lengths, par)
	if err := ev.checkShapes(op); err != nil {
		return nil, err
	}

	log := opts.Logger
	log.Debug("optimal control solve",
		"outputs", len(lengths), "basis", basis.Size(), "free", par.dim,
		"times", len(times), "eq", ev.numEq, "ineq", ev.numIneq,
		"free_endpoint", p.End == nil, "solver", opts.Solver.Name(), "optimizer", optimizer.Name())

	s := par.project(p.InitialGuess)
	if par.dim > 0 {
		res, err := optimizer.Minimize(optim.Problem{
			Func:    ev.objective,
			Eq:      ev.eq,
			NumEq:   ev.numEq,
			Ineq:    ev.ineq,
			NumIneq: ev.numIneq,
		}, s)
		if err != nil {
			oe := &OptimizationError{Method: optimizer.Name(), Err: err}
			if res != nil {
				oe.Status = res.Status
				oe.Msg = fmt.Sprintf("%d iterations, max violation %.3g", res.Iterations, res.MaxViolation)
			}
			return nil, oe
		}
		s = res.X
		log.Debug("optimizer finished", "status", res.Status, "iterations", res.Iterations,
			"evaluations", res.Evaluations, "cost", res.F)
	}

	if err := ev.verify(s, opts.Tolerance); err != nil {
		return nil, &OptimizationError{Method: optimizer.Name(), Msg: err.Error()}
	}
	cost := ev.objective(s)
	if math.IsNaN(cost) || math.IsInf(cost, 0) {
		return nil, &OptimizationError{Method: optimizer.Name(), Msg: fmt.Sprintf("cost is not finite (%g)", cost)}
	}
	return newTrajectory(sys, basis, par.coefs(s), p.T0, p.Tf, cost, log), nil
}

func collocationTimes(op string, p Problem, samples int) ([]float64, error) {
	if len(p.TimePoints) == 0 {
		return linspace(p.T0, p.Tf, samples), nil
	}
	if len(p.TimePoints) < 2 {
		return nil, configErr(op, "need at least two collocation times, got %d", len(p.TimePoints))
	}
	eps := 1e-9 * math.Max(1, p.Tf-p.T0)
	for i, t := range p.TimePoints {
		if t < p.T0-eps || t > p.Tf+eps || math.IsNaN(t) {
			return nil, configErr(op, "collocation time %g outside [%g, %g]", t, p.T0, p.Tf)
		}
		if i > 0 && !(t > p.TimePoints[i-1]) {
			return nil, configErr(op, "collocation times must be strictly increasing (index %d)", i)
		}
	}
	return append([]float64(nil), p.TimePoints...), nil
}

// parametrization maps the free vector s to coefficients.
type parametrization struct {
	n          int
	particular [][]float64
	null       []*mat.Dense
	offsets    []int
	widths     []int
	dim        int
}

func parametrize(basis Basis, t0, tf float64, zs, ze Flag, lengths []int, final bool, opts OCPOptions) (*parametrization, error) {
	solver := opts.Solver
	par := &parametrization{
		n:          basis.Size(),
		particular: make([][]float64, len(lengths)),
		null:       make([]*mat.Dense, len(lengths)),
		offsets:    make([]int, len(lengths)),
		widths:     make([]int, len(lengths)),
	}
	for j, q := range lengths {
		var zej []float64
		if final {
			zej = ze[j]
		}
		m, rhs := boundarySystem(basis, t0, tf, zs[j], zej, q, final)
		if row := linalg.DependentRow(m, opts.RCond); row >= 0 {
			return nil, boundaryRowErr(j, row, q, 0, nil)
		}
		c, err := solver.Solve(m, rhs)
		if err != nil {
			return nil, &BoundaryError{Output: j, Endpoint: EndpointInitial, Err: err}
		}
		if row, res := worstRow(m, c, rhs); res > opts.Tolerance {
			return nil, boundaryRowErr(j, row, q, res, nil)
		}
		par.particular[j] = append([]float64(nil), c.RawVector().Data...)
		par.null[j] = linalg.NullSpace(m, opts.RCond)
		par.offsets[j] = par.dim
		if par.null[j] != nil {
			_, par.widths[j] = par.null[j].Dims()
		}
		par.dim += par.widths[j]
	}
	return par, nil
}

func (p *parametrization) coefs(s []float64) [][]float64 {
	out := make([][]float64, len(p.particular))
	for j, cp := range p.particular {
		c := append([]float64(nil), cp...)
		if w := p.widths[j]; w > 0 {
			var v mat.VecDense
			v.MulVec(p.null[j], mat.NewVecDense(w, s[p.offsets[j]:p.offsets[j]+w]))
			floats.Add(c, v.RawVector().Data)
		}
		out[j] = c
	}
	return out
}

// project returns the free vector closest to guess, or zero without one.
func (p *parametrization) project(guess [][]float64) []float64 {
	s := make([]float64, p.dim)
	if guess == nil {
		return s
	}
	for j, g := range guess {
		w := p.widths[j]
		if w == 0 {
			continue
		}
		d := make([]float64, p.n)
		floats.SubTo(d, g, p.particular[j])
		var v mat.VecDense
		v.MulVec(p.null[j].T(), mat.NewVecDense(p.n, d))
		copy(s[p.offsets[j]:p.offsets[j]+w], v.RawVector().Data)
	}
	return s
}

type boundKind int

const (
	boundEq boundKind = iota
	boundLower
	boundUpper
)

// bound is one scalar condition on component comp of constraint con.
type bound struct {
	con, comp int
	kind      boundKind
	value     float64
}

// ocpEval evaluates cost and constraints for a free vector. It caches the
// states of the last vector it saw and is not safe for concurrent use.
type ocpEval struct {
	sys     FlatSystem
	p       Problem
	times   []float64
	lengths []int
	par     *parametrization

	// rows[i][k] holds the k-th derivative of every basis function at
	// times[i]; final holds the same at Tf.
	rows  [][][]float64
	final [][]float64

	eqs, ineqs     []bound
	numEq, numIneq int

	lastS      []float64
	lastXs     [][]float64
	lastUs     [][]float64
	lastFinalX []float64
	lastFinalU []float64
	lastErr    error
}

func newOCPEval(sys FlatSystem, basis Basis, p Problem, times []float64, lengths []int, par *parametrization) *ocpEval {
	maxQ := 0
	for _, q := range lengths {
		maxQ = max(maxQ, q)
	}
	derivRows := func(t float64) [][]float64 {
		r := make([][]float64, maxQ)
		for k := range r {
			r[k] = EvalRow(basis, t, k, nil)
		}
		return r
	}
	ev := &ocpEval{sys: sys, p: p, times: times, lengths: lengths, par: par}
	ev.rows = make([][][]float64, len(times))
	for i, t := range times {
		ev.rows[i] = derivRows(t)
	}
	ev.final = derivRows(p.Tf)

	for ci, c := range p.Constraints {
		for k := range c.Lower {
			lo, hi := c.Lower[k], c.Upper[k]
			switch {
			case lo == hi:
				ev.eqs = append(ev.eqs, bound{con: ci, comp: k, kind: boundEq, value: lo})
			default:
				if !math.IsInf(lo, -1) {
					ev.ineqs = append(ev.ineqs, bound{con: ci, comp: k, kind: boundLower, value: lo})
				}
				if !math.IsInf(hi, 1) {
					ev.ineqs = append(ev.ineqs, bound{con: ci, comp: k, kind: boundUpper, value: hi})
				}
			}
		}
	}
	ev.numEq = len(ev.eqs) * len(times)
	ev.numIneq = len(ev.ineqs) * len(times)
	return ev
}

func (ev *ocpEval) flagAt(rows [][]float64, coefs [][]float64) Flag {
	flag := make(Flag, len(coefs))
	for j, c := range coefs {
		z := make([]float64, ev.lengths[j])
		for k := range z {
			z[k] = floats.Dot(c, rows[k])
		}
		flag[j] = z
	}
	return flag
}

func (ev *ocpEval) states(s []float64) error {
	if ev.lastS != nil && floats.Equal(ev.lastS, s) {
		return ev.lastErr
	}
	ev.lastS = append(ev.lastS[:0], s...)
	coefs := ev.par.coefs(s)
	ev.lastXs = make([][]float64, len(ev.times))
	ev.lastUs = make([][]float64, len(ev.times))
	ev.lastErr = nil
	for i := range ev.times {
		x, u, err := ev.sys.Reverse(ev.flagAt(ev.rows[i], coefs))
		if err != nil {
			ev.lastErr = err
			return err
		}
		ev.lastXs[i], ev.lastUs[i] = x, u
	}
	ev.lastFinalX, ev.lastFinalU, ev.lastErr = ev.sys.Reverse(ev.flagAt(ev.final, coefs))
	return ev.lastErr
}

func (ev *ocpEval) objective(s []float64) float64 {
	if err := ev.states(s); err != nil {
		return math.Inf(1)
	}
	total := 0.0
	if ev.p.Cost != nil {
		vals := make([]float64, len(ev.times))
		for i := range ev.times {
			vals[i] = ev.p.Cost(ev.lastXs[i], ev.lastUs[i])
		}
		total += integrate.Trapezoidal(ev.times, vals)
	}
	if ev.p.TerminalCost != nil {
		total += ev.p.TerminalCost(ev.lastFinalX, ev.lastFinalU)
	}
	return total
}

func (ev *ocpEval) fill(dst []float64, s []float64, bounds []bound) {
	if err := ev.states(s); err != nil {
		for i := range dst {
			dst[i] = math.NaN()
		}
		return
	}
	n := 0
	for i := range ev.times {
		vals := ev.constraintValues(i)
		for _, b := range bounds {
			v := vals[b.con][b.comp]
			switch b.kind {
			case boundEq, boundLower:
				dst[n] = v - b.value
			case boundUpper:
				dst[n] = b.value - v
			}
			n++
		}
	}
}

func (ev *ocpEval) eq(dst, s []float64)   { ev.fill(dst, s, ev.eqs) }
func (ev *ocpEval) ineq(dst, s []float64) { ev.fill(dst, s, ev.ineqs) }

func (ev *ocpEval) constraintValues(i int) [][]float64 {
	vals := make([][]float64, len(ev.p.Constraints))
	for ci, c := range ev.p.Constraints {
		vals[ci] = c.F(ev.lastXs[i], ev.lastUs[i])
	}
	return vals
}

// checkShapes evaluates the seed once so that constraint functions whose
// output length disagrees with their bounds are reported as configuration
// errors.
func (ev *ocpEval) checkShapes(op string) error {
	if len(ev.p.Constraints) == 0 {
		return nil
	}
	if err := ev.states(make([]float64, ev.par.dim)); err != nil {
		return fmt.Errorf("%s: evaluate seed trajectory: %w", op, err)
	}
	for ci, v := range ev.constraintValues(0) {
		if want := len(ev.p.Constraints[ci].Lower); len(v) != want {
			return configErr(op, "constraint %q returns %d values for %d bounds", ev.p.Constraints[ci].Name, len(v), want)
		}
	}
	return nil
}

// verify re-checks every constraint at every collocation time.
func (ev *ocpEval) verify(s []float64, tol float64) error {
	if err := ev.states(s); err != nil {
		return fmt.Errorf("evaluate solution: %w", err)
	}
	for i, t := range ev.times {
		for ci, v := range ev.constraintValues(i) {
			c := ev.p.Constraints[ci]
			for k, val := range v {
				excess := math.Max(c.Lower[k]-val, val-c.Upper[k])
				if excess > tol || math.IsNaN(val) {
					return fmt.Errorf("constraint %q component %d violated by %.3g at t=%g", c.Name, k, excess, t)
				}
			}
		}
	}
	return nil
}
