package flatsys

import (
	"errors"
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/san-kum/flattraj/internal/linalg"
)

// PointToPoint finds basis coefficients whose flat outputs match the flags
// of start at t0 and of end at tf, and returns the resulting trajectory.
//
// Every flat output j with flag length q_j contributes 2 q_j equations, so
// the basis needs at least 2 q_j functions. Larger bases are handled as
// opts.Oversize says.
func PointToPoint(sys FlatSystem, basis Basis, t0, tf float64, start, end Endpoint, opts P2POptions) (*SystemTrajectory, error) {
	const op = "point-to-point"
	opts = opts.withDefaults()
	if err := opts.validate(); err != nil {
		return nil, err
	}
	if err := checkSetup(op, sys, basis, t0, tf); err != nil {
		return nil, err
	}
	if err := checkEndpoint(op, sys, "start", start); err != nil {
		return nil, err
	}
	if err := checkEndpoint(op, sys, "end", end); err != nil {
		return nil, err
	}
	lengths := sys.FlagLengths()
	if err := checkBasis(op, basis, lengths, 2); err != nil {
		return nil, err
	}
	if opts.Oversize == Exact {
		for j, q := range lengths {
			if n := basis.Size(); n != 2*q {
				return nil, configErr(op, "exact policy needs %d basis functions for flat output %d, basis has %d", 2*q, j, n)
			}
		}
	}

	zs, ze, err := endpointFlags(op, sys, start, &end)
	if err != nil {
		return nil, err
	}

	log := opts.Logger
	log.Debug("point-to-point solve",
		"outputs", len(lengths), "basis", basis.Size(), "solver", opts.Solver.Name(), "oversize", opts.Oversize)

	coefs := make([][]float64, len(lengths))
	for j, q := range lengths {
		m, rhs := boundarySystem(basis, t0, tf, zs[j], ze[j], q, true)
		if row := linalg.DependentRow(m, opts.RCond); row >= 0 {
			return nil, boundaryRowErr(j, row, q, 0, nil)
		}
		c, err := opts.Solver.Solve(m, rhs)
		if err != nil {
			if errors.Is(err, linalg.ErrSingular) {
				return nil, &BoundaryError{Output: j, Endpoint: EndpointInitial, Order: 0, Err: err}
			}
			return nil, err
		}
		if row, res := worstRow(m, c, rhs); res > opts.Tolerance {
			return nil, boundaryRowErr(j, row, q, res, nil)
		}
		coefs[j] = append([]float64(nil), c.RawVector().Data...)
		log.Debug("flat output solved", "output", j, "equations", 2*q)
	}
	return newTrajectory(sys, basis, coefs, t0, tf, 0, log), nil
}

func checkSetup(op string, sys FlatSystem, basis Basis, t0, tf float64) error {
	if sys == nil {
		return configErr(op, "flat system is required")
	}
	if basis == nil {
		return configErr(op, "basis is required")
	}
	if math.IsNaN(t0) || math.IsNaN(tf) || math.IsInf(t0, 0) || math.IsInf(tf, 0) {
		return configErr(op, "times must be finite, got t0=%g tf=%g", t0, tf)
	}
	if !(t0 < tf) {
		return configErr(op, "need t0 < tf, got t0=%g tf=%g", t0, tf)
	}
	return nil
}

func checkEndpoint(op string, sys FlatSystem, name string, e Endpoint) error {
	if len(e.X) != sys.StateDim() {
		return configErr(op, "%s state has length %d, system has %d states", name, len(e.X), sys.StateDim())
	}
	if len(e.U) != sys.InputDim() {
		return configErr(op, "%s input has length %d, system has %d inputs", name, len(e.U), sys.InputDim())
	}
	return nil
}

// checkBasis verifies the basis can carry ends*q equations and derivative
// order q-1 for every flat output.
func checkBasis(op string, basis Basis, lengths []int, ends int) error {
	for j, q := range lengths {
		if need := ends * q; basis.Size() < need {
			return configErr(op, "basis has %d functions, flat output %d needs at least %d for its boundary equations",
				basis.Size(), j, need)
		}
		if basis.MaxDerivative() < q-1 {
			return configErr(op, "basis supports derivatives up to order %d, flat output %d needs order %d",
				basis.MaxDerivative(), j, q-1)
		}
	}
	return nil
}

// endpointFlags maps the endpoints through Forward. end may be nil.
func endpointFlags(op string, sys FlatSystem, start Endpoint, end *Endpoint) (zs, ze Flag, err error) {
	lengths := sys.FlagLengths()
	zs, err = sys.Forward(start.X, start.U)
	if err != nil {
		return nil, nil, err
	}
	if err := CheckFlag(op+" initial flag", zs, lengths); err != nil {
		return nil, nil, err
	}
	if end == nil {
		return zs, nil, nil
	}
	ze, err = sys.Forward(end.X, end.U)
	if err != nil {
		return nil, nil, err
	}
	if err := CheckFlag(op+" final flag", ze, lengths); err != nil {
		return nil, nil, err
	}
	return zs, ze, nil
}

// boundarySystem builds the rows sum_i c_i Eval(i, t, k) = flag[k] for
// k < q at t0 and, when final is set, at tf.
func boundarySystem(basis Basis, t0, tf float64, zs, ze []float64, q int, final bool) (*mat.Dense, *mat.VecDense) {
	rows := q
	if final {
		rows = 2 * q
	}
	n := basis.Size()
	m := mat.NewDense(rows, n, nil)
	rhs := mat.NewVecDense(rows, nil)
	row := make([]float64, n)
	for k := 0; k < q; k++ {
		m.SetRow(k, EvalRow(basis, t0, k, row))
		rhs.SetVec(k, zs[k])
		if final {
			m.SetRow(q+k, EvalRow(basis, tf, k, row))
			rhs.SetVec(q+k, ze[k])
		}
	}
	return m, rhs
}

// boundaryRowErr names the endpoint and order of boundary row r.
func boundaryRowErr(output, r, q int, residual float64, err error) error {
	e := &BoundaryError{Output: output, Endpoint: EndpointInitial, Order: r, Residual: residual, Err: err}
	if r >= q {
		e.Endpoint, e.Order = EndpointFinal, r-q
	}
	return e
}

// worstRow returns the row with the largest residual relative to
// max(1, |rhs|).
func worstRow(m mat.Matrix, c, rhs mat.Vector) (int, float64) {
	res := linalg.Residual(m, c, rhs)
	worst, at := 0.0, 0
	for i := 0; i < res.Len(); i++ {
		r := math.Abs(res.AtVec(i)) / math.Max(1, math.Abs(rhs.AtVec(i)))
		if r > worst || math.IsNaN(r) {
			worst, at = r, i
			if math.IsNaN(r) {
				return at, math.Inf(1)
			}
		}
	}
	return at, worst
}
