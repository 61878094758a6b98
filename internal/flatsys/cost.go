package flatsys

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
)

// CostFunc is a running or terminal cost on a state and input.
type CostFunc func(x, u []float64) float64

// Constraint bounds a vector function of the state and input at every
// collocation time: Lower <= F(x, u) <= Upper. Equal bounds make a
// component an equality; infinite bounds leave that side open.
type Constraint struct {
	Name  string
	F     func(x, u []float64) []float64
	Lower []float64
	Upper []float64
}

func (c Constraint) validate(op string) error {
	if c.F == nil {
		return configErr(op, "constraint %q has no function", c.Name)
	}
	if len(c.Lower) != len(c.Upper) {
		return configErr(op, "constraint %q has %d lower and %d upper bounds", c.Name, len(c.Lower), len(c.Upper))
	}
	for i := range c.Lower {
		if math.IsNaN(c.Lower[i]) || math.IsNaN(c.Upper[i]) || c.Lower[i] > c.Upper[i] {
			return configErr(op, "constraint %q component %d has bounds [%g, %g]", c.Name, i, c.Lower[i], c.Upper[i])
		}
	}
	return nil
}

// LinearConstraint bounds A [x; u] for a matrix A with n+m columns.
func LinearConstraint(name string, a mat.Matrix, lower, upper []float64) Constraint {
	_, cols := a.Dims()
	a = mat.DenseCopyOf(a)
	return Constraint{
		Name: name,
		F: func(x, u []float64) []float64 {
			xu := make([]float64, 0, cols)
			xu = append(append(xu, x...), u...)
			if len(xu) != cols {
				panic(fmt.Sprintf("flatsys: linear constraint %q expects %d columns, got state+input of %d", name, cols, len(xu)))
			}
			var out mat.VecDense
			out.MulVec(a, mat.NewVecDense(cols, xu))
			return append([]float64(nil), out.RawVector().Data...)
		},
		Lower: append([]float64(nil), lower...),
		Upper: append([]float64(nil), upper...),
	}
}

// InputBounds keeps lower <= u <= upper.
func InputBounds(lower, upper []float64) Constraint {
	return Constraint{
		Name:  "input bounds",
		F:     func(_, u []float64) []float64 { return append([]float64(nil), u...) },
		Lower: append([]float64(nil), lower...),
		Upper: append([]float64(nil), upper...),
	}
}

// StateBounds keeps lower <= x <= upper.
func StateBounds(lower, upper []float64) Constraint {
	return Constraint{
		Name:  "state bounds",
		F:     func(x, _ []float64) []float64 { return append([]float64(nil), x...) },
		Lower: append([]float64(nil), lower...),
		Upper: append([]float64(nil), upper...),
	}
}

// QuadraticCost returns (x-x0)' Q (x-x0) + (u-u0)' R (u-u0). Q or R may be
// nil to drop that term; x0 and u0 may be nil for the origin.
func QuadraticCost(q, r mat.Matrix, x0, u0 []float64) CostFunc {
	qd := copyOrNil(q)
	rd := copyOrNil(r)
	x0 = append([]float64(nil), x0...)
	u0 = append([]float64(nil), u0...)
	return func(x, u []float64) float64 {
		return quadForm(qd, x, x0) + quadForm(rd, u, u0)
	}
}

// TerminalQuadraticCost returns (x-xf)' P (x-xf).
func TerminalQuadraticCost(p mat.Matrix, xf []float64) CostFunc {
	return QuadraticCost(p, nil, xf, nil)
}

func copyOrNil(m mat.Matrix) *mat.Dense {
	if m == nil {
		return nil
	}
	return mat.DenseCopyOf(m)
}

func quadForm(w *mat.Dense, v, ref []float64) float64 {
	if w == nil {
		return 0
	}
	d := make([]float64, len(v))
	for i := range v {
		d[i] = v[i]
		if i < len(ref) {
			d[i] -= ref[i]
		}
	}
	dv := mat.NewVecDense(len(d), d)
	return mat.Inner(dv, w, dv)
}
