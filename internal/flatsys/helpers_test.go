package flatsys

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

// integrator is x' = u with flat output x, so the flag is [x, u].
func integrator(t *testing.T) *FuncSystem {
	t.Helper()
	sys, err := NewFuncSystem(1, 1, []int{2},
		func(x, u []float64) (Flag, error) { return Flag{{x[0], u[0]}}, nil },
		func(f Flag) ([]float64, []float64, error) {
			return []float64{f[0][0]}, []float64{f[0][1]}, nil
		})
	require.NoError(t, err)
	return sys
}

// car is the kinematic car with flat outputs (x, y).
func car(t *testing.T, wheelbase float64) *FuncSystem {
	t.Helper()
	sys, err := NewFuncSystem(3, 2, []int{3, 3},
		func(x, u []float64) (Flag, error) {
			th, v, delta := x[2], u[0], u[1]
			thdot := v / wheelbase * math.Tan(delta)
			return Flag{
				{x[0], v * math.Cos(th), -v * thdot * math.Sin(th)},
				{x[1], v * math.Sin(th), v * thdot * math.Cos(th)},
			}, nil
		},
		func(f Flag) ([]float64, []float64, error) {
			th := math.Atan2(f[1][1], f[0][1])
			v := f[0][1]*math.Cos(th) + f[1][1]*math.Sin(th)
			thdot := (f[1][2]*math.Cos(th) - f[0][2]*math.Sin(th)) / v
			delta := math.Atan2(thdot*wheelbase, v)
			return []float64{f[0][0], f[1][0], th}, []float64{v, delta}, nil
		})
	require.NoError(t, err)
	return sys
}

func doubleIntegrator(t *testing.T) *LinearFlatSystem {
	t.Helper()
	sys, err := NewLinearFlatSystem(
		mat.NewDense(2, 2, []float64{0, 1, 0, 0}),
		mat.NewDense(2, 1, []float64{0, 1}),
		nil, nil)
	require.NoError(t, err)
	return sys
}

func mustPoly(t *testing.T, n int, scale float64) *PolyFamily {
	t.Helper()
	b, err := NewPolyFamily(n, scale)
	require.NoError(t, err)
	return b
}

func mustBezier(t *testing.T, n int, scale float64) *BezierFamily {
	t.Helper()
	b, err := NewBezierFamily(n, scale)
	require.NoError(t, err)
	return b
}

func mustBSpline(t *testing.T, bp []float64, degree, smoothness int) *BSplineFamily {
	t.Helper()
	b, err := NewBSplineFamily(bp, degree, smoothness)
	require.NoError(t, err)
	return b
}

func assertVecInDelta(t *testing.T, want, got []float64, delta float64, msg string) {
	t.Helper()
	require.Len(t, got, len(want), msg)
	for i := range want {
		require.InDeltaf(t, want[i], got[i], delta, "%s: component %d", msg, i)
	}
}
