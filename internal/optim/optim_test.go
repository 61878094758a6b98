package optim

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newAL(t *testing.T, mutate func(*Settings)) *AugmentedLagrangian {
	t.Helper()
	s := DefaultSettings()
	if mutate != nil {
		mutate(&s)
	}
	al, err := NewAugmentedLagrangian(s)
	require.NoError(t, err)
	return al
}

func TestUnconstrainedQuadratic(t *testing.T) {
	for _, method := range Methods() {
		t.Run(method, func(t *testing.T) {
			al := newAL(t, func(s *Settings) { s.Method = method })
			res, err := al.Minimize(Problem{
				Func: func(x []float64) float64 {
					return (x[0]-1)*(x[0]-1) + 2*(x[1]+2)*(x[1]+2)
				},
			}, []float64{0, 0})
			require.NoError(t, err)
			assert.InDelta(t, 1.0, res.X[0], 1e-3)
			assert.InDelta(t, -2.0, res.X[1], 1e-3)
			assert.InDelta(t, 0.0, res.F, 1e-5)
		})
	}
}

func TestEqualityConstraint(t *testing.T) {
	al := newAL(t, nil)
	res, err := al.Minimize(Problem{
		Func:  func(x []float64) float64 { return x[0]*x[0] + x[1]*x[1] },
		NumEq: 1,
		Eq:    func(dst, x []float64) { dst[0] = x[0] + x[1] - 1 },
	}, []float64{3, -1})
	require.NoError(t, err)
	assert.InDelta(t, 0.5, res.X[0], 1e-4)
	assert.InDelta(t, 0.5, res.X[1], 1e-4)
	assert.LessOrEqual(t, res.MaxViolation, 1e-6)
}

func TestInequalityConstraint(t *testing.T) {
	al := newAL(t, nil)
	res, err := al.Minimize(Problem{
		Func:    func(x []float64) float64 { return (x[0] - 2) * (x[0] - 2) },
		NumIneq: 1,
		Ineq:    func(dst, x []float64) { dst[0] = 1 - x[0] },
	}, []float64{0})
	require.NoError(t, err)
	assert.InDelta(t, 1.0, res.X[0], 1e-4)
	assert.LessOrEqual(t, 1-res.X[0], 1e-3)
}

func TestInactiveInequality(t *testing.T) {
	al := newAL(t, nil)
	res, err := al.Minimize(Problem{
		Func:    func(x []float64) float64 { return (x[0] - 0.5) * (x[0] - 0.5) },
		NumIneq: 1,
		Ineq:    func(dst, x []float64) { dst[0] = 1 - x[0] },
	}, []float64{0})
	require.NoError(t, err)
	assert.InDelta(t, 0.5, res.X[0], 1e-4)
	assert.Equal(t, 0.0, res.MaxViolation)
}

func TestInfeasible(t *testing.T) {
	al := newAL(t, func(s *Settings) { s.MaxIterations = 5 })
	res, err := al.Minimize(Problem{
		Func:    func(x []float64) float64 { return x[0] * x[0] },
		NumIneq: 2,
		Ineq: func(dst, x []float64) {
			dst[0] = x[0] - 1
			dst[1] = -x[0]
		},
	}, []float64{0.3})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInfeasible))
	require.NotNil(t, res)
	assert.Greater(t, res.MaxViolation, 0.1)
}

func rosenbrock(x []float64) float64 {
	a, b := 1-x[0], x[1]-x[0]*x[0]
	return a*a + 100*b*b
}

func TestInnerIterationLimit(t *testing.T) {
	tests := []struct {
		name string
		prob Problem
	}{
		{"unconstrained", Problem{Func: rosenbrock}},
		{"inactive inequality", Problem{
			Func:    rosenbrock,
			NumIneq: 1,
			Ineq:    func(dst, x []float64) { dst[0] = 10 - x[0] },
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			al := newAL(t, func(s *Settings) {
				s.MaxIterations = 2
				s.MaxInnerIterations = 1
			})
			res, err := al.Minimize(tt.prob, []float64{-1.2, 1})
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrNotConverged)
			require.NotNil(t, res)
			assert.Equal(t, "IterationLimit", res.Status)
		})
	}
}

func TestRosenbrockConverges(t *testing.T) {
	al := newAL(t, nil)
	res, err := al.Minimize(Problem{
		Func:    rosenbrock,
		NumIneq: 1,
		Ineq:    func(dst, x []float64) { dst[0] = 10 - x[0] },
	}, []float64{-1.2, 1})
	require.NoError(t, err)
	assert.InDelta(t, 1.0, res.X[0], 1e-3)
	assert.InDelta(t, 1.0, res.X[1], 1e-3)
}

func TestSettingsValidation(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Settings)
	}{
		{"unknown method", func(s *Settings) { s.Method = "newton-raphson" }},
		{"zero iterations", func(s *Settings) { s.MaxIterations = 0 }},
		{"zero tolerance", func(s *Settings) { s.Tolerance = 0 }},
		{"shrinking penalty", func(s *Settings) { s.PenaltyGrowth = 0.5 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := DefaultSettings()
			tt.mutate(&s)
			_, err := NewAugmentedLagrangian(s)
			assert.ErrorIs(t, err, ErrBadProblem)
		})
	}
}

func TestProblemValidation(t *testing.T) {
	al := newAL(t, nil)
	_, err := al.Minimize(Problem{}, []float64{1})
	assert.ErrorIs(t, err, ErrBadProblem)

	_, err = al.Minimize(Problem{Func: func([]float64) float64 { return 0 }, NumEq: 1}, []float64{1})
	assert.ErrorIs(t, err, ErrBadProblem)

	_, err = al.Minimize(Problem{Func: func([]float64) float64 { return 0 }}, nil)
	assert.ErrorIs(t, err, ErrBadProblem)
}

func TestGridSearch(t *testing.T) {
	g := NewGridSearch([]string{"a", "b"}, [][]float64{{0, 1, 2, 3}, {1, 0}})
	best, val, visited, err := g.Search(context.Background(), func(_ context.Context, p map[string]float64) (float64, error) {
		if p["a"] == 3 {
			return 0, errors.New("unstable")
		}
		return (p["a"]-2)*(p["a"]-2) + p["b"], nil
	})
	require.NoError(t, err)
	assert.Equal(t, map[string]float64{"a": 2, "b": 0}, best)
	assert.Equal(t, 0.0, val)
	assert.Len(t, visited, 8)

	failed := 0
	for _, v := range visited {
		if v.Err != nil {
			failed++
		}
	}
	assert.Equal(t, 2, failed)
}

func TestGridSearchAllFail(t *testing.T) {
	g := NewGridSearch([]string{"n"}, [][]float64{{4, 6}})
	sentinel := errors.New("boundary")
	_, val, _, err := g.Search(context.Background(), func(context.Context, map[string]float64) (float64, error) {
		return 0, sentinel
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, sentinel)
	assert.True(t, math.IsInf(val, 1))
}

func TestGridSearchCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	g := NewGridSearch([]string{"n"}, [][]float64{{4, 6}})
	_, _, _, err := g.Search(ctx, func(context.Context, map[string]float64) (float64, error) {
		return 1, nil
	})
	assert.ErrorIs(t, err, context.Canceled)
}
