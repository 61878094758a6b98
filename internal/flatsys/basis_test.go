package flatsys

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBasisDerivativeConsistency(t *testing.T) {
	tests := []struct {
		name  string
		basis Basis
		times []float64
	}{
		{"poly", mustPoly(t, 6, 2), []float64{0.1, 0.7, 1.9}},
		{"bezier", mustBezier(t, 7, 3), []float64{0.2, 1.5, 2.8}},
		{"bspline cubic", mustBSpline(t, []float64{0, 1, 2, 3}, 3, 2), []float64{0.3, 1.5, 2.7}},
		{"bspline quartic", mustBSpline(t, []float64{0, 2.5, 5, 7.5, 10}, 4, 2), []float64{1.2, 3.7, 6.1, 9.4}},
	}

	const h = 1e-5
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			maxK := min(tt.basis.MaxDerivative(), 3)
			for i := 0; i < tt.basis.Size(); i++ {
				for k := 1; k <= maxK; k++ {
					for _, ts := range tt.times {
						fd := (tt.basis.Eval(i, ts+h, k-1) - tt.basis.Eval(i, ts-h, k-1)) / (2 * h)
						got := tt.basis.Eval(i, ts, k)
						assert.InDeltaf(t, fd, got, 1e-5*math.Max(1, math.Abs(got)),
							"i=%d k=%d t=%g", i, k, ts)
					}
				}
			}
		})
	}
}

func TestPolyFamily(t *testing.T) {
	p := mustPoly(t, 4, 1)
	assert.Equal(t, 4, p.Size())
	assert.Equal(t, 3, p.MaxDerivative())
	assert.InDelta(t, 0.125, p.Eval(3, 0.5, 0), 1e-15)
	assert.InDelta(t, 0.75, p.Eval(3, 0.5, 1), 1e-15)
	assert.InDelta(t, 6.0, p.Eval(3, 0.5, 3), 1e-15)
	assert.Equal(t, 0.0, p.Eval(2, 0.5, 3))

	scaled := mustPoly(t, 4, 2)
	// (t/2)^2 has second derivative 1/2
	assert.InDelta(t, 0.5, scaled.Eval(2, 1.3, 2), 1e-15)
}

func TestBezierPartitionOfUnity(t *testing.T) {
	b := mustBezier(t, 6, 4)
	for _, ts := range []float64{0, 0.5, 1.7, 4} {
		sum, dsum := 0.0, 0.0
		for i := 0; i < b.Size(); i++ {
			sum += b.Eval(i, ts, 0)
			dsum += b.Eval(i, ts, 1)
		}
		assert.InDelta(t, 1.0, sum, 1e-12)
		assert.InDelta(t, 0.0, dsum, 1e-10)
	}
	assert.Equal(t, 1.0, b.Eval(0, 0, 0))
	assert.Equal(t, 1.0, b.Eval(5, 4, 0))
}

func TestBSplineKnots(t *testing.T) {
	tests := []struct {
		name       string
		bp         []float64
		degree     int
		smoothness int
		size       int
		knots      []float64
	}{
		{"cubic C2", []float64{0, 1, 2, 3}, 3, 2, 6, []float64{0, 0, 0, 0, 1, 2, 3, 3, 3, 3}},
		{"quadratic C0", []float64{0, 1, 2}, 2, 0, 5, []float64{0, 0, 0, 1, 1, 2, 2, 2}},
		{"single piece", []float64{0, 5}, 3, 1, 4, []float64{0, 0, 0, 0, 5, 5, 5, 5}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := mustBSpline(t, tt.bp, tt.degree, tt.smoothness)
			assert.Equal(t, tt.size, s.Size())
			assert.Equal(t, tt.knots, s.Knots())
			assert.Equal(t, tt.degree, s.MaxDerivative())
		})
	}
}

func TestBSplinePartitionOfUnity(t *testing.T) {
	s := mustBSpline(t, []float64{0, 1, 2, 3}, 3, 2)
	// includes both ends, a knot and two extrapolated times
	for _, ts := range []float64{-0.5, 0, 0.4, 1, 2.2, 3, 3.5} {
		sum := 0.0
		for i := 0; i < s.Size(); i++ {
			sum += s.Eval(i, ts, 0)
		}
		assert.InDeltaf(t, 1.0, sum, 1e-12, "t=%g", ts)
	}
	assert.Equal(t, 1.0, s.Eval(0, 0, 0))
	assert.InDelta(t, 1.0, s.Eval(s.Size()-1, 3, 0), 1e-15)
}

func TestBSplineSmoothness(t *testing.T) {
	s := mustBSpline(t, []float64{0, 1, 2}, 3, 1)
	const h = 1e-9
	for i := 0; i < s.Size(); i++ {
		for k := 0; k <= 1; k++ {
			left, right := s.Eval(i, 1-h, k), s.Eval(i, 1+h, k)
			assert.InDeltaf(t, left, right, 1e-6, "basis %d derivative %d jumps at the knot", i, k)
		}
	}
}

func TestBasisConstructorErrors(t *testing.T) {
	tests := []struct {
		name string
		err  error
	}{
		{"poly size", func() error { _, err := NewPolyFamily(0, 1); return err }()},
		{"poly scale", func() error { _, err := NewPolyFamily(3, -1); return err }()},
		{"bezier size", func() error { _, err := NewBezierFamily(0, 1); return err }()},
		{"bezier scale", func() error { _, err := NewBezierFamily(3, math.Inf(1)); return err }()},
		{"bspline breakpoints", func() error { _, err := NewBSplineFamily([]float64{0}, 3, 2); return err }()},
		{"bspline order", func() error { _, err := NewBSplineFamily([]float64{0, 2, 1}, 3, 2); return err }()},
		{"bspline degree", func() error { _, err := NewBSplineFamily([]float64{0, 1}, 0, 0); return err }()},
		{"bspline smoothness", func() error { _, err := NewBSplineFamily([]float64{0, 1}, 3, 3); return err }()},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Error(t, tt.err)
			assert.True(t, errors.Is(tt.err, ErrConfig))
			var ce *ConfigError
			assert.ErrorAs(t, tt.err, &ce)
		})
	}
}

func TestBasisIndexPanics(t *testing.T) {
	for _, b := range []Basis{mustPoly(t, 3, 1), mustBezier(t, 3, 1), mustBSpline(t, []float64{0, 1}, 2, 0)} {
		assert.Panics(t, func() { b.Eval(-1, 0, 0) })
		assert.Panics(t, func() { b.Eval(b.Size(), 0, 0) })
	}
}

func TestExpand(t *testing.T) {
	p := mustPoly(t, 4, 1)
	z := Expand(p, []float64{0, 0, 3, -2}, 0.5, 3)
	assertVecInDelta(t, []float64{0.5, 1.5, 0}, z, 1e-12, "3t^2-2t^3 at 0.5")
}

func BenchmarkBSplineEval(b *testing.B) {
	s, _ := NewBSplineFamily([]float64{0, 1, 2, 3, 4, 5}, 5, 3)
	row := make([]float64, s.Size())
	for i := 0; i < b.N; i++ {
		EvalRow(s, 2.37, 2, row)
	}
}

func BenchmarkBezierEval(b *testing.B) {
	bz, _ := NewBezierFamily(12, 10)
	row := make([]float64, bz.Size())
	for i := 0; i < b.N; i++ {
		EvalRow(bz, 3.1, 2, row)
	}
}
