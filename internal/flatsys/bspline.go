package flatsys

import (
	"math"
	"sort"
)

// BSplineFamily is a clamped B-spline basis over a set of breakpoints.
//
// The end breakpoints carry multiplicity degree+1, interior breakpoints
// multiplicity degree-smoothness, so the spline is C^smoothness at every
// interior breakpoint. Outside the breakpoint range the first and last
// polynomial pieces are extended.
type BSplineFamily struct {
	breakpoints []float64
	degree      int
	smoothness  int
	knots       []float64
	n           int
}

// NewBSplineFamily builds the basis for the given breakpoints, polynomial
// degree and interior smoothness (0 <= smoothness < degree).
func NewBSplineFamily(breakpoints []float64, degree, smoothness int) (*BSplineFamily, error) {
	if len(breakpoints) < 2 {
		return nil, configErr("bspline basis", "need at least two breakpoints, got %d", len(breakpoints))
	}
	for i := 1; i < len(breakpoints); i++ {
		if !(breakpoints[i] > breakpoints[i-1]) {
			return nil, configErr("bspline basis", "breakpoints must be strictly increasing (index %d)", i)
		}
	}
	if degree < 1 {
		return nil, configErr("bspline basis", "degree must be at least 1, got %d", degree)
	}
	if smoothness < 0 || smoothness >= degree {
		return nil, configErr("bspline basis", "smoothness must be in [0, %d), got %d", degree, smoothness)
	}

	bp := append([]float64(nil), breakpoints...)
	knots := make([]float64, 0, 2*(degree+1)+(len(bp)-2)*(degree-smoothness))
	for j := 0; j <= degree; j++ {
		knots = append(knots, bp[0])
	}
	for _, b := range bp[1 : len(bp)-1] {
		for j := 0; j < degree-smoothness; j++ {
			knots = append(knots, b)
		}
	}
	for j := 0; j <= degree; j++ {
		knots = append(knots, bp[len(bp)-1])
	}

	return &BSplineFamily{
		breakpoints: bp,
		degree:      degree,
		smoothness:  smoothness,
		knots:       knots,
		n:           len(knots) - degree - 1,
	}, nil
}

func (s *BSplineFamily) Size() int { return s.n }

func (s *BSplineFamily) MaxDerivative() int { return s.degree }

func (s *BSplineFamily) Degree() int { return s.degree }

func (s *BSplineFamily) Smoothness() int { return s.smoothness }

// Knots returns a copy of the knot vector.
func (s *BSplineFamily) Knots() []float64 {
	return append([]float64(nil), s.knots...)
}

func (s *BSplineFamily) Eval(i int, t float64, k int) float64 {
	checkIndex("bspline", i, s.n)
	if k > s.degree {
		return 0
	}
	return s.deriv(i, s.degree, k, t, s.span(t))
}

// span returns the knot interval index j with knots[j] <= t < knots[j+1],
// clamped to the first and last non-empty interval.
func (s *BSplineFamily) span(t float64) int {
	lo, hi := s.degree, s.n-1
	if t < s.knots[lo+1] || math.IsNaN(t) {
		return lo
	}
	if t >= s.knots[hi] {
		return hi
	}
	// first knot strictly greater than t, minus one
	j := sort.Search(len(s.knots), func(m int) bool { return s.knots[m] > t }) - 1
	if j < lo {
		j = lo
	}
	if j > hi {
		j = hi
	}
	return j
}

func (s *BSplineFamily) deriv(i, p, k int, t float64, span int) float64 {
	if k == 0 {
		return s.basis(i, p, t, span)
	}
	if p == 0 {
		return 0
	}
	left, right := 0.0, 0.0
	if d := s.knots[i+p] - s.knots[i]; d > 0 {
		left = s.deriv(i, p-1, k-1, t, span) / d
	}
	if d := s.knots[i+p+1] - s.knots[i+1]; d > 0 {
		right = s.deriv(i+1, p-1, k-1, t, span) / d
	}
	return float64(p) * (left - right)
}

// basis is the Cox-de Boor recursion with 0/0 := 0.
func (s *BSplineFamily) basis(i, p int, t float64, span int) float64 {
	if p == 0 {
		if i == span {
			return 1
		}
		return 0
	}
	a, b := 0.0, 0.0
	if d := s.knots[i+p] - s.knots[i]; d > 0 {
		a = (t - s.knots[i]) / d * s.basis(i, p-1, t, span)
	}
	if d := s.knots[i+p+1] - s.knots[i+1]; d > 0 {
		b = (s.knots[i+p+1] - t) / d * s.basis(i+1, p-1, t, span)
	}
	return a + b
}
