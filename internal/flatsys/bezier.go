package flatsys

import "math"

// BezierFamily is the Bernstein basis of degree N-1 on s = t/T.
//
// T maps the trajectory horizon onto [0, 1]; with T equal to the final time
// of a problem starting at zero the control points stay well conditioned.
type BezierFamily struct {
	n     int
	scale float64
}

// NewBezierFamily returns N Bernstein polynomials on the time scale T.
// A zero scale means 1.
func NewBezierFamily(n int, scale float64) (*BezierFamily, error) {
	if n < 1 {
		return nil, configErr("bezier basis", "size must be positive, got %d", n)
	}
	if scale == 0 {
		scale = 1
	}
	if scale < 0 || math.IsNaN(scale) || math.IsInf(scale, 0) {
		return nil, configErr("bezier basis", "time scale must be positive and finite, got %g", scale)
	}
	return &BezierFamily{n: n, scale: scale}, nil
}

func (b *BezierFamily) Size() int { return b.n }

func (b *BezierFamily) MaxDerivative() int { return b.n - 1 }

func (b *BezierFamily) Scale() float64 { return b.scale }

// Eval uses d^k/ds^k B(i,d) = d!/(d-k)! sum_j (-1)^(k-j) C(k,j) B(i-j, d-k).
func (b *BezierFamily) Eval(i int, t float64, k int) float64 {
	checkIndex("bezier", i, b.n)
	d := b.n - 1
	if k > d {
		return 0
	}
	s := t / b.scale
	sum := 0.0
	for j := 0; j <= k; j++ {
		term := binomial(k, j) * bernstein(i-j, d-k, s)
		if (k-j)%2 == 1 {
			term = -term
		}
		sum += term
	}
	return fallingFactorial(d, k) * sum / math.Pow(b.scale, float64(k))
}

func bernstein(j, m int, s float64) float64 {
	if j < 0 || j > m {
		return 0
	}
	return binomial(m, j) * math.Pow(s, float64(j)) * math.Pow(1-s, float64(m-j))
}
