package flatsys

import "math"

// PolyFamily is the monomial basis (t/T)^i, i = 0..N-1.
//
// Monomials become badly conditioned for large N or long horizons; prefer
// BezierFamily or BSplineFamily there.
type PolyFamily struct {
	n     int
	scale float64
}

// NewPolyFamily returns N monomials on the time scale T. A zero scale means 1.
func NewPolyFamily(n int, scale float64) (*PolyFamily, error) {
	if n < 1 {
		return nil, configErr("poly basis", "size must be positive, got %d", n)
	}
	if scale == 0 {
		scale = 1
	}
	if scale < 0 || math.IsNaN(scale) || math.IsInf(scale, 0) {
		return nil, configErr("poly basis", "time scale must be positive and finite, got %g", scale)
	}
	return &PolyFamily{n: n, scale: scale}, nil
}

func (p *PolyFamily) Size() int { return p.n }

func (p *PolyFamily) MaxDerivative() int { return p.n - 1 }

func (p *PolyFamily) Scale() float64 { return p.scale }

func (p *PolyFamily) Eval(i int, t float64, k int) float64 {
	checkIndex("poly", i, p.n)
	if k > i {
		return 0
	}
	s := t / p.scale
	return fallingFactorial(i, k) * math.Pow(s, float64(i-k)) / math.Pow(p.scale, float64(k))
}
