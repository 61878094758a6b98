package flatsys

import "fmt"

// Basis is a finite family of scalar time functions used to represent one
// flat output as a linear combination of its members.
//
// Eval(i, t, k) must return the analytic k-th derivative of Eval(i, t, 0);
// the solvers build boundary rows from it without checking.
type Basis interface {
	// Size returns the number of basis functions N.
	Size() int

	// MaxDerivative returns the highest derivative order that is not
	// identically zero for the family.
	MaxDerivative() int

	// Eval returns the k-th time derivative of basis function i at t.
	// Eval panics if i is outside [0, Size()).
	Eval(i int, t float64, k int) float64
}

// EvalRow fills dst with the k-th derivative of every basis function at t.
func EvalRow(b Basis, t float64, k int, dst []float64) []float64 {
	n := b.Size()
	if len(dst) != n {
		dst = make([]float64, n)
	}
	for i := 0; i < n; i++ {
		dst[i] = b.Eval(i, t, k)
	}
	return dst
}

// Expand evaluates the flag entries sum_i c_i Eval(i, t, k) for k < length.
func Expand(b Basis, coefs []float64, t float64, length int) []float64 {
	out := make([]float64, length)
	for k := 0; k < length; k++ {
		sum := 0.0
		for i, c := range coefs {
			if c == 0 {
				continue
			}
			sum += c * b.Eval(i, t, k)
		}
		out[k] = sum
	}
	return out
}

func checkIndex(family string, i, n int) {
	if i < 0 || i >= n {
		panic(fmt.Sprintf("flatsys: %s basis index %d out of range [0, %d)", family, i, n))
	}
}

// fallingFactorial returns n (n-1) ... (n-k+1).
func fallingFactorial(n, k int) float64 {
	out := 1.0
	for j := 0; j < k; j++ {
		out *= float64(n - j)
	}
	return out
}

func binomial(n, k int) float64 {
	if k < 0 || k > n {
		return 0
	}
	if k > n-k {
		k = n - k
	}
	out := 1.0
	for j := 1; j <= k; j++ {
		out = out * float64(n-k+j) / float64(j)
	}
	return out
}
