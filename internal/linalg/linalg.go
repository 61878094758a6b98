// Package linalg provides the dense linear solvers used by the trajectory
// solvers.
//
// Two strategies implement [Solver]:
//
//   - [SVD]: minimum-norm least squares, tolerant of rank deficiency
//   - [QR]: LU for square systems, QR/LQ otherwise; fails on singular input
//
// Both are thin layers over gonum's mat package.
package linalg

import (
	"errors"
	"fmt"

	"gonum.org/v1/gonum/mat"
)

// DefaultRCond is the relative singular value cutoff used for rank decisions.
const DefaultRCond = 1e-12

var (
	// ErrSingular indicates a matrix that is singular to working precision.
	ErrSingular = errors.New("linalg: matrix is singular to working precision")

	// ErrShape indicates mismatched matrix and vector dimensions.
	ErrShape = errors.New("linalg: dimension mismatch")
)

// Solver solves A x = b, in the least-squares sense when A is not square.
type Solver interface {
	Name() string
	Solve(a mat.Matrix, b mat.Vector) (*mat.VecDense, error)
}

// SVD computes the minimum-norm least-squares solution using the singular
// values above RCond times the largest one.
type SVD struct {
	RCond float64
}

func (s SVD) Name() string { return "svd" }

func (s SVD) Solve(a mat.Matrix, b mat.Vector) (*mat.VecDense, error) {
	r, _ := a.Dims()
	if b.Len() != r {
		return nil, fmt.Errorf("%w: matrix has %d rows, rhs has %d", ErrShape, r, b.Len())
	}
	var svd mat.SVD
	if ok := svd.Factorize(a, mat.SVDThin); !ok {
		return nil, fmt.Errorf("linalg: svd factorization failed")
	}
	rank := svd.Rank(rcond(s.RCond))
	if rank == 0 {
		return nil, ErrSingular
	}
	var x mat.VecDense
	svd.SolveVecTo(&x, b, rank)
	return &x, nil
}

// QR solves with gonum's Dense.Solve: LU for square, QR for tall and LQ
// for wide matrices.
type QR struct{}

func (QR) Name() string { return "qr" }

func (QR) Solve(a mat.Matrix, b mat.Vector) (*mat.VecDense, error) {
	r, _ := a.Dims()
	if b.Len() != r {
		return nil, fmt.Errorf("%w: matrix has %d rows, rhs has %d", ErrShape, r, b.Len())
	}
	var x mat.VecDense
	if err := x.SolveVec(a, b); err != nil {
		var cond mat.Condition
		if errors.As(err, &cond) {
			return nil, fmt.Errorf("%w (condition number %.3g)", ErrSingular, float64(cond))
		}
		if errors.Is(err, mat.ErrSingular) {
			return nil, ErrSingular
		}
		return nil, err
	}
	return &x, nil
}

// ByName returns the solver registered under name.
func ByName(name string, rc float64) (Solver, error) {
	switch name {
	case "", "svd":
		return SVD{RCond: rc}, nil
	case "qr":
		return QR{}, nil
	default:
		return nil, fmt.Errorf("linalg: unknown solver %q", name)
	}
}

// Rank returns the numerical rank of a.
func Rank(a mat.Matrix, rc float64) int {
	r, c := a.Dims()
	if r == 0 || c == 0 {
		return 0
	}
	var svd mat.SVD
	if ok := svd.Factorize(a, mat.SVDNone); !ok {
		return 0
	}
	if svd.Values(nil)[0] == 0 {
		return 0
	}
	return svd.Rank(rcond(rc))
}

// NullSpace returns an orthonormal basis of the null space of a as the
// columns of a c×k matrix, or nil when the null space is trivial.
func NullSpace(a mat.Matrix, rc float64) *mat.Dense {
	_, c := a.Dims()
	var svd mat.SVD
	if ok := svd.Factorize(a, mat.SVDFullV); !ok {
		return nil
	}
	rank := 0
	if svd.Values(nil)[0] > 0 {
		rank = svd.Rank(rcond(rc))
	}
	if rank >= c {
		return nil
	}
	var v mat.Dense
	svd.VTo(&v)
	null := mat.NewDense(c, c-rank, nil)
	null.Copy(v.Slice(0, c, rank, c))
	return null
}

// DependentRow returns the index of the first row of a that is a linear
// combination of the rows before it, or -1 when a has full row rank.
func DependentRow(a mat.Matrix, rc float64) int {
	r, c := a.Dims()
	m := mat.DenseCopyOf(a)
	for k := 1; k <= r; k++ {
		if Rank(m.Slice(0, k, 0, c), rc) < k {
			return k - 1
		}
	}
	return -1
}

// Residual returns b - A x.
func Residual(a mat.Matrix, x, b mat.Vector) *mat.VecDense {
	var res mat.VecDense
	res.MulVec(a, x)
	res.SubVec(b, &res)
	return &res
}

func rcond(rc float64) float64 {
	if rc <= 0 {
		return DefaultRCond
	}
	return rc
}
