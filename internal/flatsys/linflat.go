package flatsys

import (
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"github.com/san-kum/flattraj/internal/linalg"
)

// LinearFlatSystem is the flatness transform of a single-input controllable
// linear system dx/dt = A x + B u, y = C x + D u.
//
// The flat output is z = Cf x with Cf the last row of the inverse
// controllability matrix, so z, z', ..., z^(n-1) are Cf A^i x and
// z^(n) = Cf A^n x + Cf A^(n-1) B u.
type LinearFlatSystem struct {
	a, b, c, d *mat.Dense
	n          int

	// rows[i] = Cf A^i for i = 0..n
	rows   []*mat.VecDense
	obsInv *mat.Dense
	gain   float64
}

// NewLinearFlatSystem derives the flatness maps from the state-space
// matrices. C and D may be nil, meaning y = x.
func NewLinearFlatSystem(a, b, c, d mat.Matrix) (*LinearFlatSystem, error) {
	const op = "linear flat system"
	if a == nil || b == nil {
		return nil, configErr(op, "A and B are required")
	}
	n, na := a.Dims()
	if n != na || n == 0 {
		return nil, configErr(op, "A must be square and non-empty, got %dx%d", n, na)
	}
	br, bc := b.Dims()
	if br != n {
		return nil, configErr(op, "B has %d rows, A has %d", br, n)
	}
	if bc != 1 {
		return nil, configErr(op, "closed-form transform needs a single input, B has %d columns", bc)
	}

	sys := &LinearFlatSystem{a: mat.DenseCopyOf(a), b: mat.DenseCopyOf(b), n: n}
	if c == nil {
		sys.c = identity(n)
	} else {
		cr, cc := c.Dims()
		if cc != n {
			return nil, configErr(op, "C has %d columns, A has %d rows", cc, n)
		}
		sys.c = mat.DenseCopyOf(c)
		if d == nil {
			d = mat.NewDense(cr, 1, nil)
		}
	}
	if d == nil {
		d = mat.NewDense(n, 1, nil)
	}
	cr, _ := sys.c.Dims()
	if dr, dc := d.Dims(); dr != cr || dc != 1 {
		return nil, configErr(op, "D must be %dx1, got %dx%d", cr, dr, dc)
	}
	sys.d = mat.DenseCopyOf(d)

	// Controllability matrix [B AB ... A^(n-1)B].
	wr := mat.NewDense(n, n, nil)
	col := mat.VecDenseCopyOf(sys.b.ColView(0))
	for i := 0; i < n; i++ {
		wr.SetCol(i, col.RawVector().Data)
		var next mat.VecDense
		next.MulVec(sys.a, col)
		col = &next
	}
	if rank := linalg.Rank(wr, linalg.DefaultRCond); rank < n {
		return nil, configErr(op, "system is not controllable from its input (controllability rank %d < %d)", rank, n)
	}
	var wrInv mat.Dense
	if err := wrInv.Inverse(wr); err != nil {
		return nil, configErr(op, "controllability matrix is ill-conditioned: %v", err)
	}

	sys.rows = make([]*mat.VecDense, n+1)
	sys.rows[0] = mat.VecDenseCopyOf(wrInv.RowView(n - 1))
	for i := 1; i <= n; i++ {
		var r mat.VecDense
		r.MulVec(sys.a.T(), sys.rows[i-1])
		sys.rows[i] = &r
	}
	sys.gain = mat.Dot(sys.rows[n-1], sys.b.ColView(0))

	obs := mat.NewDense(n, n, nil)
	for i := 0; i < n; i++ {
		obs.SetRow(i, sys.rows[i].RawVector().Data)
	}
	sys.obsInv = new(mat.Dense)
	if err := sys.obsInv.Inverse(obs); err != nil {
		return nil, configErr(op, "flat output observability matrix is ill-conditioned: %v", err)
	}
	return sys, nil
}

func (s *LinearFlatSystem) StateDim() int { return s.n }
func (s *LinearFlatSystem) InputDim() int { return 1 }

func (s *LinearFlatSystem) FlagLengths() []int { return []int{s.n + 1} }

func (s *LinearFlatSystem) Forward(x, u []float64) (Flag, error) {
	if err := checkVec("forward", "state", x, s.n); err != nil {
		return nil, err
	}
	if err := checkVec("forward", "input", u, 1); err != nil {
		return nil, err
	}
	xv := mat.NewVecDense(s.n, append([]float64(nil), x...))
	z := make([]float64, s.n+1)
	for i := 0; i <= s.n; i++ {
		z[i] = mat.Dot(s.rows[i], xv)
	}
	z[s.n] += s.gain * u[0]
	return Flag{z}, nil
}

func (s *LinearFlatSystem) Reverse(flag Flag) ([]float64, []float64, error) {
	if err := CheckFlag("reverse", flag, s.FlagLengths()); err != nil {
		return nil, nil, err
	}
	z := mat.NewVecDense(s.n, append([]float64(nil), flag[0][:s.n]...))
	var xv mat.VecDense
	xv.MulVec(s.obsInv, z)
	u := (flag[0][s.n] - mat.Dot(s.rows[s.n], &xv)) / s.gain
	return append([]float64(nil), xv.RawVector().Data...), []float64{u}, nil
}

// Derivative returns A x + B u. x and u must have the system's lengths.
func (s *LinearFlatSystem) Derivative(x, u []float64) []float64 {
	var dx mat.VecDense
	dx.MulVec(s.a, mat.NewVecDense(s.n, append([]float64(nil), x...)))
	out := append([]float64(nil), dx.RawVector().Data...)
	floats.AddScaled(out, u[0], mat.Col(nil, 0, s.b))
	return out
}

// Output returns C x + D u.
func (s *LinearFlatSystem) Output(x, u []float64) ([]float64, error) {
	if err := checkVec("output", "state", x, s.n); err != nil {
		return nil, err
	}
	if err := checkVec("output", "input", u, 1); err != nil {
		return nil, err
	}
	var y mat.VecDense
	y.MulVec(s.c, mat.NewVecDense(s.n, append([]float64(nil), x...)))
	out := append([]float64(nil), y.RawVector().Data...)
	floats.AddScaled(out, u[0], mat.Col(nil, 0, s.d))
	return out, nil
}

// Matrices returns copies of A, B, C and D.
func (s *LinearFlatSystem) Matrices() (a, b, c, d *mat.Dense) {
	return mat.DenseCopyOf(s.a), mat.DenseCopyOf(s.b), mat.DenseCopyOf(s.c), mat.DenseCopyOf(s.d)
}

// PlaceGain returns the state feedback gain K for which A - B K has the
// given real eigenvalues. In flat coordinates this is Ackermann's formula
// K = Cf p(A) with p the monic polynomial whose roots are poles.
func (s *LinearFlatSystem) PlaceGain(poles []float64) ([]float64, error) {
	if len(poles) != s.n {
		return nil, configErr("place gain", "need %d poles, got %d", s.n, len(poles))
	}
	// ascending coefficients of prod (s - p)
	coef := []float64{1}
	for _, p := range poles {
		next := make([]float64, len(coef)+1)
		for k, c := range coef {
			next[k+1] += c
			next[k] -= p * c
		}
		coef = next
	}
	k := make([]float64, s.n)
	for i, c := range coef {
		floats.AddScaled(k, c, s.rows[i].RawVector().Data)
	}
	return k, nil
}

func identity(n int) *mat.Dense {
	m := mat.NewDense(n, n, nil)
	for i := 0; i < n; i++ {
		m.Set(i, i, 1)
	}
	return m
}
