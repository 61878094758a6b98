package flatsys

// Flag holds, for every flat output, its value followed by its time
// derivatives: flag[j] = [z_j, z_j^(1), z_j^(2), ...].
type Flag [][]float64

// Clone returns a deep copy of the flag.
func (f Flag) Clone() Flag {
	out := make(Flag, len(f))
	for i, z := range f {
		out[i] = append([]float64(nil), z...)
	}
	return out
}

// FlatSystem maps between the physical (state, input) pair and the flag of
// a differentially flat system. Implementations must be pure: Reverse of
// Forward reproduces (x, u) for every point in the system's valid domain.
type FlatSystem interface {
	StateDim() int
	InputDim() int

	// FlagLengths returns, per flat output, how many flag entries (value
	// plus derivatives) Reverse needs.
	FlagLengths() []int

	Forward(x, u []float64) (Flag, error)
	Reverse(flag Flag) (x, u []float64, err error)
}

// CheckFlag reports a configuration error when flag does not carry the
// orders required by lengths.
func CheckFlag(op string, flag Flag, lengths []int) error {
	if len(flag) != len(lengths) {
		return configErr(op, "flag has %d flat outputs, system has %d", len(flag), len(lengths))
	}
	for j, want := range lengths {
		if got := len(flag[j]); got < want {
			return configErr(op, "flat output %d is missing derivative order %d (flag has %d entries, need %d)",
				j, got, got, want)
		}
	}
	return nil
}

func checkVec(op, name string, v []float64, n int) error {
	if len(v) != n {
		return configErr(op, "%s has length %d, system expects %d", name, len(v), n)
	}
	return nil
}

// ForwardFunc and ReverseFunc are the flatness maps of a system whose
// transform is supplied by its author.
type (
	ForwardFunc func(x, u []float64) (Flag, error)
	ReverseFunc func(flag Flag) (x, u []float64, err error)
)

// FuncSystem adapts author-supplied flatness maps to FlatSystem.
type FuncSystem struct {
	n, m    int
	lengths []int
	forward ForwardFunc
	reverse ReverseFunc
}

// NewFuncSystem wraps forward and reverse maps for a system with n states,
// m inputs and the given flag lengths.
func NewFuncSystem(n, m int, lengths []int, forward ForwardFunc, reverse ReverseFunc) (*FuncSystem, error) {
	const op = "flat system"
	if n < 1 || m < 1 {
		return nil, configErr(op, "state and input dimensions must be positive, got n=%d m=%d", n, m)
	}
	if len(lengths) == 0 {
		return nil, configErr(op, "at least one flat output is required")
	}
	for j, l := range lengths {
		if l < 1 {
			return nil, configErr(op, "flag length of output %d must be positive, got %d", j, l)
		}
	}
	if forward == nil || reverse == nil {
		return nil, configErr(op, "forward and reverse maps are both required")
	}
	return &FuncSystem{
		n:       n,
		m:       m,
		lengths: append([]int(nil), lengths...),
		forward: forward,
		reverse: reverse,
	}, nil
}

func (s *FuncSystem) StateDim() int { return s.n }
func (s *FuncSystem) InputDim() int { return s.m }

func (s *FuncSystem) FlagLengths() []int {
	return append([]int(nil), s.lengths...)
}

func (s *FuncSystem) Forward(x, u []float64) (Flag, error) {
	if err := checkVec("forward", "state", x, s.n); err != nil {
		return nil, err
	}
	if err := checkVec("forward", "input", u, s.m); err != nil {
		return nil, err
	}
	return s.forward(x, u)
}

func (s *FuncSystem) Reverse(flag Flag) ([]float64, []float64, error) {
	if err := CheckFlag("reverse", flag, s.lengths); err != nil {
		return nil, nil, err
	}
	return s.reverse(flag)
}
