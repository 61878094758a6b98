package physics

import (
	"fmt"
	"strconv"
	"strings"

	"gonum.org/v1/gonum/mat"

	"github.com/san-kum/flattraj/internal/dynamo"
	"github.com/san-kum/flattraj/internal/flatsys"
)

const (
	DefaultMass      = 1.0
	DefaultStiffness = 10.0
	DefaultDamping   = 0.5
)

// SpringMass is a chain of masses between two walls with the input force
// acting on the first mass. Stiffness[i] couples mass i to its left
// neighbour, Stiffness[n] couples the last mass to the right wall.
// State: [x1..xn, v1..vn].
//
// The chain is linear, so its flatness maps come from
// [flatsys.LinearFlatSystem] and are rebuilt whenever a parameter changes.
type SpringMass struct {
	NumMasses int
	Masses    []float64
	Stiffness []float64
	Damping   []float64

	flat *flatsys.LinearFlatSystem
}

func NewSpringMass() (*SpringMass, error) {
	s := &SpringMass{
		NumMasses: 1,
		Masses:    []float64{DefaultMass},
		Stiffness: []float64{DefaultStiffness, 0},
		Damping:   []float64{DefaultDamping},
	}
	return s, s.rebuild()
}

func NewSpringMassChain(n int) (*SpringMass, error) {
	if n < 1 {
		return nil, fmt.Errorf("%w: chain needs at least one mass, got %d", flatsys.ErrConfig, n)
	}
	masses := make([]float64, n)
	stiffness := make([]float64, n+1)
	damping := make([]float64, n)

	for i := 0; i < n; i++ {
		masses[i] = DefaultMass
		stiffness[i] = DefaultStiffness
		damping[i] = 0.2
	}
	stiffness[n] = DefaultStiffness

	s := &SpringMass{
		NumMasses: n,
		Masses:    masses,
		Stiffness: stiffness,
		Damping:   damping,
	}
	return s, s.rebuild()
}

// StateSpace returns A and B of dx/dt = A x + B u.
func (s *SpringMass) StateSpace() (a, b *mat.Dense) {
	n := s.NumMasses
	a = mat.NewDense(2*n, 2*n, nil)
	b = mat.NewDense(2*n, 1, nil)
	for i := 0; i < n; i++ {
		a.Set(i, n+i, 1)

		m := s.Masses[i]
		kl, kr := s.Stiffness[i], s.Stiffness[i+1]
		a.Set(n+i, i, -(kl+kr)/m)
		if i > 0 {
			a.Set(n+i, i-1, kl/m)
		}
		if i < n-1 {
			a.Set(n+i, i+1, kr/m)
		}
		a.Set(n+i, n+i, -s.Damping[i]/m)
	}
	b.Set(n, 0, 1/s.Masses[0])
	return a, b
}

func (s *SpringMass) rebuild() error {
	n := s.NumMasses
	if len(s.Masses) != n || len(s.Damping) != n || len(s.Stiffness) != n+1 {
		return fmt.Errorf("%w: spring mass chain of %d needs %d masses, %d dampers and %d springs",
			flatsys.ErrConfig, n, n, n, n+1)
	}
	for i, m := range s.Masses {
		if m <= 0 {
			return fmt.Errorf("%w: mass %d must be positive, got %g", flatsys.ErrConfig, i, m)
		}
	}
	a, b := s.StateSpace()
	flat, err := flatsys.NewLinearFlatSystem(a, b, nil, nil)
	if err != nil {
		return err
	}
	s.flat = flat
	return nil
}

// Linear returns the linear flat system behind the flatness maps.
func (s *SpringMass) Linear() *flatsys.LinearFlatSystem { return s.flat }

func (s *SpringMass) StateDim() int   { return s.NumMasses * 2 }
func (s *SpringMass) ControlDim() int { return 1 }
func (s *SpringMass) InputDim() int   { return 1 }

func (s *SpringMass) FlagLengths() []int { return s.flat.FlagLengths() }

func (s *SpringMass) Forward(x, u []float64) (flatsys.Flag, error) { return s.flat.Forward(x, u) }

func (s *SpringMass) Reverse(flag flatsys.Flag) ([]float64, []float64, error) {
	return s.flat.Reverse(flag)
}

func (s *SpringMass) Derive(x dynamo.State, u dynamo.Control, t float64) dynamo.State {
	n := s.NumMasses
	dx := make(dynamo.State, n*2)

	for i := 0; i < n; i++ {
		dx[i] = x[n+i]
	}

	extForce := 0.0
	if len(u) > 0 {
		extForce = u[0]
	}

	for i := 0; i < n; i++ {
		pos, vel := x[i], x[n+i]

		forceLeft := -s.Stiffness[i] * pos
		if i > 0 {
			forceLeft = -s.Stiffness[i] * (pos - x[i-1])
		}

		forceRight := -s.Stiffness[i+1] * pos
		if i < n-1 {
			forceRight = -s.Stiffness[i+1] * (pos - x[i+1])
		}

		totalForce := forceLeft + forceRight - s.Damping[i]*vel
		if i == 0 {
			totalForce += extForce
		}
		dx[n+i] = totalForce / s.Masses[i]
	}

	return dx
}

// Energy is the kinetic plus spring potential energy.
func (s *SpringMass) Energy(x dynamo.State) float64 {
	n := s.NumMasses
	energy := 0.0

	for i := 0; i < n; i++ {
		v := x[n+i]
		energy += 0.5 * s.Masses[i] * v * v
	}

	for i := 0; i < n; i++ {
		stretch := x[i]
		if i > 0 {
			stretch = x[i] - x[i-1]
		}
		energy += 0.5 * s.Stiffness[i] * stretch * stretch
	}
	energy += 0.5 * s.Stiffness[n] * x[n-1] * x[n-1]

	return energy
}

// GetParams exposes mass_i, stiffness_i and damping_i per element.
func (s *SpringMass) GetParams() map[string]float64 {
	params := make(map[string]float64)
	for i, m := range s.Masses {
		params[fmt.Sprintf("mass_%d", i)] = m
		params[fmt.Sprintf("damping_%d", i)] = s.Damping[i]
	}
	for i, k := range s.Stiffness {
		params[fmt.Sprintf("stiffness_%d", i)] = k
	}
	return params
}

// SetParam updates one element and rebuilds the flatness maps. An update
// that makes the chain uncontrollable is rolled back.
func (s *SpringMass) SetParam(name string, value float64) error {
	field, index, ok := strings.Cut(name, "_")
	idx, err := strconv.Atoi(index)
	if !ok || err != nil {
		return &dynamo.ParamError{Name: name, Value: value, Err: dynamo.ErrUnknownParameter}
	}

	var target []float64
	switch field {
	case "mass":
		target = s.Masses
	case "damping":
		target = s.Damping
	case "stiffness":
		target = s.Stiffness
	default:
		return &dynamo.ParamError{Name: name, Value: value, Err: dynamo.ErrUnknownParameter}
	}
	if idx < 0 || idx >= len(target) {
		return &dynamo.ParamError{Name: name, Value: value, Err: dynamo.ErrUnknownParameter}
	}
	if value < 0 || (field == "mass" && value == 0) {
		return &dynamo.ParamError{Name: name, Value: value, Err: dynamo.ErrParameterBounds}
	}

	old := target[idx]
	target[idx] = value
	if err := s.rebuild(); err != nil {
		target[idx] = old
		return &dynamo.ParamError{Name: name, Value: value, Err: fmt.Errorf("%w: %v", dynamo.ErrParameterBounds, err)}
	}
	return nil
}
