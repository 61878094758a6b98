package dynamo

import (
	"math"

	"gonum.org/v1/gonum/floats"
)

type State []float64

func (s State) Clone() State {
	c := make(State, len(s))
	copy(c, s)
	return c
}

func (s State) IsValid() bool {
	for _, v := range s {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}

func (s State) Norm() float64 {
	if len(s) == 0 {
		return 0
	}
	return floats.Norm(s, 2)
}

// Sub returns s - other; components missing from other count as zero.
func (s State) Sub(other State) State {
	result := s.Clone()
	for i := range result {
		if i < len(other) {
			result[i] -= other[i]
		}
	}
	return result
}

// Axpy returns s + a*dx.
func (s State) Axpy(a float64, dx State) State {
	result := s.Clone()
	floats.AddScaled(result, a, dx)
	return result
}

type Control []float64

func (c Control) Clone() Control {
	return append(Control(nil), c...)
}

// System is an ODE dx/dt = f(x, u, t).
type System interface {
	Derive(x State, u Control, t float64) State
	StateDim() int
	ControlDim() int
}

// Policy returns the input applied at state x and time t. Integrators call
// it at every stage, so a time-varying feedforward is resolved inside a
// step.
type Policy func(x State, t float64) Control

// Hold returns a policy that applies u regardless of state and time.
func Hold(u Control) Policy {
	return func(State, float64) Control { return u }
}

type Integrator interface {
	Name() string
	Step(sys System, x State, u Policy, t, dt float64) State
}

// AdaptiveIntegrator estimates its local error. StepAdaptive returns the
// next state and a suggested step; when the error exceeds tol it returns
// ErrStepRejected with the unchanged state and a smaller step.
type AdaptiveIntegrator interface {
	Integrator
	StepAdaptive(sys System, x State, u Policy, t, dt, tol float64) (State, float64, error)
}

type Controller interface {
	Compute(x State, t float64) Control
}

type Metric interface {
	Name() string
	Observe(x State, u Control, t float64)
	Value() float64
	Reset()
}

type Configurable interface {
	GetParams() map[string]float64
	SetParam(name string, value float64) error
}

type Config struct {
	Start     float64
	Dt        float64
	Duration  float64
	Tolerance float64
	MaxDt     float64
	MinDt     float64
	Adaptive  bool

	// ZeroOrderHold keeps the input computed at the start of a step for
	// all stages of that step.
	ZeroOrderHold bool

	ValidateState bool
}

func DefaultConfig() Config {
	return Config{
		Dt:            0.01,
		Duration:      10.0,
		Tolerance:     1e-6,
		MaxDt:         0.1,
		MinDt:         1e-8,
		Adaptive:      false,
		ValidateState: true,
	}
}

// Result holds a simulation run. Controls[i] is the input applied at
// Times[i].
type Result struct {
	States     []State
	Controls   []Control
	Times      []float64
	Metrics    map[string]float64
	StepsTaken int
	Rejected   int
}
