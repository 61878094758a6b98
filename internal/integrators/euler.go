package integrators

import "github.com/san-kum/flattraj/internal/dynamo"

type Euler struct{}

func NewEuler() *Euler {
	return &Euler{}
}

func (e *Euler) Name() string { return "euler" }

func (e *Euler) Step(sys dynamo.System, x dynamo.State, u dynamo.Policy, t float64, dt float64) dynamo.State {
	dx := sys.Derive(x, u(x, t), t)
	result := make(dynamo.State, len(x))
	for i := range x {
		result[i] = x[i] + dt*dx[i]
	}
	return result
}
