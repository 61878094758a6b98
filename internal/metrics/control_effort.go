package metrics

import (
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/integrate"

	"github.com/san-kum/flattraj/internal/dynamo"
)

// ControlEffort is the time integral of |u|^2 over the run.
type ControlEffort struct {
	name   string
	times  []float64
	energy []float64
}

func NewControlEffort() *ControlEffort {
	return &ControlEffort{
		name: "control_effort",
	}
}

func (c *ControlEffort) Name() string {
	return c.name
}

func (c *ControlEffort) Observe(x dynamo.State, u dynamo.Control, t float64) {
	c.times = append(c.times, t)
	c.energy = append(c.energy, floats.Dot(u, u))
}

func (c *ControlEffort) Value() float64 {
	if len(c.times) < 2 {
		return 0
	}
	return integrate.Trapezoidal(c.times, c.energy)
}

func (c *ControlEffort) Reset() {
	c.times = c.times[:0]
	c.energy = c.energy[:0]
}
