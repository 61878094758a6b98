package physics

import (
	"fmt"
	"math"

	"github.com/san-kum/flattraj/internal/dynamo"
	"github.com/san-kum/flattraj/internal/flatsys"
)

// Cruise is the longitudinal model of a car with a torque-limited engine.
// State: [v], input: [throttle]. Gear and road slope are parameters.
//
// The speed is a flat output: the throttle that produces an acceleration
// a at speed v is (m a + Fd(v)) / (alpha T(alpha v)) with Fd the
// gravity, rolling and aerodynamic drag forces.
type Cruise struct {
	Mass        float64 // m, kg
	Gravity     float64
	Rolling     float64 // Cr
	Drag        float64 // Cd
	AirDensity  float64 // rho
	FrontalArea float64
	GearRatios  []float64 // gear ratio divided by wheel radius
	Gear        int       // 1-based
	Slope       float64   // road slope, rad

	TorqueMax float64 // Tm
	PeakSpeed float64 // engine speed of peak torque, rad/s
	Rolloff   float64 // beta
}

func NewCruise() *Cruise {
	return &Cruise{
		Mass:        1600,
		Gravity:     9.8,
		Rolling:     0.01,
		Drag:        0.32,
		AirDensity:  1.3,
		FrontalArea: 2.4,
		GearRatios:  []float64{40, 25, 16, 12, 10},
		Gear:        4,
		TorqueMax:   190,
		PeakSpeed:   420,
		Rolloff:     0.4,
	}
}

func (c *Cruise) StateDim() int   { return 1 }
func (c *Cruise) ControlDim() int { return 1 }
func (c *Cruise) InputDim() int   { return 1 }

func (c *Cruise) FlagLengths() []int { return []int{2} }

func (c *Cruise) alpha() float64 { return c.GearRatios[c.Gear-1] }

// Torque is the engine torque at engine speed omega, zero past the curve.
func (c *Cruise) Torque(omega float64) float64 {
	r := omega/c.PeakSpeed - 1
	return math.Max(c.TorqueMax*(1-c.Rolloff*r*r), 0)
}

// Disturbance is the sum of gravity, rolling friction and drag at speed v.
func (c *Cruise) Disturbance(v float64) float64 {
	fg := c.Mass * c.Gravity * math.Sin(c.Slope)
	fr := c.Mass * c.Gravity * c.Rolling * math.Copysign(1, v)
	fa := 0.5 * c.AirDensity * c.Drag * c.FrontalArea * math.Abs(v) * v
	return fg + fr + fa
}

func (c *Cruise) accel(v, throttle float64) float64 {
	a := c.alpha()
	return (a*c.Torque(a*v)*throttle - c.Disturbance(v)) / c.Mass
}

// Derive saturates the throttle to [0, 1] like the physical pedal.
func (c *Cruise) Derive(x dynamo.State, u dynamo.Control, t float64) dynamo.State {
	throttle := math.Min(math.Max(u[0], 0), 1)
	return dynamo.State{c.accel(x[0], throttle)}
}

// Forward does not saturate, so it is the exact inverse of Reverse.
func (c *Cruise) Forward(x, u []float64) (flatsys.Flag, error) {
	if len(x) != 1 || len(u) != 1 {
		return nil, fmt.Errorf("%w: cruise forward needs 1 state and 1 input, got %d and %d", flatsys.ErrConfig, len(x), len(u))
	}
	return flatsys.Flag{{x[0], c.accel(x[0], u[0])}}, nil
}

func (c *Cruise) Reverse(flag flatsys.Flag) ([]float64, []float64, error) {
	if err := flatsys.CheckFlag("cruise reverse", flag, c.FlagLengths()); err != nil {
		return nil, nil, err
	}
	v, dv := flag[0][0], flag[0][1]
	a := c.alpha()
	force := a * c.Torque(a*v)
	if force <= 0 {
		return nil, nil, fmt.Errorf("%w: engine produces no torque at %.2f m/s in gear %d", ErrSingular, v, c.Gear)
	}
	throttle := (c.Mass*dv + c.Disturbance(v)) / force
	return []float64{v}, []float64{throttle}, nil
}

func (c *Cruise) GetParams() map[string]float64 {
	return map[string]float64{
		"mass":  c.Mass,
		"cr":    c.Rolling,
		"cd":    c.Drag,
		"rho":   c.AirDensity,
		"area":  c.FrontalArea,
		"gear":  float64(c.Gear),
		"slope": c.Slope,
		"tm":    c.TorqueMax,
		"wm":    c.PeakSpeed,
		"beta":  c.Rolloff,
	}
}

func (c *Cruise) SetParam(name string, value float64) error {
	positive := func(dst *float64) error {
		if value <= 0 {
			return &dynamo.ParamError{Name: name, Value: value, Err: dynamo.ErrParameterBounds}
		}
		*dst = value
		return nil
	}
	switch name {
	case "mass":
		return positive(&c.Mass)
	case "cr":
		return positive(&c.Rolling)
	case "cd":
		return positive(&c.Drag)
	case "rho":
		return positive(&c.AirDensity)
	case "area":
		return positive(&c.FrontalArea)
	case "tm":
		return positive(&c.TorqueMax)
	case "wm":
		return positive(&c.PeakSpeed)
	case "beta":
		return positive(&c.Rolloff)
	case "gear":
		g := int(value)
		if float64(g) != value || g < 1 || g > len(c.GearRatios) {
			return &dynamo.ParamError{Name: name, Value: value, Err: dynamo.ErrParameterBounds}
		}
		c.Gear = g
	case "slope":
		if math.Abs(value) >= math.Pi/2 {
			return &dynamo.ParamError{Name: name, Value: value, Err: dynamo.ErrParameterBounds}
		}
		c.Slope = value
	default:
		return &dynamo.ParamError{Name: name, Value: value, Err: dynamo.ErrUnknownParameter}
	}
	return nil
}
