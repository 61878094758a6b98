package physics

import (
	"fmt"
	"math"

	"github.com/san-kum/flattraj/internal/dynamo"
	"github.com/san-kum/flattraj/internal/flatsys"
)

const DefaultWheelbase = 3.0

// KinematicCar is the bicycle model with the reference point on the rear
// axle.
// State: [x, y, theta], input: [v, delta] with delta the steering angle.
type KinematicCar struct {
	Wheelbase float64
}

func NewKinematicCar() *KinematicCar {
	return &KinematicCar{Wheelbase: DefaultWheelbase}
}

func (c *KinematicCar) StateDim() int   { return 3 }
func (c *KinematicCar) ControlDim() int { return 2 }
func (c *KinematicCar) InputDim() int   { return 2 }

func (c *KinematicCar) FlagLengths() []int { return []int{3, 3} }

func (c *KinematicCar) Derive(x dynamo.State, u dynamo.Control, t float64) dynamo.State {
	th, v, delta := x[2], u[0], u[1]
	return dynamo.State{
		v * math.Cos(th),
		v * math.Sin(th),
		v / c.Wheelbase * math.Tan(delta),
	}
}

func (c *KinematicCar) Forward(x, u []float64) (flatsys.Flag, error) {
	if len(x) != 3 || len(u) != 2 {
		return nil, fmt.Errorf("%w: car forward needs 3 states and 2 inputs, got %d and %d", flatsys.ErrConfig, len(x), len(u))
	}
	th, v, delta := x[2], u[0], u[1]
	thdot := v / c.Wheelbase * math.Tan(delta)
	return flatsys.Flag{
		{x[0], v * math.Cos(th), -v * thdot * math.Sin(th)},
		{x[1], v * math.Sin(th), v * thdot * math.Cos(th)},
	}, nil
}

// Reverse recovers heading from the velocity direction, so it needs a
// nonzero speed. A negative v in the original input is returned as the
// opposite heading with positive speed.
func (c *KinematicCar) Reverse(flag flatsys.Flag) ([]float64, []float64, error) {
	if err := flatsys.CheckFlag("car reverse", flag, c.FlagLengths()); err != nil {
		return nil, nil, err
	}
	xd, yd := flag[0][1], flag[1][1]
	v := math.Hypot(xd, yd)
	if v < 1e-12 {
		return nil, nil, fmt.Errorf("%w: car speed is zero", ErrSingular)
	}
	th := math.Atan2(yd, xd)
	thdot := (flag[1][2]*math.Cos(th) - flag[0][2]*math.Sin(th)) / v
	delta := math.Atan2(thdot*c.Wheelbase, v)
	return []float64{flag[0][0], flag[1][0], th}, []float64{v, delta}, nil
}

func (c *KinematicCar) GetParams() map[string]float64 {
	return map[string]float64{"wheelbase": c.Wheelbase}
}

func (c *KinematicCar) SetParam(name string, value float64) error {
	switch name {
	case "wheelbase":
		if value <= 0 {
			return &dynamo.ParamError{Name: name, Value: value, Err: dynamo.ErrParameterBounds}
		}
		c.Wheelbase = value
	default:
		return &dynamo.ParamError{Name: name, Value: value, Err: dynamo.ErrUnknownParameter}
	}
	return nil
}
