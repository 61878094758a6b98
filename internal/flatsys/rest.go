package flatsys

import (
	"fmt"

	"gonum.org/v1/gonum/floats"
)

// RestInput returns the input that holds x at rest, found by zeroing every
// flag derivative of x and mapping back. It fails when x is not an
// equilibrium of the system.
func RestInput(sys FlatSystem, x []float64) ([]float64, error) {
	const op = "rest input"
	if err := checkVec(op, "state", x, sys.StateDim()); err != nil {
		return nil, err
	}
	flag, err := sys.Forward(x, make([]float64, sys.InputDim()))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	for j := range flag {
		for k := 1; k < len(flag[j]); k++ {
			flag[j][k] = 0
		}
	}
	xr, u, err := sys.Reverse(flag)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if !floats.EqualApprox(xr, x, 1e-9*(1+floats.Norm(x, 2))) {
		return nil, configErr(op, "state %v is not an equilibrium (closest rest state %v)", x, xr)
	}
	return u, nil
}
