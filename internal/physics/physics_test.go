package physics

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/san-kum/flattraj/internal/dynamo"
	"github.com/san-kum/flattraj/internal/flatsys"
)

func roundTrip(t *testing.T, sys flatsys.FlatSystem, x, u []float64) {
	t.Helper()
	flag, err := sys.Forward(x, u)
	require.NoError(t, err)
	gotX, gotU, err := sys.Reverse(flag)
	require.NoError(t, err)
	assert.InDeltaSlice(t, x, gotX, 1e-9)
	assert.InDeltaSlice(t, u, gotU, 1e-9)
}

func TestKinematicCar(t *testing.T) {
	car := NewKinematicCar()
	x := []float64{1, -2, 0.3}
	u := []float64{8, 0.1}
	roundTrip(t, car, x, u)

	// the first flag derivatives are the position rates
	flag, err := car.Forward(x, u)
	require.NoError(t, err)
	dx := car.Derive(x, u, 0)
	assert.InDelta(t, dx[0], flag[0][1], 1e-12)
	assert.InDelta(t, dx[1], flag[1][1], 1e-12)

	// reversing direction flips the heading
	flag, err = car.Forward([]float64{0, 0, 0}, []float64{-2, 0})
	require.NoError(t, err)
	gx, gu, err := car.Reverse(flag)
	require.NoError(t, err)
	assert.InDelta(t, math.Pi, math.Abs(gx[2]), 1e-12)
	assert.InDelta(t, 2, gu[0], 1e-12)

	_, _, err = car.Reverse(flatsys.Flag{{0, 0, 0}, {0, 0, 0}})
	assert.ErrorIs(t, err, ErrSingular)

	_, err = car.Forward([]float64{0, 0}, u)
	assert.ErrorIs(t, err, flatsys.ErrConfig)
}

func TestKinematicCarParams(t *testing.T) {
	car := NewKinematicCar()
	require.NoError(t, car.SetParam("wheelbase", 2.5))
	assert.Equal(t, 2.5, car.GetParams()["wheelbase"])

	assert.ErrorIs(t, car.SetParam("wheelbase", 0), dynamo.ErrParameterBounds)
	assert.ErrorIs(t, car.SetParam("mass", 1), dynamo.ErrUnknownParameter)
}

func TestSpringMassChain(t *testing.T) {
	chain, err := NewSpringMassChain(2)
	require.NoError(t, err)
	assert.Equal(t, []int{5}, chain.FlagLengths())

	x := []float64{0.1, -0.2, 0.5, 0.3}
	u := []float64{1.5}
	roundTrip(t, chain, x, u)

	// Derive matches the state space model
	assert.InDeltaSlice(t, chain.Linear().Derivative(x, u), []float64(chain.Derive(x, u, 0)), 1e-12)
}

func TestSpringMassSingle(t *testing.T) {
	sm, err := NewSpringMass()
	require.NoError(t, err)
	roundTrip(t, sm, []float64{0.5, -1}, []float64{2})

	// x^(2) = (u - k x - c v) / m
	dx := sm.Derive(dynamo.State{0.5, -1}, dynamo.Control{2}, 0)
	assert.InDelta(t, -1, dx[0], 1e-12)
	assert.InDelta(t, 2-10*0.5+0.5, dx[1], 1e-12)

	assert.InDelta(t, 0.5*1+0.5*10*0.25, sm.Energy(dynamo.State{0.5, -1}), 1e-12)
}

func TestSpringMassParams(t *testing.T) {
	chain, err := NewSpringMassChain(2)
	require.NoError(t, err)

	require.NoError(t, chain.SetParam("mass_1", 2))
	assert.Equal(t, 2.0, chain.GetParams()["mass_1"])
	a, _ := chain.StateSpace()
	assert.InDelta(t, -20.0/2, a.At(3, 1), 1e-12)

	assert.ErrorIs(t, chain.SetParam("mass_0", 0), dynamo.ErrParameterBounds)
	assert.ErrorIs(t, chain.SetParam("mass_7", 1), dynamo.ErrUnknownParameter)
	assert.ErrorIs(t, chain.SetParam("length_0", 1), dynamo.ErrUnknownParameter)
	assert.ErrorIs(t, chain.SetParam("mass", 1), dynamo.ErrUnknownParameter)

	// without the middle spring the second mass is decoupled from the input
	err = chain.SetParam("stiffness_1", 0)
	assert.ErrorIs(t, err, dynamo.ErrParameterBounds)
	assert.Equal(t, DefaultStiffness, chain.Stiffness[1])

	_, err = NewSpringMassChain(0)
	assert.ErrorIs(t, err, flatsys.ErrConfig)
}

func TestCruise(t *testing.T) {
	cruise := NewCruise()
	roundTrip(t, cruise, []float64{20}, []float64{0.4})

	// steady speed needs a partial throttle
	_, u, err := cruise.Reverse(flatsys.Flag{{20, 0}})
	require.NoError(t, err)
	assert.Greater(t, u[0], 0.0)
	assert.Less(t, u[0], 1.0)
	dv := cruise.Derive(dynamo.State{20}, dynamo.Control{u[0]}, 0)
	assert.InDelta(t, 0, dv[0], 1e-12)

	// the pedal saturates in the simulation model only
	flag, err := cruise.Forward([]float64{20}, []float64{2})
	require.NoError(t, err)
	full := cruise.Derive(dynamo.State{20}, dynamo.Control{2}, 0)
	assert.Greater(t, flag[0][1], full[0])

	// engine speed far past the torque curve
	_, _, err = cruise.Reverse(flatsys.Flag{{200, 0}})
	assert.ErrorIs(t, err, ErrSingular)
}

func TestCruiseSlope(t *testing.T) {
	cruise := NewCruise()
	_, flat, err := cruise.Reverse(flatsys.Flag{{20, 0}})
	require.NoError(t, err)

	require.NoError(t, cruise.SetParam("slope", 4*math.Pi/180))
	_, uphill, err := cruise.Reverse(flatsys.Flag{{20, 0}})
	require.NoError(t, err)
	assert.Greater(t, uphill[0], flat[0])

	assert.ErrorIs(t, cruise.SetParam("gear", 6), dynamo.ErrParameterBounds)
	assert.ErrorIs(t, cruise.SetParam("gear", 2.5), dynamo.ErrParameterBounds)
	require.NoError(t, cruise.SetParam("gear", 3))
	assert.Equal(t, 3.0, cruise.GetParams()["gear"])
	assert.ErrorIs(t, cruise.SetParam("mass", -1), dynamo.ErrParameterBounds)
	assert.ErrorIs(t, cruise.SetParam("wheelbase", 1), dynamo.ErrUnknownParameter)
}
