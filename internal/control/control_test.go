package control

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"github.com/san-kum/flattraj/internal/dynamo"
	"github.com/san-kum/flattraj/internal/flatsys"
	"github.com/san-kum/flattraj/internal/integrators"
)

// doubleIntegrator is x^(2) = u, both as a flat system and as an ODE.
type doubleIntegrator struct{}

func (doubleIntegrator) Derive(x dynamo.State, u dynamo.Control, t float64) dynamo.State {
	return dynamo.State{x[1], u[0]}
}

func (doubleIntegrator) StateDim() int   { return 2 }
func (doubleIntegrator) ControlDim() int { return 1 }

func plan(t *testing.T) (*flatsys.SystemTrajectory, *flatsys.LinearFlatSystem) {
	t.Helper()
	sys, err := flatsys.NewLinearFlatSystem(
		mat.NewDense(2, 2, []float64{0, 1, 0, 0}),
		mat.NewDense(2, 1, []float64{0, 1}),
		nil, nil)
	require.NoError(t, err)
	basis, err := flatsys.NewPolyFamily(6, 3)
	require.NoError(t, err)

	traj, err := flatsys.PointToPoint(sys, basis, 0, 3,
		flatsys.Endpoint{X: []float64{0, 0}, U: []float64{0}},
		flatsys.Endpoint{X: []float64{1, 0}, U: []float64{0}},
		flatsys.DefaultP2POptions())
	require.NoError(t, err)
	return traj, sys
}

func TestFeedforward(t *testing.T) {
	traj, _ := plan(t)
	ff := NewFeedforward(traj)
	assert.Same(t, traj, ff.Trajectory())

	_, ud, err := traj.Eval(1.2)
	require.NoError(t, err)
	assert.InDeltaSlice(t, ud, ff.Compute(dynamo.State{0, 0}, 1.2), 1e-12)
	assert.InDeltaSlice(t, ud, ff.Compute(dynamo.State{5, -3}, 1.2), 1e-12, "feedforward ignores the state")
}

func TestTrackingCompute(t *testing.T) {
	traj, _ := plan(t)
	ctrl, err := NewTracking(traj, [][]float64{{2, 3}})
	require.NoError(t, err)

	xd, ud, err := traj.Eval(0.7)
	require.NoError(t, err)
	assert.InDeltaSlice(t, ud, ctrl.Compute(xd, 0.7), 1e-12)

	off := dynamo.State{xd[0] + 0.1, xd[1] - 0.2}
	u := ctrl.Compute(off, 0.7)
	assert.InDelta(t, ud[0]-2*0.1-3*(-0.2), u[0], 1e-12)
}

func TestNewTrackingDimensions(t *testing.T) {
	traj, _ := plan(t)
	for name, k := range map[string][][]float64{
		"rows":    {{1, 1}, {1, 1}},
		"columns": {{1, 1, 1}},
		"empty":   nil,
	} {
		t.Run(name, func(t *testing.T) {
			_, err := NewTracking(traj, k)
			assert.ErrorIs(t, err, dynamo.ErrDimensionMismatch)
		})
	}
}

func TestLinearTrackingParams(t *testing.T) {
	traj, sys := plan(t)
	ctrl, err := NewLinearTracking(traj, sys, []float64{-1, -2})
	require.NoError(t, err)

	params := ctrl.GetParams()
	assert.InDelta(t, 2, params["k0_0"], 1e-9)
	assert.InDelta(t, 3, params["k0_1"], 1e-9)

	require.NoError(t, ctrl.SetParam("k0_1", 5))
	assert.Equal(t, 5.0, ctrl.K[0][1])

	for _, name := range []string{"k1_0", "k0_2", "kp", "gain", "k-1_0"} {
		err := ctrl.SetParam(name, 1)
		assert.ErrorIs(t, err, dynamo.ErrUnknownParameter, name)
	}

	_, err = NewLinearTracking(traj, sys, []float64{-1})
	assert.Error(t, err)
}

func TestTrackingRejectsOffset(t *testing.T) {
	traj, sys := plan(t)
	cfg := dynamo.Config{Dt: 0.01, Duration: 3, ValidateState: true}
	x0 := dynamo.State{0.2, 0}

	openLoop, err := dynamo.New(doubleIntegrator{}, integrators.NewRK4(), NewFeedforward(traj)).Run(context.Background(), x0, cfg)
	require.NoError(t, err)

	tracker, err := NewLinearTracking(traj, sys, []float64{-4, -5})
	require.NoError(t, err)
	closedLoop, err := dynamo.New(doubleIntegrator{}, integrators.NewRK4(), tracker).Run(context.Background(), x0, cfg)
	require.NoError(t, err)

	final := func(r *dynamo.Result) float64 { return r.States[len(r.States)-1][0] }
	// x^(2) = ud keeps the initial offset forever
	assert.InDelta(t, 1.2, final(openLoop), 1e-6)
	assert.InDelta(t, 1.0, final(closedLoop), 1e-3)
}

func TestNone(t *testing.T) {
	u := NewNone(2).Compute(dynamo.State{1, 2, 3}, 0)
	assert.Equal(t, dynamo.Control{0, 0}, u)
}
