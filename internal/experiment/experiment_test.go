package experiment

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/san-kum/flattraj/internal/config"
	"github.com/san-kum/flattraj/internal/dynamo"
	"github.com/san-kum/flattraj/internal/physics"
)

func run(t *testing.T, p *config.Problem) *Outcome {
	t.Helper()
	e, err := New(p, NewRegistry(), nil)
	require.NoError(t, err)
	out, err := e.Run(context.Background())
	require.NoError(t, err)
	return out
}

func TestLaneChangeFeedforward(t *testing.T) {
	for _, name := range []string{"lane-change", "lane-change-bspline"} {
		t.Run(name, func(t *testing.T) {
			out := run(t, config.GetPreset("car", name))

			assert.Less(t, out.Result.Metrics["final_error"], 1e-4)
			assert.Less(t, out.Result.Metrics["tracking_rms"], 1e-4)
			assert.Len(t, out.Planned.Time, len(out.Result.Times))
			assert.False(t, out.Planned.Extrapolated)

			last := out.Result.States[len(out.Result.States)-1]
			assert.InDelta(t, 40, last[0], 1e-4)
			assert.InDelta(t, 2, last[1], 1e-4)
		})
	}
}

func TestLaneChangeOCP(t *testing.T) {
	p := config.GetPreset("car", "lane-change-ocp")
	out := run(t, p)

	assert.GreaterOrEqual(t, out.Trajectory.Cost(), 0.0)
	resp, err := out.Trajectory.EvalAll(out.Trajectory.Linspace(p.Optimizer.Samples))
	require.NoError(t, err)
	for i, u := range resp.Inputs {
		for j := range u {
			assert.GreaterOrEqualf(t, u[j], p.Constraints.InputLower[j]-1e-4, "input %d at t=%g", j, resp.Time[i])
			assert.LessOrEqualf(t, u[j], p.Constraints.InputUpper[j]+1e-4, "input %d at t=%g", j, resp.Time[i])
		}
	}
}

func TestSpringTracking(t *testing.T) {
	p := config.GetPreset("spring", "step")
	e, err := New(p, NewRegistry(), nil)
	require.NoError(t, err)
	// the rest input holding [1, 0.5] against three unit springs
	assert.InDelta(t, 15, e.end.U[0], 1e-9)

	out, err := e.Run(context.Background())
	require.NoError(t, err)
	assert.Less(t, out.Result.Metrics["final_error"], 1e-5)
	assert.Greater(t, out.Result.Metrics["control_effort"], 0.0)
}

func TestSpringEnsemble(t *testing.T) {
	out := run(t, config.GetPreset("spring", "step-ensemble"))
	require.Len(t, out.Ensemble, 8)

	assert.NotEqual(t, out.Ensemble[0].States[0][0], out.Ensemble[1].States[0][0])
	// the tracking loop removes the initial perturbation
	assert.Less(t, out.EnsembleMetrics["final_error"], 1e-2)
	assert.Greater(t, out.EnsembleMetrics["tracking_rms"], out.Result.Metrics["tracking_rms"])
}

func TestCruiseAdaptive(t *testing.T) {
	out := run(t, config.GetPreset("cruise", "accelerate"))

	assert.Less(t, out.Result.Metrics["final_error"], 1e-3)
	assert.Equal(t, 0.0, out.Result.Metrics["saturation"])
	assert.Less(t, out.Result.StepsTaken, 1000)
}

func TestRegistry(t *testing.T) {
	r := NewRegistry()
	assert.Equal(t, []string{"car", "cruise", "spring"}, r.ListSystems())
	assert.Equal(t, []string{"euler", "rk4", "rk45"}, r.ListIntegrators())
	assert.NotEmpty(t, r.Describe("car"))

	p := config.GetPreset("cruise", "accelerate")
	p.Params = map[string]float64{"gear": 3, "mass": 1800}
	model, err := r.GetSystem(p)
	require.NoError(t, err)
	assert.Equal(t, 3, model.(*physics.Cruise).Gear)

	p.Params = map[string]float64{"wheelbase": 3}
	_, err = r.GetSystem(p)
	assert.ErrorIs(t, err, dynamo.ErrUnknownParameter)

	_, err = r.GetIntegrator("verlet")
	assert.Error(t, err)

	_, err = r.GetBasis(config.BasisConfig{Family: "poly", Size: 0})
	assert.Error(t, err)
}

func TestNewErrors(t *testing.T) {
	// a car cannot rest at a point with nonzero speed, and without speed
	// its heading is undefined
	p := config.GetPreset("car", "lane-change")
	p.End.U = nil
	_, err := New(p, NewRegistry(), nil)
	assert.ErrorIs(t, err, physics.ErrSingular)

	p = config.GetPreset("spring", "step")
	p.End.X = []float64{1, 1, 0, 0}
	p.End.U = nil
	_, err = New(p, NewRegistry(), nil)
	assert.Error(t, err)

	p = config.GetPreset("car", "lane-change")
	p.Tf = -1
	_, err = New(p, NewRegistry(), nil)
	assert.ErrorIs(t, err, config.ErrInvalid)
}

func TestTrackingNeedsLinearSystem(t *testing.T) {
	p := config.GetPreset("car", "lane-change")
	p.Simulation.Controller = "tracking"
	p.Simulation.Poles = []float64{-1, -2, -3}
	e, err := New(p, NewRegistry(), nil)
	require.NoError(t, err)
	_, err = e.Run(context.Background())
	assert.Error(t, err)

	p.Simulation.Poles = nil
	p.Simulation.Gain = [][]float64{{0.5, 0, 0}, {0, 0.1, 0.5}}
	out := run(t, p)
	assert.Less(t, out.Result.Metrics["final_error"], 1e-4)
}

func TestSweep(t *testing.T) {
	p := config.GetPreset("car", "lane-change")
	best, points, err := Sweep(context.Background(), p, NewRegistry(), nil, []int{8, 4, 6})
	require.NoError(t, err)
	require.Len(t, points, 3)

	assert.Equal(t, 4, points[0].Size)
	assert.Error(t, points[0].Err)
	assert.Contains(t, []int{6, 8}, best)
	for _, pt := range points[1:] {
		assert.NoError(t, pt.Err)
		assert.Greater(t, pt.Objective, 0.0)
	}

	_, _, err = Sweep(context.Background(), p, NewRegistry(), nil, []int{2, 3})
	assert.Error(t, err)
	_, _, err = Sweep(context.Background(), p, NewRegistry(), nil, nil)
	assert.Error(t, err)
}
