package automation

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/san-kum/flattraj/internal/config"
	"github.com/san-kum/flattraj/internal/dynamo"
	"github.com/san-kum/flattraj/internal/experiment"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
}

func TestRunScenario(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, config.Save(filepath.Join(dir, "lane.yaml"), config.GetPreset("car", "lane-change")))
	writeFile(t, filepath.Join(dir, "scenario.yaml"), `
name: two cars
steps:
  - preset: car/lane-change
    params:
      wheelbase: 2.5
  - problem: lane.yaml
    tf: 5
`)

	scenario, err := LoadScenario(filepath.Join(dir, "scenario.yaml"))
	require.NoError(t, err)
	assert.Equal(t, "two cars", scenario.Name)
	require.Len(t, scenario.Steps, 2)

	outs, err := RunScenario(context.Background(), scenario, experiment.NewRegistry(), nil)
	require.NoError(t, err)
	require.Len(t, outs, 2)

	assert.Equal(t, 2.5, outs[0].Problem.Params["wheelbase"])
	assert.Equal(t, 5.0, outs[1].Problem.Tf)
	last := outs[1].Result.Times[len(outs[1].Result.Times)-1]
	assert.InDelta(t, 5.0, last, 1e-9)
}

func TestLoadScenarioInvalid(t *testing.T) {
	dir := t.TempDir()
	tests := []struct {
		name    string
		content string
	}{
		{"no steps", "name: empty\n"},
		{"preset and problem", "steps:\n  - preset: car/lane-change\n    problem: lane.yaml\n"},
		{"neither", "steps:\n  - tf: 2\n"},
		{"unknown key", "steps:\n  - preset: car/lane-change\n    speed: 3\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(dir, "s.yaml")
			writeFile(t, path, tt.content)
			_, err := LoadScenario(path)
			assert.Error(t, err)
		})
	}
}

func TestRunScenarioStopsAtFailure(t *testing.T) {
	scenario := &Scenario{Steps: []ScenarioStep{
		{Preset: "car/lane-change"},
		{Preset: "car/no-such-preset"},
		{Preset: "car/lane-change"},
	}}
	outs, err := RunScenario(context.Background(), scenario, experiment.NewRegistry(), nil)
	assert.ErrorContains(t, err, "step 2")
	assert.Len(t, outs, 1)
}

func TestRunSweep(t *testing.T) {
	sweep := &ParameterSweep{
		Problem:   config.GetPreset("car", "lane-change"),
		ParamName: "wheelbase",
		ParamMin:  2,
		ParamMax:  4,
		NumSteps:  3,
	}
	results, err := RunSweep(context.Background(), sweep, experiment.NewRegistry(), nil)
	require.NoError(t, err)
	require.Len(t, results, 3)

	for i, r := range results {
		require.NoError(t, r.Err)
		assert.InDelta(t, 2+float64(i), r.ParamValue, 1e-12)
		assert.Less(t, r.TrackingRMS, 1e-3)
	}
	// a longer car steers harder for the same path
	assert.Less(t, results[0].Effort, results[2].Effort)
	assert.Nil(t, sweep.Problem.Params, "the base problem is left alone")
}

func TestRunSweepErrors(t *testing.T) {
	base := config.GetPreset("car", "lane-change")

	_, err := RunSweep(context.Background(), &ParameterSweep{Problem: base, ParamName: "wheelbase", ParamMin: 1, ParamMax: 2, NumSteps: 1}, experiment.NewRegistry(), nil)
	assert.Error(t, err)

	results, err := RunSweep(context.Background(), &ParameterSweep{Problem: base, ParamName: "bogus", ParamMin: 1, ParamMax: 2, NumSteps: 2}, experiment.NewRegistry(), nil)
	require.NoError(t, err)
	for _, r := range results {
		assert.ErrorIs(t, r.Err, dynamo.ErrUnknownParameter)
	}
}
