package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/san-kum/flattraj/internal/config"
	"github.com/san-kum/flattraj/internal/experiment"
)

func outcome(t *testing.T) *experiment.Outcome {
	t.Helper()
	p := config.GetPreset("cruise", "accelerate")
	p.Simulation.Adaptive = false
	p.Simulation.Dt = 1
	e, err := experiment.New(p, experiment.NewRegistry(), nil)
	require.NoError(t, err)
	out, err := e.Run(context.Background())
	require.NoError(t, err)
	return out
}

func TestStoreSaveLoad(t *testing.T) {
	st := New(t.TempDir())
	require.NoError(t, st.Init())

	out := outcome(t)
	runID, err := st.Save(out)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(runID, "cruise_"))

	meta, err := st.Load(runID)
	require.NoError(t, err)
	assert.Equal(t, "cruise/accelerate", meta.Name)
	assert.Equal(t, "poly", meta.Basis)
	assert.Equal(t, 4, meta.BasisSize)
	assert.Equal(t, out.Trajectory.Coefficients(), meta.Coefficients)
	assert.InDelta(t, out.Result.Metrics["final_error"], meta.Metrics["final_error"], 1e-15)

	samples, err := st.LoadSamples(runID)
	require.NoError(t, err)
	require.Len(t, samples.Times, 11)
	require.Len(t, samples.States, 11)
	require.Len(t, samples.PlannedInputs, 11)
	assert.InDelta(t, out.Result.States[10][0], samples.States[10][0], 1e-8)
	assert.InDelta(t, out.Planned.Inputs[3][0], samples.PlannedInputs[3][0], 1e-8)

	p, err := st.LoadProblem(runID)
	require.NoError(t, err)
	assert.Equal(t, out.Problem.End.X, p.End.X)
}

func TestStoreList(t *testing.T) {
	st := New(filepath.Join(t.TempDir(), "runs"))

	runs, err := st.List()
	require.NoError(t, err)
	assert.Empty(t, runs)

	require.NoError(t, st.Init())
	out := outcome(t)
	first, err := st.Save(out)
	require.NoError(t, err)
	second, err := st.Save(out)
	require.NoError(t, err)
	require.NoError(t, os.MkdirAll(filepath.Join(st.baseDir, "junk"), 0755))

	runs, err = st.List()
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.ElementsMatch(t, []string{first, second}, []string{runs[0].ID, runs[1].ID})
	assert.False(t, runs[0].Timestamp.Before(runs[1].Timestamp))
}

func TestStoreNotFound(t *testing.T) {
	st := New(t.TempDir())
	_, err := st.Load("missing")
	assert.True(t, errors.Is(err, ErrNotFound))
	_, err = st.LoadSamples("missing")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, st.CopySamples("missing", &bytes.Buffer{}), ErrNotFound)
}

func TestExport(t *testing.T) {
	st := New(t.TempDir())
	require.NoError(t, st.Init())
	runID, err := st.Save(outcome(t))
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, st.ExportJSON(runID, &buf))
	var data ExportData
	require.NoError(t, json.Unmarshal(buf.Bytes(), &data))
	assert.Equal(t, runID, data.ID)
	assert.Equal(t, 11, data.Steps)
	assert.Len(t, data.PlannedStates, 11)

	buf.Reset()
	require.NoError(t, st.CopySamples(runID, &buf))
	header, _, _ := strings.Cut(buf.String(), "\n")
	assert.Equal(t, "time,x0,u0,xd0,ud0", header)
}

func TestReadCSVRejects(t *testing.T) {
	_, err := ReadCSV(strings.NewReader("t,x0\n0,1\n"))
	assert.Error(t, err)
	_, err = ReadCSV(strings.NewReader("time,q0\n0,1\n"))
	assert.Error(t, err)
	_, err = ReadCSV(strings.NewReader("time,x0\n0,abc\n"))
	assert.Error(t, err)

	s, err := ReadCSV(strings.NewReader("time,x0,x1,u0\n0,1,2,3\n0.5,4,5,6\n"))
	require.NoError(t, err)
	assert.Equal(t, [][]float64{{1, 2}, {4, 5}}, s.States)
	assert.Equal(t, [][]float64{{3}, {6}}, s.Controls)
	assert.Nil(t, s.PlannedStates)
}
