package storage

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/san-kum/flattraj/internal/config"
	"github.com/san-kum/flattraj/internal/experiment"
)

const (
	metadataFile = "metadata.json"
	samplesFile  = "samples.csv"
	problemFile  = "problem.yaml"
)

// ErrNotFound is returned for an unknown run id.
var ErrNotFound = errors.New("storage: run not found")

// Store keeps one directory per run holding metadata.json, samples.csv
// and the problem file that produced it.
type Store struct {
	baseDir string
}

func New(baseDir string) *Store {
	return &Store{baseDir: baseDir}
}

func (s *Store) Init() error {
	return os.MkdirAll(s.baseDir, 0755)
}

type RunMetadata struct {
	ID           string             `json:"id"`
	Name         string             `json:"name"`
	System       string             `json:"system"`
	Mode         string             `json:"mode"`
	Basis        string             `json:"basis"`
	BasisSize    int                `json:"basis_size"`
	Timestamp    time.Time          `json:"timestamp"`
	T0           float64            `json:"t0"`
	Tf           float64            `json:"tf"`
	Dt           float64            `json:"dt"`
	Integrator   string             `json:"integrator"`
	Controller   string             `json:"controller"`
	Cost         float64            `json:"cost"`
	SolveMillis  float64            `json:"solve_ms"`
	Coefficients [][]float64        `json:"coefficients"`
	Metrics      map[string]float64 `json:"metrics"`
	Ensemble     map[string]float64 `json:"ensemble,omitempty"`
}

// Samples is the simulated run next to the planned trajectory at the same
// times.
type Samples struct {
	Times         []float64
	States        [][]float64
	Controls      [][]float64
	PlannedStates [][]float64
	PlannedInputs [][]float64
}

func samplesOf(out *experiment.Outcome) *Samples {
	s := &Samples{
		Times:    out.Result.Times,
		States:   make([][]float64, len(out.Result.States)),
		Controls: make([][]float64, len(out.Result.Controls)),
	}
	for i, x := range out.Result.States {
		s.States[i] = x
	}
	for i, u := range out.Result.Controls {
		s.Controls[i] = u
	}
	if out.Planned != nil {
		s.PlannedStates = out.Planned.States
		s.PlannedInputs = out.Planned.Inputs
	}
	return s
}

func metadataOf(id string, out *experiment.Outcome) RunMetadata {
	p := out.Problem
	size := out.Trajectory.Basis().Size()
	return RunMetadata{
		ID:           id,
		Name:         p.Name,
		System:       p.System,
		Mode:         p.Mode,
		Basis:        p.Basis.Family,
		BasisSize:    size,
		Timestamp:    time.Now(),
		T0:           p.T0,
		Tf:           p.Tf,
		Dt:           p.Simulation.Dt,
		Integrator:   p.Simulation.Integrator,
		Controller:   p.Simulation.Controller,
		Cost:         out.Trajectory.Cost(),
		SolveMillis:  float64(out.SolveTime.Microseconds()) / 1000,
		Coefficients: out.Trajectory.Coefficients(),
		Metrics:      finite(out.Result.Metrics),
		Ensemble:     finite(out.EnsembleMetrics),
	}
}

// finite drops NaN and Inf values, which JSON cannot carry.
func finite(m map[string]float64) map[string]float64 {
	if m == nil {
		return nil
	}
	out := make(map[string]float64, len(m))
	for k, v := range m {
		if !math.IsNaN(v) && !math.IsInf(v, 0) {
			out[k] = v
		}
	}
	return out
}

// Save writes a run and returns its id.
func (s *Store) Save(out *experiment.Outcome) (string, error) {
	if out == nil || out.Result == nil || out.Trajectory == nil {
		return "", fmt.Errorf("storage: outcome has no trajectory or simulation")
	}
	runID := fmt.Sprintf("%s_%d", out.Problem.System, time.Now().UnixNano())
	runDir := filepath.Join(s.baseDir, runID)

	if err := os.MkdirAll(runDir, 0755); err != nil {
		return "", err
	}

	meta := metadataOf(runID, out)
	if err := writeJSON(filepath.Join(runDir, metadataFile), meta); err != nil {
		return "", err
	}
	if err := config.Save(filepath.Join(runDir, problemFile), out.Problem); err != nil {
		return "", err
	}

	csvFile, err := os.Create(filepath.Join(runDir, samplesFile))
	if err != nil {
		return "", err
	}
	defer csvFile.Close()
	if err := WriteCSV(csvFile, samplesOf(out)); err != nil {
		return "", err
	}
	return runID, csvFile.Close()
}

func writeJSON(path string, v any) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return err
	}
	return f.Close()
}

// List returns every readable run, newest first.
func (s *Store) List() ([]RunMetadata, error) {
	entries, err := os.ReadDir(s.baseDir)
	if err != nil {
		if os.IsNotExist(err) {
			return []RunMetadata{}, nil
		}
		return nil, err
	}

	runs := make([]RunMetadata, 0)
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		meta, err := s.Load(entry.Name())
		if err != nil {
			continue
		}
		runs = append(runs, *meta)
	}

	sort.Slice(runs, func(i, j int) bool { return runs[i].Timestamp.After(runs[j].Timestamp) })
	return runs, nil
}

func (s *Store) Load(runID string) (*RunMetadata, error) {
	data, err := os.ReadFile(filepath.Join(s.baseDir, runID, metadataFile))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, runID)
		}
		return nil, err
	}

	var meta RunMetadata
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil, fmt.Errorf("storage: run %s: %w", runID, err)
	}
	return &meta, nil
}

// LoadProblem reads the problem file saved with a run.
func (s *Store) LoadProblem(runID string) (*config.Problem, error) {
	return config.Load(filepath.Join(s.baseDir, runID, problemFile))
}

func (s *Store) LoadSamples(runID string) (*Samples, error) {
	file, err := os.Open(filepath.Join(s.baseDir, runID, samplesFile))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, runID)
		}
		return nil, err
	}
	defer file.Close()
	return ReadCSV(file)
}

// CopySamples streams the raw samples.csv of a run to w.
func (s *Store) CopySamples(runID string, w io.Writer) error {
	file, err := os.Open(filepath.Join(s.baseDir, runID, samplesFile))
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("%w: %s", ErrNotFound, runID)
		}
		return err
	}
	defer file.Close()
	_, err = io.Copy(w, file)
	return err
}

// column prefixes of samples.csv in order
var prefixes = []string{"x", "u", "xd", "ud"}

// WriteCSV writes one row per sample: time, simulated state and input,
// planned state and input.
func WriteCSV(w io.Writer, s *Samples) error {
	cw := csv.NewWriter(w)
	groups := [][][]float64{s.States, s.Controls, s.PlannedStates, s.PlannedInputs}

	header := []string{"time"}
	for g, rows := range groups {
		if len(rows) == 0 {
			continue
		}
		for i := range rows[0] {
			header = append(header, fmt.Sprintf("%s%d", prefixes[g], i))
		}
	}
	if err := cw.Write(header); err != nil {
		return err
	}

	format := func(v float64) string { return strconv.FormatFloat(v, 'g', -1, 64) }
	for i, t := range s.Times {
		row := []string{format(t)}
		for _, rows := range groups {
			if len(rows) == 0 {
				continue
			}
			for j := range rows[0] {
				v := 0.0
				if i < len(rows) && j < len(rows[i]) {
					v = rows[i][j]
				}
				row = append(row, format(v))
			}
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// ReadCSV parses the format written by WriteCSV.
func ReadCSV(r io.Reader) (*Samples, error) {
	records, err := csv.NewReader(r).ReadAll()
	if err != nil {
		return nil, err
	}
	if len(records) == 0 || len(records[0]) == 0 || records[0][0] != "time" {
		return nil, fmt.Errorf("storage: samples have no time column")
	}

	header := records[0]
	group := make([]int, len(header))
	for c, name := range header[1:] {
		group[c+1] = -1
		prefix := strings.TrimRight(name, "0123456789")
		for g, p := range prefixes {
			if p == prefix {
				group[c+1] = g
			}
		}
		if group[c+1] < 0 {
			return nil, fmt.Errorf("storage: unknown samples column %q", name)
		}
	}

	s := &Samples{}
	dst := []*[][]float64{&s.States, &s.Controls, &s.PlannedStates, &s.PlannedInputs}
	for line, record := range records[1:] {
		if len(record) != len(header) {
			return nil, fmt.Errorf("storage: samples line %d has %d fields, header has %d", line+2, len(record), len(header))
		}
		vals := make([]float64, len(record))
		for c, field := range record {
			if vals[c], err = strconv.ParseFloat(field, 64); err != nil {
				return nil, fmt.Errorf("storage: samples line %d: %w", line+2, err)
			}
		}
		s.Times = append(s.Times, vals[0])
		rows := make([][]float64, len(prefixes))
		for c := 1; c < len(vals); c++ {
			rows[group[c]] = append(rows[group[c]], vals[c])
		}
		for g, row := range rows {
			if row != nil {
				*dst[g] = append(*dst[g], row)
			}
		}
	}
	return s, nil
}
