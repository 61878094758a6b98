package storage

import (
	"encoding/json"
	"io"
)

type ExportData struct {
	RunMetadata
	Steps         int         `json:"steps"`
	Times         []float64   `json:"times"`
	States        [][]float64 `json:"states"`
	Controls      [][]float64 `json:"controls"`
	PlannedStates [][]float64 `json:"planned_states,omitempty"`
	PlannedInputs [][]float64 `json:"planned_inputs,omitempty"`
}

// ExportJSON writes a stored run as a single JSON document.
func (s *Store) ExportJSON(runID string, w io.Writer) error {
	meta, err := s.Load(runID)
	if err != nil {
		return err
	}
	samples, err := s.LoadSamples(runID)
	if err != nil {
		return err
	}
	return WriteJSON(w, *meta, samples)
}

func WriteJSON(w io.Writer, meta RunMetadata, samples *Samples) error {
	data := ExportData{
		RunMetadata:   meta,
		Steps:         len(samples.Times),
		Times:         samples.Times,
		States:        samples.States,
		Controls:      samples.Controls,
		PlannedStates: samples.PlannedStates,
		PlannedInputs: samples.PlannedInputs,
	}

	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(data)
}
