package metrics

import (
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/integrate"

	"github.com/san-kum/flattraj/internal/dynamo"
	"github.com/san-kum/flattraj/internal/flatsys"
)

// TrackingError is the RMS distance between the simulated state and the
// planned state over the run.
type TrackingError struct {
	traj  *flatsys.SystemTrajectory
	times []float64
	sq    []float64
	max   float64
}

func NewTrackingError(traj *flatsys.SystemTrajectory) *TrackingError {
	return &TrackingError{traj: traj}
}

func (m *TrackingError) Name() string { return "tracking_rms" }

func (m *TrackingError) Observe(x dynamo.State, u dynamo.Control, t float64) {
	d := math.Inf(1)
	if xd, _, err := m.traj.Eval(t); err == nil {
		d = floats.Distance(x, xd, 2)
	}
	m.times = append(m.times, t)
	m.sq = append(m.sq, d*d)
	m.max = math.Max(m.max, d)
}

func (m *TrackingError) Value() float64 {
	switch len(m.times) {
	case 0:
		return 0
	case 1:
		return math.Sqrt(m.sq[0])
	}
	span := m.times[len(m.times)-1] - m.times[0]
	return math.Sqrt(integrate.Trapezoidal(m.times, m.sq) / span)
}

// Max is the largest distance seen.
func (m *TrackingError) Max() float64 { return m.max }

func (m *TrackingError) Reset() {
	m.times = m.times[:0]
	m.sq = m.sq[:0]
	m.max = 0
}

// FinalError is the distance of the last observed state from a target.
type FinalError struct {
	target []float64
	last   dynamo.State
}

func NewFinalError(target []float64) *FinalError {
	return &FinalError{target: append([]float64(nil), target...)}
}

func (m *FinalError) Name() string { return "final_error" }

func (m *FinalError) Observe(x dynamo.State, u dynamo.Control, t float64) {
	m.last = x.Clone()
}

func (m *FinalError) Value() float64 {
	if m.last == nil {
		return math.NaN()
	}
	return floats.Distance(m.last, m.target, 2)
}

func (m *FinalError) Reset() { m.last = nil }
