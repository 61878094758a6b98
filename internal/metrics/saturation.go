package metrics

import "github.com/san-kum/flattraj/internal/dynamo"

// Saturation is the fraction of samples where some input component left
// [lower, upper]. A planned input that saturates will not be reproduced by
// the physical actuator.
type Saturation struct {
	name       string
	lower      []float64
	upper      []float64
	violations int
	samples    int
}

func NewSaturation(lower, upper []float64) *Saturation {
	return &Saturation{
		name:  "saturation",
		lower: append([]float64(nil), lower...),
		upper: append([]float64(nil), upper...),
	}
}

func (s *Saturation) Name() string {
	return s.name
}

func (s *Saturation) Observe(x dynamo.State, u dynamo.Control, t float64) {
	s.samples++
	for i, val := range u {
		if (i < len(s.lower) && val < s.lower[i]) || (i < len(s.upper) && val > s.upper[i]) {
			s.violations++
			break
		}
	}
}

func (s *Saturation) Value() float64 {
	if s.samples == 0 {
		return 0
	}
	return float64(s.violations) / float64(s.samples)
}

func (s *Saturation) Reset() {
	s.violations = 0
	s.samples = 0
}
