package control

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/san-kum/flattraj/internal/dynamo"
	"github.com/san-kum/flattraj/internal/flatsys"
)

// Tracking adds state feedback around a trajectory:
// u = ud(t) - K (x - xd(t)).
type Tracking struct {
	ff *Feedforward
	K  [][]float64
}

func NewTracking(traj *flatsys.SystemTrajectory, k [][]float64) (*Tracking, error) {
	ff := NewFeedforward(traj)
	if len(k) != ff.dim {
		return nil, fmt.Errorf("%w: gain has %d rows, system has %d inputs", dynamo.ErrDimensionMismatch, len(k), ff.dim)
	}
	n := traj.System().StateDim()
	for i, row := range k {
		if len(row) != n {
			return nil, fmt.Errorf("%w: gain row %d has %d columns, system has %d states", dynamo.ErrDimensionMismatch, i, len(row), n)
		}
	}
	gains := make([][]float64, len(k))
	for i := range k {
		gains[i] = append([]float64(nil), k[i]...)
	}
	return &Tracking{ff: ff, K: gains}, nil
}

// NewLinearTracking places the closed loop poles of a linear flat system
// around the trajectory.
func NewLinearTracking(traj *flatsys.SystemTrajectory, sys *flatsys.LinearFlatSystem, poles []float64) (*Tracking, error) {
	k, err := sys.PlaceGain(poles)
	if err != nil {
		return nil, err
	}
	return NewTracking(traj, [][]float64{k})
}

func (c *Tracking) Compute(x dynamo.State, t float64) dynamo.Control {
	xd, ud := c.ff.reference(t)
	u := ud.Clone()
	if xd == nil {
		return u
	}
	for i := range u {
		for j := range x {
			u[i] -= c.K[i][j] * (x[j] - xd[j])
		}
	}
	return u
}

// GetParams exposes the gains as k<row>_<col>.
func (c *Tracking) GetParams() map[string]float64 {
	params := make(map[string]float64)
	for i, row := range c.K {
		for j, v := range row {
			params[fmt.Sprintf("k%d_%d", i, j)] = v
		}
	}
	return params
}

func (c *Tracking) SetParam(name string, value float64) error {
	i, j, ok := parseGainName(name)
	if !ok || i >= len(c.K) || j >= len(c.K[i]) {
		return &dynamo.ParamError{Name: name, Value: value, Err: dynamo.ErrUnknownParameter}
	}
	c.K[i][j] = value
	return nil
}

func parseGainName(name string) (int, int, bool) {
	rest, ok := strings.CutPrefix(name, "k")
	if !ok {
		return 0, 0, false
	}
	a, b, ok := strings.Cut(rest, "_")
	if !ok {
		return 0, 0, false
	}
	i, err1 := strconv.Atoi(a)
	j, err2 := strconv.Atoi(b)
	if err1 != nil || err2 != nil || i < 0 || j < 0 {
		return 0, 0, false
	}
	return i, j, true
}
