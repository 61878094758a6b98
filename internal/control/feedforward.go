package control

import (
	"github.com/san-kum/flattraj/internal/dynamo"
	"github.com/san-kum/flattraj/internal/flatsys"
)

// Feedforward applies the input of a planned trajectory regardless of the
// measured state.
type Feedforward struct {
	traj *flatsys.SystemTrajectory
	dim  int
}

func NewFeedforward(traj *flatsys.SystemTrajectory) *Feedforward {
	return &Feedforward{traj: traj, dim: traj.System().InputDim()}
}

func (f *Feedforward) Trajectory() *flatsys.SystemTrajectory { return f.traj }

func (f *Feedforward) Compute(x dynamo.State, t float64) dynamo.Control {
	_, u := f.reference(t)
	return u
}

// reference returns the planned state and input at t. A point where the
// flatness map fails yields a zero input so the simulation can flag the
// state instead.
func (f *Feedforward) reference(t float64) (dynamo.State, dynamo.Control) {
	xd, ud, err := f.traj.Eval(t)
	if err != nil {
		return nil, make(dynamo.Control, f.dim)
	}
	return xd, ud
}
