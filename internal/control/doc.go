// Package control provides controllers that drive a simulated system along
// a planned trajectory.
//
// Controllers implement the [dynamo.Controller] interface:
//
//   - [Feedforward]: open-loop input taken from a trajectory
//   - [Tracking]: feedforward plus state feedback on the tracking error
//   - [None]: zero input
//
// # Usage
//
//	traj, _ := flatsys.PointToPoint(car, basis, 0, 10, start, end, flatsys.DefaultP2POptions())
//	sim := dynamo.New(car, integrators.NewRK4(), control.NewFeedforward(traj))
//
// [Tracking] implements [dynamo.Configurable] so its gains can be tuned.
package control
