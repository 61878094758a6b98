// Package physics provides differentially flat vehicle and mechanical
// models.
//
// Each model implements both [flatsys.FlatSystem], so trajectories can be
// planned in flat coordinates, and [dynamo.System], so a planned input can
// be simulated open or closed loop:
//
//   - [KinematicCar]: bicycle model, flat outputs are the rear axle
//     position (x, y)
//   - [SpringMass]: chain of masses driven at the first mass, flat through
//     [flatsys.LinearFlatSystem]
//   - [Cruise]: longitudinal vehicle with engine torque curve, gear ratio
//     and road slope, flat output is the speed
//
// All models implement [dynamo.Configurable] for parameter changes.
//
//	car := physics.NewKinematicCar()
//	traj, err := flatsys.PointToPoint(car, basis, 0, 5, start, end, flatsys.DefaultP2POptions())
//	res, err := dynamo.New(car, integrators.NewRK4(), control.NewFeedforward(traj)).Run(ctx, start.X, cfg)
package physics
