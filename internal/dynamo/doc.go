// Package dynamo provides the simulation primitives used to check solved
// trajectories against the dynamics they were planned for.
//
// The package defines the fundamental interfaces and types for numerical
// simulation of ordinary differential equations (ODEs):
//
//   - [State]: vector representing system state
//   - [System]: interface for ODE systems (dX/dt = f(X, u, t))
//   - [Integrator]: numerical integrator interface
//   - [Controller]: feedback controller interface
//   - [Simulator]: orchestrates simulation runs
//
// # Example
//
//	car := physics.NewKinematicCar()
//	sim := dynamo.New(car, integrators.NewRK4(), control.NewFeedforward(traj))
//	result, _ := sim.Run(ctx, x0, cfg)
//
// # Thread Safety
//
// Simulator instances are NOT thread-safe. For parallel simulations,
// use the [Ensemble] type which builds one simulator per run.
package dynamo
