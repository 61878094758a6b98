// Package flatsys generates trajectories for differentially flat systems.
//
// A flat system's state and input are algebraic functions of its flat
// outputs and finitely many of their derivatives (the flag). Each flat
// output is written as a linear combination of a [Basis] family; solving for
// the coefficients turns trajectory generation into linear algebra:
//
//   - [PointToPoint] matches the flags of two endpoints exactly
//   - [SolveOCP] additionally minimizes a cost under constraints
//
// Both return a [SystemTrajectory] that maps the flat outputs back through
// [FlatSystem.Reverse].
//
// # Example
//
//	basis, _ := flatsys.NewBezierFamily(8, tf)
//	traj, err := flatsys.PointToPoint(car, basis, 0, tf,
//		flatsys.Endpoint{X: x0, U: u0}, flatsys.Endpoint{X: xf, U: uf},
//		flatsys.DefaultP2POptions())
//	if err != nil {
//		return err
//	}
//	resp, _ := traj.EvalAll(traj.Linspace(100))
//
// # Thread Safety
//
// Bases, systems and trajectories are immutable and may be shared between
// goroutines. Solver calls share no state.
package flatsys
