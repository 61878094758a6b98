// Package analysis turns stored runs into phase portraits.
//
// A [Portrait] pairs two state components of a simulated run with the same
// components of the planned trajectory, so the car's road path (x against
// y) or a mass's position against its velocity can be compared at a
// glance:
//
//	p, err := analysis.NewPortrait(samples.States, samples.PlannedStates, 0, 1)
//	fmt.Print(p.ASCII(70, 20))
package analysis
