package config

import (
	"math"
	"sort"
)

// Presets maps system → preset name → constructor. Constructors return a
// fresh problem so callers may override fields.
var Presets = map[string]map[string]func() *Problem{
	"car": {
		"lane-change":         laneChange,
		"lane-change-bspline": laneChangeBSpline,
		"lane-change-ocp":     laneChangeOCP,
	},
	"spring": {
		"step":          springStep,
		"step-ensemble": springStepEnsemble,
	},
	"cruise": {
		"accelerate": cruiseAccelerate,
		"hill":       cruiseHill,
	},
}

func laneChange() *Problem {
	p := DefaultProblem()
	p.Name = "car/lane-change"
	p.System = "car"
	p.Tf = 4
	p.Basis = BasisConfig{Family: "poly", Size: 6, Scale: 4}
	p.Start = Endpoint{X: []float64{0, -2, 0}, U: []float64{10, 0}}
	p.End = &Endpoint{X: []float64{40, 2, 0}, U: []float64{10, 0}}
	return p
}

func laneChangeBSpline() *Problem {
	p := laneChange()
	p.Name = "car/lane-change-bspline"
	p.Basis = BasisConfig{Family: "bspline", Breakpoints: []float64{0, 2, 4}, Degree: 4, Smoothness: 3}
	return p
}

func laneChangeOCP() *Problem {
	p := laneChange()
	p.Name = "car/lane-change-ocp"
	p.Mode = "ocp"
	p.Basis = BasisConfig{Family: "poly", Size: 8, Scale: 4}
	p.Cost = CostConfig{R: []float64{1, 100}, URef: []float64{10, 0}}
	p.Constraints = ConstraintConfig{
		InputLower: []float64{8, -0.1},
		InputUpper: []float64{12, 0.1},
	}
	p.Optimizer.Samples = 20
	return p
}

func springStep() *Problem {
	p := DefaultProblem()
	p.Name = "spring/step"
	p.System = "spring"
	p.Masses = 2
	p.Tf = 5
	p.Basis = BasisConfig{Family: "poly", Size: 10, Scale: 5}
	p.Start = Endpoint{X: []float64{0, 0, 0, 0}, U: []float64{0}}
	p.End = &Endpoint{X: []float64{1, 0.5, 0, 0}}
	p.Simulation.Controller = "tracking"
	p.Simulation.Poles = []float64{-2, -2.5, -3, -3.5}
	return p
}

func springStepEnsemble() *Problem {
	p := springStep()
	p.Name = "spring/step-ensemble"
	p.Simulation.Runs = 8
	p.Simulation.Sigma = []float64{0.05, 0.05, 0, 0}
	return p
}

func cruiseAccelerate() *Problem {
	p := DefaultProblem()
	p.Name = "cruise/accelerate"
	p.System = "cruise"
	p.Tf = 10
	p.Basis = BasisConfig{Family: "poly", Size: 4, Scale: 10}
	p.Start = Endpoint{X: []float64{20}}
	p.End = &Endpoint{X: []float64{25}}
	p.Simulation.Integrator = "rk45"
	p.Simulation.Adaptive = true
	p.Simulation.Dt = 0.1
	return p
}

func cruiseHill() *Problem {
	p := cruiseAccelerate()
	p.Name = "cruise/hill"
	p.Mode = "ocp"
	p.Params = map[string]float64{"slope": 2 * math.Pi / 180}
	p.Basis = BasisConfig{Family: "poly", Size: 6, Scale: 10}
	p.End = &Endpoint{X: []float64{23}}
	p.Cost = CostConfig{R: []float64{1}}
	p.Constraints = ConstraintConfig{
		InputLower: []float64{0},
		InputUpper: []float64{1},
	}
	return p
}

// GetPreset returns a fresh copy of a preset, or nil when it does not exist.
func GetPreset(system, preset string) *Problem {
	systemPresets, ok := Presets[system]
	if !ok {
		return nil
	}
	build, ok := systemPresets[preset]
	if !ok {
		return nil
	}
	return build()
}

func ListPresets(system string) []string {
	systemPresets, ok := Presets[system]
	if !ok {
		return nil
	}
	names := make([]string, 0, len(systemPresets))
	for name := range systemPresets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Systems lists the systems that have presets.
func Systems() []string {
	names := make([]string, 0, len(Presets))
	for name := range Presets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
