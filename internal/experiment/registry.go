package experiment

import (
	"fmt"
	"sort"

	"github.com/san-kum/flattraj/internal/config"
	"github.com/san-kum/flattraj/internal/control"
	"github.com/san-kum/flattraj/internal/dynamo"
	"github.com/san-kum/flattraj/internal/flatsys"
	"github.com/san-kum/flattraj/internal/integrators"
	"github.com/san-kum/flattraj/internal/metrics"
	"github.com/san-kum/flattraj/internal/physics"
)

// Model is a physical system that can be planned in flat coordinates and
// simulated.
type Model interface {
	flatsys.FlatSystem
	dynamo.System
	dynamo.Configurable
}

type systemEntry struct {
	build       func(p *config.Problem) (Model, error)
	description string

	// actuator range, nil when the input is unbounded
	inputLower, inputUpper []float64
}

type Registry struct {
	systems     map[string]systemEntry
	integrators map[string]func() dynamo.Integrator
}

func NewRegistry() *Registry {
	r := &Registry{
		systems:     make(map[string]systemEntry),
		integrators: make(map[string]func() dynamo.Integrator),
	}

	r.systems["car"] = systemEntry{
		build:       func(*config.Problem) (Model, error) { return physics.NewKinematicCar(), nil },
		description: "kinematic car, state (x, y, theta), input (v, delta)",
	}
	r.systems["spring"] = systemEntry{
		build: func(p *config.Problem) (Model, error) {
			n := p.Masses
			if n == 0 {
				n = 1
			}
			return physics.NewSpringMassChain(n)
		},
		description: "spring/mass chain forced at the first mass, state (x1..xn, v1..vn)",
	}
	r.systems["cruise"] = systemEntry{
		build:       func(*config.Problem) (Model, error) { return physics.NewCruise(), nil },
		description: "longitudinal vehicle, state (v), input (throttle)",
		inputLower:  []float64{0},
		inputUpper:  []float64{1},
	}

	r.integrators["euler"] = func() dynamo.Integrator { return integrators.NewEuler() }
	r.integrators["rk4"] = func() dynamo.Integrator { return integrators.NewRK4() }
	r.integrators["rk45"] = func() dynamo.Integrator { return integrators.NewRK45() }

	return r
}

// GetSystem builds the system named by the problem and applies its
// parameter overrides.
func (r *Registry) GetSystem(p *config.Problem) (Model, error) {
	entry, ok := r.systems[p.System]
	if !ok {
		return nil, fmt.Errorf("unknown system: %s", p.System)
	}
	model, err := entry.build(p)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(p.Params))
	for name := range p.Params {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if err := model.SetParam(name, p.Params[name]); err != nil {
			return nil, fmt.Errorf("system %s: %w", p.System, err)
		}
	}
	return model, nil
}

func (r *Registry) GetIntegrator(name string) (dynamo.Integrator, error) {
	fn, ok := r.integrators[name]
	if !ok {
		return nil, fmt.Errorf("unknown integrator: %s", name)
	}
	return fn(), nil
}

// GetBasis builds the basis family described by cfg.
func (r *Registry) GetBasis(cfg config.BasisConfig) (flatsys.Basis, error) {
	scale := cfg.Scale
	if scale == 0 {
		scale = 1
	}
	switch cfg.Family {
	case "poly":
		return flatsys.NewPolyFamily(cfg.Size, scale)
	case "bezier":
		return flatsys.NewBezierFamily(cfg.Size, scale)
	case "bspline":
		return flatsys.NewBSplineFamily(cfg.Breakpoints, cfg.Degree, cfg.Smoothness)
	default:
		return nil, fmt.Errorf("unknown basis family: %s", cfg.Family)
	}
}

// GetController builds the controller that drives model along traj.
func (r *Registry) GetController(sim config.SimConfig, model Model, traj *flatsys.SystemTrajectory) (dynamo.Controller, error) {
	switch sim.Controller {
	case "feedforward":
		return control.NewFeedforward(traj), nil
	case "none":
		return control.NewNone(model.InputDim()), nil
	case "tracking":
		if len(sim.Gain) > 0 {
			return control.NewTracking(traj, sim.Gain)
		}
		linear, ok := model.(interface {
			Linear() *flatsys.LinearFlatSystem
		})
		if !ok {
			return nil, fmt.Errorf("pole placement needs a linear system, %T is not; give a gain instead", model)
		}
		return control.NewLinearTracking(traj, linear.Linear(), sim.Poles)
	default:
		return nil, fmt.Errorf("unknown controller: %s", sim.Controller)
	}
}

func (r *Registry) ListSystems() []string {
	names := make([]string, 0, len(r.systems))
	for name := range r.systems {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (r *Registry) Describe(system string) string {
	return r.systems[system].description
}

func (r *Registry) ListIntegrators() []string {
	names := make([]string, 0, len(r.integrators))
	for name := range r.integrators {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// DefaultMetrics returns fresh metrics comparing a run against traj.
func (r *Registry) DefaultMetrics(system string, traj *flatsys.SystemTrajectory, target []float64) []dynamo.Metric {
	ms := []dynamo.Metric{
		metrics.NewTrackingError(traj),
		metrics.NewControlEffort(),
	}
	if target != nil {
		ms = append(ms, metrics.NewFinalError(target))
	}
	if entry := r.systems[system]; entry.inputLower != nil {
		ms = append(ms, metrics.NewSaturation(entry.inputLower, entry.inputUpper))
	}
	return ms
}
