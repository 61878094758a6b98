package experiment

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"time"

	"gonum.org/v1/gonum/mat"

	"github.com/san-kum/flattraj/internal/config"
	"github.com/san-kum/flattraj/internal/dynamo"
	"github.com/san-kum/flattraj/internal/flatsys"
	"github.com/san-kum/flattraj/internal/linalg"
	"github.com/san-kum/flattraj/internal/optim"
)

// Experiment plans a trajectory for a problem and verifies it in
// simulation.
type Experiment struct {
	problem  *config.Problem
	registry *Registry
	logger   *slog.Logger

	model Model
	basis flatsys.Basis
	start flatsys.Endpoint
	end   *flatsys.Endpoint
}

// Outcome is everything one run produced.
type Outcome struct {
	Problem    *config.Problem
	Trajectory *flatsys.SystemTrajectory
	SolveTime  time.Duration

	// Planned samples the trajectory at the simulation times.
	Planned *flatsys.Response
	Result  *dynamo.Result

	// Ensemble holds the perturbed runs when the problem asks for them,
	// EnsembleMetrics their per-metric means.
	Ensemble        []*dynamo.Result
	EnsembleMetrics map[string]float64
}

func New(p *config.Problem, registry *Registry, logger *slog.Logger) (*Experiment, error) {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	model, err := registry.GetSystem(p)
	if err != nil {
		return nil, err
	}
	basis, err := registry.GetBasis(p.Basis)
	if err != nil {
		return nil, err
	}

	e := &Experiment{problem: p, registry: registry, logger: logger, model: model, basis: basis}
	if e.start, err = endpoint(model, p.Start); err != nil {
		return nil, fmt.Errorf("start: %w", err)
	}
	if p.End != nil {
		end, err := endpoint(model, *p.End)
		if err != nil {
			return nil, fmt.Errorf("end: %w", err)
		}
		e.end = &end
	}
	return e, nil
}

// endpoint fills in the rest input when the problem leaves it out.
func endpoint(model Model, ep config.Endpoint) (flatsys.Endpoint, error) {
	if len(ep.U) > 0 {
		return flatsys.Endpoint{X: ep.X, U: ep.U}, nil
	}
	u, err := flatsys.RestInput(model, ep.X)
	if err != nil {
		return flatsys.Endpoint{}, err
	}
	return flatsys.Endpoint{X: ep.X, U: u}, nil
}

func (e *Experiment) Model() Model            { return e.model }
func (e *Experiment) Basis() flatsys.Basis    { return e.basis }
func (e *Experiment) Start() flatsys.Endpoint { return e.start }

// Plan solves the point-to-point or optimal control problem.
func (e *Experiment) Plan() (*flatsys.SystemTrajectory, error) {
	p := e.problem
	solver, err := linalg.ByName(p.Solver, linalg.DefaultRCond)
	if err != nil {
		return nil, err
	}
	if p.Mode == "ocp" {
		opts := e.ocpOptions()
		opts.Solver = solver
		return flatsys.SolveOCP(e.model, e.basis, e.ocpProblem(), opts)
	}

	opts := flatsys.DefaultP2POptions()
	opts.Logger = e.logger
	opts.Solver = solver
	if opts.Oversize, err = flatsys.ParseOversizePolicy(p.Oversize); err != nil {
		return nil, err
	}
	return flatsys.PointToPoint(e.model, e.basis, p.T0, p.Tf, e.start, *e.end, opts)
}

func (e *Experiment) ocpOptions() flatsys.OCPOptions {
	p := e.problem
	opts := flatsys.DefaultOCPOptions()
	opts.Logger = e.logger
	opts.Samples = p.Optimizer.Samples
	opts.Settings = optim.DefaultSettings()
	opts.Settings.Method = p.Optimizer.Method
	opts.Settings.MaxIterations = p.Optimizer.MaxIterations
	opts.Tolerance = p.Optimizer.Tolerance
	return opts
}

func (e *Experiment) ocpProblem() flatsys.Problem {
	p := e.problem
	prob := flatsys.Problem{
		T0:    p.T0,
		Tf:    p.Tf,
		Start: e.start,
		End:   e.end,
	}

	// the cost matrices are diagonal; missing entries are zero
	q, r := diag(p.Cost.Q, e.model.StateDim()), diag(p.Cost.R, e.model.InputDim())
	if q != nil || r != nil {
		prob.Cost = flatsys.QuadraticCost(q, r, p.Cost.XRef, p.Cost.URef)
	}
	if pm := diag(p.Cost.P, e.model.StateDim()); pm != nil {
		xf := p.Cost.XRef
		if e.end != nil && xf == nil {
			xf = e.end.X
		}
		prob.TerminalCost = flatsys.TerminalQuadraticCost(pm, xf)
	}

	c := p.Constraints
	if c.InputLower != nil || c.InputUpper != nil {
		lo, hi := bounds(c.InputLower, c.InputUpper, e.model.InputDim())
		prob.Constraints = append(prob.Constraints, flatsys.InputBounds(lo, hi))
	}
	if c.StateLower != nil || c.StateUpper != nil {
		lo, hi := bounds(c.StateLower, c.StateUpper, e.model.StateDim())
		prob.Constraints = append(prob.Constraints, flatsys.StateBounds(lo, hi))
	}
	return prob
}

func diag(v []float64, n int) mat.Matrix {
	if len(v) == 0 {
		return nil
	}
	d := make([]float64, n)
	copy(d, v)
	return mat.NewDiagDense(n, d)
}

// bounds fills a missing side with infinities.
func bounds(lower, upper []float64, n int) ([]float64, []float64) {
	fill := func(v []float64, inf float64) []float64 {
		if v != nil {
			return v
		}
		out := make([]float64, n)
		for i := range out {
			out[i] = inf
		}
		return out
	}
	return fill(lower, math.Inf(-1)), fill(upper, math.Inf(1))
}

// Simulate drives the model along traj from the problem's start state.
func (e *Experiment) Simulate(ctx context.Context, traj *flatsys.SystemTrajectory) (*dynamo.Result, []*dynamo.Result, error) {
	s := e.problem.Simulation
	build, err := e.simulatorFactory(traj)
	if err != nil {
		return nil, nil, err
	}

	t0, tf := traj.Horizon()
	cfg := dynamo.DefaultConfig()
	cfg.Start = t0
	cfg.Duration = tf - t0
	cfg.Dt = s.Dt
	cfg.MaxDt = math.Max(s.Dt, cfg.MaxDt)
	cfg.Adaptive = s.Adaptive
	cfg.Tolerance = s.Tolerance
	cfg.ZeroOrderHold = s.ZeroOrderHold

	x0 := dynamo.State(e.start.X).Clone()
	result, err := build().Run(ctx, x0, cfg)
	if err != nil {
		return result, nil, fmt.Errorf("simulation: %w", err)
	}
	e.logger.Debug("simulated", "steps", result.StepsTaken, "rejected", result.Rejected)

	if s.Runs <= 1 {
		return result, nil, nil
	}
	ens := dynamo.NewEnsemble(build, s.Runs, s.Seed, dynamo.State(s.Sigma))
	runs, err := ens.Run(ctx, x0, cfg)
	if err != nil {
		return result, runs, fmt.Errorf("ensemble: %w", err)
	}
	return result, runs, nil
}

func (e *Experiment) simulatorFactory(traj *flatsys.SystemTrajectory) (func() *dynamo.Simulator, error) {
	s := e.problem.Simulation
	// build once up front so configuration errors surface here
	if _, err := e.registry.GetIntegrator(s.Integrator); err != nil {
		return nil, err
	}
	if _, err := e.registry.GetController(s, e.model, traj); err != nil {
		return nil, err
	}
	var target []float64
	if e.end != nil {
		target = e.end.X
	}
	return func() *dynamo.Simulator {
		integ, _ := e.registry.GetIntegrator(s.Integrator)
		ctrl, _ := e.registry.GetController(s, e.model, traj)
		sim := dynamo.New(e.model, integ, ctrl)
		for _, m := range e.registry.DefaultMetrics(e.problem.System, traj, target) {
			sim.AddMetric(m)
		}
		return sim
	}, nil
}

// Run plans, simulates and samples the plan at the simulated times.
func (e *Experiment) Run(ctx context.Context) (*Outcome, error) {
	started := time.Now()
	traj, err := e.Plan()
	if err != nil {
		return nil, err
	}
	out := &Outcome{Problem: e.problem, Trajectory: traj, SolveTime: time.Since(started)}
	e.logger.Info("planned", "problem", e.problem.Name, "mode", e.problem.Mode,
		"basis", e.problem.Basis.Family, "cost", traj.Cost(), "elapsed", out.SolveTime)

	out.Result, out.Ensemble, err = e.Simulate(ctx, traj)
	if err != nil {
		return out, err
	}
	if out.Planned, err = traj.EvalAll(out.Result.Times); err != nil {
		return out, err
	}
	if len(out.Ensemble) > 0 {
		out.EnsembleMetrics = meanMetrics(out.Ensemble)
	}
	return out, nil
}

func meanMetrics(runs []*dynamo.Result) map[string]float64 {
	mean := make(map[string]float64)
	for _, r := range runs {
		for name, v := range r.Metrics {
			mean[name] += v / float64(len(runs))
		}
	}
	return mean
}
