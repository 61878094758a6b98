package dynamo

import (
	"context"
	"errors"
	"fmt"
	"math"
)

type Simulator struct {
	sys        System
	integrator Integrator
	controller Controller
	metrics    []Metric
}

func New(sys System, integrator Integrator, controller Controller) *Simulator {
	return &Simulator{
		sys:        sys,
		integrator: integrator,
		controller: controller,
		metrics:    make([]Metric, 0),
	}
}

func (s *Simulator) AddMetric(m Metric) { s.metrics = append(s.metrics, m) }

// Run integrates from x0 at cfg.Start for cfg.Duration. On a numerical
// failure the partial result is returned together with a
// *SimulationError.
func (s *Simulator) Run(ctx context.Context, x0 State, cfg Config) (*Result, error) {
	if err := s.validate(x0, cfg); err != nil {
		return nil, err
	}

	steps := int(math.Round(cfg.Duration / cfg.Dt))
	result := &Result{
		States:   make([]State, 0, steps+1),
		Controls: make([]Control, 0, steps+1),
		Times:    make([]float64, 0, steps+1),
		Metrics:  make(map[string]float64),
	}
	for _, m := range s.metrics {
		m.Reset()
	}

	x := x0.Clone()
	t := cfg.Start
	end := cfg.Start + cfg.Duration
	dt := cfg.Dt

	record := func(x State, t float64) Control {
		u := s.controller.Compute(x, t)
		for _, m := range s.metrics {
			m.Observe(x, u, t)
		}
		result.States = append(result.States, x.Clone())
		result.Controls = append(result.Controls, u.Clone())
		result.Times = append(result.Times, t)
		return u
	}

	u := record(x, t)
	for i := 0; end-t > 1e-9*cfg.Dt; i++ {
		select {
		case <-ctx.Done():
			return result, ctx.Err()
		default:
		}

		policy := Policy(s.controller.Compute)
		if cfg.ZeroOrderHold {
			policy = Hold(u)
		}

		var next State
		taken := math.Min(cfg.Dt, end-t)
		if cfg.Adaptive {
			var err error
			next, taken, dt, err = s.adaptiveStep(x, policy, t, math.Min(dt, end-t), cfg, result)
			if err != nil {
				return result, &SimulationError{Step: i, Time: t, State: x.Clone(), Wrapped: err}
			}
		} else {
			next = s.integrator.Step(s.sys, x, policy, t, taken)
		}

		if cfg.ValidateState && !next.IsValid() {
			return result, &SimulationError{Step: i, Time: t, State: x.Clone(), Wrapped: ErrInvalidState}
		}

		x = next
		t += taken
		result.StepsTaken++
		u = record(x, t)
	}

	for _, m := range s.metrics {
		result.Metrics[m.Name()] = m.Value()
	}
	return result, nil
}

func (s *Simulator) validate(x0 State, cfg Config) error {
	if cfg.Dt <= 0 {
		return fmt.Errorf("%w: dt must be positive, got %f", ErrInvalidConfig, cfg.Dt)
	}
	if cfg.Duration <= 0 {
		return fmt.Errorf("%w: duration must be positive, got %f", ErrInvalidConfig, cfg.Duration)
	}
	if cfg.Adaptive && (cfg.Tolerance <= 0 || cfg.MinDt <= 0 || cfg.MaxDt < cfg.MinDt) {
		return fmt.Errorf("%w: adaptive stepping needs a positive tolerance and 0 < min dt <= max dt", ErrInvalidConfig)
	}
	if len(x0) != s.sys.StateDim() {
		return fmt.Errorf("%w: initial state has %d components, system has %d", ErrDimensionMismatch, len(x0), s.sys.StateDim())
	}
	return nil
}

// adaptiveStep advances by one accepted step, which may be shorter than dt.
// It returns the new state, the step taken and the next trial step.
func (s *Simulator) adaptiveStep(x State, u Policy, t, dt float64, cfg Config, result *Result) (next State, taken, suggested float64, err error) {
	adaptive, ok := s.integrator.(AdaptiveIntegrator)
	if !ok {
		return s.stepDoubling(x, u, t, dt, cfg, result)
	}
	for {
		next, suggested, err = adaptive.StepAdaptive(s.sys, x, u, t, dt, cfg.Tolerance)
		if err == nil {
			return next, dt, math.Min(suggested, cfg.MaxDt), nil
		}
		if !errors.Is(err, ErrStepRejected) {
			return nil, dt, dt, err
		}
		result.Rejected++
		dt = math.Min(suggested, cfg.MaxDt)
		if dt < cfg.MinDt {
			return nil, dt, dt, ErrStepTooSmall
		}
	}
}

// stepDoubling compares one full step with two half steps.
func (s *Simulator) stepDoubling(x State, u Policy, t, dt float64, cfg Config, result *Result) (State, float64, float64, error) {
	for {
		x1 := s.integrator.Step(s.sys, x, u, t, dt)
		xHalf := s.integrator.Step(s.sys, x, u, t, dt/2)
		x2 := s.integrator.Step(s.sys, xHalf, u, t+dt/2, dt/2)

		errEst := x1.Sub(x2).Norm()
		if errEst <= cfg.Tolerance {
			next := dt
			if errEst < cfg.Tolerance/10 {
				next = math.Min(dt*2, cfg.MaxDt)
			}
			return x2, dt, next, nil
		}
		result.Rejected++
		dt /= 2
		if dt < cfg.MinDt {
			return nil, dt, dt, ErrStepTooSmall
		}
	}
}
