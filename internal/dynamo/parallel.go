package dynamo

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
)

// Ensemble repeats a simulation from randomly perturbed initial states.
// Each run builds its own Simulator because integrators and metrics keep
// per-run scratch state.
type Ensemble struct {
	build     func() *Simulator
	numRuns   int
	seedStart int64
	sigma     State
}

// NewEnsemble runs numRuns simulations; run i perturbs every component j of
// the initial state with N(0, sigma[j]^2) noise drawn from seed seedStart+i.
func NewEnsemble(build func() *Simulator, numRuns int, seedStart int64, sigma State) *Ensemble {
	return &Ensemble{build: build, numRuns: numRuns, seedStart: seedStart, sigma: sigma}
}

func (e *Ensemble) Run(ctx context.Context, x0 State, cfg Config) ([]*Result, error) {
	if e.numRuns < 1 {
		return nil, fmt.Errorf("%w: ensemble needs at least one run, got %d", ErrInvalidConfig, e.numRuns)
	}
	if len(e.sigma) != 0 && len(e.sigma) != len(x0) {
		return nil, fmt.Errorf("%w: %d perturbation scales for a %d-dimensional state",
			ErrDimensionMismatch, len(e.sigma), len(x0))
	}

	results := make([]*Result, e.numRuns)
	errs := make([]error, e.numRuns)

	var wg sync.WaitGroup
	for i := 0; i < e.numRuns; i++ {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			start := e.Perturb(x0, e.seedStart+int64(idx))
			results[idx], errs[idx] = e.build().Run(ctx, start, cfg)
		}(i)
	}

	wg.Wait()

	for i, err := range errs {
		if err != nil {
			return results, fmt.Errorf("ensemble run %d: %w", i, err)
		}
	}

	return results, nil
}

// Perturb returns the initial state used by the run with the given seed.
func (e *Ensemble) Perturb(x0 State, seed int64) State {
	x := x0.Clone()
	rng := rand.New(rand.NewSource(seed))
	for j := range x {
		if j < len(e.sigma) {
			x[j] += rng.NormFloat64() * e.sigma[j]
		}
	}
	return x
}
