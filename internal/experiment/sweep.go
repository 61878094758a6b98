package experiment

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"gonum.org/v1/gonum/floats"

	"github.com/san-kum/flattraj/internal/config"
	"github.com/san-kum/flattraj/internal/optim"
)

// SweepPoint is one basis size visited by a sweep. Objective is the
// optimal cost in ocp mode and the simulated control effort otherwise.
type SweepPoint struct {
	Size        int
	Objective   float64
	TrackingRMS float64
	Err         error
}

// Sweep solves the problem for every basis size and returns the size with
// the smallest objective. For B-splines the size is the number of equal
// breakpoint intervals. Sizes that fail to solve are reported, not fatal.
func Sweep(ctx context.Context, p *config.Problem, registry *Registry, logger *slog.Logger, sizes []int) (int, []SweepPoint, error) {
	if len(sizes) == 0 {
		return 0, nil, fmt.Errorf("sweep: no basis sizes given")
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	sizes = append([]int(nil), sizes...)
	sort.Ints(sizes)
	values := make([]float64, len(sizes))
	for i, n := range sizes {
		if n < 1 {
			return 0, nil, fmt.Errorf("sweep: basis size must be positive, got %d", n)
		}
		values[i] = float64(n)
	}

	rms := make(map[int]float64)
	evaluate := func(ctx context.Context, params map[string]float64) (float64, error) {
		n := int(params["size"])
		out, err := New(resized(p, n), registry, logger)
		if err != nil {
			return 0, err
		}
		res, err := out.Run(ctx)
		if err != nil {
			return 0, err
		}
		rms[n] = res.Result.Metrics["tracking_rms"]
		if p.Mode == "ocp" {
			return res.Trajectory.Cost(), nil
		}
		return res.Result.Metrics["control_effort"], nil
	}

	best, _, visited, err := optim.NewGridSearch([]string{"size"}, [][]float64{values}).Search(ctx, evaluate)
	points := make([]SweepPoint, len(visited))
	for i, v := range visited {
		n := int(v.Params["size"])
		points[i] = SweepPoint{Size: n, Objective: v.Value, TrackingRMS: rms[n], Err: v.Err}
		if v.Err != nil {
			logger.Debug("sweep point failed", "size", n, "err", v.Err)
		}
	}
	if err != nil {
		return 0, points, fmt.Errorf("sweep: %w", err)
	}
	return int(best["size"]), points, nil
}

// resized copies p with a basis of size n and no ensemble.
func resized(p *config.Problem, n int) *config.Problem {
	q := *p
	q.Simulation.Runs = 0
	if q.Basis.Family == "bspline" {
		bp := make([]float64, n+1)
		floats.Span(bp, p.T0, p.Tf)
		q.Basis.Breakpoints = bp
	} else {
		q.Basis.Size = n
	}
	return &q
}
