package optim

import (
	"context"
	"errors"
	"fmt"
	"math"
)

// Evaluation is one point visited by a grid search.
type Evaluation struct {
	Params map[string]float64
	Value  float64
	Err    error
}

// GridSearch evaluates an objective over the cartesian product of
// parameter ranges and keeps the smallest value. Failed evaluations are
// recorded and skipped.
type GridSearch struct {
	paramNames []string
	ranges     [][]float64
}

func NewGridSearch(params []string, ranges [][]float64) *GridSearch {
	return &GridSearch{paramNames: params, ranges: ranges}
}

// Search returns the best parameters, their value and every evaluation in
// visiting order. It fails only when no point could be evaluated or ctx is
// canceled.
func (g *GridSearch) Search(
	ctx context.Context,
	evaluate func(ctx context.Context, params map[string]float64) (float64, error),
) (map[string]float64, float64, []Evaluation, error) {
	if len(g.paramNames) != len(g.ranges) {
		return nil, 0, nil, fmt.Errorf("%w: %d parameter names for %d ranges",
			ErrBadProblem, len(g.paramNames), len(g.ranges))
	}

	best := math.Inf(1)
	var bestParams map[string]float64
	var visited []Evaluation

	err := g.searchRecursive(ctx, 0, make(map[string]float64), evaluate, &best, &bestParams, &visited)
	if err != nil {
		return bestParams, best, visited, err
	}
	if bestParams == nil {
		errs := make([]error, 0, len(visited))
		for _, v := range visited {
			errs = append(errs, v.Err)
		}
		return nil, best, visited, fmt.Errorf("optim: no grid point could be evaluated: %w", errors.Join(errs...))
	}
	return bestParams, best, visited, nil
}

func (g *GridSearch) searchRecursive(
	ctx context.Context,
	depth int,
	current map[string]float64,
	evaluate func(context.Context, map[string]float64) (float64, error),
	best *float64,
	bestParams *map[string]float64,
	visited *[]Evaluation,
) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if depth == len(g.paramNames) {
		val, err := evaluate(ctx, current)
		*visited = append(*visited, Evaluation{Params: current, Value: val, Err: err})
		if err != nil {
			return nil
		}
		if val < *best || *bestParams == nil {
			*best = val
			*bestParams = make(map[string]float64)
			for k, v := range current {
				(*bestParams)[k] = v
			}
		}
		return nil
	}

	paramName := g.paramNames[depth]
	for _, val := range g.ranges[depth] {
		newParams := make(map[string]float64)
		for k, v := range current {
			newParams[k] = v
		}
		newParams[paramName] = val

		if err := g.searchRecursive(ctx, depth+1, newParams, evaluate, best, bestParams, visited); err != nil {
			return err
		}
	}
	return nil
}
