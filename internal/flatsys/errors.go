package flatsys

import (
	"errors"
	"fmt"
)

// Error kinds reported by the trajectory solvers.
var (
	// ErrConfig indicates an invalid problem setup: dimension mismatch,
	// basis too small, missing flag orders or a non-controllable system.
	ErrConfig = errors.New("flatsys: invalid configuration")

	// ErrBoundary indicates the boundary-value system is singular or
	// inconsistent for the chosen basis and endpoints.
	ErrBoundary = errors.New("flatsys: boundary conditions cannot be met")

	// ErrOptimization indicates the optimizer did not converge or reported
	// an infeasible problem.
	ErrOptimization = errors.New("flatsys: optimization failed")

	// ErrDomain indicates evaluation outside the trajectory horizon.
	ErrDomain = errors.New("flatsys: time outside trajectory horizon")
)

// ConfigError describes a configuration problem detected before any
// numeric work is attempted.
type ConfigError struct {
	Op  string
	Msg string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("flatsys: %s: %s", e.Op, e.Msg)
}

func (e *ConfigError) Unwrap() error {
	return ErrConfig
}

func configErr(op, format string, args ...any) error {
	return &ConfigError{Op: op, Msg: fmt.Sprintf(format, args...)}
}

// Endpoint names used in boundary errors.
const (
	EndpointInitial = "initial"
	EndpointFinal   = "final"
)

// BoundaryError identifies the boundary equation that could not be matched.
type BoundaryError struct {
	Output   int
	Endpoint string
	Order    int
	Residual float64
	Err      error
}

func (e *BoundaryError) Error() string {
	msg := fmt.Sprintf("flatsys: flat output %d, %s derivative order %d cannot be matched",
		e.Output, e.Endpoint, e.Order)
	if e.Residual > 0 {
		msg += fmt.Sprintf(" (residual %.3g)", e.Residual)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *BoundaryError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrBoundary}
	}
	return []error{ErrBoundary, e.Err}
}

// OptimizationError carries the optimizer diagnostic.
type OptimizationError struct {
	Method string
	Status string
	Msg    string
	Err    error
}

func (e *OptimizationError) Error() string {
	msg := "flatsys: optimization failed"
	if e.Method != "" {
		msg += " (" + e.Method + ")"
	}
	if e.Status != "" {
		msg += ": status " + e.Status
	}
	if e.Msg != "" {
		msg += ": " + e.Msg
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *OptimizationError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrOptimization}
	}
	return []error{ErrOptimization, e.Err}
}
