package routing

import (
	"errors"
	"fmt"
)

var (
	// ErrConfiguration marks fatal model-construction errors. They are never retried.
	ErrConfiguration = errors.New("configuration error")
	// ErrInfeasible is returned when no assignment satisfies the hard constraints.
	ErrInfeasible = errors.New("no feasible assignment")
	// ErrTimedOut is returned when the budget ran out before any feasible assignment was found.
	ErrTimedOut = errors.New("search budget exhausted before a feasible assignment was found")
	// ErrAlreadySearched is returned when a model is solved twice.
	ErrAlreadySearched = errors.New("model has already been searched")
	// ErrNotSolved is returned by cumul queries before a solution exists.
	ErrNotSolved = errors.New("model has no solution")
)

// ConfigError describes a rejected problem or model definition.
type ConfigError struct {
	Op     string
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("%s: %s", e.Op, e.Reason)
}

func (e *ConfigError) Unwrap() error { return ErrConfiguration }

func configErr(op, format string, args ...any) error {
	return &ConfigError{Op: op, Reason: fmt.Sprintf(format, args...)}
}

// Constraint names reported by Violation.
const (
	ConstraintNode       = "node"
	ConstraintDuplicate  = "duplicate"
	ConstraintCapacity   = "capacity"
	ConstraintSlack      = "slack"
	ConstraintPrecedence = "precedence"
	ConstraintPairing    = "same_vehicle"
	ConstraintDetour     = "detour"
	ConstraintFirstStop  = "first_stop"
	ConstraintCoverage   = "coverage"
)

// Violation reports the first hard constraint a route breaks.
type Violation struct {
	Constraint string
	Vehicle    int
	Node       int
	Dimension  string
	Value      int64
	Limit      int64
}

func (v *Violation) Error() string {
	switch v.Constraint {
	case ConstraintCapacity, ConstraintSlack, ConstraintDetour:
		return fmt.Sprintf("vehicle %d node %d violates %s on %q: %d > %d", v.Vehicle, v.Node, v.Constraint, v.Dimension, v.Value, v.Limit)
	default:
		return fmt.Sprintf("vehicle %d node %d violates %s", v.Vehicle, v.Node, v.Constraint)
	}
}
