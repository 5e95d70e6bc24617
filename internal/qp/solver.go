package qp

import (
	"fmt"
	"strings"
)

// SolveStatus is the outcome reported by a backend.
type SolveStatus int

const (
	SolutionFound SolveStatus = iota
	NoSolution
	BackendMissing
)

func (s SolveStatus) String() string {
	switch s {
	case SolutionFound:
		return "solution_found"
	case NoSolution:
		return "no_solution"
	case BackendMissing:
		return "backend_missing"
	}
	return fmt.Sprintf("SolveStatus(%d)", int(s))
}

// Solution is the result of one solve. X is owned by the caller.
type Solution struct {
	Status     SolveStatus
	X          []float64
	Iterations int
	Err        error
}

// Solver is a QP backend.
type Solver interface {
	Name() string
	Available() bool
	Solve(p *Program) Solution
}

const (
	BackendActiveSet   = "active_set"
	BackendUnavailable = "unavailable"
)

// Backends lists the registered backend names.
func Backends() []string {
	return []string{BackendActiveSet, BackendUnavailable}
}

// NewSolver selects a backend by name.
func NewSolver(name string, opts ActiveSetOptions) (Solver, error) {
	switch strings.ToLower(name) {
	case "", BackendActiveSet:
		return NewActiveSet(opts), nil
	case BackendUnavailable:
		return Unavailable{}, nil
	}
	return nil, fmt.Errorf("unknown solver: %s (available: %s)", name, strings.Join(Backends(), ", "))
}

// Unavailable is a backend that can never solve, as when a commercial solver
// is not licensed on the host.
type Unavailable struct{}

func (Unavailable) Name() string    { return BackendUnavailable }
func (Unavailable) Available() bool { return false }

func (Unavailable) Solve(*Program) Solution {
	return Solution{Status: BackendMissing, Err: ErrUnavailable}
}
