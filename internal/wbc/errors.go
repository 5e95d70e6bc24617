package wbc

import "errors"

// Domain errors for controller cycles.
var (
	// ErrInputInvalid indicates a malformed QPInput.
	ErrInputInvalid = errors.New("wbc: invalid qp input")

	// ErrSolverUnavailable indicates the QP backend cannot run in this environment.
	ErrSolverUnavailable = errors.New("wbc: qp solver unavailable")

	// ErrNoSolution indicates the QP was infeasible or the backend failed.
	ErrNoSolution = errors.New("wbc: qp solution not found")

	// ErrInconsistent indicates a post-solve consistency check failed.
	ErrInconsistent = errors.New("wbc: internal consistency check failed")

	// ErrOutputInvalid indicates the assembled output does not match the model.
	ErrOutputInvalid = errors.New("wbc: qp output invalid")

	// ErrDimensionMismatch indicates mismatched vector or matrix dimensions.
	ErrDimensionMismatch = errors.New("wbc: dimension mismatch")
)

// Status is the discrete result of one control cycle.
type Status int

const (
	StatusSuccess Status = iota
	StatusInputInvalid
	StatusSolverUnavailable
	StatusNoSolution
	StatusInconsistent
	StatusOutputInvalid
)

func (s Status) String() string {
	switch s {
	case StatusSuccess:
		return "success"
	case StatusInputInvalid:
		return "input_invalid"
	case StatusSolverUnavailable:
		return "solver_unavailable"
	case StatusNoSolution:
		return "no_solution"
	case StatusInconsistent:
		return "inconsistent"
	case StatusOutputInvalid:
		return "output_invalid"
	default:
		return "unknown"
	}
}

// Sentinel returns the domain error matching the status, or nil for success.
func (s Status) Sentinel() error {
	switch s {
	case StatusSuccess:
		return nil
	case StatusInputInvalid:
		return ErrInputInvalid
	case StatusSolverUnavailable:
		return ErrSolverUnavailable
	case StatusNoSolution:
		return ErrNoSolution
	case StatusInconsistent:
		return ErrInconsistent
	default:
		return ErrOutputInvalid
	}
}

// CycleError wraps a failure with the cycle it happened in.
type CycleError struct {
	Status  Status
	Cycle   int
	Wrapped error
}

func (e *CycleError) Error() string {
	if e.Wrapped == nil {
		return "cycle failed: " + e.Status.String()
	}
	return e.Wrapped.Error()
}

func (e *CycleError) Unwrap() error {
	return e.Wrapped
}

// Is lets errors.Is match a CycleError against the sentinel of its status.
func (e *CycleError) Is(target error) bool {
	return target != nil && target == e.Status.Sentinel()
}

// StatusOf extracts the cycle status from an error returned by the controller.
func StatusOf(err error) Status {
	if err == nil {
		return StatusSuccess
	}
	var ce *CycleError
	if errors.As(err, &ce) {
		return ce.Status
	}
	switch {
	case errors.Is(err, ErrInputInvalid), errors.Is(err, ErrDimensionMismatch):
		return StatusInputInvalid
	case errors.Is(err, ErrSolverUnavailable):
		return StatusSolverUnavailable
	case errors.Is(err, ErrNoSolution):
		return StatusNoSolution
	case errors.Is(err, ErrInconsistent):
		return StatusInconsistent
	default:
		return StatusOutputInvalid
	}
}
