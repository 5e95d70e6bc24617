package controller

import (
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/san-kum/wbqp/internal/model"
	"github.com/san-kum/wbqp/internal/qp"
	"github.com/san-kum/wbqp/internal/wbc"
)

var logger = log.WithFields(log.Fields{
	"pkg": "controller",
})

// Config holds the controller settings that are not per-cycle inputs.
type Config struct {
	// BasisUpperBound caps every contact force basis coefficient.
	BasisUpperBound float64
	// Tolerance is the relative tolerance of the post-solve checks.
	Tolerance float64
}

func DefaultConfig() Config {
	return Config{
		BasisUpperBound: 1000,
		Tolerance:       1e-6,
	}
}

// Controller is a single-owner QP inverse-dynamics controller. It keeps the
// program structure and scratch buffers between cycles and is not safe for
// concurrent use.
type Controller struct {
	solver qp.Solver
	cfg    Config
	log    log.FieldLogger

	prog    *qp.Program
	topo    Topology
	handles Handles
	built   bool
	ws      workspace

	cycle   int
	rebuild int
	last    qp.Solution
}

// New creates a controller around a QP backend. A nil logger selects the
// package logger.
func New(solver qp.Solver, cfg Config, lg log.FieldLogger) (*Controller, error) {
	if solver == nil {
		return nil, errors.Wrap(wbc.ErrSolverUnavailable, "nil solver")
	}
	if cfg.BasisUpperBound <= 0 {
		return nil, errors.Errorf("basis upper bound must be positive, got %f", cfg.BasisUpperBound)
	}
	if cfg.Tolerance <= 0 {
		return nil, errors.Errorf("tolerance must be positive, got %f", cfg.Tolerance)
	}
	if lg == nil {
		lg = logger
	}
	return &Controller{
		solver: solver,
		cfg:    cfg,
		log:    lg,
		prog:   qp.NewProgram(),
	}, nil
}

func (c *Controller) Config() Config { return c.cfg }

// Solver returns the backend the controller was built with.
func (c *Controller) Solver() qp.Solver { return c.solver }

// Topology returns the topology of the current program.
func (c *Controller) Topology() Topology { return c.topo }

// Handles returns the record handles of the current program.
func (c *Controller) Handles() Handles { return c.handles.clone() }

// TopologyVersion increments on every rebuild.
func (c *Controller) TopologyVersion() int { return c.handles.Version }

// Program exposes the assembled program for inspection. It is rebuilt in
// place and must not be retained across cycles.
func (c *Controller) Program() *qp.Program { return c.prog }

// Cycles counts the cycles that passed input validation. A rejected input
// leaves it unchanged.
func (c *Controller) Cycles() int { return c.cycle }

// Rebuilds returns how many times the program structure was declared.
func (c *Controller) Rebuilds() int { return c.rebuild }

// LastSolution returns the backend result of the most recent solve.
func (c *Controller) LastSolution() qp.Solution { return c.last }

// Control runs one cycle. On success out is overwritten with the result. On
// any failure out is left untouched and the returned error is a
// *wbc.CycleError carrying the status.
func (c *Controller) Control(rs model.RobotState, in *wbc.QPInput, out *wbc.QPOutput) (wbc.Status, error) {
	if err := checkArguments(rs, in, out); err != nil {
		return c.report(wbc.StatusInputInvalid, c.cycle+1, err)
	}
	c.cycle++
	nv, nt := rs.NumVelocities(), len(rs.Actuators())

	t := computeTopology(nv, nt, in)
	if c.resize(t, in) {
		c.rebuild++
		c.log.WithFields(log.Fields{
			"cycle":            c.cycle,
			"topology_version": c.handles.Version,
			"variables":        t.NumVariables,
			"contacts":         t.NumContacts,
		}).Debug("rebuilt qp topology")
	}

	if err := c.formulate(rs, in); err != nil {
		return c.fail(wbc.StatusInconsistent, err)
	}

	if !c.solver.Available() {
		return c.fail(wbc.StatusSolverUnavailable, errors.Wrapf(wbc.ErrSolverUnavailable, "backend %s", c.solver.Name()))
	}
	sol := c.solver.Solve(c.prog)
	c.last = sol
	switch sol.Status {
	case qp.SolutionFound:
	case qp.BackendMissing:
		return c.fail(wbc.StatusSolverUnavailable, errors.Wrapf(wbc.ErrSolverUnavailable, "backend %s: %v", c.solver.Name(), sol.Err))
	default:
		return c.fail(wbc.StatusNoSolution, errors.Wrapf(wbc.ErrNoSolution, "backend %s: %v", c.solver.Name(), sol.Err))
	}
	if len(sol.X) != t.NumVariables {
		return c.fail(wbc.StatusInconsistent, errors.Wrapf(wbc.ErrInconsistent,
			"solution has %d entries, program has %d variables", len(sol.X), t.NumVariables))
	}

	c.decompose(rs, in, sol.X)
	if err := c.validate(rs, sol.X); err != nil {
		return c.fail(wbc.StatusInconsistent, err)
	}
	if err := c.ws.out.Validate(nv, nt); err != nil {
		return c.fail(wbc.StatusOutputInvalid, err)
	}

	copyOutput(out, &c.ws.out)
	return wbc.StatusSuccess, nil
}

// checkArguments rejects a cycle before anything in the controller changes.
func checkArguments(rs model.RobotState, in *wbc.QPInput, out *wbc.QPOutput) error {
	if rs == nil || out == nil {
		return errors.Wrap(wbc.ErrInputInvalid, "nil robot state or output")
	}
	nv := rs.NumVelocities()
	if err := in.Validate(nv, rs.HasBody); err != nil {
		return err
	}
	if nt := len(rs.Actuators()); nt > nv-model.NumFloatingBase {
		return errors.Wrapf(wbc.ErrDimensionMismatch, "%d actuators for %d velocities", nt, nv)
	}
	return nil
}

func (c *Controller) fail(s wbc.Status, err error) (wbc.Status, error) {
	return c.report(s, c.cycle, err)
}

func (c *Controller) report(s wbc.Status, cycle int, err error) (wbc.Status, error) {
	c.log.WithFields(log.Fields{
		"status":           s.String(),
		"cycle":            cycle,
		"topology_version": c.handles.Version,
	}).WithError(err).Warn("control cycle failed")
	return s, &wbc.CycleError{Status: s, Cycle: cycle, Wrapped: err}
}

// copyOutput deep-copies src into dst, reusing dst's storage.
func copyOutput(dst, src *wbc.QPOutput) {
	dst.Vd = append(dst.Vd[:0], src.Vd...)
	dst.COMAcc = src.COMAcc
	dst.JointTorque = append(dst.JointTorque[:0], src.JointTorque...)
	dst.CoordNames = append(dst.CoordNames[:0], src.CoordNames...)
	dst.Costs = append(dst.Costs[:0], src.Costs...)

	dst.ResolvedContacts = dst.ResolvedContacts[:0]
	for _, rc := range src.ResolvedContacts {
		rc.Basis = append([]float64(nil), rc.Basis...)
		rc.PointForces = append([]r3.Vec(nil), rc.PointForces...)
		rc.ContactPoints = append([]r3.Vec(nil), rc.ContactPoints...)
		dst.ResolvedContacts = append(dst.ResolvedContacts, rc)
	}
	dst.BodyAccelerations = dst.BodyAccelerations[:0]
	for _, ba := range src.BodyAccelerations {
		ba.Acceleration = append([]float64(nil), ba.Acceleration...)
		dst.BodyAccelerations = append(dst.BodyAccelerations, ba)
	}
}
