// Package experiment wires a scenario, the reference robot, a CoM regulator
// and the whole-body controller into a runnable closed loop.
package experiment

import (
	"context"
	"math/rand"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/san-kum/wbqp/internal/config"
	"github.com/san-kum/wbqp/internal/control"
	"github.com/san-kum/wbqp/internal/controller"
	"github.com/san-kum/wbqp/internal/integrators"
	"github.com/san-kum/wbqp/internal/metrics"
	"github.com/san-kum/wbqp/internal/model"
	"github.com/san-kum/wbqp/internal/qp"
	"github.com/san-kum/wbqp/internal/sim"
)

var logger = log.WithFields(log.Fields{
	"pkg": "experiment",
})

// swingLift is how far a single-support scenario raises the free foot.
const swingLift = 0.1

type Experiment struct {
	cfg        *config.Config
	scenario   Scenario
	robot      *model.Biped
	regulator  control.Regulator
	planner    *Planner
	ctrl       *controller.Controller
	simulator  *sim.Simulator
	randSource *rand.Rand
	home       r3.Vec
}

func New(cfg *config.Config) (*Experiment, error) {
	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "invalid config")
	}
	sc, err := GetScenario(cfg.Run.Scenario)
	if err != nil {
		return nil, err
	}

	e := &Experiment{
		cfg:        cfg,
		scenario:   sc,
		robot:      model.NewBiped(cfg.BipedParams()),
		randSource: rand.New(rand.NewSource(cfg.Run.Seed)),
	}
	if sc.EffortWindow != nil {
		e.robot.SetEffortLimits(sc.EffortWindow[0], sc.EffortWindow[1])
	}
	if len(sc.Feet) == 1 {
		if err := e.robot.PlaceStance(sc.Feet[0], swingLift); err != nil {
			return nil, err
		}
	}
	if err := e.perturb(cfg.Run.Perturbation); err != nil {
		return nil, err
	}

	solverName := cfg.Controller.Solver
	if sc.Solver != "" {
		solverName = sc.Solver
	}
	solver, err := qp.NewSolver(solverName, cfg.SolverOptions())
	if err != nil {
		return nil, err
	}
	e.ctrl, err = controller.New(solver, cfg.ControllerConfig(), logger.WithField("scenario", sc.Name))
	if err != nil {
		return nil, err
	}
	integ, err := integrators.New(cfg.Run.Integrator)
	if err != nil {
		return nil, err
	}

	e.home = e.robot.COM()
	e.regulator, err = GetRegulator(cfg.Run.Regulator, cfg.Run, e.home)
	if err != nil {
		return nil, err
	}
	e.planner = NewPlanner(sc, e.regulator, cfg, e.robot.FootCorners())

	e.simulator = sim.New(e.robot, e.planner, e.ctrl, integ)
	for _, m := range metrics.Default() {
		e.simulator.AddMetric(m)
	}
	return e, nil
}

// perturb adds a random horizontal CoM velocity with the feet held still.
func (e *Experiment) perturb(scale float64) error {
	if scale == 0 {
		return nil
	}
	dv := r3.Vec{X: e.randSource.NormFloat64() * scale, Y: e.randSource.NormFloat64() * scale}
	v := make([]float64, e.robot.NumVelocities())
	for i, leg := range []int{3, 6, 9} {
		sign := -1.0
		if i == 0 {
			sign = 1
		}
		v[leg], v[leg+1], v[leg+2] = sign*dv.X, sign*dv.Y, sign*dv.Z
	}
	return e.robot.SetVelocity(v)
}

func (e *Experiment) Run(ctx context.Context) (*sim.Result, error) {
	if e.simulator == nil {
		return nil, errors.New("experiment not setup")
	}
	logger.WithFields(log.Fields{
		"scenario": e.scenario.Name,
		"cycles":   e.cfg.Run.Cycles,
		"seed":     e.cfg.Run.Seed,
	}).Info("starting run")
	return e.simulator.Run(ctx, e.cfg.SimConfig())
}

// GetSimulator returns the underlying simulator for adding observers
func (e *Experiment) GetSimulator() *sim.Simulator {
	return e.simulator
}

func (e *Experiment) Config() *config.Config             { return e.cfg }
func (e *Experiment) Scenario() Scenario                 { return e.scenario }
func (e *Experiment) Robot() *model.Biped                { return e.robot }
func (e *Experiment) Regulator() control.Regulator       { return e.regulator }
func (e *Experiment) Planner() *Planner                  { return e.planner }
func (e *Experiment) Controller() *controller.Controller { return e.ctrl }

// Target is the world CoM position the regulator tracks at time t.
func (e *Experiment) Target(t float64) r3.Vec { return r3.Add(e.home, e.planner.Shift(t)) }

// Factory builds ensemble members from cfg with the member seed.
func Factory(cfg *config.Config) sim.Factory {
	return func(seed int64) (*sim.Simulator, error) {
		c := cfg.Clone()
		c.Run.Seed = seed
		e, err := New(c)
		if err != nil {
			return nil, err
		}
		return e.GetSimulator(), nil
	}
}
