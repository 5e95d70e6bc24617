package sim

import (
	"context"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/san-kum/wbqp/internal/controller"
	"github.com/san-kum/wbqp/internal/wbc"
)

var logger = log.WithFields(log.Fields{
	"pkg": "sim",
})

// Simulator closes the loop between a planner, the whole-body controller and
// a plant. A failed cycle keeps the previous acceleration.
type Simulator struct {
	plant      Plant
	planner    Planner
	ctrl       *controller.Controller
	integrator Integrator
	metrics    []Metric
	observers  []Observer
}

func New(plant Plant, planner Planner, ctrl *controller.Controller, integrator Integrator) *Simulator {
	return &Simulator{
		plant:      plant,
		planner:    planner,
		ctrl:       ctrl,
		integrator: integrator,
		metrics:    make([]Metric, 0),
		observers:  make([]Observer, 0),
	}
}

func (s *Simulator) AddMetric(m Metric)     { s.metrics = append(s.metrics, m) }
func (s *Simulator) AddObserver(o Observer) { s.observers = append(s.observers, o) }

func (s *Simulator) Plant() Plant                       { return s.plant }
func (s *Simulator) Controller() *controller.Controller { return s.ctrl }

func (s *Simulator) Run(ctx context.Context, cfg Config) (*Result, error) {
	ss, err := s.Start(cfg)
	if err != nil {
		return nil, err
	}

	for !ss.Done() {
		select {
		case <-ctx.Done():
			return ss.Result(), ctx.Err()
		default:
		}

		if _, err := ss.Next(); err != nil {
			return ss.Result(), err
		}
	}

	result := ss.Result()
	logger.WithFields(log.Fields{
		"cycles":   len(result.Steps),
		"failures": result.Failures,
	}).Debug("run finished")
	return result, nil
}

// Session advances a simulation one cycle at a time.
type Session struct {
	sim    *Simulator
	cfg    Config
	next   int
	done   bool
	vd     []float64
	out    wbc.QPOutput
	result *Result
}

// Start validates cfg, resets the metrics and returns a session positioned
// at cycle zero.
func (s *Simulator) Start(cfg Config) (*Session, error) {
	if err := s.validateConfig(cfg); err != nil {
		return nil, err
	}
	for _, m := range s.metrics {
		m.Reset()
	}
	return &Session{
		sim: s,
		cfg: cfg,
		vd:  make([]float64, s.plant.NumVelocities()),
		result: &Result{
			Steps:   make([]Step, 0, cfg.Cycles),
			Metrics: make(map[string]float64),
		},
	}, nil
}

// Done reports whether the configured cycles have run or the session stopped.
func (ss *Session) Done() bool { return ss.done || ss.next >= ss.cfg.Cycles }

// Time is the start time of the next cycle.
func (ss *Session) Time() float64 { return float64(ss.next) * ss.cfg.Dt }

// Output returns the last successful controller output.
func (ss *Session) Output() *wbc.QPOutput { return &ss.out }

// Next runs one cycle: plan, control, record and integrate.
func (ss *Session) Next() (Step, error) {
	if ss.Done() {
		return Step{}, errors.New("session finished")
	}
	s := ss.sim
	i, t := ss.next, ss.Time()
	ss.next++

	step, err := s.cycle(i, t, &ss.out)
	if err != nil {
		ss.done = true
		return step, err
	}
	if step.OK() {
		copy(ss.vd, ss.out.Vd)
	} else {
		ss.result.Failures++
	}
	step.Vd = append([]float64(nil), ss.vd...)

	ss.result.Steps = append(ss.result.Steps, step)
	for _, m := range s.metrics {
		m.Observe(step)
	}
	for _, obs := range s.observers {
		obs.OnCycle(step)
	}

	if !step.OK() && ss.cfg.StopOnFailure {
		ss.done = true
		return step, nil
	}

	if err := s.integrator.Step(s.plant, ss.vd, ss.cfg.Dt); err != nil {
		ss.done = true
		return step, errors.Wrapf(err, "integrate cycle %d", i)
	}
	if !s.plant.Valid() {
		ss.done = true
		return step, SimError{Time: t, Step: i, Message: "invalid state (NaN/Inf)"}
	}
	return step, nil
}

// Result returns the steps so far with the current metric values.
func (ss *Session) Result() *Result {
	for _, m := range ss.sim.metrics {
		ss.result.Metrics[m.Name()] = m.Value()
	}
	return ss.result
}

// cycle plans and solves one control cycle. Controller failures are reported
// in the step; planner failures abort the run.
func (s *Simulator) cycle(i int, t float64, out *wbc.QPOutput) (Step, error) {
	step := Step{
		Cycle:  i,
		Time:   t,
		COM:    s.plant.COM(),
		COMVel: COMVelocity(s.plant),
	}

	in, err := s.planner.Plan(s.plant, t)
	if err != nil {
		return step, errors.Wrapf(err, "plan cycle %d", i)
	}

	start := time.Now()
	status, err := s.ctrl.Control(s.plant, in, out)
	step.SolveTime = time.Since(start)
	step.Status = status
	step.Err = err
	step.Iterations = s.ctrl.LastSolution().Iterations
	if status != wbc.StatusSuccess {
		return step, nil
	}

	step.COMAcc = out.COMAcc
	step.Torque = append([]float64(nil), out.JointTorque...)
	step.Cost = out.TotalCost()
	for _, rc := range out.ResolvedContacts {
		step.ContactForce = r3.Add(step.ContactForce, rc.Force())
	}
	// m (a - g) = sum f
	expected := r3.Scale(s.plant.Mass(), r3.Sub(out.COMAcc, s.plant.Gravity()))
	step.WrenchResidual = r3.Norm(r3.Sub(expected, step.ContactForce))
	return step, nil
}

func (s *Simulator) validateConfig(cfg Config) error {
	if cfg.Dt <= 0 {
		return errors.Errorf("dt must be positive, got %f", cfg.Dt)
	}
	if cfg.Cycles <= 0 {
		return errors.Errorf("cycles must be positive, got %d", cfg.Cycles)
	}
	if s.plant == nil || s.planner == nil || s.ctrl == nil || s.integrator == nil {
		return errors.New("simulator is missing a plant, planner, controller or integrator")
	}
	return nil
}

// COMVelocity is J_com * v.
func COMVelocity(p Plant) r3.Vec {
	j := p.COMJacobian()
	v := p.Velocity()
	var c [3]float64
	for r := 0; r < 3; r++ {
		c[r] = floats.Dot(j.RawRowView(r), v)
	}
	return r3.Vec{X: c[0], Y: c[1], Z: c[2]}
}
