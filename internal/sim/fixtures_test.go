package sim

import (
	"github.com/pkg/errors"

	"github.com/san-kum/wbqp/internal/controller"
	"github.com/san-kum/wbqp/internal/model"
	"github.com/san-kum/wbqp/internal/qp"
	"github.com/san-kum/wbqp/internal/wbc"
)

type stancePlanner struct{}

func (stancePlanner) Plan(p Plant, t float64) (*wbc.QPInput, error) {
	b := p.(*model.Biped)
	in := wbc.NewQPInput(p.NumVelocities())
	in.WCOM = 1e3
	in.WVd = 1e-3
	in.WBasisReg = 1e-5
	for _, foot := range []string{model.BodyLeftFoot, model.BodyRightFoot} {
		in.Contacts = append(in.Contacts, wbc.NewContactInformation(foot, foot, b.FootCorners(), 4, 1))
	}
	return in, nil
}

type failingPlanner struct{}

func (failingPlanner) Plan(p Plant, t float64) (*wbc.QPInput, error) {
	return nil, errors.New("no plan")
}

// testIntegrator is semi-implicit Euler.
type testIntegrator struct{}

func (testIntegrator) Step(p Plant, vd []float64, dt float64) error {
	v := p.Velocity()
	for i := range v {
		v[i] += dt * vd[i]
	}
	if err := p.SetVelocity(v); err != nil {
		return err
	}
	p.Advance(dt)
	return nil
}

type countingMetric struct {
	count int
	ok    int
}

func (m *countingMetric) Name() string { return "count" }

func (m *countingMetric) Observe(s Step) {
	m.count++
	if s.OK() {
		m.ok++
	}
}

func (m *countingMetric) Value() float64 { return float64(m.count) }
func (m *countingMetric) Reset()         { m.count, m.ok = 0, 0 }

type recordingObserver struct {
	cycles []int
}

func (o *recordingObserver) OnCycle(s Step) { o.cycles = append(o.cycles, s.Cycle) }

func newSimulator(solver qp.Solver, planner Planner) *Simulator {
	ctrl, err := controller.New(solver, controller.DefaultConfig(), nil)
	if err != nil {
		panic(err)
	}
	return New(model.NewBiped(model.DefaultBipedParams()), planner, ctrl, testIntegrator{})
}

func activeSet() qp.Solver {
	return qp.NewActiveSet(qp.DefaultActiveSetOptions())
}
