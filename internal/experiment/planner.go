package experiment

import (
	"math"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/num/quat"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/san-kum/wbqp/internal/config"
	"github.com/san-kum/wbqp/internal/control"
	"github.com/san-kum/wbqp/internal/model"
	"github.com/san-kum/wbqp/internal/sim"
	"github.com/san-kum/wbqp/internal/wbc"
)

// Planner turns the regulator output into a QPInput: a CoM acceleration
// task, an upright torso task and the scenario's contacts.
type Planner struct {
	regulator control.Regulator
	weights   config.WeightsConfig
	contacts  []wbc.ContactInformation
	shift     r3.Vec
	ramp      float64
	kpRot     float64
	kdRot     float64
}

func NewPlanner(sc Scenario, reg control.Regulator, cfg *config.Config, corners []r3.Vec) *Planner {
	p := &Planner{
		regulator: reg,
		weights:   cfg.Weights,
		shift:     r3Vec(cfg.Run.Shift),
		ramp:      sc.Ramp,
		kpRot:     cfg.Run.Kp,
		kdRot:     cfg.Run.Kd,
	}
	for _, foot := range sc.Feet {
		p.contacts = append(p.contacts,
			wbc.NewContactInformation(foot, foot, corners, cfg.Robot.BasisPerPoint, cfg.Robot.Mu))
	}
	return p
}

// AddShift moves the CoM target by d on top of the configured shift.
func (p *Planner) AddShift(d r3.Vec) { p.shift = r3.Add(p.shift, d) }

func (p *Planner) Contacts() []wbc.ContactInformation { return p.contacts }

// Shift is the CoM target offset at time t.
func (p *Planner) Shift(t float64) r3.Vec {
	if p.ramp <= 0 {
		return p.shift
	}
	return r3.Scale(math.Min(1, t/p.ramp), p.shift)
}

func (p *Planner) Plan(pl sim.Plant, t float64) (*wbc.QPInput, error) {
	com := pl.COM()
	vel := sim.COMVelocity(pl)
	acc := p.regulator.Compute(r3.Sub(com, p.Shift(t)), vel, t)

	in := wbc.NewQPInput(pl.NumVelocities())
	in.DesiredCOMAcc = acc
	in.WCOM = p.weights.COM
	in.WVd = p.weights.Vd
	in.WBasisReg = p.weights.BasisReg
	in.Contacts = p.contacts

	if p.weights.Torso > 0 {
		task, err := p.torsoTask(pl, acc)
		if err != nil {
			return nil, err
		}
		in.BodyAccelerations = append(in.BodyAccelerations, task)
	}
	return in, nil
}

// torsoTask asks for an upright torso with the commanded CoM acceleration at
// its origin.
func (p *Planner) torsoTask(pl sim.Plant, acc r3.Vec) (wbc.DesiredBodyAcceleration, error) {
	_, rot, err := pl.BodyPose(model.BodyTorso)
	if err != nil {
		return wbc.DesiredBodyAcceleration{}, errors.Wrap(err, "torso pose")
	}
	j, err := pl.BodyJacobian(model.BodyTorso)
	if err != nil {
		return wbc.DesiredBodyAcceleration{}, errors.Wrap(err, "torso jacobian")
	}
	v := pl.Velocity()
	omega := r3.Vec{
		X: floats.Dot(j.RawRowView(0), v),
		Y: floats.Dot(j.RawRowView(1), v),
		Z: floats.Dot(j.RawRowView(2), v),
	}

	e := orientationError(quat.Number(rot))
	alpha := r3.Sub(r3.Scale(-p.kpRot, e), r3.Scale(p.kdRot, omega))
	return wbc.DesiredBodyAcceleration{
		Name:         "torso",
		Body:         model.BodyTorso,
		Acceleration: []float64{alpha.X, alpha.Y, alpha.Z, acc.X, acc.Y, acc.Z},
		Weight:       p.weights.Torso,
	}, nil
}

// orientationError is the small-angle rotation vector of q from upright.
func orientationError(q quat.Number) r3.Vec {
	s := 2.0
	if q.Real < 0 {
		s = -2
	}
	return r3.Vec{X: s * q.Imag, Y: s * q.Jmag, Z: s * q.Kmag}
}

func r3Vec(v [3]float64) r3.Vec { return r3.Vec{X: v[0], Y: v[1], Z: v[2]} }
