package wbc

import (
	"math"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/spatial/r3"
)

// DesiredBodyAcceleration is a task-space acceleration target for one body.
// Acceleration is either a 6D spatial acceleration [angular; linear] or a 3D
// linear acceleration of the body origin.
type DesiredBodyAcceleration struct {
	Name         string
	Body         string
	Acceleration []float64
	Weight       float64
}

// Dim is the task dimension: 6 for spatial targets, 3 for linear ones.
func (d DesiredBodyAcceleration) Dim() int { return len(d.Acceleration) }

func (d DesiredBodyAcceleration) Validate() error {
	if d.Body == "" {
		return errors.Wrap(ErrInputInvalid, "body acceleration has no body")
	}
	if n := len(d.Acceleration); n != 6 && n != 3 {
		return errors.Wrapf(ErrInputInvalid, "body %s: acceleration must have 3 or 6 entries, got %d", d.Body, n)
	}
	if !validWeight(d.Weight) {
		return errors.Wrapf(ErrInputInvalid, "body %s: weight %f", d.Body, d.Weight)
	}
	if !finiteSlice(d.Acceleration) {
		return errors.Wrapf(ErrInputInvalid, "body %s: acceleration is not finite", d.Body)
	}
	return nil
}

// QPInput aggregates the per-cycle desired motions, weights and contacts.
type QPInput struct {
	DesiredCOMAcc     r3.Vec
	WCOM              float64
	BodyAccelerations []DesiredBodyAcceleration
	DesiredVd         []float64
	WVd               float64
	WBasisReg         float64
	Contacts          []ContactInformation
}

// NewQPInput returns an input with a zero vd target of dimension nv and the
// default weights: CoM tracking dominant, light regularization.
func NewQPInput(nv int) *QPInput {
	return &QPInput{
		WCOM:      100,
		DesiredVd: make([]float64, nv),
		WVd:       1e-3,
		WBasisReg: 1e-4,
	}
}

// Validate checks the input against the model. hasBody may be nil, in which
// case body names are not checked.
func (in *QPInput) Validate(nv int, hasBody func(string) bool) error {
	if in == nil {
		return errors.Wrap(ErrInputInvalid, "nil input")
	}
	if len(in.DesiredVd) != nv {
		return errors.Wrapf(ErrInputInvalid, "desired vd has %d entries, model has %d velocities", len(in.DesiredVd), nv)
	}
	if !finiteSlice(in.DesiredVd) || !finiteVec(in.DesiredCOMAcc) {
		return errors.Wrap(ErrInputInvalid, "desired accelerations are not finite")
	}
	for _, w := range []float64{in.WCOM, in.WVd, in.WBasisReg} {
		if !validWeight(w) {
			return errors.Wrapf(ErrInputInvalid, "weight %f", w)
		}
	}
	for _, b := range in.BodyAccelerations {
		if err := b.Validate(); err != nil {
			return err
		}
		if hasBody != nil && !hasBody(b.Body) {
			return errors.Wrapf(ErrInputInvalid, "unknown body %s", b.Body)
		}
	}
	for _, c := range in.Contacts {
		if err := c.Validate(); err != nil {
			return err
		}
		if hasBody != nil && !hasBody(c.Body) {
			return errors.Wrapf(ErrInputInvalid, "unknown contact body %s", c.Body)
		}
	}
	return nil
}

// ResolvedContact is the decomposition of one contact's basis coefficients.
type ResolvedContact struct {
	Name             string
	Body             string
	Basis            []float64
	PointForces      []r3.Vec
	EquivalentWrench [6]float64 // [torque; force] about ReferencePoint
	ContactPoints    []r3.Vec
	ReferencePoint   r3.Vec
}

// Force returns the linear part of the equivalent wrench.
func (r ResolvedContact) Force() r3.Vec {
	return r3.Vec{X: r.EquivalentWrench[3], Y: r.EquivalentWrench[4], Z: r.EquivalentWrench[5]}
}

// Torque returns the angular part of the equivalent wrench.
func (r ResolvedContact) Torque() r3.Vec {
	return r3.Vec{X: r.EquivalentWrench[0], Y: r.EquivalentWrench[1], Z: r.EquivalentWrench[2]}
}

// BodyAcceleration is the acceleration a tracked body gets from the solved vd.
type BodyAcceleration struct {
	Name         string
	Body         string
	Acceleration []float64
}

// CostTerm is the value of one cost term at the solution.
type CostTerm struct {
	Name  string
	Value float64
}

// QPOutput is the result of a successful cycle.
type QPOutput struct {
	Vd                []float64
	COMAcc            r3.Vec
	JointTorque       []float64
	ResolvedContacts  []ResolvedContact
	BodyAccelerations []BodyAcceleration
	Costs             []CostTerm
	CoordNames        []string
}

// Validate is the structural check run before an output is handed out.
func (out *QPOutput) Validate(nv, nTorque int) error {
	if out == nil {
		return errors.Wrap(ErrOutputInvalid, "nil output")
	}
	if len(out.Vd) != nv {
		return errors.Wrapf(ErrOutputInvalid, "vd has %d entries, want %d", len(out.Vd), nv)
	}
	if len(out.JointTorque) != nTorque {
		return errors.Wrapf(ErrOutputInvalid, "joint torque has %d entries, want %d", len(out.JointTorque), nTorque)
	}
	if len(out.CoordNames) != 0 && len(out.CoordNames) != nv {
		return errors.Wrapf(ErrOutputInvalid, "coordinate names have %d entries, want %d", len(out.CoordNames), nv)
	}
	if !finiteSlice(out.Vd) || !finiteSlice(out.JointTorque) || !finiteVec(out.COMAcc) {
		return errors.Wrap(ErrOutputInvalid, "non-finite values")
	}
	for _, rc := range out.ResolvedContacts {
		if len(rc.PointForces) != len(rc.ContactPoints) {
			return errors.Wrapf(ErrOutputInvalid, "contact %s: %d forces for %d points", rc.Name, len(rc.PointForces), len(rc.ContactPoints))
		}
	}
	return nil
}

// Clone returns a deep copy of the output.
func (out *QPOutput) Clone() *QPOutput {
	c := &QPOutput{
		Vd:          append([]float64(nil), out.Vd...),
		COMAcc:      out.COMAcc,
		JointTorque: append([]float64(nil), out.JointTorque...),
		Costs:       append([]CostTerm(nil), out.Costs...),
		CoordNames:  append([]string(nil), out.CoordNames...),
	}
	for _, rc := range out.ResolvedContacts {
		rc.Basis = append([]float64(nil), rc.Basis...)
		rc.PointForces = append([]r3.Vec(nil), rc.PointForces...)
		rc.ContactPoints = append([]r3.Vec(nil), rc.ContactPoints...)
		c.ResolvedContacts = append(c.ResolvedContacts, rc)
	}
	for _, ba := range out.BodyAccelerations {
		ba.Acceleration = append([]float64(nil), ba.Acceleration...)
		c.BodyAccelerations = append(c.BodyAccelerations, ba)
	}
	return c
}

// TotalCost sums all cost terms.
func (out *QPOutput) TotalCost() float64 {
	sum := 0.0
	for _, c := range out.Costs {
		sum += c.Value
	}
	return sum
}

func validWeight(w float64) bool {
	return w >= 0 && !math.IsInf(w, 0) && !math.IsNaN(w)
}

func finiteSlice(v []float64) bool {
	for _, x := range v {
		if !finite(x) {
			return false
		}
	}
	return true
}
