package controller

import (
	"math"

	"github.com/pkg/errors"
	"go.uber.org/multierr"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/san-kum/wbqp/internal/model"
	"github.com/san-kum/wbqp/internal/wbc"
)

// decompose maps the solution x = [vd; basis] into the scratch output.
func (c *Controller) decompose(rs model.RobotState, in *wbc.QPInput, x []float64) {
	ws := &c.ws
	t := c.topo
	nv := t.NumVd
	out := &ws.out

	out.Vd = append(out.Vd[:0], x[:nv]...)
	out.CoordNames = append(out.CoordNames[:0], rs.CoordNames()...)

	xv := mat.NewVecDense(len(x), x)
	vd := xv.SliceVec(0, nv)

	if t.NumBasis > 0 {
		ws.forces.MulVec(ws.basis, xv.SliceVec(nv, t.NumVariables))
	}
	out.ResolvedContacts = out.ResolvedContacts[:0]
	row, col := 0, 0
	for i, ci := range in.Contacts {
		np, nb := ci.NumContactPoints(), ci.NumBasis()
		rc := wbc.ResolvedContact{
			Name:           ci.Name,
			Body:           ci.Body,
			Basis:          append([]float64(nil), x[nv+col:nv+col+nb]...),
			PointForces:    make([]r3.Vec, np),
			ContactPoints:  ws.points[i],
			ReferencePoint: ws.refs[i],
		}
		for k := 0; k < np; k++ {
			r := row + 3*k
			rc.PointForces[k] = r3.Vec{X: ws.forces.AtVec(r), Y: ws.forces.AtVec(r + 1), Z: ws.forces.AtVec(r + 2)}
		}
		var w mat.VecDense
		w.MulVec(wbc.WrenchMatrix(ws.points[i], ws.refs[i]), ws.forces.SliceVec(row, row+3*np))
		copy(rc.EquivalentWrench[:], w.RawVector().Data)
		out.ResolvedContacts = append(out.ResolvedContacts, rc)
		row += 3 * np
		col += nb
	}

	out.JointTorque = out.JointTorque[:0]
	if t.NumTorque > 0 {
		var tau mat.VecDense
		tau.MulVec(ws.torqueLinear, xv)
		tau.AddVec(&tau, ws.torqueConstant)
		out.JointTorque = append(out.JointTorque, tau.RawVector().Data...)
	}

	out.BodyAccelerations = out.BodyAccelerations[:0]
	for i, b := range in.BodyAccelerations {
		var acc mat.VecDense
		acc.MulVec(ws.bodyJ[i], vd)
		acc.AddVec(&acc, ws.bodyJdv[i])
		out.BodyAccelerations = append(out.BodyAccelerations, wbc.BodyAcceleration{
			Name:         b.Name,
			Body:         b.Body,
			Acceleration: append([]float64(nil), acc.RawVector().Data...),
		})
	}

	var com mat.VecDense
	com.MulVec(ws.comJ, vd)
	com.AddVec(&com, ws.comJdv)
	out.COMAcc = r3.Vec{X: com.AtVec(0), Y: com.AtVec(1), Z: com.AtVec(2)}

	out.Costs = out.Costs[:0]
	for _, cost := range c.prog.Costs() {
		out.Costs = append(out.Costs, wbc.CostTerm{Name: cost.Name(), Value: cost.Value(x)})
	}
}

// validate checks the solution against every declared record and the
// centroidal wrench balance. All violations are reported together.
func (c *Controller) validate(rs model.RobotState, x []float64) error {
	tol := c.cfg.Tolerance
	var err error

	for _, eq := range c.prog.Equalities() {
		r := eq.Residual(x)
		scale := 1.0
		if eq.Rows() > 0 {
			scale += mat.Norm(eq.B, math.Inf(1))
		}
		if eq.Rows() > 0 && mat.Norm(r, math.Inf(1)) > tol*scale {
			err = multierr.Append(err, errors.Errorf("%s: residual %g", eq.Name(), mat.Norm(r, math.Inf(1))))
		}
	}

	for _, in := range c.prog.Inequalities() {
		v := in.Value(x)
		for i := 0; i < in.Rows(); i++ {
			lo, hi, val := in.Lower.AtVec(i), in.Upper.AtVec(i), v.AtVec(i)
			if val < lo-tol*(1+math.Abs(lo)) || val > hi+tol*(1+math.Abs(hi)) {
				err = multierr.Append(err, errors.Errorf("%s row %d: %g outside [%g, %g]", in.Name(), i, val, lo, hi))
			}
		}
	}

	if werr := c.checkWrenchBalance(rs); werr != nil {
		err = multierr.Append(err, werr)
	}
	if err != nil {
		return errors.Wrap(wbc.ErrInconsistent, err.Error())
	}
	return nil
}

// checkWrenchBalance compares gravity plus contact wrenches, recombined about
// the CoM, with the rate of change of centroidal momentum A·vd + Adot·v.
func (c *Controller) checkWrenchBalance(rs model.RobotState) error {
	out := &c.ws.out
	com := rs.COM()
	g := rs.Gravity()
	mass := rs.Mass()

	var net [6]float64
	force := r3.Scale(mass, g)
	net[3], net[4], net[5] = force.X, force.Y, force.Z
	for _, rc := range out.ResolvedContacts {
		f := rc.Force()
		tq := r3.Add(rc.Torque(), r3.Cross(r3.Sub(rc.ReferencePoint, com), f))
		net[0] += tq.X
		net[1] += tq.Y
		net[2] += tq.Z
		net[3] += f.X
		net[4] += f.Y
		net[5] += f.Z
	}

	var rate mat.VecDense
	rate.MulVec(rs.CentroidalMomentumMatrix(), mat.NewVecDense(len(out.Vd), out.Vd))
	rate.AddVec(&rate, rs.CentroidalMomentumMatrixDotTimesV())

	scale := 1 + mass*r3.Norm(g)
	for i := 0; i < 6; i++ {
		if d := math.Abs(net[i] - rate.AtVec(i)); d > c.cfg.Tolerance*scale {
			return errors.Errorf("wrench balance row %d: external %g, momentum rate %g", i, net[i], rate.AtVec(i))
		}
	}
	return nil
}
