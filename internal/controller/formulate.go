package controller

import (
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"github.com/san-kum/wbqp/internal/model"
	"github.com/san-kum/wbqp/internal/qp"
	"github.com/san-kum/wbqp/internal/wbc"
)

// formulate fills every record declared by resize from the current dynamics
// and the cycle input. The decision vector is x = [vd; basis].
//
// Equations of motion: M·vd + h = S·tau + Jcᵀ·basis_matrix·beta. The upper
// rows of S are zero, so the upper rows are a constraint on (vd, beta) and
// the lower rows define tau as an affine function of x.
func (c *Controller) formulate(rs model.RobotState, in *wbc.QPInput) error {
	ws := &c.ws
	t := c.topo
	nv, n := t.NumVd, t.NumVariables
	ws.zero()

	// Stack contact Jacobians, basis matrices and Jdot*v.
	row, col := 0, 0
	for i, ci := range in.Contacts {
		rows, nb := ci.ForceDim(), ci.NumBasis()
		if row+rows > t.NumPointForces || col+nb > t.NumBasis {
			return errors.Wrapf(wbc.ErrInconsistent, "contact %s overruns the stacked buffers", ci.Name)
		}
		jp, err := rs.PointJacobian(ci.Body, ci.ContactPoints)
		if err != nil {
			return errors.Wrapf(err, "contact %s jacobian", ci.Name)
		}
		jdv, err := rs.PointJacobianDotTimesV(ci.Body, ci.ContactPoints)
		if err != nil {
			return errors.Wrapf(err, "contact %s jdot*v", ci.Name)
		}
		ws.jc.Slice(row, row+rows, 0, nv).(*mat.Dense).Copy(jp)
		ws.jcdv.SliceVec(row, row+rows).(*mat.VecDense).CopyVec(jdv)
		ci.BasisMatrixTo(ws.basis.Slice(row, row+rows, col, col+nb).(*mat.Dense))

		pts, ref, err := ci.ContactPointsAndReferencePoint(rs)
		if err != nil {
			return errors.Wrapf(err, "contact %s pose", ci.Name)
		}
		ws.points[i], ws.refs[i] = pts, ref

		eq, err := c.prog.Equality(c.handles.Contacts[i])
		if err != nil {
			return err
		}
		eq.Description = contactEqName(ci)
		// J·vd + Jdot·v = 0
		eq.A.Copy(jp)
		eq.B.ScaleVec(-1, jdv)

		row += rows
		col += nb
	}
	if row != t.NumPointForces || col != t.NumBasis {
		return errors.Wrapf(wbc.ErrInconsistent, "stacked %d forces and %d basis, topology has %d and %d",
			row, col, t.NumPointForces, t.NumBasis)
	}

	if t.NumBasis > 0 {
		ws.jb.Mul(ws.jc.T(), ws.basis)
	}

	m := rs.MassMatrix()
	h := rs.BiasTerm()
	if r, cc := m.Dims(); r != nv || cc != nv || h.Len() != nv {
		return errors.Wrapf(wbc.ErrInconsistent, "mass matrix is %dx%d and bias %d for %d velocities", r, cc, h.Len(), nv)
	}

	// tau = torque_linear·x + torque_constant over the lower rows.
	nt := t.NumTorque
	lo := nv - nt
	if nt > 0 {
		ws.torqueLinear.Slice(0, nt, 0, nv).(*mat.Dense).Copy(m.Slice(lo, nv, 0, nv))
		ws.torqueConstant.CopyVec(h.SliceVec(lo, nv))
	}

	// Dynamics: [M_u | −(JᵀB)_u]·x = −h_u.
	fb := model.NumFloatingBase
	ws.dynLinear.Slice(0, fb, 0, nv).(*mat.Dense).Copy(m.Slice(0, fb, 0, nv))
	if t.NumBasis > 0 {
		if nt > 0 {
			ws.torqueLinear.Slice(0, nt, nv, n).(*mat.Dense).Scale(-1, ws.jb.Slice(lo, nv, 0, t.NumBasis))
		}
		ws.dynLinear.Slice(0, fb, nv, n).(*mat.Dense).Scale(-1, ws.jb.Slice(0, fb, 0, t.NumBasis))
	}
	dyn, err := c.prog.Equality(c.handles.Dynamics)
	if err != nil {
		return err
	}
	dyn.A.Copy(ws.dynLinear)
	dyn.B.ScaleVec(-1, h.SliceVec(0, fb))

	if err := c.formulateTorqueLimits(rs); err != nil {
		return err
	}
	return c.formulateCosts(rs, in)
}

// formulateTorqueLimits projects the torque map into actuator space through
// the selection matrix, assumed orthonormal on the actuated rows.
func (c *Controller) formulateTorqueLimits(rs model.RobotState) error {
	ws := &c.ws
	nv, nt := c.topo.NumVd, c.topo.NumTorque
	if nt == 0 {
		return nil
	}
	sel := rs.ActuatorSelection()
	if r, cc := sel.Dims(); r != nv || cc != nt {
		return errors.Wrapf(wbc.ErrInconsistent, "actuator selection is %dx%d, want %dx%d", r, cc, nv, nt)
	}
	bt := sel.Slice(nv-nt, nv, 0, nt).T()

	in, err := c.prog.Inequality(c.handles.TorqueLimits)
	if err != nil {
		return err
	}
	in.A.Mul(bt, ws.torqueLinear)
	var tc mat.VecDense
	tc.MulVec(bt, ws.torqueConstant)
	for i, a := range rs.Actuators() {
		in.Lower.SetVec(i, a.EffortMin-tc.AtVec(i))
		in.Upper.SetVec(i, a.EffortMax-tc.AtVec(i))
	}
	return nil
}

func (c *Controller) formulateCosts(rs model.RobotState, in *wbc.QPInput) error {
	ws := &c.ws
	nv := c.topo.NumVd

	ws.comJ = rs.COMJacobian()
	ws.comJdv = rs.COMJacobianDotTimesV()
	com := []float64{in.DesiredCOMAcc.X, in.DesiredCOMAcc.Y, in.DesiredCOMAcc.Z}
	if err := c.setTrackingCost(c.handles.COMCost, comCostName, in.WCOM, ws.comJ, ws.comJdv, com); err != nil {
		return err
	}

	for i, b := range in.BodyAccelerations {
		j, err := rs.BodyJacobian(b.Body)
		if err != nil {
			return errors.Wrapf(err, "body %s jacobian", b.Body)
		}
		jdv, err := rs.BodyJacobianDotTimesV(b.Body)
		if err != nil {
			return errors.Wrapf(err, "body %s jdot*v", b.Body)
		}
		// A linear task uses the lower three rows of the spatial Jacobian.
		if b.Dim() == 3 {
			j = mat.DenseCopyOf(j.Slice(3, 6, 0, nv))
			jdv = mat.VecDenseCopyOf(jdv.SliceVec(3, 6))
		}
		ws.bodyJ[i], ws.bodyJdv[i] = j, jdv
		if err := c.setTrackingCost(c.handles.BodyCosts[i], bodyCostName(b), b.Weight, j, jdv, b.Acceleration); err != nil {
			return err
		}
	}

	// w/2·‖vd − vd_d‖²
	reg, err := c.prog.Cost(c.handles.VdReg)
	if err != nil {
		return err
	}
	reg.Q.Zero()
	for i := 0; i < nv; i++ {
		reg.Q.Set(i, i, in.WVd)
		reg.B.SetVec(i, -in.WVd*in.DesiredVd[i])
	}
	reg.C = 0.5 * in.WVd * floats.Dot(in.DesiredVd, in.DesiredVd)

	breg, err := c.prog.Cost(c.handles.BasisReg)
	if err != nil {
		return err
	}
	for i := 0; i < c.topo.NumBasis; i++ {
		breg.Q.Set(i, i, in.WBasisReg)
	}
	return nil
}

// setTrackingCost writes w/2·‖J·vd + Jdot·v − desired‖² into a cost record.
func (c *Controller) setTrackingCost(h qp.Handle, name string, w float64, j *mat.Dense, jdv *mat.VecDense, desired []float64) error {
	cost, err := c.prog.Cost(h)
	if err != nil {
		return err
	}
	cost.Description = name
	e := c.ws.task.SliceVec(0, len(desired)).(*mat.VecDense)
	e.SubVec(jdv, mat.NewVecDense(len(desired), desired))

	cost.Q.Mul(j.T(), j)
	cost.Q.Scale(w, cost.Q)
	cost.B.MulVec(j.T(), e)
	cost.B.ScaleVec(w, cost.B)
	cost.C = 0.5 * w * mat.Dot(e, e)
	return nil
}
