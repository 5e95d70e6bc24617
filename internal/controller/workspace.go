package controller

import (
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/san-kum/wbqp/internal/wbc"
)

// workspace holds the buffers reused across cycles. Sizes follow the
// topology and only change on rebuild.
type workspace struct {
	jc    *mat.Dense    // stacked contact Jacobian, P x nv
	basis *mat.Dense    // block diagonal basis, P x B
	jcdv  *mat.VecDense // stacked Jdot*v, P
	jb    *mat.Dense    // Jcᵀ*basis, nv x B

	torqueLinear   *mat.Dense // T x N
	torqueConstant *mat.VecDense
	dynLinear      *mat.Dense // 6 x N

	// cached per cycle for the decomposer
	bodyJ   []*mat.Dense
	bodyJdv []*mat.VecDense
	comJ    *mat.Dense
	comJdv  *mat.VecDense
	points  [][]r3.Vec
	refs    []r3.Vec

	task   *mat.VecDense
	out    wbc.QPOutput
	forces *mat.VecDense
}

func (w *workspace) resize(t Topology) {
	nv, n, p, b := t.NumVd, t.NumVariables, t.NumPointForces, t.NumBasis
	w.jc = dense(p, nv)
	w.basis = dense(p, b)
	w.jcdv = vec(p)
	w.jb = dense(nv, b)
	w.forces = vec(p)
	w.torqueLinear = dense(t.NumTorque, n)
	w.torqueConstant = vec(t.NumTorque)
	w.dynLinear = dense(6, n)
	w.bodyJ = make([]*mat.Dense, t.NumBodyMotions)
	w.bodyJdv = make([]*mat.VecDense, t.NumBodyMotions)
	w.points = make([][]r3.Vec, t.NumContacts)
	w.refs = make([]r3.Vec, t.NumContacts)
	w.task = vec(6)
}

func (w *workspace) zero() {
	for _, m := range []*mat.Dense{w.jc, w.basis, w.jb, w.torqueLinear, w.dynLinear} {
		if !m.IsEmpty() {
			m.Zero()
		}
	}
	for _, v := range []*mat.VecDense{w.jcdv, w.torqueConstant, w.forces} {
		if !v.IsEmpty() {
			v.Zero()
		}
	}
}

func dense(r, c int) *mat.Dense {
	if r == 0 || c == 0 {
		return &mat.Dense{}
	}
	return mat.NewDense(r, c, nil)
}

func vec(n int) *mat.VecDense {
	if n == 0 {
		return &mat.VecDense{}
	}
	return mat.NewVecDense(n, nil)
}
