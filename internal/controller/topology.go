package controller

import (
	"slices"

	"github.com/san-kum/wbqp/internal/model"
	"github.com/san-kum/wbqp/internal/qp"
	"github.com/san-kum/wbqp/internal/wbc"
)

// Topology is the set of QP dimensions implied by the contacts and tracked
// body motions of a cycle. Two cycles with equal topologies share the same
// program structure and handles.
type Topology struct {
	NumContacts    int
	NumVd          int
	NumBasis       int
	NumPointForces int
	NumTorque      int
	NumVariables   int
	NumBodyMotions int

	// per-contact point and basis counts, per-task dimensions
	contactShape []int
	taskDims     []int
}

func computeTopology(nv, nTorque int, in *wbc.QPInput) Topology {
	t := Topology{
		NumContacts:    len(in.Contacts),
		NumVd:          nv,
		NumTorque:      nTorque,
		NumBodyMotions: len(in.BodyAccelerations),
	}
	for _, c := range in.Contacts {
		t.NumBasis += c.NumBasis()
		t.NumPointForces += c.ForceDim()
		t.contactShape = append(t.contactShape, c.NumContactPoints(), c.NumBasisPerPoint)
	}
	for _, b := range in.BodyAccelerations {
		t.taskDims = append(t.taskDims, b.Dim())
	}
	t.NumVariables = t.NumVd + t.NumBasis
	return t
}

func (t Topology) Equal(o Topology) bool {
	return t.NumContacts == o.NumContacts &&
		t.NumVd == o.NumVd &&
		t.NumBasis == o.NumBasis &&
		t.NumPointForces == o.NumPointForces &&
		t.NumTorque == o.NumTorque &&
		t.NumVariables == o.NumVariables &&
		t.NumBodyMotions == o.NumBodyMotions &&
		slices.Equal(t.contactShape, o.contactShape) &&
		slices.Equal(t.taskDims, o.taskDims)
}

// Handles address the program records declared by the last rebuild. They
// are only valid for the topology version they carry.
type Handles struct {
	Version int

	Vd    qp.Variables
	Basis qp.Variables

	Dynamics     qp.Handle
	Contacts     []qp.Handle
	BasisBounds  qp.Handle
	TorqueLimits qp.Handle

	COMCost   qp.Handle
	BodyCosts []qp.Handle
	VdReg     qp.Handle
	BasisReg  qp.Handle
}

func (h Handles) clone() Handles {
	h.Contacts = slices.Clone(h.Contacts)
	h.BodyCosts = slices.Clone(h.BodyCosts)
	return h
}

// resize rebuilds the program when the topology changed. It reports whether
// a rebuild happened.
func (c *Controller) resize(t Topology, in *wbc.QPInput) bool {
	if c.built && c.topo.Equal(t) {
		return false
	}

	p := c.prog
	p.Reset()
	h := Handles{Version: c.handles.Version + 1}

	h.Vd = p.AddVariables("vd", t.NumVd)
	h.Basis = p.AddVariables("basis", t.NumBasis)

	h.Dynamics = p.AddLinearEquality("dynamics eq", model.NumFloatingBase, h.Vd, h.Basis)
	for _, ci := range in.Contacts {
		h.Contacts = append(h.Contacts, p.AddLinearEquality(contactEqName(ci), ci.ForceDim(), h.Vd))
	}
	h.BasisBounds = p.AddBoundingBox("contact force basis ineq", 0, c.cfg.BasisUpperBound, h.Basis)
	h.TorqueLimits = p.AddLinearInequality("torque limit ineq", t.NumTorque, h.Vd, h.Basis)

	h.COMCost = p.AddQuadraticCost(comCostName, h.Vd)
	for _, b := range in.BodyAccelerations {
		h.BodyCosts = append(h.BodyCosts, p.AddQuadraticCost(bodyCostName(b), h.Vd))
	}
	h.VdReg = p.AddQuadraticCost("vd reg cost", h.Vd)
	h.BasisReg = p.AddQuadraticCost("basis reg cost", h.Basis)

	c.ws.resize(t)
	c.topo = t
	c.handles = h
	c.built = true
	return true
}

// Record names follow the cycle input. Names are not part of the topology,
// so formulate rewrites them on every cycle.
const comCostName = "com cost"

func contactEqName(ci wbc.ContactInformation) string { return ci.Name + " contact eq" }

func bodyCostName(b wbc.DesiredBodyAcceleration) string { return b.Name + " cost" }
