package control

import "gonum.org/v1/gonum/spatial/r3"

// Regulator maps the CoM state to a desired CoM acceleration.
type Regulator interface {
	Compute(com, vel r3.Vec, t float64) r3.Vec
	Reset()
}

// Tunable exposes parameters for live adjustment.
type Tunable interface {
	GetParams() map[string]float64
	SetParam(name string, value float64)
}

type None struct{}

func NewNone() *None { return &None{} }

func (n *None) Compute(com, vel r3.Vec, t float64) r3.Vec { return r3.Vec{} }
func (n *None) Reset()                                    {}

// Manual returns whatever acceleration was last commanded.
type Manual struct {
	acc r3.Vec
}

func NewManual() *Manual { return &Manual{} }

// SetAcceleration updates the commanded acceleration.
func (m *Manual) SetAcceleration(acc r3.Vec) { m.acc = acc }

// Nudge adds delta to the commanded acceleration.
func (m *Manual) Nudge(delta r3.Vec) { m.acc = r3.Add(m.acc, delta) }

func (m *Manual) Compute(com, vel r3.Vec, t float64) r3.Vec { return m.acc }
func (m *Manual) Reset()                                    { m.acc = r3.Vec{} }
