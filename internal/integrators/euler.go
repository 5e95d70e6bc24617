// Package integrators advances a plant by one control period given the
// generalized acceleration chosen by the controller.
package integrators

import (
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/floats"

	"github.com/san-kum/wbqp/internal/sim"
)

// Euler moves positions with the old velocity, then updates the velocity.
type Euler struct {
	scratch []float64
}

func NewEuler() *Euler {
	return &Euler{}
}

func (e *Euler) Step(p sim.Plant, vd []float64, dt float64) error {
	v, err := velocity(p, vd, &e.scratch)
	if err != nil {
		return err
	}
	p.Advance(dt)
	floats.AddScaled(v, dt, vd)
	return p.SetVelocity(v)
}

// SemiImplicitEuler updates the velocity first and moves positions with the
// new one. It keeps stance feet in place when vd satisfies the contact
// constraints.
type SemiImplicitEuler struct {
	scratch []float64
}

func NewSemiImplicitEuler() *SemiImplicitEuler {
	return &SemiImplicitEuler{}
}

func (s *SemiImplicitEuler) Step(p sim.Plant, vd []float64, dt float64) error {
	v, err := velocity(p, vd, &s.scratch)
	if err != nil {
		return err
	}
	floats.AddScaled(v, dt, vd)
	if err := p.SetVelocity(v); err != nil {
		return err
	}
	p.Advance(dt)
	return nil
}

func velocity(p sim.Plant, vd []float64, scratch *[]float64) ([]float64, error) {
	v := p.Velocity()
	if len(vd) != len(v) {
		return nil, errors.Errorf("acceleration has %d entries, plant has %d velocities", len(vd), len(v))
	}
	*scratch = append((*scratch)[:0], v...)
	return *scratch, nil
}

const (
	NameEuler             = "euler"
	NameSemiImplicitEuler = "semi_implicit_euler"
)

// New returns the integrator registered under name.
func New(name string) (sim.Integrator, error) {
	switch name {
	case NameEuler:
		return NewEuler(), nil
	case NameSemiImplicitEuler, "":
		return NewSemiImplicitEuler(), nil
	default:
		return nil, errors.Errorf("unknown integrator: %s", name)
	}
}

func Names() []string {
	return []string{NameEuler, NameSemiImplicitEuler}
}
