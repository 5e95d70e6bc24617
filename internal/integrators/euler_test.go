package integrators

import (
	"math"
	"testing"

	"github.com/san-kum/wbqp/internal/model"
	"github.com/san-kum/wbqp/internal/sim"
)

func freeFall(b *model.Biped) []float64 {
	vd := make([]float64, b.NumVelocities())
	vd[5] = -b.Params().Gravity
	return vd
}

func TestFreeFall(t *testing.T) {
	const (
		dt    = 0.01
		steps = 50
	)
	tests := []struct {
		name  string
		integ sim.Integrator
		drop  float64 // multiples of g*dt^2
	}{
		{"euler", NewEuler(), steps * (steps - 1) / 2},
		{"semi implicit", NewSemiImplicitEuler(), steps * (steps + 1) / 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := model.NewBiped(model.DefaultBipedParams())
			z0 := b.COM().Z
			vd := freeFall(b)
			for i := 0; i < steps; i++ {
				if err := tt.integ.Step(b, vd, dt); err != nil {
					t.Fatalf("step %d: %v", i, err)
				}
			}

			g := b.Params().Gravity
			expected := z0 - g*dt*dt*tt.drop
			if math.Abs(b.COM().Z-expected) > 1e-9 {
				t.Errorf("expected z=%.9f, got %.9f", expected, b.COM().Z)
			}
			if vz := b.Velocity()[5]; math.Abs(vz+g*dt*steps) > 1e-9 {
				t.Errorf("expected vz=%.6f, got %.6f", -g*dt*steps, vz)
			}
		})
	}
}

func TestStepDimension(t *testing.T) {
	b := model.NewBiped(model.DefaultBipedParams())
	if err := NewSemiImplicitEuler().Step(b, []float64{1}, 0.01); err == nil {
		t.Error("expected error for short acceleration")
	}
}

func TestNew(t *testing.T) {
	for _, name := range Names() {
		if _, err := New(name); err != nil {
			t.Errorf("%s: %v", name, err)
		}
	}
	if _, err := New("rk4"); err == nil {
		t.Error("expected error for unknown integrator")
	}
}

func BenchmarkSemiImplicitEuler(bm *testing.B) {
	b := model.NewBiped(model.DefaultBipedParams())
	vd := make([]float64, b.NumVelocities())
	integ := NewSemiImplicitEuler()
	bm.ResetTimer()
	for i := 0; i < bm.N; i++ {
		integ.Step(b, vd, 1e-3)
	}
}
