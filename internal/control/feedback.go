package control

import (
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/spatial/r3"
)

// StateFeedback computes acc = −K·[com − target; vel] for a 3x6 gain K.
type StateFeedback struct {
	K      *mat.Dense
	Target r3.Vec
}

func NewStateFeedback(k *mat.Dense, target r3.Vec) *StateFeedback {
	return &StateFeedback{K: k, Target: target}
}

// NewStateFeedbackPD builds the diagonal gain of a per-axis PD law.
func NewStateFeedbackPD(kp, kd float64, target r3.Vec) *StateFeedback {
	k := mat.NewDense(3, 6, nil)
	for i := 0; i < 3; i++ {
		k.Set(i, i, kp)
		k.Set(i, 3+i, kd)
	}
	return NewStateFeedback(k, target)
}

func (s *StateFeedback) Compute(com, vel r3.Vec, t float64) r3.Vec {
	e := r3.Sub(com, s.Target)
	x := mat.NewVecDense(6, []float64{e.X, e.Y, e.Z, vel.X, vel.Y, vel.Z})
	var u mat.VecDense
	u.MulVec(s.K, x)
	return r3.Vec{X: -u.AtVec(0), Y: -u.AtVec(1), Z: -u.AtVec(2)}
}

func (s *StateFeedback) Reset() {}
