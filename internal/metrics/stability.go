package metrics

import (
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/san-kum/wbqp/internal/sim"
)

// Stability is the fraction of cycles whose CoM stays within threshold of
// where the run started.
type Stability struct {
	name       string
	threshold  float64
	origin     r3.Vec
	violations int
	samples    int
}

func NewStability(threshold float64) *Stability {
	return &Stability{
		name:      "stability",
		threshold: threshold,
	}
}

func (s *Stability) Name() string {
	return s.name
}

func (s *Stability) Observe(step sim.Step) {
	if s.samples == 0 {
		s.origin = step.COM
	}
	s.samples++
	if r3.Norm(r3.Sub(step.COM, s.origin)) > s.threshold {
		s.violations++
	}
}

func (s *Stability) Value() float64 {
	if s.samples == 0 {
		return 1.0
	}
	return 1.0 - float64(s.violations)/float64(s.samples)
}

func (s *Stability) Reset() {
	s.violations = 0
	s.samples = 0
	s.origin = r3.Vec{}
}
