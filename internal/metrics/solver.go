package metrics

import (
	"math"

	"github.com/san-kum/wbqp/internal/sim"
)

// SuccessRate is the fraction of cycles that produced a fresh output.
type SuccessRate struct {
	ok, samples int
}

func NewSuccessRate() *SuccessRate { return &SuccessRate{} }

func (s *SuccessRate) Name() string { return "success_rate" }

func (s *SuccessRate) Observe(step sim.Step) {
	s.samples++
	if step.OK() {
		s.ok++
	}
}

func (s *SuccessRate) Value() float64 {
	if s.samples == 0 {
		return 0
	}
	return float64(s.ok) / float64(s.samples)
}

func (s *SuccessRate) Reset() { s.ok, s.samples = 0, 0 }

// SolveTime is the mean wall time of Control in milliseconds.
type SolveTime struct {
	sum     float64
	samples int
}

func NewSolveTime() *SolveTime { return &SolveTime{} }

func (s *SolveTime) Name() string { return "solve_time_ms" }

func (s *SolveTime) Observe(step sim.Step) {
	s.sum += float64(step.SolveTime.Microseconds()) / 1000
	s.samples++
}

func (s *SolveTime) Value() float64 {
	if s.samples == 0 {
		return 0
	}
	return s.sum / float64(s.samples)
}

func (s *SolveTime) Reset() { s.sum, s.samples = 0, 0 }

// WrenchResidual is the worst |m (a - g) - sum f| over successful cycles.
type WrenchResidual struct {
	max float64
}

func NewWrenchResidual() *WrenchResidual { return &WrenchResidual{} }

func (w *WrenchResidual) Name() string { return "wrench_residual" }

func (w *WrenchResidual) Observe(step sim.Step) {
	if step.OK() {
		w.max = math.Max(w.max, step.WrenchResidual)
	}
}

func (w *WrenchResidual) Value() float64 { return w.max }
func (w *WrenchResidual) Reset()         { w.max = 0 }

// Cost is the mean total QP objective over successful cycles.
type Cost struct {
	sum     float64
	samples int
}

func NewCost() *Cost { return &Cost{} }

func (c *Cost) Name() string { return "cost" }

func (c *Cost) Observe(step sim.Step) {
	if !step.OK() {
		return
	}
	c.sum += step.Cost
	c.samples++
}

func (c *Cost) Value() float64 {
	if c.samples == 0 {
		return 0
	}
	return c.sum / float64(c.samples)
}

func (c *Cost) Reset() { c.sum, c.samples = 0, 0 }
