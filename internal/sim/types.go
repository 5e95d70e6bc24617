package sim

import (
	"fmt"
	"time"

	"gonum.org/v1/gonum/spatial/r3"

	"github.com/san-kum/wbqp/internal/model"
	"github.com/san-kum/wbqp/internal/wbc"
)

// Plant is a robot the loop can both query and integrate.
type Plant interface {
	model.RobotState
	Velocity() []float64
	SetVelocity(v []float64) error
	Advance(dt float64)
	Reset()
	Valid() bool
}

// Planner builds the controller input for the current cycle.
type Planner interface {
	Plan(p Plant, t float64) (*wbc.QPInput, error)
}

// Integrator applies a generalized acceleration to the plant over dt.
type Integrator interface {
	Step(p Plant, vd []float64, dt float64) error
}

type Metric interface {
	Name() string
	Observe(s Step)
	Value() float64
	Reset()
}

type Observer interface {
	OnCycle(s Step)
}

// Step records one control cycle.
type Step struct {
	Cycle      int
	Time       float64
	Status     wbc.Status
	Err        error
	SolveTime  time.Duration
	Iterations int

	COM    r3.Vec
	COMVel r3.Vec
	COMAcc r3.Vec
	Vd     []float64
	Torque []float64

	ContactForce   r3.Vec
	WrenchResidual float64
	Cost           float64
}

// OK reports whether the controller produced a fresh output this cycle.
func (s Step) OK() bool { return s.Status == wbc.StatusSuccess }

type Config struct {
	Dt            float64
	Cycles        int
	Seed          int64
	StopOnFailure bool
}

func DefaultConfig() Config {
	return Config{
		Dt:     0.002,
		Cycles: 500,
		Seed:   42,
	}
}

// Duration is the simulated time span of a full run.
func (c Config) Duration() float64 { return c.Dt * float64(c.Cycles) }

type Result struct {
	Steps    []Step
	Metrics  map[string]float64
	Failures int
}

// Times returns the cycle start times.
func (r *Result) Times() []float64 {
	ts := make([]float64, len(r.Steps))
	for i, s := range r.Steps {
		ts[i] = s.Time
	}
	return ts
}

// SimError reports a run that had to stop early.
type SimError struct {
	Time    float64
	Step    int
	Message string
}

func (e SimError) Error() string {
	return fmt.Sprintf("step %d (t=%.4f): %s", e.Step, e.Time, e.Message)
}
