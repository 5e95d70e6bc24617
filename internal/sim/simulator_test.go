package sim

import (
	"context"
	"math"
	"testing"

	"gonum.org/v1/gonum/spatial/r3"

	"github.com/san-kum/wbqp/internal/qp"
	"github.com/san-kum/wbqp/internal/wbc"
)

func TestSimulatorRun(t *testing.T) {
	s := newSimulator(activeSet(), stancePlanner{})
	metric := &countingMetric{}
	obs := &recordingObserver{}
	s.AddMetric(metric)
	s.AddObserver(obs)

	z0 := s.Plant().COM()
	result, err := s.Run(context.Background(), Config{Dt: 0.002, Cycles: 20})
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}

	if len(result.Steps) != 20 {
		t.Errorf("expected 20 steps, got %d", len(result.Steps))
	}
	if result.Failures != 0 {
		t.Errorf("expected no failures, got %d", result.Failures)
	}
	if metric.ok != 20 {
		t.Errorf("expected 20 successful observations, got %d", metric.ok)
	}
	if result.Metrics["count"] != 20 {
		t.Errorf("expected metric value 20, got %f", result.Metrics["count"])
	}
	if len(obs.cycles) != 20 || obs.cycles[19] != 19 {
		t.Errorf("expected observer to see cycles 0..19, got %v", obs.cycles)
	}

	if d := r3.Norm(r3.Sub(s.Plant().COM(), z0)); d > 1e-3 {
		t.Errorf("expected standing robot to stay put, moved %g", d)
	}
	last := result.Steps[len(result.Steps)-1]
	if last.WrenchResidual > 1e-3 {
		t.Errorf("expected wrench balance, residual %g", last.WrenchResidual)
	}
	if last.ContactForce.Z <= 0 {
		t.Errorf("expected positive vertical contact force, got %f", last.ContactForce.Z)
	}
	if len(last.Torque) != 6 {
		t.Errorf("expected 6 torques, got %d", len(last.Torque))
	}
	if times := result.Times(); math.Abs(times[10]-0.02) > 1e-12 {
		t.Errorf("expected t=0.02 at cycle 10, got %f", times[10])
	}
}

func TestSimulatorHoldsAccelerationOnFailure(t *testing.T) {
	s := newSimulator(qp.Unavailable{}, stancePlanner{})
	com := s.Plant().COM()

	result, err := s.Run(context.Background(), Config{Dt: 0.01, Cycles: 10})
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if result.Failures != 10 {
		t.Errorf("expected 10 failures, got %d", result.Failures)
	}
	for _, step := range result.Steps {
		if step.Status != wbc.StatusSolverUnavailable {
			t.Fatalf("expected solver unavailable, got %v", step.Status)
		}
		if step.Err == nil {
			t.Fatal("expected cycle error")
		}
	}
	// vd stays at its zero initial value
	if s.Plant().COM() != com {
		t.Errorf("expected robot at rest, got %v", s.Plant().COM())
	}
}

func TestSimulatorStopOnFailure(t *testing.T) {
	s := newSimulator(qp.Unavailable{}, stancePlanner{})
	result, err := s.Run(context.Background(), Config{Dt: 0.01, Cycles: 10, StopOnFailure: true})
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if len(result.Steps) != 1 {
		t.Errorf("expected 1 step, got %d", len(result.Steps))
	}
}

func TestSimulatorPlannerError(t *testing.T) {
	s := newSimulator(activeSet(), failingPlanner{})
	if _, err := s.Run(context.Background(), Config{Dt: 0.01, Cycles: 10}); err == nil {
		t.Error("expected planner error")
	}
}

func TestSimulatorCancelled(t *testing.T) {
	s := newSimulator(activeSet(), stancePlanner{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	result, err := s.Run(ctx, Config{Dt: 0.01, Cycles: 10})
	if err != context.Canceled {
		t.Errorf("expected context.Canceled, got %v", err)
	}
	if len(result.Steps) != 0 {
		t.Errorf("expected no steps, got %d", len(result.Steps))
	}
}

func TestSimulatorInvalidConfig(t *testing.T) {
	s := newSimulator(activeSet(), stancePlanner{})

	tests := []struct {
		name string
		cfg  Config
	}{
		{"zero dt", Config{Dt: 0, Cycles: 10}},
		{"negative dt", Config{Dt: -0.1, Cycles: 10}},
		{"zero cycles", Config{Dt: 0.1, Cycles: 0}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := s.Run(context.Background(), tt.cfg); err == nil {
				t.Error("expected error, got nil")
			}
		})
	}
}

func TestEnsemble(t *testing.T) {
	seeds := make(chan int64, 4)
	factory := func(seed int64) (*Simulator, error) {
		seeds <- seed
		return newSimulator(activeSet(), stancePlanner{}), nil
	}

	e := NewEnsemble(factory, 4, 100)
	e.SetLimit(2)
	results, err := e.Run(context.Background(), Config{Dt: 0.002, Cycles: 5})
	if err != nil {
		t.Fatalf("ensemble failed: %v", err)
	}
	close(seeds)

	if len(results) != 4 {
		t.Fatalf("expected 4 results, got %d", len(results))
	}
	for i, r := range results {
		if len(r.Steps) != 5 {
			t.Errorf("run %d: expected 5 steps, got %d", i, len(r.Steps))
		}
	}
	seen := map[int64]bool{}
	for s := range seeds {
		seen[s] = true
	}
	for s := int64(100); s < 104; s++ {
		if !seen[s] {
			t.Errorf("seed %d not used", s)
		}
	}
}

func TestEnsemblePropagatesErrors(t *testing.T) {
	factory := func(seed int64) (*Simulator, error) {
		return newSimulator(activeSet(), failingPlanner{}), nil
	}
	if _, err := NewEnsemble(factory, 3, 0).Run(context.Background(), Config{Dt: 0.01, Cycles: 2}); err == nil {
		t.Error("expected error from failing member")
	}
}

func TestSessionStepping(t *testing.T) {
	s := newSimulator(activeSet(), stancePlanner{})
	ss, err := s.Start(Config{Dt: 0.01, Cycles: 3})
	if err != nil {
		t.Fatal(err)
	}

	for i := 0; i < 3; i++ {
		if ss.Done() {
			t.Fatalf("session done after %d cycles", i)
		}
		if math.Abs(ss.Time()-0.01*float64(i)) > 1e-12 {
			t.Errorf("expected t=%f, got %f", 0.01*float64(i), ss.Time())
		}
		step, err := ss.Next()
		if err != nil {
			t.Fatalf("cycle %d: %v", i, err)
		}
		if step.Cycle != i || !step.OK() {
			t.Errorf("unexpected step %+v", step)
		}
		if len(ss.Output().JointTorque) != 6 {
			t.Errorf("expected output with 6 torques, got %d", len(ss.Output().JointTorque))
		}
	}
	if !ss.Done() {
		t.Error("expected session done")
	}
	if _, err := ss.Next(); err == nil {
		t.Error("expected error stepping a finished session")
	}
	if len(ss.Result().Steps) != 3 {
		t.Errorf("expected 3 steps, got %d", len(ss.Result().Steps))
	}
}
