package experiment

import (
	"context"
	"math"
	"testing"

	"gonum.org/v1/gonum/num/quat"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/san-kum/wbqp/internal/config"
	"github.com/san-kum/wbqp/internal/model"
	"github.com/san-kum/wbqp/internal/sim"
	"github.com/san-kum/wbqp/internal/wbc"
)

func scenarioConfig(name string, cycles int) *config.Config {
	cfg := config.DefaultConfig()
	cfg.Run.Scenario = name
	cfg.Run.Cycles = cycles
	return cfg
}

func TestScenarioRegistry(t *testing.T) {
	names := ListScenarios()
	if len(names) != 5 {
		t.Fatalf("expected 5 scenarios, got %v", names)
	}
	for _, name := range names {
		sc, err := GetScenario(name)
		if err != nil {
			t.Fatalf("%s: %v", name, err)
		}
		if sc.Name != name || len(sc.Feet) == 0 {
			t.Errorf("%s: malformed scenario %+v", name, sc)
		}
	}
	if _, err := GetScenario("walking"); err == nil {
		t.Error("expected error for unknown scenario")
	}
}

func TestRegulatorRegistry(t *testing.T) {
	run := config.DefaultConfig().Run
	for _, name := range ListRegulators() {
		if _, err := GetRegulator(name, run, r3.Vec{}); err != nil {
			t.Errorf("%s: %v", name, err)
		}
	}
	if _, err := GetRegulator("lqr", run, r3.Vec{}); err == nil {
		t.Error("expected error for unknown regulator")
	}
}

func TestNewRejectsBadConfig(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*config.Config)
	}{
		{"scenario", func(c *config.Config) { c.Run.Scenario = "walking" }},
		{"integrator", func(c *config.Config) { c.Run.Integrator = "rk4" }},
		{"regulator", func(c *config.Config) { c.Run.Regulator = "lqr" }},
		{"solver", func(c *config.Config) { c.Controller.Solver = "gurobi" }},
		{"dt", func(c *config.Config) { c.Run.Dt = 0 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := config.DefaultConfig()
			tt.mutate(cfg)
			if _, err := New(cfg); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestDoubleSupportHolds(t *testing.T) {
	e, err := New(scenarioConfig("double_support", 100))
	if err != nil {
		t.Fatal(err)
	}
	com := e.Robot().COM()

	result, err := e.Run(context.Background())
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if result.Failures != 0 {
		t.Fatalf("expected no failures, got %d: %v", result.Failures, firstError(result))
	}
	if d := r3.Norm(r3.Sub(e.Robot().COM(), com)); d > 1e-3 {
		t.Errorf("expected CoM to hold, moved %g", d)
	}
	if result.Metrics["success_rate"] != 1 {
		t.Errorf("expected success rate 1, got %f", result.Metrics["success_rate"])
	}
	if result.Metrics["wrench_residual"] > 1e-3 {
		t.Errorf("expected wrench balance, got %g", result.Metrics["wrench_residual"])
	}
}

func TestCOMShiftTracks(t *testing.T) {
	cfg := scenarioConfig("com_shift", 1000)
	cfg.Run.Shift = [3]float64{0.03, 0, 0}
	e, err := New(cfg)
	if err != nil {
		t.Fatal(err)
	}
	target := r3.Add(e.Robot().COM(), r3.Vec{X: 0.03})

	result, err := e.Run(context.Background())
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if result.Failures != 0 {
		t.Fatalf("expected no failures, got %d: %v", result.Failures, firstError(result))
	}
	if d := r3.Norm(r3.Sub(e.Robot().COM(), target)); d > 5e-3 {
		t.Errorf("expected CoM near %v, got %v", target, e.Robot().COM())
	}
	// the feet hold the torso upright
	if q := quat.Number(e.Robot().Rotation()); math.Abs(q.Real-1) > 1e-6 {
		t.Errorf("expected upright torso, got %v", q)
	}
}

func TestSingleSupportHolds(t *testing.T) {
	for _, name := range config.ListPresets("single_support") {
		t.Run(name, func(t *testing.T) {
			cfg := config.GetPreset("single_support", name)
			e, err := New(cfg)
			if err != nil {
				t.Fatal(err)
			}
			if len(e.Planner().Contacts()) != 1 {
				t.Fatalf("expected 1 contact, got %d", len(e.Planner().Contacts()))
			}
			stance, _, err := e.Robot().BodyPose(model.BodyLeftFoot)
			if err != nil {
				t.Fatal(err)
			}
			com := e.Robot().COM()
			if math.Abs(stance.X-com.X) > 1e-12 || math.Abs(stance.Y-com.Y) > 1e-12 {
				t.Fatalf("expected the stance foot under the CoM, got foot %v com %v", stance, com)
			}

			result, err := e.Run(context.Background())
			if err != nil {
				t.Fatalf("run failed: %v", err)
			}
			if len(result.Steps) != cfg.Run.Cycles {
				t.Fatalf("expected %d cycles, got %d", cfg.Run.Cycles, len(result.Steps))
			}
			if result.Failures != 0 {
				t.Fatalf("expected no failures, got %d: %v", result.Failures, firstError(result))
			}
			target := e.Target(cfg.Run.Dt * float64(cfg.Run.Cycles))
			if d := r3.Norm(r3.Sub(e.Robot().COM(), target)); d > 5e-3 {
				t.Errorf("expected CoM near %v, got %v", target, e.Robot().COM())
			}
			if v := sim.COMVelocity(e.Robot()); r3.Norm(v) > 1e-2 {
				t.Errorf("expected the CoM to settle, velocity %v", v)
			}
			swing, _, err := e.Robot().BodyPose(model.BodyRightFoot)
			if err != nil {
				t.Fatal(err)
			}
			if swing.Z < swingLift/2 {
				t.Errorf("expected the swing foot off the ground, got z=%f", swing.Z)
			}
		})
	}
}

func TestFailingScenarios(t *testing.T) {
	tests := []struct {
		scenario string
		status   wbc.Status
	}{
		{"infeasible_torque", wbc.StatusNoSolution},
		{"unavailable_solver", wbc.StatusSolverUnavailable},
	}
	for _, tt := range tests {
		t.Run(tt.scenario, func(t *testing.T) {
			e, err := New(scenarioConfig(tt.scenario, 5))
			if err != nil {
				t.Fatal(err)
			}
			com := e.Robot().COM()
			result, err := e.Run(context.Background())
			if err != nil {
				t.Fatalf("run failed: %v", err)
			}
			if result.Failures != 5 {
				t.Errorf("expected 5 failures, got %d", result.Failures)
			}
			for _, s := range result.Steps {
				if s.Status != tt.status {
					t.Errorf("cycle %d: expected %v, got %v", s.Cycle, tt.status, s.Status)
				}
			}
			if e.Robot().COM() != com {
				t.Error("expected robot to hold still without a fresh output")
			}
		})
	}
}

func TestPerturbationKeepsFeetStill(t *testing.T) {
	cfg := scenarioConfig("double_support", 10)
	cfg.Run.Perturbation = 0.1
	e, err := New(cfg)
	if err != nil {
		t.Fatal(err)
	}

	v := e.Robot().Velocity()
	if v[3] == 0 && v[4] == 0 {
		t.Fatal("expected a perturbed base velocity")
	}
	for _, foot := range []string{model.BodyLeftFoot, model.BodyRightFoot} {
		j, err := e.Robot().PointJacobian(foot, []r3.Vec{{}})
		if err != nil {
			t.Fatal(err)
		}
		for r := 0; r < 3; r++ {
			var fv float64
			for c, vc := range v {
				fv += j.At(r, c) * vc
			}
			if math.Abs(fv) > 1e-12 {
				t.Errorf("%s: foot velocity row %d = %g", foot, r, fv)
			}
		}
	}

	result, err := e.Run(context.Background())
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if result.Failures != 0 {
		t.Errorf("expected no failures, got %d: %v", result.Failures, firstError(result))
	}
}

func TestSeedDeterminism(t *testing.T) {
	cfg := scenarioConfig("double_support", 1)
	cfg.Run.Perturbation = 0.1
	a, _ := New(cfg)
	b, _ := New(cfg.Clone())
	va, vb := a.Robot().Velocity(), b.Robot().Velocity()
	for i := range va {
		if va[i] != vb[i] {
			t.Fatalf("velocity[%d]: %g != %g", i, va[i], vb[i])
		}
	}
}

func TestFactoryEnsemble(t *testing.T) {
	cfg := scenarioConfig("double_support", 5)
	cfg.Run.Perturbation = 0.02
	results, err := sim.NewEnsemble(Factory(cfg), 3, 1).Run(context.Background(), cfg.SimConfig())
	if err != nil {
		t.Fatalf("ensemble failed: %v", err)
	}
	if len(results) != 3 {
		t.Fatalf("expected 3 results, got %d", len(results))
	}
	if results[0].Steps[0].COMVel == results[1].Steps[0].COMVel {
		t.Error("expected different seeds to perturb differently")
	}
}

func TestOrientationError(t *testing.T) {
	half := 0.05
	q := quat.Number{Real: math.Cos(half), Kmag: math.Sin(half)}
	e := orientationError(q)
	if math.Abs(e.Z-2*math.Sin(half)) > 1e-12 || e.X != 0 {
		t.Errorf("unexpected error %v", e)
	}
	if neg := orientationError(quat.Scale(-1, q)); neg != e {
		t.Errorf("expected sign invariance, got %v and %v", e, neg)
	}
}

func firstError(r *sim.Result) error {
	for _, s := range r.Steps {
		if s.Err != nil {
			return s.Err
		}
	}
	return nil
}
