package config

import (
	"math"
	"os"

	"github.com/pkg/errors"
	"go.uber.org/multierr"
	"gonum.org/v1/gonum/spatial/r3"
	"gopkg.in/yaml.v3"

	"github.com/san-kum/wbqp/internal/controller"
	"github.com/san-kum/wbqp/internal/model"
	"github.com/san-kum/wbqp/internal/qp"
	"github.com/san-kum/wbqp/internal/sim"
)

const (
	DefaultScenario      = "double_support"
	DefaultIntegrator    = "semi_implicit_euler"
	DefaultRegulator     = "pid"
	DefaultDt            = 0.002
	DefaultCycles        = 500
	DefaultSeed          = 42
	DefaultKp            = 40.0
	DefaultKi            = 0.0
	DefaultKd            = 12.0
	DefaultMu            = 0.8
	DefaultBasisPerPoint = 4
)

type Config struct {
	Controller ControllerConfig `yaml:"controller"`
	Weights    WeightsConfig    `yaml:"weights"`
	Robot      RobotConfig      `yaml:"robot"`
	Run        RunConfig        `yaml:"run"`
}

type ControllerConfig struct {
	BasisUpperBound float64 `yaml:"basis_upper_bound"`
	Tolerance       float64 `yaml:"tolerance"`
	Solver          string  `yaml:"solver"`
	MaxIterations   int     `yaml:"max_iterations"`
	SolverTolerance float64 `yaml:"solver_tolerance"`
	Damping         float64 `yaml:"damping"`
}

type WeightsConfig struct {
	COM      float64 `yaml:"com"`
	Vd       float64 `yaml:"vd"`
	BasisReg float64 `yaml:"basis_reg"`
	Torso    float64 `yaml:"torso"`
}

type RobotConfig struct {
	TorsoMass     float64    `yaml:"torso_mass"`
	TorsoInertia  [3]float64 `yaml:"torso_inertia"`
	HipOffset     float64    `yaml:"hip_offset"`
	StandHeight   float64    `yaml:"stand_height"`
	FootHalfLen   float64    `yaml:"foot_half_length"`
	FootHalfWidth float64    `yaml:"foot_half_width"`
	Armature      float64    `yaml:"armature"`
	EffortLimit   float64    `yaml:"effort_limit"`
	Gravity       float64    `yaml:"gravity"`
	Mu            float64    `yaml:"mu"`
	BasisPerPoint int        `yaml:"basis_per_point"`
}

type RunConfig struct {
	Scenario      string     `yaml:"scenario"`
	Integrator    string     `yaml:"integrator"`
	Regulator     string     `yaml:"regulator"`
	Dt            float64    `yaml:"dt"`
	Cycles        int        `yaml:"cycles"`
	Seed          int64      `yaml:"seed"`
	StopOnFailure bool       `yaml:"stop_on_failure"`
	Perturbation  float64    `yaml:"perturbation"`
	Kp            float64    `yaml:"kp"`
	Ki            float64    `yaml:"ki"`
	Kd            float64    `yaml:"kd"`
	Shift         [3]float64 `yaml:"com_shift"`
}

func DefaultConfig() *Config {
	bp := model.DefaultBipedParams()
	cc := controller.DefaultConfig()
	so := qp.DefaultActiveSetOptions()
	return &Config{
		Controller: ControllerConfig{
			BasisUpperBound: cc.BasisUpperBound,
			Tolerance:       cc.Tolerance,
			Solver:          qp.BackendActiveSet,
			MaxIterations:   so.MaxIterations,
			SolverTolerance: so.Tolerance,
			Damping:         so.Damping,
		},
		Weights: WeightsConfig{
			COM:      1e3,
			Vd:       1e-3,
			BasisReg: 1e-5,
			Torso:    10,
		},
		Robot: RobotConfig{
			TorsoMass:     bp.TorsoMass,
			TorsoInertia:  [3]float64{bp.TorsoInertia.X, bp.TorsoInertia.Y, bp.TorsoInertia.Z},
			HipOffset:     bp.HipOffset,
			StandHeight:   bp.StandHeight,
			FootHalfLen:   bp.FootHalfLen,
			FootHalfWidth: bp.FootHalfWidth,
			Armature:      bp.Armature,
			EffortLimit:   bp.EffortLimit,
			Gravity:       bp.Gravity,
			Mu:            DefaultMu,
			BasisPerPoint: DefaultBasisPerPoint,
		},
		Run: RunConfig{
			Scenario:   DefaultScenario,
			Integrator: DefaultIntegrator,
			Regulator:  DefaultRegulator,
			Dt:         DefaultDt,
			Cycles:     DefaultCycles,
			Seed:       DefaultSeed,
			Kp:         DefaultKp,
			Ki:         DefaultKi,
			Kd:         DefaultKd,
		},
	}
}

func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "read config")
	}
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, errors.Wrapf(err, "parse %s", path)
	}
	return cfg, nil
}

func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// Validate reports every out-of-range setting at once.
func (c *Config) Validate() error {
	var err error
	check := func(ok bool, format string, args ...interface{}) {
		if !ok {
			err = multierr.Append(err, errors.Errorf(format, args...))
		}
	}
	positive := func(v float64) bool { return v > 0 && !math.IsInf(v, 0) }
	nonNegative := func(v float64) bool { return v >= 0 && !math.IsInf(v, 0) }

	check(positive(c.Controller.BasisUpperBound), "controller.basis_upper_bound must be positive, got %g", c.Controller.BasisUpperBound)
	check(positive(c.Controller.Tolerance), "controller.tolerance must be positive, got %g", c.Controller.Tolerance)
	check(c.Controller.MaxIterations >= 0, "controller.max_iterations must not be negative, got %d", c.Controller.MaxIterations)
	check(positive(c.Controller.SolverTolerance), "controller.solver_tolerance must be positive, got %g", c.Controller.SolverTolerance)
	check(nonNegative(c.Controller.Damping), "controller.damping must not be negative, got %g", c.Controller.Damping)

	check(nonNegative(c.Weights.COM), "weights.com must not be negative, got %g", c.Weights.COM)
	check(nonNegative(c.Weights.Vd), "weights.vd must not be negative, got %g", c.Weights.Vd)
	check(nonNegative(c.Weights.BasisReg), "weights.basis_reg must not be negative, got %g", c.Weights.BasisReg)
	check(nonNegative(c.Weights.Torso), "weights.torso must not be negative, got %g", c.Weights.Torso)

	check(positive(c.Robot.TorsoMass), "robot.torso_mass must be positive, got %g", c.Robot.TorsoMass)
	for i, v := range c.Robot.TorsoInertia {
		check(positive(v), "robot.torso_inertia[%d] must be positive, got %g", i, v)
	}
	check(positive(c.Robot.StandHeight), "robot.stand_height must be positive, got %g", c.Robot.StandHeight)
	check(positive(c.Robot.FootHalfLen) && positive(c.Robot.FootHalfWidth), "robot foot size must be positive")
	check(nonNegative(c.Robot.Armature), "robot.armature must not be negative, got %g", c.Robot.Armature)
	check(nonNegative(c.Robot.EffortLimit), "robot.effort_limit must not be negative, got %g", c.Robot.EffortLimit)
	check(nonNegative(c.Robot.Mu), "robot.mu must not be negative, got %g", c.Robot.Mu)
	check(c.Robot.BasisPerPoint >= 1, "robot.basis_per_point must be at least 1, got %d", c.Robot.BasisPerPoint)

	check(positive(c.Run.Dt), "run.dt must be positive, got %g", c.Run.Dt)
	check(c.Run.Cycles > 0, "run.cycles must be positive, got %d", c.Run.Cycles)
	check(nonNegative(c.Run.Perturbation), "run.perturbation must not be negative, got %g", c.Run.Perturbation)
	return err
}

func (c *Config) BipedParams() model.BipedParams {
	r := c.Robot
	return model.BipedParams{
		TorsoMass:     r.TorsoMass,
		TorsoInertia:  r3Vec(r.TorsoInertia),
		HipOffset:     r.HipOffset,
		StandHeight:   r.StandHeight,
		FootHalfLen:   r.FootHalfLen,
		FootHalfWidth: r.FootHalfWidth,
		Armature:      r.Armature,
		EffortLimit:   r.EffortLimit,
		Gravity:       r.Gravity,
	}
}

func (c *Config) ControllerConfig() controller.Config {
	return controller.Config{
		BasisUpperBound: c.Controller.BasisUpperBound,
		Tolerance:       c.Controller.Tolerance,
	}
}

// feasibilityMargin keeps backend solutions well inside the controller's
// post-solve checks.
const feasibilityMargin = 0.01

func (c *Config) SolverOptions() qp.ActiveSetOptions {
	return qp.ActiveSetOptions{
		MaxIterations:        c.Controller.MaxIterations,
		Tolerance:            c.Controller.SolverTolerance,
		FeasibilityTolerance: feasibilityMargin * c.Controller.Tolerance,
		Damping:              c.Controller.Damping,
	}
}

func (c *Config) SimConfig() sim.Config {
	return sim.Config{
		Dt:            c.Run.Dt,
		Cycles:        c.Run.Cycles,
		Seed:          c.Run.Seed,
		StopOnFailure: c.Run.StopOnFailure,
	}
}

// Clone returns an independent copy.
func (c *Config) Clone() *Config {
	cp := *c
	return &cp
}

func r3Vec(v [3]float64) r3.Vec { return r3.Vec{X: v[0], Y: v[1], Z: v[2]} }
