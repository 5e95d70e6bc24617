package experiment

import (
	"sort"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/san-kum/wbqp/internal/config"
	"github.com/san-kum/wbqp/internal/control"
	"github.com/san-kum/wbqp/internal/model"
	"github.com/san-kum/wbqp/internal/qp"
)

// Scenario fixes the contact set and environment of a run.
type Scenario struct {
	Name        string
	Description string
	Feet        []string
	// EffortWindow overrides the actuator limits when set.
	EffortWindow *[2]float64
	// Solver overrides the configured backend when set.
	Solver string
	// Ramp is the time over which the configured CoM shift is applied.
	Ramp float64
}

var scenarios = map[string]Scenario{
	"double_support": {
		Name:        "double_support",
		Description: "both feet on the ground, hold the initial CoM",
		Feet:        []string{model.BodyLeftFoot, model.BodyRightFoot},
	},
	"single_support": {
		Name:        "single_support",
		Description: "left foot under the CoM, right foot raised, hold the CoM",
		Feet:        []string{model.BodyLeftFoot},
	},
	"com_shift": {
		Name:        "com_shift",
		Description: "both feet, CoM target ramps by run.com_shift",
		Feet:        []string{model.BodyLeftFoot, model.BodyRightFoot},
		Ramp:        0.5,
	},
	"infeasible_torque": {
		Name:         "infeasible_torque",
		Description:  "effort limits that cannot hold the robot, every cycle fails",
		Feet:         []string{model.BodyLeftFoot, model.BodyRightFoot},
		EffortWindow: &[2]float64{200, 300},
	},
	"unavailable_solver": {
		Name:        "unavailable_solver",
		Description: "backend reports itself unavailable, every cycle fails",
		Feet:        []string{model.BodyLeftFoot, model.BodyRightFoot},
		Solver:      qp.BackendUnavailable,
	},
}

func GetScenario(name string) (Scenario, error) {
	s, ok := scenarios[name]
	if !ok {
		return Scenario{}, errors.Errorf("unknown scenario: %s", name)
	}
	return s, nil
}

func ListScenarios() []string {
	names := make([]string, 0, len(scenarios))
	for name := range scenarios {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

var regulators = map[string]func(run config.RunConfig, target r3.Vec) control.Regulator{
	"pid": func(run config.RunConfig, target r3.Vec) control.Regulator {
		return control.NewPID(run.Kp, run.Ki, run.Kd, target)
	},
	"state_feedback": func(run config.RunConfig, target r3.Vec) control.Regulator {
		return control.NewStateFeedbackPD(run.Kp, run.Kd, target)
	},
	"manual": func(run config.RunConfig, target r3.Vec) control.Regulator {
		return control.NewManual()
	},
	"none": func(run config.RunConfig, target r3.Vec) control.Regulator {
		return control.NewNone()
	},
}

func GetRegulator(name string, run config.RunConfig, target r3.Vec) (control.Regulator, error) {
	fn, ok := regulators[name]
	if !ok {
		return nil, errors.Errorf("unknown regulator: %s", name)
	}
	return fn(run, target), nil
}

func ListRegulators() []string {
	names := make([]string, 0, len(regulators))
	for name := range regulators {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
