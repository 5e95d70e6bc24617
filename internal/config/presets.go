package config

import "sort"

// Presets holds named configurations per scenario.
var Presets = map[string]map[string]*Config{
	"double_support": {
		"stand": preset("double_support", func(c *Config) {}),
		"soft": preset("double_support", func(c *Config) {
			c.Run.Kp, c.Run.Kd = 10, 6
		}),
		"pushed": preset("double_support", func(c *Config) {
			c.Run.Perturbation = 0.05
			c.Run.Cycles = 1000
		}),
	},
	"single_support": {
		"left": preset("single_support", func(c *Config) {
			c.Run.Cycles = 200
		}),
		"nudged": preset("single_support", func(c *Config) {
			c.Run.Perturbation = 0.02
			c.Run.Cycles = 1000
		}),
	},
	"com_shift": {
		"forward": preset("com_shift", func(c *Config) {
			c.Run.Shift = [3]float64{0.03, 0, 0}
		}),
		"crouch": preset("com_shift", func(c *Config) {
			c.Run.Shift = [3]float64{0, 0, -0.08}
			c.Run.Cycles = 1000
		}),
		"sway": preset("com_shift", func(c *Config) {
			c.Run.Shift = [3]float64{0, 0.04, 0}
			c.Run.Regulator = "state_feedback"
		}),
	},
	"infeasible_torque": {
		"window": preset("infeasible_torque", func(c *Config) {
			c.Run.Cycles = 50
		}),
	},
	"unavailable_solver": {
		"offline": preset("unavailable_solver", func(c *Config) {
			c.Controller.Solver = "unavailable"
			c.Run.Cycles = 50
		}),
	},
}

func preset(scenario string, apply func(*Config)) *Config {
	c := DefaultConfig()
	c.Run.Scenario = scenario
	apply(c)
	return c
}

// GetPreset returns a copy of the named preset, or nil.
func GetPreset(scenario, name string) *Config {
	scenarioPresets, ok := Presets[scenario]
	if !ok {
		return nil
	}
	cfg, ok := scenarioPresets[name]
	if !ok {
		return nil
	}
	return cfg.Clone()
}

func ListPresets(scenario string) []string {
	scenarioPresets, ok := Presets[scenario]
	if !ok {
		return nil
	}
	names := make([]string, 0, len(scenarioPresets))
	for name := range scenarioPresets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
