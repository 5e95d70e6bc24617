// Package automation runs scripted batches of closed-loop experiments:
// YAML scripts of scenario steps, one-parameter sweeps and Monte Carlo
// ensembles over the initial CoM kick.
package automation

import (
	"context"
	"os"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"github.com/san-kum/wbqp/internal/config"
	"github.com/san-kum/wbqp/internal/experiment"
	"github.com/san-kum/wbqp/internal/optim"
	"github.com/san-kum/wbqp/internal/sim"
	"github.com/san-kum/wbqp/internal/storage"
)

var logger = log.WithFields(log.Fields{
	"pkg": "automation",
})

// Script is a named sequence of runs.
type Script struct {
	Name        string       `yaml:"name"`
	Description string       `yaml:"description"`
	Steps       []ScriptStep `yaml:"steps"`
}

// ScriptStep configures one run. Preset is applied first, then Params (see
// optim.Tunable), then the non-zero run fields.
type ScriptStep struct {
	Scenario string             `yaml:"scenario"`
	Preset   string             `yaml:"preset"`
	Cycles   int                `yaml:"cycles"`
	Seed     int64              `yaml:"seed"`
	Params   map[string]float64 `yaml:"params"`
	Save     bool               `yaml:"save"`
}

// StepResult is the outcome of one script step.
type StepResult struct {
	Step   ScriptStep
	Result *sim.Result
	RunID  string
}

func LoadScript(path string) (*Script, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var script Script
	if err := yaml.Unmarshal(data, &script); err != nil {
		return nil, errors.Wrapf(err, "parse script %s", path)
	}
	if len(script.Steps) == 0 {
		return nil, errors.Errorf("script %s has no steps", path)
	}
	return &script, nil
}

// Config resolves the configuration of a step over base.
func (s ScriptStep) Config(base *config.Config) (*config.Config, error) {
	cfg := base.Clone()
	if s.Scenario != "" {
		cfg.Run.Scenario = s.Scenario
	}
	if s.Preset != "" {
		p := config.GetPreset(cfg.Run.Scenario, s.Preset)
		if p == nil {
			return nil, errors.Errorf("unknown preset %s for %s", s.Preset, cfg.Run.Scenario)
		}
		cfg = p
	}
	cfg, err := optim.Apply(cfg, s.Params)
	if err != nil {
		return nil, err
	}
	if s.Cycles > 0 {
		cfg.Run.Cycles = s.Cycles
	}
	if s.Seed != 0 {
		cfg.Run.Seed = s.Seed
	}
	return cfg, nil
}

// RunScript executes the steps in order. Steps with Save set are written to
// store, which may be nil when no step saves.
func RunScript(ctx context.Context, script *Script, base *config.Config, store *storage.Store) ([]StepResult, error) {
	results := make([]StepResult, 0, len(script.Steps))

	for i, step := range script.Steps {
		cfg, err := step.Config(base)
		if err != nil {
			return results, errors.Wrapf(err, "step %d", i+1)
		}
		logger.WithFields(log.Fields{
			"script":   script.Name,
			"step":     i + 1,
			"scenario": cfg.Run.Scenario,
		}).Info("running script step")

		exp, err := experiment.New(cfg)
		if err != nil {
			return results, errors.Wrapf(err, "step %d setup", i+1)
		}
		result, err := exp.Run(ctx)
		if err != nil {
			return results, errors.Wrapf(err, "step %d run", i+1)
		}

		sr := StepResult{Step: step, Result: result}
		if step.Save {
			if store == nil {
				return results, errors.Errorf("step %d: save requested without a store", i+1)
			}
			if sr.RunID, err = store.Save(cfg, result); err != nil {
				return results, errors.Wrapf(err, "step %d save", i+1)
			}
		}
		results = append(results, sr)
	}

	return results, nil
}

// Sweep runs base with one tunable parameter stepped over [Min, Max].
type Sweep struct {
	Param    string
	Min, Max float64
	NumSteps int
}

// SweepResult holds the metrics of one sweep point.
type SweepResult struct {
	Value    float64
	Failures int
	Metrics  map[string]float64
}

func RunSweep(ctx context.Context, sweep Sweep, base *config.Config) ([]SweepResult, error) {
	if sweep.NumSteps < 2 {
		return nil, errors.Errorf("sweep needs at least 2 steps, got %d", sweep.NumSteps)
	}
	results := make([]SweepResult, 0, sweep.NumSteps)
	inc := (sweep.Max - sweep.Min) / float64(sweep.NumSteps-1)

	for i := 0; i < sweep.NumSteps; i++ {
		v := sweep.Min + float64(i)*inc
		cfg, err := optim.Apply(base, optim.Params{sweep.Param: v})
		if err != nil {
			return nil, err
		}
		exp, err := experiment.New(cfg)
		if err != nil {
			return nil, errors.Wrapf(err, "%s=%g", sweep.Param, v)
		}
		result, err := exp.Run(ctx)
		if err != nil {
			return nil, errors.Wrapf(err, "%s=%g", sweep.Param, v)
		}
		results = append(results, SweepResult{Value: v, Failures: result.Failures, Metrics: result.Metrics})

		logger.WithFields(log.Fields{
			"param": sweep.Param,
			"value": v,
			"point": i + 1,
		}).Debug("sweep point done")
	}

	return results, nil
}

// MonteCarloConfig runs NumTrials seeds of base with the given initial CoM
// velocity kick.
type MonteCarloConfig struct {
	Perturbation float64
	NumTrials    int
	Seed         int64
	Parallel     int
	// Threshold is the stability metric a trial must reach to count as
	// stable.
	Threshold float64
}

// MonteCarloResult is the outcome of one trial.
type MonteCarloResult struct {
	TrialID   int
	Seed      int64
	Failures  int
	Stability float64
	Stable    bool
}

func RunMonteCarlo(ctx context.Context, mc MonteCarloConfig, base *config.Config) ([]MonteCarloResult, error) {
	cfg := base.Clone()
	cfg.Run.Perturbation = mc.Perturbation
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	ens := sim.NewEnsemble(experiment.Factory(cfg), mc.NumTrials, mc.Seed)
	ens.SetLimit(mc.Parallel)
	runs, err := ens.Run(ctx, cfg.SimConfig())
	if err != nil {
		return nil, err
	}

	results := make([]MonteCarloResult, len(runs))
	for i, r := range runs {
		stability := r.Metrics["stability"]
		results[i] = MonteCarloResult{
			TrialID:   i,
			Seed:      mc.Seed + int64(i),
			Failures:  r.Failures,
			Stability: stability,
			Stable:    r.Failures == 0 && stability >= mc.Threshold,
		}
	}
	return results, nil
}

// MonteCarloStats counts stable and unstable trials.
func MonteCarloStats(results []MonteCarloResult) (stableCount int, unstableCount int) {
	for _, r := range results {
		if r.Stable {
			stableCount++
		} else {
			unstableCount++
		}
	}
	return
}
