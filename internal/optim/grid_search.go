// Package optim tunes controller weights and regulator gains by exhaustive
// grid search over closed-loop runs.
package optim

import (
	"context"
	"math"
	"sort"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/san-kum/wbqp/internal/config"
	"github.com/san-kum/wbqp/internal/experiment"
)

var logger = log.WithFields(log.Fields{
	"pkg": "optim",
})

// Params maps a config key to its value, for example "weights.com".
type Params map[string]float64

type GridSearch struct {
	paramNames []string
	ranges     [][]float64
	// Maximize flips the objective for metrics where larger is better.
	Maximize bool
}

func NewGridSearch(params []string, ranges [][]float64) *GridSearch {
	return &GridSearch{paramNames: params, ranges: ranges}
}

// Builder creates the experiment for one grid point.
type Builder func(params Params) (*experiment.Experiment, error)

func (g *GridSearch) Search(ctx context.Context, build Builder, metricName string) (Params, float64, error) {
	if len(g.paramNames) != len(g.ranges) {
		return nil, 0, errors.Errorf("%d parameters but %d ranges", len(g.paramNames), len(g.ranges))
	}

	best := math.Inf(1)
	var bestParams Params

	if err := g.searchRecursive(ctx, 0, Params{}, build, metricName, &best, &bestParams); err != nil {
		return nil, 0, err
	}
	if bestParams == nil {
		return nil, 0, errors.Errorf("no grid point produced metric %s", metricName)
	}
	if g.Maximize {
		best = -best
	}
	return bestParams, best, nil
}

func (g *GridSearch) searchRecursive(
	ctx context.Context,
	depth int,
	current Params,
	build Builder,
	metricName string,
	best *float64,
	bestParams *Params,
) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if depth == len(g.paramNames) {
		exp, err := build(current)
		if err != nil {
			logger.WithError(err).WithField("params", current).Debug("skipping grid point")
			return nil
		}

		result, err := exp.Run(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			logger.WithError(err).WithField("params", current).Debug("grid point failed")
			return nil
		}

		val, ok := result.Metrics[metricName]
		if !ok {
			return errors.Errorf("unknown metric: %s", metricName)
		}
		if g.Maximize {
			val = -val
		}
		if val < *best {
			*best = val
			*bestParams = make(Params, len(current))
			for k, v := range current {
				(*bestParams)[k] = v
			}
		}
		return nil
	}

	paramName := g.paramNames[depth]
	for _, val := range g.ranges[depth] {
		newParams := make(Params, len(current)+1)
		for k, v := range current {
			newParams[k] = v
		}
		newParams[paramName] = val

		if err := g.searchRecursive(ctx, depth+1, newParams, build, metricName, best, bestParams); err != nil {
			return err
		}
	}
	return nil
}

var setters = map[string]func(c *config.Config, v float64){
	"weights.com":       func(c *config.Config, v float64) { c.Weights.COM = v },
	"weights.vd":        func(c *config.Config, v float64) { c.Weights.Vd = v },
	"weights.basis_reg": func(c *config.Config, v float64) { c.Weights.BasisReg = v },
	"weights.torso":     func(c *config.Config, v float64) { c.Weights.Torso = v },
	"run.kp":            func(c *config.Config, v float64) { c.Run.Kp = v },
	"run.ki":            func(c *config.Config, v float64) { c.Run.Ki = v },
	"run.kd":            func(c *config.Config, v float64) { c.Run.Kd = v },
	"controller.basis_upper_bound": func(c *config.Config, v float64) {
		c.Controller.BasisUpperBound = v
	},
}

// Tunable lists the parameter names Apply understands.
func Tunable() []string {
	names := make([]string, 0, len(setters))
	for name := range setters {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Apply returns a copy of base with params set.
func Apply(base *config.Config, params Params) (*config.Config, error) {
	cfg := base.Clone()
	for name, v := range params {
		set, ok := setters[name]
		if !ok {
			return nil, errors.Errorf("unknown parameter: %s", name)
		}
		set(cfg, v)
	}
	return cfg, nil
}

// ConfigBuilder builds experiments from base with the grid point applied.
func ConfigBuilder(base *config.Config) Builder {
	return func(params Params) (*experiment.Experiment, error) {
		cfg, err := Apply(base, params)
		if err != nil {
			return nil, err
		}
		return experiment.New(cfg)
	}
}
