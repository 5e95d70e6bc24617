// Package metrics aggregates closed-loop cycle records into scalar figures.
package metrics

import (
	"github.com/pkg/errors"

	"github.com/san-kum/wbqp/internal/sim"
)

// DefaultStabilityThreshold is the CoM excursion, in meters, counted as a
// stability violation.
const DefaultStabilityThreshold = 0.25

// Default returns one fresh instance of every metric.
func Default() []sim.Metric {
	return []sim.Metric{
		NewControlEffort(),
		NewSolveTime(),
		NewWrenchResidual(),
		NewSuccessRate(),
		NewCost(),
		NewStability(DefaultStabilityThreshold),
	}
}

// Names lists the metric names Default produces.
func Names() []string {
	ms := Default()
	names := make([]string, len(ms))
	for i, m := range ms {
		names[i] = m.Name()
	}
	return names
}

// ByName returns a fresh metric by name.
func ByName(name string) (sim.Metric, error) {
	for _, m := range Default() {
		if m.Name() == name {
			return m, nil
		}
	}
	return nil, errors.Errorf("unknown metric: %s", name)
}
