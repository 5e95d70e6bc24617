package sim

import (
	"context"

	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"
)

// Factory builds an independent simulator for one ensemble member. Members
// never share a controller or plant.
type Factory func(seed int64) (*Simulator, error)

type Ensemble struct {
	factory   Factory
	numRuns   int
	seedStart int64
	limit     int
}

func NewEnsemble(factory Factory, numRuns int, seedStart int64) *Ensemble {
	return &Ensemble{factory: factory, numRuns: numRuns, seedStart: seedStart}
}

// SetLimit bounds the number of members running at once. Zero or negative
// means unbounded.
func (e *Ensemble) SetLimit(n int) { e.limit = n }

func (e *Ensemble) Run(ctx context.Context, cfg Config) ([]*Result, error) {
	if e.numRuns <= 0 {
		return nil, errors.Errorf("ensemble needs at least one run, got %d", e.numRuns)
	}
	results := make([]*Result, e.numRuns)

	g, ctx := errgroup.WithContext(ctx)
	if e.limit > 0 {
		g.SetLimit(e.limit)
	}
	for i := 0; i < e.numRuns; i++ {
		idx := i
		g.Go(func() error {
			cfgCopy := cfg
			cfgCopy.Seed = e.seedStart + int64(idx)

			s, err := e.factory(cfgCopy.Seed)
			if err != nil {
				return errors.Wrapf(err, "build member %d", idx)
			}
			res, err := s.Run(ctx, cfgCopy)
			if err != nil {
				return errors.Wrapf(err, "member %d", idx)
			}
			results[idx] = res
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}
