package processors

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// SideEffect is one independent action taken after a record is enriched.
// BestEffort effects may fail without failing the record.
type SideEffect struct {
	Name       string
	BestEffort bool
	Run        func(ctx context.Context) error
}

// SideEffectResult is the settled outcome of one SideEffect.
type SideEffectResult struct {
	Name       string
	BestEffort bool
	Err        error
}

// Failed reports whether the effect returned an error.
func (r SideEffectResult) Failed() bool { return r.Err != nil }

// Settle runs every effect concurrently and waits for all of them. A failing
// effect never cancels or delays the others. Results keep the input order.
func Settle(ctx context.Context, effects ...SideEffect) []SideEffectResult {
	results := make([]SideEffectResult, len(effects))

	var g errgroup.Group
	for i, effect := range effects {
		g.Go(func() error {
			results[i] = SideEffectResult{
				Name:       effect.Name,
				BestEffort: effect.BestEffort,
				Err:        effect.Run(ctx),
			}
			return nil
		})
	}
	_ = g.Wait()

	return results
}

// FirstRequiredFailure returns the error of the first failed effect that is
// not best effort.
func FirstRequiredFailure(results []SideEffectResult) error {
	for _, r := range results {
		if r.Failed() && !r.BestEffort {
			return r.Err
		}
	}
	return nil
}
