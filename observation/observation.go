// Package observation derives feedback (observation, signal, done) from
// program state.
package observation

import (
	"context"
	"errors"
	"fmt"

	"github.com/tailored-agentic-units/optenv/core/protocol"
	"github.com/tailored-agentic-units/optenv/ir"
	"github.com/tailored-agentic-units/optenv/program"
)

// ErrWrongProgram is returned when a provider cannot read the state's
// representation.
var ErrWrongProgram = errors.New("unsupported program representation")

// Provider computes feedback for a program state. baseline is the
// benchmark's initial state; signals are measured relative to it.
// Providers must be deterministic and must not modify either state.
type Provider interface {
	Derive(ctx context.Context, baseline, current program.State) (protocol.Feedback, error)
}

// ProviderFunc adapts a function to Provider.
type ProviderFunc func(ctx context.Context, baseline, current program.State) (protocol.Feedback, error)

func (f ProviderFunc) Derive(ctx context.Context, baseline, current program.State) (protocol.Feedback, error) {
	return f(ctx, baseline, current)
}

// Feature names reported by InstCount.
const (
	FeatureInstCount       = "inst_count"
	FeatureConstCount      = "const_count"
	FeatureSideEffectCount = "side_effect_count"
)

// InstCount observes instruction counts of IR modules. The signal is the
// number of instructions removed relative to the baseline; the episode is
// done once only the terminator remains.
type InstCount struct{}

func (InstCount) Derive(_ context.Context, baseline, current program.State) (protocol.Feedback, error) {
	base, ok := baseline.(*ir.Module)
	if !ok {
		return protocol.Feedback{}, fmt.Errorf("%w: %T", ErrWrongProgram, baseline)
	}
	cur, ok := current.(*ir.Module)
	if !ok {
		return protocol.Feedback{}, fmt.Errorf("%w: %T", ErrWrongProgram, current)
	}

	n := cur.Count()
	return protocol.Feedback{
		Observation: protocol.Observation{
			FeatureInstCount:       float64(n),
			FeatureConstCount:      float64(cur.CountOp(ir.OpConst)),
			FeatureSideEffectCount: float64(cur.CountSideEffects()),
		},
		Signal: float64(base.Count() - n),
		Done:   n <= 1 && cur.CountOp(ir.OpRet) == n,
	}, nil
}
