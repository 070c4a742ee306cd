package passes

import (
	"context"
	"fmt"

	"github.com/tailored-agentic-units/optenv/ir"
	"github.com/tailored-agentic-units/optenv/program"
)

func irPass(fn func(*ir.Module) (*ir.Module, error)) Handler {
	return func(_ context.Context, state program.State) (program.State, error) {
		m, ok := state.(*ir.Module)
		if !ok {
			return nil, fmt.Errorf("%w: %T", ErrWrongProgram, state)
		}
		out, err := fn(m)
		if err != nil {
			return nil, err
		}
		return out, nil
	}
}

func infallible(fn func(*ir.Module) *ir.Module) func(*ir.Module) (*ir.Module, error) {
	return func(m *ir.Module) (*ir.Module, error) {
		return fn(m), nil
	}
}

// NewBuiltin creates a Registry holding the builtin IR passes in fixed action
// order: strip-nops, constfold, cse, dce, unroll.
func NewBuiltin(cfg *Config) *Registry {
	limit := cfg.MaxInstructions
	if limit <= 0 {
		limit = defaultMaxInstructions
	}

	r := NewRegistry()
	must(r.Register(Pass{Name: "strip-nops", Description: "Remove nop instructions."}, irPass(infallible(ir.StripNops))))
	must(r.Register(Pass{Name: "constfold", Description: "Fold arithmetic on constant operands."}, irPass(infallible(ir.ConstFold))))
	must(r.Register(Pass{Name: "cse", Description: "Eliminate common pure subexpressions."}, irPass(infallible(ir.CSE))))
	must(r.Register(Pass{Name: "dce", Description: "Remove unused side-effect-free definitions."}, irPass(infallible(ir.DCE))))
	must(r.Register(Pass{Name: "unroll", Description: "Duplicate the body once; fails past the instruction budget."}, irPass(func(m *ir.Module) (*ir.Module, error) {
		return ir.Unroll(m, limit)
	})))
	return r
}

func must(err error) {
	if err != nil {
		panic(fmt.Sprintf("failed to register pass: %v", err))
	}
}
