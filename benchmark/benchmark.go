// Package benchmark resolves benchmark identities into immutable initial
// program states. Sources come from pluggable stores; parsed benchmarks are
// cached and concurrent resolves of the same benchmark are deduplicated.
package benchmark

import (
	"github.com/tailored-agentic-units/optenv/core/protocol"
	"github.com/tailored-agentic-units/optenv/ir"
	"github.com/tailored-agentic-units/optenv/program"
)

// Benchmark is an identity plus initial program state. It is immutable once
// loaded; sessions share the reference and receive clones of the program.
type Benchmark struct {
	uri     string
	initial program.State
}

// New creates a Benchmark. The initial state is cloned so later changes by
// the caller cannot reach it.
func New(uri string, initial program.State) *Benchmark {
	return &Benchmark{uri: uri, initial: initial.Clone()}
}

// URI returns the canonical benchmark identity.
func (b *Benchmark) URI() string {
	return b.uri
}

// Program returns a fresh copy of the initial program state.
func (b *Benchmark) Program() program.State {
	return b.initial.Clone()
}

// Parser turns a benchmark source into a program state.
type Parser func(uri string, src []byte) (program.State, error)

// ParseIR is the default Parser for the textual IR.
func ParseIR(uri string, src []byte) (program.State, error) {
	m, err := ir.Parse(protocol.BenchmarkKey(uri), src)
	if err != nil {
		return nil, err
	}
	return m, nil
}
