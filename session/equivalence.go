package session

import (
	"slices"

	"github.com/tailored-agentic-units/optenv/core/protocol"
	"github.com/tailored-agentic-units/optenv/program"
)

// Snapshot is a point-in-time copy of the state that defines equivalence.
// Program is nil when the session was not materialized.
type Snapshot struct {
	Benchmark string
	History   []protocol.Action
	Program   program.State
}

// Snapshot copies the session's benchmark identity, history, and
// materialized program.
func (s *Session) Snapshot() Snapshot {
	snap := Snapshot{
		Benchmark: s.benchmark.URI(),
		History:   protocol.CloneActions(s.history),
	}
	if s.program != nil {
		snap.Program = s.program.Clone()
	}
	return snap
}

// Equivalent reports whether two snapshots have the same benchmark identity
// and element-wise equal histories and, when both programs are
// materialized, equal canonical program serializations.
func Equivalent(a, b Snapshot) (bool, error) {
	if a.Benchmark != b.Benchmark || !slices.Equal(a.History, b.History) {
		return false, nil
	}
	if a.Program == nil || b.Program == nil {
		return true, nil
	}
	return program.Equal(a.Program, b.Program)
}
