// Package session holds the server-side record of one environment episode
// and the registry that maps session ids to records.
//
// A Session binds a benchmark reference, the action history applied since
// the last reset, and an optional materialized program state. The program
// state is always derivable by replaying the history on the benchmark's
// initial state; materialization is a cache.
package session

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/tailored-agentic-units/optenv/benchmark"
	"github.com/tailored-agentic-units/optenv/core/protocol"
	"github.com/tailored-agentic-units/optenv/program"
)

// ApplyFunc applies one action to a program state. It must not modify state.
type ApplyFunc func(ctx context.Context, state program.State, action protocol.Action) (program.State, error)

// Session is one episode. Every method except ID requires the caller to
// hold the session through Acquire; operations on one session are thereby
// serialized while different sessions proceed independently.
type Session struct {
	id        string
	benchmark *benchmark.Benchmark
	history   []protocol.Action
	program   program.State
	feedback  *protocol.Feedback
	done      bool
	closed    bool
	mu        sync.Mutex
}

// NewID returns a fresh UUIDv7 session identifier.
func NewID() string {
	return uuid.Must(uuid.NewV7()).String()
}

// New creates an open session on b with an empty history and the
// benchmark's initial program materialized.
func New(b *benchmark.Benchmark) *Session {
	return &Session{
		id:        NewID(),
		benchmark: b,
		history:   []protocol.Action{},
		program:   b.Program(),
	}
}

// ID returns the session identifier. Safe without Acquire.
func (s *Session) ID() string {
	return s.id
}

// Acquire locks the session for exclusive use. It fails with
// protocol.ErrSessionNotFound once the session is closed; the returned
// release function must be called exactly once on success.
func (s *Session) Acquire() (release func(), err error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, fmt.Errorf("%w: %s", protocol.ErrSessionNotFound, s.id)
	}
	return s.mu.Unlock, nil
}

// Benchmark returns the bound benchmark.
func (s *Session) Benchmark() *benchmark.Benchmark {
	return s.benchmark
}

// History returns a copy of the action history.
func (s *Session) History() []protocol.Action {
	return protocol.CloneActions(s.history)
}

// Len returns the history length.
func (s *Session) Len() int {
	return len(s.history)
}

// Done reports whether the episode has ended.
func (s *Session) Done() bool {
	return s.done
}

// MarkDone ends the episode without touching history or program state.
func (s *Session) MarkDone() {
	s.done = true
	if s.feedback != nil {
		s.feedback.Done = true
	}
}

// Materialized reports whether the program state is cached.
func (s *Session) Materialized() bool {
	return s.program != nil
}

// Program returns the current program state, replaying the history through
// apply when it is not materialized. The returned state is owned by the
// session and must not be modified.
func (s *Session) Program(ctx context.Context, apply ApplyFunc) (program.State, error) {
	if s.program != nil {
		return s.program, nil
	}

	state := s.benchmark.Program()
	for i, action := range s.history {
		next, err := apply(ctx, state, action)
		if err != nil {
			return nil, fmt.Errorf("replay action %d (%d): %w", i, action, err)
		}
		state = next
	}

	s.program = state
	return state, nil
}

// Commit records a successfully applied action and its resulting state.
// Any cached feedback is discarded.
func (s *Session) Commit(action protocol.Action, next program.State, fb protocol.Feedback) {
	s.history = append(s.history, action)
	s.program = next
	fb = fb.Clone()
	s.feedback = &fb
	s.done = fb.Done
}

// Feedback returns the cached feedback for the current state, if any.
func (s *Session) Feedback() (protocol.Feedback, bool) {
	if s.feedback == nil {
		return protocol.Feedback{}, false
	}
	return s.feedback.Clone(), true
}

// SetFeedback caches a copy of feedback for the current state.
func (s *Session) SetFeedback(fb protocol.Feedback) {
	fb = fb.Clone()
	s.feedback = &fb
	s.done = fb.Done
}

// Reset empties the history and restores the initial program of b, which
// replaces the bound benchmark when non-nil.
func (s *Session) Reset(b *benchmark.Benchmark) {
	if b != nil {
		s.benchmark = b
	}
	s.history = []protocol.Action{}
	s.program = s.benchmark.Program()
	s.feedback = nil
	s.done = false
}

// ForkMode selects what a fork copies besides benchmark and history.
type ForkMode string

const (
	// ForkCopy gives the clone an independent copy of the materialized state.
	ForkCopy ForkMode = "copy"
	// ForkLazy leaves the clone derivable; it replays on first use.
	ForkLazy ForkMode = "lazy"
)

// Fork returns a new open session equal to s by value: same benchmark
// reference, an independent copy of the history, and, in ForkCopy mode, a
// clone of the materialized program. Cached feedback is not copied. Fork
// never replays the history.
func (s *Session) Fork(mode ForkMode) *Session {
	clone := &Session{
		id:        NewID(),
		benchmark: s.benchmark,
		history:   protocol.CloneActions(s.history),
		done:      s.done,
	}
	if mode != ForkLazy && s.program != nil {
		clone.program = s.program.Clone()
	}
	return clone
}

// Close releases the program state and invalidates the session. Subsequent
// Acquire calls fail.
func (s *Session) Close() {
	s.closed = true
	s.program = nil
	s.feedback = nil
	s.history = nil
}

// State describes the session as a replayable EnvState. The signal is taken
// from cached feedback, or zero when none is cached.
func (s *Session) State() protocol.EnvState {
	st := protocol.EnvState{
		Benchmark: s.benchmark.URI(),
		Actions:   protocol.CloneActions(s.history),
	}
	if s.feedback != nil {
		st.Signal = s.feedback.Signal
	}
	return st
}
