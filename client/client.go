// Package client provides Env, the caller-facing handle over one session.
//
// An Env forwards every call to a Backend (the in-process manager or an rpc
// client) and keeps a local mirror of the session's action history. The
// mirror only advances when the backend reports success, so it always
// equals the authoritative history.
//
//	env, _, err := client.Open(ctx, backend, "cbench-v0/crc32")
//	defer env.Close(ctx)
//	res, err := env.Step(ctx, 0)
//	clone, err := env.Fork(ctx)
package client

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/tailored-agentic-units/optenv/core/protocol"
)

// ErrMirrorDiverged is returned by Verify when the local action history no
// longer matches the backend's.
var ErrMirrorDiverged = errors.New("local action history diverged from session")

// Backend serves session operations. *manager.Manager and *rpc.Client
// implement it.
type Backend interface {
	Open(ctx context.Context, benchmark string) (protocol.OpenResponse, error)
	Step(ctx context.Context, id string, action protocol.Action) (protocol.StepResult, error)
	Reset(ctx context.Context, id, benchmark string) (protocol.ResetResponse, error)
	Fork(ctx context.Context, id string) (string, error)
	Close(ctx context.Context, id string) error
	Observe(ctx context.Context, id string) (protocol.Feedback, error)
	State(ctx context.Context, id string) (protocol.EnvState, error)
	Restore(ctx context.Context, state protocol.EnvState) (protocol.RestoreResponse, error)
	ActionSpace(ctx context.Context) ([]string, error)
}

// Env is a handle over one session. Calls on one Env are serialized.
type Env struct {
	backend   Backend
	id        string
	benchmark string
	actions   []protocol.Action
	mu        sync.Mutex
}

// Open starts a session on benchmark and returns its handle and the initial
// feedback.
func Open(ctx context.Context, backend Backend, benchmark string) (*Env, protocol.Feedback, error) {
	resp, err := backend.Open(ctx, benchmark)
	if err != nil {
		return nil, protocol.Feedback{}, err
	}

	env := &Env{
		backend:   backend,
		id:        resp.SessionID,
		benchmark: resp.Benchmark,
		actions:   []protocol.Action{},
	}
	return env, resp.Feedback, nil
}

// Restore opens a session replaying state and returns its handle.
func Restore(ctx context.Context, backend Backend, state protocol.EnvState) (*Env, protocol.Feedback, error) {
	resp, err := backend.Restore(ctx, state)
	if err != nil {
		return nil, protocol.Feedback{}, err
	}

	uri, err := protocol.ParseBenchmarkURI(state.Benchmark)
	if err != nil {
		return nil, protocol.Feedback{}, err
	}

	env := &Env{
		backend:   backend,
		id:        resp.SessionID,
		benchmark: uri,
		actions:   protocol.CloneActions(state.Actions),
	}
	return env, resp.Feedback, nil
}

// ID returns the session id.
func (e *Env) ID() string {
	return e.id
}

// Benchmark returns the URI of the bound benchmark.
func (e *Env) Benchmark() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.benchmark
}

// Actions returns a copy of the local action history.
func (e *Env) Actions() []protocol.Action {
	e.mu.Lock()
	defer e.mu.Unlock()
	return protocol.CloneActions(e.actions)
}

// Step applies action. The local history advances only on success.
func (e *Env) Step(ctx context.Context, action protocol.Action) (protocol.StepResult, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	res, err := e.backend.Step(ctx, e.id, action)
	if err != nil {
		return res, err
	}
	e.actions = append(e.actions, action)
	return res, nil
}

// Reset returns the session to its benchmark's initial state. A non-empty
// benchmark rebinds the session first.
func (e *Env) Reset(ctx context.Context, benchmark string) (protocol.Feedback, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	resp, err := e.backend.Reset(ctx, e.id, benchmark)
	if err != nil {
		return protocol.Feedback{}, err
	}
	e.benchmark = resp.Benchmark
	e.actions = []protocol.Action{}
	return resp.Feedback, nil
}

// Fork clones the session. The returned Env shares no mutable state with e.
func (e *Env) Fork(ctx context.Context) (*Env, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	id, err := e.backend.Fork(ctx, e.id)
	if err != nil {
		return nil, err
	}
	return &Env{
		backend:   e.backend,
		id:        id,
		benchmark: e.benchmark,
		actions:   protocol.CloneActions(e.actions),
	}, nil
}

// Close releases the session. Closing twice reports
// protocol.ErrSessionNotFound.
func (e *Env) Close(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.backend.Close(ctx, e.id); err != nil {
		return err
	}
	e.actions = []protocol.Action{}
	return nil
}

// Observe returns feedback for the current state without stepping.
func (e *Env) Observe(ctx context.Context) (protocol.Feedback, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.backend.Observe(ctx, e.id)
}

// State returns the session's replayable state.
func (e *Env) State(ctx context.Context) (protocol.EnvState, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.backend.State(ctx, e.id)
}

// ActionSpace returns the action names indexed by action.
func (e *Env) ActionSpace(ctx context.Context) ([]string, error) {
	return e.backend.ActionSpace(ctx)
}

// Verify compares the local history and benchmark with the backend's.
func (e *Env) Verify(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	st, err := e.backend.State(ctx, e.id)
	if err != nil {
		return err
	}
	if st.Benchmark != e.benchmark || !slices.Equal(st.Actions, e.actions) {
		return fmt.Errorf("%w: local %s %v, session %s %v",
			ErrMirrorDiverged, e.benchmark, e.actions, st.Benchmark, st.Actions)
	}
	return nil
}
