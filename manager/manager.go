// Package manager implements the session manager: it owns the mapping from
// session id to session and serves open, step, reset, fork, and close against
// pluggable benchmark, executor, and observation collaborators.
//
// The manager initializes from configuration via New, creating every
// collaborator internally. Functional options replace any of them.
//
//	m, err := manager.New(&cfg)
//	open, err := m.Open(ctx, "cbench-v0/crc32")
//	res, err := m.Step(ctx, open.SessionID, 0)
//	clone, err := m.Fork(ctx, open.SessionID)
package manager

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/tailored-agentic-units/optenv/benchmark"
	"github.com/tailored-agentic-units/optenv/core/protocol"
	"github.com/tailored-agentic-units/optenv/observability"
	"github.com/tailored-agentic-units/optenv/observation"
	"github.com/tailored-agentic-units/optenv/passes"
	"github.com/tailored-agentic-units/optenv/program"
	"github.com/tailored-agentic-units/optenv/session"
)

// BenchmarkLoader resolves benchmark identities. The default implementation
// is *benchmark.Loader.
type BenchmarkLoader interface {
	Resolve(ctx context.Context, raw string) (*benchmark.Benchmark, error)
	Add(ctx context.Context, raw string, src []byte) (*benchmark.Benchmark, error)
	Remove(ctx context.Context, raw string) (string, error)
	List(ctx context.Context) ([]string, error)
}

// Executor applies actions to program state. Apply must be deterministic
// and must not modify its input. The default implementation is the builtin
// *passes.Registry.
type Executor interface {
	ActionSpace() []string
	Contains(action protocol.Action) bool
	Apply(ctx context.Context, state program.State, action protocol.Action) (program.State, error)
}

// Option configures a Manager after config-driven initialization.
type Option func(*Manager)

// WithLoader overrides the config-created benchmark loader.
func WithLoader(l BenchmarkLoader) Option {
	return func(m *Manager) { m.loader = l }
}

// WithExecutor overrides the builtin pass registry.
func WithExecutor(e Executor) Option {
	return func(m *Manager) { m.executor = e }
}

// WithProvider overrides the instruction-count observation provider.
func WithProvider(p observation.Provider) Option {
	return func(m *Manager) { m.provider = p }
}

// WithObserver overrides the config-selected observer.
func WithObserver(o observability.Observer) Option {
	return func(m *Manager) { m.observer = o }
}

// Manager owns all live sessions. All methods are safe for concurrent use.
// Operations on one session are serialized; different sessions proceed
// independently.
type Manager struct {
	loader      BenchmarkLoader
	executor    Executor
	provider    observation.Provider
	observer    observability.Observer
	sessions    *session.Registry
	forkMode    session.ForkMode
	stepTimeout time.Duration
}

// New creates a Manager from configuration.
func New(cfg *Config, opts ...Option) (*Manager, error) {
	switch cfg.Session.ForkMode {
	case "", session.ForkCopy, session.ForkLazy:
	default:
		return nil, fmt.Errorf("%w: fork mode %q", ErrInvalidConfig, cfg.Session.ForkMode)
	}

	loader, err := benchmark.NewLoaderFromConfig(&cfg.Benchmarks)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}

	name := cfg.Observer
	if name == "" {
		name = defaultObserver
	}
	observer, err := observability.GetObserver(name)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}

	m := &Manager{
		loader:      loader,
		executor:    passes.NewBuiltin(&cfg.Passes),
		provider:    observation.InstCount{},
		observer:    observer,
		sessions:    session.NewRegistryFromConfig(&cfg.Session),
		forkMode:    cfg.Session.ForkMode,
		stepTimeout: cfg.StepTimeout.Std(),
	}

	for _, opt := range opts {
		opt(m)
	}

	return m, nil
}

// Open creates a session on the named benchmark with an empty history.
func (m *Manager) Open(ctx context.Context, raw string) (protocol.OpenResponse, error) {
	start := time.Now()

	b, err := m.loader.Resolve(ctx, raw)
	if err != nil {
		m.fail(ctx, "manager.Open", "", err)
		return protocol.OpenResponse{}, err
	}

	fb, err := m.derive(ctx, b, b.Program())
	if err != nil {
		m.fail(ctx, "manager.Open", "", err)
		return protocol.OpenResponse{}, err
	}

	s := session.New(b)
	s.SetFeedback(fb)
	if err := m.sessions.Insert(s); err != nil {
		m.fail(ctx, "manager.Open", s.ID(), err)
		return protocol.OpenResponse{}, err
	}

	m.emit(ctx, EventOpen, observability.LevelInfo, "manager.Open", map[string]any{
		observability.SessionKey:   s.ID(),
		observability.BenchmarkKey: b.URI(),
		observability.DurationKey:  since(start),
	})

	return protocol.OpenResponse{
		SessionID: s.ID(),
		Benchmark: b.URI(),
		Feedback:  fb.Clone(),
	}, nil
}

// Step applies action to the session's current program. On success the
// action is appended to the history. On failure history and program state
// are unchanged; transform failures and collaborator timeouts additionally
// end the episode and return a result with Done set alongside the error.
func (m *Manager) Step(ctx context.Context, id string, action protocol.Action) (protocol.StepResult, error) {
	start := time.Now()
	result := protocol.StepResult{Action: action}

	s, release, err := m.acquire(id)
	if err != nil {
		return result, err
	}
	defer release()

	if !m.executor.Contains(action) {
		err := fmt.Errorf("%w: %d", protocol.ErrInvalidAction, action)
		m.fail(ctx, "manager.Step", id, err)
		return result, err
	}

	next, fb, err := m.advance(ctx, s, action)
	if err != nil {
		if protocol.ErrorKind(err).Terminal() {
			s.MarkDone()
			result.Done = true
		}
		m.emit(ctx, EventStepFailed, observability.LevelWarning, "manager.Step", map[string]any{
			observability.SessionKey: id,
			"action":                 int(action),
			"history_length":         s.Len(),
			"kind":                   string(protocol.ErrorKind(err)),
			observability.ErrorKey:   err.Error(),
		})
		return result, err
	}

	s.Commit(action, next, fb)

	m.emit(ctx, EventStep, observability.LevelVerbose, "manager.Step", map[string]any{
		observability.SessionKey:  id,
		"action":                  int(action),
		"history_length":          s.Len(),
		"done":                    fb.Done,
		observability.DurationKey: since(start),
	})

	result.Feedback = fb.Clone()
	return result, nil
}

// advance computes the state and feedback that stepping s with action would
// produce without touching s.
func (m *Manager) advance(ctx context.Context, s *session.Session, action protocol.Action) (program.State, protocol.Feedback, error) {
	cur, err := s.Program(ctx, m.apply)
	if err != nil {
		return nil, protocol.Feedback{}, err
	}

	next, err := m.apply(ctx, cur, action)
	if err != nil {
		return nil, protocol.Feedback{}, err
	}

	fb, err := m.derive(ctx, s.Benchmark(), next)
	if err != nil {
		return nil, protocol.Feedback{}, err
	}
	return next, fb, nil
}

// Reset empties the session's history and restores the initial program. A
// non-empty raw rebinds the session to that benchmark first. On error the
// session is left as it was.
func (m *Manager) Reset(ctx context.Context, id, raw string) (protocol.ResetResponse, error) {
	start := time.Now()

	s, release, err := m.acquire(id)
	if err != nil {
		return protocol.ResetResponse{}, err
	}
	defer release()

	b := s.Benchmark()
	if raw != "" {
		if b, err = m.loader.Resolve(ctx, raw); err != nil {
			m.fail(ctx, "manager.Reset", id, err)
			return protocol.ResetResponse{}, err
		}
	}

	fb, err := m.derive(ctx, b, b.Program())
	if err != nil {
		m.fail(ctx, "manager.Reset", id, err)
		return protocol.ResetResponse{}, err
	}

	s.Reset(b)
	s.SetFeedback(fb)

	m.emit(ctx, EventReset, observability.LevelVerbose, "manager.Reset", map[string]any{
		observability.SessionKey:   id,
		observability.BenchmarkKey: b.URI(),
		observability.DurationKey:  since(start),
	})

	return protocol.ResetResponse{
		Benchmark: b.URI(),
		Feedback:  fb.Clone(),
	}, nil
}

// Fork duplicates the session under a new id without replaying its
// history. The source is held for the duration, so a concurrent step is
// ordered entirely before or after the fork.
func (m *Manager) Fork(ctx context.Context, id string) (string, error) {
	start := time.Now()

	s, release, err := m.acquire(id)
	if err != nil {
		return "", err
	}
	defer release()

	clone := s.Fork(m.forkMode)
	if err := m.sessions.Insert(clone); err != nil {
		m.fail(ctx, "manager.Fork", id, err)
		return "", err
	}

	m.emit(ctx, EventFork, observability.LevelInfo, "manager.Fork", map[string]any{
		observability.SessionKey:  id,
		"clone_id":                clone.ID(),
		"history_length":          s.Len(),
		observability.DurationKey: since(start),
	})

	return clone.ID(), nil
}

// Close releases the session and invalidates its id. Closing an id that is
// unknown or already closed fails with protocol.ErrSessionNotFound.
func (m *Manager) Close(ctx context.Context, id string) error {
	s, release, err := m.acquire(id)
	if err != nil {
		return err
	}
	defer release()

	n := s.Len()
	s.Close()
	if _, err := m.sessions.Remove(id); err != nil {
		return err
	}

	m.emit(ctx, EventClose, observability.LevelInfo, "manager.Close", map[string]any{
		observability.SessionKey: id,
		"history_length":         n,
	})
	return nil
}

// Observe returns feedback for the session's current program without
// stepping. The result is cached until the next step or reset.
func (m *Manager) Observe(ctx context.Context, id string) (protocol.Feedback, error) {
	s, release, err := m.acquire(id)
	if err != nil {
		return protocol.Feedback{}, err
	}
	defer release()

	fb, err := m.feedback(ctx, s)
	if err != nil {
		m.fail(ctx, "manager.Observe", id, err)
		return protocol.Feedback{}, err
	}
	return fb, nil
}

// State returns the session as a replayable EnvState.
func (m *Manager) State(ctx context.Context, id string) (protocol.EnvState, error) {
	s, release, err := m.acquire(id)
	if err != nil {
		return protocol.EnvState{}, err
	}
	defer release()

	if _, err := m.feedback(ctx, s); err != nil {
		m.fail(ctx, "manager.State", id, err)
		return protocol.EnvState{}, err
	}
	return s.State(), nil
}

// Restore opens a new session on st.Benchmark and replays st.Actions.
// Unlike Fork, Restore pays the cost of every action.
func (m *Manager) Restore(ctx context.Context, st protocol.EnvState) (protocol.RestoreResponse, error) {
	start := time.Now()

	b, err := m.loader.Resolve(ctx, st.Benchmark)
	if err != nil {
		m.fail(ctx, "manager.Restore", "", err)
		return protocol.RestoreResponse{}, err
	}

	s := session.New(b)
	for i, action := range st.Actions {
		if !m.executor.Contains(action) {
			err := fmt.Errorf("%w: action %d (%d)", protocol.ErrInvalidAction, i, action)
			m.fail(ctx, "manager.Restore", "", err)
			return protocol.RestoreResponse{}, err
		}
		cur, err := s.Program(ctx, m.apply)
		if err != nil {
			m.fail(ctx, "manager.Restore", "", err)
			return protocol.RestoreResponse{}, err
		}
		next, err := m.apply(ctx, cur, action)
		if err != nil {
			err = fmt.Errorf("replay action %d: %w", i, err)
			m.fail(ctx, "manager.Restore", "", err)
			return protocol.RestoreResponse{}, err
		}
		s.Commit(action, next, protocol.Feedback{})
	}

	cur, err := s.Program(ctx, m.apply)
	if err != nil {
		m.fail(ctx, "manager.Restore", "", err)
		return protocol.RestoreResponse{}, err
	}
	fb, err := m.derive(ctx, b, cur)
	if err != nil {
		m.fail(ctx, "manager.Restore", "", err)
		return protocol.RestoreResponse{}, err
	}
	s.SetFeedback(fb)

	if err := m.sessions.Insert(s); err != nil {
		m.fail(ctx, "manager.Restore", s.ID(), err)
		return protocol.RestoreResponse{}, err
	}

	m.emit(ctx, EventRestore, observability.LevelInfo, "manager.Restore", map[string]any{
		observability.SessionKey:   s.ID(),
		observability.BenchmarkKey: b.URI(),
		"history_length":           len(st.Actions),
		observability.DurationKey:  since(start),
	})

	return protocol.RestoreResponse{SessionID: s.ID(), Feedback: fb.Clone()}, nil
}

// AddBenchmark parses src and registers it under raw so later Open and
// Reset calls can bind it. Returns the canonical URI.
func (m *Manager) AddBenchmark(ctx context.Context, raw string, src []byte) (string, error) {
	b, err := m.loader.Add(ctx, raw, src)
	if err != nil {
		m.fail(ctx, "manager.AddBenchmark", "", err)
		return "", err
	}

	m.emit(ctx, EventBenchmark, observability.LevelInfo, "manager.AddBenchmark", map[string]any{
		observability.BenchmarkKey: b.URI(),
	})
	return b.URI(), nil
}

// RemoveBenchmark unregisters a benchmark added with AddBenchmark. Live
// sessions bound to it are unaffected. Returns the canonical URI.
func (m *Manager) RemoveBenchmark(ctx context.Context, raw string) (string, error) {
	uri, err := m.loader.Remove(ctx, raw)
	if err != nil {
		m.fail(ctx, "manager.RemoveBenchmark", "", err)
		return "", err
	}

	m.emit(ctx, EventBenchmarkRemove, observability.LevelInfo, "manager.RemoveBenchmark", map[string]any{
		observability.BenchmarkKey: uri,
	})
	return uri, nil
}

// Benchmarks lists the URIs of every resolvable benchmark.
func (m *Manager) Benchmarks(ctx context.Context) ([]string, error) {
	return m.loader.List(ctx)
}

// ActionSpace returns the action names indexed by action.
func (m *Manager) ActionSpace(ctx context.Context) ([]string, error) {
	return m.executor.ActionSpace(), nil
}

// Sessions returns the ids of all live sessions, sorted.
func (m *Manager) Sessions() []string {
	return m.sessions.IDs()
}

// Equivalent reports whether two live sessions have the same benchmark,
// element-wise equal histories, and, when both are materialized, equal
// canonical program serializations. The sessions are snapshotted one at a
// time.
func (m *Manager) Equivalent(ctx context.Context, a, b string) (bool, error) {
	sa, err := m.snapshot(a)
	if err != nil {
		return false, err
	}
	sb, err := m.snapshot(b)
	if err != nil {
		return false, err
	}
	return session.Equivalent(sa, sb)
}

func (m *Manager) snapshot(id string) (session.Snapshot, error) {
	s, release, err := m.acquire(id)
	if err != nil {
		return session.Snapshot{}, err
	}
	defer release()
	return s.Snapshot(), nil
}

// Shutdown closes every live session. Sessions closed concurrently by other
// callers are skipped.
func (m *Manager) Shutdown(ctx context.Context) error {
	var errs []error
	for _, id := range m.sessions.IDs() {
		if err := m.Close(ctx, id); err != nil && !errors.Is(err, protocol.ErrSessionNotFound) {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (m *Manager) acquire(id string) (*session.Session, func(), error) {
	s, err := m.sessions.Get(id)
	if err != nil {
		return nil, nil, err
	}
	release, err := s.Acquire()
	if err != nil {
		return nil, nil, err
	}
	return s, release, nil
}

// feedback returns the session's cached feedback, deriving it when absent.
// An episode already ended by a failed step stays done.
func (m *Manager) feedback(ctx context.Context, s *session.Session) (protocol.Feedback, error) {
	if fb, ok := s.Feedback(); ok {
		return fb, nil
	}

	cur, err := s.Program(ctx, m.apply)
	if err != nil {
		return protocol.Feedback{}, err
	}
	fb, err := m.derive(ctx, s.Benchmark(), cur)
	if err != nil {
		return protocol.Feedback{}, err
	}

	fb.Done = fb.Done || s.Done()
	s.SetFeedback(fb)
	return fb.Clone(), nil
}

func (m *Manager) apply(ctx context.Context, state program.State, action protocol.Action) (program.State, error) {
	return bounded(ctx, m.stepTimeout, "executor", func(ctx context.Context) (program.State, error) {
		return m.executor.Apply(ctx, state, action)
	})
}

func (m *Manager) derive(ctx context.Context, b *benchmark.Benchmark, current program.State) (protocol.Feedback, error) {
	baseline := b.Program()
	fb, err := bounded(ctx, m.stepTimeout, "provider", func(ctx context.Context) (protocol.Feedback, error) {
		return m.provider.Derive(ctx, baseline, current)
	})
	if err != nil {
		if protocol.ErrorKind(err) == protocol.KindUnknown && ctx.Err() == nil {
			err = fmt.Errorf("%w: provider: %w", protocol.ErrTransformFailed, err)
		}
		return protocol.Feedback{}, err
	}
	return fb, nil
}

// bounded runs fn in its own goroutine and waits at most timeout for it. A
// collaborator that overruns is abandoned and reported as
// protocol.ErrCollaboratorTimeout; cancellation of ctx itself is returned
// as ctx.Err(). Zero timeout waits for ctx only.
func bounded[T any](ctx context.Context, timeout time.Duration, name string, fn func(context.Context) (T, error)) (T, error) {
	if err := ctx.Err(); err != nil {
		var zero T
		return zero, err
	}

	callCtx := ctx
	if timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	type outcome struct {
		value T
		err   error
	}
	done := make(chan outcome, 1)
	go func() {
		v, err := fn(callCtx)
		done <- outcome{v, err}
	}()

	select {
	case out := <-done:
		if out.err != nil && callCtx.Err() != nil && ctx.Err() == nil {
			var zero T
			return zero, fmt.Errorf("%w: %s exceeded %s", protocol.ErrCollaboratorTimeout, name, timeout)
		}
		return out.value, out.err
	case <-callCtx.Done():
		var zero T
		if err := ctx.Err(); err != nil {
			return zero, err
		}
		return zero, fmt.Errorf("%w: %s exceeded %s", protocol.ErrCollaboratorTimeout, name, timeout)
	}
}

func (m *Manager) emit(ctx context.Context, typ observability.EventType, level observability.Level, source string, data map[string]any) {
	m.observer.OnEvent(ctx, observability.Event{
		Type:      typ,
		Level:     level,
		Timestamp: time.Now(),
		Source:    source,
		Data:      data,
	})
}

func (m *Manager) fail(ctx context.Context, source, id string, err error) {
	data := map[string]any{
		"kind":                 string(protocol.ErrorKind(err)),
		observability.ErrorKey: err.Error(),
	}
	if id != "" {
		data[observability.SessionKey] = id
	}
	m.emit(ctx, EventError, observability.LevelWarning, source, data)
}

func since(start time.Time) float64 {
	return float64(time.Since(start).Microseconds()) / 1000
}
