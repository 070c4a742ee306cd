// Package passes provides the action executor: an ordered registry of named
// program transformations. The index of a pass in the registry is the action
// that selects it.
package passes

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/tailored-agentic-units/optenv/core/protocol"
	"github.com/tailored-agentic-units/optenv/program"
)

// Handler transforms a program state. Handlers receive a private copy of the
// state and must be deterministic: equal inputs yield equal outputs.
type Handler func(ctx context.Context, state program.State) (program.State, error)

// Pass describes a registered transformation.
type Pass struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

type entry struct {
	pass    Pass
	handler Handler
}

// Registry is an ordered set of passes. Registration order fixes the action
// space: the first registered pass is action 0. Safe for concurrent use.
type Registry struct {
	entries []entry
	index   map[string]int
	mu      sync.RWMutex
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{index: make(map[string]int)}
}

// Register appends a pass to the action space.
// Returns ErrAlreadyExists if a pass with the same name is registered.
func (r *Registry) Register(pass Pass, handler Handler) error {
	if pass.Name == "" {
		return ErrEmptyName
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.index[pass.Name]; exists {
		return fmt.Errorf("%w: %s", ErrAlreadyExists, pass.Name)
	}

	r.index[pass.Name] = len(r.entries)
	r.entries = append(r.entries, entry{pass: pass, handler: handler})
	return nil
}

// Replace swaps the handler of an existing pass, keeping its action index.
// Returns ErrNotFound if no pass with the given name is registered.
func (r *Registry) Replace(pass Pass, handler Handler) error {
	if pass.Name == "" {
		return ErrEmptyName
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	i, exists := r.index[pass.Name]
	if !exists {
		return fmt.Errorf("%w: %s", ErrNotFound, pass.Name)
	}

	r.entries[i] = entry{pass: pass, handler: handler}
	return nil
}

// Lookup returns the action that selects the named pass.
func (r *Registry) Lookup(name string) (protocol.Action, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	i, ok := r.index[name]
	return protocol.Action(i), ok
}

// Passes returns the registered passes in action order.
func (r *Registry) Passes() []Pass {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Pass, len(r.entries))
	for i, e := range r.entries {
		out[i] = e.pass
	}
	return out
}

// ActionSpace returns pass names indexed by action.
func (r *Registry) ActionSpace() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, len(r.entries))
	for i, e := range r.entries {
		names[i] = e.pass.Name
	}
	return names
}

// Contains reports whether action selects a registered pass.
func (r *Registry) Contains(action protocol.Action) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return action >= 0 && int(action) < len(r.entries)
}

// Apply runs the pass selected by action on a copy of state; state itself is
// never modified. Unknown actions fail with protocol.ErrInvalidAction and
// handler failures are reported as protocol.ErrTransformFailed.
func (r *Registry) Apply(ctx context.Context, state program.State, action protocol.Action) (program.State, error) {
	r.mu.RLock()
	if action < 0 || int(action) >= len(r.entries) {
		r.mu.RUnlock()
		return nil, fmt.Errorf("%w: %d", protocol.ErrInvalidAction, action)
	}
	e := r.entries[action]
	r.mu.RUnlock()

	next, err := e.handler(ctx, state.Clone())
	if err != nil {
		if errors.Is(err, protocol.ErrTransformFailed) || errors.Is(err, protocol.ErrCollaboratorTimeout) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: pass %s: %w", protocol.ErrTransformFailed, e.pass.Name, err)
	}
	if next == nil {
		return nil, fmt.Errorf("%w: pass %s returned no program", protocol.ErrTransformFailed, e.pass.Name)
	}

	return next, nil
}
