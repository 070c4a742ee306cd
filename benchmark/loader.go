package benchmark

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/tailored-agentic-units/optenv/core/protocol"
)

// Loader resolves benchmark URIs against an ordered list of stores. The
// first store is the overlay that receives benchmarks added at runtime.
// Parsed benchmarks are cached for the loader's lifetime. All methods are
// safe for concurrent use.
type Loader struct {
	overlay Store
	stores  []Store
	parse   Parser
	flight  singleflight.Group
	cache   map[string]*Benchmark
	gen     map[string]uint64 // bumped by Add and Remove
	mu      sync.RWMutex
}

// NewLoader creates a Loader searching stores in order after an in-memory
// overlay. A nil parse defaults to ParseIR.
func NewLoader(parse Parser, stores ...Store) *Loader {
	return NewOverlayLoader(parse, NewMemoryStore(), stores...)
}

// NewOverlayLoader is NewLoader with a caller-supplied overlay, such as a
// FileStore that keeps added benchmarks across restarts.
func NewOverlayLoader(parse Parser, overlay Store, stores ...Store) *Loader {
	if parse == nil {
		parse = ParseIR
	}
	return &Loader{
		overlay: overlay,
		stores:  append([]Store{overlay}, stores...),
		parse:   parse,
		cache:   make(map[string]*Benchmark),
		gen:     make(map[string]uint64),
	}
}

// Resolve returns the Benchmark for raw, which may omit the scheme. Unknown
// or unparsable benchmarks fail with protocol.ErrBenchmarkNotFound.
// Concurrent resolves of one URI share a single load; a caller whose ctx
// ends stops waiting without failing the others.
func (l *Loader) Resolve(ctx context.Context, raw string) (*Benchmark, error) {
	uri, err := protocol.ParseBenchmarkURI(raw)
	if err != nil {
		return nil, err
	}

	l.mu.RLock()
	b, ok := l.cache[uri]
	l.mu.RUnlock()
	if ok {
		return b, nil
	}

	ch := l.flight.DoChan(uri, func() (any, error) {
		return l.load(context.WithoutCancel(ctx), uri)
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*Benchmark), nil
	}
}

func (l *Loader) load(ctx context.Context, uri string) (*Benchmark, error) {
	key := protocol.BenchmarkKey(uri)

	l.mu.RLock()
	gen := l.gen[uri]
	l.mu.RUnlock()

	for _, store := range l.stores {
		entries, err := store.Load(ctx, key)
		if errors.Is(err, ErrKeyNotFound) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %v", protocol.ErrBenchmarkNotFound, uri, err)
		}

		state, err := l.parse(uri, entries[0].Value)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %w", protocol.ErrBenchmarkNotFound, uri, errors.Join(ErrParseFailed, err))
		}

		return l.publish(uri, gen, New(uri, state)), nil
	}

	return nil, fmt.Errorf("%w: %s", protocol.ErrBenchmarkNotFound, uri)
}

// publish caches b unless an Add or Remove of uri happened since the load
// began, in which case the newer cached benchmark wins.
func (l *Loader) publish(uri string, gen uint64, b *Benchmark) *Benchmark {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.gen[uri] != gen {
		if cur, ok := l.cache[uri]; ok {
			return cur
		}
		return b
	}
	l.cache[uri] = b
	return b
}

// Add parses src and registers it under raw, replacing any cached benchmark
// with the same URI. Sessions already bound to the replaced benchmark keep
// their reference.
func (l *Loader) Add(ctx context.Context, raw string, src []byte) (*Benchmark, error) {
	uri, err := protocol.ParseBenchmarkURI(raw)
	if err != nil {
		return nil, err
	}

	state, err := l.parse(uri, src)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrParseFailed, uri, err)
	}

	if err := l.overlay.Save(ctx, Entry{Key: protocol.BenchmarkKey(uri), Value: src}); err != nil {
		return nil, err
	}

	b := New(uri, state)
	l.mu.Lock()
	l.gen[uri]++
	l.cache[uri] = b
	l.mu.Unlock()
	l.flight.Forget(uri)
	return b, nil
}

// Remove deletes a benchmark previously added to the overlay. Benchmarks
// from other stores cannot be removed and fail with
// protocol.ErrBenchmarkNotFound. Sessions bound to the removed benchmark
// keep their reference; a later Resolve falls through to the other stores.
func (l *Loader) Remove(ctx context.Context, raw string) (string, error) {
	uri, err := protocol.ParseBenchmarkURI(raw)
	if err != nil {
		return "", err
	}
	key := protocol.BenchmarkKey(uri)

	if _, err := l.overlay.Load(ctx, key); err != nil {
		if errors.Is(err, ErrKeyNotFound) {
			return "", fmt.Errorf("%w: %s: not an added benchmark", protocol.ErrBenchmarkNotFound, uri)
		}
		return "", err
	}
	if err := l.overlay.Delete(ctx, key); err != nil {
		return "", err
	}

	l.mu.Lock()
	l.gen[uri]++
	delete(l.cache, uri)
	l.mu.Unlock()
	l.flight.Forget(uri)
	return uri, nil
}

// List returns the canonical URIs of every benchmark across all stores,
// sorted and deduplicated.
func (l *Loader) List(ctx context.Context) ([]string, error) {
	seen := make(map[string]bool)
	for _, store := range l.stores {
		keys, err := store.List(ctx)
		if err != nil {
			return nil, err
		}
		for _, key := range keys {
			seen[protocol.BenchmarkScheme+key] = true
		}
	}

	uris := make([]string, 0, len(seen))
	for uri := range seen {
		uris = append(uris, uri)
	}
	sort.Strings(uris)
	return uris, nil
}
