package benchmark_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/tailored-agentic-units/optenv/benchmark"
	"github.com/tailored-agentic-units/optenv/core/protocol"
	"github.com/tailored-agentic-units/optenv/ir"
	"github.com/tailored-agentic-units/optenv/program"
)

func TestLoader_ResolveBuiltin(t *testing.T) {
	loader := benchmark.NewLoader(nil, benchmark.BuiltinStore())

	for _, name := range []string{"crc32", "qsort", "sha"} {
		t.Run(name, func(t *testing.T) {
			b, err := loader.Resolve(context.Background(), "cBench-v0/"+name)
			if err != nil {
				t.Fatalf("Resolve() error = %v", err)
			}
			if b.URI() != "benchmark://cbench-v0/"+name {
				t.Errorf("URI() = %q", b.URI())
			}
			if b.Program().(*ir.Module).Count() == 0 {
				t.Error("builtin benchmark is empty")
			}
		})
	}
}

func TestLoader_Resolve_NotFound(t *testing.T) {
	loader := benchmark.NewLoader(nil, benchmark.BuiltinStore())

	tests := []string{"cbench-v0/missing", "nope", "other-v0/crc32"}
	for _, raw := range tests {
		t.Run(raw, func(t *testing.T) {
			_, err := loader.Resolve(context.Background(), raw)
			if !errors.Is(err, protocol.ErrBenchmarkNotFound) {
				t.Errorf("Resolve(%q) error = %v, want ErrBenchmarkNotFound", raw, err)
			}
		})
	}
}

func TestLoader_Resolve_ParseFailure(t *testing.T) {
	store := benchmark.NewMemoryStore(benchmark.Entry{Key: "bad-v0/prog", Value: []byte("%a = frob")})
	loader := benchmark.NewLoader(nil, store)

	_, err := loader.Resolve(context.Background(), "bad-v0/prog")
	if !errors.Is(err, protocol.ErrBenchmarkNotFound) {
		t.Errorf("error = %v, want ErrBenchmarkNotFound", err)
	}
	if !errors.Is(err, benchmark.ErrParseFailed) {
		t.Errorf("error = %v, want ErrParseFailed", err)
	}
}

func TestLoader_Resolve_Cached(t *testing.T) {
	loader := benchmark.NewLoader(nil, benchmark.BuiltinStore())

	a, _ := loader.Resolve(context.Background(), "cbench-v0/crc32")
	b, _ := loader.Resolve(context.Background(), "benchmark://cbench-v0/crc32")
	if a != b {
		t.Error("resolving the same benchmark twice returned different references")
	}
}

func TestLoader_Resolve_ProgramIsACopy(t *testing.T) {
	loader := benchmark.NewLoader(nil, benchmark.BuiltinStore())
	b, _ := loader.Resolve(context.Background(), "cbench-v0/sha")

	m := b.Program().(*ir.Module)
	m.Instrs = m.Instrs[:1]

	equal, err := program.Equal(b.Program(), b.Program())
	if err != nil || !equal {
		t.Fatal("Program() copies differ")
	}
	if b.Program().(*ir.Module).Count() == 1 {
		t.Error("mutating a Program() copy changed the benchmark")
	}
}

type countingStore struct {
	benchmark.Store
	loads atomic.Int32
}

func (s *countingStore) Load(ctx context.Context, keys ...string) ([]benchmark.Entry, error) {
	s.loads.Add(1)
	return s.Store.Load(ctx, keys...)
}

func TestLoader_Resolve_ConcurrentDeduplicated(t *testing.T) {
	store := &countingStore{Store: benchmark.BuiltinStore()}
	loader := benchmark.NewLoader(nil, store)

	const n = 50
	results := make([]*benchmark.Benchmark, n)

	var wg sync.WaitGroup
	wg.Add(n)
	for i := range n {
		go func() {
			defer wg.Done()
			b, err := loader.Resolve(context.Background(), "cbench-v0/qsort")
			if err != nil {
				t.Errorf("Resolve() error = %v", err)
				return
			}
			results[i] = b
		}()
	}
	wg.Wait()

	for i := 1; i < n; i++ {
		if results[i] != results[0] {
			t.Fatal("concurrent resolves returned different references")
		}
	}
	if got := store.loads.Load(); got > n {
		t.Errorf("store loaded %d times", got)
	}
}

func TestLoader_Add(t *testing.T) {
	loader := benchmark.NewLoader(nil, benchmark.BuiltinStore())

	added, err := loader.Add(context.Background(), "user-v0/prog", []byte("%a = const 1\nret %a"))
	if err != nil {
		t.Fatalf("Add() error = %v", err)
	}
	if added.URI() != "benchmark://user-v0/prog" {
		t.Errorf("URI() = %q", added.URI())
	}

	resolved, err := loader.Resolve(context.Background(), "user-v0/prog")
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if resolved != added {
		t.Error("Resolve() after Add returned a different reference")
	}

	uris, _ := loader.List(context.Background())
	found := false
	for _, uri := range uris {
		if uri == "benchmark://user-v0/prog" {
			found = true
		}
	}
	if !found {
		t.Errorf("List() = %v, missing added benchmark", uris)
	}
}

func TestLoader_Add_Invalid(t *testing.T) {
	loader := benchmark.NewLoader(nil)

	if _, err := loader.Add(context.Background(), "user-v0/prog", []byte("bogus")); !errors.Is(err, benchmark.ErrParseFailed) {
		t.Errorf("Add() error = %v, want ErrParseFailed", err)
	}
	if _, err := loader.Add(context.Background(), "noslash", []byte("ret")); !errors.Is(err, protocol.ErrBenchmarkNotFound) {
		t.Errorf("Add() error = %v, want ErrBenchmarkNotFound", err)
	}
}

func TestLoader_FileStoreShadowsBuiltin(t *testing.T) {
	root := t.TempDir()
	writeTestFile(t, root, "cbench-v0/crc32.ir", "ret")

	cfg := benchmark.DefaultConfig()
	cfg.Path = root
	loader, err := benchmark.NewLoaderFromConfig(&cfg)
	if err != nil {
		t.Fatalf("NewLoaderFromConfig() error = %v", err)
	}

	b, err := loader.Resolve(context.Background(), "cbench-v0/crc32")
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if b.Program().(*ir.Module).Count() != 1 {
		t.Error("file store benchmark did not take precedence over builtin")
	}

	if _, err := loader.Resolve(context.Background(), "cbench-v0/sha"); err != nil {
		t.Errorf("builtin fallback failed: %v", err)
	}
}

func TestConfig_Merge(t *testing.T) {
	cfg := benchmark.DefaultConfig()
	if cfg.Extension != ".ir" {
		t.Errorf("got Extension %q, want .ir", cfg.Extension)
	}

	cfg.Merge(&benchmark.Config{Path: "/data/bench"})
	if cfg.Path != "/data/bench" || cfg.Extension != ".ir" {
		t.Errorf("got %+v", cfg)
	}

	cfg.Merge(&benchmark.Config{})
	if cfg.Path != "/data/bench" {
		t.Error("empty source overwrote Path")
	}
}

// gateStore blocks every Load until release is closed and signals entered
// on the first one.
type gateStore struct {
	benchmark.Store
	entered chan struct{}
	release chan struct{}
}

func newGateStore(inner benchmark.Store) *gateStore {
	return &gateStore{Store: inner, entered: make(chan struct{}, 1), release: make(chan struct{})}
}

func (s *gateStore) Load(ctx context.Context, keys ...string) ([]benchmark.Entry, error) {
	select {
	case s.entered <- struct{}{}:
	default:
	}
	<-s.release
	return s.Store.Load(ctx, keys...)
}

func TestLoader_Resolve_CancelledCallerDoesNotFailOthers(t *testing.T) {
	store := newGateStore(benchmark.BuiltinStore())
	loader := benchmark.NewLoader(nil, store)

	ctx, cancel := context.WithCancel(context.Background())
	first := make(chan error, 1)
	go func() {
		_, err := loader.Resolve(ctx, "cbench-v0/sha")
		first <- err
	}()
	<-store.entered

	second := make(chan error, 1)
	go func() {
		_, err := loader.Resolve(context.Background(), "cbench-v0/sha")
		second <- err
	}()

	cancel()
	if err := <-first; !errors.Is(err, context.Canceled) {
		t.Errorf("cancelled Resolve() error = %v, want context.Canceled", err)
	}

	close(store.release)
	if err := <-second; err != nil {
		t.Errorf("concurrent Resolve() error = %v", err)
	}
}

func TestLoader_AddWinsOverInflightLoad(t *testing.T) {
	stale := benchmark.NewMemoryStore(benchmark.Entry{Key: "user-v0/prog", Value: []byte("%a = const 1\n%b = const 2\nret %a\n")})
	store := newGateStore(stale)
	loader := benchmark.NewLoader(nil, store)

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = loader.Resolve(context.Background(), "user-v0/prog")
	}()
	<-store.entered

	added, err := loader.Add(context.Background(), "user-v0/prog", []byte("ret\n"))
	if err != nil {
		t.Fatalf("Add() error = %v", err)
	}

	close(store.release)
	<-done

	got, err := loader.Resolve(context.Background(), "user-v0/prog")
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if got != added {
		t.Errorf("Resolve() returned the stale load (%d instructions), want the added benchmark",
			got.Program().(*ir.Module).Count())
	}
}

func TestLoader_Remove(t *testing.T) {
	loader := benchmark.NewLoader(nil, benchmark.BuiltinStore())
	ctx := context.Background()

	if _, err := loader.Add(ctx, "user-v0/prog", []byte("ret\n")); err != nil {
		t.Fatalf("Add() error = %v", err)
	}
	uri, err := loader.Remove(ctx, "User-v0/prog")
	if err != nil {
		t.Fatalf("Remove() error = %v", err)
	}
	if uri != "benchmark://user-v0/prog" {
		t.Errorf("got uri %q", uri)
	}
	if _, err := loader.Resolve(ctx, uri); !errors.Is(err, protocol.ErrBenchmarkNotFound) {
		t.Errorf("Resolve() after Remove error = %v, want ErrBenchmarkNotFound", err)
	}

	if _, err := loader.Remove(ctx, uri); !errors.Is(err, protocol.ErrBenchmarkNotFound) {
		t.Errorf("second Remove() error = %v, want ErrBenchmarkNotFound", err)
	}
	if _, err := loader.Remove(ctx, "cbench-v0/crc32"); !errors.Is(err, protocol.ErrBenchmarkNotFound) {
		t.Errorf("Remove(builtin) error = %v, want ErrBenchmarkNotFound", err)
	}
	if _, err := loader.Resolve(ctx, "cbench-v0/crc32"); err != nil {
		t.Errorf("builtin unresolvable after failed Remove: %v", err)
	}
}

func TestLoader_AddShadowsThenRemoveRestoresBuiltin(t *testing.T) {
	loader := benchmark.NewLoader(nil, benchmark.BuiltinStore())
	ctx := context.Background()

	builtin, _ := loader.Resolve(ctx, "cbench-v0/crc32")
	if _, err := loader.Add(ctx, "cbench-v0/crc32", []byte("ret\n")); err != nil {
		t.Fatalf("Add() error = %v", err)
	}
	if _, err := loader.Remove(ctx, "cbench-v0/crc32"); err != nil {
		t.Fatalf("Remove() error = %v", err)
	}

	got, err := loader.Resolve(ctx, "cbench-v0/crc32")
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if got.Program().(*ir.Module).Count() != builtin.Program().(*ir.Module).Count() {
		t.Error("Resolve() after Remove did not fall back to the builtin")
	}
}

func TestLoader_Persist(t *testing.T) {
	root := t.TempDir()
	cfg := benchmark.DefaultConfig()
	cfg.Path = root
	cfg.Persist = true
	ctx := context.Background()

	loader, err := benchmark.NewLoaderFromConfig(&cfg)
	if err != nil {
		t.Fatalf("NewLoaderFromConfig() error = %v", err)
	}
	if _, err := loader.Add(ctx, "user-v0/prog", []byte("%a = const 1\nret %a\n")); err != nil {
		t.Fatalf("Add() error = %v", err)
	}
	if _, err := os.Stat(filepath.Join(root, "user-v0", "prog.ir")); err != nil {
		t.Fatalf("added benchmark not written: %v", err)
	}

	restarted, err := benchmark.NewLoaderFromConfig(&cfg)
	if err != nil {
		t.Fatalf("NewLoaderFromConfig() error = %v", err)
	}
	if _, err := restarted.Resolve(ctx, "user-v0/prog"); err != nil {
		t.Fatalf("Resolve() after restart error = %v", err)
	}

	if _, err := restarted.Remove(ctx, "user-v0/prog"); err != nil {
		t.Fatalf("Remove() error = %v", err)
	}
	if _, err := os.Stat(filepath.Join(root, "user-v0", "prog.ir")); !os.IsNotExist(err) {
		t.Errorf("removed benchmark still on disk: %v", err)
	}
}

func TestLoader_NoPersistLeavesPathUntouched(t *testing.T) {
	root := t.TempDir()
	cfg := benchmark.DefaultConfig()
	cfg.Path = root

	loader, err := benchmark.NewLoaderFromConfig(&cfg)
	if err != nil {
		t.Fatalf("NewLoaderFromConfig() error = %v", err)
	}
	if _, err := loader.Add(context.Background(), "user-v0/prog", []byte("ret\n")); err != nil {
		t.Fatalf("Add() error = %v", err)
	}
	if _, err := os.Stat(filepath.Join(root, "user-v0")); !os.IsNotExist(err) {
		t.Errorf("Add() wrote under Path without persist: %v", err)
	}
}

func TestNewLoaderFromConfig_PersistRequiresPath(t *testing.T) {
	cfg := benchmark.DefaultConfig()
	cfg.Persist = true
	if _, err := benchmark.NewLoaderFromConfig(&cfg); !errors.Is(err, benchmark.ErrInvalidConfig) {
		t.Errorf("error = %v, want ErrInvalidConfig", err)
	}
}
