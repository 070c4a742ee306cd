package client

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"runtime"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/tailored-agentic-units/optenv/core/protocol"
)

// ErrDiverged is wrapped by the *Divergence that FuzzFork returns.
var ErrDiverged = errors.New("fork diverged from source")

const (
	defaultFuzzEpisodes = 10
	defaultWarmupSteps  = 10
	defaultForkSteps    = 10
)

// FuzzConfig parameterizes FuzzFork. Zero fields take defaults.
type FuzzConfig struct {
	Benchmark   string `json:"benchmark" yaml:"benchmark"`
	Episodes    int    `json:"episodes,omitempty" yaml:"episodes,omitempty"`
	WarmupSteps int    `json:"warmup_steps,omitempty" yaml:"warmup_steps,omitempty"`
	ForkSteps   int    `json:"fork_steps,omitempty" yaml:"fork_steps,omitempty"`
	Seed        uint64 `json:"seed,omitempty" yaml:"seed,omitempty"`
	Workers     int    `json:"workers,omitempty" yaml:"workers,omitempty"`
}

func (c *FuzzConfig) defaults() {
	if c.Episodes <= 0 {
		c.Episodes = defaultFuzzEpisodes
	}
	if c.WarmupSteps <= 0 {
		c.WarmupSteps = defaultWarmupSteps
	}
	if c.ForkSteps <= 0 {
		c.ForkSteps = defaultForkSteps
	}
}

// FuzzReport summarizes a FuzzFork run that found no divergence.
type FuzzReport struct {
	Episodes int
	Steps    int
}

// Divergence describes the first point where a fork and its source
// disagreed. Step is -1 when they disagreed immediately after the fork.
type Divergence struct {
	Episode int
	Step    int
	Action  protocol.Action
	Reason  string
	Source  protocol.EnvState
	Clone   protocol.EnvState
}

func (d *Divergence) Error() string {
	return fmt.Sprintf("%s: episode %d step %d action %d: %s", ErrDiverged, d.Episode, d.Step, d.Action, d.Reason)
}

func (d *Divergence) Unwrap() error {
	return ErrDiverged
}

// FuzzFork checks that forks stay equivalent to their source. Each episode
// opens a session on cfg.Benchmark, applies up to WarmupSteps random
// actions, forks, then applies the same ForkSteps random actions to both
// sessions. Done flags, error kinds, and EnvStates must match after the fork
// and after every step. Up to Workers episodes run concurrently, each with
// its own generator seeded from Seed and the episode index. The first
// mismatch cancels the remaining episodes and is returned as a *Divergence.
func FuzzFork(ctx context.Context, backend Backend, cfg FuzzConfig) (FuzzReport, error) {
	cfg.defaults()

	space, err := backend.ActionSpace(ctx)
	if err != nil {
		return FuzzReport{}, err
	}
	if len(space) == 0 {
		return FuzzReport{}, fmt.Errorf("%w: empty action space", protocol.ErrInvalidAction)
	}

	var episodes, steps atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workerCount(cfg.Workers, cfg.Episodes))

	for episode := range cfg.Episodes {
		g.Go(func() error {
			rng := rand.New(rand.NewPCG(cfg.Seed, uint64(episode)))
			random := func() protocol.Action {
				return protocol.Action(rng.IntN(len(space)))
			}

			n, err := runEpisode(gctx, backend, cfg, episode, rng.IntN(cfg.WarmupSteps+1), random)
			steps.Add(int64(n))
			if err != nil {
				return err
			}
			episodes.Add(1)
			return nil
		})
	}

	err = g.Wait()
	return FuzzReport{Episodes: int(episodes.Load()), Steps: int(steps.Load())}, err
}

// runEpisode opens a session, applies warmup random actions, then checks a
// fork of it against the source.
func runEpisode(ctx context.Context, backend Backend, cfg FuzzConfig, episode, warmup int, random func() protocol.Action) (int, error) {
	env, _, err := Open(ctx, backend, cfg.Benchmark)
	if err != nil {
		return 0, err
	}
	defer env.Close(context.WithoutCancel(ctx))

	for range warmup {
		res, err := env.Step(ctx, random())
		if err != nil && !protocol.ErrorKind(err).Terminal() {
			return 0, err
		}
		if res.Done {
			break
		}
	}

	return fuzzEpisode(ctx, env, episode, cfg.ForkSteps, random)
}

// workerCount bounds concurrency to min(requested, episodes), defaulting to
// min(2*NumCPU, episodes).
func workerCount(requested, episodes int) int {
	n := requested
	if n <= 0 {
		n = runtime.NumCPU() * 2
	}
	return max(1, min(n, episodes))
}

func fuzzEpisode(ctx context.Context, env *Env, episode, steps int, random func() protocol.Action) (int, error) {
	clone, err := env.Fork(ctx)
	if err != nil {
		return 0, err
	}
	defer clone.Close(context.WithoutCancel(ctx))

	if err := compareStates(ctx, env, clone, &Divergence{Episode: episode, Step: -1}); err != nil {
		return 0, err
	}

	for i := range steps {
		action := random()
		ra, errA := env.Step(ctx, action)
		rb, errB := clone.Step(ctx, action)

		kindA, kindB := protocol.ErrorKind(errA), protocol.ErrorKind(errB)
		if (errA == nil) != (errB == nil) || kindA != kindB {
			return i, &Divergence{
				Episode: episode, Step: i, Action: action,
				Reason: fmt.Sprintf("errors differ: %v vs %v", errA, errB),
			}
		}
		if errA != nil && !kindA.Terminal() {
			return i, errA
		}
		if ra.Done != rb.Done {
			return i + 1, &Divergence{
				Episode: episode, Step: i, Action: action,
				Reason: fmt.Sprintf("done differs: %v vs %v", ra.Done, rb.Done),
			}
		}

		d := &Divergence{Episode: episode, Step: i, Action: action}
		if err := compareStates(ctx, env, clone, d); err != nil {
			return i + 1, err
		}
		if ra.Done {
			return i + 1, nil
		}
	}
	return steps, nil
}

func compareStates(ctx context.Context, a, b *Env, d *Divergence) error {
	sa, err := a.State(ctx)
	if err != nil {
		return err
	}
	sb, err := b.State(ctx)
	if err != nil {
		return err
	}
	if !sa.Equal(sb) {
		d.Reason = "states differ"
		d.Source, d.Clone = sa, sb
		return d
	}
	return nil
}
