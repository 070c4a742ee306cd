package manager

import (
	"time"

	"github.com/tailored-agentic-units/optenv/benchmark"
	"github.com/tailored-agentic-units/optenv/core/config"
	"github.com/tailored-agentic-units/optenv/passes"
	"github.com/tailored-agentic-units/optenv/session"
)

const (
	defaultStepTimeout = config.Duration(30 * time.Second)
	defaultObserver    = "slog"
)

// Config holds initialization parameters for the manager and its
// collaborators. Each section delegates to that subsystem's constructor.
type Config struct {
	Session    session.Config   `json:"session" yaml:"session"`
	Benchmarks benchmark.Config `json:"benchmarks" yaml:"benchmarks"`
	Passes     passes.Config    `json:"passes" yaml:"passes"`

	// StepTimeout bounds every executor and provider call.
	StepTimeout config.Duration `json:"step_timeout,omitempty" yaml:"step_timeout,omitempty"`

	// Observer names a registered observability observer.
	Observer string `json:"observer,omitempty" yaml:"observer,omitempty"`
}

// DefaultConfig returns a Config with defaults for all subsystems.
func DefaultConfig() Config {
	return Config{
		Session:     session.DefaultConfig(),
		Benchmarks:  benchmark.DefaultConfig(),
		Passes:      passes.DefaultConfig(),
		StepTimeout: defaultStepTimeout,
		Observer:    defaultObserver,
	}
}

// Merge applies non-zero values from source into c, delegating to each
// subsystem's Merge method.
func (c *Config) Merge(source *Config) {
	c.Session.Merge(&source.Session)
	c.Benchmarks.Merge(&source.Benchmarks)
	c.Passes.Merge(&source.Passes)

	if source.StepTimeout > 0 {
		c.StepTimeout = source.StepTimeout
	}
	if source.Observer != "" {
		c.Observer = source.Observer
	}
}

// LoadConfig reads a JSON or YAML (.yaml, .yml) config file, merges it with
// defaults, and returns the resulting Config.
func LoadConfig(filename string) (*Config, error) {
	cfg := DefaultConfig()

	var loaded Config
	if err := config.Decode(filename, &loaded); err != nil {
		return nil, err
	}

	cfg.Merge(&loaded)
	return &cfg, nil
}
