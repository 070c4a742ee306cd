package session

// Config holds session management parameters.
type Config struct {
	ForkMode    ForkMode `json:"fork_mode,omitempty" yaml:"fork_mode,omitempty"`
	MaxSessions int      `json:"max_sessions,omitempty" yaml:"max_sessions,omitempty"` // Zero means unlimited.
}

// DefaultConfig returns the default session configuration.
func DefaultConfig() Config {
	return Config{ForkMode: ForkCopy}
}

// Merge applies non-zero values from source into c.
func (c *Config) Merge(source *Config) {
	if source.ForkMode != "" {
		c.ForkMode = source.ForkMode
	}
	if source.MaxSessions > 0 {
		c.MaxSessions = source.MaxSessions
	}
}

// NewRegistryFromConfig creates a Registry honoring MaxSessions.
func NewRegistryFromConfig(cfg *Config) *Registry {
	return NewRegistry(cfg.MaxSessions)
}
