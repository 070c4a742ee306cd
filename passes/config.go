package passes

const defaultMaxInstructions = 256

// Config holds builtin pass parameters.
type Config struct {
	MaxInstructions int `json:"max_instructions,omitempty" yaml:"max_instructions,omitempty"`
}

// DefaultConfig returns the default pass configuration.
func DefaultConfig() Config {
	return Config{MaxInstructions: defaultMaxInstructions}
}

// Merge applies non-zero values from source into c.
func (c *Config) Merge(source *Config) {
	if source.MaxInstructions > 0 {
		c.MaxInstructions = source.MaxInstructions
	}
}
