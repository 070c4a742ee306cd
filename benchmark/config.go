package benchmark

import "fmt"

const defaultExtension = ".ir"

// Config holds benchmark loader initialization parameters.
type Config struct {
	Path      string `json:"path,omitempty" yaml:"path,omitempty"`           // FileStore root; empty serves builtin benchmarks only.
	Extension string `json:"extension,omitempty" yaml:"extension,omitempty"` // Source file extension under Path.
	Persist   bool   `json:"persist,omitempty" yaml:"persist,omitempty"`     // Write added benchmarks under Path.
}

// DefaultConfig returns the default benchmark configuration.
func DefaultConfig() Config {
	return Config{Extension: defaultExtension}
}

// Merge applies non-zero values from source into c.
func (c *Config) Merge(source *Config) {
	if source.Path != "" {
		c.Path = source.Path
	}
	if source.Extension != "" {
		c.Extension = source.Extension
	}
	if source.Persist {
		c.Persist = true
	}
}

// NewLoaderFromConfig creates a Loader over the configured FileStore, if
// any, followed by the builtin dataset. With Persist set the FileStore is
// the overlay, so added benchmarks are written under Path and removable ones
// are the files found there.
func NewLoaderFromConfig(cfg *Config) (*Loader, error) {
	if cfg.Persist && cfg.Path == "" {
		return nil, fmt.Errorf("%w: persist requires a path", ErrInvalidConfig)
	}
	if cfg.Path == "" {
		return NewLoader(ParseIR, BuiltinStore()), nil
	}

	ext := cfg.Extension
	if ext == "" {
		ext = defaultExtension
	}
	files := NewFileStore(cfg.Path, ext)

	if cfg.Persist {
		return NewOverlayLoader(ParseIR, files, BuiltinStore()), nil
	}
	return NewLoader(ParseIR, files, BuiltinStore()), nil
}
