package manager

import "errors"

// ErrInvalidConfig is returned by New when the configuration names an
// unknown fork mode or observer.
var ErrInvalidConfig = errors.New("invalid manager config")
