package passes

import "errors"

// Sentinel errors for the pass registry.
var (
	ErrAlreadyExists = errors.New("pass already registered")
	ErrNotFound      = errors.New("pass not found")
	ErrEmptyName     = errors.New("pass name is empty")
	ErrWrongProgram  = errors.New("unsupported program representation")
)
