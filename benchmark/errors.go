package benchmark

import "errors"

// Sentinel errors for store operations. Resolve failures additionally wrap
// protocol.ErrBenchmarkNotFound.
var (
	ErrKeyNotFound = errors.New("key not found")
	ErrInvalidKey  = errors.New("invalid key")
	ErrLoadFailed  = errors.New("load failed")
	ErrSaveFailed  = errors.New("save failed")
	ErrParseFailed = errors.New("parse failed")

	ErrInvalidConfig = errors.New("invalid benchmark config")
)
