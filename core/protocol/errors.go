package protocol

import "errors"

// Error kinds shared by the session manager, the client proxy, and the rpc
// transport. Every operation failure wraps exactly one of these.
var (
	ErrBenchmarkNotFound   = errors.New("benchmark not found")
	ErrSessionNotFound     = errors.New("session not found")
	ErrInvalidAction       = errors.New("invalid action")
	ErrTransformFailed     = errors.New("transform failed")
	ErrCollaboratorTimeout = errors.New("collaborator timeout")
)

// Kind is the stable wire name of an error kind.
type Kind string

const (
	KindUnknown             Kind = ""
	KindBenchmarkNotFound   Kind = "benchmark_not_found"
	KindSessionNotFound     Kind = "session_not_found"
	KindInvalidAction       Kind = "invalid_action"
	KindTransformFailed     Kind = "transform_failed"
	KindCollaboratorTimeout Kind = "collaborator_timeout"
)

var kinds = []struct {
	kind Kind
	err  error
}{
	{KindBenchmarkNotFound, ErrBenchmarkNotFound},
	{KindSessionNotFound, ErrSessionNotFound},
	{KindInvalidAction, ErrInvalidAction},
	{KindTransformFailed, ErrTransformFailed},
	{KindCollaboratorTimeout, ErrCollaboratorTimeout},
}

// ErrorKind classifies err by the first sentinel it wraps.
// Returns KindUnknown for nil or unclassified errors.
func ErrorKind(err error) Kind {
	if err == nil {
		return KindUnknown
	}
	for _, k := range kinds {
		if errors.Is(err, k.err) {
			return k.kind
		}
	}
	return KindUnknown
}

// Sentinel returns the sentinel error for a kind, or nil for KindUnknown.
func (k Kind) Sentinel() error {
	for _, entry := range kinds {
		if entry.kind == k {
			return entry.err
		}
	}
	return nil
}

// Terminal reports whether an error of this kind ends the episode.
func (k Kind) Terminal() bool {
	return k == KindTransformFailed || k == KindCollaboratorTimeout
}
