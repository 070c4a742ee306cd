// Package program defines the contract between the session manager and the
// program representation it transforms. The manager treats program state as
// opaque: it only clones it for fork and serializes it for equivalence checks.
package program

import "bytes"

// State is a materialized program representation. Implementations are
// mutable internally but must never be shared between sessions; the manager
// hands each session its own Clone.
type State interface {
	// Clone returns a deep copy that shares no mutable structure with the receiver.
	Clone() State
	// MarshalCanonical returns a serialization that is equal for equal programs.
	MarshalCanonical() ([]byte, error)
}

// Equal compares two states by canonical serialization. Two nil states are
// equal; a nil and a non-nil state are not.
func Equal(a, b State) (bool, error) {
	if a == nil || b == nil {
		return a == nil && b == nil, nil
	}

	ab, err := a.MarshalCanonical()
	if err != nil {
		return false, err
	}
	bb, err := b.MarshalCanonical()
	if err != nil {
		return false, err
	}
	return bytes.Equal(ab, bb), nil
}
