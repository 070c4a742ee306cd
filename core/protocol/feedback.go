package protocol

import (
	"maps"
	"slices"
)

// Action is an index into a benchmark-defined action space.
type Action int

// Observation is a named feature vector derived from program state.
type Observation map[string]float64

// Feedback is what the observation provider derives from one program state.
type Feedback struct {
	Observation Observation `json:"observation"`
	Signal      float64     `json:"signal"`
	Done        bool        `json:"done"`
}

// Clone returns a copy of f whose observation map is not shared.
func (f Feedback) Clone() Feedback {
	f.Observation = maps.Clone(f.Observation)
	return f
}

// StepResult is the caller-facing outcome of a step. When the step fails
// with a terminal error, Done is true and Observation is empty.
type StepResult struct {
	Feedback
	Action Action `json:"action"`
}

// CloneActions copies an action history into a new backing array. A nil or
// empty history yields an empty, non-nil slice.
func CloneActions(actions []Action) []Action {
	if len(actions) == 0 {
		return []Action{}
	}
	return slices.Clone(actions)
}
