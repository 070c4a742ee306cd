package manager

import "github.com/tailored-agentic-units/optenv/observability"

// Manager event types emitted over the session lifecycle.
const (
	EventOpen       observability.EventType = "manager.session.open"
	EventStep       observability.EventType = "manager.session.step"
	EventStepFailed observability.EventType = "manager.session.step.failed"
	EventReset      observability.EventType = "manager.session.reset"
	EventFork       observability.EventType = "manager.session.fork"
	EventClose      observability.EventType = "manager.session.close"
	EventRestore    observability.EventType = "manager.session.restore"
	EventBenchmark  observability.EventType = "manager.benchmark.add"
	EventError      observability.EventType = "manager.error"

	EventBenchmarkRemove observability.EventType = "manager.benchmark.remove"
)
