package protocol

// Request and response shapes for the session protocol. The same types are
// used in-process and as rpc payloads.

type OpenRequest struct {
	Benchmark string `json:"benchmark"`
}

type OpenResponse struct {
	SessionID string   `json:"session_id"`
	Benchmark string   `json:"benchmark"`
	Feedback  Feedback `json:"feedback"`
}

type StepRequest struct {
	SessionID string `json:"session_id"`
	Action    Action `json:"action"`
}

// StepResponse carries terminal step failures in-band: Kind and Error are
// set when the step failed but still produced a result with Done set.
type StepResponse struct {
	Result StepResult `json:"result"`
	Kind   Kind       `json:"kind,omitempty"`
	Error  string     `json:"error,omitempty"`
}

// ResetRequest rebinds the session to Benchmark when it is non-empty.
type ResetRequest struct {
	SessionID string `json:"session_id"`
	Benchmark string `json:"benchmark,omitempty"`
}

type ResetResponse struct {
	Benchmark string   `json:"benchmark"`
	Feedback  Feedback `json:"feedback"`
}

type ForkRequest struct {
	SessionID string `json:"session_id"`
}

type ForkResponse struct {
	SessionID string `json:"session_id"`
}

type CloseRequest struct {
	SessionID string `json:"session_id"`
}

type CloseResponse struct{}

type ObserveRequest struct {
	SessionID string `json:"session_id"`
}

type ObserveResponse struct {
	Feedback Feedback `json:"feedback"`
}

type StateRequest struct {
	SessionID string `json:"session_id"`
}

type StateResponse struct {
	State EnvState `json:"state"`
}

type RestoreRequest struct {
	State EnvState `json:"state"`
}

type RestoreResponse struct {
	SessionID string   `json:"session_id"`
	Feedback  Feedback `json:"feedback"`
}

type ActionSpaceRequest struct{}

type ActionSpaceResponse struct {
	Names []string `json:"names"`
}

type AddBenchmarkRequest struct {
	Benchmark string `json:"benchmark"`
	Source    string `json:"source"`
}

type AddBenchmarkResponse struct {
	Benchmark string `json:"benchmark"`
}

type RemoveBenchmarkRequest struct {
	Benchmark string `json:"benchmark"`
}

type RemoveBenchmarkResponse struct {
	Benchmark string `json:"benchmark"`
}

type BenchmarksRequest struct{}

type BenchmarksResponse struct {
	Benchmarks []string `json:"benchmarks"`
}
