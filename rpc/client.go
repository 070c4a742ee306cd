package rpc

import (
	"context"
	"strings"

	"connectrpc.com/connect"

	"github.com/tailored-agentic-units/optenv/core/protocol"
)

// Client calls a remote session service. It implements client.Backend, so a
// client.Env can run over the network unchanged.
type Client struct {
	open         *connect.Client[protocol.OpenRequest, protocol.OpenResponse]
	step         *connect.Client[protocol.StepRequest, protocol.StepResponse]
	reset        *connect.Client[protocol.ResetRequest, protocol.ResetResponse]
	fork         *connect.Client[protocol.ForkRequest, protocol.ForkResponse]
	close        *connect.Client[protocol.CloseRequest, protocol.CloseResponse]
	observe      *connect.Client[protocol.ObserveRequest, protocol.ObserveResponse]
	state        *connect.Client[protocol.StateRequest, protocol.StateResponse]
	restore      *connect.Client[protocol.RestoreRequest, protocol.RestoreResponse]
	actionSpace  *connect.Client[protocol.ActionSpaceRequest, protocol.ActionSpaceResponse]
	addBenchmark *connect.Client[protocol.AddBenchmarkRequest, protocol.AddBenchmarkResponse]
	removeBench  *connect.Client[protocol.RemoveBenchmarkRequest, protocol.RemoveBenchmarkResponse]
	benchmarks   *connect.Client[protocol.BenchmarksRequest, protocol.BenchmarksResponse]
}

// NewClient creates a Client for the service at baseURL
// (e.g. "http://127.0.0.1:50051").
func NewClient(httpClient connect.HTTPClient, baseURL string, opts ...connect.ClientOption) *Client {
	base := strings.TrimRight(baseURL, "/")
	opts = append([]connect.ClientOption{connect.WithCodec(jsonCodec{})}, opts...)

	return &Client{
		open:         connect.NewClient[protocol.OpenRequest, protocol.OpenResponse](httpClient, base+ProcedureOpen, opts...),
		step:         connect.NewClient[protocol.StepRequest, protocol.StepResponse](httpClient, base+ProcedureStep, opts...),
		reset:        connect.NewClient[protocol.ResetRequest, protocol.ResetResponse](httpClient, base+ProcedureReset, opts...),
		fork:         connect.NewClient[protocol.ForkRequest, protocol.ForkResponse](httpClient, base+ProcedureFork, opts...),
		close:        connect.NewClient[protocol.CloseRequest, protocol.CloseResponse](httpClient, base+ProcedureClose, opts...),
		observe:      connect.NewClient[protocol.ObserveRequest, protocol.ObserveResponse](httpClient, base+ProcedureObserve, opts...),
		state:        connect.NewClient[protocol.StateRequest, protocol.StateResponse](httpClient, base+ProcedureState, opts...),
		restore:      connect.NewClient[protocol.RestoreRequest, protocol.RestoreResponse](httpClient, base+ProcedureRestore, opts...),
		actionSpace:  connect.NewClient[protocol.ActionSpaceRequest, protocol.ActionSpaceResponse](httpClient, base+ProcedureActionSpace, opts...),
		addBenchmark: connect.NewClient[protocol.AddBenchmarkRequest, protocol.AddBenchmarkResponse](httpClient, base+ProcedureAddBenchmark, opts...),
		removeBench:  connect.NewClient[protocol.RemoveBenchmarkRequest, protocol.RemoveBenchmarkResponse](httpClient, base+ProcedureRemoveBenchmark, opts...),
		benchmarks:   connect.NewClient[protocol.BenchmarksRequest, protocol.BenchmarksResponse](httpClient, base+ProcedureBenchmarks, opts...),
	}
}

func call[Req, Res any](ctx context.Context, c *connect.Client[Req, Res], req *Req) (*Res, error) {
	resp, err := c.CallUnary(ctx, connect.NewRequest(req))
	if err != nil {
		return nil, fromConnectError(err)
	}
	return resp.Msg, nil
}

func (c *Client) Open(ctx context.Context, benchmark string) (protocol.OpenResponse, error) {
	res, err := call(ctx, c.open, &protocol.OpenRequest{Benchmark: benchmark})
	if err != nil {
		return protocol.OpenResponse{}, err
	}
	return *res, nil
}

// Step returns the step result together with the rebuilt error when the
// server reports a terminal failure.
func (c *Client) Step(ctx context.Context, id string, action protocol.Action) (protocol.StepResult, error) {
	res, err := call(ctx, c.step, &protocol.StepRequest{SessionID: id, Action: action})
	if err != nil {
		return protocol.StepResult{Action: action}, err
	}
	return res.Result, fromStepResponse(res)
}

func (c *Client) Reset(ctx context.Context, id, benchmark string) (protocol.ResetResponse, error) {
	res, err := call(ctx, c.reset, &protocol.ResetRequest{SessionID: id, Benchmark: benchmark})
	if err != nil {
		return protocol.ResetResponse{}, err
	}
	return *res, nil
}

func (c *Client) Fork(ctx context.Context, id string) (string, error) {
	res, err := call(ctx, c.fork, &protocol.ForkRequest{SessionID: id})
	if err != nil {
		return "", err
	}
	return res.SessionID, nil
}

func (c *Client) Close(ctx context.Context, id string) error {
	_, err := call(ctx, c.close, &protocol.CloseRequest{SessionID: id})
	return err
}

func (c *Client) Observe(ctx context.Context, id string) (protocol.Feedback, error) {
	res, err := call(ctx, c.observe, &protocol.ObserveRequest{SessionID: id})
	if err != nil {
		return protocol.Feedback{}, err
	}
	return res.Feedback, nil
}

func (c *Client) State(ctx context.Context, id string) (protocol.EnvState, error) {
	res, err := call(ctx, c.state, &protocol.StateRequest{SessionID: id})
	if err != nil {
		return protocol.EnvState{}, err
	}
	res.State.Actions = protocol.CloneActions(res.State.Actions)
	return res.State, nil
}

func (c *Client) Restore(ctx context.Context, state protocol.EnvState) (protocol.RestoreResponse, error) {
	res, err := call(ctx, c.restore, &protocol.RestoreRequest{State: state})
	if err != nil {
		return protocol.RestoreResponse{}, err
	}
	return *res, nil
}

func (c *Client) ActionSpace(ctx context.Context) ([]string, error) {
	res, err := call(ctx, c.actionSpace, &protocol.ActionSpaceRequest{})
	if err != nil {
		return nil, err
	}
	return res.Names, nil
}

// AddBenchmark registers src under benchmark on the server and returns the
// canonical URI.
func (c *Client) AddBenchmark(ctx context.Context, benchmark string, src []byte) (string, error) {
	res, err := call(ctx, c.addBenchmark, &protocol.AddBenchmarkRequest{Benchmark: benchmark, Source: string(src)})
	if err != nil {
		return "", err
	}
	return res.Benchmark, nil
}

// RemoveBenchmark unregisters a benchmark added with AddBenchmark and returns
// its canonical URI.
func (c *Client) RemoveBenchmark(ctx context.Context, benchmark string) (string, error) {
	res, err := call(ctx, c.removeBench, &protocol.RemoveBenchmarkRequest{Benchmark: benchmark})
	if err != nil {
		return "", err
	}
	return res.Benchmark, nil
}

// Benchmarks lists the server's resolvable benchmark URIs.
func (c *Client) Benchmarks(ctx context.Context) ([]string, error) {
	res, err := call(ctx, c.benchmarks, &protocol.BenchmarksRequest{})
	if err != nil {
		return nil, err
	}
	return res.Benchmarks, nil
}
