// Package rpc carries the session protocol over Connect. NewHandler serves a
// Service; Client implements client.Backend against a remote handler. Error
// kinds survive the round trip, so errors.Is against the protocol sentinels
// works the same in-process and remotely.
package rpc

import (
	"context"
	"net/http"
	"time"

	"connectrpc.com/connect"

	"github.com/tailored-agentic-units/optenv/client"
	"github.com/tailored-agentic-units/optenv/core/protocol"
	"github.com/tailored-agentic-units/optenv/observability"
)

// Service is what the rpc handler serves. *manager.Manager implements it.
type Service interface {
	client.Backend
	AddBenchmark(ctx context.Context, raw string, src []byte) (string, error)
	RemoveBenchmark(ctx context.Context, raw string) (string, error)
	Benchmarks(ctx context.Context) ([]string, error)
}

// EventRequest is emitted once per handled call.
const EventRequest observability.EventType = "rpc.request"

// NewHandler returns a mux serving every session procedure. Callers may
// mount further routes on it.
func NewHandler(svc Service, observer observability.Observer, opts ...connect.HandlerOption) *http.ServeMux {
	if observer == nil {
		observer = observability.NoOpObserver{}
	}
	opts = append([]connect.HandlerOption{
		connect.WithCodec(jsonCodec{}),
		connect.WithInterceptors(observe(observer)),
	}, opts...)

	h := &handler{svc: svc}
	mux := http.NewServeMux()
	mux.Handle(unary(ProcedureOpen, h.open, opts...))
	mux.Handle(unary(ProcedureStep, h.step, opts...))
	mux.Handle(unary(ProcedureReset, h.reset, opts...))
	mux.Handle(unary(ProcedureFork, h.fork, opts...))
	mux.Handle(unary(ProcedureClose, h.close, opts...))
	mux.Handle(unary(ProcedureObserve, h.observe, opts...))
	mux.Handle(unary(ProcedureState, h.state, opts...))
	mux.Handle(unary(ProcedureRestore, h.restore, opts...))
	mux.Handle(unary(ProcedureActionSpace, h.actionSpace, opts...))
	mux.Handle(unary(ProcedureAddBenchmark, h.addBenchmark, opts...))
	mux.Handle(unary(ProcedureRemoveBenchmark, h.removeBenchmark, opts...))
	mux.Handle(unary(ProcedureBenchmarks, h.benchmarks, opts...))
	return mux
}

func unary[Req, Res any](procedure string, fn func(context.Context, *Req) (*Res, error), opts ...connect.HandlerOption) (string, http.Handler) {
	return procedure, connect.NewUnaryHandler(procedure, func(ctx context.Context, req *connect.Request[Req]) (*connect.Response[Res], error) {
		res, err := fn(ctx, req.Msg)
		if err != nil {
			return nil, toConnectError(err)
		}
		return connect.NewResponse(res), nil
	}, opts...)
}

func observe(observer observability.Observer) connect.UnaryInterceptorFunc {
	return func(next connect.UnaryFunc) connect.UnaryFunc {
		return func(ctx context.Context, req connect.AnyRequest) (connect.AnyResponse, error) {
			start := time.Now()
			res, err := next(ctx, req)

			level := observability.LevelVerbose
			data := map[string]any{
				"procedure":               req.Spec().Procedure,
				observability.DurationKey: float64(time.Since(start).Microseconds()) / 1000,
			}
			if err != nil {
				level = observability.LevelWarning
				data["code"] = connect.CodeOf(err).String()
			}

			observer.OnEvent(ctx, observability.Event{
				Type:      EventRequest,
				Level:     level,
				Timestamp: time.Now(),
				Source:    "rpc.Handler",
				Data:      data,
			})
			return res, err
		}
	}
}

type handler struct {
	svc Service
}

func (h *handler) open(ctx context.Context, req *protocol.OpenRequest) (*protocol.OpenResponse, error) {
	res, err := h.svc.Open(ctx, req.Benchmark)
	if err != nil {
		return nil, err
	}
	return &res, nil
}

// step answers terminal failures in-band so the caller still receives the
// result with Done set.
func (h *handler) step(ctx context.Context, req *protocol.StepRequest) (*protocol.StepResponse, error) {
	res, err := h.svc.Step(ctx, req.SessionID, req.Action)
	if err != nil {
		kind := protocol.ErrorKind(err)
		if !kind.Terminal() {
			return nil, err
		}
		return &protocol.StepResponse{Result: res, Kind: kind, Error: err.Error()}, nil
	}
	return &protocol.StepResponse{Result: res}, nil
}

func (h *handler) reset(ctx context.Context, req *protocol.ResetRequest) (*protocol.ResetResponse, error) {
	res, err := h.svc.Reset(ctx, req.SessionID, req.Benchmark)
	if err != nil {
		return nil, err
	}
	return &res, nil
}

func (h *handler) fork(ctx context.Context, req *protocol.ForkRequest) (*protocol.ForkResponse, error) {
	id, err := h.svc.Fork(ctx, req.SessionID)
	if err != nil {
		return nil, err
	}
	return &protocol.ForkResponse{SessionID: id}, nil
}

func (h *handler) close(ctx context.Context, req *protocol.CloseRequest) (*protocol.CloseResponse, error) {
	if err := h.svc.Close(ctx, req.SessionID); err != nil {
		return nil, err
	}
	return &protocol.CloseResponse{}, nil
}

func (h *handler) observe(ctx context.Context, req *protocol.ObserveRequest) (*protocol.ObserveResponse, error) {
	fb, err := h.svc.Observe(ctx, req.SessionID)
	if err != nil {
		return nil, err
	}
	return &protocol.ObserveResponse{Feedback: fb}, nil
}

func (h *handler) state(ctx context.Context, req *protocol.StateRequest) (*protocol.StateResponse, error) {
	st, err := h.svc.State(ctx, req.SessionID)
	if err != nil {
		return nil, err
	}
	return &protocol.StateResponse{State: st}, nil
}

func (h *handler) restore(ctx context.Context, req *protocol.RestoreRequest) (*protocol.RestoreResponse, error) {
	res, err := h.svc.Restore(ctx, req.State)
	if err != nil {
		return nil, err
	}
	return &res, nil
}

func (h *handler) actionSpace(ctx context.Context, _ *protocol.ActionSpaceRequest) (*protocol.ActionSpaceResponse, error) {
	names, err := h.svc.ActionSpace(ctx)
	if err != nil {
		return nil, err
	}
	return &protocol.ActionSpaceResponse{Names: names}, nil
}

func (h *handler) addBenchmark(ctx context.Context, req *protocol.AddBenchmarkRequest) (*protocol.AddBenchmarkResponse, error) {
	uri, err := h.svc.AddBenchmark(ctx, req.Benchmark, []byte(req.Source))
	if err != nil {
		return nil, err
	}
	return &protocol.AddBenchmarkResponse{Benchmark: uri}, nil
}

func (h *handler) removeBenchmark(ctx context.Context, req *protocol.RemoveBenchmarkRequest) (*protocol.RemoveBenchmarkResponse, error) {
	uri, err := h.svc.RemoveBenchmark(ctx, req.Benchmark)
	if err != nil {
		return nil, err
	}
	return &protocol.RemoveBenchmarkResponse{Benchmark: uri}, nil
}

func (h *handler) benchmarks(ctx context.Context, _ *protocol.BenchmarksRequest) (*protocol.BenchmarksResponse, error) {
	uris, err := h.svc.Benchmarks(ctx)
	if err != nil {
		return nil, err
	}
	return &protocol.BenchmarksResponse{Benchmarks: uris}, nil
}
