package rpc

import (
	"context"
	"errors"

	"connectrpc.com/connect"

	"github.com/tailored-agentic-units/optenv/benchmark"
	"github.com/tailored-agentic-units/optenv/core/protocol"
	"github.com/tailored-agentic-units/optenv/session"
)

// KindHeader carries the protocol.Kind of a failed call as connect error
// metadata.
const KindHeader = "Optenv-Error-Kind"

// remoteError rebuilds a server-side error on the client. It unwraps to the
// protocol sentinel so errors.Is behaves as it does in-process.
type remoteError struct {
	sentinel error
	msg      string
}

func (e *remoteError) Error() string {
	return e.msg
}

func (e *remoteError) Unwrap() error {
	return e.sentinel
}

func codeOf(err error) connect.Code {
	switch protocol.ErrorKind(err) {
	case protocol.KindBenchmarkNotFound, protocol.KindSessionNotFound:
		return connect.CodeNotFound
	case protocol.KindInvalidAction:
		return connect.CodeInvalidArgument
	case protocol.KindTransformFailed:
		return connect.CodeAborted
	case protocol.KindCollaboratorTimeout:
		return connect.CodeDeadlineExceeded
	}

	switch {
	case errors.Is(err, session.ErrTooManySessions):
		return connect.CodeResourceExhausted
	case errors.Is(err, benchmark.ErrParseFailed), errors.Is(err, protocol.ErrMalformedState):
		return connect.CodeInvalidArgument
	case errors.Is(err, context.Canceled):
		return connect.CodeCanceled
	case errors.Is(err, context.DeadlineExceeded):
		return connect.CodeDeadlineExceeded
	default:
		return connect.CodeInternal
	}
}

func toConnectError(err error) error {
	ce := connect.NewError(codeOf(err), err)
	if kind := protocol.ErrorKind(err); kind != protocol.KindUnknown {
		ce.Meta().Set(KindHeader, string(kind))
	}
	return ce
}

func fromConnectError(err error) error {
	var ce *connect.Error
	if !errors.As(err, &ce) {
		return err
	}

	sentinel := protocol.Kind(ce.Meta().Get(KindHeader)).Sentinel()
	if sentinel == nil {
		return err
	}
	return &remoteError{sentinel: sentinel, msg: ce.Message()}
}

func fromStepResponse(resp *protocol.StepResponse) error {
	if resp.Kind == protocol.KindUnknown {
		return nil
	}
	sentinel := resp.Kind.Sentinel()
	if sentinel == nil {
		return errors.New(resp.Error)
	}
	return &remoteError{sentinel: sentinel, msg: resp.Error}
}
