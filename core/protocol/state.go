package protocol

import (
	"errors"
	"fmt"
	"math"
	"slices"

	"google.golang.org/protobuf/encoding/protowire"
)

// EnvState is the replayable description of a session: the benchmark it is
// bound to, the actions applied since the last reset, and the signal of the
// current program state. Two sessions with equal EnvStates are equivalent.
type EnvState struct {
	Benchmark string   `json:"benchmark"`
	Actions   []Action `json:"actions"`
	Signal    float64  `json:"signal"`
}

// Equal reports whether s and other describe the same state.
func (s EnvState) Equal(other EnvState) bool {
	return s.Benchmark == other.Benchmark &&
		slices.Equal(s.Actions, other.Actions) &&
		s.Signal == other.Signal
}

const (
	envStateBenchmark protowire.Number = 1
	envStateActions   protowire.Number = 2
	envStateSignal    protowire.Number = 3
)

// ErrMalformedState is returned by UnmarshalBinary for undecodable input.
var ErrMalformedState = errors.New("malformed env state")

// MarshalBinary encodes s in protobuf wire format with fields in ascending
// order and packed actions, so equal states encode to equal bytes.
func (s EnvState) MarshalBinary() ([]byte, error) {
	var b []byte
	b = protowire.AppendTag(b, envStateBenchmark, protowire.BytesType)
	b = protowire.AppendString(b, s.Benchmark)

	if len(s.Actions) > 0 {
		var packed []byte
		for _, a := range s.Actions {
			packed = protowire.AppendVarint(packed, protowire.EncodeZigZag(int64(a)))
		}
		b = protowire.AppendTag(b, envStateActions, protowire.BytesType)
		b = protowire.AppendBytes(b, packed)
	}

	b = protowire.AppendTag(b, envStateSignal, protowire.Fixed64Type)
	b = protowire.AppendFixed64(b, math.Float64bits(s.Signal))
	return b, nil
}

// UnmarshalBinary decodes the encoding produced by MarshalBinary. Unknown
// fields are skipped.
func (s *EnvState) UnmarshalBinary(data []byte) error {
	*s = EnvState{Actions: []Action{}}

	for len(data) > 0 {
		num, typ, n := protowire.ConsumeTag(data)
		if n < 0 {
			return fmt.Errorf("%w: %v", ErrMalformedState, protowire.ParseError(n))
		}
		data = data[n:]

		switch {
		case num == envStateBenchmark && typ == protowire.BytesType:
			v, n := protowire.ConsumeString(data)
			if n < 0 {
				return fmt.Errorf("%w: benchmark: %v", ErrMalformedState, protowire.ParseError(n))
			}
			s.Benchmark = v
			data = data[n:]

		case num == envStateActions && typ == protowire.BytesType:
			packed, n := protowire.ConsumeBytes(data)
			if n < 0 {
				return fmt.Errorf("%w: actions: %v", ErrMalformedState, protowire.ParseError(n))
			}
			for len(packed) > 0 {
				v, m := protowire.ConsumeVarint(packed)
				if m < 0 {
					return fmt.Errorf("%w: action: %v", ErrMalformedState, protowire.ParseError(m))
				}
				s.Actions = append(s.Actions, Action(protowire.DecodeZigZag(v)))
				packed = packed[m:]
			}
			data = data[n:]

		case num == envStateSignal && typ == protowire.Fixed64Type:
			v, n := protowire.ConsumeFixed64(data)
			if n < 0 {
				return fmt.Errorf("%w: signal: %v", ErrMalformedState, protowire.ParseError(n))
			}
			s.Signal = math.Float64frombits(v)
			data = data[n:]

		default:
			n := protowire.ConsumeFieldValue(num, typ, data)
			if n < 0 {
				return fmt.Errorf("%w: field %d: %v", ErrMalformedState, num, protowire.ParseError(n))
			}
			data = data[n:]
		}
	}

	return nil
}
