// Package ir implements a small SSA-style textual program representation used
// as the program state of builtin benchmarks.
//
// A module is a sequence of instructions, one per line:
//
//	%a = const 4
//	%b = add %a, 1
//	store @out, %b
//	ret %b
//
// Operands are value references (%name), symbols (@name), or integer
// literals. Everything after ';' on a line is a comment.
package ir

import (
	"errors"
	"fmt"
	"slices"
	"strconv"
	"strings"

	"google.golang.org/protobuf/encoding/protowire"

	"github.com/tailored-agentic-units/optenv/program"
)

// Sentinel errors for parsing and transformation.
var (
	ErrSyntax   = errors.New("ir syntax error")
	ErrTooLarge = errors.New("module exceeds instruction budget")
)

// Op is an instruction opcode.
type Op string

const (
	OpConst Op = "const"
	OpAdd   Op = "add"
	OpSub   Op = "sub"
	OpMul   Op = "mul"
	OpLoad  Op = "load"
	OpStore Op = "store"
	OpCall  Op = "call"
	OpRet   Op = "ret"
	OpNop   Op = "nop"
)

// HasSideEffects reports whether removing the instruction changes behaviour.
func (o Op) HasSideEffects() bool {
	switch o {
	case OpStore, OpCall, OpRet:
		return true
	}
	return false
}

// Pure reports whether two instructions with this op and equal operands
// always produce the same value.
func (o Op) Pure() bool {
	switch o {
	case OpConst, OpAdd, OpSub, OpMul:
		return true
	}
	return false
}

func (o Op) definesValue() bool {
	return o.Pure() || o == OpLoad
}

func (o Op) valid() bool {
	switch o {
	case OpConst, OpAdd, OpSub, OpMul, OpLoad, OpStore, OpCall, OpRet, OpNop:
		return true
	}
	return false
}

// Instr is a single instruction. Dst is empty for instructions that do not
// define a value.
type Instr struct {
	Dst  string
	Op   Op
	Args []string
}

func (in Instr) String() string {
	var b strings.Builder
	if in.Dst != "" {
		b.WriteString(in.Dst)
		b.WriteString(" = ")
	}
	b.WriteString(string(in.Op))
	if len(in.Args) > 0 {
		b.WriteByte(' ')
		b.WriteString(strings.Join(in.Args, ", "))
	}
	return b.String()
}

// Module is a named instruction sequence. It implements program.State.
type Module struct {
	Name   string
	Instrs []Instr
}

var _ program.State = (*Module)(nil)

// Clone returns a deep copy of m.
func (m *Module) Clone() program.State {
	return m.Copy()
}

// Copy is Clone with the concrete type.
func (m *Module) Copy() *Module {
	out := &Module{
		Name:   m.Name,
		Instrs: make([]Instr, len(m.Instrs)),
	}
	for i, in := range m.Instrs {
		out.Instrs[i] = Instr{Dst: in.Dst, Op: in.Op, Args: slices.Clone(in.Args)}
	}
	return out
}

const (
	moduleName   protowire.Number = 1
	moduleInstrs protowire.Number = 2

	instrDst  protowire.Number = 1
	instrOp   protowire.Number = 2
	instrArgs protowire.Number = 3
)

// MarshalCanonical encodes m in protobuf wire format with deterministic
// field order.
func (m *Module) MarshalCanonical() ([]byte, error) {
	var b []byte
	b = protowire.AppendTag(b, moduleName, protowire.BytesType)
	b = protowire.AppendString(b, m.Name)

	for _, in := range m.Instrs {
		var ib []byte
		if in.Dst != "" {
			ib = protowire.AppendTag(ib, instrDst, protowire.BytesType)
			ib = protowire.AppendString(ib, in.Dst)
		}
		ib = protowire.AppendTag(ib, instrOp, protowire.BytesType)
		ib = protowire.AppendString(ib, string(in.Op))
		for _, arg := range in.Args {
			ib = protowire.AppendTag(ib, instrArgs, protowire.BytesType)
			ib = protowire.AppendString(ib, arg)
		}

		b = protowire.AppendTag(b, moduleInstrs, protowire.BytesType)
		b = protowire.AppendBytes(b, ib)
	}

	return b, nil
}

// String formats m in the textual syntax accepted by Parse.
func (m *Module) String() string {
	var b strings.Builder
	for _, in := range m.Instrs {
		b.WriteString(in.String())
		b.WriteByte('\n')
	}
	return b.String()
}

// Count returns the number of instructions.
func (m *Module) Count() int {
	return len(m.Instrs)
}

// CountOp returns the number of instructions with the given op.
func (m *Module) CountOp(op Op) int {
	n := 0
	for _, in := range m.Instrs {
		if in.Op == op {
			n++
		}
	}
	return n
}

// CountSideEffects returns the number of instructions with side effects.
func (m *Module) CountSideEffects() int {
	n := 0
	for _, in := range m.Instrs {
		if in.Op.HasSideEffects() {
			n++
		}
	}
	return n
}

// Parse reads a module from its textual form. Every value must be defined
// exactly once and before use.
func Parse(name string, src []byte) (*Module, error) {
	m := &Module{Name: name}
	defined := make(map[string]bool)

	for lineno, line := range strings.Split(string(src), "\n") {
		if i := strings.IndexByte(line, ';'); i >= 0 {
			line = line[:i]
		}
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		in, err := parseInstr(line)
		if err != nil {
			return nil, fmt.Errorf("%w: %s:%d: %v", ErrSyntax, name, lineno+1, err)
		}

		for _, arg := range in.Args {
			if isRef(arg) && !defined[arg] {
				return nil, fmt.Errorf("%w: %s:%d: %s used before definition", ErrSyntax, name, lineno+1, arg)
			}
		}
		if in.Dst != "" {
			if defined[in.Dst] {
				return nil, fmt.Errorf("%w: %s:%d: %s redefined", ErrSyntax, name, lineno+1, in.Dst)
			}
			defined[in.Dst] = true
		}

		m.Instrs = append(m.Instrs, in)
	}

	return m, nil
}

func parseInstr(line string) (Instr, error) {
	var in Instr

	if lhs, rhs, ok := strings.Cut(line, "="); ok {
		in.Dst = strings.TrimSpace(lhs)
		if !isRef(in.Dst) || len(in.Dst) < 2 {
			return in, fmt.Errorf("invalid destination %q", in.Dst)
		}
		line = strings.TrimSpace(rhs)
	}

	opText, rest, _ := strings.Cut(line, " ")
	in.Op = Op(opText)
	if !in.Op.valid() {
		return in, fmt.Errorf("unknown op %q", opText)
	}

	if rest = strings.TrimSpace(rest); rest != "" {
		for _, arg := range strings.Split(rest, ",") {
			arg = strings.TrimSpace(arg)
			if !validOperand(arg) {
				return in, fmt.Errorf("invalid operand %q", arg)
			}
			in.Args = append(in.Args, arg)
		}
	}

	if in.Op.definesValue() && in.Dst == "" {
		return in, fmt.Errorf("%s requires a destination", in.Op)
	}
	if !in.Op.definesValue() && in.Dst != "" {
		return in, fmt.Errorf("%s does not define a value", in.Op)
	}

	switch in.Op {
	case OpConst:
		if len(in.Args) != 1 || !isLiteral(in.Args[0]) {
			return in, fmt.Errorf("const requires one integer literal")
		}
	case OpAdd, OpSub, OpMul:
		if len(in.Args) != 2 {
			return in, fmt.Errorf("%s requires two operands", in.Op)
		}
	case OpLoad:
		if len(in.Args) != 1 || !isSymbol(in.Args[0]) {
			return in, fmt.Errorf("load requires one symbol")
		}
	case OpStore:
		if len(in.Args) != 2 || !isSymbol(in.Args[0]) {
			return in, fmt.Errorf("store requires a symbol and a value")
		}
	case OpCall:
		if len(in.Args) < 1 || !isSymbol(in.Args[0]) {
			return in, fmt.Errorf("call requires a callee symbol")
		}
	case OpRet:
		if len(in.Args) > 1 {
			return in, fmt.Errorf("ret takes at most one operand")
		}
	case OpNop:
		if len(in.Args) != 0 {
			return in, fmt.Errorf("nop takes no operands")
		}
	}

	return in, nil
}

func isRef(s string) bool    { return strings.HasPrefix(s, "%") }
func isSymbol(s string) bool { return strings.HasPrefix(s, "@") && len(s) > 1 }

func isLiteral(s string) bool {
	_, err := strconv.ParseInt(s, 10, 64)
	return err == nil
}

func validOperand(s string) bool {
	return (isRef(s) && len(s) > 1) || isSymbol(s) || isLiteral(s)
}
