package ir

import (
	"fmt"
	"strconv"
)

// Transforms return a new module and never modify their input.

// StripNops removes every nop instruction.
func StripNops(m *Module) *Module {
	out := &Module{Name: m.Name, Instrs: make([]Instr, 0, len(m.Instrs))}
	for _, in := range m.Copy().Instrs {
		if in.Op != OpNop {
			out.Instrs = append(out.Instrs, in)
		}
	}
	return out
}

// ConstFold replaces arithmetic on known constants with a const instruction.
func ConstFold(m *Module) *Module {
	out := m.Copy()
	values := make(map[string]int64)

	operand := func(arg string) (int64, bool) {
		if isLiteral(arg) {
			v, _ := strconv.ParseInt(arg, 10, 64)
			return v, true
		}
		v, ok := values[arg]
		return v, ok
	}

	for i, in := range out.Instrs {
		switch in.Op {
		case OpConst:
			v, _ := strconv.ParseInt(in.Args[0], 10, 64)
			values[in.Dst] = v

		case OpAdd, OpSub, OpMul:
			a, okA := operand(in.Args[0])
			b, okB := operand(in.Args[1])
			if !okA || !okB {
				continue
			}

			var v int64
			switch in.Op {
			case OpAdd:
				v = a + b
			case OpSub:
				v = a - b
			case OpMul:
				v = a * b
			}
			values[in.Dst] = v
			out.Instrs[i] = Instr{Dst: in.Dst, Op: OpConst, Args: []string{strconv.FormatInt(v, 10)}}
		}
	}

	return out
}

// CSE removes pure instructions that recompute an earlier value and rewrites
// later uses to the earlier definition.
func CSE(m *Module) *Module {
	out := &Module{Name: m.Name, Instrs: make([]Instr, 0, len(m.Instrs))}
	seen := make(map[string]string)
	rename := make(map[string]string)

	for _, in := range m.Copy().Instrs {
		for j, arg := range in.Args {
			if to, ok := rename[arg]; ok {
				in.Args[j] = to
			}
		}

		if in.Op.Pure() {
			key := Instr{Op: in.Op, Args: in.Args}.String()
			if prev, ok := seen[key]; ok {
				rename[in.Dst] = prev
				continue
			}
			seen[key] = in.Dst
		}

		out.Instrs = append(out.Instrs, in)
	}

	return out
}

// DCE removes value-defining instructions without side effects whose result
// is never used, iterating until no more can be removed.
func DCE(m *Module) *Module {
	instrs := m.Copy().Instrs

	for {
		used := make(map[string]bool)
		for _, in := range instrs {
			for _, arg := range in.Args {
				used[arg] = true
			}
		}

		kept := instrs[:0:0]
		for _, in := range instrs {
			if in.Dst != "" && !in.Op.HasSideEffects() && !used[in.Dst] {
				continue
			}
			kept = append(kept, in)
		}

		if len(kept) == len(instrs) {
			return &Module{Name: m.Name, Instrs: kept}
		}
		instrs = kept
	}
}

// Unroll duplicates every instruction before the final ret, renaming the
// copied definitions to names not already defined in m. It fails with ErrTooLarge when the result would exceed
// limit instructions.
func Unroll(m *Module, limit int) (*Module, error) {
	src := m.Copy()

	body := src.Instrs
	var tail []Instr
	if n := len(body); n > 0 && body[n-1].Op == OpRet {
		body, tail = body[:n-1], body[n-1:]
	}

	size := len(src.Instrs) + len(body)
	if size > limit {
		return nil, fmt.Errorf("%w: %d > %d", ErrTooLarge, size, limit)
	}

	suffix := ".u" + strconv.Itoa(len(src.Instrs))
	rename := make(map[string]string)
	defined := make(map[string]bool, size)
	for _, in := range src.Instrs {
		if in.Dst != "" {
			defined[in.Dst] = true
		}
	}
	fresh := func(name string) string {
		cand := name + suffix
		for k := 1; defined[cand]; k++ {
			cand = name + suffix + "." + strconv.Itoa(k)
		}
		defined[cand] = true
		return cand
	}

	out := &Module{Name: src.Name, Instrs: make([]Instr, 0, size)}
	out.Instrs = append(out.Instrs, body...)
	for _, in := range body {
		cp := Instr{Dst: in.Dst, Op: in.Op, Args: make([]string, len(in.Args))}
		for j, arg := range in.Args {
			if to, ok := rename[arg]; ok {
				arg = to
			}
			cp.Args[j] = arg
		}
		if cp.Dst != "" {
			rename[in.Dst] = fresh(in.Dst)
			cp.Dst = rename[in.Dst]
		}
		out.Instrs = append(out.Instrs, cp)
	}
	for _, in := range tail {
		out.Instrs = append(out.Instrs, Instr{Dst: in.Dst, Op: in.Op, Args: append([]string(nil), in.Args...)})
	}

	return out, nil
}
