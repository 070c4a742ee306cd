package ir_test

import (
	"bytes"
	"errors"
	"testing"

	"github.com/tailored-agentic-units/optenv/ir"
)

const sample = `
; sample module
%a = const 4
%b = const 5
nop
%c = add %a, %b
%d = add %a, %b
%e = mul %c, 2
%f = load @in
%g = sub %f, %d
store @out, %g
ret %g
`

func mustParse(t *testing.T, src string) *ir.Module {
	t.Helper()
	m, err := ir.Parse("test", []byte(src))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	return m
}

func TestParse(t *testing.T) {
	m := mustParse(t, sample)

	if m.Count() != 10 {
		t.Fatalf("got %d instructions, want 10", m.Count())
	}
	if m.CountOp(ir.OpConst) != 2 {
		t.Errorf("got %d consts, want 2", m.CountOp(ir.OpConst))
	}
	if m.CountSideEffects() != 2 {
		t.Errorf("got %d side effects, want 2", m.CountSideEffects())
	}
	if got := m.Instrs[3].String(); got != "%c = add %a, %b" {
		t.Errorf("got %q, want %q", got, "%c = add %a, %b")
	}
}

func TestParse_Errors(t *testing.T) {
	tests := []struct {
		name string
		src  string
	}{
		{"unknown op", "%a = frob 1"},
		{"use before def", "%a = add %b, 1"},
		{"redefinition", "%a = const 1\n%a = const 2"},
		{"const non literal", "%a = const %b"},
		{"missing destination", "add 1, 2"},
		{"store with destination", "%a = store @x, 1"},
		{"add arity", "%a = add 1"},
		{"load non symbol", "%a = load 1"},
		{"nop with operand", "nop 1"},
		{"bad operand", "ret $x"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ir.Parse("bad", []byte(tt.src))
			if !errors.Is(err, ir.ErrSyntax) {
				t.Errorf("Parse() error = %v, want ErrSyntax", err)
			}
		})
	}
}

func TestModule_StringParses(t *testing.T) {
	m := mustParse(t, sample)
	again := mustParse(t, m.String())

	a, _ := m.MarshalCanonical()
	b, _ := again.MarshalCanonical()
	if !bytes.Equal(a, b) {
		t.Error("formatted module does not parse back to the same program")
	}
}

func TestModule_CloneIndependent(t *testing.T) {
	m := mustParse(t, sample)
	before, _ := m.MarshalCanonical()

	clone := m.Clone().(*ir.Module)
	clone.Instrs[0].Args[0] = "99"
	clone.Instrs = append(clone.Instrs, ir.Instr{Op: ir.OpNop})

	after, _ := m.MarshalCanonical()
	if !bytes.Equal(before, after) {
		t.Error("mutating the clone changed the original")
	}
}

func TestModule_CanonicalDistinguishes(t *testing.T) {
	a := mustParse(t, "%a = const 1\nret %a")
	b := mustParse(t, "%a = const 2\nret %a")

	ab, _ := a.MarshalCanonical()
	bb, _ := b.MarshalCanonical()
	if bytes.Equal(ab, bb) {
		t.Error("different programs have equal canonical encodings")
	}
}

func TestStripNops(t *testing.T) {
	m := mustParse(t, sample)
	out := ir.StripNops(m)

	if out.CountOp(ir.OpNop) != 0 {
		t.Error("nop survived")
	}
	if out.Count() != m.Count()-1 {
		t.Errorf("got %d instructions, want %d", out.Count(), m.Count()-1)
	}
	if m.CountOp(ir.OpNop) != 1 {
		t.Error("input was modified")
	}
}

func TestConstFold(t *testing.T) {
	m := mustParse(t, sample)
	out := ir.ConstFold(m)

	want := map[string]string{
		"%c": "const 9",
		"%d": "const 9",
		"%e": "const 18",
		"%g": "sub %f, %d",
	}
	for _, in := range out.Instrs {
		if w, ok := want[in.Dst]; ok {
			if got := (ir.Instr{Op: in.Op, Args: in.Args}).String(); got != w {
				t.Errorf("%s: got %q, want %q", in.Dst, got, w)
			}
		}
	}
}

func TestCSE(t *testing.T) {
	m := mustParse(t, sample)
	out := ir.CSE(m)

	if out.Count() != m.Count()-1 {
		t.Fatalf("got %d instructions, want %d", out.Count(), m.Count()-1)
	}
	for _, in := range out.Instrs {
		if in.Dst == "%d" {
			t.Errorf("duplicate %s survived", in.Dst)
		}
		if in.Dst == "%g" && in.Args[1] != "%c" {
			t.Errorf("use of %%d not rewritten: %v", in.Args)
		}
	}
}

func TestDCE(t *testing.T) {
	m := mustParse(t, `
%a = const 1
%b = add %a, 1
%c = load @x
%d = add %c, 2
call @f, %a
ret
`)
	out := ir.DCE(m)

	got := out.String()
	want := "%a = const 1\ncall @f, %a\nret\n"
	if got != want {
		t.Errorf("got\n%s\nwant\n%s", got, want)
	}
}

func TestUnroll(t *testing.T) {
	m := mustParse(t, "%a = load @x\n%b = add %a, 1\nstore @x, %b\nret %b")

	out, err := ir.Unroll(m, 16)
	if err != nil {
		t.Fatalf("Unroll() error = %v", err)
	}
	if out.Count() != 7 {
		t.Fatalf("got %d instructions, want 7", out.Count())
	}
	if out.Instrs[6].Op != ir.OpRet {
		t.Error("ret is not last")
	}
	if _, err := ir.Parse("again", []byte(out.String())); err != nil {
		t.Errorf("unrolled module is not valid: %v", err)
	}
}

func TestUnroll_RenameAvoidsExistingNames(t *testing.T) {
	// A module of 4 instructions renames copies with ".u4".
	m := mustParse(t, "%a = load @x\n%a.u4 = add %a, 1\n%a.u4.u4 = mul %a.u4, %a\nret %a.u4.u4")

	out, err := ir.Unroll(m, 16)
	if err != nil {
		t.Fatalf("Unroll() error = %v", err)
	}
	if _, err := ir.Parse("again", []byte(out.String())); err != nil {
		t.Fatalf("unrolled module is not valid: %v\n%s", err, out)
	}

	seen := make(map[string]bool)
	for _, in := range out.Instrs {
		if in.Dst == "" {
			continue
		}
		if seen[in.Dst] {
			t.Errorf("%s defined twice", in.Dst)
		}
		seen[in.Dst] = true
	}

	copies := out.Instrs[3:6]
	for _, in := range copies[1:] {
		for _, arg := range in.Args {
			for _, orig := range m.Instrs[:3] {
				if arg == orig.Dst {
					t.Errorf("copied %s uses original %s", in.Dst, arg)
				}
			}
		}
	}

	folded := ir.DCE(ir.CSE(out))
	if _, err := ir.Parse("folded", []byte(folded.String())); err != nil {
		t.Errorf("CSE and DCE of unrolled module invalid: %v", err)
	}
}

func TestUnroll_Budget(t *testing.T) {
	m := mustParse(t, "%a = load @x\n%b = add %a, 1\nstore @x, %b\nret %b")

	_, err := ir.Unroll(m, 6)
	if !errors.Is(err, ir.ErrTooLarge) {
		t.Errorf("got error %v, want ErrTooLarge", err)
	}
}

func TestTransforms_Deterministic(t *testing.T) {
	m := mustParse(t, sample)

	run := func() []byte {
		out, err := ir.Unroll(ir.DCE(ir.CSE(ir.ConstFold(ir.StripNops(m)))), 64)
		if err != nil {
			t.Fatalf("Unroll() error = %v", err)
		}
		b, _ := out.MarshalCanonical()
		return b
	}

	if !bytes.Equal(run(), run()) {
		t.Error("identical transform pipelines produced different programs")
	}
}
