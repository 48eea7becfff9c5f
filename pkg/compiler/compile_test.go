package compiler

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"l25/pkg/vm"
)

type runResult struct {
	out    string
	notice string
	err    error
}

func compileAndRun(t *testing.T, src, input string, mode vm.AddressingMode) runResult {
	t.Helper()
	prog, err := Compile(src, Options{Mode: mode})
	require.NoError(t, err, "diagnostics: %v", prog.Diagnostics)

	var out, notice strings.Builder
	m := vm.New(prog.Code, vm.Config{Mode: mode, StepLimit: 100000})
	m.Output = &out
	m.Errors = &notice
	m.Input = vm.NewScanReader(strings.NewReader(input))
	err = m.Run()
	return runResult{out: out.String(), notice: notice.String(), err: err}
}

func TestRunPrograms(t *testing.T) {
	tests := []struct {
		name  string
		src   string
		input string
		want  string
	}{
		{
			name: "call with arguments",
			src:  `program P { func add(a, b) { return a + b; } main { let x = 0; x = add(2, 3); output(x); } }`,
			want: "5 ",
		},
		{
			name: "while loop",
			src:  `program W { main { let i = 0; while (i < 3) { output(i); i = i + 1; } } }`,
			want: "0 1 2 ",
		},
		{
			name: "division trapped by try",
			src:  `program T { main { try { let x = 1 / 0; } catch { output(99); } } }`,
			want: "99 ",
		},
		{
			name: "recursion",
			src: `program F {
  func fact(n) {
    let r = 1;
    if (n > 1) { r = n * fact(n - 1); }
    return r;
  }
  main { output(fact(5)); }
}`,
			want: "120 ",
		},
		{
			name: "nested call arguments",
			src:  `program A { func add(a, b) { return a + b; } main { output(add(add(1, 2), add(3, 4))); } }`,
			want: "10 ",
		},
		{
			name: "early return",
			src:  `program S { func sign(n) { if (n < 0) { return -1; } return 1; } main { output(sign(-5), sign(5)); } }`,
			want: "-1 1 ",
		},
		{
			name:  "input",
			src:   `program I { main { let a; let b; input(a, b); output(a + b); } }`,
			input: "3 4",
			want:  "??7 ",
		},
		{
			name: "fault in callee unwinds to caller's handler",
			src:  `program D { func div(a, b) { return a / b; } main { let x = 0; try { x = div(1, 0); } catch { output(99); } output(x); } }`,
			want: "99 0 ",
		},
		{
			name: "call statement discards result",
			src:  `program C { func f(n) { output(n); return n * 2; } main { let x = 1; f(7); f(8); output(x); } }`,
			want: "7 8 1 ",
		},
		{
			name: "if else and relations",
			src: `program R {
  main {
    let a = 3;
    if (a >= 3) { output(1); } else { output(0); }
    if (a != 3) { output(1); } else { output(0); }
    if (a <= 2) { output(1); }
    if (a > 2) { output(10 / 2 - a); }
  }
}`,
			want: "1 0 2 ",
		},
		{
			name: "try without fault skips catch",
			src:  `program N { main { let x = 4; try { x = x / 2; } catch { output(99); } output(x); } }`,
			want: "2 ",
		},
		{
			name: "let sees itself in initializer",
			src:  `program L { main { let x = x + 1; output(x); } }`,
			want: "1 ",
		},
	}

	for _, tt := range tests {
		for _, mode := range []vm.AddressingMode{vm.Flat, vm.Nested} {
			t.Run(tt.name+"/"+mode.String(), func(t *testing.T) {
				res := compileAndRun(t, tt.src, tt.input, mode)
				require.NoError(t, res.err)
				require.Equal(t, tt.want, res.out)
			})
		}
	}
}

func TestDivisionNotice(t *testing.T) {
	res := compileAndRun(t, `program T { main { try { let x = 1 / 0; } catch { output(99); } } }`, "", vm.Flat)
	require.NoError(t, res.err)
	require.Equal(t, "** Runtime Error: Division by zero at instruction 6\n", res.notice)
}

func TestUncaughtDivisionStops(t *testing.T) {
	res := compileAndRun(t, `program Z { main { let x = 1 / 0; output(5); } }`, "", vm.Flat)
	require.Error(t, res.err)
	require.True(t, errors.Is(res.err, vm.ErrDivisionByZero))
	require.Empty(t, res.out)

	var fault *vm.Fault
	require.True(t, errors.As(res.err, &fault))
	require.Equal(t, vm.OprDiv, vm.Operation(fault.Instr.A))
}

func TestFramesBalanceAfterCalls(t *testing.T) {
	src := `program B {
  func z() { return 0; }
  func one(a) { return a; }
  func three(a, b, c) { return a + b + c; }
  main { let x = z() + one(1) + three(1, 2, 3); z(); one(2); three(4, 5, 6); output(x); }
}`
	prog, err := Compile(src, Options{})
	require.NoError(t, err)

	var out strings.Builder
	m := vm.New(prog.Code, vm.Config{})
	m.Output = &out
	require.NoError(t, m.Run())
	require.Equal(t, "7 ", out.String())
	require.Equal(t, 1, m.B, "main frame base")
	main := prog.Code[prog.Code[0].A]
	require.Equal(t, main.A, m.T, "only main's frame should remain")
	require.Empty(t, m.Pending)
	require.Empty(t, m.Handlers)
}
