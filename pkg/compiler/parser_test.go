package compiler

import (
	"errors"
	"reflect"
	"strings"
	"testing"

	"l25/pkg/asm"
	"l25/pkg/vm"
)

// listing trims and joins expected listing lines.
func listing(lines ...string) string {
	return strings.Join(lines, "\n") + "\n"
}

func mustCompile(t *testing.T, src string, opts Options) *Program {
	t.Helper()
	prog, err := Compile(src, opts)
	if err != nil {
		t.Fatalf("Compile: %v\ndiagnostics: %v", err, prog.Diagnostics)
	}
	return prog
}

func TestCodeGeneration(t *testing.T) {
	tests := []struct {
		name string
		src  string
		want string
	}{
		{
			name: "function call with two arguments",
			src:  `program P { func add(a, b) { return a + b; } main { let x = 0; x = add(2, 3); output(x); } }`,
			want: listing(
				"0 jmp 0 7",
				"1 int 2 5",
				"2 lod 0 3",
				"3 lod 0 4",
				"4 opr 0 2",
				"5 sto 0 2",
				"6 opr 0 18",
				"7 int 0 4",
				"8 lit 0 0",
				"9 sto 0 3",
				"10 lit 0 2",
				"11 opr 0 17",
				"12 lit 0 3",
				"13 opr 0 17",
				"14 cal 0 1",
				"15 sto 0 3",
				"16 lod 0 3",
				"17 opr 0 14",
				"18 opr 0 0",
			),
		},
		{
			name: "while loop",
			src:  `program W { main { let i = 0; while (i < 3) { output(i); i = i + 1; } } }`,
			want: listing(
				"0 jmp 0 1",
				"1 int 0 4",
				"2 lit 0 0",
				"3 sto 0 3",
				"4 lod 0 3",
				"5 lit 0 3",
				"6 opr 0 10",
				"7 jpc 0 15",
				"8 lod 0 3",
				"9 opr 0 14",
				"10 lod 0 3",
				"11 lit 0 1",
				"12 opr 0 2",
				"13 sto 0 3",
				"14 jmp 0 4",
				"15 opr 0 0",
			),
		},
		{
			name: "if else",
			src:  `program I { main { let a = 1; if (a == 1) { output(1); } else { output(2); } } }`,
			want: listing(
				"0 jmp 0 1",
				"1 int 0 4",
				"2 lit 0 1",
				"3 sto 0 3",
				"4 lod 0 3",
				"5 lit 0 1",
				"6 opr 0 8",
				"7 jpc 0 11",
				"8 lit 0 1",
				"9 opr 0 14",
				"10 jmp 0 13",
				"11 lit 0 2",
				"12 opr 0 14",
				"13 opr 0 0",
			),
		},
		{
			name: "try catch",
			src:  `program T { main { let x = 0; try { x = 1 / 0; } catch { output(99); } } }`,
			want: listing(
				"0 jmp 0 1",
				"1 int 0 4",
				"2 lit 0 0",
				"3 sto 0 3",
				"4 lit 0 12",
				"5 opr 0 19",
				"6 lit 0 1",
				"7 lit 0 0",
				"8 opr 0 5",
				"9 sto 0 3",
				"10 opr 0 20",
				"11 jmp 0 15",
				"12 lit 0 99",
				"13 opr 0 14",
				"14 opr 0 20",
				"15 opr 0 0",
			),
		},
		{
			name: "call statement drops its result",
			src:  `program C { func f(n) { output(n); return 0; } main { f(7); } }`,
			want: listing(
				"0 jmp 0 7",
				"1 int 1 4",
				"2 lod 0 3",
				"3 opr 0 14",
				"4 lit 0 0",
				"5 sto 0 2",
				"6 opr 0 18",
				"7 int 0 3",
				"8 lit 0 7",
				"9 opr 0 17",
				"10 cal 0 1",
				"11 jpc 0 12",
				"12 opr 0 0",
			),
		},
		{
			name: "unary minus and input",
			src:  `program U { main { let a; input(a); output(-a * 2); } }`,
			want: listing(
				"0 jmp 0 1",
				"1 int 0 4",
				"2 opr 0 16",
				"3 sto 0 3",
				"4 lod 0 3",
				"5 lit 0 2",
				"6 opr 0 4",
				"7 opr 0 1",
				"8 opr 0 14",
				"9 opr 0 0",
			),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			prog := mustCompile(t, tt.src, Options{})
			if got := asm.Format(prog.Code); got != tt.want {
				t.Errorf("code =\n%s\nwant\n%s", got, tt.want)
			}
		})
	}
}

func TestNestedModeAddressing(t *testing.T) {
	src := `program N {
  func fact(n) {
    let r = 1;
    if (n > 1) { r = n * fact(n - 1); }
    return r;
  }
  main { let x = fact(3); output(x); }
}`
	prog := mustCompile(t, src, Options{Mode: vm.Nested})
	code := prog.Code

	if code[1] != (vm.Instruction{Op: vm.OpINT, L: 1, A: 6}) {
		t.Errorf("prologue = %v, want int 1 6", code[1])
	}
	var inner, outer int
	for i, in := range code {
		if in.Op != vm.OpCAL {
			continue
		}
		if i < 20 && in.L == 1 {
			inner++
		}
		if i >= 20 && in.L == 0 {
			outer++
		}
	}
	if inner != 1 || outer != 1 {
		t.Errorf("recursive call should climb one level and the call from main none:\n%s", asm.Format(code))
	}
	for _, in := range code {
		if in.Op == vm.OpSTO && in.A == 3 && in.L != 0 {
			t.Errorf("return value store must stay in the current frame: %v", in)
		}
	}
}

func TestDiagnostics(t *testing.T) {
	tests := []struct {
		name string
		src  string
		want []ErrorCode
	}{
		{"missing semicolon", `program P { main { let x = 1 output(x); } }`, []ErrorCode{CodeMissingSemicolon}},
		{"undeclared", `program P { main { y = 1; } }`, []ErrorCode{CodeUndeclared}},
		{"undeclared in expression", `program P { main { let x = y + 1; } }`, []ErrorCode{CodeUndeclared}},
		{"argument count in expression", `program P { func f(a, b) { return a; } main { let x = f(1); } }`, []ErrorCode{CodeArgCount}},
		{"argument count in statement", `program P { func f(a, b) { return a; } main { f(1, 2, 3); } }`, []ErrorCode{CodeArgCount}},
		{"assign to function", `program P { func f() { return 1; } main { f = 2; } }`, []ErrorCode{CodeFunctionAsVar}},
		{"function as value", `program P { func f() { return 1; } main { let x = f; } }`, []ErrorCode{CodeFunctionAsVar}},
		{"call a variable", `program P { main { let x = 1; x(2); } }`, []ErrorCode{CodeNotFunction}},
		{"missing return", `program P { func f() { let a = 1; } main { } }`, []ErrorCode{CodeMissingReturn}},
		{"return in main", `program P { main { return 1; } }`, []ErrorCode{CodeMissingRBrace, CodeMissingRBrace, CodeTrailingText}},
		{"missing program", `P { main { } }`, []ErrorCode{CodeProgramExpected}},
		{"missing main", `program P { { } }`, []ErrorCode{CodeMainExpected}},
		{"trailing text", `program P { main { } } x`, []ErrorCode{CodeTrailingText}},
		{"missing catch", `program P { main { try { } output(1); } }`, []ErrorCode{CodeCatchExpected, CodeMissingLBrace, CodeMissingRBrace}},
		{"relational operator", `program P { main { let a = 1; if (a) { } } }`, []ErrorCode{CodeRelopExpected}},
		{"illegal symbol recovers", `program P { main { let a = 1; a = a # 2; } }`, []ErrorCode{CodeIllegalFactor, CodeMissingSemicolon, CodeBadFollow}},
		{"identifier then junk", `program P { main { let a = 1; a 2; } }`, []ErrorCode{CodeAssignOrCall, CodeMissingSemicolon, CodeBadFollow}},
		{"missing paren", `program P { main { output(1; } }`, []ErrorCode{CodeMissingRParen}},
		{"long number", `program P { main { output(1234567890123456); } }`, []ErrorCode{CodeBadLexeme}},
		{"out of range", `program P { main { output(99999999999); } }`, []ErrorCode{CodeNumberRange}},
		{"input without paren", `program P { main { let a; input a); } }`, []ErrorCode{CodeInputLParen}},
		{"block scope", `program P { main { if (1 == 1) { let t = 5; } output(t); } }`, []ErrorCode{CodeUndeclared}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			prog, err := Compile(tt.src, Options{})
			if err == nil {
				t.Fatalf("expected diagnostics %v, compiled cleanly", tt.want)
			}
			if !errors.Is(err, ErrHasErrors) {
				t.Fatalf("error = %v, want an ErrorList", err)
			}
			var got []ErrorCode
			for _, d := range prog.Diagnostics {
				got = append(got, d.Code)
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("codes = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestFatalLimits(t *testing.T) {
	manyErrors := "program P { main { " + strings.Repeat("y = 1; ", 31) + "} }"
	prog, err := Compile(manyErrors, Options{})
	if !errors.Is(err, ErrTooManyErrors) {
		t.Fatalf("error = %v, want ErrTooManyErrors", err)
	}
	if len(prog.Diagnostics) != DefaultMaxErrors+1 {
		t.Errorf("diagnostics = %d, want %d", len(prog.Diagnostics), DefaultMaxErrors+1)
	}

	long := "program P { main { let x = 0; " + strings.Repeat("x = x + 1; ", 10) + "} }"
	if _, err := Compile(long, Options{MaxCode: 12}); !errors.Is(err, ErrProgramTooLong) {
		t.Errorf("error = %v, want ErrProgramTooLong", err)
	}

	crowded := "program P { main { let a; let b; let c; let d; } }"
	if _, err := Compile(crowded, Options{MaxSymbols: 3}); !errors.Is(err, ErrSymbolTableFull) {
		t.Errorf("error = %v, want ErrSymbolTableFull", err)
	}
}

func TestBlockSlotsAreNotReused(t *testing.T) {
	prog := mustCompile(t, `program P { main { if (1 == 1) { let a = 1; } let b = 2; } }`, Options{})
	addr := map[string]int{}
	for _, s := range prog.Symbols {
		addr[s.Name] = s.Addr
	}
	if addr["a"] != 3 || addr["b"] != 4 {
		t.Errorf("addresses a=%d b=%d, want 3 and 4", addr["a"], addr["b"])
	}
	if prog.Code[1] != (vm.Instruction{Op: vm.OpINT, A: 5}) {
		t.Errorf("main prologue = %v, want int 0 5", prog.Code[1])
	}
}

func TestSymbolsRecordFunctions(t *testing.T) {
	prog := mustCompile(t, `program P { func sq(n) { let r = n * n; return r; } main { output(sq(4)); } }`, Options{})
	want := "0 function sq lev=0 addr=1 size=5 params=1\n" +
		"1 parameter n lev=1 addr=3\n" +
		"2 variable r lev=1 addr=4\n"
	if got := prog.SymbolTable(); got != want {
		t.Errorf("symbols =\n%s\nwant\n%s", got, want)
	}
}

func TestBackpatchCompleteness(t *testing.T) {
	srcs := []string{
		`program A { main { let i = 0; while (i < 3) { if (i == 1) { output(i); } else { try { i = i / 0; } catch { output(0); } } i = i + 1; } } }`,
		`program B { func f(a) { if (a > 0) { return f(a - 1); } return 0; } func g() { return f(3); } main { output(g()); } }`,
	}
	for _, src := range srcs {
		prog := mustCompile(t, src, Options{})
		for i, in := range prog.Code {
			switch in.Op {
			case vm.OpJMP, vm.OpJPC, vm.OpCAL:
				if in.A <= 0 || in.A >= len(prog.Code) {
					t.Errorf("instruction %d %v has an unpatched or wild target", i, in)
				}
			case vm.OpINT:
				if in.A < 3 {
					t.Errorf("instruction %d %v reserves less than a frame header", i, in)
				}
			}
		}
	}
}

func TestCompileIsDeterministic(t *testing.T) {
	src := `program D { func f(a, b) { let c = a - b; return c * 2; } main { let x; input(x); output(f(x, 1), f(1, x)); } }`
	first := mustCompile(t, src, Options{})
	second := mustCompile(t, src, Options{})
	if asm.Format(first.Code) != asm.Format(second.Code) {
		t.Error("code differs between compilations")
	}
	if first.SymbolTable() != second.SymbolTable() {
		t.Error("symbol dump differs between compilations")
	}
}

func TestTranscript(t *testing.T) {
	src := "program P {\n  main {\n    let x = 1;\n  }\n}\n"
	var tr strings.Builder
	mustCompile(t, src, Options{Transcript: &tr})
	want := "0 program P {\n" +
		"0   main {\n" +
		"2     let x = 1;\n" +
		"4   }\n" +
		"4 }\n" +
		"\n===Parsing success!===\n"
	if tr.String() != want {
		t.Errorf("transcript =\n%q\nwant\n%q", tr.String(), want)
	}

	tr.Reset()
	bad := "program P {\n  main {\n    y = 1;\n  }\n}\n"
	if _, err := Compile(bad, Options{Transcript: &tr}); err == nil {
		t.Fatal("expected an error")
	}
	if !strings.Contains(tr.String(), "2     y = 1;\n**     ^11\n") {
		t.Errorf("marker missing or misplaced:\n%s", tr.String())
	}
	if !strings.HasSuffix(tr.String(), "\n1 errors in l25 program!\n") {
		t.Errorf("summary missing:\n%s", tr.String())
	}
}
