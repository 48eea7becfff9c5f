// Command l25dump prints the tokens, generated code and symbol table of an
// l25 source file.
package main

import (
	"flag"
	"fmt"
	"os"

	"l25/pkg/asm"
	"l25/pkg/compiler"
	"l25/pkg/config"
	"l25/pkg/utils"
)

const testSource = `program demo {
  func add(a, b) { return a + b; }
  main { let x = add(2, 3); output(x); }
}
`

func main() {
	cfg, err := config.FromEnv()
	if err != nil {
		fmt.Fprintln(os.Stderr, "bad environment:", err)
		os.Exit(2)
	}
	cfg.Bind(flag.CommandLine)
	flag.Parse()

	src := testSource
	if flag.NArg() > 0 {
		src, err = utils.ReadSource(flag.Arg(0))
		if err != nil {
			fmt.Fprintln(os.Stderr, "read error:", err)
			os.Exit(1)
		}
	}

	fmt.Printf("Source:\n%s\n", src)

	tokens, diags := compiler.Lex(src)
	fmt.Printf("Tokens (%d)\n", len(tokens))
	for _, tok := range tokens {
		fmt.Printf("  %d:%d %v %q\n", tok.Line, tok.Col, tok.Type, tok.Lexeme)
	}
	for _, d := range diags {
		fmt.Println("  lex error:", d)
	}
	fmt.Println()

	prog, err := compiler.Compile(src, cfg.CompileOptions(nil))
	for _, d := range prog.Diagnostics {
		fmt.Fprintln(os.Stderr, "error:", d)
	}

	fmt.Printf("Code (%s)\n", prog.Mode)
	fmt.Print(asm.Disassemble(prog.Code))
	fmt.Println()
	fmt.Println("Symbols")
	fmt.Print(prog.SymbolTable())

	if err != nil {
		fmt.Fprintln(os.Stderr, "compile error:", err)
		os.Exit(1)
	}
}
