package compiler

import (
	"fmt"
	"io"

	"l25/pkg/vm"
)

// DefaultMaxErrors is the number of diagnostics tolerated before compilation
// is abandoned.
const DefaultMaxErrors = 30

// Options controls a single compilation. Zero values take the defaults.
type Options struct {
	Mode       vm.AddressingMode
	MaxCode    int
	MaxSymbols int
	MaxErrors  int

	// Transcript, when set, receives every source line prefixed with the
	// current code index, error markers, and the closing summary.
	Transcript io.Writer
}

// Program is the result of a compilation.
type Program struct {
	Code        []vm.Instruction
	Symbols     []Symbol // every declared entry, in declaration order
	Diagnostics []Diagnostic
	Mode        vm.AddressingMode
}

// OK reports whether the program compiled without diagnostics.
func (p *Program) OK() bool { return len(p.Diagnostics) == 0 }

// Compile parses src and generates code in one pass. The returned Program is
// never nil. err is an ErrorList when diagnostics were reported, or wraps
// ErrTooManyErrors, ErrProgramTooLong or ErrSymbolTableFull when compilation
// had to stop early.
func Compile(src string, opts Options) (prog *Program, err error) {
	p := newParser(src, opts)
	prog = &Program{Mode: opts.Mode}

	defer func() {
		if r := recover(); r != nil {
			f, ok := r.(fatal)
			if !ok {
				panic(r)
			}
			prog.Code = p.code.Instructions()
			prog.Symbols = p.table.History()
			prog.Diagnostics = p.diags
			if p.transcript != nil {
				fmt.Fprintf(p.transcript, "\n%v\n", f.err)
			}
			err = f.err
		}
	}()

	p.next()
	p.program()

	prog.Code = p.code.Instructions()
	prog.Symbols = p.table.History()
	prog.Diagnostics = p.diags

	if len(p.diags) > 0 {
		if p.transcript != nil {
			fmt.Fprintf(p.transcript, "\n%d errors in l25 program!\n", len(p.diags))
		}
		return prog, ErrorList(p.diags)
	}
	if open := p.code.Unpatched(); len(open) > 0 {
		return prog, fmt.Errorf("unpatched jumps at %v", open)
	}
	if p.transcript != nil {
		fmt.Fprintf(p.transcript, "\n===Parsing success!===\n")
	}
	return prog, nil
}

// SymbolTable renders the declared symbols.
func (p *Program) SymbolTable() string {
	return FormatSymbols(p.Symbols)
}
