package vm

import (
	"fmt"
	"strings"
)

// Opcode is the primary function field of an instruction.
type Opcode int

const (
	OpLIT Opcode = iota // push A
	OpOPR               // arithmetic / relational / IO selected by A
	OpLOD               // push frame slot A (L static links up in nested mode)
	OpSTO               // pop into frame slot A
	OpCAL               // call entry A
	OpINT               // reserve A frame slots, bind L committed parameters
	OpJMP               // jump to A
	OpJPC               // pop, jump to A when zero
)

var mnemonics = [...]string{
	OpLIT: "lit",
	OpOPR: "opr",
	OpLOD: "lod",
	OpSTO: "sto",
	OpCAL: "cal",
	OpINT: "int",
	OpJMP: "jmp",
	OpJPC: "jpc",
}

func (o Opcode) String() string {
	if o >= 0 && int(o) < len(mnemonics) {
		return mnemonics[o]
	}
	return fmt.Sprintf("Opcode(%d)", int(o))
}

// ParseOpcode resolves a listing mnemonic (case-insensitive).
func ParseOpcode(s string) (Opcode, bool) {
	s = strings.ToLower(s)
	for i, m := range mnemonics {
		if m == s {
			return Opcode(i), true
		}
	}
	return 0, false
}

// Operation selects the behaviour of an opr instruction.
type Operation int

const (
	OprHalt      Operation = 0
	OprNeg       Operation = 1
	OprAdd       Operation = 2
	OprSub       Operation = 3
	OprMul       Operation = 4
	OprDiv       Operation = 5
	OprOdd       Operation = 6
	OprEq        Operation = 8
	OprNe        Operation = 9
	OprLt        Operation = 10
	OprGe        Operation = 11
	OprGt        Operation = 12
	OprLe        Operation = 13
	OprPrint     Operation = 14
	OprNewline   Operation = 15
	OprRead      Operation = 16
	OprCommit    Operation = 17
	OprReturn    Operation = 18
	OprPushCatch Operation = 19
	OprPopCatch  Operation = 20
)

// Instruction is one bytecode word: opcode plus level and address operands.
type Instruction struct {
	Op Opcode
	L  int
	A  int
}

func (in Instruction) String() string {
	return fmt.Sprintf("%s %d %d", in.Op, in.L, in.A)
}

// Opr builds an opr instruction.
func Opr(op Operation) Instruction {
	return Instruction{Op: OpOPR, A: int(op)}
}

// AddressingMode decides how frames are linked.
type AddressingMode int

const (
	// Flat frames carry only a dynamic link; every name resolves in the
	// current frame.
	Flat AddressingMode = iota
	// Nested frames carry a static link as well and lod/sto/cal walk L
	// static links before indexing.
	Nested
)

func (m AddressingMode) String() string {
	switch m {
	case Flat:
		return "flat"
	case Nested:
		return "nested"
	}
	return fmt.Sprintf("AddressingMode(%d)", int(m))
}

// ParseAddressingMode accepts "flat" or "nested".
func ParseAddressingMode(s string) (AddressingMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "flat":
		return Flat, nil
	case "nested":
		return Nested, nil
	}
	return Flat, fmt.Errorf("unknown addressing mode %q", s)
}

// Layout gives the slot offsets of a frame's bookkeeping cells relative to
// its base. StaticLink is -1 when the mode has none.
type Layout struct {
	StaticLink  int
	DynamicLink int
	ReturnAddr  int
	ReturnValue int
	Header      int
}

func (m AddressingMode) Layout() Layout {
	if m == Nested {
		return Layout{StaticLink: 0, DynamicLink: 1, ReturnAddr: 2, ReturnValue: 3, Header: 4}
	}
	return Layout{StaticLink: -1, DynamicLink: 0, ReturnAddr: 1, ReturnValue: 2, Header: 3}
}
