package asm

import (
	"fmt"
	"strconv"
	"strings"

	"l25/pkg/vm"
)

// operationNames lets listings spell opr operands symbolically.
var operationNames = map[string]vm.Operation{
	"halt":    vm.OprHalt,
	"neg":     vm.OprNeg,
	"add":     vm.OprAdd,
	"sub":     vm.OprSub,
	"mul":     vm.OprMul,
	"div":     vm.OprDiv,
	"odd":     vm.OprOdd,
	"eq":      vm.OprEq,
	"ne":      vm.OprNe,
	"lt":      vm.OprLt,
	"ge":      vm.OprGe,
	"gt":      vm.OprGt,
	"le":      vm.OprLe,
	"print":   vm.OprPrint,
	"newline": vm.OprNewline,
	"read":    vm.OprRead,
	"commit":  vm.OprCommit,
	"ret":     vm.OprReturn,
	"pushc":   vm.OprPushCatch,
	"popc":    vm.OprPopCatch,
}

func operationName(op vm.Operation) (string, bool) {
	for name, o := range operationNames {
		if o == op {
			return name, true
		}
	}
	return "", false
}

// Format renders code one instruction per line as "index mnemonic L A".
func Format(code []vm.Instruction) string {
	var b strings.Builder
	for i, in := range code {
		fmt.Fprintf(&b, "%d %s %d %d\n", i, in.Op, in.L, in.A)
	}
	return b.String()
}

// Disassemble is Format with the opr operation named in a trailing comment.
func Disassemble(code []vm.Instruction) string {
	var b strings.Builder
	for i, in := range code {
		fmt.Fprintf(&b, "%d %s %d %d", i, in.Op, in.L, in.A)
		if in.Op == vm.OpOPR {
			if name, ok := operationName(vm.Operation(in.A)); ok {
				fmt.Fprintf(&b, "\t; %s", name)
			}
		}
		b.WriteByte('\n')
	}
	return b.String()
}

type parsedLine struct {
	lineNo int
	index  int // -1 when the line carries no index
	instr  vm.Instruction
	empty  bool
}

// Parse reads a listing produced by Format or Disassemble. Lines hold
// "[index] mnemonic L A"; an index, when present, must match the line's
// position in the program. Comments start with ';' or "//".
func Parse(text string) ([]vm.Instruction, error) {
	var code []vm.Instruction
	for i, raw := range strings.Split(text, "\n") {
		p, err := parseLine(raw, i+1)
		if err != nil {
			return nil, err
		}
		if p.empty {
			continue
		}
		if p.index >= 0 && p.index != len(code) {
			return nil, fmt.Errorf("line %d: index %d out of sequence, expected %d", p.lineNo, p.index, len(code))
		}
		code = append(code, p.instr)
	}
	if err := Validate(code); err != nil {
		return nil, err
	}
	return code, nil
}

func parseLine(raw string, lineNo int) (parsedLine, error) {
	p := parsedLine{lineNo: lineNo, index: -1}
	fields := strings.Fields(normalizeInstructionText(stripComments(raw)))
	switch len(fields) {
	case 0:
		p.empty = true
		return p, nil
	case 3:
	case 4:
		idx, err := strconv.Atoi(fields[0])
		if err != nil || idx < 0 {
			return p, fmt.Errorf("line %d: invalid index %q", lineNo, fields[0])
		}
		p.index = idx
		fields = fields[1:]
	default:
		return p, fmt.Errorf("line %d: expected \"[index] mnemonic L A\", got %d fields", lineNo, len(fields))
	}

	op, ok := vm.ParseOpcode(fields[0])
	if !ok {
		return p, fmt.Errorf("line %d: unknown mnemonic %q", lineNo, fields[0])
	}
	l, err := parseOperand(fields[1], lineNo)
	if err != nil {
		return p, err
	}
	var a int
	if name, ok := operationNames[strings.ToLower(fields[2])]; ok && op == vm.OpOPR {
		a = int(name)
	} else if a, err = parseOperand(fields[2], lineNo); err != nil {
		return p, err
	}
	p.instr = vm.Instruction{Op: op, L: l, A: a}
	return p, nil
}

func parseOperand(token string, lineNo int) (int, error) {
	v, err := strconv.ParseInt(token, 0, 64)
	if err != nil {
		return 0, fmt.Errorf("line %d: invalid operand %q", lineNo, token)
	}
	return int(v), nil
}

// Validate checks that every jump and call target lies inside code.
func Validate(code []vm.Instruction) error {
	for i, in := range code {
		switch in.Op {
		case vm.OpJMP, vm.OpJPC, vm.OpCAL:
			if in.A < 0 || in.A >= len(code) {
				return fmt.Errorf("instruction %d: target %d outside program of %d instructions", i, in.A, len(code))
			}
		case vm.OpINT:
			if in.A < 0 || in.L < 0 {
				return fmt.Errorf("instruction %d: negative frame size", i)
			}
		}
	}
	return nil
}

func stripComments(line string) string {
	semicolon := strings.Index(line, ";")
	doubleSlash := strings.Index(line, "//")

	cut := -1
	if semicolon >= 0 {
		cut = semicolon
	}
	if doubleSlash >= 0 && (cut == -1 || doubleSlash < cut) {
		cut = doubleSlash
	}
	if cut >= 0 {
		return line[:cut]
	}
	return line
}

func normalizeInstructionText(line string) string {
	return strings.NewReplacer(",", " ", "\t", " ").Replace(line)
}
