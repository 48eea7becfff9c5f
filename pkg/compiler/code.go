package compiler

import (
	"fmt"
	"sort"

	"l25/pkg/vm"
)

// DefaultMaxCode is the instruction capacity of a compiled program.
const DefaultMaxCode = 200

// Handle names an emitted instruction whose A operand is patched later.
type Handle int

// CodeBuffer is the append-only instruction array. The only mutation
// allowed after emission is Patch through a Handle.
type CodeBuffer struct {
	code    []vm.Instruction
	max     int
	pending map[Handle]bool
}

func NewCodeBuffer(max int) *CodeBuffer {
	if max <= 0 {
		max = DefaultMaxCode
	}
	return &CodeBuffer{max: max, pending: make(map[Handle]bool)}
}

// Pos is the index the next instruction will get.
func (c *CodeBuffer) Pos() int { return len(c.code) }

// Emit appends an instruction.
func (c *CodeBuffer) Emit(op vm.Opcode, l, a int) (Handle, error) {
	if len(c.code) >= c.max {
		return 0, fmt.Errorf("%w: more than %d instructions", ErrProgramTooLong, c.max)
	}
	c.code = append(c.code, vm.Instruction{Op: op, L: l, A: a})
	return Handle(len(c.code) - 1), nil
}

// EmitPlaceholder appends an instruction whose A operand must be patched.
func (c *CodeBuffer) EmitPlaceholder(op vm.Opcode, l int) (Handle, error) {
	h, err := c.Emit(op, l, 0)
	if err == nil {
		c.pending[h] = true
	}
	return h, err
}

// Patch sets the A operand of a previously emitted instruction.
func (c *CodeBuffer) Patch(h Handle, a int) {
	if int(h) < 0 || int(h) >= len(c.code) {
		panic(fmt.Sprintf("patch of unknown handle %d", h))
	}
	c.code[h].A = a
	delete(c.pending, h)
}

// Unpatched lists placeholders that were never patched.
func (c *CodeBuffer) Unpatched() []Handle {
	var out []Handle
	for h := range c.pending {
		out = append(out, h)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Instructions returns a copy of the emitted code.
func (c *CodeBuffer) Instructions() []vm.Instruction {
	return append([]vm.Instruction(nil), c.code...)
}
