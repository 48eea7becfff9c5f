package vm

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
)

const (
	DefaultStackSize   = 500
	DefaultMaxHandlers = 500
)

var (
	ErrDivisionByZero   = errors.New("division by zero")
	ErrStackOverflow    = errors.New("stack overflow")
	ErrBadAddress       = errors.New("address out of range")
	ErrHandlerOverflow  = errors.New("too many nested handlers")
	ErrHandlerUnderflow = errors.New("handler stack empty")
	ErrParamUnderflow   = errors.New("missing committed parameter")
	ErrBadOperation     = errors.New("illegal instruction")
	ErrInput            = errors.New("input failed")
	ErrStepLimit        = errors.New("step limit exceeded")
)

// Fault is a runtime error that stopped the machine.
type Fault struct {
	Err   error
	At    int // index of the faulting instruction
	Instr Instruction
}

func (f *Fault) Error() string {
	return fmt.Sprintf("runtime fault at instruction %d (%s): %v", f.At, f.Instr, f.Err)
}

func (f *Fault) Unwrap() error { return f.Err }

// IntReader supplies values for the read operation.
type IntReader interface {
	ReadInt() (int, error)
}

type scanReader struct {
	r *bufio.Reader
}

// NewScanReader reads whitespace-separated decimal integers from r.
func NewScanReader(r io.Reader) IntReader {
	return &scanReader{r: bufio.NewReader(r)}
}

func (s *scanReader) ReadInt() (int, error) {
	var v int
	if _, err := fmt.Fscan(s.r, &v); err != nil {
		return 0, err
	}
	return v, nil
}

// Handler is one entry of the exception-address stack.
type Handler struct {
	Addr    int `json:"addr"`    // catch block entry
	Base    int `json:"base"`    // frame base when pushed
	Top     int `json:"top"`     // stack top when pushed
	Pending int `json:"pending"` // committed parameter depth when pushed
}

// Config sizes a Machine. Zero fields take the defaults.
type Config struct {
	Mode        AddressingMode
	StackSize   int
	MaxHandlers int
	StepLimit   int // 0 means unlimited
}

// Machine executes an instruction array against an integer stack.
type Machine struct {
	Code  []Instruction
	Mode  AddressingMode
	Stack []int

	P int // next instruction
	B int // current frame base
	T int // stack top

	Halted bool
	Steps  int

	Handlers []Handler
	Pending  []int

	MaxHandlers int
	StepLimit   int

	// Output receives printed values and the read prompt.
	// If nil, os.Stdout is used.
	Output io.Writer
	// Input supplies read values. If nil, os.Stdin is scanned.
	Input IntReader
	// Trace, when set, gets a stack dump after every instruction.
	Trace io.Writer
	// Errors receives runtime notices. If nil, os.Stderr is used.
	Errors io.Writer

	layout Layout
	cur    int
}

// New prepares a machine positioned at instruction 0 with an empty main frame.
func New(code []Instruction, cfg Config) *Machine {
	if cfg.StackSize <= 0 {
		cfg.StackSize = DefaultStackSize
	}
	if cfg.MaxHandlers <= 0 {
		cfg.MaxHandlers = DefaultMaxHandlers
	}
	m := &Machine{
		Code:        code,
		Mode:        cfg.Mode,
		Stack:       make([]int, cfg.StackSize),
		MaxHandlers: cfg.MaxHandlers,
		StepLimit:   cfg.StepLimit,
	}
	m.Reset()
	return m
}

// Reset clears the stack and registers, keeping code and writers.
func (m *Machine) Reset() {
	for i := range m.Stack {
		m.Stack[i] = 0
	}
	m.layout = m.Mode.Layout()
	m.P = 0
	m.B = 1
	m.T = 0
	m.Halted = false
	m.Steps = 0
	m.Handlers = m.Handlers[:0]
	m.Pending = m.Pending[:0]
}

func (m *Machine) outputSink() io.Writer {
	if m.Output != nil {
		return m.Output
	}
	return os.Stdout
}

func (m *Machine) errorSink() io.Writer {
	if m.Errors != nil {
		return m.Errors
	}
	return os.Stderr
}

func (m *Machine) inputSource() IntReader {
	if m.Input == nil {
		m.Input = NewScanReader(os.Stdin)
	}
	return m.Input
}

func (m *Machine) fault(err error) error {
	var in Instruction
	if m.cur >= 0 && m.cur < len(m.Code) {
		in = m.Code[m.cur]
	}
	m.Halted = true
	return &Fault{Err: err, At: m.cur, Instr: in}
}

func (m *Machine) push(v int) error {
	if m.T+1 >= len(m.Stack) {
		return m.fault(ErrStackOverflow)
	}
	m.T++
	m.Stack[m.T] = v
	return nil
}

func (m *Machine) pop() (int, error) {
	if m.T < 1 {
		return 0, m.fault(ErrBadAddress)
	}
	v := m.Stack[m.T]
	m.T--
	return v, nil
}

// binary pops the right operand and combines it into the new top.
func (m *Machine) binary(f func(a, b int) int) error {
	if m.T < 2 {
		return m.fault(ErrBadAddress)
	}
	m.T--
	m.Stack[m.T] = f(m.Stack[m.T], m.Stack[m.T+1])
	return nil
}

func boolInt(c bool) int {
	if c {
		return 1
	}
	return 0
}

// base follows l static links from the current frame.
func (m *Machine) base(l int) (int, error) {
	b := m.B
	if m.Mode != Nested {
		return b, nil
	}
	for ; l > 0; l-- {
		link := b + m.layout.StaticLink
		if link < 1 || link >= len(m.Stack) {
			return 0, m.fault(ErrBadAddress)
		}
		b = m.Stack[link]
	}
	return b, nil
}

func (m *Machine) slot(l, a int) (int, error) {
	b, err := m.base(l)
	if err != nil {
		return 0, err
	}
	addr := b + a
	if addr < 1 || addr >= len(m.Stack) {
		return 0, m.fault(ErrBadAddress)
	}
	return addr, nil
}

// Run executes until halt or fault.
func (m *Machine) Run() error {
	for !m.Halted {
		if err := m.Step(); err != nil {
			return err
		}
	}
	return nil
}

// Step executes a single instruction.
func (m *Machine) Step() error {
	if m.Halted {
		return nil
	}
	if m.P < 0 || m.P >= len(m.Code) {
		m.cur = m.P
		return m.fault(ErrBadAddress)
	}
	if m.StepLimit > 0 && m.Steps >= m.StepLimit {
		m.cur = m.P
		return m.fault(ErrStepLimit)
	}

	m.cur = m.P
	in := m.Code[m.P]
	m.P++
	m.Steps++

	var err error
	switch in.Op {
	case OpLIT:
		err = m.push(in.A)
	case OpOPR:
		err = m.operate(Operation(in.A))
	case OpLOD:
		var addr int
		if addr, err = m.slot(in.L, in.A); err == nil {
			err = m.push(m.Stack[addr])
		}
	case OpSTO:
		var addr, v int
		if addr, err = m.slot(in.L, in.A); err == nil {
			if v, err = m.pop(); err == nil {
				m.Stack[addr] = v
			}
		}
	case OpCAL:
		err = m.call(in)
	case OpINT:
		err = m.reserve(in)
	case OpJMP:
		m.P = in.A
	case OpJPC:
		var v int
		if v, err = m.pop(); err == nil && v == 0 {
			m.P = in.A
		}
	default:
		err = m.fault(ErrBadOperation)
	}
	if err != nil {
		return err
	}

	m.trace(in)
	if m.P == 0 {
		m.Halted = true
	}
	return nil
}

func (m *Machine) call(in Instruction) error {
	header := m.layout.Header
	if m.T+header >= len(m.Stack) {
		return m.fault(ErrStackOverflow)
	}
	nb := m.T + 1
	if m.Mode == Nested {
		sl, err := m.base(in.L)
		if err != nil {
			return err
		}
		m.Stack[nb+m.layout.StaticLink] = sl
	}
	m.Stack[nb+m.layout.DynamicLink] = m.B
	m.Stack[nb+m.layout.ReturnAddr] = m.P
	m.Stack[nb+m.layout.ReturnValue] = 0
	m.B = nb
	m.P = in.A
	return nil
}

// reserve allocates A frame slots and binds the last L committed parameters.
func (m *Machine) reserve(in Instruction) error {
	if in.A < 0 || in.L < 0 {
		return m.fault(ErrBadOperation)
	}
	top := m.T + in.A
	if top >= len(m.Stack) {
		return m.fault(ErrStackOverflow)
	}
	from := m.T + 1
	if h := m.B + m.layout.Header; from < h {
		from = h
	}
	for i := from; i <= top; i++ {
		m.Stack[i] = 0
	}
	m.T = top

	if in.L > 0 {
		n := len(m.Pending)
		if n < in.L {
			return m.fault(ErrParamUnderflow)
		}
		if m.B+m.layout.Header+in.L-1 > m.T {
			return m.fault(ErrBadAddress)
		}
		copy(m.Stack[m.B+m.layout.Header:], m.Pending[n-in.L:])
		m.Pending = m.Pending[:n-in.L]
	}
	return nil
}

func (m *Machine) frameReturn() error {
	b := m.B
	if b < 1 || b+m.layout.ReturnValue >= len(m.Stack) {
		return m.fault(ErrBadAddress)
	}
	rv := m.Stack[b+m.layout.ReturnValue]
	ra := m.Stack[b+m.layout.ReturnAddr]
	dl := m.Stack[b+m.layout.DynamicLink]

	// handlers pushed by the returning frame die with it
	for len(m.Handlers) > 0 && m.Handlers[len(m.Handlers)-1].Base >= b {
		m.Handlers = m.Handlers[:len(m.Handlers)-1]
	}

	m.T = b
	m.Stack[m.T] = rv
	m.B = dl
	m.P = ra
	return nil
}

// trap redirects a catchable fault to the innermost handler.
func (m *Machine) trap(cause error) error {
	if len(m.Handlers) == 0 {
		return m.fault(cause)
	}
	h := m.Handlers[len(m.Handlers)-1]
	m.P = h.Addr
	if len(m.Pending) > h.Pending {
		m.Pending = m.Pending[:h.Pending]
	}
	if m.B == h.Base {
		// only the divisor slot is dropped; the dividend stays behind
		m.T--
	} else {
		m.B = h.Base
		m.T = h.Top
	}
	return nil
}

func (m *Machine) operate(op Operation) error {
	switch op {
	case OprHalt:
		m.Halted = true
	case OprNeg:
		if m.T < 1 {
			return m.fault(ErrBadAddress)
		}
		m.Stack[m.T] = -m.Stack[m.T]
	case OprAdd:
		return m.binary(func(a, b int) int { return a + b })
	case OprSub:
		return m.binary(func(a, b int) int { return a - b })
	case OprMul:
		return m.binary(func(a, b int) int { return a * b })
	case OprDiv:
		if m.T < 2 {
			return m.fault(ErrBadAddress)
		}
		if m.Stack[m.T] == 0 {
			fmt.Fprintf(m.errorSink(), "** Runtime Error: Division by zero at instruction %d\n", m.cur)
			return m.trap(ErrDivisionByZero)
		}
		return m.binary(func(a, b int) int { return a / b })
	case OprOdd:
		if m.T < 1 {
			return m.fault(ErrBadAddress)
		}
		m.Stack[m.T] = m.Stack[m.T] % 2
	case OprEq:
		return m.binary(func(a, b int) int { return boolInt(a == b) })
	case OprNe:
		return m.binary(func(a, b int) int { return boolInt(a != b) })
	case OprLt:
		return m.binary(func(a, b int) int { return boolInt(a < b) })
	case OprGe:
		return m.binary(func(a, b int) int { return boolInt(a >= b) })
	case OprGt:
		return m.binary(func(a, b int) int { return boolInt(a > b) })
	case OprLe:
		return m.binary(func(a, b int) int { return boolInt(a <= b) })
	case OprPrint:
		v, err := m.pop()
		if err != nil {
			return err
		}
		fmt.Fprintf(m.outputSink(), "%d ", v)
	case OprNewline:
		fmt.Fprintln(m.outputSink())
	case OprRead:
		fmt.Fprint(m.outputSink(), "?")
		v, err := m.inputSource().ReadInt()
		if err != nil {
			return m.fault(fmt.Errorf("%w: %v", ErrInput, err))
		}
		return m.push(v)
	case OprCommit:
		v, err := m.pop()
		if err != nil {
			return err
		}
		m.Pending = append(m.Pending, v)
	case OprReturn:
		return m.frameReturn()
	case OprPushCatch:
		addr, err := m.pop()
		if err != nil {
			return err
		}
		if len(m.Handlers) >= m.MaxHandlers {
			return m.fault(ErrHandlerOverflow)
		}
		m.Handlers = append(m.Handlers, Handler{Addr: addr, Base: m.B, Top: m.T, Pending: len(m.Pending)})
	case OprPopCatch:
		if len(m.Handlers) == 0 {
			return m.fault(ErrHandlerUnderflow)
		}
		m.Handlers = m.Handlers[:len(m.Handlers)-1]
	default:
		return m.fault(ErrBadOperation)
	}
	return nil
}

func (m *Machine) trace(in Instruction) {
	if m.Trace == nil {
		return
	}
	fmt.Fprintf(m.Trace, "  [after %s %d %d]  stack (t=%d, b=%d):", in.Op, in.L, in.A, m.T, m.B)
	for i := 1; i <= m.T && i < len(m.Stack); i++ {
		fmt.Fprintf(m.Trace, " %d", m.Stack[i])
	}
	fmt.Fprintln(m.Trace)
}
