package compiler

import (
	"fmt"
	"io"
	"strings"
)

// DefaultMaxSymbols bounds the number of simultaneously visible entries.
const DefaultMaxSymbols = 100

type Kind int

const (
	KindVariable Kind = iota
	KindParameter
	KindFunction
)

func (k Kind) String() string {
	switch k {
	case KindVariable:
		return "variable"
	case KindParameter:
		return "parameter"
	case KindFunction:
		return "function"
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// AttrParam marks an address that holds a bound parameter.
const AttrParam = 1

type Symbol struct {
	Name       string
	Kind       Kind
	Level      int // declaration depth, used by nested addressing
	Addr       int // frame slot; entry address for functions
	Size       int // functions: slots reserved by the prologue
	ParamCount int // functions only
	Attr       int
}

// SymbolTable is a flat, append-only list of entries. Scopes are closed by
// truncating back to a checkpoint; lookups scan from the tail so the latest
// declaration of a name wins.
type SymbolTable struct {
	entries []*Symbol
	history []*Symbol

	// Next free frame slot of the frame being compiled. Block scopes never
	// rewind it, so addresses within one frame are never reused.
	cursor int
	level  int
	max    int
}

func NewSymbolTable(max int) *SymbolTable {
	if max <= 0 {
		max = DefaultMaxSymbols
	}
	return &SymbolTable{max: max}
}

// Enter appends a new entry. Variables and parameters take the next frame
// slot; a function's Addr is filled in by the caller.
func (s *SymbolTable) Enter(kind Kind, name string) (*Symbol, error) {
	if len(s.entries) >= s.max {
		return nil, fmt.Errorf("%w: more than %d entries visible at %q", ErrSymbolTableFull, s.max, name)
	}
	sym := &Symbol{Name: name, Kind: kind, Level: s.level}
	switch kind {
	case KindVariable:
		sym.Addr = s.cursor
		s.cursor++
	case KindParameter:
		sym.Addr = s.cursor
		sym.Attr = AttrParam
		s.cursor++
	}
	s.entries = append(s.entries, sym)
	s.history = append(s.history, sym)
	return sym, nil
}

// Lookup finds the most recent visible entry named name.
func (s *SymbolTable) Lookup(name string) (*Symbol, bool) {
	for i := len(s.entries) - 1; i >= 0; i-- {
		if s.entries[i].Name == name {
			return s.entries[i], true
		}
	}
	return nil, false
}

// Checkpoint marks the current tail.
func (s *SymbolTable) Checkpoint() int {
	return len(s.entries)
}

// Restore discards every entry added after mark.
func (s *SymbolTable) Restore(mark int) {
	if mark < 0 || mark > len(s.entries) {
		return
	}
	for i := mark; i < len(s.entries); i++ {
		s.entries[i] = nil
	}
	s.entries = s.entries[:mark]
}

func (s *SymbolTable) Len() int { return len(s.entries) }

func (s *SymbolTable) Cursor() int { return s.cursor }
func (s *SymbolTable) SetCursor(c int) { s.cursor = c }
func (s *SymbolTable) Level() int { return s.level }
func (s *SymbolTable) SetLevel(lev int) { s.level = lev }

// History returns every entry ever entered, in declaration order.
func (s *SymbolTable) History() []Symbol {
	out := make([]Symbol, len(s.history))
	for i, sym := range s.history {
		out[i] = *sym
	}
	return out
}

// Dump writes one line per declared entry.
func (s *SymbolTable) Dump(w io.Writer) error {
	_, err := io.WriteString(w, FormatSymbols(s.History()))
	return err
}

// FormatSymbols renders entries the way Dump does.
func FormatSymbols(syms []Symbol) string {
	var b strings.Builder
	for i, sym := range syms {
		fmt.Fprintf(&b, "%d %s %s lev=%d addr=%d", i, sym.Kind, sym.Name, sym.Level, sym.Addr)
		if sym.Kind == KindFunction {
			fmt.Fprintf(&b, " size=%d params=%d", sym.Size, sym.ParamCount)
		}
		b.WriteByte('\n')
	}
	return b.String()
}
