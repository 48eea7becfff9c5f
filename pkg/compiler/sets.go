package compiler

// SymSet is a set of token kinds used for FIRST/FOLLOW checks.
type SymSet [tokenTypeCount]bool

// Of builds a set holding the given kinds.
func Of(kinds ...TokenType) SymSet {
	var s SymSet
	for _, k := range kinds {
		s[k] = true
	}
	return s
}

func (s SymSet) Has(k TokenType) bool {
	return k >= 0 && int(k) < len(s) && s[k]
}

// With returns s plus the given kinds.
func (s SymSet) With(kinds ...TokenType) SymSet {
	for _, k := range kinds {
		s[k] = true
	}
	return s
}

func (s SymSet) Union(o SymSet) SymSet {
	for i := range s {
		s[i] = s[i] || o[i]
	}
	return s
}

func (s SymSet) Diff(o SymSet) SymSet {
	for i := range s {
		s[i] = s[i] && !o[i]
	}
	return s
}

func (s SymSet) Intersect(o SymSet) SymSet {
	for i := range s {
		s[i] = s[i] && o[i]
	}
	return s
}

var (
	// tokens that can start a statement inside a block
	statementStart = Of(LET, IDENTIFIER, IF, WHILE, INPUT, OUTPUT, TRY, RETURN)
	// tokens that can start an expression
	factorStart = Of(IDENTIFIER, NUMBER, LPAREN)
	// tokens that begin a top-level declaration
	declStart = Of(FUNC, MAIN)
	relOps    = Of(EQUALS, NOT_EQ, LESS, LESS_EQ, GREATER, GREATER_EQ)
)
