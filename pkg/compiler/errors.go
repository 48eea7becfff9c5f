package compiler

import (
	"errors"
	"fmt"
	"strings"
)

// ErrorCode is a numbered compile-time diagnostic.
type ErrorCode int

const (
	CodeIdentExpected    ErrorCode = 1
	CodeTrailingText     ErrorCode = 9
	CodeMissingSemicolon ErrorCode = 10
	CodeUndeclared       ErrorCode = 11
	CodeBadFollow        ErrorCode = 19
	CodeRelopExpected    ErrorCode = 20
	CodeMissingRParen    ErrorCode = 22
	CodeMissingLParen    ErrorCode = 23
	CodeMissingRBrace    ErrorCode = 24
	CodeInputLParen      ErrorCode = 26
	CodeBadLexeme        ErrorCode = 30
	CodeNumberRange      ErrorCode = 31
	CodeAssignOrCall     ErrorCode = 33
	CodeMissingLBrace    ErrorCode = 34
	CodeProgramExpected  ErrorCode = 40
	CodeMainExpected     ErrorCode = 41
	CodeMissingReturn    ErrorCode = 50
	CodeArgCount         ErrorCode = 60
	CodeFunctionAsVar    ErrorCode = 61
	CodeNotFunction      ErrorCode = 70
	CodeIllegalFactor    ErrorCode = 77
	CodeCatchExpected    ErrorCode = 88
)

var codeText = map[ErrorCode]string{
	CodeIdentExpected:    "identifier expected",
	CodeTrailingText:     "unexpected text after the end of the program",
	CodeMissingSemicolon: "missing ';'",
	CodeUndeclared:       "undeclared identifier",
	CodeBadFollow:        "incorrect symbol following a statement",
	CodeRelopExpected:    "relational operator expected",
	CodeMissingRParen:    "missing ')'",
	CodeMissingLParen:    "missing '('",
	CodeMissingRBrace:    "missing '}'",
	CodeInputLParen:      "missing '(' after input",
	CodeBadLexeme:        "number too long or stray '!'",
	CodeNumberRange:      "number out of range",
	CodeAssignOrCall:     "'=' or '(' expected after identifier",
	CodeMissingLBrace:    "missing '{'",
	CodeProgramExpected:  "'program' expected",
	CodeMainExpected:     "'main' expected",
	CodeMissingReturn:    "function body must end with return",
	CodeArgCount:         "argument count does not match parameter count",
	CodeFunctionAsVar:    "function name used as a variable",
	CodeNotFunction:      "call of a non-function",
	CodeIllegalFactor:    "illegal symbol in expression",
	CodeCatchExpected:    "'catch' expected",
}

func (c ErrorCode) String() string {
	if s, ok := codeText[c]; ok {
		return s
	}
	return fmt.Sprintf("error %d", int(c))
}

// Diagnostic is one reported compile error.
type Diagnostic struct {
	Line int
	Col  int
	Code ErrorCode
}

func (d Diagnostic) Error() string {
	return fmt.Sprintf("line %d col %d: error %d: %s", d.Line, d.Col, int(d.Code), d.Code)
}

// Marker renders the caret line printed under the echoed source line.
func (d Diagnostic) Marker() string {
	col := d.Col - 1
	if col < 0 {
		col = 0
	}
	return "**" + strings.Repeat(" ", col) + "^" + fmt.Sprint(int(d.Code))
}

var (
	ErrTooManyErrors   = errors.New("too many errors")
	ErrProgramTooLong  = errors.New("program too long")
	ErrSymbolTableFull = errors.New("symbol table full")
	ErrHasErrors       = errors.New("program has errors")
)

// fatal unwinds the parser to Compile.
type fatal struct {
	err error
}

// ErrorList is returned by Compile when diagnostics were reported.
type ErrorList []Diagnostic

func (el ErrorList) Error() string {
	switch len(el) {
	case 0:
		return "no errors"
	case 1:
		return el[0].Error()
	}
	return fmt.Sprintf("%s (and %d more errors)", el[0].Error(), len(el)-1)
}

func (el ErrorList) Unwrap() error { return ErrHasErrors }
