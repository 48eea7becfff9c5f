package compiler

import (
	"sort"
	"strings"
)

const (
	MaxIdentLen = 10          // identifiers are truncated to this many characters
	MaxDigits   = 14          // longest accepted numeric literal
	MaxNumber   = 0xfffffffff // largest accepted numeric value
)

// charTokens maps single-character tokens; everything else is NOTHING.
var charTokens [256]TokenType

func init() {
	for i := range charTokens {
		charTokens[i] = NOTHING
	}
	charTokens['+'] = PLUS
	charTokens['-'] = MINUS
	charTokens['*'] = STAR
	charTokens['/'] = SLASH
	charTokens['('] = LPAREN
	charTokens[')'] = RPAREN
	charTokens['{'] = LBRACE
	charTokens['}'] = RBRACE
	charTokens[','] = COMMA
	charTokens[';'] = SEMICOLON
	charTokens['.'] = DOT
}

func isLetter(c byte) bool { return c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' }
func isDigit(c byte) bool  { return c >= '0' && c <= '9' }

// Lexer holds all mutable state for a single scanning pass over src.
type Lexer struct {
	src  []byte
	pos  int // index of the next byte to consume
	line int // current 1-based source line
	col  int // bytes consumed on the current line

	announced int // last line handed to OnLine

	// OnLine, when set, is called with each physical line as the lexer
	// first reaches it.
	OnLine func(line int, text string)
	// Report receives lexical errors. If nil they are kept in Diagnostics.
	Report func(d Diagnostic)

	Diagnostics []Diagnostic
}

// NewLexer returns a lexer positioned at the start of src.
func NewLexer(src string) *Lexer {
	return &Lexer{src: []byte(src), line: 1}
}

// peek returns the byte at the current position without advancing.
func (l *Lexer) peek() byte {
	if l.pos >= len(l.src) {
		return 0
	}
	return l.src[l.pos]
}

// advance consumes one byte and returns it.
func (l *Lexer) advance() byte {
	if l.pos >= len(l.src) {
		return 0
	}
	c := l.src[l.pos]
	l.pos++
	if c == '\n' {
		l.line++
		l.col = 0
	} else {
		l.col++
	}
	return c
}

// touch announces the current line the first time the lexer stands on it.
func (l *Lexer) touch() {
	if l.pos >= len(l.src) || l.announced >= l.line {
		return
	}
	l.announced = l.line
	if l.OnLine == nil {
		return
	}
	start := l.pos - l.col
	end := start
	for end < len(l.src) && l.src[end] != '\n' {
		end++
	}
	l.OnLine(l.line, strings.TrimRight(string(l.src[start:end]), "\r"))
}

func (l *Lexer) error(code ErrorCode) {
	d := Diagnostic{Line: l.line, Col: l.col + 1, Code: code}
	if l.Report != nil {
		l.Report(d)
		return
	}
	l.Diagnostics = append(l.Diagnostics, d)
}

func (l *Lexer) skipWhitespace() {
	for {
		l.touch()
		switch l.peek() {
		case ' ', '\t', '\n', '\r':
			l.advance()
		default:
			return
		}
	}
}

func (l *Lexer) token(tt TokenType, lexeme string) Token {
	return Token{Type: tt, Lexeme: lexeme, Line: l.line, Col: l.col + 1}
}

// scanIdent collects an identifier or keyword. Characters past MaxIdentLen
// are consumed but dropped.
func (l *Lexer) scanIdent() Token {
	var b strings.Builder
	for isLetter(l.peek()) || isDigit(l.peek()) {
		c := l.advance()
		if b.Len() < MaxIdentLen {
			b.WriteByte(c)
		}
	}
	name := b.String()
	if i := sort.SearchStrings(keywordNames, name); i < len(keywordNames) && keywordNames[i] == name {
		return l.token(keywordTypes[i], name)
	}
	return l.token(IDENTIFIER, name)
}

// scanNumber collects a decimal literal, reporting 30 for too many digits
// and 31 for a value above MaxNumber.
func (l *Lexer) scanNumber() Token {
	start := l.pos
	digits, value := 0, 0
	for isDigit(l.peek()) {
		c := l.advance()
		digits++
		if digits <= MaxDigits {
			value = value*10 + int(c-'0')
		}
	}
	tok := l.token(NUMBER, string(l.src[start:l.pos]))
	switch {
	case digits > MaxDigits:
		l.error(CodeBadLexeme)
	case value > MaxNumber:
		l.error(CodeNumberRange)
		value = 0
	}
	tok.Value = value
	return tok
}

// Next returns the next token; at end of input it keeps returning EOF.
func (l *Lexer) Next() Token {
	l.skipWhitespace()
	if l.pos >= len(l.src) {
		return l.token(EOF, "")
	}

	c := l.peek()
	switch {
	case isLetter(c):
		return l.scanIdent()
	case isDigit(c):
		return l.scanNumber()
	}

	l.advance()
	switch c {
	case '=':
		if l.peek() == '=' {
			l.advance()
			return l.token(EQUALS, "==")
		}
		return l.token(ASSIGN, "=")
	case '<':
		if l.peek() == '=' {
			l.advance()
			return l.token(LESS_EQ, "<=")
		}
		return l.token(LESS, "<")
	case '>':
		if l.peek() == '=' {
			l.advance()
			return l.token(GREATER_EQ, ">=")
		}
		return l.token(GREATER, ">")
	case '!':
		if l.peek() == '=' {
			l.advance()
			return l.token(NOT_EQ, "!=")
		}
		l.error(CodeBadLexeme)
		return l.token(NOTHING, "!")
	}
	return l.token(charTokens[c], string(c))
}

// Lex scans src to the end and returns every token including the final EOF.
func Lex(src string) ([]Token, []Diagnostic) {
	l := NewLexer(src)
	var tokens []Token
	for {
		tok := l.Next()
		tokens = append(tokens, tok)
		if tok.Type == EOF {
			return tokens, l.Diagnostics
		}
	}
}
