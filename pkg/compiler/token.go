package compiler

import "fmt"

// TokenType identifies the category of a lexed token.
type TokenType int

const (
	EOF     TokenType = iota // sentinel: end of input
	NOTHING                  // unmapped character or stray '!'

	// Literals
	IDENTIFIER // variable / function name
	NUMBER     // decimal integer literal

	// Arithmetic operators
	PLUS  // +
	MINUS // -
	STAR  // *
	SLASH // /

	// Comparison
	EQUALS     // ==
	NOT_EQ     // !=
	LESS       // <
	LESS_EQ    // <=
	GREATER    // >
	GREATER_EQ // >=

	// Delimiters
	LPAREN    // (
	RPAREN    // )
	LBRACE    // {
	RBRACE    // }
	COMMA     // ,
	SEMICOLON // ;
	DOT       // .
	ASSIGN    // =

	// Keywords
	CATCH   // "catch"
	ELSE    // "else"
	FUNC    // "func"
	IF      // "if"
	INPUT   // "input"
	LET     // "let"
	MAIN    // "main"
	OUTPUT  // "output"
	PROGRAM // "program"
	RETURN  // "return"
	TRY     // "try"
	WHILE   // "while"

	tokenTypeCount
)

var tokenNames = [...]string{
	EOF:        "EOF",
	NOTHING:    "NOTHING",
	IDENTIFIER: "IDENTIFIER",
	NUMBER:     "NUMBER",
	PLUS:       "PLUS",
	MINUS:      "MINUS",
	STAR:       "STAR",
	SLASH:      "SLASH",
	EQUALS:     "EQUALS",
	NOT_EQ:     "NOT_EQ",
	LESS:       "LESS",
	LESS_EQ:    "LESS_EQ",
	GREATER:    "GREATER",
	GREATER_EQ: "GREATER_EQ",
	LPAREN:     "LPAREN",
	RPAREN:     "RPAREN",
	LBRACE:     "LBRACE",
	RBRACE:     "RBRACE",
	COMMA:      "COMMA",
	SEMICOLON:  "SEMICOLON",
	DOT:        "DOT",
	ASSIGN:     "ASSIGN",
	CATCH:      "CATCH",
	ELSE:       "ELSE",
	FUNC:       "FUNC",
	IF:         "IF",
	INPUT:      "INPUT",
	LET:        "LET",
	MAIN:       "MAIN",
	OUTPUT:     "OUTPUT",
	PROGRAM:    "PROGRAM",
	RETURN:     "RETURN",
	TRY:        "TRY",
	WHILE:      "WHILE",
}

// The array above must name every TokenType.
var _ = [1]struct{}{}[len(tokenNames)-int(tokenTypeCount)]

func (tt TokenType) String() string {
	if int(tt) >= 0 && int(tt) < len(tokenNames) {
		return tokenNames[tt]
	}
	return fmt.Sprintf("TokenType(%d)", int(tt))
}

// keywordNames is sorted so the lexer can binary-search it.
var keywordNames = []string{
	"catch", "else", "func", "if", "input", "let",
	"main", "output", "program", "return", "try", "while",
}

// keywordTypes is parallel to keywordNames.
var keywordTypes = []TokenType{
	CATCH, ELSE, FUNC, IF, INPUT, LET,
	MAIN, OUTPUT, PROGRAM, RETURN, TRY, WHILE,
}

// Token is a single lexical unit produced by the Lexer.
type Token struct {
	Type   TokenType
	Lexeme string // identifier name (truncated) or matched text
	Value  int    // NUMBER only
	Line   int    // 1-based source line
	Col    int    // 1-based column just past the token
}

func (t Token) String() string {
	if t.Type == NUMBER {
		return fmt.Sprintf("%-10s %-14d  line %d col %d", t.Type, t.Value, t.Line, t.Col)
	}
	return fmt.Sprintf("%-10s %-14q  line %d col %d", t.Type, t.Lexeme, t.Line, t.Col)
}
