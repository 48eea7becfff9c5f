package compiler

import (
	"fmt"
	"io"

	"l25/pkg/vm"
)

// Parser compiles while it parses: every production emits its code as soon
// as it is recognised, and forward jumps are patched through handles.
//
// Grammar:
//
//	program   = "program" IDENTIFIER "{" function* "main" block "}" EOF
//	function  = "func" IDENTIFIER "(" [IDENTIFIER {"," IDENTIFIER}] ")" "{" stmt* "return" expr ";" "}"
//	block     = "{" stmt* "}"
//	stmt      = let | assign | call | if | while | input | output | try | return
//	let       = "let" IDENTIFIER ["=" expr] ";"
//	assign    = IDENTIFIER "=" expr ";"
//	call      = IDENTIFIER "(" [expr {"," expr}] ")" ";"
//	if        = "if" "(" condition ")" block ["else" block]
//	while     = "while" "(" condition ")" block
//	input     = "input" "(" IDENTIFIER {"," IDENTIFIER} ")" ";"
//	output    = "output" "(" expr {"," expr} ")" ";"
//	try       = "try" block "catch" block
//	return    = "return" expr ";"
//	condition = expr relop expr
//	expr      = ["+"|"-"] term {("+"|"-") term}
//	term      = factor {("*"|"/") factor}
//	factor    = IDENTIFIER ["(" args ")"] | NUMBER | "(" expr ")"
type Parser struct {
	lex   *Lexer
	tok   Token
	code  *CodeBuffer
	table *SymbolTable

	mode   vm.AddressingMode
	layout vm.Layout

	diags     []Diagnostic
	maxErrors int

	// transcript receives echoed source lines and error markers.
	transcript io.Writer

	fn *Symbol // function being compiled; nil in main
}

func newParser(src string, opts Options) *Parser {
	p := &Parser{
		lex:        NewLexer(src),
		code:       NewCodeBuffer(opts.MaxCode),
		table:      NewSymbolTable(opts.MaxSymbols),
		mode:       opts.Mode,
		layout:     opts.Mode.Layout(),
		maxErrors:  opts.MaxErrors,
		transcript: opts.Transcript,
	}
	if p.maxErrors <= 0 {
		p.maxErrors = DefaultMaxErrors
	}
	p.lex.Report = p.report
	if p.transcript != nil {
		p.lex.OnLine = func(line int, text string) {
			fmt.Fprintf(p.transcript, "%d %s\n", p.code.Pos(), text)
		}
	}
	return p
}

func (p *Parser) next() {
	p.tok = p.lex.Next()
}

func (p *Parser) report(d Diagnostic) {
	p.diags = append(p.diags, d)
	if p.transcript != nil {
		fmt.Fprintln(p.transcript, d.Marker())
	}
	if len(p.diags) > p.maxErrors {
		panic(fatal{fmt.Errorf("%w: more than %d", ErrTooManyErrors, p.maxErrors)})
	}
}

// error reports code at the current token.
func (p *Parser) error(code ErrorCode) {
	p.report(Diagnostic{Line: p.tok.Line, Col: p.tok.Col, Code: code})
}

// test reports code unless the current token is in required, then skips
// until a token in required or recovery shows up. EOF always stops the skip.
func (p *Parser) test(required, recovery SymSet, code ErrorCode) {
	if required.Has(p.tok.Type) {
		return
	}
	p.error(code)
	stop := required.Union(recovery)
	for !stop.Has(p.tok.Type) && p.tok.Type != EOF {
		p.next()
	}
}

// expect consumes a token of the given kind or reports code and leaves the
// current token in place.
func (p *Parser) expect(kind TokenType, code ErrorCode) {
	if p.tok.Type == kind {
		p.next()
		return
	}
	p.error(code)
}

func (p *Parser) emit(op vm.Opcode, l, a int) Handle {
	h, err := p.code.Emit(op, l, a)
	if err != nil {
		panic(fatal{err})
	}
	return h
}

func (p *Parser) placeholder(op vm.Opcode, l int) Handle {
	h, err := p.code.EmitPlaceholder(op, l)
	if err != nil {
		panic(fatal{err})
	}
	return h
}

func (p *Parser) emitOpr(op vm.Operation) {
	p.emit(vm.OpOPR, 0, int(op))
}

func (p *Parser) enter(kind Kind, name string) *Symbol {
	sym, err := p.table.Enter(kind, name)
	if err != nil {
		panic(fatal{err})
	}
	return sym
}

// levelDiff is the L operand for accessing sym from the current frame.
func (p *Parser) levelDiff(sym *Symbol) int {
	if p.mode != vm.Nested {
		return 0
	}
	return p.table.Level() - sym.Level
}

func (p *Parser) statementStart() SymSet {
	if p.fn == nil {
		return statementStart.Diff(Of(RETURN))
	}
	return statementStart
}

func (p *Parser) program() {
	fsys := declStart.With(RBRACE)

	p.expect(PROGRAM, CodeProgramExpected)
	p.expect(IDENTIFIER, CodeIdentExpected)
	p.expect(LBRACE, CodeMissingLBrace)

	skip := p.placeholder(vm.OpJMP, 0)
	for p.tok.Type == FUNC {
		p.function(fsys)
	}
	p.code.Patch(skip, p.code.Pos())

	p.expect(MAIN, CodeMainExpected)
	p.table.SetLevel(0)
	p.table.SetCursor(p.layout.Header)
	prologue := p.placeholder(vm.OpINT, 0)
	p.block(fsys)
	p.code.Patch(prologue, p.table.Cursor())
	p.emitOpr(vm.OprHalt)

	p.expect(RBRACE, CodeMissingRBrace)
	if p.tok.Type != EOF {
		p.error(CodeTrailingText)
	}
}

func (p *Parser) function(fsys SymSet) {
	p.next() // func

	var fn *Symbol
	if p.tok.Type == IDENTIFIER {
		fn = p.enter(KindFunction, p.tok.Lexeme)
		p.next()
	} else {
		p.error(CodeIdentExpected)
		fn = &Symbol{Kind: KindFunction}
	}
	fn.Addr = p.code.Pos()

	mark := p.table.Checkpoint()
	savedCursor, savedLevel := p.table.Cursor(), p.table.Level()
	p.table.SetCursor(p.layout.Header)
	p.table.SetLevel(fn.Level + 1)

	p.expect(LPAREN, CodeMissingLParen)
	if p.tok.Type == IDENTIFIER {
		for {
			if p.tok.Type == IDENTIFIER {
				p.enter(KindParameter, p.tok.Lexeme)
				fn.ParamCount++
				p.next()
			} else {
				p.error(CodeIdentExpected)
			}
			if p.tok.Type != COMMA {
				break
			}
			p.next()
		}
	}
	p.expect(RPAREN, CodeMissingRParen)
	p.expect(LBRACE, CodeMissingLBrace)

	prologue := p.placeholder(vm.OpINT, fn.ParamCount)
	outer := p.fn
	p.fn = fn

	inner := p.statementStart().Union(fsys).With(RBRACE, SEMICOLON)
	for {
		if p.tok.Type == RETURN {
			p.next()
			p.expression(inner)
			p.emit(vm.OpSTO, 0, p.layout.ReturnValue)
			p.expect(SEMICOLON, CodeMissingSemicolon)
			break
		}
		if !p.statementStart().Has(p.tok.Type) {
			p.error(CodeMissingReturn)
			break
		}
		p.statement(inner)
		if p.tok.Type == SEMICOLON {
			p.next()
		}
	}
	p.test(Of(RBRACE), fsys, CodeMissingRBrace)
	if p.tok.Type == RBRACE {
		p.next()
	}

	p.code.Patch(prologue, p.table.Cursor())
	p.emitOpr(vm.OprReturn)
	fn.Size = p.table.Cursor()

	p.fn = outer
	p.table.Restore(mark)
	p.table.SetCursor(savedCursor)
	p.table.SetLevel(savedLevel)
}

// block compiles "{" stmt* "}". Names declared inside are dropped at the
// closing brace; their frame slots are not reused.
func (p *Parser) block(fsys SymSet) {
	mark := p.table.Checkpoint()
	p.expect(LBRACE, CodeMissingLBrace)
	p.statements(fsys)
	p.expect(RBRACE, CodeMissingRBrace)
	p.table.Restore(mark)
}

func (p *Parser) statements(fsys SymSet) {
	start := p.statementStart()
	inner := start.Union(fsys).With(RBRACE, SEMICOLON)
	for start.Has(p.tok.Type) {
		p.statement(inner)
		if p.tok.Type == SEMICOLON {
			p.next()
		}
	}
}

func (p *Parser) statement(fsys SymSet) {
	switch p.tok.Type {
	case LET:
		p.letStatement(fsys)
	case IDENTIFIER:
		p.identStatement(fsys)
	case IF:
		p.ifStatement(fsys)
	case WHILE:
		p.whileStatement(fsys)
	case INPUT:
		p.inputStatement(fsys)
	case OUTPUT:
		p.outputStatement(fsys)
	case TRY:
		p.tryStatement(fsys)
	case RETURN:
		p.returnStatement(fsys)
	}
	p.test(fsys.With(RETURN, ELSE, CATCH), SymSet{}, CodeBadFollow)
}

func (p *Parser) letStatement(fsys SymSet) {
	p.next() // let
	if p.tok.Type != IDENTIFIER {
		p.error(CodeIdentExpected)
		p.test(fsys.With(SEMICOLON), SymSet{}, CodeMissingSemicolon)
		if p.tok.Type == SEMICOLON {
			p.next()
		}
		return
	}
	// entered before the initializer so the name is already in scope there
	sym := p.enter(KindVariable, p.tok.Lexeme)
	p.next()
	if p.tok.Type == ASSIGN {
		p.next()
		p.expression(fsys.With(SEMICOLON))
		p.emit(vm.OpSTO, p.levelDiff(sym), sym.Addr)
	}
	p.expect(SEMICOLON, CodeMissingSemicolon)
}

func (p *Parser) identStatement(fsys SymSet) {
	sym, found := p.table.Lookup(p.tok.Lexeme)
	if !found {
		p.error(CodeUndeclared)
	}
	p.next()

	switch p.tok.Type {
	case ASSIGN:
		if found && sym.Kind == KindFunction {
			p.error(CodeFunctionAsVar)
		}
		p.next()
		p.expression(fsys.With(SEMICOLON))
		if found && sym.Kind != KindFunction {
			p.emit(vm.OpSTO, p.levelDiff(sym), sym.Addr)
		}
	case LPAREN:
		if p.call(sym, fsys.With(SEMICOLON)) {
			// drop the unused result
			p.emit(vm.OpJPC, 0, p.code.Pos()+1)
		}
	default:
		p.error(CodeAssignOrCall)
	}
	p.expect(SEMICOLON, CodeMissingSemicolon)
}

// call compiles "(" args ")" after the callee name. It reports whether a
// cal was emitted, which leaves one result value on the stack.
func (p *Parser) call(fn *Symbol, fsys SymSet) bool {
	callable := fn != nil && fn.Kind == KindFunction
	if fn != nil && !callable {
		p.error(CodeNotFunction)
	}
	p.next() // (

	args := 0
	if p.tok.Type != RPAREN {
		for {
			p.expression(fsys.With(COMMA, RPAREN))
			p.emitOpr(vm.OprCommit)
			args++
			if p.tok.Type != COMMA {
				break
			}
			p.next()
		}
	}
	p.expect(RPAREN, CodeMissingRParen)

	if !callable {
		return false
	}
	if args != fn.ParamCount {
		p.error(CodeArgCount)
	}
	p.emit(vm.OpCAL, p.levelDiff(fn), fn.Addr)
	return true
}

func (p *Parser) ifStatement(fsys SymSet) {
	p.next() // if
	p.expect(LPAREN, CodeMissingLParen)
	p.condition(fsys.With(RPAREN, LBRACE))
	p.expect(RPAREN, CodeMissingRParen)

	skipThen := p.placeholder(vm.OpJPC, 0)
	p.block(fsys.With(ELSE))

	if p.tok.Type == ELSE {
		p.next()
		skipElse := p.placeholder(vm.OpJMP, 0)
		p.code.Patch(skipThen, p.code.Pos())
		p.block(fsys)
		p.code.Patch(skipElse, p.code.Pos())
		return
	}
	p.code.Patch(skipThen, p.code.Pos())
}

func (p *Parser) whileStatement(fsys SymSet) {
	top := p.code.Pos()
	p.next() // while
	p.expect(LPAREN, CodeMissingLParen)
	p.condition(fsys.With(RPAREN, LBRACE))
	p.expect(RPAREN, CodeMissingRParen)

	exit := p.placeholder(vm.OpJPC, 0)
	p.block(fsys)
	p.emit(vm.OpJMP, 0, top)
	p.code.Patch(exit, p.code.Pos())
}

func (p *Parser) inputStatement(fsys SymSet) {
	p.next() // input
	p.expect(LPAREN, CodeInputLParen)
	for {
		if p.tok.Type == IDENTIFIER {
			sym, found := p.table.Lookup(p.tok.Lexeme)
			switch {
			case !found:
				p.error(CodeUndeclared)
			case sym.Kind == KindFunction:
				p.error(CodeFunctionAsVar)
			default:
				p.emitOpr(vm.OprRead)
				p.emit(vm.OpSTO, p.levelDiff(sym), sym.Addr)
			}
			p.next()
		} else {
			p.error(CodeIdentExpected)
		}
		if p.tok.Type != COMMA {
			break
		}
		p.next()
	}
	p.expect(RPAREN, CodeMissingRParen)
	p.expect(SEMICOLON, CodeMissingSemicolon)
}

func (p *Parser) outputStatement(fsys SymSet) {
	p.next() // output
	p.expect(LPAREN, CodeMissingLParen)
	for {
		p.expression(fsys.With(COMMA, RPAREN))
		p.emitOpr(vm.OprPrint)
		if p.tok.Type != COMMA {
			break
		}
		p.next()
	}
	p.expect(RPAREN, CodeMissingRParen)
	p.expect(SEMICOLON, CodeMissingSemicolon)
}

func (p *Parser) tryStatement(fsys SymSet) {
	p.next() // try
	handler := p.placeholder(vm.OpLIT, 0)
	p.emitOpr(vm.OprPushCatch)
	p.block(fsys.With(CATCH))
	p.emitOpr(vm.OprPopCatch)
	skipCatch := p.placeholder(vm.OpJMP, 0)

	p.expect(CATCH, CodeCatchExpected)
	p.code.Patch(handler, p.code.Pos())
	p.block(fsys)
	p.emitOpr(vm.OprPopCatch)
	p.code.Patch(skipCatch, p.code.Pos())
}

func (p *Parser) returnStatement(fsys SymSet) {
	p.next() // return
	p.expression(fsys.With(SEMICOLON))
	p.emit(vm.OpSTO, 0, p.layout.ReturnValue)
	p.emitOpr(vm.OprReturn)
	p.expect(SEMICOLON, CodeMissingSemicolon)
}

func (p *Parser) condition(fsys SymSet) {
	p.expression(fsys.Union(relOps))
	if !relOps.Has(p.tok.Type) {
		p.error(CodeRelopExpected)
		return
	}
	op := p.tok.Type
	p.next()
	p.expression(fsys)
	switch op {
	case EQUALS:
		p.emitOpr(vm.OprEq)
	case NOT_EQ:
		p.emitOpr(vm.OprNe)
	case LESS:
		p.emitOpr(vm.OprLt)
	case GREATER_EQ:
		p.emitOpr(vm.OprGe)
	case GREATER:
		p.emitOpr(vm.OprGt)
	case LESS_EQ:
		p.emitOpr(vm.OprLe)
	}
}

func (p *Parser) expression(fsys SymSet) {
	inner := fsys.With(PLUS, MINUS)
	if p.tok.Type == PLUS || p.tok.Type == MINUS {
		op := p.tok.Type
		p.next()
		p.term(inner)
		if op == MINUS {
			p.emitOpr(vm.OprNeg)
		}
	} else {
		p.term(inner)
	}
	for p.tok.Type == PLUS || p.tok.Type == MINUS {
		op := p.tok.Type
		p.next()
		p.term(inner)
		if op == PLUS {
			p.emitOpr(vm.OprAdd)
		} else {
			p.emitOpr(vm.OprSub)
		}
	}
}

func (p *Parser) term(fsys SymSet) {
	inner := fsys.With(STAR, SLASH)
	p.factor(inner)
	for p.tok.Type == STAR || p.tok.Type == SLASH {
		op := p.tok.Type
		p.next()
		p.factor(inner)
		if op == STAR {
			p.emitOpr(vm.OprMul)
		} else {
			p.emitOpr(vm.OprDiv)
		}
	}
}

func (p *Parser) factor(fsys SymSet) {
	p.test(factorStart, fsys, CodeIllegalFactor)
	if !factorStart.Has(p.tok.Type) {
		return
	}

	switch p.tok.Type {
	case IDENTIFIER:
		sym, found := p.table.Lookup(p.tok.Lexeme)
		if !found {
			p.error(CodeUndeclared)
		}
		p.next()
		switch {
		case p.tok.Type == LPAREN:
			if !p.call(sym, fsys) {
				p.emit(vm.OpLIT, 0, 0)
			}
		case !found:
			p.emit(vm.OpLIT, 0, 0)
		case sym.Kind == KindFunction:
			p.error(CodeFunctionAsVar)
			p.emit(vm.OpLIT, 0, 0)
		default:
			p.emit(vm.OpLOD, p.levelDiff(sym), sym.Addr)
		}
	case NUMBER:
		p.emit(vm.OpLIT, 0, p.tok.Value)
		p.next()
	case LPAREN:
		p.next()
		p.expression(fsys.With(RPAREN))
		p.expect(RPAREN, CodeMissingRParen)
	}
	p.test(fsys, factorStart, CodeIllegalFactor)
}
