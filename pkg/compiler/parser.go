package compiler

import "fmt"

// Parser consumes the flat token slice produced by the Lexer and builds a
// typed Program.
//
// Grammar:
//
//	program     = (typedef | function | globalVar)* EOF
//	function    = "static"? basetype declarator "(" params? ")" ("{" stmt* "}" | ";")
//	globalVar   = basetype declarator ("=" gvarInit)? ("," declarator ("=" gvarInit)?)* ";"
//	stmt        = "return" expr? ";" | "if" "(" expr ")" stmt ("else" stmt)?
//	            | "switch" "(" expr ")" stmt | "case" constExpr ":" stmt | "default" ":" stmt
//	            | "while" "(" expr ")" stmt | "do" stmt "while" "(" expr ")" ";"
//	            | "for" "(" (declaration | exprStmt) expr? ";" expr? ")" stmt
//	            | "{" stmt* "}" | "typedef" ... ";" | "break" ";" | "continue" ";"
//	            | "goto" ident ";" | ident ":" stmt | declaration | expr? ";"
//	expr        = assign ("," assign)*
//	assign      = conditional (assignOp assign)?
//	conditional = logor ("?" expr ":" conditional)?
//	logor       = logand ("||" logand)*
//	logand      = bitor ("&&" bitor)*
//	bitor       = bitxor ("|" bitxor)*
//	bitxor      = bitand ("^" bitand)*
//	bitand      = equality ("&" equality)*
//	equality    = relational (("==" | "!=") relational)*
//	relational  = shift (("<" | "<=" | ">" | ">=") shift)*
//	shift       = add (("<<" | ">>") add)*
//	add         = mul (("+" | "-") mul)*
//	mul         = cast (("*" | "/" | "%") cast)*
//	cast        = "(" typename ")" cast | unary
//	unary       = ("+" | "-" | "*" | "&" | "!" | "~") cast | ("++" | "--") unary
//	            | "sizeof" ("(" typename ")" | unary) | postfix
//	postfix     = primary ("[" expr "]" | "." ident | "->" ident | "++" | "--")*
//	primary     = "(" expr ")" | ident ("(" args ")")? | number | string
type Parser struct {
	tokens []Token
	pos    int
	syms   *SymbolTable
	prog   *Program

	// Per-function state, reset by parseFunction.
	fn        *Function
	switches  []*SwitchStmt
	breakable int // enclosing loops and switches
	loops     int // enclosing loops
	labels    map[string]*Token
	gotos     []*GotoStmt

	strCount int
	funcs    map[string]*Type // declared so far, for argument checks
	bodies   map[*Type]*Token // the "{" that completed each struct or union
}

func NewParser(tokens []Token) *Parser {
	return &Parser{
		tokens: tokens,
		syms:   NewSymbolTable(),
		prog:   &Program{},
		funcs:  make(map[string]*Type),
		bodies: make(map[*Type]*Token),
	}
}

// errorf reports a parse error at tok.
func (p *Parser) errorf(tok *Token, format string, args ...any) error {
	return errorAt(StageParse, tok, format, args...)
}

// peek returns the current token without consuming it.
func (p *Parser) peek() *Token {
	return p.peekAt(0)
}

// peekAt returns the token at the given offset from the current position.
func (p *Parser) peekAt(offset int) *Token {
	if p.pos+offset >= len(p.tokens) {
		return &p.tokens[len(p.tokens)-1]
	}
	return &p.tokens[p.pos+offset]
}

// advance consumes and returns the current token.
func (p *Parser) advance() *Token {
	tok := p.peek()
	if p.pos < len(p.tokens)-1 {
		p.pos++
	}
	return tok
}

// consume advances past the current token if it has type tt.
func (p *Parser) consume(tt TokenType) bool {
	if p.peek().Type == tt {
		p.advance()
		return true
	}
	return false
}

// expect consumes the current token if it matches tt, otherwise returns an error.
func (p *Parser) expect(tt TokenType) (*Token, error) {
	tok := p.peek()
	if tok.Type != tt {
		return tok, p.errorf(tok, "expected %s, got %s", tt, tok.Type)
	}
	return p.advance(), nil
}

func (p *Parser) expectIdent() (*Token, error) {
	tok := p.peek()
	if tok.Type != IDENTIFIER {
		return tok, p.errorf(tok, "expected an identifier")
	}
	return p.advance(), nil
}

// newLocal creates a local variable in the current function and scope.
func (p *Parser) newLocal(name string, ty *Type) *Var {
	v := &Var{Name: name, Type: ty, IsLocal: true}
	p.fn.Locals = append(p.fn.Locals, v)
	p.syms.DefineVar(v)
	return v
}

// newGlobal creates a global variable in file scope.
func (p *Parser) newGlobal(name string, ty *Type) *Var {
	v := &Var{Name: name, Type: ty}
	p.prog.Globals = append(p.prog.Globals, v)
	p.syms.DefineVar(v)
	return v
}

// newStringLiteral interns a string literal as an anonymous char array.
func (p *Parser) newStringLiteral(tok *Token) *Var {
	name := fmt.Sprintf(".L.str.%d", p.strCount)
	p.strCount++
	v := &Var{Name: name, Type: ArrayOf(charType(), len(tok.Str)), Init: tok.Str}
	p.prog.Globals = append(p.prog.Globals, v)
	return v
}

// isFunction looks ahead to decide whether the upcoming declaration is a
// function. The token cursor and the symbol table are restored before
// returning, so the real parse starts from the same position.
func (p *Parser) isFunction() bool {
	save := p.pos
	mark := p.syms.snapshot()
	defer func() {
		p.pos = save
		p.syms.restore(mark)
	}()

	p.consume(STATIC)
	if _, err := p.basetype(); err != nil {
		return false
	}
	for p.consume(STAR) {
	}
	return p.consume(IDENTIFIER) && p.peek().Type == LPAREN
}

// parseTopLevel parses one file-scope construct.
func (p *Parser) parseTopLevel() error {
	if p.peek().Type == TYPEDEF {
		return p.parseTypedef()
	}
	if p.isFunction() {
		return p.parseFunction()
	}
	return p.parseGlobalVar()
}

// Parse turns a token slice into a type-annotated Program.
func Parse(tokens []Token) (*Program, error) {
	if len(tokens) == 0 || tokens[len(tokens)-1].Type != EOF {
		tokens = append(tokens, Token{Type: EOF})
	}
	p := NewParser(tokens)
	for p.peek().Type != EOF {
		if err := p.parseTopLevel(); err != nil {
			return nil, err
		}
	}
	if err := resolveProgram(p.prog); err != nil {
		return nil, err
	}
	return p.prog, nil
}
