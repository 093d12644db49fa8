package asm

import (
	"fmt"
	"strings"
)

// Expr is a parsed memory address expression.
type Expr interface {
	Eval(lookup Lookup) (int64, error)
	String() string
}

// Lookup resolves a register or symbol name to its value.
type Lookup func(name string) (int64, bool)

type numExpr int64

type nameExpr string

type binExpr struct {
	op   byte
	l, r Expr
}

func (n numExpr) Eval(Lookup) (int64, error) { return int64(n), nil }
func (n numExpr) String() string             { return fmt.Sprint(int64(n)) }

func (n nameExpr) Eval(lookup Lookup) (int64, error) {
	if v, ok := lookup(string(n)); ok {
		return v, nil
	}
	return 0, fmt.Errorf("unknown name %q in address", string(n))
}
func (n nameExpr) String() string { return string(n) }

func (b *binExpr) Eval(lookup Lookup) (int64, error) {
	l, err := b.l.Eval(lookup)
	if err != nil {
		return 0, err
	}
	r, err := b.r.Eval(lookup)
	if err != nil {
		return 0, err
	}
	switch b.op {
	case '+':
		return l + r, nil
	case '-':
		return l - r, nil
	case '*':
		return l * r, nil
	}
	if r == 0 {
		return 0, fmt.Errorf("division by zero in address")
	}
	return l / r, nil
}

func (b *binExpr) String() string { return fmt.Sprintf("(%s %c %s)", b.l, b.op, b.r) }

// EvalAddress parses and evaluates expr in one step.
func EvalAddress(expr string, lookup Lookup) (int64, error) {
	e, err := ParseExpr(expr)
	if err != nil {
		return 0, err
	}
	return e.Eval(lookup)
}

// ParseExpr parses the text between brackets of a memory operand:
//
//	expr   = term (("+" | "-") term)*
//	term   = factor (("*" | "/") factor)*
//	factor = number | name | "(" expr ")" | "-" factor
func ParseExpr(s string) (Expr, error) {
	p := &exprParser{s: s}
	e, err := p.expr()
	if err != nil {
		return nil, err
	}
	p.skipSpace()
	if p.pos != len(p.s) {
		return nil, fmt.Errorf("unexpected %q in address %q", p.s[p.pos:], s)
	}
	return e, nil
}

type exprParser struct {
	s   string
	pos int
}

func (p *exprParser) skipSpace() {
	for p.pos < len(p.s) && (p.s[p.pos] == ' ' || p.s[p.pos] == '\t') {
		p.pos++
	}
}

func (p *exprParser) peek() byte {
	p.skipSpace()
	if p.pos < len(p.s) {
		return p.s[p.pos]
	}
	return 0
}

func (p *exprParser) expr() (Expr, error) {
	l, err := p.term()
	if err != nil {
		return nil, err
	}
	for c := p.peek(); c == '+' || c == '-'; c = p.peek() {
		p.pos++
		r, err := p.term()
		if err != nil {
			return nil, err
		}
		l = &binExpr{op: c, l: l, r: r}
	}
	return l, nil
}

func (p *exprParser) term() (Expr, error) {
	l, err := p.factor()
	if err != nil {
		return nil, err
	}
	for c := p.peek(); c == '*' || c == '/'; c = p.peek() {
		p.pos++
		r, err := p.factor()
		if err != nil {
			return nil, err
		}
		l = &binExpr{op: c, l: l, r: r}
	}
	return l, nil
}

func (p *exprParser) factor() (Expr, error) {
	c := p.peek()
	switch {
	case c == '(':
		p.pos++
		e, err := p.expr()
		if err != nil {
			return nil, err
		}
		if p.peek() != ')' {
			return nil, fmt.Errorf("missing ) in address %q", p.s)
		}
		p.pos++
		return e, nil
	case c == '-':
		p.pos++
		x, err := p.factor()
		if err != nil {
			return nil, err
		}
		return &binExpr{op: '-', l: numExpr(0), r: x}, nil
	case c >= '0' && c <= '9':
		start := p.pos
		for p.pos < len(p.s) && isWordByte(p.s[p.pos]) {
			p.pos++
		}
		v, err := ParseInt(p.s[start:p.pos])
		if err != nil {
			return nil, err
		}
		return numExpr(v), nil
	case c == '_' || c == '.' || c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z':
		start := p.pos
		for p.pos < len(p.s) && (isWordByte(p.s[p.pos]) || p.s[p.pos] == '.') {
			p.pos++
		}
		name := p.s[start:p.pos]
		if _, ok := Registers[strings.ToLower(name)]; ok {
			name = strings.ToLower(name)
		}
		return nameExpr(name), nil
	case c == 0:
		return nil, fmt.Errorf("unexpected end of address %q", p.s)
	}
	return nil, fmt.Errorf("unexpected %q in address %q", c, p.s)
}

func isWordByte(c byte) bool {
	return c == '_' || c >= '0' && c <= '9' || c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z'
}
