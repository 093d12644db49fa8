package compiler

// The helpers below build typed nodes. Operand types are resolved eagerly
// because pointer arithmetic is classified while parsing.

func numLit(tok *Token, v int64) *NumLit {
	return &NumLit{exprBase: exprBase{tok: tok}, Val: v}
}

func newBinary(op BinOp, l, r Expr, tok *Token) *Binary {
	return &Binary{exprBase: exprBase{tok: tok}, Op: op, Left: l, Right: r}
}

// typeOf resolves and returns the type of e.
func (p *Parser) typeOf(e Expr) (*Type, error) {
	if err := ResolveTypes(e); err != nil {
		return nil, err
	}
	return e.Type(), nil
}

// newAdd classifies "+" by operand types:
// num + num is OpAdd, ptr + num is OpPtrAdd, num + ptr is rejected.
func (p *Parser) newAdd(l, r Expr, tok *Token) (Expr, error) {
	lt, err := p.typeOf(l)
	if err != nil {
		return nil, err
	}
	rt, err := p.typeOf(r)
	if err != nil {
		return nil, err
	}
	switch {
	case IsInteger(lt) && IsInteger(rt):
		return newBinary(OpAdd, l, r, tok), nil
	case lt.HasBase() && IsInteger(rt):
		return newBinary(OpPtrAdd, l, r, tok), nil
	}
	return nil, p.errorf(tok, "invalid operands")
}

// newSub classifies "-": num - num, ptr - num and ptr - ptr.
func (p *Parser) newSub(l, r Expr, tok *Token) (Expr, error) {
	lt, err := p.typeOf(l)
	if err != nil {
		return nil, err
	}
	rt, err := p.typeOf(r)
	if err != nil {
		return nil, err
	}
	switch {
	case IsInteger(lt) && IsInteger(rt):
		return newBinary(OpSub, l, r, tok), nil
	case lt.HasBase() && IsInteger(rt):
		return newBinary(OpPtrSub, l, r, tok), nil
	case lt.HasBase() && rt.HasBase():
		return newBinary(OpPtrDiff, l, r, tok), nil
	}
	return nil, p.errorf(tok, "invalid operands")
}

// expr parses a comma expression.
func (p *Parser) expr() (Expr, error) {
	e, err := p.assign()
	if err != nil {
		return nil, err
	}
	for p.peek().Type == COMMA {
		tok := p.advance()
		r, err := p.assign()
		if err != nil {
			return nil, err
		}
		e = &Comma{exprBase: exprBase{tok: tok}, Left: e, Right: r}
	}
	return e, nil
}

var compoundOps = map[TokenType]BinOp{
	PLUS_ASSIGN:    OpAdd,
	MINUS_ASSIGN:   OpSub,
	STAR_ASSIGN:    OpMul,
	SLASH_ASSIGN:   OpDiv,
	PERCENT_ASSIGN: OpMod,
	SHL_ASSIGN:     OpShl,
	SHR_ASSIGN:     OpShr,
}

// assign parses plain and compound assignment. += and -= on a pointer
// lower to the scaled pointer forms.
func (p *Parser) assign() (Expr, error) {
	lhs, err := p.conditional()
	if err != nil {
		return nil, err
	}
	tok := p.peek()
	if tok.Type == ASSIGN {
		p.advance()
		rhs, err := p.assign()
		if err != nil {
			return nil, err
		}
		return &Assign{exprBase: exprBase{tok: tok}, Left: lhs, Right: rhs}, nil
	}
	op, ok := compoundOps[tok.Type]
	if !ok {
		return lhs, nil
	}
	p.advance()
	rhs, err := p.assign()
	if err != nil {
		return nil, err
	}
	lt, err := p.typeOf(lhs)
	if err != nil {
		return nil, err
	}
	if lt.HasBase() {
		switch op {
		case OpAdd:
			op = OpPtrAdd
		case OpSub:
			op = OpPtrSub
		default:
			return nil, p.errorf(tok, "invalid operands")
		}
	}
	return &Assign{exprBase: exprBase{tok: tok}, Compound: true, Op: op, Left: lhs, Right: rhs}, nil
}

func (p *Parser) conditional() (Expr, error) {
	cond, err := p.logor()
	if err != nil {
		return nil, err
	}
	if p.peek().Type != QUESTION {
		return cond, nil
	}
	tok := p.advance()
	then, err := p.expr()
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(COLON); err != nil {
		return nil, err
	}
	els, err := p.conditional()
	if err != nil {
		return nil, err
	}
	return &Cond{exprBase: exprBase{tok: tok}, Cond: cond, Then: then, Else: els}, nil
}

// binaryLevel parses one left-associative precedence level.
func (p *Parser) binaryLevel(next func() (Expr, error), ops map[TokenType]BinOp) (Expr, error) {
	e, err := next()
	if err != nil {
		return nil, err
	}
	for {
		op, ok := ops[p.peek().Type]
		if !ok {
			return e, nil
		}
		tok := p.advance()
		r, err := next()
		if err != nil {
			return nil, err
		}
		e = newBinary(op, e, r, tok)
	}
}

func (p *Parser) logor() (Expr, error) {
	return p.binaryLevel(p.logand, map[TokenType]BinOp{OR_OR: OpLogOr})
}

func (p *Parser) logand() (Expr, error) {
	return p.binaryLevel(p.bitor, map[TokenType]BinOp{AND_AND: OpLogAnd})
}

func (p *Parser) bitor() (Expr, error) {
	return p.binaryLevel(p.bitxor, map[TokenType]BinOp{PIPE: OpBitOr})
}

func (p *Parser) bitxor() (Expr, error) {
	return p.binaryLevel(p.bitand, map[TokenType]BinOp{CARET: OpBitXor})
}

func (p *Parser) bitand() (Expr, error) {
	return p.binaryLevel(p.equality, map[TokenType]BinOp{AMP: OpBitAnd})
}

func (p *Parser) equality() (Expr, error) {
	return p.binaryLevel(p.relational, map[TokenType]BinOp{EQ: OpEq, NE: OpNe})
}

// relational turns a > b into b < a and a >= b into b <= a.
func (p *Parser) relational() (Expr, error) {
	e, err := p.shift()
	if err != nil {
		return nil, err
	}
	for {
		tok := p.peek()
		switch tok.Type {
		case LT, LE, GT, GE:
		default:
			return e, nil
		}
		p.advance()
		r, err := p.shift()
		if err != nil {
			return nil, err
		}
		switch tok.Type {
		case LT:
			e = newBinary(OpLt, e, r, tok)
		case LE:
			e = newBinary(OpLe, e, r, tok)
		case GT:
			e = newBinary(OpLt, r, e, tok)
		case GE:
			e = newBinary(OpLe, r, e, tok)
		}
	}
}

func (p *Parser) shift() (Expr, error) {
	return p.binaryLevel(p.add, map[TokenType]BinOp{SHL: OpShl, SHR: OpShr})
}

func (p *Parser) add() (Expr, error) {
	e, err := p.mul()
	if err != nil {
		return nil, err
	}
	for {
		tok := p.peek()
		if tok.Type != PLUS && tok.Type != MINUS {
			return e, nil
		}
		p.advance()
		r, err := p.mul()
		if err != nil {
			return nil, err
		}
		if tok.Type == PLUS {
			e, err = p.newAdd(e, r, tok)
		} else {
			e, err = p.newSub(e, r, tok)
		}
		if err != nil {
			return nil, err
		}
	}
}

func (p *Parser) mul() (Expr, error) {
	return p.binaryLevel(p.cast, map[TokenType]BinOp{STAR: OpMul, SLASH: OpDiv, PERCENT: OpMod})
}

// cast parses "(type) cast". When the parenthesized text is not a type
// name the cursor is rewound and the input is parsed as a unary.
func (p *Parser) cast() (Expr, error) {
	save := p.pos
	if p.peek().Type == LPAREN {
		tok := p.advance()
		if p.isTypename(p.peek()) {
			ty, err := p.typename()
			if err != nil {
				return nil, err
			}
			if _, err := p.expect(RPAREN); err != nil {
				return nil, err
			}
			x, err := p.cast()
			if err != nil {
				return nil, err
			}
			return &Cast{exprBase: exprBase{tok: tok}, X: x, To: ty}, nil
		}
		p.pos = save
	}
	return p.unary()
}

func (p *Parser) unary() (Expr, error) {
	tok := p.peek()
	switch tok.Type {
	case PLUS:
		p.advance()
		return p.cast()
	case MINUS:
		p.advance()
		x, err := p.cast()
		if err != nil {
			return nil, err
		}
		return newBinary(OpSub, numLit(tok, 0), x, tok), nil
	case AMP:
		p.advance()
		x, err := p.cast()
		if err != nil {
			return nil, err
		}
		return &AddrOf{exprBase: exprBase{tok: tok}, X: x}, nil
	case STAR:
		p.advance()
		x, err := p.cast()
		if err != nil {
			return nil, err
		}
		return &Deref{exprBase: exprBase{tok: tok}, X: x}, nil
	case NOT, TILDE:
		p.advance()
		x, err := p.cast()
		if err != nil {
			return nil, err
		}
		op := OpNot
		if tok.Type == TILDE {
			op = OpBitNot
		}
		return &Unary{exprBase: exprBase{tok: tok}, Op: op, X: x}, nil
	case PLUS_PLUS, MINUS_MINUS:
		p.advance()
		x, err := p.unary()
		if err != nil {
			return nil, err
		}
		return &IncDec{exprBase: exprBase{tok: tok}, X: x, Inc: tok.Type == PLUS_PLUS}, nil
	case SIZEOF:
		return p.sizeof()
	}
	return p.postfix()
}

// sizeof folds "sizeof (type)" and "sizeof expr" into a constant.
func (p *Parser) sizeof() (Expr, error) {
	tok := p.advance()
	var ty *Type
	if p.peek().Type == LPAREN && p.isTypename(p.peekAt(1)) {
		p.advance()
		var err error
		if ty, err = p.typename(); err != nil {
			return nil, err
		}
		if _, err := p.expect(RPAREN); err != nil {
			return nil, err
		}
	} else {
		x, err := p.unary()
		if err != nil {
			return nil, err
		}
		if ty, err = p.typeOf(x); err != nil {
			return nil, err
		}
	}
	if ty.IsIncomplete() {
		return nil, p.errorf(tok, "sizeof applied to an incomplete type")
	}
	return numLit(tok, int64(ty.Size)), nil
}

// structRef builds x.name after checking that x is a struct or union.
func (p *Parser) structRef(x Expr, tok *Token) (Expr, error) {
	ty, err := p.typeOf(x)
	if err != nil {
		return nil, err
	}
	if ty.Kind != TyStruct && ty.Kind != TyUnion {
		return nil, p.errorf(tok, "not a struct")
	}
	name, err := p.expectIdent()
	if err != nil {
		return nil, err
	}
	m := ty.findMember(name.Lexeme)
	if m == nil {
		return nil, p.errorf(name, "no such member: %s", name.Lexeme)
	}
	return &MemberRef{exprBase: exprBase{tok: name}, X: x, Member: m}, nil
}

func (p *Parser) postfix() (Expr, error) {
	e, err := p.primary()
	if err != nil {
		return nil, err
	}
	for {
		tok := p.peek()
		switch tok.Type {
		case LBRACKET:
			p.advance()
			idx, err := p.expr()
			if err != nil {
				return nil, err
			}
			if _, err := p.expect(RBRACKET); err != nil {
				return nil, err
			}
			sum, err := p.newAdd(e, idx, tok)
			if err != nil {
				return nil, err
			}
			e = &Deref{exprBase: exprBase{tok: tok}, X: sum}
		case DOT:
			p.advance()
			if e, err = p.structRef(e, tok); err != nil {
				return nil, err
			}
		case ARROW:
			p.advance()
			d := &Deref{exprBase: exprBase{tok: tok}, X: e}
			if e, err = p.structRef(d, tok); err != nil {
				return nil, err
			}
		case PLUS_PLUS, MINUS_MINUS:
			p.advance()
			e = &IncDec{exprBase: exprBase{tok: tok}, X: e, Inc: tok.Type == PLUS_PLUS, Post: true}
		default:
			return e, nil
		}
	}
}

func (p *Parser) primary() (Expr, error) {
	tok := p.peek()
	switch tok.Type {
	case LPAREN:
		p.advance()
		e, err := p.expr()
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(RPAREN); err != nil {
			return nil, err
		}
		return e, nil

	case NUMBER:
		p.advance()
		return numLit(tok, tok.Val), nil

	case STRING:
		p.advance()
		v := p.newStringLiteral(tok)
		return &VarRef{exprBase: exprBase{tok: tok}, Var: v}, nil

	case IDENTIFIER:
		p.advance()
		if p.peek().Type == LPAREN {
			return p.call(tok)
		}
		sym, ok := p.syms.Lookup(tok.Lexeme)
		if !ok {
			return nil, p.errorf(tok, "undefined variable")
		}
		switch sym.Kind {
		case SymVar:
			return &VarRef{exprBase: exprBase{tok: tok}, Var: sym.Var}, nil
		case SymEnumConst:
			return numLit(tok, sym.EnumVal), nil
		}
		return nil, p.errorf(tok, "unexpected type name")
	}
	return nil, p.errorf(tok, "expected an expression")
}

// call parses the argument list of name(...).
func (p *Parser) call(name *Token) (Expr, error) {
	p.advance() // (
	c := &Call{exprBase: exprBase{tok: name}, Name: name.Lexeme}
	for first := true; !p.consume(RPAREN); first = false {
		if !first {
			if _, err := p.expect(COMMA); err != nil {
				return nil, err
			}
		}
		arg, err := p.assign()
		if err != nil {
			return nil, err
		}
		c.Args = append(c.Args, arg)
	}
	if ft, ok := p.funcs[c.Name]; ok {
		if err := p.checkPointerArgs(c, ft); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// checkPointerArgs rejects a pointer argument whose pointee width differs
// from the declared parameter's, so read(&i) with an int i cannot clobber
// the bytes next to i. void pointers match anything.
func (p *Parser) checkPointerArgs(c *Call, ft *Type) error {
	for i, arg := range c.Args {
		if i >= len(ft.Params) {
			break
		}
		want := ft.Params[i]
		if want.Kind != TyPtr || want.Base.Kind == TyVoid {
			continue
		}
		got, err := p.typeOf(arg)
		if err != nil {
			return err
		}
		if !got.HasBase() || got.Base.Kind == TyVoid {
			continue
		}
		if got.Base.Size != want.Base.Size {
			return p.errorf(arg.Pos(), "incompatible pointer argument %d to %s: have %s, want %s", i+1, c.Name, got, want)
		}
	}
	return nil
}

// constExpr parses a conditional expression and folds it to an integer.
func (p *Parser) constExpr() (int64, error) {
	e, err := p.conditional()
	if err != nil {
		return 0, err
	}
	return p.eval(e)
}

func (p *Parser) eval(e Expr) (int64, error) {
	switch n := e.(type) {
	case *NumLit:
		return n.Val, nil
	case *Cast:
		v, err := p.eval(n.X)
		if err != nil {
			return 0, err
		}
		return truncate(v, n.To), nil
	case *Unary:
		v, err := p.eval(n.X)
		if err != nil {
			return 0, err
		}
		if n.Op == OpNot {
			return boolInt(v == 0), nil
		}
		return ^v, nil
	case *Cond:
		c, err := p.eval(n.Cond)
		if err != nil {
			return 0, err
		}
		if c != 0 {
			return p.eval(n.Then)
		}
		return p.eval(n.Else)
	case *Comma:
		return p.eval(n.Right)
	case *Binary:
		l, err := p.eval(n.Left)
		if err != nil {
			return 0, err
		}
		// short-circuit before evaluating the right side
		switch {
		case n.Op == OpLogAnd && l == 0:
			return 0, nil
		case n.Op == OpLogOr && l != 0:
			return 1, nil
		}
		r, err := p.eval(n.Right)
		if err != nil {
			return 0, err
		}
		switch n.Op {
		case OpAdd:
			return l + r, nil
		case OpSub:
			return l - r, nil
		case OpMul:
			return l * r, nil
		case OpDiv, OpMod:
			if r == 0 {
				return 0, p.errorf(n.Pos(), "division by zero in constant expression")
			}
			if n.Op == OpDiv {
				return l / r, nil
			}
			return l % r, nil
		case OpEq:
			return boolInt(l == r), nil
		case OpNe:
			return boolInt(l != r), nil
		case OpLt:
			return boolInt(l < r), nil
		case OpLe:
			return boolInt(l <= r), nil
		case OpBitAnd:
			return l & r, nil
		case OpBitOr:
			return l | r, nil
		case OpBitXor:
			return l ^ r, nil
		case OpShl:
			return l << uint64(r), nil
		case OpShr:
			return l >> uint64(r), nil
		case OpLogAnd, OpLogOr:
			return boolInt(r != 0), nil
		}
	}
	return 0, p.errorf(e.Pos(), "not a constant expression")
}

func boolInt(b bool) int64 {
	if b {
		return 1
	}
	return 0
}

// truncate narrows v to the width of ty with sign extension, the way a
// cast does at run time.
func truncate(v int64, ty *Type) int64 {
	switch ty.Kind {
	case TyBool:
		return boolInt(v != 0)
	case TyChar:
		return int64(int8(v))
	case TyShort:
		return int64(int16(v))
	case TyInt, TyEnum:
		return int64(int32(v))
	}
	return v
}
