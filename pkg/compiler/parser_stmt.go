package compiler

// parseStatement dispatches on the leading token.
func (p *Parser) parseStatement() (Stmt, error) {
	tok := p.peek()
	switch tok.Type {
	case RETURN:
		return p.parseReturn()
	case IF:
		return p.parseIf()
	case SWITCH:
		return p.parseSwitch()
	case CASE, DEFAULT:
		return p.parseCase()
	case WHILE:
		return p.parseWhile()
	case DO:
		return p.parseDoWhile()
	case FOR:
		return p.parseFor()
	case LBRACE:
		return p.parseBlock()
	case TYPEDEF:
		if err := p.parseTypedef(); err != nil {
			return nil, err
		}
		return &BlockStmt{stmtBase: stmtBase{tok: tok}}, nil
	case BREAK:
		p.advance()
		if p.breakable == 0 {
			return nil, p.errorf(tok, "stray break")
		}
		if _, err := p.expect(SEMICOLON); err != nil {
			return nil, err
		}
		return &BreakStmt{stmtBase{tok: tok}}, nil
	case CONTINUE:
		p.advance()
		if p.loops == 0 {
			return nil, p.errorf(tok, "stray continue")
		}
		if _, err := p.expect(SEMICOLON); err != nil {
			return nil, err
		}
		return &ContinueStmt{stmtBase{tok: tok}}, nil
	case GOTO:
		p.advance()
		name, err := p.expectIdent()
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(SEMICOLON); err != nil {
			return nil, err
		}
		g := &GotoStmt{stmtBase: stmtBase{tok: name}, Label: name.Lexeme}
		p.gotos = append(p.gotos, g)
		return g, nil
	case SEMICOLON:
		p.advance()
		return &BlockStmt{stmtBase: stmtBase{tok: tok}}, nil
	case IDENTIFIER:
		if p.peekAt(1).Type == COLON {
			return p.parseLabel()
		}
	}

	if p.isTypename(tok) {
		return p.parseDeclaration()
	}
	return p.parseExprStmt()
}

func (p *Parser) parseExprStmt() (Stmt, error) {
	tok := p.peek()
	e, err := p.expr()
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(SEMICOLON); err != nil {
		return nil, err
	}
	return &ExprStmt{stmtBase: stmtBase{tok: tok}, X: e}, nil
}

// parseBlock parses "{ stmt* }" in a new scope.
func (p *Parser) parseBlock() (Stmt, error) {
	lbrace, err := p.expect(LBRACE)
	if err != nil {
		return nil, err
	}
	mark := p.syms.EnterScope()
	defer p.syms.ExitScope(mark)

	block := &BlockStmt{stmtBase: stmtBase{tok: lbrace}}
	for !p.consume(RBRACE) {
		if p.peek().Type == EOF {
			return nil, p.errorf(lbrace, "unterminated block")
		}
		st, err := p.parseStatement()
		if err != nil {
			return nil, err
		}
		block.Stmts = append(block.Stmts, st)
	}
	return block, nil
}

func (p *Parser) parseReturn() (Stmt, error) {
	tok := p.advance()
	ret := &ReturnStmt{stmtBase: stmtBase{tok: tok}}
	if p.consume(SEMICOLON) {
		return ret, nil
	}
	e, err := p.expr()
	if err != nil {
		return nil, err
	}
	ret.X = e
	if _, err := p.expect(SEMICOLON); err != nil {
		return nil, err
	}
	return ret, nil
}

// parenExpr parses "( expr )".
func (p *Parser) parenExpr() (Expr, error) {
	if _, err := p.expect(LPAREN); err != nil {
		return nil, err
	}
	e, err := p.expr()
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(RPAREN); err != nil {
		return nil, err
	}
	return e, nil
}

func (p *Parser) parseIf() (Stmt, error) {
	tok := p.advance()
	cond, err := p.parenExpr()
	if err != nil {
		return nil, err
	}
	then, err := p.parseStatement()
	if err != nil {
		return nil, err
	}
	st := &IfStmt{stmtBase: stmtBase{tok: tok}, Cond: cond, Then: then}
	if p.consume(ELSE) {
		if st.Else, err = p.parseStatement(); err != nil {
			return nil, err
		}
	}
	return st, nil
}

// parseSwitch pushes the switch on the current-switch stack so that case
// and default labels in the body register themselves on it.
func (p *Parser) parseSwitch() (Stmt, error) {
	tok := p.advance()
	cond, err := p.parenExpr()
	if err != nil {
		return nil, err
	}
	sw := &SwitchStmt{stmtBase: stmtBase{tok: tok}, Cond: cond}

	p.switches = append(p.switches, sw)
	p.breakable++
	body, err := p.parseStatement()
	p.breakable--
	p.switches = p.switches[:len(p.switches)-1]
	if err != nil {
		return nil, err
	}
	sw.Body = body
	return sw, nil
}

func (p *Parser) parseCase() (Stmt, error) {
	tok := p.advance()
	if len(p.switches) == 0 {
		return nil, p.errorf(tok, "stray %s", tok.Lexeme)
	}
	sw := p.switches[len(p.switches)-1]
	cs := &CaseStmt{stmtBase: stmtBase{tok: tok}}

	if tok.Type == CASE {
		v, err := p.constExpr()
		if err != nil {
			return nil, err
		}
		for _, c := range sw.Cases {
			if c.Val == v {
				return nil, p.errorf(tok, "duplicate case value %d", v)
			}
		}
		cs.Val = v
	} else {
		if sw.Default != nil {
			return nil, p.errorf(tok, "multiple default labels in one switch")
		}
		cs.IsDefault = true
	}
	if _, err := p.expect(COLON); err != nil {
		return nil, err
	}
	// registered before the body so that stacked labels see each other
	if cs.IsDefault {
		sw.Default = cs
	} else {
		sw.Cases = append(sw.Cases, cs)
	}
	body, err := p.parseStatement()
	if err != nil {
		return nil, err
	}
	cs.Body = body
	return cs, nil
}

func (p *Parser) parseWhile() (Stmt, error) {
	tok := p.advance()
	cond, err := p.parenExpr()
	if err != nil {
		return nil, err
	}
	body, err := p.loopBody()
	if err != nil {
		return nil, err
	}
	return &WhileStmt{stmtBase: stmtBase{tok: tok}, Cond: cond, Body: body}, nil
}

func (p *Parser) parseDoWhile() (Stmt, error) {
	tok := p.advance()
	body, err := p.loopBody()
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(WHILE); err != nil {
		return nil, err
	}
	cond, err := p.parenExpr()
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(SEMICOLON); err != nil {
		return nil, err
	}
	return &DoWhileStmt{stmtBase: stmtBase{tok: tok}, Body: body, Cond: cond}, nil
}

// loopBody parses a statement with break and continue enabled.
func (p *Parser) loopBody() (Stmt, error) {
	p.breakable++
	p.loops++
	defer func() {
		p.breakable--
		p.loops--
	}()
	return p.parseStatement()
}

// parseFor parses a for loop in its own scope so the init clause may
// declare variables.
func (p *Parser) parseFor() (Stmt, error) {
	tok := p.advance()
	if _, err := p.expect(LPAREN); err != nil {
		return nil, err
	}
	mark := p.syms.EnterScope()
	defer p.syms.ExitScope(mark)

	st := &ForStmt{stmtBase: stmtBase{tok: tok}}
	var err error
	switch {
	case p.consume(SEMICOLON):
	case p.isTypename(p.peek()):
		if st.Init, err = p.parseDeclaration(); err != nil {
			return nil, err
		}
	default:
		if st.Init, err = p.parseExprStmt(); err != nil {
			return nil, err
		}
	}

	if !p.consume(SEMICOLON) {
		if st.Cond, err = p.expr(); err != nil {
			return nil, err
		}
		if _, err := p.expect(SEMICOLON); err != nil {
			return nil, err
		}
	}
	if !p.consume(RPAREN) {
		if st.Inc, err = p.expr(); err != nil {
			return nil, err
		}
		if _, err := p.expect(RPAREN); err != nil {
			return nil, err
		}
	}
	if st.Body, err = p.loopBody(); err != nil {
		return nil, err
	}
	return st, nil
}

func (p *Parser) parseLabel() (Stmt, error) {
	name := p.advance()
	p.advance() // :
	if prev, ok := p.labels[name.Lexeme]; ok {
		return nil, p.errorf(name, "duplicate label %s (first defined on line %d)", name.Lexeme, prev.Line)
	}
	p.labels[name.Lexeme] = name
	body, err := p.parseStatement()
	if err != nil {
		return nil, err
	}
	return &LabelStmt{stmtBase: stmtBase{tok: name}, Name: name.Lexeme, Body: body}, nil
}
