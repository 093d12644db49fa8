package compiler

import "encoding/binary"

// Type-keyword counters. Each keyword adds its weight so that every legal
// combination ("long long int", "short int", ...) maps to a unique sum.
const (
	cntVoid  = 1 << 0
	cntBool  = 1 << 2
	cntChar  = 1 << 4
	cntShort = 1 << 6
	cntInt   = 1 << 8
	cntLong  = 1 << 10
	cntOther = 1 << 12
)

// isTypename reports whether tok starts a type name.
func (p *Parser) isTypename(tok *Token) bool {
	switch tok.Type {
	case VOID, BOOL, CHAR, SHORT, INT, LONG, STRUCT, UNION, ENUM:
		return true
	case IDENTIFIER:
		sym, ok := p.syms.Lookup(tok.Lexeme)
		return ok && sym.Kind == SymTypedef
	}
	return false
}

// basetype parses the type specifiers that precede a declarator.
func (p *Parser) basetype() (*Type, error) {
	start := p.peek()
	if !p.isTypename(start) {
		return nil, p.errorf(start, "typename expected")
	}

	var ty *Type
	counter := 0
loop:
	for p.isTypename(p.peek()) {
		tok := p.peek()

		switch tok.Type {
		case STRUCT, UNION, ENUM, IDENTIFIER:
			if counter > 0 {
				// "int foo" where foo is a typedef name declares foo.
				if tok.Type == IDENTIFIER {
					break loop
				}
				return nil, p.errorf(tok, "invalid type")
			}
			var err error
			switch tok.Type {
			case STRUCT:
				p.advance()
				ty, err = p.structDecl(TyStruct)
			case UNION:
				p.advance()
				ty, err = p.structDecl(TyUnion)
			case ENUM:
				p.advance()
				ty, err = p.enumSpecifier()
			default:
				p.advance()
				sym, _ := p.syms.Lookup(tok.Lexeme)
				ty = sym.Type
			}
			if err != nil {
				return nil, err
			}
			counter += cntOther
			continue
		case VOID:
			counter += cntVoid
		case BOOL:
			counter += cntBool
		case CHAR:
			counter += cntChar
		case SHORT:
			counter += cntShort
		case INT:
			counter += cntInt
		case LONG:
			counter += cntLong
		}
		p.advance()

		switch counter {
		case cntVoid:
			ty = voidType()
		case cntBool:
			ty = boolType()
		case cntChar:
			ty = charType()
		case cntShort, cntShort + cntInt:
			ty = shortType()
		case cntInt:
			ty = intType()
		case cntLong, cntLong + cntInt, cntLong + cntLong, cntLong + cntLong + cntInt:
			ty = longType()
		default:
			return nil, p.errorf(tok, "invalid type")
		}
	}
	return ty, nil
}

// declarator parses pointer stars, the declared name and any array suffix.
func (p *Parser) declarator(base *Type) (*Type, *Token, error) {
	ty := base
	for p.consume(STAR) {
		ty = PointerTo(ty)
	}
	name, err := p.expectIdent()
	if err != nil {
		return nil, nil, err
	}
	ty, err = p.typeSuffix(ty)
	if err != nil {
		return nil, nil, err
	}
	return ty, name, nil
}

// abstractDeclarator parses the pointer and array part of a type name.
func (p *Parser) abstractDeclarator(base *Type) (*Type, error) {
	ty := base
	for p.consume(STAR) {
		ty = PointerTo(ty)
	}
	return p.typeSuffix(ty)
}

// typeSuffix parses "[n]" suffixes right to left, so int a[2][3] is an
// array of 2 arrays of 3 ints.
func (p *Parser) typeSuffix(base *Type) (*Type, error) {
	if p.peek().Type != LBRACKET {
		return base, nil
	}
	p.advance()
	n := -1
	if p.peek().Type != RBRACKET {
		tok := p.peek()
		v, err := p.constExpr()
		if err != nil {
			return nil, err
		}
		if v < 0 {
			return nil, p.errorf(tok, "array size is negative")
		}
		n = int(v)
	}
	if _, err := p.expect(RBRACKET); err != nil {
		return nil, err
	}
	elemTok := p.peek()
	elem, err := p.typeSuffix(base)
	if err != nil {
		return nil, err
	}
	if elem.IsIncomplete() {
		return nil, p.errorf(elemTok, "array has incomplete element type")
	}
	return ArrayOf(elem, n), nil
}

// typename parses a type in a cast or sizeof.
func (p *Parser) typename() (*Type, error) {
	base, err := p.basetype()
	if err != nil {
		return nil, err
	}
	return p.abstractDeclarator(base)
}

// structDecl parses the rest of a struct or union specifier after the
// keyword. A tag already declared at the current depth is reused and
// completed in place, so forward declarations resolve to one type.
func (p *Parser) structDecl(kind TypeKind) (*Type, error) {
	var tag *Token
	if p.peek().Type == IDENTIFIER {
		tag = p.advance()
	}

	if tag != nil && p.peek().Type != LBRACE {
		if sym, ok := p.syms.LookupTag(tag.Lexeme); ok {
			if sym.Type.Kind != kind {
				return nil, p.errorf(tag, "%s is not a %s", tag.Lexeme, kind)
			}
			return sym.Type, nil
		}
		ty := StructType()
		ty.Kind, ty.Tag = kind, tag.Lexeme
		p.syms.DefineTag(tag.Lexeme, ty)
		return ty, nil
	}

	lbrace, err := p.expect(LBRACE)
	if err != nil {
		return nil, err
	}

	var ty *Type
	if tag != nil {
		if sym, ok := p.syms.LookupTag(tag.Lexeme); ok && sym.Depth == p.syms.Depth() {
			if sym.Type.Kind != kind {
				return nil, p.errorf(tag, "%s is not a %s", tag.Lexeme, kind)
			}
			// isFunction's lookahead may already have completed it from
			// this same body
			if !sym.Type.IsIncomplete() && p.bodies[sym.Type] != lbrace {
				return nil, p.errorf(tag, "redefinition of %s %s", kind, tag.Lexeme)
			}
			ty = sym.Type
		}
	}
	if ty == nil {
		ty = StructType()
		ty.Kind = kind
		if tag != nil {
			ty.Tag = tag.Lexeme
			p.syms.DefineTag(tag.Lexeme, ty)
		}
	}

	var members []*Member
	for !p.consume(RBRACE) {
		if p.peek().Type == EOF {
			return nil, p.errorf(lbrace, "unterminated %s declaration", kind)
		}
		base, err := p.basetype()
		if err != nil {
			return nil, err
		}
		for first := true; !p.consume(SEMICOLON); first = false {
			if !first {
				if _, err := p.expect(COMMA); err != nil {
					return nil, err
				}
			}
			mty, name, err := p.declarator(base)
			if err != nil {
				return nil, err
			}
			if mty.IsIncomplete() {
				return nil, p.errorf(name, "member %s has incomplete type", name.Lexeme)
			}
			members = append(members, &Member{Name: name.Lexeme, Type: mty})
		}
	}

	if kind == TyUnion {
		layoutUnion(ty, members)
	} else {
		layoutStruct(ty, members)
	}
	p.bodies[ty] = lbrace
	return ty, nil
}

// enumSpecifier parses an enum after the keyword. Enumerators are bound in
// the variable scope as named constants.
func (p *Parser) enumSpecifier() (*Type, error) {
	ty := EnumType()

	var tag *Token
	if p.peek().Type == IDENTIFIER {
		tag = p.advance()
	}
	if tag != nil && p.peek().Type != LBRACE {
		sym, ok := p.syms.LookupTag(tag.Lexeme)
		if !ok {
			return nil, p.errorf(tag, "unknown enum type")
		}
		if sym.Type.Kind != TyEnum {
			return nil, p.errorf(tag, "%s is not an enum", tag.Lexeme)
		}
		return sym.Type, nil
	}

	if _, err := p.expect(LBRACE); err != nil {
		return nil, err
	}
	if tag != nil {
		if sym, ok := p.syms.LookupTag(tag.Lexeme); ok && sym.Depth == p.syms.Depth() {
			if sym.Type.Kind != TyEnum {
				return nil, p.errorf(tag, "%s is not an enum", tag.Lexeme)
			}
			return nil, p.errorf(tag, "redefinition of enum %s", tag.Lexeme)
		}
	}
	var val int64
	for first := true; !p.consume(RBRACE); first = false {
		if !first {
			if _, err := p.expect(COMMA); err != nil {
				return nil, err
			}
			// trailing comma
			if p.consume(RBRACE) {
				break
			}
		}
		name, err := p.expectIdent()
		if err != nil {
			return nil, err
		}
		if p.consume(ASSIGN) {
			if val, err = p.constExpr(); err != nil {
				return nil, err
			}
		}
		p.syms.DefineEnumConst(name.Lexeme, ty, val)
		val++
	}

	if tag != nil {
		ty.Tag = tag.Lexeme
		p.syms.DefineTag(tag.Lexeme, ty)
	}
	return ty, nil
}

// parseTypedef parses "typedef basetype declarator (, declarator)* ;".
func (p *Parser) parseTypedef() error {
	p.advance() // typedef
	base, err := p.basetype()
	if err != nil {
		return err
	}
	for first := true; !p.consume(SEMICOLON); first = false {
		if !first {
			if _, err := p.expect(COMMA); err != nil {
				return err
			}
		}
		ty, name, err := p.declarator(base)
		if err != nil {
			return err
		}
		p.syms.DefineTypedef(name.Lexeme, ty)
	}
	return nil
}

// parseDeclaration parses a local declaration and lowers any initializers
// into assignment statements.
func (p *Parser) parseDeclaration() (Stmt, error) {
	start := p.peek()
	base, err := p.basetype()
	if err != nil {
		return nil, err
	}
	block := &BlockStmt{stmtBase: stmtBase{tok: start}}

	for first := true; !p.consume(SEMICOLON); first = false {
		if !first {
			if _, err := p.expect(COMMA); err != nil {
				return nil, err
			}
		}
		ty, name, err := p.declarator(base)
		if err != nil {
			return nil, err
		}
		if ty.Kind == TyVoid {
			return nil, p.errorf(name, "variable declared void")
		}

		if !p.consume(ASSIGN) {
			if ty.IsIncomplete() {
				return nil, p.errorf(name, "variable %s has incomplete type", name.Lexeme)
			}
			p.newLocal(name.Lexeme, ty)
			continue
		}

		stmts, err := p.localInitializer(name, ty)
		if err != nil {
			return nil, err
		}
		block.Stmts = append(block.Stmts, stmts...)
	}
	return block, nil
}

// localInitializer parses the initializer after "=" and returns the
// assignments that perform it. Array initializers ("{...}" or a string for
// char arrays) fix the length of an incomplete array.
func (p *Parser) localInitializer(name *Token, ty *Type) ([]Stmt, error) {
	if ty.Kind != TyArray {
		if ty.IsIncomplete() {
			return nil, p.errorf(name, "variable %s has incomplete type", name.Lexeme)
		}
		v := p.newLocal(name.Lexeme, ty)
		rhs, err := p.assign()
		if err != nil {
			return nil, err
		}
		lhs := &VarRef{exprBase: exprBase{tok: name}, Var: v}
		as := &Assign{exprBase: exprBase{tok: name}, Left: lhs, Right: rhs}
		return []Stmt{&ExprStmt{stmtBase: stmtBase{tok: name}, X: as}}, nil
	}

	var elems []Expr
	switch tok := p.peek(); {
	case tok.Type == STRING && ty.Base.Kind == TyChar:
		p.advance()
		for _, b := range tok.Str {
			elems = append(elems, &NumLit{exprBase: exprBase{tok: tok}, Val: int64(int8(b))})
		}
	case tok.Type == LBRACE:
		p.advance()
		for first := true; !p.consume(RBRACE); first = false {
			if !first {
				if _, err := p.expect(COMMA); err != nil {
					return nil, err
				}
				if p.consume(RBRACE) {
					break
				}
			}
			e, err := p.assign()
			if err != nil {
				return nil, err
			}
			elems = append(elems, e)
		}
	default:
		return nil, p.errorf(tok, "invalid array initializer")
	}

	if ty.ArrayLen < 0 {
		ty = ArrayOf(ty.Base, len(elems))
	}
	if len(elems) > ty.ArrayLen {
		return nil, p.errorf(name, "too many initializers for %s", name.Lexeme)
	}
	if ty.Base.Kind == TyArray || ty.Base.Kind == TyStruct || ty.Base.Kind == TyUnion {
		return nil, p.errorf(name, "unsupported initializer for %s", name.Lexeme)
	}

	v := p.newLocal(name.Lexeme, ty)
	stmts := make([]Stmt, 0, ty.ArrayLen)
	for i := 0; i < ty.ArrayLen; i++ {
		var rhs Expr = &NumLit{exprBase: exprBase{tok: name}}
		if i < len(elems) {
			rhs = elems[i]
		}
		idx := &NumLit{exprBase: exprBase{tok: name}, Val: int64(i)}
		ref := &VarRef{exprBase: exprBase{tok: name}, Var: v}
		addr, err := p.newAdd(ref, idx, name)
		if err != nil {
			return nil, err
		}
		lhs := &Deref{exprBase: exprBase{tok: name}, X: addr}
		as := &Assign{exprBase: exprBase{tok: name}, Left: lhs, Right: rhs}
		stmts = append(stmts, &ExprStmt{stmtBase: stmtBase{tok: name}, X: as})
	}
	return stmts, nil
}

// parseGlobalVar parses a file-scope variable declaration. Initializers
// must be integer constants (or a string for a char array) and are
// emitted as data bytes.
func (p *Parser) parseGlobalVar() error {
	p.consume(STATIC)
	base, err := p.basetype()
	if err != nil {
		return err
	}

	for first := true; !p.consume(SEMICOLON); first = false {
		if !first {
			if _, err := p.expect(COMMA); err != nil {
				return err
			}
		}
		ty, name, err := p.declarator(base)
		if err != nil {
			return err
		}
		if ty.Kind == TyVoid {
			return p.errorf(name, "variable declared void")
		}
		var init []byte
		if p.consume(ASSIGN) {
			if ty, init, err = p.globalInitializer(name, ty); err != nil {
				return err
			}
		}
		if ty.IsIncomplete() {
			return p.errorf(name, "variable %s has incomplete type", name.Lexeme)
		}
		v := p.newGlobal(name.Lexeme, ty)
		v.Init = init
	}
	return nil
}

// globalInitializer evaluates a constant initializer into little-endian
// bytes sized to ty.
func (p *Parser) globalInitializer(name *Token, ty *Type) (*Type, []byte, error) {
	scalar := func(t *Type, v int64) []byte {
		var buf [8]byte
		binary.LittleEndian.PutUint64(buf[:], uint64(v))
		return append([]byte(nil), buf[:t.Size]...)
	}

	if ty.Kind == TyArray {
		var vals []int64
		switch tok := p.peek(); {
		case tok.Type == STRING && ty.Base.Kind == TyChar:
			p.advance()
			for _, b := range tok.Str {
				vals = append(vals, int64(b))
			}
		case tok.Type == LBRACE:
			p.advance()
			for first := true; !p.consume(RBRACE); first = false {
				if !first {
					if _, err := p.expect(COMMA); err != nil {
						return nil, nil, err
					}
					if p.consume(RBRACE) {
						break
					}
				}
				v, err := p.constExpr()
				if err != nil {
					return nil, nil, err
				}
				vals = append(vals, v)
			}
		default:
			return nil, nil, p.errorf(tok, "invalid array initializer")
		}
		if !IsInteger(ty.Base) {
			return nil, nil, p.errorf(name, "unsupported initializer for %s", name.Lexeme)
		}
		if ty.ArrayLen < 0 {
			ty = ArrayOf(ty.Base, len(vals))
		}
		if len(vals) > ty.ArrayLen {
			return nil, nil, p.errorf(name, "too many initializers for %s", name.Lexeme)
		}
		data := make([]byte, 0, ty.Size)
		for _, v := range vals {
			data = append(data, scalar(ty.Base, v)...)
		}
		return ty, append(data, make([]byte, ty.Size-len(data))...), nil
	}

	if !IsInteger(ty) {
		return nil, nil, p.errorf(name, "unsupported initializer for %s", name.Lexeme)
	}
	v, err := p.constExpr()
	if err != nil {
		return nil, nil, err
	}
	return ty, scalar(ty, v), nil
}

// parseFunction parses a function definition or prototype. Locals get
// their frame offsets once the body is complete.
func (p *Parser) parseFunction() error {
	isStatic := p.consume(STATIC)
	ret, err := p.basetype()
	if err != nil {
		return err
	}
	for p.consume(STAR) {
		ret = PointerTo(ret)
	}
	name, err := p.expectIdent()
	if err != nil {
		return err
	}

	fn := &Function{Name: name.Lexeme, IsStatic: isStatic, Type: FuncType(ret)}
	p.fn = fn
	p.labels = make(map[string]*Token)
	p.gotos = nil
	p.switches = nil
	p.breakable, p.loops = 0, 0

	mark := p.syms.EnterScope()
	defer p.syms.ExitScope(mark)

	if _, err := p.expect(LPAREN); err != nil {
		return err
	}
	if err := p.parseParams(fn); err != nil {
		return err
	}
	p.funcs[fn.Name] = fn.Type

	// prototype
	if p.consume(SEMICOLON) {
		p.fn = nil
		return nil
	}

	lbrace, err := p.expect(LBRACE)
	if err != nil {
		return err
	}
	body := &BlockStmt{stmtBase: stmtBase{tok: lbrace}}
	for !p.consume(RBRACE) {
		if p.peek().Type == EOF {
			return p.errorf(lbrace, "unterminated function body")
		}
		st, err := p.parseStatement()
		if err != nil {
			return err
		}
		body.Stmts = append(body.Stmts, st)
	}
	fn.Body = body

	for _, g := range p.gotos {
		if _, ok := p.labels[g.Label]; !ok {
			return p.errorf(g.tok, "undefined label %s", g.Label)
		}
	}

	assignOffsets(fn)
	p.prog.Funcs = append(p.prog.Funcs, fn)
	p.fn = nil
	return nil
}

// parseParams parses a parameter list after "(" up to and including ")".
func (p *Parser) parseParams(fn *Function) error {
	if p.consume(RPAREN) {
		return nil
	}
	if p.peek().Type == VOID && p.peekAt(1).Type == RPAREN {
		p.advance()
		p.advance()
		return nil
	}
	for first := true; !p.consume(RPAREN); first = false {
		if !first {
			if _, err := p.expect(COMMA); err != nil {
				return err
			}
		}
		base, err := p.basetype()
		if err != nil {
			return err
		}
		ty, name, err := p.declarator(base)
		if err != nil {
			return err
		}
		// array parameters decay to pointers
		if ty.Kind == TyArray {
			ty = PointerTo(ty.Base)
		}
		v := p.newLocal(name.Lexeme, ty)
		fn.Params = append(fn.Params, v)
		fn.Type.Params = append(fn.Type.Params, ty)
	}
	return nil
}

// assignOffsets lays locals out below rbp, each aligned to its own type,
// and rounds the frame up to 16 bytes.
func assignOffsets(fn *Function) {
	offset := 0
	for _, v := range fn.Locals {
		offset = AlignTo(offset+v.Type.Size, v.Type.Align)
		v.Offset = offset
	}
	fn.StackSize = AlignTo(offset, 16)
}
