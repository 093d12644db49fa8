package compiler

func typeErrorf(e Expr, format string, args ...any) error {
	return errorAt(StageType, e.Pos(), format, args...)
}

// ResolveTypes annotates e and all of its operands, children first. Nodes
// that already carry a type keep it.
func ResolveTypes(e Expr) error {
	if e == nil || e.Type() != nil {
		return nil
	}
	switch n := e.(type) {
	case *NumLit:
		n.setType(longType())

	case *VarRef:
		n.setType(n.Var.Type)

	case *Binary:
		if err := resolveAll(n.Left, n.Right); err != nil {
			return err
		}
		switch n.Op {
		case OpPtrAdd, OpPtrSub:
			n.setType(n.Left.Type())
		default:
			n.setType(longType())
		}

	case *Unary:
		if err := ResolveTypes(n.X); err != nil {
			return err
		}
		n.setType(longType())

	case *Assign:
		if err := resolveAll(n.Left, n.Right); err != nil {
			return err
		}
		n.setType(n.Left.Type())

	case *IncDec:
		if err := ResolveTypes(n.X); err != nil {
			return err
		}
		n.setType(n.X.Type())

	case *AddrOf:
		if err := ResolveTypes(n.X); err != nil {
			return err
		}
		if ty := n.X.Type(); ty.Kind == TyArray {
			n.setType(PointerTo(ty.Base))
		} else {
			n.setType(PointerTo(ty))
		}

	case *Deref:
		if err := ResolveTypes(n.X); err != nil {
			return err
		}
		ty := n.X.Type()
		if !ty.HasBase() {
			return typeErrorf(n, "invalid pointer dereference")
		}
		if ty.Base.Kind == TyVoid {
			return typeErrorf(n, "dereferencing a void pointer")
		}
		n.setType(ty.Base)

	case *MemberRef:
		if err := ResolveTypes(n.X); err != nil {
			return err
		}
		n.setType(n.Member.Type)

	case *Call:
		if err := resolveAll(n.Args...); err != nil {
			return err
		}
		n.setType(longType())

	case *Cast:
		if err := ResolveTypes(n.X); err != nil {
			return err
		}
		n.setType(n.To)

	case *Cond:
		if err := resolveAll(n.Cond, n.Then, n.Else); err != nil {
			return err
		}
		n.setType(n.Then.Type())

	case *Comma:
		if err := resolveAll(n.Left, n.Right); err != nil {
			return err
		}
		n.setType(n.Right.Type())

	default:
		return typeErrorf(e, "unknown expression %T", e)
	}
	return nil
}

func resolveAll(es ...Expr) error {
	for _, e := range es {
		if err := ResolveTypes(e); err != nil {
			return err
		}
	}
	return nil
}

// resolveStmt annotates every expression reachable from st.
func resolveStmt(st Stmt) error {
	if st == nil {
		return nil
	}
	switch s := st.(type) {
	case *ExprStmt:
		return ResolveTypes(s.X)
	case *ReturnStmt:
		return ResolveTypes(s.X)
	case *BlockStmt:
		for _, inner := range s.Stmts {
			if err := resolveStmt(inner); err != nil {
				return err
			}
		}
	case *IfStmt:
		if err := ResolveTypes(s.Cond); err != nil {
			return err
		}
		if err := resolveStmt(s.Then); err != nil {
			return err
		}
		return resolveStmt(s.Else)
	case *WhileStmt:
		if err := ResolveTypes(s.Cond); err != nil {
			return err
		}
		return resolveStmt(s.Body)
	case *DoWhileStmt:
		if err := resolveStmt(s.Body); err != nil {
			return err
		}
		return ResolveTypes(s.Cond)
	case *ForStmt:
		if err := resolveStmt(s.Init); err != nil {
			return err
		}
		if err := resolveAll(s.Cond, s.Inc); err != nil {
			return err
		}
		return resolveStmt(s.Body)
	case *SwitchStmt:
		if err := ResolveTypes(s.Cond); err != nil {
			return err
		}
		return resolveStmt(s.Body)
	case *CaseStmt:
		return resolveStmt(s.Body)
	case *LabelStmt:
		return resolveStmt(s.Body)
	}
	return nil
}

func resolveProgram(prog *Program) error {
	for _, fn := range prog.Funcs {
		if fn.Body == nil {
			continue
		}
		if err := resolveStmt(fn.Body); err != nil {
			return err
		}
	}
	return nil
}
