package compiler

// Prune removes functions that cannot be reached from main. A program
// without main is left untouched.
func Prune(prog *Program) {
	funcs := make(map[string]*Function, len(prog.Funcs))
	for _, fn := range prog.Funcs {
		funcs[fn.Name] = fn
	}
	if _, ok := funcs["main"]; !ok {
		return
	}

	reachable := map[string]bool{"main": true}
	worklist := []string{"main"}
	for len(worklist) > 0 {
		curr := worklist[0]
		worklist = worklist[1:]

		fn, ok := funcs[curr]
		if !ok {
			// built-in such as read or write
			continue
		}
		calls := make(map[string]bool)
		findCallsStmt(fn.Body, calls)
		for name := range calls {
			if !reachable[name] {
				reachable[name] = true
				worklist = append(worklist, name)
			}
		}
	}

	kept := prog.Funcs[:0]
	for _, fn := range prog.Funcs {
		if reachable[fn.Name] {
			kept = append(kept, fn)
		}
	}
	prog.Funcs = kept
}

// findCallsExpr records the name of every function called within e.
func findCallsExpr(e Expr, calls map[string]bool) {
	switch n := e.(type) {
	case nil:
	case *Call:
		calls[n.Name] = true
		for _, arg := range n.Args {
			findCallsExpr(arg, calls)
		}
	case *Binary:
		findCallsExpr(n.Left, calls)
		findCallsExpr(n.Right, calls)
	case *Assign:
		findCallsExpr(n.Left, calls)
		findCallsExpr(n.Right, calls)
	case *Comma:
		findCallsExpr(n.Left, calls)
		findCallsExpr(n.Right, calls)
	case *Cond:
		findCallsExpr(n.Cond, calls)
		findCallsExpr(n.Then, calls)
		findCallsExpr(n.Else, calls)
	case *Unary:
		findCallsExpr(n.X, calls)
	case *IncDec:
		findCallsExpr(n.X, calls)
	case *AddrOf:
		findCallsExpr(n.X, calls)
	case *Deref:
		findCallsExpr(n.X, calls)
	case *MemberRef:
		findCallsExpr(n.X, calls)
	case *Cast:
		findCallsExpr(n.X, calls)
	}
}

// findCallsStmt records the name of every function called within s.
func findCallsStmt(s Stmt, calls map[string]bool) {
	switch n := s.(type) {
	case nil:
	case *ExprStmt:
		findCallsExpr(n.X, calls)
	case *ReturnStmt:
		findCallsExpr(n.X, calls)
	case *BlockStmt:
		for _, child := range n.Stmts {
			findCallsStmt(child, calls)
		}
	case *IfStmt:
		findCallsExpr(n.Cond, calls)
		findCallsStmt(n.Then, calls)
		findCallsStmt(n.Else, calls)
	case *WhileStmt:
		findCallsExpr(n.Cond, calls)
		findCallsStmt(n.Body, calls)
	case *DoWhileStmt:
		findCallsStmt(n.Body, calls)
		findCallsExpr(n.Cond, calls)
	case *ForStmt:
		findCallsStmt(n.Init, calls)
		findCallsExpr(n.Cond, calls)
		findCallsExpr(n.Inc, calls)
		findCallsStmt(n.Body, calls)
	case *SwitchStmt:
		findCallsExpr(n.Cond, calls)
		findCallsStmt(n.Body, calls)
	case *CaseStmt:
		findCallsStmt(n.Body, calls)
	case *LabelStmt:
		findCallsStmt(n.Body, calls)
	}
}
