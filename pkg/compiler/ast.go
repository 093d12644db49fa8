package compiler

import (
	"fmt"
	"strings"
)

//  Program structure

// Var is a named storage location. Locals live in the enclosing function's
// frame at rbp-Offset; globals are emitted into the data section.
type Var struct {
	Name    string
	Type    *Type
	IsLocal bool
	Offset  int    // frame offset, assigned once the function is parsed
	Init    []byte // initial bytes for globals (string literals, constants)
}

// Function is one parsed function definition.
type Function struct {
	Name      string
	IsStatic  bool
	Type      *Type
	Params    []*Var // references into Locals, in declaration order
	Locals    []*Var
	Body      *BlockStmt
	StackSize int // 16-byte aligned
}

// Program is the parser's output.
type Program struct {
	Globals []*Var
	Funcs   []*Function
}

//  Expression nodes

// Expr is implemented by every node that produces a value. Each expression
// carries the token it started at and, after ResolveTypes, its type.
type Expr interface {
	exprNode()
	Pos() *Token
	Type() *Type
	setType(*Type)
	String() string
}

type exprBase struct {
	tok *Token
	ty  *Type
}

func (*exprBase) exprNode()      {}
func (e *exprBase) Pos() *Token  { return e.tok }
func (e *exprBase) Type() *Type  { return e.ty }
func (e *exprBase) setType(t *Type) {
	if e.ty == nil {
		e.ty = t
	}
}

// BinOp names a binary operator after pointer classification.
type BinOp int

const (
	OpAdd BinOp = iota
	OpSub
	OpMul
	OpDiv
	OpMod
	OpPtrAdd  // ptr + n, n scaled by the element size
	OpPtrSub  // ptr - n, n scaled by the element size
	OpPtrDiff // ptr - ptr, divided by the element size
	OpEq
	OpNe
	OpLt
	OpLe
	OpBitAnd
	OpBitOr
	OpBitXor
	OpShl
	OpShr
	OpLogAnd
	OpLogOr
)

var binOpNames = [...]string{
	OpAdd: "+", OpSub: "-", OpMul: "*", OpDiv: "/", OpMod: "%",
	OpPtrAdd: "ptr+", OpPtrSub: "ptr-", OpPtrDiff: "ptrdiff",
	OpEq: "==", OpNe: "!=", OpLt: "<", OpLe: "<=",
	OpBitAnd: "&", OpBitOr: "|", OpBitXor: "^", OpShl: "<<", OpShr: ">>",
	OpLogAnd: "&&", OpLogOr: "||",
}

func (op BinOp) String() string { return binOpNames[op] }

// NumLit is an integer constant (character literals included).
//
//	return 42;
//	       ^^  NumLit{Val: 42}
type NumLit struct {
	exprBase
	Val int64
}

func (n *NumLit) String() string { return fmt.Sprintf("%d", n.Val) }

// VarRef is a read of a local or global variable.
type VarRef struct {
	exprBase
	Var *Var
}

func (v *VarRef) String() string { return v.Var.Name }

// Binary represents Left Op Right.
//
//	p + 1      (p is int*)
//	^ ^ ^
//	| | Right
//	| Op = OpPtrAdd
//	Left
type Binary struct {
	exprBase
	Op          BinOp
	Left, Right Expr
}

func (b *Binary) String() string { return fmt.Sprintf("(%s %s %s)", b.Left, b.Op, b.Right) }

// UnOp names a prefix operator that is not lowered into other nodes.
type UnOp int

const (
	OpNot    UnOp = iota // !
	OpBitNot             // ~
)

// Unary represents !X or ~X. Unary minus is lowered to 0 - X.
type Unary struct {
	exprBase
	Op UnOp
	X  Expr
}

func (u *Unary) String() string {
	if u.Op == OpNot {
		return fmt.Sprintf("(!%s)", u.X)
	}
	return fmt.Sprintf("(~%s)", u.X)
}

// Assign is plain or compound assignment. For compound forms Op is the
// arithmetic operator applied before the store; plain assignment has
// Compound == false.
//
//	p += 2     (p is int*)   Assign{Compound: true, Op: OpPtrAdd}
type Assign struct {
	exprBase
	Compound    bool
	Op          BinOp
	Left, Right Expr
}

func (a *Assign) String() string {
	if !a.Compound {
		return fmt.Sprintf("(%s = %s)", a.Left, a.Right)
	}
	return fmt.Sprintf("(%s %s= %s)", a.Left, a.Op, a.Right)
}

// IncDec is ++/-- in prefix or postfix position.
type IncDec struct {
	exprBase
	X    Expr
	Inc  bool
	Post bool
}

func (i *IncDec) String() string {
	op := "--"
	if i.Inc {
		op = "++"
	}
	if i.Post {
		return fmt.Sprintf("(%s%s)", i.X, op)
	}
	return fmt.Sprintf("(%s%s)", op, i.X)
}

// AddrOf is &X.
type AddrOf struct {
	exprBase
	X Expr
}

func (a *AddrOf) String() string { return fmt.Sprintf("(&%s)", a.X) }

// Deref is *X; X[i] is parsed as *(X + i).
type Deref struct {
	exprBase
	X Expr
}

func (d *Deref) String() string { return fmt.Sprintf("(*%s)", d.X) }

// MemberRef is X.name; X->name is parsed as (*X).name.
type MemberRef struct {
	exprBase
	X      Expr
	Member *Member
}

func (m *MemberRef) String() string { return fmt.Sprintf("%s.%s", m.X, m.Member.Name) }

// Call is a direct call by name.
type Call struct {
	exprBase
	Name string
	Args []Expr
}

func (c *Call) String() string {
	args := make([]string, len(c.Args))
	for i, a := range c.Args {
		args[i] = a.String()
	}
	return fmt.Sprintf("%s(%s)", c.Name, strings.Join(args, ", "))
}

// Cast converts X to To.
type Cast struct {
	exprBase
	X  Expr
	To *Type
}

func (c *Cast) String() string { return fmt.Sprintf("((%s)%s)", c.To, c.X) }

// Cond is Cond ? Then : Else.
type Cond struct {
	exprBase
	Cond, Then, Else Expr
}

func (c *Cond) String() string { return fmt.Sprintf("(%s ? %s : %s)", c.Cond, c.Then, c.Else) }

// Comma evaluates Left for its side effects and yields Right.
type Comma struct {
	exprBase
	Left, Right Expr
}

func (c *Comma) String() string { return fmt.Sprintf("(%s, %s)", c.Left, c.Right) }

//  Statement nodes

// Stmt is implemented by every statement node.
type Stmt interface {
	stmtNode()
	String() string
}

type stmtBase struct {
	tok *Token
}

func (*stmtBase) stmtNode() {}

// ExprStmt evaluates X and discards the result.
type ExprStmt struct {
	stmtBase
	X Expr
}

func (s *ExprStmt) String() string { return s.X.String() + ";" }

// ReturnStmt returns X, or nothing when X is nil.
type ReturnStmt struct {
	stmtBase
	X Expr
}

func (s *ReturnStmt) String() string {
	if s.X == nil {
		return "return;"
	}
	return fmt.Sprintf("return %s;", s.X)
}

// BlockStmt is a braced statement list, or the lowered form of a
// declaration list.
type BlockStmt struct {
	stmtBase
	Stmts []Stmt
}

func (s *BlockStmt) String() string {
	parts := make([]string, len(s.Stmts))
	for i, st := range s.Stmts {
		parts[i] = st.String()
	}
	return "{ " + strings.Join(parts, " ") + " }"
}

// IfStmt is if (Cond) Then else Else; Else may be nil.
type IfStmt struct {
	stmtBase
	Cond Expr
	Then Stmt
	Else Stmt
}

func (s *IfStmt) String() string {
	if s.Else == nil {
		return fmt.Sprintf("if (%s) %s", s.Cond, s.Then)
	}
	return fmt.Sprintf("if (%s) %s else %s", s.Cond, s.Then, s.Else)
}

// WhileStmt is while (Cond) Body.
type WhileStmt struct {
	stmtBase
	Cond Expr
	Body Stmt
}

func (s *WhileStmt) String() string { return fmt.Sprintf("while (%s) %s", s.Cond, s.Body) }

// DoWhileStmt is do Body while (Cond);
type DoWhileStmt struct {
	stmtBase
	Body Stmt
	Cond Expr
}

func (s *DoWhileStmt) String() string { return fmt.Sprintf("do %s while (%s);", s.Body, s.Cond) }

// ForStmt is for (Init; Cond; Inc) Body. Any clause may be nil.
type ForStmt struct {
	stmtBase
	Init Stmt
	Cond Expr
	Inc  Expr
	Body Stmt
}

func (s *ForStmt) String() string {
	init, cond, inc := ";", "", ""
	if s.Init != nil {
		init = s.Init.String()
	}
	if s.Cond != nil {
		cond = s.Cond.String()
	}
	if s.Inc != nil {
		inc = s.Inc.String()
	}
	return fmt.Sprintf("for (%s %s; %s) %s", init, cond, inc, s.Body)
}

// SwitchStmt holds the case clauses registered while parsing its body.
type SwitchStmt struct {
	stmtBase
	Cond    Expr
	Body    Stmt
	Cases   []*CaseStmt
	Default *CaseStmt
}

func (s *SwitchStmt) String() string { return fmt.Sprintf("switch (%s) %s", s.Cond, s.Body) }

// CaseStmt is a case or default label followed by its statement.
type CaseStmt struct {
	stmtBase
	Val       int64
	IsDefault bool
	Body      Stmt
}

func (s *CaseStmt) String() string {
	if s.IsDefault {
		return fmt.Sprintf("default: %s", s.Body)
	}
	return fmt.Sprintf("case %d: %s", s.Val, s.Body)
}

// BreakStmt leaves the innermost loop or switch.
type BreakStmt struct{ stmtBase }

func (*BreakStmt) String() string { return "break;" }

// ContinueStmt jumps to the next iteration of the innermost loop.
type ContinueStmt struct{ stmtBase }

func (*ContinueStmt) String() string { return "continue;" }

// GotoStmt jumps to a label in the same function.
type GotoStmt struct {
	stmtBase
	Label string
}

func (s *GotoStmt) String() string { return fmt.Sprintf("goto %s;", s.Label) }

// LabelStmt is Name: Body.
type LabelStmt struct {
	stmtBase
	Name string
	Body Stmt
}

func (s *LabelStmt) String() string { return fmt.Sprintf("%s: %s", s.Name, s.Body) }
