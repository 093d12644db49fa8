package compiler

import (
	"errors"
	"strings"
	"testing"
)

func mustParse(t *testing.T, src string) *Program {
	t.Helper()
	tokens, err := Lex(src)
	if err != nil {
		t.Fatalf("Lex failed: %v", err)
	}
	prog, err := Parse(tokens)
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	return prog
}

func parseErr(t *testing.T, src string) *CompileError {
	t.Helper()
	tokens, err := Lex(src)
	if err != nil {
		t.Fatalf("Lex failed: %v", err)
	}
	_, err = Parse(tokens)
	if err == nil {
		t.Fatalf("expected Parse(%q) to fail", src)
	}
	var ce *CompileError
	if !errors.As(err, &ce) {
		t.Fatalf("expected *CompileError, got %T: %v", err, err)
	}
	return ce
}

// returnExpr parses "int main() { <decls> return <expr>; }" and returns the
// returned expression.
func returnExpr(t *testing.T, decls, expr string) Expr {
	t.Helper()
	prog := mustParse(t, "int main() { "+decls+" return "+expr+"; }")
	body := prog.Funcs[0].Body.Stmts
	ret, ok := body[len(body)-1].(*ReturnStmt)
	if !ok {
		t.Fatalf("last statement is %T, not a return", body[len(body)-1])
	}
	return ret.X
}

func TestParse_Expressions(t *testing.T) {
	tests := []struct {
		expr string
		want string
	}{
		{"1 + 2 * 3", "(1 + (2 * 3))"},
		{"(1 + 2) * 3", "((1 + 2) * 3)"},
		{"1 - 2 - 3", "((1 - 2) - 3)"},
		{"a > b", "(b < a)"},
		{"a >= b", "(b <= a)"},
		{"a < b == 1", "((a < b) == 1)"},
		{"a & b | c ^ 1", "((a & b) | (c ^ 1))"},
		{"a || b && c", "(a || (b && c))"},
		{"1 << 2 + 3", "(1 << (2 + 3))"},
		{"-a", "(0 - a)"},
		{"!a", "(!a)"},
		{"~a", "(~a)"},
		{"a ? b : c ? 1 : 2", "(a ? b : (c ? 1 : 2))"},
		{"a = b = 3", "(a = (b = 3))"},
		{"a += 2", "(a += 2)"},
		{"a <<= 1", "(a <<= 1)"},
		{"a++", "(a++)"},
		{"--a", "(--a)"},
		{"(a, b)", "(a, b)"},
		{"(long)a", "((long)a)"},
		{"sizeof a", "4"},
		{"sizeof(int[3])", "12"},
		{"p[1]", "(*(p ptr+ 1))"},
		{"*p + 1", "((*p) + 1)"},
		{"p + 1", "(p ptr+ 1)"},
		{"p - 1", "(p ptr- 1)"},
		{"p - q", "(p ptrdiff q)"},
		{"p += 1", "(p ptr+= 1)"},
		{"&a", "(&a)"},
		{"f(a, 2)", "f(a, 2)"},
	}
	for _, tt := range tests {
		e := returnExpr(t, "int a; int b; int c; int *p; int *q;", tt.expr)
		if got := e.String(); got != tt.want {
			t.Errorf("%s: got %s, want %s", tt.expr, got, tt.want)
		}
	}
}

func TestParse_Types(t *testing.T) {
	tests := []struct {
		expr string
		want string
	}{
		{"a", "int"},
		{"c", "char"},
		{"p", "int*"},
		{"&a", "int*"},
		{"*p", "int"},
		{"p + 1", "int*"},
		{"p - p", "long"},
		{"arr", "int[4]"},
		{"&arr", "int*"},
		{"arr[1]", "int"},
		{"a + c", "long"},
		{"a == 1", "long"},
		{"(char)a", "char"},
		{"a = 1", "int"},
		{"c++", "char"},
		{"f(1)", "long"},
		{"1 ? p : p", "int*"},
		{"(a, p)", "int*"},
		{"s.x", "long"},
		{"sp->y", "char"},
	}
	decls := "int a; char c; int *p; int arr[4]; struct { long x; char y; } s; struct { long x; char y; } *sp;"
	for _, tt := range tests {
		e := returnExpr(t, decls, tt.expr)
		if e.Type() == nil {
			t.Errorf("%s: type not resolved", tt.expr)
			continue
		}
		if got := e.Type().String(); got != tt.want {
			t.Errorf("%s: type %s, want %s", tt.expr, got, tt.want)
		}
	}
}

func TestParse_Functions(t *testing.T) {
	prog := mustParse(t, `
static int helper(int a, char *b, long c[]) { int x; { long y; } return a; }
int proto(void);
int main() { return helper(1, 0, 0); }
`)
	if len(prog.Funcs) != 2 {
		t.Fatalf("expected 2 functions (prototypes are not definitions), got %d", len(prog.Funcs))
	}
	fn := prog.Funcs[0]
	if fn.Name != "helper" || !fn.IsStatic {
		t.Errorf("unexpected function %s static=%v", fn.Name, fn.IsStatic)
	}
	if len(fn.Params) != 3 {
		t.Fatalf("expected 3 params, got %d", len(fn.Params))
	}
	if got := fn.Params[2].Type.String(); got != "long*" {
		t.Errorf("array parameter should decay to a pointer, got %s", got)
	}
	// a, b, c, x, y
	if len(fn.Locals) != 5 {
		t.Errorf("expected 5 locals, got %d", len(fn.Locals))
	}
	for _, v := range fn.Locals {
		if v.Offset <= 0 || v.Offset%v.Type.Align != 0 {
			t.Errorf("local %s has bad offset %d", v.Name, v.Offset)
		}
	}
	if fn.StackSize%16 != 0 || fn.StackSize < 4+8+8+4+8 {
		t.Errorf("unexpected stack size %d", fn.StackSize)
	}
	if prog.Funcs[1].StackSize != 0 {
		t.Errorf("main has no locals, got stack size %d", prog.Funcs[1].StackSize)
	}
}

func TestParse_Shadowing(t *testing.T) {
	prog := mustParse(t, `int x; int main() { int x; { int x; x = 2; } x = 1; return x; }`)
	body := prog.Funcs[0].Body.Stmts
	// { decl } { inner block } x = 1; return x;
	inner := body[1].(*BlockStmt).Stmts[1].(*ExprStmt).X.(*Assign).Left.(*VarRef).Var
	outer := body[2].(*ExprStmt).X.(*Assign).Left.(*VarRef).Var
	ret := body[3].(*ReturnStmt).X.(*VarRef).Var

	if inner == outer {
		t.Error("inner block should bind a new x")
	}
	if outer != ret {
		t.Error("x after the block should resolve to the outer local")
	}
	if outer == prog.Globals[0] || !outer.IsLocal {
		t.Error("local x should shadow the global")
	}
}

func TestParse_Switch(t *testing.T) {
	prog := mustParse(t, `int main() { switch (3) { case 1: case 1+1: break; default: return 0; case 'a': ; } return 1; }`)
	sw := prog.Funcs[0].Body.Stmts[0].(*SwitchStmt)
	var vals []int64
	for _, c := range sw.Cases {
		vals = append(vals, c.Val)
	}
	if len(vals) != 3 || vals[0] != 1 || vals[1] != 2 || vals[2] != 'a' {
		t.Errorf("unexpected case values %v", vals)
	}
	if sw.Default == nil || !sw.Default.IsDefault {
		t.Error("default clause not recorded")
	}
}

func TestParse_GlobalInitializers(t *testing.T) {
	prog := mustParse(t, `int a = 258; char s[] = "hi"; short t[3] = {1, -1}; long big = 1 << 40;`)
	tests := []struct {
		name string
		size int
		init []byte
	}{
		{"a", 4, []byte{2, 1, 0, 0}},
		{"s", 3, []byte{'h', 'i', 0}},
		{"t", 6, []byte{1, 0, 0xff, 0xff, 0, 0}},
		{"big", 8, []byte{0, 0, 0, 0, 0, 1, 0, 0}},
	}
	for i, tt := range tests {
		v := prog.Globals[i]
		if v.Name != tt.name || v.Type.Size != tt.size {
			t.Errorf("global %d: got %s size %d, want %s size %d", i, v.Name, v.Type.Size, tt.name, tt.size)
		}
		if string(v.Init) != string(tt.init) {
			t.Errorf("%s: init %v, want %v", tt.name, v.Init, tt.init)
		}
	}
}

func TestParse_Typedef(t *testing.T) {
	prog := mustParse(t, `typedef int myint; typedef struct Node { myint v; struct Node *next; } Node; Node n; int main() { myint x = 3; return x; }`)
	n := prog.Globals[0]
	if n.Type.Kind != TyStruct || n.Type.Size != 16 {
		t.Errorf("Node: got %s size %d", n.Type, n.Type.Size)
	}
	if next := n.Type.Members[1].Type; next.Base != n.Type {
		t.Error("self-referencing member should point at the same struct type")
	}
}

func TestParse_TagRedeclaration(t *testing.T) {
	t.Run("forward declaration completed by a variable", func(t *testing.T) {
		prog := mustParse(t, "struct S; struct S { int a; } x;")
		if size := prog.Globals[0].Type.Size; size != 4 {
			t.Errorf("expected size 4, got %d", size)
		}
	})

	t.Run("forward declaration completed by a function return type", func(t *testing.T) {
		prog := mustParse(t, `struct S *p;
struct S { long a; long b; } *first(struct S *q) { return q; }
int main() { return sizeof(struct S); }`)
		if size := prog.Globals[0].Type.Base.Size; size != 16 {
			t.Errorf("expected the forward-declared struct to be completed with size 16, got %d", size)
		}
	})

	t.Run("inner scope may redefine", func(t *testing.T) {
		mustParse(t, `struct S { int a; }; enum E { A };
int main() { struct S { long a; long b; } x; enum E { B }; return sizeof(x) + B; }`)
	})
}

func TestParse_PointerArguments(t *testing.T) {
	mustParse(t, `long read(long *p); long fill(void *p); long sum(long *p, long n);
int main() { long v; long a[3]; int i; read(&v); fill(&i); return sum(a, 3) + v; }`)
}

func TestParse_CastBacktracking(t *testing.T) {
	e := returnExpr(t, "int a;", "(a) + (int)(a)")
	if got := e.String(); got != "(a + ((int)a))" {
		t.Errorf("got %s", got)
	}
}

func TestParserErrors(t *testing.T) {
	tests := []struct {
		name  string
		src   string
		stage string
		msg   string
	}{
		{"int plus pointer", "int main() { int *p; return 1 + p; }", StageParse, "invalid operands"},
		{"pointer plus pointer", "int main() { int *p; return p + p; }", StageParse, "invalid operands"},
		{"int minus pointer", "int main() { int *p; return 1 - p; }", StageParse, "invalid operands"},
		{"pointer times assign", "int main() { int *p; p *= 2; return 0; }", StageParse, "invalid operands"},
		{"undefined variable", "int main() { return y; }", StageParse, "undefined variable"},
		{"deref int", "int main() { int x; return *x; }", StageType, "invalid pointer dereference"},
		{"deref void", "int main() { void *v; return *v; }", StageType, "dereferencing a void pointer"},
		{"member of int", "int main() { int x; return x.y; }", StageParse, "not a struct"},
		{"no such member", "struct S { int a; }; int main() { struct S s; return s.b; }", StageParse, "no such member: b"},
		{"missing semicolon", "int main() { return 1 }", StageParse, "expected SEMICOLON"},
		{"stray break", "int main() { break; }", StageParse, "stray break"},
		{"stray continue", "int main() { switch (1) { case 1: continue; } }", StageParse, "stray continue"},
		{"stray case", "int main() { case 1: return 0; }", StageParse, "stray case"},
		{"duplicate case", "int main() { switch (1) { case 1: case 1: ; } }", StageParse, "duplicate case value 1"},
		{"duplicate default", "int main() { switch (1) { default: default: ; } }", StageParse, "multiple default labels"},
		{"undefined label", "int main() { goto nowhere; }", StageParse, "undefined label nowhere"},
		{"duplicate label", "int main() { a: ; a: ; }", StageParse, "duplicate label a"},
		{"void variable", "int main() { void v; }", StageParse, "variable declared void"},
		{"incomplete struct", "struct S; int main() { struct S s; }", StageParse, "incomplete type"},
		{"sizeof incomplete", "struct S; int main() { return sizeof(struct S); }", StageParse, "sizeof applied to an incomplete type"},
		{"not constant", "int n; int a[n];", StageParse, "not a constant expression"},
		{"constant division", "int a[1/0];", StageParse, "division by zero"},
		{"invalid type", "short long x;", StageParse, "invalid type"},
		{"type name as value", "typedef int T; int main() { return T; }", StageParse, "unexpected type name"},
		{"too many initializers", "int main() { int a[2] = {1, 2, 3}; }", StageParse, "too many initializers"},
		{"negative array", "int a[-1];", StageParse, "array size is negative"},
		{"unterminated body", "int main() { return 0;", StageParse, "unterminated"},
		{"struct redefinition", "struct S { char a; }; struct S { long b; long c; }; int main() { return 0; }", StageParse, "redefinition of struct S"},
		{"union redefinition", "union U { int a; }; union U { int a; };", StageParse, "redefinition of union U"},
		{"enum redefinition", "enum E { A }; enum E { B };", StageParse, "redefinition of enum E"},
		{"struct redefinition in a block", "int main() { struct S { int a; } x; struct S { int a; } y; return 0; }", StageParse, "redefinition of struct S"},
		{"redefinition before a function", "struct S { long a; }; struct S { long a; } *f() { return 0; }", StageParse, "redefinition of struct S"},
		{"narrow pointer to read", "long read(long *p); int main() { int x; read(&x); return x; }", StageParse, "incompatible pointer argument 1 to read: have int*, want long*"},
		{"narrow array to long pointer", "long sum(long *p, long n); int main() { int a[2]; return sum(a, 2); }", StageParse, "incompatible pointer argument 1 to sum"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ce := parseErr(t, tt.src)
			if ce.Stage != tt.stage {
				t.Errorf("expected stage %q, got %q (%v)", tt.stage, ce.Stage, ce)
			}
			if !strings.Contains(ce.Msg, tt.msg) {
				t.Errorf("expected message containing %q, got %q", tt.msg, ce.Msg)
			}
			if ce.Line == 0 {
				t.Errorf("expected a source position, got %v", ce)
			}
		})
	}
}

func TestResolveTypes_WriteOnce(t *testing.T) {
	tok := &Token{Type: NUMBER, Lexeme: "1", Line: 1, Col: 1}
	n := numLit(tok, 1)
	n.setType(charType())
	if err := ResolveTypes(n); err != nil {
		t.Fatal(err)
	}
	if n.Type().Kind != TyChar {
		t.Errorf("a resolved type must not be replaced, got %s", n.Type())
	}

	v := &Var{Name: "p", Type: PointerTo(intType())}
	sum := newBinary(OpPtrAdd, &VarRef{exprBase: exprBase{tok: tok}, Var: v}, numLit(tok, 2), tok)
	d := &Deref{exprBase: exprBase{tok: tok}, X: sum}
	if err := ResolveTypes(d); err != nil {
		t.Fatal(err)
	}
	if d.Type().Kind != TyInt || sum.Type().Kind != TyPtr {
		t.Errorf("unexpected types %s and %s", d.Type(), sum.Type())
	}
}
