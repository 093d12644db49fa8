package compiler

import (
	"fmt"
	"math"
)

// genAddr pushes the address of an lvalue.
func (cg *CodeGen) genAddr(e Expr) error {
	switch n := e.(type) {
	case *VarRef:
		if n.Var.IsLocal {
			cg.line("lea rax, [rbp-%d]", n.Var.Offset)
			cg.line("push rax")
		} else {
			cg.line("push offset %s", n.Var.Name)
		}
		return nil
	case *Deref:
		return cg.genExpr(n.X)
	case *MemberRef:
		if err := cg.genAddr(n.X); err != nil {
			return err
		}
		cg.line("pop rax")
		cg.line("add rax, %d", n.Member.Offset)
		cg.line("push rax")
		return nil
	}
	return cg.errorf(e.Pos(), "not an lvalue")
}

// genLval is genAddr for the target of a store; arrays are not assignable.
func (cg *CodeGen) genLval(e Expr) error {
	if e.Type().Kind == TyArray {
		return cg.errorf(e.Pos(), "not an lvalue")
	}
	return cg.genAddr(e)
}

// load replaces the address on top of the stack with the value it points
// to. Arrays and structs stay as addresses.
func (cg *CodeGen) load(ty *Type) {
	if ty.Kind == TyArray || ty.Kind == TyStruct || ty.Kind == TyUnion {
		return
	}
	cg.line("pop rax")
	switch ty.Size {
	case 1:
		cg.line("movsx rax, byte ptr [rax]")
	case 2:
		cg.line("movsx rax, word ptr [rax]")
	case 4:
		cg.line("movsxd rax, dword ptr [rax]")
	default:
		cg.line("mov rax, [rax]")
	}
	cg.line("push rax")
}

// store pops a value and an address, writes the value and pushes it back.
func (cg *CodeGen) store(ty *Type) {
	cg.line("pop rdi")
	cg.line("pop rax")

	if ty.Kind == TyStruct || ty.Kind == TyUnion {
		for i := 0; i < ty.Size; i++ {
			cg.line("mov r8b, [rdi+%d]", i)
			cg.line("mov [rax+%d], r8b", i)
		}
		cg.line("push rdi")
		return
	}

	if ty.Kind == TyBool {
		cg.line("cmp rdi, 0")
		cg.line("setne dil")
		cg.line("movzb rdi, dil")
	}
	cg.line("mov [rax], %s", argReg(0, ty.Size))
	cg.line("push rdi")
}

// truncate narrows the value on top of the stack to ty.
func (cg *CodeGen) truncate(ty *Type) {
	switch ty.Kind {
	case TyVoid, TyPtr, TyArray, TyStruct, TyUnion, TyLong, TyFunc:
		return
	}
	cg.line("pop rax")
	switch {
	case ty.Kind == TyBool:
		cg.line("cmp rax, 0")
		cg.line("setne al")
		cg.line("movzb rax, al")
	case ty.Size == 1:
		cg.line("movsx rax, al")
	case ty.Size == 2:
		cg.line("movsx rax, ax")
	case ty.Size == 4:
		cg.line("movsxd rax, eax")
	}
	cg.line("push rax")
}

// incStep is the amount ++ and -- move a value of type ty.
func incStep(ty *Type) int {
	if ty.HasBase() {
		return ty.Base.Size
	}
	return 1
}

func (cg *CodeGen) inc(ty *Type) {
	cg.line("pop rax")
	cg.line("add rax, %d", incStep(ty))
	cg.line("push rax")
}

func (cg *CodeGen) dec(ty *Type) {
	cg.line("pop rax")
	cg.line("sub rax, %d", incStep(ty))
	cg.line("push rax")
}

// dup duplicates the top of the stack.
func (cg *CodeGen) dup() {
	cg.line("pop rax")
	cg.line("push rax")
	cg.line("push rax")
}

func (cg *CodeGen) genExpr(e Expr) error {
	switch n := e.(type) {
	case *NumLit:
		if n.Val < math.MinInt32 || n.Val > math.MaxInt32 {
			cg.line("mov rax, %d", n.Val)
			cg.line("push rax")
		} else {
			cg.line("push %d", n.Val)
		}
		return nil

	case *VarRef, *MemberRef:
		if err := cg.genAddr(e); err != nil {
			return err
		}
		cg.load(e.Type())
		return nil

	case *Deref:
		if err := cg.genExpr(n.X); err != nil {
			return err
		}
		cg.load(n.Type())
		return nil

	case *AddrOf:
		return cg.genAddr(n.X)

	case *Assign:
		return cg.genAssign(n)

	case *IncDec:
		if err := cg.genLval(n.X); err != nil {
			return err
		}
		ty := n.X.Type()
		cg.dup()
		cg.load(ty)
		if n.Inc {
			cg.inc(ty)
		} else {
			cg.dec(ty)
		}
		cg.store(ty)
		if n.Post {
			if n.Inc {
				cg.dec(ty)
			} else {
				cg.inc(ty)
			}
		}
		return nil

	case *Comma:
		if err := cg.genExpr(n.Left); err != nil {
			return err
		}
		cg.line("add rsp, 8")
		return cg.genExpr(n.Right)

	case *Cast:
		if err := cg.genExpr(n.X); err != nil {
			return err
		}
		cg.truncate(n.To)
		return nil

	case *Cond:
		seq := cg.newLabel()
		if err := cg.genCond(n.Cond, fmt.Sprintf(".L.else.%d", seq)); err != nil {
			return err
		}
		if err := cg.genExpr(n.Then); err != nil {
			return err
		}
		cg.line("jmp .L.end.%d", seq)
		cg.label(".L.else.%d", seq)
		if err := cg.genExpr(n.Else); err != nil {
			return err
		}
		cg.label(".L.end.%d", seq)
		return nil

	case *Unary:
		if err := cg.genExpr(n.X); err != nil {
			return err
		}
		cg.line("pop rax")
		if n.Op == OpNot {
			cg.line("cmp rax, 0")
			cg.line("sete al")
			cg.line("movzb rax, al")
		} else {
			cg.line("not rax")
		}
		cg.line("push rax")
		return nil

	case *Call:
		return cg.genCall(n)

	case *Binary:
		switch n.Op {
		case OpLogAnd:
			return cg.genLogAnd(n)
		case OpLogOr:
			return cg.genLogOr(n)
		}
		if err := cg.genExpr(n.Left); err != nil {
			return err
		}
		if err := cg.genExpr(n.Right); err != nil {
			return err
		}
		cg.genBinary(n.Op, n.Left.Type())
		return nil
	}
	return fmt.Errorf("codegen: unknown expression %T", e)
}

// genAssign stores the right side into the left. A compound assignment
// evaluates the address once and keeps a copy for the store.
func (cg *CodeGen) genAssign(n *Assign) error {
	if err := cg.genLval(n.Left); err != nil {
		return err
	}
	ty := n.Left.Type()
	if n.Compound {
		cg.dup()
		cg.load(ty)
		if err := cg.genExpr(n.Right); err != nil {
			return err
		}
		cg.genBinary(n.Op, ty)
	} else if err := cg.genExpr(n.Right); err != nil {
		return err
	}
	cg.store(ty)
	return nil
}

// genBinary pops rdi (right) and rax (left) and pushes the result. lhs is
// the left operand type, used to scale pointer arithmetic.
func (cg *CodeGen) genBinary(op BinOp, lhs *Type) {
	cg.line("pop rdi")
	cg.line("pop rax")
	switch op {
	case OpAdd:
		cg.line("add rax, rdi")
	case OpSub:
		cg.line("sub rax, rdi")
	case OpPtrAdd:
		cg.line("imul rdi, %d", lhs.Base.Size)
		cg.line("add rax, rdi")
	case OpPtrSub:
		cg.line("imul rdi, %d", lhs.Base.Size)
		cg.line("sub rax, rdi")
	case OpPtrDiff:
		cg.line("sub rax, rdi")
		cg.line("cqo")
		cg.line("mov rdi, %d", lhs.Base.Size)
		cg.line("idiv rdi")
	case OpMul:
		cg.line("imul rax, rdi")
	case OpDiv:
		cg.line("cqo")
		cg.line("idiv rdi")
	case OpMod:
		cg.line("cqo")
		cg.line("idiv rdi")
		cg.line("mov rax, rdx")
	case OpEq, OpNe, OpLt, OpLe:
		cg.line("cmp rax, rdi")
		cg.line("%s al", setcc[op])
		cg.line("movzb rax, al")
	case OpBitAnd:
		cg.line("and rax, rdi")
	case OpBitOr:
		cg.line("or rax, rdi")
	case OpBitXor:
		cg.line("xor rax, rdi")
	case OpShl:
		cg.line("mov rcx, rdi")
		cg.line("shl rax, cl")
	case OpShr:
		cg.line("mov rcx, rdi")
		cg.line("sar rax, cl")
	}
	cg.line("push rax")
}

var setcc = map[BinOp]string{
	OpEq: "sete",
	OpNe: "setne",
	OpLt: "setl",
	OpLe: "setle",
}

func (cg *CodeGen) genLogAnd(n *Binary) error {
	seq := cg.newLabel()
	falseLabel := fmt.Sprintf(".L.false.%d", seq)
	if err := cg.genCond(n.Left, falseLabel); err != nil {
		return err
	}
	if err := cg.genCond(n.Right, falseLabel); err != nil {
		return err
	}
	cg.line("push 1")
	cg.line("jmp .L.end.%d", seq)
	cg.label("%s", falseLabel)
	cg.line("push 0")
	cg.label(".L.end.%d", seq)
	return nil
}

func (cg *CodeGen) genLogOr(n *Binary) error {
	seq := cg.newLabel()
	for _, side := range []Expr{n.Left, n.Right} {
		if err := cg.genExpr(side); err != nil {
			return err
		}
		cg.line("pop rax")
		cg.line("cmp rax, 0")
		cg.line("jne .L.true.%d", seq)
	}
	cg.line("push 0")
	cg.line("jmp .L.end.%d", seq)
	cg.label(".L.true.%d", seq)
	cg.line("push 1")
	cg.label(".L.end.%d", seq)
	return nil
}

// genCall passes arguments in registers and aligns rsp to 16 bytes at the
// call instruction. rax is zeroed for variadic callees.
func (cg *CodeGen) genCall(n *Call) error {
	if len(n.Args) > MaxArgs {
		return cg.errorf(n.Pos(), "%s: more than %d arguments", n.Name, MaxArgs)
	}
	for _, arg := range n.Args {
		if err := cg.genExpr(arg); err != nil {
			return err
		}
	}
	for i := len(n.Args) - 1; i >= 0; i-- {
		cg.line("pop %s", argRegs64[i])
	}

	seq := cg.newLabel()
	cg.line("mov rax, rsp")
	cg.line("and rax, 15")
	cg.line("jnz .L.call.%d", seq)
	cg.line("mov rax, 0")
	cg.line("call %s", n.Name)
	cg.line("jmp .L.end.%d", seq)
	cg.label(".L.call.%d", seq)
	cg.line("sub rsp, 8")
	cg.line("mov rax, 0")
	cg.line("call %s", n.Name)
	cg.line("add rsp, 8")
	cg.label(".L.end.%d", seq)
	cg.line("push rax")
	return nil
}
