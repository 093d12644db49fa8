package compiler

import (
	"fmt"
	"strings"
)

// CodeGen walks a typed Program and emits Intel-syntax x86-64 assembly for
// a stack machine: every expression leaves exactly one 8-byte word on the
// stack.
type CodeGen struct {
	out       strings.Builder
	nextLabel int
	fn        *Function
	loopStack []LoopLabel
	caseLabel map[*CaseStmt]string
}

// LoopLabel is the jump target pair of an enclosing loop or switch.
// Continue is empty for a switch.
type LoopLabel struct {
	Break    string
	Continue string
}

var (
	argRegs8  = [...]string{"dil", "sil", "dl", "cl", "r8b", "r9b"}
	argRegs16 = [...]string{"di", "si", "dx", "cx", "r8w", "r9w"}
	argRegs32 = [...]string{"edi", "esi", "edx", "ecx", "r8d", "r9d"}
	argRegs64 = [...]string{"rdi", "rsi", "rdx", "rcx", "r8", "r9"}
)

// MaxArgs is the number of register-passed arguments.
const MaxArgs = len(argRegs64)

func newCodeGen() *CodeGen {
	return &CodeGen{caseLabel: make(map[*CaseStmt]string)}
}

func (cg *CodeGen) newLabel() int {
	n := cg.nextLabel
	cg.nextLabel++
	return n
}

// line emits one indented instruction.
func (cg *CodeGen) line(format string, args ...any) {
	cg.out.WriteString("  ")
	fmt.Fprintf(&cg.out, format, args...)
	cg.out.WriteByte('\n')
}

// label emits "name:" at column zero.
func (cg *CodeGen) label(format string, args ...any) {
	fmt.Fprintf(&cg.out, format, args...)
	cg.out.WriteString(":\n")
}

func (cg *CodeGen) directive(s string) {
	cg.out.WriteString(s)
	cg.out.WriteByte('\n')
}

func (cg *CodeGen) errorf(tok *Token, format string, args ...any) error {
	return errorAt(StageCodegen, tok, format, args...)
}

// Generate emits the data section followed by every function.
func Generate(prog *Program) (string, error) {
	cg := newCodeGen()
	cg.directive(".intel_syntax noprefix")
	if err := cg.genData(prog); err != nil {
		return "", err
	}
	cg.directive(".text")
	for _, fn := range prog.Funcs {
		if err := cg.genFunction(fn); err != nil {
			return "", err
		}
	}
	return cg.out.String(), nil
}

func (cg *CodeGen) genData(prog *Program) error {
	cg.directive(".data")
	for _, v := range prog.Globals {
		if v.Type.IsIncomplete() {
			return cg.errorf(nil, "global %s has incomplete type %s", v.Name, v.Type)
		}
		cg.label("%s", v.Name)
		if v.Init == nil {
			cg.line(".zero %d", v.Type.Size)
			continue
		}
		for _, b := range v.Init {
			cg.line(".byte %d", b)
		}
		if pad := v.Type.Size - len(v.Init); pad > 0 {
			cg.line(".zero %d", pad)
		}
	}
	return nil
}

func (cg *CodeGen) genFunction(fn *Function) error {
	cg.fn = fn
	defer func() { cg.fn = nil }()

	if !fn.IsStatic {
		cg.directive(".global " + fn.Name)
	}
	cg.label("%s", fn.Name)

	// prologue
	cg.line("push rbp")
	cg.line("mov rbp, rsp")
	cg.line("sub rsp, %d", fn.StackSize)

	if len(fn.Params) > MaxArgs {
		return cg.errorf(fn.Body.tok, "%s: more than %d parameters", fn.Name, MaxArgs)
	}
	for i, v := range fn.Params {
		cg.line("mov [rbp-%d], %s", v.Offset, argReg(i, v.Type.Size))
	}

	if err := cg.genStmt(fn.Body); err != nil {
		return err
	}

	// epilogue
	cg.label(".L.return.%s", fn.Name)
	cg.line("mov rsp, rbp")
	cg.line("pop rbp")
	cg.line("ret")
	return nil
}

// argReg names the i-th argument register at the given width.
func argReg(i, size int) string {
	switch size {
	case 1:
		return argRegs8[i]
	case 2:
		return argRegs16[i]
	case 4:
		return argRegs32[i]
	}
	return argRegs64[i]
}

func (cg *CodeGen) genStmt(s Stmt) error {
	switch n := s.(type) {
	case *ExprStmt:
		if err := cg.genExpr(n.X); err != nil {
			return err
		}
		cg.line("add rsp, 8")

	case *ReturnStmt:
		if n.X != nil {
			if err := cg.genExpr(n.X); err != nil {
				return err
			}
			cg.line("pop rax")
		}
		cg.line("jmp .L.return.%s", cg.fn.Name)

	case *BlockStmt:
		for _, st := range n.Stmts {
			if err := cg.genStmt(st); err != nil {
				return err
			}
		}

	case *IfStmt:
		seq := cg.newLabel()
		if err := cg.genCond(n.Cond, fmt.Sprintf(".L.else.%d", seq)); err != nil {
			return err
		}
		if err := cg.genStmt(n.Then); err != nil {
			return err
		}
		cg.line("jmp .L.end.%d", seq)
		cg.label(".L.else.%d", seq)
		if n.Else != nil {
			if err := cg.genStmt(n.Else); err != nil {
				return err
			}
		}
		cg.label(".L.end.%d", seq)

	case *WhileStmt:
		seq := cg.newLabel()
		cg.label(".L.begin.%d", seq)
		if err := cg.genCond(n.Cond, fmt.Sprintf(".L.end.%d", seq)); err != nil {
			return err
		}
		if err := cg.genLoopBody(n.Body, seq, fmt.Sprintf(".L.begin.%d", seq)); err != nil {
			return err
		}
		cg.line("jmp .L.begin.%d", seq)
		cg.label(".L.end.%d", seq)

	case *DoWhileStmt:
		seq := cg.newLabel()
		cg.label(".L.begin.%d", seq)
		if err := cg.genLoopBody(n.Body, seq, fmt.Sprintf(".L.continue.%d", seq)); err != nil {
			return err
		}
		cg.label(".L.continue.%d", seq)
		if err := cg.genExpr(n.Cond); err != nil {
			return err
		}
		cg.line("pop rax")
		cg.line("cmp rax, 0")
		cg.line("jne .L.begin.%d", seq)
		cg.label(".L.end.%d", seq)

	case *ForStmt:
		seq := cg.newLabel()
		if n.Init != nil {
			if err := cg.genStmt(n.Init); err != nil {
				return err
			}
		}
		cg.label(".L.begin.%d", seq)
		if n.Cond != nil {
			if err := cg.genCond(n.Cond, fmt.Sprintf(".L.end.%d", seq)); err != nil {
				return err
			}
		}
		if err := cg.genLoopBody(n.Body, seq, fmt.Sprintf(".L.continue.%d", seq)); err != nil {
			return err
		}
		cg.label(".L.continue.%d", seq)
		if n.Inc != nil {
			if err := cg.genExpr(n.Inc); err != nil {
				return err
			}
			cg.line("add rsp, 8")
		}
		cg.line("jmp .L.begin.%d", seq)
		cg.label(".L.end.%d", seq)

	case *SwitchStmt:
		return cg.genSwitch(n)

	case *CaseStmt:
		cg.label("%s", cg.caseLabel[n])
		return cg.genStmt(n.Body)

	case *BreakStmt:
		if len(cg.loopStack) == 0 {
			return cg.errorf(n.tok, "stray break")
		}
		cg.line("jmp %s", cg.loopStack[len(cg.loopStack)-1].Break)

	case *ContinueStmt:
		for i := len(cg.loopStack) - 1; i >= 0; i-- {
			if cont := cg.loopStack[i].Continue; cont != "" {
				cg.line("jmp %s", cont)
				return nil
			}
		}
		return cg.errorf(n.tok, "stray continue")

	case *GotoStmt:
		cg.line("jmp .L.label.%s.%s", cg.fn.Name, n.Label)

	case *LabelStmt:
		cg.label(".L.label.%s.%s", cg.fn.Name, n.Name)
		return cg.genStmt(n.Body)

	default:
		return fmt.Errorf("codegen: unknown statement %T", s)
	}
	return nil
}

// genCond evaluates cond and jumps to target when it is zero.
func (cg *CodeGen) genCond(cond Expr, target string) error {
	if err := cg.genExpr(cond); err != nil {
		return err
	}
	cg.line("pop rax")
	cg.line("cmp rax, 0")
	cg.line("je %s", target)
	return nil
}

func (cg *CodeGen) genLoopBody(body Stmt, seq int, cont string) error {
	cg.loopStack = append(cg.loopStack, LoopLabel{Break: fmt.Sprintf(".L.end.%d", seq), Continue: cont})
	defer func() { cg.loopStack = cg.loopStack[:len(cg.loopStack)-1] }()
	return cg.genStmt(body)
}

// genSwitch compares the controlling value against every case in order and
// falls through to default, or past the body when there is none.
func (cg *CodeGen) genSwitch(n *SwitchStmt) error {
	seq := cg.newLabel()
	if err := cg.genExpr(n.Cond); err != nil {
		return err
	}
	cg.line("pop rax")
	for _, c := range n.Cases {
		l := fmt.Sprintf(".L.case.%d", cg.newLabel())
		cg.caseLabel[c] = l
		cg.line("cmp rax, %d", c.Val)
		cg.line("je %s", l)
	}
	if n.Default != nil {
		l := fmt.Sprintf(".L.case.%d", cg.newLabel())
		cg.caseLabel[n.Default] = l
		cg.line("jmp %s", l)
	} else {
		cg.line("jmp .L.end.%d", seq)
	}

	cg.loopStack = append(cg.loopStack, LoopLabel{Break: fmt.Sprintf(".L.end.%d", seq)})
	err := cg.genStmt(n.Body)
	cg.loopStack = cg.loopStack[:len(cg.loopStack)-1]
	if err != nil {
		return err
	}
	cg.label(".L.end.%d", seq)
	return nil
}
