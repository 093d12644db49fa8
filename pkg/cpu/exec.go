package cpu

import (
	"fmt"
	"math"
	"math/big"

	"ccvm/pkg/asm"
)

// opWidth is the access width of op. Memory operands without a size prefix
// take the width of the register on the other side, or 8.
func opWidth(op, other *asm.Operand) int {
	switch {
	case op.Kind == asm.KindRegister:
		return op.Width
	case op.Kind == asm.KindMemory && op.Width > 0:
		return op.Width
	case other != nil && other.Kind == asm.KindRegister:
		return other.Width
	}
	return 8
}

func (c *CPU) effectiveAddr(op *asm.Operand) (int64, error) {
	if op.Kind != asm.KindMemory {
		return 0, fmt.Errorf("%s is not a memory operand", op.Text)
	}
	return op.Addr.Eval(c.lookup)
}

// read fetches the value of op at the given width, zero-extended.
func (c *CPU) read(op *asm.Operand, width int) (uint64, error) {
	switch op.Kind {
	case asm.KindRegister:
		return c.Reg(op.Reg), nil
	case asm.KindImmediate:
		return uint64(op.Imm), nil
	case asm.KindAddress:
		addr, ok := c.GlobalAddr(op.Name)
		if !ok {
			return 0, fmt.Errorf("unknown global %s", op.Name)
		}
		return uint64(addr), nil
	case asm.KindMemory:
		addr, err := c.effectiveAddr(op)
		if err != nil {
			return 0, err
		}
		return c.ReadMem(addr, width)
	}
	return 0, fmt.Errorf("cannot read %s operand %s", op.Kind, op.Text)
}

// readSigned is read followed by sign extension from width.
func (c *CPU) readSigned(op *asm.Operand, width int) (int64, error) {
	v, err := c.read(op, width)
	if err != nil {
		return 0, err
	}
	if op.Kind == asm.KindImmediate {
		return op.Imm, nil
	}
	return signExtend(v, width), nil
}

// write stores v into op at the given width.
func (c *CPU) write(op *asm.Operand, width int, v uint64) error {
	switch op.Kind {
	case asm.KindRegister:
		c.SetReg(op.Reg, v)
		return nil
	case asm.KindMemory:
		addr, err := c.effectiveAddr(op)
		if err != nil {
			return err
		}
		return c.WriteMem(addr, width, v)
	}
	return fmt.Errorf("cannot write to %s operand %s", op.Kind, op.Text)
}

// setResultFlags sets ZF and SF from r truncated to width.
func (c *CPU) setResultFlags(r int64, width int) {
	v := signExtend(uint64(r), width)
	c.ZF = v == 0
	c.SF = v < 0
}

func (c *CPU) cond(mnemonic string) bool {
	switch mnemonic {
	case "je", "jz", "sete":
		return c.ZF
	case "jne", "jnz", "setne":
		return !c.ZF
	case "jl", "setl":
		return c.SF != c.OF
	case "jle", "setle":
		return c.ZF || c.SF != c.OF
	case "jg", "setg":
		return !c.ZF && c.SF == c.OF
	case "jge", "setge":
		return c.SF == c.OF
	}
	return true // jmp
}

func (c *CPU) exec(ins *asm.Instruction, next *int) error {
	if err := c.dispatch(ins, next); err != nil {
		if _, ok := err.(*RuntimeError); ok {
			return err
		}
		re := c.fault(ins, "%v", err)
		re.Err = err
		return re
	}
	return nil
}

func (c *CPU) dispatch(ins *asm.Instruction, next *int) error {
	ops := ins.Operands
	var dst, src *asm.Operand
	if len(ops) > 0 {
		dst = &ops[0]
	}
	if len(ops) > 1 {
		src = &ops[1]
	}

	switch ins.Mnemonic {
	case "nop":

	case "push":
		v, err := c.read(dst, 8)
		if err != nil {
			return err
		}
		return c.push(v)

	case "pop":
		v, err := c.pop()
		if err != nil {
			return err
		}
		return c.write(dst, opWidth(dst, nil), v)

	case "mov", "movss", "movsd":
		w := opWidth(dst, src)
		switch ins.Mnemonic {
		case "movss":
			w = 4
		case "movsd":
			w = 8
		}
		v, err := c.read(src, opWidth(src, dst))
		if err != nil {
			return err
		}
		return c.write(dst, w, v)

	case "lea":
		addr, err := c.effectiveAddr(src)
		if err != nil {
			return err
		}
		return c.write(dst, opWidth(dst, nil), uint64(addr))

	case "movsx", "movsxd":
		w := opWidth(src, nil)
		if ins.Mnemonic == "movsxd" && src.Kind == asm.KindMemory && src.Width == 0 {
			w = 4
		}
		v, err := c.read(src, w)
		if err != nil {
			return err
		}
		return c.write(dst, opWidth(dst, nil), uint64(signExtend(v, w)))

	case "movzx", "movzb":
		w := opWidth(src, nil)
		if src.Kind == asm.KindMemory && src.Width == 0 {
			w = 1
		}
		v, err := c.read(src, w)
		if err != nil {
			return err
		}
		return c.write(dst, opWidth(dst, nil), v&widthMask(w))

	case "add", "sub", "and", "or", "xor", "imul":
		return c.arith(ins, ops)

	case "not", "neg":
		w := opWidth(dst, nil)
		a, err := c.readSigned(dst, w)
		if err != nil {
			return err
		}
		r := ^a
		if ins.Mnemonic == "neg" {
			r = -a
			c.CF = a != 0
			c.OF = a == math.MinInt64
			c.setResultFlags(r, w)
		}
		return c.write(dst, w, uint64(r))

	case "shl", "sal", "shr", "sar":
		w := opWidth(dst, nil)
		n, err := c.read(src, opWidth(src, nil))
		if err != nil {
			return err
		}
		n &= 63
		a, err := c.read(dst, w)
		if err != nil {
			return err
		}
		var r uint64
		switch ins.Mnemonic {
		case "shl", "sal":
			r = a << n
		case "shr":
			r = (a & widthMask(w)) >> n
		case "sar":
			r = uint64(signExtend(a, w) >> n)
		}
		c.setResultFlags(int64(r), w)
		return c.write(dst, w, r)

	case "cqo":
		if int64(c.Reg("rax")) < 0 {
			c.SetReg("rdx", math.MaxUint64)
		} else {
			c.SetReg("rdx", 0)
		}

	case "idiv":
		return c.idiv(dst)

	case "cmp":
		w := opWidth(dst, src)
		a, err := c.readSigned(dst, w)
		if err != nil {
			return err
		}
		b, err := c.readSigned(src, opWidth(src, dst))
		if err != nil {
			return err
		}
		c.subFlags(a, b, w)

	case "sete", "setne", "setl", "setle", "setg", "setge":
		var v uint64
		if c.cond(ins.Mnemonic) {
			v = 1
		}
		return c.write(dst, 1, v)

	case "jmp", "je", "jz", "jne", "jnz", "jl", "jle", "jg", "jge":
		line, ok := c.Fn.Labels[dst.Name]
		if !ok {
			return fmt.Errorf("unknown label %s in %s", dst.Name, c.Fn.Name)
		}
		if c.cond(ins.Mnemonic) {
			*next = line
		}

	case "call":
		return c.call(dst.Name, next)

	case "ret":
		return c.ret(next)

	case "print":
		c.emit("print rax value:%d\n", int64(c.Reg("rax")))

	default:
		return fmt.Errorf("unsupported instruction %s", ins.Mnemonic)
	}
	return nil
}

func widthMask(w int) uint64 {
	if w >= 8 {
		return math.MaxUint64
	}
	return 1<<(8*w) - 1
}

// subFlags sets all four flags from a - b.
func (c *CPU) subFlags(a, b int64, w int) int64 {
	r := a - b
	c.setResultFlags(r, w)
	c.CF = uint64(a) < uint64(b)
	c.OF = (a^b)&(a^r) < 0
	return r
}

func (c *CPU) arith(ins *asm.Instruction, ops []asm.Operand) error {
	dst, src := &ops[0], &ops[1]
	w := opWidth(dst, src)

	a, err := c.readSigned(dst, w)
	if err != nil {
		return err
	}
	// three-operand imul: dst = src * imm
	if len(ops) == 3 {
		if a, err = c.readSigned(src, opWidth(src, dst)); err != nil {
			return err
		}
		src = &ops[2]
	}
	b, err := c.readSigned(src, opWidth(src, dst))
	if err != nil {
		return err
	}

	var r int64
	switch ins.Mnemonic {
	case "add":
		r = a + b
		c.setResultFlags(r, w)
		c.CF = uint64(r) < uint64(a)
		c.OF = (a >= 0) == (b >= 0) && (r >= 0) != (a >= 0)
	case "sub":
		r = c.subFlags(a, b, w)
	case "imul":
		r = a * b
		c.setResultFlags(r, w)
		c.OF = a != 0 && (r/a != b || (a == -1 && b == math.MinInt64))
		c.CF = c.OF
	default:
		switch ins.Mnemonic {
		case "and":
			r = a & b
		case "or":
			r = a | b
		case "xor":
			r = a ^ b
		}
		c.setResultFlags(r, w)
		c.CF, c.OF = false, false
	}
	return c.write(dst, w, uint64(r))
}

// idiv divides rdx:rax by the operand, leaving the quotient in rax and the
// remainder in rdx. Both truncate toward zero.
func (c *CPU) idiv(op *asm.Operand) error {
	w := opWidth(op, nil)
	d, err := c.readSigned(op, w)
	if err != nil {
		return err
	}
	if d == 0 {
		return fmt.Errorf("division by zero")
	}

	lo, hi := int64(c.Reg("rax")), int64(c.Reg("rdx"))
	if hi == lo>>63 {
		if lo == math.MinInt64 && d == -1 {
			return fmt.Errorf("division overflow")
		}
		c.SetReg("rax", uint64(lo/d))
		c.SetReg("rdx", uint64(lo%d))
		return nil
	}

	// 128-bit dividend
	dividend := new(big.Int).Lsh(big.NewInt(hi), 64)
	dividend.Add(dividend, new(big.Int).SetUint64(uint64(lo)))
	q, r := new(big.Int).QuoRem(dividend, big.NewInt(d), new(big.Int))
	if !q.IsInt64() {
		return fmt.Errorf("division overflow")
	}
	c.SetReg("rax", uint64(q.Int64()))
	c.SetReg("rdx", uint64(r.Int64()))
	return nil
}

// call transfers control to a function defined in the program, or runs a
// built-in when no such function exists.
func (c *CPU) call(name string, next *int) error {
	fn, ok := c.Prog.Funcs[name]
	if !ok {
		return c.builtin(name)
	}
	if err := c.push(uint64(*next)); err != nil {
		return err
	}
	c.CallStack = append(c.CallStack, Frame{Fn: c.Fn, ReturnLine: *next})
	c.Fn = fn
	*next = fn.Entry
	return nil
}

// ret returns to the caller recorded on the call stack. Returning from the
// outermost main halts the machine and reports rax.
func (c *CPU) ret(next *int) error {
	if len(c.CallStack) == 0 {
		if c.Fn.Name != "main" {
			return fmt.Errorf("ret from %s with an empty call stack", c.Fn.Name)
		}
		c.emit("return value:%d\n", int64(c.Reg("rax")))
		c.Halted = true
		return nil
	}
	if _, err := c.pop(); err != nil {
		return err
	}
	top := c.CallStack[len(c.CallStack)-1]
	c.CallStack = c.CallStack[:len(c.CallStack)-1]
	c.Fn = top.Fn
	*next = top.ReturnLine
	return nil
}

func (c *CPU) builtin(name string) error {
	switch name {
	case "read":
		v, err := c.input()
		if err != nil {
			return fmt.Errorf("read: %w", err)
		}
		if err := c.WriteMem(int64(c.Reg("rdi")), 8, uint64(v)); err != nil {
			return fmt.Errorf("read: %w", err)
		}
		c.SetReg("rax", uint64(v))
	case "write":
		c.emit("%d\n", int64(c.Reg("rdi")))
		c.SetReg("rax", 0)
	default:
		return fmt.Errorf("unknown function %s", name)
	}
	return nil
}
