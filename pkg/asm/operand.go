package asm

import (
	"fmt"
	"math"
	"slices"
	"strconv"
	"strings"
)

// Register locates a register name inside the shared register file.
type Register struct {
	Offset int
	Width  int
}

// RegisterFileSize is the byte size of the register file described by
// Registers.
const RegisterFileSize = 17*8 + 8*16

// Registers maps every register name to its slot. Narrow names overlap the
// low bytes of their 64-bit register (ah, bh, ch and dh the second byte),
// so a write through one name is visible through the others.
var Registers = buildRegisters()

func buildRegisters() map[string]Register {
	regs := make(map[string]Register)
	legacy := []struct {
		q, d, w, b, h string
	}{
		{"rax", "eax", "ax", "al", "ah"},
		{"rbx", "ebx", "bx", "bl", "bh"},
		{"rcx", "ecx", "cx", "cl", "ch"},
		{"rdx", "edx", "dx", "dl", "dh"},
		{"rsi", "esi", "si", "sil", ""},
		{"rdi", "edi", "di", "dil", ""},
		{"rbp", "ebp", "bp", "bpl", ""},
		{"rsp", "esp", "sp", "spl", ""},
	}
	for i, r := range legacy {
		off := i * 8
		regs[r.q] = Register{off, 8}
		regs[r.d] = Register{off, 4}
		regs[r.w] = Register{off, 2}
		regs[r.b] = Register{off, 1}
		if r.h != "" {
			regs[r.h] = Register{off + 1, 1}
		}
	}
	for n := 8; n <= 15; n++ {
		off := n * 8
		name := fmt.Sprintf("r%d", n)
		regs[name] = Register{off, 8}
		regs[name+"d"] = Register{off, 4}
		regs[name+"w"] = Register{off, 2}
		regs[name+"b"] = Register{off, 1}
	}
	regs["rip"] = Register{16 * 8, 8}
	for n := 0; n < 8; n++ {
		regs[fmt.Sprintf("xmm%d", n)] = Register{17*8 + n*16, 8}
	}
	return regs
}

// OperandKind classifies an operand's addressing mode.
type OperandKind int

const (
	KindRegister  OperandKind = iota
	KindMemory                // [expr], optionally with a size prefix
	KindImmediate             // integer or float literal
	KindAddress               // offset NAME
	KindLabel                 // jump or call target
)

var operandKindNames = [...]string{"register", "memory", "immediate", "address", "label"}

func (k OperandKind) String() string { return operandKindNames[k] }

// Operand is one decoded operand.
type Operand struct {
	Kind  OperandKind
	Text  string
	Reg   string
	Width int // register or memory width in bytes; 0 when not implied
	Imm   int64
	Addr  Expr   // KindMemory
	Name  string // KindAddress, KindLabel
}

// Instruction is one decoded line.
type Instruction struct {
	Line     int
	Text     string
	Mnemonic string
	Operands []Operand
}

func (ins *Instruction) String() string { return ins.Text }

// arity lists the accepted operand counts per mnemonic.
var arity = map[string][]int{
	"push": {1}, "pop": {1},
	"mov": {2}, "lea": {2}, "movsx": {2}, "movsxd": {2}, "movzx": {2}, "movzb": {2},
	"movss": {2}, "movsd": {2},
	"add": {2}, "sub": {2}, "imul": {2, 3}, "idiv": {1}, "cqo": {0},
	"and": {2}, "or": {2}, "xor": {2}, "not": {1}, "neg": {1},
	"shl": {2}, "sal": {2}, "shr": {2}, "sar": {2},
	"cmp": {2},
	"sete": {1}, "setne": {1}, "setl": {1}, "setle": {1}, "setg": {1}, "setge": {1},
	"jmp": {1}, "je": {1}, "jz": {1}, "jne": {1}, "jnz": {1},
	"jl": {1}, "jle": {1}, "jg": {1}, "jge": {1},
	"call": {1}, "ret": {0}, "print": {0}, "nop": {0},
}

// IsJump reports whether mnemonic transfers control to a label operand.
func IsJump(mnemonic string) bool {
	return mnemonic == "call" || strings.HasPrefix(mnemonic, "j")
}

// ParseInstruction splits line into a mnemonic and comma-separated
// operands and decodes each operand.
func ParseInstruction(line string) (*Instruction, error) {
	line = strings.TrimSpace(line)
	mnemonic, rest, _ := strings.Cut(line, " ")
	mnemonic = strings.ToLower(mnemonic)
	ins := &Instruction{Text: line, Mnemonic: mnemonic}

	counts, ok := arity[mnemonic]
	if !ok {
		return nil, fmt.Errorf("unknown instruction %q", mnemonic)
	}

	var fields []string
	if rest = strings.TrimSpace(rest); rest != "" {
		fields = splitOperands(rest)
	}
	if !slices.Contains(counts, len(fields)) {
		return nil, fmt.Errorf("%s expects %s operands, got %d", mnemonic, joinInts(counts), len(fields))
	}

	for _, f := range fields {
		var op Operand
		var err error
		if IsJump(mnemonic) {
			op, err = parseTarget(f)
		} else {
			op, err = ParseOperand(f)
		}
		if err != nil {
			return nil, err
		}
		ins.Operands = append(ins.Operands, op)
	}
	return ins, nil
}

// splitOperands splits on commas outside brackets.
func splitOperands(s string) []string {
	var out []string
	depth, start := 0, 0
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '[', '(':
			depth++
		case ']', ')':
			depth--
		case ',':
			if depth == 0 {
				out = append(out, strings.TrimSpace(s[start:i]))
				start = i + 1
			}
		}
	}
	return append(out, strings.TrimSpace(s[start:]))
}

func parseTarget(text string) (Operand, error) {
	if !isLabel(text) {
		return Operand{}, fmt.Errorf("invalid jump target %q", text)
	}
	return Operand{Kind: KindLabel, Text: text, Name: text}, nil
}

var ptrWidths = map[string]int{"byte": 1, "word": 2, "dword": 4, "qword": 8}

// ParseOperand classifies a single operand.
func ParseOperand(text string) (Operand, error) {
	text = strings.TrimSpace(text)
	op := Operand{Text: text}
	lower := strings.ToLower(text)

	if r, ok := Registers[lower]; ok {
		op.Kind, op.Reg, op.Width = KindRegister, lower, r.Width
		return op, nil
	}

	if name, ok := strings.CutPrefix(lower, "offset "); ok {
		name = strings.TrimSpace(text[len(text)-len(name):])
		if !isLabel(name) {
			return op, fmt.Errorf("invalid symbol %q", name)
		}
		op.Kind, op.Name = KindAddress, name
		return op, nil
	}

	if open := strings.IndexByte(text, '['); open >= 0 {
		if !strings.HasSuffix(text, "]") {
			return op, fmt.Errorf("unterminated memory operand %q", text)
		}
		if prefix := strings.Fields(strings.ToLower(text[:open])); len(prefix) > 0 {
			w, ok := ptrWidths[prefix[0]]
			if !ok || len(prefix) != 2 || prefix[1] != "ptr" {
				return op, fmt.Errorf("invalid size prefix %q", text[:open])
			}
			op.Width = w
		}
		addr, err := ParseExpr(text[open+1 : len(text)-1])
		if err != nil {
			return op, err
		}
		op.Kind, op.Addr = KindMemory, addr
		return op, nil
	}

	v, err := ParseImmediate(text)
	if err != nil {
		return op, err
	}
	op.Kind, op.Imm = KindImmediate, v
	return op, nil
}

// ParseImmediate decodes hex, decimal and float literals. Floats are
// returned as their IEEE-754 binary64 bit pattern.
func ParseImmediate(text string) (int64, error) {
	if v, err := ParseInt(text); err == nil {
		return v, nil
	}
	lower := strings.ToLower(text)
	isHex := strings.HasPrefix(strings.TrimPrefix(lower, "-"), "0x")
	if !isHex && strings.ContainsAny(lower, ".e") {
		f, err := strconv.ParseFloat(strings.TrimSuffix(lower, "f"), 64)
		if err == nil {
			return int64(math.Float64bits(f)), nil
		}
	}
	return 0, fmt.Errorf("invalid operand %q", text)
}

func joinInts(xs []int) string {
	parts := make([]string, len(xs))
	for i, x := range xs {
		parts[i] = strconv.Itoa(x)
	}
	return strings.Join(parts, " or ")
}
