// Package cpu executes the assembly produced by the compiler on a small
// simulated x86-64 machine.
package cpu

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"strings"

	"ccvm/pkg/asm"
)

// DataBase is the address at which the data image is loaded. Address 0 is
// left unused so that null pointers fault.
const DataBase = 8

// DefaultMemorySize is used when no size is configured.
const DefaultMemorySize = 65536

// ErrHalted is returned by Step once main has returned.
var ErrHalted = errors.New("cpu halted")

// RuntimeError is a fatal execution fault. Line is 1-based; Output holds
// everything the program printed before the fault.
type RuntimeError struct {
	Line        int
	Instruction string
	Func        string // enclosing function, if known
	Msg         string
	Output      string
	Err         error // underlying cause, if any
}

func (e *RuntimeError) Error() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "runtime error at line %d", e.Line)
	if e.Func != "" {
		fmt.Fprintf(&sb, " in %s", e.Func)
	}
	if e.Instruction != "" {
		fmt.Fprintf(&sb, " (%s)", e.Instruction)
	}
	sb.WriteString(": ")
	sb.WriteString(e.Msg)
	return sb.String()
}

func (e *RuntimeError) Unwrap() error { return e.Err }

// Frame is one entry of the call stack.
type Frame struct {
	Fn         *asm.Function
	ReturnLine int
}

// CPU is the machine state. The register file is a single byte buffer
// addressed through asm.Registers, so narrow registers alias wide ones.
type CPU struct {
	Memory []byte
	regs   [asm.RegisterFileSize]byte

	ZF, SF, OF, CF bool

	Prog      *asm.Program
	Fn        *asm.Function
	PC        int // index into Prog.Lines
	CallStack []Frame

	Halted bool
	Steps  int

	out      strings.Builder
	echo     io.Writer
	input    InputFunc
	maxSteps int
	trace    io.Writer
}

type config struct {
	input      InputFunc
	memorySize int
	maxSteps   int
	trace      io.Writer
	output     io.Writer
}

// Option configures a CPU.
type Option func(*config)

// WithInput sets the source of values for the read built-in.
func WithInput(in InputFunc) Option {
	return func(c *config) { c.input = in }
}

// WithMemorySize sets the size of memory in bytes.
func WithMemorySize(n int) Option {
	return func(c *config) { c.memorySize = n }
}

// WithMaxSteps aborts execution after n instructions; 0 means no limit.
func WithMaxSteps(n int) Option {
	return func(c *config) { c.maxSteps = n }
}

// WithTrace logs every executed instruction to w.
func WithTrace(w io.Writer) Option {
	return func(c *config) { c.trace = w }
}

// WithOutput copies program output to w as it is produced.
func WithOutput(w io.Writer) Option {
	return func(c *config) { c.output = w }
}

// New prepares a CPU to run prog from the start of main.
func New(prog *asm.Program, opts ...Option) (*CPU, error) {
	cfg := config{memorySize: DefaultMemorySize}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.input == nil {
		cfg.input = NoInput
	}

	if DataBase+len(prog.Data) > cfg.memorySize {
		return nil, &RuntimeError{Msg: fmt.Sprintf("data section (%d bytes) does not fit in %d bytes of memory", len(prog.Data), cfg.memorySize)}
	}
	entry, ok := prog.Funcs["main"]
	if !ok {
		return nil, &RuntimeError{Msg: "no main function"}
	}

	c := &CPU{
		Memory:   make([]byte, cfg.memorySize),
		Prog:     prog,
		Fn:       entry,
		PC:       entry.Entry,
		echo:     cfg.output,
		input:    cfg.input,
		maxSteps: cfg.maxSteps,
		trace:    cfg.trace,
	}
	copy(c.Memory[DataBase:], prog.Data)
	c.SetReg("rsp", uint64(len(c.Memory)))
	c.SetReg("rbp", uint64(len(c.Memory)))
	return c, nil
}

// Run loads text and executes it until main returns, returning everything
// the program printed. On failure the partial output is returned together
// with the error.
func Run(text string, opts ...Option) (string, error) {
	prog, err := asm.Load(text)
	if err != nil {
		var ae *asm.Error
		if errors.As(err, &ae) {
			return "", &RuntimeError{Line: ae.Line, Instruction: ae.Text, Msg: ae.Msg}
		}
		return "", err
	}
	c, err := New(prog, opts...)
	if err != nil {
		return "", err
	}
	err = c.Run()
	return c.Output(), err
}

// Output returns the program output so far.
func (c *CPU) Output() string { return c.out.String() }

func (c *CPU) emit(format string, args ...any) {
	s := fmt.Sprintf(format, args...)
	c.out.WriteString(s)
	if c.echo != nil {
		io.WriteString(c.echo, s)
	}
}

// Run steps until the machine halts or faults.
func (c *CPU) Run() error {
	for {
		err := c.Step()
		if errors.Is(err, ErrHalted) {
			return nil
		}
		if err != nil {
			return err
		}
	}
}

// Step executes the next instruction, skipping label and blank lines.
func (c *CPU) Step() error {
	if c.Halted {
		return ErrHalted
	}
	for c.PC < len(c.Prog.Code) && c.Prog.Code[c.PC] == nil {
		c.PC++
	}
	if c.PC >= len(c.Prog.Code) {
		return c.fault(nil, "execution ran past the end of the program")
	}
	if c.maxSteps > 0 && c.Steps >= c.maxSteps {
		return c.fault(c.Prog.Code[c.PC], "step limit of %d exceeded", c.maxSteps)
	}

	ins := c.Prog.Code[c.PC]
	if c.trace != nil {
		fmt.Fprintf(c.trace, "%5d %-12s %s\n", c.PC+1, c.Fn.Name, ins.Text)
	}
	c.Steps++
	next := c.PC + 1
	if err := c.exec(ins, &next); err != nil {
		return err
	}
	c.PC = next
	if c.Halted {
		return ErrHalted
	}
	return nil
}

// fault builds a RuntimeError for ins, or for the current line if ins is nil.
func (c *CPU) fault(ins *asm.Instruction, format string, args ...any) *RuntimeError {
	e := &RuntimeError{Line: c.PC + 1, Msg: fmt.Sprintf(format, args...), Output: c.out.String()}
	if ins != nil {
		e.Line = ins.Line + 1
		e.Instruction = ins.Text
	}
	if fn := c.Prog.FunctionAt(e.Line - 1); fn != nil {
		e.Func = fn.Name
	}
	return e
}

// Reg reads a register, zero-extended to 64 bits.
func (c *CPU) Reg(name string) uint64 {
	r := asm.Registers[name]
	return readLE(c.regs[r.Offset : r.Offset+r.Width])
}

// SetReg writes the low bytes of v into a register. Only the named width
// is written; the remaining bytes of the wider register are preserved.
func (c *CPU) SetReg(name string, v uint64) {
	r := asm.Registers[name]
	writeLE(c.regs[r.Offset:r.Offset+r.Width], v)
}

// ReadMem reads width bytes at addr.
func (c *CPU) ReadMem(addr int64, width int) (uint64, error) {
	if addr < 0 || addr+int64(width) > int64(len(c.Memory)) {
		return 0, fmt.Errorf("memory read of %d bytes at %d out of range", width, addr)
	}
	return readLE(c.Memory[addr : addr+int64(width)]), nil
}

// WriteMem writes the low width bytes of v at addr.
func (c *CPU) WriteMem(addr int64, width int, v uint64) error {
	if addr < 0 || addr+int64(width) > int64(len(c.Memory)) {
		return fmt.Errorf("memory write of %d bytes at %d out of range", width, addr)
	}
	writeLE(c.Memory[addr:addr+int64(width)], v)
	return nil
}

func (c *CPU) push(v uint64) error {
	sp := int64(c.Reg("rsp")) - 8
	if err := c.WriteMem(sp, 8, v); err != nil {
		return fmt.Errorf("stack overflow: %w", err)
	}
	c.SetReg("rsp", uint64(sp))
	return nil
}

func (c *CPU) pop() (uint64, error) {
	sp := int64(c.Reg("rsp"))
	v, err := c.ReadMem(sp, 8)
	if err != nil {
		return 0, fmt.Errorf("stack underflow: %w", err)
	}
	c.SetReg("rsp", uint64(sp+8))
	return v, nil
}

// GlobalAddr returns the address of a data label.
func (c *CPU) GlobalAddr(name string) (int64, bool) {
	off, ok := c.Prog.Globals[name]
	return int64(DataBase + off), ok
}

// lookup resolves names inside memory operands: registers first, then
// data labels.
func (c *CPU) lookup(name string) (int64, bool) {
	if _, ok := asm.Registers[name]; ok {
		return int64(c.Reg(name)), true
	}
	return c.GlobalAddr(name)
}

func readLE(b []byte) uint64 {
	switch len(b) {
	case 1:
		return uint64(b[0])
	case 2:
		return uint64(binary.LittleEndian.Uint16(b))
	case 4:
		return uint64(binary.LittleEndian.Uint32(b))
	}
	return binary.LittleEndian.Uint64(b)
}

func writeLE(b []byte, v uint64) {
	switch len(b) {
	case 1:
		b[0] = byte(v)
	case 2:
		binary.LittleEndian.PutUint16(b, uint16(v))
	case 4:
		binary.LittleEndian.PutUint32(b, uint32(v))
	default:
		binary.LittleEndian.PutUint64(b, v)
	}
}

// signExtend interprets the low width bytes of v as a signed value.
func signExtend(v uint64, width int) int64 {
	switch width {
	case 1:
		return int64(int8(v))
	case 2:
		return int64(int16(v))
	case 4:
		return int64(int32(v))
	}
	return int64(v)
}
