// Package asm loads the line-oriented Intel-syntax assembly produced by the
// compiler. Load is the interpreter's first pass: it decodes every
// instruction and builds the data image and the per-function label tables.
package asm

import (
	"fmt"
	"strconv"
	"strings"
)

// Error is a decoding failure. Line is 1-based.
type Error struct {
	Line int
	Text string
	Msg  string
}

func (e *Error) Error() string {
	if e.Text == "" {
		return fmt.Sprintf("line %d: %s", e.Line, e.Msg)
	}
	return fmt.Sprintf("line %d: %s: %s", e.Line, e.Text, e.Msg)
}

func errorf(lineNo int, text, format string, args ...any) *Error {
	return &Error{Line: lineNo, Text: text, Msg: fmt.Sprintf(format, args...)}
}

// Function is one global label in the text section together with the local
// (.L) labels that follow it. Line numbers are 0-based indexes into
// Program.Lines.
type Function struct {
	Name    string
	Entry   int
	RetLine int // -1 when the function has no ret
	Labels  map[string]int
}

// Program is the result of pass 1.
type Program struct {
	Lines   []string
	Code    []*Instruction // parallel to Lines; nil for labels, directives and blanks
	Data    []byte
	Globals map[string]int // data label -> offset into Data
	Funcs   map[string]*Function
	Exports []string // names listed by .global
}

// Load splits text into lines and runs pass 1 over it.
func Load(text string) (*Program, error) {
	lines := strings.Split(text, "\n")
	p := &Program{
		Lines:   lines,
		Code:    make([]*Instruction, len(lines)),
		Globals: make(map[string]int),
		Funcs:   make(map[string]*Function),
	}

	inData := false
	var fn *Function
	var exportLines []int
	for i, raw := range lines {
		lineNo := i + 1
		line := strings.TrimSpace(stripComments(raw))
		if line == "" {
			continue
		}

		if label, ok := strings.CutSuffix(line, ":"); ok && isLabel(label) {
			switch {
			case inData:
				if _, dup := p.Globals[label]; dup {
					return nil, errorf(lineNo, label, "duplicate data label")
				}
				p.Globals[label] = len(p.Data)
			case strings.HasPrefix(label, ".L"):
				if fn == nil {
					return nil, errorf(lineNo, label, "local label outside a function")
				}
				if _, dup := fn.Labels[label]; dup {
					return nil, errorf(lineNo, label, "duplicate label in %s", fn.Name)
				}
				fn.Labels[label] = i
			default:
				if _, dup := p.Funcs[label]; dup {
					return nil, errorf(lineNo, label, "duplicate function")
				}
				fn = &Function{Name: label, Entry: i, RetLine: -1, Labels: make(map[string]int)}
				p.Funcs[label] = fn
			}
			continue
		}

		if strings.HasPrefix(line, ".") {
			directive, arg, _ := strings.Cut(line, " ")
			arg = strings.TrimSpace(arg)
			switch directive {
			case ".data":
				inData = true
			case ".text":
				inData = false
			case ".intel_syntax", ".section":
			case ".global", ".globl":
				p.Exports = append(p.Exports, arg)
				exportLines = append(exportLines, lineNo)
			case ".byte", ".zero", ".quad":
				if !inData {
					return nil, errorf(lineNo, line, "data directive outside .data")
				}
				if err := p.emitData(directive, arg); err != nil {
					return nil, errorf(lineNo, line, "%v", err)
				}
			default:
				return nil, errorf(lineNo, line, "unknown directive")
			}
			continue
		}

		if inData {
			return nil, errorf(lineNo, line, "instruction in .data")
		}
		if fn == nil {
			return nil, errorf(lineNo, line, "instruction outside a function")
		}
		ins, err := ParseInstruction(line)
		if err != nil {
			return nil, errorf(lineNo, line, "%v", err)
		}
		ins.Line = i
		p.Code[i] = ins
		if ins.Mnemonic == "ret" {
			fn.RetLine = i
		}
	}
	for k, name := range p.Exports {
		_, isFunc := p.Funcs[name]
		_, isData := p.Globals[name]
		if !isFunc && !isData {
			return nil, errorf(exportLines[k], name, "undefined global symbol")
		}
	}
	return p, nil
}

func (p *Program) emitData(directive, arg string) error {
	v, err := ParseInt(arg)
	if err != nil {
		return err
	}
	switch directive {
	case ".byte":
		if v < -128 || v > 255 {
			return fmt.Errorf("byte value %d out of range", v)
		}
		p.Data = append(p.Data, byte(v))
	case ".zero":
		if v < 0 {
			return fmt.Errorf("negative size %d", v)
		}
		p.Data = append(p.Data, make([]byte, v)...)
	case ".quad":
		for i := 0; i < 8; i++ {
			p.Data = append(p.Data, byte(v))
			v >>= 8
		}
	}
	return nil
}

// FunctionAt returns the function whose body contains line.
func (p *Program) FunctionAt(line int) *Function {
	var best *Function
	for _, fn := range p.Funcs {
		if fn.Entry <= line && (best == nil || fn.Entry > best.Entry) {
			best = fn
		}
	}
	return best
}

// stripComments drops everything after '#' or ';'.
func stripComments(line string) string {
	if i := strings.IndexAny(line, "#;"); i >= 0 {
		return line[:i]
	}
	return line
}

func isLabel(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c == '_' || c == '.' || c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z':
		case c >= '0' && c <= '9' && i > 0:
		default:
			return false
		}
	}
	return true
}

// ParseInt accepts decimal and 0x-prefixed hex integers, optionally negative.
func ParseInt(s string) (int64, error) {
	s = strings.TrimSpace(s)
	neg := strings.HasPrefix(s, "-")
	digits := strings.TrimPrefix(s, "-")
	var u uint64
	var err error
	if strings.HasPrefix(digits, "0x") || strings.HasPrefix(digits, "0X") {
		u, err = strconv.ParseUint(digits[2:], 16, 64)
	} else {
		u, err = strconv.ParseUint(digits, 10, 64)
	}
	if err != nil {
		return 0, fmt.Errorf("invalid integer %q", s)
	}
	if neg {
		return -int64(u), nil
	}
	return int64(u), nil
}
