package compiler

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"ccvm/pkg/version"
	"ccvm/pkg/vfs"
)

// Macro is an object-like (no Args) or function-like #define.
type Macro struct {
	Args []string
	Body string
}

// Preprocessor expands #include and #define and checks #pragma ccvm
// version requirements. A file is included at most once per compile.
type Preprocessor struct {
	disk        *vfs.VirtualDisk
	includeDirs []string
	defines     map[string]Macro
	active      map[string]bool // include chain, for cycle detection
	done        map[string]bool
}

// NewPreprocessor returns a preprocessor that resolves <name> includes
// against disk and then includeDirs on the host.
func NewPreprocessor(disk *vfs.VirtualDisk, includeDirs ...string) *Preprocessor {
	if disk == nil {
		disk = vfs.NewStdDisk()
	}
	return &Preprocessor{
		disk:        disk,
		includeDirs: includeDirs,
		defines:     make(map[string]Macro),
		active:      make(map[string]bool),
		done:        make(map[string]bool),
	}
}

// Preprocess runs a fresh Preprocessor over src. Quoted includes are
// resolved relative to baseDir first.
func Preprocess(src, baseDir string, disk *vfs.VirtualDisk, includeDirs ...string) (string, error) {
	return NewPreprocessor(disk, includeDirs...).Run(src, baseDir)
}

func ppErrorf(line int, text, format string, args ...any) error {
	e := errorAt(StagePreprocess, nil, format, args...)
	e.Line, e.Col, e.Text = line, 1, text
	return e
}

// Run expands src. Directive lines become blank lines so that line numbers
// of the main file are preserved up to the first include.
func (pp *Preprocessor) Run(src, baseDir string) (string, error) {
	var out strings.Builder
	for i, line := range strings.Split(src, "\n") {
		lineNo := i + 1
		trimmed := strings.TrimSpace(line)
		if !strings.HasPrefix(trimmed, "#") {
			out.WriteString(pp.expand(line, nil))
			out.WriteByte('\n')
			continue
		}

		body := strings.TrimSpace(trimmed[1:])
		end := 0
		for end < len(body) && isAlpha(body[end]) {
			end++
		}
		directive, rest := body[:end], strings.TrimSpace(body[end:])
		switch directive {
		case "define":
			if err := pp.define(rest, lineNo); err != nil {
				return "", err
			}
		case "undef":
			delete(pp.defines, rest)
		case "include":
			text, err := pp.include(rest, baseDir, lineNo)
			if err != nil {
				return "", err
			}
			out.WriteString(text)
		case "pragma":
			if err := pp.pragma(rest, lineNo); err != nil {
				return "", err
			}
		case "":
			// null directive
		default:
			return "", ppErrorf(lineNo, trimmed, "unsupported directive #%s", directive)
		}
		out.WriteByte('\n')
	}
	return out.String(), nil
}

// define parses "NAME body" or "NAME(a, b) body". The parameter list must
// follow the name without a space.
func (pp *Preprocessor) define(rest string, lineNo int) error {
	end := 0
	for end < len(rest) && isAlnum(rest[end]) {
		end++
	}
	if end == 0 {
		return ppErrorf(lineNo, rest, "macro name missing")
	}
	name, rest := rest[:end], rest[end:]

	var m Macro
	if strings.HasPrefix(rest, "(") {
		m.Args = []string{}
		params, body, ok := strings.Cut(rest[1:], ")")
		if !ok {
			return ppErrorf(lineNo, name, "unterminated macro parameter list")
		}
		for _, a := range strings.Split(params, ",") {
			if a = strings.TrimSpace(a); a != "" {
				m.Args = append(m.Args, a)
			}
		}
		m.Body = strings.TrimSpace(body)
	} else {
		m.Body = strings.TrimSpace(rest)
	}
	pp.defines[name] = m
	return nil
}

// include resolves and recursively expands one #include.
func (pp *Preprocessor) include(rest, baseDir string, lineNo int) (string, error) {
	var name string
	var system bool
	switch {
	case strings.HasPrefix(rest, `"`) && strings.Count(rest, `"`) >= 2:
		name = rest[1 : 1+strings.Index(rest[1:], `"`)]
	case strings.HasPrefix(rest, "<") && strings.Contains(rest, ">"):
		name = rest[1:strings.Index(rest, ">")]
		system = true
	default:
		return "", ppErrorf(lineNo, rest, "invalid include directive")
	}

	content, key, dir, err := pp.locate(name, baseDir, system)
	if err != nil {
		return "", ppErrorf(lineNo, name, "cannot include %s: %v", name, err)
	}
	if pp.active[key] {
		return "", ppErrorf(lineNo, name, "circular include of %s", name)
	}
	if pp.done[key] {
		return "", nil
	}
	pp.done[key] = true

	pp.active[key] = true
	defer delete(pp.active, key)
	return pp.Run(string(content), dir)
}

// locate finds an include. Quoted names search baseDir, then the include
// directories, then the disk; angle-bracket names skip baseDir and try the
// disk first. key identifies the file for cycle detection.
func (pp *Preprocessor) locate(name, baseDir string, system bool) (content []byte, key, dir string, err error) {
	fromDisk := func() bool {
		data, derr := pp.disk.Read(name)
		if derr != nil {
			return false
		}
		content, key, dir = data, "vfs:"+name, baseDir
		return true
	}
	fromHost := func(root string) bool {
		path, aerr := filepath.Abs(filepath.Join(root, name))
		if aerr != nil {
			return false
		}
		data, rerr := os.ReadFile(path)
		if rerr != nil {
			return false
		}
		content, key, dir = data, path, filepath.Dir(path)
		return true
	}

	if system && fromDisk() {
		return
	}
	if !system && fromHost(baseDir) {
		return
	}
	for _, d := range pp.includeDirs {
		if d != "" && fromHost(d) {
			return
		}
	}
	if !system && fromDisk() {
		return
	}
	return nil, "", "", vfs.ErrFileNotFound
}

// pragma handles #pragma ccvm "<constraint>"; other pragmas are ignored.
func (pp *Preprocessor) pragma(rest string, lineNo int) error {
	tool, arg, _ := strings.Cut(rest, " ")
	if tool != "ccvm" {
		return nil
	}
	constraint, err := strconv.Unquote(strings.TrimSpace(arg))
	if err != nil {
		return ppErrorf(lineNo, arg, "#pragma ccvm expects a quoted version constraint")
	}
	ok, err := version.Satisfies(constraint)
	if err != nil {
		return ppErrorf(lineNo, constraint, "%v", err)
	}
	if !ok {
		return ppErrorf(lineNo, constraint, "requires ccvm %s, have %s", constraint, version.Version)
	}
	return nil
}

// expand substitutes macros in input on identifier boundaries, leaving
// string and character literals untouched. Bodies are rescanned at the
// point of use; a macro named in hidden is being expanded already and is
// copied through verbatim, which stops self-reference.
func (pp *Preprocessor) expand(input string, hidden map[string]bool) string {
	if len(pp.defines) == 0 {
		return input
	}
	return scanIdents(input, func(word, rest string) (string, int) {
		m, ok := pp.defines[word]
		if !ok || hidden[word] {
			return word, 0
		}
		inner := withName(hidden, word)
		if m.Args == nil {
			return pp.expand(m.Body, inner), 0
		}

		args, next, ok := splitMacroArgs(rest, 0)
		if len(m.Args) == 0 && len(args) == 1 && args[0] == "" {
			args = nil
		}
		if !ok || len(args) != len(m.Args) {
			return word, 0
		}
		params := make(map[string]string, len(m.Args))
		for k, name := range m.Args {
			params[name] = pp.expand(args[k], hidden)
		}
		return pp.expand(substitute(m.Body, params), inner), next
	})
}

// substitute replaces parameter names in body in a single pass, so an
// argument that spells another parameter's name is left alone.
func substitute(body string, params map[string]string) string {
	return scanIdents(body, func(word, _ string) (string, int) {
		if v, ok := params[word]; ok {
			return v, 0
		}
		return word, 0
	})
}

// scanIdents copies input, replacing each identifier outside literals with
// the result of repl. repl also sees the text after the identifier and
// returns how many bytes of it it consumed.
func scanIdents(input string, repl func(word, rest string) (string, int)) string {
	var sb strings.Builder
	n := len(input)
	for i := 0; i < n; {
		c := input[i]
		switch {
		case c == '"' || c == '\'':
			j := skipLiteral(input, i)
			sb.WriteString(input[i:j])
			i = j

		case isAlpha(c):
			start := i
			for i < n && isAlnum(input[i]) {
				i++
			}
			text, used := repl(input[start:i], input[i:])
			sb.WriteString(text)
			i += used

		default:
			sb.WriteByte(c)
			i++
		}
	}
	return sb.String()
}

// withName returns a copy of hidden that also contains name.
func withName(hidden map[string]bool, name string) map[string]bool {
	m := make(map[string]bool, len(hidden)+1)
	for k := range hidden {
		m[k] = true
	}
	m[name] = true
	return m
}

// skipLiteral returns the index just past the quoted literal at input[i].
func skipLiteral(input string, i int) int {
	quote := input[i]
	for i++; i < len(input); i++ {
		switch input[i] {
		case '\\':
			i++
		case quote:
			return i + 1
		}
	}
	return len(input)
}

// splitMacroArgs parses "(a, f(b, c))" starting at or after i and returns
// the top-level arguments and the index after the closing parenthesis.
func splitMacroArgs(input string, i int) (args []string, next int, ok bool) {
	for i < len(input) && (input[i] == ' ' || input[i] == '\t') {
		i++
	}
	if i >= len(input) || input[i] != '(' {
		return nil, 0, false
	}
	depth, start := 0, i+1
	for ; i < len(input); i++ {
		switch input[i] {
		case '(':
			depth++
		case ')':
			depth--
			if depth == 0 {
				args = append(args, strings.TrimSpace(input[start:i]))
				return args, i + 1, true
			}
		case ',':
			if depth == 1 {
				args = append(args, strings.TrimSpace(input[start:i]))
				start = i + 1
			}
		}
	}
	return nil, 0, false
}
