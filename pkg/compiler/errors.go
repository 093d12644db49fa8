package compiler

import (
	"fmt"
	"strings"
)

// Stage names reported in CompileError.Stage.
const (
	StagePreprocess = "preprocess"
	StageLex        = "lex"
	StageParse      = "parse"
	StageType       = "type"
	StageCodegen    = "codegen"
)

// CompileError is the single error type returned by every compiler stage.
// Line and Col are 1-based and zero when no position is known.
type CompileError struct {
	Stage string
	Msg   string
	Text  string // offending token or character
	Line  int
	Col   int

	// Snippet is the offending source line, filled in by Compile when the
	// source text is available.
	Snippet string
}

func (e *CompileError) Error() string {
	var sb strings.Builder
	sb.WriteString(e.Stage)
	sb.WriteString(" error")
	if e.Line > 0 {
		fmt.Fprintf(&sb, " at line %d:%d", e.Line, e.Col)
	}
	if e.Text != "" {
		fmt.Fprintf(&sb, " near %q", e.Text)
	}
	sb.WriteString(": ")
	sb.WriteString(e.Msg)
	if e.Snippet != "" {
		fmt.Fprintf(&sb, "\n  |> %s", e.Snippet)
	}
	return sb.String()
}

// errorAt builds a CompileError pointing at tok.
func errorAt(stage string, tok *Token, format string, args ...any) *CompileError {
	e := &CompileError{Stage: stage, Msg: fmt.Sprintf(format, args...)}
	if tok != nil {
		e.Text = tok.Lexeme
		if tok.Type == EOF {
			e.Text = "EOF"
		}
		e.Line = tok.Line
		e.Col = tok.Col
	}
	return e
}

// attachSnippet fills in the source line for err if it is a CompileError.
func attachSnippet(err error, src string) error {
	ce, ok := err.(*CompileError)
	if !ok || ce.Line <= 0 || ce.Snippet != "" {
		return err
	}
	lines := strings.Split(src, "\n")
	if ce.Line <= len(lines) {
		ce.Snippet = strings.TrimSpace(lines[ce.Line-1])
	}
	return ce
}
