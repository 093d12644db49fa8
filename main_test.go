package main

import (
	"bytes"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"ccvm/pkg/compiler"
	"ccvm/pkg/config"
	"ccvm/pkg/cpu"
)

func newSession(in, input string) (*session, *bytes.Buffer) {
	var out bytes.Buffer
	return &session{
		in:         in,
		run:        true,
		memorySize: config.DefaultMemorySize,
		maxSteps:   1_000_000,
		stdin:      strings.NewReader(input),
		stdout:     &out,
		stderr:     io.Discard,
	}, &out
}

func TestPrograms(t *testing.T) {
	tests := []struct {
		file  string
		input string
		want  string
	}{
		{"testdata/knapsack.c", "", "48\nreturn value:0\n"},
		{"testdata/squares.c", "3\n-2\n0x3\n\n4\n", "4\n9\n16\nreturn value:3\n"},
		{"testdata/countdown.s", "", "3\n2\n1\nreturn value:7\n"},
	}
	for _, tt := range tests {
		t.Run(filepath.Base(tt.file), func(t *testing.T) {
			s, out := newSession(tt.file, tt.input)
			if err := s.once(); err != nil {
				t.Fatalf("run failed: %v", err)
			}
			if out.String() != tt.want {
				t.Errorf("expected output %q, got %q", tt.want, out.String())
			}
		})
	}
}

func TestSession_Failures(t *testing.T) {
	t.Run("runtime fault keeps partial output", func(t *testing.T) {
		s, out := newSession("testdata/fault.c", "")
		err := s.once()
		var re *cpu.RuntimeError
		if !errors.As(err, &re) {
			t.Fatalf("expected *cpu.RuntimeError, got %v", err)
		}
		if re.Msg != "division by zero" {
			t.Errorf("unexpected fault %q", re.Msg)
		}
		if out.String() != "1\n" {
			t.Errorf("expected the output written before the fault, got %q", out.String())
		}
	})

	t.Run("compile error", func(t *testing.T) {
		s, _ := newSession("testdata/syntax_error.c", "")
		err := s.once()
		var ce *compiler.CompileError
		if !errors.As(err, &ce) {
			t.Fatalf("expected *compiler.CompileError, got %v", err)
		}
		if ce.Stage != compiler.StageParse || ce.Line != 3 {
			t.Errorf("unexpected error %v", ce)
		}
	})

	t.Run("missing input", func(t *testing.T) {
		s, _ := newSession("testdata/squares.c", "")
		if err := s.once(); !errors.Is(err, io.EOF) {
			t.Errorf("expected read to fail with io.EOF, got %v", err)
		}
	})

	t.Run("missing file", func(t *testing.T) {
		s, _ := newSession("testdata/nope.c", "")
		if err := s.once(); !errors.Is(err, os.ErrNotExist) {
			t.Errorf("expected os.ErrNotExist, got %v", err)
		}
	})
}

func TestSession_AssemblyOutput(t *testing.T) {
	dir := t.TempDir()
	s, out := newSession("testdata/squares.c", "")
	s.run = false
	s.showAsm = true
	s.out = filepath.Join(dir, "squares.s")
	if err := s.once(); err != nil {
		t.Fatal(err)
	}
	written, err := os.ReadFile(s.out)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(written, out.Bytes()) {
		t.Error("-S output and the -out file differ")
	}
	for _, want := range []string{".global main", "\nsquare:\n", "call read", "call write"} {
		if !strings.Contains(string(written), want) {
			t.Errorf("assembly is missing %q", want)
		}
	}

	// the written listing runs on its own
	s2, out2 := newSession(s.out, "1\n5\n")
	if err := s2.once(); err != nil {
		t.Fatal(err)
	}
	if out2.String() != "25\nreturn value:1\n" {
		t.Errorf("unexpected output %q", out2.String())
	}
}

func TestSession_Report(t *testing.T) {
	var buf bytes.Buffer
	s := &session{stderr: &buf}
	s.report(nil)
	s.report(&compiler.CompileError{Stage: compiler.StageLex, Msg: "unexpected character '@'"})
	s.report(&cpu.RuntimeError{Line: 4, Msg: "division by zero"})
	want := "compilation failed: lex error: unexpected character '@'\nrun failed: runtime error at line 4: division by zero\n"
	if buf.String() != want {
		t.Errorf("got %q, want %q", buf.String(), want)
	}
}
