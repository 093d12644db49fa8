package compiler

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"ccvm/pkg/vfs"
)

func writeFile(t *testing.T, dir, name, content string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestPreprocess_Macros(t *testing.T) {
	tests := []struct {
		name string
		src  string
		want string
	}{
		{"object-like", "#define N 10\nint a = N;", "\nint a = 10;\n"},
		{"identifier boundary", "#define N 10\nint NN = N;", "\nint NN = 10;\n"},
		{"nested", "#define A 1\n#define B (A + A)\nB", "\n\n(1 + 1)\n"},
		{"function-like", "#define SQ(x) ((x) * (x))\nSQ(3)", "\n((3) * (3))\n"},
		{"two arguments", "#define ADD(a, b) (a + b)\nADD(f(1, 2), 3)", "\n(f(1, 2) + 3)\n"},
		{"argument named like a parameter", "#define P(a, b) a - b\nP(b, a)", "\nb - a\n"},
		{"zero arguments", "#define Z() 7\nZ()", "\n7\n"},
		{"name without call", "#define SQ(x) x\nint SQ;", "\nint SQ;\n"},
		{"undef", "#define N 1\n#undef N\nN", "\n\nN\n"},
		{"string untouched", "#define N 1\n\"N\" 'N' N", "\n\"N\" 'N' 1\n"},
		{"null directive", "#\nx", "\nx\n"},
		{"other pragma", "#pragma once\nx", "\nx\n"},
		{"body defined later", "#define SIZE LEN*2\n#define LEN 5\nint a[SIZE];", "\n\nint a[5*2];\n"},
		{"redefined between uses", "#define N 1\n#define M N\nM\n#undef N\n#define N 2\nM", "\n\n1\n\n\n2\n"},
		{"nested call in argument", "#define SQ(x) ((x) * (x))\nSQ(SQ(2))", "\n((((2) * (2))) * (((2) * (2))))\n"},
		{"self-referential object-like", "#define foo foo + 1\nfoo", "\nfoo + 1\n"},
		{"self-referential function-like", "#define F(x) F(x)\nF(1)", "\nF(1)\n"},
		{"self reference through argument", "#define malloc(n) malloc(n * 8)\nmalloc(malloc(1))", "\nmalloc(malloc(1 * 8) * 8)\n"},
		{"mutual recursion", "#define A B\n#define B A\nA B", "\n\nA B\n"},
		{"mutual function-like recursion", "#define F(x) G(x)\n#define G(x) F(x + 1)\nF(0)", "\n\nF(0 + 1)\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Preprocess(tt.src, ".", nil)
			if err != nil {
				t.Fatalf("Preprocess failed: %v", err)
			}
			if got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestPreprocess_Includes(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "defs.h", "#define K 4\nint k;\n")
	writeFile(t, dir, "twice.h", "#include \"defs.h\"\n#include \"defs.h\"\n")
	sub := filepath.Join(dir, "inc")
	if err := os.Mkdir(sub, 0o755); err != nil {
		t.Fatal(err)
	}
	writeFile(t, sub, "lib.h", "int lib;\n")

	t.Run("quoted relative to base dir", func(t *testing.T) {
		got, err := Preprocess("#include \"defs.h\"\nint a = K;", dir, nil)
		if err != nil {
			t.Fatal(err)
		}
		if !strings.Contains(got, "int k;") || !strings.Contains(got, "int a = 4;") {
			t.Errorf("unexpected output %q", got)
		}
	})

	t.Run("include once", func(t *testing.T) {
		got, err := Preprocess("#include \"twice.h\"\n#include \"defs.h\"", dir, nil)
		if err != nil {
			t.Fatal(err)
		}
		if n := strings.Count(got, "int k;"); n != 1 {
			t.Errorf("expected defs.h once, got %d copies in %q", n, got)
		}
	})

	t.Run("include dirs", func(t *testing.T) {
		got, err := Preprocess("#include <lib.h>", ".", nil, sub)
		if err != nil {
			t.Fatal(err)
		}
		if !strings.Contains(got, "int lib;") {
			t.Errorf("unexpected output %q", got)
		}
	})

	t.Run("standard header", func(t *testing.T) {
		got, err := Preprocess("#include <ccvm.h>", ".", nil)
		if err != nil {
			t.Fatal(err)
		}
		if !strings.Contains(got, "long read(long *p);") || !strings.Contains(got, "long write(long v);") {
			t.Errorf("unexpected output %q", got)
		}
	})

	t.Run("custom disk", func(t *testing.T) {
		disk := vfs.NewVirtualDisk()
		if err := disk.Write("mine.h", []byte("int mine;")); err != nil {
			t.Fatal(err)
		}
		got, err := Preprocess("#include \"mine.h\"", dir, disk)
		if err != nil {
			t.Fatal(err)
		}
		if !strings.Contains(got, "int mine;") {
			t.Errorf("unexpected output %q", got)
		}
	})
}

func TestPreprocess_Errors(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "a.h", "#include \"b.h\"\n")
	writeFile(t, dir, "b.h", "#include \"a.h\"\n")

	tests := []struct {
		name string
		src  string
		msg  string
		line int
	}{
		{"circular include", "\n#include \"a.h\"", "circular include of a.h", 1},
		{"missing include", "#include \"nope.h\"", "cannot include nope.h", 1},
		{"malformed include", "#include nope.h", "invalid include directive", 1},
		{"unsupported directive", "int x;\n#ifdef X", "unsupported directive #ifdef", 2},
		{"macro name missing", "#define (x)", "macro name missing", 1},
		{"version too old", "#pragma ccvm \">= 99.0\"", "requires ccvm >= 99.0", 1},
		{"bad constraint", "#pragma ccvm \"not a version\"", "invalid version constraint", 1},
		{"unquoted constraint", "#pragma ccvm >= 1", "quoted version constraint", 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Preprocess(tt.src, dir, nil)
			if err == nil {
				t.Fatal("expected an error")
			}
			var ce *CompileError
			if !errors.As(err, &ce) {
				t.Fatalf("expected *CompileError, got %T", err)
			}
			if ce.Stage != StagePreprocess {
				t.Errorf("expected stage %q, got %q", StagePreprocess, ce.Stage)
			}
			if !strings.Contains(ce.Msg, tt.msg) {
				t.Errorf("expected %q, got %q", tt.msg, ce.Msg)
			}
			if ce.Line != tt.line {
				t.Errorf("expected line %d, got %d", tt.line, ce.Line)
			}
		})
	}
}

func TestPreprocess_VersionSatisfied(t *testing.T) {
	if _, err := Preprocess("#pragma ccvm \">= 0.1\"\nint x;", ".", nil); err != nil {
		t.Errorf("expected the current version to satisfy >= 0.1: %v", err)
	}
}

func TestPreprocess_ExpandAtUse_E2E(t *testing.T) {
	tests := []struct {
		name string
		src  string
		want int64
	}{
		{"late definition", "#define SIZE LEN*2\n#define LEN 5\nint main() { int a[SIZE]; return sizeof(a); }", 40},
		{"self-referential name", "#define N N\nint main() { int N = 3; return N; }", 3},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := runReturn(t, tt.src); got != tt.want {
				t.Errorf("expected %d, got %d", tt.want, got)
			}
		})
	}
}
