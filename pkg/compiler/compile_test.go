package compiler

import (
	"bytes"
	"errors"
	"log"
	"strings"
	"testing"

	"ccvm/pkg/vfs"
)

func TestCompile_ErrorStages(t *testing.T) {
	tests := []struct {
		name    string
		src     string
		stage   string
		line    int
		snippet string
	}{
		{"preprocess", "int x;\n#error nope", StagePreprocess, 2, "#error nope"},
		{"lex", "int main() {\n  return 1 @ 2;\n}", StageLex, 2, "return 1 @ 2;"},
		{"parse", "int main() {\n  return y;\n}", StageParse, 2, "return y;"},
		{"type", "int main() {\n  int x;\n  return *x;\n}", StageType, 3, "return *x;"},
		{"codegen", "int main() {\n  1 = 2;\n  return 0;\n}", StageCodegen, 2, "1 = 2;"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Compile(tt.src)
			var ce *CompileError
			if !errors.As(err, &ce) {
				t.Fatalf("expected *CompileError, got %T: %v", err, err)
			}
			if ce.Stage != tt.stage || ce.Line != tt.line {
				t.Errorf("got %s error at line %d, want %s at line %d", ce.Stage, ce.Line, tt.stage, tt.line)
			}
			if ce.Snippet != tt.snippet {
				t.Errorf("snippet %q, want %q", ce.Snippet, tt.snippet)
			}
			if !strings.Contains(ce.Error(), tt.stage+" error at line") {
				t.Errorf("unexpected message %q", ce.Error())
			}
		})
	}
}

func TestCompileError_Format(t *testing.T) {
	e := &CompileError{Stage: StageParse, Msg: "expected SEMICOLON, got RBRACE", Text: "}", Line: 3, Col: 12, Snippet: "return 1 }"}
	want := "parse error at line 3:12 near \"}\": expected SEMICOLON, got RBRACE\n  |> return 1 }"
	if got := e.Error(); got != want {
		t.Errorf("got %q\nwant %q", got, want)
	}

	bare := &CompileError{Stage: StageCodegen, Msg: "boom"}
	if got := bare.Error(); got != "codegen error: boom" {
		t.Errorf("got %q", got)
	}
}

func TestCompile_Options(t *testing.T) {
	src := "int dead() { return 1; } int main() { return 0; }"

	t.Run("logger", func(t *testing.T) {
		var buf bytes.Buffer
		if _, err := Compile(src, WithLogger(log.New(&buf, "", 0))); err != nil {
			t.Fatal(err)
		}
		for _, stage := range []string{"preprocess:", "lex:", "parse: 2 functions", "prune: dropped 1", "codegen:"} {
			if !strings.Contains(buf.String(), stage) {
				t.Errorf("log is missing %q:\n%s", stage, buf.String())
			}
		}
	})

	t.Run("prune", func(t *testing.T) {
		pruned, err := Compile(src)
		if err != nil {
			t.Fatal(err)
		}
		if strings.Contains(pruned, "dead:") {
			t.Error("unreachable function was emitted")
		}
		full, err := Compile(src, WithoutPrune())
		if err != nil {
			t.Fatal(err)
		}
		if !strings.Contains(full, "dead:") {
			t.Error("WithoutPrune dropped a function")
		}
	})

	t.Run("disk and include dirs", func(t *testing.T) {
		disk := vfs.NewStdDisk()
		if err := disk.Write("answer.h", []byte("#define ANSWER 42\n")); err != nil {
			t.Fatal(err)
		}
		out, err := Compile("#include <answer.h>\nint main() { return ANSWER; }", WithDisk(disk))
		if err != nil {
			t.Fatal(err)
		}
		if !strings.Contains(out, "push 42") {
			t.Errorf("macro from disk header not expanded:\n%s", out)
		}

		dir := t.TempDir()
		writeFile(t, dir, "local.h", "int seven() { return 7; }\n")
		if _, err := Compile("#include \"local.h\"\nint main() { return seven(); }", WithBaseDir(dir)); err != nil {
			t.Errorf("WithBaseDir: %v", err)
		}
		if _, err := Compile("#include <local.h>\nint main() { return seven(); }", WithIncludeDirs(dir)); err != nil {
			t.Errorf("WithIncludeDirs: %v", err)
		}
	})
}
