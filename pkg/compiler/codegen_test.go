package compiler

import (
	"errors"
	"strings"
	"testing"

	"ccvm/pkg/asm"
)

func genAsm(t *testing.T, src string) string {
	t.Helper()
	out, err := Generate(mustParse(t, src))
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}
	return out
}

func TestGenerate_Minimal(t *testing.T) {
	want := `.intel_syntax noprefix
.data
.text
.global main
main:
  push rbp
  mov rbp, rsp
  sub rsp, 0
  push 42
  pop rax
  jmp .L.return.main
.L.return.main:
  mov rsp, rbp
  pop rbp
  ret
`
	if got := genAsm(t, "int main() { return 42; }"); got != want {
		t.Errorf("unexpected assembly:\n%s\nwant:\n%s", got, want)
	}
}

func TestGenerate_Shapes(t *testing.T) {
	tests := []struct {
		name string
		src  string
		want []string
		not  []string
	}{
		{
			name: "int pointer scaling",
			src:  "int main() { int a[3]; int *p = a; return *(p + 2); }",
			want: []string{"imul rdi, 4", "movsxd rax, dword ptr [rax]", "sub rsp, 32"},
		},
		{
			name: "pointer difference",
			src:  "int main() { long a[2]; return &a[1] - &a[0]; }",
			want: []string{"cqo", "mov rdi, 8", "idiv rdi"},
		},
		{
			name: "parameter spills",
			src:  "int f(char c, short s, int i, long l) { return 0; } int main() { return f(1, 2, 3, 4); }",
			want: []string{"mov [rbp-1], dil", "mov [rbp-4], si", "mov [rbp-8], edx", "mov [rbp-16], rcx"},
		},
		{
			name: "call alignment",
			src:  "int f() { return 1; } int main() { return f(); }",
			want: []string{"and rax, 15", "jnz .L.call.0", "call f", ".L.call.0:", "sub rsp, 8", "add rsp, 8", ".L.end.0:"},
		},
		{
			name: "global data",
			src:  "int x = 5; char s[] = \"ab\"; int z; int main() { return x; }",
			want: []string{"x:\n  .byte 5\n  .byte 0\n  .byte 0\n  .byte 0\n", "s:\n  .byte 97\n  .byte 98\n  .byte 0\n", "z:\n  .zero 4\n", "push offset x"},
		},
		{
			name: "string literal",
			src:  "int main() { char *s = \"hi\"; return s[0]; }",
			want: []string{".L.str.0:", "push offset .L.str.0", "movsx rax, byte ptr [rax]"},
		},
		{
			name: "switch",
			src:  "int main() { switch (2) { case 1: return 1; default: return 0; } }",
			want: []string{"cmp rax, 1", "je .L.case.1", "jmp .L.case.2", ".L.case.1:", ".L.case.2:", ".L.end.0:"},
		},
		{
			name: "loops and break",
			src:  "int main() { int i; for (i = 0; i < 3; i++) { if (i) break; continue; } while (0) ; return i; }",
			want: []string{".L.begin.0:", ".L.continue.0:", "jmp .L.end.0", "jmp .L.continue.0", ".L.begin.2:"},
			not:  []string{".L.break"},
		},
		{
			name: "goto",
			src:  "int main() { goto out; out: return 1; }",
			want: []string{"jmp .L.label.main.out", ".L.label.main.out:"},
		},
		{
			name: "static function",
			src:  "static int h() { return 1; } int main() { return h(); }",
			want: []string{"\nh:\n", ".global main"},
			not:  []string{".global h"},
		},
		{
			name: "wide literal",
			src:  "long main() { return 5000000000; }",
			want: []string{"mov rax, 5000000000"},
		},
		{
			name: "struct copy",
			src:  "struct P { char a; char b; }; int main() { struct P x; struct P y; y = x; return 0; }",
			want: []string{"mov r8b, [rdi+0]", "mov [rax+1], r8b"},
		},
		{
			name: "bool store",
			src:  "int main() { _Bool b = 5; return b; }",
			want: []string{"setne dil", "mov [rax], dil"},
		},
		{
			name: "logical operators",
			src:  "int main() { return 1 && 0 || 1; }",
			want: []string{".L.false.1:", ".L.true.0:"},
		},
		{
			name: "relational swap",
			src:  "int main() { int a; int b; return a > b; }",
			want: []string{"setl al"},
			not:  []string{"setg"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := genAsm(t, tt.src)
			for _, w := range tt.want {
				if !strings.Contains(out, w) {
					t.Errorf("missing %q in:\n%s", w, out)
				}
			}
			for _, n := range tt.not {
				if strings.Contains(out, n) {
					t.Errorf("unexpected %q in:\n%s", n, out)
				}
			}
		})
	}
}

// Every emitted label is unique and every emitted program loads back
// through the assembler.
func TestGenerate_LabelsUnique(t *testing.T) {
	src := `
int g;
int f(int n) { if (n) return n; else return 0; }
int main() {
	int i;
	int s = 0;
	for (i = 0; i < 4; i++) {
		switch (i) { case 0: s += 1; break; case 1: s += 2; default: s += f(i); }
		while (s > 100) s--;
		do { s = s ? s : 1; } while (0);
	}
	return s && g || !s;
}`
	out := genAsm(t, src)
	seen := make(map[string]bool)
	for _, line := range strings.Split(out, "\n") {
		if !strings.HasSuffix(line, ":") || strings.HasPrefix(line, " ") {
			continue
		}
		if seen[line] {
			t.Errorf("label %s defined twice", line)
		}
		seen[line] = true
	}
	if _, err := asm.Load(out); err != nil {
		t.Errorf("generated assembly does not load: %v\n%s", err, out)
	}
}

func TestGenerate_Errors(t *testing.T) {
	tests := []struct {
		name string
		src  string
		msg  string
	}{
		{"too many arguments", "int f() { return 0; } int main() { return f(1, 2, 3, 4, 5, 6, 7); }", "f: more than 6 arguments"},
		{"too many parameters", "int f(int a, int b, int c, int d, int e, int g, int h) { return 0; } int main() { return 0; }", "f: more than 6 parameters"},
		{"assign to constant", "int main() { 1 = 2; return 0; }", "not an lvalue"},
		{"assign to array", "int main() { int a[2]; int b[2]; a = b; return 0; }", "not an lvalue"},
		{"address of constant", "int main() { return &3; }", "not an lvalue"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Generate(mustParse(t, tt.src))
			if err == nil {
				t.Fatal("expected Generate to fail")
			}
			var ce *CompileError
			if !errors.As(err, &ce) {
				t.Fatalf("expected *CompileError, got %T", err)
			}
			if ce.Stage != StageCodegen || !strings.Contains(ce.Msg, tt.msg) {
				t.Errorf("got %s error %q, want %q", ce.Stage, ce.Msg, tt.msg)
			}
		})
	}
}
