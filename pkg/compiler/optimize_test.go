package compiler

import (
	"slices"
	"testing"
)

func funcNames(prog *Program) []string {
	var names []string
	for _, fn := range prog.Funcs {
		names = append(names, fn.Name)
	}
	return names
}

func TestPrune(t *testing.T) {
	tests := []struct {
		name string
		src  string
		want []string
	}{
		{
			name: "unreachable dropped",
			src:  "int dead() { return 1; } int main() { return 0; }",
			want: []string{"main"},
		},
		{
			name: "transitive calls kept in source order",
			src: `int leaf() { return 1; }
int mid() { return leaf(); }
int unused() { return mid(); }
int main() { return mid(); }`,
			want: []string{"leaf", "mid", "main"},
		},
		{
			name: "calls inside nested statements",
			src: `int a() { return 1; }
int b() { return 2; }
int c() { return 3; }
int main() { int x; for (x = a(); x < b(); x++) { switch (x) { case 1: x = c() ? 1 : 2; } } return 0; }`,
			want: []string{"a", "b", "c", "main"},
		},
		{
			name: "recursion",
			src:  "int f(int n) { return n ? f(n - 1) : 0; } int main() { return f(3); }",
			want: []string{"f", "main"},
		},
		{
			name: "built-in calls are ignored",
			src:  "long read(long *p); int main() { long v; read(&v); return v; }",
			want: []string{"main"},
		},
		{
			name: "no main",
			src:  "int f() { return 1; } int g() { return 2; }",
			want: []string{"f", "g"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			prog := mustParse(t, tt.src)
			Prune(prog)
			if got := funcNames(prog); !slices.Equal(got, tt.want) {
				t.Errorf("got %v, want %v", got, tt.want)
			}
		})
	}
}
