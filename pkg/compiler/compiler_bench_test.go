package compiler

import (
	"testing"

	"ccvm/pkg/cpu"
)

// simpleSource is a minimal C program used for benchmarking the fast path.
const simpleSource = `
int add(int a, int b) {
	return a + b;
}

int main() {
	int x = add(3, 4);
	return x;
}
`

// complexSource is a larger program exercising structs, arrays, loops,
// pointer arithmetic, and recursive function calls.
const complexSource = `
struct Point {
	int x;
	int y;
};

int abs_val(int n) {
	if (n < 0) {
		return -n;
	}
	return n;
}

int sum_array(int *arr, int len) {
	int total = 0;
	int i = 0;
	while (i < len) {
		total = total + arr[i];
		i = i + 1;
	}
	return total;
}

int dot_product(int *a, int *b, int len) {
	int result = 0;
	int i;
	for (i = 0; i < len; i++) {
		result += a[i] * b[i];
	}
	return result;
}

int fib(int n) {
	if (n == 0) { return 0; }
	if (n == 1) { return 1; }
	return fib(n - 1) + fib(n - 2);
}

int max_in_array(int *arr, int len) {
	int best = arr[0];
	int i = 1;
	while (i < len) {
		if (arr[i] > best) {
			best = arr[i];
		}
		i = i + 1;
	}
	return best;
}

int manhattan(struct Point *p) {
	return abs_val(p->x) + abs_val(p->y);
}

int main() {
	int arr[8] = {3, 1, 4, 1, 5, 9, 2, 6};

	int s = sum_array(arr, 8);
	int m = max_in_array(arr, 8);
	int f = fib(8);
	int a = abs_val(-42);

	int vec_a[4] = {1, 2, 3, 4};
	int vec_b[4] = {4, 3, 2, 1};
	int dp = dot_product(vec_a, vec_b, 4);

	struct Point pt;
	pt.x = -3;
	pt.y = 3;

	return s + m + f + a + dp + manhattan(&pt) - 6;
}
`

func TestComplexSource_E2E(t *testing.T) {
	if got := runReturn(t, complexSource); got != 123 {
		t.Errorf("expected 123, got %d", got)
	}
	if got := runReturn(t, simpleSource); got != 7 {
		t.Errorf("expected 7, got %d", got)
	}
}

// --- Lex benchmarks ---

func BenchmarkLex_Simple(b *testing.B) {
	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := Lex(simpleSource); err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkLex_Complex(b *testing.B) {
	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := Lex(complexSource); err != nil {
			b.Fatal(err)
		}
	}
}

// --- Parse benchmarks ---
// Tokens are pre-computed outside the timed region.

func BenchmarkParse_Complex(b *testing.B) {
	tokens, err := Lex(complexSource)
	if err != nil {
		b.Fatal(err)
	}
	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := Parse(tokens); err != nil {
			b.Fatal(err)
		}
	}
}

// --- Generate benchmarks ---

func BenchmarkGenerate_Complex(b *testing.B) {
	tokens, err := Lex(complexSource)
	if err != nil {
		b.Fatal(err)
	}
	prog, err := Parse(tokens)
	if err != nil {
		b.Fatal(err)
	}
	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := Generate(prog); err != nil {
			b.Fatal(err)
		}
	}
}

// --- Full pipeline benchmarks ---

func BenchmarkCompile_Simple(b *testing.B) {
	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := Compile(simpleSource); err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkCompile_Complex(b *testing.B) {
	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := Compile(complexSource); err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkCompileAndRun_Complex(b *testing.B) {
	text, err := Compile(complexSource)
	if err != nil {
		b.Fatal(err)
	}
	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := cpu.Run(text); err != nil {
			b.Fatal(err)
		}
	}
}
