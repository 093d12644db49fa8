// Command ccompiler dumps every stage of the compiler for one source file:
// the preprocessed text, the tokens, the parsed program and the assembly.
package main

import (
	"fmt"
	"os"

	"ccvm/pkg/compiler"
	"ccvm/pkg/utils"
)

const testSource = `int x = 10;
int y = 20;
int main() {
	return x + y;
}
`

func main() {
	src := testSource
	baseDir := "."
	if len(os.Args) > 1 {
		fullPath, dir, err := utils.GetPathInfo(os.Args[1])
		if err != nil {
			fmt.Fprintln(os.Stderr, "path error:", err)
			os.Exit(1)
		}
		data, err := os.ReadFile(fullPath)
		if err != nil {
			fmt.Fprintln(os.Stderr, "read error:", err)
			os.Exit(1)
		}
		src = string(data)
		baseDir = dir
	}

	// Preprocess
	src, err := compiler.Preprocess(src, baseDir, nil)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	fmt.Printf("Source:\n%s\n", src)

	// Lex
	tokens, err := compiler.Lex(src)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	fmt.Printf("Tokens (%d)\n", len(tokens))
	for _, tok := range tokens {
		fmt.Println(" ", tok)
	}
	fmt.Println()

	// Parse
	prog, err := compiler.Parse(tokens)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	fmt.Println("Globals")
	for _, v := range prog.Globals {
		fmt.Printf("  %-16s %-12s %d bytes\n", v.Name, v.Type, v.Type.Size)
	}
	fmt.Println()
	fmt.Println("Functions")
	for _, fn := range prog.Funcs {
		fmt.Printf("  %s %s (frame %d bytes)\n", fn.Type.Return, fn.Name, fn.StackSize)
		for _, v := range fn.Locals {
			fmt.Printf("    [rbp-%-3d] %-12s %s\n", v.Offset, v.Name, v.Type)
		}
		fmt.Printf("    %s\n", fn.Body)
	}
	fmt.Println()

	// Code generation
	asm, err := compiler.Generate(prog)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	fmt.Println("Generated Assembly")
	fmt.Print(asm)
}
