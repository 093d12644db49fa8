// Command console compiles a C source file and runs it in the terminal.
// The read built-in takes its values from stdin.
package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"

	"ccvm/pkg/compiler"
	"ccvm/pkg/config"
	"ccvm/pkg/cpu"
	"ccvm/pkg/utils"
	"ccvm/pkg/vfs"
)

// headerDir holds extra headers copied onto the virtual disk at start-up,
// so that #include <name.h> finds them.
const headerDir = "ccvm_headers"

func main() {
	cfg := config.Load()
	showAsm := flag.Bool("show-asm", cfg.ShowAsm, "print the generated assembly before running")
	saveAsm := flag.Bool("save-asm", false, "also write the assembly next to the source as <name>.s")
	flag.Parse()
	if flag.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "usage: console [-show-asm] [-save-asm] <file.c>")
		os.Exit(2)
	}

	fullPath, baseDir, err := utils.GetPathInfo(flag.Arg(0))
	if err != nil {
		log.Fatalf("Bad path: %v", err)
	}
	sourceBytes, err := os.ReadFile(fullPath)
	if err != nil {
		log.Fatalf("Failed to read source file: %v", err)
	}

	disk := vfs.NewStdDisk()
	if err := disk.LoadFrom(headerDir); err != nil {
		log.Fatalf("Failed to load headers from %s: %v", headerDir, err)
	}

	opts := []compiler.Option{compiler.WithBaseDir(baseDir), compiler.WithDisk(disk)}
	if cfg.IncludeDir != "" {
		opts = append(opts, compiler.WithIncludeDirs(cfg.IncludeDir))
	}
	asm, err := compiler.Compile(string(sourceBytes), opts...)
	if err != nil {
		log.Fatalf("Compilation failed: %v", err)
	}
	if *showAsm {
		fmt.Print("Generated Assembly:\n", asm, "\n")
	}
	if *saveAsm {
		asmPath := utils.ReplaceExt(fullPath, ".s")
		if err := os.WriteFile(asmPath, []byte(asm), 0o644); err != nil {
			log.Fatalf("Failed to write %s: %v", asmPath, err)
		}
	}

	var prompt io.Writer
	if utils.IsTerminal(os.Stdin) {
		prompt = os.Stdout
	}
	runOpts := []cpu.Option{
		cpu.WithInput(cpu.StdinInput(os.Stdin, prompt)),
		cpu.WithOutput(os.Stdout),
		cpu.WithMemorySize(cfg.MemorySize),
		cpu.WithMaxSteps(cfg.MaxSteps),
	}
	if cfg.Trace {
		runOpts = append(runOpts, cpu.WithTrace(os.Stderr))
	}
	if _, err := cpu.Run(asm, runOpts...); err != nil {
		var re *cpu.RuntimeError
		if errors.As(err, &re) {
			log.Fatalf("Program faulted: %v", re)
		}
		log.Fatalf("Run failed: %v", err)
	}
}
