package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"strings"

	"ccvm/pkg/compiler"
	"ccvm/pkg/config"
	"ccvm/pkg/cpu"
	"ccvm/pkg/utils"
	"ccvm/pkg/version"
)

// includeFlag collects repeated -I values.
type includeFlag []string

func (f *includeFlag) String() string { return strings.Join(*f, ",") }

func (f *includeFlag) Set(v string) error {
	*f = append(*f, v)
	return nil
}

// session is one invocation's settings after environment and flags are
// merged.
type session struct {
	in          string
	out         string
	run         bool
	showAsm     bool
	trace       bool
	includeDirs []string
	memorySize  int
	maxSteps    int
	stdin       io.Reader
	stdout      io.Writer
	stderr      io.Writer
	prompt      io.Writer
}

func main() {
	cfg := config.Load()

	inPath := flag.String("in", "", "input file: C source, or assembly (.s/.asm) to run directly")
	outPath := flag.String("out", "", "write the generated assembly to this file")
	runProgram := flag.Bool("run", false, "run the program on the interpreter")
	showAsm := flag.Bool("S", cfg.ShowAsm, "print the generated assembly")
	trace := flag.Bool("trace", cfg.Trace, "trace compiler stages and every executed instruction to stderr")
	watch := flag.Bool("watch", false, "recompile (and rerun with -run) whenever the input changes")
	memorySize := flag.Int("mem", cfg.MemorySize, "interpreter memory size in bytes")
	maxSteps := flag.Int("max-steps", cfg.MaxSteps, "abort after this many instructions (0 = no limit)")
	showVersion := flag.Bool("version", false, "print the version and exit")
	var includes includeFlag
	flag.Var(&includes, "I", "add a directory to the #include search path (repeatable)")
	flag.Parse()

	if *showVersion {
		fmt.Println(version.String("ccvm"))
		return
	}
	if *inPath == "" && flag.NArg() == 1 {
		*inPath = flag.Arg(0)
	}
	if *inPath == "" {
		fmt.Fprintln(os.Stderr, "nothing to do: provide -in <file> (a .c source or an assembly listing)")
		flag.Usage()
		os.Exit(2)
	}
	if !*runProgram && !*showAsm && *outPath == "" {
		// compiling without any output is only useful as a syntax check
		*runProgram = utils.IsAssembly(*inPath)
	}

	if cfg.IncludeDir != "" {
		includes = append(includes, cfg.IncludeDir)
	}
	s := &session{
		in:          *inPath,
		out:         *outPath,
		run:         *runProgram,
		showAsm:     *showAsm,
		trace:       *trace,
		includeDirs: includes,
		memorySize:  *memorySize,
		maxSteps:    *maxSteps,
		stdin:       os.Stdin,
		stdout:      os.Stdout,
		stderr:      os.Stderr,
	}
	if utils.IsTerminal(os.Stdin) {
		s.prompt = os.Stdout
	}

	if *watch {
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
		defer stop()
		s.report(s.once())
		fmt.Fprintf(s.stderr, "watching %s (Ctrl-C to stop)\n", s.in)
		err := utils.WatchFile(ctx, s.in, utils.DefaultDebounce, func() {
			fmt.Fprintf(s.stderr, "--- %s changed\n", s.in)
			s.report(s.once())
		})
		if err != nil && !errors.Is(err, context.Canceled) {
			log.Fatalf("watch failed: %v", err)
		}
		return
	}

	if err := s.once(); err != nil {
		s.report(err)
		os.Exit(1)
	}
}

// once compiles the input and, if requested, runs it.
func (s *session) once() error {
	text, err := s.build()
	if err != nil {
		return err
	}
	if s.out != "" {
		if err := os.WriteFile(s.out, []byte(text), 0o644); err != nil {
			return fmt.Errorf("failed to write assembly file %q: %w", s.out, err)
		}
		fmt.Fprintf(s.stderr, "wrote %d bytes of assembly -> %s\n", len(text), s.out)
	}
	if s.showAsm {
		fmt.Fprint(s.stdout, text)
	}
	if !s.run {
		return nil
	}
	return s.execute(text)
}

// build returns the assembly for the input file, compiling C source and
// passing assembly listings through.
func (s *session) build() (string, error) {
	fullPath, baseDir, err := utils.GetPathInfo(s.in)
	if err != nil {
		return "", err
	}
	source, err := os.ReadFile(fullPath)
	if err != nil {
		return "", fmt.Errorf("failed to read input file %q: %w", s.in, err)
	}
	if utils.IsAssembly(fullPath) {
		return string(source), nil
	}

	opts := []compiler.Option{
		compiler.WithBaseDir(baseDir),
		compiler.WithIncludeDirs(s.includeDirs...),
	}
	if s.trace {
		opts = append(opts, compiler.WithLogger(log.New(s.stderr, "ccvm: ", 0)))
	}
	return compiler.Compile(string(source), opts...)
}

// execute runs text, streaming program output to stdout as it is produced.
func (s *session) execute(text string) error {
	opts := []cpu.Option{
		cpu.WithInput(cpu.StdinInput(s.stdin, s.prompt)),
		cpu.WithMemorySize(s.memorySize),
		cpu.WithMaxSteps(s.maxSteps),
		cpu.WithOutput(s.stdout),
	}
	if s.trace {
		opts = append(opts, cpu.WithTrace(s.stderr))
	}
	_, err := cpu.Run(text, opts...)
	return err
}

// report prints err with a hint about which stage failed.
func (s *session) report(err error) {
	if err == nil {
		return
	}
	var ce *compiler.CompileError
	var re *cpu.RuntimeError
	switch {
	case errors.As(err, &ce):
		fmt.Fprintf(s.stderr, "compilation failed: %v\n", ce)
	case errors.As(err, &re):
		fmt.Fprintf(s.stderr, "run failed: %v\n", re)
	default:
		fmt.Fprintln(s.stderr, err)
	}
}
