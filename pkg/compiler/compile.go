package compiler

import (
	"io"
	"log"

	"ccvm/pkg/vfs"
)

type options struct {
	baseDir     string
	includeDirs []string
	disk        *vfs.VirtualDisk
	logger      *log.Logger
	prune       bool
}

// Option configures Compile.
type Option func(*options)

// WithBaseDir sets the directory quoted includes are resolved against.
func WithBaseDir(dir string) Option {
	return func(o *options) { o.baseDir = dir }
}

// WithIncludeDirs adds host directories searched by #include.
func WithIncludeDirs(dirs ...string) Option {
	return func(o *options) { o.includeDirs = append(o.includeDirs, dirs...) }
}

// WithDisk replaces the built-in header disk.
func WithDisk(disk *vfs.VirtualDisk) Option {
	return func(o *options) { o.disk = disk }
}

// WithLogger traces each stage to l.
func WithLogger(l *log.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithoutPrune keeps functions that main never reaches.
func WithoutPrune() Option {
	return func(o *options) { o.prune = false }
}

// Compile translates C source into assembly text. Every failure is a
// *CompileError.
func Compile(src string, opts ...Option) (string, error) {
	o := options{
		baseDir: ".",
		logger:  log.New(io.Discard, "", 0),
		prune:   true,
	}
	for _, opt := range opts {
		opt(&o)
	}

	expanded, err := Preprocess(src, o.baseDir, o.disk, o.includeDirs...)
	if err != nil {
		return "", attachSnippet(err, src)
	}
	o.logger.Printf("preprocess: %d bytes", len(expanded))

	tokens, err := Lex(expanded)
	if err != nil {
		return "", attachSnippet(err, expanded)
	}
	o.logger.Printf("lex: %d tokens", len(tokens))

	prog, err := Parse(tokens)
	if err != nil {
		return "", attachSnippet(err, expanded)
	}
	o.logger.Printf("parse: %d functions, %d globals", len(prog.Funcs), len(prog.Globals))

	if o.prune {
		before := len(prog.Funcs)
		Prune(prog)
		o.logger.Printf("prune: dropped %d unreachable functions", before-len(prog.Funcs))
	}

	assembly, err := Generate(prog)
	if err != nil {
		return "", attachSnippet(err, expanded)
	}
	o.logger.Printf("codegen: %d bytes of assembly", len(assembly))
	return assembly, nil
}
