// Package config reads runtime settings from the environment.
package config

import "github.com/xyproto/env/v2"

const (
	DefaultMemorySize = 65536
	DefaultMaxSteps   = 10_000_000
)

// Config holds the settings shared by the command line tools. Flags
// parsed later override these values.
type Config struct {
	MemorySize int    // CCVM_MEMORY
	MaxSteps   int    // CCVM_MAX_STEPS, 0 disables the limit
	ShowAsm    bool   // CCVM_SHOW_ASM
	Trace      bool   // CCVM_TRACE
	IncludeDir string // CCVM_INCLUDE
}

// Load reads the CCVM_* variables, falling back to the defaults.
func Load() Config {
	c := Config{
		MemorySize: env.Int("CCVM_MEMORY", DefaultMemorySize),
		MaxSteps:   env.Int("CCVM_MAX_STEPS", DefaultMaxSteps),
		ShowAsm:    env.Bool("CCVM_SHOW_ASM"),
		Trace:      env.Bool("CCVM_TRACE"),
		IncludeDir: env.Str("CCVM_INCLUDE"),
	}
	if c.MemorySize <= 0 {
		c.MemorySize = DefaultMemorySize
	}
	if c.MaxSteps < 0 {
		c.MaxSteps = 0
	}
	return c
}
