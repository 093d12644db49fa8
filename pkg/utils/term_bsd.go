//go:build darwin || freebsd || netbsd || openbsd

package utils

import (
	"os"

	"golang.org/x/sys/unix"
)

// IsTerminal reports whether f is connected to a terminal.
func IsTerminal(f *os.File) bool {
	_, err := unix.IoctlGetTermios(int(f.Fd()), unix.TIOCGETA)
	return err == nil
}
