//go:build !linux && !darwin && !freebsd && !netbsd && !openbsd

package utils

import "os"

// IsTerminal reports whether f is a character device. Platforms without
// termios fall back to the file mode.
func IsTerminal(f *os.File) bool {
	st, err := f.Stat()
	if err != nil {
		return false
	}
	return st.Mode()&os.ModeCharDevice != 0
}
