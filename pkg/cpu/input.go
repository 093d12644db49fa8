package cpu

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
)

// InputFunc supplies the next value for the read built-in.
type InputFunc func() (int64, error)

// ErrNoInput is returned by NoInput.
var ErrNoInput = errors.New("no input available")

// NoInput is the default InputFunc; every read fails.
func NoInput() (int64, error) { return 0, ErrNoInput }

// Values returns an InputFunc that yields vs in order and then fails.
func Values(vs ...int64) InputFunc {
	return func() (int64, error) {
		if len(vs) == 0 {
			return 0, ErrNoInput
		}
		v := vs[0]
		vs = vs[1:]
		return v, nil
	}
}

// StdinInput reads one number per line from r. Unparseable lines are
// reported to prompt and asked for again. A nil prompt disables prompting.
func StdinInput(r io.Reader, prompt io.Writer) InputFunc {
	sc := bufio.NewScanner(r)
	return func() (int64, error) {
		for {
			if prompt != nil {
				fmt.Fprint(prompt, "input: ")
			}
			if !sc.Scan() {
				if err := sc.Err(); err != nil {
					return 0, err
				}
				return 0, io.EOF
			}
			line := strings.TrimSpace(sc.Text())
			if line == "" {
				continue
			}
			v, err := ParseNumber(line)
			if err == nil {
				return v, nil
			}
			if prompt == nil {
				return 0, err
			}
			fmt.Fprintln(prompt, err)
		}
	}
}

// ParseNumber accepts the literal forms a user may type at a read prompt:
// decimal, 0x hex, 0b or b binary, leading-0 octal, and floats (stored as
// their binary64 bit pattern). A leading minus applies to all of them.
func ParseNumber(s string) (int64, error) {
	text := strings.TrimSpace(s)
	neg := false
	if rest, ok := strings.CutPrefix(text, "-"); ok {
		neg, text = true, rest
	}
	lower := strings.ToLower(text)
	if lower == "" {
		return 0, fmt.Errorf("invalid number %q", s)
	}

	var (
		u   uint64
		err error
	)
	switch {
	case strings.HasPrefix(lower, "0x"):
		u, err = strconv.ParseUint(lower[2:], 16, 64)
	case strings.HasPrefix(lower, "0b"):
		u, err = strconv.ParseUint(lower[2:], 2, 64)
	case strings.HasPrefix(lower, "b"):
		u, err = strconv.ParseUint(lower[1:], 2, 64)
	case strings.ContainsAny(lower, ".e") || strings.HasSuffix(lower, "f"):
		f, ferr := strconv.ParseFloat(strings.TrimSuffix(lower, "f"), 64)
		if ferr != nil {
			return 0, fmt.Errorf("invalid number %q", s)
		}
		if neg {
			f = -f
		}
		return int64(math.Float64bits(f)), nil
	case len(lower) > 1 && lower[0] == '0':
		u, err = strconv.ParseUint(lower[1:], 8, 64)
	default:
		u, err = strconv.ParseUint(lower, 10, 64)
	}
	if err != nil {
		return 0, fmt.Errorf("invalid number %q", s)
	}
	if neg {
		return -int64(u), nil
	}
	return int64(u), nil
}
