// Package version carries the toolchain version and checks source
// requirements against it.
package version

import (
	"fmt"

	"github.com/Masterminds/semver/v3"
)

// Version is the toolchain release.
const Version = "0.4.0"

var current = semver.MustParse(Version)

// Current returns the parsed toolchain version.
func Current() *semver.Version {
	return current
}

// Satisfies reports whether the toolchain meets constraint, e.g. ">= 0.3".
func Satisfies(constraint string) (bool, error) {
	c, err := semver.NewConstraint(constraint)
	if err != nil {
		return false, fmt.Errorf("invalid version constraint %q: %w", constraint, err)
	}
	return c.Check(current), nil
}

// String renders the version banner printed by -version.
func String(tool string) string {
	return fmt.Sprintf("%s version %s", tool, current)
}
