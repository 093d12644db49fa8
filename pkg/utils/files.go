// Package utils holds host-side helpers shared by the command line tools.
package utils

import (
	"path/filepath"
	"strings"
)

// GetPathInfo returns the absolute path of relPath and the directory that
// contains it. Quoted includes in a source file resolve against parentDir.
func GetPathInfo(relPath string) (fullPath string, parentDir string, err error) {
	// Convert to absolute path (resolves ../../ and cleans the path)
	fullPath, err = filepath.Abs(relPath)
	if err != nil {
		return "", "", err
	}

	parentDir = filepath.Dir(fullPath)
	return fullPath, parentDir, nil
}

// ReplaceExt swaps the extension of path for ext ("" when path has none),
// e.g. ReplaceExt("prog.c", ".s") == "prog.s".
func ReplaceExt(path, ext string) string {
	return strings.TrimSuffix(path, filepath.Ext(path)) + ext
}

// IsAssembly reports whether path names an assembly listing rather than C
// source.
func IsAssembly(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".s", ".asm":
		return true
	}
	return false
}
