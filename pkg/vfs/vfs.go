// Package vfs is the in-memory header disk consulted by the preprocessor
// for #include <name> and as a fallback for #include "name".
package vfs

import (
	"errors"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"sync"
	"time"
)

// MaxDiskBytes caps the total size of all files on a disk.
const MaxDiskBytes = 1 << 20

// validFilename accepts C source and header names without directories.
var validFilename = regexp.MustCompile(`^[a-zA-Z0-9_][a-zA-Z0-9_\-]{0,31}\.[ch]$`)

var (
	ErrFileNotFound    = errors.New("file not found")
	ErrInvalidFilename = errors.New("invalid filename")
	ErrQuotaExceeded   = errors.New("disk quota exceeded")
)

// StdHeader is the name of the built-in header declaring the runtime's
// built-in functions.
const StdHeader = "ccvm.h"

const stdHeaderSource = `// Built-in functions provided by the interpreter.
long read(long *p);
long write(long v);
`

type FileEntry struct {
	Data     []byte
	Modified time.Time
}

// VirtualDisk is a flat, concurrency-safe map of file names to contents.
type VirtualDisk struct {
	mu        sync.RWMutex
	files     map[string]*FileEntry
	usedBytes int
}

// NewVirtualDisk returns an empty disk.
func NewVirtualDisk() *VirtualDisk {
	return &VirtualDisk{files: make(map[string]*FileEntry)}
}

// NewStdDisk returns a disk holding the built-in headers.
func NewStdDisk() *VirtualDisk {
	vd := NewVirtualDisk()
	if err := vd.Write(StdHeader, []byte(stdHeaderSource)); err != nil {
		panic(err)
	}
	return vd
}

// Write stores a copy of data under filename, replacing any previous file.
func (vd *VirtualDisk) Write(filename string, data []byte) error {
	if !validFilename.MatchString(filename) {
		return ErrInvalidFilename
	}

	vd.mu.Lock()
	defer vd.mu.Unlock()

	oldSize := 0
	if existing, ok := vd.files[filename]; ok {
		oldSize = len(existing.Data)
	}
	if vd.usedBytes-oldSize+len(data) > MaxDiskBytes {
		return ErrQuotaExceeded
	}

	vd.files[filename] = &FileEntry{
		Data:     append([]byte(nil), data...),
		Modified: time.Now(),
	}
	vd.usedBytes += len(data) - oldSize
	return nil
}

// Read returns the contents of filename.
func (vd *VirtualDisk) Read(filename string) ([]byte, error) {
	if !validFilename.MatchString(filename) {
		return nil, ErrInvalidFilename
	}

	vd.mu.RLock()
	defer vd.mu.RUnlock()

	entry, ok := vd.files[filename]
	if !ok {
		return nil, ErrFileNotFound
	}
	return entry.Data, nil
}

// Delete removes filename from the disk.
func (vd *VirtualDisk) Delete(filename string) error {
	if !validFilename.MatchString(filename) {
		return ErrInvalidFilename
	}

	vd.mu.Lock()
	defer vd.mu.Unlock()

	entry, ok := vd.files[filename]
	if !ok {
		return ErrFileNotFound
	}
	vd.usedBytes -= len(entry.Data)
	delete(vd.files, filename)
	return nil
}

// FreeSpace returns the number of bytes still available.
func (vd *VirtualDisk) FreeSpace() int {
	vd.mu.RLock()
	defer vd.mu.RUnlock()
	return MaxDiskBytes - vd.usedBytes
}

// List returns the file names in sorted order.
func (vd *VirtualDisk) List() []string {
	vd.mu.RLock()
	defer vd.mu.RUnlock()

	names := make([]string, 0, len(vd.files))
	for k := range vd.files {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

// LoadFrom copies every valid file in the host directory dir onto the disk.
// Subdirectories and files with unsupported names are skipped. A missing
// directory is not an error.
func (vd *VirtualDisk) LoadFrom(dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}

	for _, entry := range entries {
		if entry.IsDir() || !validFilename.MatchString(entry.Name()) {
			continue
		}
		raw, err := os.ReadFile(filepath.Join(dir, entry.Name()))
		if err != nil {
			return err
		}
		if err := vd.Write(entry.Name(), raw); err != nil {
			return err
		}
	}
	return nil
}
