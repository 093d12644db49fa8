package utils

import (
	"context"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultDebounce coalesces the burst of events an editor produces when it
// saves a file.
const DefaultDebounce = 100 * time.Millisecond

// WatchFile calls onChange each time path is written or replaced, until ctx
// is cancelled. The parent directory is watched so that editors which save
// by renaming a temporary file are still seen. Events closer together than
// debounce produce a single call.
func WatchFile(ctx context.Context, path string, debounce time.Duration, onChange func()) error {
	full, dir, err := GetPathInfo(path)
	if err != nil {
		return err
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()
	if err := w.Add(dir); err != nil {
		return err
	}

	var timer *time.Timer
	var fire <-chan time.Time
	for {
		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			return ctx.Err()

		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != full {
				continue
			}
			if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Rename) {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(debounce)
			} else {
				timer.Reset(debounce)
			}
			fire = timer.C

		case <-fire:
			fire = nil
			onChange()

		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			return err
		}
	}
}
