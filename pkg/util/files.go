package util

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
)

// pollInterval is how often WaitReadable re-checks when no file event
// arrives.
const pollInterval = 50 * time.Millisecond

// EnsureDir creates a directory if it doesn't exist
func EnsureDir(path string) error {
	return os.MkdirAll(path, 0755)
}

// CleanupFiles removes multiple files, ignoring errors
func CleanupFiles(paths ...string) {
	for _, path := range paths {
		_ = os.Remove(path)
	}
}

// RemoveAllQuiet removes a directory tree, ignoring errors
func RemoveAllQuiet(dir string) {
	if dir == "" {
		return
	}
	_ = os.RemoveAll(dir)
}

// GetExtension returns the lower-cased file extension without the dot
func GetExtension(path string) string {
	return strings.ToLower(strings.TrimPrefix(filepath.Ext(path), "."))
}

// NonEmptyFile reports whether path is a regular file with content
func NonEmptyFile(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular() && info.Size() > 0
}

// WaitReadable blocks until ready(path) reports true, the timeout passes or
// ctx is done. Directory events wake it early; polling covers filesystems
// that do not deliver them.
func WaitReadable(ctx context.Context, path string, timeout time.Duration, ready func(string) bool) error {
	if ready == nil {
		ready = NonEmptyFile
	}
	if ready(path) {
		return nil
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	var (
		events <-chan fsnotify.Event
		errs   <-chan error
	)
	if w, err := fsnotify.NewWatcher(); err == nil {
		defer w.Close()
		if err := w.Add(filepath.Dir(path)); err == nil {
			events, errs = w.Events, w.Errors
		}
	}

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
			return fmt.Errorf("%s not readable after %s", path, timeout)
		case <-ticker.C:
		case _, ok := <-events:
			if !ok {
				events = nil
			}
		case _, ok := <-errs:
			if !ok {
				errs = nil
			}
		}
		if ready(path) {
			return nil
		}
	}
}
