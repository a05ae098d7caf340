// Package watch reruns a callback when application sources change.
package watch

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/phobologic/railscope/internal/discover"
)

// DefaultDebounce is used when Options.Debounce is zero.
const DefaultDebounce = 250 * time.Millisecond

// ErrNothingToWatch is returned when none of the configured paths exist.
var ErrNothingToWatch = errors.New("no directories to watch")

// Options selects what to watch. Paths are relative to Root.
type Options struct {
	Root string
	// Dirs are watched recursively for Ruby and jbuilder files.
	Dirs []string
	// Files are single files (route table, config) watched by name.
	Files    []string
	Debounce time.Duration
	Logger   *slog.Logger
}

// Run blocks until ctx is done, calling onChange with the sorted relative
// paths that changed in each debounce window.
func Run(ctx context.Context, opts Options, onChange func(changed []string)) error {
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	root := filepath.Clean(opts.Root)
	files := make(map[string]bool, len(opts.Files))
	watched := 0
	for _, dir := range opts.Dirs {
		n, err := addRecursive(watcher, filepath.Join(root, dir))
		if err != nil {
			return err
		}
		watched += n
	}
	for _, f := range opts.Files {
		files[filepath.ToSlash(filepath.Clean(f))] = true
		if err := watcher.Add(filepath.Dir(filepath.Join(root, f))); err == nil {
			watched++
		}
	}
	if watched == 0 {
		return ErrNothingToWatch
	}
	logger.Debug("watching", "root", root, "dirs", watched)

	debounce := opts.Debounce
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	timer := time.NewTimer(debounce)
	timer.Stop()
	pending := map[string]bool{}

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			path := filepath.Clean(event.Name)
			if event.Has(fsnotify.Create) {
				if info, err := os.Stat(path); err == nil && info.IsDir() {
					if _, err := addRecursive(watcher, path); err != nil {
						logger.Warn("watching new directory", "path", path, "error", err)
					}
					continue
				}
			}
			rel, err := filepath.Rel(root, path)
			if err != nil {
				continue
			}
			rel = filepath.ToSlash(rel)
			if !Relevant(rel, files) {
				continue
			}
			pending[rel] = true
			timer.Reset(debounce)
		case <-timer.C:
			if len(pending) == 0 {
				continue
			}
			changed := make([]string, 0, len(pending))
			for p := range pending {
				changed = append(changed, p)
			}
			sort.Strings(changed)
			pending = map[string]bool{}
			onChange(changed)
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			return err
		}
	}
}

// Relevant reports whether a change to rel should trigger a rerun. rel is
// slash-separated and relative to the watched root.
func Relevant(path string, files map[string]bool) bool {
	if files[path] {
		return true
	}
	base := filepath.Base(path)
	if base == "" || base[0] == '.' || base[0] == '#' {
		return false
	}
	return discover.ForPath(base) != "" && !discover.IsTestFile(path)
}

// addRecursive watches dir and its subdirectories. A missing dir is not an
// error; the count of watched directories is returned.
func addRecursive(watcher *fsnotify.Watcher, dir string) (int, error) {
	if info, err := os.Stat(dir); err != nil || !info.IsDir() {
		return 0, nil
	}
	n := 0
	err := filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if path != dir && discover.SkipDir(d.Name()) {
			return filepath.SkipDir
		}
		n++
		return watcher.Add(path)
	})
	return n, err
}
