package filesystem

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/s-edling/quackdas-sub000/internal/core/domain"
	"github.com/s-edling/quackdas-sub000/internal/logger"
)

// DefaultDebounce is how long the watcher waits for changes to settle.
const DefaultDebounce = 500 * time.Millisecond

// ErrWatcherClosed is returned by Watch after Close.
var ErrWatcherClosed = errors.New("watcher closed")

// Watcher reloads documents when files under the watched roots change.
type Watcher struct {
	loader   *Loader
	debounce time.Duration

	mu     sync.Mutex
	closed bool
	fsw    *fsnotify.Watcher
}

// NewWatcher creates a watcher. A non-positive debounce uses DefaultDebounce.
func NewWatcher(loader *Loader, debounce time.Duration) *Watcher {
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	return &Watcher{loader: loader, debounce: debounce}
}

// Watch blocks until ctx is done, calling onChange with the full reloaded
// document set after each burst of changes. Load errors are logged and the
// watch continues.
func (w *Watcher) Watch(ctx context.Context, roots []string, onChange func([]domain.Document)) error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return ErrWatcherClosed
	}
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		w.mu.Unlock()
		return fmt.Errorf("create watcher: %w", err)
	}
	w.fsw = fsw
	w.mu.Unlock()
	defer w.Close()

	for _, root := range roots {
		if err := w.addTree(root); err != nil {
			return err
		}
	}

	timer := time.NewTimer(w.debounce)
	timer.Stop()

	for {
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil

		case event, ok := <-fsw.Events:
			if !ok {
				return nil
			}
			if !w.handleEvent(event) {
				continue
			}
			logger.Debug("Change detected: %s %s", event.Op, event.Name)
			timer.Reset(w.debounce)

		case err, ok := <-fsw.Errors:
			if !ok {
				return nil
			}
			logger.Warn("Watch error: %v", err)

		case <-timer.C:
			docs, err := w.loader.Load(ctx, roots...)
			if err != nil {
				if ctx.Err() != nil {
					return nil
				}
				logger.Warn("Reload failed: %v", err)
				continue
			}
			onChange(docs)
		}
	}
}

// Close stops any running watch. It is safe to call more than once.
func (w *Watcher) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.closed = true
	if w.fsw == nil {
		return nil
	}
	err := w.fsw.Close()
	w.fsw = nil
	return err
}

// addTree watches root and every non-hidden directory below it. A file
// root watches its parent directory.
func (w *Watcher) addTree(root string) error {
	info, err := os.Stat(root)
	if err != nil {
		return fmt.Errorf("watch %s: %w", root, err)
	}
	if !info.IsDir() {
		return w.add(filepath.Dir(root))
	}

	return filepath.WalkDir(root, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil || !d.IsDir() {
			return nil
		}
		if rel, _ := filepath.Rel(root, path); rel != "." && isHidden(rel) {
			return filepath.SkipDir
		}
		return w.add(path)
	})
}

func (w *Watcher) add(dir string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.fsw == nil {
		return ErrWatcherClosed
	}
	if err := w.fsw.Add(dir); err != nil {
		return fmt.Errorf("watch %s: %w", dir, err)
	}
	return nil
}

// handleEvent reports whether event should trigger a reload. New
// directories are added to the watch. Hidden directories are never
// watched, so only the base name needs checking.
func (w *Watcher) handleEvent(event fsnotify.Event) bool {
	if strings.HasPrefix(filepath.Base(event.Name), ".") {
		return false
	}
	if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) &&
		!event.Has(fsnotify.Remove) && !event.Has(fsnotify.Rename) {
		return false
	}

	if event.Has(fsnotify.Create) {
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			if err := w.addTree(event.Name); err != nil {
				logger.Warn("Failed to watch new directory: %v", err)
			}
		}
	}
	return true
}
