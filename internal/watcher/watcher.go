// Package watcher re-runs task groups when their source files change. File
// system events come from fsnotify, pass through a Debouncer and are then
// matched against Watch Bindings.
package watcher

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/conneroisu/assetpipe/internal/logging"
	"github.com/conneroisu/assetpipe/internal/pipeline"
)

// ChangeEvent represents a file change event
type ChangeEvent struct {
	Type EventType
	// Path is relative to the watcher root, slash separated.
	Path    string
	ModTime time.Time
}

// EventType represents the type of file change
type EventType int

const (
	EventTypeCreated EventType = iota
	EventTypeModified
	EventTypeDeleted
	EventTypeRenamed
)

// String returns the string representation of the EventType
func (e EventType) String() string {
	switch e {
	case EventTypeCreated:
		return "created"
	case EventTypeModified:
		return "modified"
	case EventTypeDeleted:
		return "deleted"
	case EventTypeRenamed:
		return "renamed"
	default:
		return "unknown"
	}
}

// Config configures a Watcher.
type Config struct {
	// Root is the project directory patterns are relative to.
	Root     string
	Debounce time.Duration
	Bindings []Binding
	Notifier Notifier
	// Ignore lists directories, relative to Root, that are never watched,
	// such as the output directory.
	Ignore []string
	Logger logging.Logger
}

// Watcher watches the base directories of its bindings.
type Watcher struct {
	root      string
	fs        *fsnotify.Watcher
	debouncer *Debouncer
	runners   []*runner
	ignore    map[string]bool
	watched   map[string]bool
	logger    logging.Logger
}

// skipped wherever they appear
var ignoredDirNames = map[string]bool{
	".git":         true,
	"node_modules": true,
}

// New creates a watcher. Nothing is watched until Run.
func New(cfg Config) (*Watcher, error) {
	root, err := filepath.Abs(cfg.Root)
	if err != nil {
		return nil, fmt.Errorf("resolving watch root: %w", err)
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("creating fsnotify watcher: %w", err)
	}

	logger := cfg.Logger.WithComponent("watcher")
	w := &Watcher{
		root:      root,
		fs:        fsw,
		debouncer: NewDebouncer(cfg.Debounce),
		ignore:    make(map[string]bool),
		watched:   make(map[string]bool),
		logger:    logger,
	}
	for _, dir := range cfg.Ignore {
		w.ignore[filepath.Join(root, filepath.FromSlash(dir))] = true
	}
	for _, b := range cfg.Bindings {
		w.runners = append(w.runners, newRunner(b, cfg.Notifier, logger))
	}

	return w, nil
}

// Run watches until ctx is done, then waits for in-flight runs and
// returns. Cancellation is not an error.
func (w *Watcher) Run(ctx context.Context) error {
	defer w.fs.Close()

	if err := w.addBases(); err != nil {
		return err
	}
	w.logger.Info(ctx, "Watching for changes", "root", w.root, "directories", len(w.watched))

	for {
		select {
		case <-ctx.Done():
			w.debouncer.Stop()
			w.Wait()
			return nil
		case event, ok := <-w.fs.Events:
			if !ok {
				return nil
			}
			w.handleFsnotifyEvent(ctx, event)
		case err, ok := <-w.fs.Errors:
			if !ok {
				return nil
			}
			// Log error but continue watching
			w.logger.Warn(ctx, err, "File watcher error")
		case batch := <-w.debouncer.Batches():
			w.Dispatch(ctx, batch)
		}
	}
}

// Dispatch triggers every binding matching at least one event of batch,
// once per batch.
func (w *Watcher) Dispatch(ctx context.Context, batch []ChangeEvent) {
	for _, r := range w.runners {
		for _, event := range batch {
			if r.binding.Matches(event.Path) {
				w.logger.Debug(ctx, "Change triggers rebuild", "binding", r.binding.Name, "path", event.Path, "type", event.Type.String())
				r.trigger(ctx)
				break
			}
		}
	}
}

// Wait blocks until no binding is running.
func (w *Watcher) Wait() {
	for _, r := range w.runners {
		r.wait()
	}
}

// addBases watches the glob base of every pattern. A base that does not
// exist yet is covered by watching its closest existing ancestor, so its
// creation is seen.
func (w *Watcher) addBases() error {
	for _, r := range w.runners {
		for _, pattern := range r.binding.Patterns {
			base := filepath.Join(w.root, filepath.FromSlash(pipeline.GlobBase(pattern)))

			dir := base
			for {
				if info, err := os.Stat(dir); err == nil && info.IsDir() {
					break
				}
				parent := filepath.Dir(dir)
				if parent == dir || !w.within(parent) {
					dir = ""
					break
				}
				dir = parent
			}
			if dir == "" {
				continue
			}

			if dir != base {
				if err := w.add(dir); err != nil {
					return err
				}
				continue
			}
			if err := w.addRecursive(dir); err != nil {
				return err
			}
		}
	}
	return nil
}

func (w *Watcher) within(path string) bool {
	rel, err := filepath.Rel(w.root, path)
	return err == nil && (rel == "." || filepath.IsLocal(rel))
}

func (w *Watcher) skip(dir string) bool {
	return ignoredDirNames[filepath.Base(dir)] || w.ignore[dir]
}

func (w *Watcher) add(dir string) error {
	if w.watched[dir] || w.skip(dir) {
		return nil
	}
	if err := w.fs.Add(dir); err != nil {
		return fmt.Errorf("watching %s: %w", dir, err)
	}
	w.watched[dir] = true
	return nil
}

// addRecursive adds a directory and all subdirectories to watch
func (w *Watcher) addRecursive(root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			// vanished while walking
			if errors.Is(err, fs.ErrNotExist) {
				return nil
			}
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if w.skip(path) {
			return filepath.SkipDir
		}
		return w.add(path)
	})
}

func (w *Watcher) handleFsnotifyEvent(ctx context.Context, event fsnotify.Event) {
	if event.Op == fsnotify.Chmod {
		return
	}

	rel, err := filepath.Rel(w.root, event.Name)
	if err != nil || !filepath.IsLocal(rel) {
		return
	}
	for dir := filepath.Dir(event.Name); w.within(dir); dir = filepath.Dir(dir) {
		if w.skip(dir) {
			return
		}
		if dir == w.root {
			break
		}
	}

	var modTime time.Time
	info, statErr := os.Stat(event.Name)
	if statErr == nil {
		modTime = info.ModTime()
	}

	var eventType EventType
	switch {
	case event.Op&fsnotify.Create == fsnotify.Create:
		eventType = EventTypeCreated
		if statErr == nil && info.IsDir() {
			if err := w.addRecursive(event.Name); err != nil {
				w.logger.Warn(ctx, err, "Cannot watch new directory", "path", event.Name)
			}
		}
	case event.Op&fsnotify.Write == fsnotify.Write:
		eventType = EventTypeModified
	case event.Op&fsnotify.Remove == fsnotify.Remove:
		eventType = EventTypeDeleted
	case event.Op&fsnotify.Rename == fsnotify.Rename:
		eventType = EventTypeRenamed
	default:
		eventType = EventTypeModified
	}

	w.debouncer.Add(ChangeEvent{
		Type:    eventType,
		Path:    filepath.ToSlash(rel),
		ModTime: modTime,
	})
}
