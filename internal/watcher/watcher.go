// Package watcher turns filesystem notifications under a source root into
// debounced batches of change events.
package watcher

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	apperrors "github.com/maxkimambo/assetpipe/internal/errors"
	"github.com/maxkimambo/assetpipe/internal/fileset"
	"github.com/maxkimambo/assetpipe/internal/logger"
)

// DefaultDebounce is the quiet period used when none is configured
const DefaultDebounce = 100 * time.Millisecond

// EventKind classifies a change
type EventKind string

const (
	Created  EventKind = "created"
	Modified EventKind = "modified"
	Deleted  EventKind = "deleted"
)

// Event is a single change to a file under the root
type Event struct {
	// Path is relative to the root with forward slashes
	Path      string
	Kind      EventKind
	Timestamp time.Time
}

// State is the lifecycle state of a Watcher
type State string

const (
	StateIdle       State = "idle"
	StateQuiescent  State = "quiescent"
	StateDebouncing State = "debouncing"
)

// Watcher watches every directory under a root and reports changes to files
// matched by any of its file sets
type Watcher struct {
	root     string
	sets     []fileset.FileSet
	debounce time.Duration

	mu        sync.Mutex
	fsw       *fsnotify.Watcher
	debouncer *debouncer
	cancel    context.CancelFunc
	done      chan struct{}
}

// New creates a watcher. A zero debounce uses DefaultDebounce. Sets without
// include patterns are dropped since they never match.
func New(root string, sets []fileset.FileSet, debounce time.Duration) *Watcher {
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	if abs, err := filepath.Abs(root); err == nil {
		root = abs
	}
	var live []fileset.FileSet
	for _, set := range sets {
		if !set.IsEmpty() {
			live = append(live, set)
		}
	}
	return &Watcher{
		root:     root,
		sets:     live,
		debounce: debounce,
	}
}

// Start registers the directory tree and begins delivering batches to
// onEvents from a background goroutine. It returns once registration is
// complete. Watching ends when ctx is cancelled or Stop is called.
func (w *Watcher) Start(ctx context.Context, onEvents func([]Event)) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.fsw != nil {
		return apperrors.NewWatchError(apperrors.CodeWatchUnavailable, "Watcher is already running", "Watcher startup")
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return apperrors.NewWatcherUnavailableError(err)
	}
	if err := w.addTree(fsw, w.root); err != nil {
		fsw.Close()
		return err
	}

	loopCtx, cancel := context.WithCancel(ctx)
	w.fsw = fsw
	w.cancel = cancel
	w.done = make(chan struct{})
	w.debouncer = newDebouncer(w.debounce, onEvents)

	go w.loop(loopCtx, fsw, w.debouncer, w.done)

	if logger.Op != nil {
		logger.Op.WithFields(map[string]interface{}{
			"root":     w.root,
			"debounce": w.debounce.String(),
		}).Debug("Watcher started")
	}
	return nil
}

// Stop ends watching and discards pending events. It is safe to call more
// than once and before Start.
func (w *Watcher) Stop() {
	w.mu.Lock()
	fsw, cancel, done, deb := w.fsw, w.cancel, w.done, w.debouncer
	w.fsw, w.cancel, w.done, w.debouncer = nil, nil, nil, nil
	w.mu.Unlock()

	if fsw == nil {
		return
	}
	cancel()
	<-done
	fsw.Close()
	deb.stop()
}

// State reports whether the watcher is idle, quiescent or debouncing
func (w *Watcher) State() State {
	w.mu.Lock()
	defer w.mu.Unlock()
	switch {
	case w.fsw == nil:
		return StateIdle
	case w.debouncer.debouncing():
		return StateDebouncing
	default:
		return StateQuiescent
	}
}

// Done is closed when the background loop exits. It returns nil when the
// watcher has not been started.
func (w *Watcher) Done() <-chan struct{} {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.done
}

func (w *Watcher) loop(ctx context.Context, fsw *fsnotify.Watcher, deb *debouncer, done chan struct{}) {
	defer close(done)
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-fsw.Events:
			if !ok {
				return
			}
			w.handle(fsw, deb, ev)
		case err, ok := <-fsw.Errors:
			if !ok {
				return
			}
			if logger.Op != nil {
				logger.Op.Warnf("Watcher error: %v", err)
			}
		}
	}
}

func (w *Watcher) handle(fsw *fsnotify.Watcher, deb *debouncer, ev fsnotify.Event) {
	var kind EventKind
	switch {
	case ev.Has(fsnotify.Remove), ev.Has(fsnotify.Rename):
		kind = Deleted
	case ev.Has(fsnotify.Create):
		kind = Created
	case ev.Has(fsnotify.Write):
		kind = Modified
	default:
		return
	}

	if kind == Created {
		if info, err := os.Stat(ev.Name); err == nil && info.IsDir() {
			// Files may land in a new directory before it is registered
			if err := w.addTree(fsw, ev.Name); err != nil && logger.Op != nil {
				logger.Op.Warnf("Cannot watch new directory %s: %v", ev.Name, err)
			}
			w.emitExisting(deb, ev.Name)
			return
		}
	}

	w.emit(deb, ev.Name, kind)
}

func (w *Watcher) emit(deb *debouncer, path string, kind EventKind) {
	rel, ok := w.relative(path)
	if !ok || !w.matches(rel) {
		return
	}
	deb.add(Event{Path: rel, Kind: kind, Timestamp: time.Now()})
}

func (w *Watcher) emitExisting(deb *debouncer, dir string) {
	filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if !d.IsDir() {
			w.emit(deb, path, Created)
		}
		return nil
	})
}

// addTree registers dir and every directory below it
func (w *Watcher) addTree(fsw *fsnotify.Watcher, dir string) error {
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == dir {
				return apperrors.NewWatchPathError(path, err)
			}
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		if path != w.root && d.Name() == ".git" {
			return filepath.SkipDir
		}
		if err := fsw.Add(path); err != nil {
			return apperrors.NewWatchPathError(path, err)
		}
		return nil
	})
}

func (w *Watcher) relative(path string) (string, bool) {
	rel, err := filepath.Rel(w.root, path)
	if err != nil || rel == "." || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", false
	}
	return filepath.ToSlash(rel), true
}

func (w *Watcher) matches(rel string) bool {
	for _, set := range w.sets {
		if set.Matches(rel) {
			return true
		}
	}
	return false
}
