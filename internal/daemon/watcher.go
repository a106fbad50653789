package daemon

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"

	"github.com/interviewkit/diffsync/internal/ignore"
)

// EventOp represents the type of file system operation.
type EventOp int

const (
	// OpCreate indicates a new file was created.
	OpCreate EventOp = iota
	// OpModify indicates an existing file was modified.
	OpModify
	// OpDelete indicates a file was deleted or renamed away.
	OpDelete
)

// String returns a human-readable representation of the operation.
func (op EventOp) String() string {
	switch op {
	case OpCreate:
		return "create"
	case OpModify:
		return "modify"
	case OpDelete:
		return "delete"
	default:
		return "unknown"
	}
}

// FileEvent represents a file system event below the watched root.
type FileEvent struct {
	// Path is the absolute path of the file that changed.
	Path string
	// Rel is Path relative to the watched root, slash separated.
	Rel string
	// Op is the operation that occurred (create, modify, delete).
	Op EventOp
}

// FileWatcher watches a directory tree for changes.
//
// Every directory below the root is watched, except those the ignore matcher
// excludes. Directories created while the watcher runs are added as they appear.
type FileWatcher struct {
	watcher *fsnotify.Watcher
	ignore  ignore.Matcher
	events  chan FileEvent
	errors  chan error
	done    chan struct{}
	wg      sync.WaitGroup
	mu      sync.Mutex
	running bool
	root    string
	dirs    map[string]bool
}

// NewFileWatcher creates a new FileWatcher. A nil matcher ignores nothing.
// The watcher must be started with Start() before it will emit events.
func NewFileWatcher(m ignore.Matcher) (*FileWatcher, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create fsnotify watcher: %w", err)
	}
	if m == nil {
		m = ignore.None
	}

	return &FileWatcher{
		watcher: watcher,
		ignore:  m,
		events:  make(chan FileEvent, 100),
		errors:  make(chan error, 10),
		done:    make(chan struct{}),
		dirs:    make(map[string]bool),
	}, nil
}

// Start begins watching root and every non-ignored directory below it.
func (fw *FileWatcher) Start(root string) error {
	fw.mu.Lock()
	defer fw.mu.Unlock()

	if fw.running {
		return fmt.Errorf("watcher already running")
	}

	abs, err := filepath.Abs(root)
	if err != nil {
		return fmt.Errorf("failed to resolve %s: %w", root, err)
	}
	fw.root = abs

	if err := fw.addTree(abs); err != nil {
		return err
	}

	fw.running = true
	fw.wg.Add(1)
	go fw.processEvents()

	return nil
}

// Stop stops watching and blocks until the event loop has exited.
// The Events() and Errors() channels are closed afterwards.
func (fw *FileWatcher) Stop() error {
	fw.mu.Lock()
	if !fw.running {
		fw.mu.Unlock()
		return fw.watcher.Close()
	}
	fw.running = false
	fw.mu.Unlock()

	close(fw.done)

	if err := fw.watcher.Close(); err != nil {
		return fmt.Errorf("failed to close watcher: %w", err)
	}

	fw.wg.Wait()

	close(fw.events)
	close(fw.errors)

	return nil
}

// Events returns the channel that emits FileEvent notifications.
func (fw *FileWatcher) Events() <-chan FileEvent {
	return fw.events
}

// Errors returns the channel that emits watcher errors.
func (fw *FileWatcher) Errors() <-chan error {
	return fw.errors
}

// Root returns the absolute watched root.
func (fw *FileWatcher) Root() string {
	fw.mu.Lock()
	defer fw.mu.Unlock()
	return fw.root
}

// WatchedDirs returns the number of directories currently watched.
func (fw *FileWatcher) WatchedDirs() int {
	fw.mu.Lock()
	defer fw.mu.Unlock()
	return len(fw.dirs)
}

// IsRunning returns true if the watcher is currently running.
func (fw *FileWatcher) IsRunning() bool {
	fw.mu.Lock()
	defer fw.mu.Unlock()
	return fw.running
}

// Rel returns path relative to the watched root in slash form.
func (fw *FileWatcher) Rel(path string) (string, bool) {
	rel, err := filepath.Rel(fw.root, path)
	if err != nil {
		return "", false
	}
	rel = filepath.ToSlash(rel)
	if rel == "." || rel == ".." || strings.HasPrefix(rel, "../") {
		return "", false
	}
	return rel, true
}

// addTree watches dir and all non-ignored directories below it.
// Callers hold fw.mu.
func (fw *FileWatcher) addTree(dir string) error {
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == dir {
				return fmt.Errorf("failed to walk %s: %w", dir, err)
			}
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		if path != fw.root {
			if rel, ok := fw.Rel(path); !ok || fw.ignore.Match(rel) {
				return filepath.SkipDir
			}
		}
		if fw.dirs[path] {
			return nil
		}
		if err := fw.watcher.Add(path); err != nil {
			if path == dir {
				return fmt.Errorf("failed to watch directory %s: %w", path, err)
			}
			return nil
		}
		fw.dirs[path] = true
		return nil
	})
}

func (fw *FileWatcher) processEvents() {
	defer fw.wg.Done()

	for {
		select {
		case <-fw.done:
			return

		case event, ok := <-fw.watcher.Events:
			if !ok {
				return
			}

			if fileEvent, ok := fw.convertEvent(event); ok {
				select {
				case fw.events <- fileEvent:
				case <-fw.done:
					return
				}
			}

		case err, ok := <-fw.watcher.Errors:
			if !ok {
				return
			}

			select {
			case fw.errors <- err:
			case <-fw.done:
				return
			}
		}
	}
}

// convertEvent converts an fsnotify event to a FileEvent.
// New directories are added to the watch before their event is delivered.
func (fw *FileWatcher) convertEvent(event fsnotify.Event) (FileEvent, bool) {
	rel, ok := fw.Rel(event.Name)
	if !ok || fw.ignore.Match(rel) {
		return FileEvent{}, false
	}

	var op EventOp
	switch {
	case event.Has(fsnotify.Create):
		op = OpCreate
	case event.Has(fsnotify.Write):
		op = OpModify
	case event.Has(fsnotify.Remove), event.Has(fsnotify.Rename):
		// the new name of a rename arrives as a separate Create
		op = OpDelete
	default:
		return FileEvent{}, false
	}

	if op == OpDelete {
		fw.mu.Lock()
		if fw.dirs[event.Name] {
			delete(fw.dirs, event.Name)
		}
		fw.mu.Unlock()
	}

	if op == OpCreate {
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			fw.mu.Lock()
			if err := fw.addTree(event.Name); err != nil {
				fw.mu.Unlock()
				select {
				case fw.errors <- err:
				default:
				}
				return FileEvent{}, false
			}
			fw.mu.Unlock()
			return FileEvent{Path: event.Name, Rel: rel, Op: OpCreate}, true
		}
	}

	return FileEvent{Path: event.Name, Rel: rel, Op: op}, true
}
