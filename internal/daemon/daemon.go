package daemon

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log"
	"os"
	"path/filepath"
	"sync"

	"github.com/interviewkit/diffsync/internal/emitter"
	"github.com/interviewkit/diffsync/internal/ignore"
	"github.com/interviewkit/diffsync/internal/tracker"
)

// DefaultMaxFileSize is the largest file the daemon will track.
const DefaultMaxFileSize = 1 << 20

var (
	errTooLarge = errors.New("file too large")
	errBinary   = errors.New("binary file")
)

// Config holds configuration for the daemon.
type Config struct {
	// MaxFileSize skips files larger than this many bytes
	MaxFileSize int64

	// SeedExisting records every existing file at startup, so the first edit
	// of a pre-existing file produces a diff against its on-disk text
	SeedExisting bool

	// Ignore excludes paths relative to the workspace root
	Ignore ignore.Matcher

	// Logger for daemon activity
	Logger *log.Logger
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		MaxFileSize:  DefaultMaxFileSize,
		SeedExisting: true,
		Ignore:       ignore.Default(),
		Logger:       log.New(os.Stderr, "[daemon] ", log.LstdFlags),
	}
}

// Daemon feeds file changes below a workspace root into a tracker and runs
// the emitter that turns them into batches.
type Daemon struct {
	tracker *tracker.Tracker
	emitter *emitter.Emitter
	root    string
	config  *Config

	watcher *FileWatcher
	ready   chan struct{}

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	stopOnce sync.Once
	stopErr  error
}

// New creates a daemon watching root with default configuration.
func New(t *tracker.Tracker, e *emitter.Emitter, root string) (*Daemon, error) {
	return NewWithConfig(t, e, root, DefaultConfig())
}

// NewWithConfig creates a daemon with custom configuration.
func NewWithConfig(t *tracker.Tracker, e *emitter.Emitter, root string, config *Config) (*Daemon, error) {
	if t == nil {
		return nil, fmt.Errorf("tracker cannot be nil")
	}
	if e == nil {
		return nil, fmt.Errorf("emitter cannot be nil")
	}
	if root == "" {
		return nil, fmt.Errorf("root cannot be empty")
	}
	if config == nil {
		config = DefaultConfig()
	}
	if config.MaxFileSize <= 0 {
		config.MaxFileSize = DefaultMaxFileSize
	}
	if config.Ignore == nil {
		config.Ignore = ignore.None
	}
	if config.Logger == nil {
		config.Logger = log.New(os.Stderr, "[daemon] ", log.LstdFlags)
	}

	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve root: %w", err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, fmt.Errorf("failed to stat root: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("root %s is not a directory", abs)
	}

	watcher, err := NewFileWatcher(config.Ignore)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Daemon{
		tracker: t,
		emitter: e,
		root:    abs,
		config:  config,
		watcher: watcher,
		ready:   make(chan struct{}),
		ctx:     ctx,
		cancel:  cancel,
	}, nil
}

// Root returns the absolute workspace root.
func (d *Daemon) Root() string {
	return d.root
}

// Ready is closed once the initial scan is done and the watch is active.
func (d *Daemon) Ready() <-chan struct{} {
	return d.ready
}

// Start seeds the tracker, starts watching and runs the emitter.
//
// This blocks until ctx is cancelled or Stop is called.
func (d *Daemon) Start(ctx context.Context) error {
	d.config.Logger.Printf("Starting daemon in %s", d.root)

	if d.config.SeedExisting {
		n, err := d.Seed()
		if err != nil {
			return fmt.Errorf("initial scan failed: %w", err)
		}
		d.config.Logger.Printf("Tracking %d existing files", n)
	}

	if err := d.watcher.Start(d.root); err != nil {
		return fmt.Errorf("failed to watch %s: %w", d.root, err)
	}
	d.config.Logger.Printf("Watching %d directories", d.watcher.WatchedDirs())

	d.wg.Add(2)
	go d.watchFileEvents()
	go func() {
		defer d.wg.Done()
		if err := d.emitter.Run(d.ctx); err != nil {
			d.config.Logger.Printf("Emitter error: %v", err)
		}
	}()

	close(d.ready)

	select {
	case <-ctx.Done():
		d.config.Logger.Println("Shutdown signal received")
		return d.Stop()
	case <-d.ctx.Done():
		return nil
	}
}

// Stop cancels the daemon, closes the watcher, and waits for the emitter to
// finish its in-flight dispatch. It is safe to call more than once.
func (d *Daemon) Stop() error {
	d.stopOnce.Do(func() {
		d.config.Logger.Println("Stopping daemon")

		d.cancel()

		if err := d.watcher.Stop(); err != nil {
			d.config.Logger.Printf("Error closing watcher: %v", err)
			d.stopErr = err
		}

		d.wg.Wait()

		d.config.Logger.Println("Daemon stopped")
	})
	return d.stopErr
}

// Seed walks the workspace and records the text of every trackable file.
// It returns the number of files recorded.
func (d *Daemon) Seed() (int, error) {
	return d.seedTree(d.root)
}

func (d *Daemon) seedTree(dir string) (int, error) {
	n := 0
	err := filepath.WalkDir(dir, func(path string, entry fs.DirEntry, err error) error {
		if err != nil {
			if path == dir {
				return err
			}
			return nil
		}
		rel, ok := d.rel(path)
		if path != d.root && (!ok || d.config.Ignore.Match(rel)) {
			if entry.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if entry.IsDir() || !entry.Type().IsRegular() {
			return nil
		}
		text, err := readDocument(path, d.config.MaxFileSize)
		if err != nil {
			return nil
		}
		d.tracker.OnEdit(rel, text)
		n++
		return nil
	})
	return n, err
}

func (d *Daemon) watchFileEvents() {
	defer d.wg.Done()

	for {
		select {
		case <-d.ctx.Done():
			return

		case event, ok := <-d.watcher.Events():
			if !ok {
				return
			}
			d.handleEvent(event)

		case err, ok := <-d.watcher.Errors():
			if !ok {
				return
			}
			d.config.Logger.Printf("Watcher error: %v", err)
		}
	}
}

// handleEvent applies one file event to the tracker.
//
// Removals leave the tracked entry in place. Editors that save by renaming the
// old file away and writing a new one produce a delete followed by a create;
// the new text must diff against the last synced text, and any change still
// pending must reach the next batch.
func (d *Daemon) handleEvent(event FileEvent) {
	if event.Op == OpDelete {
		return
	}

	info, err := os.Stat(event.Path)
	if err != nil {
		// gone again before we got to it
		return
	}

	if info.IsDir() {
		// files written before the directory watch was added
		if n, err := d.seedTree(event.Path); err == nil && n > 0 {
			d.config.Logger.Printf("Tracking %d files in new directory %s", n, event.Rel)
		}
		return
	}
	if !info.Mode().IsRegular() {
		return
	}

	text, err := readDocument(event.Path, d.config.MaxFileSize)
	switch {
	case errors.Is(err, errTooLarge), errors.Is(err, errBinary):
		return
	case err != nil:
		d.config.Logger.Printf("Failed to read %s: %v", event.Rel, err)
		return
	}

	d.tracker.OnEdit(event.Rel, text)
}

func (d *Daemon) rel(path string) (string, bool) {
	rel, err := filepath.Rel(d.root, path)
	if err != nil || rel == "." {
		return "", false
	}
	return filepath.ToSlash(rel), true
}

// readDocument returns the text of a tracked file, rejecting files over max
// bytes and files that contain a NUL byte.
func readDocument(path string, max int64) (string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return "", err
	}
	if info.Size() > max {
		return "", fmt.Errorf("%s: %w (%d bytes)", path, errTooLarge, info.Size())
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	if int64(len(data)) > max {
		return "", fmt.Errorf("%s: %w (%d bytes)", path, errTooLarge, len(data))
	}
	if bytes.IndexByte(data, 0) >= 0 {
		return "", fmt.Errorf("%s: %w", path, errBinary)
	}
	return string(data), nil
}
