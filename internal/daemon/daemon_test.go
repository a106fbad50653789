package daemon

import (
	"context"
	"errors"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/interviewkit/diffsync/internal/emitter"
	"github.com/interviewkit/diffsync/internal/ignore"
	"github.com/interviewkit/diffsync/internal/sink"
	"github.com/interviewkit/diffsync/internal/tracker"
)

func testLogger() *log.Logger {
	return log.New(io.Discard, "", 0)
}

func writeFile(t *testing.T, path, text string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatalf("MkdirAll() failed: %v", err)
	}
	if err := os.WriteFile(path, []byte(text), 0644); err != nil {
		t.Fatalf("WriteFile() failed: %v", err)
	}
}

// eventually polls cond until it holds or the deadline passes.
func eventually(t *testing.T, what string, cond func() bool) {
	t.Helper()

	deadline := time.Now().Add(3 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timeout waiting for %s", what)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

type fixture struct {
	root    string
	tracker *tracker.Tracker
	emitter *emitter.Emitter
	daemon  *Daemon
	batches chan *sink.Batch
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	f := &fixture{
		root:    t.TempDir(),
		tracker: tracker.New(ignore.Default()),
		batches: make(chan *sink.Batch, 16),
	}

	capture := sink.Func(func(_ context.Context, b *sink.Batch) error {
		f.batches <- b
		return nil
	})

	var err error
	f.emitter, err = emitter.New(f.tracker, capture, &emitter.Config{
		Interval:        time.Minute,
		DispatchTimeout: time.Second,
		Ignore:          ignore.Default(),
		Clock:           clockwork.NewFakeClock(),
		Logger:          testLogger(),
	})
	if err != nil {
		t.Fatalf("emitter.New() failed: %v", err)
	}

	return f
}

func (f *fixture) start(t *testing.T, config *Config) {
	t.Helper()

	d, err := NewWithConfig(f.tracker, f.emitter, f.root, config)
	if err != nil {
		t.Fatalf("NewWithConfig() failed: %v", err)
	}
	f.daemon = d

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- d.Start(ctx) }()

	t.Cleanup(func() {
		cancel()
		select {
		case err := <-done:
			if err != nil {
				t.Errorf("Start() returned %v", err)
			}
		case <-time.After(3 * time.Second):
			t.Error("daemon did not stop")
		}
	})

	select {
	case <-d.Ready():
	case err := <-done:
		t.Fatalf("Start() failed: %v", err)
	case <-time.After(3 * time.Second):
		t.Fatal("daemon never became ready")
	}
}

func testConfig(seed bool) *Config {
	return &Config{
		MaxFileSize:  64,
		SeedExisting: seed,
		Ignore:       ignore.Default(),
		Logger:       testLogger(),
	}
}

func TestNewWithConfig_Validation(t *testing.T) {
	f := newFixture(t)
	file := filepath.Join(f.root, "file.txt")
	writeFile(t, file, "x")

	tests := []struct {
		name    string
		tracker *tracker.Tracker
		emitter *emitter.Emitter
		root    string
	}{
		{"nil tracker", nil, f.emitter, f.root},
		{"nil emitter", f.tracker, nil, f.root},
		{"empty root", f.tracker, f.emitter, ""},
		{"missing root", f.tracker, f.emitter, filepath.Join(f.root, "missing")},
		{"root is a file", f.tracker, f.emitter, file},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := NewWithConfig(tt.tracker, tt.emitter, tt.root, nil); err == nil {
				t.Error("NewWithConfig() should fail")
			}
		})
	}
}

func TestSeed(t *testing.T) {
	f := newFixture(t)
	writeFile(t, filepath.Join(f.root, "main.go"), "package main\n")
	writeFile(t, filepath.Join(f.root, "pkg", "util.go"), "package pkg\n")
	writeFile(t, filepath.Join(f.root, "node_modules", "x.js"), "x")
	writeFile(t, filepath.Join(f.root, "big.txt"), strings.Repeat("a", 100))
	writeFile(t, filepath.Join(f.root, "blob.bin"), "ab\x00cd")

	d, err := NewWithConfig(f.tracker, f.emitter, f.root, testConfig(true))
	if err != nil {
		t.Fatalf("NewWithConfig() failed: %v", err)
	}
	defer d.Stop()

	n, err := d.Seed()
	if err != nil {
		t.Fatalf("Seed() failed: %v", err)
	}
	if n != 2 {
		t.Errorf("Seed() = %d, want 2", n)
	}

	for _, id := range []string{"main.go", "pkg/util.go"} {
		doc, ok := f.tracker.Get(id)
		if !ok {
			t.Errorf("%s not tracked", id)
			continue
		}
		if doc.Pending() {
			t.Errorf("%s should not be pending after seeding", id)
		}
	}
	if f.tracker.Len() != 2 {
		t.Errorf("tracker.Len() = %d, want 2", f.tracker.Len())
	}
}

func TestDaemon_EditProducesDiff(t *testing.T) {
	f := newFixture(t)
	path := filepath.Join(f.root, "main.go")
	writeFile(t, path, "package main\n")

	f.start(t, testConfig(true))

	want := "package main\n\nfunc main() {}\n"
	writeFile(t, path, want)
	eventually(t, "edit to reach the tracker", func() bool {
		doc, _ := f.tracker.Get("main.go")
		return doc.CurrentText == want
	})

	res := f.emitter.Tick(context.Background())
	if res.Err != nil || res.Records != 1 {
		t.Fatalf("Tick() = %+v", res)
	}
	b := <-f.batches
	if r := b.Records[0]; r.DocumentID != "main.go" || !strings.Contains(r.Patch, "+func main() {}") {
		t.Errorf("record = %+v", r)
	}
}

func TestDaemon_NewFileFirstEditHasNoDiff(t *testing.T) {
	f := newFixture(t)
	f.start(t, testConfig(false))

	// renamed into place so the watcher sees one create with the full text
	tmp := filepath.Join(t.TempDir(), "new.txt")
	writeFile(t, tmp, "hello")
	if err := os.Rename(tmp, filepath.Join(f.root, "new.txt")); err != nil {
		t.Fatalf("Rename() failed: %v", err)
	}
	eventually(t, "new file to be tracked", func() bool {
		_, ok := f.tracker.Get("new.txt")
		return ok
	})

	if f.tracker.PendingCount() != 0 {
		t.Errorf("a newly seen document must not be pending")
	}
}

func TestDaemon_RenameSaveProducesDiff(t *testing.T) {
	f := newFixture(t)
	path := filepath.Join(f.root, "main.go")
	writeFile(t, path, "old\n")

	f.start(t, testConfig(true))

	// the way vim and emacs save: move the original aside, write a new file
	if err := os.Rename(path, path+"~"); err != nil {
		t.Fatalf("Rename() failed: %v", err)
	}
	writeFile(t, path, "new\n")
	eventually(t, "saved text to reach the tracker", func() bool {
		doc, _ := f.tracker.Get("main.go")
		return doc.CurrentText == "new\n"
	})

	doc, _ := f.tracker.Get("main.go")
	if doc.LastSyncedText != "old\n" {
		t.Fatalf("LastSyncedText = %q, want %q", doc.LastSyncedText, "old\n")
	}

	res := f.emitter.Tick(context.Background())
	if res.Err != nil || res.Records == 0 {
		t.Fatalf("Tick() = %+v, want a batch for main.go", res)
	}
	b := <-f.batches
	var found bool
	for _, r := range b.Records {
		if r.DocumentID != "main.go" {
			continue
		}
		found = true
		if !strings.Contains(r.Patch, "-old") || !strings.Contains(r.Patch, "+new") {
			t.Errorf("patch = %q", r.Patch)
		}
	}
	if !found {
		t.Errorf("batch has no record for main.go: %+v", b.Records)
	}
}

func TestDaemon_DeleteKeepsPendingChange(t *testing.T) {
	f := newFixture(t)
	path := filepath.Join(f.root, "gone.txt")
	writeFile(t, path, "bye")

	f.start(t, testConfig(true))

	writeFile(t, path, "bye now")
	eventually(t, "edit to reach the tracker", func() bool {
		doc, _ := f.tracker.Get("gone.txt")
		return doc.CurrentText == "bye now"
	})
	if err := os.Remove(path); err != nil {
		t.Fatalf("Remove() failed: %v", err)
	}

	// a marker written after the removal proves the delete was handled
	writeFile(t, filepath.Join(f.root, "marker.txt"), "ok")
	eventually(t, "marker to be tracked", func() bool {
		_, ok := f.tracker.Get("marker.txt")
		return ok
	})

	doc, ok := f.tracker.Get("gone.txt")
	if !ok {
		t.Fatal("removed document was evicted")
	}
	if !doc.Pending() {
		t.Error("pending change was lost on remove")
	}
}

func TestDaemon_SkipsIgnoredAndBinary(t *testing.T) {
	f := newFixture(t)
	f.start(t, testConfig(false))

	writeFile(t, filepath.Join(f.root, "app.log"), "noise")
	writeFile(t, filepath.Join(f.root, "image.png"), "\x89PNG\x00\x00")
	writeFile(t, filepath.Join(f.root, "marker.txt"), "ok")

	eventually(t, "marker to be tracked", func() bool {
		_, ok := f.tracker.Get("marker.txt")
		return ok
	})
	if _, ok := f.tracker.Get("app.log"); ok {
		t.Error("ignored file was tracked")
	}
	if _, ok := f.tracker.Get("image.png"); ok {
		t.Error("binary file was tracked")
	}
}

func TestDaemon_StopIsIdempotent(t *testing.T) {
	f := newFixture(t)
	d, err := NewWithConfig(f.tracker, f.emitter, f.root, testConfig(false))
	if err != nil {
		t.Fatalf("NewWithConfig() failed: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- d.Start(ctx) }()
	<-d.Ready()

	if err := d.Stop(); err != nil {
		t.Fatalf("Stop() failed: %v", err)
	}
	if err := d.Stop(); err != nil {
		t.Fatalf("second Stop() failed: %v", err)
	}
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Start() = %v after Stop()", err)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("Start() did not return after Stop()")
	}
}

func TestReadDocument(t *testing.T) {
	dir := t.TempDir()

	tests := []struct {
		name    string
		content string
		wantErr error
	}{
		{"text", "hello\nworld\n", nil},
		{"empty", "", nil},
		{"too large", strings.Repeat("x", 65), errTooLarge},
		{"binary", "a\x00b", errBinary},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(dir, strings.ReplaceAll(tt.name, " ", "_"))
			writeFile(t, path, tt.content)

			got, err := readDocument(path, 64)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Errorf("readDocument() error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil || got != tt.content {
				t.Errorf("readDocument() = %q, %v", got, err)
			}
		})
	}
}
