// Package daemon watches a workspace directory and feeds its files into the
// change tracker while the batch emitter runs.
//
// # Architecture
//
// The daemon consists of two components:
//
//   - FileWatcher: recursive fsnotify watch of the workspace root
//   - Daemon: applies file events to the tracker and runs the emitter
//
// Document identifiers are paths relative to the workspace root in slash form
// ("src/main.go"), so ignore rules and journal lookups do not depend on where
// the workspace lives on disk.
//
// # File Watching
//
//	fw, err := daemon.NewFileWatcher(ignore.Default())
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer fw.Stop()
//
//	if err := fw.Start("/path/to/workspace"); err != nil {
//	    log.Fatal(err)
//	}
//
//	for event := range fw.Events() {
//	    fmt.Printf("%s %s\n", event.Op, event.Rel)
//	}
//
// Directories matching the ignore rules are never watched. Directories created
// while the watcher runs are added before their create event is delivered.
//
// The watcher maps fsnotify operations as follows:
//   - fsnotify.Create → OpCreate
//   - fsnotify.Write → OpModify
//   - fsnotify.Remove → OpDelete
//   - fsnotify.Rename → OpDelete (the new name triggers a separate Create)
//
// # Tracking
//
// On create or modify the daemon reads the whole file and calls
// Tracker.OnEdit with its text. Files larger than Config.MaxFileSize or
// containing a NUL byte are not tracked. Deletes leave the document tracked:
// when a file is recreated under the same name, as editors that save through a
// rename do, its new text is diffed against the text last synced.
//
// With Config.SeedExisting set, every existing file is recorded before the
// watch starts, so the first edit of a file that was already on disk yields a
// diff against its original text.
//
// # Graceful Shutdown
//
// Start blocks until its context is cancelled. Stop (called by Start on
// cancellation) closes the watcher and waits for the emitter to return, which
// in turn waits for any in-flight dispatch.
package daemon
