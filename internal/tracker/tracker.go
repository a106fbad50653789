// Package tracker keeps the last-synced and current full text of every tracked document.
//
// The tracker is the only shared mutable state of a session. Edit notifications
// call OnEdit; the batch emitter calls Collect once per tick. Both take the same
// mutex, and Collect reads, snapshots and marks entries synced under a single
// lock hold, so an edit arriving mid-tick is deferred to the next tick rather
// than lost.
package tracker

import (
	"sync"

	"github.com/interviewkit/diffsync/internal/ignore"
)

// Document is the tracked state of one document.
type Document struct {
	// ID is the opaque, stable document identifier (path or URI).
	ID string
	// LastSyncedText is the full text as of the last batch inclusion.
	LastSyncedText string
	// CurrentText is the full text as of the most recent edit notification.
	CurrentText string
}

// Pending reports whether the document has changes not yet included in a batch.
func (d Document) Pending() bool {
	return d.CurrentText != d.LastSyncedText
}

// Snapshot is the pair of texts captured for one document during Collect.
type Snapshot struct {
	ID       string
	Previous string
	Current  string
}

// Tracker maps document identifiers to their tracked state, in insertion order.
type Tracker struct {
	ignore ignore.Matcher

	mu    sync.Mutex
	docs  map[string]*Document
	order []string
}

// New creates an empty Tracker. A nil matcher ignores nothing.
func New(m ignore.Matcher) *Tracker {
	if m == nil {
		m = ignore.None
	}
	return &Tracker{
		ignore: m,
		docs:   make(map[string]*Document),
	}
}

// OnEdit records the full text of a document after an edit.
//
// An unseen document starts with both texts equal to text, so it has no pending
// change. Ignored identifiers are dropped.
func (t *Tracker) OnEdit(id, text string) {
	if t.ignore.Match(id) {
		return
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if doc, ok := t.docs[id]; ok {
		doc.CurrentText = text
		return
	}
	t.docs[id] = &Document{ID: id, LastSyncedText: text, CurrentText: text}
	t.order = append(t.order, id)
}

// Forget stops tracking a document. Unknown identifiers are ignored.
func (t *Tracker) Forget(id string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, ok := t.docs[id]; !ok {
		return
	}
	delete(t.docs, id)
	for i, v := range t.order {
		if v == id {
			t.order = append(t.order[:i], t.order[i+1:]...)
			break
		}
	}
}

// Collect returns a snapshot of every document with a pending change, in
// insertion order, and marks each returned document synced.
//
// Documents for which skip returns true are left untouched. A nil skip skips nothing.
func (t *Tracker) Collect(skip func(id string) bool) []Snapshot {
	t.mu.Lock()
	defer t.mu.Unlock()

	var out []Snapshot
	for _, id := range t.order {
		doc := t.docs[id]
		if !doc.Pending() {
			continue
		}
		if skip != nil && skip(id) {
			continue
		}
		out = append(out, Snapshot{
			ID:       id,
			Previous: doc.LastSyncedText,
			Current:  doc.CurrentText,
		})
		doc.LastSyncedText = doc.CurrentText
	}
	return out
}

// Get returns a copy of the tracked state for id.
func (t *Tracker) Get(id string) (Document, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	doc, ok := t.docs[id]
	if !ok {
		return Document{}, false
	}
	return *doc, true
}

// Len returns the number of tracked documents.
func (t *Tracker) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.docs)
}

// PendingCount returns the number of documents with unsynced changes.
func (t *Tracker) PendingCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()

	n := 0
	for _, doc := range t.docs {
		if doc.Pending() {
			n++
		}
	}
	return n
}
