// Package sink defines the batch boundary of diffsync and its implementations.
//
// A Sink receives one Batch per emitter tick that found changes. The emitter does
// not know whether the batch ends up in object storage, behind an HTTP endpoint,
// in a log line, or in the local journal; it only sees the returned error.
package sink

import (
	"context"
	"fmt"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/interviewkit/diffsync/internal/patch"
)

// Record is the diff of one document within a batch.
type Record struct {
	DocumentID  string      `json:"document_id"`
	DisplayName string      `json:"display_name"`
	Patch       string      `json:"patch"`
	Stats       patch.Stats `json:"stats"`
}

// Batch is the set of records dispatched together in one tick.
type Batch struct {
	ID        string    `json:"id"`
	SessionID string    `json:"session_id,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	Records   []Record  `json:"records"`
}

// NewBatch creates an empty batch with a fresh ULID stamped at now.
func NewBatch(sessionID string, now time.Time) *Batch {
	return &Batch{
		ID:        ulid.MustNew(ulid.Timestamp(now), ulid.DefaultEntropy()).String(),
		SessionID: sessionID,
		CreatedAt: now.UTC(),
	}
}

// Len returns the number of records in the batch.
func (b *Batch) Len() int {
	return len(b.Records)
}

// Sink accepts batches of diff records.
type Sink interface {
	// Send dispatches the batch as a single unit. Implementations must not
	// retain or modify b after returning.
	Send(ctx context.Context, b *Batch) error
}

// Func adapts a function to the Sink interface.
type Func func(ctx context.Context, b *Batch) error

// Send implements Sink.
func (f Func) Send(ctx context.Context, b *Batch) error { return f(ctx, b) }

type named struct {
	name string
	sink Sink
}

// Named wraps a sink so its errors are prefixed with name.
func Named(name string, s Sink) Sink {
	return &named{name: name, sink: s}
}

func (n *named) Send(ctx context.Context, b *Batch) error {
	if err := n.sink.Send(ctx, b); err != nil {
		return fmt.Errorf("%s: %w", n.name, err)
	}
	return nil
}

// Discard is a Sink that drops every batch.
var Discard Sink = Func(func(context.Context, *Batch) error { return nil })
