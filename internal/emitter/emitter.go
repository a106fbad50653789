// Package emitter turns pending tracker changes into batches of unified diffs.
//
// On every tick the emitter collects each changed document from the tracker,
// computes a patch from its last-synced text to its current text, and hands the
// resulting batch to a sink as one unit. Documents are marked synced when they
// are collected, before the sink is called: a failed dispatch is logged,
// reported to the OnDispatch observer, and dropped. There is no retry.
package emitter

import (
	"context"
	"fmt"
	"log"
	"os"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/interviewkit/diffsync/internal/ignore"
	"github.com/interviewkit/diffsync/internal/patch"
	"github.com/interviewkit/diffsync/internal/sink"
	"github.com/interviewkit/diffsync/internal/tracker"
)

// Config holds configuration for the emitter.
type Config struct {
	// Interval is the tick period.
	Interval time.Duration

	// DispatchTimeout bounds a single sink call. In-flight dispatches are not
	// cancelled by shutdown; they run until they finish or time out.
	DispatchTimeout time.Duration

	// SessionID is stamped on every batch for downstream attribution.
	SessionID string

	// Ignore is re-evaluated for every pending document on each tick.
	Ignore ignore.Matcher

	// FlushOnStop runs one last tick when Run's context is cancelled.
	FlushOnStop bool

	// OnDispatch, if set, is called after every dispatch attempt.
	OnDispatch func(Result)

	// Clock drives the ticker; tests inject a fake clock.
	Clock clockwork.Clock

	// Logger for emitter activity
	Logger *log.Logger
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Interval:        10 * time.Second,
		DispatchTimeout: 30 * time.Second,
		Ignore:          ignore.Default(),
		Clock:           clockwork.NewRealClock(),
		Logger:          log.New(os.Stderr, "[emitter] ", log.LstdFlags),
	}
}

// Result describes one dispatch attempt.
type Result struct {
	BatchID  string
	Records  int
	Err      error
	Duration time.Duration
}

// Dispatched reports whether the tick produced a batch and called the sink.
func (r Result) Dispatched() bool {
	return r.BatchID != ""
}

// Emitter periodically dispatches batches of diffs for changed documents.
type Emitter struct {
	tracker *tracker.Tracker
	sink    sink.Sink
	config  *Config

	inflight sync.WaitGroup

	mu      sync.Mutex
	running bool
}

// New creates an emitter reading from t and dispatching to s.
func New(t *tracker.Tracker, s sink.Sink, config *Config) (*Emitter, error) {
	if t == nil {
		return nil, fmt.Errorf("tracker cannot be nil")
	}
	if s == nil {
		return nil, fmt.Errorf("sink cannot be nil")
	}
	if config == nil {
		config = DefaultConfig()
	}
	if config.Interval <= 0 {
		return nil, fmt.Errorf("interval must be positive, got %v", config.Interval)
	}
	if config.DispatchTimeout <= 0 {
		config.DispatchTimeout = DefaultConfig().DispatchTimeout
	}
	if config.Ignore == nil {
		config.Ignore = ignore.None
	}
	if config.Clock == nil {
		config.Clock = clockwork.NewRealClock()
	}
	if config.Logger == nil {
		config.Logger = log.New(os.Stderr, "[emitter] ", log.LstdFlags)
	}

	return &Emitter{
		tracker: t,
		sink:    s,
		config:  config,
	}, nil
}

// Build collects pending changes and returns them as a batch, or nil when no
// document changed. Every document included is marked synced.
func (e *Emitter) Build() *sink.Batch {
	snaps := e.tracker.Collect(e.config.Ignore.Match)
	if len(snaps) == 0 {
		return nil
	}

	b := sink.NewBatch(e.config.SessionID, e.config.Clock.Now())
	b.Records = make([]sink.Record, 0, len(snaps))
	for _, s := range snaps {
		name := patch.DisplayName(s.ID)
		b.Records = append(b.Records, sink.Record{
			DocumentID:  s.ID,
			DisplayName: name,
			Patch:       patch.Unified(name, s.Previous, s.Current),
			Stats:       patch.Measure(s.Previous, s.Current),
		})
	}
	return b
}

// Tick runs one tick synchronously. It never returns an error: a dispatch
// failure is reported in the Result.
func (e *Emitter) Tick(ctx context.Context) Result {
	b := e.Build()
	if b == nil {
		return Result{}
	}
	return e.dispatch(ctx, b)
}

// Run ticks every Interval until ctx is cancelled. Dispatches run in the
// background; Run returns only after the last one has finished.
func (e *Emitter) Run(ctx context.Context) error {
	e.mu.Lock()
	if e.running {
		e.mu.Unlock()
		return fmt.Errorf("emitter already running")
	}
	e.running = true
	e.mu.Unlock()

	defer func() {
		e.mu.Lock()
		e.running = false
		e.mu.Unlock()
	}()

	ticker := e.config.Clock.NewTicker(e.config.Interval)
	defer ticker.Stop()

	dispatchCtx := context.WithoutCancel(ctx)

	for {
		select {
		case <-ctx.Done():
			if e.config.FlushOnStop {
				if b := e.Build(); b != nil {
					e.config.Logger.Printf("Flushing %d pending diffs before shutdown", b.Len())
					e.dispatch(dispatchCtx, b)
				}
			}
			e.inflight.Wait()
			return nil

		case <-ticker.Chan():
			b := e.Build()
			if b == nil {
				continue
			}
			e.inflight.Add(1)
			go func() {
				defer e.inflight.Done()
				e.dispatch(dispatchCtx, b)
			}()
		}
	}
}

// dispatch sends b to the sink, logs the outcome, and notifies the observer.
func (e *Emitter) dispatch(ctx context.Context, b *sink.Batch) Result {
	ctx, cancel := context.WithTimeout(ctx, e.config.DispatchTimeout)
	defer cancel()

	start := e.config.Clock.Now()
	err := e.send(ctx, b)
	res := Result{
		BatchID:  b.ID,
		Records:  b.Len(),
		Duration: e.config.Clock.Since(start),
	}

	if err != nil {
		res.Err = fmt.Errorf("%w: batch %s: %w", sink.ErrDispatch, b.ID, err)
		hint := ""
		if sink.IsTransient(err) {
			hint = " (transient)"
		}
		e.config.Logger.Printf("Failed to upload batch of %d diffs%s: %v", b.Len(), hint, err)
	} else {
		e.config.Logger.Printf("Sent %d diffs in batch %s", b.Len(), b.ID)
	}

	if e.config.OnDispatch != nil {
		e.config.OnDispatch(res)
	}
	return res
}

// send calls the sink, converting a panic into an error so a faulty sink can
// never take down the tick loop.
func (e *Emitter) send(ctx context.Context, b *sink.Batch) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("sink panicked: %v", r)
		}
	}()
	return e.sink.Send(ctx, b)
}
