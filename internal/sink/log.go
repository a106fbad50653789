package sink

import (
	"context"
	"encoding/json"
	"log"
	"os"
)

// LogSink writes a summary line per batch, and the full batch when verbose.
type LogSink struct {
	logger  *log.Logger
	verbose bool
}

// NewLog creates a LogSink. If logger is nil, a stderr logger is used.
func NewLog(logger *log.Logger, verbose bool) *LogSink {
	if logger == nil {
		logger = log.New(os.Stderr, "[batch] ", log.LstdFlags)
	}
	return &LogSink{logger: logger, verbose: verbose}
}

// Send implements Sink.
func (s *LogSink) Send(_ context.Context, b *Batch) error {
	session := b.SessionID
	if session == "" {
		session = "-"
	}
	s.logger.Printf("Sent %d diffs (batch %s, session %s)", b.Len(), b.ID, session)
	for _, r := range b.Records {
		s.logger.Printf("  %s +%d -%d", r.DisplayName, r.Stats.LinesAdded, r.Stats.LinesRemoved)
	}

	if s.verbose {
		data, err := json.Marshal(b)
		if err != nil {
			return err
		}
		s.logger.Printf("Batch: %s", data)
	}
	return nil
}
