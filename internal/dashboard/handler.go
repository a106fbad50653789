package dashboard

import (
	"context"
	"encoding/json"
	"time"

	"github.com/interviewkit/diffsync/internal/emitter"
	"github.com/interviewkit/diffsync/internal/sink"
)

// BatchSentData describes a dispatched batch
type BatchSentData struct {
	BatchID   string       `json:"batch_id"`
	SessionID string       `json:"session_id,omitempty"`
	Records   []RecordData `json:"records"`
}

// RecordData is the per-document part of a batch_sent message
type RecordData struct {
	DocumentID   string `json:"document_id"`
	DisplayName  string `json:"display_name"`
	LinesAdded   int    `json:"lines_added"`
	LinesRemoved int    `json:"lines_removed"`
	Patch        string `json:"patch"`
}

// DispatchFailedData describes a failed dispatch
type DispatchFailedData struct {
	BatchID  string        `json:"batch_id"`
	Records  int           `json:"records"`
	Error    string        `json:"error"`
	Duration time.Duration `json:"duration"`
}

// StatsData contains running session statistics
type StatsData struct {
	Batches      int       `json:"batches"`
	Records      int       `json:"records"`
	Failures     int       `json:"failures"`
	LinesAdded   int       `json:"lines_added"`
	LinesRemoved int       `json:"lines_removed"`
	LastBatchAt  time.Time `json:"last_batch_at,omitempty"`
}

// Send implements sink.Sink by broadcasting a batch_sent message followed by
// the updated stats. It never fails.
func (s *Server) Send(_ context.Context, b *sink.Batch) error {
	data := BatchSentData{
		BatchID:   b.ID,
		SessionID: b.SessionID,
		Records:   make([]RecordData, 0, b.Len()),
	}

	s.statsMu.Lock()
	s.stats.Batches++
	s.stats.Records += b.Len()
	s.stats.LastBatchAt = b.CreatedAt
	for _, r := range b.Records {
		s.stats.LinesAdded += r.Stats.LinesAdded
		s.stats.LinesRemoved += r.Stats.LinesRemoved
		data.Records = append(data.Records, RecordData{
			DocumentID:   r.DocumentID,
			DisplayName:  r.DisplayName,
			LinesAdded:   r.Stats.LinesAdded,
			LinesRemoved: r.Stats.LinesRemoved,
			Patch:        r.Patch,
		})
	}
	s.statsMu.Unlock()

	s.publish(MessageTypeBatchSent, data)
	s.broadcastStats()
	return nil
}

// Observe reports a dispatch result. Failed dispatches are broadcast as
// dispatch_failed; successful ones are already covered by Send.
func (s *Server) Observe(res emitter.Result) {
	if res.Err == nil {
		return
	}

	s.statsMu.Lock()
	s.stats.Failures++
	s.statsMu.Unlock()

	s.publish(MessageTypeDispatchFailed, DispatchFailedData{
		BatchID:  res.BatchID,
		Records:  res.Records,
		Error:    res.Err.Error(),
		Duration: res.Duration,
	})
	s.broadcastStats()
}

// Stats returns a copy of the running statistics
func (s *Server) Stats() StatsData {
	s.statsMu.Lock()
	defer s.statsMu.Unlock()
	return s.stats
}

func (s *Server) broadcastStats() {
	s.publish(MessageTypeStats, s.Stats())
}

func (s *Server) statsMessage() ([]byte, error) {
	data, err := json.Marshal(s.Stats())
	if err != nil {
		return nil, err
	}
	return json.Marshal(Message{
		Type:      MessageTypeStats,
		Timestamp: time.Now(),
		Data:      data,
	})
}

func (s *Server) publish(typ MessageType, v interface{}) {
	data, err := json.Marshal(v)
	if err != nil {
		s.logger.Printf("Failed to marshal %s data: %v", typ, err)
		return
	}
	s.Broadcast(Message{
		Type:      typ,
		Timestamp: time.Now(),
		Data:      data,
	})
}
