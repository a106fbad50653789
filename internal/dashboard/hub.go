package dashboard

import (
	"context"
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/coder/websocket"
)

// MessageType defines the type of dashboard message
type MessageType string

const (
	// MessageTypeBatchSent indicates a batch was handed to the sinks
	MessageTypeBatchSent MessageType = "batch_sent"

	// MessageTypeDispatchFailed indicates a dispatch attempt returned an error
	MessageTypeDispatchFailed MessageType = "dispatch_failed"

	// MessageTypeStats indicates updated session statistics
	MessageTypeStats MessageType = "stats"
)

// Message represents a dashboard broadcast message
type Message struct {
	Type      MessageType     `json:"type"`
	Timestamp time.Time       `json:"timestamp"`
	Data      json.RawMessage `json:"data,omitempty"`
}

const (
	// clientQueue is the number of live frames a client may fall behind by
	// before it is disconnected.
	clientQueue  = 64
	writeTimeout = 5 * time.Second
)

// subscriber is one connected WebSocket client with its own outgoing queue.
type subscriber struct {
	conn *websocket.Conn
	send chan []byte
	done chan struct{}
	once sync.Once
}

// hub fans encoded frames out to subscribers. A frame is queued on every
// subscriber under one lock hold, so all clients see frames in the same
// order. The last batch_sent frames are kept so a client that joins late
// starts with the recent history of the session.
type hub struct {
	mu      sync.Mutex
	subs    map[*subscriber]struct{}
	recent  [][]byte
	backlog int

	logger *log.Logger
}

func newHub(backlog int, logger *log.Logger) *hub {
	if backlog < 0 {
		backlog = 0
	}
	return &hub{
		subs:    make(map[*subscriber]struct{}),
		backlog: backlog,
		logger:  logger,
	}
}

// publish encodes msg and queues it for every subscriber. Subscribers whose
// queue is full are dropped.
func (h *hub) publish(msg Message) {
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now()
	}
	frame, err := json.Marshal(msg)
	if err != nil {
		h.logger.Printf("Failed to marshal %s message: %v", msg.Type, err)
		return
	}

	var slow []*subscriber

	h.mu.Lock()
	if msg.Type == MessageTypeBatchSent && h.backlog > 0 {
		h.recent = append(h.recent, frame)
		if n := len(h.recent) - h.backlog; n > 0 {
			h.recent = append(h.recent[:0:0], h.recent[n:]...)
		}
	}
	for sub := range h.subs {
		select {
		case sub.send <- frame:
		default:
			slow = append(slow, sub)
		}
	}
	h.mu.Unlock()

	for _, sub := range slow {
		h.logger.Println("Client is too slow, disconnecting")
		h.leave(sub, websocket.StatusPolicyViolation, "client too slow")
	}
}

// join registers conn. The welcome frame and the batch backlog are queued
// ahead of any live frame.
func (h *hub) join(conn *websocket.Conn, welcome []byte) (*subscriber, int) {
	h.mu.Lock()
	defer h.mu.Unlock()

	sub := &subscriber{
		conn: conn,
		send: make(chan []byte, clientQueue+len(h.recent)+1),
		done: make(chan struct{}),
	}
	sub.send <- welcome
	for _, frame := range h.recent {
		sub.send <- frame
	}
	h.subs[sub] = struct{}{}
	return sub, len(h.subs)
}

// leave unregisters sub and closes its connection. Extra calls are no-ops.
func (h *hub) leave(sub *subscriber, code websocket.StatusCode, reason string) {
	h.mu.Lock()
	_, ok := h.subs[sub]
	delete(h.subs, sub)
	n := len(h.subs)
	h.mu.Unlock()

	sub.once.Do(func() {
		close(sub.done)
		_ = sub.conn.Close(code, reason)
	})
	if ok {
		h.logger.Printf("Client disconnected (total: %d)", n)
	}
}

// closeAll disconnects every subscriber.
func (h *hub) closeAll() {
	h.mu.Lock()
	subs := make([]*subscriber, 0, len(h.subs))
	for sub := range h.subs {
		subs = append(subs, sub)
	}
	h.mu.Unlock()

	for _, sub := range subs {
		h.leave(sub, websocket.StatusGoingAway, "Server shutting down")
	}
}

func (h *hub) count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}

// writeLoop drains the subscriber's queue onto its connection.
func (h *hub) writeLoop(ctx context.Context, sub *subscriber) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-sub.done:
			return
		case frame := <-sub.send:
			wctx, cancel := context.WithTimeout(ctx, writeTimeout)
			err := sub.conn.Write(wctx, websocket.MessageText, frame)
			cancel()
			if err != nil {
				h.logger.Printf("Failed to send to client: %v", err)
				h.leave(sub, websocket.StatusInternalError, "")
				return
			}
		}
	}
}

// readLoop discards client input until the connection ends.
func (h *hub) readLoop(ctx context.Context, sub *subscriber) {
	defer h.leave(sub, websocket.StatusNormalClosure, "")

	for {
		if _, _, err := sub.conn.Read(ctx); err != nil {
			return
		}
	}
}
