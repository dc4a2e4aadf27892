package api

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"sync"

	"github.com/victornm/typerace/internal/telemetry"
)

const defaultSendBuffer = 256

// Notification is the envelope of every frame and every Redis message.
type Notification struct {
	Event string `json:"event"`
	Data  any    `json:"data"`
}

type HubConfig struct {
	SendBuffer int
	Metrics    *telemetry.Metrics
}

// Hub fans outbound events out to the live connections. Enqueueing never
// blocks: a connection whose send buffer is full is dropped and closed.
type Hub struct {
	buffer  int
	metrics *telemetry.Metrics

	mu   sync.RWMutex
	subs map[string]*subscriber
}

type subscriber struct {
	id   string
	send chan []byte
	done chan struct{}
	once sync.Once
	conn io.Closer
}

func (s *subscriber) close() {
	s.once.Do(func() {
		close(s.done)
		if s.conn != nil {
			_ = s.conn.Close()
		}
	})
}

func NewHub(c HubConfig) *Hub {
	if c.SendBuffer <= 0 {
		c.SendBuffer = defaultSendBuffer
	}

	return &Hub{
		buffer:  c.SendBuffer,
		metrics: c.Metrics,
		subs:    make(map[string]*subscriber),
	}
}

// BroadcastAll enqueues the event to every connection.
func (h *Hub) BroadcastAll(ctx context.Context, event string, payload any) {
	b, ok := h.encode(ctx, event, payload)
	if !ok {
		return
	}

	var failed []*subscriber

	h.mu.RLock()
	for _, s := range h.subs {
		if !h.enqueue(s, b) {
			failed = append(failed, s)
		}
	}
	h.mu.RUnlock()

	h.drop(ctx, event, failed)
}

// Unicast enqueues the event to a single connection. Unknown connections are ignored.
func (h *Hub) Unicast(ctx context.Context, connID, event string, payload any) {
	h.mu.RLock()
	s, ok := h.subs[connID]
	h.mu.RUnlock()

	if !ok {
		slog.DebugContext(ctx, "hub: unicast to unknown connection", "conn", connID, "event", event)
		return
	}

	b, ok := h.encode(ctx, event, payload)
	if !ok {
		return
	}

	if !h.enqueue(s, b) {
		h.drop(ctx, event, []*subscriber{s})
	}
}

// Len returns the number of live connections.
func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	return len(h.subs)
}

// Close closes every connection.
func (h *Hub) Close() {
	h.mu.Lock()
	subs := h.subs
	h.subs = make(map[string]*subscriber)
	h.mu.Unlock()

	for _, s := range subs {
		s.close()
	}
}

func (h *Hub) add(id string, conn io.Closer) *subscriber {
	s := &subscriber{
		id:   id,
		send: make(chan []byte, h.buffer),
		done: make(chan struct{}),
		conn: conn,
	}

	h.mu.Lock()
	h.subs[id] = s
	h.mu.Unlock()

	return s
}

// remove reports whether the connection was still registered.
func (h *Hub) remove(id string) bool {
	h.mu.Lock()
	s, ok := h.subs[id]
	delete(h.subs, id)
	h.mu.Unlock()

	if ok {
		s.close()
	}

	return ok
}

func (h *Hub) enqueue(s *subscriber, b []byte) bool {
	select {
	case <-s.done:
		return false
	default:
	}

	select {
	case s.send <- b:
		return true
	default:
		return false
	}
}

func (h *Hub) drop(ctx context.Context, event string, subs []*subscriber) {
	for _, s := range subs {
		if h.remove(s.id) {
			slog.WarnContext(ctx, "hub: send buffer full, connection dropped", "conn", s.id, "event", event)
			h.metrics.DeliveryDropped(event)
		}
	}
}

func (h *Hub) encode(ctx context.Context, event string, payload any) ([]byte, bool) {
	b, err := json.Marshal(Notification{Event: event, Data: payload})
	if err != nil {
		slog.ErrorContext(ctx, "hub: marshal event failed", "event", event, "error", err)
		return nil, false
	}

	return b, true
}
