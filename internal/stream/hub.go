package stream

import (
	"context"
	"log/slog"
	"sync"
)

// Transport names the wire used by a stream session
type Transport string

const (
	TransportSSE       Transport = "sse"
	TransportWebSocket Transport = "websocket"
)

// Session is one client connection receiving periodic snapshot frames
type Session struct {
	id        string
	transport Transport
	cancel    context.CancelFunc
}

// Hub tracks live stream sessions so they can be counted and all cancelled
// on shutdown.
type Hub struct {
	sessions map[*Session]struct{}

	register   chan *Session
	unregister chan *Session

	mu     sync.RWMutex
	logger *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
}

// NewHub creates a new Hub
func NewHub(logger *slog.Logger) *Hub {
	ctx, cancel := context.WithCancel(context.Background())
	return &Hub{
		sessions:   make(map[*Session]struct{}),
		register:   make(chan *Session),
		unregister: make(chan *Session),
		logger:     logger,
		ctx:        ctx,
		cancel:     cancel,
		done:       make(chan struct{}),
	}
}

// Run starts the hub's main loop
func (h *Hub) Run() {
	h.logger.Info("stream hub started")
	defer close(h.done)
	for {
		select {
		case <-h.ctx.Done():
			h.mu.Lock()
			for s := range h.sessions {
				s.cancel()
				delete(h.sessions, s)
			}
			h.mu.Unlock()
			h.logger.Info("stream hub stopped")
			return

		case s := <-h.register:
			h.mu.Lock()
			h.sessions[s] = struct{}{}
			h.mu.Unlock()
			h.logger.Debug("stream session opened", "session_id", s.id, "transport", s.transport)

		case s := <-h.unregister:
			h.mu.Lock()
			delete(h.sessions, s)
			h.mu.Unlock()
			h.logger.Debug("stream session closed", "session_id", s.id, "transport", s.transport)
		}
	}
}

// Stop cancels every session and stops the hub
func (h *Hub) Stop() {
	h.cancel()
	<-h.done
}

// Register adds a session; false means the hub is already stopping
func (h *Hub) Register(s *Session) bool {
	select {
	case h.register <- s:
		return true
	case <-h.ctx.Done():
		return false
	}
}

// Unregister removes a session
func (h *Hub) Unregister(s *Session) {
	select {
	case h.unregister <- s:
	case <-h.ctx.Done():
	}
}

// Count returns the number of open sessions per transport
func (h *Hub) Count() map[Transport]int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	counts := map[Transport]int{
		TransportSSE:       0,
		TransportWebSocket: 0,
	}
	for s := range h.sessions {
		counts[s.transport]++
	}
	return counts
}

// Total returns the number of open sessions
func (h *Hub) Total() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.sessions)
}
