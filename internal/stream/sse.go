package stream

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
)

// open starts a session bound to parent and to the hub's lifetime. The
// returned cleanup must be called exactly once when the connection ends.
func (h *Hub) open(parent context.Context, transport Transport) (context.Context, func(), bool) {
	ctx, cancel := context.WithCancel(parent)
	s := &Session{
		id:        uuid.NewString(),
		transport: transport,
		cancel:    cancel,
	}
	if !h.Register(s) {
		cancel()
		return nil, nil, false
	}
	cleanup := func() {
		cancel()
		h.Unregister(s)
	}
	return ctx, cleanup, true
}

// SSEHandler streams snapshot frames as Server-Sent Events
type SSEHandler struct {
	hub      *Hub
	source   FrameSource
	interval time.Duration
	logger   *slog.Logger
}

// NewSSEHandler creates the event-stream endpoint
func NewSSEHandler(hub *Hub, source FrameSource, interval time.Duration, logger *slog.Logger) *SSEHandler {
	return &SSEHandler{
		hub:      hub,
		source:   source,
		interval: interval,
		logger:   logger,
	}
}

// ServeHTTP holds the connection open until the client goes away or the server stops
func (h *SSEHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	rc := http.NewResponseController(w)

	ctx, cleanup, ok := h.hub.open(r.Context(), TransportSSE)
	if !ok {
		http.Error(w, "server shutting down", http.StatusServiceUnavailable)
		return
	}
	defer cleanup()

	// the server write timeout would otherwise cut the stream
	if err := rc.SetWriteDeadline(time.Time{}); err != nil && !errors.Is(err, http.ErrNotSupported) {
		h.logger.Debug("could not clear write deadline", "error", err)
	}

	header := w.Header()
	header.Set("Content-Type", "text/event-stream")
	header.Set("Cache-Control", "no-cache, no-transform")
	header.Set("Connection", "keep-alive")
	header.Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	emit := func(payload []byte) error {
		if _, err := fmt.Fprintf(w, "data: %s\n\n", payload); err != nil {
			return err
		}
		return rc.Flush()
	}

	err := Run(ctx, h.interval, h.source, emit)
	if err != nil && !errors.Is(err, context.Canceled) {
		h.logger.Debug("event stream ended", "error", err)
	}
}
