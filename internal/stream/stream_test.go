package stream

import (
	"bufio"
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

type staticSource struct {
	calls atomic.Int64
}

func (s *staticSource) Frame(ctx context.Context) []byte {
	s.calls.Add(1)
	return []byte(`{"hotMatches":[],"totalActiveUsers":0,"lastUpdate":1}`)
}

type frameRecorder struct {
	mu     sync.Mutex
	frames int
}

func (r *frameRecorder) emit(payload []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.frames++
	return nil
}

func (r *frameRecorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.frames
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}

func TestRun_EmitsImmediatelyThenWaits(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	rec := &frameRecorder{}
	done := make(chan error, 1)

	go func() { done <- Run(ctx, time.Hour, &staticSource{}, rec.emit) }()

	waitFor(t, func() bool { return rec.count() == 1 })
	time.Sleep(50 * time.Millisecond)
	if got := rec.count(); got != 1 {
		t.Fatalf("frames before first interval = %d, want 1", got)
	}

	cancel()
	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("Run returned %v, want context.Canceled", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancellation")
	}
}

func TestRun_PeriodicFramesStopOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	rec := &frameRecorder{}
	done := make(chan struct{})

	go func() {
		Run(ctx, 10*time.Millisecond, &staticSource{}, rec.emit)
		close(done)
	}()

	waitFor(t, func() bool { return rec.count() >= 3 })
	cancel()
	<-done

	after := rec.count()
	time.Sleep(50 * time.Millisecond)
	if got := rec.count(); got != after {
		t.Errorf("frames emitted after cancellation: %d -> %d", after, got)
	}
}

func TestRun_EmitErrorEndsSession(t *testing.T) {
	errGone := errors.New("client gone")
	err := Run(context.Background(), time.Millisecond, &staticSource{}, func([]byte) error {
		return errGone
	})
	if !errors.Is(err, errGone) {
		t.Fatalf("Run returned %v, want emit error", err)
	}
}

func TestRun_CancelledBeforeStart(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	rec := &frameRecorder{}

	if err := Run(ctx, time.Millisecond, &staticSource{}, rec.emit); !errors.Is(err, context.Canceled) {
		t.Fatalf("Run returned %v, want context.Canceled", err)
	}
	if rec.count() != 0 {
		t.Errorf("frames = %d, want 0", rec.count())
	}
}

func TestHub_StopCancelsSessions(t *testing.T) {
	hub := NewHub(testLogger())
	go hub.Run()

	ctx, cleanup, ok := hub.open(context.Background(), TransportSSE)
	if !ok {
		t.Fatal("open failed on running hub")
	}
	defer cleanup()

	waitFor(t, func() bool { return hub.Count()[TransportSSE] == 1 })

	hub.Stop()

	select {
	case <-ctx.Done():
	case <-time.After(time.Second):
		t.Fatal("session context not cancelled on hub stop")
	}

	if _, _, ok := hub.open(context.Background(), TransportSSE); ok {
		t.Error("open succeeded on stopped hub")
	}
}

func TestSSEHandler_StreamsFrames(t *testing.T) {
	hub := NewHub(testLogger())
	go hub.Run()
	defer hub.Stop()

	source := &staticSource{}
	srv := httptest.NewServer(NewSSEHandler(hub, source, time.Hour, testLogger()))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL, nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	defer resp.Body.Close()

	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Errorf("Content-Type = %q", ct)
	}
	if cc := resp.Header.Get("Cache-Control"); !strings.Contains(cc, "no-cache") {
		t.Errorf("Cache-Control = %q", cc)
	}
	if xab := resp.Header.Get("X-Accel-Buffering"); xab != "no" {
		t.Errorf("X-Accel-Buffering = %q", xab)
	}

	line, err := bufio.NewReader(resp.Body).ReadString('\n')
	if err != nil {
		t.Fatalf("reading first frame: %v", err)
	}
	if !strings.HasPrefix(line, "data: {") {
		t.Errorf("first frame = %q, want data line", line)
	}
	waitFor(t, func() bool { return hub.Total() == 1 })

	// client disconnect releases the session
	cancel()
	waitFor(t, func() bool { return hub.Total() == 0 })

	if got := source.calls.Load(); got != 1 {
		t.Errorf("frames produced = %d, want 1", got)
	}
}

func TestWebSocketHandler_StreamsFrames(t *testing.T) {
	hub := NewHub(testLogger())
	go hub.Run()
	defer hub.Stop()

	srv := httptest.NewServer(NewWebSocketHandler(hub, &staticSource{}, time.Hour, testLogger()))
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	kind, msg, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("reading first frame: %v", err)
	}
	if kind != websocket.TextMessage || !strings.HasPrefix(string(msg), `{"hotMatches"`) {
		t.Errorf("first frame = %d %q", kind, msg)
	}

	waitFor(t, func() bool { return hub.Count()[TransportWebSocket] == 1 })

	conn.Close()
	waitFor(t, func() bool { return hub.Total() == 0 })
}
