package web

import (
	"encoding/json"
	"strings"
	"sync"
	"time"

	"github.com/cjeanneret/TurnGo/internal/logic/capture"
	"github.com/cjeanneret/TurnGo/internal/logic/rig"
	"github.com/cjeanneret/TurnGo/internal/logic/turntable"
)

// StatusEvent represents a single message for SSE. Log lines carry Msg;
// session and capture updates carry Kind and Data.
type StatusEvent struct {
	Time  string          `json:"t"`
	Level string          `json:"l,omitempty"`
	Msg   string          `json:"msg,omitempty"`
	Kind  string          `json:"kind,omitempty"` // "session" or "capture"
	Data  json.RawMessage `json:"data,omitempty"`
}

// StatusBroadcaster distributes status messages to multiple SSE clients.
type StatusBroadcaster struct {
	mu      sync.RWMutex
	clients map[chan string]struct{}
}

// NewStatusBroadcaster creates a new broadcaster.
func NewStatusBroadcaster() *StatusBroadcaster {
	return &StatusBroadcaster{
		clients: make(map[chan string]struct{}),
	}
}

// Subscribe returns a channel that receives broadcast messages and a cleanup function.
// The caller must call the returned cleanup when done (e.g. on client disconnect).
func (b *StatusBroadcaster) Subscribe() (<-chan string, func()) {
	ch := make(chan string, 64)
	b.mu.Lock()
	b.clients[ch] = struct{}{}
	b.mu.Unlock()

	unsub := func() {
		b.mu.Lock()
		delete(b.clients, ch)
		b.mu.Unlock()
		close(ch)
	}
	return ch, unsub
}

// Broadcast sends a log line to all subscribed clients as
// {"t":"...","l":"info","msg":"..."}.
func (b *StatusBroadcaster) Broadcast(level, msg string) {
	b.send(StatusEvent{Level: level, Msg: msg})
}

// BroadcastMsg is a convenience for level "info".
func (b *StatusBroadcaster) BroadcastMsg(msg string) {
	b.Broadcast("info", msg)
}

// BroadcastEvent sends a structured update of the given kind.
func (b *StatusBroadcaster) BroadcastEvent(level, kind string, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		return
	}
	b.send(StatusEvent{Level: level, Kind: kind, Data: data})
}

// send delivers evt without blocking; slow clients miss messages.
func (b *StatusBroadcaster) send(evt StatusEvent) {
	evt.Time = time.Now().Format(time.RFC3339)
	data, err := json.Marshal(evt)
	if err != nil {
		return
	}
	payload := string(data)

	b.mu.RLock()
	defer b.mu.RUnlock()
	for ch := range b.clients {
		select {
		case ch <- payload:
		default:
			// channel full, skip
		}
	}
}

var _ rig.StopObserver = (*StatusBroadcaster)(nil)

// SessionChanged pushes the session to clients. A rig reports changes only
// from its running loop.
func (b *StatusBroadcaster) SessionChanged(s turntable.Session, folder string) {
	b.BroadcastEvent("info", "session", NewSessionView(s, folder, true))
}

// RigStopped pushes the last session with running false.
func (b *StatusBroadcaster) RigStopped(s turntable.Session, folder string) {
	b.BroadcastEvent("warn", "session", NewSessionView(s, folder, false))
}

// FrameCaptured pushes a capture outcome to clients.
func (b *StatusBroadcaster) FrameCaptured(o capture.Outcome) {
	level := "info"
	switch o.Result {
	case capture.TransmissionFailed, capture.PersistenceFailed:
		level = "warn"
	case capture.ConfigurationFailed:
		level = "error"
	}
	b.BroadcastEvent(level, "capture", NewCaptureView(o))
}

// BroadcastWriter implements io.Writer; each Write broadcasts the content to SSE clients.
func BroadcastWriter(b *StatusBroadcaster) *broadcastWriter {
	return &broadcastWriter{b: b}
}

// broadcastWriter wraps StatusBroadcaster as io.Writer for use with debug.SetOutput.
type broadcastWriter struct {
	b *StatusBroadcaster
}

func (w *broadcastWriter) Write(p []byte) (n int, err error) {
	msg := strings.TrimSpace(string(p))
	if msg != "" {
		w.b.BroadcastMsg(msg)
	}
	return len(p), nil
}
