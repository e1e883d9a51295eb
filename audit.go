package portalauth

import (
	"context"
	"encoding/json"
	"io"
	"sync"
	"time"
)

// AuditEvent records one sign-in, callback, profile or sign-out step taken
// by the Orchestrator. Tokens never appear in an event; Error holds an
// AuditErrorCode, not the underlying error text.
type AuditEvent struct {
	Timestamp time.Time         `json:"timestamp"`
	EventType string            `json:"event_type"`
	Success   bool              `json:"success"`
	UserID    string            `json:"user_id,omitempty"`
	Error     string            `json:"error,omitempty"`
	IP        string            `json:"ip,omitempty"`
	UserAgent string            `json:"user_agent,omitempty"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

// AuditSink consumes events on the dispatcher goroutine. Emit must not
// retain ctx past its return.
type AuditSink interface {
	Emit(ctx context.Context, event AuditEvent)
}

// AuditSinkFunc adapts a plain function to AuditSink.
type AuditSinkFunc func(ctx context.Context, event AuditEvent)

// Emit calls f.
func (f AuditSinkFunc) Emit(ctx context.Context, event AuditEvent) { f(ctx, event) }

type discardSink struct{}

func (discardSink) Emit(context.Context, AuditEvent) {}

// ChannelSink hands events to a reader of Events. Emit waits for room
// until ctx is done.
type ChannelSink struct {
	ch chan AuditEvent
}

// NewChannelSink returns a sink buffering up to capacity events.
func NewChannelSink(capacity int) *ChannelSink {
	return &ChannelSink{ch: make(chan AuditEvent, max(capacity, 1))}
}

func (s *ChannelSink) Emit(ctx context.Context, event AuditEvent) {
	select {
	case <-ctx.Done():
	case s.ch <- event:
	}
}

// Events is the receive side of the sink.
func (s *ChannelSink) Events() <-chan AuditEvent { return s.ch }

// JSONWriterSink appends newline-delimited JSON to w. Writes are
// serialized; encoding and write errors are dropped.
type JSONWriterSink struct {
	mu  sync.Mutex
	enc *json.Encoder
}

// NewJSONWriterSink returns a sink writing to w. A nil w discards events.
func NewJSONWriterSink(w io.Writer) *JSONWriterSink {
	if w == nil {
		return &JSONWriterSink{}
	}
	return &JSONWriterSink{enc: json.NewEncoder(w)}
}

func (s *JSONWriterSink) Emit(_ context.Context, event AuditEvent) {
	if s == nil || s.enc == nil {
		return
	}
	s.mu.Lock()
	_ = s.enc.Encode(event)
	s.mu.Unlock()
}
