package digest

import "sync"

// Progress event phases. Per-item events carry no phase; terminal events
// carry exactly one of the phases below. The "connected" phase is emitted by
// the transport layer when a client attaches to a stream.
const (
	PhaseConnected = "connected"
	PhaseComplete  = "complete"
	PhaseError     = "error"
)

// ProgressEvent is one message on a session's progress stream.
type ProgressEvent struct {
	Phase          string `json:"phase,omitempty"`
	Completed      int    `json:"completed,omitempty"`
	Total          int    `json:"total,omitempty"`
	Progress       int    `json:"progress,omitempty"`
	Message        string `json:"message,omitempty"`
	TotalExtracted int    `json:"total_extracted,omitempty"`
	SuccessCount   int    `json:"success_count,omitempty"`
	Error          string `json:"error,omitempty"`
}

// Terminal reports whether the event ends the stream.
func (e ProgressEvent) Terminal() bool {
	return e.Phase == PhaseComplete || e.Phase == PhaseError
}

// Stream is a bounded progress channel for one extraction session. Per-item
// events are dropped when the consumer falls behind; the single terminal
// event is always delivered.
type Stream struct {
	ch     chan ProgressEvent
	onDrop func()
}

// NewStream creates a stream with the given buffer capacity.
func NewStream(capacity int, onDrop func()) *Stream {
	if capacity <= 0 {
		capacity = 1000
	}
	return &Stream{ch: make(chan ProgressEvent, capacity), onDrop: onDrop}
}

// TryPublish enqueues a per-item event without blocking. Events are dropped
// when the buffer is full; a slow or absent consumer must never stall the
// extraction workers.
func (s *Stream) TryPublish(ev ProgressEvent) bool {
	select {
	case s.ch <- ev:
		return true
	default:
		if s.onDrop != nil {
			s.onDrop()
		}
		return false
	}
}

// PublishTerminal enqueues the terminal event, evicting the oldest buffered
// event if the buffer is full. Terminal events are never dropped.
func (s *Stream) PublishTerminal(ev ProgressEvent) {
	for {
		select {
		case s.ch <- ev:
			return
		default:
		}
		select {
		case <-s.ch:
		default:
		}
	}
}

// Events returns the receive side of the stream.
func (s *Stream) Events() <-chan ProgressEvent {
	return s.ch
}

// StreamRegistry maps session IDs to their progress streams.
type StreamRegistry struct {
	mu      sync.Mutex
	streams map[string]*Stream
}

// NewStreamRegistry creates an empty registry.
func NewStreamRegistry() *StreamRegistry {
	return &StreamRegistry{streams: make(map[string]*Stream)}
}

// Register creates and stores a stream for the session, replacing any
// previous one.
func (r *StreamRegistry) Register(sessionID string, capacity int, onDrop func()) *Stream {
	s := NewStream(capacity, onDrop)
	r.mu.Lock()
	r.streams[sessionID] = s
	r.mu.Unlock()
	return s
}

// Get returns the stream for the session, if any.
func (r *StreamRegistry) Get(sessionID string) (*Stream, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.streams[sessionID]
	return s, ok
}

// Remove drops the session's stream from the registry.
func (r *StreamRegistry) Remove(sessionID string) {
	r.mu.Lock()
	delete(r.streams, sessionID)
	r.mu.Unlock()
}
