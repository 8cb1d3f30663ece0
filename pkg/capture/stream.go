package capture

import (
	"sync"
	"sync/atomic"

	"github.com/koyakei/wind-meter-server/internal/log"
)

// EventKind discriminates stream events.
type EventKind int

const (
	// EventVideo carries a validated video frame.
	EventVideo EventKind = iota
	// EventAudio carries an audio chunk.
	EventAudio
	// EventError is the terminal stream fault; the stream closes after it.
	EventError
)

// DeliveryStatus marks whether a pushed buffer arrived complete.
type DeliveryStatus int

const (
	// StatusComplete means the buffer carries a whole sample.
	StatusComplete DeliveryStatus = iota
	// StatusIncomplete means the buffer was truncated in delivery.
	// Incomplete buffers are dropped silently.
	StatusIncomplete
)

// Event is one item delivered by a capture stream.
type Event struct {
	Kind  EventKind
	Frame Frame
	Audio AudioChunk
	Err   error
}

// StreamStats counts stream activity.
type StreamStats struct {
	FramesDelivered int64 `json:"frames_delivered"`
	ChunksDelivered int64 `json:"chunks_delivered"`
	Dropped         int64 `json:"dropped"`
	Incomplete      int64 `json:"incomplete"`
}

// Stream turns push-based capture delivery into a bounded pull sequence.
// The capture callback is the single writer (PushVideo/PushAudio/Fail);
// the pipeline is the single reader (Events). Pushes never block: when
// the buffer is full the event is dropped and counted.
type Stream struct {
	events chan Event

	mu     sync.Mutex
	closed bool
	err    error

	framesDelivered atomic.Int64
	chunksDelivered atomic.Int64
	dropped         atomic.Int64
	incomplete      atomic.Int64
}

// NewStream creates a stream bounded to the given number of undelivered events.
func NewStream(buffer int) *Stream {
	if buffer <= 0 {
		buffer = DefaultConfig().EventBuffer
	}
	return &Stream{
		events: make(chan Event, buffer),
	}
}

// Events returns the event channel. It is closed on stop or fault;
// after close, Err reports the terminal error, if any.
func (s *Stream) Events() <-chan Event {
	return s.events
}

// PushVideo delivers a video frame into the stream.
// Invalid frames and incomplete buffers are dropped silently.
func (s *Stream) PushVideo(f Frame, status DeliveryStatus) {
	if status != StatusComplete {
		s.incomplete.Add(1)
		return
	}
	if !f.Valid() {
		s.incomplete.Add(1)
		return
	}
	if s.push(Event{Kind: EventVideo, Frame: f}) {
		s.framesDelivered.Add(1)
	}
}

// PushAudio delivers an audio chunk into the stream.
func (s *Stream) PushAudio(c AudioChunk, status DeliveryStatus) {
	if status != StatusComplete || len(c.Samples) == 0 {
		s.incomplete.Add(1)
		return
	}
	if s.push(Event{Kind: EventAudio, Audio: c}) {
		s.chunksDelivered.Add(1)
	}
}

func (s *Stream) push(ev Event) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return false
	}
	select {
	case s.events <- ev:
		return true
	default:
		// Consumer too slow: drop rather than stall the capture callback.
		s.dropped.Add(1)
		log.Debug("capture stream buffer full, dropping event", "kind", ev.Kind)
		return false
	}
}

// Fail records a stream fault and terminates the stream.
// The error is delivered as a final event and retained for Err.
func (s *Stream) Fail(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return
	}
	s.closed = true
	s.err = err

	// Make room if needed so the terminal error is never dropped.
	select {
	case s.events <- Event{Kind: EventError, Err: err}:
	default:
		select {
		case <-s.events:
		default:
		}
		s.events <- Event{Kind: EventError, Err: err}
	}
	close(s.events)
}

// Close terminates the stream with a normal completion.
// It is idempotent and safe to call after Fail.
func (s *Stream) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return
	}
	s.closed = true
	close(s.events)
}

// Err returns the terminal stream error, or nil for a normal completion.
func (s *Stream) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Stats returns a snapshot of stream counters.
func (s *Stream) Stats() StreamStats {
	return StreamStats{
		FramesDelivered: s.framesDelivered.Load(),
		ChunksDelivered: s.chunksDelivered.Load(),
		Dropped:         s.dropped.Load(),
		Incomplete:      s.incomplete.Load(),
	}
}
