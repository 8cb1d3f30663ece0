package capture

import (
	"errors"
	"image"
	"testing"
	"time"
)

func testFrame(seq uint64) Frame {
	return Frame{
		Image:        []byte{0xFF, 0xD8, byte(seq), 0xFF, 0xD9},
		ContentRect:  image.Rect(0, 0, 640, 480),
		ContentScale: 1.0,
		ScaleFactor:  1.0,
		Seq:          seq,
		Timestamp:    time.Now(),
	}
}

func TestStream_PushVideo(t *testing.T) {
	s := NewStream(4)

	s.PushVideo(testFrame(1), StatusComplete)

	select {
	case ev := <-s.Events():
		if ev.Kind != EventVideo {
			t.Fatalf("Expected video event, got kind %d", ev.Kind)
		}
		if ev.Frame.Seq != 1 {
			t.Errorf("Expected seq 1, got %d", ev.Frame.Seq)
		}
	default:
		t.Fatal("Expected a buffered event")
	}

	if got := s.Stats().FramesDelivered; got != 1 {
		t.Errorf("Expected 1 frame delivered, got %d", got)
	}
}

func TestStream_DropsIncomplete(t *testing.T) {
	s := NewStream(4)

	s.PushVideo(testFrame(1), StatusIncomplete)

	select {
	case ev := <-s.Events():
		t.Fatalf("Incomplete buffer should be dropped, got event kind %d", ev.Kind)
	default:
	}

	if got := s.Stats().Incomplete; got != 1 {
		t.Errorf("Expected 1 incomplete, got %d", got)
	}
}

func TestStream_DropsInvalidFrame(t *testing.T) {
	s := NewStream(4)

	s.PushVideo(InvalidFrame, StatusComplete)
	s.PushVideo(Frame{Image: []byte{1}}, StatusComplete) // missing geometry

	select {
	case <-s.Events():
		t.Fatal("Invalid frames should never be delivered")
	default:
	}

	if got := s.Stats().Incomplete; got != 2 {
		t.Errorf("Expected 2 invalid drops, got %d", got)
	}
}

func TestStream_DropOnFullBuffer(t *testing.T) {
	s := NewStream(2)

	for i := uint64(0); i < 5; i++ {
		s.PushVideo(testFrame(i), StatusComplete)
	}

	stats := s.Stats()
	if stats.FramesDelivered != 2 {
		t.Errorf("Expected 2 delivered, got %d", stats.FramesDelivered)
	}
	if stats.Dropped != 3 {
		t.Errorf("Expected 3 dropped, got %d", stats.Dropped)
	}

	// The buffered events must be the earliest frames: drops discard
	// new events, never delivered ones.
	first := <-s.Events()
	if first.Frame.Seq != 0 {
		t.Errorf("Expected seq 0 first, got %d", first.Frame.Seq)
	}
}

func TestStream_PushAudio(t *testing.T) {
	s := NewStream(4)

	chunk := AudioChunk{Samples: make([]int16, 960), SampleRate: 48000, Channels: 2}
	s.PushAudio(chunk, StatusComplete)
	s.PushAudio(AudioChunk{}, StatusComplete)           // empty chunk dropped
	s.PushAudio(chunk, StatusIncomplete)                // truncated chunk dropped
	if got := s.Stats().ChunksDelivered; got != 1 {
		t.Errorf("Expected 1 chunk delivered, got %d", got)
	}
	if got := s.Stats().Incomplete; got != 2 {
		t.Errorf("Expected 2 incomplete, got %d", got)
	}

	ev := <-s.Events()
	if ev.Kind != EventAudio {
		t.Fatalf("Expected audio event, got kind %d", ev.Kind)
	}
	if ev.Audio.Duration() != 10*time.Millisecond {
		t.Errorf("Expected 10ms chunk, got %v", ev.Audio.Duration())
	}
}

func TestStream_FailDeliversTerminalError(t *testing.T) {
	s := NewStream(1)
	s.PushVideo(testFrame(1), StatusComplete) // fill the buffer

	wantErr := errors.New("connection lost")
	s.Fail(wantErr)

	// The terminal error must arrive even though the buffer was full.
	var sawError bool
	for ev := range s.Events() {
		if ev.Kind == EventError {
			sawError = true
			if !errors.Is(ev.Err, wantErr) {
				t.Errorf("Expected %v, got %v", wantErr, ev.Err)
			}
		}
	}
	if !sawError {
		t.Fatal("Expected a terminal error event before close")
	}
	if !errors.Is(s.Err(), wantErr) {
		t.Errorf("Err() = %v, want %v", s.Err(), wantErr)
	}
}

func TestStream_CloseIdempotent(t *testing.T) {
	s := NewStream(4)

	s.Close()
	s.Close()
	s.Fail(errors.New("late fault")) // after Close, Fail is a no-op

	if s.Err() != nil {
		t.Errorf("Expected nil error after normal close, got %v", s.Err())
	}

	// Pushes after close are silently ignored.
	s.PushVideo(testFrame(1), StatusComplete)
	if got := s.Stats().FramesDelivered; got != 0 {
		t.Errorf("Expected no deliveries after close, got %d", got)
	}

	if _, ok := <-s.Events(); ok {
		t.Fatal("Expected closed event channel")
	}
}

func TestConfig_Validate(t *testing.T) {
	cfg := DefaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("DefaultConfig should validate: %v", err)
	}

	bad := DefaultConfig()
	bad.Width = 0
	if err := bad.Validate(); err == nil {
		t.Error("Expected error for zero width")
	}

	bad = DefaultConfig()
	bad.Framerate = -1
	if err := bad.Validate(); err == nil {
		t.Error("Expected error for negative framerate")
	}

	bad = DefaultConfig()
	bad.EventBuffer = 0
	if err := bad.Validate(); err == nil {
		t.Error("Expected error for zero event buffer")
	}
}

func TestAudioChunk_Bytes(t *testing.T) {
	chunk := AudioChunk{Samples: []int16{0, 1, -1, 32767, -32768}, SampleRate: 48000, Channels: 1}

	var back AudioChunk
	back.FromBytes(chunk.Bytes(), chunk.SampleRate, chunk.Channels)

	if len(back.Samples) != len(chunk.Samples) {
		t.Fatalf("Expected %d samples, got %d", len(chunk.Samples), len(back.Samples))
	}
	for i, s := range chunk.Samples {
		if back.Samples[i] != s {
			t.Errorf("Sample %d: expected %d, got %d", i, s, back.Samples[i])
		}
	}
}
