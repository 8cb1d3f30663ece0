package capture

import (
	"context"
	"errors"
	"testing"
	"time"
)

func fastConfig() Config {
	cfg := DefaultConfig()
	cfg.Framerate = 100
	return cfg
}

func TestMockSource_StartStop(t *testing.T) {
	src := NewMockSource()
	defer src.Close()

	stream, err := src.Start(context.Background(), fastConfig(), Filter{})
	if err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	// A second Start on a live session must be rejected.
	if _, err := src.Start(context.Background(), fastConfig(), Filter{}); !errors.Is(err, ErrAlreadyStreaming) {
		t.Fatalf("Expected ErrAlreadyStreaming, got %v", err)
	}

	if err := src.Stop(); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}
	if err := src.Stop(); err != nil {
		t.Fatalf("Second Stop failed: %v", err)
	}

	// Stream finishes with a normal completion.
	for range stream.Events() {
	}
	if stream.Err() != nil {
		t.Errorf("Expected nil terminal error, got %v", stream.Err())
	}
}

func TestMockSource_DeliversFramesAndAudio(t *testing.T) {
	src := NewMockSource(WithTone(440, 0.5))
	defer src.Close()

	stream, err := src.Start(context.Background(), fastConfig(), Filter{Producer: "test"})
	if err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	var frames, chunks int
	deadline := time.After(2 * time.Second)
	for frames < 3 || chunks < 3 {
		select {
		case ev, ok := <-stream.Events():
			if !ok {
				t.Fatal("Stream closed before enough events arrived")
			}
			switch ev.Kind {
			case EventVideo:
				if !ev.Frame.Valid() {
					t.Fatal("Mock delivered an invalid frame")
				}
				frames++
			case EventAudio:
				if len(ev.Audio.Samples) == 0 {
					t.Fatal("Mock delivered an empty audio chunk")
				}
				chunks++
			}
		case <-deadline:
			t.Fatalf("Timed out: %d frames, %d chunks", frames, chunks)
		}
	}

	src.Stop()
}

func TestMockSource_ScriptedFrames(t *testing.T) {
	scripted := []Frame{testFrame(0), testFrame(0), testFrame(0)}
	src := NewMockSource(WithFrames(scripted))
	defer src.Close()

	stream, err := src.Start(context.Background(), fastConfig(), Filter{})
	if err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	var got []uint64
	deadline := time.After(2 * time.Second)
	for len(got) < len(scripted) {
		select {
		case ev, ok := <-stream.Events():
			if !ok {
				t.Fatal("Stream closed early")
			}
			if ev.Kind == EventVideo {
				got = append(got, ev.Frame.Seq)
			}
		case <-deadline:
			t.Fatalf("Timed out after %d scripted frames", len(got))
		}
	}

	for i, seq := range got {
		if seq != uint64(i) {
			t.Errorf("Frame %d: expected seq %d, got %d", i, i, seq)
		}
	}

	src.Stop()
}

func TestMockSource_Fail(t *testing.T) {
	src := NewMockSource()
	defer src.Close()

	stream, err := src.Start(context.Background(), fastConfig(), Filter{})
	if err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	wantErr := errors.New("injected fault")
	src.Fail(wantErr)

	var sawError bool
	for ev := range stream.Events() {
		if ev.Kind == EventError && errors.Is(ev.Err, wantErr) {
			sawError = true
		}
	}
	if !sawError {
		t.Fatal("Expected the injected fault as a terminal event")
	}
	if !errors.Is(stream.Err(), wantErr) {
		t.Errorf("Err() = %v, want %v", stream.Err(), wantErr)
	}
}

func TestMockSource_Reconfigure(t *testing.T) {
	src := NewMockSource()
	defer src.Close()

	if err := src.Reconfigure(fastConfig(), Filter{}); !errors.Is(err, ErrNotStreaming) {
		t.Fatalf("Expected ErrNotStreaming before Start, got %v", err)
	}

	if _, err := src.Start(context.Background(), fastConfig(), Filter{}); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	cfg := fastConfig()
	cfg.Width = 1280
	cfg.Height = 720
	if err := src.Reconfigure(cfg, Filter{Window: "meter"}); err != nil {
		t.Fatalf("Reconfigure failed: %v", err)
	}

	bad := fastConfig()
	bad.Width = 0
	if err := src.Reconfigure(bad, Filter{}); err == nil {
		t.Error("Expected error for invalid config")
	}

	src.Stop()
}

func TestMockSource_ClosedRejectsStart(t *testing.T) {
	src := NewMockSource()
	src.Close()

	if _, err := src.Start(context.Background(), fastConfig(), Filter{}); !errors.Is(err, ErrSourceClosed) {
		t.Fatalf("Expected ErrSourceClosed, got %v", err)
	}
}
