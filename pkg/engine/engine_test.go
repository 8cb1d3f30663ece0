package engine

import (
	"context"
	"errors"
	"image"
	"sync"
	"testing"
	"time"

	"github.com/koyakei/wind-meter-server/pkg/audiolevel"
	"github.com/koyakei/wind-meter-server/pkg/capture"
	"github.com/koyakei/wind-meter-server/pkg/ocr"
	"github.com/koyakei/wind-meter-server/pkg/region"
	"github.com/koyakei/wind-meter-server/pkg/report"
)

// fieldExtractor hands every frame the same per-field payloads, keyed so
// the mock recognizer can answer per field.
type fieldExtractor struct{}

var fieldImages = map[region.Field][]byte{
	region.FieldTens:     []byte("cell-tens"),
	region.FieldPrimary:  []byte("cell-primary"),
	region.FieldFraction: []byte("cell-fraction"),
}

func (fieldExtractor) Extract(f capture.Frame) map[region.Field][]byte {
	out := make(map[region.Field][]byte, len(fieldImages))
	for field, img := range fieldImages {
		out[field] = img
	}
	return out
}

// emptyExtractor simulates a frame no region fits.
type emptyExtractor struct{}

func (emptyExtractor) Extract(f capture.Frame) map[region.Field][]byte {
	return map[region.Field][]byte{}
}

func scriptFrame() capture.Frame {
	return capture.Frame{
		Image:        []byte{0xFF, 0xD8, 0x01, 0xFF, 0xD9},
		ContentRect:  image.Rect(0, 0, 1920, 1080),
		ContentScale: 1.0,
		ScaleFactor:  1.0,
		Timestamp:    time.Now(),
	}
}

func captureConfig() capture.Config {
	cfg := capture.DefaultConfig()
	cfg.Framerate = 100
	return cfg
}

func waitReport(t *testing.T, reporter *report.MockReporter) string {
	t.Helper()
	select {
	case display := <-reporter.Notify():
		return display
	case <-time.After(2 * time.Second):
		t.Fatal("Timed out waiting for a report")
		return ""
	}
}

func newTestEngine(t *testing.T, src capture.Source, extractor Extractor,
	recognizer ocr.Recognizer, reporter report.Reporter) *Engine {
	t.Helper()

	cfg := DefaultConfig()
	cfg.CompleteTimeout = 200 * time.Millisecond
	cfg.JobTimeout = 500 * time.Millisecond

	eng, err := New(src, audiolevel.NewMeter(), extractor, recognizer, reporter, cfg)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	return eng
}

func TestNew_RequiresCollaborators(t *testing.T) {
	src := capture.NewMockSource()
	defer src.Close()

	recognizer := ocr.NewMockRecognizer()
	defer recognizer.Close()

	meter := audiolevel.NewMeter()
	cfg := DefaultConfig()

	if _, err := New(nil, meter, fieldExtractor{}, recognizer, nil, cfg); err == nil {
		t.Error("Expected error for nil source")
	}
	if _, err := New(src, nil, fieldExtractor{}, recognizer, nil, cfg); err == nil {
		t.Error("Expected error for nil meter")
	}
	if _, err := New(src, meter, nil, recognizer, nil, cfg); err == nil {
		t.Error("Expected error for nil extractor")
	}
	if _, err := New(src, meter, fieldExtractor{}, nil, nil, cfg); err == nil {
		t.Error("Expected error for nil recognizer")
	}

	// A nil reporter is allowed: reporting is fire-and-forget.
	if _, err := New(src, meter, fieldExtractor{}, recognizer, nil, cfg); err != nil {
		t.Errorf("Nil reporter should be accepted: %v", err)
	}
}

func TestEngine_EndToEnd(t *testing.T) {
	src := capture.NewMockSource(capture.WithFrames([]capture.Frame{scriptFrame()}))
	defer src.Close()

	recognizer := ocr.NewMockRecognizer(
		ocr.WithAnswer(fieldImages[region.FieldTens], "3", nil),
		ocr.WithAnswer(fieldImages[region.FieldPrimary], "2", nil),
		ocr.WithAnswer(fieldImages[region.FieldFraction], "5", nil),
	)
	defer recognizer.Close()

	reporter := report.NewMockReporter()
	eng := newTestEngine(t, src, fieldExtractor{}, recognizer, reporter)

	frames, err := eng.Start(context.Background(), captureConfig(), capture.Filter{})
	if err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	if got := waitReport(t, reporter); got != "32.5" {
		t.Errorf("Expected 32.5, got %q", got)
	}

	// The validated frame also reaches the output sequence.
	select {
	case f := <-frames:
		if !f.Valid() {
			t.Error("Output sequence delivered an invalid frame")
		}
	case <-time.After(time.Second):
		t.Fatal("Timed out waiting for an output frame")
	}

	r, _, ok := eng.Snapshot()
	if !ok {
		t.Fatal("Expected a snapshot after completion")
	}
	if got := r.DisplayString(); got != "32.5" {
		t.Errorf("Snapshot: expected 32.5, got %q", got)
	}

	if err := eng.Stop(); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}
	for range frames {
	}
	if eng.Err() != nil {
		t.Errorf("Expected nil terminal error, got %v", eng.Err())
	}

	stats := eng.Stats()
	if stats.FramesIn == 0 {
		t.Error("Expected frames counted in")
	}
	if stats.Readings.Completed == 0 {
		t.Error("Expected completed readings counted")
	}
}

func TestEngine_FailedFieldDefaults(t *testing.T) {
	src := capture.NewMockSource(capture.WithFrames([]capture.Frame{scriptFrame()}))
	defer src.Close()

	recognizer := ocr.NewMockRecognizer(
		ocr.WithAnswer(fieldImages[region.FieldTens], "", errors.New("blurred")),
		ocr.WithAnswer(fieldImages[region.FieldPrimary], "  ", nil), // whitespace only
		ocr.WithAnswer(fieldImages[region.FieldFraction], "7", nil),
	)
	defer recognizer.Close()

	reporter := report.NewMockReporter()
	eng := newTestEngine(t, src, fieldExtractor{}, recognizer, reporter)

	if _, err := eng.Start(context.Background(), captureConfig(), capture.Filter{}); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer eng.Stop()

	if got := waitReport(t, reporter); got != "00.7" {
		t.Errorf("Expected default-filled 00.7, got %q", got)
	}
}

func TestEngine_EmptyExtractionCompletesWithDefaults(t *testing.T) {
	src := capture.NewMockSource(capture.WithFrames([]capture.Frame{scriptFrame()}))
	defer src.Close()

	recognizer := ocr.NewMockRecognizer()
	defer recognizer.Close()

	reporter := report.NewMockReporter()
	eng := newTestEngine(t, src, emptyExtractor{}, recognizer, reporter)

	if _, err := eng.Start(context.Background(), captureConfig(), capture.Filter{}); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer eng.Stop()

	if got := waitReport(t, reporter); got != "00.0" {
		t.Errorf("Expected all-default 00.0, got %q", got)
	}
	if calls := recognizer.Calls(); calls != 0 {
		t.Errorf("Expected no recognition calls, got %d", calls)
	}
}

func TestEngine_SecondStartRejected(t *testing.T) {
	src := capture.NewMockSource()
	defer src.Close()

	recognizer := ocr.NewMockRecognizer(ocr.WithDefault("0", nil))
	defer recognizer.Close()

	eng := newTestEngine(t, src, fieldExtractor{}, recognizer, report.NewMockReporter())

	if _, err := eng.Start(context.Background(), captureConfig(), capture.Filter{}); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer eng.Stop()

	if _, err := eng.Start(context.Background(), captureConfig(), capture.Filter{}); !errors.Is(err, ErrAlreadyRunning) {
		t.Fatalf("Expected ErrAlreadyRunning, got %v", err)
	}
}

func TestEngine_StreamFault(t *testing.T) {
	src := capture.NewMockSource()
	defer src.Close()

	recognizer := ocr.NewMockRecognizer(ocr.WithDefault("0", nil))
	defer recognizer.Close()

	eng := newTestEngine(t, src, fieldExtractor{}, recognizer, report.NewMockReporter())

	frames, err := eng.Start(context.Background(), captureConfig(), capture.Filter{})
	if err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	wantErr := errors.New("capture died")
	src.Fail(wantErr)

	// The output sequence must close after a fault.
	deadline := time.After(2 * time.Second)
	for {
		select {
		case _, ok := <-frames:
			if !ok {
				if !errors.Is(eng.Err(), wantErr) {
					t.Fatalf("Err() = %v, want %v", eng.Err(), wantErr)
				}
				return
			}
		case <-deadline:
			t.Fatal("Output sequence did not close after stream fault")
		}
	}
}

func TestEngine_StopIdempotentAndRestartable(t *testing.T) {
	src := capture.NewMockSource()
	defer src.Close()

	recognizer := ocr.NewMockRecognizer(ocr.WithDefault("0", nil))
	defer recognizer.Close()

	eng := newTestEngine(t, src, fieldExtractor{}, recognizer, report.NewMockReporter())

	frames, err := eng.Start(context.Background(), captureConfig(), capture.Filter{})
	if err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	if err := eng.Stop(); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}
	if err := eng.Stop(); err != nil {
		t.Fatalf("Second Stop failed: %v", err)
	}
	for range frames {
	}

	// Audio levels reset to the silence floor on stop.
	for ch, lvl := range eng.Levels().Channels {
		if lvl.Average != audiolevel.SilenceFloorDB {
			t.Errorf("Channel %d: expected silence floor, got %f", ch, lvl.Average)
		}
	}

	// A stopped engine accepts a new session.
	frames2, err := eng.Start(context.Background(), captureConfig(), capture.Filter{})
	if err != nil {
		t.Fatalf("Restart failed: %v", err)
	}
	eng.Stop()
	for range frames2 {
	}
}

func TestEngine_ContextCancelStops(t *testing.T) {
	src := capture.NewMockSource()
	defer src.Close()

	recognizer := ocr.NewMockRecognizer(ocr.WithDefault("0", nil))
	defer recognizer.Close()

	eng := newTestEngine(t, src, fieldExtractor{}, recognizer, report.NewMockReporter())

	ctx, cancel := context.WithCancel(context.Background())
	frames, err := eng.Start(ctx, captureConfig(), capture.Filter{})
	if err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	cancel()

	deadline := time.After(2 * time.Second)
	for {
		select {
		case _, ok := <-frames:
			if !ok {
				return
			}
		case <-deadline:
			t.Fatal("Output sequence did not close on context cancel")
		}
	}
}

func TestEngine_OnReadingHook(t *testing.T) {
	src := capture.NewMockSource(capture.WithFrames([]capture.Frame{scriptFrame()}))
	defer src.Close()

	recognizer := ocr.NewMockRecognizer(ocr.WithDefault("4", nil))
	defer recognizer.Close()

	eng := newTestEngine(t, src, fieldExtractor{}, recognizer, report.NewMockReporter())

	var mu sync.Mutex
	var got []string
	eng.OnReading = func(frameID uint64, display string) {
		mu.Lock()
		got = append(got, display)
		mu.Unlock()
	}

	if _, err := eng.Start(context.Background(), captureConfig(), capture.Filter{}); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer eng.Stop()

	deadline := time.After(2 * time.Second)
	for {
		mu.Lock()
		n := len(got)
		mu.Unlock()
		if n > 0 {
			break
		}
		select {
		case <-deadline:
			t.Fatal("OnReading never fired")
		case <-time.After(10 * time.Millisecond):
		}
	}

	mu.Lock()
	defer mu.Unlock()
	if got[0] != "44.4" {
		t.Errorf("Expected 44.4, got %q", got[0])
	}
}
